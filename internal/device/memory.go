package device

import (
	"fmt"

	"github.com/deploymenttheory/go-bootstd/internal/types"
)

// DefaultBlockSize is used when a device configuration gives none
const DefaultBlockSize = 512

// MemoryDevice is a block device backed by a byte slice. Boards use it for
// RAM disks; tests use it as a fixture.
type MemoryDevice struct {
	name      string
	data      []byte
	blockSize uint32
	devType   types.DeviceType
}

// NewMemoryDevice creates a zero-filled device of blocks blocks
func NewMemoryDevice(name string, blockSize uint32, blocks uint64) *MemoryDevice {
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}
	return &MemoryDevice{
		name:      name,
		data:      make([]byte, uint64(blockSize)*blocks),
		blockSize: blockSize,
		devType:   types.DevTypeHardDisk,
	}
}

// SetType overrides the reported media type
func (d *MemoryDevice) SetType(t types.DeviceType) { d.devType = t }

// Bytes exposes the backing store
func (d *MemoryDevice) Bytes() []byte { return d.data }

func (d *MemoryDevice) Name() string           { return d.name }
func (d *MemoryDevice) Type() types.DeviceType { return d.devType }
func (d *MemoryDevice) BlockSize() uint32      { return d.blockSize }

func (d *MemoryDevice) BlockCount() uint64 {
	return uint64(len(d.data)) / uint64(d.blockSize)
}

// ReadBlocks implements interfaces.BlockDeviceReader
func (d *MemoryDevice) ReadBlocks(start uint64, count uint32, buf []byte) (uint32, error) {
	count = clampCount(start, count, d.BlockCount())
	length := uint64(count) * uint64(d.blockSize)
	if uint64(len(buf)) < length {
		return 0, fmt.Errorf("buffer of %d bytes too small for %d blocks: %w", len(buf), count, types.ErrNoSpace)
	}
	off := start * uint64(d.blockSize)
	copy(buf, d.data[off:off+length])
	return count, nil
}

// WriteBlocks implements interfaces.BlockDeviceWriter
func (d *MemoryDevice) WriteBlocks(start uint64, count uint32, buf []byte) (uint32, error) {
	count = clampCount(start, count, d.BlockCount())
	length := uint64(count) * uint64(d.blockSize)
	if uint64(len(buf)) < length {
		return 0, fmt.Errorf("buffer of %d bytes too small for %d blocks: %w", len(buf), count, types.ErrInvalid)
	}
	off := start * uint64(d.blockSize)
	copy(d.data[off:off+length], buf)
	return count, nil
}
