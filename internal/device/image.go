package device

import (
	"fmt"
	"io"
	"os"

	"github.com/deploymenttheory/go-bootstd/internal/types"
)

// ImageDevice provides block access to a disk image file (or a raw host
// device node)
type ImageDevice struct {
	name      string
	file      *os.File
	size      int64
	offset    int64 // Offset of the emulated disk within the file
	blockSize uint32
	readOnly  bool
	devType   types.DeviceType
}

// OpenImage opens the image described by cfg as a block device called name
func OpenImage(name string, cfg ImageConfig) (*ImageDevice, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("image path for %s cannot be empty", name)
	}

	flag := os.O_RDWR
	if cfg.ReadOnly {
		flag = os.O_RDONLY
	}
	file, err := os.OpenFile(cfg.Path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", cfg.Path, err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat image %s: %w", cfg.Path, err)
	}

	blockSize := cfg.BlockSize
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}
	if stat.Size() < cfg.Offset {
		file.Close()
		return nil, fmt.Errorf("image %s is smaller than its offset %d", cfg.Path, cfg.Offset)
	}

	d := &ImageDevice{
		name:      name,
		file:      file,
		size:      stat.Size() - cfg.Offset,
		offset:    cfg.Offset,
		blockSize: blockSize,
		readOnly:  cfg.ReadOnly,
		devType:   types.DevTypeHardDisk,
	}
	if cfg.Inactive {
		d.devType = types.DevTypeUnknown
	}
	return d, nil
}

// Name returns the device label
func (d *ImageDevice) Name() string { return d.name }

// Type returns the media type
func (d *ImageDevice) Type() types.DeviceType { return d.devType }

// BlockSize returns the block size of the device
func (d *ImageDevice) BlockSize() uint32 { return d.blockSize }

// BlockCount returns the number of whole blocks in the image
func (d *ImageDevice) BlockCount() uint64 {
	return uint64(d.size) / uint64(d.blockSize)
}

// ReadBlocks implements interfaces.BlockDeviceReader
func (d *ImageDevice) ReadBlocks(start uint64, count uint32, buf []byte) (uint32, error) {
	count = clampCount(start, count, d.BlockCount())
	length := int(count) * int(d.blockSize)
	if len(buf) < length {
		return 0, fmt.Errorf("buffer of %d bytes too small for %d blocks: %w", len(buf), count, types.ErrNoSpace)
	}
	off := d.offset + int64(start)*int64(d.blockSize)
	n, err := d.file.ReadAt(buf[:length], off)
	if err != nil && err != io.EOF {
		return uint32(n) / d.blockSize, fmt.Errorf("failed to read %s block %d: %w", d.name, start, err)
	}
	return uint32(n) / d.blockSize, nil
}

// WriteBlocks implements interfaces.BlockDeviceWriter
func (d *ImageDevice) WriteBlocks(start uint64, count uint32, buf []byte) (uint32, error) {
	if d.readOnly {
		return 0, fmt.Errorf("device %s is read-only: %w", d.name, types.ErrPermission)
	}
	count = clampCount(start, count, d.BlockCount())
	length := int(count) * int(d.blockSize)
	if len(buf) < length {
		return 0, fmt.Errorf("buffer of %d bytes too small for %d blocks: %w", len(buf), count, types.ErrInvalid)
	}
	off := d.offset + int64(start)*int64(d.blockSize)
	n, err := d.file.WriteAt(buf[:length], off)
	if err != nil {
		return uint32(n) / d.blockSize, fmt.Errorf("failed to write %s block %d: %w", d.name, start, err)
	}
	return uint32(n) / d.blockSize, nil
}

// Close closes the image file
func (d *ImageDevice) Close() error {
	if d.file != nil {
		return d.file.Close()
	}
	return nil
}

func clampCount(start uint64, count uint32, total uint64) uint32 {
	if start >= total {
		return 0
	}
	if start+uint64(count) > total {
		return uint32(total - start)
	}
	return count
}
