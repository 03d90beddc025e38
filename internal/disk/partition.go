package disk

import (
	"errors"
	"fmt"
	"io"

	"github.com/deploymenttheory/go-bootstd/internal/interfaces"
	"github.com/deploymenttheory/go-bootstd/internal/types"
)

// PartitionReader exposes a byte range of a block device as an
// io.ReadSeeker and io.ReaderAt. Part 0 covers the whole device.
type PartitionReader struct {
	dev    interfaces.BlockDevice
	start  uint64 // first block
	length int64  // bytes
	pos    int64
}

// NewPartitionReader opens partition n of dev. n == 0 selects the whole
// device; otherwise the GPT is read to locate the partition.
func NewPartitionReader(dev interfaces.BlockDevice, n int) (*PartitionReader, error) {
	if n == 0 {
		return &PartitionReader{
			dev:    dev,
			length: int64(dev.BlockCount()) * int64(dev.BlockSize()),
		}, nil
	}
	table, err := ReadTable(dev)
	if err != nil {
		return nil, err
	}
	p, err := table.Get(n)
	if err != nil {
		return nil, err
	}
	return NewPartitionReaderFor(dev, p), nil
}

// NewPartitionReaderFor opens an already located partition
func NewPartitionReaderFor(dev interfaces.BlockDevice, p Partition) *PartitionReader {
	return &PartitionReader{
		dev:    dev,
		start:  p.Start,
		length: int64(p.Size) * int64(dev.BlockSize()),
	}
}

// Size returns the partition length in bytes
func (r *PartitionReader) Size() int64 {
	return r.length
}

// StartBlock returns the first device block of the partition
func (r *PartitionReader) StartBlock() uint64 {
	return r.start
}

// Device returns the underlying block device
func (r *PartitionReader) Device() interfaces.BlockDevice {
	return r.dev
}

// Read implements io.Reader
func (r *PartitionReader) Read(p []byte) (int, error) {
	n, err := r.ReadAt(p, r.pos)
	r.pos += int64(n)
	return n, err
}

// Seek implements io.Seeker
func (r *PartitionReader) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset += r.pos
	case io.SeekEnd:
		offset += r.length
	default:
		return 0, fmt.Errorf("invalid whence %d: %w", whence, types.ErrInvalid)
	}
	if offset < 0 {
		return 0, fmt.Errorf("negative position: %w", types.ErrInvalid)
	}
	r.pos = offset
	return offset, nil
}

// ReadAt implements io.ReaderAt
func (r *PartitionReader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset: %w", types.ErrInvalid)
	}
	if off >= r.length {
		return 0, io.EOF
	}
	want := len(p)
	if int64(want) > r.length-off {
		want = int(r.length - off)
	}

	bs := int64(r.dev.BlockSize())
	first := off / bs
	last := (off + int64(want) - 1) / bs
	count := uint32(last - first + 1)
	buf := make([]byte, int64(count)*bs)

	got, err := r.dev.ReadBlocks(r.start+uint64(first), count, buf)
	if err != nil {
		return 0, err
	}
	avail := int64(got)*bs - off%bs
	if avail < 0 {
		avail = 0
	}
	if int64(want) > avail {
		want = int(avail)
	}
	n := copy(p[:want], buf[off%bs:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// ReadBytes reads length bytes at off, failing on a short read
func (r *PartitionReader) ReadBytes(off, length int64) ([]byte, error) {
	buf := make([]byte, length)
	n, err := r.ReadAt(buf, off)
	if n == len(buf) {
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return nil, err
}

// WriteAt writes p at off within the partition using read-modify-write on
// the covering blocks.
func (r *PartitionReader) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > r.length {
		return 0, fmt.Errorf("write outside partition: %w", types.ErrInvalid)
	}
	if len(p) == 0 {
		return 0, nil
	}
	bs := int64(r.dev.BlockSize())
	first := off / bs
	last := (off + int64(len(p)) - 1) / bs
	count := uint32(last - first + 1)
	buf := make([]byte, int64(count)*bs)

	if _, err := r.dev.ReadBlocks(r.start+uint64(first), count, buf); err != nil {
		return 0, err
	}
	copy(buf[off%bs:], p)
	n, err := r.dev.WriteBlocks(r.start+uint64(first), count, buf)
	if err != nil {
		return 0, err
	}
	if n != count {
		return 0, fmt.Errorf("short write (%d of %d blocks): %w", n, count, types.ErrNoSpace)
	}
	return len(p), nil
}
