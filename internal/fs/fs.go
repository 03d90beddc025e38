// Package fs provides the filesystem context bootmeths read files through.
//
// A Context holds at most one mounted backend. Every Size or Read closes the
// backend afterwards, so callers that need more than one operation must mount
// again in between.
package fs

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/deploymenttheory/go-bootstd/internal/disk"
	"github.com/deploymenttheory/go-bootstd/internal/interfaces"
	"github.com/deploymenttheory/go-bootstd/internal/types"
)

// Filesystem type names
const (
	TypeAny    = ""
	TypeExt4   = "ext4"
	TypeHostFS = "hostfs"
	TypeTFTP   = "tftp"
)

// Backend is a mounted filesystem
type Backend interface {
	// Size returns the length of the named file
	Size(name string) (int64, error)
	// Read returns up to length bytes of name starting at offset. A length
	// of 0 reads to the end of the file.
	Read(name string, offset, length int64) ([]byte, error)
	Close() error
}

// Prober recognises a filesystem on a partition. It returns ErrNotFound
// when the partition holds some other filesystem.
type Prober func(r *disk.PartitionReader, logger zerolog.Logger) (Backend, error)

// Source mounts a filesystem into a Context
type Source interface {
	Mount(c *Context) error
}

type prober struct {
	name  string
	probe Prober
}

// Context tracks the current filesystem
type Context struct {
	logger  zerolog.Logger
	probers []prober
	forced  string
	backend Backend
	fsType  string
}

// NewContext creates a context that knows the block filesystems built into
// this package
func NewContext(logger zerolog.Logger) *Context {
	c := &Context{logger: logger.With().Str("component", "fs").Logger()}
	c.Register(TypeExt4, probeExt4)
	return c
}

// Register adds a block filesystem prober, tried after those already present
func (c *Context) Register(name string, p Prober) {
	c.probers = append(c.probers, prober{name: name, probe: p})
}

// SetType restricts the next SetBlkDevWithPart to one filesystem type.
// TypeAny restores detection. The restriction lasts until the next close.
func (c *Context) SetType(name string) {
	c.forced = name
}

// Type returns the type of the mounted filesystem, or TypeAny
func (c *Context) Type() string {
	return c.fsType
}

// Mounted reports whether a backend is attached
func (c *Context) Mounted() bool {
	return c.backend != nil
}

// SetBlkDevWithPart mounts the filesystem on partition part of dev. Part 0
// is the whole device.
func (c *Context) SetBlkDevWithPart(dev interfaces.BlockDevice, part int) error {
	c.closeBackend()

	r, err := disk.NewPartitionReader(dev, part)
	if err != nil {
		return fmt.Errorf("%s:%d: %w", dev.Name(), part, err)
	}

	for _, p := range c.probers {
		if c.forced != TypeAny && c.forced != p.name {
			continue
		}
		b, err := p.probe(r, c.logger)
		if err != nil {
			c.logger.Debug().Str("device", dev.Name()).Int("part", part).
				Str("fs", p.name).Err(err).Msg("probe failed")
			continue
		}
		c.backend = b
		c.fsType = p.name
		return nil
	}
	return fmt.Errorf("no filesystem on %s:%d: %w", dev.Name(), part, types.ErrNotFound)
}

// Attach mounts a backend that does not live on a block device
func (c *Context) Attach(fsType string, b Backend) error {
	c.closeBackend()
	if c.forced != TypeAny && c.forced != fsType {
		return fmt.Errorf("filesystem %s does not match %s: %w", fsType, c.forced, types.ErrNotFound)
	}
	c.backend = b
	c.fsType = fsType
	return nil
}

// Size returns the length of name, then closes the filesystem
func (c *Context) Size(name string) (int64, error) {
	if c.backend == nil {
		return 0, fmt.Errorf("size %s: no filesystem: %w", name, types.ErrInvalid)
	}
	defer c.Close()
	return c.backend.Size(name)
}

// Read reads name, then closes the filesystem
func (c *Context) Read(name string, offset, length int64) ([]byte, error) {
	if c.backend == nil {
		return nil, fmt.Errorf("read %s: no filesystem: %w", name, types.ErrInvalid)
	}
	defer c.Close()
	return c.backend.Read(name, offset, length)
}

// Close unmounts the filesystem and clears any SetType restriction
func (c *Context) Close() {
	c.closeBackend()
	c.forced = TypeAny
}

func (c *Context) closeBackend() {
	if c.backend == nil {
		return
	}
	if err := c.backend.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("close failed")
	}
	c.backend = nil
	c.fsType = TypeAny
}

// BlockSource mounts a partition of a block device
type BlockSource struct {
	Dev  interfaces.BlockDevice
	Part int
}

// Mount implements Source
func (s BlockSource) Mount(c *Context) error {
	return c.SetBlkDevWithPart(s.Dev, s.Part)
}

// sliceFile applies Read's offset/length rules to a whole file
func sliceFile(name string, data []byte, offset, length int64) ([]byte, error) {
	if offset < 0 || offset > int64(len(data)) {
		return nil, fmt.Errorf("read %s: offset %d beyond end: %w", name, offset, types.ErrInvalid)
	}
	data = data[offset:]
	if length > 0 && length < int64(len(data)) {
		data = data[:length]
	}
	return data, nil
}
