package fs

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/dsoprea/go-ext4"
	"github.com/rs/zerolog"

	"github.com/deploymenttheory/go-bootstd/internal/disk"
	"github.com/deploymenttheory/go-bootstd/internal/types"
)

const (
	ext4MagicOffset = 1024 + 56
	ext4Magic       = 0xEF53
)

type ext4Backend struct {
	r      *disk.PartitionReader
	logger zerolog.Logger
}

func probeExt4(r *disk.PartitionReader, logger zerolog.Logger) (Backend, error) {
	magic, err := r.ReadBytes(ext4MagicOffset, 2)
	if err != nil {
		return nil, fmt.Errorf("ext4 superblock: %w", types.ErrNotFound)
	}
	if binary.LittleEndian.Uint16(magic) != ext4Magic {
		return nil, fmt.Errorf("ext4 magic %#x: %w", magic, types.ErrNotFound)
	}
	return &ext4Backend{r: r, logger: logger}, nil
}

func (b *ext4Backend) blockGroupDescriptor(inode int) (*ext4.BlockGroupDescriptor, error) {
	if _, err := b.r.Seek(ext4.Superblock0Offset, io.SeekStart); err != nil {
		return nil, err
	}
	sb, err := ext4.NewSuperblockWithReader(b.r)
	if err != nil {
		return nil, err
	}
	bgdl, err := ext4.NewBlockGroupDescriptorListWithReadSeeker(b.r, sb)
	if err != nil {
		return nil, err
	}
	return bgdl.GetWithAbsoluteInode(inode)
}

// lookup resolves an absolute path to its inode, one component at a time
func (b *ext4Backend) lookup(name string) (int, *ext4.BlockGroupDescriptor, error) {
	parts := strings.Split(strings.Trim(name, "/"), "/")
	inode := ext4.InodeRootDirectory
	bgd, err := b.blockGroupDescriptor(inode)
	if err != nil {
		return 0, nil, err
	}

	for _, part := range parts {
		dw, err := ext4.NewDirectoryWalk(b.r, bgd, inode)
		if err != nil {
			return 0, nil, err
		}
		next := 0
		for {
			p, de, err := dw.Next()
			if err == io.EOF {
				break
			} else if err != nil {
				return 0, nil, err
			}
			if p == part {
				next = int(de.Data().Inode)
				break
			}
		}
		if next == 0 {
			return 0, nil, fmt.Errorf("%s: %w", name, types.ErrNotFound)
		}
		inode = next
		if bgd, err = b.blockGroupDescriptor(inode); err != nil {
			return 0, nil, err
		}
	}
	return inode, bgd, nil
}

func (b *ext4Backend) inode(name string) (*ext4.Inode, error) {
	inodeNumber, bgd, err := b.lookup(name)
	if err != nil {
		return nil, err
	}
	return ext4.NewInodeWithReadSeeker(bgd, b.r, inodeNumber)
}

// Size reads only the inode, never the file data
func (b *ext4Backend) Size(name string) (int64, error) {
	inode, err := b.inode(name)
	if err != nil {
		return 0, err
	}
	return int64(inode.Size()), nil
}

// Read fetches the filesystem blocks covering [offset, offset+length)
// one at a time
func (b *ext4Backend) Read(name string, offset, length int64) ([]byte, error) {
	inode, err := b.inode(name)
	if err != nil {
		return nil, err
	}
	size := int64(inode.Size())
	if offset < 0 || offset > size {
		return nil, fmt.Errorf("read %s: offset %d beyond end: %w", name, offset, types.ErrInvalid)
	}
	end := size
	if length > 0 && offset+length < size {
		end = offset + length
	}
	b.logger.Debug().Str("path", name).Int64("offset", offset).Int64("end", end).Msg("ext4 read")

	en := ext4.NewExtentNavigatorWithReadSeeker(b.r, inode)
	data := make([]byte, 0, end-offset)
	for pos := offset; pos < end; {
		chunk, err := en.Read(uint64(pos))
		if err != nil {
			return nil, fmt.Errorf("read %s at %d: %w", name, pos, err)
		}
		if len(chunk) == 0 {
			return nil, fmt.Errorf("read %s: no data at %d: %w", name, pos, io.ErrUnexpectedEOF)
		}
		if rest := end - pos; int64(len(chunk)) > rest {
			chunk = chunk[:rest]
		}
		data = append(data, chunk...)
		pos += int64(len(chunk))
	}
	return data, nil
}

func (b *ext4Backend) Close() error {
	return nil
}
