package fs

import (
	"errors"
	"fmt"
	"io"
	iofs "io/fs"

	"github.com/spf13/afero"

	"github.com/deploymenttheory/go-bootstd/internal/types"
)

// HostSource mounts a directory of an afero filesystem, typically a
// directory on the machine running the tool
type HostSource struct {
	Fs   afero.Fs
	Root string
}

// Mount implements Source
func (s HostSource) Mount(c *Context) error {
	root := s.Root
	if root == "" {
		root = "/"
	}
	return c.Attach(TypeHostFS, &hostBackend{fs: afero.NewBasePathFs(s.Fs, root)})
}

type hostBackend struct {
	fs afero.Fs
}

func (b *hostBackend) Size(name string) (int64, error) {
	fi, err := b.fs.Stat(name)
	if err != nil {
		return 0, hostError(name, err)
	}
	if fi.IsDir() {
		return 0, fmt.Errorf("%s is a directory: %w", name, types.ErrInvalid)
	}
	return fi.Size(), nil
}

func (b *hostBackend) Read(name string, offset, length int64) ([]byte, error) {
	f, err := b.fs.Open(name)
	if err != nil {
		return nil, hostError(name, err)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	var r io.Reader = f
	if length > 0 {
		r = io.LimitReader(f, length)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

func (b *hostBackend) Close() error {
	return nil
}

func hostError(name string, err error) error {
	if errors.Is(err, iofs.ErrNotExist) {
		return fmt.Errorf("%s: %w", name, types.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", name, err)
}
