package fs

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-bootstd/internal/device"
	"github.com/deploymenttheory/go-bootstd/internal/disk"
	"github.com/deploymenttheory/go-bootstd/internal/types"
)

func newHostFixture(t *testing.T) afero.Fs {
	t.Helper()
	mem := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(mem, "/srv/boot/extlinux/extlinux.conf", []byte("label linux\n"), 0o644))
	require.NoError(t, afero.WriteFile(mem, "/srv/boot/vmlinuz", []byte("0123456789"), 0o644))
	return mem
}

func TestContext_CloseAfterOperation(t *testing.T) {
	c := NewContext(zerolog.Nop())
	src := HostSource{Fs: newHostFixture(t), Root: "/srv"}

	require.NoError(t, src.Mount(c))
	assert.True(t, c.Mounted())
	assert.Equal(t, TypeHostFS, c.Type())

	size, err := c.Size("/boot/vmlinuz")
	require.NoError(t, err)
	assert.Equal(t, int64(10), size)

	// Size closed the filesystem
	assert.False(t, c.Mounted())
	_, err = c.Read("/boot/vmlinuz", 0, 0)
	assert.ErrorIs(t, err, types.ErrInvalid)

	require.NoError(t, src.Mount(c))
	data, err := c.Read("/boot/vmlinuz", 2, 3)
	require.NoError(t, err)
	assert.Equal(t, "234", string(data))
	assert.False(t, c.Mounted())
}

func TestHostFS_Errors(t *testing.T) {
	c := NewContext(zerolog.Nop())
	src := HostSource{Fs: newHostFixture(t), Root: "/srv"}

	require.NoError(t, src.Mount(c))
	_, err := c.Size("/boot/missing")
	assert.ErrorIs(t, err, types.ErrNotFound)

	require.NoError(t, src.Mount(c))
	_, err = c.Size("/boot")
	assert.ErrorIs(t, err, types.ErrInvalid)
}

func TestContext_SetType(t *testing.T) {
	c := NewContext(zerolog.Nop())
	src := HostSource{Fs: newHostFixture(t), Root: "/srv"}

	c.SetType(TypeExt4)
	assert.ErrorIs(t, src.Mount(c), types.ErrNotFound)

	// the restriction is cleared by close
	c.Close()
	require.NoError(t, src.Mount(c))
	assert.Equal(t, TypeHostFS, c.Type())
}

type fakeBackend struct {
	closed *int
}

func (b fakeBackend) Size(string) (int64, error) { return 1, nil }
func (b fakeBackend) Read(string, int64, int64) ([]byte, error) {
	return []byte("x"), nil
}
func (b fakeBackend) Close() error {
	*b.closed++
	return nil
}

func TestContext_BlockProbing(t *testing.T) {
	dev := device.NewMemoryDevice("mmc0", 512, 64)
	c := NewContext(zerolog.Nop())

	// a blank device holds no ext4
	err := BlockSource{Dev: dev}.Mount(c)
	assert.ErrorIs(t, err, types.ErrNotFound)

	closed := 0
	c.Register("fake", func(r *disk.PartitionReader, _ zerolog.Logger) (Backend, error) {
		if r.Size() == 0 {
			return nil, types.ErrNotFound
		}
		return fakeBackend{closed: &closed}, nil
	})
	require.NoError(t, BlockSource{Dev: dev}.Mount(c))
	assert.Equal(t, "fake", c.Type())

	_, err = c.Size("anything")
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	// partitions require a table
	err = BlockSource{Dev: dev, Part: 1}.Mount(c)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

type fakeReceiver struct {
	files map[string][]byte
	calls int
}

func (r *fakeReceiver) Receive(name, mode string) (io.WriterTo, error) {
	r.calls++
	data, ok := r.files[name]
	if !ok {
		return nil, errors.New("code: 1, message: file does not exist")
	}
	return bytes.NewReader(data), nil
}

func TestTFTPSource(t *testing.T) {
	rx := &fakeReceiver{files: map[string][]byte{"pxelinux.cfg/default": []byte("label net\n")}}
	src := NewTFTPSource(rx)
	c := NewContext(zerolog.Nop())

	require.NoError(t, src.Mount(c))
	assert.Equal(t, TypeTFTP, c.Type())
	size, err := c.Size("/pxelinux.cfg/default")
	require.NoError(t, err)
	assert.Equal(t, int64(10), size)

	require.NoError(t, src.Mount(c))
	data, err := c.Read("pxelinux.cfg/default", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "label net\n", string(data))
	assert.Equal(t, 1, rx.calls, "second access served from cache")

	require.NoError(t, src.Mount(c))
	_, err = c.Size("boot.scr")
	assert.ErrorIs(t, err, types.ErrNotFound)

	src.Forget()
	require.NoError(t, src.Mount(c))
	_, err = c.Read("pxelinux.cfg/default", 20, 0)
	assert.ErrorIs(t, err, types.ErrInvalid)
	assert.Equal(t, 3, rx.calls)
}
