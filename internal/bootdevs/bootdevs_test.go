package bootdevs

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-bootstd/internal/bootstd"
	"github.com/deploymenttheory/go-bootstd/internal/device"
	"github.com/deploymenttheory/go-bootstd/internal/disk"
	"github.com/deploymenttheory/go-bootstd/internal/fs"
	"github.com/deploymenttheory/go-bootstd/internal/storage"
	"github.com/deploymenttheory/go-bootstd/internal/types"
)

// seen is what a bootmeth observed when handed a bootflow
type seen struct {
	name   string
	state  bootstd.BootflowState
	fsType string
	source fs.Source
}

type recordMeth struct {
	flags bootstd.MethodFlags
	seen  []seen
}

func (m *recordMeth) Name() string               { return "record" }
func (m *recordMeth) Flags() bootstd.MethodFlags { return m.flags }

func (m *recordMeth) ReadBootflow(_ context.Context, bflow *bootstd.Bootflow) error {
	m.seen = append(m.seen, seen{
		name:   bflow.Name,
		state:  bflow.State,
		fsType: bflow.FSType,
		source: bflow.Source,
	})
	return nil
}

type nopBackend struct{}

func (nopBackend) Size(string) (int64, error)                { return 0, types.ErrNotFound }
func (nopBackend) Read(string, int64, int64) ([]byte, error) { return nil, types.ErrNotFound }
func (nopBackend) Close() error                              { return nil }

// probeMarked recognises partitions whose first byte is 'F'
func probeMarked(r *disk.PartitionReader, _ zerolog.Logger) (fs.Backend, error) {
	b, err := r.ReadBytes(0, 1)
	if err != nil || b[0] != 'F' {
		return nil, types.ErrNotFound
	}
	return nopBackend{}, nil
}

func newFSContext() *fs.Context {
	c := fs.NewContext(zerolog.Nop())
	c.Register("marked", probeMarked)
	return c
}

func newDisk(t *testing.T, name string, parts []disk.Partition) *device.MemoryDevice {
	t.Helper()
	dev := device.NewMemoryDevice(name, 512, 256)
	if parts != nil {
		require.NoError(t, disk.WriteTable(dev, uuid.New(), parts))
	}
	return dev
}

func markFS(dev *device.MemoryDevice, startBlock uint64) {
	dev.Bytes()[startBlock*512] = 'F'
}

func TestBlock_Partitions(t *testing.T) {
	tests := []struct {
		name  string
		parts []disk.Partition
		want  []int
	}{
		{
			name: "bootable only",
			parts: []disk.Partition{
				{Name: "misc", Start: 34, Size: 16},
				{Name: "boot", Start: 50, Size: 64, Attributes: disk.AttrLegacyBootable},
				{Name: "rootfs", Start: 114, Size: 100},
			},
			want: []int{2},
		},
		{
			name: "all when none bootable",
			parts: []disk.Partition{
				{Name: "boot", Start: 34, Size: 64},
				{Name: "rootfs", Start: 98, Size: 100},
			},
			want: []int{1, 2},
		},
		{
			name:  "whole device without a table",
			parts: nil,
			want:  []int{0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blk := NewBlock(types.ClassMMC, 0, newDisk(t, "mmc0", tt.parts), newFSContext(), zerolog.Nop())
			got, err := blk.Partitions()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBlock_Identity(t *testing.T) {
	dev := newDisk(t, "usb1", nil)
	blk := NewBlock(types.ClassUSB, 1, dev, newFSContext(), zerolog.Nop())
	assert.Equal(t, "usb1", blk.Name())
	assert.Equal(t, "usb", blk.UClass())
	assert.Equal(t, types.PrioScanSlow, blk.Priority())
	assert.Same(t, dev, blk.Device())
}

func TestBlock_GetBootflow(t *testing.T) {
	dev := newDisk(t, "mmc0", []disk.Partition{
		{Name: "boot", Start: 34, Size: 64},
		{Name: "data", Start: 98, Size: 100},
	})
	markFS(dev, 34)

	fsctx := newFSContext()
	std := bootstd.NewStd(zerolog.Nop(), fsctx)
	m := &recordMeth{}
	require.NoError(t, std.AddBootmeth(m))
	require.NoError(t, std.BindBootdev(NewBlock(types.ClassMMC, 0, dev, fsctx, zerolog.Nop())))

	flows, err := std.Scan(context.Background(), bootstd.Options{All: true})
	require.NoError(t, err)
	require.Len(t, flows, 2)

	// partition 1 carries a filesystem, partition 2 does not
	require.Len(t, m.seen, 1)
	assert.Equal(t, "mmc0.bootdev.part_1", m.seen[0].name)
	assert.Equal(t, bootstd.StateFS, m.seen[0].state)
	assert.Equal(t, "marked", m.seen[0].fsType)
	assert.Equal(t, fs.BlockSource{Dev: dev, Part: 1}, m.seen[0].source)

	assert.NoError(t, flows[0].Err)
	assert.Same(t, dev, flows[0].BlkDev)
	assert.ErrorIs(t, flows[1].Err, types.ErrNotFound)
}

func TestBlock_GetBootflowRawPartition(t *testing.T) {
	dev := newDisk(t, "mmc0", []disk.Partition{{Name: "misc", Start: 34, Size: 16}})
	fsctx := newFSContext()
	std := bootstd.NewStd(zerolog.Nop(), fsctx)
	m := &recordMeth{flags: bootstd.MethodAnyPart}
	require.NoError(t, std.AddBootmeth(m))
	require.NoError(t, std.BindBootdev(NewBlock(types.ClassMMC, 0, dev, fsctx, zerolog.Nop())))

	_, err := std.Scan(context.Background(), bootstd.Options{})
	require.NoError(t, err)
	require.Len(t, m.seen, 1)
	assert.Equal(t, bootstd.StatePart, m.seen[0].state)
	assert.Empty(t, m.seen[0].fsType)
	assert.False(t, fsctx.Mounted())
}

func TestBlock_NoMedia(t *testing.T) {
	dev := newDisk(t, "mmc0", nil)
	dev.SetType(types.DevTypeUnknown)
	fsctx := newFSContext()
	std := bootstd.NewStd(zerolog.Nop(), fsctx)
	require.NoError(t, std.AddBootmeth(&recordMeth{flags: bootstd.MethodAnyPart}))
	require.NoError(t, std.BindBootdev(NewBlock(types.ClassMMC, 0, dev, fsctx, zerolog.Nop())))

	flows, err := std.Scan(context.Background(), bootstd.Options{All: true})
	require.NoError(t, err)
	require.Len(t, flows, 1)
	assert.ErrorIs(t, flows[0].Err, types.ErrNotFound)
}

func newBoard(t *testing.T) (*device.Driver, *storage.Enumerator) {
	t.Helper()
	drv := device.NewDriver(zerolog.Nop())
	drv.SetMaxDevices(types.ClassMMC, 2)
	drv.SetMaxDevices(types.ClassUSB, 1)
	drv.RequireProbe(types.ClassUSB)

	mmc := newDisk(t, "mmc1", nil)
	markFS(mmc, 0)
	require.NoError(t, drv.Attach(types.ClassMMC, 1, mmc))
	usb := newDisk(t, "usb0", nil)
	markFS(usb, 0)
	require.NoError(t, drv.Attach(types.ClassUSB, 0, usb))

	return drv, storage.NewEnumerator(drv, zerolog.Nop())
}

func TestBindStorageAndHunter(t *testing.T) {
	drv, enum := newBoard(t)
	std := bootstd.NewStd(zerolog.Nop(), newFSContext())

	n, err := BindStorage(context.Background(), std, enum)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = std.Bootdev("mmc1")
	require.NoError(t, err)
	_, err = std.Bootdev("usb0")
	assert.ErrorIs(t, err, types.ErrNotFound, "usb is not probed yet")

	h := NewBlockHunter(types.ClassUSB, drv, enum, zerolog.Nop())
	assert.Equal(t, "usb", h.UClass())
	assert.Equal(t, types.PrioScanSlow, h.Priority())
	require.NoError(t, h.Hunt(context.Background(), std))
	_, err = std.Bootdev("usb0")
	require.NoError(t, err)

	n, err = BindStorage(context.Background(), std, enum)
	require.NoError(t, err)
	assert.Zero(t, n)

	sata := NewBlockHunter(types.ClassSATA, drv, enum, zerolog.Nop())
	assert.ErrorIs(t, sata.Hunt(context.Background(), std), types.ErrNotFound)
}

func TestScanWithHunting(t *testing.T) {
	drv, enum := newBoard(t)
	std := bootstd.NewStd(zerolog.Nop(), newFSContext())
	m := &recordMeth{}
	require.NoError(t, std.AddBootmeth(m))
	_, err := BindStorage(context.Background(), std, enum)
	require.NoError(t, err)
	std.AddHunter(NewBlockHunter(types.ClassUSB, drv, enum, zerolog.Nop()))

	_, err = std.Scan(context.Background(), bootstd.Options{Hunt: true})
	require.NoError(t, err)
	require.Len(t, m.seen, 2)
	assert.Equal(t, "mmc1.bootdev.whole", m.seen[0].name)
	assert.Equal(t, "usb0.bootdev.whole", m.seen[1].name)
}

type fakeReceiver struct {
	files map[string][]byte
}

func (r *fakeReceiver) Receive(name, _ string) (io.WriterTo, error) {
	data, ok := r.files[name]
	if !ok {
		return nil, types.ErrNotFound
	}
	return bytes.NewReader(data), nil
}

func TestNetHunter(t *testing.T) {
	fsctx := fs.NewContext(zerolog.Nop())
	std := bootstd.NewStd(zerolog.Nop(), fsctx)
	m := &recordMeth{}
	require.NoError(t, std.AddBootmeth(m))

	h := NewNetHunter("192.0.2.1", time.Second, 2, zerolog.Nop())
	var dialed string
	h.dial = func(server string, _ time.Duration, _ int) (fs.Receiver, error) {
		dialed = server
		return &fakeReceiver{files: map[string][]byte{"boot.scr": []byte("echo")}}, nil
	}
	std.AddHunter(h)

	_, err := std.Scan(context.Background(), bootstd.Options{Hunt: true})
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.1", dialed)
	require.Len(t, m.seen, 1)
	assert.Equal(t, "eth0.bootdev.whole", m.seen[0].name)
	assert.Equal(t, fs.TypeTFTP, m.seen[0].fsType)
	assert.Equal(t, bootstd.StateFS, m.seen[0].state)

	dev, err := std.Bootdev("eth0")
	require.NoError(t, err)
	assert.Equal(t, types.PrioNetBase, dev.Priority())

	empty := NewNetHunter("", 0, 0, zerolog.Nop())
	assert.ErrorIs(t, empty.Hunt(context.Background(), std), types.ErrNotFound)
}

func TestHost(t *testing.T) {
	mem := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(mem, "/srv/tftp/boot.scr", []byte("echo"), 0o644))

	fsctx := fs.NewContext(zerolog.Nop())
	std := bootstd.NewStd(zerolog.Nop(), fsctx)
	m := &recordMeth{}
	require.NoError(t, std.AddBootmeth(m))
	require.NoError(t, std.BindBootdev(NewHost("host0", mem, "/srv/tftp", fsctx)))

	_, err := std.Scan(context.Background(), bootstd.Options{Label: "host"})
	require.NoError(t, err)
	require.Len(t, m.seen, 1)
	assert.Equal(t, "host0.bootdev.whole", m.seen[0].name)
	assert.Equal(t, fs.TypeHostFS, m.seen[0].fsType)
	assert.Equal(t, fs.HostSource{Fs: mem, Root: "/srv/tftp"}, m.seen[0].source)
}
