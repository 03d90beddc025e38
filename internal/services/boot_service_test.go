package services

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-bootstd/internal/bootstd"
	"github.com/deploymenttheory/go-bootstd/internal/device"
	"github.com/deploymenttheory/go-bootstd/internal/disk"
	"github.com/deploymenttheory/go-bootstd/internal/handoff"
	"github.com/deploymenttheory/go-bootstd/internal/parsers/bootimg"
	"github.com/deploymenttheory/go-bootstd/internal/types"
)

// androidDisk returns a device with misc, boot_a and boot_b partitions and
// a boot image in boot_a
func androidDisk(t *testing.T, name string) *device.MemoryDevice {
	t.Helper()
	dev := device.NewMemoryDevice(name, 512, 256)
	require.NoError(t, disk.WriteTable(dev, uuid.New(), []disk.Partition{
		{Name: "misc", Start: 34, Size: 16},
		{Name: "boot_a", Start: 50, Size: 64},
		{Name: "boot_b", Start: 114, Size: 64},
	}))
	r, err := disk.NewPartitionReader(dev, 2)
	require.NoError(t, err)
	img := bootimg.Build("panther", "console=ttyS0", 2048, []byte(strings.Repeat("K", 1000)), nil)
	_, err = r.WriteAt(img, 0)
	require.NoError(t, err)
	return dev
}

type fixture struct {
	svc  *BootService
	exec *handoff.DryRun
}

func newFixture(t *testing.T, mutate func(*device.BoardConfig)) *fixture {
	t.Helper()
	drv := device.NewDriver(zerolog.Nop())
	drv.SetMaxDevices(types.ClassMMC, 2)
	drv.SetMaxDevices(types.ClassUSB, 1)
	drv.RequireProbe(types.ClassUSB)
	require.NoError(t, drv.Attach(types.ClassMMC, 0, androidDisk(t, "mmc0")))
	require.NoError(t, drv.Attach(types.ClassUSB, 0, device.NewMemoryDevice("usb0", 512, 64)))

	hostFs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(hostFs, "/srv/boot/extlinux/extlinux.conf",
		[]byte("label os\n kernel /vmlinuz\n append quiet\n"), 0o644))
	require.NoError(t, afero.WriteFile(hostFs, "/srv/boot/vmlinuz", []byte("kernel"), 0o644))

	config := &device.BoardConfig{
		Host:    []device.HostConfig{{Root: "/srv"}},
		Env:     map[string]string{"bootmeths": "extlinux android"},
		EFIArch: "x64",
	}
	if mutate != nil {
		mutate(config)
	}

	exec := handoff.NewDryRun(zerolog.Nop())
	svc, err := NewBootService(context.Background(), config, zerolog.Nop(),
		WithDriver(drv), WithHostFs(hostFs), WithExecutor(exec))
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return &fixture{svc: svc, exec: exec}
}

func labels(devs []StorageDevice) []string {
	out := make([]string, len(devs))
	for i, d := range devs {
		out[i] = d.Label
	}
	return out
}

func TestBootService_StorageAndHunting(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	devs, err := f.svc.Storage(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"mmc0"}, labels(devs), "usb waits for its bus probe")
	assert.Equal(t, "mmc0", devs[0].Bootdev)
	assert.Equal(t, types.DevTypStor|types.DTStorMMC, devs[0].Type)
	assert.Equal(t, uint64(256*512), devs[0].Size())

	hunters := f.svc.Hunters()
	require.Len(t, hunters, 2)
	assert.Equal(t, "usb", hunters[0].UClass)
	assert.Equal(t, "mmc", hunters[1].UClass)
	assert.False(t, hunters[0].Hunted)

	require.NoError(t, f.svc.Hunt(ctx, "usb"))
	assert.True(t, f.svc.Hunters()[0].Hunted)
	assert.ErrorIs(t, f.svc.Hunt(ctx, "sata"), types.ErrNotFound)

	devs, err = f.svc.Storage(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"usb0", "mmc0"}, labels(devs))

	assert.Equal(t, []BootdevInfo{
		{Seq: 0, Name: "mmc0", UClass: "mmc", Priority: "0_internal-fast"},
		{Seq: 1, Name: "host0", UClass: "host", Priority: "0_internal-fast"},
		{Seq: 2, Name: "usb0", UClass: "usb", Priority: "3_scan-slow"},
	}, f.svc.Bootdevs())
}

func TestBootService_Bootmeths(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, []BootmethInfo{
		{Order: 0, Name: "extlinux"},
		{Order: -1, Name: "script"},
		{Order: -1, Name: "efi"},
		{Order: 1, Name: "android"},
		{Order: -1, Name: "efi_mgr", Global: true},
	}, f.svc.Bootmeths())

	require.NoError(t, f.svc.SetEnv("bootmeths", ""))
	for i, m := range f.svc.Bootmeths() {
		assert.Equal(t, i, m.Order, m.Name)
	}
	assert.ErrorIs(t, f.svc.SetEnv("bootmeths", "pxe"), types.ErrNotFound)
}

func TestBootService_Scan(t *testing.T) {
	f := newFixture(t, nil)

	flows, err := f.svc.Scan(context.Background(), bootstd.Options{Hunt: true})
	require.NoError(t, err)
	res := NewScanResult(flows)
	require.Equal(t, 2, res.Found)
	assert.Equal(t, 0, res.Failed)

	assert.Equal(t, "mmc0.bootdev.part_1", res.Bootflows[0].Name)
	assert.Equal(t, "android", res.Bootflows[0].Bootmeth)
	assert.Equal(t, "a", res.Bootflows[0].Slot)
	assert.Equal(t, "host0.bootdev.whole", res.Bootflows[1].Name)
	assert.Equal(t, "extlinux", res.Bootflows[1].Bootmeth)

	// hunting bound usb0 at its tier
	_, err = f.svc.Std().Bootdev("usb0")
	assert.NoError(t, err)

	require.NoError(t, f.svc.SetEnv("boot_targets", "host"))
	flows, err = f.svc.Scan(context.Background(), bootstd.Options{})
	require.NoError(t, err)
	require.Len(t, flows, 1)
	assert.Equal(t, "host0", flows[0].Dev.Name())
}

func TestBootService_Boot(t *testing.T) {
	f := newFixture(t, nil)

	bflow, err := f.svc.Boot(context.Background(), bootstd.Options{})
	require.NoError(t, err)
	assert.Equal(t, "android", bflow.Method.Name())

	images := f.exec.Images()
	require.Len(t, images, 1)
	assert.Equal(t, handoff.KindAndroid, images[0].Kind)
	assert.Equal(t, "console=ttyS0 androidboot.slot_suffix=_a", images[0].Cmdline)

	report, err := f.svc.DumpSlots("mmc0")
	require.NoError(t, err)
	assert.True(t, report.CRCOK)
	assert.Equal(t, uint8(types.MaxTriesRemaining-1), report.Control.SlotInfo[0].TriesRemaining)
}

func TestBootService_BootHost(t *testing.T) {
	f := newFixture(t, func(c *device.BoardConfig) {
		c.Env["boot_targets"] = "host0"
	})

	bflow, err := f.svc.Boot(context.Background(), bootstd.Options{})
	require.NoError(t, err)
	assert.Equal(t, "host0.bootdev.whole", bflow.Name)
	images := f.exec.Images()
	require.Len(t, images, 1)
	assert.Equal(t, "kernel", string(images[0].Kernel))
	assert.Equal(t, "quiet", images[0].Cmdline)
}

func TestBootService_Slots(t *testing.T) {
	f := newFixture(t, nil)

	slot, err := f.svc.SelectSlot("mmc0", false)
	require.NoError(t, err)
	assert.Equal(t, "a", slot)

	require.NoError(t, f.svc.SetActive("mmc0", "b"))
	slot, err = f.svc.SelectSlot("mmc0", false)
	require.NoError(t, err)
	assert.Equal(t, "b", slot)

	require.NoError(t, f.svc.MarkSuccessful("mmc0", "_b"))
	report, err := f.svc.DumpSlots("mmc0")
	require.NoError(t, err)
	assert.True(t, report.Control.SlotInfo[1].SuccessfulBoot)
	assert.False(t, report.Control.SlotInfo[0].SuccessfulBoot)

	tests := []struct {
		name    string
		run     func() error
		wantErr error
	}{
		{"bad slot", func() error { return f.svc.SetActive("mmc0", "z") }, types.ErrInvalid},
		{"host bootdev", func() error { _, err := f.svc.DumpSlots("host0"); return err }, types.ErrNotSupported},
		{"unknown bootdev", func() error { return f.svc.MarkSuccessful("mmc7", "a") }, types.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.run(), tt.wantErr)
		})
	}
}

func TestNewBootService_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := NewBootService(ctx, &device.BoardConfig{EFIArch: "vax"}, zerolog.Nop(),
		WithDriver(device.NewDriver(zerolog.Nop())), WithExecutor(handoff.NewDryRun(zerolog.Nop())))
	assert.ErrorIs(t, err, types.ErrInvalid)

	_, err = NewBootService(ctx, &device.BoardConfig{EFIArch: "x64", Executor: "magic"}, zerolog.Nop(),
		WithDriver(device.NewDriver(zerolog.Nop())))
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = NewBootService(ctx, &device.BoardConfig{
		EFIArch: "x64",
		Env:     map[string]string{"bootmeths": "nope"},
	}, zerolog.Nop(), WithDriver(device.NewDriver(zerolog.Nop())), WithExecutor(handoff.NewDryRun(zerolog.Nop())))
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestNewScanResult(t *testing.T) {
	res := NewScanResult([]*bootstd.Bootflow{
		{Name: "a", State: bootstd.StateReady},
		{Name: "b", Err: types.ErrNoData},
	})
	assert.Equal(t, 1, res.Found)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, "ready", res.Bootflows[0].State)
	assert.Equal(t, types.ErrNoData.Error(), res.Bootflows[1].Error)
}
