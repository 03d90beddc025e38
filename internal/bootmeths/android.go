package bootmeths

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/deploymenttheory/go-bootstd/internal/android"
	"github.com/deploymenttheory/go-bootstd/internal/bootstd"
	"github.com/deploymenttheory/go-bootstd/internal/disk"
	"github.com/deploymenttheory/go-bootstd/internal/handoff"
	"github.com/deploymenttheory/go-bootstd/internal/interfaces"
	"github.com/deploymenttheory/go-bootstd/internal/parsers/bootimg"
	"github.com/deploymenttheory/go-bootstd/internal/types"
)

// blockBootdev is a bootdev backed by a block device
type blockBootdev interface {
	Device() interfaces.BlockDevice
}

// Android boots the boot image of the active A/B slot. It reads partitions
// directly, so it needs a block bootdev but no filesystem.
type Android struct {
	selector *android.Selector
	exec     handoff.Executor
	logger   zerolog.Logger
}

// NewAndroid creates the Android bootmeth
func NewAndroid(selector *android.Selector, exec handoff.Executor, logger zerolog.Logger) *Android {
	return &Android{
		selector: selector,
		exec:     exec,
		logger:   logger.With().Str("component", "android").Logger(),
	}
}

func (a *Android) Name() string               { return "android" }
func (a *Android) Flags() bootstd.MethodFlags { return bootstd.MethodAnyPart }

// Check accepts block bootdevs, once per device
func (a *Android) Check(it *bootstd.Iter) error {
	if _, ok := it.Bootdev().(blockBootdev); !ok {
		return fmt.Errorf("android needs a block device: %w", types.ErrNotSupported)
	}
	if it.PartIndex() != 0 {
		return fmt.Errorf("android reads the first partition only: %w", types.ErrNotFound)
	}
	return nil
}

// bootPartition locates boot_<slot> for the selected slot
func bootPartition(dev interfaces.BlockDevice, slot int) (disk.Partition, error) {
	table, err := disk.ReadTable(dev)
	if err != nil {
		return disk.Partition{}, err
	}
	return table.Find("boot_" + string(types.SlotName(slot)))
}

func readHeader(dev interfaces.BlockDevice, part disk.Partition) (*bootimg.BootImageReader, *disk.PartitionReader, error) {
	r := disk.NewPartitionReaderFor(dev, part)
	hdr, err := r.ReadBytes(0, types.BootImageHeaderSize)
	if err != nil {
		return nil, nil, fmt.Errorf("%s header: %w", part.Name, types.ErrNoData)
	}
	img, err := bootimg.NewBootImageReader(hdr)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", part.Name, err)
	}
	return img, r, nil
}

// ReadBootflow selects the slot without spending a try and checks its boot
// image header
func (a *Android) ReadBootflow(_ context.Context, bflow *bootstd.Bootflow) error {
	dev := bflow.BlkDev
	if dev == nil {
		return fmt.Errorf("android needs a block device: %w", types.ErrNotSupported)
	}
	misc, err := android.FindMisc(dev)
	if err != nil {
		return err
	}
	slot, err := a.selector.SelectSlot(dev, misc, false)
	if err != nil {
		return err
	}
	bflow.Slot = string(types.SlotName(slot))

	part, err := bootPartition(dev, slot)
	if err != nil {
		return err
	}
	img, _, err := readHeader(dev, part)
	if err != nil {
		return err
	}

	bflow.FName = part.Name
	bflow.Size = img.ImageSize()
	bflow.OSName = "Android"
	if name := img.Name(); name != "" {
		bflow.OSName += " (" + name + ")"
	}
	bflow.State = bootstd.StateReady
	return nil
}

// StateDesc implements bootstd.StateDescriber
func (a *Android) StateDesc(bflow *bootstd.Bootflow) (string, error) {
	return "slot " + bflow.Slot + " from " + bflow.FName, nil
}

// Boot selects the slot again, this time spending a try, then loads and
// hands off its kernel and ramdisk
func (a *Android) Boot(ctx context.Context, bflow *bootstd.Bootflow) error {
	dev := bflow.BlkDev
	if dev == nil {
		return fmt.Errorf("android needs a block device: %w", types.ErrNotSupported)
	}
	misc, err := android.FindMisc(dev)
	if err != nil {
		return err
	}
	slot, err := a.selector.SelectSlot(dev, misc, true)
	if err != nil {
		return err
	}
	letter := string(types.SlotName(slot))
	if letter != bflow.Slot {
		a.logger.Warn().Str("scanned", bflow.Slot).Str("selected", letter).Msg("slot changed since scan")
		bflow.Slot = letter
	}

	part, err := bootPartition(dev, slot)
	if err != nil {
		return err
	}
	hdr, r, err := readHeader(dev, part)
	if err != nil {
		return err
	}
	image, err := r.ReadBytes(0, hdr.ImageSize())
	if err != nil {
		return fmt.Errorf("%s image: %w", part.Name, types.ErrNoData)
	}

	out := &handoff.Image{
		Kind:     handoff.KindAndroid,
		Bootflow: bflow.Name,
		Cmdline:  joinArgs(hdr.Cmdline(), "androidboot.slot_suffix=_"+letter),
	}
	if out.Kernel, err = hdr.Kernel(image); err != nil {
		return err
	}
	if out.Initrd, err = hdr.Ramdisk(image); err != nil {
		return err
	}
	return a.exec.Execute(ctx, out)
}

func joinArgs(a, b string) string {
	if a == "" {
		return b
	}
	return a + " " + b
}
