// Package android implements A/B slot selection on the bootloader control
// block kept in the misc partition.
package android

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/deploymenttheory/go-bootstd/internal/disk"
	"github.com/deploymenttheory/go-bootstd/internal/interfaces"
	"github.com/deploymenttheory/go-bootstd/internal/metrics"
	"github.com/deploymenttheory/go-bootstd/internal/parsers/bootctrl"
	"github.com/deploymenttheory/go-bootstd/internal/types"
)

// Slot values written by SetActive
const (
	activePriority = types.MaxSlotPriority
	activeTries    = 6
)

// Selector reads and updates control blocks
type Selector struct {
	logger zerolog.Logger
}

// NewSelector creates a Selector
func NewSelector(logger zerolog.Logger) *Selector {
	return &Selector{logger: logger.With().Str("component", "ab").Logger()}
}

// FindMisc locates the misc partition of dev
func FindMisc(dev interfaces.BlockDevice) (disk.Partition, error) {
	table, err := disk.ReadTable(dev)
	if err != nil {
		return disk.Partition{}, err
	}
	return table.Find(types.MiscPartition)
}

// control is a loaded control block together with the raw blocks that hold
// it, so a write-back preserves the surrounding bytes
type control struct {
	dev    interfaces.BlockDevice
	lba    uint64
	blocks []byte
	ctrl   *types.BootloaderControl
	dirty  bool
}

func (s *Selector) read(dev interfaces.BlockDevice, part disk.Partition) (*control, bool, error) {
	bs := int(dev.BlockSize())
	if bs == 0 || types.BootCtrlOffset%bs != 0 {
		return nil, false, fmt.Errorf("control block offset %d not aligned to %d-byte blocks: %w",
			types.BootCtrlOffset, bs, types.ErrInvalid)
	}
	first := uint64(types.BootCtrlOffset / bs)
	count := uint32((types.BootCtrlSize + bs - 1) / bs)
	if first+uint64(count) > part.Size {
		return nil, false, fmt.Errorf("partition %q too small for control block: %w", part.Name, types.ErrInvalid)
	}

	c := &control{
		dev:    dev,
		lba:    part.Start + first,
		blocks: make([]byte, int(count)*bs),
	}
	n, err := dev.ReadBlocks(c.lba, count, c.blocks)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read control block: %w", err)
	}
	if n != count {
		return nil, false, fmt.Errorf("short read of control block (%d of %d blocks): %w", n, count, types.ErrInvalid)
	}

	raw := c.blocks[:types.BootCtrlSize]
	crcOK := bootctrl.VerifyCRC(raw)
	c.ctrl, err = bootctrl.Decode(raw)
	if err != nil {
		return nil, false, err
	}
	return c, crcOK, nil
}

// load performs the read, CRC recovery, validation and nb_slot clamp
// steps shared by every operation
func (s *Selector) load(dev interfaces.BlockDevice, part disk.Partition) (*control, error) {
	c, crcOK, err := s.read(dev, part)
	if err != nil {
		return nil, err
	}
	if !crcOK {
		s.logger.Warn().Str("device", dev.Name()).
			Uint32("stored", c.ctrl.CRC32LE).
			Msg("control block CRC mismatch, resetting to default")
		c.ctrl = bootctrl.Default()
		c.dirty = true
		metrics.IncABReset()
	}

	if err := bootctrl.Validate(c.ctrl); err != nil {
		s.logger.Error().Str("device", dev.Name()).Err(err).Msg("unusable control block")
		return nil, err
	}

	if c.ctrl.NbSlot > types.BootCtrlMaxSlots {
		s.logger.Warn().Uint8("nb_slot", c.ctrl.NbSlot).Msg("clamping slot count")
		c.ctrl.NbSlot = types.BootCtrlMaxSlots
		c.dirty = true
	}
	return c, nil
}

func (s *Selector) store(c *control) error {
	if !c.dirty {
		return nil
	}
	copy(c.blocks, bootctrl.Seal(c.ctrl))
	count := uint32(len(c.blocks) / int(c.dev.BlockSize()))
	n, err := c.dev.WriteBlocks(c.lba, count, c.blocks)
	if err != nil {
		return fmt.Errorf("failed to write control block: %w", err)
	}
	if n != count {
		return fmt.Errorf("short write of control block (%d of %d blocks): %w", n, count, types.ErrInvalid)
	}
	c.dirty = false
	return nil
}

// compareSlots is a three-way comparison: positive when a should be booted
// in preference to b
func compareSlots(a, b types.SlotMetadata) int {
	if a.Priority != b.Priority {
		return int(a.Priority) - int(b.Priority)
	}
	if a.SuccessfulBoot != b.SuccessfulBoot {
		if a.SuccessfulBoot {
			return 1
		}
		return -1
	}
	return int(a.TriesRemaining) - int(b.TriesRemaining)
}

// SelectSlot picks the slot to boot from the control block in part of dev
// and returns its index. With decTries set, a slot that has not yet booted
// successfully spends one try. Any change, including a reset of a corrupted
// block, is written back before returning.
func (s *Selector) SelectSlot(dev interfaces.BlockDevice, part disk.Partition, decTries bool) (int, error) {
	c, err := s.load(dev, part)
	if err != nil {
		return 0, err
	}
	abc := c.ctrl

	best := -1
	for i := 0; i < int(abc.NbSlot); i++ {
		slot := abc.SlotInfo[i]
		if !slot.Bootable() {
			continue
		}
		if best < 0 || compareSlots(slot, abc.SlotInfo[best]) > 0 {
			best = i
		}
	}

	if best >= 0 {
		slot := &abc.SlotInfo[best]
		if decTries && !slot.SuccessfulBoot {
			slot.TriesRemaining--
			c.dirty = true
		}
		suffix := [4]byte{types.SlotName(best)}
		if abc.SlotSuffix != suffix {
			abc.SlotSuffix = suffix
			c.dirty = true
		}
	}

	if err := s.store(c); err != nil {
		return 0, err
	}
	if best < 0 {
		s.logger.Error().Str("device", dev.Name()).Msg("no bootable slot")
		return 0, fmt.Errorf("no bootable slot on %s: %w", dev.Name(), types.ErrInvalid)
	}

	s.logger.Debug().Str("slot", string(types.SlotName(best))).
		Uint8("tries", abc.SlotInfo[best].TriesRemaining).Msg("slot selected")
	metrics.IncABSelection(string(types.SlotName(best)))
	return best, nil
}

// SetActive makes slot the preferred slot: it gets the top priority and a
// fresh set of tries, and no other slot keeps an equal priority
func (s *Selector) SetActive(dev interfaces.BlockDevice, part disk.Partition, slot int) error {
	c, err := s.load(dev, part)
	if err != nil {
		return err
	}
	if slot < 0 || slot >= int(c.ctrl.NbSlot) {
		return fmt.Errorf("slot %d out of range (%d slots): %w", slot, c.ctrl.NbSlot, types.ErrInvalid)
	}
	for i := 0; i < int(c.ctrl.NbSlot); i++ {
		if i != slot && c.ctrl.SlotInfo[i].Priority >= activePriority {
			c.ctrl.SlotInfo[i].Priority = activePriority - 1
		}
	}
	c.ctrl.SlotInfo[slot].Priority = activePriority
	c.ctrl.SlotInfo[slot].TriesRemaining = activeTries
	c.ctrl.SlotInfo[slot].VerityCorrupted = false
	c.dirty = true
	return s.store(c)
}

// MarkSuccessful records that slot booted. Its tries are kept non-zero so
// it stays selectable.
func (s *Selector) MarkSuccessful(dev interfaces.BlockDevice, part disk.Partition, slot int) error {
	c, err := s.load(dev, part)
	if err != nil {
		return err
	}
	if slot < 0 || slot >= int(c.ctrl.NbSlot) {
		return fmt.Errorf("slot %d out of range (%d slots): %w", slot, c.ctrl.NbSlot, types.ErrInvalid)
	}
	info := &c.ctrl.SlotInfo[slot]
	info.SuccessfulBoot = true
	if info.TriesRemaining == 0 {
		info.TriesRemaining = 1
	}
	c.dirty = true
	return s.store(c)
}

// Dump decodes the control block without repairing or writing it. The
// boolean reports whether the stored CRC is valid.
func (s *Selector) Dump(dev interfaces.BlockDevice, part disk.Partition) (*types.BootloaderControl, bool, error) {
	c, crcOK, err := s.read(dev, part)
	if err != nil {
		return nil, false, err
	}
	return c.ctrl, crcOK, nil
}
