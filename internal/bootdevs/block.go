// Package bootdevs provides the bootdevs the boot scan walks: block devices
// found by the storage enumerator, a TFTP server and host directories.
package bootdevs

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/deploymenttheory/go-bootstd/internal/bootstd"
	"github.com/deploymenttheory/go-bootstd/internal/disk"
	"github.com/deploymenttheory/go-bootstd/internal/fs"
	"github.com/deploymenttheory/go-bootstd/internal/interfaces"
	"github.com/deploymenttheory/go-bootstd/internal/types"
)

// Block is the bootdev of one block device
type Block struct {
	name   string
	class  types.StorageClass
	dev    interfaces.BlockDevice
	fsctx  *fs.Context
	logger zerolog.Logger
}

// NewBlock creates the bootdev for dev, found in slot of class
func NewBlock(class types.StorageClass, slot int, dev interfaces.BlockDevice, fsctx *fs.Context, logger zerolog.Logger) *Block {
	name := types.Cookie{Class: class, Slot: slot}.String()
	return &Block{
		name:   name,
		class:  class,
		dev:    dev,
		fsctx:  fsctx,
		logger: logger.With().Str("component", "blk-bootdev").Str("bootdev", name).Logger(),
	}
}

func (b *Block) Name() string                    { return b.name }
func (b *Block) UClass() string                  { return b.class.String() }
func (b *Block) Priority() types.BootdevPriority { return types.ClassPriority(b.class) }

// Device returns the underlying block device
func (b *Block) Device() interfaces.BlockDevice { return b.dev }

// Source returns the filesystem source of partition part
func (b *Block) Source(part int) fs.Source { return fs.BlockSource{Dev: b.dev, Part: part} }

// Partitions returns the GPT partitions marked legacy-bootable, or every
// partition when none is marked. A device without a partition table is
// scanned whole, as partition 0.
func (b *Block) Partitions() ([]int, error) {
	table, err := disk.ReadTable(b.dev)
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			b.logger.Warn().Err(err).Msg("unusable partition table, scanning whole device")
		}
		return []int{0}, nil
	}

	var bootable, all []int
	for _, p := range table.Partitions {
		all = append(all, p.Number)
		if p.Bootable() {
			bootable = append(bootable, p.Number)
		}
	}
	switch {
	case len(bootable) > 0:
		return bootable, nil
	case len(all) > 0:
		return all, nil
	}
	return []int{0}, nil
}

// GetBootflow implements bootstd.Bootdev. Unless the bootmeth reads raw
// partitions, the filesystem on the partition is mounted before the
// bootmeth sees the bootflow.
func (b *Block) GetBootflow(ctx context.Context, it *bootstd.Iter, bflow *bootstd.Bootflow) error {
	if b.dev.Type() == types.DevTypeUnknown {
		return fmt.Errorf("%s: no media: %w", b.name, types.ErrNotFound)
	}
	bflow.BlkDev = b.dev
	bflow.State = bootstd.StateMedia

	part := it.Part()
	if part != 0 {
		bflow.State = bootstd.StatePart
	}
	bflow.Source = fs.BlockSource{Dev: b.dev, Part: part}

	if bflow.Method.Flags()&bootstd.MethodAnyPart == 0 {
		if err := bootstd.SetupFS(b.fsctx, bflow); err != nil {
			return err
		}
		bflow.State = bootstd.StateFS
	}
	return bootstd.ReadBootflow(ctx, bflow.Method, bflow)
}
