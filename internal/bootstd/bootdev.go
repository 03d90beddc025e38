package bootstd

import (
	"context"

	"github.com/deploymenttheory/go-bootstd/internal/types"
)

// Bootdev is a medium that can hold bootflows: a block device, a network
// server, a host directory
type Bootdev interface {
	// Name identifies the bootdev, e.g. "mmc1"
	Name() string
	// UClass is the kind of bootdev, e.g. "mmc", used by labels
	UClass() string
	Priority() types.BootdevPriority
	// GetBootflow prepares bflow for the iterator's current partition and
	// asks bflow.Method to read it. ErrNoMoreParts stops the scan of this
	// bootdev.
	GetBootflow(ctx context.Context, it *Iter, bflow *Bootflow) error
}

// Partitioner is implemented by bootdevs with more than one place to look.
// Bootdevs without it are scanned once, as partition 0.
type Partitioner interface {
	Partitions() ([]int, error)
}

// Hunter binds bootdevs for media that are not known until a bus is
// scanned
type Hunter interface {
	// UClass names the bootdevs the hunter can bind
	UClass() string
	Priority() types.BootdevPriority
	Hunt(ctx context.Context, std *Std) error
}

func partitionsOf(dev Bootdev) ([]int, error) {
	if p, ok := dev.(Partitioner); ok {
		return p.Partitions()
	}
	return []int{0}, nil
}
