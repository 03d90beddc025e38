package bootdevs

import (
	"context"

	"github.com/spf13/afero"

	"github.com/deploymenttheory/go-bootstd/internal/bootstd"
	"github.com/deploymenttheory/go-bootstd/internal/fs"
	"github.com/deploymenttheory/go-bootstd/internal/types"
)

// HostUClass labels host directory bootdevs in boot_targets
const HostUClass = "host"

// Host is a bootdev over a directory of the machine running the scan
type Host struct {
	name  string
	src   fs.HostSource
	fsctx *fs.Context
}

// NewHost creates a host bootdev rooted at root in afs
func NewHost(name string, afs afero.Fs, root string, fsctx *fs.Context) *Host {
	return &Host{
		name:  name,
		src:   fs.HostSource{Fs: afs, Root: root},
		fsctx: fsctx,
	}
}

func (h *Host) Name() string   { return h.name }
func (h *Host) UClass() string { return HostUClass }

// Source returns the host directory; host bootdevs have no partitions
func (h *Host) Source(int) fs.Source { return h.src }

// Priority puts host directories alongside fast internal media
func (h *Host) Priority() types.BootdevPriority { return types.PrioInternalFast }

// GetBootflow implements bootstd.Bootdev
func (h *Host) GetBootflow(ctx context.Context, _ *bootstd.Iter, bflow *bootstd.Bootflow) error {
	return fileBootflow(ctx, h.fsctx, h.src, bflow)
}
