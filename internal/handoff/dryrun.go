package handoff

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// DryRun logs and records images instead of running them
type DryRun struct {
	logger zerolog.Logger

	mu     sync.Mutex
	images []*Image
}

// NewDryRun creates a dry-run executor
func NewDryRun(logger zerolog.Logger) *DryRun {
	return &DryRun{logger: logger.With().Str("component", "handoff").Logger()}
}

// Execute implements Executor
func (d *DryRun) Execute(_ context.Context, img *Image) error {
	if err := img.Validate(); err != nil {
		return err
	}
	d.logger.Info().
		Str("kind", img.Kind.String()).
		Str("bootflow", img.Bootflow).
		Int("kernel", len(img.Kernel)).
		Int("initrd", len(img.Initrd)).
		Int("fdt", len(img.FDT)).
		Str("cmdline", img.Cmdline).
		Msg("would boot")

	d.mu.Lock()
	defer d.mu.Unlock()
	d.images = append(d.images, img)
	return nil
}

// Images returns the images executed so far
func (d *DryRun) Images() []*Image {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Image(nil), d.images...)
}
