package bootmeths

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/deploymenttheory/go-bootstd/internal/bootstd"
	"github.com/deploymenttheory/go-bootstd/internal/fs"
	"github.com/deploymenttheory/go-bootstd/internal/handoff"
	"github.com/deploymenttheory/go-bootstd/internal/parsers/extlinux"
	"github.com/deploymenttheory/go-bootstd/internal/types"
)

// ExtlinuxFile is the menu file looked for under each boot prefix
const ExtlinuxFile = "extlinux/extlinux.conf"

// Extlinux boots the default label of an extlinux.conf
type Extlinux struct {
	fsctx     *fs.Context
	exec      handoff.Executor
	sizeLimit int64
	logger    zerolog.Logger
}

// NewExtlinux creates the extlinux bootmeth. Files larger than sizeLimit
// are refused.
func NewExtlinux(fsctx *fs.Context, exec handoff.Executor, sizeLimit int64, logger zerolog.Logger) *Extlinux {
	if sizeLimit <= 0 {
		sizeLimit = DefaultFileSizeLimit
	}
	return &Extlinux{
		fsctx:     fsctx,
		exec:      exec,
		sizeLimit: sizeLimit,
		logger:    logger.With().Str("component", "extlinux").Logger(),
	}
}

func (e *Extlinux) Name() string               { return "extlinux" }
func (e *Extlinux) Flags() bootstd.MethodFlags { return 0 }

// ReadBootflow implements bootstd.Bootmeth
func (e *Extlinux) ReadBootflow(_ context.Context, bflow *bootstd.Bootflow) error {
	if err := findFile(e.fsctx, bflow, bootPrefixes, []string{ExtlinuxFile}); err != nil {
		return err
	}
	if err := bootstd.AllocFile(e.fsctx, bflow, e.sizeLimit); err != nil {
		return err
	}

	conf, err := extlinux.Parse(bflow.Content())
	if err != nil {
		return fmt.Errorf("%s: %w", bflow.FName, err)
	}
	label, err := conf.DefaultLabel()
	if err != nil {
		return fmt.Errorf("%s: %w", bflow.FName, err)
	}
	bflow.OSName = conf.Config().Title
	if l, err := conf.Label(label); err == nil && l.Menu != "" {
		bflow.OSName = l.Menu
	}
	if bflow.OSName == "" {
		bflow.OSName = label
	}
	return nil
}

// ReadFile implements bootstd.FileReader
func (e *Extlinux) ReadFile(_ context.Context, bflow *bootstd.Bootflow, path string, limit int64) ([]byte, error) {
	return bootstd.ReadFileCommon(e.fsctx, bflow, path, limit)
}

// Boot loads the kernel, initrd and device tree of the default label and
// hands them off
func (e *Extlinux) Boot(ctx context.Context, bflow *bootstd.Bootflow) error {
	conf, err := extlinux.Parse(bflow.Content())
	if err != nil {
		return err
	}
	name, err := conf.DefaultLabel()
	if err != nil {
		return err
	}
	label, err := conf.Label(name)
	if err != nil {
		return err
	}
	if label.Localboot {
		return fmt.Errorf("label %q boots locally: %w", name, types.ErrNotSupported)
	}

	img := &handoff.Image{
		Kind:     handoff.KindLinux,
		Bootflow: bflow.Name,
		Cmdline:  label.Append,
	}
	if img.Kernel, err = loadOther(e.fsctx, bflow, label.Kernel); err != nil {
		return fmt.Errorf("kernel %s: %w", label.Kernel, err)
	}
	if label.Initrd != "" {
		if img.Initrd, err = loadOther(e.fsctx, bflow, label.Initrd); err != nil {
			return fmt.Errorf("initrd %s: %w", label.Initrd, err)
		}
	}
	if label.FDT != "" {
		dtb, err := loadOther(e.fsctx, bflow, label.FDT)
		if err != nil {
			return fmt.Errorf("fdt %s: %w", label.FDT, err)
		}
		if img.FDT, err = handoff.FixupBootargs(dtb, label.Append); err != nil {
			return err
		}
	} else if label.FDTDir != "" {
		e.logger.Debug().Str("fdtdir", label.FDTDir).Msg("no board name to pick a device tree, booting without one")
	}

	e.logger.Info().Str("bootflow", bflow.Name).Str("label", name).Msg("booting label")
	return e.exec.Execute(ctx, img)
}
