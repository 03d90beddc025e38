package bootmeths

import (
	"bytes"
	"context"
	"debug/pe"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/deploymenttheory/go-bootstd/internal/bootstd"
	"github.com/deploymenttheory/go-bootstd/internal/fs"
	"github.com/deploymenttheory/go-bootstd/internal/handoff"
	"github.com/deploymenttheory/go-bootstd/internal/types"
)

// efiMachines maps an EFI architecture suffix to its PE machine type
var efiMachines = map[string]uint16{
	"X64":     pe.IMAGE_FILE_MACHINE_AMD64,
	"IA32":    pe.IMAGE_FILE_MACHINE_I386,
	"AA64":    pe.IMAGE_FILE_MACHINE_ARM64,
	"ARM":     pe.IMAGE_FILE_MACHINE_ARMNT,
	"RISCV64": pe.IMAGE_FILE_MACHINE_RISCV64,
}

// EFIFile returns the removable-media path of the EFI application for
// arch, e.g. "EFI/BOOT/BOOTX64.EFI"
func EFIFile(arch string) string {
	return "EFI/BOOT/BOOT" + strings.ToUpper(arch) + ".EFI"
}

// EFI boots the default EFI application of a partition
type EFI struct {
	fsctx     *fs.Context
	exec      handoff.Executor
	arch      string
	sizeLimit int64
	logger    zerolog.Logger
}

// NewEFI creates the EFI bootmeth for arch ("x64", "aa64", ...)
func NewEFI(fsctx *fs.Context, exec handoff.Executor, arch string, sizeLimit int64, logger zerolog.Logger) (*EFI, error) {
	arch = strings.ToUpper(arch)
	if _, ok := efiMachines[arch]; !ok {
		return nil, fmt.Errorf("EFI architecture %q: %w", arch, types.ErrInvalid)
	}
	if sizeLimit <= 0 {
		sizeLimit = DefaultFileSizeLimit
	}
	return &EFI{
		fsctx:     fsctx,
		exec:      exec,
		arch:      arch,
		sizeLimit: sizeLimit,
		logger:    logger.With().Str("component", "efi").Logger(),
	}, nil
}

func (e *EFI) Name() string               { return "efi" }
func (e *EFI) Flags() bootstd.MethodFlags { return 0 }

// ReadBootflow implements bootstd.Bootmeth. The application must be a PE
// image for the configured architecture.
func (e *EFI) ReadBootflow(_ context.Context, bflow *bootstd.Bootflow) error {
	if err := bootstd.TryFile(e.fsctx, bflow, "/", EFIFile(e.arch)); err != nil {
		return err
	}
	if err := bootstd.AllocFile(e.fsctx, bflow, e.sizeLimit); err != nil {
		return err
	}

	if err := checkMachine(bflow, e.arch); err != nil {
		return err
	}
	bflow.OSName = "EFI " + e.arch
	return nil
}

// checkMachine fails with ErrNoData unless bflow holds a PE image built
// for arch
func checkMachine(bflow *bootstd.Bootflow, arch string) error {
	f, err := pe.NewFile(bytes.NewReader(bflow.Content()))
	if err != nil {
		return fmt.Errorf("%s is not a PE image: %w", bflow.FName, types.ErrNoData)
	}
	defer f.Close()
	if want := efiMachines[arch]; f.Machine != want {
		return fmt.Errorf("%s is for machine %#x, want %#x: %w", bflow.FName, f.Machine, want, types.ErrNoData)
	}
	return nil
}

// ReadFile implements bootstd.FileReader
func (e *EFI) ReadFile(_ context.Context, bflow *bootstd.Bootflow, path string, limit int64) ([]byte, error) {
	return bootstd.ReadFileCommon(e.fsctx, bflow, path, limit)
}

// Boot hands the application off
func (e *EFI) Boot(ctx context.Context, bflow *bootstd.Bootflow) error {
	return e.exec.Execute(ctx, &handoff.Image{
		Kind:     handoff.KindEFI,
		Bootflow: bflow.Name,
		Kernel:   bflow.Content(),
	})
}
