package bootmeths

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/deploymenttheory/go-bootstd/internal/bootstd"
	"github.com/deploymenttheory/go-bootstd/internal/env"
	"github.com/deploymenttheory/go-bootstd/internal/fs"
	"github.com/deploymenttheory/go-bootstd/internal/handoff"
	"github.com/deploymenttheory/go-bootstd/internal/types"
)

// VarBootOrder lists the load options to try, as hex numbers, e.g.
// "0001,0000"
const VarBootOrder = "BootOrder"

// LoadOptionVar returns the variable holding load option num, e.g. "Boot0001"
func LoadOptionVar(num uint16) string {
	return fmt.Sprintf("Boot%04X", num)
}

// LoadOption is one boot manager entry: an EFI application on a bootdev
type LoadOption struct {
	Num     uint16
	Bootdev string
	Part    int
	Path    string
}

// ParseLoadOption parses "<bootdev>[:<part>] <path>", e.g.
// "mmc0:1 /EFI/debian/grubx64.efi". The partition is hex, as in bootflow
// names.
func ParseLoadOption(num uint16, value string) (LoadOption, error) {
	fields := strings.Fields(value)
	if len(fields) != 2 {
		return LoadOption{}, fmt.Errorf("%s %q: want <bootdev>[:<part>] <path>: %w", LoadOptionVar(num), value, types.ErrInvalid)
	}
	opt := LoadOption{Num: num, Bootdev: fields[0], Path: path.Clean("/" + fields[1])}
	if dev, part, ok := strings.Cut(fields[0], ":"); ok {
		n, err := strconv.ParseUint(part, 16, 8)
		if err != nil || dev == "" {
			return LoadOption{}, fmt.Errorf("%s %q: bad partition: %w", LoadOptionVar(num), value, types.ErrInvalid)
		}
		opt.Bootdev, opt.Part = dev, int(n)
	}
	return opt, nil
}

// fsBootdev is a bootdev whose partitions can be mounted directly
type fsBootdev interface {
	Source(part int) fs.Source
}

// EFIManager is the global EFI boot manager. It walks BootOrder and loads
// the first load option whose application exists and matches the
// configured architecture. Without BootOrder it has nothing to offer.
type EFIManager struct {
	std       *bootstd.Std
	vars      *env.Env
	exec      handoff.Executor
	arch      string
	sizeLimit int64
	logger    zerolog.Logger
}

// NewEFIManager creates the boot manager for arch, reading its variables
// from vars
func NewEFIManager(std *bootstd.Std, vars *env.Env, exec handoff.Executor, arch string, sizeLimit int64, logger zerolog.Logger) (*EFIManager, error) {
	arch = strings.ToUpper(arch)
	if _, ok := efiMachines[arch]; !ok {
		return nil, fmt.Errorf("EFI architecture %q: %w", arch, types.ErrInvalid)
	}
	if sizeLimit <= 0 {
		sizeLimit = DefaultFileSizeLimit
	}
	return &EFIManager{
		std:       std,
		vars:      vars,
		exec:      exec,
		arch:      arch,
		sizeLimit: sizeLimit,
		logger:    logger.With().Str("component", "efi_mgr").Logger(),
	}, nil
}

func (m *EFIManager) Name() string               { return "efi_mgr" }
func (m *EFIManager) Flags() bootstd.MethodFlags { return bootstd.MethodGlobal }

// BootOrder returns the load option numbers in BootOrder
func (m *EFIManager) BootOrder() ([]uint16, error) {
	value := m.get(VarBootOrder)
	fields := strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ' ' })
	if len(fields) == 0 {
		return nil, fmt.Errorf("%s not set: %w", VarBootOrder, types.ErrInvalid)
	}
	order := make([]uint16, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.ParseUint(f, 16, 16)
		if err != nil {
			return nil, fmt.Errorf("%s entry %q: %w", VarBootOrder, f, types.ErrInvalid)
		}
		order = append(order, uint16(n))
	}
	return order, nil
}

// ReadBootflow implements bootstd.Bootmeth. Options that cannot be loaded
// are skipped; the error of the last one is returned when none loads.
func (m *EFIManager) ReadBootflow(ctx context.Context, bflow *bootstd.Bootflow) error {
	order, err := m.BootOrder()
	if err != nil {
		return err
	}

	err = fmt.Errorf("no usable load option: %w", types.ErrNotFound)
	for _, num := range order {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		value := m.get(LoadOptionVar(num))
		if value == "" {
			err = fmt.Errorf("%s not set: %w", LoadOptionVar(num), types.ErrNotFound)
			m.logger.Debug().Str("option", LoadOptionVar(num)).Msg("load option missing")
			continue
		}
		opt, perr := ParseLoadOption(num, value)
		if perr == nil {
			perr = m.load(bflow, opt)
		}
		if perr == nil {
			return nil
		}
		m.logger.Debug().Str("option", LoadOptionVar(num)).Err(perr).Msg("load option skipped")
		err = perr
	}
	return err
}

// get reads a boot manager variable. Variables imported from the board
// config arrive with lowercased names.
func (m *EFIManager) get(name string) string {
	if v := m.vars.Get(name); v != "" {
		return v
	}
	return m.vars.Get(strings.ToLower(name))
}

func (m *EFIManager) load(bflow *bootstd.Bootflow, opt LoadOption) error {
	dev, err := m.std.Bootdev(opt.Bootdev)
	if err != nil {
		return err
	}
	src, ok := dev.(fsBootdev)
	if !ok {
		return fmt.Errorf("%s has no filesystem: %w", opt.Bootdev, types.ErrNotSupported)
	}

	*bflow = bootstd.Bootflow{
		Dev:    dev,
		Method: m,
		Part:   opt.Part,
		Name:   LoadOptionVar(opt.Num),
		State:  bootstd.StateMedia,
		Source: src.Source(opt.Part),
	}
	fsctx := m.std.FS()
	if err := bootstd.SetupFS(fsctx, bflow); err != nil {
		return err
	}
	bflow.State = bootstd.StateFS

	dir, name := path.Split(opt.Path)
	if err := bootstd.TryFile(fsctx, bflow, dir, name); err != nil {
		return err
	}
	if err := bootstd.AllocFile(fsctx, bflow, m.sizeLimit); err != nil {
		return err
	}
	if err := checkMachine(bflow, m.arch); err != nil {
		return err
	}
	bflow.OSName = "EFI " + m.arch
	return nil
}

// ReadFile implements bootstd.FileReader
func (m *EFIManager) ReadFile(_ context.Context, bflow *bootstd.Bootflow, fname string, limit int64) ([]byte, error) {
	return bootstd.ReadFileCommon(m.std.FS(), bflow, fname, limit)
}

// Boot hands the selected application off
func (m *EFIManager) Boot(ctx context.Context, bflow *bootstd.Bootflow) error {
	return m.exec.Execute(ctx, &handoff.Image{
		Kind:     handoff.KindEFI,
		Bootflow: bflow.Name,
		Kernel:   bflow.Content(),
	})
}
