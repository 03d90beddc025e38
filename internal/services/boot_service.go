package services

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/deploymenttheory/go-bootstd/internal/android"
	"github.com/deploymenttheory/go-bootstd/internal/bootdevs"
	"github.com/deploymenttheory/go-bootstd/internal/bootmeths"
	"github.com/deploymenttheory/go-bootstd/internal/bootstd"
	"github.com/deploymenttheory/go-bootstd/internal/device"
	"github.com/deploymenttheory/go-bootstd/internal/disk"
	"github.com/deploymenttheory/go-bootstd/internal/env"
	"github.com/deploymenttheory/go-bootstd/internal/fs"
	"github.com/deploymenttheory/go-bootstd/internal/handoff"
	"github.com/deploymenttheory/go-bootstd/internal/interfaces"
	"github.com/deploymenttheory/go-bootstd/internal/metrics"
	"github.com/deploymenttheory/go-bootstd/internal/storage"
	"github.com/deploymenttheory/go-bootstd/internal/types"
)

// Option customises a BootService
type Option func(*BootService)

// WithDriver uses drv instead of opening the images named in the config
func WithDriver(drv *device.Driver) Option {
	return func(s *BootService) { s.driver = drv }
}

// WithHostFs backs host bootdevs with afs instead of the OS filesystem
func WithHostFs(afs afero.Fs) Option {
	return func(s *BootService) { s.hostFs = afs }
}

// WithExecutor hands bootflows to exec instead of the configured executor
func WithExecutor(exec handoff.Executor) Option {
	return func(s *BootService) { s.exec = exec }
}

// BootService wires a board configuration into a ready bootstd: storage
// driver, enumerator, bootdevs, hunters, bootmeths and environment. Calls
// are serialised.
type BootService struct {
	mu sync.Mutex

	config   *device.BoardConfig
	driver   *device.Driver
	closers  []io.Closer
	enum     *storage.Enumerator
	std      *bootstd.Std
	env      *env.Env
	exec     handoff.Executor
	hostFs   afero.Fs
	selector *android.Selector
	logger   zerolog.Logger
}

// NewBootService builds the service for config. Devices that need no bus
// probe are bound straight away; the rest wait for their hunter.
func NewBootService(ctx context.Context, config *device.BoardConfig, logger zerolog.Logger, opts ...Option) (*BootService, error) {
	s := &BootService{
		config:   config,
		selector: android.NewSelector(logger),
		logger:   logger.With().Str("component", "service").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.driver == nil {
		drv, closers, err := config.BuildDriver(logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
		s.driver, s.closers = drv, closers
	}
	if s.hostFs == nil {
		s.hostFs = afero.NewOsFs()
	}
	if s.exec == nil {
		exec, err := handoff.NewExecutor(config.Executor, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.exec = exec
	}

	s.enum = storage.NewEnumerator(s.driver, logger)
	s.std = bootstd.NewStd(logger, fs.NewContext(logger))
	s.env = env.New(logger)

	if err := s.registerBootmeths(); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.bindBootdevs(ctx); err != nil {
		s.Close()
		return nil, err
	}

	s.std.AttachEnv(s.env)
	if err := s.env.Import(config.Env); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to import environment: %w", err)
	}
	return s, nil
}

func (s *BootService) registerBootmeths() error {
	fsctx := s.std.FS()
	efi, err := bootmeths.NewEFI(fsctx, s.exec, s.config.EFIArch, s.config.FileSizeLimit, s.logger)
	if err != nil {
		return err
	}
	efiMgr, err := bootmeths.NewEFIManager(s.std, s.env, s.exec, s.config.EFIArch, s.config.FileSizeLimit, s.logger)
	if err != nil {
		return err
	}
	for _, m := range []bootstd.Bootmeth{
		bootmeths.NewExtlinux(fsctx, s.exec, s.config.FileSizeLimit, s.logger),
		bootmeths.NewScript(fsctx, s.config.ScriptSizeLimit, s.logger),
		efi,
		bootmeths.NewAndroid(s.selector, s.exec, s.logger),
		efiMgr,
	} {
		if err := s.std.AddBootmeth(m); err != nil {
			return err
		}
	}
	return nil
}

func (s *BootService) bindBootdevs(ctx context.Context) error {
	n, err := bootdevs.BindStorage(ctx, s.std, s.enum)
	if err != nil {
		return err
	}
	s.logger.Debug().Int("bound", n).Msg("storage bootdevs bound")

	for c := types.ClassIDE; c < types.NumStorageClasses; c++ {
		if s.driver.MaxDevices(c) > 0 {
			s.std.AddHunter(bootdevs.NewBlockHunter(c, s.driver, s.enum, s.logger))
		}
	}
	if s.config.Net.Enabled {
		s.std.AddHunter(bootdevs.NewNetHunter(s.config.Net.Server, s.config.Net.Timeout, s.config.Net.Retries, s.logger))
	}

	for i, h := range s.config.Host {
		name := h.Name
		if name == "" {
			name = fmt.Sprintf("%s%d", bootdevs.HostUClass, i)
		}
		if err := s.std.BindBootdev(bootdevs.NewHost(name, s.hostFs, h.Root, s.std.FS())); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the storage images and writes the metrics file when one
// is configured
func (s *BootService) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	if s.config != nil && s.config.MetricsFile != "" {
		if err := metrics.WriteTextfile(s.config.MetricsFile); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Std exposes the underlying registry
func (s *BootService) Std() *bootstd.Std {
	return s.std
}

// Env exposes the boot environment
func (s *BootService) Env() *env.Env {
	return s.env
}

// Storage sweeps every storage class from the start
func (s *BootService) Storage(ctx context.Context) ([]StorageDevice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []StorageDevice
	var info types.DeviceInfo
	s.enum.Reset()
	for s.enum.Next(&info) {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		d := StorageDevice{
			Label:      info.Cookie.String(),
			Class:      info.Cookie.Class.String(),
			Slot:       info.Cookie.Slot,
			Type:       info.Type,
			BlockCount: info.BlockCount,
			BlockSize:  info.BlockSize,
		}
		if _, err := s.std.Bootdev(d.Label); err == nil {
			d.Bootdev = d.Label
		}
		out = append(out, d)
	}
	return out, nil
}

// Bootdevs lists the bound bootdevs in scan order
func (s *BootService) Bootdevs() []BootdevInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	devs := s.std.Bootdevs()
	out := make([]BootdevInfo, len(devs))
	for i, d := range devs {
		out[i] = BootdevInfo{
			Seq:      i,
			Name:     d.Name(),
			UClass:   d.UClass(),
			Priority: d.Priority().String(),
		}
	}
	return out
}

// Hunters lists the registered hunters
func (s *BootService) Hunters() []HunterInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	hunters, done := s.std.Hunters()
	out := make([]HunterInfo, len(hunters))
	for i, h := range hunters {
		out[i] = HunterInfo{UClass: h.UClass(), Priority: h.Priority().String(), Hunted: done[i]}
	}
	return out
}

// Hunt runs the hunters for uclass, or all of them when uclass is empty
func (s *BootService) Hunt(ctx context.Context, uclass string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.std.HuntUClass(ctx, uclass)
}

// Bootmeths lists the registered bootmeths with their place in the scan
// order
func (s *BootService) Bootmeths() []BootmethInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	order := s.std.BootmethOrder()
	if order == nil {
		// default order: non-global bootmeths first, then the globals
		for _, global := range []bool{false, true} {
			for _, m := range s.std.Bootmeths() {
				if (m.Flags()&bootstd.MethodGlobal != 0) == global {
					order = append(order, m)
				}
			}
		}
	}
	pos := make(map[string]int, len(order))
	for i, m := range order {
		pos[m.Name()] = i
	}

	all := s.std.Bootmeths()
	out := make([]BootmethInfo, len(all))
	for i, m := range all {
		o, ok := pos[m.Name()]
		if !ok {
			o = -1
		}
		out[i] = BootmethInfo{Order: o, Name: m.Name(), Global: m.Flags()&bootstd.MethodGlobal != 0}
	}
	return out
}

// SetEnv sets an environment variable; bootmeths and boot_targets take
// effect on the next scan
func (s *BootService) SetEnv(name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.env.Set(name, value)
}

// Scan collects the bootflows of a scan
func (s *BootService) Scan(ctx context.Context, opts bootstd.Options) ([]*bootstd.Bootflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	flows, err := s.std.Scan(ctx, opts)
	s.logger.Debug().Int("bootflows", len(flows)).Msg("scan complete")
	return flows, err
}

// Boot boots the first bootflow that boots
func (s *BootService) Boot(ctx context.Context, opts bootstd.Options) (*bootstd.Bootflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.std.Run(ctx, opts)
}

// misc locates the block device behind bootdev and its misc partition
func (s *BootService) misc(bootdev string) (interfaces.BlockDevice, disk.Partition, error) {
	dev, err := s.std.Bootdev(bootdev)
	if err != nil {
		return nil, disk.Partition{}, err
	}
	blk, ok := dev.(*bootdevs.Block)
	if !ok {
		return nil, disk.Partition{}, fmt.Errorf("%s is not a block device: %w", bootdev, types.ErrNotSupported)
	}
	part, err := android.FindMisc(blk.Device())
	if err != nil {
		return nil, disk.Partition{}, fmt.Errorf("%s: %w", bootdev, err)
	}
	return blk.Device(), part, nil
}

// SelectSlot runs slot selection on bootdev and returns the slot letter
func (s *BootService) SelectSlot(bootdev string, decTries bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dev, part, err := s.misc(bootdev)
	if err != nil {
		return "", err
	}
	slot, err := s.selector.SelectSlot(dev, part, decTries)
	if err != nil {
		return "", err
	}
	return string(types.SlotName(slot)), nil
}

// SetActive makes slot ("a", "_b", ...) the preferred slot of bootdev
func (s *BootService) SetActive(bootdev, slot string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := types.SlotIndex(slot)
	if err != nil {
		return fmt.Errorf("slot %q: %w", slot, err)
	}
	dev, part, err := s.misc(bootdev)
	if err != nil {
		return err
	}
	return s.selector.SetActive(dev, part, idx)
}

// MarkSuccessful records a successful boot of slot on bootdev
func (s *BootService) MarkSuccessful(bootdev, slot string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := types.SlotIndex(slot)
	if err != nil {
		return fmt.Errorf("slot %q: %w", slot, err)
	}
	dev, part, err := s.misc(bootdev)
	if err != nil {
		return err
	}
	return s.selector.MarkSuccessful(dev, part, idx)
}

// DumpSlots decodes the control block of bootdev without changing it
func (s *BootService) DumpSlots(bootdev string) (*SlotReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dev, part, err := s.misc(bootdev)
	if err != nil {
		return nil, err
	}
	ctrl, crcOK, err := s.selector.Dump(dev, part)
	if err != nil {
		return nil, err
	}
	return &SlotReport{Bootdev: bootdev, CRCOK: crcOK, Control: ctrl}, nil
}
