package bootstd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/deploymenttheory/go-bootstd/internal/env"
	"github.com/deploymenttheory/go-bootstd/internal/fs"
	"github.com/deploymenttheory/go-bootstd/internal/metrics"
	"github.com/deploymenttheory/go-bootstd/internal/types"
)

type boundDev struct {
	dev Bootdev
	seq int
}

// Std is the registry of bootmeths, bootdevs and hunters plus the boot
// ordering taken from the environment
type Std struct {
	logger zerolog.Logger
	fsctx  *fs.Context

	bootmeths map[int]Bootmeth
	nextSeq   int
	bootdevs  []boundDev
	hunters   []Hunter
	hunted    map[Hunter]bool

	methodOrder  []Bootmeth
	bootdevOrder []string
}

// NewStd creates an empty registry
func NewStd(logger zerolog.Logger, fsctx *fs.Context) *Std {
	return &Std{
		logger:    logger.With().Str("component", "bootstd").Logger(),
		fsctx:     fsctx,
		bootmeths: make(map[int]Bootmeth),
		hunted:    make(map[Hunter]bool),
	}
}

// FS returns the filesystem context shared by bootdevs and bootmeths
func (s *Std) FS() *fs.Context {
	return s.fsctx
}

// Logger returns the registry's logger for components it drives
func (s *Std) Logger() zerolog.Logger {
	return s.logger
}

// AddBootmeth registers m with the next free sequence number
func (s *Std) AddBootmeth(m Bootmeth) error {
	for s.bootmeths[s.nextSeq] != nil {
		s.nextSeq++
	}
	return s.AddBootmethSeq(m, s.nextSeq)
}

// AddBootmethSeq registers m at sequence number seq. Sequence numbers need
// not be contiguous.
func (s *Std) AddBootmethSeq(m Bootmeth, seq int) error {
	if seq < 0 {
		return fmt.Errorf("bootmeth %s: bad sequence %d: %w", m.Name(), seq, types.ErrInvalid)
	}
	if s.bootmeths[seq] != nil {
		return fmt.Errorf("bootmeth sequence %d already used by %s: %w", seq, s.bootmeths[seq].Name(), types.ErrInvalid)
	}
	if _, err := s.Bootmeth(m.Name()); err == nil {
		return fmt.Errorf("bootmeth %s already registered: %w", m.Name(), types.ErrInvalid)
	}
	s.bootmeths[seq] = m
	s.logger.Debug().Str("bootmeth", m.Name()).Int("seq", seq).Msg("bootmeth added")
	return nil
}

// Bootmeths returns the registered bootmeths in sequence order
func (s *Std) Bootmeths() []Bootmeth {
	seqs := make([]int, 0, len(s.bootmeths))
	for seq := range s.bootmeths {
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)
	out := make([]Bootmeth, 0, len(seqs))
	for _, seq := range seqs {
		out = append(out, s.bootmeths[seq])
	}
	return out
}

// Bootmeth finds a bootmeth by name
func (s *Std) Bootmeth(name string) (Bootmeth, error) {
	for _, m := range s.bootmeths {
		if m.Name() == name {
			return m, nil
		}
	}
	return nil, fmt.Errorf("bootmeth %q: %w", name, types.ErrNotFound)
}

// BindBootdev registers dev. Its sequence number is its bind order.
func (s *Std) BindBootdev(dev Bootdev) error {
	if _, err := s.Bootdev(dev.Name()); err == nil {
		return fmt.Errorf("bootdev %s already bound: %w", dev.Name(), types.ErrInvalid)
	}
	s.bootdevs = append(s.bootdevs, boundDev{dev: dev, seq: len(s.bootdevs)})
	metrics.IncBootdevBound(dev.UClass())
	s.logger.Debug().Str("bootdev", dev.Name()).Str("prio", dev.Priority().String()).Msg("bootdev bound")
	return nil
}

// Bootdevs returns the bound bootdevs in priority, then sequence, order
func (s *Std) Bootdevs() []Bootdev {
	sorted := append([]boundDev(nil), s.bootdevs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].dev.Priority() < sorted[j].dev.Priority()
	})
	out := make([]Bootdev, len(sorted))
	for i, b := range sorted {
		out[i] = b.dev
	}
	return out
}

// Bootdev finds a bound bootdev by name
func (s *Std) Bootdev(name string) (Bootdev, error) {
	for _, b := range s.bootdevs {
		if b.dev.Name() == name {
			return b.dev, nil
		}
	}
	return nil, fmt.Errorf("bootdev %q: %w", name, types.ErrNotFound)
}

// AddHunter registers a hunter
func (s *Std) AddHunter(h Hunter) {
	s.hunters = append(s.hunters, h)
}

// Hunters returns the registered hunters and whether each has run
func (s *Std) Hunters() ([]Hunter, []bool) {
	done := make([]bool, len(s.hunters))
	for i, h := range s.hunters {
		done[i] = s.hunted[h]
	}
	return append([]Hunter(nil), s.hunters...), done
}

// ResetHunted lets every hunter run again
func (s *Std) ResetHunted() {
	s.hunted = make(map[Hunter]bool)
}

func (s *Std) runHunter(ctx context.Context, h Hunter) {
	if s.hunted[h] {
		return
	}
	s.hunted[h] = true
	s.logger.Debug().Str("uclass", h.UClass()).Msg("hunting")
	if err := h.Hunt(ctx, s); err != nil {
		s.logger.Debug().Str("uclass", h.UClass()).Err(err).Msg("hunter failed")
	}
}

// HuntPriority runs the hunters of one priority tier that have not yet run
func (s *Std) HuntPriority(ctx context.Context, prio types.BootdevPriority) {
	for _, h := range s.hunters {
		if h.Priority() == prio {
			s.runHunter(ctx, h)
		}
	}
}

// HuntUClass runs the hunters for uclass. An empty uclass runs them all.
// It fails with ErrNotFound when no hunter serves uclass.
func (s *Std) HuntUClass(ctx context.Context, uclass string) error {
	found := false
	for _, h := range s.hunters {
		if uclass == "" || h.UClass() == uclass {
			found = true
			s.runHunter(ctx, h)
		}
	}
	if !found && uclass != "" {
		return fmt.Errorf("no hunter for %q: %w", uclass, types.ErrNotFound)
	}
	return nil
}

// SetBootmethOrder sets the explicit bootmeth order from a space separated
// list of names. An empty list restores the default order.
func (s *Std) SetBootmethOrder(names string) error {
	fields := strings.Fields(names)
	if len(fields) == 0 {
		s.methodOrder = nil
		return nil
	}
	order := make([]Bootmeth, 0, len(fields))
	for _, name := range fields {
		m, err := s.Bootmeth(name)
		if err != nil {
			return err
		}
		order = append(order, m)
	}
	s.methodOrder = order
	return nil
}

// BootmethOrder returns the explicit bootmeth order, nil when unset
func (s *Std) BootmethOrder() []Bootmeth {
	return append([]Bootmeth(nil), s.methodOrder...)
}

// SetBootdevOrder sets the explicit bootdev order from a space separated
// list of labels. Labels are resolved when a scan starts.
func (s *Std) SetBootdevOrder(labels string) error {
	s.bootdevOrder = strings.Fields(labels)
	if len(s.bootdevOrder) == 0 {
		s.bootdevOrder = nil
	}
	return nil
}

// BootdevOrder returns the explicit bootdev labels, nil when unset
func (s *Std) BootdevOrder() []string {
	return append([]string(nil), s.bootdevOrder...)
}

// AttachEnv keeps the orders in step with the bootmeths and boot_targets
// variables of e
func (s *Std) AttachEnv(e *env.Env) {
	e.OnChange(env.VarBootmeths, func(_, value string) error {
		return s.SetBootmethOrder(value)
	})
	e.OnChange(env.VarBootTargets, func(_, value string) error {
		return s.SetBootdevOrder(value)
	})
}

// resolveLabel returns the bootdevs a label names: a single bootdev by
// name, or every bootdev of a uclass in sequence order
func (s *Std) resolveLabel(label string) []Bootdev {
	if dev, err := s.Bootdev(label); err == nil {
		return []Bootdev{dev}
	}
	var out []Bootdev
	for _, b := range s.bootdevs {
		if b.dev.UClass() == label {
			out = append(out, b.dev)
		}
	}
	return out
}

// labelUClass strips a trailing device number: "mmc1" -> "mmc"
func labelUClass(label string) string {
	return strings.TrimRight(label, "0123456789")
}
