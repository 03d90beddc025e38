package bootstd

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/deploymenttheory/go-bootstd/internal/metrics"
	"github.com/deploymenttheory/go-bootstd/internal/types"
)

// Options control a scan
type Options struct {
	// Label restricts the scan to one bootdev ("mmc1") or uclass ("mmc")
	Label string
	// SkipGlobal leaves out global bootmeths
	SkipGlobal bool
	// All returns failed candidates too, with Err set
	All bool
	// Hunt runs hunters as the scan reaches them
	Hunt bool
}

// Iter walks bootflow candidates: each global bootmeth once, then for each
// bootdev, each partition, each remaining bootmeth
type Iter struct {
	std  *Std
	opts Options

	methodOrder     []Bootmeth
	numMethods      int
	curMethod       int
	firstGlobMethod int
	doingGlobal     bool
	explicitMethods bool

	// explicit is set when the bootdev list was fixed up front
	explicit bool
	devs     []Bootdev
	seen     map[Bootdev]bool
	tier     types.BootdevPriority
	devIdx   int
	dev      Bootdev
	parts    []int
	partIdx  int
	skipDev  bool
	started  bool
	done     bool
}

// SetupIterOrder fills in the bootmeth order of it. An explicit order is
// copied as is and cannot be combined with leaving out global bootmeths.
// Otherwise the non-global bootmeths come first, in sequence order, then the
// global ones. When globals are included the iterator starts on them.
func (s *Std) SetupIterOrder(it *Iter, includeGlobal bool) error {
	var order []Bootmeth
	it.firstGlobMethod = -1
	it.explicitMethods = false

	if len(s.methodOrder) > 0 {
		if !includeGlobal {
			return fmt.Errorf("explicit bootmeth order with global bootmeths excluded: %w", types.ErrPermission)
		}
		order = append(order, s.methodOrder...)
		for i, m := range order {
			if isGlobal(m) {
				it.firstGlobMethod = i
				break
			}
		}
		it.explicitMethods = true
	} else {
		maxSeq := len(s.bootmeths)*2 + 20
		for pass := 0; pass < 2; pass++ {
			wantGlobal := pass == 1
			if wantGlobal {
				if !includeGlobal {
					break
				}
				it.firstGlobMethod = len(order)
			}
			for seq := 0; seq < maxSeq && len(order) < len(s.bootmeths); seq++ {
				m := s.bootmeths[seq]
				if m == nil || isGlobal(m) != wantGlobal {
					continue
				}
				order = append(order, m)
			}
		}
	}

	if len(order) == 0 {
		return fmt.Errorf("no bootmeths: %w", types.ErrNotFound)
	}

	it.methodOrder = order
	it.numMethods = len(order)
	it.curMethod = 0
	it.doingGlobal = false
	if includeGlobal && it.firstGlobMethod != -1 && it.firstGlobMethod != len(order) {
		it.curMethod = it.firstGlobMethod
		it.doingGlobal = true
	}
	return nil
}

func isGlobal(m Bootmeth) bool {
	return m.Flags()&MethodGlobal != 0
}

// NewIter prepares a scan of std. Hunting for explicitly ordered bootdevs
// happens here; in priority order it happens as each tier is reached.
func NewIter(ctx context.Context, std *Std, opts Options) (*Iter, error) {
	it := &Iter{
		std:  std,
		opts: opts,
		seen: make(map[Bootdev]bool),
	}
	if err := std.SetupIterOrder(it, !opts.SkipGlobal); err != nil {
		return nil, err
	}

	var labels []string
	if opts.Label != "" {
		labels = []string{opts.Label}
	} else {
		labels = std.BootdevOrder()
	}
	if len(labels) > 0 {
		if err := it.setupExplicitDevs(ctx, labels); err != nil {
			return nil, err
		}
	}
	return it, nil
}

func (it *Iter) setupExplicitDevs(ctx context.Context, labels []string) error {
	it.explicit = true
	for _, label := range labels {
		if it.opts.Hunt {
			// a label without a hunter may still name a bound bootdev
			if err := it.std.HuntUClass(ctx, labelUClass(label)); err != nil {
				it.std.logger.Debug().Str("label", label).Err(err).Msg("label not hunted")
			}
		}
		devs := it.std.resolveLabel(label)
		if len(devs) == 0 && !it.knownUClass(labelUClass(label)) {
			return fmt.Errorf("bootdev label %q: %w", label, types.ErrNotFound)
		}
		for _, dev := range devs {
			if !it.seen[dev] {
				it.seen[dev] = true
				it.devs = append(it.devs, dev)
			}
		}
	}
	return nil
}

func (it *Iter) knownUClass(uclass string) bool {
	for _, h := range it.std.hunters {
		if h.UClass() == uclass {
			return true
		}
	}
	for _, b := range it.std.bootdevs {
		if b.dev.UClass() == uclass {
			return true
		}
	}
	return false
}

// deviceAt returns the idx'th bootdev of the scan, entering further priority
// tiers as needed. It returns nil when there are no more.
func (it *Iter) deviceAt(ctx context.Context, idx int) Bootdev {
	for idx >= len(it.devs) {
		if it.explicit || it.tier >= types.NumBootdevPriorities {
			return nil
		}
		if it.opts.Hunt {
			it.std.HuntPriority(ctx, it.tier)
		}
		var fresh []boundDev
		for _, b := range it.std.bootdevs {
			if b.dev.Priority() <= it.tier && !it.seen[b.dev] {
				fresh = append(fresh, b)
			}
		}
		sort.SliceStable(fresh, func(i, j int) bool {
			if fresh[i].dev.Priority() != fresh[j].dev.Priority() {
				return fresh[i].dev.Priority() < fresh[j].dev.Priority()
			}
			return fresh[i].seq < fresh[j].seq
		})
		for _, b := range fresh {
			it.seen[b.dev] = true
			it.devs = append(it.devs, b.dev)
		}
		it.tier++
	}
	return it.devs[idx]
}

// loadDevice positions the iterator on the first partition of the first
// usable bootdev at or after idx
func (it *Iter) loadDevice(ctx context.Context, idx int) bool {
	for {
		dev := it.deviceAt(ctx, idx)
		if dev == nil {
			return false
		}
		parts, err := partitionsOf(dev)
		if err != nil || len(parts) == 0 {
			it.std.logger.Debug().Str("bootdev", dev.Name()).Err(err).Msg("no partitions")
			idx++
			continue
		}
		it.dev = dev
		it.devIdx = idx
		it.parts = parts
		it.partIdx = 0
		it.curMethod = 0
		return it.numMethods > 0
	}
}

// advance moves to the next candidate position
func (it *Iter) advance(ctx context.Context) bool {
	if it.doingGlobal {
		it.curMethod++
		if it.curMethod < len(it.methodOrder) {
			return true
		}
		it.doingGlobal = false
		if !it.explicitMethods {
			it.numMethods = it.firstGlobMethod
		}
		return it.loadDevice(ctx, 0)
	}
	if !it.skipDev {
		it.curMethod++
		if it.curMethod < it.numMethods {
			return true
		}
		it.curMethod = 0
		it.partIdx++
		if it.partIdx < len(it.parts) {
			return true
		}
	}
	it.skipDev = false
	return it.loadDevice(ctx, it.devIdx+1)
}

// errSkip marks a position with nothing to try
var errSkip = errors.New("skip")

func (it *Iter) tryCurrent(ctx context.Context) (*Bootflow, error) {
	m := it.methodOrder[it.curMethod]
	bflow := &Bootflow{}

	if it.doingGlobal {
		if !isGlobal(m) {
			return nil, errSkip
		}
		err := GetBootflow(ctx, m, bflow)
		if bflow.Name == "" {
			bflow.Name = m.Name()
		}
		return bflow, err
	}

	if isGlobal(m) {
		return nil, errSkip
	}
	*bflow = Bootflow{
		Dev:    it.dev,
		Method: m,
		Part:   it.Part(),
		State:  StateBase,
		Name:   bootflowName(it.dev, it.Part()),
	}
	if err := Check(m, it); err != nil {
		return bflow, err
	}
	return bflow, it.dev.GetBootflow(ctx, it, bflow)
}

func bootflowName(dev Bootdev, part int) string {
	if part == 0 {
		return dev.Name() + ".bootdev.whole"
	}
	return fmt.Sprintf("%s.bootdev.part_%x", dev.Name(), part)
}

// Next returns the next bootflow that was read successfully, or with
// Options.All any candidate. It fails with ErrNotFound once the scan is
// complete.
func (it *Iter) Next(ctx context.Context) (*Bootflow, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if it.done {
			return nil, fmt.Errorf("no more bootflows: %w", types.ErrNotFound)
		}

		var ok bool
		if it.started {
			ok = it.advance(ctx)
		} else {
			it.started = true
			ok = it.doingGlobal || it.loadDevice(ctx, 0)
		}
		if !ok {
			it.done = true
			continue
		}

		bflow, err := it.tryCurrent(ctx)
		if errors.Is(err, errSkip) {
			continue
		}
		metrics.IncCandidate(bflow.Method.Name(), err)
		if err == nil {
			return bflow, nil
		}

		log := it.std.logger.Debug().Str("bootflow", bflow.Name).Str("bootmeth", bflow.Method.Name())
		if errors.Is(err, types.ErrNoMoreParts) {
			log.Msg("no more partitions")
			it.skipDev = true
		} else {
			log.Err(err).Msg("candidate failed")
		}
		if it.opts.All {
			bflow.Err = err
			return bflow, nil
		}
	}
}

// Bootdev returns the bootdev being scanned, nil for global bootmeths
func (it *Iter) Bootdev() Bootdev {
	if it.doingGlobal {
		return nil
	}
	return it.dev
}

// Part returns the partition being scanned
func (it *Iter) Part() int {
	if it.doingGlobal || it.partIdx >= len(it.parts) {
		return 0
	}
	return it.parts[it.partIdx]
}

// PartIndex returns the position of Part among the bootdev's partitions
func (it *Iter) PartIndex() int {
	return it.partIdx
}

// Method returns the bootmeth at the cursor
func (it *Iter) Method() Bootmeth {
	if it.curMethod >= len(it.methodOrder) {
		return nil
	}
	return it.methodOrder[it.curMethod]
}

// MethodOrder returns a copy of the bootmeths in the order they are visited
func (it *Iter) MethodOrder() []Bootmeth { return append([]Bootmeth(nil), it.methodOrder...) }

// NumMethods returns how many bootmeths the iterator visits
func (it *Iter) NumMethods() int { return it.numMethods }

// CurMethod returns the index of Method within MethodOrder
func (it *Iter) CurMethod() int { return it.curMethod }

// FirstGlobMethod returns the index in MethodOrder where the global
// bootmeths start, or -1 when globals are left out
func (it *Iter) FirstGlobMethod() int { return it.firstGlobMethod }

// DoingGlobal reports whether the iterator is running the global
// bootmeths, which take no bootdev
func (it *Iter) DoingGlobal() bool { return it.doingGlobal }
