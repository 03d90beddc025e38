package bootstd

import (
	"context"
	"errors"
	"fmt"

	"github.com/deploymenttheory/go-bootstd/internal/metrics"
	"github.com/deploymenttheory/go-bootstd/internal/types"
)

// Scan collects every bootflow of a scan
func (s *Std) Scan(ctx context.Context, opts Options) ([]*Bootflow, error) {
	it, err := NewIter(ctx, s, opts)
	if err != nil {
		return nil, err
	}
	var found []*Bootflow
	for {
		bflow, err := it.Next(ctx)
		if errors.Is(err, types.ErrNotFound) {
			return found, nil
		}
		if err != nil {
			return found, err
		}
		found = append(found, bflow)
	}
}

// Run scans in order and boots the first bootflow that boots. A bootflow
// that fails to boot does not stop the scan.
func (s *Std) Run(ctx context.Context, opts Options) (*Bootflow, error) {
	opts.All = false
	it, err := NewIter(ctx, s, opts)
	if err != nil {
		return nil, err
	}
	for {
		bflow, err := it.Next(ctx)
		if errors.Is(err, types.ErrNotFound) {
			return nil, fmt.Errorf("nothing booted: %w", types.ErrNotFound)
		}
		if err != nil {
			return nil, err
		}

		s.logger.Info().Str("bootflow", bflow.Name).Str("bootmeth", bflow.Method.Name()).Msg("booting")
		err = Boot(ctx, bflow)
		metrics.IncBootAttempt(bflow.Method.Name(), err)
		if err == nil {
			return bflow, nil
		}
		s.logger.Warn().Str("bootflow", bflow.Name).Err(err).Msg("boot failed")
	}
}
