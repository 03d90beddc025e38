//go:build !(linux && (amd64 || arm64))

package handoff

import (
	"context"
	"fmt"
	"runtime"

	"github.com/rs/zerolog"

	"github.com/deploymenttheory/go-bootstd/internal/types"
)

// Kexec is unavailable on this platform
type Kexec struct {
	logger zerolog.Logger
}

// NewKexec creates a kexec executor that always fails
func NewKexec(logger zerolog.Logger) *Kexec {
	return &Kexec{logger: logger}
}

// Execute implements Executor
func (k *Kexec) Execute(context.Context, *Image) error {
	return fmt.Errorf("kexec on %s/%s: %w", runtime.GOOS, runtime.GOARCH, types.ErrNotSupported)
}
