// Package handoff describes what a bootmeth hands to the next stage and the
// executors that act on it.
package handoff

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/deploymenttheory/go-bootstd/internal/types"
)

// Kind is the format of the kernel handed off
type Kind int

const (
	KindLinux Kind = iota
	KindEFI
	KindAndroid
)

var kindNames = [...]string{"linux", "efi", "android"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Image is a loaded OS ready to run
type Image struct {
	Kind Kind
	// Bootflow names the bootflow the image came from
	Bootflow string
	Kernel   []byte
	Initrd   []byte
	FDT      []byte
	Cmdline  string
}

// Validate checks that img can be handed off
func (img *Image) Validate() error {
	if len(img.Kernel) == 0 {
		return fmt.Errorf("%s image from %s has no kernel: %w", img.Kind, img.Bootflow, types.ErrInvalid)
	}
	return nil
}

// Executor runs an Image. On success it may not return.
type Executor interface {
	Execute(ctx context.Context, img *Image) error
}

// Executor names accepted by NewExecutor
const (
	ExecutorDryRun = "dry-run"
	ExecutorKexec  = "kexec"
)

// NewExecutor returns the executor called name
func NewExecutor(name string, logger zerolog.Logger) (Executor, error) {
	switch name {
	case ExecutorDryRun, "":
		return NewDryRun(logger), nil
	case ExecutorKexec:
		return NewKexec(logger), nil
	}
	return nil, fmt.Errorf("unknown executor %q: %w", name, types.ErrNotFound)
}
