//go:build linux && (amd64 || arm64)

package handoff

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/deploymenttheory/go-bootstd/internal/types"
)

// Kexec loads an image into the running Linux kernel and jumps to it
type Kexec struct {
	logger zerolog.Logger
}

// NewKexec creates a kexec executor
func NewKexec(logger zerolog.Logger) *Kexec {
	return &Kexec{logger: logger.With().Str("component", "kexec").Logger()}
}

// Execute implements Executor. It returns only on failure.
func (k *Kexec) Execute(ctx context.Context, img *Image) error {
	if err := img.Validate(); err != nil {
		return err
	}
	if img.Kind == KindEFI {
		return fmt.Errorf("kexec cannot start an EFI application: %w", types.ErrNotSupported)
	}

	kernel, err := memFile("kernel", img.Kernel)
	if err != nil {
		return err
	}
	defer kernel.Close()

	initrdFd := -1
	flags := 0
	if len(img.Initrd) > 0 {
		initrd, err := memFile("initrd", img.Initrd)
		if err != nil {
			return err
		}
		defer initrd.Close()
		initrdFd = int(initrd.Fd())
	} else {
		flags |= unix.KEXEC_FILE_NO_INITRAMFS
	}

	if err := unix.KexecFileLoad(int(kernel.Fd()), initrdFd, img.Cmdline, flags); err != nil {
		return fmt.Errorf("kexec_file_load: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	k.logger.Info().Str("bootflow", img.Bootflow).Msg("starting loaded kernel")
	if err := unix.Reboot(unix.LINUX_REBOOT_CMD_KEXEC); err != nil {
		return fmt.Errorf("reboot into kexec kernel: %w", err)
	}
	return nil
}

func memFile(name string, data []byte) (*os.File, error) {
	fd, err := unix.MemfdCreate(name, 0)
	if err != nil {
		return nil, fmt.Errorf("memfd for %s: %w", name, err)
	}
	f := os.NewFile(uintptr(fd), name)
	if _, err := f.Write(data); err != nil {
		f.Close()
		return nil, fmt.Errorf("write %s: %w", name, err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("rewind %s: %w", name, err)
	}
	return f, nil
}
