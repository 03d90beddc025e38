package bootstd

import (
	"context"
	"fmt"

	"github.com/deploymenttheory/go-bootstd/internal/fs"
	"github.com/deploymenttheory/go-bootstd/internal/types"
)

// MethodFlags describe how a bootmeth takes part in a scan
type MethodFlags uint

const (
	// MethodGlobal marks a bootmeth that finds bootflows without a bootdev.
	// Global bootmeths run once per scan, before any bootdev.
	MethodGlobal MethodFlags = 1 << iota
	// MethodAnyPart marks a bootmeth that reads partitions without a
	// filesystem
	MethodAnyPart
)

// Bootmeth recognises an OS on a bootdev. ReadBootflow is the only required
// operation; the others are optional capabilities reached through the
// dispatch helpers below.
type Bootmeth interface {
	Name() string
	Flags() MethodFlags
	// ReadBootflow fills in bflow. For a block bootdev the filesystem (if
	// any) is already set up in bflow.Source.
	ReadBootflow(ctx context.Context, bflow *Bootflow) error
}

// Checker filters out bootdevs a bootmeth cannot use, cheaply, before any
// media is touched
type Checker interface {
	Check(it *Iter) error
}

// Booter boots a bootflow in StateReady
type Booter interface {
	Boot(ctx context.Context, bflow *Bootflow) error
}

// FileReader reads further files relative to a bootflow
type FileReader interface {
	ReadFile(ctx context.Context, bflow *Bootflow, path string, limit int64) ([]byte, error)
}

// StateDescriber describes bootmeth-specific state for display
type StateDescriber interface {
	StateDesc(bflow *Bootflow) (string, error)
}

// Check asks m whether it can use the iterator's current bootdev. A
// bootmeth without a check accepts every bootdev.
func Check(m Bootmeth, it *Iter) error {
	if c, ok := m.(Checker); ok {
		return c.Check(it)
	}
	return nil
}

// ReadBootflow delegates to m without resetting bflow
func ReadBootflow(ctx context.Context, m Bootmeth, bflow *Bootflow) error {
	return m.ReadBootflow(ctx, bflow)
}

// GetBootflow resets bflow to a base bootflow of m, with no bootdev, and
// reads it. Global bootmeths are driven this way.
func GetBootflow(ctx context.Context, m Bootmeth, bflow *Bootflow) error {
	*bflow = Bootflow{Method: m, State: StateBase}
	return m.ReadBootflow(ctx, bflow)
}

// Boot boots bflow with its bootmeth
func Boot(ctx context.Context, bflow *Bootflow) error {
	b, ok := bflow.Method.(Booter)
	if !ok {
		return fmt.Errorf("%s cannot boot: %w", bflow.Method.Name(), types.ErrNotSupported)
	}
	return b.Boot(ctx, bflow)
}

// ReadFile reads path through the bootflow's bootmeth
func ReadFile(ctx context.Context, bflow *Bootflow, path string, limit int64) ([]byte, error) {
	r, ok := bflow.Method.(FileReader)
	if !ok {
		return nil, fmt.Errorf("%s cannot read files: %w", bflow.Method.Name(), types.ErrNotSupported)
	}
	return r.ReadFile(ctx, bflow, path, limit)
}

// StateDesc describes bootmeth-specific state of bflow
func StateDesc(bflow *Bootflow) (string, error) {
	d, ok := bflow.Method.(StateDescriber)
	if !ok {
		return "", types.ErrNotSupported
	}
	return d.StateDesc(bflow)
}

// SetupFS mounts the filesystem of bflow into fsctx
func SetupFS(fsctx *fs.Context, bflow *Bootflow) error {
	if bflow.Source == nil {
		return fmt.Errorf("%s has no filesystem: %w", bflow.Name, types.ErrNotSupported)
	}
	if err := bflow.Source.Mount(fsctx); err != nil {
		return err
	}
	bflow.FSType = fsctx.Type()
	return nil
}

// TryFile looks for prefix+fname. On success the bootflow moves to
// StateFile with Size set and the filesystem remains mounted.
func TryFile(fsctx *fs.Context, bflow *Bootflow, prefix, fname string) error {
	path := prefix + fname
	bflow.FName = path

	size, err := fsctx.Size(path)
	// Size closes the filesystem, so mount it again whatever the outcome
	if err2 := SetupFS(fsctx, bflow); err2 != nil {
		return fmt.Errorf("remount after size of %s: %w", path, err2)
	}
	if err != nil {
		return err
	}
	bflow.Subdir = prefix
	bflow.Size = size
	bflow.State = StateFile
	return nil
}

// AllocFile loads the file found by TryFile, which must be no larger than
// sizeLimit. The buffer carries a NUL after the content.
func AllocFile(fsctx *fs.Context, bflow *Bootflow, sizeLimit int64) error {
	if bflow.Size > sizeLimit {
		return fmt.Errorf("%s is %d bytes, limit %d: %w", bflow.FName, bflow.Size, sizeLimit, types.ErrTooBig)
	}
	data, err := fsctx.Read(bflow.FName, 0, bflow.Size)
	if err != nil {
		bflow.State = StateFile
		return err
	}
	bflow.Buf = nulTerminate(data)
	bflow.State = StateReady
	return nil
}

// AllocOther loads another file from the bootflow's filesystem, leaving
// the bootflow state alone. The buffer carries a NUL after the content.
func AllocOther(fsctx *fs.Context, bflow *Bootflow, fname string) ([]byte, error) {
	if bflow.Subdir != "" {
		fname = bflow.Subdir + fname
	}
	if err := SetupFS(fsctx, bflow); err != nil {
		return nil, err
	}
	size, err := fsctx.Size(fname)
	if err2 := SetupFS(fsctx, bflow); err2 != nil {
		return nil, err2
	}
	if err != nil {
		return nil, err
	}
	data, err := fsctx.Read(fname, 0, size)
	if err != nil {
		return nil, err
	}
	return nulTerminate(data), nil
}

// ReadFileCommon reads path from the bootflow's filesystem. A file larger
// than limit fails with ErrNoSpace.
func ReadFileCommon(fsctx *fs.Context, bflow *Bootflow, path string, limit int64) ([]byte, error) {
	if err := SetupFS(fsctx, bflow); err != nil {
		return nil, err
	}
	size, err := fsctx.Size(path)
	if err != nil {
		return nil, err
	}
	if size > limit {
		return nil, fmt.Errorf("%s is %d bytes, room for %d: %w", path, size, limit, types.ErrNoSpace)
	}
	if err := SetupFS(fsctx, bflow); err != nil {
		return nil, err
	}
	return fsctx.Read(path, 0, size)
}

func nulTerminate(data []byte) []byte {
	buf := make([]byte, len(data)+1)
	copy(buf, data)
	return buf
}
