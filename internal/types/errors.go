package types

import (
	"errors"
	"fmt"
)

// Errno is an errno-style error code. Operations that fail return an error
// wrapping one of these values so callers can both use errors.Is and recover
// the numeric code with Code.
type Errno int

const (
	EPERM     Errno = 1
	ENOENT    Errno = 2
	E2BIG     Errno = 7
	ENOMEM    Errno = 12
	EINVAL    Errno = 22
	ENOSPC    Errno = 28
	ENOSYS    Errno = 38
	ENODATA   Errno = 61
	ESHUTDOWN Errno = 108
)

var errnoNames = map[Errno]string{
	EPERM:     "operation not permitted",
	ENOENT:    "no such entry",
	E2BIG:     "too large",
	ENOMEM:    "out of memory",
	EINVAL:    "invalid argument",
	ENOSPC:    "no space left",
	ENOSYS:    "not supported",
	ENODATA:   "no data available",
	ESHUTDOWN: "no more partitions",
}

// Error implements the error interface.
func (e Errno) Error() string {
	if name, ok := errnoNames[e]; ok {
		return name
	}
	return fmt.Sprintf("errno %d", int(e))
}

// Sentinel errors used across the boot packages.
var (
	ErrNotFound     error = ENOENT
	ErrNoMemory     error = ENOMEM
	ErrInvalid      error = EINVAL
	ErrNoData       error = ENODATA
	ErrPermission   error = EPERM
	ErrNotSupported error = ENOSYS
	ErrTooBig       error = E2BIG
	ErrNoSpace      error = ENOSPC
	ErrNoMoreParts  error = ESHUTDOWN
)

// Code returns the negative errno for err, 0 for nil. Errors that do not wrap
// an Errno are reported as -EINVAL.
func Code(err error) int {
	if err == nil {
		return 0
	}
	var errno Errno
	if errors.As(err, &errno) {
		return -int(errno)
	}
	return -int(EINVAL)
}
