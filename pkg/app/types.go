package app

import (
	"errors"
	"fmt"

	"github.com/deploymenttheory/go-bootstd/internal/types"
)

// Output formats
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// ValidateFormat rejects unknown output formats
func ValidateFormat(format string) error {
	switch format {
	case FormatTable, FormatJSON, FormatYAML:
		return nil
	}
	return NewError(ErrCodeInvalidInput, fmt.Sprintf("unsupported output format: %s", format), types.ErrInvalid)
}

// CommonError represents application-level errors
type CommonError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CommonError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *CommonError) Unwrap() error {
	return e.Cause
}

// Common error codes
const (
	ErrCodeInvalidInput   = "INVALID_INPUT"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeDeviceAccess   = "DEVICE_ACCESS"
	ErrCodeBootFailed     = "BOOT_FAILED"
	ErrCodePermission     = "PERMISSION_DENIED"
	ErrCodeNotImplemented = "NOT_IMPLEMENTED"
)

// NewError creates a new CommonError
func NewError(code, message string, cause error) *CommonError {
	return &CommonError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Wrap classifies err by its errno and attaches message
func Wrap(message string, err error) *CommonError {
	code := ErrCodeDeviceAccess
	switch {
	case errors.Is(err, types.ErrNotFound):
		code = ErrCodeNotFound
	case errors.Is(err, types.ErrInvalid):
		code = ErrCodeInvalidInput
	case errors.Is(err, types.ErrPermission):
		code = ErrCodePermission
	case errors.Is(err, types.ErrNotSupported):
		code = ErrCodeNotImplemented
	}
	return NewError(code, message, err)
}

// ExitCode maps err to a process exit status: 0 for success, otherwise the
// errno value, or 1 when err carries none
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var errno types.Errno
	if errors.As(err, &errno) {
		return int(errno)
	}
	return 1
}
