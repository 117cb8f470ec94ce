package nrea

import (
	"errors"
	"fmt"
)

// Sentinel errors wrapped by ConfigurationError and InvalidInputError.
var (
	ErrInvalidKernel   = errors.New("invalid kernel")
	ErrShapeMismatch   = errors.New("frame shape mismatch")
	ErrInvalidGeometry = errors.New("invalid region geometry")
	ErrNoFrames        = errors.New("no frames to accumulate")
	ErrEmptyMask       = errors.New("empty mask")
	ErrDegenerateRange = errors.New("degenerate value range")
	ErrInvalidFrame    = errors.New("invalid frame")
	ErrInvalidPrefix   = errors.New("invalid prefix length")
)

// ConfigurationError reports a parameter problem detected before any
// computation started: kernel radius, batch shapes or region geometry.
type ConfigurationError struct {
	Op     string // Operation that rejected the configuration
	Reason string // Human-readable description
	Err    error  // Sentinel cause
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: configuration error: %s", e.Op, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// InvalidInputError reports input data that cannot produce a result for the
// specific call, such as an empty batch or an empty mask.
type InvalidInputError struct {
	Op     string
	Reason string
	Err    error
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("%s: invalid input: %s", e.Op, e.Reason)
}

func (e *InvalidInputError) Unwrap() error { return e.Err }

func configErr(op string, cause error, format string, args ...interface{}) error {
	return &ConfigurationError{Op: op, Reason: fmt.Sprintf(format, args...), Err: cause}
}

func inputErr(op string, cause error, format string, args ...interface{}) error {
	return &InvalidInputError{Op: op, Reason: fmt.Sprintf(format, args...), Err: cause}
}
