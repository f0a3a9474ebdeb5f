// Package apierr defines the error taxonomy spec.md §7 requires: validation
// errors and resource errors are distinguished from ordinary errors so the
// HTTP control surface can map them to the right status code, and so the
// run controller can decide whether to suppress start-side effects.
package apierr

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument marks a validation error: malformed params, out-of-range
// inputs, or a missing runId. Never swallowed; surfaced to the caller as-is.
var ErrInvalidArgument = errors.New("invalid-argument")

// ErrResource marks a resource error: the catalog is empty/missing, or the
// store is unreachable during a descriptor insert.
var ErrResource = errors.New("resource-error")

// InvalidArgument wraps msg as an ErrInvalidArgument.
func InvalidArgument(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrInvalidArgument)
}

// InvalidArgumentf wraps a formatted msg as an ErrInvalidArgument.
func InvalidArgumentf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidArgument)
}

// Resource wraps err as an ErrResource, preserving err for errors.Is/As.
func Resource(msg string, err error) error {
	if err == nil {
		return fmt.Errorf("%s: %w", msg, ErrResource)
	}

	return fmt.Errorf("%s: %w: %w", msg, ErrResource, err)
}

// IsInvalidArgument reports whether err is (or wraps) ErrInvalidArgument.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// IsResource reports whether err is (or wraps) ErrResource.
func IsResource(err error) bool {
	return errors.Is(err, ErrResource)
}
