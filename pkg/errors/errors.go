// Package errors defines the error taxonomy shared by the reader, the
// geometry engine and the cohort index. Every failure is scoped to a single
// (patient, ROI) query; callers classify errors with errors.Is against the
// sentinels below.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a record that lacks a required field (PatientID).
	ErrValidation = errors.New("validation error")
	// ErrFormat marks content that is not a parseable DICOM dataset or a
	// malformed contour.
	ErrFormat = errors.New("format error")
	// ErrNotFound marks a missing ROI, contour set or structure set.
	ErrNotFound = errors.New("not found")
	// ErrGeometry marks a point cloud that admits no 3D convex hull.
	ErrGeometry = errors.New("geometry error")
	// ErrAmbiguous marks a patient with more than one structure set.
	ErrAmbiguous = errors.New("ambiguous")

	ErrInsufficientPoints = fmt.Errorf("%w: insufficient points", ErrGeometry)
	ErrDegenerate         = fmt.Errorf("%w: degenerate", ErrGeometry)
)

// Error attaches a message to one of the sentinels above.
type Error struct {
	Err     error
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(sentinel error, message string) *Error {
	return &Error{Err: sentinel, Message: message}
}

func Newf(sentinel error, format string, args ...any) *Error {
	return &Error{Err: sentinel, Message: fmt.Sprintf(format, args...)}
}

// Kind returns the top-level sentinel err belongs to, or nil when err is
// outside the taxonomy.
func Kind(err error) error {
	for _, sentinel := range []error{ErrValidation, ErrFormat, ErrNotFound, ErrGeometry, ErrAmbiguous} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return nil
}

// Reason returns a short label for err suitable for metrics and reports.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInsufficientPoints):
		return "insufficient_points"
	case errors.Is(err, ErrDegenerate):
		return "degenerate"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrFormat):
		return "format"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAmbiguous):
		return "ambiguous"
	default:
		return "internal"
	}
}
