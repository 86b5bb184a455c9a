package failure

import (
	"errors"
	"fmt"
)

// Kind classifies why a capture job failed
type Kind string

const (
	InvalidRegion          Kind = "invalid_region"
	RasterTooLarge         Kind = "raster_too_large"
	ElementOutsideViewport Kind = "element_outside_viewport"
	PartialTileOutOfBounds Kind = "partial_tile_out_of_bounds" // warning only, never returned as a job error
	CaptureUnavailable     Kind = "capture_unavailable"
	DeliveryFailed         Kind = "delivery_failed"
	Internal               Kind = "internal"
)

// Error is a tagged job failure with an optional human-readable detail
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

// New creates a tagged error with a formatted detail message
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap tags err with kind. A nil err yields nil.
func Wrap(kind Kind, err error, detail string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Detail: detail, Err: err}
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, &Error{Kind: k}) works
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Detail == "" && t.Err == nil
}

// KindOf returns the kind of the first tagged error in err's chain, or Internal
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Message returns the user-facing message for err
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		switch {
		case e.Detail != "" && e.Err != nil:
			return e.Detail + ": " + e.Err.Error()
		case e.Detail != "":
			return e.Detail
		case e.Err != nil:
			return e.Err.Error()
		}
		return string(e.Kind)
	}
	return err.Error()
}
