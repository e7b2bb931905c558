package domain

import (
	"errors"
	"fmt"
)

// Error kinds recorded on failed jobs. Stage-fatal errors carry one of these;
// anything unexpected is wrapped as a stage error.
const (
	KindGeometry          = "geometry_error"
	KindInvalidParameter  = "invalid_parameter"
	KindPlacement         = "placement_error"
	KindUnsupportedFormat = "unsupported_format"
	KindTimeout           = "timeout"
	KindStage             = "stage_error"
)

// Error is a classified pipeline failure.
type Error struct {
	Kind string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// GeometryErrorf reports a bad or empty source drawing.
func GeometryErrorf(format string, args ...any) *Error {
	return &Error{Kind: KindGeometry, Msg: fmt.Sprintf(format, args...)}
}

// InvalidParameterf reports an out-of-range numeric input.
func InvalidParameterf(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidParameter, Msg: fmt.Sprintf(format, args...)}
}

// PlacementErrorf reports a mandatory device that cannot be placed.
func PlacementErrorf(format string, args ...any) *Error {
	return &Error{Kind: KindPlacement, Msg: fmt.Sprintf(format, args...)}
}

// UnsupportedFormatf reports an unknown export format.
func UnsupportedFormatf(format string, args ...any) *Error {
	return &Error{Kind: KindUnsupportedFormat, Msg: fmt.Sprintf(format, args...)}
}

// TimeoutErrorf reports a stage that exceeded its execution budget.
func TimeoutErrorf(format string, args ...any) *Error {
	return &Error{Kind: KindTimeout, Msg: fmt.Sprintf(format, args...)}
}

// StageError wraps an unexpected failure inside a stage.
func StageError(stage string, err error) *Error {
	return &Error{Kind: KindStage, Msg: fmt.Sprintf("stage %s failed", stage), Err: err}
}

// ErrKind classifies an error, returning KindStage for anything that does not
// carry its own kind.
func ErrKind(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStage
}
