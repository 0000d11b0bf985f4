package ephemeris

import (
	"errors"
	"fmt"

	"github.com/jyannick/OrbitPlot/internal/astro"
)

// ErrRuntimeNotStarted is returned when the astro runtime is closed or missing.
var ErrRuntimeNotStarted = astro.ErrNotStarted

// Error kinds, as reported by Kind.
const (
	KindParse            = "parse"
	KindInvalidParameter = "invalid_parameter"
	KindPropagation      = "propagation"
)

// ParseError reports malformed TLE text.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "parse error: " + e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }

// InvalidParameterError reports an unusable duration, step or maneuver list.
type InvalidParameterError struct {
	Param string
	Err   error
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s: %v", e.Param, e.Err)
}
func (e *InvalidParameterError) Unwrap() error { return e.Err }

// PropagationError reports a failure inside the astrodynamics computation,
// including unsupported maneuver configurations.
type PropagationError struct {
	Err error
}

func (e *PropagationError) Error() string { return "propagation error: " + e.Err.Error() }
func (e *PropagationError) Unwrap() error { return e.Err }

func invalidParam(param, format string, args ...any) error {
	return &InvalidParameterError{Param: param, Err: fmt.Errorf(format, args...)}
}

// Kind classifies err as one of the Kind* constants, or "" for anything else.
func Kind(err error) string {
	var (
		pe  *ParseError
		ipe *InvalidParameterError
		pre *PropagationError
	)
	switch {
	case errors.As(err, &pe):
		return KindParse
	case errors.As(err, &ipe):
		return KindInvalidParameter
	case errors.As(err, &pre):
		return KindPropagation
	default:
		return ""
	}
}
