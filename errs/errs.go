// Package errs provides structured error types and helpers for swapflow services.
package errs

import (
	"sort"
	"strconv"
	"strings"
)

// Code identifies an error category within the route execution domain.
type Code string

const (
	// CodeValidation indicates a malformed route rejected before custody or dispatch.
	CodeValidation Code = "validation"
	// CodeArithmetic indicates integer overflow or a percent-sum mismatch.
	CodeArithmetic Code = "arithmetic"
	// CodeVenue indicates that a swap call reported failure (slippage, liquidity).
	CodeVenue Code = "venue_failure"
	// CodeNormalization indicates that no conversion path exists for a held asset.
	CodeNormalization Code = "normalization"
	// CodePayout indicates the final balance fell below the minimum receive guard.
	CodePayout Code = "payout_guard"
	// CodeInvalid indicates invalid input provided by the caller.
	CodeInvalid Code = "invalid_request"
	// CodeNotFound indicates a missing resource.
	CodeNotFound Code = "not_found"
	// CodeConflict indicates a concurrent mutation conflict.
	CodeConflict Code = "conflict"
	// CodeUnavailable indicates the service is temporarily unavailable.
	CodeUnavailable Code = "unavailable"
)

// Fatal reports whether the code aborts an in-flight route execution as a whole.
// Validation failures happen before custody, so they are not route-fatal.
func (c Code) Fatal() bool {
	switch c {
	case CodeArithmetic, CodeVenue, CodeNormalization, CodePayout:
		return true
	default:
		return false
	}
}

// E captures structured error information produced across the swapflow stack.
type E struct {
	Component     string
	Code          Code
	Rule          string
	Message       string
	VenueMetadata map[string]string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the component and error code.
func New(component string, code Code, opts ...Option) *E {
	e := &E{
		Component:     strings.TrimSpace(component),
		Code:          code,
		Rule:          "",
		Message:       "",
		VenueMetadata: nil,
		cause:         nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithRule records the identifier of the violated validation rule.
func WithRule(rule string) Option {
	trimmed := strings.TrimSpace(rule)
	return func(e *E) {
		e.Rule = trimmed
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

// WithVenueField appends a single venue metadata key/value pair.
func WithVenueField(key, value string) Option {
	return func(e *E) {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			return
		}
		if e.VenueMetadata == nil {
			e.VenueMetadata = make(map[string]string, 1)
		}
		e.VenueMetadata[trimmedKey] = strings.TrimSpace(value)
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	component := strings.TrimSpace(e.Component)
	if component == "" {
		component = "unknown"
	}
	parts = append(parts, "component="+component)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if e.Rule != "" {
		parts = append(parts, "rule="+e.Rule)
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if len(e.VenueMetadata) > 0 {
		keys := make([]string, 0, len(e.VenueMetadata))
		for k := range e.VenueMetadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			v := e.VenueMetadata[k]
			pairs = append(pairs, k+"="+strconv.Quote(v))
		}
		parts = append(parts, "venue="+strings.Join(pairs, ","))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// CodeOf extracts the structured code from err, or empty when err is not an *E.
func CodeOf(err error) Code {
	for err != nil {
		if structured, ok := err.(*E); ok {
			return structured.Code
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = unwrapper.Unwrap()
	}
	return ""
}
