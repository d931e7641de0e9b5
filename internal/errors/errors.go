// SPDX-License-Identifier: AGPL-3.0-only
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the categories the service
// distinguishes when deciding how a failure is surfaced.
type Kind int

const (
	// KindValidation marks malformed tool arguments or bad request input.
	// Reported back to the LLM as a tool error, never as an HTTP 5xx.
	KindValidation Kind = iota
	// KindUpstream marks an LLM API or identity-management API that is
	// unreachable or returned a non-success status.
	KindUpstream
	// KindConfiguration marks a missing or invalid credential/setting.
	KindConfiguration
	// KindInternal marks everything else.
	KindInternal
)

// String returns the name of the kind
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUpstream:
		return "upstream"
	case KindConfiguration:
		return "configuration"
	default:
		return "internal"
	}
}

// Error is a kinded error. Use IsKind (or errors.As) to classify.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err (or anything it wraps) is an Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// Validation creates a validation error
func Validation(reason string) error {
	return &Error{Kind: KindValidation, Err: errors.New(reason)}
}

// Upstream creates an upstream error wrapping err
func Upstream(err error) error {
	return &Error{Kind: KindUpstream, Err: err}
}

// Upstreamf creates a formatted upstream error
func Upstreamf(format string, args ...interface{}) error {
	return &Error{Kind: KindUpstream, Err: fmt.Errorf(format, args...)}
}

// Configuration creates a configuration error
func Configuration(reason string) error {
	return &Error{Kind: KindConfiguration, Err: errors.New(reason)}
}

// Internal creates a formatted "internal error" error
func Internal(err error) error {
	return fmt.Errorf("internal error: %v", err)
}
