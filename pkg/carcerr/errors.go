// Package carcerr defines the tagged error-kind surface every CARC
// component boundary returns instead of ad hoc string or stdlib errors.
package carcerr

import "fmt"

// Kind identifies which error-handling policy (see spec.md §7) applies.
type Kind string

const (
	KindTransport          Kind = "transport"
	KindRateLimitedUpstream Kind = "rate_limited_upstream"
	KindAuthFailure        Kind = "auth_failure"
	KindParseFailure       Kind = "parse_failure"
	KindCircuitOpen        Kind = "circuit_open"
	KindBudgetExceeded     Kind = "budget_exceeded"
	KindNoSourcesAvailable Kind = "no_sources_available"
	KindCancelled          Kind = "cancelled"
	KindInternal           Kind = "internal"
)

// Error is the tagged variant returned across all core boundaries.
// Components never panic or throw for ordinary failure modes; panics
// are reserved for invariant violations the caller cannot recover from.
type Error struct {
	Kind     Kind
	Provider string // empty when not provider-scoped
	Message  string
	Err      error // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s[%s]: %s", e.Kind, e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether e is non-nil and of kind k.
func (e *Error) IsKind(k Kind) bool { return e != nil && e.Kind == k }

func New(kind Kind, provider, message string, cause error) *Error {
	return &Error{Kind: kind, Provider: provider, Message: message, Err: cause}
}

func Transport(provider, message string, cause error) *Error {
	return New(KindTransport, provider, message, cause)
}

func RateLimitedUpstream(provider, message string, cause error) *Error {
	return New(KindRateLimitedUpstream, provider, message, cause)
}

func AuthFailure(provider, message string, cause error) *Error {
	return New(KindAuthFailure, provider, message, cause)
}

func ParseFailure(provider, message string, cause error) *Error {
	return New(KindParseFailure, provider, message, cause)
}

func CircuitOpen(provider string) *Error {
	return New(KindCircuitOpen, provider, "circuit is open", nil)
}

func BudgetExceeded(owner string) *Error {
	return New(KindBudgetExceeded, "", fmt.Sprintf("budget exceeded for owner %s", owner), nil)
}

func NoSourcesAvailable(message string) *Error {
	return New(KindNoSourcesAvailable, "", message, nil)
}

func Cancelled(message string) *Error {
	return New(KindCancelled, "", message, nil)
}

func Internal(message string, cause error) *Error {
	return New(KindInternal, "", message, cause)
}

// KindOf extracts the Kind from err if it is (or wraps) a *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Kind, true
	}
	return "", false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Fatal reports whether an error kind is allowed to escape the
// Orchestrator boundary to the Job Controller (spec.md §7 Propagation).
func Fatal(err error) bool {
	k, ok := KindOf(err)
	if !ok {
		return false
	}
	switch k {
	case KindNoSourcesAvailable, KindCancelled, KindInternal:
		return true
	default:
		return false
	}
}
