package orchestrator

import (
	"errors"
	"fmt"
)

// Kind classifies an Error so the HTTP layer can map it to a status code
// with one switch instead of string matching (§7).
type Kind int

const (
	InvalidInput Kind = iota
	NotFound
	NotReady
	QuotaExceeded
	ProviderFailure
	BroadcasterFailure
	Fatal
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "invalid_input"
	case NotFound:
		return "not_found"
	case NotReady:
		return "not_ready"
	case QuotaExceeded:
		return "quota_exceeded"
	case ProviderFailure:
		return "provider_failure"
	case BroadcasterFailure:
		return "broadcaster_failure"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error carries a Kind alongside the wrapped cause so callers can recover
// it with errors.As instead of sentinel comparison.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Newf builds an *Error of the given Kind with a formatted message.
func Newf(k Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind of err, defaulting to ProviderFailure for an
// error that didn't originate from this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ProviderFailure
}

var (
	ErrNilProvider      = errors.New("required provider is nil")
	ErrContextCancelled = errors.New("operation cancelled by context")
)
