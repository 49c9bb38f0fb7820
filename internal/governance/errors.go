package governance

import "errors"

// Kind classifies a governance failure.
type Kind string

const (
	KindValidation                 Kind = "validation"
	KindMissingCulturalAuthority   Kind = "missing_cultural_authority"
	KindInvalidStatusForUpdate     Kind = "invalid_status_for_update"
	KindInvalidStatusForTransition Kind = "invalid_status_for_transition"
	KindConsentNotGranted          Kind = "consent_not_granted"
	KindNotFound                   Kind = "not_found"
)

// Error is a governance rule violation with a human-readable reason.
type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return "governance: " + string(e.Kind)
	}
	return "governance: " + e.Reason
}

// Is matches any *Error of the same Kind, so callers can use the
// sentinels below with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrValidation                 = &Error{Kind: KindValidation}
	ErrMissingCulturalAuthority   = &Error{Kind: KindMissingCulturalAuthority}
	ErrInvalidStatusForUpdate     = &Error{Kind: KindInvalidStatusForUpdate}
	ErrInvalidStatusForTransition = &Error{Kind: KindInvalidStatusForTransition}
	ErrConsentNotGranted          = &Error{Kind: KindConsentNotGranted}
	ErrNotFound                   = &Error{Kind: KindNotFound}
)

func newError(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// KindOf returns the Kind of a governance error anywhere in err's chain,
// or "" for infrastructure errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
