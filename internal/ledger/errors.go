package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the normalized failure taxonomy of ledger calls.
type Kind string

const (
	// KindUnauthorized means the signer lacks the role the call requires.
	KindUnauthorized Kind = "unauthorized"

	// KindNotFound means the token does not exist on the ledger.
	KindNotFound Kind = "not_found"

	// KindConfirmationFailed means a role or ownership confirmation was rejected.
	KindConfirmationFailed Kind = "confirmation_failed"

	// KindAdminRequired means the call needs an administrative signer.
	KindAdminRequired Kind = "admin_required"

	// KindOutOfBounds means an index or limit fell outside the stored range.
	KindOutOfBounds Kind = "out_of_bounds"

	// KindUnavailable means the bridge could not be reached or timed out.
	KindUnavailable Kind = "unavailable"

	// KindBadData means the bridge answered with an undecodable payload.
	KindBadData Kind = "bad_data"

	// KindUnknown covers every other failure.
	KindUnknown Kind = "unknown"
)

// Error wraps ledger failures with a normalized kind.
type Error struct {
	Kind       Kind
	Op         string
	Message    string
	Underlying error
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("ledger %s [%s]: %s: %v", e.Op, e.Kind, e.Message, e.Underlying)
	}
	return fmt.Sprintf("ledger %s [%s]: %s", e.Op, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// Retryable reports whether repeating the call might succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindUnavailable
}

// NewError creates a ledger error of the given kind.
func NewError(kind Kind, op, message string, underlying error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Underlying: underlying}
}

// KindOf extracts the kind from err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindUnknown
}

// IsKind reports whether err is a ledger error of kind k.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// revertReasons maps contract revert messages to kinds for bridges that
// forward the raw reason without a code. Matched case-insensitively.
var revertReasons = []struct {
	fragment string
	kind     Kind
}{
	{"out of bounds", KindOutOfBounds},
	{"index out of range", KindOutOfBounds},
	// Role reverts name the missing role, which may itself read "ADMIN_ROLE".
	{"missing role", KindUnauthorized},
	{"accesscontrol", KindUnauthorized},
	{"admin", KindAdminRequired},
	{"confirmation", KindConfirmationFailed},
	{"does not exist", KindNotFound},
	{"nonexistent token", KindNotFound},
	{"not authorized", KindUnauthorized},
	{"unauthorized", KindUnauthorized},
}

func kindFromCode(code string) (Kind, bool) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(code))); k {
	case KindUnauthorized, KindNotFound, KindConfirmationFailed, KindAdminRequired,
		KindOutOfBounds, KindUnavailable, KindBadData:
		return k, true
	}
	return "", false
}

func kindFromReason(reason string) Kind {
	lower := strings.ToLower(reason)
	for _, r := range revertReasons {
		if strings.Contains(lower, r.fragment) {
			return r.kind
		}
	}
	return KindUnknown
}
