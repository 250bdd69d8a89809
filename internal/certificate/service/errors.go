package service

import (
	"errors"
	"fmt"

	"certledger/internal/ledger"
	dErrors "certledger/pkg/domain-errors"
)

// RevocationKind classifies revocation failures for operators.
type RevocationKind string

const (
	RevocationUnauthorized       RevocationKind = "unauthorized"
	RevocationNotFound           RevocationKind = "not_found"
	RevocationConfirmationFailed RevocationKind = "confirmation_failed"
	RevocationAdminRequired      RevocationKind = "admin_required"
	RevocationUnknown            RevocationKind = "unknown"
)

var revocationMessages = map[RevocationKind]string{
	RevocationUnauthorized:       "the connected account is not authorized to revoke certificates",
	RevocationNotFound:           "the certificate no longer exists on the ledger",
	RevocationConfirmationFailed: "the ledger rejected the role or ownership confirmation",
	RevocationAdminRequired:      "revoking this certificate requires an administrator account",
}

// RevocationError is a classified revocation failure. The certificate's
// cached and in-memory state are unchanged when it is returned.
type RevocationError struct {
	Kind    RevocationKind
	Message string
	Err     error
}

func (e *RevocationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("revocation %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("revocation %s: %s", e.Kind, e.Message)
}

func (e *RevocationError) Unwrap() error {
	return e.Err
}

// Code maps the kind onto a domain error code.
func (e *RevocationError) Code() dErrors.Code {
	switch e.Kind {
	case RevocationUnauthorized:
		return dErrors.CodeUnauthorized
	case RevocationAdminRequired, RevocationConfirmationFailed:
		return dErrors.CodeForbidden
	case RevocationNotFound:
		return dErrors.CodeNotFound
	default:
		return dErrors.CodeInternal
	}
}

// RevocationKindOf returns the kind of a revocation failure, or "" when err
// is not one.
func RevocationKindOf(err error) RevocationKind {
	var re *RevocationError
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

// classifyRevocation converts a ledger or signer failure into a
// RevocationError using the structured ledger kind.
func classifyRevocation(err error) *RevocationError {
	var re *RevocationError
	if errors.As(err, &re) {
		return re
	}

	var kind RevocationKind
	switch {
	case dErrors.HasCode(err, dErrors.CodeUnauthorized):
		kind = RevocationUnauthorized
	default:
		switch ledger.KindOf(err) {
		case ledger.KindUnauthorized:
			kind = RevocationUnauthorized
		case ledger.KindNotFound:
			kind = RevocationNotFound
		case ledger.KindConfirmationFailed:
			kind = RevocationConfirmationFailed
		case ledger.KindAdminRequired:
			kind = RevocationAdminRequired
		default:
			kind = RevocationUnknown
		}
	}

	msg, ok := revocationMessages[kind]
	if !ok {
		msg = "revocation failed: " + err.Error()
	}
	return &RevocationError{Kind: kind, Message: msg, Err: err}
}

// ledgerFailure wraps a whole-call ledger failure with a domain code.
func ledgerFailure(err error, message string) error {
	switch ledger.KindOf(err) {
	case ledger.KindUnavailable:
		return dErrors.Wrap(err, dErrors.CodeUnavailable, message)
	case ledger.KindNotFound:
		return dErrors.Wrap(err, dErrors.CodeNotFound, message)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, message)
	}
}
