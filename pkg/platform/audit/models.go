package audit

import (
	"context"
	"errors"
	"time"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance,
	// such as a certificate being revoked on the ledger.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers rejected privileged operations
	// (unauthorized or non-admin revocation attempts).
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity that can be sampled.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from the certificate services to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID            string
	Category      EventCategory
	Timestamp     time.Time
	Action        string
	CertificateID string
	TokenID       uint64
	// ActorID is the signer address that authorized the write.
	ActorID   string
	Reason    string
	TxHash    string
	Outcome   string
	RequestID string
	// Client is a short browser/OS summary of the caller, never the raw User-Agent.
	Client string
}

type AuditEvent string

const (
	EventCertificateRevoked AuditEvent = "certificate_revoked"
	EventRevocationRejected AuditEvent = "certificate_revocation_rejected"
	EventCertificatesLoaded AuditEvent = "certificates_loaded"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventCertificateRevoked: CategoryCompliance,
	EventRevocationRejected: CategorySecurity,
	EventCertificatesLoaded: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByCertificate(ctx context.Context, certificateID string) ([]Event, error)
}

// Emitter is the write side consumed by services.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// Fanout emits to every emitter and joins their errors. A failing sink does
// not stop delivery to the remaining sinks.
type Fanout []Emitter

func (f Fanout) Emit(ctx context.Context, event Event) error {
	var errs []error
	for _, e := range f {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
