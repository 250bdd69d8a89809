package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	audit "certledger/pkg/platform/audit"
)

// Schema creates the audit table when missing. Deployments with managed
// migrations can skip EnsureSchema and apply this DDL themselves.
const Schema = `
CREATE TABLE IF NOT EXISTS certificate_audit_events (
	id             UUID PRIMARY KEY,
	category       TEXT NOT NULL,
	action         TEXT NOT NULL,
	certificate_id TEXT NOT NULL,
	token_id       BIGINT NOT NULL,
	actor_id       TEXT NOT NULL DEFAULT '',
	reason         TEXT NOT NULL DEFAULT '',
	tx_hash        TEXT NOT NULL DEFAULT '',
	outcome        TEXT NOT NULL DEFAULT '',
	request_id     TEXT NOT NULL DEFAULT '',
	client         TEXT NOT NULL DEFAULT '',
	occurred_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS certificate_audit_events_certificate_idx
	ON certificate_audit_events (certificate_id, occurred_at);
`

// Store implements audit.Store on PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema applies Schema.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply audit schema: %w", err)
	}
	return nil
}

// Append inserts an audit event. Events without an ID get a fresh UUID, and
// re-appending the same ID is ignored.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()
	if event.ID != "" {
		parsed, err := uuid.Parse(event.ID)
		if err != nil {
			return fmt.Errorf("parse audit event id: %w", err)
		}
		eventID = parsed
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	category := event.Category
	if category == "" {
		category = audit.AuditEvent(event.Action).Category()
	}

	query := `
		INSERT INTO certificate_audit_events (
			id, category, action, certificate_id, token_id, actor_id,
			reason, tx_hash, outcome, request_id, client, occurred_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		eventID,
		string(category),
		event.Action,
		event.CertificateID,
		int64(event.TokenID),
		event.ActorID,
		event.Reason,
		event.TxHash,
		event.Outcome,
		event.RequestID,
		event.Client,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

const selectEvents = `
	SELECT id, category, action, certificate_id, token_id, actor_id,
		reason, tx_hash, outcome, request_id, client, occurred_at
	FROM certificate_audit_events
`

// ListByCertificate returns events for one certificate, oldest first.
func (s *Store) ListByCertificate(ctx context.Context, certificateID string) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		selectEvents+`WHERE certificate_id = $1 ORDER BY occurred_at ASC`, certificateID)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	return scanEvents(rows)
}

// ListByCertificates returns events for any of the given certificates,
// oldest first.
func (s *Store) ListByCertificates(ctx context.Context, certificateIDs []string) ([]audit.Event, error) {
	if len(certificateIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		selectEvents+`WHERE certificate_id = ANY($1) ORDER BY occurred_at ASC`, pq.Array(certificateIDs))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			e        audit.Event
			id       uuid.UUID
			category string
			tokenID  int64
		)
		if err := rows.Scan(&id, &category, &e.Action, &e.CertificateID, &tokenID, &e.ActorID,
			&e.Reason, &e.TxHash, &e.Outcome, &e.RequestID, &e.Client, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.ID = id.String()
		e.Category = audit.EventCategory(category)
		e.TokenID = uint64(tokenID)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
