// Package kafka publishes audit events to a Kafka topic, keyed by
// certificate id so all events for one certificate stay ordered.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	audit "certledger/pkg/platform/audit"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer is the subset of *kgo.Client used here.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

type Publisher struct {
	producer Producer
	topic    string
}

func New(producer Producer, topic string) *Publisher {
	return &Publisher{producer: producer, topic: topic}
}

type payload struct {
	ID            string `json:"id"`
	Category      string `json:"category"`
	Action        string `json:"action"`
	CertificateID string `json:"certificateId"`
	TokenID       uint64 `json:"tokenId"`
	ActorID       string `json:"actorId,omitempty"`
	Reason        string `json:"reason,omitempty"`
	TxHash        string `json:"txHash,omitempty"`
	Outcome       string `json:"outcome,omitempty"`
	RequestID     string `json:"requestId,omitempty"`
	Client        string `json:"client,omitempty"`
	Timestamp     string `json:"timestamp"`
}

// Emit produces the event synchronously.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	category := event.Category
	if category == "" {
		category = audit.AuditEvent(event.Action).Category()
	}
	body, err := json.Marshal(payload{
		ID:            event.ID,
		Category:      string(category),
		Action:        event.Action,
		CertificateID: event.CertificateID,
		TokenID:       event.TokenID,
		ActorID:       event.ActorID,
		Reason:        event.Reason,
		TxHash:        event.TxHash,
		Outcome:       event.Outcome,
		RequestID:     event.RequestID,
		Client:        event.Client,
		Timestamp:     event.Timestamp.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.CertificateID),
		Value: body,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(event.Action)},
		},
	}
	if err := p.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}
