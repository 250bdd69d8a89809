// Package publisher emits audit events into an audit.Store, either
// synchronously or through a bounded asynchronous buffer drained on Close.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	audit "certledger/pkg/platform/audit"

	"github.com/google/uuid"
)

// ErrBufferFull is returned when the async buffer cannot accept an event.
var ErrBufferFull = errors.New("audit buffer full")

// ErrClosed is returned by Emit after Close.
var ErrClosed = errors.New("audit publisher closed")

type Publisher struct {
	store  audit.Store
	logger *slog.Logger
	buffer chan audit.Event
	wg     sync.WaitGroup
	once   sync.Once
	mu     sync.RWMutex
	closed atomic.Bool
}

type Option func(*Publisher)

// WithAsyncBuffer switches Emit to non-blocking mode with a buffer of size n.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.buffer = make(chan audit.Event, n)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffer != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit records an event, assigning an ID and timestamp when missing.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}

	if p.buffer == nil {
		return p.store.Append(ctx, event)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed.Load() {
		return ErrClosed
	}
	select {
	case p.buffer <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		p.logger.WarnContext(ctx, "audit buffer full, dropping event",
			"action", event.Action,
			"certificate_id", event.CertificateID,
		)
		return ErrBufferFull
	}
}

// List returns the events stored for a certificate.
func (p *Publisher) List(ctx context.Context, certificateID string) ([]audit.Event, error) {
	return p.store.ListByCertificate(ctx, certificateID)
}

// Close stops accepting events and drains the async buffer.
func (p *Publisher) Close() {
	p.once.Do(func() {
		if p.buffer != nil {
			p.mu.Lock()
			p.closed.Store(true)
			close(p.buffer)
			p.mu.Unlock()
			p.wg.Wait()
		}
	})
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for event := range p.buffer {
		if err := p.store.Append(context.Background(), event); err != nil {
			p.logger.Error("failed to persist audit event",
				"action", event.Action,
				"certificate_id", event.CertificateID,
				"error", err,
			)
		}
	}
}
