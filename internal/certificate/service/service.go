// Package service orchestrates certificate fetches and revocations over the
// ledger, the certificate cache, and the in-memory collection.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"certledger/internal/certificate/metrics"
	"certledger/internal/certificate/models"
	"certledger/internal/certificate/ports"
	"certledger/internal/certificate/store"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/platform/audit"
	"certledger/pkg/platform/sentinel"
)

const (
	defaultConcurrency = 8
	defaultRecentLimit = 10
	defaultMaxBatch    = 1000
)

// Normalizer builds one certificate from the ledger. (nil, nil) means the
// token has no certificate.
type Normalizer interface {
	Normalize(ctx context.Context, tokenID uint64) (*models.Certificate, error)
}

// Service is the certificate fetch orchestrator and revocation coordinator.
type Service struct {
	ledger     ports.LedgerGateway
	normalizer Normalizer
	cache      *store.CertificateCache
	collection *store.Collection
	signers    ports.SignerProvider
	auditor    audit.Emitter

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	concurrency int
	recentLimit int
	maxBatch    int

	fetching atomic.Int32
	revoking *LoadingSet
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithAuditor sets the sink for revocation and fetch audit events.
func WithAuditor(e audit.Emitter) Option {
	return func(s *Service) {
		s.auditor = e
	}
}

// WithConcurrency bounds parallel normalizations within one fetch.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithRecentLimit sets the batch size FetchRecent uses when none is given.
func WithRecentLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.recentLimit = n
		}
	}
}

// WithMaxBatch caps how many owner indices a single fetch enumerates.
func WithMaxBatch(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBatch = n
		}
	}
}

// New creates a Service. All collaborators are required.
func New(
	ledger ports.LedgerGateway,
	normalizer Normalizer,
	cache *store.CertificateCache,
	collection *store.Collection,
	signers ports.SignerProvider,
	opts ...Option,
) (*Service, error) {
	if ledger == nil {
		return nil, errors.New("ledger gateway is required")
	}
	if normalizer == nil {
		return nil, errors.New("normalizer is required")
	}
	if cache == nil {
		return nil, errors.New("certificate cache is required")
	}
	if collection == nil {
		return nil, errors.New("certificate collection is required")
	}
	if signers == nil {
		return nil, errors.New("signer provider is required")
	}

	s := &Service{
		ledger:      ledger,
		normalizer:  normalizer,
		cache:       cache,
		collection:  collection,
		signers:     signers,
		logger:      slog.Default(),
		tracer:      otel.Tracer("certledger/service"),
		concurrency: defaultConcurrency,
		recentLimit: defaultRecentLimit,
		maxBatch:    defaultMaxBatch,
		revoking:    NewLoadingSet(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Loading reports whether a fetch is running.
func (s *Service) Loading() bool {
	return s.fetching.Load() > 0
}

// RevocationLoading reports whether a revocation of id is in flight.
func (s *Service) RevocationLoading(id string) bool {
	return s.revoking.IsLoading(id)
}

// RevocationsInFlight returns the per-id loading map.
func (s *Service) RevocationsInFlight() map[string]bool {
	return s.revoking.Snapshot()
}

// beginFetch raises the loading flag; the returned func lowers it.
func (s *Service) beginFetch() func() {
	s.fetching.Add(1)
	return func() { s.fetching.Add(-1) }
}

// Certificates returns the full in-memory set.
func (s *Service) Certificates() []models.Certificate {
	return s.collection.All()
}

// Snapshot returns the current collection view.
func (s *Service) Snapshot() *store.View {
	return s.collection.Snapshot()
}

// Search updates the visible projection and returns it.
func (s *Service) Search(query, status string) ([]models.Certificate, error) {
	st, ok := models.ParseStatus(status)
	if !ok {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "status must be one of all, verified, revoked, pending")
	}
	return s.collection.SetFilter(models.Filter{Query: strings.TrimSpace(query), Status: st}), nil
}

// Stats summarizes the in-memory set.
func (s *Service) Stats() models.Stats {
	return s.collection.Stats()
}

// Select focuses a certificate already in the collection.
func (s *Service) Select(id string) (models.Certificate, error) {
	if err := s.collection.Select(id); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.Certificate{}, dErrors.New(dErrors.CodeNotFound, "certificate is not loaded")
		}
		return models.Certificate{}, err
	}
	cert, _ := s.collection.Selected()
	return cert, nil
}

// Get returns one certificate. A cache hit is returned verbatim; refresh
// bypasses the cache and re-reads the ledger.
func (s *Service) Get(ctx context.Context, id string, refresh bool) (*models.Certificate, error) {
	tokenID, err := models.ParseID(id)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "certificate id must be a token number")
	}
	id = models.IDForToken(tokenID)

	if !refresh {
		if cert, err := s.cache.Get(ctx, id); err == nil {
			return cert, nil
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "certificate cache read failed", "id", id, "error", err)
		}
	}

	cert, err := s.normalizer.Normalize(ctx, tokenID)
	if err != nil {
		return nil, ledgerFailure(err, "failed to read certificate from ledger")
	}
	if cert == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "certificate not found")
	}

	stored := s.cache.PutQuietly(ctx, *cert)
	if err := s.collection.ReplaceOne(stored); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, err
	}
	return &stored, nil
}
