package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"certledger/internal/certificate/models"
	"certledger/internal/ledger"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/platform/audit"
	"certledger/pkg/platform/sentinel"
	"certledger/pkg/requestcontext"
)

const (
	modeOwner  = "owner"
	modeRecent = "recent"
)

type fetchOptions struct {
	bypassCache bool
}

// FetchOption adjusts a single fetch.
type FetchOption func(*fetchOptions)

// BypassCache re-reads every certificate from the ledger.
func BypassCache() FetchOption {
	return func(o *fetchOptions) { o.bypassCache = true }
}

// FetchByOwner enumerates the owner's certificates in index order. An index
// whose lookup fails is logged and skipped. On success the collection is
// replaced with the result.
func (s *Service) FetchByOwner(ctx context.Context, owner string, opts ...FetchOption) ([]models.Certificate, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "owner address is required")
	}
	o := applyFetchOptions(opts)

	done := s.beginFetch()
	defer done()
	start := time.Now()
	defer func() { s.metrics.ObserveFetch(modeOwner, time.Since(start)) }()

	ctx, span := s.tracer.Start(ctx, "certificate.fetch_by_owner",
		trace.WithAttributes(attribute.String("owner", owner)))
	defer span.End()

	balance, err := s.ledger.BalanceOf(ctx, owner)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, ledgerFailure(err, "failed to read owner balance")
	}
	count := int(min(balance, uint64(s.maxBatch)))
	truncated := uint64(count) < balance
	if truncated {
		s.logger.WarnContext(ctx, "owner balance exceeds batch cap",
			"owner", owner, "balance", balance, "cap", s.maxBatch)
	}
	span.SetAttributes(attribute.Int("balance", count))

	certs, err := s.fetchBatch(ctx, modeOwner, count, o, func(ctx context.Context, i int) (uint64, error) {
		return s.ledger.TokenOfOwnerByIndex(ctx, owner, uint64(i))
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	stored := s.collection.Replace(certs)
	s.collection.MarkRefreshed(requestcontext.Now(ctx), truncated)
	s.emitLoaded(ctx, modeOwner, owner, len(stored))
	return stored, nil
}

// FetchRecent loads the most recent certificates. A non-positive limit uses
// the configured default. An out-of-bounds answer from the ledger means no
// recent certificates. Pagination is not supported, so the has-more flag is
// cleared.
func (s *Service) FetchRecent(ctx context.Context, limit int, opts ...FetchOption) ([]models.Certificate, error) {
	if limit <= 0 {
		limit = s.recentLimit
	}
	o := applyFetchOptions(opts)

	done := s.beginFetch()
	defer done()
	start := time.Now()
	defer func() { s.metrics.ObserveFetch(modeRecent, time.Since(start)) }()

	ctx, span := s.tracer.Start(ctx, "certificate.fetch_recent",
		trace.WithAttributes(attribute.Int("limit", limit)))
	defer span.End()

	ids, err := s.ledger.GetRecentCertificates(ctx, limit)
	switch {
	case ledger.IsKind(err, ledger.KindOutOfBounds):
		s.logger.InfoContext(ctx, "no recent certificates", "limit", limit)
		ids = nil
	case err != nil:
		span.SetStatus(codes.Error, err.Error())
		return nil, ledgerFailure(err, "failed to read recent certificates")
	}

	certs, err := s.fetchBatch(ctx, modeRecent, len(ids), o, func(_ context.Context, i int) (uint64, error) {
		return ids[i], nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	stored := s.collection.Replace(certs)
	s.collection.MarkRefreshed(requestcontext.Now(ctx), false)
	s.emitLoaded(ctx, modeRecent, "", len(stored))
	return stored, nil
}

// fetchBatch resolves n token ids and loads each, in parallel up to the
// configured concurrency. Failed items are skipped; output keeps index order.
func (s *Service) fetchBatch(
	ctx context.Context,
	mode string,
	n int,
	o fetchOptions,
	tokenAt func(ctx context.Context, i int) (uint64, error),
) ([]models.Certificate, error) {
	results := make([]*models.Certificate, n)

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			tokenID, err := tokenAt(ctx, i)
			if err != nil {
				s.skip(ctx, mode, i, 0, err)
				return nil
			}
			cert, err := s.load(ctx, tokenID, o.bypassCache)
			if err != nil {
				s.skip(ctx, mode, i, tokenID, err)
				return nil
			}
			results[i] = cert
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", mode, err)
	}

	certs := make([]models.Certificate, 0, n)
	for _, c := range results {
		if c != nil {
			certs = append(certs, *c)
		}
	}
	return certs, nil
}

// load returns a cached certificate or normalizes and caches a fresh one.
// (nil, nil) means the token has no certificate.
func (s *Service) load(ctx context.Context, tokenID uint64, bypassCache bool) (*models.Certificate, error) {
	id := models.IDForToken(tokenID)
	if !bypassCache {
		cert, err := s.cache.Get(ctx, id)
		if err == nil {
			return cert, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "certificate cache read failed", "id", id, "error", err)
		}
	}

	cert, err := s.normalizer.Normalize(ctx, tokenID)
	if err != nil || cert == nil {
		return nil, err
	}
	stored := s.cache.PutQuietly(ctx, *cert)
	return &stored, nil
}

func (s *Service) skip(ctx context.Context, mode string, index int, tokenID uint64, err error) {
	s.metrics.IncrementSkipped(mode)
	s.logger.WarnContext(ctx, "skipping certificate",
		"mode", mode,
		"index", index,
		"token_id", tokenID,
		"error", err,
	)
}

func (s *Service) emitLoaded(ctx context.Context, mode, owner string, count int) {
	if s.auditor == nil {
		return
	}
	event := audit.Event{
		Action:    string(audit.EventCertificatesLoaded),
		ActorID:   owner,
		Reason:    mode,
		Outcome:   fmt.Sprintf("%d certificates", count),
		RequestID: requestcontext.RequestID(ctx),
		Client:    requestcontext.Client(ctx),
		Timestamp: requestcontext.Now(ctx),
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "action", event.Action, "error", err)
	}
}

func applyFetchOptions(opts []FetchOption) fetchOptions {
	var o fetchOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
