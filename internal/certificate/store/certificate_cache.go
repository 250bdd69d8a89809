package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"certledger/internal/certificate/metrics"
	"certledger/internal/certificate/models"
	"certledger/internal/certificate/ports"
	"certledger/pkg/platform/sentinel"
)

// DefaultNamespace prefixes certificate cache keys.
const DefaultNamespace = "certificate_cache"

// CertificateCache stores serialized certificates under <namespace>_<id>.
// Entries are returned verbatim; freshness belongs to the backing store.
type CertificateCache struct {
	store     ports.CacheStore
	namespace string
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// CacheOption configures a CertificateCache.
type CacheOption func(*CertificateCache)

func WithNamespace(ns string) CacheOption {
	return func(c *CertificateCache) {
		if ns != "" {
			c.namespace = ns
		}
	}
}

func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *CertificateCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithCacheMetrics(m *metrics.Metrics) CacheOption {
	return func(c *CertificateCache) {
		c.metrics = m
	}
}

// NewCertificateCache wraps store.
func NewCertificateCache(store ports.CacheStore, opts ...CacheOption) *CertificateCache {
	c := &CertificateCache{
		store:     store,
		namespace: DefaultNamespace,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key returns the cache key for a certificate id.
func (c *CertificateCache) Key(id string) string {
	return c.namespace + "_" + id
}

// Get returns the cached certificate or sentinel.ErrNotFound.
// An undecodable entry is reported as a miss.
func (c *CertificateCache) Get(ctx context.Context, id string) (*models.Certificate, error) {
	raw, err := c.store.Get(ctx, c.Key(id))
	if errors.Is(err, sentinel.ErrNotFound) {
		c.metrics.IncrementCacheLookup("miss")
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		c.metrics.IncrementCacheLookup("error")
		return nil, fmt.Errorf("read certificate %s: %w", id, err)
	}

	var cert models.Certificate
	if err := json.Unmarshal(raw, &cert); err != nil {
		c.logger.WarnContext(ctx, "discarding undecodable cache entry", "key", c.Key(id), "error", err)
		c.metrics.IncrementCacheLookup("miss")
		return nil, sentinel.ErrNotFound
	}
	c.metrics.IncrementCacheLookup("hit")
	return &cert, nil
}

// Put overwrites the entry for cert.ID. A previously cached revocation is
// carried forward; the stored value is returned.
func (c *CertificateCache) Put(ctx context.Context, cert models.Certificate) (models.Certificate, error) {
	if prev, err := c.Get(ctx, cert.ID); err == nil {
		cert = models.KeepRevocation(prev, cert)
	}
	raw, err := json.Marshal(cert)
	if err != nil {
		return cert, fmt.Errorf("encode certificate %s: %w", cert.ID, err)
	}
	if err := c.store.Set(ctx, c.Key(cert.ID), raw); err != nil {
		return cert, fmt.Errorf("write certificate %s: %w", cert.ID, err)
	}
	return cert, nil
}

// PutQuietly is Put for fire-and-forget writes: failures are logged only.
func (c *CertificateCache) PutQuietly(ctx context.Context, cert models.Certificate) models.Certificate {
	stored, err := c.Put(ctx, cert)
	if err != nil {
		c.logger.WarnContext(ctx, "certificate cache write failed", "id", cert.ID, "error", err)
	}
	return stored
}

// Health pings the backing store when it supports it.
func (c *CertificateCache) Health(ctx context.Context) error {
	if h, ok := c.store.(interface{ Health(context.Context) error }); ok {
		return h.Health(ctx)
	}
	return nil
}
