// Package ipfs resolves certificate metadata documents from an IPFS HTTP gateway.
package ipfs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/singleflight"

	"certledger/internal/certificate/models"
	"certledger/internal/certificate/ports"
	"certledger/pkg/platform/circuit"
	"certledger/pkg/platform/sentinel"
)

const defaultTimeout = 8 * time.Second

// ErrCircuitOpen is returned while the gateway breaker rejects calls.
var ErrCircuitOpen = fmt.Errorf("ipfs gateway circuit open: %w", sentinel.ErrUnavailable)

// Resolver fetches metadata documents by CID. Concurrent lookups of the same
// CID share one gateway request.
type Resolver struct {
	http       *resty.Client
	gatewayURL string
	breaker    *circuit.Breaker
	group      singleflight.Group
	logger     *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.http.SetTimeout(d)
		}
	}
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(b *circuit.Breaker) Option {
	return func(r *Resolver) {
		if b != nil {
			r.breaker = b
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a resolver for the gateway at gatewayURL (e.g. https://ipfs.io).
func New(gatewayURL string, opts ...Option) *Resolver {
	base := strings.TrimRight(gatewayURL, "/")
	r := &Resolver{
		http: resty.New().
			SetBaseURL(base).
			SetTimeout(defaultTimeout).
			SetHeader("Accept", "application/json"),
		gatewayURL: base,
		breaker:    circuit.New("ipfs", circuit.WithCooldown(30*time.Second)),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ ports.MetadataResolver = (*Resolver)(nil)

// Resolve returns the metadata document for cid, or (nil, nil) when the
// document is empty.
func (r *Resolver) Resolve(ctx context.Context, cid string) (models.Metadata, error) {
	cid = models.ContentAddress(cid)
	if cid == "" {
		return nil, nil
	}
	if !r.breaker.Allow() {
		return nil, ErrCircuitOpen
	}

	// The shared fetch outlives any single caller; the client timeout bounds it.
	ch := r.group.DoChan(cid, func() (any, error) {
		return r.fetch(context.WithoutCancel(ctx), cid)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	doc, _ := res.Val.(models.Metadata)
	if res.Shared {
		// callers may mutate their copy
		doc = cloneMetadata(doc)
	}
	return doc, nil
}

func (r *Resolver) fetch(ctx context.Context, cid string) (models.Metadata, error) {
	resp, err := r.http.R().SetContext(ctx).Get("/ipfs/" + cid)
	if err != nil || resp.StatusCode() >= http.StatusInternalServerError {
		r.recordFailure(cid)
		if err == nil {
			err = fmt.Errorf("gateway returned %d", resp.StatusCode())
		}
		return nil, fmt.Errorf("fetch metadata %s: %w: %w", cid, sentinel.ErrUnavailable, err)
	}
	r.recordSuccess()

	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("metadata %s: %w", cid, sentinel.ErrNotFound)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("metadata %s: gateway returned %d", cid, resp.StatusCode())
	}

	body := bytes.TrimSpace(resp.Body())
	if len(body) == 0 {
		return nil, nil
	}
	var doc models.Metadata
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode metadata %s: %w", cid, err)
	}
	if doc.Empty() {
		return nil, nil
	}
	return doc, nil
}

func (r *Resolver) recordFailure(cid string) {
	if _, change := r.breaker.RecordFailure(); change.Opened {
		r.logger.Warn("ipfs gateway circuit opened", "gateway", r.gatewayURL, "cid", cid)
	}
}

func (r *Resolver) recordSuccess() {
	if _, change := r.breaker.RecordSuccess(); change.Closed {
		r.logger.Info("ipfs gateway circuit closed", "gateway", r.gatewayURL)
	}
}

// ImageURLFor returns a displayable image location. An explicit imageCID
// wins; otherwise the document's "image" field is used, with web URLs passed
// through and content addresses routed via the gateway.
func (r *Resolver) ImageURLFor(meta models.Metadata, imageCID string) string {
	if cid := models.ContentAddress(imageCID); cid != "" {
		return r.gatewayURL + "/ipfs/" + cid
	}
	image := meta.String("image")
	if image == "" {
		return ""
	}
	lower := strings.ToLower(image)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return image
	}
	return r.gatewayURL + "/ipfs/" + models.ContentAddress(image)
}

// Health reports whether the gateway breaker is accepting calls.
func (r *Resolver) Health(context.Context) error {
	if r.breaker.IsOpen() && !r.breaker.Allow() {
		return ErrCircuitOpen
	}
	return nil
}

func cloneMetadata(m models.Metadata) models.Metadata {
	if m == nil {
		return nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return m
	}
	var out models.Metadata
	if err := json.Unmarshal(raw, &out); err != nil {
		return m
	}
	return out
}
