// Package normalizer turns ledger records and their metadata documents into
// canonical certificates.
package normalizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"certledger/internal/certificate/metrics"
	"certledger/internal/certificate/models"
	"certledger/internal/certificate/ports"
)

// Normalizer builds certificates from the ledger. It never writes to a
// cache; persisting the result is the caller's job.
type Normalizer struct {
	ledger   ports.LedgerReader
	resolver ports.MetadataResolver
	ids      IDGenerator
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithIDGenerator sets the fallback uniqueId generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(n *Normalizer) {
		if g != nil {
			n.ids = g
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(n *Normalizer) {
		if logger != nil {
			n.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(n *Normalizer) {
		n.metrics = m
	}
}

// New creates a Normalizer. The default fallback generator is RandomIDs.
func New(ledger ports.LedgerReader, resolver ports.MetadataResolver, opts ...Option) *Normalizer {
	n := &Normalizer{
		ledger:   ledger,
		resolver: resolver,
		ids:      RandomIDs{},
		logger:   slog.Default(),
		tracer:   otel.Tracer("certledger/normalizer"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize reads tokenID from the ledger and builds its certificate.
// It returns (nil, nil) when the ledger has no such certificate. Missing or
// broken metadata degrades fields to nil; only a failed or malformed
// getCertificate read is an error.
func (n *Normalizer) Normalize(ctx context.Context, tokenID uint64) (*models.Certificate, error) {
	ctx, span := n.tracer.Start(ctx, "certificate.normalize",
		trace.WithAttributes(attribute.String("token_id", models.IDForToken(tokenID))))
	defer span.End()

	raw, err := n.ledger.GetCertificate(ctx, tokenID)
	if err != nil {
		n.metrics.IncrementNormalize("error")
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("get certificate %d: %w", tokenID, err)
	}
	rec, err := raw.Parse()
	if err != nil {
		n.metrics.IncrementNormalize("error")
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("certificate %d: %w", tokenID, err)
	}
	if rec == nil {
		n.metrics.IncrementNormalize("empty")
		return nil, nil
	}

	uri := n.tokenURI(ctx, tokenID)
	var meta models.Metadata
	if uri != "" {
		meta = n.resolve(ctx, tokenID, uri)
	}
	if meta == nil {
		n.metrics.IncrementNormalize("metadata_missing")
	} else {
		n.metrics.IncrementNormalize("ok")
	}

	cert := n.Build(*rec, tokenID, uri, meta)
	return &cert, nil
}

// tokenURI prefers the token's own URI and falls back to the academic
// record hash. Both reads are best effort.
func (n *Normalizer) tokenURI(ctx context.Context, tokenID uint64) string {
	uri, err := n.ledger.TokenURI(ctx, tokenID)
	if err != nil {
		n.logger.DebugContext(ctx, "token uri unavailable", "token_id", tokenID, "error", err)
	}
	if uri = strings.TrimSpace(uri); uri != "" {
		return uri
	}

	academic, err := n.ledger.AcademicCertificate(ctx, tokenID)
	if err != nil {
		n.logger.DebugContext(ctx, "academic record unavailable", "token_id", tokenID, "error", err)
		return ""
	}
	return strings.TrimSpace(academic.CertificateHash)
}

func (n *Normalizer) resolve(ctx context.Context, tokenID uint64, uri string) models.Metadata {
	cid := models.ContentAddress(uri)
	if cid == "" {
		return nil
	}
	meta, err := n.resolver.Resolve(ctx, cid)
	if err != nil {
		n.logger.WarnContext(ctx, "metadata resolution failed",
			"token_id", tokenID,
			"cid", cid,
			"error", err,
		)
		return nil
	}
	if meta.Empty() {
		return nil
	}
	return meta
}

// Build assembles a certificate from already-fetched inputs. It performs no
// I/O apart from consulting the fallback id generator.
func (n *Normalizer) Build(rec models.LedgerRecord, tokenID uint64, uri string, meta models.Metadata) models.Certificate {
	cert := models.Certificate{
		ID:               models.IDForToken(tokenID),
		TokenID:          tokenID,
		TokenURI:         optional(uri),
		MetadataCID:      optional(models.ContentAddress(uri)),
		Student:          rec.Student,
		Institution:      rec.Institution,
		CourseID:         rec.CourseID,
		CompletionDate:   rec.CompletionDate,
		Grade:            rec.Grade,
		IsVerified:       rec.IsVerified,
		IsRevoked:        rec.IsRevoked,
		RevocationReason: rec.RevocationReason,
		Version:          rec.Version,
		LastUpdateDate:   rec.LastUpdateDate,
		UpdateReason:     rec.UpdateReason,
	}

	if !meta.Empty() {
		cert.Metadata = meta
		imageCID := meta.ImageCID()
		cert.ImageCID = optional(imageCID)
		if n.resolver != nil {
			cert.ImageURL = optional(n.resolver.ImageURLFor(meta, imageCID))
		}
	}

	cert.UniqueID = explicitUniqueID(meta)
	if cert.UniqueID == "" {
		cert.UniqueID = n.ids.FallbackID(tokenID, rec)
	}
	cert.CourseName = courseName(meta, rec.CourseID)
	return cert
}

func explicitUniqueID(meta models.Metadata) string {
	if v := meta.String("uniqueId"); v != "" {
		return v
	}
	if v := meta.String("uniqueCertificateId"); v != "" {
		return v
	}
	return meta.Trait("Certificate ID", "Unique ID")
}

func courseName(meta models.Metadata, courseID string) string {
	if v := meta.String("courseName"); v != "" {
		return v
	}
	if v := meta.Trait("Course Name"); v != "" {
		return v
	}
	if v := meta.String("name"); v != "" {
		return v
	}
	return "Course " + courseID
}

func optional(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}
