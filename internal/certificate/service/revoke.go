package service

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"certledger/internal/certificate/models"
	"certledger/internal/ledger"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/platform/audit"
	"certledger/pkg/platform/sentinel"
	"certledger/pkg/requestcontext"
)

// RevokeResult is the outcome of a confirmed revocation.
type RevokeResult struct {
	Certificate models.Certificate `json:"certificate"`
	TxHash      string             `json:"txHash"`
	// CloseRevocation tells the caller to dismiss its revocation prompt.
	CloseRevocation bool `json:"closeRevocation"`
}

// Revoke revokes cert on the ledger, waits for confirmation, and then
// updates the cache entry and the collection entry with the same id.
// On failure nothing local is modified and a *RevocationError is returned.
// The per-id loading flag is cleared on every exit path.
func (s *Service) Revoke(ctx context.Context, cert models.Certificate, reason string) (*RevokeResult, error) {
	reason = strings.TrimSpace(reason)
	if cert.ID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "certificate id is required")
	}
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "revocation reason is required")
	}
	tokenID, err := models.ParseID(cert.ID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "certificate id must be a token number")
	}
	cert.ID = models.IDForToken(tokenID)

	if !s.revoking.Acquire(cert.ID) {
		return nil, dErrors.New(dErrors.CodeConflict, "a revocation of this certificate is already in progress")
	}
	defer s.revoking.Release(cert.ID)
	s.metrics.RevocationStarted()
	defer s.metrics.RevocationFinished()

	ctx, span := s.tracer.Start(ctx, "certificate.revoke",
		trace.WithAttributes(attribute.String("certificate_id", cert.ID)))
	defer span.End()

	signer, err := s.signers.GetSigner(ctx)
	if err != nil {
		return nil, s.revocationFailed(ctx, span, cert, reason, "", err)
	}

	tx, err := s.ledger.Connect(signer).RevokeCertificate(ctx, tokenID, reason)
	if err != nil {
		return nil, s.revocationFailed(ctx, span, cert, reason, signer.Address(), err)
	}
	s.logger.InfoContext(ctx, "revocation submitted", "id", cert.ID, "tx_hash", tx.Hash())

	receipt, err := tx.Wait(ctx)
	if err != nil {
		return nil, s.revocationFailed(ctx, span, cert, reason, signer.Address(), err)
	}
	if !receipt.Succeeded() {
		err := ledger.NewError(ledger.KindUnknown, "waitForReceipt", "transaction reverted", nil)
		return nil, s.revocationFailed(ctx, span, cert, reason, signer.Address(), err)
	}
	txHash := tx.Hash()
	if receipt.TxHash != "" {
		txHash = receipt.TxHash
	}

	updated := cert.WithRevocation(reason)
	stored, err := s.cache.Put(ctx, updated)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to cache revoked certificate", "id", cert.ID, "error", err)
		stored = updated
	}
	if err := s.collection.ReplaceOne(stored); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		s.logger.ErrorContext(ctx, "failed to update collection", "id", cert.ID, "error", err)
	}

	s.metrics.IncrementRevocation("ok")
	s.emitRevocation(ctx, audit.EventCertificateRevoked, stored, tokenID, signer.Address(), reason, txHash, "confirmed")
	s.logger.InfoContext(ctx, "certificate revoked", "id", cert.ID, "tx_hash", txHash)

	return &RevokeResult{Certificate: stored, TxHash: txHash, CloseRevocation: true}, nil
}

// RevokeByID resolves id from the collection, the cache, or the ledger, and
// revokes it.
func (s *Service) RevokeByID(ctx context.Context, id, reason string) (*RevokeResult, error) {
	if cert, ok := s.collection.Get(strings.TrimSpace(id)); ok {
		return s.Revoke(ctx, cert, reason)
	}
	cert, err := s.Get(ctx, id, false)
	if err != nil {
		return nil, err
	}
	return s.Revoke(ctx, *cert, reason)
}

func (s *Service) revocationFailed(
	ctx context.Context,
	span trace.Span,
	cert models.Certificate,
	reason, actor string,
	err error,
) error {
	re := classifyRevocation(err)
	span.SetStatus(codes.Error, re.Error())
	s.metrics.IncrementRevocation(string(re.Kind))
	s.logger.ErrorContext(ctx, "revocation failed",
		"id", cert.ID,
		"kind", re.Kind,
		"error", err,
	)
	if re.Kind == RevocationUnauthorized || re.Kind == RevocationAdminRequired {
		s.emitRevocation(ctx, audit.EventRevocationRejected, cert, cert.TokenID, actor, reason, "", string(re.Kind))
	}
	return re
}

func (s *Service) emitRevocation(
	ctx context.Context,
	action audit.AuditEvent,
	cert models.Certificate,
	tokenID uint64,
	actor, reason, txHash, outcome string,
) {
	if s.auditor == nil {
		return
	}
	event := audit.Event{
		Action:        string(action),
		CertificateID: cert.ID,
		TokenID:       tokenID,
		ActorID:       actor,
		Reason:        reason,
		TxHash:        txHash,
		Outcome:       outcome,
		RequestID:     requestcontext.RequestID(ctx),
		Client:        requestcontext.Client(ctx),
		Timestamp:     requestcontext.Now(ctx),
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "action", event.Action, "error", err)
	}
}
