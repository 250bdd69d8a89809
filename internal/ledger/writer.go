package ledger

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"certledger/internal/certificate/ports"
)

// Writer submits state changes on behalf of a bound signer.
type Writer struct {
	client *Client
	signer ports.Signer
}

var _ ports.LedgerWriter = (*Writer)(nil)

type revokeRequest struct {
	Reason string `json:"reason"`
	From   string `json:"from"`
}

type submitResult struct {
	TxHash string `json:"txHash"`
}

// RevokeCertificate submits a revocation. The returned transaction is not
// yet confirmed.
func (w *Writer) RevokeCertificate(ctx context.Context, tokenID uint64, reason string) (ports.PendingTx, error) {
	const op = "revokeCertificate"
	if w.signer == nil {
		return nil, NewError(KindUnauthorized, op, "no signer bound", nil)
	}
	token, err := w.signer.Token(ctx)
	if err != nil {
		return nil, NewError(KindUnauthorized, op, "signer refused to authorize", err)
	}

	resp, err := w.client.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(revokeRequest{Reason: reason, From: w.signer.Address()}).
		Post("/certificates/" + formatID(tokenID) + "/revoke")

	var res submitResult
	if err := w.client.decode(op, resp, err, &res); err != nil {
		return nil, err
	}
	if strings.TrimSpace(res.TxHash) == "" {
		return nil, NewError(KindBadData, op, "bridge returned no transaction hash", nil)
	}
	return &pendingTx{client: w.client, hash: res.TxHash}, nil
}

type pendingTx struct {
	client *Client
	hash   string
}

func (p *pendingTx) Hash() string { return p.hash }

type receiptResult struct {
	TxHash       string      `json:"txHash"`
	BlockNumber  json.Number `json:"blockNumber"`
	Status       json.Number `json:"status"`
	RevertReason string      `json:"revertReason"`
}

// Wait polls the bridge until the transaction is mined or ctx is done.
// A reverted transaction is reported as an error classified from its reason.
func (p *pendingTx) Wait(ctx context.Context) (*ports.Receipt, error) {
	const op = "waitForReceipt"
	ticker := time.NewTicker(p.client.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := p.poll(ctx)
		if err != nil {
			return nil, err
		}
		if receipt != nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, NewError(KindUnavailable, op, "gave up waiting for confirmation", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (p *pendingTx) poll(ctx context.Context) (*ports.Receipt, error) {
	const op = "waitForReceipt"
	resp, err := p.client.http.R().
		SetContext(ctx).
		SetPathParam("hash", p.hash).
		Get("/transactions/{hash}/receipt")

	var res *receiptResult
	if err := p.client.decode(op, resp, err, &res); err != nil {
		if IsKind(err, KindNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if res == nil {
		return nil, nil
	}

	status, _ := parseUint(op, res.Status)
	block, _ := parseUint(op, res.BlockNumber)
	receipt := &ports.Receipt{TxHash: p.hash, BlockNumber: block, Status: status}
	if !receipt.Succeeded() {
		reason := res.RevertReason
		if reason == "" {
			reason = "reverted without reason"
		}
		return nil, NewError(kindFromReason(reason), op, reason, errReverted)
	}
	return receipt, nil
}
