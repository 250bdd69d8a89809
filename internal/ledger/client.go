// Package ledger adapts the certificate contract, exposed through a JSON/HTTP
// bridge, to the certificate ports.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"certledger/internal/certificate/models"
	"certledger/internal/certificate/ports"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultPollInterval = 2 * time.Second
)

// Client reads the certificate contract through the bridge.
type Client struct {
	http         *resty.Client
	pollInterval time.Duration
	logger       *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.SetTimeout(d)
		}
	}
}

// WithPollInterval sets how often pending transactions poll for a receipt.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a bridge client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(defaultTimeout).
			SetHeader("Accept", "application/json"),
		pollInterval: defaultPollInterval,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ ports.LedgerGateway = (*Client)(nil)

type envelope struct {
	Result json.RawMessage `json:"result"`
	Error  *bridgeError    `json:"error"`
}

type bridgeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Reason  string `json:"reason"`
}

// GetCertificate returns the positional certificate tuple. An unknown token
// yields an empty tuple, not an error.
func (c *Client) GetCertificate(ctx context.Context, tokenID uint64) (models.RawRecord, error) {
	var record models.RawRecord
	err := c.get(ctx, "getCertificate", "/certificates/"+formatID(tokenID), nil, &record)
	if IsKind(err, KindNotFound) {
		return models.RawRecord{}, nil
	}
	return record, err
}

// TokenURI returns the metadata pointer recorded for the token.
func (c *Client) TokenURI(ctx context.Context, tokenID uint64) (string, error) {
	var uri string
	if err := c.get(ctx, "tokenURI", "/certificates/"+formatID(tokenID)+"/uri", nil, &uri); err != nil {
		return "", err
	}
	return uri, nil
}

// AcademicCertificate returns the secondary academic record view.
func (c *Client) AcademicCertificate(ctx context.Context, tokenID uint64) (models.AcademicRecord, error) {
	var rec models.AcademicRecord
	err := c.get(ctx, "academicCertificates", "/certificates/"+formatID(tokenID)+"/academic", nil, &rec)
	return rec, err
}

// BalanceOf returns the number of certificates held by owner.
func (c *Client) BalanceOf(ctx context.Context, owner string) (uint64, error) {
	var n json.Number
	req := c.http.R().SetPathParam("owner", owner)
	if err := c.getWith(ctx, req, "balanceOf", "/owners/{owner}/balance", &n); err != nil {
		return 0, err
	}
	return parseUint("balanceOf", n)
}

// TokenOfOwnerByIndex resolves an owner-local index to a token id.
func (c *Client) TokenOfOwnerByIndex(ctx context.Context, owner string, index uint64) (uint64, error) {
	var n json.Number
	req := c.http.R().SetPathParams(map[string]string{"owner": owner, "index": formatID(index)})
	if err := c.getWith(ctx, req, "tokenOfOwnerByIndex", "/owners/{owner}/tokens/{index}", &n); err != nil {
		return 0, err
	}
	return parseUint("tokenOfOwnerByIndex", n)
}

// GetRecentCertificates returns up to limit of the most recently minted token ids.
func (c *Client) GetRecentCertificates(ctx context.Context, limit int) ([]uint64, error) {
	var raw []json.Number
	query := map[string]string{"limit": strconv.Itoa(limit)}
	if err := c.get(ctx, "getRecentCertificates", "/certificates/recent", query, &raw); err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(raw))
	for _, n := range raw {
		id, err := parseUint("getRecentCertificates", n)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Connect binds signer to a write-capable handle.
func (c *Client) Connect(signer ports.Signer) ports.LedgerWriter {
	return &Writer{client: c, signer: signer}
}

// Health checks that the bridge answers.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/healthz")
	if err != nil {
		return NewError(KindUnavailable, "health", "bridge unreachable", err)
	}
	if resp.StatusCode() >= http.StatusInternalServerError {
		return NewError(KindUnavailable, "health", fmt.Sprintf("bridge returned %d", resp.StatusCode()), nil)
	}
	return nil
}

func (c *Client) get(ctx context.Context, op, path string, query map[string]string, out any) error {
	req := c.http.R()
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	return c.getWith(ctx, req, op, path, out)
}

// getWith issues a prepared request. Caller-supplied path segments go
// through resty path params so they are escaped, never spliced.
func (c *Client) getWith(ctx context.Context, req *resty.Request, op, path string, out any) error {
	resp, err := req.SetContext(ctx).Get(path)
	return c.decode(op, resp, err, out)
}

// decode unwraps the bridge envelope into out. Numbers are kept as
// json.Number so large token ids survive.
func (c *Client) decode(op string, resp *resty.Response, err error, out any) error {
	if err != nil {
		return NewError(KindUnavailable, op, "bridge request failed", err)
	}

	var env envelope
	dec := json.NewDecoder(bytes.NewReader(resp.Body()))
	dec.UseNumber()
	if decErr := dec.Decode(&env); decErr != nil {
		if resp.StatusCode() >= http.StatusInternalServerError {
			return NewError(KindUnavailable, op, fmt.Sprintf("bridge returned %d", resp.StatusCode()), nil)
		}
		return NewError(KindBadData, op, "undecodable bridge response", decErr)
	}

	if env.Error != nil || resp.IsError() {
		return c.bridgeFailure(op, resp.StatusCode(), env.Error)
	}
	if out == nil || len(env.Result) == 0 || string(env.Result) == "null" {
		return nil
	}

	dec = json.NewDecoder(bytes.NewReader(env.Result))
	dec.UseNumber()
	if decErr := dec.Decode(out); decErr != nil {
		return NewError(KindBadData, op, "unexpected result shape", decErr)
	}
	return nil
}

func (c *Client) bridgeFailure(op string, status int, be *bridgeError) error {
	if be == nil {
		be = &bridgeError{Message: http.StatusText(status)}
	}
	kind, ok := kindFromCode(be.Code)
	if !ok {
		kind = kindFromReason(be.Reason + " " + be.Message)
	}
	if kind == KindUnknown {
		switch {
		case status == http.StatusNotFound:
			kind = KindNotFound
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			kind = KindUnauthorized
		case status >= http.StatusInternalServerError:
			kind = KindUnavailable
		}
	}
	msg := be.Message
	if be.Reason != "" {
		msg = be.Reason
	}
	c.logger.Debug("ledger call failed", "op", op, "status", status, "kind", kind, "message", msg)
	return NewError(kind, op, msg, nil)
}

func formatID(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func parseUint(op string, n json.Number) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(n.String()), 10, 64)
	if err != nil {
		return 0, NewError(KindBadData, op, "invalid token number", err)
	}
	return v, nil
}

var errReverted = errors.New("transaction reverted")
