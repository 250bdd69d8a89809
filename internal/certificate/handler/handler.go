// Package handler exposes the certificate service over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"certledger/internal/certificate/models"
	"certledger/internal/certificate/service"
	"certledger/internal/certificate/store"
	"certledger/internal/platform/metrics"
	"certledger/internal/platform/middleware"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/platform/httputil"
	"certledger/pkg/platform/middleware/metadata"
	"certledger/pkg/platform/middleware/requesttime"
)

const maxBodyBytes = 16 << 10

// Service is the certificate surface the handler drives.
type Service interface {
	FetchByOwner(ctx context.Context, owner string, opts ...service.FetchOption) ([]models.Certificate, error)
	FetchRecent(ctx context.Context, limit int, opts ...service.FetchOption) ([]models.Certificate, error)
	Search(query, status string) ([]models.Certificate, error)
	Get(ctx context.Context, id string, refresh bool) (*models.Certificate, error)
	Select(id string) (models.Certificate, error)
	RevokeByID(ctx context.Context, id, reason string) (*service.RevokeResult, error)
	RevocationLoading(id string) bool
	Loading() bool
	Snapshot() *store.View
	Stats() models.Stats
}

// Handler handles certificate endpoints.
type Handler struct {
	svc     Service
	logger  *slog.Logger
	metrics *metrics.Metrics
	timeout time.Duration
}

// New creates a certificate Handler.
func New(svc Service, logger *slog.Logger, m *metrics.Metrics) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger, metrics: m, timeout: 2 * time.Minute}
}

// Register registers the certificate routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	certRouter := chi.NewRouter()
	certRouter.Use(middleware.Recovery(h.logger))
	certRouter.Use(middleware.RequestID)
	certRouter.Use(requesttime.Middleware)
	certRouter.Use(metadata.ClientMetadata)
	certRouter.Use(middleware.Logger(h.logger))
	certRouter.Use(middleware.Timeout(h.timeout))
	certRouter.Use(middleware.ContentTypeJSON)
	certRouter.Use(middleware.LatencyMiddleware(h.metrics))

	certRouter.Get("/owners/{address}/certificates", h.handleFetchByOwner)
	certRouter.Get("/certificates/recent", h.handleFetchRecent)
	certRouter.Get("/certificates", h.handleSearch)
	certRouter.Put("/certificates/selected/{id}", h.handleSelect)
	certRouter.Get("/certificates/{id}", h.handleGet)
	certRouter.Post("/certificates/{id}/revoke", h.handleRevoke)
	certRouter.Get("/certificates/{id}/loading", h.handleRevocationLoading)
	certRouter.Get("/stats", h.handleStats)

	r.Mount("/", certRouter)
}

// ListResponse is a fetch or search result with collection state.
type ListResponse struct {
	Certificates []models.Certificate `json:"certificates"`
	Count        int                  `json:"count"`
	HasMore      bool                 `json:"hasMore"`
	RefreshedAt  *time.Time           `json:"refreshedAt,omitempty"`
}

// RevokeRequest is the revoke body.
type RevokeRequest struct {
	Reason string `json:"reason"`
}

type loadingResponse struct {
	ID      string `json:"id"`
	Loading bool   `json:"loading"`
}

type statsResponse struct {
	models.Stats
	Loading bool `json:"loading"`
}

type revocationErrorResponse struct {
	Error            string `json:"error"`
	Kind             string `json:"kind"`
	ErrorDescription string `json:"error_description"`
}

func (h *Handler) handleFetchByOwner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := chi.URLParam(r, "address")

	certs, err := h.svc.FetchByOwner(ctx, owner, fetchOptions(r)...)
	if err != nil {
		h.fail(ctx, w, "fetch by owner failed", err)
		return
	}
	h.writeList(w, certs)
}

func (h *Handler) handleFetchRecent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	certs, err := h.svc.FetchRecent(ctx, limit, fetchOptions(r)...)
	if err != nil {
		h.fail(ctx, w, "fetch recent failed", err)
		return
	}
	h.writeList(w, certs)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := q.Get("status")
	if status == "" {
		status = string(models.StatusAll)
	}
	certs, err := h.svc.Search(q.Get("q"), status)
	if err != nil {
		h.fail(r.Context(), w, "search failed", err)
		return
	}
	h.writeList(w, certs)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cert, err := h.svc.Get(ctx, chi.URLParam(r, "id"), isTrue(r.URL.Query().Get("refresh")))
	if err != nil {
		h.fail(ctx, w, "get certificate failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cert)
}

func (h *Handler) handleSelect(w http.ResponseWriter, r *http.Request) {
	cert, err := h.svc.Select(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(r.Context(), w, "select certificate failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cert)
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var req RevokeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid revoke request",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	res, err := h.svc.RevokeByID(ctx, id, req.Reason)
	if err != nil {
		var re *service.RevocationError
		if errors.As(err, &re) {
			httputil.WriteJSON(w, httputil.StatusFor(re.Code()), revocationErrorResponse{
				Error:            string(re.Code()),
				Kind:             string(re.Kind),
				ErrorDescription: re.Message,
			})
			return
		}
		h.fail(ctx, w, "revoke failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleRevocationLoading(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	httputil.WriteJSON(w, http.StatusOK, loadingResponse{ID: id, Loading: h.svc.RevocationLoading(id)})
}

func (h *Handler) handleStats(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, statsResponse{Stats: h.svc.Stats(), Loading: h.svc.Loading()})
}

func (h *Handler) writeList(w http.ResponseWriter, certs []models.Certificate) {
	if certs == nil {
		certs = []models.Certificate{}
	}
	resp := ListResponse{Certificates: certs, Count: len(certs)}
	if view := h.svc.Snapshot(); view != nil {
		resp.HasMore = view.HasMore
		if !view.RefreshedAt.IsZero() {
			at := view.RefreshedAt
			resp.RefreshedAt = &at
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// fail logs server-side failures and writes the coded error.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	code := dErrors.CodeOf(err)
	attrs := []any{"request_id", middleware.GetRequestID(ctx), "error", err.Error()}
	switch code {
	case dErrors.CodeInternal, dErrors.CodeUnavailable:
		h.logger.ErrorContext(ctx, msg, attrs...)
	default:
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}

func fetchOptions(r *http.Request) []service.FetchOption {
	if isTrue(r.URL.Query().Get("refresh")) {
		return []service.FetchOption{service.BypassCache()}
	}
	return nil
}

func isTrue(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
