package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certledger/internal/certificate/models"
	"certledger/internal/certificate/service"
	"certledger/internal/certificate/store"
	"certledger/internal/platform/metrics"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/testutil"
)

type stubService struct {
	certs       []models.Certificate
	err         error
	gotOwner    string
	gotLimit    int
	gotRefresh  bool
	gotBypass   int
	gotReason   string
	revokeRes   *service.RevokeResult
	loadingByID map[string]bool
	view        *store.View
}

func (s *stubService) FetchByOwner(_ context.Context, owner string, opts ...service.FetchOption) ([]models.Certificate, error) {
	s.gotOwner = owner
	s.gotBypass = len(opts)
	return s.certs, s.err
}

func (s *stubService) FetchRecent(_ context.Context, limit int, opts ...service.FetchOption) ([]models.Certificate, error) {
	s.gotLimit = limit
	s.gotBypass = len(opts)
	return s.certs, s.err
}

func (s *stubService) Search(query, status string) ([]models.Certificate, error) {
	if _, ok := models.ParseStatus(status); !ok {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "bad status")
	}
	return models.Filter{Query: query}.Apply(s.certs), nil
}

func (s *stubService) Get(_ context.Context, id string, refresh bool) (*models.Certificate, error) {
	s.gotRefresh = refresh
	if s.err != nil {
		return nil, s.err
	}
	for _, c := range s.certs {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "certificate not found")
}

func (s *stubService) Select(id string) (models.Certificate, error) {
	for _, c := range s.certs {
		if c.ID == id {
			return c, nil
		}
	}
	return models.Certificate{}, dErrors.New(dErrors.CodeNotFound, "certificate is not loaded")
}

func (s *stubService) RevokeByID(_ context.Context, _ string, reason string) (*service.RevokeResult, error) {
	s.gotReason = reason
	return s.revokeRes, s.err
}

func (s *stubService) RevocationLoading(id string) bool { return s.loadingByID[id] }
func (s *stubService) Loading() bool                    { return false }
func (s *stubService) Snapshot() *store.View            { return s.view }
func (s *stubService) Stats() models.Stats              { return models.Summarize(s.certs) }

func get(h http.Handler, method, path string) *httptest.ResponseRecorder {
	return testutil.DoRequest(h, httptest.NewRequest(method, path, nil))
}

func newRouter(t *testing.T, svc *stubService) http.Handler {
	t.Helper()
	r := chi.NewRouter()
	New(svc, nil, metrics.NewWithRegistry(prometheus.NewRegistry())).Register(r)
	return r
}

var sample = []models.Certificate{
	{ID: "1", TokenID: 1, CourseName: "Distributed Systems", IsVerified: true},
	{ID: "2", TokenID: 2, CourseName: "Compilers", IsRevoked: true, RevocationReason: "fraud"},
}

// =============================================================================
// Fetch
// =============================================================================

func TestFetchByOwner(t *testing.T) {
	refreshed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc := &stubService{certs: sample, view: &store.View{RefreshedAt: refreshed}}
	rec := get(newRouter(t, svc), http.MethodGet, "/owners/0xabc/certificates?refresh=true")

	require.Equal(t, http.StatusOK, rec.Code)
	body := *testutil.UnmarshalResponse[ListResponse](t, rec)
	assert.Equal(t, 2, body.Count)
	assert.False(t, body.HasMore)
	require.NotNil(t, body.RefreshedAt)
	assert.True(t, refreshed.Equal(*body.RefreshedAt))
	assert.Equal(t, "0xabc", svc.gotOwner)
	assert.Equal(t, 1, svc.gotBypass)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestFetchRecent(t *testing.T) {
	t.Run("limit is forwarded", func(t *testing.T) {
		svc := &stubService{}
		rec := get(newRouter(t, svc), http.MethodGet, "/certificates/recent?limit=25")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 25, svc.gotLimit)
		body := *testutil.UnmarshalResponse[ListResponse](t, rec)
		assert.NotNil(t, body.Certificates)
		assert.Zero(t, body.Count)
	})

	t.Run("bad limit", func(t *testing.T) {
		rec := get(newRouter(t, &stubService{}), http.MethodGet, "/certificates/recent?limit=ten")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("ledger unavailable", func(t *testing.T) {
		svc := &stubService{err: dErrors.New(dErrors.CodeUnavailable, "failed to read recent certificates")}
		rec := get(newRouter(t, svc), http.MethodGet, "/certificates/recent")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestSearch(t *testing.T) {
	h := newRouter(t, &stubService{certs: sample})

	rec := get(h, http.MethodGet, "/certificates?q=compil")
	require.Equal(t, http.StatusOK, rec.Code)
	body := *testutil.UnmarshalResponse[ListResponse](t, rec)
	require.Len(t, body.Certificates, 1)
	assert.Equal(t, "2", body.Certificates[0].ID)

	rec = get(h, http.MethodGet, "/certificates?status=archived")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// Single certificate
// =============================================================================

func TestGetAndSelect(t *testing.T) {
	svc := &stubService{certs: sample}
	h := newRouter(t, svc)

	rec := get(h, http.MethodGet, "/certificates/1?refresh=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Distributed Systems", testutil.UnmarshalResponse[models.Certificate](t, rec).CourseName)
	assert.True(t, svc.gotRefresh)

	rec = get(h, http.MethodGet, "/certificates/9")
	testutil.AssertStatusAndError(t, rec, http.StatusNotFound, "not_found")

	rec = get(h, http.MethodPut, "/certificates/selected/2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fraud", testutil.UnmarshalResponse[models.Certificate](t, rec).RevocationReason)
}

// =============================================================================
// Revocation
// =============================================================================

func TestRevoke(t *testing.T) {
	t.Run("success closes the prompt", func(t *testing.T) {
		revoked := sample[0].WithRevocation("issued in error")
		svc := &stubService{revokeRes: &service.RevokeResult{Certificate: revoked, TxHash: "0xtx", CloseRevocation: true}}
		req := testutil.NewJSONRequest(t, http.MethodPost, "/certificates/1/revoke", RevokeRequest{Reason: "issued in error"})
		rec := testutil.DoRequest(newRouter(t, svc), req)

		require.Equal(t, http.StatusOK, rec.Code)
		body := *testutil.UnmarshalResponse[service.RevokeResult](t, rec)
		assert.True(t, body.CloseRevocation)
		assert.True(t, body.Certificate.IsRevoked)
		assert.Equal(t, "0xtx", body.TxHash)
		assert.Equal(t, "issued in error", svc.gotReason)
	})

	t.Run("classified failure carries kind and message", func(t *testing.T) {
		svc := &stubService{err: &service.RevocationError{
			Kind:    service.RevocationAdminRequired,
			Message: "only an administrator can revoke certificates",
		}}
		rec := testutil.DoRequest(newRouter(t, svc), testutil.NewRequestWithBody(t, http.MethodPost, "/certificates/1/revoke", `{"reason":"x"}`))

		require.Equal(t, http.StatusForbidden, rec.Code)
		body := *testutil.UnmarshalResponse[map[string]string](t, rec)
		assert.Equal(t, "admin_required", body["kind"])
		assert.Equal(t, "only an administrator can revoke certificates", body["error_description"])
	})

	t.Run("in-flight revocation conflicts", func(t *testing.T) {
		svc := &stubService{err: dErrors.New(dErrors.CodeConflict, "a revocation of this certificate is already in progress")}
		rec := testutil.DoRequest(newRouter(t, svc), testutil.NewRequestWithBody(t, http.MethodPost, "/certificates/1/revoke", `{"reason":"x"}`))
		testutil.AssertStatusAndError(t, rec, http.StatusConflict, "conflict")
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := testutil.DoRequest(newRouter(t, &stubService{}), testutil.NewRequestWithBody(t, http.MethodPost, "/certificates/1/revoke", `{"reason":`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRevocationLoadingAndStats(t *testing.T) {
	svc := &stubService{certs: sample, loadingByID: map[string]bool{"2": true}}
	h := newRouter(t, svc)

	rec := get(h, http.MethodGet, "/certificates/2/loading")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, testutil.UnmarshalResponse[loadingResponse](t, rec).Loading)

	rec = get(h, http.MethodGet, "/certificates/1/loading")
	assert.False(t, testutil.UnmarshalResponse[loadingResponse](t, rec).Loading)

	rec = get(h, http.MethodGet, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := *testutil.UnmarshalResponse[statsResponse](t, rec)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Revoked)
}
