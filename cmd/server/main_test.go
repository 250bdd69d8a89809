package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certledger/internal/app"
)

type checkFunc func(context.Context) error

func (f checkFunc) Health(ctx context.Context) error { return f(ctx) }

func TestHealthHandler(t *testing.T) {
	ok := checkFunc(func(context.Context) error { return nil })
	down := checkFunc(func(context.Context) error { return errors.New("connection refused") })

	t.Run("all healthy", func(t *testing.T) {
		rec := httptest.NewRecorder()
		healthHandler(map[string]app.HealthChecker{"cache": ok, "ledger": ok}).
			ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("ledger down", func(t *testing.T) {
		rec := httptest.NewRecorder()
		healthHandler(map[string]app.HealthChecker{"cache": ok, "ledger": down}).
			ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var body map[string]string
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "ok", body["cache"])
		assert.Equal(t, "connection refused", body["ledger"])
	})
}
