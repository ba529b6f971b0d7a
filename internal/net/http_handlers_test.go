package net

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	server "satlink/server"
	"satlink/server/internal/catalog"
	"satlink/server/internal/store"
)

type allowAll struct{}

func (allowAll) Authorize(ctx context.Context, userID, sessionID string) (bool, error) {
	return true, nil
}

type staticVerifier struct{}

func (staticVerifier) Verify(token string) (string, error) { return "u1", nil }

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	reg := server.NewRegistry(server.DefaultConfig(), store.NewMemoryStore(), allowAll{}, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		reg.Shutdown(ctx)
	})
	cat, err := catalog.Build()
	require.NoError(t, err)
	return NewRouter(reg, staticVerifier{}, cat, RouterConfig{})
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "ok", resp.Body.String())
}

func TestDiagnosticsReportsTelemetry(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/diagnostics", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	var payload struct {
		Status       string         `json:"status"`
		ServerTime   int64          `json:"serverTime"`
		LiveSessions int            `json:"liveSessions"`
		Telemetry    map[string]any `json:"telemetry"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	assert.Equal(t, "ok", payload.Status)
	assert.NotZero(t, payload.ServerTime)
	assert.Zero(t, payload.LiveSessions)
	assert.Contains(t, payload.Telemetry, "broadcasts")
}

func TestCatalogEndpoint(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/catalog", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	var payload struct {
		Entries []json.RawMessage `json:"entries"`
		Hash    string            `json:"hash"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	assert.NotEmpty(t, payload.Hash)
	assert.Len(t, payload.Entries, 4)
}

func TestDiagnosticsRejectsPost(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/diagnostics", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusMethodNotAllowed, resp.Code)
}
