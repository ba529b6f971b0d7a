// Package net assembles the HTTP surface: health, diagnostics, the command
// catalog, and the realtime websocket endpoint.
package net

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	server "satlink/server"
	"satlink/server/internal/catalog"
	"satlink/server/internal/net/ws"
)

type RouterConfig struct {
	Logger     *slog.Logger
	SendBuffer int
}

// NewRouter wires the HTTP routes over the registry.
func NewRouter(registry *server.Registry, verifier ws.TokenVerifier, cat *catalog.Catalog, cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	wsHandler := ws.NewHandler(registry, verifier, ws.HandlerConfig{
		Logger:      logger,
		SendBuffer:  cfg.SendBuffer,
		CatalogHash: cat.Hash,
	})

	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/diagnostics", func(w http.ResponseWriter, req *http.Request) {
		payload := struct {
			Status     string                   `json:"status"`
			ServerTime int64                    `json:"serverTime"`
			Sessions   int                      `json:"liveSessions"`
			Telemetry  server.TelemetrySnapshot `json:"telemetry"`
		}{
			Status:     "ok",
			ServerTime: time.Now().UnixMilli(),
			Sessions:   registry.LiveSessions(),
			Telemetry:  registry.Telemetry(),
		}
		writeJSON(w, logger, payload)
	}).Methods(http.MethodGet)

	r.HandleFunc("/catalog", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, logger, cat)
	}).Methods(http.MethodGet)

	r.HandleFunc("/ws", wsHandler.Handle)

	return r
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to encode response", "error", err)
		http.Error(w, "failed to encode", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
