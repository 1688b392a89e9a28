package common

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// HealthServer exposes liveness and readiness endpoints on a dedicated port so
// orchestration platforms can probe the process independently of the main
// application listeners.
type HealthServer struct {
	server *http.Server
	ready  *atomic.Bool
}

// StatusFunc supplies a point-in-time JSON payload for the /v1/status
// endpoint, typically queue health counters.
type StatusFunc func() any

// NewHealthServer constructs and starts a health server. The ready flag is
// owned by the caller and flipped once the service finishes initialization.
// A nil status leaves /v1/status unregistered.
func NewHealthServer(ready *atomic.Bool, status StatusFunc) *HealthServer {
	mux := http.NewServeMux()

	hs := &HealthServer{
		server: &http.Server{
			Addr:         ":8081",
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
		ready: ready,
	}

	mux.HandleFunc("/v1/health", hs.handleHealth)
	mux.HandleFunc("/v1/readiness", hs.handleReadiness)
	if status != nil {
		mux.HandleFunc("/v1/status", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, status())
		})
	}

	go func() { _ = hs.server.ListenAndServe() }()

	return hs
}

// Server returns the underlying http server for shutdown control.
func (hs *HealthServer) Server() *http.Server { return hs.server }

func (hs *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (hs *HealthServer) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if !hs.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
