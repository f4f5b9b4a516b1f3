// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/jeranaias/taca/internal/runs"
	"github.com/jeranaias/taca/internal/statusdb"
	"github.com/jeranaias/taca/internal/util"
	"github.com/jeranaias/taca/internal/version"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultPort is the default port for the status server.
	DefaultPort = 8890

	// requestTimeout bounds database work per request.
	requestTimeout = 10 * time.Second
)

// ============================================================================
// SERVER
// ============================================================================

// Server is the localhost status API server.
type Server struct {
	port      int
	store     *statusdb.Store
	dataDirs  []string
	router    *http.ServeMux
	server    *http.Server
	startTime time.Time
}

// NewServer creates a status server over the given run store and data
// directories.
func NewServer(port int, store *statusdb.Store, dataDirs []string) *Server {
	if port <= 0 {
		port = DefaultPort
	}
	s := &Server{
		port:      port,
		store:     store,
		dataDirs:  dataDirs,
		router:    http.NewServeMux(),
		startTime: time.Now(),
	}
	s.setupRoutes()
	return s
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// setupRoutes registers all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth)
	s.router.HandleFunc("/api/runs", s.handleRuns)
	s.router.HandleFunc("/api/disk", s.handleDisk)
}

// ============================================================================
// HANDLERS
// ============================================================================

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version.Version,
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
	})
}

// runsResponse is the payload of GET /api/runs.
type runsResponse struct {
	Runs   []*statusdb.Document `json:"runs"`
	Counts map[string]int       `json:"counts"`
}

// handleRuns handles GET /api/runs with optional ?state= and ?platform=
// filters.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	filter := statusdb.Filter{
		State:    runs.State(r.URL.Query().Get("state")),
		Platform: runs.Platform(r.URL.Query().Get("platform")),
	}
	if filter.State != "" && !filter.State.Valid() {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown state %q", filter.State))
		return
	}

	docs, err := s.store.List(ctx, filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	counts, err := s.store.CountByState(ctx)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to count runs")
		return
	}

	resp := runsResponse{Runs: docs, Counts: make(map[string]int, len(counts))}
	for state, n := range counts {
		resp.Counts[state.String()] = n
	}
	if resp.Runs == nil {
		resp.Runs = []*statusdb.Document{}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// diskEntry is one data directory in GET /api/disk.
type diskEntry struct {
	Path      string `json:"path"`
	TotalByte uint64 `json:"total_bytes"`
	FreeByte  uint64 `json:"free_bytes"`
	UsedByte  uint64 `json:"used_bytes"`
	Total     string `json:"total"`
	Free      string `json:"free"`
	Used      string `json:"used"`
	Error     string `json:"error,omitempty"`
}

// handleDisk handles GET /api/disk.
func (s *Server) handleDisk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	entries := make([]diskEntry, 0, len(s.dataDirs))
	for _, dir := range s.dataDirs {
		entry := diskEntry{Path: dir}
		usage, err := diskUsage(dir)
		if err != nil {
			entry.Error = err.Error()
		} else {
			entry.TotalByte = usage.Total
			entry.FreeByte = usage.Free
			entry.UsedByte = usage.Total - usage.Free
			entry.Total = util.HumanBytes(usage.Total)
			entry.Free = util.HumanBytes(usage.Free)
			entry.Used = util.HumanBytes(usage.Total - usage.Free)
		}
		entries = append(entries, entry)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"disks": entries})
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start starts the HTTP server on localhost and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)

	handler := Chain(
		RecoveryMiddleware(),
		LoggingMiddleware(log.Default()),
	)(s.router)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("SERVER_START | addr=%s version=%s", addr, version.Version)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	log.Printf("SERVER_SHUTDOWN | starting graceful shutdown")
	return s.server.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    status,
		},
	})
}
