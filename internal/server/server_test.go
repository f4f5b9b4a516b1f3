// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/jeranaias/taca/internal/runs"
	"github.com/jeranaias/taca/internal/statusdb"
)

func newTestServer(t *testing.T, dataDirs []string) (*Server, *statusdb.Store) {
	t.Helper()
	store, err := statusdb.Open(filepath.Join(t.TempDir(), "status.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return NewServer(0, store, dataDirs), store
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
	if body["version"] == "" {
		t.Error("version missing")
	}
}

func TestHandleHealth_MethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestHandleRuns(t *testing.T) {
	srv, store := newTestServer(t, nil)
	ctx := context.Background()

	docs := []*statusdb.Document{
		{Name: "20240101_1205_2A_PAK11111_aaaaaaaa", Platform: "ont", State: runs.StateTransferred},
		{Name: "20240201_1205_2A_PAK22222_bbbbbbbb", Platform: "ont", State: runs.StateSequencing},
	}
	for _, doc := range docs {
		if err := store.Upsert(ctx, doc); err != nil {
			t.Fatal(err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var body struct {
		Runs   []*statusdb.Document `json:"runs"`
		Counts map[string]int       `json:"counts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Runs) != 2 {
		t.Errorf("runs = %d, want 2", len(body.Runs))
	}
	if body.Counts["transferred"] != 1 || body.Counts["sequencing"] != 1 {
		t.Errorf("counts = %v", body.Counts)
	}
}

func TestHandleRuns_StateFilter(t *testing.T) {
	srv, store := newTestServer(t, nil)
	ctx := context.Background()

	if err := store.Upsert(ctx, &statusdb.Document{
		Name: "20240101_1205_2A_PAK11111_aaaaaaaa", Platform: "ont",
		State: runs.StateTransferred,
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.Upsert(ctx, &statusdb.Document{
		Name: "20240201_1205_2A_PAK22222_bbbbbbbb", Platform: "ont",
		State: runs.StateSequencing,
	}); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/runs?state=transferred", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	var body struct {
		Runs []*statusdb.Document `json:"runs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Runs) != 1 || body.Runs[0].State != runs.StateTransferred {
		t.Errorf("filtered runs = %+v", body.Runs)
	}
}

func TestHandleRuns_BadState(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/runs?state=bogus", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestHandleRuns_EmptyStore(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	// An empty store must serialize as [], not null
	var body map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if string(body["runs"]) != "[]" {
		t.Errorf("runs = %s, want []", body["runs"])
	}
}

func TestHandleDisk(t *testing.T) {
	dir := t.TempDir()
	srv, _ := newTestServer(t, []string{dir, "/does/not/exist"})

	req := httptest.NewRequest(http.MethodGet, "/api/disk", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Disks []struct {
			Path       string `json:"path"`
			TotalBytes uint64 `json:"total_bytes"`
			Error      string `json:"error"`
		} `json:"disks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Disks) != 2 {
		t.Fatalf("disks = %d, want 2", len(body.Disks))
	}
	if body.Disks[0].Error != "" {
		t.Errorf("usage of %s failed: %s", dir, body.Disks[0].Error)
	}
	if body.Disks[0].TotalBytes == 0 {
		t.Error("total bytes is zero")
	}
	if body.Disks[1].Error == "" {
		t.Error("missing path reported no error")
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := Chain(RecoveryMiddleware())(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
