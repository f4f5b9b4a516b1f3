// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package monitor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jeranaias/taca/internal/config"
	"github.com/jeranaias/taca/internal/runs"
	"github.com/jeranaias/taca/internal/statusdb"
	"github.com/jeranaias/taca/internal/tasks"
	"github.com/jeranaias/taca/internal/transfer"
)

const ontRunName = "20240101_1205_2A_PAK12345_deadbeef"

type testEnv struct {
	mon     *Monitor
	store   *statusdb.Store
	dataDir string
	destDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dataDir := t.TempDir()
	destDir := t.TempDir()

	cfg := config.Default()
	cfg.Monitor.DataDirs = []string{dataDir}
	cfg.Transfer.Destination = destDir
	cfg.Transfer.TransferLog = filepath.Join(t.TempDir(), "transfer.tsv")
	cfg.LogFile = filepath.Join(t.TempDir(), "taca.log")

	store, err := statusdb.Open(filepath.Join(t.TempDir(), "status.db"))
	if err != nil {
		t.Fatalf("statusdb.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	mon, err := New(cfg, store, nil)
	if err != nil {
		t.Fatalf("monitor.New: %v", err)
	}
	return &testEnv{mon: mon, store: store, dataDir: dataDir, destDir: destDir}
}

// mkRun creates an ONT run folder, optionally with the sequencing-done
// marker and the sync marker.
func (e *testEnv) mkRun(t *testing.T, done, synced bool) string {
	t.Helper()
	path := filepath.Join(e.dataDir, ontRunName)
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatal(err)
	}
	if done {
		if err := os.WriteFile(filepath.Join(path, "final_summary_x.txt"), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if synced {
		if err := os.WriteFile(filepath.Join(path, runs.SyncMarker), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

func (e *testEnv) state(t *testing.T, name string) runs.State {
	t.Helper()
	doc, err := e.store.Get(context.Background(), name)
	if err != nil {
		t.Fatalf("Get(%s): %v", name, err)
	}
	return doc.State
}

func TestNew_RequiresDataDirs(t *testing.T) {
	cfg := config.Default()
	cfg.Transfer.Destination = "/srv/storage"
	if _, err := New(cfg, nil, nil); err == nil {
		t.Error("accepted config without data dirs")
	}
}

func TestScan_RecordsSequencingRun(t *testing.T) {
	env := newTestEnv(t)
	env.mkRun(t, false, false)

	if err := env.mon.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got := env.state(t, ontRunName); got != runs.StateSequencing {
		t.Errorf("state = %s, want sequencing", got)
	}
	if env.mon.Queue().Count() != 0 {
		t.Error("incomplete run queued for transfer")
	}
}

func TestScan_QueuesTransferWhenDone(t *testing.T) {
	env := newTestEnv(t)
	env.mkRun(t, true, false)
	ctx := context.Background()

	if err := env.mon.Scan(ctx); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got := env.state(t, ontRunName); got != runs.StateTransferring {
		t.Errorf("state = %s, want transferring", got)
	}
	if !env.mon.Queue().HasActive(ontRunName) {
		t.Fatal("no transfer task queued")
	}

	// A second scan must not queue a duplicate
	if err := env.mon.Scan(ctx); err != nil {
		t.Fatalf("second Scan: %v", err)
	}
	if got := env.mon.Queue().Count(); got != 1 {
		t.Errorf("queue count = %d after rescan, want 1", got)
	}
}

func TestScan_SyncedRunMarkedTransferred(t *testing.T) {
	env := newTestEnv(t)
	env.mkRun(t, true, true)
	ctx := context.Background()

	if err := env.store.Upsert(ctx, &statusdb.Document{
		Name:     ontRunName,
		Platform: runs.PlatformONT,
		State:    runs.StateTransferring,
	}); err != nil {
		t.Fatal(err)
	}

	if err := env.mon.Scan(ctx); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got := env.state(t, ontRunName); got != runs.StateTransferred {
		t.Errorf("state = %s, want transferred", got)
	}
}

// A run whose sync marker already exists when it is first recorded (rebuilt
// status database, manual transfer of an untracked run) must not sit at
// sequencing forever.
func TestScan_AdoptsAlreadySyncedRun(t *testing.T) {
	env := newTestEnv(t)
	path := env.mkRun(t, true, true)
	ctx := context.Background()

	if err := env.mon.Scan(ctx); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got := env.state(t, ontRunName); got != runs.StateTransferred {
		t.Errorf("state = %s after first scan, want transferred", got)
	}
	if env.mon.Queue().Count() != 0 {
		t.Error("synced run queued for transfer")
	}

	// With an archive dir configured, the next scan archives it.
	archiveDir := t.TempDir()
	env.mon.cfg.Transfer.ArchiveDir = archiveDir
	env.mon.tr = mustTransferrer(t, env.mon.cfg)

	if err := env.mon.Scan(ctx); err != nil {
		t.Fatalf("second Scan: %v", err)
	}
	if got := env.state(t, ontRunName); got != runs.StateArchived {
		t.Errorf("state = %s after second scan, want archived", got)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("run still in data dir after archive")
	}
}

func TestScan_AdoptsSyncedFailedRun(t *testing.T) {
	env := newTestEnv(t)
	env.mkRun(t, true, true)
	ctx := context.Background()

	if err := env.store.Upsert(ctx, &statusdb.Document{
		Name:     ontRunName,
		Platform: runs.PlatformONT,
		State:    runs.StateFailed,
	}); err != nil {
		t.Fatal(err)
	}

	if err := env.mon.Scan(ctx); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got := env.state(t, ontRunName); got != runs.StateTransferred {
		t.Errorf("state = %s, want transferred", got)
	}
}

func TestScan_ArchivesTransferredRun(t *testing.T) {
	env := newTestEnv(t)
	archiveDir := t.TempDir()
	env.mon.cfg.Transfer.ArchiveDir = archiveDir
	env.mon.tr = mustTransferrer(t, env.mon.cfg)
	path := env.mkRun(t, true, true)
	ctx := context.Background()

	if err := env.store.Upsert(ctx, &statusdb.Document{
		Name:     ontRunName,
		Platform: runs.PlatformONT,
		State:    runs.StateTransferred,
	}); err != nil {
		t.Fatal(err)
	}

	if err := env.mon.Scan(ctx); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got := env.state(t, ontRunName); got != runs.StateArchived {
		t.Errorf("state = %s, want archived", got)
	}
	if _, err := os.Stat(filepath.Join(archiveDir, ontRunName)); err != nil {
		t.Errorf("run not in archive: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("run still in data dir after archive")
	}
}

func TestHandleNotification_CompleteFinalizesRun(t *testing.T) {
	env := newTestEnv(t)
	path := env.mkRun(t, true, false)
	ctx := context.Background()

	if err := env.store.Upsert(ctx, &statusdb.Document{
		Name:     ontRunName,
		Platform: runs.PlatformONT,
		State:    runs.StateTransferring,
	}); err != nil {
		t.Fatal(err)
	}

	env.mon.handleNotification(ctx, tasks.Notification{
		RunName: ontRunName,
		Status:  tasks.StatusComplete,
	})

	if got := env.state(t, ontRunName); got != runs.StateTransferred {
		t.Errorf("state = %s, want transferred", got)
	}
	if _, err := os.Stat(filepath.Join(path, runs.SyncMarker)); err != nil {
		t.Errorf("sync marker not written: %v", err)
	}
}

func TestHandleNotification_ChecksumMismatchFailsRun(t *testing.T) {
	env := newTestEnv(t)
	env.mon.cfg.Transfer.Checksum = "sha256"
	env.mon.tr = mustTransferrer(t, env.mon.cfg)
	path := env.mkRun(t, true, false)
	ctx := context.Background()

	if err := os.WriteFile(filepath.Join(path, "reads.fastq"), []byte("ACGT"), 0o644); err != nil {
		t.Fatal(err)
	}
	// The destination copy differs from the source.
	destRun := filepath.Join(env.destDir, ontRunName)
	if err := os.MkdirAll(destRun, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(destRun, "reads.fastq"), []byte("TGCA"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := env.store.Upsert(ctx, &statusdb.Document{
		Name:     ontRunName,
		Platform: runs.PlatformONT,
		State:    runs.StateTransferring,
	}); err != nil {
		t.Fatal(err)
	}

	env.mon.handleNotification(ctx, tasks.Notification{
		RunName: ontRunName,
		Status:  tasks.StatusComplete,
	})

	doc, err := env.store.Get(ctx, ontRunName)
	if err != nil {
		t.Fatal(err)
	}
	if doc.State != runs.StateFailed {
		t.Errorf("state = %s, want failed", doc.State)
	}
	if doc.Note == "" {
		t.Error("verification failure left no note")
	}
	if _, err := os.Stat(filepath.Join(path, runs.SyncMarker)); !os.IsNotExist(err) {
		t.Error("sync marker written despite failed verification")
	}
}

func TestHandleNotification_ChecksumMatchTransfers(t *testing.T) {
	env := newTestEnv(t)
	env.mon.cfg.Transfer.Checksum = "sha256"
	env.mon.tr = mustTransferrer(t, env.mon.cfg)
	path := env.mkRun(t, true, false)
	ctx := context.Background()

	if err := os.WriteFile(filepath.Join(path, "reads.fastq"), []byte("ACGT"), 0o644); err != nil {
		t.Fatal(err)
	}
	destRun := filepath.Join(env.destDir, ontRunName)
	if err := os.MkdirAll(destRun, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"final_summary_x.txt", "reads.fastq"} {
		data, err := os.ReadFile(filepath.Join(path, name))
		if err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(destRun, name), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if err := env.store.Upsert(ctx, &statusdb.Document{
		Name:     ontRunName,
		Platform: runs.PlatformONT,
		State:    runs.StateTransferring,
	}); err != nil {
		t.Fatal(err)
	}

	env.mon.handleNotification(ctx, tasks.Notification{
		RunName: ontRunName,
		Status:  tasks.StatusComplete,
	})

	if got := env.state(t, ontRunName); got != runs.StateTransferred {
		t.Errorf("state = %s, want transferred", got)
	}
}

func TestHandleNotification_FailureRecordsError(t *testing.T) {
	env := newTestEnv(t)
	env.mkRun(t, true, false)
	ctx := context.Background()

	if err := env.store.Upsert(ctx, &statusdb.Document{
		Name:     ontRunName,
		Platform: runs.PlatformONT,
		State:    runs.StateTransferring,
	}); err != nil {
		t.Fatal(err)
	}

	env.mon.handleNotification(ctx, tasks.Notification{
		RunName: ontRunName,
		Status:  tasks.StatusFailed,
		Error:   "rsync exited with code 12",
	})

	doc, err := env.store.Get(ctx, ontRunName)
	if err != nil {
		t.Fatal(err)
	}
	if doc.State != runs.StateFailed {
		t.Errorf("state = %s, want failed", doc.State)
	}
	if doc.Note != "rsync exited with code 12" {
		t.Errorf("note = %q", doc.Note)
	}
}

// mustTransferrer rebuilds the monitor's transferrer after a config change.
func mustTransferrer(t *testing.T, cfg *config.Config) *transfer.Transferrer {
	t.Helper()
	tr, err := transfer.New(transfer.Options{
		Destination:  cfg.Transfer.Destination,
		ArchiveDir:   cfg.Transfer.ArchiveDir,
		TransferLog:  cfg.Transfer.TransferLog,
		RsyncOptions: cfg.Transfer.RsyncOptions,
		LogDir:       cfg.LogDir(),
		Checksum:     cfg.Transfer.Checksum,
	})
	if err != nil {
		t.Fatal(err)
	}
	return tr
}
