// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transfer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/taca/internal/runs"
)

const testRunName = "20240101_1205_2A_PAK12345_deadbeef"

func mkRun(t *testing.T, dir string) *runs.Run {
	t.Helper()
	path := filepath.Join(dir, testRunName)
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatal(err)
	}
	run, err := runs.New(path)
	if err != nil {
		t.Fatalf("runs.New: %v", err)
	}
	return run
}

func TestNew_RequiresDestination(t *testing.T) {
	if _, err := New(Options{}); err != ErrNoDestination {
		t.Errorf("err = %v, want ErrNoDestination", err)
	}
}

func TestNewTask_BuildsRsyncInvocation(t *testing.T) {
	run := mkRun(t, t.TempDir())
	tr, err := New(Options{
		Destination:  "/srv/storage",
		RsyncOptions: []string{"--archive", "--chmod=Dg+s,g+rw"},
	})
	if err != nil {
		t.Fatal(err)
	}

	task := tr.NewTask(run)
	if task.Command != "rsync" {
		t.Errorf("command = %q", task.Command)
	}
	want := []string{"--archive", "--chmod=Dg+s,g+rw", run.Path, "/srv/storage"}
	if len(task.Args) != len(want) {
		t.Fatalf("args = %v, want %v", task.Args, want)
	}
	for i := range want {
		if task.Args[i] != want[i] {
			t.Errorf("args[%d] = %q, want %q", i, task.Args[i], want[i])
		}
	}
	if task.RunName != run.Name {
		t.Errorf("task run = %q", task.RunName)
	}
}

func TestFinalize_WritesMarkerAndLog(t *testing.T) {
	run := mkRun(t, t.TempDir())
	logPath := filepath.Join(t.TempDir(), "transfer.tsv")
	tr, err := New(Options{Destination: "/srv/storage", TransferLog: logPath})
	if err != nil {
		t.Fatal(err)
	}

	if err := tr.Finalize(run); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if !run.Synced() {
		t.Error("sync marker not written")
	}

	ok, err := InLog(logPath, run.Name)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("run missing from transfer log")
	}
}

func TestFinalize_Idempotent(t *testing.T) {
	run := mkRun(t, t.TempDir())
	logPath := filepath.Join(t.TempDir(), "transfer.tsv")
	tr, err := New(Options{Destination: "/srv/storage", TransferLog: logPath})
	if err != nil {
		t.Fatal(err)
	}

	if err := tr.Finalize(run); err != nil {
		t.Fatal(err)
	}
	if err := tr.Finalize(run); err != nil {
		t.Fatalf("second Finalize: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Count(strings.TrimSpace(string(data)), "\n") + 1
	if lines != 1 {
		t.Errorf("transfer log has %d entries after double finalize, want 1", lines)
	}
}

func TestVerify(t *testing.T) {
	destDir := t.TempDir()
	run := mkRun(t, t.TempDir())
	if err := os.WriteFile(filepath.Join(run.Path, "reads.fastq"), []byte("ACGT"), 0o644); err != nil {
		t.Fatal(err)
	}

	tr, err := New(Options{Destination: destDir, Checksum: "sha256"})
	if err != nil {
		t.Fatal(err)
	}

	// Destination missing entirely
	if err := tr.Verify(run); err == nil {
		t.Error("verified run with no destination copy")
	}

	destRun := filepath.Join(destDir, run.Name)
	if err := os.MkdirAll(destRun, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(destRun, "reads.fastq"), []byte("ACGT"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := tr.Verify(run); err != nil {
		t.Errorf("Verify: %v", err)
	}

	// Corrupted destination copy
	if err := os.WriteFile(filepath.Join(destRun, "reads.fastq"), []byte("TGCA"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := tr.Verify(run); err == nil {
		t.Error("corrupted destination copy verified")
	}
}

func TestVerify_SkipsRemoteAndDisabled(t *testing.T) {
	run := mkRun(t, t.TempDir())
	if err := os.WriteFile(filepath.Join(run.Path, "reads.fastq"), []byte("ACGT"), 0o644); err != nil {
		t.Fatal(err)
	}

	remote, err := New(Options{Destination: "host:/srv/runs", Checksum: "sha256"})
	if err != nil {
		t.Fatal(err)
	}
	if err := remote.Verify(run); err != nil {
		t.Errorf("remote destination not skipped: %v", err)
	}

	off, err := New(Options{Destination: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if err := off.Verify(run); err != nil {
		t.Errorf("disabled checksum not skipped: %v", err)
	}
}

func TestArchive(t *testing.T) {
	run := mkRun(t, t.TempDir())
	archiveDir := t.TempDir()
	tr, err := New(Options{Destination: "/srv/storage", ArchiveDir: archiveDir})
	if err != nil {
		t.Fatal(err)
	}

	// Unsynced runs must not be archived
	if _, err := tr.Archive(run); err == nil {
		t.Fatal("archived unsynced run")
	}

	if err := tr.Finalize(run); err != nil {
		t.Fatal(err)
	}
	dest, err := tr.Archive(run)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if dest != filepath.Join(archiveDir, run.Name) {
		t.Errorf("dest = %q", dest)
	}
	if _, err := os.Stat(dest); err != nil {
		t.Errorf("archived folder missing: %v", err)
	}
	if _, err := os.Stat(run.Path); !os.IsNotExist(err) {
		t.Error("source folder still present after archive")
	}
}

func TestArchive_DryRun(t *testing.T) {
	run := mkRun(t, t.TempDir())
	tr, err := New(Options{Destination: "/srv/storage", ArchiveDir: t.TempDir(), DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Finalize(run); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Archive(run); err != nil {
		t.Fatalf("Archive dry-run: %v", err)
	}
	if _, err := os.Stat(run.Path); err != nil {
		t.Error("dry-run moved the run folder")
	}
}

func TestRemoveArchived(t *testing.T) {
	destDir := t.TempDir()
	run := mkRun(t, t.TempDir())
	tr, err := New(Options{Destination: destDir})
	if err != nil {
		t.Fatal(err)
	}

	// Not at destination yet
	if err := tr.RemoveArchived(run); err == nil {
		t.Fatal("removed run absent from destination")
	}

	if err := os.MkdirAll(filepath.Join(destDir, run.Name), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := tr.RemoveArchived(run); err != nil {
		t.Fatalf("RemoveArchived: %v", err)
	}
	if _, err := os.Stat(run.Path); !os.IsNotExist(err) {
		t.Error("local copy still present")
	}
}

func TestRemoveArchived_RemoteDestination(t *testing.T) {
	run := mkRun(t, t.TempDir())
	tr, err := New(Options{Destination: "storage.example.com:/srv/runs"})
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.RemoveArchived(run); err == nil {
		t.Error("remote destination accepted for local removal")
	}
}

func TestIsRemote(t *testing.T) {
	cases := []struct {
		dest string
		want bool
	}{
		{"/srv/storage", false},
		{"relative/path", false},
		{"host:/srv/storage", true},
		{"user@host:runs", true},
		{"/srv/odd:name/dir", false},
	}
	for _, tc := range cases {
		if got := IsRemote(tc.dest); got != tc.want {
			t.Errorf("IsRemote(%q) = %v, want %v", tc.dest, got, tc.want)
		}
	}
}

func TestAppendLog_Format(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "transfer.tsv")
	when := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := AppendLog(logPath, testRunName, when); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	line := strings.TrimSpace(string(data))
	name, stamp, found := strings.Cut(line, "\t")
	if !found {
		t.Fatalf("log line %q not tab-separated", line)
	}
	if name != testRunName {
		t.Errorf("name = %q", name)
	}
	if _, err := time.Parse(time.RFC3339, stamp); err != nil {
		t.Errorf("timestamp %q not RFC3339: %v", stamp, err)
	}
}

func TestInLog_MissingFile(t *testing.T) {
	ok, err := InLog(filepath.Join(t.TempDir(), "none.tsv"), testRunName)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("found run in missing log")
	}
}

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		algo string
		want string
	}{
		{"sha256", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{"sha1", "a9993e364706816aba3e25717850c26c9cd0d89d"},
		{"md5", "900150983cd24fb0d6963f7d28e17f72"},
	}
	for _, tc := range cases {
		got, err := HashFile(path, tc.algo)
		if err != nil {
			t.Fatalf("HashFile(%s): %v", tc.algo, err)
		}
		if got != tc.want {
			t.Errorf("%s = %s, want %s", tc.algo, got, tc.want)
		}
	}

	if _, err := HashFile(path, "crc32"); err == nil {
		t.Error("unknown algorithm accepted")
	}
}

func TestVerifyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if err := VerifyFile(path, "sha256", want); err != nil {
		t.Errorf("VerifyFile: %v", err)
	}
	if err := VerifyFile(path, "sha256", "deadbeef"); err == nil {
		t.Error("mismatched digest accepted")
	}
}
