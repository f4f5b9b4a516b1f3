// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transfer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/taca/internal/runs"
	"github.com/jeranaias/taca/internal/tasks"
	"github.com/jeranaias/taca/internal/util"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNoDestination indicates no transfer destination is configured.
	ErrNoDestination = errors.New("no transfer destination configured")

	// ErrNotSynced indicates an operation that requires a completed sync.
	ErrNotSynced = errors.New("run has not finished syncing")

	// ErrNotAtDestination indicates the run is missing from the destination.
	ErrNotAtDestination = errors.New("run not present at destination")
)

// =============================================================================
// TRANSFERRER
// =============================================================================

// Options configures a Transferrer.
type Options struct {
	// Destination is the rsync destination (local path or host:path)
	Destination string

	// ArchiveDir receives local run folders after a final sync
	ArchiveDir string

	// TransferLog is the tab-separated record of completed transfers
	TransferLog string

	// RsyncOptions are extra rsync flags
	RsyncOptions []string

	// LogDir receives per-command .out/.err log files ("" = no command logs)
	LogDir string

	// Checksum algorithm for post-transfer verification ("sha256", "sha1",
	// "md5"; "" disables verification)
	Checksum string

	// DryRun logs intended actions without executing them
	DryRun bool
}

// Transferrer syncs run folders to destination storage.
type Transferrer struct {
	opts Options
}

// New creates a Transferrer. The destination must be set.
func New(opts Options) (*Transferrer, error) {
	if opts.Destination == "" {
		return nil, ErrNoDestination
	}
	return &Transferrer{opts: opts}, nil
}

// NewTask builds the background task that syncs the run to the destination.
// The caller owns queueing and execution.
func (t *Transferrer) NewTask(run *runs.Run) *tasks.Task {
	args := append([]string{}, t.opts.RsyncOptions...)
	args = append(args, run.Path, t.opts.Destination)

	task := tasks.New(fmt.Sprintf("transfer %s", run.Name), "rsync", args)
	task.RunName = run.Name
	task.LogDir = t.opts.LogDir
	task.LogPrefix = run.Name
	return task
}

// Sync transfers the run to the destination in the foreground, then writes
// the sync marker and the transfer log entry.
func (t *Transferrer) Sync(ctx context.Context, run *runs.Run) error {
	if t.opts.DryRun {
		log.Printf("dry-run: would rsync %s to %s", run.Path, t.opts.Destination)
		return nil
	}

	task := t.NewTask(run)
	if err := tasks.Execute(ctx, task); err != nil {
		return fmt.Errorf("transfer of %s failed: %w", run.Name, err)
	}

	if err := t.Verify(run); err != nil {
		return fmt.Errorf("verification of %s failed: %w", run.Name, err)
	}
	if err := t.Finalize(run); err != nil {
		return err
	}
	return nil
}

// Verify compares every file in the run folder against its copy at the
// destination using the configured checksum algorithm. A remote destination
// cannot be read back and is skipped (rsync checksums those in flight), as
// is an empty algorithm.
func (t *Transferrer) Verify(run *runs.Run) error {
	if t.opts.Checksum == "" || IsRemote(t.opts.Destination) {
		return nil
	}

	destRoot := filepath.Join(t.opts.Destination, run.Name)
	return filepath.WalkDir(run.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(run.Path, path)
		if err != nil {
			return err
		}
		want, err := HashFile(path, t.opts.Checksum)
		if err != nil {
			return err
		}
		return VerifyFile(filepath.Join(destRoot, rel), t.opts.Checksum, want)
	})
}

// Finalize records a completed sync: the .sync_finished marker in the run
// folder and an entry in the transfer log. Finalizing twice keeps a single
// log entry.
func (t *Transferrer) Finalize(run *runs.Run) error {
	if err := util.Touch(filepath.Join(run.Path, runs.SyncMarker)); err != nil {
		return fmt.Errorf("failed to write sync marker for %s: %w", run.Name, err)
	}
	if t.opts.TransferLog == "" {
		return nil
	}
	logged, err := InLog(t.opts.TransferLog, run.Name)
	if err != nil {
		return fmt.Errorf("failed to read transfer log: %w", err)
	}
	if logged {
		return nil
	}
	if err := AppendLog(t.opts.TransferLog, run.Name, time.Now()); err != nil {
		return fmt.Errorf("failed to update transfer log: %w", err)
	}
	return nil
}

// Archive moves a synced run folder into the archive directory.
func (t *Transferrer) Archive(run *runs.Run) (string, error) {
	if t.opts.ArchiveDir == "" {
		return "", errors.New("no archive directory configured")
	}
	if !run.Synced() {
		return "", fmt.Errorf("%s: %w", run.Name, ErrNotSynced)
	}

	dest := filepath.Join(t.opts.ArchiveDir, run.Name)
	if t.opts.DryRun {
		log.Printf("dry-run: would move %s to %s", run.Path, dest)
		return dest, nil
	}

	if err := os.MkdirAll(t.opts.ArchiveDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create archive dir: %w", err)
	}
	if _, err := os.Stat(dest); err == nil {
		return "", fmt.Errorf("archive target %s already exists", dest)
	}
	if err := os.Rename(run.Path, dest); err != nil {
		return "", fmt.Errorf("failed to archive %s: %w", run.Name, err)
	}
	return dest, nil
}

// RemoveArchived deletes the local archived copy of a run, but only after
// confirming the run folder exists at the destination. Remote destinations
// (host:path) cannot be verified and are rejected.
func (t *Transferrer) RemoveArchived(run *runs.Run) error {
	if IsRemote(t.opts.Destination) {
		return fmt.Errorf("cannot verify remote destination %s", t.opts.Destination)
	}

	destPath := filepath.Join(t.opts.Destination, run.Name)
	info, err := os.Stat(destPath)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%s: %w", run.Name, ErrNotAtDestination)
	}

	if t.opts.DryRun {
		log.Printf("dry-run: would remove %s", run.Path)
		return nil
	}
	if err := os.RemoveAll(run.Path); err != nil {
		return fmt.Errorf("failed to remove %s: %w", run.Path, err)
	}
	return nil
}

// IsRemote reports whether an rsync destination names a remote host.
// A colon before any path separator marks host:path syntax.
func IsRemote(dest string) bool {
	colon := strings.IndexByte(dest, ':')
	if colon < 0 {
		return false
	}
	slash := strings.IndexByte(dest, '/')
	return slash < 0 || colon < slash
}

// =============================================================================
// TRANSFER LOG
// =============================================================================

// AppendLog appends a run name and timestamp to the tab-separated transfer
// log, creating the file if needed.
func AppendLog(path, runName string, when time.Time) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "%s\t%s\n", runName, when.Format(time.RFC3339))
	return err
}

// InLog reports whether a run name appears in the transfer log. A missing
// log file means no runs have been transferred.
func InLog(path, runName string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		name, _, _ := strings.Cut(sc.Text(), "\t")
		if name == runName {
			return true, nil
		}
	}
	return false, sc.Err()
}
