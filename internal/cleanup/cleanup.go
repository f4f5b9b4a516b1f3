// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cleanup removes aged run folders from the archive.
//
// Only runs the status database knows to be archived are eligible, and the
// age threshold is given as days or hours but never both. Dry-run mode
// reports what would be removed without touching the filesystem.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/jeranaias/taca/internal/runs"
	"github.com/jeranaias/taca/internal/statusdb"
)

// =============================================================================
// AGE THRESHOLD
// =============================================================================

// ErrThreshold indicates an invalid days/hours combination.
var ErrThreshold = errors.New("specify the age threshold as days or hours, not both")

// Threshold converts a days-or-hours age limit to a duration. Exactly one
// of the two must be positive.
func Threshold(days, hours int) (time.Duration, error) {
	switch {
	case days > 0 && hours > 0:
		return 0, ErrThreshold
	case days > 0:
		return time.Duration(days) * 24 * time.Hour, nil
	case hours > 0:
		return time.Duration(hours) * time.Hour, nil
	default:
		return 0, ErrThreshold
	}
}

// =============================================================================
// CLEANER
// =============================================================================

// Remover deletes an archived run copy after confirming it exists at the
// transfer destination.
type Remover interface {
	RemoveArchived(run *runs.Run) error
}

// Options configures a Cleaner.
type Options struct {
	// ArchiveDir holds the archived run folders
	ArchiveDir string

	// Remover, when set, performs destination-verified removal: a folder is
	// only deleted once its copy is confirmed at the transfer destination.
	// nil falls back to unverified removal (remote destinations).
	Remover Remover

	// DryRun logs removals without performing them
	DryRun bool
}

// Cleaner removes archived runs older than a threshold.
type Cleaner struct {
	store *statusdb.Store
	opts  Options
}

// New creates a Cleaner. The archive directory must be set.
func New(store *statusdb.Store, opts Options) (*Cleaner, error) {
	if opts.ArchiveDir == "" {
		return nil, errors.New("no archive directory configured")
	}
	return &Cleaner{store: store, opts: opts}, nil
}

// Run removes every archived run whose folder is older than maxAge at the
// reference time. It returns the names of the runs it removed (or would
// remove, in dry-run mode). Missing folders are skipped with a log line.
func (c *Cleaner) Run(ctx context.Context, maxAge time.Duration, now time.Time) ([]string, error) {
	docs, err := c.store.List(ctx, statusdb.Filter{State: runs.StateArchived})
	if err != nil {
		return nil, fmt.Errorf("failed to list archived runs: %w", err)
	}

	var removed []string
	for _, doc := range docs {
		path := filepath.Join(c.opts.ArchiveDir, doc.Name)
		info, err := os.Stat(path)
		if err != nil {
			log.Printf("cleanup: %s not in archive, skipping: %v", doc.Name, err)
			continue
		}
		age := now.Sub(info.ModTime())
		if age < maxAge {
			continue
		}

		if c.opts.DryRun {
			log.Printf("dry-run: would remove %s (age %s)", path, age.Round(time.Hour))
			removed = append(removed, doc.Name)
			continue
		}

		if err := c.remove(path); err != nil {
			log.Printf("cleanup: keeping %s: %v", doc.Name, err)
			continue
		}
		note := fmt.Sprintf("cleaned from archive on %s", now.Format("2006-01-02"))
		if err := c.store.SetNote(ctx, doc.Name, note); err != nil {
			log.Printf("cleanup: %s: %v", doc.Name, err)
		}
		log.Printf("cleanup: removed %s (age %s)", path, age.Round(time.Hour))
		removed = append(removed, doc.Name)
	}
	return removed, nil
}

// remove deletes one archived folder, through the destination-verifying
// remover when one is configured. A folder that does not parse as a run
// cannot be verified and is removed directly.
func (c *Cleaner) remove(path string) error {
	if c.opts.Remover != nil {
		run, err := runs.New(path)
		if err == nil {
			return c.opts.Remover.RemoveArchived(run)
		}
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}
