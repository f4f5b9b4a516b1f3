// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package runs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// =============================================================================
// PLATFORMS
// =============================================================================

// Platform identifies the sequencing platform a run directory came from.
type Platform string

const (
	// PlatformIllumina covers HiSeq/MiSeq/NovaSeq style flowcell folders
	PlatformIllumina Platform = "illumina"

	// PlatformONT covers Oxford Nanopore (PromethION/MinION) run folders
	PlatformONT Platform = "ont"

	// PlatformElement covers Element Biosciences (Aviti) run folders
	PlatformElement Platform = "element"

	// PlatformUnknown is returned for names matching no known pattern
	PlatformUnknown Platform = "unknown"
)

// Run folder naming patterns, one per platform.
var (
	// Illumina: date_instrument_counter_flowcellposition+id
	// e.g. 240101_A00187_0342_BHGK2LDRXY
	illuminaRe = regexp.MustCompile(`^\d{6,8}_[a-zA-Z\d\-]+_\d{2,}_[AB0][A-Z\d\-]+$`)

	// ONT: yyyymmdd_HHMM_position_flowCellId_randomHash
	// e.g. 20240101_1205_2A_PAK12345_deadbeef
	ontRe = regexp.MustCompile(`^(\d{8})_(\d{4})_([0-9a-zA-Z]+)_([0-9a-zA-Z]+)_([0-9a-zA-Z]+)$`)

	// Element: yyyymmdd_AVserial_sideFlowcell
	// e.g. 20240101_AV242106_A2349523774
	elementRe = regexp.MustCompile(`^\d{8}_AV\d{6}_[AB]\d{10}$`)

	// Flow cells named CTC* are configuration test cells, not real runs.
	ontTestCellRe = regexp.MustCompile(`^\d{8}_\d{4}_[0-9a-zA-Z]+_CTC`)
)

// End-of-sequencing marker files, checked relative to the run directory.
const (
	illuminaDoneMarker = "RTAComplete.txt"
	elementDoneMarker  = "RunUploaded.json"
	ontDoneGlob        = "final_summary*.txt"

	// SyncMarker is written once the final transfer to storage completed.
	// Its presence means downstream processing may start and the local
	// copy is eligible for archiving.
	SyncMarker = ".sync_finished"
)

var (
	ErrUnknownPlatform = errors.New("run name matches no known platform pattern")
	ErrNotADirectory   = errors.New("run path is not a directory")
)

// DetectPlatform classifies a run folder name.
// Configuration test cells (ONT "CTC" flow cells) are deliberately
// classified as unknown so they are never picked up for transfer.
func DetectPlatform(name string) Platform {
	switch {
	case ontTestCellRe.MatchString(name):
		return PlatformUnknown
	case illuminaRe.MatchString(name):
		return PlatformIllumina
	case ontRe.MatchString(name):
		return PlatformONT
	case elementRe.MatchString(name):
		return PlatformElement
	default:
		return PlatformUnknown
	}
}

// IsRunName reports whether name matches any known run folder pattern.
func IsRunName(name string) bool {
	return DetectPlatform(name) != PlatformUnknown
}

// =============================================================================
// RUN
// =============================================================================

// Run represents one sequencing run directory on disk.
type Run struct {
	// Name is the run folder name (basename of Path)
	Name string

	// Path is the absolute path of the run directory
	Path string

	// Platform derived from the folder name
	Platform Platform

	// ModTime of the run directory, used for age thresholds
	ModTime time.Time
}

// New builds a Run from a directory path.
// Returns ErrUnknownPlatform when the folder name matches no pattern,
// ErrNotADirectory when the path is not a directory.
func New(path string) (*Run, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve run path: %w", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to stat run path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotADirectory, abs)
	}

	name := filepath.Base(abs)
	platform := DetectPlatform(name)
	if platform == PlatformUnknown {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlatform, name)
	}

	return &Run{
		Name:     name,
		Path:     abs,
		Platform: platform,
		ModTime:  info.ModTime(),
	}, nil
}

// SequencingDone reports whether the instrument has finished writing
// the run: each platform leaves a different marker file behind.
func (r *Run) SequencingDone() bool {
	switch r.Platform {
	case PlatformIllumina:
		return fileExists(filepath.Join(r.Path, illuminaDoneMarker))
	case PlatformElement:
		return fileExists(filepath.Join(r.Path, elementDoneMarker))
	case PlatformONT:
		matches, err := filepath.Glob(filepath.Join(r.Path, ontDoneGlob))
		return err == nil && len(matches) > 0
	default:
		return false
	}
}

// Synced reports whether the final transfer marker has been written.
func (r *Run) Synced() bool {
	return fileExists(filepath.Join(r.Path, SyncMarker))
}

// FlowcellID extracts the flowcell identifier from the run name.
// For Illumina names this is the last underscore-separated field,
// for ONT the fourth, for Element the last.
func (r *Run) FlowcellID() string {
	fields := strings.Split(r.Name, "_")
	switch r.Platform {
	case PlatformONT:
		if len(fields) >= 4 {
			return fields[3]
		}
	default:
		if len(fields) > 0 {
			return fields[len(fields)-1]
		}
	}
	return ""
}

// ShortName returns the date_flowcell short form used as the status
// database key for Illumina runs: a 6-digit date joined with the
// flowcell field of the run name.
func (r *Run) ShortName() string {
	fields := strings.Split(r.Name, "_")
	if len(fields) < 2 {
		return r.Name
	}
	date := fields[0]
	if len(date) > 6 {
		date = date[2:]
	}
	return date + "_" + fields[len(fields)-1]
}

// Age returns how long ago the run directory was last modified.
func (r *Run) Age(now time.Time) time.Duration {
	return now.Sub(r.ModTime)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// =============================================================================
// DISCOVERY
// =============================================================================

// FindRuns locates run directories directly under each of the given
// data directories. Entries whose names match no platform pattern are
// skipped, as are the excluded directory names.
func FindRuns(dataDirs []string, exclude []string) ([]*Run, error) {
	excluded := make(map[string]struct{}, len(exclude))
	for _, e := range exclude {
		excluded[e] = struct{}{}
	}

	var found []*Run
	for _, dir := range dataDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to read data directory %s: %w", dir, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			if _, skip := excluded[entry.Name()]; skip {
				continue
			}
			if !IsRunName(entry.Name()) {
				continue
			}
			run, err := New(filepath.Join(dir, entry.Name()))
			if err != nil {
				// Raced with a deletion or rename; skip it.
				continue
			}
			found = append(found, run)
		}
	}
	return found, nil
}
