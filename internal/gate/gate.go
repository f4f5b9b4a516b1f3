// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNoBump is the check's deliberate failure: the marker file is
	// unchanged between base and head, so no version bump happened.
	ErrNoBump = errors.New("version marker unchanged between base and head")

	// ErrGit wraps operational git failures (bad revision, not a repo).
	ErrGit = errors.New("git diff failed")
)

// =============================================================================
// DIFFER
// =============================================================================

// Differ lists the paths that changed between two revisions.
// The production implementation shells out to git; tests substitute
// a fixed list.
type Differ interface {
	ChangedPaths(ctx context.Context, base, head string) ([]string, error)
}

// GitDiffer runs `git diff --name-only <base> <head>` in a repository.
type GitDiffer struct {
	// RepoDir is the repository working directory ("" = current dir)
	RepoDir string

	// Timeout bounds the git invocation (default 30s)
	Timeout time.Duration
}

// ChangedPaths returns the repository-relative paths that differ
// between base and head. Both revisions are passed to git verbatim so
// the comparison is always against the requested base commit, never a
// default branch tip.
func (g *GitDiffer) ChangedPaths(ctx context.Context, base, head string) ([]string, error) {
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "diff", "--name-only", base, head)
	cmd.Dir = g.RepoDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("%w: %s", ErrGit, msg)
	}

	var paths []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			paths = append(paths, line)
		}
	}
	return paths, nil
}

// =============================================================================
// CHECK
// =============================================================================

// Check is one version-bump check: a marker path compared between two
// revisions.
type Check struct {
	// Marker is the repository-relative version-marker file path
	Marker string

	// Base is the PR base commit SHA (or any revision git accepts)
	Base string

	// Head is the revision under test, normally "HEAD"
	Head string

	// Differ computes the changed path set (default: GitDiffer in cwd)
	Differ Differ
}

// Result reports the outcome of a check for display.
type Result struct {
	Marker       string   `json:"marker"`
	Base         string   `json:"base"`
	Head         string   `json:"head"`
	Bumped       bool     `json:"bumped"`
	ChangedPaths []string `json:"changed_paths"`
}

// Run executes the check.
//
// When the marker is among the changed paths the returned Result has
// Bumped=true and err is nil. When it is not, err is ErrNoBump (the
// caller maps this to exit code 1). Any other error is operational.
func (c *Check) Run(ctx context.Context) (*Result, error) {
	if c.Marker == "" {
		return nil, errors.New("no version marker path configured")
	}
	if c.Base == "" {
		return nil, errors.New("no base revision given")
	}
	head := c.Head
	if head == "" {
		head = "HEAD"
	}
	differ := c.Differ
	if differ == nil {
		differ = &GitDiffer{}
	}

	changed, err := differ.ChangedPaths(ctx, c.Base, head)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Marker:       c.Marker,
		Base:         c.Base,
		Head:         head,
		ChangedPaths: changed,
	}

	marker := filepath.ToSlash(c.Marker)
	for _, p := range changed {
		if filepath.ToSlash(p) == marker {
			res.Bumped = true
			return res, nil
		}
	}
	return res, ErrNoBump
}
