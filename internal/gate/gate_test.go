// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gate

import (
	"context"
	"errors"
	"testing"
)

// fakeDiffer returns a canned changed-path set and records the
// revisions it was asked about.
type fakeDiffer struct {
	paths    []string
	err      error
	gotBase  string
	gotHead  string
	numCalls int
}

func (f *fakeDiffer) ChangedPaths(_ context.Context, base, head string) ([]string, error) {
	f.gotBase = base
	f.gotHead = head
	f.numCalls++
	return f.paths, f.err
}

func TestCheck_MarkerChanged(t *testing.T) {
	differ := &fakeDiffer{paths: []string{
		"internal/transfer/transfer.go",
		"internal/version/version.go",
		"README.md",
	}}
	check := &Check{
		Marker: "internal/version/version.go",
		Base:   "5f2a9c1",
		Head:   "HEAD",
		Differ: differ,
	}

	res, err := check.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.Bumped {
		t.Error("Bumped = false, want true")
	}
}

func TestCheck_MarkerUnchanged(t *testing.T) {
	differ := &fakeDiffer{paths: []string{
		"internal/transfer/transfer.go",
		"README.md",
	}}
	check := &Check{
		Marker: "internal/version/version.go",
		Base:   "5f2a9c1",
		Differ: differ,
	}

	res, err := check.Run(context.Background())
	if !errors.Is(err, ErrNoBump) {
		t.Fatalf("Run error = %v, want ErrNoBump", err)
	}
	if res == nil || res.Bumped {
		t.Error("expected a result with Bumped = false")
	}
}

func TestCheck_EmptyDiff(t *testing.T) {
	check := &Check{
		Marker: "internal/version/version.go",
		Base:   "5f2a9c1",
		Differ: &fakeDiffer{},
	}

	if _, err := check.Run(context.Background()); !errors.Is(err, ErrNoBump) {
		t.Fatalf("Run error = %v, want ErrNoBump", err)
	}
}

func TestCheck_UsesGivenRevisions(t *testing.T) {
	// The comparison must use exactly the supplied base SHA and head,
	// not a branch tip.
	differ := &fakeDiffer{paths: []string{"internal/version/version.go"}}
	check := &Check{
		Marker: "internal/version/version.go",
		Base:   "0123456789abcdef0123456789abcdef01234567",
		Head:   "feature-head",
		Differ: differ,
	}

	if _, err := check.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if differ.gotBase != check.Base {
		t.Errorf("base passed to differ = %q, want %q", differ.gotBase, check.Base)
	}
	if differ.gotHead != "feature-head" {
		t.Errorf("head passed to differ = %q, want %q", differ.gotHead, "feature-head")
	}
	if differ.numCalls != 1 {
		t.Errorf("differ called %d times, want 1", differ.numCalls)
	}
}

func TestCheck_HeadDefaultsToHEAD(t *testing.T) {
	differ := &fakeDiffer{paths: []string{"internal/version/version.go"}}
	check := &Check{
		Marker: "internal/version/version.go",
		Base:   "5f2a9c1",
		Differ: differ,
	}

	if _, err := check.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if differ.gotHead != "HEAD" {
		t.Errorf("head = %q, want HEAD", differ.gotHead)
	}
}

func TestCheck_WindowsStylePaths(t *testing.T) {
	differ := &fakeDiffer{paths: []string{`internal\version\version.go`}}
	check := &Check{
		Marker: "internal/version/version.go",
		Base:   "5f2a9c1",
		Differ: differ,
	}

	res, err := check.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.Bumped {
		t.Error("Bumped = false for backslash-separated path")
	}
}

func TestCheck_GitError(t *testing.T) {
	differ := &fakeDiffer{err: ErrGit}
	check := &Check{
		Marker: "internal/version/version.go",
		Base:   "badrev",
		Differ: differ,
	}

	if _, err := check.Run(context.Background()); !errors.Is(err, ErrGit) {
		t.Fatalf("Run error = %v, want ErrGit", err)
	}
}

func TestCheck_MissingConfig(t *testing.T) {
	if _, err := (&Check{Base: "x"}).Run(context.Background()); err == nil {
		t.Error("Run succeeded without a marker path")
	}
	if _, err := (&Check{Marker: "x"}).Run(context.Background()); err == nil {
		t.Error("Run succeeded without a base revision")
	}
}
