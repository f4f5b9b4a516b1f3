// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// release_cmd.go - Release gate commands for taca.
//
// Command: release [subcommand]
// Short:   Version-bump gate for pull requests
//
// Subcommands:
//   check-bump (default)   Fail unless the version marker changed
//
// Examples:
//   taca release check-bump --base abc123            Compare abc123..HEAD
//   taca release check-bump --base abc123 --head def456
//   taca release check-bump --base abc123 --json     Machine output
//   GITHUB_BASE_SHA=abc123 taca release check-bump   Base from environment
//
// Flags:
//   --base SHA      PR base commit (falls back to GITHUB_BASE_SHA)
//   --head REV      Revision under test (default HEAD, or GITHUB_HEAD_SHA)
//   --marker PATH   Version marker file (default from config)
//   --repo DIR      Repository directory (default: current directory)
//
// Exit codes:
//   0  marker changed between base and head (release allowed)
//   1  marker unchanged (bump the version before merging)
//   2  operational error (bad revision, not a git repository)

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jeranaias/taca/internal/config"
	"github.com/jeranaias/taca/internal/gate"
)

// Release gate exit codes.
const (
	ExitBumped      = 0
	ExitNoBump      = 1
	ExitOperational = 2
)

// HandleRelease handles the "release" command. The returned int is the
// process exit code.
func HandleRelease(args Args) int {
	parser := NewArgParser(args.Raw)

	switch parser.Subcommand() {
	case "", "check-bump":
		// fallthrough to the check below
	default:
		fmt.Fprintf(os.Stderr, "Unknown release subcommand: %s\n", parser.Subcommand())
		return ExitOperational
	}

	// The marker default comes from config, but the gate must work in a
	// bare CI checkout with no config file at all.
	marker := parser.Flag("marker")
	if marker == "" {
		if cfg, err := loadConfig(args); err == nil {
			marker = cfg.Gate.Marker
		} else {
			marker = config.Default().Gate.Marker
		}
	}

	check := gate.Check{
		Marker: marker,
		Base:   parser.FlagOrDefault("base", os.Getenv("GITHUB_BASE_SHA")),
		Head:   parser.FlagOrDefault("head", os.Getenv("GITHUB_HEAD_SHA")),
		Differ: &gate.GitDiffer{RepoDir: parser.FlagOrDefault("repo", ".")},
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	res, err := check.Run(ctx)
	switch {
	case err == nil:
		printReleaseResult(args, res, nil)
		return ExitBumped

	case errors.Is(err, gate.ErrNoBump):
		printReleaseResult(args, res, err)
		return ExitNoBump

	default:
		if args.JSON {
			NewJSONErrorResponse("release check-bump", err).Print()
		} else {
			fmt.Fprintf(os.Stderr, "%s %v\n", RenderStatus("error"), err)
		}
		return ExitOperational
	}
}

// printReleaseResult renders the gate outcome for humans or machines.
func printReleaseResult(args Args, res *gate.Result, gateErr error) {
	if args.JSON {
		if gateErr != nil {
			resp := NewJSONErrorResponse("release check-bump", gateErr)
			resp.Data = res
			resp.Print()
			return
		}
		NewJSONResponse("release check-bump", res).Print()
		return
	}

	if res.Bumped {
		fmt.Printf("%s version marker %s changed between %s and %s\n",
			RenderStatus("ok"), res.Marker, res.Base, res.Head)
		return
	}

	fmt.Printf("%s version marker %s did not change between %s and %s\n",
		RenderStatus("fail"), res.Marker, res.Base, res.Head)
	if !args.Quiet {
		fmt.Println(DimStyle.Render("Bump the version before merging this pull request."))
	}
}
