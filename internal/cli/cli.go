// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and command dispatch for taca.
package cli

import (
	"fmt"
	"os"
	"strings"
)

// Version information (can be overridden at build time)
var (
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdHelp Command = iota
	CmdRelease
	CmdMonitor
	CmdTransfer
	CmdCleanup
	CmdStatus
	CmdServe
	CmdVersion
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet      bool
	Verbose    bool
	JSON       bool
	ConfigPath string

	// Subcommand is the first positional argument after the command
	Subcommand string

	// Raw args remaining after global flag parsing; command handlers
	// run them through ArgParser
	Raw []string
}

const usageText = `taca - sequencing run tracking and automation

Taca watches instrument data directories, transfers finished runs to
storage, tracks every run's lifecycle in a status database and gates
releases on a version bump.

Usage:
  taca release check-bump    Verify the version marker changed in a PR
  taca monitor [scan|daemon] Discover runs and drive transfers
  taca transfer <run-dir>    Transfer a single run folder
  taca cleanup               Remove aged runs from the archive
  taca status                Show tracked run states
  taca serve                 Start the localhost status API
  taca version               Print version information

Release Gate:
  taca release check-bump --base <sha> [--head <rev>]
    --base SHA      PR base commit (or GITHUB_BASE_SHA env)
    --head REV      Revision under test (default: HEAD, or GITHUB_HEAD_SHA)
    --marker PATH   Version marker file (default from config)
    --repo DIR      Repository directory (default: current directory)

  Exit codes: 0 marker changed, 1 marker unchanged, 2 operational error.

Monitor:
  taca monitor scan          One pass over the data directories
  taca monitor daemon        Keep scanning and transferring until stopped

Cleanup:
  taca cleanup --days N      Remove archived runs older than N days
  taca cleanup --hours N     ... or older than N hours (not both)
    --dry-run                Report without removing
    --confirm                Skip the interactive prompt

Status:
  taca status                All tracked runs
  taca status --state transferred
  taca status --platform ont

Global Flags:
  --config PATH   Use an alternate config file
  -q, --quiet     Minimal output
  -v, --verbose   Debug output
  --json          Output in JSON format

Configuration:
  ~/.taca/config.toml        Data dirs, destinations, thresholds, mail

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage() {
	fmt.Printf(usageText, version())
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Printf("taca version %s\n", version())
	fmt.Printf("  Git commit: %s\n", GitCommit)
	fmt.Printf("  Build date: %s\n", BuildDate)
}

// Parse parses command-line arguments and returns the command and args.
func Parse() (Command, Args) {
	return parse(os.Args[1:])
}

// parse is the testable core of Parse.
func parse(argv []string) (Command, Args) {
	remaining, args := parseGlobalFlags(argv)

	if len(remaining) == 0 {
		return CmdHelp, args
	}

	// -V is matched before lowercasing: -v is the verbose global flag.
	if remaining[0] == "-V" {
		return CmdVersion, args
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	args.Raw = remaining
	if len(remaining) > 0 && !strings.HasPrefix(remaining[0], "-") {
		args.Subcommand = remaining[0]
	}

	switch cmd {
	case "release", "gate":
		return CmdRelease, args

	case "monitor", "mon":
		return CmdMonitor, args

	case "transfer":
		return CmdTransfer, args

	case "cleanup", "clean":
		return CmdCleanup, args

	case "status", "s":
		return CmdStatus, args

	case "serve", "server":
		return CmdServe, args

	case "version", "--version":
		return CmdVersion, args

	case "help", "-h", "--help":
		return CmdHelp, args

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		return CmdHelp, args
	}
}

// parseGlobalFlags extracts global flags, returning the remaining args.
func parseGlobalFlags(argv []string) ([]string, Args) {
	var args Args
	remaining := make([]string, 0, len(argv))

	i := 0
	for i < len(argv) {
		switch argv[i] {
		case "-q", "--quiet":
			args.Quiet = true
		case "-v", "--verbose":
			args.Verbose = true
		case "--json":
			args.JSON = true
		case "--config":
			if i+1 < len(argv) {
				args.ConfigPath = argv[i+1]
				i++
			}
		default:
			if v, ok := strings.CutPrefix(argv[i], "--config="); ok {
				args.ConfigPath = v
			} else {
				remaining = append(remaining, argv[i])
			}
		}
		i++
	}

	return remaining, args
}
