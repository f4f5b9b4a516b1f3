// taca - sequencing run tracking and automation.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"os"

	"github.com/jeranaias/taca/internal/cli"
)

// Version information (set at build time)
var (
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	// Sync version info with cli package
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse()

	switch cmd {
	case cli.CmdRelease:
		// The release gate speaks through its exit code so CI can gate
		// merges on it: 0 bumped, 1 not bumped, 2 operational error.
		os.Exit(cli.HandleRelease(args))

	case cli.CmdMonitor:
		exitOnError(cli.HandleMonitor(args))

	case cli.CmdTransfer:
		exitOnError(cli.HandleTransfer(args))

	case cli.CmdCleanup:
		exitOnError(cli.HandleCleanup(args))

	case cli.CmdStatus:
		exitOnError(cli.HandleStatus(args))

	case cli.CmdServe:
		exitOnError(cli.HandleServe(args))

	case cli.CmdVersion:
		exitOnError(cli.HandleVersion(args))

	case cli.CmdHelp:
		cli.PrintUsage()

	default:
		cli.PrintUsage()
		os.Exit(1)
	}
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
