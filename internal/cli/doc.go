// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the taca command-line interface.
//
// Commands:
//   - release  - version-bump gate for pull requests
//   - monitor  - run discovery (one-shot scan or daemon)
//   - transfer - transfer a single run folder
//   - cleanup  - remove aged runs from the archive
//   - status   - show tracked run states
//   - serve    - localhost status HTTP API
//   - version  - print version information
//
// Output is styled for interactive terminals and falls back to plain
// text for pipes and CI. Every command supports --json for machine
// consumption.
package cli
