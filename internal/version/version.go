// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package version holds the single version marker for taca.
//
// Releases bump the Version constant below. The release gate
// (taca release check-bump) fails a pull request when this file
// is unchanged between the PR base commit and HEAD, so every
// merged change that ships must touch this file.
package version

// MarkerPath is the repository-relative path of this file. The release
// gate diffs exactly this path between the base commit and HEAD.
const MarkerPath = "internal/version/version.go"

// Version is the current taca release.
const Version = "1.2.0"

// UserAgent returns the identifier taca uses for outbound requests
// and status documents.
func UserAgent() string {
	return "taca/" + Version
}
