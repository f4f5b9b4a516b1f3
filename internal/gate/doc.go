// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gate implements the release version-bump check used as a
// required check on pull requests.
//
// The check diffs a single version-marker file between the pull
// request's base commit and HEAD. A pull request that does not touch
// the marker has not bumped the release version and must not merge.
package gate
