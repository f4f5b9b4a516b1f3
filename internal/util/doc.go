// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small shared helpers for taca: atomic file
// writes, string truncation, and byte-size formatting.
//
// Nothing in this package knows about sequencing runs or the status
// database; it is plumbing shared by the domain packages.
package util
