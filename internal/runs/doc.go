// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package runs models sequencing run directories: the naming patterns
// that identify them, the platform each name implies, the marker files
// that signal sequencing and transfer completion, and the lifecycle
// state a run moves through from sequencing to archived.
package runs
