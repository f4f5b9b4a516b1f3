// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tasks provides a background task system for long-running
// external commands: rsync transfers, demultiplexing, archive moves.
//
// Tasks are queued, then executed by a Runner with bounded concurrency
// and a per-task timeout. Each task can append its stdout/stderr to
// command log files, the way cron-driven transfers expect.
package tasks
