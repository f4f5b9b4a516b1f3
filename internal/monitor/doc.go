// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package monitor discovers sequencing runs and drives them through their
// lifecycle.
//
// A scan walks the configured data directories, classifies each run folder
// and decides the next action: record runs still sequencing, queue a
// transfer for finished runs, mark synced runs transferred, and archive
// transferred runs. In daemon mode scans are triggered by filesystem
// events (fsnotify, with a polling fallback) and bounded by a rate limiter
// so event storms collapse into a single scan.
package monitor
