// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the localhost status HTTP API.
//
// Endpoints:
//   - GET /health    - Health check with uptime
//   - GET /api/runs  - Run status documents (filter by ?state= and ?platform=)
//   - GET /api/disk  - Disk usage of the monitored data directories
//
// The server binds to 127.0.0.1 only; it reports status and never mutates
// anything.
package server
