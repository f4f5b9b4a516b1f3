// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transfer moves finished sequencing runs to destination storage.
//
// A transfer is an rsync of the run folder to the configured destination,
// followed by a .sync_finished marker in the source folder and an entry in
// the tab-separated transfer log. Runs that have been synced can then be
// archived locally, and archived copies are removed once the run is
// confirmed present at the destination.
package transfer
