// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build !windows

package server

import "golang.org/x/sys/unix"

// usage holds filesystem capacity numbers in bytes.
type usage struct {
	Total uint64
	Free  uint64
}

// diskUsage reports the capacity of the filesystem holding path.
// Free space is what an unprivileged writer can use (f_bavail).
func diskUsage(path string) (usage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return usage{}, err
	}
	bsize := uint64(st.Bsize)
	return usage{
		Total: st.Blocks * bsize,
		Free:  st.Bavail * bsize,
	}, nil
}
