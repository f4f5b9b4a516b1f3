// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build windows

package server

import "golang.org/x/sys/windows"

// usage holds filesystem capacity numbers in bytes.
type usage struct {
	Total uint64
	Free  uint64
}

// diskUsage reports the capacity of the volume holding path.
func diskUsage(path string) (usage, error) {
	var free, total, totalFree uint64
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return usage{}, err
	}
	if err := windows.GetDiskFreeSpaceEx(p, &free, &total, &totalFree); err != nil {
		return usage{}, err
	}
	return usage{Total: total, Free: free}, nil
}
