// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package monitor

import (
	"context"
	"log"
	"time"

	"github.com/fsnotify/fsnotify"
)

// =============================================================================
// DAEMON LOOP
// =============================================================================

// Daemon runs the monitor until the context is canceled: background task
// runner, filesystem watcher (when enabled and available) and a periodic
// scan at the configured interval.
func (m *Monitor) Daemon(ctx context.Context) error {
	m.runner.Start()
	defer m.runner.Stop()

	if m.cfg.Monitor.Watch {
		watcher, err := m.startWatcher(ctx)
		if err != nil {
			log.Printf("monitor: watcher unavailable, relying on periodic scans: %v", err)
		} else {
			defer watcher.Close()
		}
	}

	interval := time.Duration(m.cfg.Monitor.ScanIntervalSecs) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial scan before the first tick.
	if err := m.Scan(ctx); err != nil {
		log.Printf("monitor: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			if err := m.Scan(ctx); err != nil {
				log.Printf("monitor: %v", err)
			}

		case <-m.trigger:
			// Watcher-triggered scans are rate limited so event bursts
			// collapse into one pass.
			if !m.limiter.Allow() {
				continue
			}
			if err := m.Scan(ctx); err != nil {
				log.Printf("monitor: %v", err)
			}

		case n := <-m.queue.Notifications():
			m.handleNotification(ctx, n)
		}
	}
}

// requestScan wakes the daemon loop without blocking.
func (m *Monitor) requestScan() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

// =============================================================================
// FILESYSTEM WATCHER
// =============================================================================

// startWatcher watches the top level of each data directory for new or
// changed run folders. Marker files (RTAComplete.txt and friends) land
// inside run folders, so those are watched too as they appear.
func (m *Monitor) startWatcher(ctx context.Context) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	for _, dir := range m.cfg.Monitor.DataDirs {
		if err := watcher.Add(dir); err != nil {
			log.Printf("monitor: cannot watch %s: %v", dir, err)
		}
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				// New run folders get watched so their marker files
				// trigger scans as sequencing finishes.
				if event.Op&fsnotify.Create != 0 {
					watcher.Add(event.Name)
				}
				m.requestScan()

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("monitor: watcher error: %v", err)
			}
		}
	}()

	return watcher, nil
}
