// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/taca/internal/config"
	"github.com/jeranaias/taca/internal/runs"
	"github.com/jeranaias/taca/internal/statusdb"
	"github.com/jeranaias/taca/internal/tasks"
	"github.com/jeranaias/taca/internal/transfer"
)

// =============================================================================
// MONITOR
// =============================================================================

// Notifier delivers failure notifications. A nil Notifier disables them.
type Notifier interface {
	Send(subject, body string) error
}

// Monitor scans data directories and advances runs through their lifecycle.
type Monitor struct {
	cfg    *config.Config
	store  *statusdb.Store
	tr     *transfer.Transferrer
	queue  *tasks.Queue
	runner *tasks.Runner
	mailer Notifier

	// limiter collapses bursts of watcher events into one scan
	limiter *rate.Limiter

	// trigger wakes the daemon loop for an immediate scan
	trigger chan struct{}
}

// New creates a Monitor. mailer may be nil.
func New(cfg *config.Config, store *statusdb.Store, mailer Notifier) (*Monitor, error) {
	if len(cfg.Monitor.DataDirs) == 0 {
		return nil, errors.New("no data directories configured")
	}

	tr, err := transfer.New(transfer.Options{
		Destination:  cfg.Transfer.Destination,
		ArchiveDir:   cfg.Transfer.ArchiveDir,
		TransferLog:  cfg.Transfer.TransferLog,
		RsyncOptions: cfg.Transfer.RsyncOptions,
		LogDir:       cfg.LogDir(),
		Checksum:     cfg.Transfer.Checksum,
	})
	if err != nil {
		return nil, err
	}

	queue := tasks.NewQueue(200)
	timeout := time.Duration(cfg.Monitor.TaskTimeoutMins) * time.Minute

	return &Monitor{
		cfg:     cfg,
		store:   store,
		tr:      tr,
		queue:   queue,
		runner:  tasks.NewRunner(queue, cfg.Monitor.MaxConcurrent, timeout),
		mailer:  mailer,
		limiter: rate.NewLimiter(rate.Every(10*time.Second), 1),
		trigger: make(chan struct{}, 1),
	}, nil
}

// Queue exposes the task queue for status reporting.
func (m *Monitor) Queue() *tasks.Queue {
	return m.queue
}

// Scan walks the data directories once and advances every run it finds.
// Errors on individual runs are logged, not fatal.
func (m *Monitor) Scan(ctx context.Context) error {
	found, err := runs.FindRuns(m.cfg.Monitor.DataDirs, m.cfg.Monitor.ExcludeDirs)
	if err != nil {
		return fmt.Errorf("run discovery failed: %w", err)
	}

	for _, run := range found {
		if err := m.advance(ctx, run); err != nil {
			log.Printf("monitor: %s: %v", run.Name, err)
		}
	}
	return nil
}

// advance decides and performs the next action for one run.
func (m *Monitor) advance(ctx context.Context, run *runs.Run) error {
	doc, err := m.store.Get(ctx, run.Name)
	if errors.Is(err, statusdb.ErrNotFound) {
		doc = &statusdb.Document{
			Name:     run.Name,
			Platform: run.Platform,
			State:    runs.StateSequencing,
			Path:     run.Path,
			Flowcell: run.FlowcellID(),
		}
		if err := m.store.Upsert(ctx, doc); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	switch {
	case !run.SequencingDone():
		// Instrument still writing, nothing to do.
		return nil

	case run.Synced():
		// A synced run first seen as sequencing or failed (rebuilt status
		// database, manual transfer of an untracked run) is adopted by
		// walking it through transferring so the transition stays valid.
		if doc.State == runs.StateSequencing || doc.State == runs.StateFailed {
			if err := m.store.SetState(ctx, run.Name, runs.StateTransferring); err != nil {
				return err
			}
			doc.State = runs.StateTransferring
		}
		if doc.State == runs.StateTransferring {
			if err := m.store.SetState(ctx, run.Name, runs.StateTransferred); err != nil {
				return err
			}
			doc.State = runs.StateTransferred
		}
		if doc.State == runs.StateTransferred && m.cfg.Transfer.ArchiveDir != "" {
			return m.archive(ctx, run)
		}
		return nil

	default:
		return m.queueTransfer(ctx, run, doc)
	}
}

// queueTransfer queues an rsync task for a finished, unsynced run. At most
// one task per run is active at a time, so repeated scans are safe.
func (m *Monitor) queueTransfer(ctx context.Context, run *runs.Run, doc *statusdb.Document) error {
	if m.queue.HasActive(run.Name) {
		return nil
	}
	if doc.State != runs.StateSequencing && doc.State != runs.StateFailed &&
		doc.State != runs.StateTransferring {
		return nil
	}

	if err := m.store.SetState(ctx, run.Name, runs.StateTransferring); err != nil {
		return err
	}
	task := m.tr.NewTask(run)
	m.queue.Add(task)
	log.Printf("monitor: queued transfer of %s", run.Name)
	return nil
}

// archive moves a transferred run to the archive directory.
func (m *Monitor) archive(ctx context.Context, run *runs.Run) error {
	dest, err := m.tr.Archive(run)
	if err != nil {
		return err
	}
	if err := m.store.SetState(ctx, run.Name, runs.StateArchived); err != nil {
		return err
	}
	log.Printf("monitor: archived %s to %s", run.Name, dest)
	return nil
}

// RunQueued executes queued transfer tasks in the foreground, recording
// each outcome as it lands. Used by one-shot scans; the daemon uses the
// background runner instead.
func (m *Monitor) RunQueued(ctx context.Context) {
	for _, task := range m.queue.Queued() {
		m.queue.MarkRunning(task)
		if err := tasks.Execute(ctx, task); err != nil {
			m.queue.MarkFailed(task, err)
		} else {
			m.queue.MarkComplete(task)
		}

		select {
		case n := <-m.queue.Notifications():
			m.handleNotification(ctx, n)
		default:
		}
	}
}

// =============================================================================
// TASK COMPLETION
// =============================================================================

// handleNotification records the outcome of a finished background task.
func (m *Monitor) handleNotification(ctx context.Context, n tasks.Notification) {
	if n.RunName == "" {
		return
	}

	switch n.Status {
	case tasks.StatusComplete:
		run, err := m.findRun(n.RunName)
		if err != nil {
			log.Printf("monitor: %s finished but folder missing: %v", n.RunName, err)
			return
		}
		if err := m.tr.Verify(run); err != nil {
			log.Printf("monitor: verification of %s failed: %v", n.RunName, err)
			if serr := m.store.SetState(ctx, n.RunName, runs.StateFailed); serr != nil {
				log.Printf("monitor: %s: %v", n.RunName, serr)
			}
			if serr := m.store.SetNote(ctx, n.RunName, err.Error()); serr != nil {
				log.Printf("monitor: %s: %v", n.RunName, serr)
			}
			m.mailFailure(tasks.Notification{
				RunName:     n.RunName,
				Description: n.Description,
				Error:       err.Error(),
			})
			return
		}
		if err := m.tr.Finalize(run); err != nil {
			log.Printf("monitor: %v", err)
			return
		}
		if err := m.store.SetState(ctx, n.RunName, runs.StateTransferred); err != nil {
			log.Printf("monitor: %s: %v", n.RunName, err)
			return
		}
		log.Printf("monitor: transfer of %s complete (%s)", n.RunName, n.Duration.Round(time.Second))

	case tasks.StatusFailed, tasks.StatusCanceled:
		if err := m.store.SetState(ctx, n.RunName, runs.StateFailed); err != nil {
			log.Printf("monitor: %s: %v", n.RunName, err)
		}
		if err := m.store.SetNote(ctx, n.RunName, n.Error); err != nil {
			log.Printf("monitor: %s: %v", n.RunName, err)
		}
		log.Printf("monitor: transfer of %s failed: %s", n.RunName, n.Error)
		m.mailFailure(n)
	}
}

// findRun locates a run folder by name across the data directories.
func (m *Monitor) findRun(name string) (*runs.Run, error) {
	found, err := runs.FindRuns(m.cfg.Monitor.DataDirs, m.cfg.Monitor.ExcludeDirs)
	if err != nil {
		return nil, err
	}
	for _, run := range found {
		if run.Name == name {
			return run, nil
		}
	}
	return nil, fmt.Errorf("run %s not found in data directories", name)
}

// mailFailure sends a failure notification when a mailer is configured.
func (m *Monitor) mailFailure(n tasks.Notification) {
	if m.mailer == nil {
		return
	}
	subject := fmt.Sprintf("transfer of %s failed", n.RunName)
	body := fmt.Sprintf("Task: %s\nRun: %s\nError: %s\n", n.Description, n.RunName, n.Error)
	if err := m.mailer.Send(subject, body); err != nil {
		log.Printf("monitor: failed to send notification: %v", err)
	}
}
