// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// TASK STATUS
// =============================================================================

// Status represents the current state of a background task.
type Status string

const (
	// StatusQueued indicates the task is waiting to be executed
	StatusQueued Status = "Queued"

	// StatusRunning indicates the task is currently executing
	StatusRunning Status = "Running"

	// StatusComplete indicates the task finished successfully
	StatusComplete Status = "Complete"

	// StatusFailed indicates the task encountered an error
	StatusFailed Status = "Failed"

	// StatusCanceled indicates the task was canceled
	StatusCanceled Status = "Canceled"
)

// String returns the string representation of the task status.
func (s Status) String() string {
	return string(s)
}

// =============================================================================
// TASK
// =============================================================================

// Task is one external command to run in the background.
type Task struct {
	// ID is a unique identifier for this task
	ID string

	// Description is a human-readable description of what this task does
	Description string

	// RunName is the sequencing run this task belongs to ("" for none)
	RunName string

	// Command is the executable to invoke (e.g. "rsync")
	Command string

	// Args are the arguments to the command
	Args []string

	// LogDir, when set, receives <prefix>_<command>.out/.err files with
	// the task's output appended
	LogDir string

	// LogPrefix prefixes the log file names (usually the run name)
	LogPrefix string

	// Status is the current state of the task
	Status Status

	// StartTime is when the task started running
	StartTime time.Time

	// EndTime is when the task completed or failed
	EndTime time.Time

	// Output is the combined output from the task
	Output string

	// Error is the error message if the task failed
	Error string

	// cancel is the context cancel function for this task
	cancel context.CancelFunc

	// mu protects concurrent access to the task
	mu sync.RWMutex
}

// New creates a queued task for the given command.
func New(description, command string, args []string) *Task {
	return &Task{
		ID:          uuid.New().String(),
		Description: description,
		Command:     command,
		Args:        args,
		Status:      StatusQueued,
	}
}

// =============================================================================
// STATE
// =============================================================================

// SetStatus updates the task status, validating the transition.
// Valid transitions: Queued -> Running -> Complete/Failed/Canceled.
func (t *Task) SetStatus(status Status) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !validTransition(t.Status, status) {
		return fmt.Errorf("invalid status transition from %s to %s", t.Status, status)
	}
	t.Status = status
	return nil
}

func validTransition(from, to Status) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusQueued:
		return to == StatusRunning || to == StatusCanceled
	case StatusRunning:
		return to == StatusComplete || to == StatusFailed || to == StatusCanceled
	default:
		// Terminal states
		return false
	}
}

// GetStatus returns the current task status.
func (t *Task) GetStatus() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Status
}

// AppendOutput appends text to the task output.
func (t *Task) AppendOutput(output string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Output += output
}

// GetOutput returns the accumulated output.
func (t *Task) GetOutput() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Output
}

// GetError returns the error message.
func (t *Task) GetError() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Error
}

// MarkStarted marks the task as running.
func (t *Task) MarkStarted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Status = StatusRunning
	t.StartTime = time.Now()
}

// MarkComplete marks the task as successfully completed.
func (t *Task) MarkComplete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Status = StatusComplete
	t.EndTime = time.Now()
}

// MarkCanceled marks the task as canceled.
func (t *Task) MarkCanceled() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Status = StatusCanceled
	t.EndTime = time.Now()
}

// SetError records err and marks the task failed.
func (t *Task) SetError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.Error = err.Error()
		t.Status = StatusFailed
		t.EndTime = time.Now()
	}
}

// SetCancelFunc stores the context cancel function for this task.
// Must only be called once, during task start.
func (t *Task) SetCancelFunc(cancel context.CancelFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancel = cancel
}

// Cancel cancels the task if it is queued or running.
// Returns true if the task was canceled.
func (t *Task) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Status != StatusRunning && t.Status != StatusQueued {
		return false
	}
	if t.cancel != nil {
		t.cancel()
	}
	t.Status = StatusCanceled
	t.EndTime = time.Now()
	return true
}

// Duration returns how long the task has been running or took to complete.
func (t *Task) Duration() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.StartTime.IsZero() {
		return 0
	}
	if t.EndTime.IsZero() {
		return time.Since(t.StartTime)
	}
	return t.EndTime.Sub(t.StartTime)
}

// Done reports whether the task has reached a terminal state.
func (t *Task) Done() bool {
	status := t.GetStatus()
	return status == StatusComplete || status == StatusFailed || status == StatusCanceled
}

// Summary returns a one-line summary of the task.
func (t *Task) Summary() string {
	status := t.GetStatus()
	summary := fmt.Sprintf("[%s] %s - %s", t.ID[:8], t.Description, status)
	if d := t.Duration(); d > 0 {
		summary += fmt.Sprintf(" (%.1fs)", d.Seconds())
	}
	return summary
}

// Clone returns a copy of the task safe for reading.
func (t *Task) Clone() *Task {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return &Task{
		ID:          t.ID,
		Description: t.Description,
		RunName:     t.RunName,
		Command:     t.Command,
		Args:        append([]string{}, t.Args...),
		LogDir:      t.LogDir,
		LogPrefix:   t.LogPrefix,
		Status:      t.Status,
		StartTime:   t.StartTime,
		EndTime:     t.EndTime,
		Output:      t.Output,
		Error:       t.Error,
	}
}
