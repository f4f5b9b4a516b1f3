// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// =============================================================================
// TASK QUEUE
// =============================================================================

// Queue manages background tasks with thread-safe operations.
type Queue struct {
	// tasks is the list of all tasks (both queued and completed)
	tasks []*Task

	// running tracks currently running tasks by ID
	running map[string]*Task

	// maxHistory is the maximum number of completed tasks to keep
	maxHistory int

	// mu protects concurrent access to the queue
	mu sync.RWMutex

	// notifyChan sends notifications when tasks finish
	notifyChan chan Notification
}

// Notification reports a task reaching a terminal state.
type Notification struct {
	TaskID      string
	RunName     string
	Description string
	Status      Status
	Error       string
	Duration    time.Duration
}

// NewQueue creates a new task queue.
// maxHistory sets the maximum number of completed tasks to keep (0 = unlimited).
func NewQueue(maxHistory int) *Queue {
	return &Queue{
		tasks:      make([]*Task, 0),
		running:    make(map[string]*Task),
		maxHistory: maxHistory,
		notifyChan: make(chan Notification, 100),
	}
}

// =============================================================================
// TASK MANAGEMENT
// =============================================================================

// Add adds a new task to the queue.
func (q *Queue) Add(task *Task) {
	q.mu.Lock()
	defer q.mu.Unlock()

	_ = task.SetStatus(StatusQueued)
	q.tasks = append(q.tasks, task)
}

// Get retrieves a copy of a task by ID, or nil when not found.
func (q *Queue) Get(id string) *Task {
	q.mu.RLock()
	defer q.mu.RUnlock()

	for _, task := range q.tasks {
		if task.ID == id {
			return task.Clone()
		}
	}
	return nil
}

// HasActive reports whether a task for the given run is queued or
// running. The monitor uses this to avoid scheduling the same transfer
// twice across scan cycles.
func (q *Queue) HasActive(runName string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	for _, task := range q.tasks {
		if task.RunName != runName {
			continue
		}
		switch task.GetStatus() {
		case StatusQueued, StatusRunning:
			return true
		}
	}
	return false
}

// Cancel cancels a task by ID. Returns true on success.
func (q *Queue) Cancel(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if task, ok := q.running[id]; ok {
		return task.Cancel()
	}
	for _, task := range q.tasks {
		if task.ID == id && task.GetStatus() == StatusQueued {
			task.MarkCanceled()
			return true
		}
	}
	return false
}

// MarkRunning marks a task as running.
func (q *Queue) MarkRunning(task *Task) {
	q.mu.Lock()
	defer q.mu.Unlock()

	task.MarkStarted()
	q.running[task.ID] = task
}

// MarkComplete marks a task as complete and removes it from running.
func (q *Queue) MarkComplete(task *Task) {
	q.mu.Lock()
	defer q.mu.Unlock()

	task.MarkComplete()
	delete(q.running, task.ID)
	q.notify(Notification{
		TaskID:      task.ID,
		RunName:     task.RunName,
		Description: task.Description,
		Status:      StatusComplete,
		Duration:    task.Duration(),
	})
	q.cleanupLocked()
}

// MarkFailed marks a task as failed and removes it from running.
func (q *Queue) MarkFailed(task *Task, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	task.SetError(err)
	delete(q.running, task.ID)
	q.notify(Notification{
		TaskID:      task.ID,
		RunName:     task.RunName,
		Description: task.Description,
		Status:      StatusFailed,
		Error:       err.Error(),
		Duration:    task.Duration(),
	})
	q.cleanupLocked()
}

// MarkCanceled marks a task as canceled and removes it from running.
func (q *Queue) MarkCanceled(task *Task) {
	q.mu.Lock()
	defer q.mu.Unlock()

	task.MarkCanceled()
	delete(q.running, task.ID)
	q.notify(Notification{
		TaskID:      task.ID,
		RunName:     task.RunName,
		Description: task.Description,
		Status:      StatusCanceled,
		Duration:    task.Duration(),
	})
	q.cleanupLocked()
}

// =============================================================================
// QUEUE QUERIES
// =============================================================================

// All returns a copy of all tasks.
func (q *Queue) All() []*Task {
	q.mu.RLock()
	defer q.mu.RUnlock()

	result := make([]*Task, len(q.tasks))
	for i, task := range q.tasks {
		result[i] = task.Clone()
	}
	return result
}

// Queued returns all queued (not yet started) tasks.
// Returns original task pointers, not clones: the runner marks these
// running and must operate on the queued instances themselves.
func (q *Queue) Queued() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	result := make([]*Task, 0)
	for _, task := range q.tasks {
		if task.GetStatus() == StatusQueued {
			result = append(result, task)
		}
	}
	return result
}

// Count returns the total number of tasks.
func (q *Queue) Count() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.tasks)
}

// RunningCount returns the number of running tasks.
func (q *Queue) RunningCount() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.running)
}

// Summary returns a formatted summary of the queue.
func (q *Queue) Summary() string {
	q.mu.RLock()
	defer q.mu.RUnlock()

	running := len(q.running)
	queued, completed, failed := 0, 0, 0
	for _, task := range q.tasks {
		switch task.GetStatus() {
		case StatusQueued:
			queued++
		case StatusComplete:
			completed++
		case StatusFailed:
			failed++
		}
	}
	return fmt.Sprintf("Running: %d | Queued: %d | Completed: %d | Failed: %d",
		running, queued, completed, failed)
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

// Notifications returns the notification channel. The monitor reads
// from it to update the status database when transfers finish.
func (q *Queue) Notifications() <-chan Notification {
	return q.notifyChan
}

// notify sends a notification (must be called with lock held).
func (q *Queue) notify(n Notification) {
	select {
	case q.notifyChan <- n:
	default:
		log.Printf("WARNING: notification channel full, dropped notification for task %s (status: %s)",
			n.TaskID, n.Status)
	}
}

// =============================================================================
// CLEANUP
// =============================================================================

// cleanupLocked removes old completed tasks to keep history bounded.
// Must be called with lock held.
func (q *Queue) cleanupLocked() {
	if q.maxHistory <= 0 {
		return
	}

	completedCount := 0
	for _, task := range q.tasks {
		if task.Done() {
			completedCount++
		}
	}
	if completedCount <= q.maxHistory {
		return
	}

	toRemove := completedCount - q.maxHistory
	newTasks := make([]*Task, 0, len(q.tasks)-toRemove)
	for _, task := range q.tasks {
		if task.Done() && toRemove > 0 {
			toRemove--
			continue
		}
		newTasks = append(newTasks, task)
	}
	q.tasks = newTasks
}
