// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// =============================================================================
// TASK RUNNER
// =============================================================================

// Runner executes background tasks from a queue.
type Runner struct {
	queue         *Queue
	wg            sync.WaitGroup
	stop          chan struct{}
	stopped       atomic.Bool   // Prevents new tasks after Stop()
	maxConcurrent int           // Maximum number of concurrent tasks
	semaphore     chan struct{} // Semaphore to limit concurrency
	taskTimeout   time.Duration // Timeout for each task (0 = no timeout)
}

// NewRunner creates a task runner with custom settings.
// maxConcurrent: maximum number of tasks to run concurrently
// taskTimeout: timeout for each task (0 = no timeout)
func NewRunner(queue *Queue, maxConcurrent int, taskTimeout time.Duration) *Runner {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	return &Runner{
		queue:         queue,
		stop:          make(chan struct{}),
		maxConcurrent: maxConcurrent,
		semaphore:     make(chan struct{}, maxConcurrent),
		taskTimeout:   taskTimeout,
	}
}

// =============================================================================
// RUNNER LIFECYCLE
// =============================================================================

// Start begins processing tasks from the queue.
func (r *Runner) Start() {
	go r.processLoop()
}

// Stop gracefully stops the runner.
// Waits for currently running tasks to complete.
func (r *Runner) Stop() {
	r.stopped.Store(true)
	close(r.stop)
	r.wg.Wait()
}

// =============================================================================
// TASK PROCESSING
// =============================================================================

// processLoop continuously picks up queued tasks.
func (r *Runner) processLoop() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			if r.stopped.Load() {
				return
			}
			for _, task := range r.queue.Queued() {
				if r.stopped.Load() {
					return
				}
				select {
				case r.semaphore <- struct{}{}:
					r.wg.Add(1)
					go r.executeTask(task)
				case <-r.stop:
					return
				}
			}
		}
	}
}

// executeTask executes a single task.
func (r *Runner) executeTask(task *Task) {
	defer r.wg.Done()
	defer func() { <-r.semaphore }()

	r.queue.MarkRunning(task)

	var ctx context.Context
	var cancel context.CancelFunc
	if r.taskTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), r.taskTimeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	task.SetCancelFunc(cancel)
	defer cancel()

	err := runCommand(ctx, task)

	switch {
	case err == nil:
		r.queue.MarkComplete(task)
	case errors.Is(ctx.Err(), context.Canceled):
		r.queue.MarkCanceled(task)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		r.queue.MarkFailed(task, fmt.Errorf("task timeout after %v: %w", r.taskTimeout, err))
	default:
		r.queue.MarkFailed(task, err)
	}
}

// =============================================================================
// COMMAND EXECUTION
// =============================================================================

// runCommand invokes the task's command directly (no shell) and
// captures its output. When LogDir is set, stdout and stderr are also
// appended to <prefix>_<command>.out / .err files under LogDir, with a
// timestamped header, so cron-driven transfers leave an audit trail on
// disk next to the data.
func runCommand(ctx context.Context, task *Task) error {
	cmd := exec.CommandContext(ctx, task.Command, task.Args...)

	outSinks := []io.Writer{taskWriter{task, false}}
	errSinks := []io.Writer{taskWriter{task, true}}

	if task.LogDir != "" {
		outLog, errLog, err := openTaskLogs(task)
		if err != nil {
			return err
		}
		defer outLog.Close()
		defer errLog.Close()
		outSinks = append(outSinks, outLog)
		errSinks = append(errSinks, errLog)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", task.Command, err)
	}

	// stdout/stderr interleaving is non-deterministic: lines from the
	// two pipes may appear in any order in the combined task output.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		copyLines(stdout, io.MultiWriter(outSinks...))
	}()
	go func() {
		defer wg.Done()
		copyLines(stderr, io.MultiWriter(errSinks...))
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("command %s failed: %w", task.Command, err)
	}
	return nil
}

// taskWriter funnels pipe output into the task's output buffer.
type taskWriter struct {
	task    *Task
	isError bool
}

func (w taskWriter) Write(p []byte) (int, error) {
	line := string(p)
	if w.isError {
		line = "[STDERR] " + line
	}
	w.task.AppendOutput(line)
	return len(p), nil
}

// copyLines reads pipe line by line and writes each line to w.
func copyLines(pipe io.ReadCloser, w io.Writer) {
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		fmt.Fprintln(w, scanner.Text())
	}
}

// openTaskLogs opens the .out and .err append logs for a task and
// writes the started-command header to the .out file.
func openTaskLogs(task *Task) (outLog, errLog *os.File, err error) {
	if mkErr := os.MkdirAll(task.LogDir, 0755); mkErr != nil {
		return nil, nil, fmt.Errorf("failed to create log dir: %w", mkErr)
	}

	base := filepath.Base(task.Command)
	if task.LogPrefix != "" {
		base = task.LogPrefix + "_" + base
	}
	logPath := filepath.Join(task.LogDir, base)

	outLog, err = os.OpenFile(logPath+".out", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open stdout log: %w", err)
	}
	errLog, err = os.OpenFile(logPath+".err", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		outLog.Close()
		return nil, nil, fmt.Errorf("failed to open stderr log: %w", err)
	}

	fmt.Fprintf(outLog, "Started command %s %v on %s\n", task.Command, task.Args,
		time.Now().Format(time.RFC3339))
	return outLog, errLog, nil
}

// Execute runs a task immediately without queuing.
// Useful for one-off foreground commands (a single manual transfer).
func Execute(ctx context.Context, task *Task) error {
	task.MarkStarted()

	ctx, cancel := context.WithCancel(ctx)
	task.SetCancelFunc(cancel)
	defer cancel()

	err := runCommand(ctx, task)
	switch {
	case err == nil:
		task.MarkComplete()
	case errors.Is(ctx.Err(), context.Canceled):
		task.MarkCanceled()
	default:
		task.SetError(err)
	}
	return err
}
