package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// TaskFunc represents asynchronous backend work started by a renderer.
type TaskFunc func(ctx context.Context, output OutputChannel) error

// TaskStatus enumerates async task states.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// TaskOptions configure async tasks.
type TaskOptions struct {
	Timeout    time.Duration
	Metadata   map[string]any
	Invocation string
	Parent     context.Context
	Output     OutputChannel
}

// TaskHandle is a snapshot of a task.
type TaskHandle struct {
	ID         string
	Name       string
	Invocation string
	Status     TaskStatus
	Error      error
	Metadata   map[string]any
	StartedAt  time.Time
	EndedAt    time.Time
	cancel     context.CancelFunc
	done       chan struct{}
}

// Done is closed when the task finishes.
func (h *TaskHandle) Done() <-chan struct{} { return h.done }

// TaskManager supervises background tasks.
type TaskManager struct {
	mu     sync.RWMutex
	seq    int
	tasks  map[string]*TaskHandle
	output OutputChannel
	logger *slog.Logger
}

// NewTaskManager constructs a TaskManager.
func NewTaskManager(output OutputChannel, logger *slog.Logger) *TaskManager {
	if logger == nil {
		logger = discardLogger()
	}
	return &TaskManager{tasks: map[string]*TaskHandle{}, output: output, logger: logger}
}

// SetOutputChannel swaps the default channel handed to new tasks.
func (m *TaskManager) SetOutputChannel(out OutputChannel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.output = out
}

// Spawn launches fn in its own goroutine.
func (m *TaskManager) Spawn(name string, fn TaskFunc, opts TaskOptions) *TaskHandle {
	parent := opts.Parent
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	if opts.Timeout > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, opts.Timeout)
		outer := cancel
		cancel = func() { timeoutCancel(); outer() }
	}

	m.mu.Lock()
	m.seq++
	handle := &TaskHandle{
		ID:         fmt.Sprintf("task-%d", m.seq),
		Name:       name,
		Invocation: opts.Invocation,
		Status:     TaskPending,
		Metadata:   opts.Metadata,
		StartedAt:  time.Now(),
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	m.tasks[handle.ID] = handle
	output := opts.Output
	if output == nil {
		output = m.output
	}
	m.mu.Unlock()

	go func() {
		defer cancel()
		defer close(handle.done)
		m.updateStatus(handle.ID, TaskRunning, nil)
		err := fn(ctx, output)
		switch {
		case errors.Is(err, context.Canceled):
			m.updateStatus(handle.ID, TaskCancelled, err)
		case err == nil:
			m.updateStatus(handle.ID, TaskSucceeded, nil)
		default:
			m.updateStatus(handle.ID, TaskFailed, err)
			m.logger.Warn("task failed",
				slog.String("task", handle.ID),
				slog.String("name", name),
				slog.String("invocation", opts.Invocation),
				slog.String("error", err.Error()))
		}
	}()

	return m.snapshot(handle)
}

func (m *TaskManager) updateStatus(id string, status TaskStatus, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	handle, ok := m.tasks[id]
	if !ok {
		return
	}
	handle.Status = status
	handle.Error = err
	if status != TaskRunning {
		handle.EndedAt = time.Now()
	}
}

func (m *TaskManager) snapshot(h *TaskHandle) *TaskHandle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c := *h
	return &c
}

// Cancel cancels a task by ID.
func (m *TaskManager) Cancel(id string) bool {
	m.mu.RLock()
	handle, ok := m.tasks[id]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	handle.cancel()
	return true
}

// CancelInvocation cancels every task spawned for an invocation and returns how many.
func (m *TaskManager) CancelInvocation(invocation string) int {
	m.mu.RLock()
	var handles []*TaskHandle
	for _, t := range m.tasks {
		if t.Invocation == invocation {
			handles = append(handles, t)
		}
	}
	m.mu.RUnlock()
	for _, h := range handles {
		h.cancel()
	}
	return len(handles)
}

// Tasks lists task snapshots ordered by ID sequence.
func (m *TaskManager) Tasks() []*TaskHandle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]*TaskHandle, 0, len(m.tasks))
	for i := 1; i <= m.seq; i++ {
		t, ok := m.tasks[fmt.Sprintf("task-%d", i)]
		if !ok {
			continue
		}
		c := *t
		list = append(list, &c)
	}
	return list
}

// DescribeTask returns a snapshot by ID.
func (m *TaskManager) DescribeTask(id string) (*TaskHandle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.tasks[id]
	if !ok {
		return nil, false
	}
	c := *h
	return &c, true
}

// Prune drops finished tasks and returns how many were removed.
func (m *TaskManager) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, t := range m.tasks {
		switch t.Status {
		case TaskSucceeded, TaskFailed, TaskCancelled:
			delete(m.tasks, id)
			removed++
		}
	}
	return removed
}
