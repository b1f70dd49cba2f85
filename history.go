package console

import (
	"context"
	"sync"
	"time"
)

// Invocation pairs a submitted command with its execution session.
type Invocation struct {
	Command     Command
	Session     *ExecutionSession
	SubmittedAt time.Time
	renderer    Renderer
	ctx         context.Context
	cancel      context.CancelFunc
}

// ID returns the invocation identity.
func (i *Invocation) ID() string { return i.Session.ID() }

// Record builds the persisted form of the invocation.
func (i *Invocation) Record() InvocationRecord {
	return InvocationRecord{
		ID:          i.Session.ID(),
		Command:     i.Command.Name(),
		Input:       i.Command.Input,
		Status:      i.Session.Status(),
		Store:       i.Session.Store().Map(),
		SubmittedAt: i.SubmittedAt,
		ResolvedAt:  i.Session.ResolvedAt(),
	}
}

// InvocationRecord is what a HistoryRecorder persists.
type InvocationRecord struct {
	ID          string
	Command     string
	Input       string
	Status      Status
	Store       map[string]any
	SubmittedAt time.Time
	ResolvedAt  time.Time
}

// HistoryRecorder persists resolved invocations.
type HistoryRecorder interface {
	Record(ctx context.Context, rec InvocationRecord) error
}

// History tracks invocations keyed by identity, in submission order.
type History struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*Invocation
}

// NewHistory constructs an empty history.
func NewHistory() *History {
	return &History{entries: map[string]*Invocation{}}
}

func (h *History) add(inv *Invocation) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := inv.ID()
	if _, exists := h.entries[id]; !exists {
		h.order = append(h.order, id)
	}
	h.entries[id] = inv
}

// Get returns the invocation with id.
func (h *History) Get(id string) (*Invocation, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	inv, ok := h.entries[id]
	return inv, ok
}

// List returns invocations in submission order.
func (h *History) List() []*Invocation {
	h.mu.RLock()
	defer h.mu.RUnlock()
	list := make([]*Invocation, 0, len(h.order))
	for _, id := range h.order {
		list = append(list, h.entries[id])
	}
	return list
}

// Len returns the number of tracked invocations.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.order)
}

// Pending returns invocations that have not reached a terminal status.
func (h *History) Pending() []*Invocation {
	var pending []*Invocation
	for _, inv := range h.List() {
		if !inv.Session.Status().Terminal() {
			pending = append(pending, inv)
		}
	}
	return pending
}

// Evict drops the record for id and cancels its invocation context.
func (h *History) Evict(id string) bool {
	h.mu.Lock()
	inv, ok := h.entries[id]
	if ok {
		delete(h.entries, id)
		for i, candidate := range h.order {
			if candidate == id {
				h.order = append(h.order[:i], h.order[i+1:]...)
				break
			}
		}
	}
	h.mu.Unlock()
	if ok && inv.cancel != nil {
		inv.cancel()
	}
	return ok
}

// Clear evicts every record.
func (h *History) Clear() int {
	h.mu.Lock()
	entries := h.entries
	h.entries = map[string]*Invocation{}
	h.order = nil
	h.mu.Unlock()
	for _, inv := range entries {
		if inv.cancel != nil {
			inv.cancel()
		}
	}
	return len(entries)
}
