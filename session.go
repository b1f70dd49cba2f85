package console

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is an immutable key/value record. The zero value is an empty store.
// Values are copied shallowly: callers should store values, not pointers they
// intend to mutate.
type Store struct {
	data map[string]any
}

// NewStore builds a store from a copy of m.
func NewStore(m map[string]any) Store {
	if len(m) == 0 {
		return Store{}
	}
	data := make(map[string]any, len(m))
	for k, v := range m {
		data[k] = v
	}
	return Store{data: data}
}

// Get retrieves a value.
func (s Store) Get(key string) (any, bool) {
	v, ok := s.data[key]
	return v, ok
}

// String returns the value under key if it is a string.
func (s Store) String(key string) string {
	v, _ := s.data[key].(string)
	return v
}

// Len returns the number of keys.
func (s Store) Len() int { return len(s.data) }

// Keys lists stored keys, sorted.
func (s Store) Keys() []string { return sortedKeys(s.data) }

// With returns a new store with key set to value.
func (s Store) With(key string, value any) Store {
	data := make(map[string]any, len(s.data)+1)
	for k, v := range s.data {
		data[k] = v
	}
	data[key] = value
	return Store{data: data}
}

// Without returns a new store lacking key.
func (s Store) Without(key string) Store {
	if _, ok := s.data[key]; !ok {
		return s
	}
	data := make(map[string]any, len(s.data))
	for k, v := range s.data {
		if k != key {
			data[k] = v
		}
	}
	return Store{data: data}
}

// Map returns a copy of the store contents.
func (s Store) Map() map[string]any {
	out := make(map[string]any, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

// StoreUpdater derives the next store from the latest one.
type StoreUpdater func(prev Store) Store

// Set is a StoreUpdater that writes one key.
func Set(key string, value any) StoreUpdater {
	return func(prev Store) Store { return prev.With(key, value) }
}

// ExecutionSession is the mutable state of one invocation. It outlives every
// mount of the renderer and is owned by the engine's invocation history.
type ExecutionSession struct {
	mu         sync.Mutex
	id         string
	store      Store
	status     Status
	mounted    bool
	mounts     int
	createdAt  time.Time
	resolvedAt time.Time
	done       chan struct{}
	onResolve  func(*ExecutionSession)
	onReject   func(*ExecutionSession, error)
}

// NewExecutionSession creates a pending session with a fresh ID.
func NewExecutionSession() *ExecutionSession {
	return &ExecutionSession{
		id:        uuid.NewString(),
		status:    StatusPending,
		createdAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// ID returns the invocation identity.
func (s *ExecutionSession) ID() string { return s.id }

// Store returns the latest store snapshot.
func (s *ExecutionSession) Store() Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store
}

// SetStore applies fn to the most recent store value.
func (s *ExecutionSession) SetStore(fn StoreUpdater) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store = fn(s.store)
}

// Status returns the current status.
func (s *ExecutionSession) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetStatus transitions the session. Once a terminal status is reached every
// later call is ignored and reported with ErrStatusAlreadyTerminal.
func (s *ExecutionSession) SetStatus(status Status) error {
	s.mu.Lock()
	if !status.valid() {
		from := s.status
		s.mu.Unlock()
		return &StatusTransitionError{From: from, To: status, Err: ErrInvalidValue}
	}
	if s.status.Terminal() {
		err := &StatusTransitionError{From: s.status, To: status, Err: ErrStatusAlreadyTerminal}
		reject := s.onReject
		s.mu.Unlock()
		if reject != nil {
			reject(s, err)
		}
		return err
	}
	if status == StatusPending {
		s.mu.Unlock()
		return nil
	}
	s.status = status
	s.resolvedAt = time.Now()
	close(s.done)
	resolve := s.onResolve
	s.mu.Unlock()

	if resolve != nil {
		resolve(s)
	}
	return nil
}

// Done is closed when the session reaches a terminal status.
func (s *ExecutionSession) Done() <-chan struct{} { return s.done }

// Mounted reports whether a renderer is currently mounted for this session.
// Renderers doing asynchronous work use it to discard late output.
func (s *ExecutionSession) Mounted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mounted
}

// Mounts returns how many times a renderer has been mounted.
func (s *ExecutionSession) Mounts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mounts
}

// CreatedAt returns when the session was created.
func (s *ExecutionSession) CreatedAt() time.Time { return s.createdAt }

// ResolvedAt returns when the terminal status was set, or the zero time.
func (s *ExecutionSession) ResolvedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolvedAt
}

func (s *ExecutionSession) mount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mounted = true
	s.mounts++
}

func (s *ExecutionSession) unmount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mounted = false
}
