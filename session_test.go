package console

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreIsImmutable(t *testing.T) {
	base := NewStore(map[string]any{"a": 1})
	next := base.With("b", 2)

	assert.Equal(t, 1, base.Len())
	assert.Equal(t, 2, next.Len())
	assert.Equal(t, []string{"a", "b"}, next.Keys())

	removed := next.Without("a")
	_, ok := removed.Get("a")
	assert.False(t, ok)
	_, ok = next.Get("a")
	assert.True(t, ok)

	m := next.Map()
	m["c"] = 3
	assert.Equal(t, 2, next.Len())

	var zero Store
	assert.Zero(t, zero.Len())
	assert.Equal(t, "", zero.String("missing"))
}

func TestSessionStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		first   Status
		second  Status
		final   Status
		wantErr error
	}{
		{"pending to success", StatusSuccess, "", StatusSuccess, nil},
		{"pending to error", StatusError, "", StatusError, nil},
		{"success then error", StatusSuccess, StatusError, StatusSuccess, ErrStatusAlreadyTerminal},
		{"error then success", StatusError, StatusSuccess, StatusError, ErrStatusAlreadyTerminal},
		{"success then pending", StatusSuccess, StatusPending, StatusSuccess, ErrStatusAlreadyTerminal},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := NewExecutionSession()
			require.Equal(t, StatusPending, s.Status())
			require.NoError(t, s.SetStatus(tc.first))
			if tc.second != "" {
				err := s.SetStatus(tc.second)
				assert.ErrorIs(t, err, tc.wantErr)
				var transition *StatusTransitionError
				require.True(t, errors.As(err, &transition))
				assert.Equal(t, tc.first, transition.From)
				assert.Equal(t, tc.second, transition.To)
			}
			assert.Equal(t, tc.final, s.Status())
			assert.False(t, s.ResolvedAt().IsZero())
			select {
			case <-s.Done():
			default:
				t.Fatal("done channel not closed")
			}
		})
	}
}

func TestSessionPendingToPendingIsNoop(t *testing.T) {
	s := NewExecutionSession()
	require.NoError(t, s.SetStatus(StatusPending))
	assert.Equal(t, StatusPending, s.Status())
	assert.True(t, s.ResolvedAt().IsZero())

	assert.ErrorIs(t, s.SetStatus(Status("running")), ErrInvalidValue)
	assert.Equal(t, StatusPending, s.Status())
}

func TestSessionResolveHookRunsOnce(t *testing.T) {
	s := NewExecutionSession()
	resolved, rejected := 0, 0
	s.onResolve = func(*ExecutionSession) { resolved++ }
	s.onReject = func(*ExecutionSession, error) { rejected++ }

	require.NoError(t, s.SetStatus(StatusSuccess))
	_ = s.SetStatus(StatusError)
	_ = s.SetStatus(StatusSuccess)

	assert.Equal(t, 1, resolved)
	assert.Equal(t, 2, rejected)
}

func TestSessionConcurrentSetStoreKeepsEveryUpdate(t *testing.T) {
	s := NewExecutionSession()
	s.SetStore(Set("count", 0))

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.SetStore(func(prev Store) Store {
				n, _ := prev.Get("count")
				return prev.With("count", n.(int)+1)
			})
		}()
	}
	wg.Wait()

	n, _ := s.Store().Get("count")
	assert.Equal(t, 50, n)
}

func TestSessionConcurrentTerminalRace(t *testing.T) {
	s := NewExecutionSession()
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status := StatusSuccess
			if i%2 == 0 {
				status = StatusError
			}
			if s.SetStatus(status) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.True(t, s.Status().Terminal())
}

func TestSessionIDsAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for range 100 {
		id := NewExecutionSession().ID()
		require.False(t, seen[id])
		seen[id] = true
	}
}
