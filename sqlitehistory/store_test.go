package sqlitehistory

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	console "github.com/network-plane/planeconsole"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	require.NoError(t, s.Record(ctx, console.InvocationRecord{
		ID: "a", Command: "isolate", Input: "isolate", Status: console.StatusSuccess,
		Store: map[string]any{"actionId": "action-1"}, SubmittedAt: base, ResolvedAt: base.Add(time.Second),
	}))
	require.NoError(t, s.Record(ctx, console.InvocationRecord{
		ID: "b", Command: "kill-process", Input: "kill-process --pid 42", Status: console.StatusError,
		SubmittedAt: base.Add(time.Minute),
	}))

	records, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "b", records[0].ID)
	assert.Equal(t, console.StatusError, records[0].Status)
	assert.Empty(t, records[0].Store)
	assert.True(t, records[0].ResolvedAt.IsZero())

	assert.Equal(t, "a", records[1].ID)
	assert.Equal(t, map[string]any{"actionId": "action-1"}, records[1].Store)
	assert.True(t, base.Equal(records[1].SubmittedAt))
	assert.True(t, base.Add(time.Second).Equal(records[1].ResolvedAt))

	limited, err := s.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "b", limited[0].ID)
}

func TestRecordUpserts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	rec := console.InvocationRecord{ID: "a", Command: "release", Input: "release", Status: console.StatusPending, SubmittedAt: time.Now()}
	require.NoError(t, s.Record(ctx, rec))

	rec.Status = console.StatusSuccess
	rec.ResolvedAt = time.Now()
	require.NoError(t, s.Record(ctx, rec))

	records, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, console.StatusSuccess, records[0].Status)
}

func TestEngineRecordsToSQLite(t *testing.T) {
	s := openTestStore(t)
	def := &console.CommandDefinition{
		Name: "release",
		Renderer: console.RendererFunc(func(props console.ExecutionProps) {
			props.SetStore(console.Set("actionId", "action-7"))
			_ = props.SetStatus(console.StatusSuccess)
		}),
	}
	engine := console.NewEngine(console.WithOutputWriter(io.Discard), console.WithHistoryRecorder(s), console.WithCommands(def))
	defer engine.Close()

	inv, err := engine.Exec(context.Background(), "release")
	require.NoError(t, err)

	records, err := s.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, inv.ID(), records[0].ID)
	assert.Equal(t, "action-7", records[0].Store["actionId"])
}
