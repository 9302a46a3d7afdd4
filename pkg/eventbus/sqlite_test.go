package eventbus_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/eventbus/pkg/eventbus"
)

func newSQLiteSink(t *testing.T) (*eventbus.SQLiteSink, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deadletters.db")
	sink, err := eventbus.NewSQLiteSink(path)
	require.NoError(t, err)
	t.Cleanup(func() { sink.Close() })
	return sink, path
}

func TestSQLiteSinkAppendSnapshot(t *testing.T) {
	ctx := context.Background()
	sink, _ := newSQLiteSink(t)

	require.NoError(t, sink.Append(ctx, &eventbus.DeadLetter{
		ID:       "dl-1",
		Event:    "post.created",
		Payload:  map[string]any{"id": 7},
		Err:      errors.New("boom"),
		Attempts: 4,
		FailedAt: time.Now(),
	}))
	require.NoError(t, sink.Append(ctx, &eventbus.DeadLetter{
		ID:       "dl-2",
		Event:    "post.deleted",
		Payload:  nil,
		Err:      errors.New("gone"),
		Attempts: 1,
		FailedAt: time.Now(),
	}))

	entries, err := sink.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	first := entries[0]
	assert.Equal(t, "dl-1", first.ID)
	assert.Equal(t, "post.created", first.Event)
	assert.Equal(t, 4, first.Attempts)
	require.Error(t, first.Err)
	assert.Equal(t, "boom", first.Err.Error())
	assert.False(t, first.FailedAt.IsZero())

	// Payloads round-trip as raw JSON.
	raw, ok := first.Payload.(json.RawMessage)
	require.True(t, ok)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, float64(7), decoded["id"])

	n, err := sink.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSQLiteSinkClear(t *testing.T) {
	ctx := context.Background()
	sink, _ := newSQLiteSink(t)

	require.NoError(t, sink.Append(ctx, &eventbus.DeadLetter{
		ID: "dl-1", Event: "a", Err: errors.New("boom"), Attempts: 1, FailedAt: time.Now(),
	}))
	require.NoError(t, sink.Clear(ctx))

	entries, err := sink.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSQLiteSinkSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "deadletters.db")

	sink, err := eventbus.NewSQLiteSink(path)
	require.NoError(t, err)
	require.NoError(t, sink.Append(ctx, &eventbus.DeadLetter{
		ID: "dl-1", Event: "a", Err: errors.New("boom"), Attempts: 2, FailedAt: time.Now(),
	}))
	require.NoError(t, sink.Close())

	reopened, err := eventbus.NewSQLiteSink(path)
	require.NoError(t, err)
	defer reopened.Close()

	entries, err := reopened.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "dl-1", entries[0].ID)
	assert.Equal(t, 2, entries[0].Attempts)
}

func TestSQLiteSinkClosed(t *testing.T) {
	ctx := context.Background()
	sink, _ := newSQLiteSink(t)
	require.NoError(t, sink.Close())

	err := sink.Append(ctx, &eventbus.DeadLetter{ID: "dl-1", Event: "a", FailedAt: time.Now()})
	assert.ErrorIs(t, err, eventbus.ErrSinkClosed)

	_, err = sink.Snapshot(ctx)
	assert.ErrorIs(t, err, eventbus.ErrSinkClosed)

	assert.ErrorIs(t, sink.Clear(ctx), eventbus.ErrSinkClosed)

	_, err = sink.Len(ctx)
	assert.ErrorIs(t, err, eventbus.ErrSinkClosed)

	// Close is idempotent.
	assert.NoError(t, sink.Close())
}
