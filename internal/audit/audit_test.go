package audit

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	e := NewEvent(CategorySource, "retrieval", StatusTimeout, errors.New("deadline"), 250*time.Millisecond)

	assert.Len(t, e.EventID, 36)
	assert.Equal(t, CategorySource, e.Category)
	assert.Equal(t, "retrieval", e.Operation)
	assert.Equal(t, StatusTimeout, e.Status)
	assert.Equal(t, "deadline", e.ErrorMessage)
	assert.Equal(t, int64(250), e.DurationMs)
	assert.False(t, e.At.IsZero())

	other := NewEvent(CategorySource, "retrieval", StatusError, nil, 0)
	assert.NotEqual(t, e.EventID, other.EventID)
	assert.Empty(t, other.ErrorMessage)
}

func testStore(t *testing.T, s Store) {
	ctx := context.Background()

	events, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)

	for i := 0; i < 5; i++ {
		e := NewEvent(CategorySource, fmt.Sprintf("op-%d", i), StatusError, nil, 0)
		e.At = time.Date(2026, 1, 1, 0, 0, i, 0, time.UTC)
		require.NoError(t, s.Record(ctx, e))
	}

	events, err = s.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "op-4", events[0].Operation)
	assert.Equal(t, "op-3", events[1].Operation)
	assert.Equal(t, "op-2", events[2].Operation)
	assert.Equal(t, CategorySource, events[0].Category)
	assert.Equal(t, StatusError, events[0].Status)

	all, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore(10))
}

func TestMemoryStoreEvictsOldest(t *testing.T) {
	s := NewMemoryStore(3)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		require.NoError(t, s.Record(ctx, NewEvent(CategoryTool, fmt.Sprintf("t%d", i), StatusError, nil, 0)))
	}

	events, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "t6", events[0].Operation)
	assert.Equal(t, "t4", events[2].Operation)
}

func TestMemoryStoreConcurrent(t *testing.T) {
	s := NewMemoryStore(100)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Record(ctx, NewEvent(CategorySource, "environment", StatusError, nil, 0))
		}()
	}
	wg.Wait()

	events, _ := s.Recent(ctx, 0)
	assert.Len(t, events, 50)
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "audit", "events.db"))
	require.NoError(t, err)
	defer s.Close()

	testStore(t, s)
}

func TestSQLiteStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	e := NewEvent(CategoryCompletion, "complete", StatusDegraded, errors.New("401"), time.Second)
	e.RequestID = "01HZX"
	require.NoError(t, s.Record(context.Background(), e))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	events, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, e.EventID, events[0].EventID)
	assert.Equal(t, "01HZX", events[0].RequestID)
	assert.Equal(t, "401", events[0].ErrorMessage)
	assert.Equal(t, int64(1000), events[0].DurationMs)
	assert.Equal(t, StatusDegraded, events[0].Status)
}
