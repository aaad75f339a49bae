package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupBoltStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "state", "rdbsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBoltSyncStateRoundTrip(t *testing.T) {
	s := setupBoltStore(t)
	ctx := context.Background()

	state, err := s.GetSyncState(ctx, "home")
	require.NoError(t, err)
	assert.Nil(t, state)

	hwm := time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC)
	require.NoError(t, s.UpdateSyncState(ctx, &SyncState{
		Target:       "home",
		LastSyncTime: sql.NullTime{Time: hwm, Valid: true},
		RowsSynced:   12,
		Status:       StatusSuccess,
	}))

	state, err = s.GetSyncState(ctx, "home")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.True(t, state.LastSyncTime.Valid)
	assert.True(t, state.LastSyncTime.Time.Equal(hwm))
	assert.Equal(t, int64(12), state.RowsSynced)
}

func TestBoltIDMappingsScopedByTarget(t *testing.T) {
	s := setupBoltStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.SaveIDMapping(ctx, &IDMapping{Target: "home", Kind: "inventory", LocalID: 7, RemoteID: 1007, CreatedAt: now}))
	require.NoError(t, s.SaveIDMapping(ctx, &IDMapping{Target: "home", Kind: "location", LocalID: 7, RemoteID: 2007, CreatedAt: now.Add(time.Second)}))
	require.NoError(t, s.SaveIDMapping(ctx, &IDMapping{Target: "home-2", Kind: "inventory", LocalID: 7, RemoteID: 3007, CreatedAt: now}))

	mappings, err := s.ListIDMappings(ctx, "home")
	require.NoError(t, err)
	require.Len(t, mappings, 2)
	assert.Equal(t, int64(1007), mappings[0].RemoteID)
	assert.Equal(t, int64(2007), mappings[1].RemoteID)

	require.NoError(t, s.DeleteSyncState(ctx, "home"))
	mappings, err = s.ListIDMappings(ctx, "home")
	require.NoError(t, err)
	assert.Empty(t, mappings)

	mappings, err = s.ListIDMappings(ctx, "home-2")
	require.NoError(t, err)
	assert.Len(t, mappings, 1)
}

func TestBoltConflictResolve(t *testing.T) {
	s := setupBoltStore(t)
	ctx := context.Background()

	c := &Conflict{
		ID:           "c-1",
		Target:       "home",
		Kind:         "inventory",
		LocalID:      4,
		LocalData:    json.RawMessage(`{"serial_number":"SN-1"}`),
		RemoteData:   json.RawMessage(`[{"id":99}]`),
		ConflictType: "serial_number",
		DetectedAt:   time.Now().UTC(),
	}
	require.NoError(t, s.CreateConflict(ctx, c))

	open, err := s.ListConflicts(ctx, false, 10, 0)
	require.NoError(t, err)
	require.Len(t, open, 1)

	require.NoError(t, s.ResolveConflict(ctx, "c-1", "suffix", []byte(`{"serial_number":"SN-1-2"}`)))

	got, err := s.GetConflict(ctx, "c-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Resolved)
	assert.Equal(t, "suffix", got.ResolutionStrategy.String)
	assert.JSONEq(t, `{"serial_number":"SN-1-2"}`, string(got.ResolvedData))

	open, err = s.ListConflicts(ctx, false, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, open)

	missing, err := s.GetConflict(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestBoltHistoryNewestFirst(t *testing.T) {
	s := setupBoltStore(t)
	ctx := context.Background()
	base := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.CreateSyncHistory(ctx, &SyncHistory{
			ID:        id,
			Target:    "home",
			StartedAt: base.Add(time.Duration(i) * time.Minute),
			Status:    StatusRunning,
		}))
	}

	require.NoError(t, s.UpdateSyncHistory(ctx, &SyncHistory{
		ID:        "b",
		Target:    "home",
		StartedAt: base.Add(time.Minute),
		Status:    StatusFailed,
		Failed:    2,
	}))
	assert.Error(t, s.UpdateSyncHistory(ctx, &SyncHistory{ID: "zzz"}))

	history, err := s.GetSyncHistory(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "c", history[0].ID)
	assert.Equal(t, "b", history[1].ID)
	assert.Equal(t, StatusFailed, history[1].Status)

	history, err = s.GetSyncHistory(ctx, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, history)
}
