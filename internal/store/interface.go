package store

import (
	"context"
	"fmt"

	"roundabout-sync/internal/config"
)

type Store interface {
	// Sync State
	GetSyncState(ctx context.Context, target string) (*SyncState, error)
	UpdateSyncState(ctx context.Context, state *SyncState) error
	DeleteSyncState(ctx context.Context, target string) error

	// Id mappings
	SaveIDMapping(ctx context.Context, mapping *IDMapping) error
	ListIDMappings(ctx context.Context, target string) ([]*IDMapping, error)

	// Conflicts
	CreateConflict(ctx context.Context, conflict *Conflict) error
	GetConflict(ctx context.Context, id string) (*Conflict, error)
	ListConflicts(ctx context.Context, resolved bool, limit, offset int) ([]*Conflict, error)
	ResolveConflict(ctx context.Context, id string, strategy string, resolvedData []byte) error

	// History
	CreateSyncHistory(ctx context.Context, history *SyncHistory) error
	UpdateSyncHistory(ctx context.Context, history *SyncHistory) error
	GetSyncHistory(ctx context.Context, limit, offset int) ([]*SyncHistory, error)

	// General
	Close() error
}

// New opens the state store selected by cfg.Type.
func New(cfg config.StateStorage) (Store, error) {
	switch cfg.Type {
	case "mysql":
		return NewMySQLStore(cfg)
	case "bolt", "":
		return NewBoltStore(cfg.FilePath)
	default:
		return nil, fmt.Errorf("unsupported state storage %q", cfg.Type)
	}
}
