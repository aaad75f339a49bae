package store

import (
	"database/sql"
	"encoding/json"
	"time"
)

const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// SyncState is the persisted high-water mark for one remote target.
type SyncState struct {
	Target       string         `db:"target" json:"target"`
	LastSyncTime sql.NullTime   `db:"last_sync_time" json:"last_sync_time"`
	RowsSynced   int64          `db:"rows_synced" json:"rows_synced"`
	Status       string         `db:"status" json:"status"`
	ErrorMessage sql.NullString `db:"error_message" json:"error_message"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// IDMapping records the id the remote assigned to a locally created record.
type IDMapping struct {
	Target    string    `db:"target" json:"target"`
	Kind      string    `db:"kind" json:"kind"`
	LocalID   int64     `db:"local_id" json:"local_id"`
	RemoteID  int64     `db:"remote_id" json:"remote_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Conflict records a value that collided with existing remote data,
// such as a duplicate inventory serial number.
type Conflict struct {
	ID                 string          `db:"id" json:"id"`
	Target             string          `db:"target" json:"target"`
	Kind               string          `db:"kind" json:"kind"`
	LocalID            int64           `db:"local_id" json:"local_id"`
	LocalData          json.RawMessage `db:"local_data" json:"local_data"`
	RemoteData         json.RawMessage `db:"remote_data" json:"remote_data"`
	ConflictType       string          `db:"conflict_type" json:"conflict_type"`
	DetectedAt         time.Time       `db:"detected_at" json:"detected_at"`
	Resolved           bool            `db:"resolved" json:"resolved"`
	ResolutionStrategy sql.NullString  `db:"resolution_strategy" json:"resolution_strategy"`
	ResolvedAt         sql.NullTime    `db:"resolved_at" json:"resolved_at"`
	ResolvedData       json.RawMessage `db:"resolved_data" json:"resolved_data"`
}

type SyncHistory struct {
	ID             string         `db:"id" json:"id"`
	Target         string         `db:"target" json:"target"`
	StartedAt      time.Time      `db:"started_at" json:"started_at"`
	CompletedAt    sql.NullTime   `db:"completed_at" json:"completed_at"`
	Cursor         time.Time      `db:"cursor_time" json:"cursor"`
	Created        int            `db:"created" json:"created"`
	Updated        int            `db:"updated" json:"updated"`
	Failed         int            `db:"failed" json:"failed"`
	Status         string         `db:"status" json:"status"`
	ErrorMessage   sql.NullString `db:"error_message" json:"error_message"`
	LastStatusCode int            `db:"last_status_code" json:"last_status_code"`
}
