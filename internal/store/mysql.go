package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"roundabout-sync/internal/config"
	"roundabout-sync/internal/logger"
)

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS sync_state (
		target VARCHAR(255) PRIMARY KEY,
		last_sync_time DATETIME(6) NULL,
		rows_synced BIGINT NOT NULL DEFAULT 0,
		status VARCHAR(32) NOT NULL,
		error_message TEXT NULL,
		updated_at DATETIME(6) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS id_mappings (
		target VARCHAR(255) NOT NULL,
		kind VARCHAR(32) NOT NULL,
		local_id BIGINT NOT NULL,
		remote_id BIGINT NOT NULL,
		created_at DATETIME(6) NOT NULL,
		PRIMARY KEY (target, kind, local_id)
	)`,
	`CREATE TABLE IF NOT EXISTS conflicts (
		id CHAR(36) PRIMARY KEY,
		target VARCHAR(255) NOT NULL,
		kind VARCHAR(32) NOT NULL,
		local_id BIGINT NOT NULL,
		local_data JSON NULL,
		remote_data JSON NULL,
		conflict_type VARCHAR(64) NOT NULL,
		detected_at DATETIME(6) NOT NULL,
		resolved BOOLEAN NOT NULL DEFAULT FALSE,
		resolution_strategy VARCHAR(64) NULL,
		resolved_at DATETIME(6) NULL,
		resolved_data JSON NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sync_history (
		id CHAR(36) PRIMARY KEY,
		target VARCHAR(255) NOT NULL,
		started_at DATETIME(6) NOT NULL,
		completed_at DATETIME(6) NULL,
		cursor_time DATETIME(6) NOT NULL,
		created INT NOT NULL DEFAULT 0,
		updated INT NOT NULL DEFAULT 0,
		failed INT NOT NULL DEFAULT 0,
		status VARCHAR(32) NOT NULL,
		error_message TEXT NULL,
		last_status_code INT NOT NULL DEFAULT 0
	)`,
}

type MySQLStore struct {
	db *sql.DB
}

func NewMySQLStore(cfg config.StateStorage) (*MySQLStore, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql connection: %w", err)
	}

	// Retry loop for Ping
	maxRetries := 30
	for i := 0; i < maxRetries; i++ {
		err = db.Ping()
		if err == nil {
			break
		}
		logger.Log.Info("Waiting for state DB...", zap.Error(err), zap.Int("attempt", i+1))
		time.Sleep(1 * time.Second)
	}

	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping mysql after retries: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	for _, stmt := range mysqlSchema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate state store: %w", err)
		}
	}

	return &MySQLStore{db: db}, nil
}

func (s *MySQLStore) Close() error {
	return s.db.Close()
}

func (s *MySQLStore) GetSyncState(ctx context.Context, target string) (*SyncState, error) {
	query := `SELECT target, last_sync_time, rows_synced, status, error_message, updated_at
			  FROM sync_state WHERE target = ?`

	row := s.db.QueryRowContext(ctx, query, target)

	var state SyncState
	err := row.Scan(
		&state.Target,
		&state.LastSyncTime,
		&state.RowsSynced,
		&state.Status,
		&state.ErrorMessage,
		&state.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &state, nil
}

func (s *MySQLStore) UpdateSyncState(ctx context.Context, state *SyncState) error {
	query := `INSERT INTO sync_state (target, last_sync_time, rows_synced, status, error_message, updated_at)
			  VALUES (?, ?, ?, ?, ?, UTC_TIMESTAMP(6))
			  ON DUPLICATE KEY UPDATE
			  last_sync_time = VALUES(last_sync_time),
			  rows_synced = VALUES(rows_synced),
			  status = VALUES(status),
			  error_message = VALUES(error_message),
			  updated_at = UTC_TIMESTAMP(6)`

	_, err := s.db.ExecContext(ctx, query,
		state.Target,
		state.LastSyncTime,
		state.RowsSynced,
		state.Status,
		state.ErrorMessage,
	)

	return err
}

func (s *MySQLStore) DeleteSyncState(ctx context.Context, target string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sync_state WHERE target = ?`, target); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM id_mappings WHERE target = ?`, target)
	return err
}

func (s *MySQLStore) SaveIDMapping(ctx context.Context, mapping *IDMapping) error {
	query := `INSERT INTO id_mappings (target, kind, local_id, remote_id, created_at)
			  VALUES (?, ?, ?, ?, ?)
			  ON DUPLICATE KEY UPDATE remote_id = VALUES(remote_id)`

	_, err := s.db.ExecContext(ctx, query,
		mapping.Target,
		mapping.Kind,
		mapping.LocalID,
		mapping.RemoteID,
		mapping.CreatedAt,
	)
	return err
}

func (s *MySQLStore) ListIDMappings(ctx context.Context, target string) ([]*IDMapping, error) {
	query := `SELECT target, kind, local_id, remote_id, created_at
			  FROM id_mappings WHERE target = ? ORDER BY created_at, kind, local_id`

	rows, err := s.db.QueryContext(ctx, query, target)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mappings []*IDMapping
	for rows.Next() {
		var m IDMapping
		if err := rows.Scan(&m.Target, &m.Kind, &m.LocalID, &m.RemoteID, &m.CreatedAt); err != nil {
			return nil, err
		}
		mappings = append(mappings, &m)
	}

	return mappings, rows.Err()
}

func (s *MySQLStore) CreateConflict(ctx context.Context, conflict *Conflict) error {
	query := `INSERT INTO conflicts (id, target, kind, local_id, local_data, remote_data, conflict_type, detected_at, resolved)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		conflict.ID,
		conflict.Target,
		conflict.Kind,
		conflict.LocalID,
		nullJSON(conflict.LocalData),
		nullJSON(conflict.RemoteData),
		conflict.ConflictType,
		conflict.DetectedAt,
		conflict.Resolved,
	)

	return err
}

const conflictColumns = `id, target, kind, local_id, local_data, remote_data, conflict_type, detected_at, resolved, resolution_strategy, resolved_at, resolved_data`

func scanConflict(row interface{ Scan(...any) error }) (*Conflict, error) {
	var c Conflict
	var localData, remoteData, resolvedData []byte
	err := row.Scan(
		&c.ID,
		&c.Target,
		&c.Kind,
		&c.LocalID,
		&localData,
		&remoteData,
		&c.ConflictType,
		&c.DetectedAt,
		&c.Resolved,
		&c.ResolutionStrategy,
		&c.ResolvedAt,
		&resolvedData,
	)
	if err != nil {
		return nil, err
	}
	c.LocalData = localData
	c.RemoteData = remoteData
	c.ResolvedData = resolvedData
	return &c, nil
}

func (s *MySQLStore) GetConflict(ctx context.Context, id string) (*Conflict, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conflictColumns+` FROM conflicts WHERE id = ?`, id)

	c, err := scanConflict(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return c, nil
}

func (s *MySQLStore) ListConflicts(ctx context.Context, resolved bool, limit, offset int) ([]*Conflict, error) {
	query := `SELECT ` + conflictColumns + ` FROM conflicts WHERE resolved = ? ORDER BY detected_at DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, resolved, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conflicts []*Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, c)
	}

	return conflicts, rows.Err()
}

func (s *MySQLStore) ResolveConflict(ctx context.Context, id string, strategy string, resolvedData []byte) error {
	query := `UPDATE conflicts SET resolved = TRUE, resolution_strategy = ?, resolved_data = ?, resolved_at = UTC_TIMESTAMP(6) WHERE id = ?`

	_, err := s.db.ExecContext(ctx, query, strategy, nullJSON(resolvedData), id)
	return err
}

func (s *MySQLStore) CreateSyncHistory(ctx context.Context, history *SyncHistory) error {
	query := `INSERT INTO sync_history (id, target, started_at, completed_at, cursor_time, created, updated, failed, status, error_message, last_status_code)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		history.ID,
		history.Target,
		history.StartedAt,
		history.CompletedAt,
		history.Cursor,
		history.Created,
		history.Updated,
		history.Failed,
		history.Status,
		history.ErrorMessage,
		history.LastStatusCode,
	)

	return err
}

func (s *MySQLStore) UpdateSyncHistory(ctx context.Context, history *SyncHistory) error {
	query := `UPDATE sync_history SET completed_at = ?, created = ?, updated = ?, failed = ?, status = ?, error_message = ?, last_status_code = ? WHERE id = ?`

	_, err := s.db.ExecContext(ctx, query,
		history.CompletedAt,
		history.Created,
		history.Updated,
		history.Failed,
		history.Status,
		history.ErrorMessage,
		history.LastStatusCode,
		history.ID,
	)

	return err
}

func (s *MySQLStore) GetSyncHistory(ctx context.Context, limit, offset int) ([]*SyncHistory, error) {
	query := `SELECT id, target, started_at, completed_at, cursor_time, created, updated, failed, status, error_message, last_status_code
			  FROM sync_history ORDER BY started_at DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []*SyncHistory
	for rows.Next() {
		var h SyncHistory
		err := rows.Scan(
			&h.ID,
			&h.Target,
			&h.StartedAt,
			&h.CompletedAt,
			&h.Cursor,
			&h.Created,
			&h.Updated,
			&h.Failed,
			&h.Status,
			&h.ErrorMessage,
			&h.LastStatusCode,
		)
		if err != nil {
			return nil, err
		}
		history = append(history, &h)
	}

	return history, rows.Err()
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
