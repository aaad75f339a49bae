package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"roundabout-sync/internal/config"
	"roundabout-sync/internal/inventory"
	"roundabout-sync/internal/logger"
	"roundabout-sync/internal/metrics"
	"roundabout-sync/internal/remote"
	"roundabout-sync/internal/store"
)

const (
	StatusIdle    = "idle"
	StatusRunning = "running"
)

// Source reads the local records that are candidates for a push.
type Source interface {
	CurrentFieldInstance(ctx context.Context) (*inventory.FieldInstance, error)
	CreatedSince(ctx context.Context, kind inventory.Kind, since time.Time) ([]inventory.Entity, error)
	UpdatedSince(ctx context.Context, kind inventory.Kind, since time.Time) ([]inventory.Entity, error)
	PhotosForAction(ctx context.Context, actionID int64) ([]inventory.Photo, error)
}

type RunOptions struct {
	// Token replaces the configured remote token for this run.
	Token   string
	Trigger string
}

// Manager pushes field instance changes to the home base, one run at a time.
type Manager struct {
	cfg       *config.Config
	source    Source
	store     store.Store
	client    *remote.Client
	conflicts *ConflictManager
	target    string

	mu     sync.Mutex
	status string
	last   *Report
	now    func() time.Time
}

func NewManager(cfg *config.Config, source Source, st store.Store, client *remote.Client) *Manager {
	return &Manager{
		cfg:       cfg,
		source:    source,
		store:     st,
		client:    client,
		conflicts: NewConflictManager(st, cfg.Sync.SerialRetries),
		target:    cfg.Remote.Target(),
		status:    StatusIdle,
		now:       time.Now,
	}
}

func (m *Manager) Target() string {
	return m.target
}

func (m *Manager) GetStatus() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// LastReport returns the report of the latest finished run, or nil.
func (m *Manager) LastReport() *Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (m *Manager) begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == StatusRunning {
		return ErrAlreadyRunning
	}
	m.status = StatusRunning
	metrics.SetRunning(true)
	return nil
}

func (m *Manager) finish(report *Report) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = StatusIdle
	if report != nil {
		m.last = report
	}
	metrics.SetRunning(false)
}

// Run performs one full sync. The returned report is non-nil once the run has
// started, even when err is not; err is nil only if every operation succeeded.
func (m *Manager) Run(ctx context.Context, opts RunOptions) (report *Report, err error) {
	if err := m.begin(); err != nil {
		return nil, err
	}
	defer func() { m.finish(report) }()

	if timeout := m.cfg.Sync.GetRunTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	fi, err := m.source.CurrentFieldInstance(ctx)
	if err != nil {
		return nil, err
	}

	cursor, err := m.cursor(ctx, fi)
	if err != nil {
		return nil, err
	}

	client := m.client
	if opts.Token != "" {
		client = client.WithToken(opts.Token)
	}

	remap := NewRemapper()
	mappings, err := m.store.ListIDMappings(ctx, m.target)
	if err != nil {
		return nil, fmt.Errorf("load id mappings: %w", err)
	}
	for _, mp := range mappings {
		remap.Record(inventory.Kind(mp.Kind), mp.LocalID, mp.RemoteID)
	}

	startedAt := m.now().UTC()
	r := &run{
		id:     uuid.New().String(),
		target: m.target,
		cursor: cursor,
		client: client,
		remap:  remap,
	}
	r.report = newReport(r.id, m.target, cursor, startedAt)
	report = r.report

	logger.Log.Info("Starting sync run",
		zap.String("run", r.id),
		zap.String("target", m.target),
		zap.String("field_instance", fi.Name),
		zap.Time("cursor", cursor),
		zap.Int("known_mappings", len(mappings)),
		zap.String("trigger", opts.Trigger),
	)

	history := &store.SyncHistory{
		ID:        r.id,
		Target:    m.target,
		StartedAt: startedAt,
		Cursor:    cursor,
		Status:    store.StatusRunning,
	}
	if err := m.store.CreateSyncHistory(ctx, history); err != nil {
		logger.Log.Warn("Failed to record sync history", zap.Error(err))
		history = nil
	}

	for _, spec := range syncOrder {
		if err := m.syncKind(ctx, r, spec); err != nil {
			report.fatal = err
			break
		}
	}
	if report.fatal == nil {
		if err := m.uploadPhotos(ctx, r); err != nil {
			report.fatal = err
		}
	}

	m.complete(r, history)
	return report, report.Err()
}

// cursor is the later of the field instance start and the last successful run.
func (m *Manager) cursor(ctx context.Context, fi *inventory.FieldInstance) (time.Time, error) {
	cursor := fi.StartDate.UTC()
	state, err := m.store.GetSyncState(ctx, m.target)
	if err != nil {
		return time.Time{}, fmt.Errorf("load checkpoint: %w", err)
	}
	if state != nil && state.LastSyncTime.Valid && state.LastSyncTime.Time.After(cursor) {
		cursor = state.LastSyncTime.Time.UTC()
	}
	return cursor, nil
}

// complete persists the outcome. The checkpoint only moves after a clean run.
func (m *Manager) complete(r *run, history *store.SyncHistory) {
	report := r.report
	report.FinishedAt = m.now().UTC()
	ok := report.OK()
	totals := report.Totals()

	// Persist even if the run context was cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	prev, err := m.store.GetSyncState(ctx, m.target)
	if err != nil {
		logger.Log.Error("Failed to load checkpoint", zap.Error(err))
	}
	state := &store.SyncState{Target: m.target}
	if prev != nil {
		state.LastSyncTime = prev.LastSyncTime
		state.RowsSynced = prev.RowsSynced
	}
	state.RowsSynced += int64(totals.Created + totals.Updated)

	if ok {
		report.Status = store.StatusSuccess
		state.Status = store.StatusSuccess
		state.LastSyncTime = sql.NullTime{Time: report.StartedAt, Valid: true}
	} else {
		report.Status = store.StatusFailed
		state.Status = store.StatusFailed
		state.ErrorMessage = sql.NullString{String: summarize(report.Err()), Valid: true}
	}

	if err := m.store.UpdateSyncState(ctx, state); err != nil {
		logger.Log.Error("Failed to update checkpoint", zap.Error(err))
	}

	if history != nil {
		history.CompletedAt = sql.NullTime{Time: report.FinishedAt, Valid: true}
		history.Created = totals.Created
		history.Updated = totals.Updated
		history.Failed = totals.Failed
		history.Status = report.Status
		history.LastStatusCode = report.LastStatusCode
		if !ok {
			history.ErrorMessage = state.ErrorMessage
		}
		if err := m.store.UpdateSyncHistory(ctx, history); err != nil {
			logger.Log.Warn("Failed to update sync history", zap.Error(err))
		}
	}

	metrics.ObserveRun(ok, report.FinishedAt.Sub(report.StartedAt))

	fields := []zap.Field{
		zap.String("run", r.id),
		zap.String("status", report.Status),
		zap.Int("created", totals.Created),
		zap.Int("updated", totals.Updated),
		zap.Int("failed", totals.Failed),
		zap.Int("last_status_code", report.LastStatusCode),
		zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)),
	}
	if ok {
		logger.Log.Info("Sync run finished", fields...)
	} else {
		logger.Log.Error("Sync run finished with errors", append(fields, zap.Error(report.fatal))...)
	}
}

func summarize(err error) string {
	if err == nil {
		return ""
	}
	lines := strings.Split(err.Error(), "\n")
	if len(lines) > 5 {
		return strings.Join(lines[:5], "\n") + fmt.Sprintf("\n... and %d more", len(lines)-5)
	}
	return strings.Join(lines, "\n")
}

// Checkpoint returns the persisted high-water mark for the target, or nil.
func (m *Manager) Checkpoint(ctx context.Context) (*store.SyncState, error) {
	return m.store.GetSyncState(ctx, m.target)
}

// ResetCheckpoint forgets the high-water mark and the id mappings so that the
// next run starts again from the field instance start date.
func (m *Manager) ResetCheckpoint(ctx context.Context) error {
	if err := m.begin(); err != nil {
		return err
	}
	defer m.finish(nil)
	return m.store.DeleteSyncState(ctx, m.target)
}

// IsAlreadyRunning reports whether err means a run was refused.
func IsAlreadyRunning(err error) bool {
	return errors.Is(err, ErrAlreadyRunning)
}
