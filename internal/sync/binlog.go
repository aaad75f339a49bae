package sync

import (
	"context"
	"fmt"
	"regexp"

	"github.com/go-mysql-org/go-mysql/canal"
	"go.uber.org/zap"

	"roundabout-sync/internal/config"
	"roundabout-sync/internal/logger"
)

// BinlogListener follows the local RDB binlog and reports changes on the
// watched inventory tables. It never reads row contents; a change only
// schedules a run.
type BinlogListener struct {
	cfg       config.DatabaseConnection
	canal     *canal.Canal
	eventChan chan ChangeEvent
	ctx       context.Context
	cancel    context.CancelFunc
	tables    map[string]bool
}

func NewBinlogListener(cfg config.DatabaseConnection, tables []string) (*BinlogListener, error) {
	if cfg.Driver == "sqlite" {
		return nil, fmt.Errorf("realtime sync needs a mysql database, got %q", cfg.Driver)
	}

	tableMap := make(map[string]bool)
	var tableRegex []string
	for _, t := range tables {
		tableMap[t] = true
		tableRegex = append(tableRegex, fmt.Sprintf("^%s\\.%s$", regexp.QuoteMeta(cfg.Database), regexp.QuoteMeta(t)))
	}

	user, password := cfg.ReplicationUser, cfg.ReplicationPassword
	if user == "" {
		user, password = cfg.User, cfg.Password
	}
	serverID := cfg.ServerID
	if serverID == 0 {
		serverID = 1001
	}

	ccfg := canal.NewDefaultConfig()
	ccfg.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	ccfg.User = user
	ccfg.Password = password
	ccfg.Flavor = "mysql"
	ccfg.ServerID = serverID
	ccfg.Dump.ExecutionPath = ""
	ccfg.IncludeTableRegex = tableRegex

	c, err := canal.NewCanal(ccfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create canal: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	l := &BinlogListener{
		cfg:       cfg,
		canal:     c,
		eventChan: make(chan ChangeEvent, 1024),
		ctx:       ctx,
		cancel:    cancel,
		tables:    tableMap,
	}

	c.SetEventHandler(&eventHandler{listener: l})

	return l, nil
}

// Start follows the binlog from the current master position; history before
// startup is covered by the regular cursor query.
func (l *BinlogListener) Start() error {
	pos, err := l.canal.GetMasterPos()
	if err != nil {
		return fmt.Errorf("failed to read master position: %w", err)
	}

	logger.Log.Info("Starting binlog listener",
		zap.String("host", l.cfg.Host),
		zap.String("file", pos.Name),
		zap.Uint32("pos", pos.Pos),
	)

	go func() {
		if err := l.canal.RunFrom(pos); err != nil && l.ctx.Err() == nil {
			logger.Log.Error("Canal run error", zap.Error(err))
		}
	}()

	return nil
}

func (l *BinlogListener) Stop() {
	l.cancel()
	l.canal.Close()
	logger.Log.Info("Stopped binlog listener")
}

func (l *BinlogListener) Events() <-chan ChangeEvent {
	return l.eventChan
}

type eventHandler struct {
	canal.DummyEventHandler
	listener *BinlogListener
}

func (h *eventHandler) OnRow(e *canal.RowsEvent) error {
	if _, ok := h.listener.tables[e.Table.Name]; !ok {
		return nil
	}

	var eventType EventType
	switch e.Action {
	case canal.InsertAction:
		eventType = Insert
	case canal.UpdateAction:
		eventType = Update
	case canal.DeleteAction:
		eventType = Delete
	default:
		return nil
	}

	pos := h.listener.canal.SyncedPosition()

	ev := ChangeEvent{
		Type:       eventType,
		Schema:     e.Table.Schema,
		Table:      e.Table.Name,
		Rows:       len(e.Rows),
		Timestamp:  e.Header.Timestamp,
		BinlogFile: pos.Name,
		BinlogPos:  pos.Pos,
	}

	// Only the fact that something changed matters, so a full queue drops events.
	select {
	case h.listener.eventChan <- ev:
	case <-h.listener.ctx.Done():
		return h.listener.ctx.Err()
	default:
		logger.Log.Debug("Change queue full, dropping event", zap.Stringer("event", ev))
	}

	return nil
}

func (h *eventHandler) String() string {
	return "RoundaboutChangeHandler"
}
