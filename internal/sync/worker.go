package sync

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"roundabout-sync/internal/logger"
)

// TriggerFunc starts one sync run.
type TriggerFunc func(ctx context.Context) error

// Worker collects change events and starts a run once the watched tables
// have been quiet for the debounce window.
type Worker struct {
	eventChan <-chan ChangeEvent
	trigger   TriggerFunc
	debounce  time.Duration
	tick      time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	batch     []ChangeEvent
	lastEvent time.Time
}

func NewWorker(eventChan <-chan ChangeEvent, debounce time.Duration, trigger TriggerFunc) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	tick := debounce / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	return &Worker{
		eventChan: eventChan,
		trigger:   trigger,
		debounce:  debounce,
		tick:      tick,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// ManagerTrigger adapts a Manager to the worker.
func ManagerTrigger(m *Manager) TriggerFunc {
	return func(ctx context.Context) error {
		_, err := m.Run(ctx, RunOptions{Trigger: "binlog"})
		return err
	}
}

func (w *Worker) Start() {
	logger.Log.Info("Starting change worker", zap.Duration("debounce", w.debounce))
	w.wg.Add(1)
	go w.run()
}

func (w *Worker) Stop() {
	w.cancel()
	w.wg.Wait()
	logger.Log.Info("Stopped change worker")
}

func (w *Worker) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-w.eventChan:
			if !ok {
				w.flush()
				return
			}
			w.batch = append(w.batch, event)
			w.lastEvent = time.Now()

		case <-ticker.C:
			if len(w.batch) > 0 && time.Since(w.lastEvent) >= w.debounce {
				w.flush()
			}

		case <-w.ctx.Done():
			return
		}
	}
}

func (w *Worker) flush() {
	if len(w.batch) == 0 {
		return
	}

	tables := make(map[string]int)
	for _, e := range w.batch {
		tables[e.Table] += e.Rows
	}
	logger.Log.Info("Local changes settled, triggering sync",
		zap.Int("events", len(w.batch)),
		zap.Any("tables", tables),
	)

	err := w.trigger(w.ctx)
	switch {
	case errors.Is(err, ErrAlreadyRunning):
		// Keep the batch; the next tick retries once the current run is over.
		logger.Log.Info("Sync already running, deferring change-triggered run")
		w.lastEvent = time.Now()
		return
	case err != nil:
		logger.Log.Error("Change-triggered sync failed", zap.Error(err))
	}
	w.batch = w.batch[:0]
}
