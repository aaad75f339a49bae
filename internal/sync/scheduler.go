package sync

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"roundabout-sync/internal/config"
	"roundabout-sync/internal/logger"
)

type Scheduler struct {
	cfg     config.SchedulerConfig
	manager *Manager
	cron    *cron.Cron
	entryID cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewScheduler(cfg config.SchedulerConfig, manager *Manager) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:     cfg,
		manager: manager,
		cron:    cron.New(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *Scheduler) Start() error {
	if !s.cfg.Enabled {
		logger.Log.Info("Scheduler is disabled")
		return nil
	}

	logger.Log.Info("Starting scheduler", zap.String("interval", s.cfg.Interval))

	id, err := s.cron.AddFunc(s.cfg.Interval, s.triggerSync)
	if err != nil {
		return err
	}

	s.entryID = id
	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	logger.Log.Info("Stopped scheduler")
}

func (s *Scheduler) triggerSync() {
	logger.Log.Info("Triggering scheduled sync")

	if s.manager.GetStatus() == StatusRunning {
		logger.Log.Info("Sync already running, skipping scheduled run")
		return
	}

	_, err := s.manager.Run(s.ctx, RunOptions{Trigger: "schedule"})
	switch {
	case errors.Is(err, ErrAlreadyRunning):
		logger.Log.Info("Sync already running, skipping scheduled run")
	case err != nil:
		logger.Log.Error("Scheduled sync failed", zap.Error(err))
	}
}
