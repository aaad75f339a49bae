package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"roundabout-sync/internal/api"
	"roundabout-sync/internal/config"
	"roundabout-sync/internal/database"
	"roundabout-sync/internal/inventory"
	"roundabout-sync/internal/logger"
	"roundabout-sync/internal/remote"
	"roundabout-sync/internal/store"
	"roundabout-sync/internal/sync"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "rdbsync",
	Short: "Push Roundabout field instance changes to the home base",
	Long: `rdbsync reads the local RDB database of a field instance and pushes every
location, user-defined field, inventory item, action, field value and photo
created or changed since the field instance started to the home base REST API.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, scheduler and change watcher",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the configuration file")
	rootCmd.AddCommand(serveCmd, runCmd, checkpointCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds the wired components shared by every command.
type app struct {
	cfg     *config.Config
	db      *database.Database
	store   store.Store
	repo    *inventory.Repository
	manager *sync.Manager
}

func bootstrap() (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.InitLogger(cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}

	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to local db: %w", err)
	}

	stateStore, err := store.New(cfg.StateStorage)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init state store: %w", err)
	}

	repo := inventory.NewRepository(db)
	client := remote.NewClient(nil, remote.OptionsFromConfig(cfg.Remote))

	return &app{
		cfg:     cfg,
		db:      db,
		store:   stateStore,
		repo:    repo,
		manager: sync.NewManager(cfg, repo, stateStore, client),
	}, nil
}

func (a *app) Close() {
	a.store.Close()
	a.db.Close()
	logger.Sync()
}

func serve() error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Log.Info("Starting Roundabout sync service", zap.String("target", a.manager.Target()))

	scheduler := sync.NewScheduler(a.cfg.Scheduler, a.manager)
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("failed to schedule sync: %w", err)
	}
	defer scheduler.Stop()

	if a.cfg.Sync.Realtime {
		listener, err := sync.NewBinlogListener(a.cfg.Database, a.cfg.Sync.WatchTables)
		if err != nil {
			return err
		}
		worker := sync.NewWorker(listener.Events(), a.cfg.Sync.GetDebounce(), sync.ManagerTrigger(a.manager))
		worker.Start()
		if err := listener.Start(); err != nil {
			worker.Stop()
			return err
		}
		defer worker.Stop()
		defer listener.Stop()
	}

	handler := api.NewHandler(a.manager, a.store, a.repo, a.cfg.Server)

	serverAddr := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      handler.Routes(),
		ReadTimeout:  a.cfg.Server.GetReadTimeout(),
		WriteTimeout: a.cfg.Server.GetWriteTimeout(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info("Server listening", zap.String("addr", serverAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Log.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
