package main

import (
	"fmt"
	"github.com/life-stream-dev/life-stream-go-coedit/internal/collab"
	"github.com/life-stream-dev/life-stream-go-coedit/internal/config"
	"github.com/life-stream-dev/life-stream-go-coedit/internal/connection"
	"github.com/life-stream-dev/life-stream-go-coedit/internal/database"
	"github.com/life-stream-dev/life-stream-go-coedit/internal/event"
	"github.com/life-stream-dev/life-stream-go-coedit/internal/logger"
	"github.com/life-stream-dev/life-stream-go-coedit/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the editing server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.ReadConfig()
			if err != nil {
				return fmt.Errorf("reading config: %w", err)
			}
			if port > 0 {
				cfg.AppPort = port
			}
			return serve(cfg)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port, overrides app_port")

	return cmd
}

// openStore connects the configured storage backend and registers its
// shutdown with cleaner.
func openStore(cfg config.Config, cleaner *event.Cleaner) (database.DocumentStore, error) {
	if cfg.Storage == config.StorageMemory {
		logger.Warn("Using in-memory storage, documents will not survive a restart")
		return database.NewMemoryStore(), nil
	}
	if err := database.ConnectDatabase(cfg); err != nil {
		return nil, err
	}
	cleaner.Add(database.NewDBCloseCallback())
	return database.NewDatabaseStore(), nil
}

func serve(cfg config.Config) error {
	loggerCallback := logger.Init(cfg.LogPath, cfg.DebugMode)
	logger.Debug("Application initializing...")
	cleaner := event.NewCleaner()
	cleaner.Init(loggerCallback)
	defer cleaner.Clean()

	store, err := openStore(cfg, cleaner)
	if err != nil {
		logger.ErrorF("Error occured while initializing database, details: %v", err)
		return err
	}
	docs := database.NewCachedStore(store, cfg.Cache.Size, cfg.CacheTTL())

	purger := database.NewPurger(docs, cfg.PurgeInterval(), cfg.PurgeMaxAge())
	purger.Start()
	cleaner.Add(purger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := collab.NewMetrics(reg)

	loop := event.NewLoop(cfg.Collab.QueueSize, cfg.OperationTimeout())
	loop.OnPanic = metrics.HandlerPanic
	loop.Start()
	cleaner.Add(loop)

	conns := connection.NewConnectionManager()
	hub := collab.NewHub(docs, conns, loop, loop, collab.Options{
		DebounceWindow:      cfg.DebounceWindow(),
		StatusClearDelay:    cfg.StatusClearDelay(),
		AnnounceOnJoin:      cfg.Collab.AnnounceOnJoin,
		ReleaseOnDisconnect: cfg.Collab.ReleaseOnDisconnect,
	}, metrics)
	cleaner.Add(hub.FlushOnStop(loop))

	opts := server.DefaultOptions()
	opts.MaxConnections = cfg.MaxConnections
	srv := server.NewServer(docs, hub, loop, conns, metrics, reg, opts)
	cleaner.Add(srv)

	return srv.StartServer(cfg.AppPort)
}
