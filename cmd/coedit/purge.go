package main

import (
	"fmt"
	"github.com/life-stream-dev/life-stream-go-coedit/internal/config"
	"github.com/life-stream-dev/life-stream-go-coedit/internal/database"
	"github.com/life-stream-dev/life-stream-go-coedit/internal/event"
	"github.com/life-stream-dev/life-stream-go-coedit/internal/logger"
	"github.com/spf13/cobra"
)

func purgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete documents that have not been updated within purge.max_age, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.ReadConfig()
			if err != nil {
				return fmt.Errorf("reading config: %w", err)
			}
			loggerCallback := logger.Init(cfg.LogPath, cfg.DebugMode)
			cleaner := event.NewCleaner()
			cleaner.Init(loggerCallback)
			defer cleaner.Clean()

			store, err := openStore(cfg, cleaner)
			if err != nil {
				return err
			}
			n, err := database.NewPurger(store, cfg.PurgeInterval(), cfg.PurgeMaxAge()).RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("Purged %d documents\n", n)
			return nil
		},
	}
}
