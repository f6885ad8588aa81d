package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"imaging-archive-service/internal/api/handlers"
	"imaging-archive-service/internal/app"
	"imaging-archive-service/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	root, closeArchive := newRootCommand()
	err := root.ExecuteContext(ctx)
	if cerr := closeArchive(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "archivectl:", err)
		os.Exit(1)
	}
}

// newRootCommand builds the command tree. The returned func releases whatever
// the executed command opened.
func newRootCommand() (*cobra.Command, func() error) {
	var (
		configPath string
		timeout    time.Duration
		archive    *app.Archive
		logger     = logrus.New()
	)

	loadConfig := func() (*config.Config, error) {
		cfg := config.Default()
		if configPath != "" {
			loaded, err := config.Load(configPath)
			if err != nil {
				return nil, err
			}
			cfg = loaded
		}
		l, err := config.NewLogger(cfg.Log)
		if err != nil {
			return nil, err
		}
		logger = l
		return cfg, nil
	}

	root := &cobra.Command{
		Use:           "archivectl",
		Short:         "Store, query and resolve patients in the imaging archive",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML configuration")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "timeout of one command")

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the archive tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := config.OpenDatabase(cfg.Database, logger)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}
			if err := config.Migrate(db); err != nil {
				return err
			}
			logger.WithField("driver", cfg.Database.Driver).Info("schema migrated")
			return nil
		},
	})

	handlers.RegisterArchiveCommands(root, func() (*handlers.ArchiveHandler, error) {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		archive, err = app.New(cfg, logger, timeout)
		if err != nil {
			return nil, err
		}
		if err := archive.Start(context.Background()); err != nil {
			return nil, err
		}
		return archive.Handler, nil
	})

	return root, func() error {
		if archive == nil {
			return nil
		}
		return archive.Close(context.Background())
	}
}
