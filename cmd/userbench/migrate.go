package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"userbench/cmd/migration/initialize"
	"userbench/internal/app"
	"userbench/internal/logger"

	"github.com/spf13/cobra"
)

func newMigrateCommand(opts *options, stdout io.Writer) *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create (or with --down, drop) the users schema on the configured backend.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.config
			cfg.MigrateOnStartup = false
			cfg.FailOnStartupError = true

			log := logger.New("main").Function("migrate")
			a, err := app.NewWithConfig(cfg)
			if err != nil {
				return log.Err("failed to initialize app", err)
			}
			defer a.Close()

			if down {
				reverted, err := initialize.DropTables(a.Database, log)
				if err != nil {
					return err
				}
				fmt.Fprintf(stdout, "reverted %d migration(s) on %s\n", reverted, cfg.Backend)
				return nil
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()
			if err := initialize.InitializeTables(ctx, a.UserRepo, log); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "schema ready on %s\n", cfg.Backend)
			return nil
		},
	}

	cmd.Flags().BoolVar(&down, "down", false, "Roll the users schema back instead (SQL backends only).")
	return cmd
}
