package main

import (
	"fmt"
	"io"

	"userbench/cmd/migration/seed"
	"userbench/internal/app"
	"userbench/internal/logger"

	"github.com/spf13/cobra"
)

func newSeedCommand(opts *options, stdout io.Writer) *cobra.Command {
	var seedOpts seed.Options

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert deterministic users into the configured backend.",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.New("main").Function("seed")

			cfg := opts.config
			cfg.FailOnStartupError = true
			a, err := app.NewWithConfig(cfg)
			if err != nil {
				return log.Err("failed to initialize app", err)
			}
			defer a.Close()

			ctx, cancel := contextWithTimeout(cmd, cfg.RequestTimeout)
			defer cancel()

			outcome, err := seed.Seed(ctx, a, seedOpts, log)
			if err != nil {
				return err
			}

			fmt.Fprintf(stdout, "inserted %d users into %s in %d chunk(s), %.3fms (run %s)\n",
				outcome.Records, cfg.Backend, outcome.Chunks, outcome.TotalQueryTimeMs, outcome.RunID)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&seedOpts.NumberOfUsers, "count", "n", 1000, "Number of users to insert.")
	flags.IntVar(&seedOpts.StartIndex, "start", 1, "Index of the first generated user.")
	flags.BoolVar(&seedOpts.Atomic, "atomic", false, "Insert every chunk in one transaction (SQL backends only).")
	return cmd
}
