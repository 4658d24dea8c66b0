package main

import (
	"io"
	"strings"

	"userbench/config"
	"userbench/internal/logger"

	"github.com/spf13/cobra"
)

// options are shared by every subcommand and resolved in PersistentPreRunE.
type options struct {
	configPath string
	backend    string
	logLevel   string

	config config.Config
}

func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}

	rc := &cobra.Command{
		Use:   "userbench",
		Short: "Benchmark the same user workload across MySQL, SQLite, MongoDB and Elasticsearch.",
		Long: `userbench generates a deterministic population of users and runs the same
insert, query, update, delete and aggregate workload against one storage
backend, reporting the time each operation spent in the backend.

Configuration is read from an env file (--config) and the environment.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd, stderr)
		},
	}

	flags := rc.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", ".env", "Env file to read configuration from.")
	flags.StringVarP(&opts.backend, "backend", "b", "", "Override BENCH_BACKEND (mysql, sqlite, mongo, elasticsearch).")
	flags.StringVar(&opts.logLevel, "log-level", "", "Override LOG_LEVEL.")

	rc.AddCommand(newServeCommand(opts))
	rc.AddCommand(newMigrateCommand(opts, stdout))
	rc.AddCommand(newSeedCommand(opts, stdout))
	rc.AddCommand(newGenerateCommand(opts, stdout))

	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}

func (o *options) load(cmd *cobra.Command, stderr io.Writer) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("backend") {
		cfg.Backend = strings.ToLower(o.backend)
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.Setup(cfg.LogLevel, cfg.LogFormat, stderr)
	o.config = cfg
	return nil
}
