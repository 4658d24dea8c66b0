package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"time"

	"userbench/internal/generator"
	"userbench/internal/models"
	"userbench/internal/utils"

	"github.com/spf13/cobra"
)

func newGenerateCommand(opts *options, stdout io.Writer) *cobra.Command {
	var (
		count  int
		start  int
		seed   int64
		format string
		dir    string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write generated users to a CSV or JSON file without touching a backend.",
		RunE: func(cmd *cobra.Command, args []string) error {
			gen := generator.New()

			var users []models.User
			var err error
			if cmd.Flags().Changed("seed") {
				users, err = gen.GenerateRandom(count, start, rand.New(rand.NewSource(seed)))
			} else {
				users, err = gen.Generate(count, start)
			}
			if err != nil {
				return err
			}

			ctx, cancel := contextWithTimeout(cmd, opts.config.RequestTimeout)
			defer cancel()

			result, err := utils.ExportUsers(ctx, utils.ExportConfig{
				Format:     format,
				Dir:        dir,
				FilePrefix: "users",
			}, users)
			if err != nil {
				return err
			}

			fmt.Fprintf(stdout, "wrote %d users to %s in %dms\n", result.Rows, result.FilePath, result.GenerationTime)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&count, "count", "n", 1000, "Number of users to generate.")
	flags.IntVar(&start, "start", 1, "Index of the first generated user.")
	flags.Int64Var(&seed, "seed", 0, "Draw users from a seeded random source instead of the deterministic sequence.")
	flags.StringVarP(&format, "format", "f", utils.FormatCSV, "Output format: csv or json.")
	flags.StringVarP(&dir, "out", "o", ".", "Directory to write the file into.")
	return cmd
}

func contextWithTimeout(cmd *cobra.Command, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
