package seed

import (
	"context"

	"userbench/internal/app"
	"userbench/internal/controllers"
	"userbench/internal/logger"
)

type Options struct {
	NumberOfUsers int
	StartIndex    int
	// Atomic wraps every chunk in one transaction so a failed seed leaves
	// nothing behind. SQL backends only.
	Atomic bool
}

// Seed inserts deterministic users through the benchmark controller, so the
// seed is chunked and recorded like any other insert run.
func Seed(ctx context.Context, a *app.App, opts Options, log logger.Logger) (controllers.Outcome, error) {
	log = log.Function("Seed")
	log.Info("Seeding users",
		"backend", a.BenchmarkController.Backend(),
		"numberOfUsers", opts.NumberOfUsers,
		"startIndex", opts.StartIndex,
		"atomic", opts.Atomic)

	var outcome controllers.Outcome
	insert := func(ctx context.Context) error {
		var err error
		outcome, err = a.BenchmarkController.InsertUsers(ctx, opts.NumberOfUsers, opts.StartIndex)
		return err
	}

	var err error
	if opts.Atomic {
		err = a.TransactionService.Execute(ctx, insert)
	} else {
		err = insert(ctx)
	}
	if err != nil {
		return outcome, log.Err("failed to seed users", err, "inserted", outcome.Records)
	}

	log.Info("Seeding complete",
		"records", outcome.Records,
		"chunks", outcome.Chunks,
		"totalQueryTimeMs", outcome.TotalQueryTimeMs)
	return outcome, nil
}
