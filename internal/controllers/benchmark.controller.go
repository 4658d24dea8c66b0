package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"time"

	"userbench/config"
	"userbench/internal/apperrors"
	"userbench/internal/batch"
	"userbench/internal/filter"
	"userbench/internal/generator"
	"userbench/internal/logger"
	"userbench/internal/models"
	"userbench/internal/repositories"
	"userbench/internal/websockets"
)

const (
	QuerySampleLimit = 1000
	ScanSampleLimit  = 1000
)

const (
	OperationInsert       = "insert"
	OperationInsertRandom = "insert_random"
	OperationQuery        = "query"
	OperationScan         = "scan"
	OperationUpdate       = "update"
	OperationDelete       = "delete"
	OperationDeleteAll    = "delete_all"
	OperationAggregate    = "aggregate"
)

// OperationObserver receives the outcome of every benchmark operation.
type OperationObserver interface {
	ObserveOperation(backend, operation string, totalMs float64, err error)
}

// WSManager interface for WebSocket operations to avoid import cycles
type WSManager interface {
	OperationCompleted(summary websockets.OperationSummary)
}

// Outcome is what a finished operation reports back to the caller.
type Outcome struct {
	RunID            string
	Records          int64
	Chunks           int
	TotalQueryTimeMs float64
	Values           []models.User
}

type BenchmarkController struct {
	users     repositories.UserRepository
	runs      repositories.BenchmarkRunRepository
	generator *generator.Generator
	executor  *batch.Executor
	spec      filter.Spec
	pageSize  int
	maxUsers  int
	observer  OperationObserver
	wsManager WSManager
	log       logger.Logger
}

type BenchmarkDeps struct {
	Users     repositories.UserRepository
	Runs      repositories.BenchmarkRunRepository
	Generator *generator.Generator
	Executor  *batch.Executor
	Observer  OperationObserver
	WSManager WSManager
}

func NewBenchmarkController(deps BenchmarkDeps, config config.Config) *BenchmarkController {
	gen := deps.Generator
	if gen == nil {
		gen = generator.New()
	}

	executor := deps.Executor
	if executor == nil {
		executor = batch.New(batch.Config{ChunkSize: config.InsertChunkSize, Backend: deps.Users.Name()})
	}

	pageSize := config.ScanPageSize
	if pageSize <= 0 {
		pageSize = 10000
	}

	return &BenchmarkController{
		users:     deps.Users,
		runs:      deps.Runs,
		generator: gen,
		executor:  executor,
		spec:      filter.Benchmark(),
		pageSize:  pageSize,
		maxUsers:  config.MaxNumberOfUsers,
		observer:  deps.Observer,
		wsManager: deps.WSManager,
		log:       logger.New("benchmarkController"),
	}
}

func (c *BenchmarkController) Backend() string {
	return c.users.Name()
}

func (c *BenchmarkController) Health(ctx context.Context) error {
	return c.users.Ping(ctx)
}

// InsertUsers generates the deterministic users [startIndex,
// startIndex+numberOfUsers) and inserts them chunk by chunk. Each chunk is
// generated just before it is inserted.
func (c *BenchmarkController) InsertUsers(ctx context.Context, numberOfUsers, startIndex int) (Outcome, error) {
	params := map[string]any{"numberOfUsers": numberOfUsers, "startIndex": startIndex}

	if err := c.checkInsert(numberOfUsers, startIndex); err != nil {
		return Outcome{}, c.finish(ctx, OperationInsert, batch.Result{}, err, params)
	}

	return c.insert(ctx, OperationInsert, numberOfUsers, func(offset, n int) ([]models.User, error) {
		return c.generator.Generate(n, startIndex+offset)
	}, params)
}

// InsertRandomUsers inserts users drawn from a seeded random source. A nil
// seed uses the current time.
func (c *BenchmarkController) InsertRandomUsers(ctx context.Context, numberOfUsers, startIndex int, seed *int64) (Outcome, error) {
	params := map[string]any{"numberOfUsers": numberOfUsers, "startIndex": startIndex}

	source := time.Now().UnixNano()
	if seed != nil {
		source = *seed
	}
	params["seed"] = source

	if err := c.checkInsert(numberOfUsers, startIndex); err != nil {
		return Outcome{}, c.finish(ctx, OperationInsertRandom, batch.Result{}, err, params)
	}

	// Chunks are produced in order, so one source gives the same users for a
	// seed whatever the chunk size.
	rng := rand.New(rand.NewSource(source))
	return c.insert(ctx, OperationInsertRandom, numberOfUsers, func(offset, n int) ([]models.User, error) {
		return c.generator.GenerateRandom(n, startIndex+offset, rng)
	}, params)
}

func (c *BenchmarkController) checkInsert(numberOfUsers, startIndex int) error {
	if err := generator.Validate(numberOfUsers, startIndex); err != nil {
		return err
	}
	if c.maxUsers > 0 && numberOfUsers > c.maxUsers {
		return apperrors.InvalidArgument("numberOfUsers must be <= %d, got %d", c.maxUsers, numberOfUsers)
	}
	return nil
}

func (c *BenchmarkController) insert(
	ctx context.Context,
	operation string,
	total int,
	produce func(offset, n int) ([]models.User, error),
	params map[string]any,
) (Outcome, error) {
	result, err := batch.RunProduced(ctx, c.executor, operation, total, produce, c.users.BulkInsert)
	outcome := c.outcome(result)
	if partial := progressOf(err); partial > 0 {
		outcome.Records = partial
	}

	outcome.RunID, err = c.record(ctx, operation, result, err, params)
	return outcome, err
}

func (c *BenchmarkController) QueryUsers(ctx context.Context) (Outcome, error) {
	var sample []models.User
	result, err := batch.Measure(ctx, c.executor, OperationQuery, func(ctx context.Context) (int64, error) {
		res, err := c.users.Query(ctx, c.spec, QuerySampleLimit)
		sample = res.Sample
		return res.Matched, err
	})

	outcome := c.outcome(result)
	outcome.Values = nonNil(sample)
	outcome.RunID, err = c.record(ctx, OperationQuery, result, err, nil)
	return outcome, err
}

// ScanUsers drains every stored user through a cursor.
func (c *BenchmarkController) ScanUsers(ctx context.Context) (Outcome, error) {
	result, err := batch.Scan(ctx, c.executor, OperationScan,
		func(ctx context.Context) (batch.Cursor[models.User], error) {
			return c.users.OpenCursor(ctx, c.pageSize)
		},
		ScanSampleLimit)

	outcome := c.outcome(result.Result)
	outcome.Values = nonNil(result.Sample)
	outcome.RunID, err = c.record(ctx, OperationScan, result.Result, err, map[string]any{"pageSize": c.pageSize})
	return outcome, err
}

func (c *BenchmarkController) UpdateUsers(ctx context.Context) (Outcome, error) {
	patch := models.MarriedPatch()
	return c.measure(ctx, OperationUpdate, func(ctx context.Context) (int64, error) {
		return c.users.BulkUpdate(ctx, c.spec, patch)
	}, map[string]any{"patch": patch})
}

func (c *BenchmarkController) DeleteUsers(ctx context.Context) (Outcome, error) {
	return c.measure(ctx, OperationDelete, func(ctx context.Context) (int64, error) {
		return c.users.DeleteMatching(ctx, c.spec)
	}, nil)
}

func (c *BenchmarkController) DeleteAllUsers(ctx context.Context) (Outcome, error) {
	return c.measure(ctx, OperationDeleteAll, c.users.DeleteAll, nil)
}

func (c *BenchmarkController) AggregateByCountry(ctx context.Context) ([]models.CountryAggregate, Outcome, error) {
	var rows []models.CountryAggregate
	result, err := batch.Measure(ctx, c.executor, OperationAggregate, func(ctx context.Context) (int64, error) {
		var err error
		rows, err = c.users.AggregateByCountry(ctx)
		return int64(len(rows)), err
	})

	outcome := c.outcome(result)
	outcome.RunID, err = c.record(ctx, OperationAggregate, result, err, nil)
	if rows == nil {
		rows = []models.CountryAggregate{}
	}
	return rows, outcome, err
}

func (c *BenchmarkController) measure(
	ctx context.Context,
	operation string,
	fn func(ctx context.Context) (int64, error),
	params map[string]any,
) (Outcome, error) {
	result, err := batch.Measure(ctx, c.executor, operation, fn)
	outcome := c.outcome(result)
	outcome.RunID, err = c.record(ctx, operation, result, err, params)
	return outcome, err
}

func (c *BenchmarkController) outcome(result batch.Result) Outcome {
	return Outcome{
		Records:          result.Records,
		Chunks:           result.Chunks,
		TotalQueryTimeMs: result.TotalMs(),
	}
}

// record persists the run, feeds metrics and progress listeners, and hands
// err back unchanged. Invalid requests never reached a backend and are not
// stored.
func (c *BenchmarkController) record(
	ctx context.Context,
	operation string,
	result batch.Result,
	opErr error,
	params map[string]any,
) (string, error) {
	if apperrors.Is(opErr, apperrors.KindInvalidArgument) {
		return "", c.finish(ctx, operation, result, opErr, params)
	}

	log := c.log.Function("record")

	run := &models.BenchmarkRun{
		Backend:          c.Backend(),
		Operation:        operation,
		Status:           models.RunStatusCompleted,
		Records:          result.Records,
		Chunks:           result.Chunks,
		TotalQueryTimeMs: result.TotalMs(),
	}
	if progress := progressOf(opErr); progress > 0 {
		run.Records = progress
	}
	if opErr != nil {
		kind := string(apperrors.KindOf(opErr))
		message := opErr.Error()
		run.Status = models.RunStatusFailed
		run.ErrorKind = &kind
		run.ErrorMessage = &message
	}
	if len(params) > 0 {
		if encoded, err := json.Marshal(params); err == nil {
			parameters := string(encoded)
			run.Parameters = &parameters
		}
	}

	if c.runs != nil {
		// The request deadline may already be spent; the run is still worth
		// keeping.
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := c.runs.Create(saveCtx, run); err != nil {
			log.Warn("failed to record benchmark run", "operation", operation, "error", err)
		}
	}

	c.notify(run, opErr)
	return run.ID, opErr
}

// finish reports an operation that failed before any backend call.
func (c *BenchmarkController) finish(ctx context.Context, operation string, result batch.Result, err error, params map[string]any) error {
	if c.observer != nil {
		c.observer.ObserveOperation(c.Backend(), operation, result.TotalMs(), err)
	}
	if err != nil {
		c.log.Function("finish").Warn("rejected benchmark request",
			"operation", operation,
			"params", params,
			"error", err)
	}
	return err
}

func (c *BenchmarkController) notify(run *models.BenchmarkRun, err error) {
	if c.observer != nil {
		c.observer.ObserveOperation(run.Backend, run.Operation, run.TotalQueryTimeMs, err)
	}

	if c.wsManager != nil {
		summary := websockets.OperationSummary{
			RunID:            run.ID,
			Backend:          run.Backend,
			Operation:        run.Operation,
			Status:           run.Status,
			Records:          run.Records,
			TotalQueryTimeMs: run.TotalQueryTimeMs,
		}
		if err != nil {
			summary.Error = err.Error()
		}
		c.wsManager.OperationCompleted(summary)
	}

	c.log.Function("notify").Info("benchmark operation finished",
		"backend", run.Backend,
		"operation", run.Operation,
		"status", run.Status,
		"records", run.Records,
		"totalQueryTimeMs", run.TotalQueryTimeMs)
}

// progressOf returns the records applied before a chunked operation aborted.
func progressOf(err error) int64 {
	var partial *batch.PartialBatchError
	if errors.As(err, &partial) {
		return partial.Progress()
	}
	return 0
}

func nonNil(users []models.User) []models.User {
	if users == nil {
		return []models.User{}
	}
	return users
}
