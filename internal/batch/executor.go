// Package batch runs bulk operations against a backend in ordered,
// sequential chunks and times every backend call.
//
// The elapsed time reported for an operation is the sum of the time spent
// inside backend calls, never the wall clock of the whole request, so
// generation and encoding work outside the calls is excluded.
package batch

import (
	"context"
	"time"

	"userbench/internal/logger"
)

const DefaultChunkSize = 200000

type Config struct {
	ChunkSize int
	Backend   string
	Observer  Observer
}

type Executor struct {
	chunkSize int
	backend   string
	observer  Observer
	now       func() time.Time
	log       logger.Logger
}

func New(config Config) *Executor {
	chunkSize := config.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	observer := config.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	return &Executor{
		chunkSize: chunkSize,
		backend:   config.Backend,
		observer:  observer,
		now:       time.Now,
		log:       logger.New("batch").File("executor"),
	}
}

// WithClock returns a copy of e that reads time from now.
func (e *Executor) WithClock(now func() time.Time) *Executor {
	clone := *e
	clone.now = now
	return &clone
}

func (e *Executor) ChunkSize() int {
	return e.chunkSize
}

func (e *Executor) Backend() string {
	return e.backend
}

// Result describes a completed operation.
type Result struct {
	Operation string
	Records   int64
	Chunks    int
	Elapsed   time.Duration
	Timings   []time.Duration
}

func (r Result) TotalMs() float64 {
	return durationMs(r.Elapsed)
}

func durationMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// Split cuts items into consecutive slices of at most size elements. The last
// slice holds the remainder. The slices share items' backing array.
func Split[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if len(items) == 0 {
		return nil
	}

	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end:end])
	}
	return chunks
}

// Run applies fn to each chunk of items in order. fn returns how many records
// of the chunk it applied. The first failing chunk, or a context that ends
// between chunks, stops the run with a *PartialBatchError and no later chunk
// is attempted.
func Run[T any](
	ctx context.Context,
	e *Executor,
	operation string,
	items []T,
	fn func(ctx context.Context, chunk []T) (int64, error),
) (Result, error) {
	return RunProduced(ctx, e, operation, len(items), func(offset, n int) ([]T, error) {
		return items[offset : offset+n : offset+n], nil
	}, fn)
}

// RunProduced is Run over total records that do not exist up front: produce
// builds the chunk [offset, offset+n) just before it is applied, so only one
// chunk is held in memory at a time. Producing is not part of the timed
// backend call.
func RunProduced[T any](
	ctx context.Context,
	e *Executor,
	operation string,
	total int,
	produce func(offset, n int) ([]T, error),
	fn func(ctx context.Context, chunk []T) (int64, error),
) (Result, error) {
	log := e.log.Function("Run")

	totalChunks := 0
	if total > 0 {
		totalChunks = (total-1)/e.chunkSize + 1
	}
	result := Result{Operation: operation, Timings: make([]time.Duration, 0, totalChunks)}

	log.Info("starting chunked operation",
		"backend", e.backend,
		"operation", operation,
		"records", total,
		"chunks", totalChunks,
		"chunkSize", e.chunkSize)

	for i := 0; i < totalChunks; i++ {
		if err := ctx.Err(); err != nil {
			return result, e.abort(result, i, totalChunks, 0, err)
		}

		offset := i * e.chunkSize
		chunk, err := produce(offset, min(e.chunkSize, total-offset))
		if err != nil {
			return result, e.abort(result, i, totalChunks, 0, err)
		}

		start := e.now()
		n, err := fn(ctx, chunk)
		elapsed := e.now().Sub(start)

		result.Elapsed += elapsed
		result.Timings = append(result.Timings, elapsed)

		e.observer.ChunkCompleted(ChunkEvent{
			Backend:     e.backend,
			Operation:   operation,
			ChunkIndex:  i,
			TotalChunks: totalChunks,
			Records:     n,
			Processed:   result.Records + n,
			Elapsed:     elapsed,
			Err:         err,
		})

		if err != nil {
			return result, e.abort(result, i, totalChunks, n, err)
		}

		result.Records += n
		result.Chunks++

		log.Debug("chunk completed",
			"operation", operation,
			"chunk", i+1,
			"of", totalChunks,
			"records", n,
			"elapsedMs", durationMs(elapsed))
	}

	log.Info("chunked operation completed",
		"backend", e.backend,
		"operation", operation,
		"records", result.Records,
		"totalQueryTimeMs", result.TotalMs())

	return result, nil
}

func (e *Executor) abort(result Result, chunkIndex, totalChunks int, applied int64, err error) error {
	partial := &PartialBatchError{
		Operation:        result.Operation,
		ChunkIndex:       chunkIndex,
		TotalChunks:      totalChunks,
		RecordsProcessed: result.Records,
		ChunkApplied:     applied,
		Err:              err,
	}

	e.log.Function("abort").Er("chunked operation aborted", err,
		"backend", e.backend,
		"operation", result.Operation,
		"chunk", chunkIndex,
		"totalChunks", totalChunks,
		"recordsProcessed", result.Records,
		"chunkApplied", applied)

	return partial
}

// Measure times a single backend call with the same accounting as Run.
func Measure(
	ctx context.Context,
	e *Executor,
	operation string,
	fn func(ctx context.Context) (int64, error),
) (Result, error) {
	result := Result{Operation: operation}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	start := e.now()
	n, err := fn(ctx)
	elapsed := e.now().Sub(start)

	result.Elapsed = elapsed
	result.Timings = []time.Duration{elapsed}

	e.observer.ChunkCompleted(ChunkEvent{
		Backend:     e.backend,
		Operation:   operation,
		TotalChunks: 1,
		Records:     n,
		Processed:   n,
		Elapsed:     elapsed,
		Err:         err,
	})

	if err != nil {
		return result, e.log.Function("Measure").Err("operation failed", err,
			"backend", e.backend,
			"operation", operation)
	}

	result.Records = n
	result.Chunks = 1
	return result, nil
}
