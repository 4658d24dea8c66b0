package batch

import (
	"context"
	"errors"
	"time"
)

// Cursor pages through a full result set. Next returns an empty page once the
// set is exhausted.
type Cursor[T any] interface {
	Next(ctx context.Context) ([]T, error)
	Close(ctx context.Context) error
}

// unknownPages is reported as TotalChunks when a scan aborts.
const unknownPages = 0

type ScanResult[T any] struct {
	Result
	Sample []T
}

// Scan opens a cursor and drains it page by page, counting every record and
// keeping at most sampleCap of them. Opening and each page fetch are timed.
// The cursor is closed on every path, including failures.
func Scan[T any](
	ctx context.Context,
	e *Executor,
	operation string,
	open func(ctx context.Context) (Cursor[T], error),
	sampleCap int,
) (result ScanResult[T], err error) {
	log := e.log.Function("Scan")
	result.Operation = operation

	if err := ctx.Err(); err != nil {
		return result, err
	}

	start := e.now()
	cursor, err := open(ctx)
	elapsed := e.now().Sub(start)
	result.Elapsed += elapsed
	if err != nil {
		return result, log.Err("failed to open cursor", err, "backend", e.backend, "operation", operation)
	}

	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if closeErr := cursor.Close(closeCtx); closeErr != nil {
			log.Warn("failed to close cursor", "backend", e.backend, "error", closeErr)
			err = errors.Join(err, closeErr)
		}
	}()

	for page := 0; ; page++ {
		if err := ctx.Err(); err != nil {
			return result, e.abort(result.Result, page, unknownPages, 0, err)
		}

		start := e.now()
		items, err := cursor.Next(ctx)
		elapsed := e.now().Sub(start)

		result.Elapsed += elapsed
		result.Timings = append(result.Timings, elapsed)

		e.observer.ChunkCompleted(ChunkEvent{
			Backend:    e.backend,
			Operation:  operation,
			ChunkIndex: page,
			Records:    int64(len(items)),
			Processed:  result.Records + int64(len(items)),
			Elapsed:    elapsed,
			Err:        err,
		})

		if err != nil {
			return result, e.abort(result.Result, page, unknownPages, 0, err)
		}
		if len(items) == 0 {
			break
		}

		result.Records += int64(len(items))
		result.Chunks++

		if room := sampleCap - len(result.Sample); room > 0 {
			result.Sample = append(result.Sample, items[:min(room, len(items))]...)
		}
	}

	log.Info("scan completed",
		"backend", e.backend,
		"operation", operation,
		"records", result.Records,
		"pages", result.Chunks,
		"totalQueryTimeMs", result.TotalMs())

	return result, nil
}
