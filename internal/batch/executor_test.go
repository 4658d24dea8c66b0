package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"userbench/internal/apperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// steppingClock advances by step on every read.
func steppingClock(step time.Duration) func() time.Time {
	var mu sync.Mutex
	current := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(step)
		return current
	}
}

type recordingObserver struct {
	events []ChunkEvent
}

func (o *recordingObserver) ChunkCompleted(event ChunkEvent) {
	o.events = append(o.events, event)
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name  string
		items int
		size  int
		want  []int
	}{
		{"empty", 0, 10, nil},
		{"exact", 20, 10, []int{10, 10}},
		{"remainder", 25, 10, []int{10, 10, 5}},
		{"smaller than chunk", 3, 10, []int{3}},
		{"default size", 450000, 0, []int{200000, 200000, 50000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := Split(make([]int, tt.items), tt.size)
			var sizes []int
			for _, c := range chunks {
				sizes = append(sizes, len(c))
			}
			assert.Equal(t, tt.want, sizes)
		})
	}
}

func TestSplit_PreservesOrder(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7}
	chunks := Split(items, 3)

	var flattened []int
	for _, c := range chunks {
		flattened = append(flattened, c...)
	}
	assert.Equal(t, items, flattened)
}

func TestRun_ChunksSequentiallyAndSumsTimings(t *testing.T) {
	observer := &recordingObserver{}
	e := New(Config{Backend: "sqlite", Observer: observer}).WithClock(steppingClock(5 * time.Millisecond))

	var calls []int
	result, err := Run(context.Background(), e, "insert", make([]int, 450000),
		func(ctx context.Context, chunk []int) (int64, error) {
			calls = append(calls, len(chunk))
			return int64(len(chunk)), nil
		})

	require.NoError(t, err)
	assert.Equal(t, []int{200000, 200000, 50000}, calls)
	assert.Equal(t, int64(450000), result.Records)
	assert.Equal(t, 3, result.Chunks)
	require.Len(t, result.Timings, 3)

	var sum time.Duration
	for _, d := range result.Timings {
		sum += d
	}
	assert.Equal(t, sum, result.Elapsed)
	assert.Equal(t, 15*time.Millisecond, result.Elapsed)
	assert.Equal(t, 15.0, result.TotalMs())

	require.Len(t, observer.events, 3)
	assert.Equal(t, int64(450000), observer.events[2].Processed)
	assert.Equal(t, 3, observer.events[0].TotalChunks)
}

func TestRun_Empty(t *testing.T) {
	e := New(Config{})
	called := false

	result, err := Run(context.Background(), e, "insert", []int{},
		func(ctx context.Context, chunk []int) (int64, error) {
			called = true
			return 0, nil
		})

	require.NoError(t, err)
	assert.False(t, called)
	assert.Zero(t, result.Records)
	assert.Zero(t, result.Elapsed)
}

func TestRunProduced_BuildsOneChunkAtATime(t *testing.T) {
	e := New(Config{ChunkSize: 4}).WithClock(steppingClock(time.Millisecond))

	var produced [][2]int
	live := 0
	result, err := RunProduced(context.Background(), e, "insert", 10,
		func(offset, n int) ([]int, error) {
			produced = append(produced, [2]int{offset, n})
			live++
			chunk := make([]int, n)
			for i := range chunk {
				chunk[i] = offset + i
			}
			return chunk, nil
		},
		func(ctx context.Context, chunk []int) (int64, error) {
			assert.Equal(t, 1, live, "a chunk is applied before the next one is built")
			live--
			return int64(len(chunk)), nil
		})

	require.NoError(t, err)
	assert.Equal(t, [][2]int{{0, 4}, {4, 4}, {8, 2}}, produced)
	assert.Equal(t, int64(10), result.Records)
	assert.Equal(t, 3, result.Chunks)
	// producing is outside the timed call: two clock reads per chunk
	assert.Equal(t, 3*time.Millisecond, result.Elapsed)
}

func TestRunProduced_ProducerFailureAborts(t *testing.T) {
	e := New(Config{ChunkSize: 5})
	buildErr := apperrors.InvalidArgument("bad index")

	var applied int
	_, err := RunProduced(context.Background(), e, "insert", 12,
		func(offset, n int) ([]int, error) {
			if offset == 5 {
				return nil, buildErr
			}
			return make([]int, n), nil
		},
		func(ctx context.Context, chunk []int) (int64, error) {
			applied++
			return int64(len(chunk)), nil
		})

	assert.Equal(t, 1, applied)
	var partial *PartialBatchError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, 1, partial.ChunkIndex)
	assert.Equal(t, 3, partial.TotalChunks)
	assert.Equal(t, int64(5), partial.Progress())
	assert.ErrorIs(t, err, buildErr)
}

func TestRun_AbortsOnFailure(t *testing.T) {
	e := New(Config{ChunkSize: 10})
	backendErr := apperrors.BackendUnavailable("connection refused", errors.New("dial tcp"))

	var calls int
	_, err := Run(context.Background(), e, "insert", make([]int, 50),
		func(ctx context.Context, chunk []int) (int64, error) {
			calls++
			if calls == 3 {
				return 0, backendErr
			}
			return int64(len(chunk)), nil
		})

	require.Error(t, err)
	assert.Equal(t, 3, calls, "no chunk after the failing one may run")

	var partial *PartialBatchError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, 2, partial.ChunkIndex)
	assert.Equal(t, 5, partial.TotalChunks)
	assert.Equal(t, int64(20), partial.RecordsProcessed)
	assert.Equal(t, apperrors.KindPartialBatch, apperrors.KindOf(err))
	assert.ErrorIs(t, err, backendErr)
}

func TestRun_FirstChunkFailureKeepsUnderlyingKind(t *testing.T) {
	e := New(Config{ChunkSize: 10})

	_, err := Run(context.Background(), e, "insert", make([]int, 30),
		func(ctx context.Context, chunk []int) (int64, error) {
			return 0, apperrors.ValidationFailed("duplicate email", nil)
		})

	assert.Equal(t, apperrors.KindValidationFailed, apperrors.KindOf(err))
}

func TestRun_FirstChunkPartialApplyIsPartialFailure(t *testing.T) {
	e := New(Config{ChunkSize: 10})

	_, err := Run(context.Background(), e, "insert", make([]int, 30),
		func(ctx context.Context, chunk []int) (int64, error) {
			return 4, apperrors.ValidationFailed("duplicate email", nil)
		})

	var partial *PartialBatchError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, int64(4), partial.Progress())
	assert.Equal(t, apperrors.KindPartialBatch, apperrors.KindOf(err))
}

func TestRun_DeadlineStopsBetweenChunks(t *testing.T) {
	e := New(Config{ChunkSize: 10})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int
	_, err := Run(ctx, e, "insert", make([]int, 40),
		func(ctx context.Context, chunk []int) (int64, error) {
			calls++
			if calls == 2 {
				cancel()
			}
			return int64(len(chunk)), nil
		})

	assert.Equal(t, 2, calls)

	var partial *PartialBatchError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, int64(20), partial.RecordsProcessed)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, apperrors.KindPartialBatch, apperrors.KindOf(err))
}

func TestRun_ExpiredBeforeStart(t *testing.T) {
	e := New(Config{ChunkSize: 10})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, e, "insert", make([]int, 5),
		func(ctx context.Context, chunk []int) (int64, error) {
			t.Fatal("no chunk may run after the deadline")
			return 0, nil
		})

	assert.Equal(t, apperrors.KindBackendUnavailable, apperrors.KindOf(err))
}

func TestMeasure(t *testing.T) {
	observer := &recordingObserver{}
	e := New(Config{Backend: "mongo", Observer: observer}).WithClock(steppingClock(2 * time.Millisecond))

	result, err := Measure(context.Background(), e, "update", func(ctx context.Context) (int64, error) {
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, int64(42), result.Records)
	assert.Equal(t, 2*time.Millisecond, result.Elapsed)
	require.Len(t, observer.events, 1)
	assert.Equal(t, "mongo", observer.events[0].Backend)
}

func TestMeasure_PreservesKind(t *testing.T) {
	e := New(Config{})

	_, err := Measure(context.Background(), e, "query", func(ctx context.Context) (int64, error) {
		return 0, apperrors.QueryTranslation("bad filter")
	})

	assert.Equal(t, apperrors.KindQueryTranslation, apperrors.KindOf(err))
}

func TestObservers_FanOut(t *testing.T) {
	first, second := &recordingObserver{}, &recordingObserver{}
	o := Observers(first, nil, second)

	o.ChunkCompleted(ChunkEvent{Operation: "insert"})

	assert.Len(t, first.events, 1)
	assert.Len(t, second.events, 1)
}
