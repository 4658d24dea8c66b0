package batch

import (
	"context"
	"errors"
	"testing"
	"time"

	"userbench/internal/apperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceCursor struct {
	pages   [][]int
	failAt  int
	fetched int
	closed  bool
}

func (c *sliceCursor) Next(ctx context.Context) ([]int, error) {
	if c.failAt > 0 && c.fetched == c.failAt {
		return nil, apperrors.BackendUnavailable("scroll expired", nil)
	}
	if c.fetched >= len(c.pages) {
		return nil, nil
	}
	page := c.pages[c.fetched]
	c.fetched++
	return page, nil
}

func (c *sliceCursor) Close(ctx context.Context) error {
	c.closed = true
	return nil
}

func pagesOf(total, size int) [][]int {
	var pages [][]int
	for start := 0; start < total; start += size {
		end := min(start+size, total)
		page := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			page = append(page, i)
		}
		pages = append(pages, page)
	}
	return pages
}

func TestScan_DrainsAllPages(t *testing.T) {
	cursor := &sliceCursor{pages: pagesOf(2500, 1000)}
	e := New(Config{}).WithClock(steppingClock(time.Millisecond))

	result, err := Scan(context.Background(), e, "scan",
		func(ctx context.Context) (Cursor[int], error) { return cursor, nil }, 1000)

	require.NoError(t, err)
	assert.Equal(t, int64(2500), result.Records)
	assert.Equal(t, 3, result.Chunks)
	assert.Len(t, result.Sample, 1000)
	assert.Equal(t, 0, result.Sample[0])
	assert.Equal(t, 999, result.Sample[999])
	assert.True(t, cursor.closed)
	// open + three pages + the empty terminating page
	assert.Equal(t, 5*time.Millisecond, result.Elapsed)
}

func TestScan_SampleSmallerThanSet(t *testing.T) {
	cursor := &sliceCursor{pages: pagesOf(30, 7)}
	e := New(Config{})

	result, err := Scan(context.Background(), e, "scan",
		func(ctx context.Context) (Cursor[int], error) { return cursor, nil }, 10)

	require.NoError(t, err)
	assert.Equal(t, int64(30), result.Records)
	assert.Len(t, result.Sample, 10)
}

func TestScan_ClosesOnFailure(t *testing.T) {
	cursor := &sliceCursor{pages: pagesOf(30, 10), failAt: 2}
	e := New(Config{})

	result, err := Scan(context.Background(), e, "scan",
		func(ctx context.Context) (Cursor[int], error) { return cursor, nil }, 100)

	require.Error(t, err)
	assert.True(t, cursor.closed)
	assert.Equal(t, int64(20), result.Records)

	var partial *PartialBatchError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, int64(20), partial.RecordsProcessed)
	assert.Equal(t, 2, partial.ChunkIndex)
	assert.Zero(t, partial.TotalChunks)
	assert.Equal(t, apperrors.KindPartialBatch, apperrors.KindOf(err))
	assert.Contains(t, err.Error(), "scan aborted at page 3 after 20 records")
	assert.NotContains(t, err.Error(), "of 0")
}

func TestScan_CancelledMidwayReportsPage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cursor := &sliceCursor{pages: pagesOf(30, 10)}
	e := New(Config{Observer: ObserverFunc(func(ev ChunkEvent) {
		if ev.ChunkIndex == 0 {
			cancel()
		}
	})})

	_, err := Scan(ctx, e, "scan",
		func(ctx context.Context) (Cursor[int], error) { return cursor, nil }, 100)

	require.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "scan aborted at page 2 after 10 records")
}

func TestScan_OpenFailure(t *testing.T) {
	e := New(Config{})
	openErr := apperrors.BackendUnavailable("no connection", errors.New("refused"))

	_, err := Scan(context.Background(), e, "scan",
		func(ctx context.Context) (Cursor[int], error) { return nil, openErr }, 100)

	assert.ErrorIs(t, err, openErr)
	assert.Equal(t, apperrors.KindBackendUnavailable, apperrors.KindOf(err))
}
