package batch

import (
	"fmt"

	"userbench/internal/apperrors"
)

// PartialBatchError reports an operation that stopped at ChunkIndex after
// RecordsProcessed records from earlier chunks were applied. ChunkApplied is
// what the failing chunk itself managed to apply before the error, when the
// backend reports it. TotalChunks is zero for cursor scans, whose page count
// is unknown until the cursor is exhausted.
type PartialBatchError struct {
	Operation        string
	ChunkIndex       int
	TotalChunks      int
	RecordsProcessed int64
	ChunkApplied     int64
	Err              error
}

func (e *PartialBatchError) Error() string {
	if e.TotalChunks <= 0 {
		return fmt.Sprintf("%s aborted at page %d after %d records: %v",
			e.Operation, e.ChunkIndex+1, e.Progress(), e.Err)
	}
	return fmt.Sprintf(
		"%s aborted at chunk %d of %d after %d records: %v",
		e.Operation, e.ChunkIndex+1, e.TotalChunks, e.RecordsProcessed+e.ChunkApplied, e.Err,
	)
}

func (e *PartialBatchError) Unwrap() error {
	return e.Err
}

// Progress is every record known to be applied, including the failing chunk.
func (e *PartialBatchError) Progress() int64 {
	return e.RecordsProcessed + e.ChunkApplied
}

// ErrorKind is PartialBatchFailure once anything was applied. A failure on the
// first chunk with nothing applied keeps the kind of the underlying error.
func (e *PartialBatchError) ErrorKind() apperrors.Kind {
	if e.ChunkIndex > 0 || e.Progress() > 0 {
		return apperrors.KindPartialBatch
	}
	return apperrors.KindOf(e.Err)
}
