package batch

import "time"

// ChunkEvent is emitted after every backend call made by the executor.
// TotalChunks is zero while a scan is still draining.
type ChunkEvent struct {
	Backend     string        `json:"backend"`
	Operation   string        `json:"operation"`
	ChunkIndex  int           `json:"chunkIndex"`
	TotalChunks int           `json:"totalChunks"`
	Records     int64         `json:"records"`
	Processed   int64         `json:"processed"`
	Elapsed     time.Duration `json:"-"`
	Err         error         `json:"-"`
}

func (e ChunkEvent) ElapsedMs() float64 {
	return durationMs(e.Elapsed)
}

type Observer interface {
	ChunkCompleted(event ChunkEvent)
}

type ObserverFunc func(event ChunkEvent)

func (f ObserverFunc) ChunkCompleted(event ChunkEvent) {
	f(event)
}

type nopObserver struct{}

func (nopObserver) ChunkCompleted(ChunkEvent) {}

// Observers fans every event out to each non-nil observer in order.
func Observers(observers ...Observer) Observer {
	list := make([]Observer, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			list = append(list, o)
		}
	}
	return ObserverFunc(func(event ChunkEvent) {
		for _, o := range list {
			o.ChunkCompleted(event)
		}
	})
}
