package history

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ikayroni/weather-api/internal/observability"
)

const insertTimeout = 5 * time.Second

// Recorder is the fire-and-forget handoff between the request path and the
// history store. Enqueue never blocks: when the buffer is full the record is
// dropped and counted. The channel is the only backpressure boundary in the
// system.
type Recorder struct {
	store  Store
	ch     chan Record
	logger *zap.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewRecorder starts the background worker. buffer is the queue capacity;
// logger may be nil.
func NewRecorder(store Store, buffer int, logger *zap.Logger) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	r := &Recorder{
		store:  store,
		ch:     make(chan Record, buffer),
		logger: logger,
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// Enqueue hands a record to the worker. Returns false when the queue is full
// or the recorder is closed; callers treat that as a swallowed failure.
func (r *Recorder) Enqueue(rec Record) (ok bool) {
	// Sending on a closed channel panics; a request racing Close loses the
	// record, which fire-and-forget permits.
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	select {
	case r.ch <- rec:
		observability.HistoryEnqueuedTotal.Inc()
		return true
	default:
		observability.HistoryDroppedTotal.Inc()
		if r.logger != nil {
			r.logger.Warn("history queue full, dropping record",
				zap.String("city", rec.City), zap.String("country", rec.Country))
		}
		return false
	}
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for rec := range r.ch {
		ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
		err := r.store.Insert(ctx, rec)
		cancel()
		if err != nil {
			observability.HistoryWriteErrorsTotal.Inc()
			if r.logger != nil {
				r.logger.Warn("history insert failed", zap.Error(err))
			}
		}
	}
}

// Close stops accepting records and waits for the buffered ones to be
// written. Call during shutdown before closing the store.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.ch)
	})
	r.wg.Wait()
}
