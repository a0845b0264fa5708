// Package usage provides fire-and-forget token usage accounting. Records
// are buffered on a bounded channel and written by a background worker so
// the reasoning loop never blocks on accounting.
package usage

import (
	"context"
	"sync"
	"time"

	"github.com/pagesense-ai/pagesense/logging"
	"github.com/pagesense-ai/pagesense/metrics"
)

// Recorder accepts token usage records. Implementations must never block
// the caller and must swallow persistence failures.
type Recorder interface {
	Record(userID string, inputTokens, outputTokens int, apiType string, metadata map[string]any)
}

// Record is one accounting entry.
type Record struct {
	UserID       string
	InputTokens  int
	OutputTokens int
	APIType      string
	Metadata     map[string]any
	RecordedAt   time.Time
}

// Sink persists one record. Errors are logged and dropped.
type Sink func(ctx context.Context, rec Record) error

// BufferedRecorder queues records on a bounded channel drained by a single
// background worker. When the buffer is full the oldest queued record is
// discarded to make room and the drop counter is incremented.
type BufferedRecorder struct {
	buf     chan Record
	sink    Sink
	logger  logging.Logger
	metrics *metrics.Metrics

	closeOnce sync.Once
	done      chan struct{}
}

// RecorderOptions configure a BufferedRecorder.
type RecorderOptions struct {
	// BufferSize bounds the number of queued records.
	BufferSize int
	// Logger receives drop and persistence failure logs.
	Logger logging.Logger
	// Metrics receives the drop counter.
	Metrics *metrics.Metrics
}

// NewBufferedRecorder starts the background worker. Call Close to drain
// and stop it.
func NewBufferedRecorder(sink Sink, optFns ...func(o *RecorderOptions)) *BufferedRecorder {
	opts := RecorderOptions{
		BufferSize: 256,
		Logger:     logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.BufferSize < 1 {
		opts.BufferSize = 1
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNop()
	}

	r := &BufferedRecorder{
		buf:     make(chan Record, opts.BufferSize),
		sink:    sink,
		logger:  logging.OrNoOp(opts.Logger),
		metrics: opts.Metrics,
		done:    make(chan struct{}),
	}
	go r.drain()
	return r
}

// Record enqueues an accounting entry. It never blocks: on a full buffer
// the oldest queued record is dropped first.
func (r *BufferedRecorder) Record(userID string, inputTokens, outputTokens int, apiType string, metadata map[string]any) {
	rec := Record{
		UserID:       userID,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		APIType:      apiType,
		Metadata:     metadata,
		RecordedAt:   time.Now().UTC(),
	}

	for {
		select {
		case r.buf <- rec:
			return
		default:
		}
		// Buffer full: evict the oldest record and retry.
		select {
		case old := <-r.buf:
			r.metrics.UsageRecordsDropped.Inc()
			r.logger.Warn("usage.record.dropped", "user_id", old.UserID, "api_type", old.APIType)
		default:
		}
	}
}

// Close stops accepting records, drains the buffer and waits for the
// worker to exit.
func (r *BufferedRecorder) Close() {
	r.closeOnce.Do(func() {
		close(r.buf)
		<-r.done
	})
}

func (r *BufferedRecorder) drain() {
	defer close(r.done)
	for rec := range r.buf {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.sink(ctx, rec); err != nil {
			r.logger.Warn("usage.persist.failed", "user_id", rec.UserID, "error", err)
		}
		cancel()
	}
}

// NopRecorder discards every record.
type NopRecorder struct{}

// Record implements Recorder.
func (NopRecorder) Record(string, int, int, string, map[string]any) {}
