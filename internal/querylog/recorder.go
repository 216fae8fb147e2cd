package querylog

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/resilience"
)

const flushTimeout = 5 * time.Second

// Writer persists a batch of entries. *Store implements it.
type Writer interface {
	InsertBatch(ctx context.Context, entries []Entry) error
}

// Recorder buffers entries in a channel and writes them in batches, either
// when batchSize entries have accumulated or every flushInterval. Record
// never blocks: entries are dropped when the buffer is full.
type Recorder struct {
	writer        Writer
	entries       chan Entry
	batchSize     int
	flushInterval time.Duration
	metrics       *metrics.Metrics
	logger        *slog.Logger

	mu      sync.RWMutex
	closed  bool
	started bool
	done    chan struct{}

	dropped atomic.Int64
}

// NewRecorder creates a Recorder writing to w. m may be nil.
func NewRecorder(w Writer, cfg config.PostgresConfig, m *metrics.Metrics) *Recorder {
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &Recorder{
		writer:        w,
		entries:       make(chan Entry, bufferSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		metrics:       m,
		logger:        slog.Default().With("component", "querylog-recorder"),
		done:          make(chan struct{}),
	}
}

// Start launches the background flush loop. When ctx is cancelled the
// buffered entries are drained and written before the loop exits.
func (r *Recorder) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	go r.loop(ctx)
	r.logger.Info("query log recorder started",
		"buffer_size", cap(r.entries),
		"batch_size", r.batchSize,
		"flush_interval", r.flushInterval,
	)
}

func (r *Recorder) loop(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	// Inserts in flight finish even after ctx is cancelled.
	flushCtx := context.WithoutCancel(ctx)
	batch := make([]Entry, 0, r.batchSize)
	for {
		select {
		case e, ok := <-r.entries:
			if !ok {
				r.finalFlush(batch)
				return
			}
			batch = append(batch, e)
			if len(batch) >= r.batchSize {
				r.flush(flushCtx, batch)
				batch = make([]Entry, 0, r.batchSize)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(flushCtx, batch)
				batch = make([]Entry, 0, r.batchSize)
			}
		case <-ctx.Done():
			r.finalFlush(r.drain(batch))
			return
		}
	}
}

// drain moves whatever is still buffered in the channel into batch.
func (r *Recorder) drain(batch []Entry) []Entry {
	for {
		select {
		case e, ok := <-r.entries:
			if !ok {
				return batch
			}
			batch = append(batch, e)
		default:
			return batch
		}
	}
}

func (r *Recorder) finalFlush(batch []Entry) {
	for len(batch) > 0 {
		n := min(len(batch), r.batchSize)
		r.flush(context.Background(), batch[:n])
		batch = batch[n:]
	}
}

func (r *Recorder) flush(ctx context.Context, batch []Entry) {
	if len(batch) == 0 {
		return
	}
	err := resilience.WithTimeout(ctx, flushTimeout, "querylog flush", func(ctx context.Context) error {
		return r.writer.InsertBatch(ctx, batch)
	})
	if err != nil {
		r.logger.Error("query log flush failed", "entries", len(batch), "error", err)
		r.count("failed", len(batch))
		return
	}
	r.count("written", len(batch))
}

// Record queues e for writing.
func (r *Recorder) Record(e Entry) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.drop()
		return
	}
	select {
	case r.entries <- e:
	default:
		r.drop()
		r.logger.Warn("query log entry dropped (buffer full)", "query_id", e.ID)
	}
}

// Dropped reports how many entries were discarded since creation.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close stops accepting entries and waits until everything queued has been
// written. Safe to call more than once.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	started := r.started
	close(r.entries)
	r.mu.Unlock()

	if started {
		<-r.done
	}
}

func (r *Recorder) drop() {
	r.dropped.Add(1)
	r.count("dropped", 1)
}

func (r *Recorder) count(status string, n int) {
	if r.metrics != nil {
		r.metrics.QueryLogEntriesTotal.WithLabelValues(status).Add(float64(n))
	}
}
