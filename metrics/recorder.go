// Package metrics implements the relay metrics recorder: the cache-side
// service log updates the cherry picker consumes, and the write-behind
// buffer feeding the durable relay table.
package metrics

import (
	"context"
	"sync"
	"time"

	pond "github.com/alitto/pond/v2"

	"github.com/pokt-foundation/pocket-gateway/cache"
	"github.com/pokt-foundation/pocket-gateway/logging"
	"github.com/pokt-foundation/pocket-gateway/observability"
	"github.com/pokt-foundation/pocket-gateway/types"
)

const queueNameRelayMetrics = "relay_metrics"

// Sink receives batches of relay metric records for durable storage.
type Sink interface {
	// Write persists a batch of records. Called from the background
	// flusher only, never the relay path.
	Write(ctx context.Context, records []types.RelayMetric) error
}

// RecorderConfig configures the metrics recorder.
type RecorderConfig struct {
	// BufferSize is the in-memory record buffer capacity.
	// Default: 10000
	BufferSize int

	// FlushInterval is how often buffered records are written to the sink.
	// Default: 10s
	FlushInterval time.Duration

	// MaxBatchSize caps the number of records per sink write.
	// Default: 1000
	MaxBatchSize int
}

// DefaultRecorderConfig returns production defaults.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		BufferSize:    10000,
		FlushInterval: 10 * time.Second,
		MaxBatchSize:  1000,
	}
}

// Recorder accepts one record per relay attempt and applies its two
// effects: the service log hash update in the cache, and the durable
// write-behind enqueue. Neither effect ever blocks or fails the relay
// path; errors are logged and swallowed.
type Recorder struct {
	logger logging.Logger
	config RecorderConfig
	cache  cache.Cache
	sink   Sink

	// subpool decouples the cache writes from the relay hot path.
	subpool pond.Pool

	// Write-behind buffer. Oldest non-success records are dropped first on
	// overflow.
	mu     sync.Mutex
	buffer []types.RelayMetric

	// Lifecycle
	ctx      context.Context
	cancelFn context.CancelFunc
	wg       sync.WaitGroup
}

// NewRecorder creates a metrics recorder. The subpool is typically a child
// of the process-wide pond pool.
func NewRecorder(logger logging.Logger, config RecorderConfig, c cache.Cache, sink Sink, subpool pond.Pool) *Recorder {
	if config.BufferSize <= 0 {
		config.BufferSize = 10000
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = 10 * time.Second
	}
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = 1000
	}

	observability.QueueCapacity.WithLabelValues(queueNameRelayMetrics).Set(float64(config.BufferSize))

	return &Recorder{
		logger:  logging.ForComponent(logger, logging.ComponentMetricsRecorder),
		config:  config,
		cache:   c,
		sink:    sink,
		subpool: subpool,
		buffer:  make([]types.RelayMetric, 0, config.BufferSize),
	}
}

// Start launches the background flusher.
func (r *Recorder) Start(ctx context.Context) {
	r.ctx, r.cancelFn = context.WithCancel(ctx)

	r.wg.Add(1)
	go logging.RecoverGoRoutine(r.logger, "metrics_flusher", func(ctx context.Context) {
		defer r.wg.Done()
		r.flushLoop(ctx)
	})(r.ctx)

	r.logger.Info().
		Int("buffer_size", r.config.BufferSize).
		Dur("flush_interval", r.config.FlushInterval).
		Msg("metrics recorder started")
}

// Close flushes remaining records and stops the recorder.
func (r *Recorder) Close() {
	if r.cancelFn != nil {
		r.cancelFn()
	}
	r.wg.Wait()

	// Final flush with a bounded context; the process is shutting down.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.flush(ctx)

	r.logger.Info().Msg("metrics recorder stopped")
}

// Record registers one relay attempt. Safe for concurrent use; returns
// immediately.
func (r *Recorder) Record(metric types.RelayMetric) {
	recordsTotal.WithLabelValues(metric.Method, resultLabel(metric)).Inc()

	// Effect 1: service log update, submitted to the subpool so Redis
	// latency never lands on the relay path. Without a subpool the update
	// runs inline (tests).
	if r.subpool != nil {
		r.subpool.Submit(func() {
			r.updateServiceLog(context.Background(), metric)
		})
	} else {
		r.updateServiceLog(context.Background(), metric)
	}

	// Effect 2: durable write-behind enqueue.
	r.enqueue(metric)
}

// updateServiceLog applies the record to the per-(chain, node) hash the
// cherry picker reads.
func (r *Recorder) updateServiceLog(ctx context.Context, metric types.RelayMetric) {
	// Fallback attempts go straight to the altruist backend; they carry no
	// node and must not skew node statistics.
	if metric.Fallback || metric.ServiceNode == "" {
		return
	}

	key := r.cache.KB().ServiceLogKey(metric.Blockchain, metric.ServiceNode)

	if metric.IsSuccess() {
		r.cache.HIncrBy(ctx, key, cache.FieldSuccessCount, 1)
		r.cache.HIncrBy(ctx, key, cache.FieldElapsedSumMS, int64(metric.Elapsed*1000))
		r.cache.HIncrBy(ctx, key, cache.FieldElapsedCount, 1)
	} else {
		r.cache.HIncrBy(ctx, key, cache.FieldFailureCount, 1)
	}

	r.cache.Expire(ctx, key, cache.TTLServiceLog)
}

// enqueue appends the record to the write-behind buffer, dropping the
// oldest non-success record on overflow (success records are the scarce
// signal; failures are plentiful).
func (r *Recorder) enqueue(metric types.RelayMetric) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.buffer) >= r.config.BufferSize {
		dropped := false
		for i := range r.buffer {
			if !r.buffer[i].IsSuccess() {
				r.buffer = append(r.buffer[:i], r.buffer[i+1:]...)
				dropped = true
				break
			}
		}
		if !dropped {
			r.buffer = r.buffer[1:]
		}
		recordsDropped.Inc()
	}

	r.buffer = append(r.buffer, metric)
	observability.QueueDepth.WithLabelValues(queueNameRelayMetrics).Set(float64(len(r.buffer)))
}

func (r *Recorder) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(r.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.flush(ctx)
		}
	}
}

// flush drains the buffer in MaxBatchSize chunks. Sink errors are logged
// and the batch is discarded; the relay table is best-effort by design.
func (r *Recorder) flush(ctx context.Context) {
	for {
		r.mu.Lock()
		if len(r.buffer) == 0 {
			r.mu.Unlock()
			return
		}

		n := len(r.buffer)
		if n > r.config.MaxBatchSize {
			n = r.config.MaxBatchSize
		}
		batch := make([]types.RelayMetric, n)
		copy(batch, r.buffer[:n])
		r.buffer = r.buffer[n:]
		observability.QueueDepth.WithLabelValues(queueNameRelayMetrics).Set(float64(len(r.buffer)))
		r.mu.Unlock()

		start := time.Now()
		if err := r.sink.Write(ctx, batch); err != nil {
			// Swallowed by design: the relay table is best-effort.
			r.logger.Error().Err(err).Int(logging.FieldBatchSize, len(batch)).Msg("failed to write metrics batch")
			flushesTotal.WithLabelValues(logging.ResultFailure).Inc()
			observability.ErrorsTotal.WithLabelValues(logging.ComponentMetricsRecorder, "sink_flush").Inc()
			return
		}

		flushesTotal.WithLabelValues(logging.ResultSuccess).Inc()
		flushDuration.Observe(time.Since(start).Seconds())

		if len(batch) < r.config.MaxBatchSize {
			return
		}
	}
}

// BufferLen returns the current buffer depth. Used by tests and the ready
// check.
func (r *Recorder) BufferLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffer)
}

// BufferSnapshot returns a copy of the buffered records.
func (r *Recorder) BufferSnapshot() []types.RelayMetric {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.RelayMetric, len(r.buffer))
	copy(out, r.buffer)
	return out
}

func resultLabel(metric types.RelayMetric) string {
	if metric.IsSuccess() {
		return logging.ResultSuccess
	}
	return logging.ResultFailure
}
