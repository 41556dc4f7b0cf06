package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"relaydesk/relay/pkg/history"
	"relaydesk/relay/pkg/proxy/types"
)

// Metrics receives recorder counters.
type Metrics interface {
	RecordHistoryEvent(eventType string)
	RecordHistoryDropped()
}

// Config contains configuration for the event recorder.
type Config struct {
	// AsyncBuffer is the size of the async write channel buffer.
	// Default: 256
	AsyncBuffer int

	// WriteTimeout is the timeout for writing one event to storage.
	// Default: 5 seconds
	WriteTimeout time.Duration
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		AsyncBuffer:  256,
		WriteTimeout: 5 * time.Second,
	}
}

// Recorder turns lifecycle transitions into history events and writes them
// to storage from a background goroutine, so the lifecycle manager never
// waits on the database. When the buffer is full the event is dropped and
// counted.
type Recorder struct {
	storage history.Storage
	config  *Config
	metrics Metrics
	logger  *slog.Logger

	events chan *history.Event
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewRecorder creates a recorder writing to storage and starts its worker.
// metrics may be nil.
func NewRecorder(storage history.Storage, config *Config, metrics Metrics) *Recorder {
	if config == nil {
		config = DefaultConfig()
	}
	if config.AsyncBuffer <= 0 {
		config.AsyncBuffer = DefaultConfig().AsyncBuffer
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultConfig().WriteTimeout
	}

	r := &Recorder{
		storage: storage,
		config:  config,
		metrics: metrics,
		logger:  slog.Default().With("component", "history.recorder"),
		events:  make(chan *history.Event, config.AsyncBuffer),
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Debug("history recorder initialized",
		"async_buffer", config.AsyncBuffer,
		"write_timeout", config.WriteTimeout,
	)

	return r
}

// ObserveTransition enqueues an event for t. It never blocks.
func (r *Recorder) ObserveTransition(t types.Transition) {
	event := history.NewEvent(uuid.NewString(), t)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.logger.Warn("recorder closed, dropping event",
			"event_id", event.ID,
			"operation", event.Operation,
		)
		r.dropped()
		return
	}

	select {
	case r.events <- event:
	default:
		r.logger.Error("history channel full, dropping event",
			"event_id", event.ID,
			"operation", event.Operation,
			"channel_capacity", r.config.AsyncBuffer,
		)
		r.dropped()
	}
}

// Close stops accepting events, writes everything already queued and
// waits for the worker to exit. It does not close the storage.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.events)
	r.mu.Unlock()

	r.wg.Wait()
	r.logger.Debug("history recorder shut down")
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for event := range r.events {
		r.write(event)
	}
}

func (r *Recorder) write(event *history.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	if err := r.storage.Store(ctx, event); err != nil {
		r.logger.Error("failed to store history event",
			"event_id", event.ID,
			"operation", event.Operation,
			"error", err,
		)
		return
	}

	r.logger.Debug("history event recorded",
		"event_id", event.ID,
		"operation", event.Operation,
		"success", event.Success,
	)
	if r.metrics != nil {
		r.metrics.RecordHistoryEvent(string(event.Operation))
	}
}

func (r *Recorder) dropped() {
	if r.metrics != nil {
		r.metrics.RecordHistoryDropped()
	}
}
