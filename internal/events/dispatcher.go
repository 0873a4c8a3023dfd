package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DispatcherConfig controls the concurrency characteristics of the dispatcher.
type DispatcherConfig struct {
	Topic     string
	QueueSize int
	Workers   int
	// PublishTimeout bounds a single broker publish.
	PublishTimeout time.Duration
}

// Dispatcher publishes events on a bounded worker pool so request handlers
// never wait on the broker.
type Dispatcher struct {
	backend Backend
	topic   string
	timeout time.Duration
	logger  *slog.Logger

	jobs    chan Event
	closed  chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	closeMu sync.RWMutex

	backendOnce sync.Once
	backendErr  error
}

var (
	ErrDispatcherClosed = errors.New("event dispatcher closed")
	ErrQueueFull        = errors.New("event queue full")
)

// NewDispatcher starts the worker pool.
func NewDispatcher(backend Backend, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		backend: backend,
		topic:   cfg.Topic,
		timeout: cfg.PublishTimeout,
		logger:  logger,
		jobs:    make(chan Event, cfg.QueueSize),
		closed:  make(chan struct{}),
	}

	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.worker()
	}

	return d
}

// Publish queues ev without blocking. It fails when the queue is full or the
// dispatcher has been shut down.
func (d *Dispatcher) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	d.closeMu.RLock()
	defer d.closeMu.RUnlock()

	select {
	case <-d.closed:
		return ErrDispatcherClosed
	default:
	}

	select {
	case d.jobs <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops accepting events, waits for queued ones to be published and
// closes the backend.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.once.Do(func() {
		d.closeMu.Lock()
		close(d.closed)
		close(d.jobs)
		d.closeMu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		d.backendOnce.Do(func() { d.backendErr = d.backend.Close() })
		return d.backendErr
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for ev := range d.jobs {
		d.handle(ev)
	}
}

func (d *Dispatcher) handle(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		d.logger.Error("encode event", "eventId", ev.ID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	attrs := map[string]string{"type": string(ev.Type)}
	if _, err := d.backend.Publish(ctx, d.topic, data, attrs); err != nil {
		d.logger.Error("publish event", "eventId", ev.ID, "type", ev.Type, "topic", d.topic, "error", err)
	}
}
