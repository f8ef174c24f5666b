package invalidate

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/quillpress/quill/pkg/models"
)

// DispatcherConfig holds configuration for the dispatcher.
type DispatcherConfig struct {
	// QueueSize is the number of events buffered before new ones are dropped
	// (default: 256).
	QueueSize int

	// Timeout bounds a single delivery (default: 10 seconds).
	Timeout time.Duration
}

// Dispatcher delivers events on a background goroutine so that callers never
// wait on the network.
type Dispatcher struct {
	backend Invalidator
	logger  hclog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan Event
	done   chan struct{}
}

// NewDispatcher starts a dispatcher delivering to backend.
func NewDispatcher(backend Invalidator, logger hclog.Logger, cfg DispatcherConfig) *Dispatcher {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	d := &Dispatcher{
		backend: backend,
		logger:  logger.Named("invalidate"),
		timeout: cfg.Timeout,
		queue:   make(chan Event, cfg.QueueSize),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Notify queues an event and returns immediately. Events are dropped with a
// warning when the queue is full or the dispatcher is closed.
func (d *Dispatcher) Notify(c models.Collection, reason Reason, ids ...int) {
	if len(ids) == 0 {
		return
	}
	ev := NewEvent(c, reason, ids...)

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("dispatcher closed, dropping invalidation",
			"collection", c, "reason", reason, "ids", len(ev.IDs))
		return
	}

	select {
	case d.queue <- ev:
	default:
		d.logger.Warn("invalidation queue full, dropping event",
			"collection", c, "reason", reason, "ids", len(ev.IDs))
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for ev := range d.queue {
		d.deliver(ev)
	}
}

func (d *Dispatcher) deliver(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	start := time.Now()
	if err := d.backend.Invalidate(ctx, ev); err != nil {
		d.logger.Error("cache invalidation failed",
			"backend", d.backend.Name(),
			"event_id", ev.ID,
			"collection", ev.Collection,
			"reason", ev.Reason,
			"ids", ev.IDs,
			"error", err,
		)
		return
	}

	d.logger.Debug("cache invalidated",
		"backend", d.backend.Name(),
		"event_id", ev.ID,
		"collection", ev.Collection,
		"reason", ev.Reason,
		"ids", len(ev.IDs),
		"elapsed", time.Since(start),
	)
}
