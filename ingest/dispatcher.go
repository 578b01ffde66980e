package ingest

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrDispatcherClosed is returned by Shutdown when called twice.
var ErrDispatcherClosed = errors.New("dispatcher already shut down")

// Task is a unit of background work attached to one event. Tasks sharing a
// Key run on the same worker in submission order; an empty Key falls back
// to EventID.
type Task struct {
	Name    string
	Key     string
	EventID string
	Logger  *slog.Logger
	Run     func(ctx context.Context) error
}

func (t Task) routingKey() string {
	if t.Key != "" {
		return t.Key
	}
	return t.EventID
}

// DispatcherStats is a snapshot of the dispatcher counters.
type DispatcherStats struct {
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}

// Dispatcher runs fire-and-forget work after the HTTP response has been sent.
// Each worker owns a bounded queue and Submit never blocks: when the target
// queue is full the task is dropped and logged.
type Dispatcher struct {
	queues  []chan Task
	next    atomic.Uint64
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

func NewDispatcher(queueSize, workers int, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	// queueSize is the total capacity, split across the workers.
	perWorker := max(1, (queueSize+workers-1)/workers)
	queues := make([]chan Task, workers)
	for i := range queues {
		queues[i] = make(chan Task, perWorker)
	}
	return &Dispatcher{
		queues:  queues,
		timeout: timeout,
		logger:  logger,
	}
}

func (d *Dispatcher) Start() {
	for _, q := range d.queues {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for t := range q {
				d.run(t)
			}
		}()
	}
}

// queueFor hashes the routing key onto a worker. Keyless tasks are spread
// round robin.
func (d *Dispatcher) queueFor(t Task) chan Task {
	if len(d.queues) == 1 {
		return d.queues[0]
	}
	key := t.routingKey()
	if key == "" {
		return d.queues[d.next.Add(1)%uint64(len(d.queues))]
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return d.queues[h.Sum32()%uint32(len(d.queues))]
}

func (d *Dispatcher) run(t Task) {
	ctx := context.Background()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	logger := t.Logger
	if logger == nil {
		logger = d.logger
	}

	defer func() {
		if r := recover(); r != nil {
			d.failed.Add(1)
			logger.Error("background task panicked", "task", t.Name, "eventId", t.EventID, "panic", r)
		}
	}()

	if err := t.Run(ctx); err != nil {
		d.failed.Add(1)
		logger.Error("background task failed", "task", t.Name, "eventId", t.EventID, "error", err)
		return
	}
	d.completed.Add(1)
}

// Submit enqueues t without blocking. It reports false when the task was
// dropped because the queue is full or the dispatcher is shutting down.
func (d *Dispatcher) Submit(t Task) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.dropped.Add(1)
		return false
	}
	select {
	case d.queueFor(t) <- t:
		d.submitted.Add(1)
		return true
	default:
		d.dropped.Add(1)
		logger := t.Logger
		if logger == nil {
			logger = d.logger
		}
		logger.Warn("background queue full, dropping task", "task", t.Name, "eventId", t.EventID)
		return false
	}
}

// Shutdown stops accepting tasks and waits for queued ones to finish or for
// ctx to expire, whichever comes first.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.closed = true
	for _, q := range d.queues {
		close(q)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s := d.Stats()
		d.logger.Info("dispatcher drained",
			"submitted", s.Submitted, "completed", s.Completed, "failed", s.Failed, "dropped", s.Dropped)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Submitted: d.submitted.Load(),
		Completed: d.completed.Load(),
		Failed:    d.failed.Load(),
		Dropped:   d.dropped.Load(),
	}
}
