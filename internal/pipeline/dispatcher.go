package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/premierreview/reviewbot/internal/models"
)

// Dispatcher defaults.
const (
	DefaultWorkers   = 8
	DefaultQueueSize = 256
)

var (
	// ErrQueueFull is returned by Submit when the queue has no free slot.
	ErrQueueFull = errors.New("dispatch queue is full")
	// ErrDispatcherStopped is returned by Submit after Stop.
	ErrDispatcherStopped = errors.New("dispatcher is stopped")
)

// Processor handles one event. *Pipeline satisfies it.
type Processor interface {
	Process(ctx context.Context, ev models.InboundEvent)
}

// UserLocker serializes work per user. Every store.Store satisfies it.
type UserLocker interface {
	LockUser(ctx context.Context, userID string) (unlock func(), err error)
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithWorkers sets the number of worker goroutines.
func WithWorkers(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithQueueSize sets the queue capacity.
func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queueSize = n
		}
	}
}

// Dispatcher runs events on a fixed worker pool. Events of the same user never
// run concurrently, here or in any other process sharing the store.
type Dispatcher struct {
	proc      Processor
	locker    UserLocker
	workers   int
	queueSize int

	mu      sync.RWMutex
	queue   chan models.InboundEvent
	stopped bool
	wg      sync.WaitGroup
}

func NewDispatcher(proc Processor, locker UserLocker, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		proc:      proc,
		locker:    locker,
		workers:   DefaultWorkers,
		queueSize: DefaultQueueSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.queue = make(chan models.InboundEvent, d.queueSize)
	return d
}

// Start launches the workers. ctx is passed to every Process call, so it
// should outlive Stop.
func (d *Dispatcher) Start(ctx context.Context) {
	slog.Info("Dispatcher.Start: starting workers", "workers", d.workers, "queueSize", d.queueSize)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for ev := range d.queue {
				d.run(ctx, ev)
			}
		}()
	}
}

// Submit enqueues ev without blocking.
func (d *Dispatcher) Submit(ev models.InboundEvent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrDispatcherStopped
	}
	select {
	case d.queue <- ev:
		return nil
	default:
		slog.Warn("Dispatcher.Submit: queue full", "sender_id", ev.Sender.ID)
		return ErrQueueFull
	}
}

// Stop refuses new events and waits until the queue is drained.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	slog.Info("Dispatcher.Stop: drained")
}

func (d *Dispatcher) run(ctx context.Context, ev models.InboundEvent) {
	userID := ev.UserID()
	if userID == "" {
		slog.Warn("Dispatcher.run: event without user id dropped")
		return
	}
	unlock, err := d.locker.LockUser(ctx, userID)
	if err != nil {
		slog.Error("Dispatcher.run: lock failed", "userID", userID, "error", err)
		return
	}
	defer unlock()
	d.proc.Process(ctx, ev)
}
