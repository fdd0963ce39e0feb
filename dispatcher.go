package beacon

import (
	"context"
	"sync"
	"time"

	"github.com/coder/quartz"
)

type DispatcherConfig struct {
	SyncInterval     time.Duration
	InitialSyncDelay time.Duration
	PushTimeout      time.Duration
	// Disabled keeps every event local. Submit and Drain become no-ops.
	Disabled bool
}

// Dispatcher pushes freshly recorded events in the background and drains the
// retry queue on a schedule. Failed pushes land in the retry queue.
type Dispatcher struct {
	config DispatcherConfig
	push   PushFunc
	queue  *RetryQueue
	clock  quartz.Clock
	logger LoggerAdapter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	started      bool
	stopped      bool
	initialTimer *quartz.Timer
	ticker       quartz.Waiter
	stopParent   func() bool
}

func NewDispatcher(config DispatcherConfig, push PushFunc, queue *RetryQueue, clock quartz.Clock, logger LoggerAdapter) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		config: config,
		push:   push,
		queue:  queue,
		clock:  clock,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start restores the persisted retry queue and schedules the initial and
// periodic drains. Cancelling ctx stops the schedule but not pushes already
// in flight.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started || d.stopped {
		return nil
	}
	d.started = true

	if err := d.queue.Load(); err != nil {
		d.logger.Warn("Failed to restore retry queue: %v", err)
	}
	if d.config.Disabled {
		d.logger.Debug("Server sync disabled, events stay local")
		return nil
	}

	d.stopParent = context.AfterFunc(ctx, d.cancel)
	d.wg.Add(1)
	d.initialTimer = d.clock.AfterFunc(d.config.InitialSyncDelay, func() {
		defer d.wg.Done()
		d.scheduledDrain()
	}, "dispatcher", "initial")
	d.ticker = d.clock.TickerFunc(d.ctx, d.config.SyncInterval, func() error {
		d.scheduledDrain()
		return nil
	}, "dispatcher", "interval")
	return nil
}

// scheduledDrain stops between entries once the schedule is cancelled, but
// lets the push in flight finish.
func (d *Dispatcher) scheduledDrain() {
	if d.config.Disabled || d.ctx.Err() != nil {
		return
	}
	d.queue.Drain(d.ctx, d.detachedPush)
}

// Submit pushes event asynchronously. A failed push is queued for retry.
func (d *Dispatcher) Submit(event Event) {
	if d.config.Disabled {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		d.queue.Enqueue(event)
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.detachedPush(d.ctx, event); err != nil {
			d.logger.Warn("Failed to sync event %s, queued for retry: %v", event.ID, err)
			d.queue.Enqueue(event)
			return
		}
		d.logger.Debug("Event %s synced", event.ID)
	}()
}

func (d *Dispatcher) pushWithTimeout(ctx context.Context, event Event) error {
	ctx, cancel := context.WithTimeout(ctx, d.config.PushTimeout)
	defer cancel()
	return d.push(ctx, event)
}

// detachedPush ignores cancellation of ctx. Only PushTimeout bounds it.
func (d *Dispatcher) detachedPush(ctx context.Context, event Event) error {
	return d.pushWithTimeout(context.WithoutCancel(ctx), event)
}

// Drain runs one retry cycle now. Cancelling ctx aborts the push in flight.
func (d *Dispatcher) Drain(ctx context.Context) DrainResult {
	if d.config.Disabled {
		return DrainResult{}
	}
	return d.queue.Drain(ctx, d.pushWithTimeout)
}

// Pending returns the number of events waiting for retry.
func (d *Dispatcher) Pending() int {
	return d.queue.Len()
}

// Stop cancels the schedule and waits for in-flight pushes to finish or
// hit PushTimeout. Failed pushes are kept in the retry queue. Calling Stop
// more than once is safe.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	if d.initialTimer != nil && d.initialTimer.Stop() {
		d.wg.Done()
	}
	if d.stopParent != nil {
		d.stopParent()
	}
	d.cancel()
	ticker := d.ticker
	d.mu.Unlock()

	d.wg.Wait()
	if ticker != nil {
		// The ticker reports the cancellation that stopped it.
		_ = ticker.Wait()
	}
	return nil
}
