package beacon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aviamasters/beacon-go/adapters"
)

type recordingPusher struct {
	mu     sync.Mutex
	pushed []string
	err    error
}

func (p *recordingPusher) push(_ context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushed = append(p.pushed, e.ID)
	return p.err
}

func (p *recordingPusher) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *recordingPusher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pushed)
}

var testDispatcherConfig = DispatcherConfig{
	SyncInterval:     DefaultSyncInterval,
	InitialSyncDelay: DefaultInitialSyncDelay,
	PushTimeout:      time.Second,
}

func newTestDispatcher(t *testing.T, config DispatcherConfig, push PushFunc) (*Dispatcher, *RetryQueue, *quartz.Mock) {
	t.Helper()
	mClock := quartz.NewMock(t)
	queue := NewRetryQueue(adapters.NewMemoryStorageAdapter(), mClock, newTestLogger(), newTestMetrics(), DefaultMaxRetryEntries, DefaultMaxRetryAttempts)
	d := NewDispatcher(config, push, queue, mClock, newTestLogger())
	t.Cleanup(func() { _ = d.Stop() })
	return d, queue, mClock
}

func TestDispatcher_Submit(t *testing.T) {
	t.Run("should push submitted events", func(t *testing.T) {
		pusher := &recordingPusher{}
		d, queue, _ := newTestDispatcher(t, testDispatcherConfig, pusher.push)
		require.NoError(t, d.Start(context.Background()))

		d.Submit(Event{ID: "e1"})
		require.NoError(t, d.Stop())

		assert.Equal(t, 1, pusher.count())
		assert.Equal(t, 0, queue.Len())
	})

	t.Run("should queue events whose push fails", func(t *testing.T) {
		pusher := &recordingPusher{err: errors.New("offline")}
		d, queue, _ := newTestDispatcher(t, testDispatcherConfig, pusher.push)
		require.NoError(t, d.Start(context.Background()))

		d.Submit(Event{ID: "e1"})
		require.NoError(t, d.Stop())

		require.Equal(t, 1, queue.Len())
		assert.Equal(t, "e1", queue.Entries()[0].Data.ID)
	})

	t.Run("should let in-flight pushes finish on Stop", func(t *testing.T) {
		started := make(chan struct{})
		release := make(chan struct{})
		var pushErr error
		d, queue, _ := newTestDispatcher(t, testDispatcherConfig, func(ctx context.Context, _ Event) error {
			close(started)
			<-release
			pushErr = ctx.Err()
			return pushErr
		})
		require.NoError(t, d.Start(context.Background()))

		d.Submit(Event{ID: "e1"})
		<-started

		stopped := make(chan struct{})
		go func() {
			_ = d.Stop()
			close(stopped)
		}()

		select {
		case <-stopped:
			t.Fatal("Stop returned before the push finished")
		case <-time.After(50 * time.Millisecond):
		}

		close(release)
		<-stopped
		assert.NoError(t, pushErr)
		assert.Equal(t, 0, queue.Len())
	})

	t.Run("should queue pushes that exceed the push timeout", func(t *testing.T) {
		config := testDispatcherConfig
		config.PushTimeout = 20 * time.Millisecond
		d, queue, _ := newTestDispatcher(t, config, func(ctx context.Context, _ Event) error {
			<-ctx.Done()
			return ctx.Err()
		})
		require.NoError(t, d.Start(context.Background()))

		d.Submit(Event{ID: "e1"})
		require.NoError(t, d.Stop())
		assert.Equal(t, 1, queue.Len())
	})

	t.Run("should not abort pushes when the start context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		started := make(chan struct{})
		release := make(chan struct{})
		var pushErr error
		d, queue, _ := newTestDispatcher(t, testDispatcherConfig, func(ctx context.Context, _ Event) error {
			close(started)
			<-release
			pushErr = ctx.Err()
			return pushErr
		})
		require.NoError(t, d.Start(ctx))

		d.Submit(Event{ID: "e1"})
		<-started
		cancel()
		close(release)
		require.NoError(t, d.Stop())

		assert.NoError(t, pushErr)
		assert.Equal(t, 0, queue.Len())
	})

	t.Run("should queue events submitted after Stop", func(t *testing.T) {
		pusher := &recordingPusher{}
		d, queue, _ := newTestDispatcher(t, testDispatcherConfig, pusher.push)
		require.NoError(t, d.Start(context.Background()))
		require.NoError(t, d.Stop())
		require.NoError(t, d.Stop())

		d.Submit(Event{ID: "late"})
		assert.Equal(t, 0, pusher.count())
		assert.Equal(t, 1, queue.Len())
	})

	t.Run("should keep everything local when disabled", func(t *testing.T) {
		config := testDispatcherConfig
		config.Disabled = true
		pusher := &recordingPusher{}
		d, queue, _ := newTestDispatcher(t, config, pusher.push)
		require.NoError(t, d.Start(context.Background()))

		d.Submit(Event{ID: "e1"})
		assert.Equal(t, DrainResult{}, d.Drain(context.Background()))
		require.NoError(t, d.Stop())

		assert.Equal(t, 0, pusher.count())
		assert.Equal(t, 0, queue.Len())
	})
}

func TestDispatcher_Schedule(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pusher := &recordingPusher{err: errors.New("offline")}
	d, queue, mClock := newTestDispatcher(t, testDispatcherConfig, pusher.push)
	queue.Enqueue(Event{ID: "queued"})
	require.NoError(t, d.Start(ctx))

	t.Run("should restore the persisted queue on start", func(t *testing.T) {
		assert.Equal(t, 1, d.Pending())
	})

	t.Run("should drain after the initial delay", func(t *testing.T) {
		mClock.Advance(DefaultInitialSyncDelay).MustWait(ctx)
		require.Eventually(t, func() bool {
			return pusher.count() == 1
		}, 5*time.Second, 10*time.Millisecond)
		require.Eventually(t, func() bool {
			entries := queue.Entries()
			return len(entries) == 1 && entries[0].RetryCount == 1
		}, 5*time.Second, 10*time.Millisecond)
	})

	t.Run("should drain on every interval", func(t *testing.T) {
		pusher.setErr(nil)
		mClock.Advance(DefaultSyncInterval - DefaultInitialSyncDelay).MustWait(ctx)
		require.Eventually(t, func() bool {
			return pusher.count() == 2 && queue.Len() == 0
		}, 5*time.Second, 10*time.Millisecond)
	})

	t.Run("should stop the schedule", func(t *testing.T) {
		require.NoError(t, d.Stop())
		queue.Enqueue(Event{ID: "after-stop"})
		mClock.Advance(DefaultSyncInterval).MustWait(ctx)
		assert.Equal(t, 2, pusher.count())
		assert.Equal(t, 1, queue.Len())
	})
}

func TestDispatcher_StopBeforeInitialDrain(t *testing.T) {
	pusher := &recordingPusher{}
	d, queue, _ := newTestDispatcher(t, testDispatcherConfig, pusher.push)
	queue.Enqueue(Event{ID: "queued"})
	require.NoError(t, d.Start(context.Background()))
	require.NoError(t, d.Stop())

	assert.Equal(t, 0, pusher.count())
	assert.Equal(t, 1, queue.Len())
}
