package beacon

import (
	"container/list"
	"context"
	"sync"

	"github.com/coder/quartz"
)

// RetryEntry is a failed push waiting for another attempt.
type RetryEntry struct {
	Data       Event  `json:"data"`
	Timestamp  string `json:"timestamp"`
	RetryCount int    `json:"retryCount"`
}

// DrainResult summarizes one drain cycle.
type DrainResult struct {
	Attempted int
	Succeeded int
	Failed    int
	Dropped   int
	// Skipped is set when another drain was already running.
	Skipped bool
}

// PushFunc delivers one event to the remote store.
type PushFunc func(ctx context.Context, event Event) error

// RetryQueue is a bounded, persisted FIFO of failed pushes.
type RetryQueue struct {
	storage     StorageAdapter
	clock       quartz.Clock
	logger      LoggerAdapter
	metrics     *Metrics
	maxEntries  int
	maxAttempts int

	mu   sync.Mutex
	list *list.List
	// generation changes on Clear and Load so a running drain does not
	// resurrect entries that were removed underneath it.
	generation int

	drainMu *Mutex
}

// NewRetryQueue creates an empty queue holding at most maxEntries entries.
func NewRetryQueue(storage StorageAdapter, clock quartz.Clock, logger LoggerAdapter, metrics *Metrics, maxEntries, maxAttempts int) *RetryQueue {
	return &RetryQueue{
		storage:     storage,
		clock:       clock,
		logger:      logger,
		metrics:     metrics,
		maxEntries:  maxEntries,
		maxAttempts: maxAttempts,
		list:        list.New(),
		drainMu:     NewMutex(),
	}
}

// Load replaces the queue contents with the persisted entries.
func (q *RetryQueue) Load() error {
	var entries []RetryEntry
	if err := loadJSON(q.storage, keyRetryQueue, &entries); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.list.Init()
	for _, entry := range entries {
		q.list.PushBack(entry)
	}
	q.generation++
	q.trimLocked()
	return nil
}

// Enqueue appends event with a zero retry count and persists the queue.
func (q *RetryQueue) Enqueue(event Event) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.list.PushBack(RetryEntry{
		Data:       event,
		Timestamp:  formatTimestamp(q.clock.Now()),
		RetryCount: 0,
	})
	q.metrics.RetryEnqueued.Inc()
	q.trimLocked()
	q.persistLocked()
}

// trimLocked drops the oldest entries beyond maxEntries.
func (q *RetryQueue) trimLocked() {
	for q.list.Len() > q.maxEntries {
		front := q.list.Front()
		q.list.Remove(front)
		entry := front.Value.(RetryEntry)
		q.metrics.RetryDropped.WithLabelValues(dropOverflow).Inc()
		q.logger.Warn("Retry queue full, dropping event %s", entry.Data.ID)
	}
}

func (q *RetryQueue) persistLocked() {
	if err := saveJSON(q.storage, keyRetryQueue, q.entriesLocked()); err != nil {
		q.metrics.StorageFailures.Inc()
		q.logger.Warn("Failed to persist retry queue: %v", err)
	}
}

func (q *RetryQueue) entriesLocked() []RetryEntry {
	entries := make([]RetryEntry, 0, q.list.Len())
	for e := q.list.Front(); e != nil; e = e.Next() {
		entries = append(entries, e.Value.(RetryEntry))
	}
	return entries
}

// Len returns the number of queued entries.
func (q *RetryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.list.Len()
}

// Entries returns the queued entries, oldest first.
func (q *RetryQueue) Entries() []RetryEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.entriesLocked()
}

// Clear empties the queue and removes it from storage.
func (q *RetryQueue) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.list.Init()
	q.generation++
	return q.storage.Remove(keyRetryQueue)
}

// Drain attempts every queued entry once, in order. Only one drain runs at a
// time; an overlapping call returns with Skipped set.
func (q *RetryQueue) Drain(ctx context.Context, push PushFunc) DrainResult {
	var result DrainResult
	ran, _ := q.drainMu.TryRun(func() error {
		result = q.drain(ctx, push)
		return nil
	})
	if !ran {
		q.logger.Debug("Retry drain already running, skipping")
		return DrainResult{Skipped: true}
	}
	return result
}

func (q *RetryQueue) drain(ctx context.Context, push PushFunc) DrainResult {
	q.mu.Lock()
	var elements []*list.Element
	for e := q.list.Front(); e != nil; e = e.Next() {
		elements = append(elements, e)
	}
	pending := q.entriesLocked()
	generation := q.generation
	q.mu.Unlock()

	var result DrainResult
	if len(pending) == 0 {
		return result
	}
	q.logger.Debug("Draining %d queued events", len(pending))

	kept := make([]RetryEntry, 0, len(pending))
	for i, entry := range pending {
		if ctx.Err() != nil {
			kept = append(kept, pending[i:]...)
			break
		}

		if entry.RetryCount >= q.maxAttempts {
			result.Dropped++
			q.metrics.RetryDropped.WithLabelValues(dropExhausted).Inc()
			q.logger.Error("Dropping event %s after %d failed sync attempts", entry.Data.ID, entry.RetryCount)
			continue
		}

		result.Attempted++
		if err := push(ctx, entry.Data); err != nil {
			result.Failed++
			entry.RetryCount++
			if entry.RetryCount >= q.maxAttempts {
				result.Dropped++
				q.metrics.RetryDropped.WithLabelValues(dropExhausted).Inc()
				q.logger.Error("Dropping event %s after %d failed sync attempts: %v", entry.Data.ID, entry.RetryCount, err)
				continue
			}
			q.logger.Warn("Retry %d/%d for event %s failed: %v", entry.RetryCount, q.maxAttempts, entry.Data.ID, err)
			kept = append(kept, entry)
			continue
		}
		result.Succeeded++
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.generation == generation {
		// Entries enqueued during the drain stay behind the kept ones.
		for _, e := range elements {
			q.list.Remove(e)
		}
		for i := len(kept) - 1; i >= 0; i-- {
			q.list.PushFront(kept[i])
		}
		q.trimLocked()
	}
	q.persistLocked()

	if result.Attempted > 0 {
		q.logger.Info("Retry drain finished: %d synced, %d failed, %d dropped", result.Succeeded, result.Failed, result.Dropped)
	}
	return result
}
