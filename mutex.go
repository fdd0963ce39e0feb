package beacon

import "sync"

// Mutex serializes read-modify-write sections that span I/O, such as a
// remote document push. TryRun lets periodic work skip instead of queueing.
type Mutex struct {
	mu sync.Mutex
}

// NewMutex creates a new mutex
func NewMutex() *Mutex {
	return &Mutex{}
}

// RunAtomic executes a task with exclusive lock
func (m *Mutex) RunAtomic(task func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return task()
}

// TryRun executes task only if the lock is free. The boolean reports
// whether the task ran.
func (m *Mutex) TryRun(task func() error) (bool, error) {
	if !m.mu.TryLock() {
		return false, nil
	}
	defer m.mu.Unlock()
	return true, task()
}
