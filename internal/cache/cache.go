package cache

import "time"

// Purger is implemented by caches that can be emptied wholesale.
type Purger interface {
	Purge()
}

// Cleaner is implemented by caches that support expiry sweeps.
type Cleaner interface {
	CleanExpired() int
}

// Manager owns a set of caches and runs their periodic expiry sweeps. It
// also fans out Purge when the dataset behind the caches changes.
type Manager struct {
	caches      []Cleaner
	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

// NewManager creates an empty cache manager.
func NewManager() *Manager {
	return &Manager{
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
}

// Register adds a cache to the manager.
func (m *Manager) Register(c Cleaner) {
	m.caches = append(m.caches, c)
}

// PurgeAll empties every registered cache that supports purging.
func (m *Manager) PurgeAll() {
	for _, c := range m.caches {
		if p, ok := c.(Purger); ok {
			p.Purge()
		}
	}
}

// StartCleanup begins periodic cleanup of all registered caches.
func (m *Manager) StartCleanup(interval time.Duration) {
	go m.cleanup(interval)
}

func (m *Manager) cleanup(interval time.Duration) {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, c := range m.caches {
				c.CleanExpired()
			}
		case <-m.stopCleanup:
			return
		}
	}
}

// Stop gracefully stops the cleanup routine.
func (m *Manager) Stop() {
	if m.stopCleanup != nil {
		close(m.stopCleanup)
		<-m.cleanupDone
	}
}
