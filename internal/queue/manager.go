package queue

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultMaxSize is applied to a session queue when the manager isn't
// configured with an override.
const DefaultMaxSize = 1000

// DefaultCleanupInterval matches §4.10's sweeper cadence.
const DefaultCleanupInterval = 60 * time.Second

// Manager owns every session's Queue, keyed by session id, and runs the
// background sweeper that purges expired entries and reaps queues whose
// session has been gone too long.
//
// Grounded on original_source/src/api/queue.py's MessageQueueManager.
type Manager struct {
	log             *slog.Logger
	defaultMaxSize  int
	cleanupInterval time.Duration

	mu          sync.Mutex
	queues      map[string]*Queue
	lastActive  map[string]time.Time // updated whenever the session still exists
}

// NewManager constructs a Manager. maxSize <= 0 uses DefaultMaxSize;
// cleanupInterval <= 0 uses DefaultCleanupInterval.
func NewManager(log *slog.Logger, maxSize int, cleanupInterval time.Duration) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	return &Manager{
		log:             log,
		defaultMaxSize:  maxSize,
		cleanupInterval: cleanupInterval,
		queues:          make(map[string]*Queue),
		lastActive:      make(map[string]time.Time),
	}
}

// GetOrCreate returns sessionID's queue, creating one if absent.
func (m *Manager) GetOrCreate(sessionID string) *Queue {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[sessionID]
	if !ok {
		q = New(m.defaultMaxSize)
		m.queues[sessionID] = q
	}
	m.lastActive[sessionID] = time.Now()
	return q
}

// Touch marks sessionID as still alive, resetting its stale-reap clock
// without requiring queue access.
func (m *Manager) Touch(sessionID string) {
	m.mu.Lock()
	m.lastActive[sessionID] = time.Now()
	m.mu.Unlock()
}

// Remove discards sessionID's queue outright (used on explicit session
// destruction, as opposed to stale-timeout reaping).
func (m *Manager) Remove(sessionID string) {
	m.mu.Lock()
	delete(m.queues, sessionID)
	delete(m.lastActive, sessionID)
	m.mu.Unlock()
}

// Run drives the periodic sweep until stop is closed: purge expired
// entries from every queue, then reap queues whose session has been
// inactive longer than staleTimeout.
func (m *Manager) Run(stop <-chan struct{}, staleTimeout time.Duration) {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.sweep(staleTimeout)
		}
	}
}

func (m *Manager) sweep(staleTimeout time.Duration) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.queues))
	for id := range m.queues {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	now := time.Now()
	for _, id := range ids {
		m.mu.Lock()
		q := m.queues[id]
		lastActive := m.lastActive[id]
		m.mu.Unlock()
		if q == nil {
			continue
		}

		if n := q.PurgeExpired(); n > 0 {
			m.log.Debug("purged expired queue entries", "session", id, "count", n)
		}

		if staleTimeout > 0 && now.Sub(lastActive) > staleTimeout {
			m.Remove(id)
			m.log.Info("reaped stale session queue", "session", id, "idle", now.Sub(lastActive))
		}
	}
}

// Count returns the number of queues currently managed.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues)
}
