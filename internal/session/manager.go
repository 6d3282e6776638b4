package session

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/LuminariMUD/Intermud3-sub000/internal/queue"
)

// ErrIPBlocked is returned by Manager.Authenticate when the IP filter
// refuses the connection before the credential is even checked (§4.6).
var ErrIPBlocked = errors.New("session: ip address blocked")

// DefaultSessionTimeout is the idle-destroy timeout NewManager falls back
// to when it is given a sessionTimeout <= 0.
const DefaultSessionTimeout = 30 * time.Minute

// Manager owns every live Session, indexed by id and by mud name (one
// mud may have several concurrent sessions — see SessionsForMud).
//
// Grounded on original_source/src/api/session.py's session table plus
// src/gateway.py's independent sweeper tickers, re-expressed in the Go
// shape of rustyguts-bken/server/internal/core/channel_state.go's
// ChannelState (RWMutex-guarded maps, read accessors that never block a
// writer longer than necessary).
type Manager struct {
	log             *slog.Logger
	registry        *Registry
	ipFilter        *IPFilter
	queues          *queue.Manager
	methodOverrides map[string]RateLimitConfig
	sessionTimeout  time.Duration

	mu       sync.RWMutex
	byID     map[string]*Session
	byMud    map[string]map[string]*Session // mud -> session id -> session
}

// NewManager constructs a session Manager.
func NewManager(log *slog.Logger, registry *Registry, ipFilter *IPFilter, queues *queue.Manager, methodOverrides map[string]RateLimitConfig, sessionTimeout time.Duration) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if sessionTimeout <= 0 {
		sessionTimeout = DefaultSessionTimeout
	}
	return &Manager{
		log:             log,
		registry:        registry,
		ipFilter:        ipFilter,
		queues:          queues,
		methodOverrides: methodOverrides,
		sessionTimeout:  sessionTimeout,
		byID:            make(map[string]*Session),
		byMud:           make(map[string]map[string]*Session),
	}
}

// Authenticate evaluates the IP filter then the credential, and on
// success creates a new Session (conservative default policy: always a
// fresh session id and queue, per §4.6 — no credential+mud_name
// re-association is implemented).
func (m *Manager) Authenticate(remoteAddr, plaintext string) (*Session, error) {
	if !m.ipFilter.Allowed(remoteAddr) {
		return nil, ErrIPBlocked
	}
	cred, err := m.registry.Authenticate(plaintext)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	sess := newSession(id, cred, m.queues.GetOrCreate(id), m.methodOverrides)

	m.mu.Lock()
	m.byID[sess.ID] = sess
	if m.byMud[sess.MudName] == nil {
		m.byMud[sess.MudName] = make(map[string]*Session)
	}
	m.byMud[sess.MudName][sess.ID] = sess
	m.mu.Unlock()

	m.log.Info("session authenticated", "session", sess.ID, "mud", sess.MudName)
	return sess, nil
}

// Get returns the session for id, or nil.
func (m *Manager) Get(id string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byID[id]
}

// SessionsForMud returns every live session authoritative for mudName.
// A mud may have more than one concurrent session (e.g. staging and
// live); callers that need "the" session for a user should iterate this
// set rather than assuming one exists.
func (m *Manager) SessionsForMud(mudName string) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byID := m.byMud[mudName]
	out := make([]*Session, 0, len(byID))
	for _, s := range byID {
		out = append(out, s)
	}
	return out
}

// All returns a snapshot of every live session, for broadcast-style
// event delivery (maintenance notices, gateway reconnect, etc.).
func (m *Manager) All() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.byID))
	for _, s := range m.byID {
		out = append(out, s)
	}
	return out
}

// Destroy removes a session and its queue outright.
func (m *Manager) Destroy(id string) {
	m.mu.Lock()
	sess, ok := m.byID[id]
	if ok {
		delete(m.byID, id)
		if set, ok := m.byMud[sess.MudName]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(m.byMud, sess.MudName)
			}
		}
	}
	m.mu.Unlock()
	if ok {
		m.queues.Remove(id)
		m.log.Info("session destroyed", "session", id)
	}
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

// ReapIdle destroys every session that has both exceeded sessionTimeout
// and has no attached transport, per §4.6.
func (m *Manager) ReapIdle() {
	m.mu.RLock()
	var victims []string
	for id, s := range m.byID {
		if !s.HasTransport() && s.IdleFor() > m.sessionTimeout {
			victims = append(victims, id)
		}
	}
	m.mu.RUnlock()
	for _, id := range victims {
		m.Destroy(id)
	}
}

// Run drives the idle-session sweeper until stop is closed.
func (m *Manager) Run(stop <-chan struct{}, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.ReapIdle()
		}
	}
}
