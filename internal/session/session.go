package session

import (
	"sync"
	"time"

	"github.com/LuminariMUD/Intermud3-sub000/internal/queue"
)

// EventFilter narrows which events a session receives, per §4.7.
type EventFilter struct {
	EventTypes       map[string]struct{}
	Channels         map[string]struct{}
	MudNames         map[string]struct{}
	ExcludeSelf      bool // defaults true
	PriorityThreshold int
}

// DefaultEventFilter matches the source's documented default: exclude
// events originating from the session's own mud, no other narrowing.
func DefaultEventFilter() *EventFilter {
	return &EventFilter{ExcludeSelf: true, PriorityThreshold: 10}
}

// AllowsType, AllowsChannel, AllowsMud, ExcludesSelf and PriorityCeiling
// satisfy internal/events.Filter, so an *EventFilter can be passed
// directly to events.Matches without this package importing events.
func (f *EventFilter) AllowsType(t string) bool {
	if len(f.EventTypes) == 0 {
		return true
	}
	_, ok := f.EventTypes[t]
	return ok
}

func (f *EventFilter) AllowsChannel(channel string) bool {
	if len(f.Channels) == 0 {
		return true
	}
	_, ok := f.Channels[channel]
	return ok
}

func (f *EventFilter) AllowsMud(mudName string) bool {
	if len(f.MudNames) == 0 {
		return true
	}
	_, ok := f.MudNames[mudName]
	return ok
}

func (f *EventFilter) ExcludesSelf() bool { return f.ExcludeSelf }
func (f *EventFilter) PriorityCeiling() int { return f.PriorityThreshold }

// Transport is the minimal surface a WebSocket or TCP connection exposes
// to a Session; internal/transport implementations satisfy this.
type Transport interface {
	WriteMessage(data []byte) error
	Close() error
}

// Session is one authenticated client connection's state: identity,
// permissions, rate limiter, subscriptions, and a queue owned by
// internal/queue. It can outlive its transport (§4.6's "Session queue")
// and be reattached later within the conservative default policy (new
// session id, fresh queue — see Manager.Authenticate).
type Session struct {
	ID          string
	MudName     string
	Permissions PermissionSet
	ConnectedAt time.Time

	mu           sync.Mutex
	lastActivity time.Time
	transport    Transport
	subscriptions map[string]struct{}
	filter        *EventFilter

	limiter *RateLimiter
	queue   *queue.Queue
}

func newSession(id string, cred *Credential, q *queue.Queue, methodOverrides map[string]RateLimitConfig) *Session {
	rlCfg := DefaultRateLimit
	if cred.RateLimitOverride != nil {
		rlCfg = *cred.RateLimitOverride
	}
	now := time.Now()
	return &Session{
		ID:            id,
		MudName:       cred.MudName,
		Permissions:   cred.Permissions,
		ConnectedAt:   now,
		lastActivity:  now,
		subscriptions: make(map[string]struct{}),
		filter:        DefaultEventFilter(),
		limiter:       NewRateLimiter(rlCfg, methodOverrides),
		queue:         q,
	}
}

// Touch records activity, resetting the idle-timeout clock.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// IdleFor reports how long it has been since the session's last activity.
func (s *Session) IdleFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity)
}

// AttachTransport binds (or rebinds) the session's live transport. Per
// §4.6, queued messages begin draining once a transport is attached.
func (s *Session) AttachTransport(t Transport) {
	s.mu.Lock()
	s.transport = t
	s.mu.Unlock()
}

// DetachTransport clears the live transport without destroying the
// session or its queue; messages keep enqueuing up to capacity.
func (s *Session) DetachTransport() {
	s.mu.Lock()
	s.transport = nil
	s.mu.Unlock()
}

// Transport returns the currently attached transport, or nil.
func (s *Session) Transport() Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport
}

// HasTransport reports whether a live transport is attached.
func (s *Session) HasTransport() bool {
	return s.Transport() != nil
}

// Subscribe adds channel to the session's subscription set.
func (s *Session) Subscribe(channel string) {
	s.mu.Lock()
	s.subscriptions[channel] = struct{}{}
	s.mu.Unlock()
}

// Unsubscribe removes channel from the session's subscription set.
func (s *Session) Unsubscribe(channel string) {
	s.mu.Lock()
	delete(s.subscriptions, channel)
	s.mu.Unlock()
}

// IsSubscribed reports whether channel is in the session's subscription set.
func (s *Session) IsSubscribed(channel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.subscriptions[channel]
	return ok
}

// Subscriptions returns a snapshot of subscribed channels.
func (s *Session) Subscriptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.subscriptions))
	for ch := range s.subscriptions {
		out = append(out, ch)
	}
	return out
}

// SetFilter replaces the session's EventFilter.
func (s *Session) SetFilter(f *EventFilter) {
	s.mu.Lock()
	s.filter = f
	s.mu.Unlock()
}

// Filter returns the session's current EventFilter.
func (s *Session) Filter() *EventFilter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// Allow checks the session's rate limiter for method.
func (s *Session) Allow(method string) bool {
	return s.limiter.Allow(method)
}

// Queue returns the session's outbound message queue.
func (s *Session) Queue() *queue.Queue { return s.queue }

// HasPermission reports whether the session's credential grants perm.
func (s *Session) HasPermission(perm Permission) bool {
	return s.Permissions.Has(perm)
}
