package session

import (
	"testing"
	"time"

	"github.com/LuminariMUD/Intermud3-sub000/internal/queue"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	reg := NewRegistry()
	if err := Register(reg, "k1", "Alpha", PermissionSet{PermAll: {}}, nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	qm := queue.NewManager(nil, 100, time.Hour)
	return NewManager(nil, reg, nil, qm, nil, 0)
}

func TestAuthenticateSucceedsWithValidCredential(t *testing.T) {
	m := newTestManager(t)
	sess, err := m.Authenticate("127.0.0.1", "k1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.MudName != "Alpha" {
		t.Fatalf("unexpected mud name: %s", sess.MudName)
	}
	if !sess.HasPermission(PermTell) {
		t.Fatal("expected wildcard permission to grant tell")
	}
}

func TestAuthenticateRejectsUnknownCredential(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Authenticate("127.0.0.1", "bogus")
	if err != ErrCredentialRejected {
		t.Fatalf("expected ErrCredentialRejected, got %v", err)
	}
}

func TestAuthenticateRejectsBlockedIP(t *testing.T) {
	reg := NewRegistry()
	Register(reg, "k1", "Alpha", PermissionSet{PermAll: {}}, nil)
	filter := ParseIPFilter(true, nil, []string{"10.0.0.0/8"})
	qm := queue.NewManager(nil, 100, time.Hour)
	m := NewManager(nil, reg, filter, qm, nil, 0)

	_, err := m.Authenticate("10.1.2.3", "k1")
	if err != ErrIPBlocked {
		t.Fatalf("expected ErrIPBlocked, got %v", err)
	}
}

func TestIPFilterAllowlistRequiresMatch(t *testing.T) {
	filter := ParseIPFilter(true, []string{"192.168.1.0/24"}, nil)
	if filter.Allowed("192.168.2.1") {
		t.Fatal("expected address outside allowlist to be rejected")
	}
	if !filter.Allowed("192.168.1.50") {
		t.Fatal("expected address inside allowlist to be accepted")
	}
}

func TestIPFilterBlocklistWinsOverAllowlist(t *testing.T) {
	filter := ParseIPFilter(true, []string{"10.0.0.0/8"}, []string{"10.0.0.5/32"})
	if filter.Allowed("10.0.0.5") {
		t.Fatal("expected blocklist entry to win over an overlapping allowlist")
	}
}

func TestSessionsForMudReturnsAllConcurrentSessions(t *testing.T) {
	m := newTestManager(t)
	s1, _ := m.Authenticate("127.0.0.1", "k1")
	s2, _ := m.Authenticate("127.0.0.1", "k1")

	sessions := m.SessionsForMud("Alpha")
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions for mud, got %d", len(sessions))
	}
	ids := map[string]bool{s1.ID: true, s2.ID: true}
	for _, s := range sessions {
		if !ids[s.ID] {
			t.Fatalf("unexpected session id %s", s.ID)
		}
	}
}

func TestDestroyRemovesFromBothIndexes(t *testing.T) {
	m := newTestManager(t)
	sess, _ := m.Authenticate("127.0.0.1", "k1")
	m.Destroy(sess.ID)

	if m.Get(sess.ID) != nil {
		t.Fatal("expected session removed from id index")
	}
	if len(m.SessionsForMud("Alpha")) != 0 {
		t.Fatal("expected session removed from mud index")
	}
}

func TestReapIdleDestroysOnlyDetachedExpiredSessions(t *testing.T) {
	m := newTestManager(t)
	m.sessionTimeout = 10 * time.Millisecond

	idle, _ := m.Authenticate("127.0.0.1", "k1")
	attached, _ := m.Authenticate("127.0.0.1", "k1")
	attached.AttachTransport(fakeTransport{})

	time.Sleep(30 * time.Millisecond)
	m.ReapIdle()

	if m.Get(idle.ID) != nil {
		t.Fatal("expected idle detached session to be reaped")
	}
	if m.Get(attached.ID) == nil {
		t.Fatal("expected attached session to survive despite being idle")
	}
}

type fakeTransport struct{}

func (fakeTransport) WriteMessage([]byte) error { return nil }
func (fakeTransport) Close() error              { return nil }

func TestRateLimiterRejectsBurstOverflow(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{PerMinute: 60, Burst: 2}, nil)
	if !rl.Allow("tell") || !rl.Allow("tell") {
		t.Fatal("expected burst capacity to allow first two requests")
	}
	if rl.Allow("tell") {
		t.Fatal("expected third immediate request to be rejected")
	}
}

func TestRateLimiterPerMethodOverrideAppliesInAddition(t *testing.T) {
	rl := NewRateLimiter(
		RateLimitConfig{PerMinute: 6000, Burst: 100},
		map[string]RateLimitConfig{"tell": {PerMinute: 60, Burst: 1}},
	)
	if !rl.Allow("tell") {
		t.Fatal("expected first tell to be allowed")
	}
	if rl.Allow("tell") {
		t.Fatal("expected second immediate tell to be rejected by the per-method override")
	}
	if !rl.Allow("who") {
		t.Fatal("expected an unrelated method to be unaffected by tell's override")
	}
}

func TestCredentialHashNeverStoresPlaintext(t *testing.T) {
	hash, salt, err := HashCredential("super-secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(hash) == "super-secret" || string(salt) == "super-secret" {
		t.Fatal("plaintext leaked into stored hash/salt")
	}
	if len(hash) == 0 || len(salt) == 0 {
		t.Fatal("expected non-empty hash and salt")
	}
}
