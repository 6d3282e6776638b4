package state

import (
	"context"
	"testing"
	"time"
)

func newTestStore() *Store {
	return New(nil, nil)
}

func TestUpdateMudlistPublishesOnlyTransitions(t *testing.T) {
	s := newTestStore()

	s.UpdateMudlist(map[string]any{
		"AberMUD": map[string]any{"driver": "LPMud", "host": "aber.example"},
	}, 1)

	select {
	case ev := <-s.Events():
		if ev.Type != "mud_online" || ev.MudName != "AberMUD" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatal("expected mud_online event")
	}

	m := s.GetMud("AberMUD")
	if m == nil || m.Status != MudOnline || m.Driver != "LPMud" {
		t.Fatalf("unexpected mud entry: %+v", m)
	}

	// A second update with the same fields is not a transition and must
	// not publish another event.
	s.UpdateMudlist(map[string]any{
		"AberMUD": map[string]any{"driver": "LPMud", "host": "aber.example"},
	}, 2)
	select {
	case ev := <-s.Events():
		t.Fatalf("unexpected second event: %+v", ev)
	default:
	}

	// Zero value marks offline and publishes mud_offline exactly once.
	s.UpdateMudlist(map[string]any{"AberMUD": int32(0)}, 3)
	select {
	case ev := <-s.Events():
		if ev.Type != "mud_offline" || ev.MudName != "AberMUD" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatal("expected mud_offline event")
	}
	if got := s.GetMud("AberMUD"); got.Status != MudOffline {
		t.Fatalf("expected offline status, got %v", got.Status)
	}
}

func TestGetMudReturnsIndependentCopy(t *testing.T) {
	s := newTestStore()
	s.UpdateMudlist(map[string]any{"X": map[string]any{"driver": "d1"}}, 1)

	m := s.GetMud("X")
	m.Driver = "mutated"

	again := s.GetMud("X")
	if again.Driver != "d1" {
		t.Fatalf("mutation of returned copy leaked into store: %v", again.Driver)
	}
}

func TestChannelHistoryRingWrapsAtCapacity(t *testing.T) {
	s := newTestStore()
	const cap = 3
	s.mu.Lock()
	s.channels["chat"] = newChannel("chat", cap)
	s.mu.Unlock()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		s.HistoryAppend("chat", HistoryEntry{
			Kind:      HistoryMessage,
			Body:      string(rune('a' + i)),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
	}

	entries := s.HistoryRead("chat", 0, time.Time{}, time.Time{})
	if len(entries) != cap {
		t.Fatalf("expected ring capped at %d entries, got %d", cap, len(entries))
	}
	// Oldest two entries ("a","b") should have been evicted; "c","d","e" remain in order.
	want := []string{"c", "d", "e"}
	for i, e := range entries {
		if e.Body != want[i] {
			t.Fatalf("entry %d = %q, want %q", i, e.Body, want[i])
		}
	}
}

func TestUpdateChanlistPublishesCreateAndDelete(t *testing.T) {
	s := newTestStore()
	s.UpdateChanlist(map[string]any{"gossip": map[string]any{"owner_mud": "AberMUD"}}, 1)

	select {
	case ev := <-s.Events():
		if ev.Type != "channel_created" || ev.Channel != "gossip" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatal("expected channel_created event")
	}
	if !s.ChannelExists("gossip") {
		t.Fatal("expected channel to exist")
	}

	s.UpdateChanlist(map[string]any{"gossip": int32(0)}, 2)
	select {
	case ev := <-s.Events():
		if ev.Type != "channel_deleted" || ev.Channel != "gossip" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatal("expected channel_deleted event")
	}
	if s.ChannelExists("gossip") {
		t.Fatal("expected channel to be removed")
	}
}

func TestSessionUpsertPreservesUnspecifiedFields(t *testing.T) {
	s := newTestStore()
	s.SessionUpsert("AberMUD", "fred", map[string]any{
		"is_online": true,
		"level":     int32(5),
		"title":     "the Wanderer",
	})
	s.SessionUpsert("AberMUD", "fred", map[string]any{"location": "the Square"})

	got := s.SessionGet("AberMUD", "fred")
	if got == nil {
		t.Fatal("expected session")
	}
	if got.Level != 5 || got.Title != "the Wanderer" || got.Location != "the Square" {
		t.Fatalf("unexpected session: %+v", got)
	}
}

func TestSessionsOnlineFiltersByMudAndOnlineStatus(t *testing.T) {
	s := newTestStore()
	s.SessionUpsert("AberMUD", "fred", map[string]any{"is_online": true})
	s.SessionUpsert("AberMUD", "wilma", map[string]any{"is_online": false})
	s.SessionUpsert("OtherMUD", "barney", map[string]any{"is_online": true})

	online := s.SessionsOnline("AberMUD", nil)
	if len(online) != 1 || online[0].UserName != "fred" {
		t.Fatalf("unexpected online list: %+v", online)
	}
}

func TestCacheGetEvictsExpiredEntry(t *testing.T) {
	s := newTestStore()
	s.CachePut(CacheWho, "abermud", "payload")

	s.cacheMu.Lock()
	e := s.caches[cacheKey{CacheWho, "abermud"}]
	e.cachedAt = time.Now().Add(-31 * time.Second)
	s.caches[cacheKey{CacheWho, "abermud"}] = e
	s.cacheMu.Unlock()

	if _, ok := s.CacheGet(CacheWho, "abermud"); ok {
		t.Fatal("expected expired entry to miss")
	}
	s.cacheMu.RLock()
	_, stillPresent := s.caches[cacheKey{CacheWho, "abermud"}]
	s.cacheMu.RUnlock()
	if stillPresent {
		t.Fatal("expected expired entry to be evicted on miss")
	}
}

func TestSweepCachesEvictsOnInterval(t *testing.T) {
	s := newTestStore()
	s.CachePut(CacheLocate, "k", "v")
	s.cacheMu.Lock()
	e := s.caches[cacheKey{CacheLocate, "k"}]
	e.cachedAt = time.Now().Add(-time.Hour)
	s.caches[cacheKey{CacheLocate, "k"}] = e
	s.cacheMu.Unlock()

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		s.SweepCaches(stop, 10*time.Millisecond)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)
	close(stop)
	<-done

	if _, ok := s.CacheGet(CacheLocate, "k"); ok {
		t.Fatal("expected sweeper to have evicted stale entry")
	}
}

func TestLocateRegisterCompleteWait(t *testing.T) {
	s := newTestStore()
	key := LocateKey("sess-1", "Fred")
	h := s.LocateRegister(key, time.Now().Add(time.Second))

	go func() {
		s.LocateComplete(key, "found on AberMUD")
	}()

	res, err := s.LocateWait(context.Background(), h, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != "found on AberMUD" {
		t.Fatalf("unexpected result: %v", res)
	}
}

func TestLocateWaitTimesOut(t *testing.T) {
	s := newTestStore()
	key := LocateKey("sess-2", "Wilma")
	h := s.LocateRegister(key, time.Now().Add(time.Hour))

	_, err := s.LocateWait(context.Background(), h, 20*time.Millisecond)
	if err != ErrLocateTimeout {
		t.Fatalf("expected ErrLocateTimeout, got %v", err)
	}
}

func TestLocateCompleteAfterExpiryIsNoop(t *testing.T) {
	s := newTestStore()
	key := LocateKey("sess-3", "Barney")
	h := s.LocateRegister(key, time.Now().Add(10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	// Late completion must not panic and must not be observed by a fresh wait.
	s.LocateComplete(key, "too late")

	_, err := s.LocateWait(context.Background(), h, 20*time.Millisecond)
	if err != ErrLocateTimeout {
		t.Fatalf("expected ErrLocateTimeout for already-expired handle, got %v", err)
	}
}
