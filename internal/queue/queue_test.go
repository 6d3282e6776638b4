package queue

import (
	"testing"
	"time"
)

func TestPutGetOrdersByPriorityThenFIFO(t *testing.T) {
	q := New(10)
	q.Put(&Message{Content: "low", Priority: 8})
	q.Put(&Message{Content: "high-a", Priority: 1})
	q.Put(&Message{Content: "high-b", Priority: 1})
	q.Put(&Message{Content: "mid", Priority: 5})

	want := []string{"high-a", "high-b", "mid", "low"}
	for _, w := range want {
		msg := q.Get()
		if msg == nil || msg.Content != w {
			t.Fatalf("expected %q, got %v", w, msg)
		}
	}
	if q.Get() != nil {
		t.Fatal("expected empty queue")
	}
}

func TestPriorityClampedToValidRange(t *testing.T) {
	q := New(10)
	q.Put(&Message{Content: "too-high", Priority: 99})
	q.Put(&Message{Content: "too-low", Priority: -5})

	msg := q.Get()
	if msg.Content != "too-low" {
		t.Fatalf("expected clamped priority 1 message first, got %v", msg.Content)
	}
}

func TestGetSkipsExpiredEntries(t *testing.T) {
	q := New(10)
	q.Put(&Message{
		Content:   "stale",
		Priority:  1,
		Timestamp: time.Now().Add(-time.Hour),
		TTL:       time.Minute,
	})
	q.Put(&Message{Content: "fresh", Priority: 5})

	msg := q.Get()
	if msg == nil || msg.Content != "fresh" {
		t.Fatalf("expected expired entry skipped, got %v", msg)
	}
	if q.Size() != 0 {
		t.Fatalf("expected queue drained, size=%d", q.Size())
	}
}

func TestPutDropsLowestPriorityWhenFull(t *testing.T) {
	q := New(2)
	q.Put(&Message{Content: "keep-high", Priority: 1})
	q.Put(&Message{Content: "drop-me", Priority: 10})

	ok := q.Put(&Message{Content: "newcomer", Priority: 3})
	if !ok {
		t.Fatal("expected put to succeed by evicting the lowest-priority entry")
	}
	if q.Size() != 2 {
		t.Fatalf("expected size capped at 2, got %d", q.Size())
	}

	first := q.Get()
	second := q.Get()
	if first.Content != "keep-high" || second.Content != "newcomer" {
		t.Fatalf("unexpected survivors: %v, %v", first.Content, second.Content)
	}
}

func TestPutRefusesWhenIncomingIsStrictlyWorseThanEvictionCandidate(t *testing.T) {
	q := New(1)
	q.Put(&Message{Content: "only-good", Priority: 3})

	ok := q.Put(&Message{Content: "too-low", Priority: 10})
	if ok {
		t.Fatal("expected put to be refused rather than evict a better-priority entry")
	}
	if q.Size() != 1 {
		t.Fatalf("expected original entry untouched, size=%d", q.Size())
	}
	if msg := q.Get(); msg.Content != "only-good" {
		t.Fatalf("expected surviving entry to be the original, got %v", msg.Content)
	}
}

func TestRequeuePutsMessageBackAtHeadOfBand(t *testing.T) {
	q := New(10)
	q.Put(&Message{Content: "a", Priority: 5})
	msg := q.Get()
	msg.RetryCount++
	q.Requeue(msg)

	q.Put(&Message{Content: "b", Priority: 5})

	got := q.Get()
	if got.Content != "a" || got.RetryCount != 1 {
		t.Fatalf("expected requeued message first with retry count preserved, got %+v", got)
	}
}

func TestPeekDoesNotRemove(t *testing.T) {
	q := New(10)
	q.Put(&Message{Content: "only", Priority: 1})

	if p := q.Peek(); p == nil || p.Content != "only" {
		t.Fatalf("unexpected peek result: %v", p)
	}
	if q.Size() != 1 {
		t.Fatalf("peek must not remove, size=%d", q.Size())
	}
}

func TestPurgeExpiredReportsCount(t *testing.T) {
	q := New(10)
	q.Put(&Message{Content: "a", Priority: 1, Timestamp: time.Now().Add(-time.Hour), TTL: time.Second})
	q.Put(&Message{Content: "b", Priority: 2, Timestamp: time.Now().Add(-time.Hour), TTL: time.Second})
	q.Put(&Message{Content: "c", Priority: 3})

	n := q.PurgeExpired()
	if n != 2 {
		t.Fatalf("expected 2 purged, got %d", n)
	}
	if q.Size() != 1 {
		t.Fatalf("expected 1 remaining, got %d", q.Size())
	}
}

func TestManagerSweepReapsStaleSessions(t *testing.T) {
	m := NewManager(nil, 10, 10*time.Millisecond)
	q := m.GetOrCreate("sess-1")
	q.Put(&Message{Content: "x", Priority: 1})

	if m.Count() != 1 {
		t.Fatalf("expected 1 managed queue, got %d", m.Count())
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		m.Run(stop, 20*time.Millisecond)
		close(done)
	}()
	time.Sleep(80 * time.Millisecond)
	close(stop)
	<-done

	if m.Count() != 0 {
		t.Fatalf("expected stale session queue reaped, count=%d", m.Count())
	}
}
