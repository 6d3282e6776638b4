package events

import (
	"testing"
	"time"

	"github.com/LuminariMUD/Intermud3-sub000/internal/packet"
	"github.com/LuminariMUD/Intermud3-sub000/internal/queue"
	"github.com/LuminariMUD/Intermud3-sub000/internal/session"
)

func newTestBridge(t *testing.T) (*Bridge, *session.Manager) {
	t.Helper()
	reg := session.NewRegistry()
	if err := session.Register(reg, "k1", "Home", session.PermissionSet{session.PermAll: {}}, nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	qm := queue.NewManager(nil, 100, time.Hour)
	mgr := session.NewManager(nil, reg, nil, qm, nil, 0)
	return NewBridge(nil, mgr), mgr
}

func TestFromPacketMapsTellToTellReceived(t *testing.T) {
	b, _ := newTestBridge(t)
	pkt := &packet.TellPacket{
		Header: packet.Header{Kind: packet.KindTell, OriginatorMud: "Away", OriginatorUser: "zin", TargetMud: "Home", TargetUser: "bob"},
		Message: "hi there",
		Visname: "Zin",
	}
	ev, ok := b.FromPacket(pkt)
	if !ok {
		t.Fatal("expected tell packet to map to an event")
	}
	if ev.Type != TellReceived {
		t.Fatalf("expected tell_received, got %s", ev.Type)
	}
	if ev.Data["message"] != "hi there" {
		t.Fatalf("unexpected message: %v", ev.Data["message"])
	}
}

func TestFromPacketMapsEmotetoToEmotetoReceived(t *testing.T) {
	b, _ := newTestBridge(t)
	pkt := &packet.TellPacket{
		Header:  packet.Header{Kind: packet.KindEmoteTo, OriginatorMud: "Away", TargetMud: "Home", TargetUser: "bob"},
		Message: "waves",
	}
	ev, ok := b.FromPacket(pkt)
	if !ok || ev.Type != EmotetoReceived {
		t.Fatalf("expected emoteto_received, got %v ok=%v", ev, ok)
	}
}

func TestFromPacketUnknownKindYieldsNoEvent(t *testing.T) {
	b, _ := newTestBridge(t)
	_, ok := b.FromPacket(&packet.ShutdownPacket{Header: packet.Header{Kind: packet.KindShutdown}})
	if ok {
		t.Fatal("expected shutdown packet to produce no client event")
	}
}

func TestDispatchTellDeliversToTargetMudSession(t *testing.T) {
	b, mgr := newTestBridge(t)
	homeSess, _ := mgr.Authenticate("127.0.0.1", "k1")

	ev := New(TellReceived, map[string]any{"from_mud": "Away", "target_mud": "Home", "to_user": "bob", "message": "hi"})
	b.Dispatch(ev)

	if homeSess.Queue().Size() != 1 {
		t.Fatalf("expected 1 queued message for the target mud's session, got %d", homeSess.Queue().Size())
	}
}

func TestDispatchChannelMessageOnlyReachesSubscribers(t *testing.T) {
	b, mgr := newTestBridge(t)
	subscribed, _ := mgr.Authenticate("127.0.0.1", "k1")
	unsubscribed, _ := mgr.Authenticate("127.0.0.1", "k1")
	subscribed.Subscribe("chat")

	ev := New(ChannelMessage, map[string]any{"channel": "chat", "from_mud": "Away", "message": "hello"})
	b.Dispatch(ev)

	if subscribed.Queue().IsEmpty() {
		t.Fatal("expected subscribed session to receive the channel message")
	}
	if !unsubscribed.Queue().IsEmpty() {
		t.Fatal("expected unsubscribed session to receive nothing")
	}
}

func TestDispatchExcludesSelfOriginatedChannelEvent(t *testing.T) {
	b, mgr := newTestBridge(t)
	sess, _ := mgr.Authenticate("127.0.0.1", "k1")
	sess.Subscribe("chat")

	ev := New(ChannelMessage, map[string]any{"channel": "chat", "from_mud": "Home", "message": "echo"})
	b.Dispatch(ev)

	if !sess.Queue().IsEmpty() {
		t.Fatal("expected a session to not receive its own mud's channel event by default")
	}
}

func TestDispatchBroadcastsMaintenanceToAllSessions(t *testing.T) {
	b, mgr := newTestBridge(t)
	s1, _ := mgr.Authenticate("127.0.0.1", "k1")
	s2, _ := mgr.Authenticate("127.0.0.1", "k1")

	ev := New(MaintenanceScheduled, map[string]any{"message": "downtime at midnight"})
	b.Dispatch(ev)

	if s1.Queue().IsEmpty() || s2.Queue().IsEmpty() {
		t.Fatal("expected every session to receive a broadcast maintenance notice")
	}
}

func TestDispatchDropsExpiredEvent(t *testing.T) {
	b, mgr := newTestBridge(t)
	sess, _ := mgr.Authenticate("127.0.0.1", "k1")

	ev := &Event{Type: MaintenanceScheduled, Data: map[string]any{}, Timestamp: time.Now().Add(-time.Hour), TTL: time.Minute, Priority: 5}
	b.Dispatch(ev)

	if !sess.Queue().IsEmpty() {
		t.Fatal("expected expired event to never be enqueued")
	}
}
