package router

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/LuminariMUD/Intermud3-sub000/internal/packet"
	"github.com/LuminariMUD/Intermud3-sub000/internal/wire"
)

// fakeRouter accepts one connection, reads the startup-req-3 handshake,
// and replies with a startup-reply — enough to exercise Connecting ->
// Connected -> Ready without a real I3 router.
func fakeRouter(t *testing.T) (addr string, gotStartup chan []any, closeFn func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	gotStartup = make(chan []any, 1)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		r := wire.NewReader(bufio.NewReader(conn))
		value, err := r.ReadFrame()
		if err != nil {
			return
		}
		seq, _ := value.([]any)
		gotStartup <- seq

		reply := packet.StartupReplyPacket{
			Header: packet.Header{
				Kind:          packet.KindStartupReply,
				TTL:           packet.TTLCeiling,
				OriginatorMud: "*",
				TargetMud:     "TestMud",
			},
		}
		frame, _ := wire.Encode(reply.ToSequence())
		conn.Write(frame)

		// keep the connection open so the read loop idles rather than erroring.
		buf := make([]byte, 1024)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	}()

	return ln.Addr().String(), gotStartup, func() { ln.Close() }
}

func splitHostPort(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split %q: %v", addr, err)
	}
	var port int
	if _, err := fmtSscanf(portStr, &port); err != nil {
		t.Fatalf("parse port %q: %v", portStr, err)
	}
	return host, port
}

// fmtSscanf avoids importing fmt solely for a one-off int parse in tests.
func fmtSscanf(s string, out *int) (int, error) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int(r-'0')
	}
	*out = n
	return 1, nil
}

func TestConnectionHandshakeReachesReady(t *testing.T) {
	addr, gotStartup, closeFn := fakeRouter(t)
	defer closeFn()
	host, port := splitHostPort(t, addr)

	conn := New(nil, Identity{MudName: "TestMud"}, []Candidate{{Name: "primary", Host: host, Port: port}}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go conn.Run(ctx)

	select {
	case seq := <-gotStartup:
		if len(seq) != 20 {
			t.Fatalf("expected 20-field startup-req-3, got %d fields", len(seq))
		}
		if seq[0] != string(packet.KindStartupReq3) {
			t.Fatalf("unexpected kind field: %v", seq[0])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("router never received startup-req-3")
	}

	deadline := time.After(2 * time.Second)
	for {
		if conn.State() == StateReady {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("connection never reached Ready, stuck at %v", conn.State())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestConnectionSendQueuesOutboundPacket(t *testing.T) {
	addr, _, closeFn := fakeRouter(t)
	defer closeFn()
	host, port := splitHostPort(t, addr)

	conn := New(nil, Identity{MudName: "TestMud"}, []Candidate{{Name: "primary", Host: host, Port: port}}, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go conn.Run(ctx)

	time.Sleep(100 * time.Millisecond)

	tell := &packet.TellPacket{
		Header: packet.Header{
			Kind:           packet.KindTell,
			TTL:            packet.TTLCeiling,
			OriginatorMud:  "TestMud",
			OriginatorUser: "alice",
			TargetMud:      "OtherMud",
			TargetUser:     "bob",
		},
		Visname: "alice",
		Message: "hi",
	}
	if err := conn.Send(tell); err != nil { // no assertion on wire bytes here
		t.Fatalf("Send: %v", err)
	}
}

func TestBackoffWithFullJitterRespectsCap(t *testing.T) {
	base := 1 * time.Second
	capDur := 60 * time.Second

	for _, attempt := range []int{1, 2, 3, 10, 100} {
		for i := 0; i < 20; i++ {
			wait := backoffWithFullJitter(attempt, base, capDur)
			if wait < 0 || wait > capDur {
				t.Fatalf("attempt %d: wait %v out of [0,%v]", attempt, wait, capDur)
			}
		}
	}
}

func TestConnectionSubscribeReceivesStateTransitions(t *testing.T) {
	addr, _, closeFn := fakeRouter(t)
	defer closeFn()
	host, port := splitHostPort(t, addr)

	conn := New(nil, Identity{MudName: "TestMud"}, []Candidate{{Name: "primary", Host: host, Port: port}}, Options{})
	sub := conn.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go conn.Run(ctx)

	seen := map[State]bool{}
	deadline := time.After(2 * time.Second)
	for !seen[StateReady] {
		select {
		case chg := <-sub:
			seen[chg.To] = true
		case <-deadline:
			t.Fatalf("never observed Ready transition; saw %v", seen)
		}
	}
	if !seen[StateConnecting] || !seen[StateConnected] {
		t.Fatalf("expected to observe Connecting and Connected before Ready; saw %v", seen)
	}
}
