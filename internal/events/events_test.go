package events

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewAppliesPriorityAndTTLTable(t *testing.T) {
	e := New(TellReceived, map[string]any{"to_user": "zin"})
	if e.Priority != 3 {
		t.Fatalf("expected priority 3 for tell_received, got %d", e.Priority)
	}
	if e.TTL != 5*time.Minute {
		t.Fatalf("expected 5m TTL for tell_received, got %s", e.TTL)
	}
}

func TestNewFallsBackToDefaultsForUntabledType(t *testing.T) {
	e := New(RateLimitWarning, nil)
	if e.Priority != defaultPriority {
		t.Fatalf("expected default priority, got %d", e.Priority)
	}
	if e.TTL != defaultTTL {
		t.Fatalf("expected default TTL, got %s", e.TTL)
	}
}

func TestNewAppliesUserActivityPriority(t *testing.T) {
	for _, typ := range []Type{
		MudOnline, MudOffline, ChannelJoined, ChannelLeft,
		UserJoinedChannel, UserLeftChannel, UserStatusChanged,
	} {
		e := New(typ, nil)
		if e.Priority != 7 {
			t.Fatalf("expected priority 7 for %s, got %d", typ, e.Priority)
		}
	}
}

func TestExpiredHonorsTTL(t *testing.T) {
	e := &Event{Type: TellReceived, Timestamp: time.Now().Add(-time.Hour), TTL: time.Minute}
	if !e.Expired() {
		t.Fatal("expected event older than its TTL to be expired")
	}
	fresh := &Event{Type: TellReceived, Timestamp: time.Now(), TTL: time.Minute}
	if fresh.Expired() {
		t.Fatal("expected fresh event to not be expired")
	}
}

func TestExpiredZeroTTLNeverExpires(t *testing.T) {
	e := &Event{Type: GatewayReconnected, Timestamp: time.Now().Add(-24 * time.Hour)}
	if e.Expired() {
		t.Fatal("expected zero-TTL event to never expire")
	}
}

func TestEncodeProducesJSONRPCNotificationShape(t *testing.T) {
	e := New(ChannelMessage, map[string]any{"channel": "chat", "message": "hi"})
	raw, err := e.Encode()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["jsonrpc"] != "2.0" {
		t.Fatalf("expected jsonrpc 2.0, got %v", got["jsonrpc"])
	}
	if got["method"] != "channel_message" {
		t.Fatalf("expected method channel_message, got %v", got["method"])
	}
	if _, hasID := got["id"]; hasID {
		t.Fatal("notifications must not carry an id field")
	}
	params, ok := got["params"].(map[string]any)
	if !ok {
		t.Fatal("expected params object")
	}
	if params["channel"] != "chat" || params["message"] != "hi" {
		t.Fatalf("unexpected params: %v", params)
	}
	if _, ok := params["timestamp"]; !ok {
		t.Fatal("expected params to carry a timestamp")
	}
}

type stubFilter struct {
	types      map[string]bool
	channels   map[string]bool
	muds       map[string]bool
	excludeSelf bool
	ceiling    int
}

func (f *stubFilter) AllowsType(t string) bool {
	if len(f.types) == 0 {
		return true
	}
	return f.types[t]
}
func (f *stubFilter) AllowsChannel(c string) bool {
	if len(f.channels) == 0 {
		return true
	}
	return f.channels[c]
}
func (f *stubFilter) AllowsMud(m string) bool {
	if len(f.muds) == 0 {
		return true
	}
	return f.muds[m]
}
func (f *stubFilter) ExcludesSelf() bool   { return f.excludeSelf }
func (f *stubFilter) PriorityCeiling() int { return f.ceiling }

func TestMatchesNilFilterAllowsEverything(t *testing.T) {
	e := New(TellReceived, map[string]any{"from_mud": "Foo"})
	if !Matches(nil, e, "Foo") {
		t.Fatal("expected nil filter to allow everything")
	}
}

func TestMatchesExcludesSelfOrigin(t *testing.T) {
	e := New(ChannelMessage, map[string]any{"from_mud": "Home", "channel": "chat"})
	f := &stubFilter{excludeSelf: true, ceiling: 10}
	if Matches(f, e, "Home") {
		t.Fatal("expected self-originated event to be excluded")
	}
	if !Matches(f, e, "Away") {
		t.Fatal("expected event from a different mud to pass")
	}
}

func TestMatchesPriorityCeiling(t *testing.T) {
	e := New(ChannelMessage, map[string]any{"channel": "chat"}) // priority 5
	f := &stubFilter{ceiling: 4}
	if Matches(f, e, "") {
		t.Fatal("expected event below the ceiling (lower priority number wins) to be rejected")
	}
	f2 := &stubFilter{ceiling: 5}
	if !Matches(f2, e, "") {
		t.Fatal("expected event at the ceiling to pass")
	}
}

func TestMatchesChannelWhitelist(t *testing.T) {
	e := New(ChannelMessage, map[string]any{"channel": "ooc"})
	f := &stubFilter{channels: map[string]bool{"chat": true}, ceiling: 10}
	if Matches(f, e, "") {
		t.Fatal("expected channel outside whitelist to be rejected")
	}
}

func TestMatchesEventTypeWhitelist(t *testing.T) {
	e := New(ChannelEmote, map[string]any{"channel": "chat"})
	f := &stubFilter{types: map[string]bool{string(TellReceived): true}, ceiling: 10}
	if Matches(f, e, "") {
		t.Fatal("expected event type outside whitelist to be rejected")
	}
}
