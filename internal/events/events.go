// Package events bridges incoming I3 packets into JSON-RPC notifications
// fanned out to subscribed client sessions, per spec.md §4.7.
//
// Grounded on original_source/src/api/events.py (Event/EventType/
// EventFilter shapes, priority table, JSON-RPC notification format) and
// event_bridge.py (packet-kind routing), re-expressed in the Go idiom of
// rustyguts-bken/server/room.go's broadcast pattern: iterate a snapshot
// of subscribers without holding a lock across the send.
package events

import (
	"encoding/json"
	"time"
)

// Type is one of the closed set of event types a client may subscribe to.
type Type string

const (
	TellReceived        Type = "tell_received"
	EmotetoReceived      Type = "emoteto_received"
	ChannelMessage       Type = "channel_message"
	ChannelEmote         Type = "channel_emote"
	MudOnline            Type = "mud_online"
	MudOffline           Type = "mud_offline"
	ChannelJoined        Type = "channel_joined"
	ChannelLeft          Type = "channel_left"
	ErrorOccurred        Type = "error_occurred"
	GatewayReconnected   Type = "gateway_reconnected"
	UserJoinedChannel    Type = "user_joined_channel"
	UserLeftChannel      Type = "user_left_channel"
	UserStatusChanged    Type = "user_status_changed"
	MaintenanceScheduled Type = "maintenance_scheduled"
	ShutdownWarning      Type = "shutdown_warning"
	RateLimitWarning     Type = "rate_limit_warning"
)

// priorityTable assigns each event type its queue priority (1 highest,
// 10 lowest), per §4.7: tells/emotes are high priority and short-lived,
// channel chatter is mid priority and ephemeral, user activity is low
// priority, errors and reconnect notices are urgent and long-lived,
// everything else defaults to 5.
var priorityTable = map[Type]int{
	TellReceived:       3,
	EmotetoReceived:    3,
	ChannelMessage:     5,
	ChannelEmote:       5,
	MudOnline:          7,
	MudOffline:         7,
	ChannelJoined:      7,
	ChannelLeft:        7,
	UserJoinedChannel:  7,
	UserLeftChannel:    7,
	UserStatusChanged:  7,
	ErrorOccurred:      2,
	GatewayReconnected: 1,
}

// ttlTable assigns each event type its default time-to-live.
var ttlTable = map[Type]time.Duration{
	TellReceived:       5 * time.Minute,
	EmotetoReceived:    5 * time.Minute,
	ChannelMessage:     time.Minute,
	ChannelEmote:       time.Minute,
	ErrorOccurred:      10 * time.Minute,
	GatewayReconnected: 10 * time.Minute,
}

const defaultPriority = 5
const defaultTTL = 5 * time.Minute

// Event is one unit of distributable notification state.
type Event struct {
	Type      Type
	Data      map[string]any
	Timestamp time.Time
	Priority  int
	TTL       time.Duration
}

// New builds an Event with the type's table priority/TTL (or the
// package defaults when the type carries none).
func New(typ Type, data map[string]any) *Event {
	priority, ok := priorityTable[typ]
	if !ok {
		priority = defaultPriority
	}
	ttl, ok := ttlTable[typ]
	if !ok {
		ttl = defaultTTL
	}
	return &Event{Type: typ, Data: data, Timestamp: time.Now(), Priority: priority, TTL: ttl}
}

// Expired reports whether the event has outlived its TTL.
func (e *Event) Expired() bool {
	if e.TTL <= 0 {
		return false
	}
	return time.Since(e.Timestamp) > e.TTL
}

// notification is the wire shape of a JSON-RPC 2.0 notification: no id,
// method is the event type, params is the event data plus a timestamp.
type notification struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params"`
}

// Encode renders the event as a JSON-RPC notification payload.
func (e *Event) Encode() ([]byte, error) {
	params := make(map[string]any, len(e.Data)+1)
	for k, v := range e.Data {
		params[k] = v
	}
	params["timestamp"] = e.Timestamp.UTC().Format(time.RFC3339Nano)
	return json.Marshal(notification{JSONRPC: "2.0", Method: string(e.Type), Params: params})
}

// Filter is the minimal shape this package needs to evaluate a
// subscriber's preferences against an Event. internal/session.EventFilter
// satisfies this interface directly (matching field accessors), which
// keeps events free of a dependency on session and lets internal/events
// stay the single owner of filter-matching logic.
type Filter interface {
	AllowsType(t string) bool
	AllowsChannel(channel string) bool
	AllowsMud(mudName string) bool
	ExcludesSelf() bool
	PriorityCeiling() int
}

// Matches reports whether event should be delivered to a session whose
// own mud name is selfMud, given its filter. A nil filter allows
// everything.
func Matches(f Filter, e *Event, selfMud string) bool {
	if f == nil {
		return true
	}
	if ceiling := f.PriorityCeiling(); ceiling > 0 && e.Priority > ceiling {
		return false
	}
	if !f.AllowsType(string(e.Type)) {
		return false
	}
	if e.Type == ChannelMessage || e.Type == ChannelEmote {
		ch, _ := e.Data["channel"].(string)
		if !f.AllowsChannel(ch) {
			return false
		}
	}
	fromMud, _ := e.Data["from_mud"].(string)
	if fromMud == "" {
		fromMud, _ = e.Data["mud_name"].(string)
	}
	if !f.AllowsMud(fromMud) {
		return false
	}
	if f.ExcludesSelf() && fromMud != "" && fromMud == selfMud {
		return false
	}
	return true
}
