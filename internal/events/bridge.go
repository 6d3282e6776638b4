package events

import (
	"log/slog"

	"github.com/LuminariMUD/Intermud3-sub000/internal/packet"
	"github.com/LuminariMUD/Intermud3-sub000/internal/queue"
	"github.com/LuminariMUD/Intermud3-sub000/internal/session"
)

// Bridge turns incoming I3 packets into Events and fans them out to every
// subscribed client session's queue, per §4.7.
//
// Grounded on original_source/src/api/event_bridge.py's packet_type
// routing table, re-targeted at this module's packet.Kind set, with
// delivery expressed the way rustyguts-bken/server/room.go broadcasts:
// snapshot the subscriber set, send without holding a lock.
type Bridge struct {
	log      *slog.Logger
	sessions *session.Manager

	packetsProcessed int64
	eventsGenerated  int64
}

// NewBridge constructs a Bridge over a session Manager.
func NewBridge(log *slog.Logger, sessions *session.Manager) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{log: log, sessions: sessions}
}

// FromPacket maps an incoming I3 packet to an Event, or returns ok=false
// for kinds that carry no client-facing notification.
func (b *Bridge) FromPacket(p packet.Packet) (*Event, bool) {
	switch pkt := p.(type) {
	case *packet.TellPacket:
		if pkt.Kind == packet.KindEmoteTo {
			return New(EmotetoReceived, map[string]any{
				"from_mud":   pkt.OriginatorMud,
				"from_user":  pkt.OriginatorUser,
				"to_user":    pkt.TargetUser,
				"target_mud": pkt.TargetMud,
				"message":    pkt.Message,
				"visname":    pkt.Visname,
			}), true
		}
		return New(TellReceived, map[string]any{
			"from_mud":   pkt.OriginatorMud,
			"from_user":  pkt.OriginatorUser,
			"to_user":    pkt.TargetUser,
			"target_mud": pkt.TargetMud,
			"message":    pkt.Message,
			"visname":    pkt.Visname,
		}), true

	case *packet.ChannelMsgPacket:
		typ := ChannelMessage
		if pkt.Kind == packet.KindChannelE || pkt.Kind == packet.KindChannelT {
			typ = ChannelEmote
		}
		return New(typ, map[string]any{
			"channel":   pkt.Channel,
			"from_mud":  pkt.OriginatorMud,
			"from_user": pkt.OriginatorUser,
			"message":   pkt.Message,
			"visname":   pkt.Visname,
		}), true

	case *packet.ErrorPacket:
		return New(ErrorOccurred, map[string]any{
			"error_code":    pkt.ErrorCode,
			"error_message": pkt.ErrorMessage,
			"from_mud":      pkt.OriginatorMud,
		}), true

	case *packet.MudlistPacket:
		return New(MudOnline, map[string]any{
			"mud_name": pkt.OriginatorMud,
		}), true

	default:
		return nil, false
	}
}

// Process converts an inbound packet to an event (when applicable) and
// dispatches it to every matching session.
func (b *Bridge) Process(p packet.Packet) {
	b.packetsProcessed++
	ev, ok := b.FromPacket(p)
	if !ok {
		return
	}
	b.Dispatch(ev)
}

// Dispatch delivers ev to every session whose filter matches, choosing
// the candidate session set by event type: direct messages go only to
// sessions for the addressed mud, channel events go to subscribers of
// that channel, everything else is a broadcast to all sessions.
func (b *Bridge) Dispatch(ev *Event) {
	if ev.Expired() {
		return
	}
	var targets []*session.Session
	switch ev.Type {
	case TellReceived, EmotetoReceived:
		targetMud, _ := ev.Data["target_mud"].(string)
		targets = b.sessions.SessionsForMud(targetMud)
	case ChannelMessage, ChannelEmote:
		channel, _ := ev.Data["channel"].(string)
		for _, s := range b.sessions.All() {
			if s.IsSubscribed(channel) {
				targets = append(targets, s)
			}
		}
	default:
		targets = b.sessions.All()
	}

	for _, s := range targets {
		if !Matches(s.Filter(), ev, s.MudName) {
			continue
		}
		b.enqueue(s, ev)
	}
}

func (b *Bridge) enqueue(s *session.Session, ev *Event) {
	payload, err := ev.Encode()
	if err != nil {
		b.log.Error("encoding event", "type", ev.Type, "error", err)
		return
	}
	msg := &queue.Message{
		Content:   payload,
		Priority:  ev.Priority,
		Timestamp: ev.Timestamp,
		TTL:       ev.TTL,
	}
	if !s.Queue().Put(msg) {
		b.log.Warn("event dropped, session queue full", "session", s.ID, "type", ev.Type)
		return
	}
	b.eventsGenerated++
}

// Stats reports the bridge's lifetime counters.
func (b *Bridge) Stats() (packetsProcessed, eventsGenerated int64) {
	return b.packetsProcessed, b.eventsGenerated
}
