package dispatch

import (
	"fmt"
	"time"

	"github.com/LuminariMUD/Intermud3-sub000/internal/packet"
	"github.com/LuminariMUD/Intermud3-sub000/internal/state"
)

// --- tell / emoteto ---

// handleTell answers a tell/emoteto addressed to this mud: the target
// user must be known and online in the state store (populated by
// whatever on-mud integration calls Store.SessionUpsert), otherwise the
// sender gets an unk-user error back. A successful delivery is just a
// packet handed to the event bridge — it fans out to every client session
// authoritative for this mud.
func (d *Dispatcher) handleTell(pkt *packet.TellPacket) {
	us := d.store.SessionGet(d.mudName, pkt.TargetUser)
	if us == nil || !us.IsOnline {
		reason := fmt.Sprintf("%s is not online on %s", pkt.TargetUser, d.mudName)
		d.replyError(pkt, packet.ErrCodeUnknownUser, reason)
		return
	}
	d.bridge.Process(pkt)
}

// replyError sends an error reply straight back over the wire to
// whichever mud originated req, bypassing the routeRemote mudlist check:
// a mud that just sent us a packet is reachable by definition, even if
// our local mudlist cache hasn't caught up with it yet, and retrying the
// error through the full decision tree would risk manufacturing a second,
// unrelated unk-dst error instead of delivering the first one.
func (d *Dispatcher) replyError(req packet.Packet, code, message string) {
	d.sendReply(packet.MakeErrorReply(req, code, message))
}

// sendReply sends any reply packet (error, who/finger/locate-reply)
// straight back to its addressee — the requester that just contacted
// us — for the same reachability reason as replyError. The one
// exception is a reply whose target happens to be this gateway itself
// (a request this gateway issued, echoed back through MakeReply's
// swap), which is routed to the matching local handler instead.
func (d *Dispatcher) sendReply(reply packet.Packet) {
	h := reply.Head()
	if h.TargetMud == d.mudName {
		d.routeLocal(reply)
		return
	}
	if err := d.conn.Send(reply); err != nil {
		d.log.Warn("sending reply", "kind", h.Kind, "to", h.TargetMud, "error", err)
	}
}

// --- channels ---

// applyChannelMsg handles channel-m/e/t regardless of whether it arrived
// via the broadcast branch (the common case) or was somehow addressed
// directly to this mud: confirm/auto-create the channel, append history,
// and fan out to local subscribers.
func (d *Dispatcher) applyChannelMsg(pkt *packet.ChannelMsgPacket) {
	entry := state.HistoryEntry{
		OriginMud:  pkt.OriginatorMud,
		OriginUser: pkt.OriginatorUser,
		Visname:    pkt.Visname,
		Body:       pkt.Message,
		Timestamp:  time.Now().UTC(),
		Kind:       state.HistoryMessage,
	}
	switch pkt.Kind {
	case packet.KindChannelE:
		entry.Kind = state.HistoryEmote
	case packet.KindChannelT:
		entry.Kind = state.HistoryTargetedEmote
	}
	d.store.HistoryAppend(pkt.Channel, entry)
	d.bridge.Process(pkt)
}

// handleChannelAdd applies a channel-add/channel-remove control message:
// it updates which muds are full members of the channel. No reply.
func (d *Dispatcher) handleChannelAdd(pkt *packet.ChannelAddPacket) {
	d.store.UpdateChannelMembership(pkt.Channel, pkt.OriginatorMud, pkt.Kind == packet.KindChannelAdd)
}

// --- who ---

func (d *Dispatcher) handleWhoReq(pkt *packet.WhoReqPacket) {
	users := d.store.SessionsOnline(d.mudName, whoFilter(pkt.Filter))
	rows := make([]packet.WhoUserEntry, 0, len(users))
	for _, u := range users {
		rows = append(rows, packet.WhoUserEntry{
			Name:        u.UserName,
			IdleSeconds: int32(time.Since(u.LastActivity).Seconds()),
			Level:       u.Level,
			Extra: map[string]string{
				"title": u.Title, "guild": u.Guild, "race": u.Race, "location": u.Location,
			},
		})
	}
	header, ok := packet.MakeReply(pkt)
	if !ok {
		return
	}
	d.sendReply(&packet.WhoReplyPacket{Header: header, WhoData: rows})
}

// whoFilter builds a SessionsOnline predicate from a who-req's optional
// level/race/guild filter fields.
func whoFilter(filter map[string]any) func(*state.UserSession) bool {
	if len(filter) == 0 {
		return nil
	}
	race, _ := filter["race"].(string)
	guild, _ := filter["guild"].(string)
	var minLevel int32
	switch v := filter["min_level"].(type) {
	case int32:
		minLevel = v
	case int:
		minLevel = int32(v)
	}
	return func(u *state.UserSession) bool {
		if race != "" && u.Race != race {
			return false
		}
		if guild != "" && u.Guild != guild {
			return false
		}
		if minLevel != 0 && u.Level < minLevel {
			return false
		}
		return true
	}
}

// handleWhoReply caches a who-reply we solicited, keyed by the answering
// mud, so a client's who call can poll it back out (see
// internal/rpc.Engine.handleWho).
func (d *Dispatcher) handleWhoReply(pkt *packet.WhoReplyPacket) {
	d.store.CachePut(state.CacheWho, pkt.OriginatorMud, pkt.WhoData)
}

// --- finger ---

func (d *Dispatcher) handleFingerReq(pkt *packet.FingerReqPacket) {
	selfKey := d.mudName + ":" + pkt.TargetUser
	if cached, ok := d.store.CacheGet(state.CacheFinger, selfKey); ok {
		if info, ok := cached.(map[string]any); ok {
			d.replyFinger(pkt, info)
			return
		}
	}

	us := d.store.SessionGet(d.mudName, pkt.TargetUser)
	if us == nil {
		reason := fmt.Sprintf("%s is not known on %s", pkt.TargetUser, d.mudName)
		d.replyError(pkt, packet.ErrCodeUnknownUser, reason)
		return
	}
	info := map[string]any{
		"real_name":  us.UserName,
		"extra_info": us.StatusMsg,
		"logged_in":  us.IsOnline,
		"last_login": us.LoginTime.UTC().Format(time.RFC3339),
		"ip_address": us.IPAddress,
		"level":      us.Level,
		"title":      us.Title,
		"guild":      us.Guild,
		"race":       us.Race,
		"location":   us.Location,
	}
	d.store.CachePut(state.CacheFinger, selfKey, info)
	d.replyFinger(pkt, info)
}

func (d *Dispatcher) replyFinger(req *packet.FingerReqPacket, info map[string]any) {
	header, ok := packet.MakeReply(req)
	if !ok {
		return
	}
	reply := &packet.FingerReplyPacket{
		Header:    header,
		RealName:  asStr(info["real_name"]),
		ExtraInfo: asStr(info["extra_info"]),
		LoggedIn:  asBool(info["logged_in"]),
		LastLogin: asStr(info["last_login"]),
		IPAddress: asStr(info["ip_address"]),
		Level:     asInt32(info["level"]),
		Extra: map[string]string{
			"title": asStr(info["title"]), "guild": asStr(info["guild"]),
			"race": asStr(info["race"]), "location": asStr(info["location"]),
		},
	}
	if d.hideIP {
		reply.IPAddress = ""
	}
	d.sendReply(reply)
}

// handleFingerReply caches an answer we solicited, keyed by (answering
// mud, queried user) so a client's finger call can poll it back out.
func (d *Dispatcher) handleFingerReply(pkt *packet.FingerReplyPacket) {
	key := pkt.Header.OriginatorMud + ":" + pkt.Header.OriginatorUser
	info := map[string]any{
		"real_name": pkt.RealName, "extra_info": pkt.ExtraInfo, "logged_in": pkt.LoggedIn,
		"last_login": pkt.LastLogin, "ip_address": pkt.IPAddress, "level": pkt.Level,
	}
	for k, v := range pkt.Extra {
		info[k] = v
	}
	d.store.CachePut(state.CacheFinger, key, info)
}

// --- locate ---

func (d *Dispatcher) handleLocateReq(pkt *packet.LocateReqPacket) {
	us := d.store.SessionGet(d.mudName, pkt.TargetUser)
	if us == nil || !us.IsOnline {
		return // no reply when not found locally, per §4.5
	}
	header, ok := packet.MakeReply(pkt)
	if !ok {
		return
	}
	reply := &packet.LocateReplyPacket{
		Header:  header,
		Located: true,
		Extra:   map[string]string{"location": us.Location},
	}
	d.sendReply(reply)
}

// handleLocateReply correlates an inbound locate-reply against every
// client session with a pending locate call for the same user (there may
// be several), and caches the result for any poll-style consumer.
func (d *Dispatcher) handleLocateReply(pkt *packet.LocateReplyPacket) {
	if !pkt.Located {
		return
	}
	targetUser := pkt.Header.OriginatorUser
	foundOn := pkt.Header.OriginatorMud
	d.store.CachePut(state.CacheLocate, targetUser, []string{foundOn})
	d.store.LocateCompleteAllForUser(targetUser, []string{foundOn})
}

// --- small coercion helpers for the cached finger info map ---

func asStr(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asInt32(v any) int32 {
	switch t := v.(type) {
	case int32:
		return t
	case int:
		return int32(t)
	default:
		return 0
	}
}
