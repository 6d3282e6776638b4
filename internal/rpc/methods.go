package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/LuminariMUD/Intermud3-sub000/internal/packet"
	"github.com/LuminariMUD/Intermud3-sub000/internal/session"
	"github.com/LuminariMUD/Intermud3-sub000/internal/state"
)

// Gateway is the minimal surface Engine needs from the router connection:
// send a packet onto the I3 network, report connectivity, and force a
// reconnect. internal/router.Connection satisfies this.
type Gateway interface {
	Send(p packet.Packet) error
	Connected() bool
	ForceReconnect()
}

// Engine wires the JSON-RPC method registry to the gateway's session
// manager, state store, and router connection, implementing the request
// lifecycle described in §4.8: parse → authenticate → rate-limit →
// permission-check → validate params → dispatch → format response.
//
// Grounded on original_source/src/api/api_handlers.py's APIHandlers,
// re-expressed as a struct of collaborators (session.Manager,
// state.Store, Gateway) rather than the source's loosely-typed
// gateway/state_manager attributes.
type Engine struct {
	log      *slog.Logger
	sessions *session.Manager
	store    *state.Store
	gateway  Gateway
	methods  map[string]methodSpec
}

// NewEngine constructs an Engine. gateway may be nil in tests that don't
// exercise packet-sending methods.
func NewEngine(log *slog.Logger, sessions *session.Manager, store *state.Store, gateway Gateway) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{log: log, sessions: sessions, store: store, gateway: gateway}
	e.methods = e.registry()
	return e
}

// Handle runs the full request lifecycle for one already-parsed request
// and returns the Response to write back, or nil for a notification.
func (e *Engine) Handle(ctx context.Context, sess *session.Session, req *Request) *Response {
	if sess == nil {
		return e.respond(req, nil, NewError(ErrNotAuthenticated, nil))
	}
	spec, ok := e.methods[req.Method]
	if !ok {
		return e.respond(req, nil, NewError(ErrMethodNotFound, req.Method))
	}
	if !sess.Allow(req.Method) {
		return e.respond(req, nil, NewError(ErrRateLimitExceeded, nil))
	}
	if spec.permission != "" && !sess.HasPermission(spec.permission) {
		return e.respond(req, nil, NewError(ErrPermissionDenied, string(spec.permission)))
	}
	sess.Touch()

	result, rpcErr := spec.handler(ctx, sess, req.Params)
	if rpcErr != nil {
		e.log.Debug("rpc method error", "method", req.Method, "session", sess.ID, "code", rpcErr.Code)
	}
	return e.respond(req, result, rpcErr)
}

func (e *Engine) respond(req *Request, result any, rpcErr *Error) *Response {
	if req.IsNotification() {
		return nil
	}
	if rpcErr != nil {
		return errorResponse(req.ID, rpcErr)
	}
	return successResponse(req.ID, result)
}

func decodeParams(raw json.RawMessage, v any) *Error {
	if len(raw) == 0 {
		return NewError(ErrInvalidParams, "missing params")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return NewError(ErrInvalidParams, err.Error())
	}
	return nil
}

func messageID(prefix, mud string) string {
	return fmt.Sprintf("%s_%s_%d", prefix, mud, time.Now().UnixNano())
}

// --- authentication ---

func (e *Engine) handleAuthenticate(_ context.Context, sess *session.Session, _ json.RawMessage) (any, *Error) {
	return map[string]any{"status": "authenticated", "mud_name": sess.MudName, "session_id": sess.ID}, nil
}

// --- communication ---

type tellParams struct {
	TargetMud  string `json:"target_mud"`
	TargetUser string `json:"target_user"`
	Message    string `json:"message"`
	FromUser   string `json:"from_user"`
}

func (e *Engine) handleTell(_ context.Context, sess *session.Session, raw json.RawMessage) (any, *Error) {
	var p tellParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.TargetMud == "" || p.TargetUser == "" || p.Message == "" {
		return nil, NewError(ErrInvalidParams, "target_mud, target_user and message are required")
	}
	fromUser := p.FromUser
	if fromUser == "" {
		fromUser = "Someone"
	}
	pkt := &packet.TellPacket{
		Header: packet.Header{
			Kind: packet.KindTell, TTL: packet.TTLCeiling,
			OriginatorMud: sess.MudName, OriginatorUser: fromUser,
			TargetMud: p.TargetMud, TargetUser: p.TargetUser,
		},
		Visname: fromUser,
		Message: p.Message,
	}
	if err := e.send(pkt); err != nil {
		return nil, err
	}
	return map[string]any{"status": "sent", "message_id": messageID("tell", sess.MudName)}, nil
}

type emotetoParams struct {
	TargetMud  string `json:"target_mud"`
	TargetUser string `json:"target_user"`
	Emote      string `json:"emote"`
	FromUser   string `json:"from_user"`
}

func (e *Engine) handleEmoteto(_ context.Context, sess *session.Session, raw json.RawMessage) (any, *Error) {
	var p emotetoParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.TargetMud == "" || p.TargetUser == "" || p.Emote == "" {
		return nil, NewError(ErrInvalidParams, "target_mud, target_user and emote are required")
	}
	fromUser := p.FromUser
	if fromUser == "" {
		fromUser = "Someone"
	}
	pkt := &packet.TellPacket{
		Header: packet.Header{
			Kind: packet.KindEmoteTo, TTL: packet.TTLCeiling,
			OriginatorMud: sess.MudName, OriginatorUser: fromUser,
			TargetMud: p.TargetMud, TargetUser: p.TargetUser,
		},
		Visname: fromUser,
		Message: p.Emote,
	}
	if err := e.send(pkt); err != nil {
		return nil, err
	}
	return map[string]any{"status": "sent", "message_id": messageID("emoteto", sess.MudName)}, nil
}

// --- channels ---

type channelSendParams struct {
	Channel  string `json:"channel"`
	Message  string `json:"message"`
	FromUser string `json:"from_user"`
	Visname  string `json:"visname"`
}

func (e *Engine) handleChannelSend(_ context.Context, sess *session.Session, raw json.RawMessage) (any, *Error) {
	var p channelSendParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Channel == "" || p.Message == "" {
		return nil, NewError(ErrInvalidParams, "channel and message are required")
	}
	fromUser := p.FromUser
	if fromUser == "" {
		fromUser = "Someone"
	}
	visname := p.Visname
	if visname == "" {
		visname = fromUser
	}
	pkt := &packet.ChannelMsgPacket{
		Header: packet.Header{
			Kind: packet.KindChannelM, TTL: packet.TTLCeiling,
			OriginatorMud: sess.MudName, OriginatorUser: fromUser,
			TargetMud: "*", TargetUser: "*",
		},
		Channel: p.Channel, Visname: visname, Message: p.Message,
	}
	if err := e.send(pkt); err != nil {
		return nil, err
	}
	return map[string]any{"status": "sent", "message_id": messageID("channel", p.Channel)}, nil
}

func (e *Engine) handleChannelEmote(_ context.Context, sess *session.Session, raw json.RawMessage) (any, *Error) {
	var p channelSendParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Channel == "" || p.Message == "" {
		return nil, NewError(ErrInvalidParams, "channel and emote are required")
	}
	fromUser := p.FromUser
	if fromUser == "" {
		fromUser = "Someone"
	}
	visname := p.Visname
	if visname == "" {
		visname = fromUser
	}
	pkt := &packet.ChannelMsgPacket{
		Header: packet.Header{
			Kind: packet.KindChannelE, TTL: packet.TTLCeiling,
			OriginatorMud: sess.MudName, OriginatorUser: fromUser,
			TargetMud: "*", TargetUser: "*",
		},
		Channel: p.Channel, Visname: visname, Message: p.Message,
	}
	if err := e.send(pkt); err != nil {
		return nil, err
	}
	return map[string]any{"status": "sent", "message_id": messageID("channel_emote", p.Channel)}, nil
}

type channelJoinParams struct {
	Channel    string `json:"channel"`
	ListenOnly bool   `json:"listen_only"`
	UserName   string `json:"user_name"`
}

func (e *Engine) handleChannelJoin(_ context.Context, sess *session.Session, raw json.RawMessage) (any, *Error) {
	var p channelJoinParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Channel == "" {
		return nil, NewError(ErrInvalidParams, "channel is required")
	}
	sess.Subscribe(p.Channel)
	if !p.ListenOnly {
		originator := p.UserName
		if originator == "" {
			originator = "*"
		}
		pkt := &packet.ChannelListenPacket{
			Header: packet.Header{
				Kind: packet.KindChannelListen, TTL: packet.TTLCeiling,
				OriginatorMud: sess.MudName, OriginatorUser: originator,
				TargetMud: "*", TargetUser: "*",
			},
			Channel: p.Channel, Listen: true,
		}
		if err := e.send(pkt); err != nil {
			return nil, err
		}
	}
	return map[string]any{"status": "joined", "channel": p.Channel}, nil
}

type channelLeaveParams struct {
	Channel  string `json:"channel"`
	UserName string `json:"user_name"`
}

func (e *Engine) handleChannelLeave(_ context.Context, sess *session.Session, raw json.RawMessage) (any, *Error) {
	var p channelLeaveParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Channel == "" {
		return nil, NewError(ErrInvalidParams, "channel is required")
	}
	sess.Unsubscribe(p.Channel)
	originator := p.UserName
	if originator == "" {
		originator = "*"
	}
	pkt := &packet.ChannelListenPacket{
		Header: packet.Header{
			Kind: packet.KindChannelListen, TTL: packet.TTLCeiling,
			OriginatorMud: sess.MudName, OriginatorUser: originator,
			TargetMud: "*", TargetUser: "*",
		},
		Channel: p.Channel, Listen: false,
	}
	if err := e.send(pkt); err != nil {
		return nil, err
	}
	return map[string]any{"status": "left", "channel": p.Channel}, nil
}

type channelListParams struct {
	Filter struct {
		Type        string `json:"type"`
		Owner       string `json:"owner"`
		MinMembers  int    `json:"min_members"`
	} `json:"filter"`
}

func (e *Engine) handleChannelList(_ context.Context, sess *session.Session, raw json.RawMessage) (any, *Error) {
	var p channelListParams
	if len(raw) > 0 {
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
	}
	channels := e.store.ListChannels(func(c *state.Channel) bool {
		if p.Filter.Owner != "" && c.OwnerMud != p.Filter.Owner {
			return false
		}
		if p.Filter.Type != "" && string(c.Type) != p.Filter.Type {
			return false
		}
		if p.Filter.MinMembers > 0 && len(c.MemberMuds) < p.Filter.MinMembers {
			return false
		}
		return true
	})
	return map[string]any{
		"status":              "success",
		"channels":            channels,
		"count":               len(channels),
		"subscribed_channels": sess.Subscriptions(),
	}, nil
}

type channelWhoParams struct {
	Channel string `json:"channel"`
}

func (e *Engine) handleChannelWho(_ context.Context, sess *session.Session, raw json.RawMessage) (any, *Error) {
	var p channelWhoParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Channel == "" {
		return nil, NewError(ErrInvalidParams, "channel is required")
	}
	pkt := &packet.ChannelWhoPacket{
		Header: packet.Header{
			Kind: packet.KindChannelWho, TTL: packet.TTLCeiling,
			OriginatorMud: sess.MudName, OriginatorUser: "*",
			TargetMud: "*", TargetUser: "*",
		},
		Channel: p.Channel,
	}
	if err := e.send(pkt); err != nil {
		return nil, err
	}
	ch := e.store.GetChannel(p.Channel)
	var members []string
	if ch != nil {
		for m := range ch.MemberMuds {
			members = append(members, m)
		}
	}
	return map[string]any{"status": "success", "channel": p.Channel, "members": members}, nil
}

type channelHistoryParams struct {
	Channel string `json:"channel"`
	Limit   int    `json:"limit"`
	Before  string `json:"before"`
	After   string `json:"after"`
}

func (e *Engine) handleChannelHistory(_ context.Context, _ *session.Session, raw json.RawMessage) (any, *Error) {
	var p channelHistoryParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Channel == "" {
		return nil, NewError(ErrInvalidParams, "channel is required")
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	var before, after time.Time
	if p.Before != "" {
		before, _ = time.Parse(time.RFC3339Nano, p.Before)
	}
	if p.After != "" {
		after, _ = time.Parse(time.RFC3339Nano, p.After)
	}
	entries := e.store.HistoryRead(p.Channel, limit, before, after)
	return map[string]any{"status": "success", "messages": entries, "count": len(entries)}, nil
}

// --- information queries ---

type whoParams struct {
	TargetMud string         `json:"target_mud"`
	Filters   map[string]any `json:"filters"`
}

func (e *Engine) handleWho(_ context.Context, sess *session.Session, raw json.RawMessage) (any, *Error) {
	var p whoParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.TargetMud == "" {
		return nil, NewError(ErrInvalidParams, "target_mud is required")
	}
	pkt := &packet.WhoReqPacket{
		Header: packet.Header{
			Kind: packet.KindWhoReq, TTL: packet.TTLCeiling,
			OriginatorMud: sess.MudName, OriginatorUser: "*",
			TargetMud: p.TargetMud, TargetUser: "*",
		},
		Filter: p.Filters,
	}
	if err := e.send(pkt); err != nil {
		return nil, err
	}
	cached, _ := e.store.CacheGet(state.CacheWho, p.TargetMud)
	users, _ := cached.([]packet.WhoUserEntry)
	return map[string]any{"status": "success", "mud_name": p.TargetMud, "users": users, "count": len(users)}, nil
}

type fingerParams struct {
	TargetMud  string `json:"target_mud"`
	TargetUser string `json:"target_user"`
}

func (e *Engine) handleFinger(_ context.Context, sess *session.Session, raw json.RawMessage) (any, *Error) {
	var p fingerParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.TargetMud == "" || p.TargetUser == "" {
		return nil, NewError(ErrInvalidParams, "target_mud and target_user are required")
	}
	pkt := &packet.FingerReqPacket{
		Header: packet.Header{
			Kind: packet.KindFingerReq, TTL: packet.TTLCeiling,
			OriginatorMud: sess.MudName, OriginatorUser: "*",
			TargetMud: p.TargetMud, TargetUser: p.TargetUser,
		},
	}
	if err := e.send(pkt); err != nil {
		return nil, err
	}
	cacheKey := p.TargetMud + ":" + p.TargetUser
	info, _ := e.store.CacheGet(state.CacheFinger, cacheKey)
	if info == nil {
		info = map[string]any{}
	}
	return map[string]any{"status": "success", "user_info": info}, nil
}

type locateParams struct {
	TargetUser string `json:"target_user"`
}

// locateTimeout bounds how long a locate call waits for a reply to
// correlate against the pending-request table before answering not-found.
const locateTimeout = 5 * time.Second

func (e *Engine) handleLocate(ctx context.Context, sess *session.Session, raw json.RawMessage) (any, *Error) {
	var p locateParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.TargetUser == "" {
		return nil, NewError(ErrInvalidParams, "target_user is required")
	}

	key := state.LocateKey(sess.ID, p.TargetUser)
	handle := e.store.LocateRegister(key, time.Now().Add(locateTimeout))

	pkt := &packet.LocateReqPacket{
		Header: packet.Header{
			Kind: packet.KindLocateReq, TTL: packet.TTLCeiling,
			OriginatorMud: sess.MudName, OriginatorUser: "*",
			TargetMud: "*", TargetUser: p.TargetUser,
		},
	}
	if err := e.send(pkt); err != nil {
		return nil, err
	}

	result, werr := e.store.LocateWait(ctx, handle, locateTimeout)
	if werr != nil {
		return map[string]any{
			"status": "success", "user_name": p.TargetUser,
			"locations": []string{}, "found": false, "count": 0,
		}, nil
	}
	locations, _ := result.([]string)
	return map[string]any{
		"status": "success", "user_name": p.TargetUser,
		"locations": locations, "found": len(locations) > 0, "count": len(locations),
	}, nil
}

type mudlistParams struct {
	Filter struct {
		Status     string `json:"status"`
		Driver     string `json:"driver"`
		HasService string `json:"has_service"`
	} `json:"filter"`
}

func (e *Engine) handleMudlist(_ context.Context, _ *session.Session, raw json.RawMessage) (any, *Error) {
	var p mudlistParams
	if len(raw) > 0 {
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
	}
	muds := e.store.ListMuds(func(m *state.Mud) bool {
		if p.Filter.Status != "" && string(m.Status) != p.Filter.Status {
			return false
		}
		if p.Filter.Driver != "" && m.Driver != p.Filter.Driver {
			return false
		}
		if p.Filter.HasService != "" {
			if _, ok := m.Services[p.Filter.HasService]; !ok {
				return false
			}
		}
		return true
	})
	return map[string]any{"status": "success", "muds": muds, "count": len(muds)}, nil
}

// --- administrative ---

func (e *Engine) handlePing(_ context.Context, _ *session.Session, _ json.RawMessage) (any, *Error) {
	return map[string]any{"pong": true, "timestamp": time.Now().UTC().Format(time.RFC3339Nano)}, nil
}

func (e *Engine) handleStatus(_ context.Context, sess *session.Session, _ json.RawMessage) (any, *Error) {
	connected := e.gateway != nil && e.gateway.Connected()
	return map[string]any{
		"connected":  connected,
		"mud_name":   sess.MudName,
		"session_id": sess.ID,
		"uptime":     time.Since(sess.ConnectedAt).Seconds(),
	}, nil
}

func (e *Engine) handleStats(_ context.Context, _ *session.Session, _ json.RawMessage) (any, *Error) {
	stats := map[string]any{
		"sessions": e.sessions.Count(),
	}
	if e.gateway != nil {
		stats["gateway_connected"] = e.gateway.Connected()
	}
	return stats, nil
}

func (e *Engine) handleReconnect(_ context.Context, _ *session.Session, _ json.RawMessage) (any, *Error) {
	if e.gateway == nil {
		return map[string]any{"status": "no_gateway"}, nil
	}
	e.gateway.ForceReconnect()
	return map[string]any{"status": "reconnecting"}, nil
}

func (e *Engine) handleHeartbeat(_ context.Context, _ *session.Session, _ json.RawMessage) (any, *Error) {
	return map[string]any{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339Nano)}, nil
}

func (e *Engine) send(p packet.Packet) *Error {
	if e.gateway == nil {
		return NewError(ErrGatewayError, "gateway not connected")
	}
	if err := e.gateway.Send(p); err != nil {
		return NewError(ErrGatewayError, err.Error())
	}
	return nil
}
