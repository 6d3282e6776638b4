package rpc

import (
	"context"
	"encoding/json"

	"github.com/LuminariMUD/Intermud3-sub000/internal/session"
)

// The closed set of method names this gateway exposes (§4.8).
const (
	MethodAuthenticate   = "authenticate"
	MethodTell           = "tell"
	MethodEmoteto        = "emoteto"
	MethodChannelSend    = "channel_send"
	MethodChannelEmote   = "channel_emote"
	MethodChannelJoin    = "channel_join"
	MethodChannelLeave   = "channel_leave"
	MethodChannelList    = "channel_list"
	MethodChannelWho     = "channel_who"
	MethodChannelHistory = "channel_history"
	MethodWho            = "who"
	MethodFinger         = "finger"
	MethodLocate         = "locate"
	MethodMudlist        = "mudlist"
	MethodPing           = "ping"
	MethodStatus         = "status"
	MethodStats          = "stats"
	MethodReconnect      = "reconnect"
	MethodHeartbeat      = "heartbeat"
)

// Handler implements one JSON-RPC method against an authenticated
// session. A nil *Error return means success; params is the raw,
// not-yet-decoded params value (object or array) for the handler to
// unmarshal into its own shape.
type Handler func(ctx context.Context, sess *session.Session, params json.RawMessage) (any, *Error)

// methodSpec pairs a handler with the permission required to call it.
// A zero Permission means "any authenticated session may call this".
type methodSpec struct {
	permission session.Permission
	handler    Handler
}

// registry is the closed method table. Built once in NewEngine; never
// mutated at runtime, matching the "method does not exist" contract of
// ErrMethodNotFound for anything outside this set.
func (e *Engine) registry() map[string]methodSpec {
	return map[string]methodSpec{
		MethodAuthenticate:   {handler: e.handleAuthenticate},
		MethodTell:           {permission: session.PermTell, handler: e.handleTell},
		MethodEmoteto:        {permission: session.PermTell, handler: e.handleEmoteto},
		MethodChannelSend:    {permission: session.PermChannel, handler: e.handleChannelSend},
		MethodChannelEmote:   {permission: session.PermChannel, handler: e.handleChannelEmote},
		MethodChannelJoin:    {permission: session.PermChannel, handler: e.handleChannelJoin},
		MethodChannelLeave:   {permission: session.PermChannel, handler: e.handleChannelLeave},
		MethodChannelList:    {permission: session.PermInfo, handler: e.handleChannelList},
		MethodChannelWho:     {permission: session.PermInfo, handler: e.handleChannelWho},
		MethodChannelHistory: {permission: session.PermInfo, handler: e.handleChannelHistory},
		MethodWho:            {permission: session.PermInfo, handler: e.handleWho},
		MethodFinger:         {permission: session.PermInfo, handler: e.handleFinger},
		MethodLocate:         {permission: session.PermInfo, handler: e.handleLocate},
		MethodMudlist:        {permission: session.PermInfo, handler: e.handleMudlist},
		MethodPing:           {handler: e.handlePing},
		MethodStatus:         {handler: e.handleStatus},
		MethodStats:          {permission: session.PermInfo, handler: e.handleStats},
		MethodReconnect:      {permission: session.PermAdmin, handler: e.handleReconnect},
		MethodHeartbeat:      {handler: e.handleHeartbeat},
	}
}
