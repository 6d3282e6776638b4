// Package transport implements the two client-facing transports
// described in spec.md §4.9/§6: WebSocket text frames and
// newline-delimited TCP. Both funnel into the identical session/
// rate-limit/queue/event-delivery semantics — everything transport
// specific (framing, pings, idle timeouts) lives here; everything else
// is shared through connHandler and internal/rpc.Engine.
//
// Grounded on rustyguts-bken/server/internal/ws/handler.go's
// Handler/serveConn shape, generalized from that handler's
// domain-specific protocol.Message switch to a generic JSON-RPC 2.0
// frame handed to internal/rpc.Engine, and from a single transport to
// the WebSocket/TCP pair §4.9 requires.
package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/LuminariMUD/Intermud3-sub000/internal/rpc"
	"github.com/LuminariMUD/Intermud3-sub000/internal/session"
)

const writeTimeout = 5 * time.Second

// protocolVersion is advertised in the TCP transport's welcome
// notification (§6: "describing protocol version").
const protocolVersion = "i3-gateway-1"

// connHandler runs the shared request lifecycle for one connection,
// independent of whether it arrived over WebSocket or TCP: parse the
// frame (single or batch), bootstrap a session on the first successful
// authenticate call, and otherwise hand every request to the engine.
type connHandler struct {
	log        *slog.Logger
	sessions   *session.Manager
	engine     *rpc.Engine
	remoteAddr string

	sess *session.Session

	// onAuthenticated fires once, the moment sess transitions from nil
	// to non-nil, so the owning transport can attach its Transport and
	// start that session's queue drain loop.
	onAuthenticated func(*session.Session)
}

func (c *connHandler) authenticateWith(apiKey string) error {
	sess, err := c.sessions.Authenticate(c.remoteAddr, apiKey)
	if err != nil {
		return err
	}
	c.sess = sess
	if c.onAuthenticated != nil {
		c.onAuthenticated(sess)
	}
	return nil
}

// process runs one inbound frame (a single request or a batch) through
// the full lifecycle and returns the bytes to write back, or nil when
// nothing needs writing (an all-notification batch).
func (c *connHandler) process(ctx context.Context, raw []byte) []byte {
	items, isBatch, perr := rpc.ParseMessage(raw)
	if perr != nil {
		return mustEncode(&rpc.Response{Version: "2.0", Error: perr})
	}
	responses := make([]*rpc.Response, 0, len(items))
	for _, item := range items {
		if resp := c.handleOne(ctx, item); resp != nil {
			responses = append(responses, resp)
		}
	}
	if len(responses) == 0 {
		return nil
	}
	if !isBatch {
		return mustEncode(responses[0])
	}
	return mustEncode(responses)
}

type authenticateParams struct {
	APIKey string `json:"api_key"`
}

func (c *connHandler) handleOne(ctx context.Context, raw json.RawMessage) *rpc.Response {
	req, perr := rpc.ParseRequest(raw)
	if perr != nil {
		return &rpc.Response{Version: "2.0", Error: perr}
	}
	if c.sess == nil && req.Method == rpc.MethodAuthenticate {
		var params authenticateParams
		if err := json.Unmarshal(req.Params, &params); err != nil || params.APIKey == "" {
			return respond(req, nil, rpc.NewError(rpc.ErrInvalidParams, "api_key is required"))
		}
		if err := c.authenticateWith(params.APIKey); err != nil {
			return respond(req, nil, rpc.NewError(rpc.ErrNotAuthenticated, err.Error()))
		}
	}
	return c.engine.Handle(ctx, c.sess, req)
}

func respond(req *rpc.Request, result any, rpcErr *rpc.Error) *rpc.Response {
	if req.IsNotification() {
		return nil
	}
	if rpcErr != nil {
		return &rpc.Response{Version: "2.0", ID: req.ID, Error: rpcErr}
	}
	return &rpc.Response{Version: "2.0", ID: req.ID, Result: result}
}

func mustEncode(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"Internal error"}}`)
	}
	return data
}
