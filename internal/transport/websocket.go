package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/LuminariMUD/Intermud3-sub000/internal/rpc"
	"github.com/LuminariMUD/Intermud3-sub000/internal/session"
)

// WebSocketHandler serves the client-facing JSON-RPC API over WebSocket
// text frames: one connection per client, auth via an X-API-Key header
// at upgrade time or an authenticate RPC as the first message, app-level
// pings on a configured interval with a pong-timeout disconnect.
//
// Grounded on rustyguts-bken/server/internal/ws/handler.go's Handler
// (Upgrade, a writer goroutine draining per-connection state, a read
// loop dispatching by message), adapted to a generic JSON-RPC frame via
// connHandler instead of that handler's game-specific protocol.Message.
type WebSocketHandler struct {
	log      *slog.Logger
	sessions *session.Manager
	engine   *rpc.Engine
	upgrader websocket.Upgrader

	pingInterval   time.Duration
	maxFrameBytes  int64
	maxConnections int64
	connCount      int64
}

// NewWebSocketHandler constructs a handler. pingInterval <= 0 defaults
// to 30s; maxFrameBytes <= 0 defaults to 64 KiB; maxConnections <= 0
// means unlimited.
func NewWebSocketHandler(log *slog.Logger, sessions *session.Manager, engine *rpc.Engine, pingInterval time.Duration, maxFrameBytes int64, maxConnections int) *WebSocketHandler {
	if log == nil {
		log = slog.Default()
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	if maxFrameBytes <= 0 {
		maxFrameBytes = 64 * 1024
	}
	return &WebSocketHandler{
		log:      log,
		sessions: sessions,
		engine:   engine,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		pingInterval:   pingInterval,
		maxFrameBytes:  maxFrameBytes,
		maxConnections: int64(maxConnections),
	}
}

// Register binds the websocket route on an Echo router.
func (h *WebSocketHandler) Register(e *echo.Echo) {
	e.GET("/ws", h.handle)
}

func (h *WebSocketHandler) handle(c echo.Context) error {
	remoteAddr := c.RealIP()
	if h.maxConnections > 0 && atomic.LoadInt64(&h.connCount) >= h.maxConnections {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "too many connections")
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Debug("ws upgrade failed", "remote", remoteAddr, "error", err)
		return fmt.Errorf("upgrade websocket: %w", err)
	}
	atomic.AddInt64(&h.connCount, 1)
	defer atomic.AddInt64(&h.connCount, -1)
	conn.SetReadLimit(h.maxFrameBytes)

	ch := &connHandler{log: h.log, sessions: h.sessions, engine: h.engine, remoteAddr: remoteAddr}
	if apiKey := c.Request().Header.Get("X-API-Key"); apiKey != "" {
		if err := ch.authenticateWith(apiKey); err != nil {
			h.log.Debug("ws header auth rejected", "remote", remoteAddr, "error", err)
			_ = conn.WriteJSON(rpc.NewError(rpc.ErrNotAuthenticated, err.Error()))
			return conn.Close()
		}
	}

	h.serveConn(conn, ch)
	return nil
}

func (h *WebSocketHandler) serveConn(conn *websocket.Conn, ch *connHandler) {
	defer conn.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var writeMu sync.Mutex
	tr := wsTransport{conn: conn, mu: &writeMu}

	ch.onAuthenticated = func(sess *session.Session) {
		sess.AttachTransport(tr)
		go drainQueue(ctx, sess, h.log)
	}
	if ch.sess != nil {
		ch.onAuthenticated(ch.sess)
	}
	defer func() {
		if ch.sess != nil {
			ch.sess.DetachTransport()
		}
	}()

	readDeadline := 2 * h.pingInterval
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})
	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))

	go h.pingLoop(ctx, conn, &writeMu)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("ws unexpected close", "remote", ch.remoteAddr, "error", err)
			}
			return
		}
		resp := ch.process(ctx, data)
		if resp == nil {
			continue
		}
		if err := tr.WriteMessage(resp); err != nil {
			h.log.Debug("ws write failed", "remote", ch.remoteAddr, "error", err)
			return
		}
	}
}

func (h *WebSocketHandler) pingLoop(ctx context.Context, conn *websocket.Conn, mu *sync.Mutex) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// wsTransport adapts a *websocket.Conn to internal/session.Transport,
// serializing writes against the ping loop's own writes to the same
// connection.
type wsTransport struct {
	conn *websocket.Conn
	mu   *sync.Mutex
}

func (t wsTransport) WriteMessage(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t wsTransport) Close() error { return t.conn.Close() }
