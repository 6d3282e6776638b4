package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LuminariMUD/Intermud3-sub000/internal/rpc"
	"github.com/LuminariMUD/Intermud3-sub000/internal/session"
)

// TCPHandler serves the client-facing JSON-RPC API over newline-
// delimited UTF-8 JSON: one connection per client, a welcome
// notification on accept, and a generous per-connection idle timeout,
// per spec.md §4.9/§6.
//
// Grounded the same way as WebSocketHandler — rustyguts-bken's
// accept-loop/serveConn pattern — generalized from that handler's
// WebSocket-only framing to raw TCP with '\n' as the frame delimiter.
type TCPHandler struct {
	log            *slog.Logger
	sessions       *session.Manager
	engine         *rpc.Engine
	idleTimeout    time.Duration
	maxConnections int64
	connCount      int64
}

// NewTCPHandler constructs a handler. idleTimeout <= 0 defaults to 1
// hour; maxConnections <= 0 means unlimited.
func NewTCPHandler(log *slog.Logger, sessions *session.Manager, engine *rpc.Engine, idleTimeout time.Duration, maxConnections int) *TCPHandler {
	if log == nil {
		log = slog.Default()
	}
	if idleTimeout <= 0 {
		idleTimeout = time.Hour
	}
	return &TCPHandler{
		log:            log,
		sessions:       sessions,
		engine:         engine,
		idleTimeout:    idleTimeout,
		maxConnections: int64(maxConnections),
	}
}

// Serve accepts connections on ln until ctx is canceled. It blocks;
// callers run it in its own goroutine.
func (h *TCPHandler) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}
		if h.maxConnections > 0 && atomic.LoadInt64(&h.connCount) >= h.maxConnections {
			_ = conn.Close()
			continue
		}
		atomic.AddInt64(&h.connCount, 1)
		go func() {
			defer atomic.AddInt64(&h.connCount, -1)
			h.serveConn(ctx, conn)
		}()
	}
}

func (h *TCPHandler) serveConn(parent context.Context, conn net.Conn) {
	defer conn.Close()
	remoteAddr := conn.RemoteAddr().String()
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var writeMu sync.Mutex
	tr := tcpTransport{conn: conn, mu: &writeMu}

	ch := &connHandler{log: h.log, sessions: h.sessions, engine: h.engine, remoteAddr: remoteAddr}
	ch.onAuthenticated = func(sess *session.Session) {
		sess.AttachTransport(tr)
		go drainQueue(ctx, sess, h.log)
	}
	defer func() {
		if ch.sess != nil {
			ch.sess.DetachTransport()
		}
	}()

	welcome, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  "welcome",
		"params": map[string]any{
			"protocol_version": protocolVersion,
			"auth_required":    true,
		},
	})
	if err := tr.WriteMessage(welcome); err != nil {
		return
	}

	reader := bufio.NewReader(conn)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(h.idleTimeout))
		line, err := reader.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			if resp := ch.process(ctx, trimmed); resp != nil {
				if werr := tr.WriteMessage(resp); werr != nil {
					h.log.Debug("tcp write failed", "remote", remoteAddr, "error", werr)
					return
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				h.log.Debug("tcp read error", "remote", remoteAddr, "error", err)
			}
			return
		}
	}
}

// tcpTransport adapts a net.Conn to internal/session.Transport, framing
// each write with a trailing newline.
type tcpTransport struct {
	conn net.Conn
	mu   *sync.Mutex
}

func (t tcpTransport) WriteMessage(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err := t.conn.Write(append(data, '\n'))
	return err
}

func (t tcpTransport) Close() error { return t.conn.Close() }
