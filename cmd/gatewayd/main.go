// Command gatewayd runs the Intermud3 gateway: it maintains the router
// connection, serves the client-facing JSON-RPC API over WebSocket and
// TCP, and bridges events between the two.
//
// Grounded on rustyguts-bken/server/main.go's wiring shape: flag.*
// parses operator-facing settings into typed values, components are
// constructed and wired in dependency order, background tickers are
// started against a cancelable context, and a final blocking call
// runs until a signal triggers graceful shutdown.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/LuminariMUD/Intermud3-sub000/internal/config"
	"github.com/LuminariMUD/Intermud3-sub000/internal/dispatch"
	"github.com/LuminariMUD/Intermud3-sub000/internal/events"
	"github.com/LuminariMUD/Intermud3-sub000/internal/queue"
	"github.com/LuminariMUD/Intermud3-sub000/internal/router"
	"github.com/LuminariMUD/Intermud3-sub000/internal/rpc"
	"github.com/LuminariMUD/Intermud3-sub000/internal/session"
	"github.com/LuminariMUD/Intermud3-sub000/internal/state"
	"github.com/LuminariMUD/Intermud3-sub000/internal/transport"
)

func main() {
	mudName := flag.String("mud-name", "", "this gateway's mud name on the I3 network (required)")
	mudPort := flag.Int("mud-port", 4000, "this mud's player port, advertised in the router handshake")
	adminEmail := flag.String("admin-email", "", "admin contact advertised in the router handshake")
	routerAddr := flag.String("router-addr", "", "primary router host:port (required)")
	routerPassword := flag.Int("router-password", 0, "router handshake password, 0 if none")
	wsHost := flag.String("api-host", "0.0.0.0", "bind address for both client-facing transports")
	wsPort := flag.Int("ws-port", 8080, "WebSocket API port (0 to disable)")
	tcpPort := flag.Int("tcp-port", 8081, "newline-delimited TCP API port (0 to disable)")
	maxWSConnections := flag.Int("ws-max-connections", 1000, "maximum concurrent WebSocket connections")
	maxTCPConnections := flag.Int("tcp-max-connections", 1000, "maximum concurrent TCP connections")
	pingInterval := flag.Duration("ws-ping-interval", 30*time.Second, "WebSocket application ping interval")
	tcpIdleTimeout := flag.Duration("tcp-idle-timeout", time.Hour, "TCP per-connection idle timeout")
	sessionTimeout := flag.Duration("session-timeout", 5*time.Minute, "idle timeout for a session with no attached transport")
	cleanupInterval := flag.Duration("cleanup-interval", 60*time.Second, "sweep interval for session/queue/cache cleanup")
	staleTimeout := flag.Duration("stale-timeout", time.Hour, "how long a disconnected session's queue is kept before reaping")
	maxQueueSize := flag.Int("max-queue-size", 100, "per-session bounded queue capacity")
	hideFingerIP := flag.Bool("hide-finger-ip", false, "elide ip_address from outgoing finger replies")
	apiKeysRaw := flag.String("api-keys", "", "comma-separated key:mud_name:permissions entries, permissions pipe-separated, e.g. abc123:MyMud:tell|channel|info")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *mudName == "" || *routerAddr == "" {
		log.Error("mud-name and router-addr are required")
		os.Exit(1)
	}
	routerHost, routerPortStr, err := net.SplitHostPort(*routerAddr)
	if err != nil {
		log.Error("invalid router-addr", "error", err)
		os.Exit(1)
	}
	var routerPort int
	if _, err := fmt.Sscanf(routerPortStr, "%d", &routerPort); err != nil {
		log.Error("invalid router-addr port", "error", err)
		os.Exit(1)
	}

	cfg := config.Default()
	cfg.MudIdentity = config.MudIdentity{Name: *mudName, Port: int32(*mudPort), AdminEmail: *adminEmail}
	cfg.Routers = []config.RouterCandidate{{Name: "primary", Host: routerHost, Port: routerPort, Password: int32(*routerPassword)}}
	cfg.API.Host = *wsHost
	cfg.API.WebSocket.Enabled = *wsPort != 0
	cfg.API.WebSocket.Port = *wsPort
	cfg.API.WebSocket.PingIntervalS = int(pingInterval.Seconds())
	cfg.API.TCP.Enabled = *tcpPort != 0
	cfg.API.TCP.Port = *tcpPort
	cfg.API.TCP.MaxConnections = *maxTCPConnections
	cfg.Session.TimeoutS = int(sessionTimeout.Seconds())
	cfg.Session.CleanupIntervalS = int(cleanupInterval.Seconds())
	cfg.Session.MaxQueueSize = *maxQueueSize
	cfg.State.StaleTimeoutS = int(staleTimeout.Seconds())
	cfg.HideFingerIP = *hideFingerIP

	store := state.New(log, state.NoopPersister{})

	identity := router.Identity{
		MudName:    cfg.MudIdentity.Name,
		MudPort:    cfg.MudIdentity.Port,
		AdminEmail: cfg.MudIdentity.AdminEmail,
		Mudlib:     cfg.MudIdentity.Mudlib,
		BaseMudlib: cfg.MudIdentity.BaseMudlib,
		Driver:     cfg.MudIdentity.Driver,
		MudType:    cfg.MudIdentity.MudType,
		OpenStatus: cfg.MudIdentity.OpenStatus,
		Services:   cfg.MudIdentity.Services,
	}
	candidates := make([]router.Candidate, len(cfg.Routers))
	var password int32
	for i, r := range cfg.Routers {
		candidates[i] = router.Candidate{Name: r.Name, Host: r.Host, Port: r.Port}
		if r.Password != 0 {
			password = r.Password
		}
	}
	identity.Password = password
	conn := router.New(log, identity, candidates, router.Options{
		KeepaliveInterval: config.Seconds(cfg.Connection.KeepaliveIntervalS),
		ConnectionTimeout: config.Seconds(cfg.Connection.TimeoutS),
	})

	reg := session.NewRegistry()
	for _, cred := range parseAPIKeys(*apiKeysRaw) {
		perms := session.PermissionSet{}
		for _, p := range cred.Permissions {
			perms[session.Permission(p)] = struct{}{}
		}
		if err := session.Register(reg, cred.APIKey, cred.MudName, perms, nil); err != nil {
			log.Error("registering credential", "mud_name", cred.MudName, "error", err)
		}
	}
	ipFilter := session.ParseIPFilter(cfg.IPFilter.Enabled, cfg.IPFilter.Allowlist, cfg.IPFilter.Blocklist)
	queues := queue.NewManager(log, cfg.Session.MaxQueueSize, config.Seconds(cfg.Session.CleanupIntervalS))
	methodOverrides := map[string]session.RateLimitConfig{}
	for method, perMinute := range cfg.RateLimits.ByMethod {
		methodOverrides[method] = session.RateLimitConfig{PerMinute: perMinute, Burst: cfg.RateLimits.Default.Burst}
	}
	manager := session.NewManager(log, reg, ipFilter, queues, methodOverrides, config.Seconds(cfg.Session.TimeoutS))

	bridge := events.NewBridge(log, manager)
	dispatcher := dispatch.New(log, cfg.MudIdentity.Name, store, conn, manager, bridge, cfg.HideFingerIP)
	engine := rpc.NewEngine(log, manager, store, dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Info("shutting down")
		cancel()
	}()

	stopCh := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(stopCh)
	}()

	go func() {
		if err := conn.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("router connection stopped", "error", err)
		}
	}()
	go dispatcher.Run(ctx)
	go manager.Run(stopCh, config.Seconds(cfg.Session.CleanupIntervalS))
	go queues.Run(stopCh, config.Seconds(cfg.State.StaleTimeoutS))
	go store.SweepCaches(stopCh, config.Seconds(cfg.Session.CleanupIntervalS))

	var httpSrv *http.Server
	if cfg.API.WebSocket.Enabled {
		wsHandler := transport.NewWebSocketHandler(log, manager, engine, *pingInterval, int64(cfg.API.WebSocket.MaxFrameBytes), *maxWSConnections)
		e := echo.New()
		e.HideBanner = true
		wsHandler.Register(e)
		httpSrv = &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.WebSocket.Port),
			Handler:           e,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Info("websocket api listening", "addr", httpSrv.Addr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("websocket server stopped", "error", err)
			}
		}()
	}

	if cfg.API.TCP.Enabled {
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.TCP.Port)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			log.Error("tcp listen failed", "addr", addr, "error", err)
			os.Exit(1)
		}
		tcpHandler := transport.NewTCPHandler(log, manager, engine, *tcpIdleTimeout, cfg.API.TCP.MaxConnections)
		go func() {
			log.Info("tcp api listening", "addr", addr)
			if err := tcpHandler.Serve(ctx, ln); err != nil {
				log.Error("tcp server stopped", "error", err)
			}
		}()
	}

	<-ctx.Done()

	if httpSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error("websocket server shutdown", "error", err)
		}
	}
}

// parseAPIKeys turns "key:mud:perm1|perm2,key2:mud2:perm1" into
// config.Credential entries. A malformed entry is skipped silently
// rather than aborting startup.
func parseAPIKeys(raw string) []config.Credential {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var creds []config.Credential
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
			continue
		}
		creds = append(creds, config.Credential{
			APIKey:      parts[0],
			MudName:     parts[1],
			Permissions: strings.Split(parts[2], "|"),
		})
	}
	return creds
}
