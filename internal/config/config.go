// Package config holds the gateway's logical configuration surface,
// per spec.md §6: plain Go structs that every other component accepts
// as typed arguments. Nothing in this package touches flags, env vars,
// or a file format — that parsing lives in cmd/gatewayd/main.go,
// following rustyguts-bken/server/main.go's flag.String/flag.Int/
// flag.Duration style.
package config

import "time"

// MudIdentity describes this gateway's presence on the I3 network, sent
// as the startup-req-3 handshake payload.
type MudIdentity struct {
	Name       string
	Port       int32
	AdminEmail string
	Mudlib     string
	BaseMudlib string
	Driver     string
	MudType    string
	OpenStatus string
	Services   map[string]any
}

// RouterCandidate is one entry in the ordered router fallback list.
type RouterCandidate struct {
	Name     string
	Host     string
	Port     int
	Password int32
}

// Connection tunes the router connection's timeouts and reconnect
// backoff.
type Connection struct {
	TimeoutS            int
	KeepaliveIntervalS  int
	ReconnectDelayS     int
	MaxReconnectAttempts int // 0 means unlimited
}

// WebSocketAPI configures the WebSocket transport.
type WebSocketAPI struct {
	Enabled        bool
	Port           int
	PingIntervalS  int
	MaxFrameBytes  int64
}

// TCPAPI configures the newline-delimited TCP transport.
type TCPAPI struct {
	Enabled        bool
	Port           int
	MaxConnections int
}

// API groups both client-facing transports under a shared host.
type API struct {
	Host      string
	WebSocket WebSocketAPI
	TCP       TCPAPI
}

// Credential is one statically configured API key grant. APIKey is the
// plaintext key as distributed to the mud operator; it is hashed at
// registration time (session.Register) and never retained in the clear
// past that call.
type Credential struct {
	APIKey           string
	MudName          string
	Permissions      []string
	RateLimitOverride *RateLimit
}

// Auth configures authentication and the static credential table.
type Auth struct {
	Enabled     bool
	RequireTLS  bool
	Credentials []Credential
	TokenTTLS   int
}

// RateLimit mirrors session.RateLimitConfig's shape without importing
// that package, keeping config dependency-free of the components it
// configures.
type RateLimit struct {
	PerMinute int
	Burst     int
}

// RateLimits configures the session-default bucket plus per-method
// overrides applied in addition to it.
type RateLimits struct {
	Default  RateLimit
	ByMethod map[string]int
}

// Session configures session lifetime, per-session queue sizing, and
// the cleanup sweep interval.
type Session struct {
	TimeoutS        int
	MaxQueueSize    int
	QueueTTLS       int
	CleanupIntervalS int
}

// Channels configures history retention and message size limits.
type Channels struct {
	HistorySize    int
	MaxMessageBytes int
}

// State configures the shared state store's persistence and staleness
// sweep behavior. This package never names a state.Persister;
// cmd/gatewayd always wires state.NoopPersister and does not read the
// Persistence* fields.
type State struct {
	PersistenceEnabled  bool
	PersistencePath     string
	PersistenceIntervalS int
	StaleTimeoutS       int
}

// IPFilterConfig configures the connection-level allow/block list
// applied before authentication is attempted.
type IPFilterConfig struct {
	Enabled   bool
	Allowlist []string
	Blocklist []string
}

// Config is the gateway's full logical configuration, assembled by
// cmd/gatewayd/main.go from command-line flags and handed to every component's
// constructor as typed arguments.
type Config struct {
	MudIdentity MudIdentity
	Routers     []RouterCandidate
	Connection  Connection
	API         API
	Auth        Auth
	IPFilter    IPFilterConfig
	RateLimits  RateLimits
	Session     Session
	Channels    Channels
	State       State
	HideFingerIP bool
}

// Default returns a Config populated with the defaults named throughout
// spec.md §4-§6 (60s keepalive, 5s reconnect delay, 300s session
// timeout, 60s queue cleanup, and so on). Callers overlay flag
// values on top of this before wiring components.
func Default() Config {
	return Config{
		Connection: Connection{
			TimeoutS:           300,
			KeepaliveIntervalS: 60,
			ReconnectDelayS:    5,
		},
		API: API{
			Host: "0.0.0.0",
			WebSocket: WebSocketAPI{
				Enabled:       true,
				Port:          8080,
				PingIntervalS: 30,
				MaxFrameBytes: 64 * 1024,
			},
			TCP: TCPAPI{
				Enabled:        true,
				Port:           8081,
				MaxConnections: 1000,
			},
		},
		Auth: Auth{
			Enabled:   true,
			TokenTTLS: 0,
		},
		RateLimits: RateLimits{
			Default: RateLimit{PerMinute: 100, Burst: 20},
		},
		Session: Session{
			TimeoutS:         300,
			MaxQueueSize:     100,
			QueueTTLS:        300,
			CleanupIntervalS: 60,
		},
		Channels: Channels{
			HistorySize:     100,
			MaxMessageBytes: 4096,
		},
		State: State{
			StaleTimeoutS: 3600,
		},
	}
}

// Seconds is a small helper turning a config seconds field into a
// time.Duration, so call sites read "config.Seconds(cfg.Session.TimeoutS)"
// instead of repeating "* time.Second" at every wiring point.
func Seconds(n int) time.Duration { return time.Duration(n) * time.Second }
