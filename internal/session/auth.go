// Package session implements client session lifecycle, authentication,
// permissions, rate limiting, and transport binding described in
// spec.md §4.6.
//
// Grounded on original_source/src/api/auth.py (APIKey records, IP
// allow/blocklist ordering — blocklist wins, then allowlist if
// configured) and src/api/session.py (Session/RateLimiter shape), with
// the Go expression following rustyguts-bken/server/internal/core's
// Session/userState split: a struct that owns a send channel and can be
// detached from its transport without losing queued state.
package session

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
)

// Permission is one of the closed set of capability strings a Credential
// may hold (§4.6).
type Permission string

const (
	PermTell    Permission = "tell"
	PermChannel Permission = "channel"
	PermInfo    Permission = "info"
	PermAdmin   Permission = "admin"
	PermAll     Permission = "*"
)

// PermissionSet is a small set of Permission values.
type PermissionSet map[Permission]struct{}

// Has reports whether the set grants perm, honoring the wildcard.
func (s PermissionSet) Has(perm Permission) bool {
	if _, ok := s[PermAll]; ok {
		return true
	}
	_, ok := s[perm]
	return ok
}

// Credential is the registry's record for one opaque API key: the
// identity and grants it maps to. The key itself is never stored in
// plaintext — only its salted hash (see HashCredential).
type Credential struct {
	MudName          string
	Permissions      PermissionSet
	RateLimitOverride *RateLimitConfig
	hash             []byte
	salt             []byte
}

// ErrCredentialRejected is returned by Registry.Authenticate when no
// credential matches, per §4.6 ("on failure an error response is sent").
var ErrCredentialRejected = errors.New("session: credential rejected")

// HashCredential salts and hashes a plaintext API key for storage.
// Comparison later uses constant time (see verify).
func HashCredential(plaintext string) (hash, salt []byte, err error) {
	salt = make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, fmt.Errorf("session: generating salt: %w", err)
	}
	return saltedHash(plaintext, salt), salt, nil
}

func saltedHash(plaintext string, salt []byte) []byte {
	mac := hmac.New(sha256.New, salt)
	mac.Write([]byte(plaintext))
	return mac.Sum(nil)
}

func verify(plaintext string, c *Credential) bool {
	computed := saltedHash(plaintext, c.salt)
	return subtle.ConstantTimeCompare(computed, c.hash) == 1
}

// Registry holds every known credential, keyed by an opaque lookup token
// (the hex-encoded salted hash — credentials are never looked up by
// plaintext).
type Registry struct {
	byHashHex map[string]*Credential
}

// NewRegistry constructs an empty credential registry.
func NewRegistry() *Registry {
	return &Registry{byHashHex: make(map[string]*Credential)}
}

// Register adds a credential for plaintext to reg.
// Intended for bootstrap/config loading, not runtime request handling.
func Register(reg *Registry, plaintext, mudName string, perms PermissionSet, rateOverride *RateLimitConfig) error {
	hash, salt, err := HashCredential(plaintext)
	if err != nil {
		return err
	}
	c := &Credential{MudName: mudName, Permissions: perms, RateLimitOverride: rateOverride, hash: hash, salt: salt}
	reg.byHashHex[hex.EncodeToString(hash)] = c
	return nil
}

// Authenticate looks up plaintext by scanning stored credentials and
// verifying with a constant-time comparison against each. Per spec.md
// §4.6 credentials must never be stored or compared in plaintext; this
// necessarily touches every registered credential rather than doing an
// O(1) hash map lookup directly on plaintext, since the salt differs per
// credential and a hex-encoded lookup from the caller's plaintext alone
// would leak nothing useful.
func (r *Registry) Authenticate(plaintext string) (*Credential, error) {
	for _, c := range r.byHashHex {
		if verify(plaintext, c) {
			return c, nil
		}
	}
	return nil, ErrCredentialRejected
}

// IPFilter evaluates an optional CIDR allowlist/blocklist before
// credential checks (§4.6). A nil/disabled filter allows everything.
type IPFilter struct {
	Enabled   bool
	Allowlist []*net.IPNet
	Blocklist []*net.IPNet
}

// ParseIPFilter builds an IPFilter from string CIDR (or bare IP) entries.
// Malformed entries are skipped, matching the source's tolerant parsing.
func ParseIPFilter(enabled bool, allow, block []string) *IPFilter {
	return &IPFilter{Enabled: enabled, Allowlist: parseNetworks(allow), Blocklist: parseNetworks(block)}
}

func parseNetworks(entries []string) []*net.IPNet {
	var out []*net.IPNet
	for _, e := range entries {
		_, network, err := net.ParseCIDR(e)
		if err != nil {
			ip := net.ParseIP(e)
			if ip == nil {
				continue
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			_, network, err = net.ParseCIDR(fmt.Sprintf("%s/%d", e, bits))
			if err != nil {
				continue
			}
		}
		out = append(out, network)
	}
	return out
}

// Allowed reports whether addr passes the filter: blocklist is checked
// first and always wins; if an allowlist is configured the address must
// also match it.
func (f *IPFilter) Allowed(addr string) bool {
	if f == nil || !f.Enabled {
		return true
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range f.Blocklist {
		if n.Contains(ip) {
			return false
		}
	}
	if len(f.Allowlist) == 0 {
		return true
	}
	for _, n := range f.Allowlist {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
