package state

import "time"

// UserSession is the state store's record of one remote (or local) mud
// user's presence — not to be confused with internal/session.Session,
// which is a connected API client. Keyed by (mud_name, user_name).
type UserSession struct {
	MudName      string
	UserName     string
	IsOnline     bool
	LoginTime    time.Time
	LastActivity time.Time
	Level        int32
	Title        string
	Race         string
	Guild        string
	Location     string
	Website      string
	IPAddress    string
	StatusMsg    string
}

func (u *UserSession) clone() *UserSession {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}

// SessionUpsert creates or updates a user's presence record. fields whose
// zero value would otherwise clobber existing data are only applied when
// explicitly present in the update map.
func (s *Store) SessionUpsert(mud, user string, fields map[string]any) {
	key := sessionKey(mud, user)
	s.mu.Lock()
	defer s.mu.Unlock()
	us, ok := s.sessions[key]
	if !ok {
		us = &UserSession{MudName: mud, UserName: user, LoginTime: time.Now().UTC()}
		s.sessions[key] = us
	}
	us.LastActivity = time.Now().UTC()
	if v, ok := fields["is_online"].(bool); ok {
		us.IsOnline = v
	}
	if v, ok := fields["level"].(int32); ok {
		us.Level = v
	}
	if v, ok := fields["title"].(string); ok {
		us.Title = v
	}
	if v, ok := fields["race"].(string); ok {
		us.Race = v
	}
	if v, ok := fields["guild"].(string); ok {
		us.Guild = v
	}
	if v, ok := fields["location"].(string); ok {
		us.Location = v
	}
	if v, ok := fields["website"].(string); ok {
		us.Website = v
	}
	if v, ok := fields["ip_address"].(string); ok {
		us.IPAddress = v
	}
	if v, ok := fields["status_message"].(string); ok {
		us.StatusMsg = v
	}
}

// SessionGet returns a copy of the named user's presence record, or nil.
func (s *Store) SessionGet(mud, user string) *UserSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[sessionKey(mud, user)].clone()
}

// SessionsOnline returns a snapshot of all online local users for mud,
// optionally filtered further by the caller (used by who-req).
func (s *Store) SessionsOnline(mud string, filter func(*UserSession) bool) []*UserSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*UserSession
	for _, us := range s.sessions {
		if us.MudName != mud || !us.IsOnline {
			continue
		}
		if filter != nil && !filter(us) {
			continue
		}
		out = append(out, us.clone())
	}
	return out
}
