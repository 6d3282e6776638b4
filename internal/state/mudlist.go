package state

import "time"

// MudStatus is the online/offline/unknown tri-state of a Mud entry.
type MudStatus string

const (
	MudOnline  MudStatus = "online"
	MudOffline MudStatus = "offline"
	MudUnknown MudStatus = "unknown"
)

// Mud is one entry in the federated mud list (§3).
type Mud struct {
	Name         string
	Status       MudStatus
	Driver       string
	Mudlib       string
	BaseMudlib   string
	MudType      string
	OpenStatus   string
	AdminEmail   string
	Host         string
	PlayerPort   int
	TCPPort      int
	UDPPort      int
	Services     map[string]int
	LastSeen     time.Time
}

// clone returns a value copy so callers can't mutate Store state through a
// pointer obtained from a read accessor.
func (m *Mud) clone() *Mud {
	if m == nil {
		return nil
	}
	cp := *m
	cp.Services = make(map[string]int, len(m.Services))
	for k, v := range m.Services {
		cp.Services[k] = v
	}
	return &cp
}

// UpdateMudlist applies per-entry diffs from a mudlist packet. A zero
// change value for a mud marks it offline; any other value marks it
// online (or updates its fields if already known). Transition-only events
// ("mud_online"/"mud_offline") are published after the mutation is
// visible, per §4.4.
func (s *Store) UpdateMudlist(changes map[string]any, newID int32) {
	type transition struct {
		name   string
		online bool
	}
	var transitions []transition

	s.mu.Lock()
	for name, raw := range changes {
		existing, known := s.muds[name]
		wasOnline := known && existing.Status == MudOnline

		if isZeroMudChange(raw) {
			if known {
				existing.Status = MudOffline
				existing.LastSeen = time.Now().UTC()
			} else {
				s.muds[name] = &Mud{Name: name, Status: MudOffline, LastSeen: time.Now().UTC()}
			}
			if wasOnline {
				transitions = append(transitions, transition{name: name, online: false})
			}
			continue
		}

		entry := mudFromChange(name, raw)
		entry.Status = MudOnline
		entry.LastSeen = time.Now().UTC()
		s.muds[name] = entry
		if !wasOnline {
			transitions = append(transitions, transition{name: name, online: true})
		}
	}
	s.mudlistID = newID
	s.mu.Unlock()

	for _, t := range transitions {
		evType := "mud_offline"
		if t.online {
			evType = "mud_online"
		}
		s.publish(Event{Type: evType, MudName: t.name})
	}
}

func isZeroMudChange(raw any) bool {
	switch v := raw.(type) {
	case int32:
		return v == 0
	case int:
		return v == 0
	case nil:
		return true
	case map[string]any:
		return len(v) == 0
	default:
		return false
	}
}

func mudFromChange(name string, raw any) *Mud {
	m := &Mud{Name: name, Services: map[string]int{}}
	fields, ok := raw.(map[string]any)
	if !ok {
		return m
	}
	if v, ok := fields["driver"].(string); ok {
		m.Driver = v
	}
	if v, ok := fields["mudlib"].(string); ok {
		m.Mudlib = v
	}
	if v, ok := fields["base_mudlib"].(string); ok {
		m.BaseMudlib = v
	}
	if v, ok := fields["mud_type"].(string); ok {
		m.MudType = v
	}
	if v, ok := fields["open_status"].(string); ok {
		m.OpenStatus = v
	}
	if v, ok := fields["admin_email"].(string); ok {
		m.AdminEmail = v
	}
	if v, ok := fields["host"].(string); ok {
		m.Host = v
	}
	if v, ok := fields["player_port"].(int); ok {
		m.PlayerPort = v
	}
	if v, ok := fields["tcp_port"].(int); ok {
		m.TCPPort = v
	}
	if v, ok := fields["udp_port"].(int); ok {
		m.UDPPort = v
	}
	if services, ok := fields["services"].(map[string]any); ok {
		for k, v := range services {
			if iv, ok := v.(int); ok {
				m.Services[k] = iv
			}
		}
	}
	return m
}

// GetMud returns a copy of the named mud entry, or nil if unknown. Reads
// never block behind long writes (RLock only).
func (s *Store) GetMud(name string) *Mud {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.muds[name].clone()
}

// ListMuds returns a snapshot of muds matching filter (nil filter = all).
func (s *Store) ListMuds(filter func(*Mud) bool) []*Mud {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Mud, 0, len(s.muds))
	for _, m := range s.muds {
		if filter == nil || filter(m) {
			out = append(out, m.clone())
		}
	}
	return out
}

// MarkShutdown marks a mud offline in response to a shutdown packet.
func (s *Store) MarkShutdown(name string) {
	s.mu.Lock()
	_, known := s.muds[name]
	wasOnline := known && s.muds[name].Status == MudOnline
	if known {
		s.muds[name].Status = MudOffline
		s.muds[name].LastSeen = time.Now().UTC()
	}
	s.mu.Unlock()
	if wasOnline {
		s.publish(Event{Type: "mud_offline", MudName: name})
	}
}
