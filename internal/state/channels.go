package state

import "time"

// ChannelType distinguishes public (anyone may join) from private
// (invite/admin managed) channels.
type ChannelType string

const (
	ChannelPublic  ChannelType = "public"
	ChannelPrivate ChannelType = "private"
)

// HistoryEntryKind distinguishes ordinary messages from emotes.
type HistoryEntryKind string

const (
	HistoryMessage       HistoryEntryKind = "message"
	HistoryEmote         HistoryEntryKind = "emote"
	HistoryTargetedEmote HistoryEntryKind = "targeted_emote"
)

// HistoryEntry is one row in a channel's bounded history ring.
type HistoryEntry struct {
	Kind       HistoryEntryKind
	OriginMud  string
	OriginUser string
	Visname    string
	Body       string
	Timestamp  time.Time
	TargetMud  string // optional, HistoryTargetedEmote only
	TargetUser string // optional, HistoryTargetedEmote only
}

// DefaultHistorySize is the default ring capacity (§3).
const DefaultHistorySize = 100

// Channel is one entry in the channel list (§3).
type Channel struct {
	Name        string
	Type        ChannelType
	OwnerMud    string
	MemberMuds  map[string]struct{}
	history     []HistoryEntry // ring buffer, oldest first
	historyCap  int
	historyNext int // next write index
	historyLen  int // number of valid entries
}

func newChannel(name string, capacity int) *Channel {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &Channel{
		Name:       name,
		Type:       ChannelPublic,
		MemberMuds: make(map[string]struct{}),
		history:    make([]HistoryEntry, capacity),
		historyCap: capacity,
	}
}

func (c *Channel) append(e HistoryEntry) {
	c.history[c.historyNext] = e
	c.historyNext = (c.historyNext + 1) % c.historyCap
	if c.historyLen < c.historyCap {
		c.historyLen++
	}
}

// orderedHistory returns entries oldest-first.
func (c *Channel) orderedHistory() []HistoryEntry {
	out := make([]HistoryEntry, 0, c.historyLen)
	start := (c.historyNext - c.historyLen + c.historyCap) % c.historyCap
	for i := 0; i < c.historyLen; i++ {
		out = append(out, c.history[(start+i)%c.historyCap])
	}
	return out
}

func (c *Channel) cloneMeta() *Channel {
	cp := &Channel{Name: c.Name, Type: c.Type, OwnerMud: c.OwnerMud, MemberMuds: make(map[string]struct{}, len(c.MemberMuds))}
	for k := range c.MemberMuds {
		cp.MemberMuds[k] = struct{}{}
	}
	return cp
}

// UpdateChanlist creates/deletes channel entries from a chanlist-reply
// payload. New channels get a fresh history ring; removed channels'
// history is discarded with the entry.
func (s *Store) UpdateChanlist(changes map[string]any, newID int32) {
	var created, deleted []string

	s.mu.Lock()
	for name, raw := range changes {
		if isZeroMudChange(raw) {
			if _, ok := s.channels[name]; ok {
				delete(s.channels, name)
				deleted = append(deleted, name)
			}
			continue
		}
		if _, exists := s.channels[name]; !exists {
			ch := newChannel(name, DefaultHistorySize)
			if fields, ok := raw.(map[string]any); ok {
				if owner, ok := fields["owner_mud"].(string); ok {
					ch.OwnerMud = owner
				}
				if t, ok := fields["type"].(string); ok && t == string(ChannelPrivate) {
					ch.Type = ChannelPrivate
				}
			}
			s.channels[name] = ch
			created = append(created, name)
		}
	}
	s.chanlistID = newID
	s.mu.Unlock()

	for _, name := range created {
		s.publish(Event{Type: "channel_created", Channel: name})
	}
	for _, name := range deleted {
		s.publish(Event{Type: "channel_deleted", Channel: name})
	}
}

// GetChannel returns a metadata-only copy of the named channel (history is
// not copied; use HistoryRead), or nil if unknown.
func (s *Store) GetChannel(name string) *Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[name]
	if !ok {
		return nil
	}
	return ch.cloneMeta()
}

// ListChannels returns metadata-only copies of channels matching filter.
func (s *Store) ListChannels(filter func(*Channel) bool) []*Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Channel, 0, len(s.channels))
	for _, ch := range s.channels {
		if filter == nil || filter(ch) {
			out = append(out, ch.cloneMeta())
		}
	}
	return out
}

// HistoryAppend appends one entry to a channel's ring, creating the
// channel (as public, default size) if it does not already exist.
func (s *Store) HistoryAppend(channel string, e HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[channel]
	if !ok {
		ch = newChannel(channel, DefaultHistorySize)
		s.channels[channel] = ch
	}
	ch.append(e)
}

// HistoryRead returns up to limit entries for channel, oldest first,
// optionally bounded by before/after timestamps (zero = unbounded).
func (s *Store) HistoryRead(channel string, limit int, before, after time.Time) []HistoryEntry {
	s.mu.RLock()
	ch, ok := s.channels[channel]
	if !ok {
		s.mu.RUnlock()
		return nil
	}
	all := ch.orderedHistory()
	s.mu.RUnlock()

	var filtered []HistoryEntry
	for _, e := range all {
		if !before.IsZero() && !e.Timestamp.Before(before) {
			continue
		}
		if !after.IsZero() && !e.Timestamp.After(after) {
			continue
		}
		filtered = append(filtered, e)
	}
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	return filtered
}

// ChannelExists reports whether channel is known.
func (s *Store) ChannelExists(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.channels[name]
	return ok
}

// UpdateChannelMembership adds or removes mud from channel's member set,
// per a channel-add/channel-remove packet. Creates the channel (as
// public, default size) if it does not already exist.
func (s *Store) UpdateChannelMembership(channel, mud string, member bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[channel]
	if !ok {
		ch = newChannel(channel, DefaultHistorySize)
		s.channels[channel] = ch
	}
	if member {
		ch.MemberMuds[mud] = struct{}{}
	} else {
		delete(ch.MemberMuds, mud)
	}
}
