package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one message in a session's history.
type ConversationTurn struct {
	Role    Role
	Content string
}

// History is the view of one session's ordered turns handed to the function
// passed to Store.WithSession. It is only valid inside that call.
type History struct {
	s *sessionEntry
}

// Turns returns a copy of the session's turns in append order.
func (h *History) Turns() []ConversationTurn {
	out := make([]ConversationTurn, len(h.s.turns))
	copy(out, h.s.turns)
	return out
}

// Append adds turns to the end of the sequence.
func (h *History) Append(turns ...ConversationTurn) {
	h.s.turns = append(h.s.turns, turns...)
}

// Len returns the number of turns.
func (h *History) Len() int {
	return len(h.s.turns)
}

type sessionEntry struct {
	mu         sync.Mutex
	turns      []ConversationTurn
	lastAccess time.Time
}

// Store holds per-key conversation histories for the life of the process.
// Appends for one key are serialized through that key's mutex; keys never
// contend with each other beyond the map lookup.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry

	ttl time.Duration
	now func() time.Time
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithTTL enables idle eviction: sessions untouched for longer than ttl are
// removed by the evictor loop. Zero keeps histories for the life of the
// process.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides the store's time source.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		sessions: make(map[string]*sessionEntry),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// GetOrCreate registers the session if it was never seen and returns a copy
// of its turns. A never-seen key yields an empty, registered history.
func (s *Store) GetOrCreate(key Key) []ConversationTurn {
	entry, created := s.entry(key, true)
	if created {
		log.Debug().Str("session", key.String()).Msg("created session history")
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	h := History{s: entry}
	return h.Turns()
}

// Append adds turns to a registered session. It is strict: appending to a
// key that was never passed through GetOrCreate or WithSession is a
// programming error and fails with ErrUnknownSession rather than
// auto-creating.
func (s *Store) Append(key Key, turns ...ConversationTurn) error {
	entry, _ := s.entry(key, false)
	if entry == nil {
		return fmt.Errorf("%w: %s", ErrUnknownSession, key)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.turns = append(entry.turns, turns...)
	return nil
}

// WithSession runs fn while holding the session's lock, auto-creating the
// session on first use. The read-then-append sequence of a turn belongs
// inside fn: no other caller can interleave appends for the same key while
// it runs. Callers on other keys are unaffected.
func (s *Store) WithSession(key Key, fn func(h *History) error) error {
	entry, _ := s.entry(key, true)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return fn(&History{s: entry})
}

// Clear removes the session's history entirely. Clearing an unknown session
// is a no-op; a subsequent GetOrCreate starts fresh.
func (s *Store) Clear(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[key.String()]; ok {
		delete(s.sessions, key.String())
		log.Debug().Str("session", key.String()).Msg("cleared session history")
	}
}

// Len returns the number of registered sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// StartEvictor runs the idle-session reaper until ctx is done. It is a no-op
// when the store has no TTL configured.
func (s *Store) StartEvictor(ctx context.Context, interval time.Duration) {
	if s.ttl <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.evictIdle(); n > 0 {
					log.Info().Int("evicted", n).Msg("evicted idle sessions")
				}
			}
		}
	}()
}

func (s *Store) evictIdle() int {
	if s.ttl <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for id, entry := range s.sessions {
		// TryLock: an entry mid-turn is in use and cannot be idle.
		if !entry.mu.TryLock() {
			continue
		}
		idle := entry.lastAccess.Before(cutoff)
		entry.mu.Unlock()
		if idle {
			delete(s.sessions, id)
			evicted++
		}
	}
	return evicted
}

func (s *Store) entry(key Key, create bool) (*sessionEntry, bool) {
	id := key.String()
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[id]
	if !ok {
		if !create {
			return nil, false
		}
		entry = &sessionEntry{}
		s.sessions[id] = entry
	}
	entry.lastAccess = s.now()
	return entry, !ok
}
