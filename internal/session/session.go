// Package session manages per-user conversation state: identity, active
// scope filters, the cached last metrics result and the running transcript.
// Sessions live in memory; transcripts can additionally be written through
// to a SQLite store so history survives restarts.
package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a session ID does not exist, either because
// it was never created or because it was deleted.
var ErrNotFound = fmt.Errorf("session: not found")

// ResultKind tags the cached last result so follow-up turns ("chart the
// above") know what kind of data the cache holds.
type ResultKind string

const (
	// ResultNone means no result has been cached yet.
	ResultNone ResultKind = ""
	// ResultTicketSummary means the cache holds a ticket metrics summary.
	ResultTicketSummary ResultKind = "ticket_summary"
)

// Role identifies the author of a transcript message.
type Role string

const (
	// RoleUser is a message sent by the end user.
	RoleUser Role = "user"
	// RoleAssistant is a message produced by the assistant.
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a session transcript.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Filters is the active scope a user has selected. A nil slice means "no
// filter for that dimension"; an empty non-nil slice explicitly clears it.
type Filters struct {
	Projects []string `json:"projects,omitempty"`
	Teams    []string `json:"teams,omitempty"`
	Regions  []string `json:"regions,omitempty"`
}

// Merge overlays in on f: dimensions in filter on top, nil dimensions keep
// the existing value. Merging never widens the untouched dimensions.
func (f Filters) Merge(in Filters) Filters {
	out := f
	if in.Projects != nil {
		out.Projects = in.Projects
	}
	if in.Teams != nil {
		out.Teams = in.Teams
	}
	if in.Regions != nil {
		out.Regions = in.Regions
	}
	return out
}

// IsZero reports whether no dimension carries a filter.
func (f Filters) IsZero() bool {
	return len(f.Projects) == 0 && len(f.Teams) == 0 && len(f.Regions) == 0
}

// Canonical returns the comma-joined form of names used in filter tags and
// store queries: trimmed, empties dropped, order preserved.
func Canonical(names []string) string {
	var kept []string
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n != "" {
			kept = append(kept, n)
		}
	}
	return strings.Join(kept, ",")
}

// Session is one user's conversation state. Fields are guarded by the owning
// Store; handlers serialize whole turns with LockTurn so mid-turn state is
// never observed by a concurrent turn on the same session.
type Session struct {
	ID        string    `json:"sessionId"`
	Username  string    `json:"username"`
	UserRole  string    `json:"userRole,omitempty"`
	RoleCode  string    `json:"roleCode,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Filters   Filters   `json:"filters"`

	// LastResultKind and LastResult cache the previous metrics answer so a
	// follow-up like "chart the above" can reuse it without re-querying.
	LastResultKind ResultKind `json:"-"`
	LastResult     any        `json:"-"`

	Transcript []Message `json:"transcript"`

	turnMu sync.Mutex
}

// Store is an in-memory session registry with optional transcript
// write-through. Safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	sessions   map[string]*Session
	transcript TranscriptStore
	now        func() time.Time
}

// NewStore returns an empty in-memory store. transcript may be nil to keep
// history in memory only.
func NewStore(transcript TranscriptStore) *Store {
	return &Store{
		sessions:   make(map[string]*Session),
		transcript: transcript,
		now:        time.Now,
	}
}

// Create registers a new session for username and returns it. The ID is a
// fresh UUID.
func (s *Store) Create(ctx context.Context, username, userRole, roleCode string) (*Session, error) {
	if strings.TrimSpace(username) == "" {
		return nil, fmt.Errorf("session: username is required")
	}
	sess := &Session{
		ID:        uuid.NewString(),
		Username:  strings.TrimSpace(username),
		UserRole:  userRole,
		RoleCode:  roleCode,
		CreatedAt: s.now().UTC(),
	}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return sess, nil
}

// Get returns the session with the given ID or ErrNotFound.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Delete removes the session and its persisted transcript. Deleting an
// unknown ID returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if s.transcript != nil {
		if err := s.transcript.DeleteSession(ctx, id); err != nil {
			return fmt.Errorf("session: delete transcript: %w", err)
		}
	}
	return nil
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// LockTurn acquires the per-session turn lock, serializing turns on the same
// session while leaving other sessions untouched. Returns the unlock func.
func (s *Store) LockTurn(sess *Session) func() {
	sess.turnMu.Lock()
	return sess.turnMu.Unlock
}

// ApplyFilters merges in into the session's filters and returns the merged
// result. Dimensions not present in in survive unchanged.
func (s *Store) ApplyFilters(sess *Session, in Filters) Filters {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.Filters = sess.Filters.Merge(in)
	return sess.Filters
}

// SetLastResult caches the result of the current turn for follow-up turns.
func (s *Store) SetLastResult(sess *Session, kind ResultKind, result any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.LastResultKind = kind
	sess.LastResult = result
}

// LastResult returns the cached result and its kind.
func (s *Store) LastResult(sess *Session) (ResultKind, any) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sess.LastResultKind, sess.LastResult
}

// AppendMessage records a transcript message in memory and, when a
// transcript store is configured, writes it through. A write-through failure
// does not lose the in-memory message.
func (s *Store) AppendMessage(ctx context.Context, sess *Session, role Role, content string) error {
	msg := Message{Role: role, Content: content, CreatedAt: s.now().UTC()}
	s.mu.Lock()
	sess.Transcript = append(sess.Transcript, msg)
	s.mu.Unlock()
	if s.transcript != nil {
		if err := s.transcript.Append(ctx, sess.ID, role, content); err != nil {
			return fmt.Errorf("session: persist message: %w", err)
		}
	}
	return nil
}

// Snapshot returns a copy of the session safe to serialize while other
// goroutines keep using the store.
func (s *Store) Snapshot(sess *Session) Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := Session{
		ID:        sess.ID,
		Username:  sess.Username,
		UserRole:  sess.UserRole,
		RoleCode:  sess.RoleCode,
		CreatedAt: sess.CreatedAt,
		Filters:   sess.Filters,
	}
	out.Transcript = append([]Message(nil), sess.Transcript...)
	return out
}

// IDs returns all live session IDs in sorted order. Used by tests and the
// admin surface.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
