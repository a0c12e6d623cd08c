// Package session keeps per-login state: who is signed in and the one batch
// of analyzed line items they are working on.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/cbam-tracker/internal/common"
	"github.com/joseph-ayodele/cbam-tracker/internal/entity"
	"github.com/joseph-ayodele/cbam-tracker/internal/metrics"
)

// Batch is the result of one upload.
type Batch struct {
	ID        uuid.UUID         `json:"id"`
	CreatedAt time.Time         `json:"created_at"`
	Items     []entity.LineItem `json:"items"`
}

// Session is a copy of the stored state; mutate through the Store.
type Session struct {
	Token    string    `json:"-"`
	Username string    `json:"username"`
	Company  string    `json:"company"`
	Batch    *Batch    `json:"batch,omitempty"`
	LastSeen time.Time `json:"last_seen"`
}

// Store is an in-memory session table with an idle timeout.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

var errNoSession = common.NewAppError("UNAUTHORIZED", "session expired or unknown", common.ErrUnauthorized)

func NewStore(ttl time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Store{sessions: map[string]*Session{}, ttl: ttl, now: time.Now, logger: logger}
}

// WithClock replaces time.Now, for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Create opens a session for username. The company label is the upper-cased
// username.
func (s *Store) Create(username, company string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := &Session{
		Token:    uuid.NewString(),
		Username: username,
		Company:  company,
		LastSeen: s.now(),
	}
	s.sessions[sess.Token] = sess
	metrics.SessionsActive.Set(float64(len(s.sessions)))
	s.logger.Info("session.create", "username", username)
	return clone(sess)
}

// Get returns the session for token and refreshes its idle timer.
func (s *Store) Get(token string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.live(token)
	if err != nil {
		return Session{}, err
	}
	sess.LastSeen = s.now()
	return clone(sess), nil
}

// Delete ends a session and drops its batch.
func (s *Store) Delete(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[token]; ok {
		delete(s.sessions, token)
		metrics.SessionsActive.Set(float64(len(s.sessions)))
		s.logger.Info("session.delete", "username", sess.Username)
	}
}

// ReplaceBatch installs items as the session's only batch.
func (s *Store) ReplaceBatch(token string, items []entity.LineItem) (Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.live(token)
	if err != nil {
		return Batch{}, err
	}
	b := &Batch{ID: uuid.New(), CreatedAt: s.now(), Items: append([]entity.LineItem(nil), items...)}
	sess.Batch = b
	sess.LastSeen = s.now()
	return cloneBatch(b), nil
}

// ClearBatch drops the session's batch.
func (s *Store) ClearBatch(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.live(token)
	if err != nil {
		return err
	}
	sess.Batch = nil
	sess.LastSeen = s.now()
	return nil
}

// UpdateItem replaces the line at index through fn, which receives a copy.
func (s *Store) UpdateItem(token string, index int, fn func(entity.LineItem) entity.LineItem) (entity.LineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.live(token)
	if err != nil {
		return entity.LineItem{}, err
	}
	if sess.Batch == nil {
		return entity.LineItem{}, common.NotFoundError("no batch in session")
	}
	if index < 0 || index >= len(sess.Batch.Items) {
		return entity.LineItem{}, common.InvalidArgumentErrorf("item index %d out of range [0,%d)", index, len(sess.Batch.Items))
	}
	updated := fn(sess.Batch.Items[index])
	sess.Batch.Items[index] = updated
	sess.LastSeen = s.now()
	return updated, nil
}

// Sweep removes idle sessions and returns how many were dropped.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for tok, sess := range s.sessions {
		if s.expired(sess) {
			delete(s.sessions, tok)
			n++
		}
	}
	if n > 0 {
		metrics.SessionsActive.Set(float64(len(s.sessions)))
		s.logger.Info("session.sweep", "expired", n, "active", len(s.sessions))
	}
	return n
}

// Len is the number of stored sessions, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) live(token string) (*Session, error) {
	sess, ok := s.sessions[token]
	if !ok || token == "" {
		return nil, errNoSession
	}
	if s.expired(sess) {
		delete(s.sessions, token)
		metrics.SessionsActive.Set(float64(len(s.sessions)))
		return nil, errNoSession
	}
	return sess, nil
}

func (s *Store) expired(sess *Session) bool {
	return s.now().Sub(sess.LastSeen) > s.ttl
}

func clone(sess *Session) Session {
	out := *sess
	if sess.Batch != nil {
		b := cloneBatch(sess.Batch)
		out.Batch = &b
	}
	return out
}

func cloneBatch(b *Batch) Batch {
	out := *b
	out.Items = append([]entity.LineItem(nil), b.Items...)
	return out
}
