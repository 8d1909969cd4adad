// Package session keeps per-operator dashboard state in memory. A session is
// discarded when it expires; nothing is persisted.
package session

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/chat"
	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/reservations"
)

const tokenBytes = 32

var ErrNoDataset = errors.New("no dataset uploaded")

// Dataset is the most recent successfully processed upload.
type Dataset struct {
	FileName   string
	UploadedAt time.Time
	Result     *reservations.Result
}

// Session is safe for concurrent use by overlapping requests from one browser.
type Session struct {
	ID string

	mu         sync.Mutex
	authorized bool
	expiresAt  time.Time
	dataset    *Dataset
	turns      []chat.Turn
}

func (s *Session) Authorized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authorized
}

func (s *Session) Authorize() {
	s.mu.Lock()
	s.authorized = true
	s.mu.Unlock()
}

// Dataset returns the current upload. Results are never mutated after they
// are stored, so the pointer may be read without the lock.
func (s *Session) Dataset() (*Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dataset == nil {
		return nil, ErrNoDataset
	}
	return s.dataset, nil
}

// SetDataset replaces the upload and starts a fresh conversation about it.
func (s *Session) SetDataset(dataset *Dataset) {
	s.mu.Lock()
	s.dataset = dataset
	s.turns = nil
	s.mu.Unlock()
}

// Turns returns a copy of the conversation so far.
func (s *Session) Turns() []chat.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := make([]chat.Turn, len(s.turns))
	copy(turns, s.turns)
	return turns
}

// AppendTurnFor records a turn in the conversation about dataset. It reports
// false and records nothing when dataset has since been replaced by a newer
// upload.
func (s *Session) AppendTurnFor(dataset *Dataset, turn chat.Turn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dataset == nil || s.dataset != dataset {
		return false
	}
	s.turns = append(s.turns, turn)
	return true
}

func (s *Session) expired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.expiresAt.After(now)
}

func (s *Session) touch(expiresAt time.Time) {
	s.mu.Lock()
	s.expiresAt = expiresAt
	s.mu.Unlock()
}

// Clock interface for testing time-dependent behavior.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Store maps session tokens to sessions.
type Store struct {
	ttl   time.Duration
	clock Clock

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates a store whose sessions live for ttl after last use.
func NewStore(ttl time.Duration, clock Clock) *Store {
	if clock == nil {
		clock = realClock{}
	}
	return &Store{
		ttl:      ttl,
		clock:    clock,
		sessions: make(map[string]*Session),
	}
}

func (s *Store) TTL() time.Duration {
	return s.ttl
}

func (s *Store) Create() (*Session, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	sess := &Session{ID: token, expiresAt: s.clock.Now().Add(s.ttl)}
	s.mu.Lock()
	s.sessions[token] = sess
	s.mu.Unlock()
	return sess, nil
}

// Get returns a live session and extends its expiry.
func (s *Store) Get(token string) (*Session, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[token]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	now := s.clock.Now()
	if sess.expired(now) {
		s.Delete(token)
		return nil, false
	}
	sess.touch(now.Add(s.ttl))
	return sess, true
}

func (s *Store) Delete(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

// Prune drops expired sessions and reports how many were removed.
func (s *Store) Prune() int {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, sess := range s.sessions {
		if sess.expired(now) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func newToken() (string, error) {
	token := make([]byte, tokenBytes)
	if _, err := rand.Read(token); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(token), nil
}
