package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"babyshop/internal/domain"
)

// Session is an authenticated admin browser. A zero ExpiresAt never expires.
type Session struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// AuthService gates the admin pages behind a single shared password. It is a
// convenience lock, not a security boundary.
type AuthService struct {
	hash []byte
	TTL  time.Duration
	Now  func() time.Time

	mu       sync.RWMutex
	sessions map[string]Session
}

// NewAuthService hashes password once. An empty password disables login.
func NewAuthService(password string, ttl time.Duration) (*AuthService, error) {
	s := &AuthService{TTL: ttl, Now: time.Now, sessions: map[string]Session{}}
	if password == "" {
		return s, nil
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Wrap(err, "hash admin password")
	}
	s.hash = h
	return s, nil
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *AuthService) Login(password string) (Session, error) {
	if len(s.hash) == 0 || bcrypt.CompareHashAndPassword(s.hash, []byte(password)) != nil {
		return Session{}, domain.ErrAuth
	}
	now := s.now()
	sess := Session{Token: uuid.NewString(), IssuedAt: now}
	if s.TTL > 0 {
		sess.ExpiresAt = now.Add(s.TTL)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for tok, old := range s.sessions {
		if old.Expired(now) {
			delete(s.sessions, tok)
		}
	}
	s.sessions[sess.Token] = sess
	return sess, nil
}

// Session looks a token up. Expired sessions are dropped on sight.
func (s *AuthService) Session(token string) (Session, bool) {
	if token == "" {
		return Session{}, false
	}
	s.mu.RLock()
	sess, ok := s.sessions[token]
	s.mu.RUnlock()
	if !ok {
		return Session{}, false
	}
	if sess.Expired(s.now()) {
		s.Logout(token)
		return Session{}, false
	}
	return sess, true
}

func (s *AuthService) IsAuthenticated(token string) bool {
	_, ok := s.Session(token)
	return ok
}

func (s *AuthService) Logout(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

// Active counts live sessions.
func (s *AuthService) Active() int {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, sess := range s.sessions {
		if !sess.Expired(now) {
			n++
		}
	}
	return n
}
