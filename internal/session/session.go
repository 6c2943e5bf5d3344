package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/oauth2"
)

// ErrNoCredential is returned by Token when the session holds no access token.
var ErrNoCredential = errors.New("no credential in session")

// Credential is the access/refresh token pair of an authenticated session.
type Credential struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}

// HasToken reports whether the credential carries a non-empty access token.
func (c *Credential) HasToken() bool {
	return c != nil && c.Token != ""
}

// Session holds the credential shared by every request of the process.
// Login populates it, logout clears it, and the request client overwrites the
// access token after a successful refresh. All methods are thread-safe.
type Session struct {
	store Store

	mu   sync.RWMutex
	user *Credential
}

// Compile-time check that Session can feed oauth2 transports.
var _ oauth2.TokenSource = (*Session)(nil)

// New creates a session backed by store. A nil store keeps credentials in memory only.
func New(store Store) *Session {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Session{store: store}
}

// Load reads the persisted credential into the session.
// A store without a credential leaves the session empty.
func (s *Session) Load(ctx context.Context) error {
	cred, err := s.store.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.mu.Lock()
			s.user = nil
			s.mu.Unlock()
			return nil
		}
		return fmt.Errorf("failed to load credential: %w", err)
	}

	s.mu.Lock()
	s.user = cred
	s.mu.Unlock()
	return nil
}

// User returns a copy of the current credential, or nil when logged out.
func (s *Session) User() *Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	user := *s.user
	return &user
}

// SetUser replaces the stored credential and persists it.
// The in-memory credential is updated even if persisting fails.
func (s *Session) SetUser(ctx context.Context, user *Credential) error {
	var stored *Credential
	if user != nil {
		u := *user
		stored = &u
	}

	s.mu.Lock()
	s.user = stored
	s.mu.Unlock()

	if stored == nil {
		return s.clearStore(ctx)
	}
	if err := s.store.Save(ctx, stored); err != nil {
		return fmt.Errorf("failed to persist credential: %w", err)
	}
	return nil
}

// UpdateToken overwrites the access token of the current credential, keeping its
// refresh token, and commits the result.
func (s *Session) UpdateToken(ctx context.Context, token string) error {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return ErrNoCredential
	}
	s.user.Token = token
	updated := *s.user
	s.mu.Unlock()

	slog.DebugContext(ctx, "session: access token updated")

	if err := s.store.Save(ctx, &updated); err != nil {
		return fmt.Errorf("failed to persist credential: %w", err)
	}
	return nil
}

// Clear drops the credential from the session and the store.
func (s *Session) Clear(ctx context.Context) error {
	return s.SetUser(ctx, nil)
}

// Token implements oauth2.TokenSource with the current access token.
func (s *Session) Token() (*oauth2.Token, error) {
	user := s.User()
	if !user.HasToken() {
		return nil, ErrNoCredential
	}
	return &oauth2.Token{
		AccessToken:  user.Token,
		TokenType:    "Bearer",
		RefreshToken: user.RefreshToken,
	}, nil
}

func (s *Session) clearStore(ctx context.Context) error {
	if err := s.store.Delete(ctx); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	return nil
}
