package store

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chatsync/internal/model"
	"github.com/capitalize-ai/chatsync/internal/persist"
	"github.com/capitalize-ai/chatsync/pkg/logger"
)

// AuthState is a point-in-time view of the auth store.
type AuthState struct {
	User    *model.User
	Loading bool
	Err     error
}

// AuthStore tracks the logged-in user and the bearer token.
type AuthStore struct {
	gw      UserAPI
	session Session
	logger  *logger.Logger

	mu      sync.Mutex
	user    *model.User
	loading int
	err     error
}

// NewAuthStore creates an auth store. session may be nil.
func NewAuthStore(gw UserAPI, session Session, log *logger.Logger) *AuthStore {
	if log == nil {
		log = logger.Nop()
	}
	return &AuthStore{gw: gw, session: session, logger: log.Component("auth")}
}

// Initialize restores a persisted token and fetches the user it belongs to.
// An expired token is dropped from the session.
func (s *AuthStore) Initialize(ctx context.Context) error {
	if s.session == nil {
		return nil
	}
	sess, err := s.session.Load()
	if err != nil {
		return s.fail("initialize", err)
	}
	if sess.Token == "" {
		return nil
	}

	s.gw.SetToken(sess.Token)
	if _, err := s.FetchUser(ctx); err != nil {
		if errors.Is(err, model.ErrAuth) {
			s.gw.SetToken("")
			saveSession(s.session, s.logger, func(p *persist.Session) {
				p.Token = ""
				p.User = nil
			})
		}
		return err
	}
	return nil
}

// Login exchanges credentials for a token and loads the user.
func (s *AuthStore) Login(ctx context.Context, email, password string) error {
	s.begin()
	defer s.end()

	token, err := s.gw.Login(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return s.fail("login", err)
	}
	s.gw.SetToken(token)

	user, err := s.gw.CurrentUser(ctx)
	if err != nil {
		return s.fail("login", err)
	}

	s.mu.Lock()
	s.user = user
	s.mu.Unlock()

	saveSession(s.session, s.logger, func(p *persist.Session) {
		p.Token = token
		p.User = user
	})
	s.logger.Info("logged in", zap.Int64("user_id", user.ID))
	return nil
}

// Register creates an account and logs into it.
func (s *AuthStore) Register(ctx context.Context, username, email, password string) error {
	s.begin()
	_, err := s.gw.CreateUser(ctx, model.RegisterRequest{
		Username: strings.TrimSpace(username),
		Email:    strings.TrimSpace(email),
		Password: password,
	})
	s.end()
	if err != nil {
		return s.fail("register", err)
	}
	return s.Login(ctx, email, password)
}

// Logout ends the session. Local state is cleared even when the backend
// call fails.
func (s *AuthStore) Logout(ctx context.Context) error {
	s.begin()
	err := s.gw.Logout(ctx)
	s.end()

	s.gw.SetToken("")
	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()
	saveSession(s.session, s.logger, func(p *persist.Session) {
		*p = persist.Session{}
	})

	if err != nil {
		return s.fail("logout", err)
	}
	return nil
}

// FetchUser loads the user the current token belongs to.
func (s *AuthStore) FetchUser(ctx context.Context) (*model.User, error) {
	s.begin()
	defer s.end()

	user, err := s.gw.CurrentUser(ctx)
	if err != nil {
		return nil, s.fail("current_user", err)
	}
	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
	return user, nil
}

// User returns the cached user, or nil when logged out.
func (s *AuthStore) User() *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Token returns the bearer token in use.
func (s *AuthStore) Token() string {
	return s.gw.Token()
}

// Snapshot returns the current state.
func (s *AuthStore) Snapshot() AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := AuthState{Loading: s.loading > 0, Err: s.err}
	if s.user != nil {
		u := *s.user
		st.User = &u
	}
	return st
}

// ClearError forgets the last error.
func (s *AuthStore) ClearError() {
	s.mu.Lock()
	s.err = nil
	s.mu.Unlock()
}

func (s *AuthStore) begin() {
	s.mu.Lock()
	s.loading++
	s.err = nil
	s.mu.Unlock()
}

func (s *AuthStore) end() {
	s.mu.Lock()
	s.loading--
	s.mu.Unlock()
}

func (s *AuthStore) fail(op string, err error) error {
	record(s.logger, "auth", op, err)
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	return err
}
