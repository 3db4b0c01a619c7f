package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/capitalize-ai/chatsync/internal/model"
	"github.com/capitalize-ai/chatsync/pkg/logger"
)

type userRecord struct {
	user model.User
	hash []byte
}

// UserService handles account operations.
type UserService struct {
	logger *logger.Logger
	cost   int

	users   map[int64]*userRecord
	byEmail map[string]int64
	nextID  int64
	mu      sync.RWMutex
}

// NewUserService creates a new user service. cost is the bcrypt cost; zero
// means bcrypt.DefaultCost.
func NewUserService(cost int, log *logger.Logger) *UserService {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &UserService{
		logger:  log,
		cost:    cost,
		users:   make(map[int64]*userRecord),
		byEmail: make(map[string]int64),
	}
}

// Register creates a new account.
func (s *UserService) Register(ctx context.Context, req *model.RegisterRequest) (*model.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[email]; exists {
		return nil, ErrConflict
	}

	s.nextID++
	now := time.Now().UTC()
	rec := &userRecord{
		user: model.User{
			ID:        s.nextID,
			Username:  strings.TrimSpace(req.Username),
			Email:     email,
			CreatedAt: now,
			UpdatedAt: now,
		},
		hash: hash,
	}
	s.users[rec.user.ID] = rec
	s.byEmail[email] = rec.user.ID

	s.logger.Info("user registered", zap.Int64("user_id", rec.user.ID))

	user := rec.user
	return &user, nil
}

// Authenticate checks credentials and returns the matching user.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	s.mu.RLock()
	id, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	var rec *userRecord
	if ok {
		rec = s.users[id]
	}
	s.mu.RUnlock()

	if rec == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(rec.hash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	user := rec.user
	return &user, nil
}

// Get retrieves a user by ID.
func (s *UserService) Get(ctx context.Context, id int64) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	user := rec.user
	return &user, nil
}

// List returns every user ordered by ID.
func (s *UserService) List(ctx context.Context) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]model.User, 0, len(s.users))
	for _, rec := range s.users {
		users = append(users, rec.user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}
