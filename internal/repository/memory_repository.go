package repository

import (
	"context"
	"sync"
	"time"

	"github.com/lifeflow/lifeflow/internal/models"
)

// MemoryUserRepository keeps users in process memory. It backs the server
// when no DynamoDB table is configured and is used by tests.
type MemoryUserRepository struct {
	mu         sync.RWMutex
	users      map[string]models.User
	byUsername map[string]string
	byEmail    map[string]string
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		users:      make(map[string]models.User),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
	}
}

func (r *MemoryUserRepository) Create(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	username := models.NormalizeIdentifier(user.Username)
	email := models.NormalizeIdentifier(user.EmailAddress)

	if _, ok := r.byUsername[username]; ok {
		return ErrUsernameTaken
	}
	if _, ok := r.byEmail[email]; ok {
		return ErrEmailTaken
	}

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	r.users[user.ID] = *user
	r.byUsername[username] = user.ID
	r.byEmail[email] = user.ID
	return nil
}

func (r *MemoryUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &user, nil
}

func (r *MemoryUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.lookup(r.byUsername, username)
}

func (r *MemoryUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.lookup(r.byEmail, email)
}

func (r *MemoryUserRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUsername[models.NormalizeIdentifier(username)]
	return ok, nil
}

func (r *MemoryUserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byEmail[models.NormalizeIdentifier(email)]
	return ok, nil
}

func (r *MemoryUserRepository) lookup(index map[string]string, key string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := index[models.NormalizeIdentifier(key)]
	if !ok {
		return nil, ErrUserNotFound
	}
	user := r.users[id]
	return &user, nil
}
