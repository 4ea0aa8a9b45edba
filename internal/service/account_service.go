package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lifeflow/lifeflow/internal/models"
	"github.com/lifeflow/lifeflow/internal/repository"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type AccountService struct {
	users  repository.UserRepository
	logger *logrus.Logger
	cost   int
}

type AccountOption func(*AccountService)

// WithPasswordCost sets the bcrypt cost used for new passwords.
func WithPasswordCost(cost int) AccountOption {
	return func(s *AccountService) {
		s.cost = cost
	}
}

func NewAccountService(users repository.UserRepository, logger *logrus.Logger, opts ...AccountOption) *AccountService {
	s := &AccountService{
		users:  users,
		logger: logger,
		cost:   bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an account. Taken usernames and emails surface as
// repository.ErrUsernameTaken and repository.ErrEmailTaken.
func (s *AccountService) Register(ctx context.Context, req *models.SignUpRequest) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.New().String(),
		Username:     strings.TrimSpace(req.Username),
		EmailAddress: strings.TrimSpace(req.EmailAddress),
		PasswordHash: string(hash),
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Gender:       req.Gender,
		DateOfBirth:  req.DateOfBirth,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":  user.ID,
		"username": user.Username,
	}).Info("Account created")

	return user, nil
}

// Authenticate resolves identifier as an email address when it contains
// '@' and as a username otherwise. Unknown users and wrong passwords both
// yield ErrInvalidCredentials.
func (s *AccountService) Authenticate(ctx context.Context, identifier, password string) (*models.User, error) {
	var (
		user *models.User
		err  error
	)
	if strings.Contains(identifier, "@") {
		user, err = s.users.GetByEmail(ctx, identifier)
	} else {
		user, err = s.users.GetByUsername(ctx, identifier)
	}
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.WithField("user_id", user.ID).Debug("Password mismatch")
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

func (s *AccountService) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *AccountService) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	taken, err := s.users.UsernameExists(ctx, username)
	if err != nil {
		return false, err
	}
	return !taken, nil
}

func (s *AccountService) EmailAvailable(ctx context.Context, email string) (bool, error) {
	taken, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return false, err
	}
	return !taken, nil
}
