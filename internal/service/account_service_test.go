package service

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/lifeflow/lifeflow/internal/models"
	"github.com/lifeflow/lifeflow/internal/repository"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestAccounts() *AccountService {
	return NewAccountService(repository.NewMemoryUserRepository(), quietLogger(), WithPasswordCost(bcrypt.MinCost))
}

func signUpRequest(username, email string) *models.SignUpRequest {
	return &models.SignUpRequest{
		FirstName:    "Ann",
		LastName:     "Lee",
		DateOfBirth:  time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC),
		Gender:       models.GenderFemale,
		Username:     username,
		EmailAddress: email,
		Password:     "password1",
	}
}

func TestAccountService_RegisterHashesPassword(t *testing.T) {
	s := newTestAccounts()

	user, err := s.Register(context.Background(), signUpRequest("annlee", "ann@example.com"))
	require.NoError(t, err)

	assert.NotEmpty(t, user.ID)
	assert.NotEqual(t, "password1", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("password1")))
}

func TestAccountService_RegisterDuplicate(t *testing.T) {
	s := newTestAccounts()
	ctx := context.Background()
	_, err := s.Register(ctx, signUpRequest("annlee", "ann@example.com"))
	require.NoError(t, err)

	_, err = s.Register(ctx, signUpRequest("AnnLee", "new@example.com"))
	assert.ErrorIs(t, err, repository.ErrUsernameTaken)

	_, err = s.Register(ctx, signUpRequest("other", "ann@example.com"))
	assert.ErrorIs(t, err, repository.ErrEmailTaken)
}

func TestAccountService_Authenticate(t *testing.T) {
	s := newTestAccounts()
	ctx := context.Background()
	created, err := s.Register(ctx, signUpRequest("annlee", "ann@example.com"))
	require.NoError(t, err)

	tests := []struct {
		name       string
		identifier string
		password   string
		wantErr    error
	}{
		{name: "by username", identifier: "annlee", password: "password1"},
		{name: "by email", identifier: "ann@example.com", password: "password1"},
		{name: "wrong password", identifier: "annlee", password: "nope", wantErr: ErrInvalidCredentials},
		{name: "unknown user", identifier: "ghost", password: "password1", wantErr: ErrInvalidCredentials},
		{name: "unknown email", identifier: "ghost@example.com", password: "password1", wantErr: ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := s.Authenticate(ctx, tt.identifier, tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, user)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, created.ID, user.ID)
		})
	}
}

func TestAccountService_Availability(t *testing.T) {
	s := newTestAccounts()
	ctx := context.Background()
	_, err := s.Register(ctx, signUpRequest("annlee", "ann@example.com"))
	require.NoError(t, err)

	free, err := s.UsernameAvailable(ctx, "annlee")
	require.NoError(t, err)
	assert.False(t, free)

	free, err = s.UsernameAvailable(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, free)

	free, err = s.EmailAvailable(ctx, "ANN@example.com")
	require.NoError(t, err)
	assert.False(t, free)
}
