package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lifeflow/lifeflow/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var (
	ErrRefreshNotFound = errors.New("refresh token not found")
	ErrRefreshReused   = errors.New("refresh token reused")
)

// RefreshTokenService keeps opaque refresh tokens in Redis. Each token
// belongs to a family; presenting a revoked token revokes the whole family.
type RefreshTokenService struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

func NewRefreshTokenService(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *RefreshTokenService {
	return &RefreshTokenService{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func (s *RefreshTokenService) TTL() time.Duration {
	return s.ttl
}

// Issue creates a token for userID. An empty familyID starts a new family.
func (s *RefreshTokenService) Issue(ctx context.Context, userID, familyID string) (string, error) {
	if familyID == "" {
		familyID = GenerateFamilyID()
	}

	now := time.Now()
	tokenData := models.RefreshTokenData{
		JTI:       uuid.New().String(),
		UserID:    userID,
		FamilyID:  familyID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	if err := s.store(ctx, &tokenData); err != nil {
		return "", err
	}

	familyKey := familyKey(familyID)
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, familyKey, tokenData.JTI)
	pipe.Expire(ctx, familyKey, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.WithError(err).Error("Failed to index refresh token family")
		return "", fmt.Errorf("failed to index refresh token family: %w", err)
	}

	return tokenData.JTI, nil
}

// Rotate revokes token and issues its successor in the same family. Only
// one presentation of a token can win; every other one, concurrent or
// later, is treated as reuse.
func (s *RefreshTokenService) Rotate(ctx context.Context, token string) (*models.RefreshTokenData, string, error) {
	tokenData, err := s.Get(ctx, token)
	if err != nil {
		return nil, "", err
	}

	if tokenData.Revoked {
		return nil, "", s.reused(ctx, tokenData)
	}

	if time.Now().After(tokenData.ExpiresAt) {
		return nil, "", ErrRefreshNotFound
	}

	won, err := s.claim(ctx, tokenData)
	if err != nil {
		return nil, "", err
	}
	if !won {
		return nil, "", s.reused(ctx, tokenData)
	}

	tokenData.Revoked = true
	if err := s.store(ctx, tokenData); err != nil {
		return nil, "", err
	}

	next, err := s.Issue(ctx, tokenData.UserID, tokenData.FamilyID)
	if err != nil {
		return nil, "", err
	}

	return tokenData, next, nil
}

func (s *RefreshTokenService) Get(ctx context.Context, jti string) (*models.RefreshTokenData, error) {
	dataJSON, err := s.client.Get(ctx, tokenKey(jti)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRefreshNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	var tokenData models.RefreshTokenData
	if err := json.Unmarshal([]byte(dataJSON), &tokenData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token data: %w", err)
	}

	return &tokenData, nil
}

func (s *RefreshTokenService) Revoke(ctx context.Context, jti string) error {
	tokenData, err := s.Get(ctx, jti)
	if err != nil {
		return err
	}
	if tokenData.Revoked {
		return nil
	}

	if _, err := s.claim(ctx, tokenData); err != nil {
		return err
	}

	tokenData.Revoked = true
	return s.store(ctx, tokenData)
}

// claim atomically marks the token as used. It reports false when the
// token was already claimed by a rotation or a revocation.
func (s *RefreshTokenService) claim(ctx context.Context, tokenData *models.RefreshTokenData) (bool, error) {
	ttl := time.Until(tokenData.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}

	won, err := s.client.SetNX(ctx, usedKey(tokenData.JTI), 1, ttl).Result()
	if err != nil {
		s.logger.WithError(err).Error("Failed to claim refresh token")
		return false, fmt.Errorf("failed to claim refresh token: %w", err)
	}
	return won, nil
}

func (s *RefreshTokenService) reused(ctx context.Context, tokenData *models.RefreshTokenData) error {
	s.logger.WithFields(logrus.Fields{
		"user_id":   tokenData.UserID,
		"family_id": tokenData.FamilyID,
	}).Warn("Revoked refresh token presented, revoking family")
	if err := s.RevokeFamily(ctx, tokenData.FamilyID); err != nil {
		s.logger.WithError(err).Error("Failed to revoke refresh token family")
	}
	return ErrRefreshReused
}

func (s *RefreshTokenService) RevokeFamily(ctx context.Context, familyID string) error {
	jtis, err := s.client.SMembers(ctx, familyKey(familyID)).Result()
	if err != nil {
		return fmt.Errorf("failed to list refresh token family: %w", err)
	}

	for _, jti := range jtis {
		if err := s.Revoke(ctx, jti); err != nil && !errors.Is(err, ErrRefreshNotFound) {
			return err
		}
	}

	return nil
}

func (s *RefreshTokenService) store(ctx context.Context, tokenData *models.RefreshTokenData) error {
	dataJSON, err := json.Marshal(tokenData)
	if err != nil {
		return fmt.Errorf("failed to marshal token data: %w", err)
	}

	// Revoked tokens are kept until expiry so reuse can still be detected.
	ttl := time.Until(tokenData.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}

	if err := s.client.Set(ctx, tokenKey(tokenData.JTI), dataJSON, ttl).Err(); err != nil {
		s.logger.WithError(err).Error("Failed to store refresh token")
		return fmt.Errorf("failed to store refresh token: %w", err)
	}

	return nil
}

func tokenKey(jti string) string {
	return fmt.Sprintf("refresh_token:%s", jti)
}

func usedKey(jti string) string {
	return fmt.Sprintf("refresh_used:%s", jti)
}

func familyKey(familyID string) string {
	return fmt.Sprintf("refresh_family:%s", familyID)
}

func GenerateFamilyID() string {
	return uuid.New().String()
}
