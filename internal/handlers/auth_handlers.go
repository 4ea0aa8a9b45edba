package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lifeflow/lifeflow/internal/config"
	"github.com/lifeflow/lifeflow/internal/models"
	"github.com/lifeflow/lifeflow/internal/repository"
	"github.com/lifeflow/lifeflow/internal/service"
	"github.com/sirupsen/logrus"
)

type AuthHandlers struct {
	accounts            *service.AccountService
	jwtService          *service.JWTService
	refreshTokenService *service.RefreshTokenService
	cookie              config.CookieConfig
	validate            *validator.Validate
	logger              *logrus.Logger
}

func NewAuthHandlers(
	accounts *service.AccountService,
	jwtService *service.JWTService,
	refreshTokenService *service.RefreshTokenService,
	cookie config.CookieConfig,
	logger *logrus.Logger,
) *AuthHandlers {
	return &AuthHandlers{
		accounts:            accounts,
		jwtService:          jwtService,
		refreshTokenService: refreshTokenService,
		cookie:              cookie,
		validate:            newValidator(),
		logger:              logger,
	}
}

func (h *AuthHandlers) SignIn(w http.ResponseWriter, r *http.Request) {
	var req models.SignInRequest
	if !decodeRequest(w, r, h.validate, &req) {
		return
	}

	user, err := h.accounts.Authenticate(r.Context(), req.Identifier, req.Password)
	if errors.Is(err, service.ErrInvalidCredentials) {
		respondWithError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to authenticate user")
		respondWithError(w, http.StatusInternalServerError, "SIGN_IN_FAILED", "Failed to sign in")
		return
	}

	h.startSession(w, r, http.StatusOK, "Signed in successfully", user)
}

func (h *AuthHandlers) SignUp(w http.ResponseWriter, r *http.Request) {
	var req models.SignUpRequest
	if !decodeRequest(w, r, h.validate, &req) {
		return
	}

	if req.DateOfBirth.After(time.Now()) {
		respondWithError(w, http.StatusBadRequest, "INVALID_DATE_OF_BIRTH", "Date of birth cannot be in the future")
		return
	}

	user, err := h.accounts.Register(r.Context(), &req)
	switch {
	case errors.Is(err, repository.ErrUsernameTaken):
		respondWithError(w, http.StatusConflict, "USERNAME_TAKEN", "Username already exists")
		return
	case errors.Is(err, repository.ErrEmailTaken):
		respondWithError(w, http.StatusConflict, "EMAIL_TAKEN", "Email address already exists")
		return
	case errors.Is(err, repository.ErrUserExists):
		respondWithError(w, http.StatusConflict, "USER_EXISTS", "User already exists")
		return
	case err != nil:
		h.logger.WithError(err).Error("Failed to create user")
		respondWithError(w, http.StatusInternalServerError, "USER_CREATION_FAILED", "Failed to create user")
		return
	}

	h.startSession(w, r, http.StatusCreated, "Account created successfully", user)
}

// Refresh rotates the refresh cookie and answers with a new access token.
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(h.cookie.Name)
	if err != nil || cookie.Value == "" {
		respondWithError(w, http.StatusUnauthorized, "MISSING_REFRESH_TOKEN", "Refresh token is required")
		return
	}

	tokenData, next, err := h.refreshTokenService.Rotate(r.Context(), cookie.Value)
	switch {
	case errors.Is(err, service.ErrRefreshReused):
		h.clearRefreshCookie(w)
		respondWithError(w, http.StatusUnauthorized, "REFRESH_TOKEN_REUSED", "Refresh token has been revoked")
		return
	case errors.Is(err, service.ErrRefreshNotFound):
		h.clearRefreshCookie(w)
		respondWithError(w, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "Invalid or expired refresh token")
		return
	case err != nil:
		h.logger.WithError(err).Error("Failed to rotate refresh token")
		respondWithError(w, http.StatusInternalServerError, "TOKEN_GENERATION_FAILED", "Failed to generate tokens")
		return
	}

	user, err := h.accounts.GetUser(r.Context(), tokenData.UserID)
	if errors.Is(err, repository.ErrUserNotFound) {
		h.clearRefreshCookie(w)
		respondWithError(w, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "Invalid or expired refresh token")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to load user for refresh")
		respondWithError(w, http.StatusInternalServerError, "TOKEN_GENERATION_FAILED", "Failed to generate tokens")
		return
	}

	accessToken, expiresIn, err := h.jwtService.GenerateAccessToken(user)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "TOKEN_GENERATION_FAILED", "Failed to generate tokens")
		return
	}

	h.setRefreshCookie(w, next)
	respondWithJSON(w, http.StatusOK, models.AuthResponse{
		Message: "Token refreshed successfully",
		Data: models.AuthData{
			AccessToken: accessToken,
			TokenType:   "Bearer",
			ExpiresIn:   expiresIn,
		},
	})
}

// SignOut revokes the whole token family behind the refresh cookie and
// expires the cookie. It succeeds without a cookie too.
func (h *AuthHandlers) SignOut(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(h.cookie.Name); err == nil && cookie.Value != "" {
		tokenData, err := h.refreshTokenService.Get(r.Context(), cookie.Value)
		if err == nil {
			if err := h.refreshTokenService.RevokeFamily(r.Context(), tokenData.FamilyID); err != nil {
				h.logger.WithError(err).Error("Failed to revoke refresh token family")
			}
		} else if !errors.Is(err, service.ErrRefreshNotFound) {
			h.logger.WithError(err).Error("Failed to load refresh token")
		}
	}

	h.clearRefreshCookie(w)
	respondWithJSON(w, http.StatusOK, models.Envelope[any]{
		Message: "Signed out successfully",
	})
}

func (h *AuthHandlers) startSession(w http.ResponseWriter, r *http.Request, status int, message string, user *models.User) {
	accessToken, expiresIn, err := h.jwtService.GenerateAccessToken(user)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "TOKEN_GENERATION_FAILED", "Failed to generate tokens")
		return
	}

	refreshToken, err := h.refreshTokenService.Issue(r.Context(), user.ID, "")
	if err != nil {
		h.logger.WithError(err).Error("Failed to issue refresh token")
		respondWithError(w, http.StatusInternalServerError, "TOKEN_GENERATION_FAILED", "Failed to generate tokens")
		return
	}

	profile := user.Profile()
	h.setRefreshCookie(w, refreshToken)
	respondWithJSON(w, status, models.AuthResponse{
		Message: message,
		Data: models.AuthData{
			AccessToken: accessToken,
			TokenType:   "Bearer",
			ExpiresIn:   expiresIn,
			User:        &profile,
		},
	})
}

func (h *AuthHandlers) setRefreshCookie(w http.ResponseWriter, token string) {
	ttl := h.refreshTokenService.TTL()
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    token,
		Path:     h.cookie.Path,
		Expires:  time.Now().Add(ttl),
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandlers) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     h.cookie.Path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
