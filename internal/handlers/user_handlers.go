package handlers

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/lifeflow/lifeflow/internal/middleware"
	"github.com/lifeflow/lifeflow/internal/models"
	"github.com/lifeflow/lifeflow/internal/repository"
	"github.com/lifeflow/lifeflow/internal/service"
	"github.com/sirupsen/logrus"
)

type UserHandlers struct {
	accounts *service.AccountService
	validate *validator.Validate
	logger   *logrus.Logger
}

func NewUserHandlers(accounts *service.AccountService, logger *logrus.Logger) *UserHandlers {
	return &UserHandlers{
		accounts: accounts,
		validate: newValidator(),
		logger:   logger,
	}
}

// CheckUsername answers 200 when the username is free and 409 when taken.
func (h *UserHandlers) CheckUsername(w http.ResponseWriter, r *http.Request) {
	var req models.CheckUsernameRequest
	if !decodeRequest(w, r, h.validate, &req) {
		return
	}

	free, err := h.accounts.UsernameAvailable(r.Context(), req.Username)
	if err != nil {
		h.logger.WithError(err).Error("Failed to check username")
		respondWithError(w, http.StatusInternalServerError, "CHECK_FAILED", "Failed to check username")
		return
	}
	if !free {
		respondWithError(w, http.StatusConflict, "USERNAME_TAKEN", "Username already exists")
		return
	}

	respondWithJSON(w, http.StatusOK, models.Envelope[any]{Message: "Username is available"})
}

// CheckEmail answers 200 when the email address is free and 409 when taken.
func (h *UserHandlers) CheckEmail(w http.ResponseWriter, r *http.Request) {
	var req models.CheckEmailRequest
	if !decodeRequest(w, r, h.validate, &req) {
		return
	}

	free, err := h.accounts.EmailAvailable(r.Context(), req.EmailAddress)
	if err != nil {
		h.logger.WithError(err).Error("Failed to check email address")
		respondWithError(w, http.StatusInternalServerError, "CHECK_FAILED", "Failed to check email address")
		return
	}
	if !free {
		respondWithError(w, http.StatusConflict, "EMAIL_TAKEN", "Email address already exists")
		return
	}

	respondWithJSON(w, http.StatusOK, models.Envelope[any]{Message: "Email address is available"})
}

func (h *UserHandlers) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token")
		return
	}

	user, err := h.accounts.GetUser(r.Context(), claims.Subject)
	if errors.Is(err, repository.ErrUserNotFound) {
		respondWithError(w, http.StatusNotFound, "USER_NOT_FOUND", "User not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to load user")
		respondWithError(w, http.StatusInternalServerError, "USER_LOOKUP_FAILED", "Failed to load user")
		return
	}

	respondWithJSON(w, http.StatusOK, models.Envelope[models.UserProfile]{
		Message: "OK",
		Data:    user.Profile(),
	})
}
