// Package authapi exposes the account endpoints of the Life Flow API as
// typed calls. Successful sign-in and sign-up store the returned access
// token; refreshes go through the shared Coordinator so at most one refresh
// call is outstanding.
package authapi

import (
	"context"
	"errors"
	"fmt"

	"github.com/lifeflow/lifeflow/internal/config"
	"github.com/lifeflow/lifeflow/internal/httpclient"
	"github.com/lifeflow/lifeflow/internal/models"
	"github.com/lifeflow/lifeflow/internal/refresh"
	"github.com/lifeflow/lifeflow/internal/tokenstore"
	"github.com/sirupsen/logrus"
)

const (
	UserPath = "/api/users"
	AuthPath = "/api/auth"

	SignInPath        = AuthPath + "/sign-in"
	SignUpPath        = AuthPath + "/sign-up"
	RefreshPath       = AuthPath + "/refresh"
	SignOutPath       = AuthPath + "/sign-out"
	CheckUsernamePath = UserPath + "/check-username"
	CheckEmailPath    = UserPath + "/check-email"
	MePath            = UserPath + "/me"
)

type API struct {
	client      *httpclient.Client
	store       tokenstore.Store
	coordinator *refresh.Coordinator
	logger      *logrus.Logger
}

// New binds the API to client and installs its refresh call on the client.
func New(
	client *httpclient.Client,
	store tokenstore.Store,
	coordinator *refresh.Coordinator,
	logger *logrus.Logger,
) *API {
	a := &API{
		client:      client,
		store:       store,
		coordinator: coordinator,
		logger:      logger,
	}
	client.SetRefresher(a.fetchAccessToken)
	return a
}

// NewFromConfig wires a memory token store, a coordinator and an HTTP client
// into a ready API.
func NewFromConfig(cfg *config.ClientConfig, logger *logrus.Logger, opts ...httpclient.Option) (*API, error) {
	store := tokenstore.NewMemoryStore()
	coordinator := refresh.NewCoordinator(store, logger, refresh.WithTimeout(cfg.RequestTimeout))

	client, err := httpclient.New(cfg, store, coordinator, logger,
		append([]httpclient.Option{httpclient.WithRefreshPath(RefreshPath)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	return New(client, store, coordinator, logger), nil
}

func (a *API) Client() *httpclient.Client {
	return a.client
}

func (a *API) Store() tokenstore.Store {
	return a.store
}

func (a *API) SignIn(ctx context.Context, req models.SignInRequest) (*models.AuthResponse, error) {
	var res models.AuthResponse
	if err := a.client.Post(ctx, SignInPath, req, &res); err != nil {
		return nil, err
	}
	a.storeToken(res.Data.AccessToken)
	return &res, nil
}

func (a *API) SignUp(ctx context.Context, req models.SignUpRequest) (*models.AuthResponse, error) {
	var res models.AuthResponse
	if err := a.client.Post(ctx, SignUpPath, req, &res); err != nil {
		return nil, err
	}
	a.storeToken(res.Data.AccessToken)
	return &res, nil
}

// Refresh exchanges the refresh cookie for a new access token and stores it.
// A failed refresh leaves the store empty.
func (a *API) Refresh(ctx context.Context) (string, error) {
	return a.coordinator.Refresh(ctx, a.fetchAccessToken)
}

// SignOut asks the server to end the refresh session and forgets the access
// token. The local token is cleared even when the server call fails.
func (a *API) SignOut(ctx context.Context) error {
	defer a.store.Clear()
	if err := a.client.Post(ctx, SignOutPath, nil, nil); err != nil {
		a.logger.WithError(err).Debug("Server sign-out failed")
		return err
	}
	return nil
}

// CheckUsername reports whether username is free. The server answering with
// an error status means the name is taken; other failures are returned.
func (a *API) CheckUsername(ctx context.Context, username string) (bool, error) {
	return availability(a.client.Post(ctx, CheckUsernamePath, models.CheckUsernameRequest{Username: username}, nil))
}

// CheckEmail reports whether email is free, with the same rules as
// CheckUsername.
func (a *API) CheckEmail(ctx context.Context, email string) (bool, error) {
	return availability(a.client.Post(ctx, CheckEmailPath, models.CheckEmailRequest{EmailAddress: email}, nil))
}

// Me returns the profile of the signed-in user.
func (a *API) Me(ctx context.Context) (*models.UserProfile, error) {
	var res models.Envelope[models.UserProfile]
	if err := a.client.Get(ctx, MePath, &res); err != nil {
		return nil, err
	}
	return &res.Data, nil
}

func (a *API) fetchAccessToken(ctx context.Context) (string, error) {
	var res models.AuthResponse
	if err := a.client.Get(ctx, RefreshPath, &res); err != nil {
		return "", err
	}
	return res.Data.AccessToken, nil
}

func (a *API) storeToken(token string) {
	if token == "" {
		a.logger.Warn("Auth response carried no access token")
		return
	}
	a.store.Set(token)
}

func availability(err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	var apiErr *httpclient.Error
	if errors.As(err, &apiErr) && apiErr.HasStatus() {
		return false, nil
	}
	return false, err
}
