package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lifeflow/lifeflow/internal/authapi"
	"github.com/lifeflow/lifeflow/internal/config"
	"github.com/lifeflow/lifeflow/internal/httpclient"
	"github.com/lifeflow/lifeflow/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// stubServer treats "taken" and "taken@example.com" as registered.
func stubServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(authapi.CheckUsernamePath, func(w http.ResponseWriter, r *http.Request) {
		var req models.CheckUsernameRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Username == "taken" {
			writeJSON(w, http.StatusConflict, models.ErrorResponse{Message: "Username already exists", Code: "USERNAME_TAKEN"})
			return
		}
		writeJSON(w, http.StatusOK, models.Envelope[any]{Message: "Username is available"})
	})
	mux.HandleFunc(authapi.CheckEmailPath, func(w http.ResponseWriter, r *http.Request) {
		var req models.CheckEmailRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.EmailAddress == "taken@example.com" {
			writeJSON(w, http.StatusConflict, models.ErrorResponse{Message: "Email address already exists", Code: "EMAIL_TAKEN"})
			return
		}
		writeJSON(w, http.StatusOK, models.Envelope[any]{Message: "Email address is available"})
	})
	mux.HandleFunc(authapi.SignUpPath, func(w http.ResponseWriter, r *http.Request) {
		var req models.SignUpRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		writeJSON(w, http.StatusCreated, models.AuthResponse{
			Message: "Account created successfully",
			Data: models.AuthData{
				AccessToken: "T1",
				User:        &models.UserProfile{Username: req.Username, EmailAddress: req.EmailAddress},
			},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestEnv(t *testing.T, srv *httptest.Server, stdin string) (*env, *bytes.Buffer) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := &config.ClientConfig{
		APIURL:         srv.URL,
		RequestTimeout: 5 * time.Second,
		CheckDebounce:  10 * time.Millisecond,
	}
	api, err := authapi.NewFromConfig(cfg, logger)
	require.NoError(t, err)

	var out bytes.Buffer
	return &env{cfg: cfg, api: api, logger: logger, stdin: strings.NewReader(stdin), stdout: &out}, &out
}

func TestCheckCommands(t *testing.T) {
	srv := stubServer(t)
	e, out := newTestEnv(t, srv, "")
	ctx := context.Background()

	require.NoError(t, checkUsername(ctx, e, []string{"taken"}))
	require.NoError(t, checkUsername(ctx, e, []string{"fresh"}))
	require.NoError(t, checkEmail(ctx, e, []string{"new@example.com"}))

	assert.Equal(t, "taken: taken\nfresh: available\nnew@example.com: available\n", out.String())
	assert.Error(t, checkUsername(ctx, e, nil))
}

func TestSignUpCommand(t *testing.T) {
	srv := stubServer(t)
	e, out := newTestEnv(t, srv, "")

	err := signUp(context.Background(), e, []string{
		"-first", "Ann", "-last", "Lee", "-dob", "1990-05-01", "-gender", "female",
		"-username", "annlee", "-email", "ann@example.com", "-password", "password1",
	})
	require.NoError(t, err)

	var res models.AuthResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, "annlee", res.Data.User.Username)
	tok, ok := e.api.Store().Get()
	assert.True(t, ok)
	assert.Equal(t, "T1", tok)
}

func TestSignUpCommand_StopsAtFailingStep(t *testing.T) {
	srv := stubServer(t)
	e, _ := newTestEnv(t, srv, "")

	err := signUp(context.Background(), e, []string{
		"-first", "Ann", "-last", "Lee", "-dob", "1990-05-01", "-gender", "OTHER",
		"-username", "taken", "-email", "ann@example.com", "-password", "password1",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 4 of 5")
	assert.Contains(t, describe(err), "Username already exists")
}

func TestWatchCommand(t *testing.T) {
	srv := stubServer(t)
	e, out := newTestEnv(t, srv, "ta\ntaken\n")

	require.NoError(t, watch("username")(context.Background(), e, nil))

	assert.Equal(t, "checking username...\nusername already exists\n", out.String())
}

func TestDescribe(t *testing.T) {
	apiErr := &httpclient.Error{Status: http.StatusConflict, Message: "Email address already exists", Code: "EMAIL_TAKEN"}
	assert.Equal(t, "Email address already exists (EMAIL_TAKEN, status 409)", describe(apiErr))
	assert.Equal(t, "plain", describe(errors.New("plain")))
}
