package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/lifeflow/lifeflow/internal/middleware"
	"github.com/sirupsen/logrus"
)

func NewRouter(
	authHandlers *AuthHandlers,
	userHandlers *UserHandlers,
	authMiddleware *middleware.AuthMiddleware,
	allowedOrigin string,
	logger *logrus.Logger,
) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.CORSMiddleware(allowedOrigin))
	router.Use(middleware.LoggingMiddleware(logger))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods("GET", "OPTIONS")

	api := router.PathPrefix("/api").Subrouter()

	auth := api.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/sign-in", authHandlers.SignIn).Methods("POST", "OPTIONS")
	auth.HandleFunc("/sign-up", authHandlers.SignUp).Methods("POST", "OPTIONS")
	auth.HandleFunc("/refresh", authHandlers.Refresh).Methods("GET", "OPTIONS")
	auth.HandleFunc("/sign-out", authHandlers.SignOut).Methods("POST", "OPTIONS")

	users := api.PathPrefix("/users").Subrouter()
	users.HandleFunc("/check-username", userHandlers.CheckUsername).Methods("POST", "OPTIONS")
	users.HandleFunc("/check-email", userHandlers.CheckEmail).Methods("POST", "OPTIONS")

	users.Handle("/me", authMiddleware.RequireAuth(http.HandlerFunc(userHandlers.Me))).Methods("GET", "OPTIONS")

	return router
}
