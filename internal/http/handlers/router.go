package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"finvault/internal/http/middleware"
)

// NewRouter builds the full route table. Portfolio routes and the stateful
// auth routes sit behind the bearer middleware; register/login/refresh are
// reachable without credentials.
func NewRouter(
	logger *slog.Logger,
	verifier middleware.TokenVerifier,
	authHandler *AuthHandler,
	portfolioHandler *PortfolioHandler,
) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(logger))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "OK")
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/auth/register", authHandler.Register).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", authHandler.Login).Methods(http.MethodPost)
	api.HandleFunc("/auth/refresh", authHandler.Refresh).Methods(http.MethodPost)

	protected := api.NewRoute().Subrouter()
	protected.Use(middleware.Authenticate(verifier, func(w http.ResponseWriter, message string) {
		writeError(w, http.StatusUnauthorized, message)
	}))

	protected.HandleFunc("/auth/logout", authHandler.Logout).Methods(http.MethodPost)
	protected.HandleFunc("/auth/me", authHandler.Me).Methods(http.MethodGet)
	protected.HandleFunc("/portfolio", portfolioHandler.Submit).Methods(http.MethodPost)
	protected.HandleFunc("/portfolio", portfolioHandler.Fetch).Methods(http.MethodGet)

	return r
}
