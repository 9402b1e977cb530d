package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRoutes configures all HTTP routes for the API server
func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	// Health check endpoint
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	// API v1 endpoints
	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/account", s.handleAccount).Methods(http.MethodGet)
	v1.HandleFunc("/account/deploy", s.handleDeploy).Methods(http.MethodPost)
	v1.HandleFunc("/session-keys", s.handleListSessionKeys).Methods(http.MethodGet)
	v1.HandleFunc("/session-keys", s.handleIssueSessionKey).Methods(http.MethodPost)
	v1.HandleFunc("/session-keys/{id}", s.handleRevokeSessionKey).Methods(http.MethodDelete)
	v1.HandleFunc("/execute", s.handleExecute).Methods(http.MethodPost)
	v1.HandleFunc("/executions", s.handleExecutions).Methods(http.MethodGet)
	v1.HandleFunc("/preferred-wallet", s.handleGetPreferredWallet).Methods(http.MethodGet)
	v1.HandleFunc("/preferred-wallet", s.handleSetPreferredWallet).Methods(http.MethodPut)

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("api request")
		next.ServeHTTP(w, r)
	})
}
