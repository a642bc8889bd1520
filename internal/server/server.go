// Package server exposes the receipt ledger and processing queue over
// HTTP. It is the application layer a capture UI talks to; the core
// pipeline has no dependency on it.
package server

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/checkstand/checkstand/internal/llm"
	"github.com/checkstand/checkstand/internal/processing"
	"github.com/checkstand/checkstand/internal/receipt"
)

// BasicAuth holds optional basic authentication credentials. Empty
// credentials disable auth.
type BasicAuth struct {
	Username string
	Password string
}

// Server handles HTTP requests for the ledger.
type Server struct {
	queue     *processing.Queue
	store     receipt.Store
	session   *llm.SessionManager
	status    *llm.StatusTracker
	captures  receipt.CaptureStorage
	basicAuth BasicAuth
	mux       *http.ServeMux
}

// NewServer creates a Server with a default mux.
func NewServer(queue *processing.Queue, store receipt.Store, session *llm.SessionManager, status *llm.StatusTracker, captures receipt.CaptureStorage, basicAuth BasicAuth) *Server {
	s := &Server{
		queue:     queue,
		store:     store,
		session:   session,
		status:    status,
		captures:  captures,
		basicAuth: basicAuth,
		mux:       http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	return credentials[0] == s.basicAuth.Username && credentials[1] == s.basicAuth.Password
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			setCORSHeaders(w)
			w.Header().Set("WWW-Authenticate", `Basic realm="Checkstand"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// registerRoutes registers API routes, most specific first.
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/receipts/export", s.requireAuth(s.handleExportReceipts))
	s.mux.HandleFunc("DELETE /api/receipts/{id}", s.requireAuth(s.handleDeleteReceipt))
	s.mux.HandleFunc("GET /api/receipts", s.requireAuth(s.handleListReceipts))
	s.mux.HandleFunc("POST /api/receipts", s.requireAuth(s.handleUploadReceipt))
	s.mux.HandleFunc("DELETE /api/receipts", s.requireAuth(s.handleDeleteAllReceipts))
	s.mux.HandleFunc("POST /api/receipts/text", s.requireAuth(s.handleSubmitText))

	s.mux.HandleFunc("GET /api/queue", s.requireAuth(s.handleQueueStatus))
	s.mux.HandleFunc("GET /api/model", s.requireAuth(s.handleModelStatus))
}

// Start runs the HTTP server on addr, blocking until it exits.
func (s *Server) Start(addr string) error {
	slog.Info("starting server", "address", addr)
	return http.ListenAndServe(addr, s.corsMiddleware(s.mux))
}

// ServeHTTP implements http.Handler for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
