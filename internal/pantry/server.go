package pantry

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// Server handles HTTP requests for the scan pipeline
type Server struct {
	service   *Service
	basicAuth BasicAuth
	mux       *http.ServeMux
	upgrader  websocket.Upgrader
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a new Server with default mux
func NewServer(service *Service, basicAuth BasicAuth) *Server {
	return NewServerWithMux(service, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	s := &Server{
		service:   service,
		basicAuth: basicAuth,
		mux:       mux,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The native wrappers connect from app origins
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
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

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			setCORSHeaders(w)
			w.Header().Set("WWW-Authenticate", `Basic realm="PantryScan"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all API routes on the server's mux
// Routes must be registered from most specific to least specific to avoid conflicts
func (s *Server) registerRoutes() {
	// Scan pipeline
	s.mux.HandleFunc("POST /api/scan/sessions/{id}/frames", s.requireAuth(s.handlePushFrame))
	s.mux.HandleFunc("DELETE /api/scan/sessions/{id}", s.requireAuth(s.handleStopSession))
	s.mux.HandleFunc("POST /api/scan/sessions", s.requireAuth(s.handleStartSession))
	s.mux.HandleFunc("POST /api/scan/photo", s.requireAuth(s.handleScanPhoto))
	s.mux.HandleFunc("POST /api/scan/manual", s.requireAuth(s.handleManualBarcode))
	s.mux.HandleFunc("GET /api/scan/stream", s.requireAuth(s.handleStream))

	// Draft
	s.mux.HandleFunc("POST /api/draft/submit", s.requireAuth(s.handleSubmitDraft))
	s.mux.HandleFunc("GET /api/draft", s.requireAuth(s.handleGetDraft))
	s.mux.HandleFunc("PATCH /api/draft", s.requireAuth(s.handleEditDraft))
	s.mux.HandleFunc("DELETE /api/draft", s.requireAuth(s.handleResetDraft))

	// Scan history
	s.mux.HandleFunc("GET /api/history/{id}/image", s.requireAuth(s.handleHistorySnapshot))
	s.mux.HandleFunc("GET /api/history/{id}", s.requireAuth(s.handleHistoryEntry))
	s.mux.HandleFunc("GET /api/history", s.requireAuth(s.handleHistory))

	s.mux.HandleFunc("GET /health", s.handleHealth)
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	// Wrap the mux with CORS middleware to handle all requests including OPTIONS
	return http.ListenAndServe(addr, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
			s.mux.ServeHTTP(w, r)
		})(w, r)
	}))
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
