package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/scorimmo/email-verifier/internal/adapters/stream"
	"github.com/scorimmo/email-verifier/internal/core"
	"go.uber.org/zap"
)

// Server exposes the verification pipeline over HTTP
type Server struct {
	srv               *http.Server
	service           *core.VerificationService
	logger            *zap.Logger
	maxStreamDuration time.Duration
}

// NewServer creates the HTTP server and its routes
func NewServer(listenAddr string, maxStreamDuration time.Duration, service *core.VerificationService, logger *zap.Logger) *Server {
	s := &Server{
		service:           service,
		logger:            logger,
		maxStreamDuration: maxStreamDuration,
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/verify", s.handleVerify)
	r.Get("/healthz", s.handleHealth)

	s.srv = &http.Server{
		Addr:    listenAddr,
		Handler: r,
	}
	return s
}

// Start begins serving; it blocks until the listener fails or is shut down
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", zap.String("address", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// handleVerify streams the verification of one address as server-sent
// events. The request context bounds the whole pipeline, so a client
// disconnect cancels any in-flight probe or polling loop.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if query.Get("stream") != "1" {
		writeJSONError(w, http.StatusBadRequest, "streaming mode required, pass stream=1")
		return
	}
	email := query.Get("email")

	writer, err := stream.NewWriter(w, s.logger)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported by this connection")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.maxStreamDuration)
	defer cancel()

	for event := range s.service.Verify(ctx, email) {
		if err := writer.Send(event); err != nil {
			s.logger.Debug("Client went away mid-stream", zap.Error(err))
			cancel()
			break
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
