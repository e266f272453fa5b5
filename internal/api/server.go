// Package api exposes the manual ingestion trigger, CSV uploads and
// balance refreshes over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"fjacquet/networth-sync/internal/logging"
)

// DefaultMaxUploadBytes caps CSV uploads.
const DefaultMaxUploadBytes = 5 << 20

// Response is the body of every API answer.
type Response struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Server holds the HTTP handlers.
type Server struct {
	runner         PassRunner
	importer       CSVImporter
	observer       Observer
	auth           *AuthMiddleware
	maxUploadBytes int64
	logger         logging.Logger
}

// NewServer creates a Server. maxUploadBytes <= 0 means DefaultMaxUploadBytes.
func NewServer(runner PassRunner, importer CSVImporter, observer Observer, authMW *AuthMiddleware, maxUploadBytes int64, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &Server{
		runner:         runner,
		importer:       importer,
		observer:       observer,
		auth:           authMW,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Response{Success: true, Message: "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(s.auth.RequireAuth)

		r.Post("/ingest", s.handleIngest)
		r.Route("/accounts/{accountID}", func(r chi.Router) {
			r.Post("/import", s.handleImport)
			r.Post("/observations", s.handleObservation)
		})
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.WithFields(
			logging.Field{Key: "method", Value: r.Method},
			logging.Field{Key: "path", Value: r.URL.Path},
			logging.Field{Key: "status", Value: ww.Status()},
			logging.Field{Key: "request_id", Value: middleware.GetReqID(r.Context())},
			logging.Field{Key: logging.FieldDuration, Value: time.Since(started).Milliseconds()},
		).Debug("HTTP request")
	})
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func writeJSON(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
