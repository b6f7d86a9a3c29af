package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Stats reports live counters for the health payload.
type Stats interface {
	Sessions() int
	ScheduledJobs() int
}

type status struct {
	Status        string `json:"status"`
	Sessions      int    `json:"sessions"`
	ScheduledJobs int    `json:"scheduled_jobs"`
}

func NewRouter(stats Stats, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		requestLogger(logger),
	)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		body := status{Status: "ok"}
		if stats != nil {
			body.Sessions = stats.Sessions()
			body.ScheduledJobs = stats.ScheduledJobs()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	})
	return r
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("took", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}

// Server wraps http.Server with start and graceful shutdown.
type Server struct {
	server *http.Server
}

func NewServer(port string, handler http.Handler) *Server {
	return &Server{server: &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}}
}

// Start serves until Shutdown. A clean shutdown returns nil.
func (s *Server) Start() error {
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
