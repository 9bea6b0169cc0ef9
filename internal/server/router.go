package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/afroash/ledger-monitor/internal/observability"
)

// NewRouter wires the API, the stream and the metrics endpoint.
func NewRouter(api *APIHandler, stream *Stream, metrics *observability.Metrics, logger zerolog.Logger, allowedOrigins []string) http.Handler {
	r := mux.NewRouter()

	route := func(path string, h http.HandlerFunc, methods ...string) {
		r.Handle(path, metrics.WrapHandler(path, h)).Methods(methods...)
	}

	route("/health", api.HandleHealth, http.MethodGet)
	route("/api/snapshot", api.HandleSnapshot, http.MethodGet)
	route("/api/refresh", api.HandleRefresh, http.MethodPost)
	route("/api/connect", api.HandleConnect, http.MethodPost)
	route("/api/setpoints/edit", api.HandleStageSetpoint, http.MethodPost)
	route("/api/setpoints/commit", api.HandleCommitSetpoints, http.MethodPost)
	route("/api/refreshes", api.HandleRefreshes, http.MethodGet)
	route("/api/refreshes/stats", api.HandleJournalStats, http.MethodGet)
	route("/api/clients", stream.HandleClients, http.MethodGet)

	// hijacked connections bypass the metrics recorder
	r.Handle("/stream", stream).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	var h http.Handler = r
	if len(allowedOrigins) > 0 {
		h = handlers.CORS(
			handlers.AllowedOrigins(allowedOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
		)(h)
	}
	return handlers.LoggingHandler(logger, h)
}

// Server is the HTTP listener
type Server struct {
	http   *http.Server
	logger zerolog.Logger
}

// ServerConfig holds listener settings
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// NewServer creates a server for handler
func NewServer(cfg ServerConfig, handler http.Handler, logger zerolog.Logger) *Server {
	return &Server{
		http: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		logger: logger,
	}
}

// Addr is the listen address
func (s *Server) Addr() string {
	return s.http.Addr
}

// Start blocks serving until Shutdown
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.http.Addr).Msg("HTTP server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains connections
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
