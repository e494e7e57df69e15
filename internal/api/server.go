package api

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/sensorhub-core/internal/audit"
	"github.com/nerrad567/sensorhub-core/internal/infrastructure/config"
	"github.com/nerrad567/sensorhub-core/internal/infrastructure/logging"
	"github.com/nerrad567/sensorhub-core/internal/infrastructure/metrics"
	"github.com/nerrad567/sensorhub-core/internal/ingest"
	"github.com/nerrad567/sensorhub-core/internal/query"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Ingester stores a stream of parsed readings. *ingest.Writer satisfies it.
type Ingester interface {
	Ingest(ctx context.Context, tuples iter.Seq2[ingest.RawTuple, error]) (ingest.Result, error)
}

// Querier answers read requests. *query.Service satisfies it.
type Querier interface {
	Devices(ctx context.Context) ([]string, error)
	Categories(ctx context.Context, deviceID string) ([]string, error)
	Series(ctx context.Context, deviceID, category string) (query.Table, error)
}

// HealthChecker is implemented by every component reported on /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Metrics config.MetricsConfig
	Logger  *logging.Logger
	Parser  *ingest.Parser
	Writer  Ingester
	Query   Querier

	// Recorder receives HTTP and ingest metrics. Optional.
	Recorder *metrics.Metrics

	// Gatherer backs the metrics endpoint. Nil uses the default registry.
	Gatherer prometheus.Gatherer

	// Health maps a component name to its checker. Optional.
	Health map[string]HealthChecker

	// History records every ingest call and backs /ingests. Optional.
	History audit.Repository

	Version string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes and middleware.
// The server is created with New() and started with Start().
type Server struct {
	cfg      config.APIConfig
	metrics  config.MetricsConfig
	logger   *logging.Logger
	parser   *ingest.Parser
	writer   Ingester
	query    Querier
	recorder *metrics.Metrics
	gatherer prometheus.Gatherer
	health   map[string]HealthChecker
	history  audit.Repository
	version  string
	handler  http.Handler
	server   *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (logger, parser, writer, query service)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Parser == nil {
		return nil, fmt.Errorf("parser is required")
	}
	if deps.Writer == nil {
		return nil, fmt.Errorf("ingest writer is required")
	}
	if deps.Query == nil {
		return nil, fmt.Errorf("query service is required")
	}

	s := &Server{
		cfg:      deps.Config,
		metrics:  deps.Metrics,
		logger:   deps.Logger.Component("api"),
		parser:   deps.Parser,
		writer:   deps.Writer,
		query:    deps.Query,
		recorder: deps.Recorder,
		gatherer: deps.Gatherer,
		health:   deps.Health,
		history:  deps.History,
		version:  deps.Version,
	}
	if s.cfg.MaxUploadBytes <= 0 {
		s.cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	s.handler = s.buildRouter()

	return s, nil
}

// Handler returns the server's routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
//
// Returns:
//   - error: Always nil; listener failures are logged
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.handler,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
