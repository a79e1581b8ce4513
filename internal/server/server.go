package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/gorm"

	"atmoview.dev/telemetry/internal/access"
	"atmoview.dev/telemetry/internal/dashboard"
	"atmoview.dev/telemetry/internal/ingest"
	"atmoview.dev/telemetry/internal/registry"
	"atmoview.dev/telemetry/internal/storage"
	"atmoview.dev/telemetry/internal/telemetry"
	"atmoview.dev/telemetry/pkg/metrics"
)

// Server wires the database, telemetry store, registry, access
// resolver, fan-out engine, MQ consumer, retention janitor and the
// HTTP API into one process.
type Server struct {
	logger     *slog.Logger
	db         *gorm.DB
	consumer   *ingest.Consumer
	httpServer *http.Server
	config     *ServerConfig
}

// ServerConfig holds the configuration for the Server.
type ServerConfig struct {
	Logger *slog.Logger

	// Database configuration
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBPort     int

	// RabbitMQ configuration
	RabbitMQURL string
	QueueName   string

	// HTTP configuration
	HTTPPort int

	// Telemetry store configuration
	Retention     time.Duration
	SweepInterval time.Duration

	// AdminUser is the account automatically granted each new device.
	AdminUser string
}

// NewServer creates a new Server instance.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.RabbitMQURL == "" {
		return nil, errors.New("rabbitmq URL cannot be empty")
	}

	if cfg.QueueName == "" {
		return nil, errors.New("queue name cannot be empty")
	}

	if cfg.DBHost == "" {
		return nil, errors.New("database host cannot be empty")
	}

	if cfg.DBPort <= 0 {
		return nil, errors.New("database port must be positive")
	}

	if cfg.DBUser == "" {
		return nil, errors.New("database user cannot be empty")
	}

	if cfg.DBName == "" {
		return nil, errors.New("database name cannot be empty")
	}

	if cfg.HTTPPort <= 0 {
		return nil, errors.New("HTTP port must be positive")
	}

	return &Server{
		logger: cfg.Logger,
		config: cfg,
	}, nil
}

// Run starts the server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting server")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	// Initialize database
	db, err := storage.NewDB(&storage.DBConfig{
		Host:     s.config.DBHost,
		Port:     s.config.DBPort,
		User:     s.config.DBUser,
		Password: s.config.DBPassword,
		DBName:   s.config.DBName,
		SSLMode:  s.config.DBSSLMode,
		Logger:   s.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	s.db = db

	s.logger.Info("database initialized successfully")

	// Telemetry store and per-device partitions
	storeMetrics := metrics.NewStoreMetrics("atmoview")
	store, err := telemetry.NewStore(&telemetry.StoreConfig{
		Logger:    s.logger,
		DB:        db,
		Retention: s.config.Retention,
		Metrics:   storeMetrics,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry store: %w", err)
	}

	// Device registry
	reg, err := registry.New(s.logger, db, store)
	if err != nil {
		return fmt.Errorf("failed to initialize registry: %w", err)
	}

	// Access resolver
	resolver, err := access.NewResolver(s.logger, db)
	if err != nil {
		return fmt.Errorf("failed to initialize access resolver: %w", err)
	}

	// Query fan-out engine
	engine, err := dashboard.NewEngine(&dashboard.EngineConfig{
		Logger:  s.logger,
		Access:  resolver,
		Devices: reg,
		Samples: store,
		Metrics: metrics.NewQueryMetrics("atmoview"),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize dashboard engine: %w", err)
	}

	// MQ consumer
	consumer, err := ingest.NewConsumer(&ingest.ConsumerConfig{
		Logger:      s.logger,
		Store:       store,
		RabbitMQURL: s.config.RabbitMQURL,
		QueueName:   s.config.QueueName,
		Metrics:     metrics.NewConsumerMetrics("atmoview"),
		MQMetrics:   metrics.NewMQMetrics("atmoview"),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize consumer: %w", err)
	}
	s.consumer = consumer

	if err := s.consumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	// Retention janitor
	janitor, err := telemetry.NewJanitor(&telemetry.JanitorConfig{
		Logger:   s.logger,
		Store:    store,
		Source:   reg,
		Interval: s.config.SweepInterval,
		Metrics:  storeMetrics,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize janitor: %w", err)
	}
	go janitor.Run(ctx)

	// HTTP API
	api, err := NewAPI(&APIConfig{
		Logger:    s.logger,
		Dashboard: engine,
		Registrar: reg,
		Store:     store,
		Granter:   resolver,
		AdminUser: s.config.AdminUser,
		Metrics:   metrics.NewAPIMetrics("atmoview"),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize API: %w", err)
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.HTTPPort),
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("starting HTTP server", "address", s.httpServer.Addr)

	httpErr := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- fmt.Errorf("HTTP server error: %w", err)
		}
		close(httpErr)
	}()

	s.logger.Info("server started successfully")

	// Wait for shutdown signal or HTTP error
	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case <-ctx.Done():
		s.logger.Info("context canceled")
	case err := <-httpErr:
		if err != nil {
			s.logger.Error("HTTP server error", "error", err)
			cancel()
			return err
		}
	}

	return s.Shutdown()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down server")

	var shutdownErr error

	// Shutdown HTTP server
	if s.httpServer != nil {
		s.logger.Info("stopping HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("failed to shutdown HTTP server", "error", err)
			shutdownErr = fmt.Errorf("HTTP server shutdown error: %w", err)
		}
		s.logger.Info("HTTP server stopped")
	}

	// Stop consumer
	if s.consumer != nil {
		s.logger.Info("stopping consumer")
		if err := s.consumer.Stop(); err != nil {
			s.logger.Error("failed to stop consumer", "error", err)
			if shutdownErr != nil {
				shutdownErr = fmt.Errorf("%w; consumer shutdown error: %w", shutdownErr, err)
			} else {
				shutdownErr = fmt.Errorf("consumer shutdown error: %w", err)
			}
		}
	}

	// Close database
	if s.db != nil {
		if err := storage.CloseDB(s.db, s.logger); err != nil {
			s.logger.Error("failed to close database", "error", err)
			if shutdownErr != nil {
				shutdownErr = fmt.Errorf("%w; database close error: %w", shutdownErr, err)
			} else {
				shutdownErr = fmt.Errorf("database close error: %w", err)
			}
		}
	}

	if shutdownErr != nil {
		s.logger.Error("server shutdown completed with errors", "error", shutdownErr)
		return shutdownErr
	}

	s.logger.Info("server shutdown completed successfully")
	return nil
}
