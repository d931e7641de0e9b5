// SPDX-License-Identifier: AGPL-3.0-only
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ksr-verse/MCP/internal/agent"
	"github.com/ksr-verse/MCP/internal/config"
	"github.com/ksr-verse/MCP/internal/logging"
	"github.com/ksr-verse/MCP/internal/model"
	"github.com/ksr-verse/MCP/internal/retention"
	"github.com/ksr-verse/MCP/internal/sailpoint"
	"github.com/ksr-verse/MCP/internal/server"
	"github.com/ksr-verse/MCP/internal/singleton"
	"github.com/ksr-verse/MCP/internal/store"
	"github.com/ksr-verse/MCP/internal/tools"
)

var (
	address       = flag.String("address", "", "The address to bind the server to")
	port          = flag.Int("port", 0, "The port to bind the server to")
	logLevel      = flag.String("log-level", "", "Logging level: debug, info, warn, error, fatal")
	logFile       = flag.String("log-file", "", "Log file path (default: stdout)")
	version       = flag.Bool("version", false, "Show version information and exit")
	aiProvider    = flag.String("ai-provider", "", "AI provider: openai or anthropic (default: openai)")
	aiBaseURL     = flag.String("ai-base-url", "", "Custom base URL for OpenAI-compatible endpoints (e.g. Groq, Ollama, vLLM)")
	aiModel       = flag.String("ai-model", "", "Chat model to use")
	sailpointURL  = flag.String("sailpoint-url", "", "SailPoint IdentityIQ base URL")
	dbPath        = flag.String("db-path", "", "Path to SQLite database for the invocation audit trail (default: ~/.supportbot/audit.db)")
	retentionDays = flag.Int("audit-retention-days", -1, "Days to keep audit records, 0 disables pruning (default: 30)")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg := loadConfig()

	// Show version and exit if requested
	if *version {
		log.Printf("%s version %s", cfg.Server.Name, cfg.Server.Version)
		os.Exit(0)
	}

	// Create a context that will be cancelled on interrupt signal
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the application
	app, err := createApp(cfg)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	// Start the application
	if err := app.Start(ctx); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	// Wait for termination signal or server exit
	waitForShutdown(cancel, app)
}

// loadConfig loads configuration from .env, environment and command line flags
func loadConfig() *config.Config {
	// Load .env before reading the environment
	config.LoadDotEnv()

	// Start with defaults
	cfg := config.DefaultConfig()

	// Override with environment variables
	config.FromEnv(cfg)

	// Override with command-line flags
	applyCommandLineFlagsToConfig(cfg)

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	return cfg
}

// applyCommandLineFlagsToConfig applies command line flags to the configuration
func applyCommandLineFlagsToConfig(cfg *config.Config) {
	if *address != "" {
		cfg.Server.Address = *address
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFile != "" {
		cfg.Logging.FilePath = *logFile
	}
	if *aiProvider != "" {
		cfg.AI.Provider = *aiProvider
	}
	if *aiBaseURL != "" {
		cfg.AI.BaseURL = *aiBaseURL
	}
	if *aiModel != "" {
		cfg.AI.Model = *aiModel
	}
	if *sailpointURL != "" {
		cfg.SailPoint.BaseURL = *sailpointURL
	}
	if *dbPath != "" {
		cfg.Audit.DBPath = *dbPath
	}
	if *retentionDays >= 0 {
		cfg.Audit.RetentionDays = *retentionDays
	}
}

// newLogger builds the process logger from the logging configuration.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	if cfg.Logging.FilePath != "" {
		return logging.FileLogger(cfg.Logging.FilePath, logging.ParseLevel(cfg.Logging.Level))
	}
	return logging.New(logging.Options{
		Level: logging.ParseLevel(cfg.Logging.Level),
	}), nil
}

// Application represents the running application
type Application struct {
	auditStore model.AuditStore
	auditLock  *singleton.Lock
	sweeper    *retention.Sweeper
	server     *server.Server
	logger     *logging.Logger
}

// createApp creates a new application instance
func createApp(cfg *config.Config) (*Application, error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	logging.SetDefaultLogger(logger)

	// Only the primary instance owns the audit database. A secondary
	// instance still serves chat, just without the audit trail.
	var (
		auditStore model.AuditStore
		auditLock  *singleton.Lock
	)
	lock, isPrimary, err := singleton.TryAcquire(cfg.Audit.DBPath)
	if err != nil {
		return nil, fmt.Errorf("acquire audit lock: %w", err)
	}
	if isPrimary {
		auditLock = lock
		auditStore, err = store.NewSQLiteStore(cfg.Audit.DBPath)
		if err != nil {
			_ = lock.Release()
			return nil, fmt.Errorf("create audit store: %w", err)
		}
	} else {
		logger.Warnf("Audit database %s is locked by another instance; running without the audit trail", cfg.Audit.DBPath)
	}

	// Create components
	spClient := sailpoint.NewClient(&cfg.SailPoint, logger)
	if !spClient.Configured() {
		logger.Warnf("SailPoint credentials not configured; identity operations return placeholders")
	}
	registry := tools.NewRegistry(spClient, auditStore, logger)

	orchestrator, err := agent.NewOrchestrator(cfg, registry, logger)
	if err != nil {
		return nil, err
	}

	srv, err := server.NewServer(cfg, orchestrator, registry, logger)
	if err != nil {
		return nil, err
	}

	return &Application{
		auditStore: auditStore,
		auditLock:  auditLock,
		sweeper:    retention.NewSweeper(auditStore, cfg.Audit.RetentionDays, logger),
		server:     srv,
		logger:     logger,
	}, nil
}

// Start starts the application
func (a *Application) Start(ctx context.Context) error {
	if err := a.sweeper.Start(ctx); err != nil {
		return err
	}
	a.logger.Infof("Audit retention sweep started")

	if err := a.server.Start(ctx); err != nil {
		return err
	}
	a.logger.Infof("Support bot server started")

	return nil
}

// Stop stops the application
func (a *Application) Stop() error {
	a.sweeper.Stop()

	if err := a.server.Stop(); err != nil {
		a.logger.Errorf("Error stopping server: %v", err)
		return err
	}
	a.logger.Infof("Support bot server stopped")

	if a.auditStore != nil {
		if err := a.auditStore.Close(); err != nil {
			a.logger.Warnf("Error closing audit store: %v", err)
		}
	}
	if a.auditLock != nil {
		if err := a.auditLock.Release(); err != nil {
			a.logger.Warnf("Error releasing audit lock: %v", err)
		}
	}

	return nil
}

// waitForShutdown waits for termination signals or server exit and performs cleanup
func waitForShutdown(cancel context.CancelFunc, app *Application) {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-signalCh:
		app.logger.Infof("Received termination signal, shutting down...")
	case <-app.server.Done():
		app.logger.Infof("Server exited, shutting down...")
	}

	// Cancel the context to initiate shutdown
	cancel()

	// Stop the application with a timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	shutdownDone := make(chan struct{})
	go func() {
		if err := app.Stop(); err != nil {
			app.logger.Errorf("Error during shutdown: %v", err)
		}
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		app.logger.Infof("Graceful shutdown completed")
	case <-shutdownCtx.Done():
		app.logger.Warnf("Shutdown timed out")
	}
}
