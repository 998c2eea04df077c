package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voicetel/autotask-notifier/internal/autotask"
	"github.com/voicetel/autotask-notifier/internal/config"
	"github.com/voicetel/autotask-notifier/internal/logging"
	"github.com/voicetel/autotask-notifier/internal/models"
	"github.com/voicetel/autotask-notifier/internal/notifier"
	"github.com/voicetel/autotask-notifier/internal/notify"
	"github.com/voicetel/autotask-notifier/internal/store"
	"github.com/voicetel/autotask-notifier/internal/web"
)

// Version information - these will be set at build time via ldflags
var (
	Version   = "dev"     // Version number
	GitCommit = "unknown" // Git commit hash
	BuildDate = "unknown" // Build date
)

func main() {
	// Parse command line flags
	cfg := config.ParseFlags()

	// Check for version flag before other validation
	if cfg.ShowVersion {
		printVersion()
		os.Exit(0)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	// Set up logging
	logger := logging.NewLogger(cfg.LogFormat, cfg.Verbose, nil)
	logger.SetAsDefault()

	if cfg.Verbose {
		logger.Info("Starting Autotask notifier",
			"version", Version,
			"git_commit", GitCommit,
			"poll_interval", cfg.PollInterval.String(),
			"dry_run", cfg.DryRun,
		)
	}

	gateway := autotask.NewClient(cfg.Autotask)

	// Check connections mode
	if cfg.CheckConnections {
		if err := checkConnections(gateway, cfg, logger); err != nil {
			logger.LogError("Connection check failed", err)
			os.Exit(1)
		}
		fmt.Println("All connections successful!")
		os.Exit(0)
	}

	// List fields mode: print queue/status picklists for the config file
	if cfg.ListFields {
		if err := printFields(gateway); err != nil {
			logger.LogError("Failed to fetch field metadata", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Initialize SQLite database
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.LogError("Failed to initialize SQLite", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize database schema if requested
	if cfg.InitDB {
		if err := db.InitSchema(); err != nil {
			logger.LogError("Failed to initialize database schema", err)
			os.Exit(1)
		}
		fmt.Println("Database initialized successfully!")
		os.Exit(0)
	}

	// Vacuum mode
	if cfg.Vacuum {
		if err := db.Vacuum(); err != nil {
			logger.LogError("Failed to vacuum database", err)
			os.Exit(1)
		}
		fmt.Println("Vacuum completed successfully!")
		os.Exit(0)
	}

	if err := db.InitSchema(); err != nil {
		logger.LogError("Failed to initialize database schema", err)
		os.Exit(1)
	}

	n := notifier.New(gateway, db, cfg, buildSender(cfg))

	// Single cycle mode
	if cfg.Once {
		stats, err := n.RunCycle(context.Background())
		if err != nil {
			logger.LogError("Reconciliation cycle failed", err)
			os.Exit(1)
		}
		printRunStats(stats, logger)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Recurring trigger
	go runCycles(ctx, n, cfg, logger)

	// Ticket panel and on-demand query interface
	srv := web.NewServer(n, db, cfg.Autotask.Region)
	httpServer := &http.Server{
		Addr:    cfg.Listen,
		Handler: srv,
	}

	go func() {
		logger.Info("Ticket panel listening", "addr", cfg.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.LogError("HTTP server error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.LogError("Server forced to shutdown", err)
		os.Exit(1)
	}
	logger.Info("Notifier exited")
}

// runCycles fires a reconciliation cycle immediately and then on every
// tick. In-flight cycles always run to completion; a failed cycle is logged
// and skipped until the next tick, never retried within the same tick.
func runCycles(ctx context.Context, n *notifier.Notifier, cfg *config.Config, logger *logging.Logger) {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		stats, err := n.RunCycle(ctx)
		if err != nil {
			logger.LogError("Reconciliation cycle failed", err)
		} else if cfg.Verbose {
			printRunStats(stats, logger)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func buildSender(cfg *config.Config) notify.Sender {
	switch cfg.Notify.Method {
	case "webhook":
		return notify.NewWebhookSender(cfg.Notify)
	case "none":
		return notify.NopSender{}
	default:
		return notify.NewDesktopSender()
	}
}

func printVersion() {
	fmt.Printf("Autotask Notifier\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Printf("Build Date: %s\n", BuildDate)
}

func checkConnections(gateway *autotask.Client, cfg *config.Config, logger *logging.Logger) error {
	logger.Info("Checking connections...")

	logger.Info("Testing Autotask API credentials...")
	if _, err := gateway.QueryFieldMetadata(context.Background()); err != nil {
		return fmt.Errorf("autotask credential check failed: %w", err)
	}
	logger.Info("Autotask API connection successful")

	if cfg.Notify.Method == "webhook" && cfg.Notify.WebhookURL != "" {
		logger.Info("Testing notification webhook...")
		if err := notify.TestWebhook(cfg.Notify.WebhookURL); err != nil {
			return fmt.Errorf("webhook test failed: %w", err)
		}
		logger.Info("Webhook test successful")
	}

	return nil
}

func printFields(gateway *autotask.Client) error {
	meta, err := gateway.QueryFieldMetadata(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("\n=== Ticket Queues ===\n")
	for _, q := range meta.Queues {
		fmt.Printf("  %d: %s\n", q.ID, q.Label)
	}

	fmt.Printf("\n=== Ticket Statuses ===\n")
	for _, s := range meta.Statuses {
		fmt.Printf("  %d: %s\n", s.ID, s.Label)
	}

	return nil
}

func printRunStats(stats *models.RunStats, logger *logging.Logger) {
	logger.LogRunStats(map[string]interface{}{
		"tickets_tracked":    stats.TicketsTracked,
		"tickets_added":      stats.TicketsAdded,
		"tickets_dropped":    stats.TicketsDropped,
		"notifications_sent": stats.NotificationsSent,
		"errors":             stats.Errors,
		"duration":           stats.Duration.String(),
	})
}
