// Package main is the entry point for the CrystalStudio setup
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"crystalsetup/internal/cli"
	"crystalsetup/internal/config"
	"crystalsetup/internal/database"
	"crystalsetup/internal/history"
	"crystalsetup/internal/logging"
	"crystalsetup/internal/telemetry"
	"crystalsetup/internal/version"
)

// historyRetention is how long finished runs stay in the history database.
const historyRetention = 90 * 24 * time.Hour

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// Load .env file if it exists (for development)
	if err := godotenv.Load(); err != nil && os.Getenv("DEBUG") == "true" {
		logging.Debug("No .env file found or error loading it: %v", err)
	}

	// Handle version flag first, before loading configuration
	if versionRequested(args) {
		fmt.Print(version.Get().String())
		return cli.ExitSuccess
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return cli.ExitRuntimeError
	}

	previousLog := hasLogFile(cfg.LogDir)
	if err := logging.Initialize(cfg.LogDir); err != nil {
		logging.Warning("Failed to initialize file logging: %v", err)
	} else {
		defer func() {
			_ = logging.Close()
		}()
		// Each launch gets its own log file; lumberjack keeps the earlier ones as backups.
		if previousLog {
			if err := logging.RotateLogs(); err != nil {
				logging.Warning("Failed to rotate log file: %v", err)
			}
		}
	}
	logging.Debug("Configuration: %s", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.InitializeFromEnv(ctx, version.Get().Version)
	if err != nil {
		logging.Warning("Failed to initialize telemetry: %v", err)
	} else {
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logging.Error("Error shutting down telemetry: %v", err)
			}
		}()
	}

	// The history database is optional; installs still run without it.
	if err := database.Initialize(cfg.DatabasePath); err != nil {
		logging.Warning("Install history disabled: %v", err)
	} else {
		defer func() {
			if err := database.Close(); err != nil {
				logging.Error("Failed to close database: %v", err)
			}
		}()
		prepareHistory(ctx)
	}

	manager := cli.NewManagerAdapter(cfg, database.GetDB())
	return cli.ExecuteContext(ctx, args, manager, os.Stdout, os.Stderr)
}

func prepareHistory(ctx context.Context) {
	db := database.GetDB()
	if n, err := history.NewStore(db).MarkInterrupted(ctx); err != nil {
		logging.Warning("Failed to mark interrupted runs: %v", err)
	} else if n > 0 {
		logging.Info("Marked %d interrupted install run(s) as failed", n)
	}
	if err := history.CleanupOldRuns(ctx, db, historyRetention); err != nil {
		logging.Warning("Failed to clean up old runs: %v", err)
	}
}

func hasLogFile(logDir string) bool {
	if logDir == "" {
		return false
	}
	info, err := os.Stat(filepath.Join(logDir, logging.LogFileName))
	return err == nil && info.Size() > 0
}

func versionRequested(args []string) bool {
	if len(args) == 0 {
		return false
	}
	switch args[0] {
	case "--version", "-version", "version":
		return true
	}
	return false
}
