// League Manager server — registers agents, schedules the round-robin, and
// drives rounds to league completion.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/talsheldon/mcp-league/pkg/config"
	"github.com/talsheldon/mcp-league/pkg/manager"
	"github.com/talsheldon/mcp-league/pkg/rpc"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configPath := flag.String("config",
		getEnv("CONFIG_PATH", "./config/league_manager.yaml"),
		"Path to configuration file")
	leagueID := flag.String("league-id",
		getEnv("LEAGUE_ID", "league-2025"),
		"League instance identifier")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment", "error", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}

	slog.Info("Starting league manager",
		"league_id", *leagueID,
		"port", cfg.Port,
		"data_dir", cfg.DataDir)

	client := rpc.NewClient(cfg.Timeouts.DefaultDuration())
	mgr, err := manager.New(*leagueID, cfg, client)
	if err != nil {
		slog.Error("Failed to initialize league manager", "error", err)
		os.Exit(1)
	}

	server := rpc.NewServer(manager.Sender, mgr)
	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		slog.Info("League manager listening", "addr", addr)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		slog.Info("Shutting down", "signal", sig.String())
	case err := <-errCh:
		slog.Error("HTTP server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Shutdown error", "error", err)
		os.Exit(1)
	}
	slog.Info("League manager stopped", "final_status", mgr.Status())
}
