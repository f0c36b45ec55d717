// Referee server — registers with the league manager and adjudicates its
// assigned matches.
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
	"github.com/talsheldon/mcp-league/pkg/game"
	"github.com/talsheldon/mcp-league/pkg/referee"
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
		getEnv("CONFIG_PATH", "./config/referee.yaml"),
		"Path to configuration file")
	displayName := flag.String("name",
		getEnv("DISPLAY_NAME", "Referee"),
		"Display name announced at registration")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment", "error", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}
	if cfg.ContactEndpoint == "" {
		cfg.ContactEndpoint = fmt.Sprintf("http://localhost:%d/mcp", cfg.Port)
	}

	slog.Info("Starting referee",
		"port", cfg.Port,
		"contact_endpoint", cfg.ContactEndpoint,
		"league_manager", cfg.LeagueManagerEndpoint)

	client := rpc.NewClient(cfg.Timeouts.DefaultDuration())
	engine := game.NewEvenOdd(cfg.Game.MinNumber, cfg.Game.MaxNumber)
	ref := referee.New(cfg, client, engine)

	server := rpc.NewServer(ref.Sender(), ref)
	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		slog.Info("Referee listening", "addr", addr)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	if err := ref.Register(context.Background(), *displayName); err != nil {
		slog.Error("Registration failed", "error", err)
		os.Exit(1)
	}

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
	slog.Info("Referee stopped", "referee_id", ref.ID())
}
