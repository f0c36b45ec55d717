// Player server — registers with the league manager, answers invitations and
// parity calls, and tracks its game history.
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
	"github.com/talsheldon/mcp-league/pkg/player"
	"github.com/talsheldon/mcp-league/pkg/rpc"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func buildStrategy(name string) (player.Strategy, error) {
	switch name {
	case "random":
		return player.Random{}, nil
	case "counter_frequency":
		return player.NewCounterFrequency(), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}

func main() {
	configPath := flag.String("config",
		getEnv("CONFIG_PATH", "./config/player.yaml"),
		"Path to configuration file")
	displayName := flag.String("name",
		getEnv("DISPLAY_NAME", "Player"),
		"Display name announced at registration")
	strategyName := flag.String("strategy",
		getEnv("STRATEGY", "random"),
		"Parity strategy: random or counter_frequency")
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

	strategy, err := buildStrategy(*strategyName)
	if err != nil {
		slog.Error("Invalid strategy", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting player",
		"port", cfg.Port,
		"strategy", *strategyName,
		"contact_endpoint", cfg.ContactEndpoint,
		"league_manager", cfg.LeagueManagerEndpoint)

	client := rpc.NewClient(cfg.Timeouts.DefaultDuration())
	p := player.New(cfg, client, strategy)

	server := rpc.NewServer(p.Sender(), p)
	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		slog.Info("Player listening", "addr", addr)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	if err := p.Register(context.Background(), *displayName); err != nil {
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
	slog.Info("Player stopped", "player_id", p.ID())
}
