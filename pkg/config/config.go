// Package config loads per-agent YAML configuration. Defaults are merged
// under user-provided values, and a handful of settings can be overridden
// from the environment by the binaries.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Timeouts holds per-call timeout overrides, in seconds.
type Timeouts struct {
	GameJoin     int `yaml:"game_join"`
	ChooseParity int `yaml:"choose_parity"`
	Registration int `yaml:"registration"`
	Default      int `yaml:"default"`
}

// GameJoinDuration returns the game-join timeout as a duration.
func (t Timeouts) GameJoinDuration() time.Duration {
	return time.Duration(t.GameJoin) * time.Second
}

// ChooseParityDuration returns the choose-parity timeout as a duration.
func (t Timeouts) ChooseParityDuration() time.Duration {
	return time.Duration(t.ChooseParity) * time.Second
}

// RegistrationDuration returns the registration timeout as a duration.
func (t Timeouts) RegistrationDuration() time.Duration {
	return time.Duration(t.Registration) * time.Second
}

// DefaultDuration returns the default outbound-call timeout as a duration.
func (t Timeouts) DefaultDuration() time.Duration {
	return time.Duration(t.Default) * time.Second
}

// GameConfig bounds the even/odd number draw.
type GameConfig struct {
	MinNumber int `yaml:"min_number"`
	MaxNumber int `yaml:"max_number"`
}

// Config is the full per-agent configuration.
type Config struct {
	DataDir               string     `yaml:"data_dir"`
	LogDir                string     `yaml:"log_dir"`
	Port                  int        `yaml:"port"`
	ContactEndpoint       string     `yaml:"contact_endpoint"`
	LeagueManagerEndpoint string     `yaml:"league_manager_endpoint"`
	Timeouts              Timeouts   `yaml:"timeouts"`
	Game                  GameConfig `yaml:"game"`

	// BalancedRounds switches the scheduler to the circle-method packing in
	// which no player appears twice in one round. Off by default; the
	// sequential packing can double-book a player within a round.
	BalancedRounds bool `yaml:"balanced_rounds"`

	// ReportTechnicalLosses makes a referee report an aborted match as a
	// technical loss instead of abandoning it, so the league cannot stall.
	ReportTechnicalLosses bool `yaml:"report_technical_losses"`

	// MaxConcurrentMatches caps in-flight match tasks per referee.
	MaxConcurrentMatches int `yaml:"max_concurrent_matches"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir:               "./data",
		LogDir:                "./logs",
		Port:                  8000,
		LeagueManagerEndpoint: "http://localhost:8000/mcp",
		Timeouts: Timeouts{
			GameJoin:     5,
			ChooseParity: 30,
			Registration: 10,
			Default:      10,
		},
		Game: GameConfig{
			MinNumber: 1,
			MaxNumber: 10,
		},
		MaxConcurrentMatches: 2,
	}
}

// Load reads the agent configuration from path, merges defaults under it,
// and validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		slog.Warn("Config file not found, using defaults", "path", path)
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := mergo.Merge(cfg, Default()); err != nil {
		return nil, fmt.Errorf("merge config defaults: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations the agents cannot run with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.Timeouts.GameJoin <= 0 || c.Timeouts.ChooseParity <= 0 ||
		c.Timeouts.Registration <= 0 || c.Timeouts.Default <= 0 {
		return fmt.Errorf("all timeouts must be positive")
	}
	if c.Game.MinNumber >= c.Game.MaxNumber {
		return fmt.Errorf("game min_number must be below max_number, got [%d, %d]",
			c.Game.MinNumber, c.Game.MaxNumber)
	}
	if c.MaxConcurrentMatches < 1 {
		return fmt.Errorf("max_concurrent_matches must be at least 1, got %d", c.MaxConcurrentMatches)
	}
	return nil
}
