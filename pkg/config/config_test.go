package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadMergesDefaultsUnderOverrides(t *testing.T) {
	path := writeConfig(t, `
port: 8101
timeouts:
  choose_parity: 5
game:
  max_number: 100
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8101, cfg.Port)
	assert.Equal(t, 5, cfg.Timeouts.ChooseParity)
	assert.Equal(t, 100, cfg.Game.MaxNumber)
	// Untouched settings come from the defaults.
	assert.Equal(t, Default().Timeouts.GameJoin, cfg.Timeouts.GameJoin)
	assert.Equal(t, Default().Game.MinNumber, cfg.Game.MinNumber)
	assert.Equal(t, Default().DataDir, cfg.DataDir)
	assert.Equal(t, Default().MaxConcurrentMatches, cfg.MaxConcurrentMatches)
}

func TestLoadOptInFlags(t *testing.T) {
	path := writeConfig(t, `
balanced_rounds: true
report_technical_losses: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.BalancedRounds)
	assert.True(t, cfg.ReportTechnicalLosses)

	assert.False(t, Default().BalancedRounds)
	assert.False(t, Default().ReportTechnicalLosses)
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := writeConfig(t, "port: [not a number")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Port = 70000 },
			wantErr: "port",
		},
		{
			name:    "zero timeout",
			mutate:  func(c *Config) { c.Timeouts.ChooseParity = 0 },
			wantErr: "timeouts",
		},
		{
			name:    "inverted game bounds",
			mutate:  func(c *Config) { c.Game.MinNumber = 10; c.Game.MaxNumber = 1 },
			wantErr: "min_number",
		},
		{
			name:    "zero concurrency cap",
			mutate:  func(c *Config) { c.MaxConcurrentMatches = 0 },
			wantErr: "max_concurrent_matches",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTimeoutDurations(t *testing.T) {
	timeouts := Timeouts{GameJoin: 5, ChooseParity: 30, Registration: 10, Default: 10}
	assert.Equal(t, 5*time.Second, timeouts.GameJoinDuration())
	assert.Equal(t, 30*time.Second, timeouts.ChooseParityDuration())
	assert.Equal(t, 10*time.Second, timeouts.RegistrationDuration())
	assert.Equal(t, 10*time.Second, timeouts.DefaultDuration())
}
