package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/talsheldon/mcp-league/pkg/protocol"
)

// Matches is the per-league by-id store of complete match results.
type Matches struct {
	mu  sync.Mutex
	dir string
}

// NewMatches opens (or creates) the match result store for a league.
func NewMatches(dataDir, leagueID string) (*Matches, error) {
	dir := filepath.Join(dataDir, "matches", leagueID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create matches dir: %w", err)
	}
	return &Matches{dir: dir}, nil
}

// Save persists one match result under its match id.
func (m *Matches) Save(result protocol.MatchResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal match %s: %w", result.MatchID, err)
	}
	path := filepath.Join(m.dir, result.MatchID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write match %s: %w", result.MatchID, err)
	}
	return nil
}

// Load reads one match result. The boolean reports whether it exists.
func (m *Matches) Load(matchID string) (protocol.MatchResult, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, err := os.ReadFile(filepath.Join(m.dir, matchID+".json"))
	if os.IsNotExist(err) {
		return protocol.MatchResult{}, false, nil
	}
	if err != nil {
		return protocol.MatchResult{}, false, fmt.Errorf("read match %s: %w", matchID, err)
	}
	var result protocol.MatchResult
	if err := json.Unmarshal(data, &result); err != nil {
		return protocol.MatchResult{}, false, fmt.Errorf("parse match %s: %w", matchID, err)
	}
	return result, true, nil
}
