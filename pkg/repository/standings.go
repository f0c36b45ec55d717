// Package repository provides the file-backed stores for league standings,
// match results, and per-player game history. Each store serializes access
// with its own mutex and persists as indented JSON under the data directory.
package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/talsheldon/mcp-league/pkg/protocol"
)

// Default points applied when the reported score map misses a player key.
const (
	defaultWinPoints  = 3
	defaultDrawPoints = 1
	defaultLossPoints = 0
)

// Standings is the per-league standings repository.
type Standings struct {
	mu    sync.Mutex
	path  string
	table map[string]*protocol.Standing
}

// NewStandings opens (or creates) the standings store for a league.
func NewStandings(dataDir, leagueID string) (*Standings, error) {
	dir := filepath.Join(dataDir, "leagues", leagueID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create standings dir: %w", err)
	}
	s := &Standings{
		path:  filepath.Join(dir, "standings.json"),
		table: map[string]*protocol.Standing{},
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Standings) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read standings: %w", err)
	}
	if err := json.Unmarshal(data, &s.table); err != nil {
		return fmt.Errorf("parse standings: %w", err)
	}
	return nil
}

func (s *Standings) save() error {
	data, err := json.MarshalIndent(s.table, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal standings: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write standings: %w", err)
	}
	return nil
}

// InitPlayer adds a player with a zeroed standing. Existing players are
// left untouched.
func (s *Standings) InitPlayer(playerID, displayName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.table[playerID]; ok {
		return nil
	}
	s.table[playerID] = &protocol.Standing{
		PlayerID:    playerID,
		DisplayName: displayName,
	}
	s.rerank()
	return s.save()
}

// ApplyResult folds one match result into both players' standings and
// recomputes ranks, all under the repository lock so readers never observe
// updated counters with stale ranks.
func (s *Standings) ApplyResult(playerA, playerB, winner string, score map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, playerID := range []string{playerA, playerB} {
		st, ok := s.table[playerID]
		if !ok {
			continue
		}
		st.Played++
		switch {
		case winner == playerID:
			st.Wins++
			st.Points += scoreOr(score, playerID, defaultWinPoints)
		case winner == "":
			st.Draws++
			st.Points += scoreOr(score, playerID, defaultDrawPoints)
		default:
			st.Losses++
			st.Points += scoreOr(score, playerID, defaultLossPoints)
		}
	}

	s.rerank()
	return s.save()
}

func scoreOr(score map[string]int, playerID string, fallback int) int {
	if v, ok := score[playerID]; ok {
		return v
	}
	return fallback
}

// rerank assigns dense ranks 1..N ordered by
// (-points, -wins, losses, player_id). Caller holds the lock.
func (s *Standings) rerank() {
	rows := make([]*protocol.Standing, 0, len(s.table))
	for _, st := range s.table {
		rows = append(rows, st)
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		if a.Wins != b.Wins {
			return a.Wins > b.Wins
		}
		if a.Losses != b.Losses {
			return a.Losses < b.Losses
		}
		return a.PlayerID < b.PlayerID
	})
	for i, st := range rows {
		st.Rank = i + 1
	}
}

// List returns a copy of the standings in rank order.
func (s *Standings) List() []protocol.Standing {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make([]protocol.Standing, 0, len(s.table))
	for _, st := range s.table {
		rows = append(rows, *st)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Rank != rows[j].Rank {
			return rows[i].Rank < rows[j].Rank
		}
		return rows[i].PlayerID < rows[j].PlayerID
	})
	return rows
}

// Get returns one player's standing.
func (s *Standings) Get(playerID string) (protocol.Standing, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.table[playerID]
	if !ok {
		return protocol.Standing{}, false
	}
	return *st, true
}
