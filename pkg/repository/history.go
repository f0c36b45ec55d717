package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/talsheldon/mcp-league/pkg/protocol"
)

// History is a player's append-only game history.
type History struct {
	mu      sync.Mutex
	path    string
	entries []protocol.HistoryEntry
}

// NewHistory opens (or creates) the history store for a player.
func NewHistory(dataDir, playerID string) (*History, error) {
	dir := filepath.Join(dataDir, "players", playerID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	h := &History{path: filepath.Join(dir, "history.json")}
	if err := h.load(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *History) load() error {
	data, err := os.ReadFile(h.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	if err := json.Unmarshal(data, &h.entries); err != nil {
		return fmt.Errorf("parse history: %w", err)
	}
	return nil
}

// Append records one finished game.
func (h *History) Append(entry protocol.HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, entry)
	data, err := json.MarshalIndent(h.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	if err := os.WriteFile(h.path, data, 0o644); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}

// List returns a snapshot copy of the history.
func (h *History) List() []protocol.HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]protocol.HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}
