// Package manager implements the League Manager agent: agent registries and
// auth issuance, schedule generation, round fan-out, standings maintenance,
// and league completion.
package manager

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"

	"github.com/talsheldon/mcp-league/pkg/config"
	"github.com/talsheldon/mcp-league/pkg/protocol"
	"github.com/talsheldon/mcp-league/pkg/repository"
	"github.com/talsheldon/mcp-league/pkg/rpc"
)

// Sender is the league manager's wire identity.
const Sender = "league_manager"

// tokenHexLen is the length of the MAC-derived hex portion of auth tokens.
const tokenHexLen = 16

// agentRecord is one registered player or referee.
type agentRecord struct {
	ID                   string
	DisplayName          string
	Version              string
	ContactEndpoint      string
	GameTypes            []string
	MaxConcurrentMatches int
}

// Manager is the League Manager agent. All league state is guarded by mu;
// outbound fan-out always happens with the lock released.
type Manager struct {
	leagueID  string
	cfg       *config.Config
	client    *rpc.Client
	standings *repository.Standings
	matches   *repository.Matches
	logger    *slog.Logger
	secret    []byte

	mu           sync.Mutex
	status       string
	playerOrder  []string
	players      map[string]*agentRecord
	refereeOrder []string
	referees     map[string]*agentRecord
	authTokens   map[string]string
	rounds       []Round
	currentRound int
	totalRounds  int
	completed    map[string]struct{}
}

// New creates a League Manager for one league instance.
func New(leagueID string, cfg *config.Config, client *rpc.Client) (*Manager, error) {
	standings, err := repository.NewStandings(cfg.DataDir, leagueID)
	if err != nil {
		return nil, fmt.Errorf("open standings repository: %w", err)
	}
	matches, err := repository.NewMatches(cfg.DataDir, leagueID)
	if err != nil {
		return nil, fmt.Errorf("open match repository: %w", err)
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate auth secret: %w", err)
	}
	return &Manager{
		leagueID:   leagueID,
		cfg:        cfg,
		client:     client,
		standings:  standings,
		matches:    matches,
		logger:     slog.With("agent", Sender, "league_id", leagueID),
		secret:     secret,
		status:     protocol.StatusNotStarted,
		players:    map[string]*agentRecord{},
		referees:   map[string]*agentRecord{},
		authTokens: map[string]string{},
		completed:  map[string]struct{}{},
	}, nil
}

// LeagueID returns the league this manager runs.
func (m *Manager) LeagueID() string { return m.leagueID }

// Status returns the current league lifecycle state.
func (m *Manager) Status() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Standings exposes the standings repository (read side).
func (m *Manager) Standings() *repository.Standings { return m.standings }

// issueToken derives the auth token for an agent. The derivation is a MAC
// over (agent_id, league_id) with the per-process secret, so issuance is
// deterministic within a run; validation is equality against the stored
// value. Caller holds the lock.
func (m *Manager) issueToken(agentID string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(agentID + "|" + m.leagueID))
	token := "tok_" + agentID + "_" + hex.EncodeToString(mac.Sum(nil))[:tokenHexLen]
	m.authTokens[agentID] = token
	return token
}

// validateToken checks a presented token against the issued one.
// Caller holds the lock.
func (m *Manager) validateToken(agentID, token string) bool {
	issued, ok := m.authTokens[agentID]
	return ok && token != "" && issued == token
}

// startLeague freezes the schedule and initializes standings for every
// registered player. Caller holds the lock and has verified preconditions.
func (m *Manager) startLeague() error {
	for _, playerID := range m.playerOrder {
		rec := m.players[playerID]
		if err := m.standings.InitPlayer(playerID, rec.DisplayName); err != nil {
			return fmt.Errorf("initialize standings for %s: %w", playerID, err)
		}
	}

	gameType := "even_odd"
	if m.cfg.BalancedRounds {
		m.rounds = BalancedSchedule(m.playerOrder, gameType)
	} else {
		m.rounds = SequentialSchedule(m.playerOrder, gameType)
	}
	m.totalRounds = len(m.rounds)
	m.currentRound = 1
	m.status = protocol.StatusRunning

	m.logger.Info("League started",
		"players", len(m.playerOrder),
		"referees", len(m.refereeOrder),
		"total_rounds", m.totalRounds)
	return nil
}

// roundByID returns the round with the given id. Caller holds the lock.
func (m *Manager) roundByID(roundID int) *Round {
	for i := range m.rounds {
		if m.rounds[i].ID == roundID {
			return &m.rounds[i]
		}
	}
	return nil
}

// completedInRound counts completed matches of a round. Caller holds the lock.
func (m *Manager) completedInRound(round *Round) int {
	n := 0
	for _, match := range round.Matches {
		if _, ok := m.completed[match.MatchID]; ok {
			n++
		}
	}
	return n
}

// totalScheduled counts all scheduled matches. Caller holds the lock.
func (m *Manager) totalScheduled() int {
	n := 0
	for _, round := range m.rounds {
		n += len(round.Matches)
	}
	return n
}

// playerEndpoints snapshots all player contact endpoints in registration
// order. Caller holds the lock.
func (m *Manager) playerEndpoints() []string {
	eps := make([]string, 0, len(m.playerOrder))
	for _, id := range m.playerOrder {
		eps = append(eps, m.players[id].ContactEndpoint)
	}
	return eps
}

// refereeEndpoints snapshots all referee contact endpoints in registration
// order. Caller holds the lock.
func (m *Manager) refereeEndpoints() []string {
	eps := make([]string, 0, len(m.refereeOrder))
	for _, id := range m.refereeOrder {
		eps = append(eps, m.referees[id].ContactEndpoint)
	}
	return eps
}
