// Package player implements the Player agent: it registers with the league
// manager, answers game invitations and parity calls from referees, and keeps
// a persistent per-opponent game history for its strategy.
package player

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/talsheldon/mcp-league/pkg/config"
	"github.com/talsheldon/mcp-league/pkg/protocol"
	"github.com/talsheldon/mcp-league/pkg/repository"
	"github.com/talsheldon/mcp-league/pkg/rpc"
)

// Player is the player agent.
type Player struct {
	cfg      *config.Config
	client   *rpc.Client
	strategy Strategy
	logger   *slog.Logger

	mu              sync.Mutex
	id              string
	authToken       string
	leagueID        string
	displayName     string
	history         *repository.History
	currentMatch    string
	currentOpponent string
	standings       []protocol.Standing
}

// New creates a player agent with the given strategy.
func New(cfg *config.Config, client *rpc.Client, strategy Strategy) *Player {
	return &Player{
		cfg:      cfg,
		client:   client,
		strategy: strategy,
		logger:   slog.With("agent", "player"),
	}
}

// Sender returns the wire identity, "player:<id>" once registered.
func (p *Player) Sender() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.id == "" {
		return "player"
	}
	return "player:" + p.id
}

// ID returns the assigned player id, empty before registration.
func (p *Player) ID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.id
}

// Register announces this player to the league manager, stores the assigned
// id and auth token, and opens the persistent history for that id.
func (p *Player) Register(ctx context.Context, displayName string) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeouts.RegistrationDuration())
	defer cancel()

	req := protocol.New(protocol.MsgLeagueRegisterRequest, "player")
	req.Set("player_meta", protocol.PlayerMeta{
		DisplayName:     displayName,
		Version:         "1.0.0",
		ContactEndpoint: p.cfg.ContactEndpoint,
		GameTypes:       []string{"even_odd"},
	})

	reply, err := p.client.CallWithRetry(ctx, p.cfg.LeagueManagerEndpoint, req)
	if err != nil {
		return fmt.Errorf("register player: %w", err)
	}
	if reply == nil || reply.MessageType != protocol.MsgLeagueRegisterResponse {
		return fmt.Errorf("register player: unexpected reply %s", replyType(reply))
	}
	var resp protocol.PlayerRegisterResponse
	if err := reply.Decode(&resp); err != nil {
		return fmt.Errorf("register player: %w", err)
	}
	if resp.Status != protocol.RegistrationAccepted {
		return fmt.Errorf("registration refused: %s", resp.Reason)
	}

	history, err := repository.NewHistory(p.cfg.DataDir, resp.PlayerID)
	if err != nil {
		return fmt.Errorf("open history for %s: %w", resp.PlayerID, err)
	}

	p.mu.Lock()
	p.id = resp.PlayerID
	p.authToken = resp.AuthToken
	p.leagueID = reply.LeagueID
	p.displayName = displayName
	p.history = history
	p.mu.Unlock()

	p.logger = slog.With("agent", "player", "player_id", resp.PlayerID)
	p.logger.Info("Registered with league manager",
		"league_id", reply.LeagueID,
		"strategy", p.strategy.Name())
	return nil
}

func replyType(m *protocol.Message) string {
	if m == nil {
		return "<empty>"
	}
	return m.MessageType
}

// HandleMessage routes one validated inbound message.
func (p *Player) HandleMessage(ctx context.Context, msg *protocol.Message) (*protocol.Message, error) {
	switch msg.MessageType {
	case protocol.MsgGameInvitation:
		return p.handleInvitation(msg)
	case protocol.MsgChooseParityCall:
		return p.handleParityCall(msg)
	case protocol.MsgGameOver:
		return p.handleGameOver(msg)
	case protocol.MsgLeagueStandingsUpdate:
		return p.handleStandingsUpdate(msg)
	case protocol.MsgRoundAnnouncement:
		p.logger.Info("Round announced", "round_id", msg.RoundID)
	case protocol.MsgRoundCompleted:
		p.logger.Info("Round completed", "round_id", msg.RoundID)
	case protocol.MsgLeagueCompleted:
		var done protocol.LeagueCompleted
		if err := msg.Decode(&done); err == nil {
			p.logger.Info("League completed",
				"champion", done.Champion.PlayerID,
				"champion_points", done.Champion.Points)
		}
	case protocol.MsgLeagueError:
		var leagueErr protocol.LeagueError
		if err := msg.Decode(&leagueErr); err == nil {
			p.logger.Warn("League error received",
				"error_code", leagueErr.ErrorCode,
				"original_message_type", leagueErr.OriginalMessageType)
		}
	default:
		p.logger.Warn("Ignoring unexpected message", "message_type", msg.MessageType, "sender", msg.Sender)
	}
	return p.ack(msg), nil
}

// handleInvitation accepts the invitation and remembers the current match.
func (p *Player) handleInvitation(msg *protocol.Message) (*protocol.Message, error) {
	var invitation protocol.GameInvitation
	if err := msg.Decode(&invitation); err != nil {
		return nil, fmt.Errorf("decode invitation: %w", err)
	}

	p.mu.Lock()
	p.currentMatch = msg.MatchID
	p.currentOpponent = invitation.OpponentID
	playerID := p.id
	p.mu.Unlock()

	p.logger.Info("Joining game",
		"match_id", msg.MatchID,
		"role", invitation.RoleInMatch,
		"opponent", invitation.OpponentID)

	reply := protocol.NewReply(protocol.MsgGameJoinAck, p.Sender(), msg)
	reply.MatchID = msg.MatchID
	reply.SetPayload(protocol.GameJoinAck{
		PlayerID:         playerID,
		ArrivalTimestamp: protocol.Now(),
		Accept:           true,
	})
	return reply, nil
}

// handleParityCall asks the strategy for a choice.
func (p *Player) handleParityCall(msg *protocol.Message) (*protocol.Message, error) {
	var call protocol.ChooseParityCall
	if err := msg.Decode(&call); err != nil {
		return nil, fmt.Errorf("decode parity call: %w", err)
	}

	p.mu.Lock()
	playerID := p.id
	history := p.history
	p.mu.Unlock()

	ctx := ChoiceContext{RoundID: call.Context.RoundID}
	if history != nil {
		ctx.History = history.List()
	}
	choice := p.strategy.Choose(call.Context.OpponentID, ctx)

	p.logger.Info("Parity chosen",
		"match_id", msg.MatchID,
		"opponent", call.Context.OpponentID,
		"choice", string(choice))

	reply := protocol.NewReply(protocol.MsgChooseParityResponse, p.Sender(), msg)
	reply.MatchID = msg.MatchID
	reply.SetPayload(protocol.ChooseParityResponse{
		PlayerID:     playerID,
		ParityChoice: string(choice),
	})
	return reply, nil
}

// handleGameOver appends the game to the persistent history and clears the
// current match.
func (p *Player) handleGameOver(msg *protocol.Message) (*protocol.Message, error) {
	var over protocol.GameOver
	if err := msg.Decode(&over); err != nil {
		return nil, fmt.Errorf("decode game over: %w", err)
	}

	p.mu.Lock()
	playerID := p.id
	history := p.history
	opponent := p.currentOpponent
	p.currentMatch = ""
	p.currentOpponent = ""
	p.mu.Unlock()

	entry := protocol.HistoryEntry{
		MatchID:     msg.MatchID,
		Opponent:    opponent,
		MyChoice:    over.GameResult.Choices[playerID],
		DrawnNumber: over.GameResult.DrawnNumber,
		Winner:      over.GameResult.WinnerPlayerID,
		Won:         over.GameResult.WinnerPlayerID == playerID,
	}
	for opponentID, choice := range over.GameResult.Choices {
		if opponentID != playerID {
			entry.Opponent = opponentID
			entry.OpponentChoice = choice
		}
	}

	if history != nil {
		if err := history.Append(entry); err != nil {
			p.logger.Error("Failed to persist game history", "match_id", msg.MatchID, "error", err)
		}
	}
	p.logger.Info("Game over",
		"match_id", msg.MatchID,
		"status", over.GameResult.Status,
		"won", entry.Won)
	return p.ack(msg), nil
}

// handleStandingsUpdate caches the latest league table.
func (p *Player) handleStandingsUpdate(msg *protocol.Message) (*protocol.Message, error) {
	var update protocol.StandingsUpdate
	if err := msg.Decode(&update); err != nil {
		return nil, fmt.Errorf("decode standings update: %w", err)
	}
	p.mu.Lock()
	p.standings = update.Standings
	p.mu.Unlock()
	return p.ack(msg), nil
}

// History returns the player's persisted game history, oldest first.
func (p *Player) History() []protocol.HistoryEntry {
	p.mu.Lock()
	history := p.history
	p.mu.Unlock()
	if history == nil {
		return nil
	}
	return history.List()
}

// Standings returns the most recently broadcast league table.
func (p *Player) Standings() []protocol.Standing {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]protocol.Standing, len(p.standings))
	copy(out, p.standings)
	return out
}

// FetchStandings queries the league manager for the current table.
func (p *Player) FetchStandings(ctx context.Context) ([]protocol.Standing, error) {
	data, err := p.query(ctx, protocol.QueryGetStandings, nil)
	if err != nil {
		return nil, err
	}
	return data.Standings, nil
}

// FetchNextMatch queries the league manager for this player's next pending
// match. A nil record means none is pending.
func (p *Player) FetchNextMatch(ctx context.Context) (*protocol.MatchRecord, error) {
	params := map[string]any{"player_id": p.ID()}
	data, err := p.query(ctx, protocol.QueryGetNextMatch, params)
	if err != nil {
		return nil, err
	}
	return data.NextMatch, nil
}

func (p *Player) query(ctx context.Context, queryType string, params map[string]any) (*protocol.QueryData, error) {
	p.mu.Lock()
	token := p.authToken
	leagueID := p.leagueID
	p.mu.Unlock()

	msg := protocol.New(protocol.MsgLeagueQuery, p.Sender())
	msg.AuthToken = token
	msg.LeagueID = leagueID
	msg.SetPayload(protocol.LeagueQuery{QueryType: queryType, QueryParams: params})

	reply, err := p.client.Call(ctx, p.cfg.LeagueManagerEndpoint, msg)
	if err != nil {
		return nil, fmt.Errorf("league query %s: %w", queryType, err)
	}
	if reply == nil {
		return nil, fmt.Errorf("league query %s: empty reply", queryType)
	}
	if reply.MessageType == protocol.MsgLeagueError {
		var leagueErr protocol.LeagueError
		if err := reply.Decode(&leagueErr); err == nil {
			return nil, fmt.Errorf("league query %s rejected: %s %s",
				queryType, leagueErr.ErrorCode, leagueErr.ErrorDescription)
		}
		return nil, fmt.Errorf("league query %s rejected", queryType)
	}
	var resp protocol.LeagueQueryResponse
	if err := reply.Decode(&resp); err != nil {
		return nil, fmt.Errorf("league query %s: %w", queryType, err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("league query %s failed", queryType)
	}
	return &resp.Data, nil
}

func (p *Player) ack(msg *protocol.Message) *protocol.Message {
	ack := protocol.NewReply(protocol.MsgAck, p.Sender(), msg)
	ack.Set("received", msg.MessageType)
	return ack
}
