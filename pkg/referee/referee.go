// Package referee implements the Referee agent: it registers with the league
// manager, picks its assigned matches out of round announcements, and runs
// each match's invitation/choice/adjudication/reporting sequence.
package referee

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/talsheldon/mcp-league/pkg/config"
	"github.com/talsheldon/mcp-league/pkg/game"
	"github.com/talsheldon/mcp-league/pkg/protocol"
	"github.com/talsheldon/mcp-league/pkg/rpc"
)

// Referee is the referee agent. The active set caps concurrent match tasks;
// assignments over capacity are skipped, not queued.
type Referee struct {
	cfg    *config.Config
	client *rpc.Client
	engine game.Engine
	logger *slog.Logger

	mu        sync.Mutex
	id        string
	authToken string
	leagueID  string
	active    map[string]*matchTask
}

// New creates a referee agent around a game engine.
func New(cfg *config.Config, client *rpc.Client, engine game.Engine) *Referee {
	return &Referee{
		cfg:    cfg,
		client: client,
		engine: engine,
		logger: slog.With("agent", "referee"),
		active: map[string]*matchTask{},
	}
}

// Sender returns the wire identity, "referee:<id>" once registered.
func (r *Referee) Sender() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.id == "" {
		return "referee"
	}
	return "referee:" + r.id
}

// ID returns the assigned referee id, empty before registration.
func (r *Referee) ID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id
}

// Register announces this referee to the league manager and stores the
// assigned id and auth token. Retried on transient transport failures.
func (r *Referee) Register(ctx context.Context, displayName string) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeouts.RegistrationDuration())
	defer cancel()

	req := protocol.New(protocol.MsgRefereeRegisterRequest, "referee")
	req.Set("referee_meta", protocol.RefereeMeta{
		DisplayName:          displayName,
		Version:              "1.0.0",
		ContactEndpoint:      r.cfg.ContactEndpoint,
		GameTypes:            []string{r.engine.GameType()},
		MaxConcurrentMatches: r.cfg.MaxConcurrentMatches,
	})

	reply, err := r.client.CallWithRetry(ctx, r.cfg.LeagueManagerEndpoint, req)
	if err != nil {
		return fmt.Errorf("register referee: %w", err)
	}
	if reply == nil || reply.MessageType != protocol.MsgRefereeRegisterResponse {
		return fmt.Errorf("register referee: unexpected reply %s", replyType(reply))
	}
	var resp protocol.RefereeRegisterResponse
	if err := reply.Decode(&resp); err != nil {
		return fmt.Errorf("register referee: %w", err)
	}
	if resp.Status != protocol.RegistrationAccepted {
		return fmt.Errorf("registration refused: %s", resp.Reason)
	}

	r.mu.Lock()
	r.id = resp.RefereeID
	r.authToken = resp.AuthToken
	r.leagueID = reply.LeagueID
	r.mu.Unlock()

	r.logger = slog.With("agent", "referee", "referee_id", resp.RefereeID)
	r.logger.Info("Registered with league manager", "league_id", reply.LeagueID)
	return nil
}

func replyType(m *protocol.Message) string {
	if m == nil {
		return "<empty>"
	}
	return m.MessageType
}

// HandleMessage routes one validated inbound message.
func (r *Referee) HandleMessage(ctx context.Context, msg *protocol.Message) (*protocol.Message, error) {
	switch msg.MessageType {
	case protocol.MsgRoundAnnouncement:
		return r.handleRoundAnnouncement(msg)
	case protocol.MsgRoundCompleted:
		r.logger.Info("Round completed", "round_id", msg.RoundID)
	case protocol.MsgLeagueCompleted:
		var done protocol.LeagueCompleted
		if err := msg.Decode(&done); err == nil {
			r.logger.Info("League completed",
				"champion", done.Champion.PlayerID,
				"total_matches", done.TotalMatches)
		}
	case protocol.MsgLeagueStandingsUpdate, protocol.MsgLeagueError:
		// Informational; acknowledged below.
	default:
		r.logger.Warn("Ignoring unexpected message", "message_type", msg.MessageType, "sender", msg.Sender)
	}
	return r.ack(msg), nil
}

// handleRoundAnnouncement launches a match task for every assigned match
// with free capacity. Over-capacity or malformed assignments are skipped.
func (r *Referee) handleRoundAnnouncement(msg *protocol.Message) (*protocol.Message, error) {
	var announcement protocol.RoundAnnouncement
	if err := msg.Decode(&announcement); err != nil {
		return nil, fmt.Errorf("decode round announcement: %w", err)
	}

	r.mu.Lock()
	var started []*matchTask
	for _, match := range announcement.Matches {
		if match.RefereeEndpoint != r.cfg.ContactEndpoint {
			continue
		}
		if match.PlayerAEndpoint == "" || match.PlayerBEndpoint == "" {
			r.logger.Warn("Skipping match with missing player endpoints", "match_id", match.MatchID)
			continue
		}
		if _, running := r.active[match.MatchID]; running {
			continue
		}
		if len(r.active) >= r.cfg.MaxConcurrentMatches {
			r.logger.Warn("Skipping match, concurrency limit reached",
				"match_id", match.MatchID,
				"max_concurrent_matches", r.cfg.MaxConcurrentMatches)
			continue
		}
		task := newMatchTask(r, match, msg.RoundID)
		r.active[match.MatchID] = task
		started = append(started, task)
	}
	r.mu.Unlock()

	for _, task := range started {
		go task.run(context.Background())
	}
	r.logger.Info("Round announcement processed",
		"round_id", msg.RoundID,
		"matches_started", len(started))
	return r.ack(msg), nil
}

// finish removes a completed match task from the active set.
func (r *Referee) finish(matchID string) {
	r.mu.Lock()
	delete(r.active, matchID)
	r.mu.Unlock()
}

// ActiveMatches returns the number of in-flight match tasks.
func (r *Referee) ActiveMatches() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

func (r *Referee) ack(msg *protocol.Message) *protocol.Message {
	ack := protocol.NewReply(protocol.MsgAck, r.Sender(), msg)
	ack.Set("received", msg.MessageType)
	return ack
}
