package manager

import (
	"context"
	"fmt"
	"sort"

	"github.com/talsheldon/mcp-league/pkg/protocol"
)

// fanout is a message addressed to a set of endpoints. Fan-outs are prepared
// while holding the manager lock and delivered after it is released, which
// keeps the ordering guarantees (standings before round completion, at most
// one ROUND_COMPLETED per round) without blocking the lock on network I/O.
type fanout struct {
	msg       *protocol.Message
	endpoints []string
}

// HandleMessage routes one validated inbound message. Protocol-level failures
// come back as LEAGUE_ERROR replies with a nil error; a non-nil error means
// an internal failure the transport should surface as a JSON-RPC error.
func (m *Manager) HandleMessage(ctx context.Context, msg *protocol.Message) (*protocol.Message, error) {
	var (
		reply    *protocol.Message
		fanouts  []fanout
		err      error
		protoErr *protocol.Error
	)

	m.mu.Lock()
	switch msg.MessageType {
	case protocol.MsgLeagueRegisterRequest:
		reply, protoErr = m.handlePlayerRegister(msg)
	case protocol.MsgRefereeRegisterRequest:
		reply, protoErr = m.handleRefereeRegister(msg)
	case protocol.MsgStartLeague:
		reply, fanouts, protoErr, err = m.handleStartLeague(msg)
	case protocol.MsgMatchResultReport:
		reply, fanouts, protoErr, err = m.handleMatchResult(msg)
	case protocol.MsgLeagueQuery:
		reply, protoErr = m.handleLeagueQuery(msg)
	default:
		protoErr = protocol.NewError(protocol.CodeInvalidFieldValue, msg.MessageType, map[string]any{
			"field":  "message_type",
			"reason": fmt.Sprintf("message type %q is not handled by the league manager", msg.MessageType),
		})
	}
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if protoErr != nil {
		m.logger.Warn("Rejecting message",
			"message_type", msg.MessageType,
			"sender", msg.Sender,
			"error_code", string(protoErr.Code))
		return protocol.NewLeagueError(Sender, msg.ConversationID, protoErr), nil
	}

	for _, f := range fanouts {
		for _, endpoint := range f.endpoints {
			m.client.Notify(ctx, endpoint, f.msg)
		}
	}
	return reply, nil
}

// handlePlayerRegister admits a player while the league has not started.
// Caller holds the lock.
func (m *Manager) handlePlayerRegister(msg *protocol.Message) (*protocol.Message, *protocol.Error) {
	if m.status != protocol.StatusNotStarted {
		return nil, protocol.NewError(protocol.CodeLeagueAlreadyStarted, msg.MessageType, map[string]any{
			"league_status": m.status,
		})
	}
	var req protocol.PlayerRegisterRequest
	if err := msg.Decode(&req); err != nil || req.PlayerMeta.ContactEndpoint == "" {
		return nil, protocol.NewError(protocol.CodeInvalidAgentMetadata, msg.MessageType, map[string]any{
			"reason": "player_meta.contact_endpoint is required",
		})
	}

	playerID := fmt.Sprintf("P%02d", len(m.playerOrder)+1)
	m.playerOrder = append(m.playerOrder, playerID)
	m.players[playerID] = &agentRecord{
		ID:              playerID,
		DisplayName:     req.PlayerMeta.DisplayName,
		Version:         req.PlayerMeta.Version,
		ContactEndpoint: req.PlayerMeta.ContactEndpoint,
		GameTypes:       req.PlayerMeta.GameTypes,
	}
	token := m.issueToken(playerID)
	m.logger.Info("Player registered",
		"player_id", playerID,
		"display_name", req.PlayerMeta.DisplayName,
		"endpoint", req.PlayerMeta.ContactEndpoint)

	reply := protocol.NewReply(protocol.MsgLeagueRegisterResponse, Sender, msg)
	reply.LeagueID = m.leagueID
	reply.Set("status", protocol.RegistrationAccepted)
	reply.Set("player_id", playerID)
	reply.Set("auth_token", token)
	return reply, nil
}

// handleRefereeRegister admits a referee while the league has not started.
// Caller holds the lock.
func (m *Manager) handleRefereeRegister(msg *protocol.Message) (*protocol.Message, *protocol.Error) {
	if m.status != protocol.StatusNotStarted {
		return nil, protocol.NewError(protocol.CodeLeagueAlreadyStarted, msg.MessageType, map[string]any{
			"league_status": m.status,
		})
	}
	var req protocol.RefereeRegisterRequest
	if err := msg.Decode(&req); err != nil || req.RefereeMeta.ContactEndpoint == "" {
		return nil, protocol.NewError(protocol.CodeInvalidAgentMetadata, msg.MessageType, map[string]any{
			"reason": "referee_meta.contact_endpoint is required",
		})
	}

	refereeID := fmt.Sprintf("REF%02d", len(m.refereeOrder)+1)
	m.refereeOrder = append(m.refereeOrder, refereeID)
	m.referees[refereeID] = &agentRecord{
		ID:                   refereeID,
		DisplayName:          req.RefereeMeta.DisplayName,
		Version:              req.RefereeMeta.Version,
		ContactEndpoint:      req.RefereeMeta.ContactEndpoint,
		GameTypes:            req.RefereeMeta.GameTypes,
		MaxConcurrentMatches: req.RefereeMeta.MaxConcurrentMatches,
	}
	token := m.issueToken(refereeID)
	m.logger.Info("Referee registered",
		"referee_id", refereeID,
		"display_name", req.RefereeMeta.DisplayName,
		"endpoint", req.RefereeMeta.ContactEndpoint)

	reply := protocol.NewReply(protocol.MsgRefereeRegisterResponse, Sender, msg)
	reply.LeagueID = m.leagueID
	reply.Set("status", protocol.RegistrationAccepted)
	reply.Set("referee_id", refereeID)
	reply.Set("auth_token", token)
	return reply, nil
}

// handleStartLeague transitions NOT_STARTED -> RUNNING and announces round 1.
// A duplicate START_LEAGUE is answered with the current LEAGUE_STATUS and no
// side effects. Caller holds the lock.
func (m *Manager) handleStartLeague(msg *protocol.Message) (*protocol.Message, []fanout, *protocol.Error, error) {
	if m.status != protocol.StatusNotStarted {
		return m.leagueStatusReply(msg), nil, nil, nil
	}
	if len(m.playerOrder) < 2 {
		return nil, nil, protocol.NewError(protocol.CodeNotEnoughPlayers, msg.MessageType, map[string]any{
			"registered_players": len(m.playerOrder),
			"required":           2,
		}), nil
	}
	if len(m.refereeOrder) == 0 {
		return nil, nil, protocol.NewError(protocol.CodeRefereeNotRegistered, msg.MessageType, map[string]any{
			"reason": "at least one referee must be registered before the league starts",
		}), nil
	}

	if err := m.startLeague(); err != nil {
		return nil, nil, nil, err
	}
	fanouts := m.announceRound(m.currentRound)
	return m.leagueStatusReply(msg), fanouts, nil, nil
}

// leagueStatusReply builds a LEAGUE_STATUS reply from current state.
// Caller holds the lock.
func (m *Manager) leagueStatusReply(msg *protocol.Message) *protocol.Message {
	reply := protocol.NewReply(protocol.MsgLeagueStatus, Sender, msg)
	reply.LeagueID = m.leagueID
	reply.Set("status", m.status)
	reply.Set("current_round", m.currentRound)
	reply.Set("total_rounds", m.totalRounds)
	reply.Set("matches_completed", len(m.completed))
	return reply
}

// announceRound assigns referees and endpoints to the round's matches and
// prepares the ROUND_ANNOUNCEMENT fan-out to every referee and player.
// Referees are assigned round-robin over the registration order.
// Caller holds the lock.
func (m *Manager) announceRound(roundID int) []fanout {
	round := m.roundByID(roundID)
	if round == nil {
		return nil
	}
	for i := range round.Matches {
		match := &round.Matches[i]
		referee := m.referees[m.refereeOrder[i%len(m.refereeOrder)]]
		match.RefereeEndpoint = referee.ContactEndpoint
		if rec, ok := m.players[match.PlayerAID]; ok {
			match.PlayerAEndpoint = rec.ContactEndpoint
		}
		if rec, ok := m.players[match.PlayerBID]; ok {
			match.PlayerBEndpoint = rec.ContactEndpoint
		}
	}

	announcement := protocol.New(protocol.MsgRoundAnnouncement, Sender)
	announcement.LeagueID = m.leagueID
	announcement.RoundID = round.ID
	announcement.Set("matches", round.Matches)

	m.logger.Info("Announcing round", "round_id", round.ID, "matches", len(round.Matches))
	return []fanout{{
		msg:       announcement,
		endpoints: append(m.refereeEndpoints(), m.playerEndpoints()...),
	}}
}

// handleMatchResult folds a referee's MATCH_RESULT_REPORT into standings and
// drives round and league progression. Re-reports of a completed match are
// acknowledged without reapplying. Caller holds the lock.
func (m *Manager) handleMatchResult(msg *protocol.Message) (*protocol.Message, []fanout, *protocol.Error, error) {
	senderID := protocol.SenderID(msg.Sender)
	if !m.validateToken(senderID, msg.AuthToken) {
		return nil, nil, protocol.NewError(protocol.CodeAuthTokenInvalid, msg.MessageType, map[string]any{
			"provided_token": msg.AuthToken,
		}), nil
	}
	var report protocol.MatchResultReport
	if err := msg.Decode(&report); err != nil {
		return nil, nil, protocol.NewError(protocol.CodeInvalidMessageFormat, msg.MessageType, map[string]any{
			"reason": err.Error(),
		}), nil
	}
	result := report.Result
	if result.MatchID == "" {
		result.MatchID = msg.MatchID
	}

	ack := protocol.NewReply(protocol.MsgMatchResultAck, Sender, msg)
	ack.LeagueID = m.leagueID
	ack.MatchID = result.MatchID
	ack.Set("match_id", result.MatchID)
	ack.Set("status", "recorded")

	// A re-report is acknowledged without reapplying, even if it arrives
	// after the league has completed.
	if _, done := m.completed[result.MatchID]; done {
		m.logger.Info("Ignoring duplicate match result", "match_id", result.MatchID)
		return ack, nil, nil, nil
	}

	if m.status != protocol.StatusRunning {
		return nil, nil, protocol.NewError(protocol.CodeLeagueNotStarted, msg.MessageType, map[string]any{
			"league_status": m.status,
		}), nil
	}

	round := m.roundByID(result.RoundID)
	if round == nil {
		return nil, nil, protocol.NewError(protocol.CodeRoundNotFound, msg.MessageType, map[string]any{
			"round_id": result.RoundID,
		}), nil
	}
	var match *protocol.MatchRecord
	for i := range round.Matches {
		if round.Matches[i].MatchID == result.MatchID {
			match = &round.Matches[i]
			break
		}
	}
	if match == nil {
		return nil, nil, protocol.NewError(protocol.CodeMatchNotFound, msg.MessageType, map[string]any{
			"match_id": result.MatchID,
			"round_id": result.RoundID,
		}), nil
	}

	playerA, playerB := participants(result, match)
	if err := m.standings.ApplyResult(playerA, playerB, result.Winner, result.Score); err != nil {
		return nil, nil, nil, fmt.Errorf("apply result for %s: %w", result.MatchID, err)
	}
	if err := m.matches.Save(result); err != nil {
		return nil, nil, nil, fmt.Errorf("persist result for %s: %w", result.MatchID, err)
	}
	m.completed[result.MatchID] = struct{}{}
	m.logger.Info("Match result recorded",
		"match_id", result.MatchID,
		"round_id", result.RoundID,
		"winner", result.Winner)

	fanouts := []fanout{m.standingsFanout()}
	if m.completedInRound(round) == len(round.Matches) {
		fanouts = append(fanouts, m.roundCompletedFanouts(round)...)
	}
	return ack, fanouts, nil, nil
}

// participants extracts the two player ids from the reported choices keys,
// in sorted order, falling back to the scheduled record when a choices map
// is absent (e.g. a draw reported without per-player detail).
func participants(result protocol.MatchResult, match *protocol.MatchRecord) (string, string) {
	if len(result.Details.Choices) == 2 {
		ids := make([]string, 0, 2)
		for id := range result.Details.Choices {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		return ids[0], ids[1]
	}
	return match.PlayerAID, match.PlayerBID
}

// standingsFanout prepares a LEAGUE_STANDINGS_UPDATE for every player.
// Caller holds the lock.
func (m *Manager) standingsFanout() fanout {
	update := protocol.New(protocol.MsgLeagueStandingsUpdate, Sender)
	update.LeagueID = m.leagueID
	update.RoundID = m.currentRound
	update.Set("standings", m.standings.List())
	return fanout{msg: update, endpoints: m.playerEndpoints()}
}

// roundCompletedFanouts closes a finished round: exactly one ROUND_COMPLETED
// to the players, then either the next round's announcement or the
// LEAGUE_COMPLETED closing broadcast when no rounds remain. Caller holds the
// lock.
func (m *Manager) roundCompletedFanouts(round *Round) []fanout {
	completed := protocol.New(protocol.MsgRoundCompleted, Sender)
	completed.LeagueID = m.leagueID
	completed.RoundID = round.ID
	completed.Set("matches_completed", len(round.Matches))
	completed.Set("summary", protocol.RoundSummary{TotalMatches: len(round.Matches)})

	last := round.ID >= m.totalRounds
	if last {
		completed.Set("next_round_id", nil)
	} else {
		completed.Set("next_round_id", round.ID+1)
	}
	fanouts := []fanout{{msg: completed, endpoints: m.playerEndpoints()}}

	if last {
		m.status = protocol.StatusCompleted
		standings := m.standings.List()
		final := protocol.New(protocol.MsgLeagueCompleted, Sender)
		final.LeagueID = m.leagueID
		final.Set("total_rounds", m.totalRounds)
		final.Set("total_matches", len(m.completed))
		final.Set("final_standings", standings)
		if len(standings) > 0 {
			final.Set("champion", protocol.Champion{
				PlayerID:    standings[0].PlayerID,
				DisplayName: standings[0].DisplayName,
				Points:      standings[0].Points,
			})
		}
		m.logger.Info("League completed", "total_matches", len(m.completed))
		all := append(m.refereeEndpoints(), m.playerEndpoints()...)
		return append(fanouts, fanout{msg: final, endpoints: all})
	}

	m.currentRound = round.ID + 1
	m.logger.Info("Round completed", "round_id", round.ID, "next_round_id", m.currentRound)
	return append(fanouts, m.announceRound(m.currentRound)...)
}

// handleLeagueQuery answers authenticated read queries. Caller holds the lock.
func (m *Manager) handleLeagueQuery(msg *protocol.Message) (*protocol.Message, *protocol.Error) {
	senderID := protocol.SenderID(msg.Sender)
	if !m.validateToken(senderID, msg.AuthToken) {
		return nil, protocol.NewError(protocol.CodeAuthTokenInvalid, msg.MessageType, map[string]any{
			"provided_token": msg.AuthToken,
		})
	}

	var query protocol.LeagueQuery
	if err := msg.Decode(&query); err != nil {
		return nil, protocol.NewError(protocol.CodeInvalidMessageFormat, msg.MessageType, map[string]any{
			"reason": err.Error(),
		})
	}

	reply := protocol.NewReply(protocol.MsgLeagueQueryResponse, Sender, msg)
	reply.LeagueID = m.leagueID
	reply.Set("query_type", query.QueryType)

	switch query.QueryType {
	case protocol.QueryGetStandings:
		reply.Set("success", true)
		reply.Set("data", protocol.QueryData{Standings: m.standings.List()})
	case protocol.QueryGetNextMatch:
		playerID := senderID
		if id, ok := query.QueryParams["player_id"].(string); ok && id != "" {
			playerID = id
		}
		reply.Set("success", true)
		reply.Set("data", protocol.QueryData{NextMatch: m.nextMatchFor(playerID)})
	default:
		return nil, protocol.NewError(protocol.CodeInvalidFieldValue, msg.MessageType, map[string]any{
			"field":          "query_type",
			"provided_value": query.QueryType,
		})
	}
	return reply, nil
}

// nextMatchFor returns the player's earliest announced-but-unfinished match,
// or nil when none is pending. Caller holds the lock.
func (m *Manager) nextMatchFor(playerID string) *protocol.MatchRecord {
	for _, round := range m.rounds {
		if round.ID > m.currentRound {
			break
		}
		for i := range round.Matches {
			match := round.Matches[i]
			if !match.HasPlayer(playerID) {
				continue
			}
			if _, done := m.completed[match.MatchID]; done {
				continue
			}
			return &match
		}
	}
	return nil
}
