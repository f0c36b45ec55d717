package referee

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/talsheldon/mcp-league/pkg/game"
	"github.com/talsheldon/mcp-league/pkg/protocol"
)

// Match task states.
const (
	stateInviting     = "inviting"
	stateChoosing     = "choosing"
	stateAdjudicating = "adjudicating"
	stateReporting    = "reporting"
	stateDone         = "done"
)

// matchTask runs one assigned match end to end: invite both players, collect
// their choices, adjudicate, notify, and report the result upstream.
type matchTask struct {
	ref     *Referee
	match   protocol.MatchRecord
	roundID int
	state   string
	choices map[string]game.Parity
}

func newMatchTask(r *Referee, match protocol.MatchRecord, roundID int) *matchTask {
	return &matchTask{
		ref:     r,
		match:   match,
		roundID: roundID,
		state:   stateInviting,
		choices: map[string]game.Parity{},
	}
}

func (t *matchTask) logger() *slog.Logger {
	return t.ref.logger.With("match_id", t.match.MatchID, "round_id", t.roundID, "state", t.state)
}

// run drives the match to completion. The task always removes itself from
// the referee's active set when it returns.
func (t *matchTask) run(ctx context.Context) {
	defer t.ref.finish(t.match.MatchID)

	if err := t.invite(ctx, t.match.PlayerAID, t.match.PlayerAEndpoint, protocol.RolePlayerA, t.match.PlayerBID); err != nil {
		t.abort(ctx, t.match.PlayerAID, protocol.CodeJoinTimeout, err)
		return
	}
	if err := t.invite(ctx, t.match.PlayerBID, t.match.PlayerBEndpoint, protocol.RolePlayerB, t.match.PlayerAID); err != nil {
		t.abort(ctx, t.match.PlayerBID, protocol.CodeJoinTimeout, err)
		return
	}

	t.state = stateChoosing
	choiceA, err := t.collectChoice(ctx, t.match.PlayerAID, t.match.PlayerAEndpoint, t.match.PlayerBID)
	if err != nil {
		t.abort(ctx, t.match.PlayerAID, protocol.CodeChoiceTimeout, err)
		return
	}
	t.choices[t.match.PlayerAID] = choiceA
	choiceB, err := t.collectChoice(ctx, t.match.PlayerBID, t.match.PlayerBEndpoint, t.match.PlayerAID)
	if err != nil {
		t.abort(ctx, t.match.PlayerBID, protocol.CodeChoiceTimeout, err)
		return
	}
	t.choices[t.match.PlayerBID] = choiceB

	t.state = stateAdjudicating
	result, err := t.ref.engine.Play(t.match.PlayerAID, t.match.PlayerBID, choiceA, choiceB)
	if err != nil {
		t.logger().Error("Adjudication failed", "error", err)
		return
	}
	t.logger().Info("Match adjudicated",
		"winner", result.Winner,
		"drawn_number", result.DrawnNumber)

	status := protocol.GameStatusWin
	if result.Winner == "" {
		status = protocol.GameStatusDraw
	}
	t.notifyGameOver(ctx, protocol.GameResult{
		Status:         status,
		WinnerPlayerID: result.Winner,
		DrawnNumber:    result.DrawnNumber,
		NumberParity:   string(result.NumberParity),
		Choices:        parityStrings(result.Choices),
		Reason:         result.Reason,
	})

	t.state = stateReporting
	t.report(ctx, protocol.MatchResult{
		MatchID:   t.match.MatchID,
		RoundID:   t.roundID,
		PlayerAID: t.match.PlayerAID,
		PlayerBID: t.match.PlayerBID,
		Winner:    result.Winner,
		Score:     result.Score,
		Details: protocol.MatchDetails{
			DrawnNumber: result.DrawnNumber,
			Choices:     parityStrings(result.Choices),
			Reason:      result.Reason,
		},
	})
	t.state = stateDone
}

// invite sends GAME_INVITATION and requires an accepting GAME_JOIN_ACK
// within the game-join timeout.
func (t *matchTask) invite(ctx context.Context, playerID, endpoint, role, opponentID string) error {
	ctx, cancel := context.WithTimeout(ctx, t.ref.cfg.Timeouts.GameJoinDuration())
	defer cancel()

	msg := protocol.New(protocol.MsgGameInvitation, t.ref.Sender())
	msg.LeagueID = t.leagueID()
	msg.MatchID = t.match.MatchID
	msg.RoundID = t.roundID
	msg.SetPayload(protocol.GameInvitation{
		GameType:    t.match.GameType,
		RoleInMatch: role,
		OpponentID:  opponentID,
	})

	reply, err := t.ref.client.Call(ctx, endpoint, msg)
	if err != nil {
		return fmt.Errorf("invite %s: %w", playerID, err)
	}
	if reply == nil || reply.MessageType != protocol.MsgGameJoinAck {
		return fmt.Errorf("invite %s: unexpected reply %s", playerID, replyType(reply))
	}
	var ack protocol.GameJoinAck
	if err := reply.Decode(&ack); err != nil {
		return fmt.Errorf("invite %s: %w", playerID, err)
	}
	if !ack.Accept {
		return fmt.Errorf("player %s declined the invitation", playerID)
	}
	return nil
}

// collectChoice sends CHOOSE_PARITY_CALL and parses the player's choice.
// The payload deadline is the application-level choose_parity window; the
// call itself runs under the client's transport timeout.
func (t *matchTask) collectChoice(ctx context.Context, playerID, endpoint, opponentID string) (game.Parity, error) {
	msg := protocol.New(protocol.MsgChooseParityCall, t.ref.Sender())
	msg.LeagueID = t.leagueID()
	msg.MatchID = t.match.MatchID
	msg.RoundID = t.roundID
	msg.SetPayload(protocol.ChooseParityCall{
		PlayerID: playerID,
		GameType: t.match.GameType,
		Context: protocol.ChoiceContext{
			OpponentID: opponentID,
			RoundID:    t.roundID,
		},
		Deadline: time.Now().UTC().Add(t.ref.cfg.Timeouts.ChooseParityDuration()).Format(time.RFC3339),
	})

	reply, err := t.ref.client.Call(ctx, endpoint, msg)
	if err != nil {
		return "", fmt.Errorf("choice from %s: %w", playerID, err)
	}
	if reply == nil || reply.MessageType != protocol.MsgChooseParityResponse {
		return "", fmt.Errorf("choice from %s: unexpected reply %s", playerID, replyType(reply))
	}
	var resp protocol.ChooseParityResponse
	if err := reply.Decode(&resp); err != nil {
		return "", fmt.Errorf("choice from %s: %w", playerID, err)
	}
	parity, err := game.ParseParity(resp.ParityChoice)
	if err != nil {
		return "", fmt.Errorf("choice from %s: %w", playerID, err)
	}
	return parity, nil
}

// abort handles a failed match. By default the match is abandoned with a
// log entry; with report_technical_losses enabled the non-failing player is
// awarded a technical win and the result is reported upstream.
func (t *matchTask) abort(ctx context.Context, culpritID string, code protocol.Code, cause error) {
	t.logger().Warn("Match aborted",
		"player_id", culpritID,
		"error_code", string(code),
		"error", cause)

	if !t.ref.cfg.ReportTechnicalLosses {
		return
	}

	winnerID := t.match.PlayerAID
	if culpritID == t.match.PlayerAID {
		winnerID = t.match.PlayerBID
	}
	choices := map[string]string{
		t.match.PlayerAID: "",
		t.match.PlayerBID: "",
	}
	for playerID, parity := range t.choices {
		choices[playerID] = string(parity)
	}
	reason := fmt.Sprintf("technical loss for %s: %v", culpritID, cause)

	t.notifyGameOver(ctx, protocol.GameResult{
		Status:         protocol.GameStatusTechnicalLoss,
		WinnerPlayerID: winnerID,
		Choices:        choices,
		Reason:         reason,
	})

	t.state = stateReporting
	t.report(ctx, protocol.MatchResult{
		MatchID:   t.match.MatchID,
		RoundID:   t.roundID,
		PlayerAID: t.match.PlayerAID,
		PlayerBID: t.match.PlayerBID,
		Winner:    winnerID,
		Score:     map[string]int{winnerID: 3, culpritID: 0},
		Details: protocol.MatchDetails{
			Choices: choices,
			Reason:  reason,
		},
	})
	t.state = stateDone
}

// notifyGameOver fans GAME_OVER out to both players, best effort.
func (t *matchTask) notifyGameOver(ctx context.Context, result protocol.GameResult) {
	for _, endpoint := range []string{t.match.PlayerAEndpoint, t.match.PlayerBEndpoint} {
		msg := protocol.New(protocol.MsgGameOver, t.ref.Sender())
		msg.LeagueID = t.leagueID()
		msg.MatchID = t.match.MatchID
		msg.RoundID = t.roundID
		msg.SetPayload(protocol.GameOver{
			GameType:   t.match.GameType,
			GameResult: result,
		})
		t.ref.client.Notify(ctx, endpoint, msg)
	}
}

// report delivers MATCH_RESULT_REPORT to the league manager with retries.
func (t *matchTask) report(ctx context.Context, result protocol.MatchResult) {
	msg := protocol.New(protocol.MsgMatchResultReport, t.ref.Sender())
	msg.AuthToken = t.authToken()
	msg.LeagueID = t.leagueID()
	msg.MatchID = t.match.MatchID
	msg.RoundID = t.roundID
	msg.SetPayload(protocol.MatchResultReport{
		GameType: t.match.GameType,
		Result:   result,
	})

	reply, err := t.ref.client.CallWithRetry(ctx, t.ref.cfg.LeagueManagerEndpoint, msg)
	if err != nil {
		t.logger().Error("Failed to report match result", "error", err)
		return
	}
	var ack protocol.MatchResultAck
	if reply != nil && reply.MessageType == protocol.MsgMatchResultAck && reply.Decode(&ack) == nil {
		t.logger().Info("Match result acknowledged", "status", ack.Status)
	}
}

func (t *matchTask) leagueID() string {
	t.ref.mu.Lock()
	defer t.ref.mu.Unlock()
	return t.ref.leagueID
}

func (t *matchTask) authToken() string {
	t.ref.mu.Lock()
	defer t.ref.mu.Unlock()
	return t.ref.authToken
}

func parityStrings(choices map[string]game.Parity) map[string]string {
	out := make(map[string]string, len(choices))
	for playerID, parity := range choices {
		out[playerID] = string(parity)
	}
	return out
}
