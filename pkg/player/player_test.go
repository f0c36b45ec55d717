package player

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talsheldon/mcp-league/pkg/config"
	"github.com/talsheldon/mcp-league/pkg/game"
	"github.com/talsheldon/mcp-league/pkg/protocol"
	"github.com/talsheldon/mcp-league/pkg/repository"
	"github.com/talsheldon/mcp-league/pkg/rpc"
)

// fixedStrategy always answers the same parity.
type fixedStrategy struct {
	choice game.Parity
}

func (fixedStrategy) Name() string { return "fixed" }

func (s fixedStrategy) Choose(string, ChoiceContext) game.Parity { return s.choice }

// fakeManager answers registrations and league queries like the league
// manager would.
func fakeManager(t *testing.T, onMessage func(msg *protocol.Message) *protocol.Message) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpc.Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		var msg protocol.Message
		require.NoError(t, json.Unmarshal(req.Params.Message, &msg))

		reply := onMessage(&msg)
		result, err := json.Marshal(reply)
		require.NoError(t, err)
		require.NoError(t, json.NewEncoder(w).Encode(rpc.Response{JSONRPC: "2.0", ID: req.ID, Result: result}))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func registrationHandler(t *testing.T, playerID string) func(msg *protocol.Message) *protocol.Message {
	return func(msg *protocol.Message) *protocol.Message {
		require.Equal(t, protocol.MsgLeagueRegisterRequest, msg.MessageType)
		reply := protocol.NewReply(protocol.MsgLeagueRegisterResponse, "league_manager", msg)
		reply.LeagueID = "league-test"
		reply.SetPayload(protocol.PlayerRegisterResponse{
			Status:    protocol.RegistrationAccepted,
			PlayerID:  playerID,
			AuthToken: "tok_" + playerID + "_abcd1234",
		})
		return reply
	}
}

func newRegisteredPlayer(t *testing.T, strategy Strategy) *Player {
	t.Helper()
	srv := fakeManager(t, registrationHandler(t, "P01"))

	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.ContactEndpoint = "http://player.test/mcp"
	cfg.LeagueManagerEndpoint = srv.URL + "/mcp"

	p := New(cfg, rpc.NewClient(2*time.Second), strategy)
	require.NoError(t, p.Register(context.Background(), "Test Player"))
	return p
}

func TestRegister(t *testing.T) {
	p := newRegisteredPlayer(t, Random{})
	assert.Equal(t, "P01", p.ID())
	assert.Equal(t, "player:P01", p.Sender())
}

func TestRegisterRefused(t *testing.T) {
	srv := fakeManager(t, func(msg *protocol.Message) *protocol.Message {
		reply := protocol.NewReply(protocol.MsgLeagueRegisterResponse, "league_manager", msg)
		reply.SetPayload(protocol.PlayerRegisterResponse{
			Status: "REJECTED",
			Reason: "registration closed",
		})
		return reply
	})

	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.ContactEndpoint = "http://player.test/mcp"
	cfg.LeagueManagerEndpoint = srv.URL + "/mcp"
	p := New(cfg, rpc.NewClient(2*time.Second), Random{})

	err := p.Register(context.Background(), "Test Player")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registration closed")
}

func TestHandleInvitation(t *testing.T) {
	p := newRegisteredPlayer(t, Random{})

	msg := protocol.New(protocol.MsgGameInvitation, "referee:REF01")
	msg.MatchID = "R1M1"
	msg.RoundID = 1
	msg.SetPayload(protocol.GameInvitation{
		GameType:    "even_odd",
		RoleInMatch: protocol.RolePlayerA,
		OpponentID:  "P02",
	})

	reply, err := p.HandleMessage(context.Background(), msg)
	require.NoError(t, err)
	require.Equal(t, protocol.MsgGameJoinAck, reply.MessageType)
	assert.Equal(t, msg.ConversationID, reply.ConversationID)
	assert.Equal(t, "R1M1", reply.MatchID)

	var ack protocol.GameJoinAck
	require.NoError(t, reply.Decode(&ack))
	assert.Equal(t, "P01", ack.PlayerID)
	assert.True(t, ack.Accept)
	assert.NotEmpty(t, ack.ArrivalTimestamp)
}

func TestHandleParityCall(t *testing.T) {
	p := newRegisteredPlayer(t, fixedStrategy{choice: game.Odd})

	msg := protocol.New(protocol.MsgChooseParityCall, "referee:REF01")
	msg.MatchID = "R1M1"
	msg.SetPayload(protocol.ChooseParityCall{
		PlayerID: "P01",
		GameType: "even_odd",
		Context:  protocol.ChoiceContext{OpponentID: "P02", RoundID: 1},
		Deadline: protocol.Now(),
	})

	reply, err := p.HandleMessage(context.Background(), msg)
	require.NoError(t, err)
	require.Equal(t, protocol.MsgChooseParityResponse, reply.MessageType)

	var resp protocol.ChooseParityResponse
	require.NoError(t, reply.Decode(&resp))
	assert.Equal(t, "P01", resp.PlayerID)
	assert.Equal(t, "odd", resp.ParityChoice)
}

func TestHandleGameOverAppendsHistory(t *testing.T) {
	p := newRegisteredPlayer(t, Random{})

	msg := protocol.New(protocol.MsgGameOver, "referee:REF01")
	msg.MatchID = "R1M1"
	msg.SetPayload(protocol.GameOver{
		GameType: "even_odd",
		GameResult: protocol.GameResult{
			Status:         protocol.GameStatusWin,
			WinnerPlayerID: "P02",
			DrawnNumber:    7,
			NumberParity:   "odd",
			Choices:        map[string]string{"P01": "even", "P02": "odd"},
			Reason:         "P02 chose odd, number was 7 (odd)",
		},
	})

	reply, err := p.HandleMessage(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, protocol.MsgAck, reply.MessageType)

	// The entry is persisted under the player's id.
	history, err := repository.NewHistory(p.cfg.DataDir, "P01")
	require.NoError(t, err)
	entries := history.List()
	require.Len(t, entries, 1)
	assert.Equal(t, "R1M1", entries[0].MatchID)
	assert.Equal(t, "P02", entries[0].Opponent)
	assert.Equal(t, "even", entries[0].MyChoice)
	assert.Equal(t, "odd", entries[0].OpponentChoice)
	assert.Equal(t, 7, entries[0].DrawnNumber)
	assert.False(t, entries[0].Won)
}

func TestHandleStandingsUpdate(t *testing.T) {
	p := newRegisteredPlayer(t, Random{})

	msg := protocol.New(protocol.MsgLeagueStandingsUpdate, "league_manager")
	msg.SetPayload(protocol.StandingsUpdate{
		Standings: []protocol.Standing{
			{Rank: 1, PlayerID: "P02", Points: 3},
			{Rank: 2, PlayerID: "P01", Points: 0},
		},
	})

	reply, err := p.HandleMessage(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, protocol.MsgAck, reply.MessageType)

	standings := p.Standings()
	require.Len(t, standings, 2)
	assert.Equal(t, "P02", standings[0].PlayerID)
}

func TestInformationalMessagesAreAcked(t *testing.T) {
	p := newRegisteredPlayer(t, Random{})
	for _, messageType := range []string{
		protocol.MsgRoundAnnouncement,
		protocol.MsgRoundCompleted,
		protocol.MsgLeagueCompleted,
		protocol.MsgLeagueError,
	} {
		reply, err := p.HandleMessage(context.Background(), protocol.New(messageType, "league_manager"))
		require.NoError(t, err, messageType)
		assert.Equal(t, protocol.MsgAck, reply.MessageType, messageType)
	}
}

func TestFetchStandings(t *testing.T) {
	registered := false
	srv := fakeManager(t, func(msg *protocol.Message) *protocol.Message {
		if !registered {
			registered = true
			return registrationHandler(t, "P01")(msg)
		}
		require.Equal(t, protocol.MsgLeagueQuery, msg.MessageType)
		require.Equal(t, "tok_P01_abcd1234", msg.AuthToken)

		reply := protocol.NewReply(protocol.MsgLeagueQueryResponse, "league_manager", msg)
		reply.SetPayload(protocol.LeagueQueryResponse{
			QueryType: protocol.QueryGetStandings,
			Success:   true,
			Data: protocol.QueryData{
				Standings: []protocol.Standing{{Rank: 1, PlayerID: "P01", Points: 6}},
			},
		})
		return reply
	})

	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.ContactEndpoint = "http://player.test/mcp"
	cfg.LeagueManagerEndpoint = srv.URL + "/mcp"
	p := New(cfg, rpc.NewClient(2*time.Second), Random{})
	require.NoError(t, p.Register(context.Background(), "Test Player"))

	standings, err := p.FetchStandings(context.Background())
	require.NoError(t, err)
	require.Len(t, standings, 1)
	assert.Equal(t, "P01", standings[0].PlayerID)
}

func TestFetchNextMatchSendsPlayerID(t *testing.T) {
	registered := false
	srv := fakeManager(t, func(msg *protocol.Message) *protocol.Message {
		if !registered {
			registered = true
			return registrationHandler(t, "P01")(msg)
		}
		require.Equal(t, protocol.MsgLeagueQuery, msg.MessageType)
		var query protocol.LeagueQuery
		require.NoError(t, msg.Decode(&query))
		require.Equal(t, protocol.QueryGetNextMatch, query.QueryType)
		assert.Equal(t, "P01", query.QueryParams["player_id"])

		reply := protocol.NewReply(protocol.MsgLeagueQueryResponse, "league_manager", msg)
		reply.SetPayload(protocol.LeagueQueryResponse{
			QueryType: protocol.QueryGetNextMatch,
			Success:   true,
			Data: protocol.QueryData{
				NextMatch: &protocol.MatchRecord{MatchID: "R1M1", PlayerAID: "P01", PlayerBID: "P02"},
			},
		})
		return reply
	})

	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.ContactEndpoint = "http://player.test/mcp"
	cfg.LeagueManagerEndpoint = srv.URL + "/mcp"
	p := New(cfg, rpc.NewClient(2*time.Second), Random{})
	require.NoError(t, p.Register(context.Background(), "Test Player"))

	next, err := p.FetchNextMatch(context.Background())
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "R1M1", next.MatchID)
}

func TestFetchNextMatchRejection(t *testing.T) {
	registered := false
	srv := fakeManager(t, func(msg *protocol.Message) *protocol.Message {
		if !registered {
			registered = true
			return registrationHandler(t, "P01")(msg)
		}
		return protocol.NewLeagueError("league_manager", msg.ConversationID,
			protocol.NewError(protocol.CodeAuthTokenInvalid, msg.MessageType, nil))
	})

	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.ContactEndpoint = "http://player.test/mcp"
	cfg.LeagueManagerEndpoint = srv.URL + "/mcp"
	p := New(cfg, rpc.NewClient(2*time.Second), Random{})
	require.NoError(t, p.Register(context.Background(), "Test Player"))

	_, err := p.FetchNextMatch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "E012")
}
