package protocol

// Typed payloads for the league.v2 message catalog. Envelope-level fields
// (league_id, match_id, round_id, auth_token) are not repeated here; they
// live on the Message itself.

// League lifecycle states.
const (
	StatusNotStarted = "NOT_STARTED"
	StatusRunning    = "RUNNING"
	StatusCompleted  = "COMPLETED"
)

// Game result statuses carried in GAME_OVER.
const (
	GameStatusWin           = "WIN"
	GameStatusDraw          = "DRAW"
	GameStatusTechnicalLoss = "TECHNICAL_LOSS"
)

// RefereeMeta describes a registering referee.
type RefereeMeta struct {
	DisplayName          string   `json:"display_name"`
	Version              string   `json:"version"`
	ContactEndpoint      string   `json:"contact_endpoint"`
	GameTypes            []string `json:"game_types"`
	MaxConcurrentMatches int      `json:"max_concurrent_matches"`
}

// PlayerMeta describes a registering player.
type PlayerMeta struct {
	DisplayName     string   `json:"display_name"`
	Version         string   `json:"version"`
	ContactEndpoint string   `json:"contact_endpoint"`
	GameTypes       []string `json:"game_types"`
}

// RefereeRegisterRequest is the payload of REFEREE_REGISTER_REQUEST.
type RefereeRegisterRequest struct {
	RefereeMeta RefereeMeta `json:"referee_meta"`
}

// PlayerRegisterRequest is the payload of LEAGUE_REGISTER_REQUEST.
type PlayerRegisterRequest struct {
	PlayerMeta PlayerMeta `json:"player_meta"`
}

// RegistrationAccepted is the status a successful registration response
// carries.
const RegistrationAccepted = "ACCEPTED"

// RefereeRegisterResponse is the payload of REFEREE_REGISTER_RESPONSE.
type RefereeRegisterResponse struct {
	Status    string `json:"status"`
	RefereeID string `json:"referee_id"`
	AuthToken string `json:"auth_token"`
	Reason    string `json:"reason,omitempty"`
}

// PlayerRegisterResponse is the payload of LEAGUE_REGISTER_RESPONSE.
type PlayerRegisterResponse struct {
	Status    string `json:"status"`
	PlayerID  string `json:"player_id"`
	AuthToken string `json:"auth_token"`
	Reason    string `json:"reason,omitempty"`
}

// LeagueStatus is the payload of LEAGUE_STATUS.
type LeagueStatus struct {
	Status           string `json:"status"`
	CurrentRound     int    `json:"current_round"`
	TotalRounds      int    `json:"total_rounds"`
	MatchesCompleted int    `json:"matches_completed"`
}

// MatchRecord is one scheduled match. Endpoints are populated by the league
// manager just before a round is announced.
type MatchRecord struct {
	MatchID         string `json:"match_id"`
	GameType        string `json:"game_type"`
	PlayerAID       string `json:"player_A_id"`
	PlayerBID       string `json:"player_B_id"`
	RefereeEndpoint string `json:"referee_endpoint,omitempty"`
	PlayerAEndpoint string `json:"player_A_endpoint,omitempty"`
	PlayerBEndpoint string `json:"player_B_endpoint,omitempty"`
}

// HasPlayer reports whether the player participates in this match.
func (m MatchRecord) HasPlayer(playerID string) bool {
	return m.PlayerAID == playerID || m.PlayerBID == playerID
}

// RoundAnnouncement is the payload of ROUND_ANNOUNCEMENT.
type RoundAnnouncement struct {
	Matches []MatchRecord `json:"matches"`
}

// Roles assigned by GAME_INVITATION.
const (
	RolePlayerA = "PLAYER_A"
	RolePlayerB = "PLAYER_B"
)

// GameInvitation is the payload of GAME_INVITATION.
type GameInvitation struct {
	GameType    string `json:"game_type"`
	RoleInMatch string `json:"role_in_match"`
	OpponentID  string `json:"opponent_id"`
}

// GameJoinAck is the payload of GAME_JOIN_ACK.
type GameJoinAck struct {
	PlayerID         string `json:"player_id"`
	ArrivalTimestamp string `json:"arrival_timestamp"`
	Accept           bool   `json:"accept"`
}

// ChoiceContext is the context object inside CHOOSE_PARITY_CALL.
type ChoiceContext struct {
	OpponentID string `json:"opponent_id"`
	RoundID    int    `json:"round_id"`
}

// ChooseParityCall is the payload of CHOOSE_PARITY_CALL. Deadline is the
// application-level deadline, distinct from the transport timeout.
type ChooseParityCall struct {
	PlayerID string        `json:"player_id"`
	GameType string        `json:"game_type"`
	Context  ChoiceContext `json:"context"`
	Deadline string        `json:"deadline"`
}

// ChooseParityResponse is the payload of CHOOSE_PARITY_RESPONSE.
type ChooseParityResponse struct {
	PlayerID     string `json:"player_id"`
	ParityChoice string `json:"parity_choice"`
}

// GameResult is the game_result object inside GAME_OVER.
type GameResult struct {
	Status         string            `json:"status"`
	WinnerPlayerID string            `json:"winner_player_id,omitempty"`
	DrawnNumber    int               `json:"drawn_number"`
	NumberParity   string            `json:"number_parity"`
	Choices        map[string]string `json:"choices"`
	Reason         string            `json:"reason"`
}

// GameOver is the payload of GAME_OVER.
type GameOver struct {
	GameType   string     `json:"game_type"`
	GameResult GameResult `json:"game_result"`
}

// MatchDetails is the details object inside a match result.
type MatchDetails struct {
	DrawnNumber int               `json:"drawn_number"`
	Choices     map[string]string `json:"choices"`
	Reason      string            `json:"reason,omitempty"`
}

// MatchResult is the result record a referee reports. An empty Winner
// denotes a draw.
type MatchResult struct {
	MatchID   string         `json:"match_id"`
	RoundID   int            `json:"round_id"`
	PlayerAID string         `json:"player_A_id,omitempty"`
	PlayerBID string         `json:"player_B_id,omitempty"`
	Winner    string         `json:"winner,omitempty"`
	Score     map[string]int `json:"score"`
	Details   MatchDetails   `json:"details"`
}

// MatchResultReport is the payload of MATCH_RESULT_REPORT.
type MatchResultReport struct {
	GameType string      `json:"game_type"`
	Result   MatchResult `json:"result"`
}

// MatchResultAck is the payload of MATCH_RESULT_ACK.
type MatchResultAck struct {
	Status string `json:"status"`
}

// Standing is one row of the league table.
type Standing struct {
	Rank        int    `json:"rank"`
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name"`
	Played      int    `json:"played"`
	Wins        int    `json:"wins"`
	Draws       int    `json:"draws"`
	Losses      int    `json:"losses"`
	Points      int    `json:"points"`
}

// StandingsUpdate is the payload of LEAGUE_STANDINGS_UPDATE.
type StandingsUpdate struct {
	Standings []Standing `json:"standings"`
}

// RoundSummary is the summary object inside ROUND_COMPLETED.
type RoundSummary struct {
	TotalMatches int `json:"total_matches"`
}

// RoundCompleted is the payload of ROUND_COMPLETED.
type RoundCompleted struct {
	MatchesCompleted int          `json:"matches_completed"`
	NextRoundID      *int         `json:"next_round_id"`
	Summary          RoundSummary `json:"summary"`
}

// Champion identifies the league winner inside LEAGUE_COMPLETED.
type Champion struct {
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name"`
	Points      int    `json:"points"`
}

// LeagueCompleted is the payload of LEAGUE_COMPLETED.
type LeagueCompleted struct {
	TotalRounds    int        `json:"total_rounds"`
	TotalMatches   int        `json:"total_matches"`
	Champion       Champion   `json:"champion"`
	FinalStandings []Standing `json:"final_standings"`
}

// League query types.
const (
	QueryGetStandings = "GET_STANDINGS"
	QueryGetNextMatch = "GET_NEXT_MATCH"
)

// LeagueQuery is the payload of LEAGUE_QUERY. The auth token travels in the
// envelope auth_token field.
type LeagueQuery struct {
	QueryType   string         `json:"query_type"`
	QueryParams map[string]any `json:"query_params,omitempty"`
}

// QueryData is the data object of LEAGUE_QUERY_RESPONSE.
type QueryData struct {
	Standings []Standing   `json:"standings,omitempty"`
	NextMatch *MatchRecord `json:"next_match,omitempty"`
}

// LeagueQueryResponse is the payload of LEAGUE_QUERY_RESPONSE.
type LeagueQueryResponse struct {
	QueryType string    `json:"query_type"`
	Success   bool      `json:"success"`
	Data      QueryData `json:"data"`
}

// HistoryEntry is one per-player game history record.
type HistoryEntry struct {
	MatchID        string `json:"match_id"`
	Opponent       string `json:"opponent"`
	MyChoice       string `json:"my_choice"`
	OpponentChoice string `json:"opponent_choice"`
	DrawnNumber    int    `json:"drawn_number"`
	Winner         string `json:"winner,omitempty"`
	Won            bool   `json:"won"`
}
