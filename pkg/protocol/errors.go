package protocol

import "fmt"

// Code is a league.v2 protocol error code (E001..E023).
type Code string

// Protocol error codes.
const (
	CodeInvalidMessageFormat       Code = "E001"
	CodeUnsupportedProtocolVersion Code = "E002"
	CodeMissingRequiredField       Code = "E003"
	CodeInvalidFieldValue          Code = "E004"
	CodeNotEnoughPlayers           Code = "E005"
	CodeDuplicateRegistration      Code = "E006"
	CodeInvalidAgentMetadata       Code = "E007"
	CodeInvalidPlayerID            Code = "E008"
	CodeInvalidRefereeID           Code = "E009"
	CodeInvalidLeagueID            Code = "E010"
	CodeInvalidMatchID             Code = "E011"
	CodeAuthTokenInvalid           Code = "E012"
	CodeAuthTokenExpired           Code = "E013"
	CodeAuthTokenMissing           Code = "E014"
	CodeGameAlreadyStarted         Code = "E015"
	CodePlayerNotRegistered        Code = "E016"
	CodeRefereeNotRegistered       Code = "E017"
	CodeMatchNotFound              Code = "E018"
	CodeChoiceTimeout              Code = "E019"
	CodeJoinTimeout                Code = "E020"
	CodeLeagueAlreadyStarted       Code = "E021"
	CodeLeagueNotStarted           Code = "E022"
	CodeRoundNotFound              Code = "E023"
)

var descriptions = map[Code]string{
	CodeInvalidMessageFormat:       "INVALID_MESSAGE_FORMAT",
	CodeUnsupportedProtocolVersion: "UNSUPPORTED_PROTOCOL_VERSION",
	CodeMissingRequiredField:       "MISSING_REQUIRED_FIELD",
	CodeInvalidFieldValue:          "INVALID_FIELD_VALUE",
	CodeNotEnoughPlayers:           "NOT_ENOUGH_PLAYERS",
	CodeDuplicateRegistration:      "DUPLICATE_REGISTRATION",
	CodeInvalidAgentMetadata:       "INVALID_AGENT_METADATA",
	CodeInvalidPlayerID:            "INVALID_PLAYER_ID",
	CodeInvalidRefereeID:           "INVALID_REFEREE_ID",
	CodeInvalidLeagueID:            "INVALID_LEAGUE_ID",
	CodeInvalidMatchID:             "INVALID_MATCH_ID",
	CodeAuthTokenInvalid:           "AUTH_TOKEN_INVALID",
	CodeAuthTokenExpired:           "AUTH_TOKEN_EXPIRED",
	CodeAuthTokenMissing:           "AUTH_TOKEN_MISSING",
	CodeGameAlreadyStarted:         "GAME_ALREADY_STARTED",
	CodePlayerNotRegistered:        "PLAYER_NOT_REGISTERED",
	CodeRefereeNotRegistered:       "REFEREE_NOT_REGISTERED",
	CodeMatchNotFound:              "MATCH_NOT_FOUND",
	CodeChoiceTimeout:              "CHOICE_TIMEOUT",
	CodeJoinTimeout:                "JOIN_TIMEOUT",
	CodeLeagueAlreadyStarted:       "LEAGUE_ALREADY_STARTED",
	CodeLeagueNotStarted:           "LEAGUE_NOT_STARTED",
	CodeRoundNotFound:              "ROUND_NOT_FOUND",
}

// Description returns the registry name for the code ("AUTH_TOKEN_INVALID", ...).
func (c Code) Description() string {
	if d, ok := descriptions[c]; ok {
		return d
	}
	return "UNKNOWN_ERROR"
}

// Error is a protocol-visible failure. It carries everything needed to build
// a LEAGUE_ERROR payload.
type Error struct {
	Code                Code
	OriginalMessageType string
	Context             map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Code.Description())
}

// NewError creates a protocol error. context may be nil.
func NewError(code Code, originalMessageType string, context map[string]any) *Error {
	return &Error{
		Code:                code,
		OriginalMessageType: originalMessageType,
		Context:             context,
	}
}

// LeagueError is the LEAGUE_ERROR payload.
type LeagueError struct {
	ErrorCode           string         `json:"error_code"`
	ErrorDescription    string         `json:"error_description"`
	OriginalMessageType string         `json:"original_message_type"`
	Context             map[string]any `json:"context"`
}

// NewLeagueError builds a LEAGUE_ERROR message replying to conversationID.
func NewLeagueError(sender, conversationID string, e *Error) *Message {
	ctx := e.Context
	if ctx == nil {
		ctx = map[string]any{}
	}
	m := New(MsgLeagueError, sender)
	if conversationID != "" {
		m.ConversationID = conversationID
	}
	m.Set("error_code", string(e.Code))
	m.Set("error_description", e.Code.Description())
	m.Set("original_message_type", e.OriginalMessageType)
	m.Set("context", ctx)
	return m
}
