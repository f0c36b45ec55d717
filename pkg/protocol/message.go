// Package protocol implements the league.v2 message envelope, the message
// catalog, inbound validation, and the protocol error registry shared by the
// league manager, referee, and player agents.
package protocol

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Version is the only protocol version this runtime speaks.
const Version = "league.v2"

// Message types exchanged between agents.
const (
	MsgRefereeRegisterRequest  = "REFEREE_REGISTER_REQUEST"
	MsgRefereeRegisterResponse = "REFEREE_REGISTER_RESPONSE"
	MsgLeagueRegisterRequest   = "LEAGUE_REGISTER_REQUEST"
	MsgLeagueRegisterResponse  = "LEAGUE_REGISTER_RESPONSE"
	MsgStartLeague             = "START_LEAGUE"
	MsgLeagueStatus            = "LEAGUE_STATUS"
	MsgRoundAnnouncement       = "ROUND_ANNOUNCEMENT"
	MsgGameInvitation          = "GAME_INVITATION"
	MsgGameJoinAck             = "GAME_JOIN_ACK"
	MsgChooseParityCall        = "CHOOSE_PARITY_CALL"
	MsgChooseParityResponse    = "CHOOSE_PARITY_RESPONSE"
	MsgGameOver                = "GAME_OVER"
	MsgMatchResultReport       = "MATCH_RESULT_REPORT"
	MsgMatchResultAck          = "MATCH_RESULT_ACK"
	MsgLeagueStandingsUpdate   = "LEAGUE_STANDINGS_UPDATE"
	MsgRoundCompleted          = "ROUND_COMPLETED"
	MsgLeagueCompleted         = "LEAGUE_COMPLETED"
	MsgLeagueQuery             = "LEAGUE_QUERY"
	MsgLeagueQueryResponse     = "LEAGUE_QUERY_RESPONSE"
	MsgLeagueError             = "LEAGUE_ERROR"
	MsgAck                     = "ACK"
)

// requiredFields are the envelope fields every message must carry.
var requiredFields = []string{"protocol", "message_type", "sender", "timestamp", "conversation_id"}

// Message is a league.v2 envelope plus an open, message-type-specific payload.
// The payload fields are flattened into the top-level JSON object on the wire,
// exactly like the envelope fields.
type Message struct {
	Protocol       string
	MessageType    string
	Sender         string
	Timestamp      string
	ConversationID string

	// Optional envelope fields. Zero values are omitted on the wire.
	AuthToken string
	LeagueID  string
	MatchID   string
	RoundID   int

	payload map[string]json.RawMessage
}

// New creates a message with a fresh conversation id and a UTC timestamp.
func New(messageType, sender string) *Message {
	return &Message{
		Protocol:       Version,
		MessageType:    messageType,
		Sender:         sender,
		Timestamp:      Now(),
		ConversationID: "conv-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		payload:        map[string]json.RawMessage{},
	}
}

// NewReply creates a message of the given type echoing the request's
// conversation id, per the correlation rule of the protocol.
func NewReply(messageType, sender string, req *Message) *Message {
	m := New(messageType, sender)
	m.ConversationID = req.ConversationID
	return m
}

// Now returns the current instant as an ISO-8601 UTC timestamp ending in Z.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Set attaches a payload field. Marshal failures are logged and the field is
// dropped; payload values are plain data types that marshal cleanly.
func (m *Message) Set(key string, v any) *Message {
	b, err := json.Marshal(v)
	if err != nil {
		slog.Error("Dropping unmarshalable payload field", "key", key, "error", err)
		return m
	}
	if m.payload == nil {
		m.payload = map[string]json.RawMessage{}
	}
	m.payload[key] = b
	return m
}

// Get decodes a single payload field into out. Returns false when absent.
func (m *Message) Get(key string, out any) (bool, error) {
	raw, ok := m.payload[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, fmt.Errorf("decode payload field %q: %w", key, err)
	}
	return true, nil
}

// Has reports whether a payload field is present.
func (m *Message) Has(key string) bool {
	_, ok := m.payload[key]
	return ok
}

// SetPayload flattens the fields of a payload struct into the message.
func (m *Message) SetPayload(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &fields); err != nil {
		return fmt.Errorf("payload must be a struct or map: %w", err)
	}
	if m.payload == nil {
		m.payload = map[string]json.RawMessage{}
	}
	for k, v := range fields {
		m.payload[k] = v
	}
	return nil
}

// Decode unmarshals the payload fields into a typed payload struct.
// Envelope fields are not part of the payload; read them off the Message.
func (m *Message) Decode(out any) error {
	b, err := json.Marshal(m.payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.MessageType, err)
	}
	return nil
}

// envelopeKeys are the reserved top-level fields handled by the Message
// struct itself; everything else round-trips through the payload map.
var envelopeKeys = map[string]bool{
	"protocol": true, "message_type": true, "sender": true,
	"timestamp": true, "conversation_id": true,
	"auth_token": true, "league_id": true, "match_id": true, "round_id": true,
}

// MarshalJSON flattens envelope and payload fields into one JSON object.
func (m *Message) MarshalJSON() ([]byte, error) {
	obj := make(map[string]json.RawMessage, len(m.payload)+9)
	put := func(key string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		obj[key] = b
		return nil
	}
	for k, v := range m.payload {
		obj[k] = v
	}
	if err := put("protocol", m.Protocol); err != nil {
		return nil, err
	}
	if err := put("message_type", m.MessageType); err != nil {
		return nil, err
	}
	if err := put("sender", m.Sender); err != nil {
		return nil, err
	}
	if err := put("timestamp", m.Timestamp); err != nil {
		return nil, err
	}
	if err := put("conversation_id", m.ConversationID); err != nil {
		return nil, err
	}
	if m.AuthToken != "" {
		if err := put("auth_token", m.AuthToken); err != nil {
			return nil, err
		}
	}
	if m.LeagueID != "" {
		if err := put("league_id", m.LeagueID); err != nil {
			return nil, err
		}
	}
	if m.MatchID != "" {
		if err := put("match_id", m.MatchID); err != nil {
			return nil, err
		}
	}
	if m.RoundID != 0 {
		if err := put("round_id", m.RoundID); err != nil {
			return nil, err
		}
	}
	return json.Marshal(obj)
}

// UnmarshalJSON splits a flat JSON object back into envelope and payload.
func (m *Message) UnmarshalJSON(data []byte) error {
	obj := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("message is not a JSON object: %w", err)
	}
	take := func(key string, out any) error {
		raw, ok := obj[key]
		if !ok {
			return nil
		}
		return json.Unmarshal(raw, out)
	}
	if err := take("protocol", &m.Protocol); err != nil {
		return err
	}
	if err := take("message_type", &m.MessageType); err != nil {
		return err
	}
	if err := take("sender", &m.Sender); err != nil {
		return err
	}
	if err := take("timestamp", &m.Timestamp); err != nil {
		return err
	}
	if err := take("conversation_id", &m.ConversationID); err != nil {
		return err
	}
	if err := take("auth_token", &m.AuthToken); err != nil {
		return err
	}
	if err := take("league_id", &m.LeagueID); err != nil {
		return err
	}
	if err := take("match_id", &m.MatchID); err != nil {
		return err
	}
	if err := take("round_id", &m.RoundID); err != nil {
		return err
	}
	m.payload = map[string]json.RawMessage{}
	for k, v := range obj {
		if !envelopeKeys[k] {
			m.payload[k] = v
		}
	}
	return nil
}

// Validate checks an inbound raw message against the envelope rules.
// The checks run in protocol order: structure (E001), required fields (E003),
// protocol version (E002), timestamp format (E004).
func Validate(raw json.RawMessage) *Error {
	obj := map[string]json.RawMessage{}
	if len(raw) == 0 || json.Unmarshal(raw, &obj) != nil {
		return NewError(CodeInvalidMessageFormat, "", map[string]any{
			"reason": "message must be a JSON object",
		})
	}
	var missing []string
	for _, field := range requiredFields {
		v, ok := obj[field]
		if !ok || string(v) == "null" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return NewError(CodeMissingRequiredField, messageTypeOf(obj), map[string]any{
			"missing_fields": missing,
		})
	}
	var version string
	if err := json.Unmarshal(obj["protocol"], &version); err != nil || version != Version {
		return NewError(CodeUnsupportedProtocolVersion, messageTypeOf(obj), map[string]any{
			"provided_protocol": version,
			"supported":         Version,
		})
	}
	var ts string
	if err := json.Unmarshal(obj["timestamp"], &ts); err != nil ||
		(!strings.HasSuffix(ts, "Z") && !strings.Contains(ts, "+00:00")) {
		return NewError(CodeInvalidFieldValue, messageTypeOf(obj), map[string]any{
			"field":  "timestamp",
			"reason": "timestamp must be an ISO-8601 UTC instant",
		})
	}
	return nil
}

func messageTypeOf(obj map[string]json.RawMessage) string {
	var t string
	if raw, ok := obj["message_type"]; ok {
		_ = json.Unmarshal(raw, &t)
	}
	return t
}

// ConversationIDOf extracts the conversation id from a raw message,
// best-effort. Used to correlate error replies to invalid requests.
func ConversationIDOf(raw json.RawMessage) string {
	var probe struct {
		ConversationID string `json:"conversation_id"`
	}
	_ = json.Unmarshal(raw, &probe)
	return probe.ConversationID
}

// SenderID extracts the agent id from a sender field of the form "kind:id".
// The id is the substring after the last colon, or the whole sender when no
// colon appears.
func SenderID(sender string) string {
	if i := strings.LastIndex(sender, ":"); i >= 0 {
		return sender[i+1:]
	}
	return sender
}
