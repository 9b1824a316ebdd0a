package chat

import (
	"encoding/json"
	"fmt"
)

// EnvelopeType is the wire tag of an outbound payload.
type EnvelopeType string

const (
	EnvelopeTypeJoin          EnvelopeType = "join"
	EnvelopeTypeLeave         EnvelopeType = "leave"
	EnvelopeTypeMessage       EnvelopeType = "message"
	EnvelopeTypeUsers         EnvelopeType = "users"
	EnvelopeTypeWelcome       EnvelopeType = "welcome"
	EnvelopeTypeRateLimited   EnvelopeType = "rate_limited"
	EnvelopeTypeTooManyLogins EnvelopeType = "too_many_logins"
)

// Envelope is the closed set of outbound payloads. Join, Leave, Message and
// Users fan out to every session; Welcome, RateLimited and TooManyLogins go
// only to the originating session.
type Envelope interface {
	envelopeType() EnvelopeType
}

// JoinNotice announces a newly named session.
type JoinNotice struct {
	From string `json:"from"`
	Addr string `json:"ip,omitempty"`
}

// LeaveNotice announces a named session's departure.
type LeaveNotice struct {
	From string `json:"from"`
	Addr string `json:"ip,omitempty"`
}

// ChatMessage carries one chat line.
type ChatMessage struct {
	From string `json:"from"`
	Addr string `json:"ip,omitempty"`
	Text string `json:"text"`
}

// Roster is the sorted list of bound names.
type Roster struct {
	Users []string `json:"users"`
}

// Welcome confirms a join with the assigned name.
type Welcome struct {
	Username string `json:"username"`
}

// RateLimited rejects an action with a wait hint.
type RateLimited struct {
	RetryAfter int `json:"retry_after"`
}

// TooManyLogins rejects a join over the per-address cap.
type TooManyLogins struct {
	Limit int `json:"limit"`
}

func (JoinNotice) envelopeType() EnvelopeType    { return EnvelopeTypeJoin }
func (LeaveNotice) envelopeType() EnvelopeType   { return EnvelopeTypeLeave }
func (ChatMessage) envelopeType() EnvelopeType   { return EnvelopeTypeMessage }
func (Roster) envelopeType() EnvelopeType        { return EnvelopeTypeUsers }
func (Welcome) envelopeType() EnvelopeType       { return EnvelopeTypeWelcome }
func (RateLimited) envelopeType() EnvelopeType   { return EnvelopeTypeRateLimited }
func (TooManyLogins) envelopeType() EnvelopeType { return EnvelopeTypeTooManyLogins }

// Encode serializes an envelope with its wire tag. The type switch is
// exhaustive over the closed set; an unknown variant is a programming
// error.
func Encode(e Envelope) ([]byte, error) {
	switch v := e.(type) {
	case JoinNotice:
		return tagged(v.envelopeType(), v)
	case LeaveNotice:
		return tagged(v.envelopeType(), v)
	case ChatMessage:
		return tagged(v.envelopeType(), v)
	case Roster:
		if v.Users == nil {
			v.Users = []string{}
		}
		return tagged(v.envelopeType(), v)
	case Welcome:
		return tagged(v.envelopeType(), v)
	case RateLimited:
		return tagged(v.envelopeType(), v)
	case TooManyLogins:
		return tagged(v.envelopeType(), v)
	default:
		return nil, fmt.Errorf("unknown envelope type %T", e)
	}
}

func tagged(t EnvelopeType, body any) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	fields["type"], _ = json.Marshal(string(t))

	return json.Marshal(fields)
}
