/*
Package protocol defines the event-based wire protocol shared by the game server and the
terminal client.

Every websocket text frame is an Envelope: {"event": "<name>", "data": <json>}. The data
shape depends on the event name; see the payload types in this package.
*/
package protocol

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Event names.
const (
	EventRoomCreate  = "room:create"
	EventRoomCreated = "room:created"
	EventError       = "error"
	EventRoomJoin    = "room:join"
	EventRoomLeave   = "room:leave"
	EventRoomLeft    = "room:left"
	EventGameState   = "game:state"
	EventDrawStroke  = "draw:stroke"
	EventCanvasClear = "canvas:clear"
	EventChatSend    = "chat:send"
	EventChatMessage = "chat:message"
)

// AllowedMaxPlayers and AllowedMaxRounds are the only room sizes and lengths a host may pick.
var (
	AllowedMaxPlayers = []int{4, 6, 8, 12}
	AllowedMaxRounds  = []int{2, 3, 5}
)

// ValidRoomOptions reports whether maxPlayers and maxRounds are both from the allowed sets.
func ValidRoomOptions(maxPlayers, maxRounds int) bool {
	return slices.Contains(AllowedMaxPlayers, maxPlayers) && slices.Contains(AllowedMaxRounds, maxRounds)
}

// Envelope is a single framed event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode marshals data and wraps it in an Envelope. A nil data produces no data field.
func Encode(event string, data any) ([]byte, error) {
	env := Envelope{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", event, err)
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

// Decode parses a frame into an Envelope.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing event name")
	}
	return env, nil
}

// Bind unmarshals the envelope data into dst.
func (e Envelope) Bind(dst any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s: missing data", e.Event)
	}
	if err := json.Unmarshal(e.Data, dst); err != nil {
		return fmt.Errorf("%s: %w", e.Event, err)
	}
	return nil
}
