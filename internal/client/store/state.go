/*
Package store is the client synchronization store: the single mutable state container
shared by the terminal UI, the room creation handshake and the network event binder.

A *Store is created once per process and passed explicitly to every component that reads
or mutates it. All mutation goes through the typed command methods; readers take a
Snapshot or Subscribe to changes.
*/
package store

import (
	"slices"

	"masskribbl/internal/app/user"
	"masskribbl/internal/protocol"
)

const (
	// MaxMessages is how many chat messages are retained, oldest evicted first.
	MaxMessages = 100

	DefaultTool       = protocol.ToolBrush
	DefaultBrushSize  = 5
	DefaultBrushColor = "#ff0080"
)

// State is a point-in-time copy of everything the store holds.
type State struct {
	// User is the signed-in identity, nil when signed out.
	User *user.User

	// GameState is the latest server snapshot of the current room, nil outside a session.
	GameState *protocol.GameState

	// Strokes is the ordered drawing history of the current session.
	Strokes []protocol.Stroke

	// Messages is the ordered chat history, at most MaxMessages long with unique ids.
	Messages []protocol.ChatMessage

	// IsConnected mirrors the transport's connection status.
	IsConnected bool

	CurrentTool  protocol.Tool
	BrushSize    int
	BrushColor   string
	ShowChat     bool
	SoundEnabled bool
}

func defaultState() State {
	return State{
		CurrentTool:  DefaultTool,
		BrushSize:    DefaultBrushSize,
		BrushColor:   DefaultBrushColor,
		ShowChat:     true,
		SoundEnabled: true,
	}
}

// clone copies every reference held by the state so snapshots never alias store internals.
func (s State) clone() State {
	out := s
	if s.User != nil {
		u := *s.User
		out.User = &u
	}
	if s.GameState != nil {
		gs := *s.GameState
		gs.Players = slices.Clone(s.GameState.Players)
		out.GameState = &gs
	}
	out.Strokes = slices.Clone(s.Strokes)
	out.Messages = slices.Clone(s.Messages)
	return out
}

// persisted extracts the subset of the state that survives restarts.
func (s State) persisted() Persisted {
	p := Persisted{
		SoundEnabled: s.SoundEnabled,
		CurrentTool:  s.CurrentTool,
		BrushSize:    s.BrushSize,
		BrushColor:   s.BrushColor,
	}
	if s.User != nil {
		u := *s.User
		p.User = &u
	}
	return p
}

// MessageIDs returns the ids of the held messages in order.
func (s State) MessageIDs() []string {
	ids := make([]string, len(s.Messages))
	for i, m := range s.Messages {
		ids[i] = m.ID
	}
	return ids
}
