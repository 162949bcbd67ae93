/*
Package netsync applies server events to the client store.
*/
package netsync

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"masskribbl/internal/client/socket"
	"masskribbl/internal/client/store"
	"masskribbl/internal/pkg/logx"
	"masskribbl/internal/protocol"
)

// Source delivers inbound events and connection status changes.
type Source interface {
	On(event string, fn socket.Handler) (off func())
	OnStatus(fn func(connected bool))
}

// Bind registers the store's handlers on src. The returned function removes the event
// handlers; status updates keep flowing for the life of src.
func Bind(src Source, st *store.Store) (unbind func()) {
	logger := logx.Component("netsync")

	offs := []func(){
		src.On(protocol.EventGameState, decoded(logger, protocol.EventGameState, func(gs protocol.GameState) {
			st.SetGameState(&gs)
		})),
		src.On(protocol.EventDrawStroke, decoded(logger, protocol.EventDrawStroke, st.AddStroke)),
		src.On(protocol.EventCanvasClear, func(json.RawMessage) {
			st.ClearStrokes()
		}),
		src.On(protocol.EventChatMessage, decoded(logger, protocol.EventChatMessage, st.AddMessage)),
		src.On(protocol.EventRoomLeft, func(json.RawMessage) {
			st.EndSession()
		}),
		// Creating a room moves the session out of its current one without room:left;
		// the new room's state follows this event.
		src.On(protocol.EventRoomCreated, func(json.RawMessage) {
			st.EndSession()
		}),
	}

	src.OnStatus(st.SetIsConnected)

	return func() {
		for _, off := range offs {
			off()
		}
	}
}

// decoded unmarshals the event data into T before calling apply. Bad payloads are dropped.
func decoded[T any](logger zerolog.Logger, event string, apply func(T)) socket.Handler {
	return func(data json.RawMessage) {
		var v T
		if len(data) == 0 {
			logger.Warn().Str("event", event).Msg("Event without data dropped.")
			return
		}
		if err := json.Unmarshal(data, &v); err != nil {
			logger.Warn().Err(err).Str("event", event).Msg("Malformed event dropped.")
			return
		}
		apply(v)
	}
}
