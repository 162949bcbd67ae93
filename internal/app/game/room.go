/*
Package game contains the server side of the drawing game: rooms, player sessions and the
replication of strokes and chat between them.

This file defines the Room struct, the hub of a single game session. Its Run loop owns the
member list, the stroke and chat history and the host, so none of them need locking. It
replays history to joiners, relays strokes and chat, and shuts down after a period of
inactivity once empty.
*/
package game

import (
	"context"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"masskribbl/internal/pkg/errs"
	"masskribbl/internal/pkg/logx"
	"masskribbl/internal/pkg/randx"
	"masskribbl/internal/protocol"
)

const (
	// RoomInactivityTimeout is how long an empty room stays open.
	RoomInactivityTimeout = 5 * time.Minute

	// MaxChatHistory is the number of chat messages replayed to joiners.
	MaxChatHistory = 100

	// MaxRoomStrokes caps the stroke history; the oldest strokes are dropped first.
	MaxRoomStrokes = 4000

	// MaxMessageLength is the longest chat message accepted, in runes.
	MaxMessageLength = 500

	// MaxStrokePoints and MaxBrushSize bound a single stroke.
	MaxStrokePoints = 10000
	MaxBrushSize    = 100

	eventBuffer = 1024
	archiveWait = 10 * time.Second
)

var validTools = []protocol.Tool{
	protocol.ToolBrush,
	protocol.ToolEraser,
	protocol.ToolLine,
	protocol.ToolRectangle,
	protocol.ToolSquare,
	protocol.ToolCircle,
	protocol.ToolDotted,
}

// RoomCleanupMsg tells the Manager a room has stopped.
type RoomCleanupMsg struct {
	Room    *Room
	Summary RoomSummary
}

type eventKind int

const (
	eventJoin eventKind = iota
	eventLeave
	eventStroke
	eventClear
	eventChat
)

// roomEvent is one input to the Run loop. All inputs share one queue so each session's
// events are handled in the order it sent them.
type roomEvent struct {
	kind     eventKind
	from     *Session
	stroke   protocol.Stroke
	text     string
	explicit bool
	done     chan struct{}
}

// Room struct represents a single, active game room.
type Room struct {
	// unique identifier for the room.
	Code string

	MaxPlayers int
	MaxRounds  int
	CreatedAt  time.Time

	// fields below are owned by the Run loop.
	members  []*Session
	hostID   string
	strokes  []protocol.Stroke
	messages []protocol.ChatMessage

	events chan roomEvent

	// used to signal the Room to stop its Run loop immediately.
	stopChan chan struct{}
	stopOnce sync.Once

	// closed when Run has returned.
	done chan struct{}

	// player count, readable outside the loop.
	size atomic.Int32

	cleanupChan   chan<- RoomCleanupMsg
	clock         clockwork.Clock
	shutdownTimer clockwork.Timer
	archiver      Archiver

	// structured logger with room context.
	logger zerolog.Logger
}

// NewRoom creates a room. The inactivity timer starts immediately, so a room nobody joins
// closes on its own.
func NewRoom(info RoomInfo, cleanupChan chan<- RoomCleanupMsg, clock clockwork.Clock, archiver Archiver) *Room {
	return &Room{
		Code:          info.Code,
		MaxPlayers:    info.MaxPlayers,
		MaxRounds:     info.MaxRounds,
		CreatedAt:     info.CreatedAt,
		hostID:        info.HostID,
		events:        make(chan roomEvent, eventBuffer),
		stopChan:      make(chan struct{}),
		done:          make(chan struct{}),
		cleanupChan:   cleanupChan,
		clock:         clock,
		shutdownTimer: clock.NewTimer(RoomInactivityTimeout),
		archiver:      archiver,
		logger:        logx.Logger().With().Str("room_code", info.Code).Logger(),
	}
}

// Stop terminates the Run loop.
func (r *Room) Stop() {
	r.stopOnce.Do(func() {
		r.logger.Info().Msg("Received stop signal. Stopping room immediately.")
		close(r.stopChan)
	})
}

// Done is closed once the room has shut down.
func (r *Room) Done() <-chan struct{} {
	return r.done
}

// PlayerCount returns the number of players in the room.
func (r *Room) PlayerCount() int {
	return int(r.size.Load())
}

// IsFull reports whether the room has reached MaxPlayers.
func (r *Room) IsFull() bool {
	return r.PlayerCount() >= r.MaxPlayers
}

// Join adds s and returns once the room has processed it, so events s sends afterwards
// are routed to this room. It reports whether s is now a member; a rejected join has
// already been answered with an error event.
func (r *Room) Join(s *Session) bool {
	r.await(roomEvent{kind: eventJoin, from: s})
	if s.CurrentRoom() == r {
		return true
	}
	select {
	case <-r.done:
		s.SendError(errs.NewError(errs.ErrRoomNotFound))
	default:
	}
	return false
}

// Leave removes s and returns once the room has processed it, so no further frames from
// this room are queued to s afterwards. explicit leaves are answered with room:left.
func (r *Room) Leave(s *Session, explicit bool) {
	r.await(roomEvent{kind: eventLeave, from: s, explicit: explicit})
}

// await queues ev and waits until the Run loop has handled it or the room has shut down.
func (r *Room) await(ev roomEvent) {
	ev.done = make(chan struct{})
	select {
	case r.events <- ev:
	case <-r.done:
		return
	}
	select {
	case <-ev.done:
	case <-r.done:
	}
}

// Stroke queues a stroke drawn by s.
func (r *Room) Stroke(s *Session, stroke protocol.Stroke) {
	r.submit(roomEvent{kind: eventStroke, from: s, stroke: stroke})
}

// Clear queues a canvas clear by s.
func (r *Room) Clear(s *Session) {
	r.submit(roomEvent{kind: eventClear, from: s})
}

// Chat queues a chat message from s.
func (r *Room) Chat(s *Session, text string) {
	r.submit(roomEvent{kind: eventChat, from: s, text: text})
}

func (r *Room) submit(ev roomEvent) {
	select {
	case r.events <- ev:
	case <-r.done:
		ev.from.SendError(errs.NewError(errs.ErrRoomNotFound))
	}
}

// Run starts the main event loop for the Room.
func (r *Room) Run() {
	defer r.shutdown()

	for {
		select {
		case ev := <-r.events:
			r.pruneClosed()
			switch ev.kind {
			case eventJoin:
				r.handleJoin(ev.from)
				close(ev.done)
			case eventLeave:
				r.handleLeave(ev)
			default:
				r.handleAction(ev)
			}

		case <-r.shutdownTimer.Chan():
			r.logger.Info().Msgf("Room inactivity timeout (%s) reached. Shutting down Room.Run() loop.", RoomInactivityTimeout)
			return

		case <-r.stopChan:
			r.logger.Info().Msg("Room forced stop initiated.")
			return
		}
	}
}

// shutdown detaches every member, archives the drawing and notifies the Manager.
func (r *Room) shutdown() {
	stopAndDrainTimer(r.shutdownTimer)
	close(r.done)

	for _, s := range r.members {
		s.detach(r)
		s.Emit(protocol.EventRoomLeft, r.Code)
	}
	r.members = nil
	r.size.Store(0)

	if r.archiver != nil && len(r.strokes) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), archiveWait)
		if err := r.archiver.ArchiveStrokes(ctx, r.Code, r.strokes); err != nil {
			r.logger.Error().Err(err).Int("strokes", len(r.strokes)).Msg("Failed to archive drawing.")
		} else {
			r.logger.Info().Int("strokes", len(r.strokes)).Msg("Drawing archived.")
		}
		cancel()
	}

	r.cleanupChan <- RoomCleanupMsg{
		Room: r,
		Summary: RoomSummary{
			Code:     r.Code,
			ClosedAt: r.clock.Now(),
			Strokes:  len(r.strokes),
			Messages: len(r.messages),
		},
	}
	r.logger.Info().Msg("Room Run loop finished.")
}

func (r *Room) handleJoin(s *Session) {
	if s.closed() {
		return
	}
	if r.memberIndex(s) >= 0 {
		s.attach(r)
		s.Emit(protocol.EventGameState, r.state())
		return
	}

	u := s.User()

	// A second connection of the same player replaces the first.
	if i := slices.IndexFunc(r.members, func(m *Session) bool { return m.User().ID == u.ID }); i >= 0 {
		old := r.members[i]
		r.logger.Warn().Str("client_id", u.ID).Msg("Player already connected. Replacing old session.")
		old.detach(r)
		old.Emit(protocol.EventRoomLeft, r.Code)
		r.members[i] = s
	} else {
		if len(r.members) >= r.MaxPlayers {
			r.logger.Warn().
				Int("max_players", r.MaxPlayers).
				Str("client_id", u.ID).
				Msg("Room is full. New player rejected.")
			s.SendError(errs.NewError(errs.ErrRoomIsFull))
			return
		}
		if len(r.members) == 0 {
			stopAndDrainTimer(r.shutdownTimer)
		}
		r.members = append(r.members, s)
	}

	if r.memberIndexByID(r.hostID) < 0 {
		r.hostID = u.ID
	}
	r.size.Store(int32(len(r.members)))
	s.attach(r)

	r.logger.Info().
		Str("client_id", u.ID).
		Int("total_players", len(r.members)).
		Msg("Player joined room.")

	s.Emit(protocol.EventGameState, r.state())
	for _, stroke := range r.strokes {
		s.Emit(protocol.EventDrawStroke, stroke)
	}
	for _, m := range r.messages {
		s.Emit(protocol.EventChatMessage, m)
	}

	r.broadcast(nil, protocol.EventGameState, r.state())
	r.systemMessage(u.Username + " joined the room.")
}

func (r *Room) handleLeave(req roomEvent) {
	defer close(req.done)
	r.removeMember(req.from, req.explicit)
}

// pruneClosed drops members whose connection ended without a leave reaching the room.
func (r *Room) pruneClosed() {
	for _, s := range slices.Clone(r.members) {
		if s.closed() {
			r.removeMember(s, false)
		}
	}
}

func (r *Room) removeMember(s *Session, explicit bool) {
	i := r.memberIndex(s)
	if i < 0 {
		return
	}

	r.members = slices.Delete(r.members, i, i+1)
	r.size.Store(int32(len(r.members)))
	s.detach(r)

	u := s.User()
	if explicit {
		s.Emit(protocol.EventRoomLeft, r.Code)
	}

	r.logger.Info().
		Str("client_id", u.ID).
		Int("total_players", len(r.members)).
		Msg("Player left room.")

	if len(r.members) == 0 {
		r.logger.Info().Msgf("Room is empty. Closing in %s unless someone joins.", RoomInactivityTimeout)
		r.shutdownTimer.Reset(RoomInactivityTimeout)
		return
	}

	if r.hostID == u.ID {
		r.hostID = r.members[0].User().ID
		r.logger.Info().Str("host_id", r.hostID).Msg("Host passed to next player.")
	}

	r.broadcast(nil, protocol.EventGameState, r.state())
	r.systemMessage(u.Username + " left the room.")
}

func (r *Room) handleAction(a roomEvent) {
	if r.memberIndex(a.from) < 0 {
		a.from.SendError(errs.NewError(errs.ErrNotInRoom))
		return
	}

	switch a.kind {
	case eventStroke:
		stroke, ok := r.normalizeStroke(a.from, a.stroke)
		if !ok {
			a.from.SendError(errs.NewError(errs.ErrStrokeInvalid))
			return
		}
		r.strokes = append(r.strokes, stroke)
		if len(r.strokes) > MaxRoomStrokes {
			r.strokes = slices.Clone(r.strokes[len(r.strokes)-MaxRoomStrokes:])
		}
		r.broadcast(a.from, protocol.EventDrawStroke, stroke)

	case eventClear:
		r.strokes = nil
		r.broadcast(a.from, protocol.EventCanvasClear, nil)

	case eventChat:
		text := strings.TrimSpace(a.text)
		if text == "" {
			return
		}
		if utf8.RuneCountInString(text) > MaxMessageLength {
			a.from.SendError(errs.NewError(errs.ErrMessageContentTooLong))
			return
		}
		u := a.from.User()
		r.appendMessage(protocol.ChatMessage{
			ID:        randx.MessageID(),
			PlayerID:  u.ID,
			Username:  u.Username,
			Message:   text,
			Type:      protocol.MessageChat,
			Timestamp: r.clock.Now().UnixMilli(),
		})
	}
}

// normalizeStroke validates a stroke and stamps the server-owned fields.
func (r *Room) normalizeStroke(from *Session, stroke protocol.Stroke) (protocol.Stroke, bool) {
	if !slices.Contains(validTools, stroke.Tool) {
		return stroke, false
	}
	if n := len(stroke.Points); n == 0 || n > MaxStrokePoints {
		return stroke, false
	}
	if stroke.Size < 1 || stroke.Size > MaxBrushSize {
		return stroke, false
	}
	if stroke.Color == "" || len(stroke.Color) > 32 {
		return stroke, false
	}

	if stroke.ID == "" {
		stroke.ID = randx.StrokeID()
	}
	stroke.PlayerID = from.User().ID
	if stroke.Timestamp == 0 {
		stroke.Timestamp = r.clock.Now().UnixMilli()
	}
	return stroke, true
}

// appendMessage stores m in the replay window and sends it to every member, the author included.
func (r *Room) appendMessage(m protocol.ChatMessage) {
	r.messages = append(r.messages, m)
	if len(r.messages) > MaxChatHistory {
		r.messages = slices.Clone(r.messages[len(r.messages)-MaxChatHistory:])
	}
	r.broadcast(nil, protocol.EventChatMessage, m)
}

func (r *Room) systemMessage(text string) {
	r.appendMessage(protocol.ChatMessage{
		ID:        randx.MessageID(),
		Username:  "system",
		Message:   text,
		Type:      protocol.MessageSystem,
		Timestamp: r.clock.Now().UnixMilli(),
	})
}

// broadcast sends event to every member except skip (nil for all).
func (r *Room) broadcast(skip *Session, event string, data any) {
	frame, err := protocol.Encode(event, data)
	if err != nil {
		r.logger.Error().Err(err).Str("event", event).Msg("Error marshaling event for broadcast.")
		return
	}

	for _, s := range r.members {
		if s == skip {
			continue
		}
		if !s.enqueue(frame) {
			r.logger.Warn().Str("client_id", s.User().ID).Str("event", event).Msg("Session send queue full, dropping event.")
		}
	}
}

func (r *Room) state() protocol.GameState {
	players := make([]protocol.Player, 0, len(r.members))
	for _, s := range r.members {
		u := s.User()
		players = append(players, protocol.Player{
			ID:       u.ID,
			Username: u.Username,
			Avatar:   u.Avatar,
			IsHost:   u.ID == r.hostID,
		})
	}

	return protocol.GameState{
		RoomCode:   r.Code,
		HostID:     r.hostID,
		Players:    players,
		MaxPlayers: r.MaxPlayers,
		MaxRounds:  r.MaxRounds,
		Phase:      protocol.PhaseWaiting,
	}
}

func (r *Room) memberIndex(s *Session) int {
	return slices.Index(r.members, s)
}

func (r *Room) memberIndexByID(id string) int {
	return slices.IndexFunc(r.members, func(m *Session) bool { return m.User().ID == id })
}

// stopAndDrainTimer stops timer and empties its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
