/*
Package game contains the server side of the drawing game: rooms, player sessions and the
replication of strokes and chat between them.

This file defines the Session struct, one per websocket connection. It runs the read and write
pumps, decodes inbound events and routes them to the Manager or to the session's current Room.
A session outlives the rooms it visits.
*/
package game

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"masskribbl/internal/app/user"
	"masskribbl/internal/pkg/errs"
	"masskribbl/internal/pkg/logx"
	"masskribbl/internal/pkg/randx"
	"masskribbl/internal/protocol"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxMessageSize = 64 * 1024

	// outbound queue length; large enough to replay a full room history.
	sendBuffer = MaxRoomStrokes + MaxChatHistory + 64
)

var (
	// CreateRate and CreateBurst limit room:create per session.
	CreateRate  = rate.Every(5 * time.Second)
	CreateBurst = 3
)

// Session represents an active websocket connection and its authenticated player.
type Session struct {
	manager *Manager

	// underlying WebSocket connection object; nil in tests.
	conn *websocket.Conn

	user user.User

	// the room the session is currently in, set and cleared by that room. Join and Leave
	// wait for the room, so the read pump always sees the result of its own requests.
	room atomic.Pointer[Room]

	// queued outbound frames.
	send chan []byte

	// closed when the read pump ends.
	done      chan struct{}
	closeOnce sync.Once

	createLimiter *rate.Limiter

	logger zerolog.Logger
}

// NewSession constructs a Session for an upgraded connection.
func NewSession(manager *Manager, conn *websocket.Conn, u user.User) *Session {
	return &Session{
		manager:       manager,
		conn:          conn,
		user:          u,
		send:          make(chan []byte, sendBuffer),
		done:          make(chan struct{}),
		createLimiter: rate.NewLimiter(CreateRate, CreateBurst),
		logger:        logx.Logger().With().Str("client_id", u.ID).Logger(),
	}
}

// User returns the session's player.
func (s *Session) User() user.User {
	return s.user
}

// CurrentRoom returns the room the session is in, or nil.
func (s *Session) CurrentRoom() *Room {
	return s.room.Load()
}

func (s *Session) attach(r *Room) {
	s.room.Store(r)
}

func (s *Session) detach(r *Room) {
	s.room.CompareAndSwap(r, nil)
}

// Done is closed once the connection has ended.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// ReadPump reads frames until the connection fails, then leaves the current room.
func (s *Session) ReadPump() {
	defer s.cleanupOnDisconnect()

	s.conn.SetReadLimit(maxMessageSize)

	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Info().Err(err).Msg("Error reading message (Client close/going away)")
			}
			return
		}

		env, err := protocol.Decode(frame)
		if err != nil {
			s.logger.Warn().Err(err).Bytes("frame", frame).Msg("Client sent invalid frame")
			s.SendError(errs.NewError(errs.ErrInvalidJSONFormat))
			continue
		}

		s.Handle(env)
	}
}

func (s *Session) cleanupOnDisconnect() {
	s.logger.Info().Msg("Session cleanup starting.")

	// closed first: a join still queued in a room is then ignored or pruned.
	s.close()
	if r := s.CurrentRoom(); r != nil {
		r.Leave(s, false)
	}
}

// WritePump writes queued frames and pings until the session ends.
func (s *Session) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		if err := s.conn.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("Connection close error in WritePump")
		}
	}()

	for {
		select {
		case frame := <-s.send:
			if !s.write(websocket.TextMessage, frame) {
				return
			}

		case <-ticker.C:
			if !s.write(websocket.PingMessage, nil) {
				return
			}

		case <-s.done:
			s.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (s *Session) write(messageType int, data []byte) bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}
	if err := s.conn.WriteMessage(messageType, data); err != nil {
		if !errors.Is(err, websocket.ErrCloseSent) {
			s.logger.Error().Err(err).Int("message_type", messageType).Msg("Error writing message")
		}
		return false
	}
	return true
}

// Emit encodes and queues one event. It reports false when the frame was dropped.
func (s *Session) Emit(event string, data any) bool {
	frame, err := protocol.Encode(event, data)
	if err != nil {
		s.logger.Error().Err(err).Str("event", event).Msg("Error marshaling event for client")
		return false
	}
	return s.enqueue(frame)
}

// enqueue never blocks: a full queue or a closed session drops the frame.
func (s *Session) enqueue(frame []byte) bool {
	if s.closed() {
		return false
	}

	select {
	case s.send <- frame:
		return true
	default:
		s.logger.Warn().Int("queue_len", len(s.send)).Msg("Session send channel full, dropping message")
		return false
	}
}

// SendError sends err's user-facing message as an error event.
func (s *Session) SendError(err error) {
	var customErr *errs.CustomError
	if !errors.As(err, &customErr) {
		s.logger.Error().Err(err).Msg("Unclassified error sent to client")
		customErr = errs.NewError(errs.ErrUnknown)
	}
	s.Emit(protocol.EventError, customErr.Message)
}

// Handle routes one inbound event.
func (s *Session) Handle(env protocol.Envelope) {
	switch env.Event {
	case protocol.EventRoomCreate:
		s.handleCreate(env)
	case protocol.EventRoomJoin:
		s.handleJoin(env)
	case protocol.EventRoomLeave:
		s.handleLeave()
	case protocol.EventDrawStroke:
		s.handleStroke(env)
	case protocol.EventCanvasClear:
		s.inRoom(func(r *Room) { r.Clear(s) })
	case protocol.EventChatSend:
		s.handleChat(env)
	default:
		s.logger.Warn().Str("event", env.Event).Msg("Client sent unsupported event")
		s.SendError(errs.NewError(errs.ErrUnsupportedEvent, env.Event))
	}
}

func (s *Session) handleCreate(env protocol.Envelope) {
	if !s.createLimiter.Allow() {
		s.logger.Warn().Msg("room:create rejected: rate limit exceeded.")
		s.SendError(errs.NewError(errs.ErrRateLimitExceeded))
		return
	}

	var p protocol.CreateRoomPayload
	if err := env.Bind(&p); err != nil {
		s.SendError(errs.NewError(errs.ErrInvalidParams))
		return
	}

	if p.HostID != s.user.ID {
		s.logger.Warn().Str("host_id", p.HostID).Msg("room:create rejected: host does not match session.")
		s.SendError(errs.NewError(errs.ErrHostMismatch))
		return
	}

	room, customErr := s.manager.CreateRoom(p.HostID, p.MaxPlayers, p.MaxRounds)
	if customErr != nil {
		s.SendError(customErr)
		return
	}

	if current := s.CurrentRoom(); current != nil {
		current.Leave(s, false)
	}

	s.Emit(protocol.EventRoomCreated, room.Code)
	if !room.Join(s) {
		s.logger.Warn().Str("room_code", room.Code).Msg("Host could not join the room it created.")
	}
}

func (s *Session) handleJoin(env protocol.Envelope) {
	var p protocol.JoinRoomPayload
	if err := env.Bind(&p); err != nil || !randx.IsValidRoomCode(p.RoomCode) {
		s.SendError(errs.NewError(errs.ErrInvalidParams))
		return
	}

	room := s.manager.GetRoom(p.RoomCode)
	if room == nil {
		s.SendError(errs.NewError(errs.ErrRoomNotFound))
		return
	}

	if current := s.CurrentRoom(); current != nil && current != room {
		current.Leave(s, false)
	}
	// Join returns after the room has attached s, so actions that follow reach it.
	room.Join(s)
}

func (s *Session) handleLeave() {
	s.inRoom(func(r *Room) { r.Leave(s, true) })
}

func (s *Session) handleStroke(env protocol.Envelope) {
	var stroke protocol.Stroke
	if err := env.Bind(&stroke); err != nil {
		s.SendError(errs.NewError(errs.ErrStrokeInvalid))
		return
	}
	s.inRoom(func(r *Room) { r.Stroke(s, stroke) })
}

func (s *Session) handleChat(env protocol.Envelope) {
	var p protocol.ChatSendPayload
	if err := env.Bind(&p); err != nil {
		s.SendError(errs.NewError(errs.ErrInvalidParams))
		return
	}
	s.inRoom(func(r *Room) { r.Chat(s, p.Message) })
}

func (s *Session) inRoom(fn func(r *Room)) {
	r := s.CurrentRoom()
	if r == nil {
		s.SendError(errs.NewError(errs.ErrNotInRoom))
		return
	}
	fn(r)
}
