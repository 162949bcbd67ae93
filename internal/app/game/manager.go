/*
Package game contains the server side of the drawing game: rooms, player sessions and the
replication of strokes and chat between them.

This file defines the Manager struct, which creates, tracks, retrieves and cleans up all active
Room instances, and reports room lifecycles to the optional room log and drawing archive.
*/
package game

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"masskribbl/internal/pkg/errs"
	"masskribbl/internal/pkg/logx"
	"masskribbl/internal/pkg/randx"
	"masskribbl/internal/protocol"
)

// maxCodeAttempts bounds retries when a generated room code collides.
const maxCodeAttempts = 5

// RoomInfo describes a room when it is created.
type RoomInfo struct {
	Code       string
	HostID     string
	MaxPlayers int
	MaxRounds  int
	CreatedAt  time.Time
}

// RoomSummary describes a room when it closes.
type RoomSummary struct {
	Code     string
	ClosedAt time.Time
	Strokes  int
	Messages int
}

// RoomLog records room lifecycles. RoomCreated returns an ErrRoomCodeExists error when the
// code is still open elsewhere.
type RoomLog interface {
	RoomCreated(ctx context.Context, info RoomInfo) error
	RoomClosed(ctx context.Context, summary RoomSummary) error
}

// Archiver stores a closed room's drawing.
type Archiver interface {
	ArchiveStrokes(ctx context.Context, roomCode string, strokes []protocol.Stroke) error
}

// Manager struct is responsible for coordinating and managing all active rooms.
type Manager struct {
	// rooms stores a map of all Room instances, keyed by room code.
	rooms map[string]*Room

	// reserved holds codes whose creation is waiting on the room log.
	reserved map[string]struct{}

	// mu protects concurrent access to the rooms and reserved maps.
	mu sync.RWMutex

	// the channel used by Rooms to notify the Manager to clean up and remove them.
	cleanup chan RoomCleanupMsg

	// wg waits for the cleanup loop; roomsWG waits for room Run loops.
	wg      sync.WaitGroup
	roomsWG sync.WaitGroup

	roomLog  RoomLog
	archiver Archiver
	clock    clockwork.Clock

	// set by Shutdown; no rooms are created afterwards.
	closed bool

	// generates room codes; replaced in tests.
	newCode func() (string, error)

	logger zerolog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithRoomLog records room creation and closing.
func WithRoomLog(l RoomLog) ManagerOption {
	return func(m *Manager) {
		m.roomLog = l
	}
}

// WithArchiver uploads every closed room's strokes.
func WithArchiver(a Archiver) ManagerOption {
	return func(m *Manager) {
		m.archiver = a
	}
}

// WithClock replaces the clock driving room inactivity timers.
func WithClock(c clockwork.Clock) ManagerOption {
	return func(m *Manager) {
		m.clock = c
	}
}

// NewManager constructs and returns a new Manager instance.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		rooms:    make(map[string]*Room),
		reserved: make(map[string]struct{}),
		cleanup:  make(chan RoomCleanupMsg, 64),
		clock:    clockwork.NewRealClock(),
		newCode:  randx.RoomCode,
		logger:   logx.Component("manager"),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.wg.Add(1)
	go m.runCleanupLoop()

	return m
}

// runCleanupLoop removes rooms whose Run loop finished.
func (m *Manager) runCleanupLoop() {
	defer m.wg.Done()

	m.logger.Info().Msg("Cleanup loop started.")

	for msg := range m.cleanup {
		m.deleteRoom(msg.Room)
		m.logClosed(msg.Summary)
	}

	m.logger.Info().Msg("Cleanup loop stopped.")
}

// deleteRoom removes room unless its code has already been reused.
func (m *Manager) deleteRoom(room *Room) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.rooms[room.Code]; ok && current == room {
		delete(m.rooms, room.Code)
		m.logger.Info().Str("room_code", room.Code).Msg("Room successfully removed.")
	}
}

func (m *Manager) logClosed(summary RoomSummary) {
	if m.roomLog == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := m.roomLog.RoomClosed(ctx, summary); err != nil {
		m.logger.Error().Err(err).Str("room_code", summary.Code).Msg("Failed to record room close.")
	}
}

// CreateRoom validates the options, picks an unused code, and starts the room's Run loop.
func (m *Manager) CreateRoom(hostID string, maxPlayers, maxRounds int) (*Room, *errs.CustomError) {
	if !protocol.ValidRoomOptions(maxPlayers, maxRounds) {
		return nil, errs.NewError(errs.ErrRoomOptionsInvalid)
	}

	for range maxCodeAttempts {
		code, err := m.newCode()
		if err != nil {
			m.logger.Error().Err(err).Msg("Failed to generate room code.")
			return nil, errs.NewError(errs.ErrUnknown, err)
		}

		room, customErr := m.startRoom(code, hostID, maxPlayers, maxRounds)
		if customErr == nil {
			return room, nil
		}
		if customErr.Code != errs.ErrRoomCodeExists {
			return nil, customErr
		}
	}

	m.logger.Error().Int("attempts", maxCodeAttempts).Msg("Could not find a free room code.")
	return nil, errs.NewError(errs.ErrRoomCodeExists)
}

func (m *Manager) startRoom(code, hostID string, maxPlayers, maxRounds int) (*Room, *errs.CustomError) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, errs.NewError(errs.ErrUnknown)
	}
	_, open := m.rooms[code]
	_, pending := m.reserved[code]
	if open || pending {
		m.mu.Unlock()
		m.logger.Warn().Str("room_code", code).Msg("Attempted to create existing room.")
		return nil, errs.NewError(errs.ErrRoomCodeExists)
	}
	m.reserved[code] = struct{}{}
	m.mu.Unlock()

	info := RoomInfo{
		Code:       code,
		HostID:     hostID,
		MaxPlayers: maxPlayers,
		MaxRounds:  maxRounds,
		CreatedAt:  m.clock.Now(),
	}

	// mu is not held across the room log call.
	customErr := m.logCreated(info)

	m.mu.Lock()
	delete(m.reserved, code)
	if customErr != nil {
		m.mu.Unlock()
		return nil, customErr
	}
	if m.closed {
		m.mu.Unlock()
		m.logClosed(RoomSummary{Code: code, ClosedAt: m.clock.Now()})
		return nil, errs.NewError(errs.ErrUnknown)
	}

	room := NewRoom(info, m.cleanup, m.clock, m.archiver)
	m.rooms[code] = room
	m.roomsWG.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.roomsWG.Done()
		room.Run()
	}()

	m.logger.Info().
		Str("room_code", code).
		Str("host_id", hostID).
		Int("max_players", maxPlayers).
		Int("max_rounds", maxRounds).
		Msg("New Room created and started.")

	return room, nil
}

// logCreated reports the room to the room log. Only a code conflict blocks creation;
// other failures are logged.
func (m *Manager) logCreated(info RoomInfo) *errs.CustomError {
	if m.roomLog == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := m.roomLog.RoomCreated(ctx, info)
	switch {
	case err == nil:
		return nil
	case errs.Code(err) == errs.ErrRoomCodeExists:
		m.logger.Warn().Str("room_code", info.Code).Msg("Room code still open in room log.")
		return errs.NewError(errs.ErrRoomCodeExists)
	default:
		m.logger.Error().Err(err).Str("room_code", info.Code).Msg("Failed to record room creation.")
		return nil
	}
}

// GetRoom retrieves a Room instance by its room code.
func (m *Manager) GetRoom(roomCode string) *Room {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.rooms[roomCode]
}

// RoomCount returns the number of active rooms.
func (m *Manager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.rooms)
}

// Shutdown stops every room, waits for them to finish (archives included), then stops the
// cleanup loop.
func (m *Manager) Shutdown() {
	m.logger.Info().Msg("Shutting down Manager...")

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	for _, room := range m.rooms {
		room.Stop()
	}
	m.mu.Unlock()

	m.roomsWG.Wait()

	close(m.cleanup)
	m.wg.Wait()

	m.mu.Lock()
	m.rooms = make(map[string]*Room)
	m.mu.Unlock()

	m.logger.Info().Msg("Manager shutdown complete.")
}
