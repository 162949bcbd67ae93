package game

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"masskribbl/internal/pkg/errs"
	"masskribbl/internal/protocol"
)

func newTestManager(t *testing.T, opts ...ManagerOption) (*Manager, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	m := NewManager(append([]ManagerOption{WithClock(clock)}, opts...)...)
	t.Cleanup(m.Shutdown)
	return m, clock
}

// createRoom has s create a room through the event path and returns its code.
func createRoom(t *testing.T, s *Session, maxPlayers, maxRounds int) string {
	t.Helper()
	s.Handle(envelope(t, protocol.EventRoomCreate, protocol.CreateRoomPayload{
		HostID:     s.User().ID,
		MaxPlayers: maxPlayers,
		MaxRounds:  maxRounds,
	}))
	var code string
	require.NoError(t, nextEvent(t, s, protocol.EventRoomCreated).Bind(&code))
	return code
}

func joinRoom(t *testing.T, s *Session, code string) protocol.GameState {
	t.Helper()
	s.Handle(envelope(t, protocol.EventRoomJoin, protocol.JoinRoomPayload{RoomCode: code}))
	return nextState(t, s)
}

func TestCreateRoomValidatesOptions(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)

	_, err := m.CreateRoom("guest_host", 5, 3)
	require.NotNil(t, err)
	assert.Equal(t, errs.ErrRoomOptionsInvalid, err.Code)

	room, err := m.CreateRoom("guest_host", 12, 5)
	require.Nil(t, err)
	assert.Len(t, room.Code, 6)
	assert.Equal(t, 1, m.RoomCount())
	assert.Same(t, room, m.GetRoom(room.Code))
}

func TestCreateRoomRetriesCodeCollision(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)
	m.newCode = codeSequence("AAAAAA", "AAAAAA", "BBBBBB")

	first, err := m.CreateRoom("guest_host", 8, 3)
	require.Nil(t, err)
	second, err := m.CreateRoom("guest_host", 8, 3)
	require.Nil(t, err)

	assert.Equal(t, "AAAAAA", first.Code)
	assert.Equal(t, "BBBBBB", second.Code)
}

func TestCreateRoomRetriesWhenRoomLogConflicts(t *testing.T) {
	t.Parallel()

	roomLog := &MockRoomLog{}
	roomLog.On("RoomCreated", mock.Anything, mock.MatchedBy(func(i RoomInfo) bool { return i.Code == "AAAAAA" })).
		Return(errs.NewError(errs.ErrRoomCodeExists)).Once()
	roomLog.On("RoomCreated", mock.Anything, mock.MatchedBy(func(i RoomInfo) bool { return i.Code == "BBBBBB" })).
		Return(nil).Once()

	roomLog.On("RoomClosed", mock.Anything, mock.Anything).Return(nil).Maybe()

	m, _ := newTestManager(t, WithRoomLog(roomLog))
	m.newCode = codeSequence("AAAAAA", "BBBBBB")

	room, err := m.CreateRoom("guest_host", 4, 2)
	require.Nil(t, err)
	assert.Equal(t, "BBBBBB", room.Code)
	roomLog.AssertExpectations(t)
}

func TestRoomLookupsDoNotWaitOnRoomLog(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	release := make(chan struct{})
	roomLog := &MockRoomLog{}
	roomLog.On("RoomCreated", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(nil).Once()
	roomLog.On("RoomClosed", mock.Anything, mock.Anything).Return(nil).Maybe()

	m, _ := newTestManager(t, WithRoomLog(roomLog))
	m.newCode = codeSequence("AAAAAA")

	created := make(chan *Room, 1)
	go func() {
		room, err := m.CreateRoom("guest_host", 4, 2)
		assert.Nil(t, err)
		created <- room
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("room log was never called")
	}

	lookups := make(chan struct{})
	go func() {
		defer close(lookups)
		assert.Nil(t, m.GetRoom("AAAAAA"))
		assert.Equal(t, 0, m.RoomCount())

		// The pending code cannot be handed out twice.
		_, err := m.CreateRoom("guest_other", 4, 2)
		if assert.NotNil(t, err) {
			assert.Equal(t, errs.ErrRoomCodeExists, err.Code)
		}
	}()

	select {
	case <-lookups:
	case <-time.After(2 * time.Second):
		close(release)
		t.Fatal("lookups blocked while the room log was busy")
	}

	close(release)
	select {
	case room := <-created:
		require.NotNil(t, room)
		assert.Same(t, room, m.GetRoom("AAAAAA"))
	case <-time.After(2 * time.Second):
		t.Fatal("room was not created")
	}
	roomLog.AssertExpectations(t)
}

func TestSessionCreateJoinsHost(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)
	host := newTestSession(m, "guest_host", "ana")

	code := createRoom(t, host, 8, 3)

	gs := nextState(t, host)
	assert.Equal(t, code, gs.RoomCode)
	assert.Equal(t, "guest_host", gs.HostID)
	assert.Equal(t, 8, gs.MaxPlayers)
	assert.Equal(t, 3, gs.MaxRounds)
	assert.Equal(t, protocol.PhaseWaiting, gs.Phase)
	require.Len(t, gs.Players, 1)
	assert.True(t, gs.Players[0].IsHost)
	assert.Same(t, m.GetRoom(code), host.CurrentRoom())
}

func TestSessionCreateRejectsForeignHost(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)
	s := newTestSession(m, "guest_ana", "ana")

	s.Handle(envelope(t, protocol.EventRoomCreate, protocol.CreateRoomPayload{HostID: "guest_bob", MaxPlayers: 8, MaxRounds: 3}))
	assert.Equal(t, "You can only create rooms for yourself.", nextError(t, s))

	s.Handle(envelope(t, protocol.EventRoomCreate, protocol.CreateRoomPayload{HostID: "guest_ana", MaxPlayers: 9, MaxRounds: 3}))
	assert.Equal(t, "Invalid room settings.", nextError(t, s))

	assert.Zero(t, m.RoomCount())
}

func TestSessionCreateIsRateLimited(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)
	s := newTestSession(m, "guest_ana", "ana")

	for range CreateBurst {
		createRoom(t, s, 4, 2)
	}

	s.Handle(envelope(t, protocol.EventRoomCreate, protocol.CreateRoomPayload{HostID: "guest_ana", MaxPlayers: 4, MaxRounds: 2}))
	assert.Equal(t, errs.NewError(errs.ErrRateLimitExceeded).Message, nextError(t, s))
}

func TestJoinBroadcastsStateAndEnforcesCapacity(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)
	host := newTestSession(m, "guest_host", "host")
	code := createRoom(t, host, 4, 2)
	drain(host)

	for i, name := range []string{"b", "c", "d"} {
		gs := joinRoom(t, newTestSession(m, "guest_"+name, name), code)
		assert.Len(t, gs.Players, i+2)
	}

	gs := nextState(t, host)
	assert.Len(t, gs.Players, 2)
	assert.True(t, m.GetRoom(code).IsFull())

	late := newTestSession(m, "guest_e", "e")
	late.Handle(envelope(t, protocol.EventRoomJoin, protocol.JoinRoomPayload{RoomCode: code}))
	assert.Equal(t, "Room is full.", nextError(t, late))
	assert.Nil(t, late.CurrentRoom())
}

func TestJoinUnknownRoom(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)
	s := newTestSession(m, "guest_ana", "ana")

	s.Handle(envelope(t, protocol.EventRoomJoin, protocol.JoinRoomPayload{RoomCode: "ZZZZZZ"}))
	assert.Equal(t, "Room not found.", nextError(t, s))

	s.Handle(envelope(t, protocol.EventRoomJoin, protocol.JoinRoomPayload{RoomCode: "bad code"}))
	assert.Equal(t, "Invalid request parameters.", nextError(t, s))
}

func TestStrokesAreRelayedAndReplayed(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)
	host := newTestSession(m, "guest_host", "host")
	code := createRoom(t, host, 8, 3)
	guest := newTestSession(m, "guest_b", "b")
	joinRoom(t, guest, code)
	drain(host)
	drain(guest)

	host.Handle(envelope(t, protocol.EventDrawStroke, protocol.Stroke{
		PlayerID: "spoofed",
		Tool:     protocol.ToolBrush,
		Color:    "#000000",
		Size:     5,
		Points:   []protocol.Point{{X: 1, Y: 1}, {X: 2, Y: 2}},
	}))

	var got protocol.Stroke
	require.NoError(t, nextEvent(t, guest, protocol.EventDrawStroke).Bind(&got))
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "guest_host", got.PlayerID)
	assert.NotZero(t, got.Timestamp)

	for _, env := range queued(t, host) {
		assert.NotEqual(t, protocol.EventDrawStroke, env.Event, "author must not get its own stroke back")
	}

	late := newTestSession(m, "guest_c", "c")
	joinRoom(t, late, code)
	var replayed protocol.Stroke
	require.NoError(t, nextEvent(t, late, protocol.EventDrawStroke).Bind(&replayed))
	assert.Equal(t, got, replayed)

	guest.Handle(envelope(t, protocol.EventCanvasClear, nil))
	nextEvent(t, host, protocol.EventCanvasClear)

	after := newTestSession(m, "guest_d", "d")
	joinRoom(t, after, code)
	for _, env := range queued(t, after) {
		assert.NotEqual(t, protocol.EventDrawStroke, env.Event)
	}
}

func TestInvalidStrokeAndNotInRoom(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)
	s := newTestSession(m, "guest_ana", "ana")

	s.Handle(envelope(t, protocol.EventDrawStroke, protocol.Stroke{Tool: protocol.ToolBrush, Color: "#fff", Size: 2, Points: []protocol.Point{{}}}))
	assert.Equal(t, "Join a room first.", nextError(t, s))

	createRoom(t, s, 4, 2)
	drain(s)

	tests := []protocol.Stroke{
		{Tool: "spray", Color: "#fff", Size: 2, Points: []protocol.Point{{}}},
		{Tool: protocol.ToolBrush, Color: "#fff", Size: 2},
		{Tool: protocol.ToolBrush, Color: "#fff", Size: 0, Points: []protocol.Point{{}}},
		{Tool: protocol.ToolBrush, Color: "", Size: 2, Points: []protocol.Point{{}}},
	}
	for _, stroke := range tests {
		s.Handle(envelope(t, protocol.EventDrawStroke, stroke))
		assert.Equal(t, "Invalid stroke.", nextError(t, s))
	}
}

func TestChatIsBroadcastWithServerIDs(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)
	host := newTestSession(m, "guest_host", "host")
	code := createRoom(t, host, 8, 3)
	guest := newTestSession(m, "guest_b", "b")
	joinRoom(t, guest, code)
	drain(host)
	drain(guest)

	host.Handle(envelope(t, protocol.EventChatSend, protocol.ChatSendPayload{Message: "  hello  "}))

	for _, s := range []*Session{host, guest} {
		var msg protocol.ChatMessage
		require.NoError(t, nextEvent(t, s, protocol.EventChatMessage).Bind(&msg))
		assert.NotEmpty(t, msg.ID)
		assert.Equal(t, "hello", msg.Message)
		assert.Equal(t, "guest_host", msg.PlayerID)
		assert.Equal(t, protocol.MessageChat, msg.Type)
	}

	host.Handle(envelope(t, protocol.EventChatSend, protocol.ChatSendPayload{Message: strings.Repeat("x", MaxMessageLength+1)}))
	assert.Equal(t, "Message is too long.", nextError(t, host))
}

func TestChatReplayIsCapped(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)
	host := newTestSession(m, "guest_host", "host")
	code := createRoom(t, host, 8, 3)

	for i := range MaxChatHistory + 20 {
		host.Handle(envelope(t, protocol.EventChatSend, protocol.ChatSendPayload{Message: strings.Repeat("m", i%5+1)}))
	}
	drain(host)

	late := newTestSession(m, "guest_late", "late")
	joinRoom(t, late, code)

	count := 0
	for _, env := range queued(t, late) {
		if env.Event == protocol.EventChatMessage {
			count++
		}
	}
	// the replayed window plus the join notice broadcast after it.
	assert.Equal(t, MaxChatHistory+1, count)
}

func nextChat(t *testing.T, s *Session) protocol.ChatMessage {
	t.Helper()
	for {
		var msg protocol.ChatMessage
		require.NoError(t, nextEvent(t, s, protocol.EventChatMessage).Bind(&msg))
		if msg.Type == protocol.MessageChat {
			return msg
		}
	}
}

// assertNoErrors checks the frames already queued for s and returns their event names.
func assertNoErrors(t *testing.T, s *Session) []string {
	t.Helper()
	var events []string
	for _, env := range queued(t, s) {
		events = append(events, env.Event)
		if env.Event == protocol.EventError {
			var msg string
			_ = env.Bind(&msg)
			t.Errorf("unexpected error event for %s: %q", s.User().ID, msg)
		}
	}
	return events
}

func TestActionsRightAfterCreateOrJoinReachTheRoom(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)
	host := newTestSession(m, "guest_host", "host")

	host.Handle(envelope(t, protocol.EventRoomCreate, protocol.CreateRoomPayload{HostID: "guest_host", MaxPlayers: 8, MaxRounds: 3}))
	host.Handle(envelope(t, protocol.EventChatSend, protocol.ChatSendPayload{Message: "first"}))

	var code string
	require.NoError(t, nextEvent(t, host, protocol.EventRoomCreated).Bind(&code))
	assert.Equal(t, "first", nextChat(t, host).Message)
	assertNoErrors(t, host)

	guest := newTestSession(m, "guest_b", "b")
	guest.Handle(envelope(t, protocol.EventRoomJoin, protocol.JoinRoomPayload{RoomCode: code}))
	guest.Handle(envelope(t, protocol.EventDrawStroke, protocol.Stroke{
		Tool:   protocol.ToolBrush,
		Color:  "#000000",
		Size:   2,
		Points: []protocol.Point{{X: 1, Y: 1}},
	}))
	guest.Handle(envelope(t, protocol.EventRoomLeave, nil))

	var stroke protocol.Stroke
	require.NoError(t, nextEvent(t, host, protocol.EventDrawStroke).Bind(&stroke))
	assert.Equal(t, "guest_b", stroke.PlayerID)

	assert.Contains(t, assertNoErrors(t, guest), protocol.EventRoomLeft)
	assert.Nil(t, guest.CurrentRoom())
}

func TestLeavePassesHostAndAnswersRoomLeft(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)
	host := newTestSession(m, "guest_host", "host")
	code := createRoom(t, host, 8, 3)
	guest := newTestSession(m, "guest_b", "b")
	joinRoom(t, guest, code)
	drain(guest)

	host.Handle(envelope(t, protocol.EventRoomLeave, nil))

	var left string
	require.NoError(t, nextEvent(t, host, protocol.EventRoomLeft).Bind(&left))
	assert.Equal(t, code, left)
	assert.Nil(t, host.CurrentRoom())

	gs := nextState(t, guest)
	assert.Equal(t, "guest_b", gs.HostID)
	require.Len(t, gs.Players, 1)
	assert.True(t, gs.Players[0].IsHost)

	host.Handle(envelope(t, protocol.EventRoomLeave, nil))
	assert.Equal(t, "Join a room first.", nextError(t, host))
}

func TestSecondConnectionReplacesFirst(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)
	first := newTestSession(m, "guest_host", "host")
	code := createRoom(t, first, 8, 3)
	drain(first)

	second := newTestSession(m, "guest_host", "host")
	gs := joinRoom(t, second, code)
	assert.Len(t, gs.Players, 1)

	nextEvent(t, first, protocol.EventRoomLeft)
	assert.Nil(t, first.CurrentRoom())
	assert.Same(t, m.GetRoom(code), second.CurrentRoom())
}

func TestEmptyRoomClosesAfterInactivity(t *testing.T) {
	t.Parallel()

	archiver := &MockArchiver{}
	roomLog := &MockRoomLog{}
	roomLog.On("RoomCreated", mock.Anything, mock.Anything).Return(nil)

	m, clock := newTestManager(t, WithArchiver(archiver), WithRoomLog(roomLog))

	host := newTestSession(m, "guest_host", "host")
	code := createRoom(t, host, 8, 3)

	archiver.On("ArchiveStrokes", mock.Anything, code, mock.MatchedBy(func(s []protocol.Stroke) bool { return len(s) == 1 })).
		Return(nil).Once()
	closed := make(chan RoomSummary, 1)
	roomLog.On("RoomClosed", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { closed <- args.Get(1).(RoomSummary) }).
		Return(nil).Once()

	host.Handle(envelope(t, protocol.EventDrawStroke, protocol.Stroke{Tool: protocol.ToolLine, Color: "#123456", Size: 3, Points: []protocol.Point{{X: 0, Y: 0}, {X: 9, Y: 9}}}))
	host.Handle(envelope(t, protocol.EventRoomLeave, nil))
	nextEvent(t, host, protocol.EventRoomLeft)

	room := m.GetRoom(code)
	require.NotNil(t, room)

	clock.Advance(RoomInactivityTimeout - time.Second)
	select {
	case <-room.Done():
		t.Fatal("room closed before the inactivity timeout")
	case <-time.After(50 * time.Millisecond):
	}

	clock.Advance(time.Second)

	select {
	case summary := <-closed:
		assert.Equal(t, code, summary.Code)
		assert.Equal(t, 1, summary.Strokes)
	case <-time.After(2 * time.Second):
		t.Fatal("room was not closed")
	}

	assert.Nil(t, m.GetRoom(code))
	archiver.AssertExpectations(t)
	roomLog.AssertExpectations(t)

	host.Handle(envelope(t, protocol.EventRoomJoin, protocol.JoinRoomPayload{RoomCode: code}))
	assert.Equal(t, "Room not found.", nextError(t, host))
}

func TestShutdownDetachesMembers(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	m := NewManager(WithClock(clock))
	s := newTestSession(m, "guest_host", "host")
	code := createRoom(t, s, 8, 3)
	drain(s)

	m.Shutdown()

	var left string
	require.NoError(t, nextEvent(t, s, protocol.EventRoomLeft).Bind(&left))
	assert.Equal(t, code, left)
	assert.Nil(t, s.CurrentRoom())
	assert.Zero(t, m.RoomCount())

	_, err := m.CreateRoom("guest_host", 8, 3)
	require.NotNil(t, err)
	assert.Equal(t, errs.ErrUnknown, err.Code)
}

func TestUnsupportedEvent(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)
	s := newTestSession(m, "guest_ana", "ana")

	s.Handle(protocol.Envelope{Event: "game:start"})
	assert.Equal(t, `Unsupported event "game:start".`, nextError(t, s))
}

func TestSendErrorHidesUnclassifiedErrors(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)
	s := newTestSession(m, "guest_ana", "ana")

	s.SendError(context.DeadlineExceeded)
	assert.Equal(t, errs.NewError(errs.ErrUnknown).Message, nextError(t, s))
}
