package game

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"masskribbl/internal/app/user"
	"masskribbl/internal/protocol"
)

type MockArchiver struct {
	mock.Mock
}

func (m *MockArchiver) ArchiveStrokes(ctx context.Context, roomCode string, strokes []protocol.Stroke) error {
	args := m.Called(ctx, roomCode, strokes)
	return args.Error(0)
}

type MockRoomLog struct {
	mock.Mock
}

func (m *MockRoomLog) RoomCreated(ctx context.Context, info RoomInfo) error {
	args := m.Called(ctx, info)
	return args.Error(0)
}

func (m *MockRoomLog) RoomClosed(ctx context.Context, summary RoomSummary) error {
	args := m.Called(ctx, summary)
	return args.Error(0)
}

// codeSequence returns codes in order, repeating the last one.
func codeSequence(codes ...string) func() (string, error) {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		c := codes[min(i, len(codes)-1)]
		i++
		return c, nil
	}
}

func newTestSession(m *Manager, id, name string) *Session {
	return NewSession(m, nil, user.User{ID: id, Username: name})
}

func envelope(t *testing.T, event string, data any) protocol.Envelope {
	t.Helper()
	frame, err := protocol.Encode(event, data)
	require.NoError(t, err)
	env, err := protocol.Decode(frame)
	require.NoError(t, err)
	return env
}

// nextEvent returns the next queued frame for event, skipping any others.
func nextEvent(t *testing.T, s *Session, event string) protocol.Envelope {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case frame := <-s.send:
			env, err := protocol.Decode(frame)
			require.NoError(t, err)
			if env.Event == event {
				return env
			}
		case <-deadline:
			t.Fatalf("no %s event for %s", event, s.User().ID)
			return protocol.Envelope{}
		}
	}
}

// nextError returns the message of the next error event.
func nextError(t *testing.T, s *Session) string {
	t.Helper()
	var msg string
	require.NoError(t, nextEvent(t, s, protocol.EventError).Bind(&msg))
	return msg
}

func nextState(t *testing.T, s *Session) protocol.GameState {
	t.Helper()
	var gs protocol.GameState
	require.NoError(t, nextEvent(t, s, protocol.EventGameState).Bind(&gs))
	return gs
}

// drain discards queued frames after the room has had time to emit them.
func drain(s *Session) {
	time.Sleep(20 * time.Millisecond)
	for {
		select {
		case <-s.send:
		default:
			return
		}
	}
}

// queued collects the frames already queued for s, keyed by nothing but order.
func queued(t *testing.T, s *Session) []protocol.Envelope {
	t.Helper()
	time.Sleep(20 * time.Millisecond)
	var out []protocol.Envelope
	for {
		select {
		case frame := <-s.send:
			env, err := protocol.Decode(frame)
			require.NoError(t, err)
			out = append(out, env)
		default:
			return out
		}
	}
}
