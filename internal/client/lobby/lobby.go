/*
Package lobby runs the room creation handshake.

Create sends one room:create for the signed-in user and resolves the returned Attempt exactly
once: Succeeded with the room code, Failed with the server's reason, TimedOut when nothing arrives
within CreateTimeout, or Cancelled when the caller's context ends first. Only success navigates.
*/
package lobby

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"masskribbl/internal/client/socket"
	"masskribbl/internal/client/store"
	"masskribbl/internal/pkg/errs"
	"masskribbl/internal/pkg/logx"
	"masskribbl/internal/protocol"
)

// CreateTimeout bounds how long a room:create waits for room:created or error.
const CreateTimeout = 15 * time.Second

// Socket is the part of the connection the handshake needs.
type Socket interface {
	Connect(ctx context.Context) error
	On(event string, fn socket.Handler) (off func())
	Emit(event string, data any) error
}

// Navigator moves the client to another view.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// GamePath is the view a created room is opened at.
func GamePath(code string) string {
	return "/game/" + code
}

// Creator issues room:create requests. At most one is in flight at a time.
type Creator struct {
	store *store.Store
	sock  Socket
	nav   Navigator
	clock clockwork.Clock

	mu      sync.Mutex
	pending *Attempt

	logger zerolog.Logger
}

// Option configures a Creator.
type Option func(*Creator)

// WithClock replaces the real clock that drives the deadline.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Creator) {
		c.clock = clock
	}
}

// NewCreator wires a Creator to the store holding the user, the shared socket and the navigator.
func NewCreator(st *store.Store, sock Socket, nav Navigator, opts ...Option) *Creator {
	c := &Creator{
		store:  st,
		sock:   sock,
		nav:    nav,
		clock:  clockwork.NewRealClock(),
		logger: logx.Component("lobby"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// InProgress reports whether a room:create is waiting for its answer.
func (c *Creator) InProgress() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

// Create starts a handshake and returns its Attempt.
//
// Without a signed-in user nothing happens and Create returns nil, nil. Options outside the
// allowed sets return ErrRoomOptionsInvalid. A call made while another attempt is pending
// returns that attempt instead of sending a second request.
func (c *Creator) Create(ctx context.Context, maxPlayers, maxRounds int) (*Attempt, error) {
	u := c.store.User()
	if u == nil {
		c.logger.Warn().Msg("No user found")
		return nil, nil
	}

	if !protocol.ValidRoomOptions(maxPlayers, maxRounds) {
		return nil, errs.NewError(errs.ErrRoomOptionsInvalid)
	}

	c.mu.Lock()
	if c.pending != nil {
		a := c.pending
		c.mu.Unlock()
		c.logger.Debug().Msg("Room creation already in progress.")
		return a, nil
	}
	a := newAttempt()
	c.pending = a
	c.mu.Unlock()

	payload := protocol.CreateRoomPayload{
		HostID:     u.ID,
		MaxPlayers: maxPlayers,
		MaxRounds:  maxRounds,
	}

	go c.run(ctx, a, payload)

	return a, nil
}

// run drives one attempt to its outcome. Every terminal path goes through finish exactly once.
func (c *Creator) run(ctx context.Context, a *Attempt, payload protocol.CreateRoomPayload) {
	logger := c.logger.With().Str("host_id", payload.HostID).Logger()

	if err := c.sock.Connect(ctx); err != nil {
		logger.Warn().Err(err).Msg("Room creation failed to connect.")
		c.finish(a, nil, Outcome{Status: Failed, Reason: err.Error()})
		return
	}

	created := make(chan string, 1)
	failed := make(chan string, 1)

	offCreated := c.sock.On(protocol.EventRoomCreated, func(data json.RawMessage) {
		var code string
		if err := json.Unmarshal(data, &code); err != nil || code == "" {
			offer(failed, "invalid room code")
			return
		}
		offer(created, code)
	})
	offError := c.sock.On(protocol.EventError, func(data json.RawMessage) {
		var reason string
		if err := json.Unmarshal(data, &reason); err != nil {
			reason = string(data)
		}
		offer(failed, reason)
	})
	off := func() {
		offCreated()
		offError()
	}

	timer := c.clock.NewTimer(CreateTimeout)

	if err := c.sock.Emit(protocol.EventRoomCreate, payload); err != nil {
		timer.Stop()
		logger.Warn().Err(err).Msg("Room creation request could not be sent.")
		c.finish(a, off, Outcome{Status: Failed, Reason: err.Error()})
		return
	}

	logger.Info().Int("max_players", payload.MaxPlayers).Int("max_rounds", payload.MaxRounds).Msg("Room creation requested.")

	select {
	case code := <-created:
		timer.Stop()
		logger.Info().Str("room_code", code).Msg("Room created.")
		c.finish(a, off, Outcome{Status: Succeeded, Code: code})

	case reason := <-failed:
		timer.Stop()
		logger.Warn().Str("reason", reason).Msg("Room creation failed.")
		c.finish(a, off, Outcome{Status: Failed, Reason: reason})

	case <-timer.Chan():
		// A signal that arrived in the same tick as the deadline still wins.
		select {
		case code := <-created:
			logger.Info().Str("room_code", code).Msg("Room created.")
			c.finish(a, off, Outcome{Status: Succeeded, Code: code})
			return
		default:
		}
		select {
		case reason := <-failed:
			logger.Warn().Str("reason", reason).Msg("Room creation failed.")
			c.finish(a, off, Outcome{Status: Failed, Reason: reason})
			return
		default:
		}
		logger.Warn().Dur("timeout", CreateTimeout).Msg("Room creation timeout")
		c.finish(a, off, Outcome{Status: TimedOut})

	case <-ctx.Done():
		timer.Stop()
		logger.Info().Err(ctx.Err()).Msg("Room creation cancelled.")
		c.finish(a, off, Outcome{Status: Cancelled, Reason: ctx.Err().Error()})
	}
}

// finish deregisters the handlers, clears the in-progress flag, navigates on success and
// publishes the outcome, in that order.
func (c *Creator) finish(a *Attempt, off func(), o Outcome) {
	if off != nil {
		off()
	}

	c.mu.Lock()
	if c.pending == a {
		c.pending = nil
	}
	c.mu.Unlock()

	if o.Status == Succeeded {
		c.nav.Navigate(GamePath(o.Code))
	}

	a.resolve(o)
}

// offer keeps the first signal and drops the rest.
func offer(ch chan<- string, v string) {
	select {
	case ch <- v:
	default:
	}
}
