package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"masskribbl/internal/app/user"
	"masskribbl/internal/pkg/logx"
	"masskribbl/internal/protocol"
)

// saveTimeout bounds a single write to the persistence backend.
const saveTimeout = 2 * time.Second

// Store holds the client state. It is safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	state State

	// strokeLimit caps Strokes when positive; zero keeps every stroke.
	strokeLimit int

	persister Persister

	// version counts mutations that touched the persisted subset; saveMu and
	// savedVersion keep a slow save from overwriting a newer one.
	version      uint64
	saveMu       sync.Mutex
	savedVersion uint64

	listeners    map[int]func(State)
	nextListener int

	// seq numbers every change; notifyMu and notified deliver snapshots in that order
	// and drop one that a newer change has already overtaken.
	seq      uint64
	notifyMu sync.Mutex
	notified uint64

	logger zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithPersister makes the store load and save its persisted subset through p.
func WithPersister(p Persister) Option {
	return func(s *Store) {
		s.persister = p
	}
}

// WithStrokeLimit keeps at most n strokes, dropping the oldest. n <= 0 disables the cap.
func WithStrokeLimit(n int) Option {
	return func(s *Store) {
		s.strokeLimit = max(n, 0)
	}
}

// New returns a store holding the default state.
func New(opts ...Option) *Store {
	s := &Store{
		state:     defaultState(),
		listeners: make(map[int]func(State)),
		logger:    logx.Component("store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open returns a store hydrated from its persister. Only the persisted subset is
// restored; game state, strokes, messages and the connection flag start empty.
// A missing record is not an error.
func Open(ctx context.Context, opts ...Option) (*Store, error) {
	s := New(opts...)
	if s.persister == nil {
		return s, nil
	}

	p, err := s.persister.Load(ctx, s.state.persisted())
	if err != nil {
		return nil, err
	}
	if p == nil {
		return s, nil
	}

	s.mu.Lock()
	s.state.User = p.User
	s.state.SoundEnabled = p.SoundEnabled
	s.state.CurrentTool = p.CurrentTool
	s.state.BrushSize = p.BrushSize
	s.state.BrushColor = p.BrushColor
	s.mu.Unlock()

	s.logger.Debug().Bool("has_user", p.User != nil).Msg("Store hydrated from persisted record.")
	return s, nil
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Subscribe registers fn to receive a snapshot after every state change.
// Snapshots arrive in mutation order; when changes race, a listener may skip straight to
// the newer one. fn runs while deliveries are serialized and must not call store commands
// itself. The returned function removes the listener.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// update applies fn under the lock. fn reports whether it changed anything; only then
// are listeners notified and, if the persisted subset moved, the record saved.
func (s *Store) update(fn func(st *State) bool) {
	s.mu.Lock()
	before := s.state.persisted()
	if !fn(&s.state) {
		s.mu.Unlock()
		return
	}
	snapshot := s.state.clone()
	after := snapshot.persisted()
	s.seq++
	seq := s.seq

	var version uint64
	if s.persister != nil && !before.equal(after) {
		s.version++
		version = s.version
	}

	listeners := make([]func(State), 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	if version > 0 {
		s.save(version, after)
	}

	s.notify(seq, snapshot, listeners)
}

func (s *Store) notify(seq uint64, snapshot State, listeners []func(State)) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	if seq <= s.notified {
		return
	}
	s.notified = seq

	for _, l := range listeners {
		l(snapshot)
	}
}

func (s *Store) save(version uint64, p Persisted) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if version <= s.savedVersion {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := s.persister.Save(ctx, p); err != nil {
		s.logger.Error().Err(err).Msg("Failed to persist store state.")
		return
	}
	s.savedVersion = version
}

// SetUser replaces the signed-in user. nil signs out without touching the session.
func (s *Store) SetUser(u *user.User) {
	s.update(func(st *State) bool {
		if u == nil {
			st.User = nil
			return true
		}
		cp := *u
		st.User = &cp
		return true
	})
}

// Logout clears the user, game state, strokes, messages and connection flag in one step.
// Drawing and sound preferences are kept.
func (s *Store) Logout() {
	s.update(func(st *State) bool {
		st.User = nil
		st.GameState = nil
		st.Strokes = nil
		st.Messages = nil
		st.IsConnected = false
		return true
	})
}

// SetGameState replaces the game state wholesale.
func (s *Store) SetGameState(gs *protocol.GameState) {
	s.update(func(st *State) bool {
		if gs == nil {
			st.GameState = nil
			return true
		}
		cp := *gs
		cp.Players = slices.Clone(gs.Players)
		st.GameState = &cp
		return true
	})
}

// EndSession tears down the current game session: game state, strokes and messages
// are cleared together.
func (s *Store) EndSession() {
	s.update(func(st *State) bool {
		st.GameState = nil
		st.Strokes = nil
		st.Messages = nil
		return true
	})
}

// AddStroke appends a stroke. There is no de-duplication.
func (s *Store) AddStroke(stroke protocol.Stroke) {
	s.update(func(st *State) bool {
		st.Strokes = append(st.Strokes, stroke)
		if s.strokeLimit > 0 && len(st.Strokes) > s.strokeLimit {
			dropped := len(st.Strokes) - s.strokeLimit
			st.Strokes = slices.Clone(st.Strokes[dropped:])
			s.logger.Debug().Int("dropped", dropped).Int("limit", s.strokeLimit).Msg("Stroke limit reached, oldest strokes dropped.")
		}
		return true
	})
}

// ClearStrokes empties the drawing history.
func (s *Store) ClearStrokes() {
	s.update(func(st *State) bool {
		if len(st.Strokes) == 0 {
			return false
		}
		st.Strokes = nil
		return true
	})
}

// AddMessage appends m unless a held message already has its id, then keeps the
// newest MaxMessages. Ids that were evicted earlier count as new.
func (s *Store) AddMessage(m protocol.ChatMessage) {
	s.update(func(st *State) bool {
		if slices.ContainsFunc(st.Messages, func(held protocol.ChatMessage) bool { return held.ID == m.ID }) {
			return false
		}
		st.Messages = append(st.Messages, m)
		if over := len(st.Messages) - MaxMessages; over > 0 {
			st.Messages = slices.Clone(st.Messages[over:])
		}
		return true
	})
}

// ClearMessages empties the chat history.
func (s *Store) ClearMessages() {
	s.update(func(st *State) bool {
		if len(st.Messages) == 0 {
			return false
		}
		st.Messages = nil
		return true
	})
}

// SetIsConnected stores the latest connection status reported by the transport.
func (s *Store) SetIsConnected(connected bool) {
	s.update(func(st *State) bool {
		if st.IsConnected == connected {
			return false
		}
		st.IsConnected = connected
		return true
	})
}

func (s *Store) SetCurrentTool(tool protocol.Tool) {
	s.update(func(st *State) bool {
		if st.CurrentTool == tool {
			return false
		}
		st.CurrentTool = tool
		return true
	})
}

func (s *Store) SetBrushSize(size int) {
	s.update(func(st *State) bool {
		if st.BrushSize == size {
			return false
		}
		st.BrushSize = size
		return true
	})
}

func (s *Store) SetBrushColor(color string) {
	s.update(func(st *State) bool {
		if st.BrushColor == color {
			return false
		}
		st.BrushColor = color
		return true
	})
}

func (s *Store) SetShowChat(show bool) {
	s.update(func(st *State) bool {
		if st.ShowChat == show {
			return false
		}
		st.ShowChat = show
		return true
	})
}

func (s *Store) SetSoundEnabled(enabled bool) {
	s.update(func(st *State) bool {
		if st.SoundEnabled == enabled {
			return false
		}
		st.SoundEnabled = enabled
		return true
	})
}

// User returns a copy of the signed-in user, or nil.
func (s *Store) User() *user.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.User == nil {
		return nil
	}
	u := *s.state.User
	return &u
}
