package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"masskribbl/internal/client/api"
	"masskribbl/internal/client/lobby"
	"masskribbl/internal/client/store"
	"masskribbl/internal/protocol"
)

const helpText = `Commands:
  /create <players> <rounds>  create a room and join it
  /join <code>                join a room
  /leave                      leave the current room
  /clear                      clear the canvas
  /state                      show the room
  /quit                       exit
Anything else is sent as chat.
`

type command struct {
	name string
	args []string
	text string
}

// parseCommand splits a slash command from chat text. Empty lines yield the zero command.
func parseCommand(line string) command {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{}
	}
	if !strings.HasPrefix(line, "/") {
		return command{name: "say", text: line}
	}
	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return command{name: "help"}
	}
	return command{name: strings.ToLower(fields[0]), args: fields[1:]}
}

type emitter interface {
	Emit(event string, data any) error
}

type creator interface {
	Create(ctx context.Context, maxPlayers, maxRounds int) (*lobby.Attempt, error)
}

type roomLookup interface {
	Room(ctx context.Context, code string) (*api.RoomStatus, error)
}

// terminal renders store changes and turns input lines into socket events.
type terminal struct {
	out     io.Writer
	st      *store.Store
	sock    emitter
	rooms   roomLookup
	creator creator

	mu      sync.Mutex
	printed map[string]struct{}
	room    string
}

func newTerminal(out io.Writer, st *store.Store, sock emitter, rooms roomLookup) *terminal {
	return &terminal{
		out:     out,
		st:      st,
		sock:    sock,
		rooms:   rooms,
		printed: make(map[string]struct{}),
	}
}

func (t *terminal) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format, args...)
}

// navigate is called once a created room is confirmed. The server has already joined us.
func (t *terminal) navigate(path string) {
	t.printf("Room ready at %s\n", path)
}

// render prints chat lines not printed before and room changes.
func (t *terminal) render(s store.State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	room := ""
	if s.GameState != nil {
		room = s.GameState.RoomCode
	}
	if room != t.room {
		if room == "" {
			fmt.Fprintf(t.out, "Left room %s\n", t.room)
		} else {
			fmt.Fprintf(t.out, "In room %s (%d/%d players)\n", room, len(s.GameState.Players), s.GameState.MaxPlayers)
		}
		t.room = room
	}

	for _, m := range s.Messages {
		if _, ok := t.printed[m.ID]; ok {
			continue
		}
		t.printed[m.ID] = struct{}{}
		if m.Type == protocol.MessageSystem {
			fmt.Fprintf(t.out, "* %s\n", m.Message)
			continue
		}
		fmt.Fprintf(t.out, "<%s> %s\n", m.Username, m.Message)
	}
}

// exec runs one input line and reports whether the client should quit.
func (t *terminal) exec(ctx context.Context, line string) bool {
	cmd := parseCommand(line)

	var err error
	switch cmd.name {
	case "":
	case "quit", "exit":
		return true
	case "help":
		t.printf("%s", helpText)
	case "say":
		err = t.sock.Emit(protocol.EventChatSend, protocol.ChatSendPayload{Message: cmd.text})
	case "create":
		err = t.create(ctx, cmd.args)
	case "join":
		err = t.join(ctx, cmd.args)
	case "leave":
		err = t.sock.Emit(protocol.EventRoomLeave, nil)
	case "clear":
		if err = t.sock.Emit(protocol.EventCanvasClear, nil); err == nil {
			t.st.ClearStrokes()
		}
	case "state":
		t.printState()
	default:
		t.printf("Unknown command /%s. Type /help.\n", cmd.name)
	}

	if err != nil {
		t.printf("Error: %v\n", err)
	}
	return false
}

func (t *terminal) create(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: /create <players> <rounds>")
	}
	players, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("players: %w", err)
	}
	rounds, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("rounds: %w", err)
	}

	attempt, err := t.creator.Create(ctx, players, rounds)
	if err != nil {
		return err
	}
	if attempt == nil {
		return errors.New("not signed in")
	}

	go func() {
		outcome, err := attempt.Wait(ctx)
		if err != nil {
			return
		}
		if outcome.Status != lobby.Succeeded {
			t.printf("Room creation %s: %s\n", outcome.Status, outcome.Reason)
		}
	}()
	return nil
}

func (t *terminal) join(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: /join <code>")
	}
	code := args[0]

	status, err := t.rooms.Room(ctx, code)
	if err != nil {
		return err
	}
	if status.IsFull {
		return fmt.Errorf("room %s is full", code)
	}

	t.st.EndSession()
	return t.sock.Emit(protocol.EventRoomJoin, protocol.JoinRoomPayload{RoomCode: code})
}

func (t *terminal) printState() {
	s := t.st.Snapshot()
	if s.GameState == nil {
		t.printf("Not in a room.\n")
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Room %s, round %d/%d, %s\n", s.GameState.RoomCode, s.GameState.CurrentRound, s.GameState.MaxRounds, s.GameState.Phase)
	for _, p := range s.GameState.Players {
		host := ""
		if p.IsHost {
			host = " (host)"
		}
		fmt.Fprintf(&b, "  %s%s %d\n", p.Username, host, p.Score)
	}
	fmt.Fprintf(&b, "  %d strokes on the canvas\n", len(s.Strokes))
	t.printf("%s", b.String())
}
