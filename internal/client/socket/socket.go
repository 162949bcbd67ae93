/*
Package socket is the client side of the persistent game connection.

A Client owns at most one websocket connection, dialled lazily on the first Connect and
reused by every later caller. Inbound events are delivered to registered handlers by a
single dispatch goroutine, one at a time and in arrival order, so a handler always runs
to completion before the next event is looked at.
*/
package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"masskribbl/internal/pkg/logx"
	"masskribbl/internal/protocol"
)

const (
	// time allowed to write a frame.
	writeWait = 10 * time.Second

	// time allowed between server pings before the connection is considered dead.
	pongWait = 60 * time.Second

	// maximum inbound frame size.
	maxMessageSize = 64 * 1024

	// inbound queue between the read pump and the dispatcher.
	inboxSize = 256
)

var (
	// ErrNotConnected is returned by Emit when no connection is open.
	ErrNotConnected = errors.New("socket: not connected")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("socket: client closed")
)

// Handler receives the raw data of an inbound event.
type Handler func(data json.RawMessage)

type registration struct {
	id uint64
	fn Handler
}

// inbound is either an event or a connection status change, queued for the dispatcher.
type inbound struct {
	env    protocol.Envelope
	status *bool
}

// Client is a lazily connected, reusable event socket.
type Client struct {
	url    string
	dialer *websocket.Dialer

	mu       sync.Mutex
	conn     *websocket.Conn
	token    string
	closed   bool
	handlers map[string][]registration
	statuses []func(connected bool)
	nextID   uint64

	// writeMu serializes frame writes; gorilla allows one concurrent writer.
	writeMu sync.Mutex

	inbox chan inbound
	done  chan struct{}

	logger zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithDialer replaces the default websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// WithToken sets the session token sent on the next dial.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// New returns a Client for the websocket endpoint rawURL (ws:// or wss://).
// No connection is made until Connect.
func New(rawURL string, opts ...Option) *Client {
	c := &Client{
		url: rawURL,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		handlers: make(map[string][]registration),
		inbox:    make(chan inbound, inboxSize),
		done:     make(chan struct{}),
		logger:   logx.Component("socket"),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.dispatch()

	return c
}

// SetToken replaces the session token used by the next dial.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Connected reports whether a connection is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Connect opens the connection if none is open. Concurrent and repeated calls share
// the same connection.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := c.open(ctx)
	if err != nil || conn == nil {
		return err
	}

	// status is queued before the read pump starts so a disconnect can never overtake it.
	c.queueStatus(true)
	go c.readPump(conn)

	return nil
}

// open dials under the lock and returns the new connection, or nil when one was already open.
func (c *Client) open(ctx context.Context) (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if c.conn != nil {
		return nil, nil
	}

	target, err := c.dialURL()
	if err != nil {
		return nil, err
	}

	conn, resp, err := c.dialer.DialContext(ctx, target, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("url", c.url).Msg("Dial failed.")
		return nil, fmt.Errorf("socket: dial %s: %w", c.url, err)
	}

	c.conn = conn
	c.logger.Info().Str("url", c.url).Msg("Connected.")

	return conn, nil
}

func (c *Client) dialURL() (string, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return "", fmt.Errorf("socket: parse url: %w", err)
	}
	if c.token != "" {
		q := u.Query()
		q.Set("token", c.token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// On registers fn for event and returns a function that deregisters it. Deregistering
// from inside a handler is allowed.
func (c *Client) On(event string, fn Handler) (off func()) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.handlers[event] = append(c.handlers[event], registration{id: id, fn: fn})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { c.off(event, id) })
	}
}

// Once registers fn for the next occurrence of event only.
func (c *Client) Once(event string, fn Handler) (off func()) {
	var offFn func()
	var mu sync.Mutex
	mu.Lock()
	offFn = c.On(event, func(data json.RawMessage) {
		mu.Lock()
		o := offFn
		mu.Unlock()
		o()
		fn(data)
	})
	mu.Unlock()
	return offFn
}

func (c *Client) off(event string, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	regs := c.handlers[event]
	for i, r := range regs {
		if r.id == id {
			c.handlers[event] = append(regs[:i:i], regs[i+1:]...)
			break
		}
	}
	if len(c.handlers[event]) == 0 {
		delete(c.handlers, event)
	}
}

// OnStatus registers fn to be told about every connect and disconnect. It runs on the
// dispatch goroutine, ordered with events.
func (c *Client) OnStatus(fn func(connected bool)) {
	c.mu.Lock()
	c.statuses = append(c.statuses, fn)
	c.mu.Unlock()
}

// Emit sends event with data (nil for none) on the open connection.
func (c *Client) Emit(event string, data any) error {
	frame, err := protocol.Encode(event, data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("socket: set write deadline: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.logger.Error().Err(err).Str("event", event).Msg("Error writing event.")
		return fmt.Errorf("socket: emit %s: %w", event, err)
	}

	c.logger.Debug().Str("event", event).Msg("Event emitted.")
	return nil
}

// Close closes the connection and stops the dispatcher. The Client cannot be reused.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closing"),
			time.Now().Add(writeWait),
		)
		c.writeMu.Unlock()
		conn.Close()
	}

	close(c.done)
}

// readPump decodes frames from conn until it fails, then marks the client disconnected.
func (c *Client) readPump(conn *websocket.Conn) {
	defer c.dropConn(conn)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("Connection lost.")
			}
			return
		}

		env, err := protocol.Decode(frame)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Server sent an invalid frame.")
			continue
		}

		select {
		case c.inbox <- inbound{env: env}:
		case <-c.done:
			return
		}
	}
}

func (c *Client) dropConn(conn *websocket.Conn) {
	conn.Close()

	c.mu.Lock()
	current := c.conn == conn
	if current {
		c.conn = nil
	}
	c.mu.Unlock()

	if current {
		c.logger.Info().Msg("Disconnected.")
		c.queueStatus(false)
	}
}

func (c *Client) queueStatus(connected bool) {
	select {
	case c.inbox <- inbound{status: &connected}:
	case <-c.done:
	}
}

// dispatch runs every handler on one goroutine, in arrival order.
func (c *Client) dispatch() {
	for {
		select {
		case <-c.done:
			return
		case in := <-c.inbox:
			if in.status != nil {
				c.deliverStatus(*in.status)
				continue
			}
			c.deliver(in.env)
		}
	}
}

func (c *Client) deliver(env protocol.Envelope) {
	c.mu.Lock()
	regs := slices.Clone(c.handlers[env.Event])
	c.mu.Unlock()

	if len(regs) == 0 {
		c.logger.Debug().Str("event", env.Event).Msg("No handler for event.")
		return
	}

	for _, r := range regs {
		if !c.registered(env.Event, r.id) {
			continue
		}
		c.invoke(env, r.fn)
	}
}

// registered reports whether id is still subscribed; an earlier handler for the same
// event may have removed it.
func (c *Client) registered(event string, id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.handlers[event] {
		if r.id == id {
			return true
		}
	}
	return false
}

func (c *Client) invoke(env protocol.Envelope, fn Handler) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Str("event", env.Event).Msg("Recovered from panic in event handler.")
		}
	}()
	fn(env.Data)
}

func (c *Client) deliverStatus(connected bool) {
	c.mu.Lock()
	fns := slices.Clone(c.statuses)
	c.mu.Unlock()

	for _, fn := range fns {
		fn(connected)
	}
}
