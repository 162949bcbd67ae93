/*
Package api is the HTTP client for the game server's REST endpoints.
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"masskribbl/internal/app/user"
	"masskribbl/internal/pkg/errs"
)

// Client talks to one server.
type Client struct {
	baseURL string
	client  *http.Client
}

// New returns a Client for serverURL, e.g. http://localhost:8080.
func New(serverURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(serverURL, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetTimeout changes the per-request timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

// SessionInput is the body of POST /api/session.
type SessionInput struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

// Session is a signed-in identity and the token that authenticates its socket.
type Session struct {
	Token string    `json:"token"`
	User  user.User `json:"user"`
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// CreateSession signs in as a guest with the given profile.
func (c *Client) CreateSession(ctx context.Context, in SessionInput) (*Session, error) {
	var out Session
	if err := c.post(ctx, "/api/session", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RoomStatus is the public view of an active room.
type RoomStatus struct {
	Code        string `json:"code"`
	PlayerCount int    `json:"playerCount"`
	MaxPlayers  int    `json:"maxPlayers"`
	MaxRounds   int    `json:"maxRounds"`
	IsFull      bool   `json:"isFull"`
}

// Room looks up an active room by code.
func (c *Client) Room(ctx context.Context, code string) (*RoomStatus, error) {
	var out RoomStatus
	if err := c.do(ctx, http.MethodGet, "/api/rooms/"+url.PathEscape(code), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health reports whether the server answers its health check.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) post(ctx context.Context, endpoint string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	return c.do(ctx, http.MethodPost, endpoint, bytes.NewReader(body), out)
}

// do sends the request and unwraps the {code, message, data} envelope. A non-zero code is
// returned as a *errs.CustomError.
func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("API returned status code: %d, response: %s", resp.StatusCode, string(raw))
	}

	if env.Code != 0 {
		return &errs.CustomError{Code: env.Code, Message: env.Message, Status: resp.StatusCode}
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

// WebSocketURL derives the socket endpoint from the server's HTTP address.
func WebSocketURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}

	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = ""
	return u.String(), nil
}
