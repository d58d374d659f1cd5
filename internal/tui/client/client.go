// Package client talks to huddled over its HTTP API and WebSocket gateway.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// ErrNotConnected is returned by gateway calls before Connect.
var ErrNotConnected = errors.New("client: gateway not connected")

type Chat struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	IsGroup   bool      `json:"is_group"`
	CreatedAt time.Time `json:"created_at"`
}

type User struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarRef   string `json:"avatar_ref,omitempty"`
}

type Message struct {
	ID                int64     `json:"id"`
	ChatID            int64     `json:"chat_id"`
	SenderID          int64     `json:"sender_id"`
	SenderDisplayName string    `json:"sender_display_name"`
	Content           string    `json:"content,omitempty"`
	AttachmentRef     string    `json:"attachment_ref,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Event is one frame pushed by the gateway. Only the fields relevant to
// Type are set.
type Event struct {
	Type     string
	Ref      string
	ChatID   int64
	UserID   int64
	Message  *Message
	History  []Message
	Code     string
	ErrorMsg string
}

// wireEvent is the union of every outbound gateway frame.
type wireEvent struct {
	Message
	Type     string    `json:"type"`
	Ref      string    `json:"ref"`
	UserID   int64     `json:"user_id"`
	Messages []Message `json:"messages"`
	Code     string    `json:"code"`
	Text     string    `json:"message"`
}

func (w wireEvent) event() Event {
	evt := Event{Type: w.Type, Ref: w.Ref, ChatID: w.ChatID, UserID: w.UserID}
	switch w.Type {
	case "receive_message":
		m := w.Message
		evt.Message = &m
	case "history":
		evt.History = w.Messages
	case "error":
		evt.Code, evt.ErrorMsg = w.Code, w.Text
	}
	return evt
}

// APIError is a non-2xx HTTP response.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// Client holds one user's session with the server.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client

	mu     sync.Mutex
	ws     *websocket.Conn
	events chan Event
	seq    atomic.Uint64
}

// New validates baseURL (http or https) and returns an unconnected client.
func New(baseURL, token string) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return &Client{
		base:   u,
		token:  token,
		http:   &http.Client{Timeout: 15 * time.Second},
		events: make(chan Event, 256),
	}, nil
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.base
	u.Path = path
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, q), rd)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil {
			apiErr.Code = "http_error"
			apiErr.Message = resp.Status
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Chats lists the chats the user belongs to.
func (c *Client) Chats(ctx context.Context) ([]Chat, error) {
	var chats []Chat
	err := c.do(ctx, http.MethodGet, "/api/chats", nil, nil, &chats)
	return chats, err
}

// History returns a chat's messages oldest first.
func (c *Client) History(ctx context.Context, chatID int64) ([]Message, error) {
	var msgs []Message
	err := c.do(ctx, http.MethodGet, "/api/chats/"+strconv.FormatInt(chatID, 10)+"/messages", nil, nil, &msgs)
	return msgs, err
}

// Users lists the other users on the server.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	var users []User
	err := c.do(ctx, http.MethodGet, "/api/users", nil, nil, &users)
	return users, err
}

// Search finds messages containing query in the user's chats.
func (c *Client) Search(ctx context.Context, query string) ([]Message, error) {
	var msgs []Message
	err := c.do(ctx, http.MethodGet, "/api/search", url.Values{"q": {query}}, nil, &msgs)
	return msgs, err
}

type startResponse struct {
	Chat    Chat   `json:"chat"`
	Outcome string `json:"outcome"`
}

// StartDirect opens the direct chat with userID, creating it when needed.
// created is false when the chat already existed.
func (c *Client) StartDirect(ctx context.Context, userID int64) (chat Chat, created bool, err error) {
	var resp startResponse
	err = c.do(ctx, http.MethodPost, "/api/chats/direct", nil, map[string]int64{"user_id": userID}, &resp)
	return resp.Chat, resp.Outcome == "created", err
}

// StartGroup creates a group with the caller and memberIDs.
func (c *Client) StartGroup(ctx context.Context, name string, memberIDs []int64) (Chat, error) {
	var resp startResponse
	err := c.do(ctx, http.MethodPost, "/api/chats/group", nil, map[string]any{
		"name":       name,
		"member_ids": memberIDs,
	}, &resp)
	return resp.Chat, err
}

// Connect opens the gateway WebSocket and starts delivering frames on Events.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	connected := c.ws != nil
	c.mu.Unlock()
	if connected {
		return errors.New("client: already connected")
	}

	u := *c.base
	u.Path = "/ws"
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	header := http.Header{"Authorization": {"Bearer " + c.token}}
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}

	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()

	go c.readLoop(ws)
	return nil
}

func (c *Client) readLoop(ws *websocket.Conn) {
	defer close(c.events)
	for {
		var w wireEvent
		if err := ws.ReadJSON(&w); err != nil {
			return
		}
		c.events <- w.event()
	}
}

// Events is closed when the gateway connection ends.
func (c *Client) Events() <-chan Event {
	return c.events
}

func (c *Client) write(frame map[string]any) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil {
		return "", ErrNotConnected
	}
	ref := strconv.FormatUint(c.seq.Add(1), 10)
	frame["ref"] = ref
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ref, c.ws.WriteJSON(frame)
}

// Authenticate asks the gateway to confirm the token; the authenticated
// reply carries the user id.
func (c *Client) Authenticate() (string, error) {
	return c.write(map[string]any{"type": "authenticate", "token": c.token})
}

// Join subscribes to live messages of chatID. The reply arrives on Events.
func (c *Client) Join(chatID int64) (string, error) {
	return c.write(map[string]any{"type": "join", "chat_id": chatID})
}

func (c *Client) Leave(chatID int64) (string, error) {
	return c.write(map[string]any{"type": "leave", "chat_id": chatID})
}

// Send posts a message. The server echoes it back as receive_message.
func (c *Client) Send(chatID int64, content string) (string, error) {
	return c.write(map[string]any{"type": "send_message", "chat_id": chatID, "content": content})
}

// Close ends the gateway connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil {
		return nil
	}
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	err := c.ws.Close()
	c.ws = nil
	return err
}
