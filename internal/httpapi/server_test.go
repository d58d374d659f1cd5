package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/huddle/internal/blob"
	"github.com/matheus3301/huddle/internal/bus"
	"github.com/matheus3301/huddle/internal/chat"
	"github.com/matheus3301/huddle/internal/gateway"
	"github.com/matheus3301/huddle/internal/identity"
	"github.com/matheus3301/huddle/internal/room"
	"github.com/matheus3301/huddle/internal/store"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type env struct {
	srv     *httptest.Server
	handler http.Handler
	blobDir string
	tokens  map[string]string
	users   map[string]*store.User
}

func newEnv(t *testing.T, mutate func(*Options)) *env {
	t.Helper()
	req := require.New(t)
	ctx := context.Background()

	db, err := store.Open(filepath.Join(t.TempDir(), "api.db"))
	req.NoError(err)
	_, err = db.Migrate()
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	iss, err := identity.NewIssuer("test-secret-0123456789", time.Hour)
	req.NoError(err)
	blobDir := filepath.Join(t.TempDir(), "blobs")
	blobs, err := blob.New(blobDir, 1<<20)
	req.NoError(err)

	b := bus.New()
	reg := chat.NewRegistry(db, b, zap.NewNop())
	gw := gateway.New(reg, db, iss, room.NewDirectory(), b, zap.NewNop(), gateway.Options{Attachments: blobs})

	e := &env{blobDir: blobDir, tokens: map[string]string{}, users: map[string]*store.User{}}
	for _, name := range []string{"alice", "bob", "carol"} {
		u, err := db.CreateUser(ctx, name, "")
		req.NoError(err)
		tok, _, err := iss.Issue(u.ID)
		req.NoError(err)
		e.users[name] = u
		e.tokens[name] = tok
	}

	opts := DefaultOptions()
	if mutate != nil {
		mutate(&opts)
	}
	s := New(Deps{
		Gateway:   gw,
		Lifecycle: chat.NewLifecycle(reg),
		Registry:  reg,
		Store:     db,
		Blobs:     blobs,
		Auth:      iss,
		Logger:    zap.NewNop(),
	}, opts)
	e.handler = s.Handler()
	e.srv = httptest.NewServer(e.handler)
	t.Cleanup(e.srv.Close)
	return e
}

func (e *env) do(t *testing.T, method, path, user string, body any) (*http.Response, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	r, err := http.NewRequest(method, e.srv.URL+path, rdr)
	require.NoError(t, err)
	if user != "" {
		r.Header.Set("Authorization", "Bearer "+e.tokens[user])
	}
	resp, err := http.DefaultClient.Do(r)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (e *env) dial(t *testing.T, user string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws"
	if user != "" {
		u += "?token=" + e.tokens[user]
	}
	ws, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func (e *env) startDirect(t *testing.T, caller, other string) int64 {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/api/chats/direct", caller, map[string]any{"user_id": e.users[other].ID})
	require.Contains(t, []int{http.StatusCreated, http.StatusOK}, resp.StatusCode, string(body))
	var out startResponse
	require.NoError(t, json.Unmarshal(body, &out))
	return out.Chat.ID
}

func readFrame(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var m map[string]any
	require.NoError(t, ws.ReadJSON(&m))
	return m
}

func TestWebSocketJoinSendReceive(t *testing.T) {
	req := require.New(t)
	e := newEnv(t, nil)
	chatID := e.startDirect(t, "alice", "bob")

	a := e.dial(t, "alice")
	b := e.dial(t, "bob")
	for _, ws := range []*websocket.Conn{a, b} {
		req.NoError(ws.WriteJSON(map[string]any{"type": "join", "chat_id": chatID}))
		req.Equal("joined", readFrame(t, ws)["type"])
	}

	req.NoError(a.WriteJSON(map[string]any{"type": "send_message", "chat_id": chatID, "content": "hello bob"}))
	for _, ws := range []*websocket.Conn{a, b} {
		got := readFrame(t, ws)
		req.Equal("receive_message", got["type"])
		req.Equal("hello bob", got["content"])
		req.Equal("alice", got["sender_display_name"])
	}

	resp, body := e.do(t, http.MethodGet, fmt.Sprintf("/api/chats/%d/messages", chatID), "bob", nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	var hist []gateway.ReceiveMessage
	req.NoError(json.Unmarshal(body, &hist))
	req.Len(hist, 1)
	req.Equal("hello bob", hist[0].Content)
}

func TestWebSocketAuthenticateFrame(t *testing.T) {
	req := require.New(t)
	e := newEnv(t, nil)
	chatID := e.startDirect(t, "alice", "bob")

	ws := e.dial(t, "")
	req.NoError(ws.WriteJSON(map[string]any{"type": "join", "chat_id": chatID}))
	req.Equal(gateway.CodeUnauthenticated, readFrame(t, ws)["code"])

	req.NoError(ws.WriteJSON(map[string]any{"type": "authenticate", "token": e.tokens["bob"]}))
	got := readFrame(t, ws)
	req.Equal("authenticated", got["type"])
	req.EqualValues(e.users["bob"].ID, got["user_id"])

	req.NoError(ws.WriteJSON(map[string]any{"type": "join", "chat_id": chatID}))
	req.Equal("joined", readFrame(t, ws)["type"])
}

func TestWebSocketRejectsBadToken(t *testing.T) {
	e := newEnv(t, nil)
	u := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws?token=bogus"
	ws, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = ws.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}

func TestWebSocketRateLimit(t *testing.T) {
	req := require.New(t)
	e := newEnv(t, func(o *Options) {
		o.EventRate = 0.001
		o.EventBurst = 1
	})
	chatID := e.startDirect(t, "alice", "bob")

	ws := e.dial(t, "alice")
	req.NoError(ws.WriteJSON(map[string]any{"type": "join", "chat_id": chatID}))
	req.Equal("joined", readFrame(t, ws)["type"])

	req.NoError(ws.WriteJSON(map[string]any{"type": "send_message", "chat_id": chatID, "content": "spam", "ref": "s1"}))
	got := readFrame(t, ws)
	req.Equal(CodeRateLimited, got["code"])
	req.Equal("s1", got["ref"])
}

func TestNonMemberCannotReadOrJoin(t *testing.T) {
	req := require.New(t)
	e := newEnv(t, nil)
	chatID := e.startDirect(t, "alice", "bob")

	resp, body := e.do(t, http.MethodGet, fmt.Sprintf("/api/chats/%d/messages", chatID), "carol", nil)
	req.Equal(http.StatusForbidden, resp.StatusCode)
	req.Contains(string(body), gateway.CodeUnauthorized)

	ws := e.dial(t, "carol")
	req.NoError(ws.WriteJSON(map[string]any{"type": "join", "chat_id": chatID}))
	req.NoError(ws.WriteJSON(map[string]any{"type": "leave", "chat_id": chatID}))
	// The refused join is silent; the next frame is the leave ack.
	req.Equal("left", readFrame(t, ws)["type"])
}

func TestStartDirectIsIdempotent(t *testing.T) {
	req := require.New(t)
	e := newEnv(t, nil)

	resp, body := e.do(t, http.MethodPost, "/api/chats/direct", "alice", map[string]any{"user_id": e.users["bob"].ID})
	req.Equal(http.StatusCreated, resp.StatusCode)
	var first startResponse
	req.NoError(json.Unmarshal(body, &first))
	req.Equal("created", first.Outcome)
	req.Equal("alice & bob", first.Chat.Name)

	resp, body = e.do(t, http.MethodPost, "/api/chats/direct", "bob", map[string]any{"user_id": e.users["alice"].ID})
	req.Equal(http.StatusOK, resp.StatusCode)
	var second startResponse
	req.NoError(json.Unmarshal(body, &second))
	req.Equal("already_exists", second.Outcome)
	req.Equal(first.Chat.ID, second.Chat.ID)

	resp, _ = e.do(t, http.MethodPost, "/api/chats/direct", "alice", map[string]any{"user_id": e.users["alice"].ID})
	req.Equal(http.StatusBadRequest, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, "/api/chats/direct", "alice", map[string]any{"user_id": 9999})
	req.Equal(http.StatusNotFound, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, "/api/chats/direct", "alice", map[string]any{})
	req.Equal(http.StatusBadRequest, resp.StatusCode)
}

func TestStartGroupAndListChats(t *testing.T) {
	req := require.New(t)
	e := newEnv(t, nil)

	resp, body := e.do(t, http.MethodPost, "/api/chats/group", "alice", map[string]any{
		"name":       "launch",
		"member_ids": []int64{e.users["bob"].ID, e.users["carol"].ID, e.users["bob"].ID},
	})
	req.Equal(http.StatusCreated, resp.StatusCode, string(body))
	var out startResponse
	req.NoError(json.Unmarshal(body, &out))
	req.True(out.Chat.IsGroup)
	req.Equal("launch", out.Chat.Name)

	resp, body = e.do(t, http.MethodGet, "/api/chats", "carol", nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	var chats []chatJSON
	req.NoError(json.Unmarshal(body, &chats))
	req.Len(chats, 1)
	req.Equal(out.Chat.ID, chats[0].ID)
}

func TestRequiresBearer(t *testing.T) {
	e := newEnv(t, nil)
	for _, path := range []string{"/api/chats", "/api/users", "/api/search?q=x"} {
		resp, _ := e.do(t, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
}

func TestUsersAndSearch(t *testing.T) {
	req := require.New(t)
	e := newEnv(t, nil)
	chatID := e.startDirect(t, "alice", "bob")

	resp, body := e.do(t, http.MethodGet, "/api/users", "alice", nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	var users []userJSON
	req.NoError(json.Unmarshal(body, &users))
	req.Len(users, 2)

	ws := e.dial(t, "alice")
	req.NoError(ws.WriteJSON(map[string]any{"type": "send_message", "chat_id": chatID, "content": "quarterly report"}))
	req.NoError(ws.WriteJSON(map[string]any{"type": "get_history", "chat_id": chatID}))
	req.Equal("history", readFrame(t, ws)["type"])

	resp, body = e.do(t, http.MethodGet, "/api/search?q=report", "bob", nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	var found []gateway.ReceiveMessage
	req.NoError(json.Unmarshal(body, &found))
	req.Len(found, 1)

	resp, body = e.do(t, http.MethodGet, "/api/search?q=report", "carol", nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.NoError(json.Unmarshal(body, &found))
	req.Empty(found)

	resp, _ = e.do(t, http.MethodGet, "/api/search", "bob", nil)
	req.Equal(http.StatusBadRequest, resp.StatusCode)
}

func TestAttachmentRoundTrip(t *testing.T) {
	req := require.New(t)
	e := newEnv(t, nil)

	r, err := http.NewRequest(http.MethodPost, e.srv.URL+"/api/attachments", strings.NewReader("plain text attachment"))
	req.NoError(err)
	r.Header.Set("Authorization", "Bearer "+e.tokens["alice"])
	resp, err := http.DefaultClient.Do(r)
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusCreated, resp.StatusCode)
	var up struct {
		Ref  string `json:"ref"`
		MIME string `json:"mime"`
	}
	req.NoError(json.NewDecoder(resp.Body).Decode(&up))
	req.True(strings.HasPrefix(up.MIME, "text/plain"))

	resp2, body := e.do(t, http.MethodGet, "/attachments/"+up.Ref, "bob", nil)
	req.Equal(http.StatusOK, resp2.StatusCode)
	req.Equal("plain text attachment", string(body))

	resp2, _ = e.do(t, http.MethodGet, "/attachments/nope", "bob", nil)
	req.Equal(http.StatusNotFound, resp2.StatusCode)
}

func TestHealth(t *testing.T) {
	e := newEnv(t, nil)
	resp, body := e.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), `"SERVING"`)
}

func TestOriginPolicy(t *testing.T) {
	p := newOriginPolicy([]string{"https://Chat.Example.com", "not a url"})
	mk := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}
	require.True(t, p.allowed(mk("")))
	require.True(t, p.allowed(mk("https://chat.example.com")))
	require.False(t, p.allowed(mk("https://evil.example.com")))
	require.True(t, newOriginPolicy(nil).allowed(mk("https://anything.test")))
}

func TestAttachmentPostedToChat(t *testing.T) {
	req := require.New(t)
	e := newEnv(t, nil)
	chatID := e.startDirect(t, "alice", "bob")

	b := e.dial(t, "bob")
	req.NoError(b.WriteJSON(map[string]any{"type": "join", "chat_id": chatID}))
	req.Equal("joined", readFrame(t, b)["type"])

	upload := func(user string) *http.Response {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		req.NoError(mw.WriteField("chat_id", fmt.Sprint(chatID)))
		req.NoError(mw.WriteField("content", "see attached"))
		part, err := mw.CreateFormFile("file", "notes.txt")
		req.NoError(err)
		_, err = part.Write([]byte("meeting notes"))
		req.NoError(err)
		req.NoError(mw.Close())

		r, err := http.NewRequest(http.MethodPost, e.srv.URL+"/api/attachments", &buf)
		req.NoError(err)
		r.Header.Set("Content-Type", mw.FormDataContentType())
		r.Header.Set("Authorization", "Bearer "+e.tokens[user])
		resp, err := http.DefaultClient.Do(r)
		req.NoError(err)
		return resp
	}

	resp := upload("carol")
	resp.Body.Close()
	req.Equal(http.StatusForbidden, resp.StatusCode)

	resp = upload("alice")
	defer resp.Body.Close()
	req.Equal(http.StatusCreated, resp.StatusCode)
	var out uploadResponse
	req.NoError(json.NewDecoder(resp.Body).Decode(&out))
	req.NotNil(out.Message)
	req.Equal(out.Ref, out.Message.AttachmentRef)

	got := readFrame(t, b)
	req.Equal("receive_message", got["type"])
	req.Equal(out.Ref, got["attachment_ref"])
	req.Equal("see attached", got["content"])
}

func multipartUpload(t *testing.T, fields map[string]string, file []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	part, err := mw.CreateFormFile("file", "upload.bin")
	require.NoError(t, err)
	_, err = part.Write(file)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadRejectsOversizedBody(t *testing.T) {
	e := newEnv(t, nil)
	big := bytes.Repeat([]byte("x"), 3<<20)

	tests := []struct {
		name    string
		chunked bool
	}{
		{"declared length", false},
		{"chunked", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			body, ct := multipartUpload(t, nil, big)
			r := httptest.NewRequest(http.MethodPost, "/api/attachments", body)
			if tt.chunked {
				r.ContentLength = -1
			}
			r.Header.Set("Content-Type", ct)
			r.Header.Set("Authorization", "Bearer "+e.tokens["alice"])
			rec := httptest.NewRecorder()
			e.handler.ServeHTTP(rec, r)
			req.Equal(http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())

			entries, err := os.ReadDir(e.blobDir)
			req.NoError(err)
			req.Empty(entries)
		})
	}
}

func TestUploadCaptionTooLongStoresNothing(t *testing.T) {
	req := require.New(t)
	e := newEnv(t, nil)
	chatID := e.startDirect(t, "alice", "bob")

	body, ct := multipartUpload(t, map[string]string{
		"chat_id": fmt.Sprint(chatID),
		"content": strings.Repeat("a", gateway.MaxContentLength+1),
	}, []byte("meeting notes"))
	r := httptest.NewRequest(http.MethodPost, "/api/attachments", body)
	r.Header.Set("Content-Type", ct)
	r.Header.Set("Authorization", "Bearer "+e.tokens["alice"])
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, r)
	req.Equal(http.StatusBadRequest, rec.Code)
	req.Contains(rec.Body.String(), gateway.CodeInvalidMessage)

	entries, err := os.ReadDir(e.blobDir)
	req.NoError(err)
	req.Empty(entries)

	resp, data := e.do(t, http.MethodGet, fmt.Sprintf("/api/chats/%d/messages", chatID), "alice", nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.NotContains(string(data), "meeting notes")
}

func TestSendWithForgedAttachmentRef(t *testing.T) {
	req := require.New(t)
	e := newEnv(t, nil)
	chatID := e.startDirect(t, "alice", "bob")

	a := e.dial(t, "alice")
	req.NoError(a.WriteJSON(map[string]any{"type": "join", "chat_id": chatID}))
	req.Equal("joined", readFrame(t, a)["type"])
	req.NoError(a.WriteJSON(map[string]any{"type": "send_message", "ref": "f1", "chat_id": chatID, "attachment_ref": "no-such-blob"}))
	got := readFrame(t, a)
	req.Equal("error", got["type"])
	req.Equal(gateway.CodeInvalidMessage, got["code"])
}

func TestUnknownChatIsNotFound(t *testing.T) {
	req := require.New(t)
	e := newEnv(t, nil)

	resp, body := e.do(t, http.MethodGet, "/api/chats/9999/messages", "alice", nil)
	req.Equal(http.StatusNotFound, resp.StatusCode)
	req.Contains(string(body), gateway.CodeUnknownChat)

	buf, ct := multipartUpload(t, map[string]string{"chat_id": "9999"}, []byte("notes"))
	r := httptest.NewRequest(http.MethodPost, "/api/attachments", buf)
	r.Header.Set("Content-Type", ct)
	r.Header.Set("Authorization", "Bearer "+e.tokens["alice"])
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, r)
	req.Equal(http.StatusNotFound, rec.Code)
}
