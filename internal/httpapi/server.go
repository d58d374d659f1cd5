// Package httpapi is the client-facing boundary: a WebSocket endpoint feeding
// the gateway plus a small JSON API for starting chats, reading history,
// listing users, searching and uploading attachments.
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/matheus3301/huddle/internal/blob"
	"github.com/matheus3301/huddle/internal/chat"
	"github.com/matheus3301/huddle/internal/gateway"
	"github.com/matheus3301/huddle/internal/status"
	"github.com/matheus3301/huddle/internal/store"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Store is the read side the API needs beyond the gateway. *store.DB satisfies it.
type Store interface {
	GetUser(ctx context.Context, id int64) (*store.User, error)
	ListUsers(ctx context.Context, excludeID int64) ([]store.User, error)
	SearchMessages(ctx context.Context, userID int64, query string, limit int) ([]store.Message, error)
}

// Options tune transport limits.
type Options struct {
	AllowedOrigins []string
	SendBuffer     int
	ReadLimit      int64
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	// EventRate and EventBurst bound inbound frames per connection.
	EventRate  float64
	EventBurst int
}

// DefaultOptions mirrors the transport defaults of the config file.
func DefaultOptions() Options {
	return Options{
		SendBuffer:   256,
		ReadLimit:    16 << 10,
		PingInterval: 54 * time.Second,
		PongWait:     60 * time.Second,
		WriteWait:    10 * time.Second,
		EventRate:    20,
		EventBurst:   40,
	}
}

// Deps are the collaborators the API is built on.
type Deps struct {
	Gateway   *gateway.Gateway
	Lifecycle *chat.Lifecycle
	Registry  *chat.Registry
	Store     Store
	Blobs     *blob.Store
	Auth      gateway.Authenticator
	// Machine gates new WebSocket connections and feeds /healthz. Optional.
	Machine *status.Machine
	Logger  *zap.Logger
}

// Server serves the REST API, attachment transfer and the WebSocket gateway.
type Server struct {
	Deps
	opts     Options
	logger   *zap.Logger
	validate *validator.Validate
	upgrader websocket.Upgrader
	origins  originPolicy
}

// New builds a Server over deps. Call Handler to mount it.
func New(deps Deps, opts Options) *Server {
	s := &Server{
		Deps:     deps,
		opts:     opts,
		logger:   deps.Logger.Named("http"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		origins:  newOriginPolicy(opts.AllowedOrigins),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.allowed,
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.health)
	mux.HandleFunc("GET /ws", s.serveWS)
	mux.Handle("POST /api/chats/direct", s.authed(s.startDirect))
	mux.Handle("POST /api/chats/group", s.authed(s.startGroup))
	mux.Handle("GET /api/chats", s.authed(s.listChats))
	mux.Handle("GET /api/chats/{id}/messages", s.authed(s.history))
	mux.Handle("GET /api/users", s.authed(s.listUsers))
	mux.Handle("GET /api/search", s.authed(s.search))
	mux.Handle("POST /api/attachments", s.authed(s.upload))
	mux.Handle("GET /attachments/{ref}", s.authed(s.download))
	return mux
}

// NewHTTPServer wraps h with the timeouts used in production. WriteTimeout is
// left unset because upgraded WebSocket connections manage their own deadlines.
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// authed resolves the bearer token to a user id before calling next.
func (s *Server) authed(next func(http.ResponseWriter, *http.Request, int64)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearer(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, gateway.CodeUnauthenticated, "missing bearer token")
			return
		}
		userID, err := s.Auth.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, gateway.CodeUnauthenticated, "invalid token")
			return
		}
		next(w, r, userID)
	})
}

// bearer reads the token from the Authorization header, falling back to the
// token query parameter for browsers that cannot set headers on WebSocket
// and image requests.
func bearer(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if rest, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(rest)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

func newLimiter(opts Options) *rate.Limiter {
	if opts.EventRate <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(opts.EventRate), max(opts.EventBurst, 1))
}

func (s *Server) accepting() bool {
	return s.Machine == nil || s.Machine.Accepting()
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	state := status.Serving
	if s.Machine != nil {
		state = s.Machine.Current()
	}
	rooms, subs := s.Gateway.Rooms().Stats()
	code := http.StatusOK
	if !s.accepting() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":        state,
		"rooms":         rooms,
		"subscriptions": subs,
		"connections":   s.Gateway.Connections(),
	})
}
