package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/matheus3301/huddle/internal/blob"
	"github.com/matheus3301/huddle/internal/chat"
	"github.com/matheus3301/huddle/internal/config"
	"github.com/matheus3301/huddle/internal/gateway"
	"github.com/matheus3301/huddle/internal/httpapi"
	"github.com/matheus3301/huddle/internal/identity"
	"github.com/matheus3301/huddle/internal/status"
	"github.com/matheus3301/huddle/internal/store"
	"go.uber.org/zap"
)

// HTTPServer runs the client-facing HTTP and WebSocket endpoint.
type HTTPServer struct {
	srv      *http.Server
	listener net.Listener
	logger   *zap.Logger
}

func NewHTTPServer(cfg *config.Config, gw *gateway.Gateway, lc *chat.Lifecycle, reg *chat.Registry, db *store.DB, blobs *blob.Store, iss *identity.Issuer, m *status.Machine, logger *zap.Logger) *HTTPServer {
	api := httpapi.New(httpapi.Deps{
		Gateway:   gw,
		Lifecycle: lc,
		Registry:  reg,
		Store:     db,
		Blobs:     blobs,
		Auth:      iss,
		Machine:   m,
		Logger:    logger,
	}, httpOptions(cfg))
	return &HTTPServer{
		srv:    httpapi.NewHTTPServer(cfg.Server.ListenAddr, api.Handler()),
		logger: logger,
	}
}

// Listen binds the configured address so startup fails fast on conflicts.
func (h *HTTPServer) Listen() error {
	ln, err := net.Listen("tcp", h.srv.Addr)
	if err != nil {
		return err
	}
	h.listener = ln
	return nil
}

// Addr is the bound address, useful when listening on port 0.
func (h *HTTPServer) Addr() string {
	if h.listener == nil {
		return h.srv.Addr
	}
	return h.listener.Addr().String()
}

// Serve blocks until Stop.
func (h *HTTPServer) Serve() error {
	h.logger.Info("http server starting", zap.String("addr", h.Addr()))
	if err := h.srv.Serve(h.listener); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("http server stopping")
	return h.srv.Shutdown(ctx)
}
