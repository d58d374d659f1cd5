package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/huddle/internal/gateway"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// CodeRateLimited is sent when a connection exceeds its inbound event budget.
const CodeRateLimited = "rate_limited"

// client pumps frames between one WebSocket and its gateway connection.
type client struct {
	s       *Server
	ws      *websocket.Conn
	conn    *gateway.Conn
	limiter *rate.Limiter
	logger  *zap.Logger
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	if !s.accepting() {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "server is not accepting connections")
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	// The request context ends when this handler returns; the connection outlives it.
	ctx := context.WithoutCancel(r.Context())
	conn := s.Gateway.Connect(r.RemoteAddr, s.opts.SendBuffer)
	c := &client{
		s:       s,
		ws:      ws,
		conn:    conn,
		limiter: newLimiter(s.opts),
		logger:  s.logger.With(zap.String("conn", conn.ID()), zap.String("remote", r.RemoteAddr)),
	}

	if token := bearer(r); token != "" {
		if _, err := s.Gateway.Authenticate(ctx, conn, token); err != nil {
			c.logger.Debug("websocket token rejected", zap.Error(err))
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid token"),
				time.Now().Add(s.opts.WriteWait))
			s.Gateway.Disconnect(conn)
			_ = ws.Close()
			return
		}
	}

	c.logger.Debug("websocket connected")
	go c.writePump()
	go c.readPump(ctx)
}

func (c *client) readPump(ctx context.Context) {
	defer func() {
		c.s.Gateway.Disconnect(c.conn)
		_ = c.ws.Close()
		c.logger.Debug("websocket disconnected")
	}()

	c.ws.SetReadLimit(c.s.opts.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.s.opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.s.opts.PongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		if !c.limiter.Allow() {
			c.rejectRateLimited(raw)
			continue
		}
		c.s.Gateway.Handle(ctx, c.conn, raw)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.s.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case payload, ok := <-c.conn.Outbound():
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.s.opts.WriteWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-c.conn.Overflowed():
			c.logger.Warn("closing slow websocket consumer")
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "send queue full"),
				time.Now().Add(c.s.opts.WriteWait))
			return
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.s.opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) rejectRateLimited(raw []byte) {
	var in struct {
		Ref string `json:"ref"`
	}
	_ = json.Unmarshal(raw, &in)
	payload, _ := json.Marshal(gateway.ErrorEvent{
		Type:    gateway.TypeError,
		Ref:     in.Ref,
		Code:    CodeRateLimited,
		Message: "too many events",
	})
	c.conn.Deliver(payload)
}

func (c *client) logReadError(err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.logger.Info("websocket frame exceeded read limit", zap.Int64("limit", c.s.opts.ReadLimit))
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
	case errors.As(err, &netErr) && netErr.Timeout():
		c.logger.Debug("websocket read timed out")
	default:
		c.logger.Debug("websocket read failed", zap.Error(err))
	}
}
