package gateway

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Handle decodes one inbound frame from c, runs the operation it names and
// queues any reply on c. Failures are reported to c only.
func (g *Gateway) Handle(ctx context.Context, c *Conn, raw []byte) {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		g.reply(c, ErrorEvent{Type: TypeError, Code: CodeBadRequest, Message: "malformed frame"})
		return
	}
	if err := validate.Struct(in); err != nil {
		g.reply(c, ErrorEvent{Type: TypeError, Ref: in.Ref, Code: CodeBadRequest, Message: validationMessage(err)})
		return
	}

	switch in.Type {
	case TypeAuthenticate:
		userID, err := g.Authenticate(ctx, c, in.Token)
		if err != nil {
			g.fail(c, in.Ref, err)
			return
		}
		g.reply(c, Ack{Type: TypeAuthenticated, Ref: in.Ref, UserID: userID})

	case TypeJoin:
		err := g.Join(ctx, c, in.ChatID)
		if errors.Is(err, ErrUnauthorized) && !g.opts.NotifyJoinRefusal {
			g.logger.Debug("join refused", zap.String("conn", c.ID()), zap.Int64("chat_id", in.ChatID))
			return
		}
		if err != nil {
			g.fail(c, in.Ref, err)
			return
		}
		g.reply(c, Ack{Type: TypeJoined, Ref: in.Ref, ChatID: in.ChatID})

	case TypeLeave:
		if _, ok := c.UserID(); !ok {
			g.fail(c, in.Ref, ErrUnauthenticated)
			return
		}
		g.Leave(c, in.ChatID)
		g.reply(c, Ack{Type: TypeLeft, Ref: in.Ref, ChatID: in.ChatID})

	case TypeSendMessage:
		// Success is acknowledged by the sender's own receive_message echo.
		if _, err := g.Send(ctx, c, SendRequest{ChatID: in.ChatID, Content: in.Content, AttachmentRef: in.AttachmentRef}); err != nil {
			g.fail(c, in.Ref, err)
		}

	case TypeGetHistory:
		msgs, err := g.History(ctx, c, in.ChatID)
		if err != nil {
			g.fail(c, in.Ref, err)
			return
		}
		g.reply(c, HistoryEvent{Type: TypeHistory, Ref: in.Ref, ChatID: in.ChatID, Messages: ToReceiveMessages(msgs)})
	}
}

func (g *Gateway) fail(c *Conn, ref string, err error) {
	code := Code(err)
	msg := err.Error()
	if code == CodeStoreFailure {
		g.logger.Error("operation failed", zap.String("conn", c.ID()), zap.Error(err))
		msg = "internal error"
	}
	g.reply(c, ErrorEvent{Type: TypeError, Ref: ref, Code: code, Message: msg})
}

func (g *Gateway) reply(c *Conn, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		g.logger.Error("encode reply", zap.Error(err))
		return
	}
	if !c.Deliver(payload) {
		g.logger.Debug("reply dropped", zap.String("conn", c.ID()))
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return "invalid field " + fe.Field() + ": " + fe.Tag()
	}
	return err.Error()
}
