// Package api is the daemon's local admin surface: a gRPC service on a unix
// socket used by huddlectl to provision users and chats, inspect history and
// watch live traffic.
package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/matheus3301/huddle/internal/bus"
	"github.com/matheus3301/huddle/internal/chat"
	"github.com/matheus3301/huddle/internal/gateway"
	"github.com/matheus3301/huddle/internal/identity"
	"github.com/matheus3301/huddle/internal/room"
	"github.com/matheus3301/huddle/internal/status"
	"github.com/matheus3301/huddle/internal/store"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// Params are the collaborators of Service.
type Params struct {
	Instance   string
	ListenAddr string
	DB         *store.DB
	Registry   *chat.Registry
	Issuer     *identity.Issuer
	Rooms      *room.Directory
	Machine    *status.Machine
	Bus        *bus.Bus
	Logger     *zap.Logger
}

// Service implements AdminServer.
type Service struct {
	Params
	startedAt time.Time
}

func NewService(p Params) *Service {
	return &Service{Params: p, startedAt: time.Now()}
}

func (s *Service) CreateUser(ctx context.Context, req *CreateUserRequest) (*UserReply, error) {
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "display name is required")
	}
	u, err := s.DB.CreateUser(ctx, name, req.AvatarRef)
	if err != nil {
		return nil, toStatus(err)
	}
	s.Logger.Info("user created", zap.Int64("user_id", u.ID), zap.String("display_name", u.DisplayName))
	return &UserReply{User: userOut(*u)}, nil
}

func (s *Service) IssueToken(ctx context.Context, req *IssueTokenRequest) (*TokenReply, error) {
	u, err := s.DB.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, toStatus(err)
	}
	if u == nil {
		return nil, grpcstatus.Errorf(codes.NotFound, "user %d not found", req.UserID)
	}
	token, expires, err := s.Issuer.Issue(u.ID)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "issue token: %v", err)
	}
	return &TokenReply{Token: token, ExpiresAt: expires}, nil
}

func (s *Service) CreateDirectChat(ctx context.Context, req *CreateDirectChatRequest) (*ChatReply, error) {
	c, outcome, err := s.Registry.CreateDirectChat(ctx, req.UserA, req.UserB)
	if err != nil {
		return nil, toStatus(err)
	}
	return s.chatReply(ctx, c, outcome)
}

func (s *Service) CreateGroupChat(ctx context.Context, req *CreateGroupChatRequest) (*ChatReply, error) {
	c, err := s.Registry.CreateGroupChat(ctx, req.Creator, req.MemberIDs, strings.TrimSpace(req.Name))
	if err != nil {
		return nil, toStatus(err)
	}
	return s.chatReply(ctx, c, store.Created)
}

func (s *Service) History(ctx context.Context, req *HistoryRequest) (*HistoryReply, error) {
	c, err := s.Registry.Chat(ctx, req.ChatID)
	if err != nil {
		return nil, toStatus(err)
	}
	if c == nil {
		return nil, grpcstatus.Errorf(codes.NotFound, "chat %d not found", req.ChatID)
	}
	msgs, err := s.DB.History(ctx, req.ChatID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &HistoryReply{Messages: lo.Map(msgs, func(m store.Message, _ int) Message { return messageOut(m) })}, nil
}

func (s *Service) Status(ctx context.Context, _ *StatusRequest) (*StatusReply, error) {
	resp := &StatusReply{
		Instance:   s.Instance,
		State:      string(s.Machine.Current()),
		StateSince: s.Machine.Since(),
		UptimeMs:   time.Since(s.startedAt).Milliseconds(),
		ListenAddr: s.ListenAddr,
	}
	if counts, err := s.DB.Counts(ctx); err == nil {
		resp.Users, resp.Chats, resp.Messages = counts.Users, counts.Chats, counts.Messages
	} else {
		s.Logger.Warn("status counts unavailable", zap.Error(err))
	}
	resp.Rooms, resp.Subscriptions = s.Rooms.Stats()
	if s.Bus != nil {
		resp.DroppedEvents = s.Bus.Dropped()
	}
	return resp, nil
}

// WatchMessages streams every appended message until the client goes away.
func (s *Service) WatchMessages(req *WatchRequest, stream MessageSender) error {
	ch, unsub := s.Bus.Subscribe(bus.KindMessageAppended, 64)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			p, ok := evt.Payload.(gateway.MessageAppended)
			if !ok || (req.ChatID != 0 && p.Message.ChatID != req.ChatID) {
				continue
			}
			if err := stream.Send(&MessageEvent{
				EventID:    evt.ID,
				OccurredAt: evt.Timestamp,
				Message:    messageOut(p.Message),
				Delivered:  p.Delivered,
				Skipped:    p.Skipped,
			}); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func (s *Service) chatReply(ctx context.Context, c *store.Chat, outcome store.Outcome) (*ChatReply, error) {
	members, err := s.DB.ChatMembers(ctx, c.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ChatReply{
		Chat: Chat{
			ID:        c.ID,
			Name:      c.Name,
			IsGroup:   c.IsGroup,
			Members:   members,
			CreatedAt: time.UnixMilli(c.CreatedAt).UTC(),
		},
		Outcome: outcome.String(),
	}, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, store.ErrUnknownChat), errors.Is(err, store.ErrUnknownUser):
		return grpcstatus.Error(codes.NotFound, err.Error())
	case errors.Is(err, store.ErrInvalidMembers), errors.Is(err, store.ErrInvalidMessage):
		return grpcstatus.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, gateway.ErrUnauthenticated):
		return grpcstatus.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, gateway.ErrUnauthorized):
		return grpcstatus.Error(codes.PermissionDenied, err.Error())
	default:
		return grpcstatus.Errorf(codes.Internal, "%v", err)
	}
}

func userOut(u store.User) User {
	return User{ID: u.ID, DisplayName: u.DisplayName, AvatarRef: u.AvatarRef, CreatedAt: time.UnixMilli(u.CreatedAt).UTC()}
}

func messageOut(m store.Message) Message {
	return Message{
		ID:            m.ID,
		ChatID:        m.ChatID,
		SenderID:      m.SenderID,
		SenderName:    m.SenderName,
		Content:       m.Content,
		AttachmentRef: m.AttachmentRef,
		CreatedAt:     time.UnixMilli(m.CreatedAt).UTC(),
	}
}
