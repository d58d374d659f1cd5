package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/matheus3301/huddle/internal/blob"
	"github.com/matheus3301/huddle/internal/gateway"
	"github.com/matheus3301/huddle/internal/store"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

type chatJSON struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	IsGroup   bool      `json:"is_group"`
	CreatedAt time.Time `json:"created_at"`
}

type userJSON struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarRef   string `json:"avatar_ref,omitempty"`
}

type directRequest struct {
	UserID int64 `json:"user_id" validate:"required,gt=0"`
}

type groupRequest struct {
	Name      string  `json:"name" validate:"max=100"`
	MemberIDs []int64 `json:"member_ids" validate:"max=256,dive,gt=0"`
}

type startResponse struct {
	Chat    chatJSON `json:"chat"`
	Outcome string   `json:"outcome"`
}

const (
	defaultSearchLimit = 50
	maxSearchLimit     = 200
)

func toChatJSON(c store.Chat) chatJSON {
	return chatJSON{ID: c.ID, Name: c.Name, IsGroup: c.IsGroup, CreatedAt: time.UnixMilli(c.CreatedAt).UTC()}
}

func (s *Server) startDirect(w http.ResponseWriter, r *http.Request, userID int64) {
	var req directRequest
	if !s.decode(w, r, &req) {
		return
	}
	c, outcome, err := s.Lifecycle.StartDirect(r.Context(), userID, req.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if outcome == store.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, startResponse{Chat: toChatJSON(*c), Outcome: outcome.String()})
}

func (s *Server) startGroup(w http.ResponseWriter, r *http.Request, userID int64) {
	var req groupRequest
	if !s.decode(w, r, &req) {
		return
	}
	c, err := s.Lifecycle.StartGroup(r.Context(), userID, strings.TrimSpace(req.Name), req.MemberIDs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, startResponse{Chat: toChatJSON(*c), Outcome: store.Created.String()})
}

func (s *Server) listChats(w http.ResponseWriter, r *http.Request, userID int64) {
	chats, err := s.Registry.ChatsOf(r.Context(), userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(chats, func(c store.Chat, _ int) chatJSON { return toChatJSON(c) }))
}

func (s *Server) history(w http.ResponseWriter, r *http.Request, userID int64) {
	chatID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || chatID <= 0 {
		writeError(w, http.StatusBadRequest, gateway.CodeBadRequest, "invalid chat id")
		return
	}
	msgs, err := s.Gateway.HistoryFor(r.Context(), userID, chatID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gateway.ToReceiveMessages(msgs))
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request, userID int64) {
	users, err := s.Store.ListUsers(r.Context(), userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(users, func(u store.User, _ int) userJSON {
		return userJSON{ID: u.ID, DisplayName: u.Label(), AvatarRef: u.AvatarRef}
	}))
}

func (s *Server) search(w http.ResponseWriter, r *http.Request, userID int64) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, gateway.CodeBadRequest, "missing query")
		return
	}
	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, gateway.CodeBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxSearchLimit)
	}
	msgs, err := s.Store.SearchMessages(r.Context(), userID, q, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gateway.ToReceiveMessages(msgs))
}

// uploadOverhead is the room left above the attachment limit for multipart
// boundaries, headers and form fields.
const uploadOverhead = 64 << 10

type uploadResponse struct {
	Ref     string                  `json:"ref"`
	MIME    string                  `json:"mime"`
	Size    int64                   `json:"size"`
	Message *gateway.ReceiveMessage `json:"message,omitempty"`
}

// upload accepts either a multipart form with a "file" part or a raw body.
// When chat_id is given (form field or query) the stored attachment is posted
// to that chat as a message, with the optional "content" as its caption.
func (s *Server) upload(w http.ResponseWriter, r *http.Request, userID int64) {
	limit := s.Blobs.MaxSize() + uploadOverhead
	if r.ContentLength > limit {
		writeError(w, http.StatusRequestEntityTooLarge, gateway.CodeBadRequest, blob.ErrTooLarge.Error())
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	var src io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		f, _, err := r.FormFile("file")
		if tooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, gateway.CodeBadRequest, blob.ErrTooLarge.Error())
			return
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, gateway.CodeBadRequest, "missing file part")
			return
		}
		defer f.Close()
		src = f
	}

	caption := r.FormValue("content")
	if len(caption) > gateway.MaxContentLength {
		s.fail(w, r, fmt.Errorf("%w: content exceeds %d bytes", store.ErrInvalidMessage, gateway.MaxContentLength))
		return
	}

	var chatID int64
	if raw := r.FormValue("chat_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, gateway.CodeBadRequest, "invalid chat id")
			return
		}
		chatID = id
		member, err := s.Registry.IsMember(r.Context(), chatID, userID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if !member {
			s.refuseChat(w, r, chatID)
			return
		}
	}

	info, err := s.Blobs.Put(src)
	switch {
	case errors.Is(err, blob.ErrTooLarge), tooLarge(err):
		writeError(w, http.StatusRequestEntityTooLarge, gateway.CodeBadRequest, blob.ErrTooLarge.Error())
		return
	case errors.Is(err, blob.ErrEmpty):
		writeError(w, http.StatusBadRequest, gateway.CodeBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("store attachment", zap.Int64("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, gateway.CodeStoreFailure, "internal error")
		return
	}
	s.logger.Info("attachment stored", zap.Int64("user_id", userID), zap.String("ref", info.Ref), zap.String("mime", info.MIME), zap.Int64("size", info.Size))

	resp := uploadResponse{Ref: info.Ref, MIME: info.MIME, Size: info.Size}
	if chatID != 0 {
		msg, err := s.Gateway.SendFor(r.Context(), userID, gateway.SendRequest{
			ChatID:        chatID,
			Content:       caption,
			AttachmentRef: info.Ref,
		})
		if err != nil {
			if rmErr := s.Blobs.Remove(info.Ref); rmErr != nil {
				s.logger.Warn("remove orphaned attachment", zap.String("ref", info.Ref), zap.Error(rmErr))
			}
			s.fail(w, r, err)
			return
		}
		m := gateway.ToReceiveMessage(*msg)
		resp.Message = &m
	}
	writeJSON(w, http.StatusCreated, resp)
}

// refuseChat answers a non-member's request for chatID, telling apart a chat
// that does not exist.
func (s *Server) refuseChat(w http.ResponseWriter, r *http.Request, chatID int64) {
	c, err := s.Registry.Chat(r.Context(), chatID)
	switch {
	case err != nil:
		s.fail(w, r, err)
	case c == nil:
		s.fail(w, r, fmt.Errorf("chat %d: %w", chatID, store.ErrUnknownChat))
	default:
		s.fail(w, r, gateway.ErrUnauthorized)
	}
}

// tooLarge reports whether err comes from a body cut off by http.MaxBytesReader.
func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

func (s *Server) download(w http.ResponseWriter, r *http.Request, _ int64) {
	f, info, err := s.Blobs.Open(r.PathValue("ref"))
	switch {
	case errors.Is(err, blob.ErrInvalidRef), errors.Is(err, blob.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "attachment not found")
		return
	case err != nil:
		s.fail(w, r, err)
		return
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", info.MIME)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, info.Ref, fi.ModTime(), f)
}
