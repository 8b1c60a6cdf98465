package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ioms/backend/internal/apierrors"
	"github.com/ioms/backend/internal/model"
	"github.com/ioms/backend/internal/realtime"
	"github.com/ioms/backend/internal/repository"
)

// Realtime event kinds emitted by the chat endpoints.
const (
	KindChatConversation = "chat.conversation"
	KindChatMessage      = "chat.message"
)

// ChatHandler handles conversations between users of one company. New
// messages are pushed to the other participants through the realtime hub.
type ChatHandler struct {
	chat     repository.ChatRepository
	users    repository.UserRepository
	outages  repository.OutageRepository
	realtime realtime.Broadcaster
	logger   *slog.Logger
}

func NewChatHandler(chat repository.ChatRepository, users repository.UserRepository, outages repository.OutageRepository, rt realtime.Broadcaster, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, users: users, outages: outages, realtime: rt, logger: logger}
}

func (h *ChatHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	convs, err := h.chat.ListConversations(r.Context(), a.CompanyID, a.UserID)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	if convs == nil {
		convs = []*model.ChatConversation{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"data": convs})
}

func (h *ChatHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var req model.ConversationCreateRequest
	if !decode(w, r, &req) {
		return
	}

	if req.OutageID != nil {
		if _, err := h.outages.GetByID(r.Context(), a.CompanyID, *req.OutageID); err != nil {
			apierrors.NewValidationError("Validation failed", map[string]string{"outage_id": "unknown outage"}).Write(w, r)
			return
		}
	}

	participants := []uuid.UUID{a.UserID}
	for _, id := range req.ParticipantIDs {
		if containsUUID(participants, id) {
			continue
		}
		u, err := h.users.GetByID(r.Context(), id)
		if err != nil || u.CompanyID != a.CompanyID {
			apierrors.NewValidationError("Validation failed", map[string]string{"participant_ids": "unknown user " + id.String()}).Write(w, r)
			return
		}
		participants = append(participants, id)
	}
	if len(participants) < 2 {
		apierrors.NewValidationError("Validation failed", map[string]string{"participant_ids": "a conversation needs another participant"}).Write(w, r)
		return
	}

	conv := &model.ChatConversation{
		ID:             uuid.New(),
		CompanyID:      a.CompanyID,
		OutageID:       req.OutageID,
		Title:          strings.TrimSpace(req.Title),
		CreatedBy:      a.UserID,
		ParticipantIDs: participants,
		CreatedAt:      time.Now().UTC(),
	}
	if err := h.chat.CreateConversation(r.Context(), conv); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	h.push(r.Context(), KindChatConversation, conv, a.UserID, conv)
	WriteJSON(w, http.StatusCreated, conv)
}

func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	conv, ok := h.conversation(w, r, a)
	if !ok {
		return
	}
	p := parsePagination(r)
	msgs, err := h.chat.ListMessages(r.Context(), conv.ID, p)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []*model.ChatMessage{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"data": msgs, "pagination": p})
}

func (h *ChatHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	conv, ok := h.conversation(w, r, a)
	if !ok {
		return
	}
	var req model.MessageCreateRequest
	if !decode(w, r, &req) {
		return
	}
	body := strings.TrimSpace(req.Body)
	if body == "" {
		apierrors.NewValidationError("Validation failed", map[string]string{"body": "is required"}).Write(w, r)
		return
	}

	msg := &model.ChatMessage{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		SenderID:       a.UserID,
		Body:           body,
		CreatedAt:      time.Now().UTC(),
	}
	if err := h.chat.AddMessage(r.Context(), msg); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	h.push(r.Context(), KindChatMessage, conv, a.UserID, msg)
	WriteJSON(w, http.StatusCreated, msg)
}

// conversation loads the path conversation and checks the actor takes part in it.
func (h *ChatHandler) conversation(w http.ResponseWriter, r *http.Request, a model.Actor) (*model.ChatConversation, bool) {
	id, ok := pathID(w, r, "id", "conversation")
	if !ok {
		return nil, false
	}
	conv, err := h.chat.GetConversation(r.Context(), a.CompanyID, id)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !conv.HasParticipant(a.UserID)) {
		apierrors.NewNotFoundError("conversation", id.String()).Write(w, r)
		return nil, false
	}
	if err != nil {
		apierrors.WriteError(w, r, err)
		return nil, false
	}
	return conv, true
}

func (h *ChatHandler) push(ctx context.Context, kind string, conv *model.ChatConversation, sender uuid.UUID, payload any) {
	if h.realtime == nil {
		return
	}
	var to []uuid.UUID
	for _, id := range conv.ParticipantIDs {
		if id != sender {
			to = append(to, id)
		}
	}
	if len(to) == 0 {
		return
	}
	ev := model.BusEvent{Kind: kind, CompanyID: conv.CompanyID, UserIDs: to, Payload: payload, At: time.Now().UTC()}
	if err := h.realtime.Broadcast(context.WithoutCancel(ctx), ev); err != nil {
		h.logger.Warn("failed to push chat event", "conversation_id", conv.ID, "error", err)
	}
}

func containsUUID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
