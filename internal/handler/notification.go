package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/ioms/backend/internal/apierrors"
	"github.com/ioms/backend/internal/model"
	"github.com/ioms/backend/internal/repository"
)

// NotificationHandler serves the caller's in-app notifications.
type NotificationHandler struct {
	repo repository.NotificationRepository
}

func NewNotificationHandler(repo repository.NotificationRepository) *NotificationHandler {
	return &NotificationHandler{repo: repo}
}

// List handles GET /notifications?unread=true.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	p := parsePagination(r)
	unread := r.URL.Query().Get("unread") == "true"
	items, total, err := h.repo.List(r.Context(), a.UserID, unread, p)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, newListResponse[*model.Notification](items, p, total))
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	n, err := h.repo.CountUnread(r.Context(), a.UserID)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "notification")
	if !ok {
		return
	}
	err := h.repo.MarkRead(r.Context(), a.UserID, id, time.Now().UTC())
	if errors.Is(err, repository.ErrNotFound) {
		apierrors.NewNotFoundError("notification", id.String()).Write(w, r)
		return
	}
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	n, err := h.repo.MarkAllRead(r.Context(), a.UserID, time.Now().UTC())
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int64{"updated": n})
}
