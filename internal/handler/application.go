package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/ioms/backend/internal/apierrors"
	"github.com/ioms/backend/internal/model"
	"github.com/ioms/backend/internal/repository"
)

// ApplicationHandler manages applications and their environments, locations
// and key users.
type ApplicationHandler struct {
	tx     repository.TxRunner
	apps   repository.ApplicationRepository
	users  repository.UserRepository
	logger *slog.Logger
}

func NewApplicationHandler(tx repository.TxRunner, apps repository.ApplicationRepository, users repository.UserRepository, logger *slog.Logger) *ApplicationHandler {
	return &ApplicationHandler{tx: tx, apps: apps, users: users, logger: logger}
}

func (h *ApplicationHandler) List(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	apps, err := h.apps.List(r.Context(), a.CompanyID)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	if apps == nil {
		apps = []*model.Application{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"data": apps})
}

func (h *ApplicationHandler) Create(w http.ResponseWriter, r *http.Request) {
	a, ok := h.admin(w, r)
	if !ok {
		return
	}
	var req model.ApplicationCreateRequest
	if !decode(w, r, &req) {
		return
	}

	app := &model.Application{
		BaseEntity:  model.NewBaseEntity(),
		CompanyID:   a.CompanyID,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Active:      true,
	}
	for _, name := range req.Environments {
		app.Environments = append(app.Environments, model.Environment{
			ID:            uuid.New(),
			ApplicationID: app.ID,
			Name:          strings.TrimSpace(name),
		})
	}

	err := h.tx.WithinTx(r.Context(), func(ctx context.Context) error {
		return h.apps.Create(ctx, app)
	})
	if errors.Is(err, repository.ErrDuplicate) {
		apierrors.NewConflictError("an application or environment with this name already exists").Write(w, r)
		return
	}
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	h.logger.Info("application created", "company_id", a.CompanyID, "application_id", app.ID)
	WriteJSON(w, http.StatusCreated, app)
}

func (h *ApplicationHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "application")
	if !ok {
		return
	}
	app, err := h.apps.GetByID(r.Context(), a.CompanyID, id)
	if err != nil {
		h.writeRepoError(w, r, err, id)
		return
	}
	WriteJSON(w, http.StatusOK, app)
}

func (h *ApplicationHandler) AddEnvironment(w http.ResponseWriter, r *http.Request) {
	app, ok := h.loadForAdmin(w, r)
	if !ok {
		return
	}
	var req model.EnvironmentCreateRequest
	if !decode(w, r, &req) {
		return
	}
	env := &model.Environment{ID: uuid.New(), ApplicationID: app.ID, Name: strings.TrimSpace(req.Name)}
	if err := h.apps.AddEnvironment(r.Context(), env); err != nil {
		h.writeRepoError(w, r, err, app.ID)
		return
	}
	WriteJSON(w, http.StatusCreated, env)
}

func (h *ApplicationHandler) AddLocation(w http.ResponseWriter, r *http.Request) {
	app, ok := h.loadForAdmin(w, r)
	if !ok {
		return
	}
	var req model.LocationCreateRequest
	if !decode(w, r, &req) {
		return
	}
	loc := &model.Location{
		ID:            uuid.New(),
		ApplicationID: app.ID,
		Name:          strings.TrimSpace(req.Name),
		Kind:          req.Kind,
		Region:        req.Region,
	}
	if err := h.apps.AddLocation(r.Context(), loc); err != nil {
		h.writeRepoError(w, r, err, app.ID)
		return
	}
	WriteJSON(w, http.StatusCreated, loc)
}

// SetKeyUsers handles PUT /applications/{id}/key-users. Every key user must be
// an active KEY_USER or ADMIN of the same company.
func (h *ApplicationHandler) SetKeyUsers(w http.ResponseWriter, r *http.Request) {
	app, ok := h.loadForAdmin(w, r)
	if !ok {
		return
	}
	var req model.KeyUsersUpdateRequest
	if !decode(w, r, &req) {
		return
	}

	ids := make([]uuid.UUID, 0, len(req.UserIDs))
	err := h.tx.WithinTx(r.Context(), func(ctx context.Context) error {
		seen := make(map[uuid.UUID]struct{}, len(req.UserIDs))
		for _, id := range req.UserIDs {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			u, err := h.users.GetByID(ctx, id)
			if err != nil || u.CompanyID != app.CompanyID {
				return apierrors.NewValidationError("Validation failed", map[string]string{"user_ids": "unknown user " + id.String()})
			}
			if !u.Active || !u.Role.CanApprove() {
				return apierrors.NewValidationError("Validation failed", map[string]string{"user_ids": u.Email + " must be an active key user or admin"})
			}
			ids = append(ids, id)
		}
		return h.apps.SetKeyUsers(ctx, app.ID, ids)
	})
	var apiErr *apierrors.APIError
	if errors.As(err, &apiErr) {
		apiErr.Write(w, r)
		return
	}
	if err != nil {
		h.writeRepoError(w, r, err, app.ID)
		return
	}
	h.logger.Info("application key users replaced", "application_id", app.ID, "key_users", len(ids))
	app.KeyUserIDs = ids
	WriteJSON(w, http.StatusOK, app)
}

func (h *ApplicationHandler) admin(w http.ResponseWriter, r *http.Request) (model.Actor, bool) {
	a, ok := actor(w, r)
	if !ok {
		return a, false
	}
	if !a.IsAdmin() {
		apierrors.NewForbiddenError("only admins can manage applications").Write(w, r)
		return a, false
	}
	return a, true
}

func (h *ApplicationHandler) loadForAdmin(w http.ResponseWriter, r *http.Request) (*model.Application, bool) {
	a, ok := h.admin(w, r)
	if !ok {
		return nil, false
	}
	id, ok := pathID(w, r, "id", "application")
	if !ok {
		return nil, false
	}
	app, err := h.apps.GetByID(r.Context(), a.CompanyID, id)
	if err != nil {
		h.writeRepoError(w, r, err, id)
		return nil, false
	}
	return app, true
}

func (h *ApplicationHandler) writeRepoError(w http.ResponseWriter, r *http.Request, err error, id uuid.UUID) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		apierrors.NewNotFoundError("application", id.String()).Write(w, r)
	case errors.Is(err, repository.ErrDuplicate):
		apierrors.NewConflictError("an entry with this name already exists").Write(w, r)
	default:
		apierrors.WriteError(w, r, err)
	}
}
