package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ioms/backend/internal/apierrors"
	"github.com/ioms/backend/internal/crypto"
	"github.com/ioms/backend/internal/model"
	"github.com/ioms/backend/internal/repository"
)

// SettingsHandler handles company settings.
type SettingsHandler struct {
	repo   repository.CompanyRepository
	box    *crypto.Box
	logger *slog.Logger
}

// NewSettingsHandler creates the handler. Channel secrets are sealed with box.
func NewSettingsHandler(repo repository.CompanyRepository, box *crypto.Box, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{repo: repo, box: box, logger: logger}
}

func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	company, err := h.repo.GetByID(r.Context(), a.CompanyID)
	if err != nil {
		h.writeRepoError(w, r, err, a)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"company":  company.Name,
		"settings": company.Settings.View(),
	})
}

func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	// Only admins can update settings
	if !a.IsAdmin() {
		apierrors.NewForbiddenError("only admins can update settings").Write(w, r)
		return
	}

	var req model.CompanySettingsUpdate
	if !decode(w, r, &req) {
		return
	}

	company, err := h.repo.GetByID(r.Context(), a.CompanyID)
	if err != nil {
		h.writeRepoError(w, r, err, a)
		return
	}

	settings := company.Settings
	settings.AlertsEnabled = req.AlertsEnabled
	settings.TelegramChatID = req.TelegramChatID
	settings.EmailRecipients = req.EmailRecipients
	settings.ConflictPolicy = strings.ToLower(req.ConflictPolicy)
	if req.Timezone != "" {
		settings.Timezone = req.Timezone
	}
	if req.SlackWebhookURL != nil {
		settings.SlackWebhookEnc = ""
		if url := strings.TrimSpace(*req.SlackWebhookURL); url != "" {
			enc, err := h.box.SealString(url, company.ID.String())
			if err != nil {
				apierrors.NewInternalError("failed to store webhook").Write(w, r)
				return
			}
			settings.SlackWebhookEnc = enc
		}
	}

	if err := h.repo.UpdateSettings(r.Context(), company.ID, settings); err != nil {
		h.writeRepoError(w, r, err, a)
		return
	}
	h.logger.Info("company settings updated", "company_id", company.ID, "user_id", a.UserID)

	WriteJSON(w, http.StatusOK, map[string]any{
		"status":   "updated",
		"company":  company.Name,
		"settings": settings.View(),
	})
}

func (h *SettingsHandler) writeRepoError(w http.ResponseWriter, r *http.Request, err error, a model.Actor) {
	if errors.Is(err, repository.ErrNotFound) {
		apierrors.NewNotFoundError("company", a.CompanyID.String()).Write(w, r)
		return
	}
	apierrors.WriteError(w, r, err)
}
