package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ioms/backend/internal/apierrors"
	"github.com/ioms/backend/internal/model"
	"github.com/ioms/backend/internal/outage"
)

// OutageHandler exposes the outage lifecycle over HTTP.
type OutageHandler struct {
	svc *outage.Service
}

func NewOutageHandler(svc *outage.Service) *OutageHandler {
	return &OutageHandler{svc: svc}
}

// OutageResponse is returned by writes that ran a conflict check. Under the
// advisory policy the outage is persisted and Conflicts lists what it collides with.
type OutageResponse struct {
	Outage    *model.Outage          `json:"outage"`
	Conflicts *outage.ConflictResult `json:"conflicts,omitempty"`
}

func (h *OutageHandler) Create(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var req model.OutageCreateRequest
	if !decode(w, r, &req) {
		return
	}
	o, res, err := h.svc.Create(r.Context(), a, req)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, OutageResponse{Outage: o, Conflicts: nonEmpty(res)})
}

func (h *OutageHandler) List(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	filter, ok := parseOutageFilter(w, r)
	if !ok {
		return
	}
	p := parsePagination(r)
	outages, total, err := h.svc.List(r.Context(), a, filter, p)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, newListResponse(outages, p, total))
}

func (h *OutageHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "outage")
	if !ok {
		return
	}
	o, err := h.svc.Get(r.Context(), a, id)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, o)
}

func (h *OutageHandler) Update(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "outage")
	if !ok {
		return
	}
	var req model.OutageUpdateRequest
	if !decode(w, r, &req) {
		return
	}
	o, res, err := h.svc.Update(r.Context(), a, id, req)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, OutageResponse{Outage: o, Conflicts: nonEmpty(res)})
}

type transitionFunc func(ctx context.Context, a model.Actor, id uuid.UUID, req model.OutageTransitionRequest) (*model.Outage, error)

// transition runs one lifecycle endpoint. The body is optional.
func (h *OutageHandler) transition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "outage")
	if !ok {
		return
	}
	var req model.OutageTransitionRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	o, err := fn(r.Context(), a, id, req)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, o)
}

func (h *OutageHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Approve)
}

func (h *OutageHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Reject)
}

func (h *OutageHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Cancel)
}

func (h *OutageHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, a model.Actor, id uuid.UUID, _ model.OutageTransitionRequest) (*model.Outage, error) {
		return h.svc.Start(ctx, a, id)
	})
}

func (h *OutageHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, a model.Actor, id uuid.UUID, _ model.OutageTransitionRequest) (*model.Outage, error) {
		return h.svc.Complete(ctx, a, id)
	})
}

// ValidateConflicts handles POST /outages/validate/conflicts. It never writes.
func (h *OutageHandler) ValidateConflicts(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var req model.ConflictCheckRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.ValidateConflicts(r.Context(), a, req)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

func (h *OutageHandler) ApprovalCheck(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "outage")
	if !ok {
		return
	}
	res, err := h.svc.ApprovalCheck(r.Context(), a, id)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

func (h *OutageHandler) History(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "outage")
	if !ok {
		return
	}
	entries, err := h.svc.History(r.Context(), a, id)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*model.OutageChangeHistory{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"data": entries})
}

func (h *OutageHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "outage")
	if !ok {
		return
	}
	var req model.OutageCommentRequest
	if !decode(w, r, &req) {
		return
	}
	entry, err := h.svc.AddComment(r.Context(), a, id, req)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, entry)
}

// Calendar handles GET /outages/calendar?from&to. The default window is the
// current month.
func (h *OutageHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	rng, ok := parseRange(w, r, currentMonth)
	if !ok {
		return
	}
	outages, err := h.svc.Calendar(r.Context(), a, rng)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	if outages == nil {
		outages = []*model.Outage{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"data": outages, "from": rng.Start, "to": rng.End})
}

// Summary handles GET /dashboard/summary.
func (h *OutageHandler) Summary(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	summary, err := h.svc.Summary(r.Context(), a)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, summary)
}

func parseOutageFilter(w http.ResponseWriter, r *http.Request) (model.OutageFilter, bool) {
	var f model.OutageFilter
	for _, s := range splitList(r, "status") {
		f.Statuses = append(f.Statuses, model.OutageStatus(s))
	}
	for _, s := range splitList(r, "application_id") {
		id, err := uuid.Parse(s)
		if err != nil {
			apierrors.NewBadRequestError("invalid application_id").Write(w, r)
			return f, false
		}
		f.ApplicationIDs = append(f.ApplicationIDs, id)
	}
	for _, s := range splitList(r, "criticality") {
		c, ok := model.ParseCriticality(s)
		if !ok {
			apierrors.NewBadRequestError("invalid criticality "+s).Write(w, r)
			return f, false
		}
		f.Criticalities = append(f.Criticalities, c)
	}
	if r.URL.Query().Get("from") != "" || r.URL.Query().Get("to") != "" {
		rng, ok := parseRange(w, r, openRange)
		if !ok {
			return f, false
		}
		f.Window = &rng
	}
	return f, true
}

func currentMonth() model.DateRange {
	now := time.Now().UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return model.DateRange{Start: start, End: start.AddDate(0, 1, 0)}
}

// openRange is unbounded on both sides within any realistic schedule.
func openRange() model.DateRange {
	return model.DateRange{
		Start: time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func nonEmpty(res *outage.ConflictResult) *outage.ConflictResult {
	if res == nil || (len(res.Conflicts) == 0 && len(res.Warnings) == 0) {
		return nil
	}
	return res
}
