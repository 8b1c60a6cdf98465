package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ioms/backend/internal/apierrors"
	"github.com/ioms/backend/internal/auth"
	"github.com/ioms/backend/internal/model"
	"github.com/ioms/backend/internal/validation"
)

const maxPageSize = 200

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// ListResponse wraps a page of results.
type ListResponse[T any] struct {
	Data       []T              `json:"data"`
	Pagination model.Pagination `json:"pagination"`
}

func newListResponse[T any](items []T, p model.Pagination, total int) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	p.Total = total
	return ListResponse[T]{Data: items, Pagination: p}
}

// decode reads a JSON body into dst and runs struct validation. It writes the
// error response and returns false when the body is unusable.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		apierrors.NewBadRequestError("invalid request body").Write(w, r)
		return false
	}
	if fields := validation.Struct(dst); fields != nil {
		apierrors.NewValidationError("Validation failed", fields).Write(w, r)
		return false
	}
	return true
}

// decodeOptional is decode for endpoints whose body may be empty.
func decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	return decode(w, r, dst)
}

// actor returns the authenticated actor or writes 401.
func actor(w http.ResponseWriter, r *http.Request) (model.Actor, bool) {
	a, ok := auth.ActorFromContext(r.Context())
	if !ok {
		apierrors.NewUnauthorizedError("authentication required").Write(w, r)
	}
	return a, ok
}

func pathID(w http.ResponseWriter, r *http.Request, name, resource string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		apierrors.NewBadRequestError("invalid "+resource+" ID").Write(w, r)
		return uuid.Nil, false
	}
	return id, true
}

func parsePagination(r *http.Request) model.Pagination {
	p := model.DefaultPagination
	q := r.URL.Query()
	if n, err := strconv.Atoi(q.Get("page")); err == nil && n > 0 {
		p.Page = n
	}
	if n, err := strconv.Atoi(q.Get("page_size")); err == nil && n > 0 {
		p.PageSize = min(n, maxPageSize)
	}
	return p
}

// parseTime accepts RFC 3339 timestamps and plain dates.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	return t.UTC(), err
}

// parseRange reads the from/to query parameters. ok is false and the error has
// been written when either is malformed; when both are absent, def is used.
func parseRange(w http.ResponseWriter, r *http.Request, def func() model.DateRange) (model.DateRange, bool) {
	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
	if from == "" && to == "" {
		return def(), true
	}
	rng := def()
	if from != "" {
		t, err := parseTime(from)
		if err != nil {
			apierrors.NewBadRequestError("invalid from: expected RFC 3339 or YYYY-MM-DD").Write(w, r)
			return rng, false
		}
		rng.Start = t
	}
	if to != "" {
		t, err := parseTime(to)
		if err != nil {
			apierrors.NewBadRequestError("invalid to: expected RFC 3339 or YYYY-MM-DD").Write(w, r)
			return rng, false
		}
		rng.End = t
	}
	return rng, true
}

// splitList reads a repeated or comma separated query parameter.
func splitList(r *http.Request, key string) []string {
	var out []string
	for _, v := range r.URL.Query()[key] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
