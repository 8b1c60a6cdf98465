package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/ioms/backend/internal/apierrors"
	"github.com/ioms/backend/internal/model"
	"github.com/ioms/backend/internal/report"
)

// maxReportSpan bounds a single export.
const maxReportSpan = 366 * 24 * time.Hour

// ReportHandler handles report exports.
type ReportHandler struct {
	gen *report.Generator
}

func NewReportHandler(gen *report.Generator) *ReportHandler {
	return &ReportHandler{gen: gen}
}

// OutagesCSV handles GET /reports/outages.csv?from&to. The default window is
// the last 30 days and the next 30 days.
func (h *ReportHandler) OutagesCSV(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	rng, ok := parseRange(w, r, func() model.DateRange {
		now := time.Now().UTC().Truncate(24 * time.Hour)
		return model.DateRange{Start: now.AddDate(0, 0, -30), End: now.AddDate(0, 0, 30)}
	})
	if !ok {
		return
	}
	if !rng.End.After(rng.Start) {
		apierrors.NewValidationError("Validation failed", map[string]string{"to": "must be after from"}).Write(w, r)
		return
	}
	if rng.End.Sub(rng.Start) > maxReportSpan {
		apierrors.NewValidationError("Validation failed", map[string]string{"to": "report window cannot exceed one year"}).Write(w, r)
		return
	}

	rows, err := h.gen.Schedule(r.Context(), a.CompanyID, rng)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	// Buffer so a write failure can still produce an error response.
	var buf bytes.Buffer
	if err := report.WriteCSV(&buf, rows); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, report.Filename(rng)))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
