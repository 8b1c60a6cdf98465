package outage

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ioms/backend/internal/model"
)

// ConflictType classifies how two outages collide.
type ConflictType string

const (
	ConflictOverlap         ConflictType = "overlap"
	ConflictAdjacent        ConflictType = "adjacent"
	ConflictSameApplication ConflictType = "same_application"
	ConflictSameLocation    ConflictType = "same_location"
)

// Severity ranks a conflict.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Window is a proposed outage placement to check against existing outages.
type Window struct {
	CompanyID       uuid.UUID
	ApplicationID   uuid.UUID
	LocationID      *uuid.UUID
	EnvironmentIDs  []uuid.UUID
	Start           time.Time
	End             time.Time
	Criticality     model.Criticality
	ExcludeOutageID *uuid.UUID
}

// Validate checks the input constraints of a conflict check.
func (w Window) Validate() error {
	verr := &ValidationError{}
	if w.ApplicationID == uuid.Nil {
		verr.add("application_id", "is required")
	}
	if len(w.EnvironmentIDs) == 0 {
		verr.add("environment_ids", "at least one environment is required")
	}
	if err := ValidateWindow(w.Start, w.End); err != nil {
		for k, v := range err.(*ValidationError).Fields {
			verr.add(k, v)
		}
	}
	if verr.empty() {
		return nil
	}
	return verr
}

// Query converts the window into a repository overlap query.
func (w Window) Query() model.OverlapQuery {
	return model.OverlapQuery{
		CompanyID:       w.CompanyID,
		ApplicationID:   w.ApplicationID,
		LocationID:      w.LocationID,
		EnvironmentIDs:  w.EnvironmentIDs,
		Start:           w.Start,
		End:             w.End,
		ExcludeOutageID: w.ExcludeOutageID,
	}
}

// Conflict describes one existing outage colliding with a window.
type Conflict struct {
	OutageID           uuid.UUID          `json:"outage_id"`
	Title              string             `json:"title"`
	Status             model.OutageStatus `json:"status"`
	ConflictType       ConflictType       `json:"conflict_type"`
	Severity           Severity           `json:"severity"`
	OverlapStart       time.Time          `json:"overlap_start"`
	OverlapEnd         time.Time          `json:"overlap_end"`
	SharedEnvironments []uuid.UUID        `json:"shared_environments,omitempty"`
}

// ConflictResult is the outcome of a conflict check.
type ConflictResult struct {
	IsValid         bool       `json:"is_valid"`
	Conflicts       []Conflict `json:"conflicts"`
	Warnings        []string   `json:"warnings"`
	Recommendations []string   `json:"recommendations"`
	SuggestedStart  *time.Time `json:"suggested_start,omitempty"`
}

// HighestSeverity returns the most severe conflict level, or "" when clear.
func (r *ConflictResult) HighestSeverity() Severity {
	best := Severity("")
	for _, c := range r.Conflicts {
		switch {
		case c.Severity == SeverityHigh:
			return SeverityHigh
		case c.Severity == SeverityMedium:
			best = SeverityMedium
		case best == "":
			best = c.Severity
		}
	}
	return best
}

// Overlaps reports whether the half-open windows [s1,e1) and [s2,e2) intersect.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// Adjacent reports whether one window ends exactly where the other begins.
func Adjacent(s1, e1, s2, e2 time.Time) bool {
	return e1.Equal(s2) || e2.Equal(s1)
}

// DetectConflicts compares w against existing outages. Outages that are
// rejected or cancelled, excluded by id, or share neither application,
// location nor environment with w are ignored. Touching windows only produce
// a warning.
func DetectConflicts(w Window, existing []*model.Outage) *ConflictResult {
	res := &ConflictResult{
		IsValid:         true,
		Conflicts:       []Conflict{},
		Warnings:        []string{},
		Recommendations: []string{},
	}

	var latestEnd time.Time
	for _, o := range existing {
		if !o.Status.Blocking() {
			continue
		}
		if w.ExcludeOutageID != nil && o.ID == *w.ExcludeOutageID {
			continue
		}

		shared := o.SharesEnvironment(w.EnvironmentIDs)
		sameLocation := w.LocationID != nil && o.LocationID != nil && *w.LocationID == *o.LocationID
		sameApp := o.ApplicationID == w.ApplicationID
		if len(shared) == 0 && !sameLocation && !sameApp {
			continue
		}

		if !Overlaps(w.Start, w.End, o.ScheduledStart, o.ScheduledEnd) {
			if Adjacent(w.Start, w.End, o.ScheduledStart, o.ScheduledEnd) {
				res.Warnings = append(res.Warnings, adjacentWarning(w, o))
			}
			continue
		}

		c := Conflict{
			OutageID:           o.ID,
			Title:              o.Title,
			Status:             o.Status,
			OverlapStart:       laterOf(w.Start, o.ScheduledStart),
			OverlapEnd:         earlierOf(w.End, o.ScheduledEnd),
			SharedEnvironments: shared,
		}
		switch {
		case len(shared) > 0:
			c.ConflictType = ConflictOverlap
		case sameLocation:
			c.ConflictType = ConflictSameLocation
		default:
			c.ConflictType = ConflictSameApplication
		}
		c.Severity = classifySeverity(c.ConflictType, o, w.Criticality)

		res.Conflicts = append(res.Conflicts, c)
		if o.ScheduledEnd.After(latestEnd) {
			latestEnd = o.ScheduledEnd
		}
	}

	sort.SliceStable(res.Conflicts, func(i, j int) bool {
		a, b := res.Conflicts[i], res.Conflicts[j]
		if !a.OverlapStart.Equal(b.OverlapStart) {
			return a.OverlapStart.Before(b.OverlapStart)
		}
		return a.OutageID.String() < b.OutageID.String()
	})

	if len(res.Conflicts) > 0 {
		res.IsValid = false
		suggested := latestEnd.UTC()
		res.SuggestedStart = &suggested
		res.Recommendations = append(res.Recommendations,
			fmt.Sprintf("schedule the outage to start at or after %s, when the last conflicting outage ends",
				suggested.Format(time.RFC3339)))
		if high := countSeverity(res.Conflicts, SeverityHigh); high > 0 {
			res.Recommendations = append(res.Recommendations,
				fmt.Sprintf("%d high severity conflict(s) affect shared environments; coordinate with the key users before submitting", high))
		}
	}
	return res
}

func classifySeverity(t ConflictType, existing *model.Outage, requested model.Criticality) Severity {
	if existing.Criticality == model.CriticalityCritical || requested == model.CriticalityCritical {
		return SeverityHigh
	}
	switch t {
	case ConflictOverlap:
		if existing.Status == model.OutageStatusApproved || existing.Status == model.OutageStatusInProgress {
			return SeverityHigh
		}
		return SeverityMedium
	case ConflictSameLocation:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func adjacentWarning(w Window, o *model.Outage) string {
	if o.ScheduledEnd.Equal(w.Start) {
		return fmt.Sprintf("outage %q ends exactly when this window starts (%s)", o.Title, w.Start.UTC().Format(time.RFC3339))
	}
	return fmt.Sprintf("outage %q starts exactly when this window ends (%s)", o.Title, w.End.UTC().Format(time.RFC3339))
}

func countSeverity(conflicts []Conflict, s Severity) int {
	n := 0
	for _, c := range conflicts {
		if c.Severity == s {
			n++
		}
	}
	return n
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earlierOf(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
