package outage

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ioms/backend/internal/model"
)

func at(hour int) time.Time {
	return time.Date(2025, 7, 25, hour, 0, 0, 0, time.UTC)
}

type fixture struct {
	company, app, otherApp, gua, production, staging uuid.UUID
}

func newFixture() fixture {
	return fixture{
		company:    uuid.New(),
		app:        uuid.New(),
		otherApp:   uuid.New(),
		gua:        uuid.New(),
		production: uuid.New(),
		staging:    uuid.New(),
	}
}

func (f fixture) outage(status model.OutageStatus, start, end time.Time) *model.Outage {
	loc := f.gua
	return &model.Outage{
		BaseEntity:     model.BaseEntity{ID: uuid.New()},
		CompanyID:      f.company,
		ApplicationID:  f.app,
		LocationID:     &loc,
		EnvironmentIDs: []uuid.UUID{f.production},
		Title:          "database patching",
		Criticality:    model.CriticalityMedium,
		Status:         status,
		ScheduledStart: start,
		ScheduledEnd:   end,
	}
}

func (f fixture) window(start, end time.Time) Window {
	loc := f.gua
	return Window{
		CompanyID:      f.company,
		ApplicationID:  f.app,
		LocationID:     &loc,
		EnvironmentIDs: []uuid.UUID{f.production},
		Start:          start,
		End:            end,
		Criticality:    model.CriticalityMedium,
	}
}

func TestOverlaps(t *testing.T) {
	assert.True(t, Overlaps(at(14), at(16), at(15), at(17)))
	assert.True(t, Overlaps(at(15), at(17), at(14), at(16)))
	assert.True(t, Overlaps(at(14), at(18), at(15), at(16)))
	assert.False(t, Overlaps(at(14), at(16), at(16), at(18)))
	assert.False(t, Overlaps(at(16), at(18), at(14), at(16)))
	assert.False(t, Overlaps(at(10), at(11), at(14), at(16)))

	assert.True(t, Adjacent(at(14), at(16), at(16), at(18)))
	assert.False(t, Adjacent(at(14), at(16), at(15), at(18)))
}

func TestDetectConflicts_OverlapWithApprovedOutage(t *testing.T) {
	f := newFixture()
	existing := f.outage(model.OutageStatusApproved, at(14), at(16))

	res := DetectConflicts(f.window(at(15), at(17)), []*model.Outage{existing})

	assert.False(t, res.IsValid)
	require.Len(t, res.Conflicts, 1)
	c := res.Conflicts[0]
	assert.Equal(t, existing.ID, c.OutageID)
	assert.Equal(t, ConflictOverlap, c.ConflictType)
	assert.Equal(t, SeverityHigh, c.Severity)
	assert.Equal(t, at(15), c.OverlapStart)
	assert.Equal(t, at(16), c.OverlapEnd)
	assert.Equal(t, []uuid.UUID{f.production}, c.SharedEnvironments)
	require.NotNil(t, res.SuggestedStart)
	assert.Equal(t, at(16), *res.SuggestedStart)
	assert.NotEmpty(t, res.Recommendations)
}

func TestDetectConflicts_AdjacentIsNotAConflict(t *testing.T) {
	f := newFixture()
	existing := f.outage(model.OutageStatusApproved, at(14), at(16))

	res := DetectConflicts(f.window(at(16), at(18)), []*model.Outage{existing})

	assert.True(t, res.IsValid)
	assert.Empty(t, res.Conflicts)
	assert.Nil(t, res.SuggestedStart)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "ends exactly")
}

func TestDetectConflicts_IgnoresNonBlockingAndExcluded(t *testing.T) {
	f := newFixture()
	rejected := f.outage(model.OutageStatusRejected, at(14), at(16))
	cancelled := f.outage(model.OutageStatusCancelled, at(14), at(16))
	self := f.outage(model.OutageStatusPending, at(14), at(16))

	w := f.window(at(15), at(17))
	w.ExcludeOutageID = &self.ID
	res := DetectConflicts(w, []*model.Outage{rejected, cancelled, self})

	assert.True(t, res.IsValid)
	assert.Empty(t, res.Conflicts)
}

func TestDetectConflicts_IgnoresUnrelatedOutages(t *testing.T) {
	f := newFixture()
	unrelated := f.outage(model.OutageStatusApproved, at(14), at(16))
	unrelated.ApplicationID = f.otherApp
	unrelated.LocationID = nil
	unrelated.EnvironmentIDs = []uuid.UUID{uuid.New()}

	res := DetectConflicts(f.window(at(15), at(17)), []*model.Outage{unrelated})
	assert.True(t, res.IsValid)
}

func TestDetectConflicts_Classification(t *testing.T) {
	f := newFixture()

	sameLocation := f.outage(model.OutageStatusPending, at(14), at(16))
	sameLocation.ApplicationID = f.otherApp
	sameLocation.EnvironmentIDs = []uuid.UUID{uuid.New()}

	sameApp := f.outage(model.OutageStatusPending, at(15), at(16))
	sameApp.LocationID = nil
	sameApp.EnvironmentIDs = []uuid.UUID{f.staging}

	pendingOverlap := f.outage(model.OutageStatusPending, at(16), at(18))

	res := DetectConflicts(f.window(at(15), at(17)), []*model.Outage{pendingOverlap, sameApp, sameLocation})
	require.Len(t, res.Conflicts, 3)

	byID := map[uuid.UUID]Conflict{}
	for _, c := range res.Conflicts {
		byID[c.OutageID] = c
	}
	assert.Equal(t, ConflictSameLocation, byID[sameLocation.ID].ConflictType)
	assert.Equal(t, SeverityMedium, byID[sameLocation.ID].Severity)
	assert.Equal(t, ConflictSameApplication, byID[sameApp.ID].ConflictType)
	assert.Equal(t, SeverityLow, byID[sameApp.ID].Severity)
	assert.Equal(t, ConflictOverlap, byID[pendingOverlap.ID].ConflictType)
	assert.Equal(t, SeverityMedium, byID[pendingOverlap.ID].Severity)

	for i := 1; i < len(res.Conflicts); i++ {
		assert.False(t, res.Conflicts[i].OverlapStart.Before(res.Conflicts[i-1].OverlapStart))
	}
	assert.Equal(t, at(18), *res.SuggestedStart)
	assert.Equal(t, SeverityMedium, res.HighestSeverity())
}

func TestDetectConflicts_CriticalIsAlwaysHigh(t *testing.T) {
	f := newFixture()
	sameApp := f.outage(model.OutageStatusPending, at(14), at(16))
	sameApp.LocationID = nil
	sameApp.EnvironmentIDs = []uuid.UUID{f.staging}

	w := f.window(at(15), at(17))
	w.Criticality = model.CriticalityCritical
	res := DetectConflicts(w, []*model.Outage{sameApp})

	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, SeverityHigh, res.Conflicts[0].Severity)
	assert.Equal(t, SeverityHigh, res.HighestSeverity())
}

func TestWindowValidate(t *testing.T) {
	err := Window{Start: at(16), End: at(14)}.Validate()
	require.ErrorIs(t, err, ErrValidation)
	fields := err.(*ValidationError).Fields
	assert.Contains(t, fields, "application_id")
	assert.Contains(t, fields, "environment_ids")
	assert.Contains(t, fields, "scheduled_end")
}
