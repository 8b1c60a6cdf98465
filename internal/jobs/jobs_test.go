package jobs

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ioms/backend/internal/metrics"
	"github.com/ioms/backend/internal/model"
	"github.com/ioms/backend/internal/report"
	"github.com/ioms/backend/internal/repository/memstore"
)

func discard() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestScheduler_Register(t *testing.T) {
	s := NewScheduler(discard(), time.Minute)
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.Register("b", "0 * * * * *", noop))
	require.NoError(t, s.Register("a", "@every 1h", noop))

	err := s.Register("a", "0 * * * * *", noop)
	assert.ErrorContains(t, err, "already registered")

	err = s.Register("c", "not a schedule", noop)
	assert.ErrorContains(t, err, "invalid schedule")

	jobs := s.ListJobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "a", jobs[0].Name)
	assert.Equal(t, "b", jobs[1].Name)
}

func TestScheduler_RunNowRecordsMetrics(t *testing.T) {
	s := NewScheduler(discard(), time.Minute)
	name := "test-" + uuid.NewString()
	var calls atomic.Int32
	require.NoError(t, s.Register(name, "@every 24h", func(ctx context.Context) error {
		calls.Add(1)
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		return errors.New("boom")
	}))

	require.NoError(t, s.RunNow(name))
	s.Stop()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.JobRuns.WithLabelValues(name, "error")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.JobRuns.WithLabelValues(name, "ok")))
}

func TestScheduler_RunNowUnknownJob(t *testing.T) {
	s := NewScheduler(discard(), time.Minute)
	assert.Error(t, s.RunNow("missing"))
}

type fakeAdvancer struct {
	mu        sync.Mutex
	advanced  int
	leads     []time.Duration
	advanceFn func() (int, error)
}

func (f *fakeAdvancer) AdvanceDue(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advanced++
	if f.advanceFn != nil {
		return f.advanceFn()
	}
	return 0, nil
}

func (f *fakeAdvancer) SendReminders(_ context.Context, lead time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leads = append(f.leads, lead)
	return 1, nil
}

func TestOutageJobs_DelegatesToService(t *testing.T) {
	adv := &fakeAdvancer{advanceFn: func() (int, error) { return 2, errors.New("one failed") }}
	j := NewOutageJobs(OutageJobsDeps{Outages: adv, ReminderLead: 45 * time.Minute, Logger: discard()})

	err := j.AdvanceStatuses(t.Context())
	assert.EqualError(t, err, "one failed")
	assert.Equal(t, 1, adv.advanced)

	require.NoError(t, j.SendReminders(t.Context()))
	assert.Equal(t, []time.Duration{45 * time.Minute}, adv.leads)
}

func TestOutageJobs_DefaultLead(t *testing.T) {
	adv := &fakeAdvancer{}
	j := NewOutageJobs(OutageJobsDeps{Outages: adv})
	require.NoError(t, j.SendReminders(t.Context()))
	assert.Equal(t, []time.Duration{time.Hour}, adv.leads)
}

func TestOutageJobs_RegisterSkipsDisabled(t *testing.T) {
	s := NewScheduler(discard(), time.Minute)
	j := NewOutageJobs(OutageJobsDeps{Outages: &fakeAdvancer{}, Logger: discard()})

	require.NoError(t, j.Register(s, Schedules{
		StatusAdvance: "0 * * * * *",
		ReportArchive: "0 0 2 * * *",
	}))

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, StatusAdvance, jobs[0].Name)
}

type memArchive struct {
	mu    sync.Mutex
	files map[uuid.UUID]string
	fail  uuid.UUID
}

func (m *memArchive) Store(_ context.Context, companyID uuid.UUID, name string, body []byte) (string, error) {
	if companyID == m.fail {
		return "", errors.New("bucket unavailable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files == nil {
		m.files = make(map[uuid.UUID]string)
	}
	m.files[companyID] = string(body)
	return companyID.String() + "/" + name, nil
}

func TestOutageJobs_ArchiveReports(t *testing.T) {
	ctx := t.Context()
	store := memstore.New()
	now := time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC)

	acme := &model.Company{BaseEntity: model.NewBaseEntity(), Name: "Acme"}
	globex := &model.Company{BaseEntity: model.NewBaseEntity(), Name: "Globex"}
	initech := &model.Company{BaseEntity: model.NewBaseEntity(), Name: "Initech"}
	for _, c := range []*model.Company{acme, globex, initech} {
		require.NoError(t, store.Companies.Create(ctx, c))
	}

	app := &model.Application{BaseEntity: model.NewBaseEntity(), CompanyID: acme.ID, Name: "Billing", Active: true}
	require.NoError(t, store.Applications.Create(ctx, app))

	inside := &model.Outage{
		BaseEntity:     model.NewBaseEntity(),
		CompanyID:      acme.ID,
		ApplicationID:  app.ID,
		Title:          "DB upgrade",
		Type:           model.OutageTypePlanned,
		Criticality:    model.CriticalityHigh,
		Status:         model.OutageStatusApproved,
		ScheduledStart: now.Add(48 * time.Hour),
		ScheduledEnd:   now.Add(50 * time.Hour),
		CreatedBy:      uuid.New(),
	}
	past := *inside
	past.BaseEntity = model.NewBaseEntity()
	past.Title = "Last month"
	past.ScheduledStart = now.AddDate(0, -1, 0)
	past.ScheduledEnd = past.ScheduledStart.Add(time.Hour)
	require.NoError(t, store.Outages.Create(ctx, inside))
	require.NoError(t, store.Outages.Create(ctx, &past))

	archive := &memArchive{fail: initech.ID}
	j := NewOutageJobs(OutageJobsDeps{
		Companies:   store.Companies,
		Reports:     report.NewGenerator(store.Outages, store.Applications),
		Archive:     archive,
		Concurrency: 2,
		Logger:      discard(),
		Now:         func() time.Time { return now },
	})

	err := j.ArchiveReports(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), initech.ID.String())

	require.Contains(t, archive.files, acme.ID)
	require.Contains(t, archive.files, globex.ID)

	records, err := csv.NewReader(strings.NewReader(archive.files[acme.ID])).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, report.Header, records[0])
	assert.Equal(t, "DB upgrade", records[1][1])
	assert.Equal(t, "Billing", records[1][2])

	records, err = csv.NewReader(strings.NewReader(archive.files[globex.ID])).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestOutageJobs_ArchiveDisabledWithoutStore(t *testing.T) {
	j := NewOutageJobs(OutageJobsDeps{Logger: discard()})
	assert.NoError(t, j.ArchiveReports(t.Context()))
}
