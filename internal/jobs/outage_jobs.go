package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ioms/backend/internal/model"
	"github.com/ioms/backend/internal/report"
	"github.com/ioms/backend/internal/repository"
)

// Job names.
const (
	StatusAdvance = "status-advance"
	Reminders     = "reminders"
	ReportArchive = "report-archive"
)

// Schedules holds the cron expression of every outage job. An empty
// expression disables the job.
type Schedules struct {
	StatusAdvance string
	Reminders     string
	ReportArchive string
}

// OutageAdvancer applies the time-driven outage transitions.
type OutageAdvancer interface {
	AdvanceDue(ctx context.Context) (int, error)
	SendReminders(ctx context.Context, lead time.Duration) (int, error)
}

// ReportStore keeps a generated report file.
type ReportStore interface {
	Store(ctx context.Context, companyID uuid.UUID, name string, body []byte) (string, error)
}

// OutageJobsDeps groups the collaborators of OutageJobs. Reports and Archive
// may be nil, which disables report-archive.
type OutageJobsDeps struct {
	Outages      OutageAdvancer
	Companies    repository.CompanyRepository
	Reports      *report.Generator
	Archive      ReportStore
	ReminderLead time.Duration
	// ArchiveHorizon is how far ahead the archived schedule reaches.
	ArchiveHorizon time.Duration
	Concurrency    int
	Logger         *slog.Logger
	Now            func() time.Time
}

// OutageJobs runs the periodic outage maintenance.
type OutageJobs struct {
	outages     OutageAdvancer
	companies   repository.CompanyRepository
	reports     *report.Generator
	archive     ReportStore
	lead        time.Duration
	horizon     time.Duration
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
}

func NewOutageJobs(d OutageJobsDeps) *OutageJobs {
	j := &OutageJobs{
		outages:     d.Outages,
		companies:   d.Companies,
		reports:     d.Reports,
		archive:     d.Archive,
		lead:        d.ReminderLead,
		horizon:     d.ArchiveHorizon,
		concurrency: d.Concurrency,
		logger:      d.Logger,
		now:         d.Now,
	}
	if j.lead <= 0 {
		j.lead = time.Hour
	}
	if j.horizon <= 0 {
		j.horizon = 30 * 24 * time.Hour
	}
	if j.concurrency <= 0 {
		j.concurrency = 4
	}
	if j.logger == nil {
		j.logger = slog.Default()
	}
	if j.now == nil {
		j.now = func() time.Time { return time.Now().UTC() }
	}
	return j
}

type entry struct {
	name, schedule string
	fn             JobFunc
}

// Register adds every enabled job to s.
func (j *OutageJobs) Register(s *Scheduler, sched Schedules) error {
	jobs := []entry{
		{StatusAdvance, sched.StatusAdvance, j.AdvanceStatuses},
		{Reminders, sched.Reminders, j.SendReminders},
	}
	if j.reports != nil && j.archive != nil {
		jobs = append(jobs, entry{ReportArchive, sched.ReportArchive, j.ArchiveReports})
	}
	for _, job := range jobs {
		if job.schedule == "" {
			continue
		}
		if err := s.Register(job.name, job.schedule, job.fn); err != nil {
			return err
		}
	}
	return nil
}

// AdvanceStatuses starts and completes outages whose scheduled window boundary has passed.
func (j *OutageJobs) AdvanceStatuses(ctx context.Context) error {
	n, err := j.outages.AdvanceDue(ctx)
	if n > 0 {
		j.logger.Info("outage statuses advanced", "transitions", n)
	}
	return err
}

func (j *OutageJobs) SendReminders(ctx context.Context) error {
	n, err := j.outages.SendReminders(ctx, j.lead)
	if n > 0 {
		j.logger.Info("outage reminders sent", "count", n, "lead", j.lead)
	}
	return err
}

// ArchiveReports uploads the upcoming schedule of every company as CSV. A
// failing company does not stop the others.
func (j *OutageJobs) ArchiveReports(ctx context.Context) error {
	if j.reports == nil || j.archive == nil {
		return nil
	}
	companies, err := j.companies.List(ctx)
	if err != nil {
		return fmt.Errorf("list companies: %w", err)
	}

	day := j.now().UTC().Truncate(24 * time.Hour)
	rng := model.DateRange{Start: day, End: day.Add(j.horizon)}
	name := report.Filename(rng)

	errs := make([]error, len(companies))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.concurrency)
	for i, c := range companies {
		g.Go(func() error {
			if err := j.archiveCompany(gctx, c.ID, rng, name); err != nil {
				errs[i] = fmt.Errorf("company %s: %w", c.ID, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	err = errors.Join(errs...)
	j.logger.Info("outage reports archived", "companies", len(companies), "failed", countErrs(errs))
	return err
}

func (j *OutageJobs) archiveCompany(ctx context.Context, companyID uuid.UUID, rng model.DateRange, name string) error {
	rows, err := j.reports.Schedule(ctx, companyID, rng)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := report.WriteCSV(&buf, rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	_, err = j.archive.Store(ctx, companyID, name, buf.Bytes())
	return err
}

func countErrs(errs []error) int {
	n := 0
	for _, err := range errs {
		if err != nil {
			n++
		}
	}
	return n
}
