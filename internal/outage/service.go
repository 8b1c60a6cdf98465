package outage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ioms/backend/internal/metrics"
	"github.com/ioms/backend/internal/model"
	"github.com/ioms/backend/internal/repository"
)

// Policy decides what happens when a write conflicts with existing outages.
type Policy string

const (
	// PolicyAdvisory persists the outage and reports conflicts as warnings.
	PolicyAdvisory Policy = "advisory"
	// PolicyBlocking refuses the write with a ConflictError.
	PolicyBlocking Policy = "blocking"
)

// ParsePolicy accepts "advisory" or "blocking" in any case.
func ParsePolicy(s string) (Policy, bool) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyAdvisory:
		return PolicyAdvisory, true
	case PolicyBlocking:
		return PolicyBlocking, true
	}
	return PolicyAdvisory, false
}

// EventSink receives lifecycle events after the change has been committed.
// Implementations must not block and must not fail the caller.
type EventSink interface {
	Publish(ctx context.Context, ev model.OutageEvent)
}

// Deps groups the collaborators of the Service.
type Deps struct {
	Tx           repository.TxRunner
	Outages      repository.OutageRepository
	History      repository.HistoryRepository
	Applications repository.ApplicationRepository
	Companies    repository.CompanyRepository
	Sink         EventSink
	Policy       Policy
	Logger       *slog.Logger
	Now          func() time.Time
}

// Service applies outage lifecycle operations.
type Service struct {
	tx        repository.TxRunner
	outages   repository.OutageRepository
	history   repository.HistoryRepository
	apps      repository.ApplicationRepository
	companies repository.CompanyRepository
	sink      EventSink
	policy    Policy
	logger    *slog.Logger
	now       func() time.Time

	calendarPage int
}

func NewService(d Deps) *Service {
	s := &Service{
		tx:        d.Tx,
		outages:   d.Outages,
		history:   d.History,
		apps:      d.Applications,
		companies: d.Companies,
		sink:      d.Sink,
		policy:    d.Policy,
		logger:    d.Logger,
		now:       d.Now,

		calendarPage: defaultCalendarPage,
	}
	if s.policy == "" {
		s.policy = PolicyAdvisory
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// Create schedules a new pending outage. The conflict check and the insert
// run in one transaction under the application lock.
func (s *Service) Create(ctx context.Context, actor model.Actor, req model.OutageCreateRequest) (*model.Outage, *ConflictResult, error) {
	if err := CheckRequester(actor); err != nil {
		return nil, nil, err
	}

	verr := &ValidationError{}
	if strings.TrimSpace(req.Title) == "" {
		verr.add("title", "is required")
	}
	if strings.TrimSpace(req.Reason) == "" {
		verr.add("reason", "is required")
	}
	if req.ApplicationID == uuid.Nil {
		verr.add("application_id", "is required")
	}
	if len(req.EnvironmentIDs) == 0 {
		verr.add("environment_ids", "at least one environment is required")
	}
	if err := ValidateWindow(req.ScheduledStart, req.ScheduledEnd); err != nil {
		for k, v := range err.(*ValidationError).Fields {
			verr.add(k, v)
		}
	}
	if !verr.empty() {
		return nil, nil, verr
	}

	criticality := s.parseCriticality(req.Criticality)
	outageType := req.Type
	if outageType == "" {
		outageType = model.OutageTypePlanned
	}

	now := s.now()
	o := &model.Outage{
		BaseEntity:        model.BaseEntity{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		CompanyID:         actor.CompanyID,
		ApplicationID:     req.ApplicationID,
		LocationID:        req.LocationID,
		EnvironmentIDs:    dedupe(req.EnvironmentIDs),
		Title:             strings.TrimSpace(req.Title),
		Reason:            strings.TrimSpace(req.Reason),
		Description:       req.Description,
		Type:              outageType,
		Criticality:       criticality,
		Status:            model.OutageStatusPending,
		ScheduledStart:    req.ScheduledStart.UTC(),
		ScheduledEnd:      req.ScheduledEnd.UTC(),
		EstimatedDuration: estimatedDurationPtr(req.ScheduledStart, req.ScheduledEnd),
		CreatedBy:         actor.UserID,
		Version:           1,
	}

	var (
		app    *model.Application
		result *ConflictResult
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		app, err = s.loadApplication(ctx, o.CompanyID, o.ApplicationID)
		if err != nil {
			return err
		}
		if err := checkPlacement(app, o.LocationID, o.EnvironmentIDs); err != nil {
			return err
		}
		if err := s.outages.LockApplication(ctx, o.ApplicationID); err != nil {
			return fmt.Errorf("lock application: %w", err)
		}
		result, err = s.checkConflicts(ctx, windowOf(o, nil))
		if err != nil {
			return err
		}
		if !result.IsValid && s.policyFor(ctx, o.CompanyID) == PolicyBlocking {
			return &ConflictError{Result: result}
		}
		if err := s.outages.Create(ctx, o); err != nil {
			return fmt.Errorf("failed to create outage: %w", err)
		}
		entry := model.NewHistoryEntry(o.ID, model.ChangeTypeCreate, actor, now)
		entry.NewValue = string(o.Status)
		entry.Reason = o.Reason
		return s.appendHistory(ctx, entry)
	})
	if err != nil {
		return nil, result, err
	}

	metrics.OutageTransitions.WithLabelValues("create", string(o.Status)).Inc()
	s.logger.Info("outage created",
		"outage_id", o.ID,
		"company_id", o.CompanyID,
		"application_id", o.ApplicationID,
		"criticality", o.Criticality,
		"conflicts", len(result.Conflicts),
	)

	s.emit(ctx, model.NotificationOutageCreated, o, app, actor, "")
	if !result.IsValid {
		s.emitConflict(ctx, o, app, actor, result)
	}
	return o, result, nil
}

// Update patches an outage while it is pending or approved. Changing the
// window or placement re-runs the conflict check and sends an approved
// outage back to pending, the one backward move in the lifecycle: a
// rescheduled window needs a fresh approval. A patch that changes nothing
// writes no history and notifies no one.
func (s *Service) Update(ctx context.Context, actor model.Actor, id uuid.UUID, req model.OutageUpdateRequest) (*model.Outage, *ConflictResult, error) {
	var (
		o        *model.Outage
		app      *model.Application
		result   *ConflictResult
		reopened bool
		changed  bool
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.loadForUpdate(ctx, actor.CompanyID, id)
		if err != nil {
			return err
		}
		next, err := NextStatus(o.Status, EventEdit)
		if err != nil {
			return err
		}
		if err := CheckEditor(actor, o); err != nil {
			return err
		}

		now := s.now()
		changes, err := s.applyUpdate(o, req)
		if err != nil {
			return err
		}
		if len(changes) == 0 {
			return nil
		}
		changed = true

		if req.TouchesPlacement() && placementChanged(changes) {
			if next, err = NextStatus(o.Status, EventReschedule); err != nil {
				return err
			}
			app, err = s.loadApplication(ctx, o.CompanyID, o.ApplicationID)
			if err != nil {
				return err
			}
			if err := checkPlacement(app, o.LocationID, o.EnvironmentIDs); err != nil {
				return err
			}
			if err := s.outages.LockApplication(ctx, o.ApplicationID); err != nil {
				return fmt.Errorf("lock application: %w", err)
			}
			result, err = s.checkConflicts(ctx, windowOf(o, &o.ID))
			if err != nil {
				return err
			}
			if !result.IsValid && s.policyFor(ctx, o.CompanyID) == PolicyBlocking {
				return &ConflictError{Result: result}
			}
		}

		if next != o.Status {
			changes = append(changes, fieldChange{field: "status", old: string(o.Status), new: string(next)})
			o.Status = next
			o.ApprovedBy = nil
			o.ApprovedAt = nil
			reopened = true
		}
		o.UpdatedAt = now
		if err := s.saveOutage(ctx, o); err != nil {
			return err
		}

		for _, c := range changes {
			ct := model.ChangeTypeUpdate
			if c.field == "status" {
				ct = model.ChangeTypeStatusChange
			}
			entry := model.NewHistoryEntry(o.ID, ct, actor, now)
			entry.Field, entry.OldValue, entry.NewValue = c.field, c.old, c.new
			if ct == model.ChangeTypeStatusChange {
				entry.Reason = "schedule changed after approval"
			}
			if err := s.appendHistory(ctx, entry); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, result, err
	}
	if result == nil {
		result = &ConflictResult{IsValid: true, Conflicts: []Conflict{}, Warnings: []string{}, Recommendations: []string{}}
	}
	if !changed {
		return o, result, nil
	}

	if reopened {
		metrics.OutageTransitions.WithLabelValues(string(EventReschedule), string(o.Status)).Inc()
	}
	if app == nil {
		app = s.applicationOrNil(ctx, o)
	}
	s.emit(ctx, model.NotificationOutageUpdated, o, app, actor, "")
	if !result.IsValid {
		s.emitConflict(ctx, o, app, actor, result)
	}
	return o, result, nil
}

// Approve moves a pending outage to approved.
func (s *Service) Approve(ctx context.Context, actor model.Actor, id uuid.UUID, req model.OutageTransitionRequest) (*model.Outage, error) {
	return s.transition(ctx, actor, actor.CompanyID, id, EventApprove, annotation(req))
}

// Reject moves a pending outage to rejected. A reason is required.
func (s *Service) Reject(ctx context.Context, actor model.Actor, id uuid.UUID, req model.OutageTransitionRequest) (*model.Outage, error) {
	if strings.TrimSpace(req.Reason) == "" {
		return nil, newValidationError("reason", "is required to reject an outage")
	}
	return s.transition(ctx, actor, actor.CompanyID, id, EventReject, annotation(req))
}

// Cancel moves a pending or approved outage to cancelled. A reason is required.
func (s *Service) Cancel(ctx context.Context, actor model.Actor, id uuid.UUID, req model.OutageTransitionRequest) (*model.Outage, error) {
	if strings.TrimSpace(req.Reason) == "" {
		return nil, newValidationError("reason", "is required to cancel an outage")
	}
	return s.transition(ctx, actor, actor.CompanyID, id, EventCancel, annotation(req))
}

// Start moves an approved outage to in_progress once its scheduled start
// has been reached.
func (s *Service) Start(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Outage, error) {
	return s.transition(ctx, actor, actor.CompanyID, id, EventStart, "")
}

// Complete moves an in-progress outage to completed. Work may finish before
// the scheduled end.
func (s *Service) Complete(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Outage, error) {
	return s.transition(ctx, actor, actor.CompanyID, id, EventComplete, "")
}

var transitionNotifications = map[Event]model.NotificationType{
	EventApprove:  model.NotificationOutageApproved,
	EventReject:   model.NotificationOutageRejected,
	EventCancel:   model.NotificationOutageCancelled,
	EventStart:    model.NotificationOutageStarted,
	EventComplete: model.NotificationOutageCompleted,
}

var transitionChangeTypes = map[Event]model.ChangeType{
	EventApprove:  model.ChangeTypeApproval,
	EventReject:   model.ChangeTypeRejection,
	EventCancel:   model.ChangeTypeCancellation,
	EventStart:    model.ChangeTypeStatusChange,
	EventComplete: model.ChangeTypeStatusChange,
}

// transition applies one state machine event under a row lock and appends
// exactly one history entry.
func (s *Service) transition(ctx context.Context, actor model.Actor, companyID, id uuid.UUID, ev Event, reason string) (*model.Outage, error) {
	var (
		o   *model.Outage
		app *model.Application
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.loadForUpdate(ctx, companyID, id)
		if err != nil {
			return err
		}
		next, err := NextStatus(o.Status, ev)
		if err != nil {
			return err
		}
		app, err = s.loadApplication(ctx, o.CompanyID, o.ApplicationID)
		if err != nil {
			return err
		}
		if err := guard(actor, ev, o, app); err != nil {
			return err
		}
		now := s.now()
		if ev == EventStart && now.Before(o.ScheduledStart) {
			return newValidationError("scheduled_start", "has not been reached")
		}

		prev := o.Status
		o.Status = next
		o.UpdatedAt = now
		by := actorRef(actor)
		switch ev {
		case EventApprove:
			o.ApprovedBy, o.ApprovedAt = by, &now
		case EventReject:
			o.RejectedBy, o.RejectedAt = by, &now
		case EventCancel:
			o.CancelledBy, o.CancelledAt = by, &now
		case EventStart:
			o.ActualStart = &now
		case EventComplete:
			o.ActualEnd = &now
		}
		if err := s.saveOutage(ctx, o); err != nil {
			return err
		}

		entry := model.NewHistoryEntry(o.ID, transitionChangeTypes[ev], actor, now)
		entry.Field = "status"
		entry.OldValue = string(prev)
		entry.NewValue = string(next)
		entry.Reason = reason
		return s.appendHistory(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	metrics.OutageTransitions.WithLabelValues(string(ev), string(o.Status)).Inc()
	s.logger.Info("outage transitioned",
		"outage_id", o.ID,
		"event", ev,
		"status", o.Status,
		"actor", actor.Label(),
	)
	s.emit(ctx, transitionNotifications[ev], o, app, actor, reason)
	return o, nil
}

func guard(actor model.Actor, ev Event, o *model.Outage, app *model.Application) error {
	switch ev {
	case EventApprove, EventReject:
		return CheckApprover(actor, o, app)
	default:
		return CheckCanceller(actor, o, app)
	}
}

// AdvanceDue starts approved outages whose window has begun and completes
// in-progress outages whose window has ended. It returns the number of
// transitions applied.
func (s *Service) AdvanceDue(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.outages.ListDueForAdvance(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list due outages: %w", err)
	}

	system := model.SystemActor()
	applied := 0
	var errs []error
	for _, o := range due {
		if err := ctx.Err(); err != nil {
			return applied, err
		}
		status := o.Status
		if status == model.OutageStatusApproved {
			started, err := s.transition(ctx, system, o.CompanyID, o.ID, EventStart, "scheduled start reached")
			if err != nil {
				if !errors.Is(err, ErrInvalidStateTransition) {
					errs = append(errs, fmt.Errorf("start %s: %w", o.ID, err))
				}
				continue
			}
			applied++
			status = started.Status
		}
		if status == model.OutageStatusInProgress && !o.ScheduledEnd.After(now) {
			if _, err := s.transition(ctx, system, o.CompanyID, o.ID, EventComplete, "scheduled end reached"); err != nil {
				if !errors.Is(err, ErrInvalidStateTransition) {
					errs = append(errs, fmt.Errorf("complete %s: %w", o.ID, err))
				}
				continue
			}
			applied++
		}
	}
	return applied, errors.Join(errs...)
}

// SendReminders emits one reminder for every approved outage starting within lead.
func (s *Service) SendReminders(ctx context.Context, lead time.Duration) (int, error) {
	now := s.now()
	due, err := s.outages.ListReminderDue(ctx, now, lead)
	if err != nil {
		return 0, fmt.Errorf("list reminder candidates: %w", err)
	}

	sent := 0
	for _, o := range due {
		if err := s.outages.MarkReminderSent(ctx, o.ID, now); err != nil {
			s.logger.Error("failed to mark reminder", "outage_id", o.ID, "error", err)
			continue
		}
		o.ReminderSentAt = &now
		app := s.applicationOrNil(ctx, o)
		msg := fmt.Sprintf("starts at %s", o.ScheduledStart.UTC().Format(time.RFC3339))
		s.emit(ctx, model.NotificationReminder, o, app, model.SystemActor(), msg)
		sent++
	}
	return sent, nil
}

// ValidateConflicts runs the conflict check without writing anything.
func (s *Service) ValidateConflicts(ctx context.Context, actor model.Actor, req model.ConflictCheckRequest) (*ConflictResult, error) {
	criticality := model.DefaultCriticality
	if req.Criticality != "" {
		criticality = s.parseCriticality(req.Criticality)
	}
	w := Window{
		CompanyID:       actor.CompanyID,
		ApplicationID:   req.ApplicationID,
		LocationID:      req.LocationID,
		EnvironmentIDs:  dedupe(req.EnvironmentIDs),
		Start:           req.ScheduledStart.UTC(),
		End:             req.ScheduledEnd.UTC(),
		Criticality:     criticality,
		ExcludeOutageID: req.ExcludeOutageID,
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	app, err := s.loadApplication(ctx, actor.CompanyID, req.ApplicationID)
	if err != nil {
		return nil, err
	}
	if err := checkPlacement(app, w.LocationID, w.EnvironmentIDs); err != nil {
		return nil, err
	}
	return s.checkConflicts(ctx, w)
}

// ApprovalCheck reports whether actor may approve the outage, and whether the
// creator is the application's sole key user.
func (s *Service) ApprovalCheck(ctx context.Context, actor model.Actor, id uuid.UUID) (*ApprovalCheck, error) {
	o, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	app, err := s.loadApplication(ctx, o.CompanyID, o.ApplicationID)
	if err != nil {
		return nil, err
	}
	res := EvaluateApproval(actor, o, app)
	return &res, nil
}

// Get returns an outage of the actor's company.
func (s *Service) Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Outage, error) {
	o, err := s.outages.GetByID(ctx, actor.CompanyID, id)
	if err != nil {
		return nil, mapRepoErr(err, "outage")
	}
	return o, nil
}

// List returns a page of outages of the actor's company.
func (s *Service) List(ctx context.Context, actor model.Actor, filter model.OutageFilter, p model.Pagination) ([]*model.Outage, int, error) {
	filter.CompanyID = actor.CompanyID
	return s.outages.List(ctx, filter, p)
}

const defaultCalendarPage = 500

// Calendar returns every outage of the company whose window intersects r,
// reading the repository page by page.
func (s *Service) Calendar(ctx context.Context, actor model.Actor, r model.DateRange) ([]*model.Outage, error) {
	if err := ValidateWindow(r.Start, r.End); err != nil {
		return nil, err
	}
	filter := model.OutageFilter{CompanyID: actor.CompanyID, Window: &r}
	var out []*model.Outage
	for p := 1; ; p++ {
		batch, total, err := s.outages.List(ctx, filter, model.Pagination{Page: p, PageSize: s.calendarPage})
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
		if len(batch) < s.calendarPage || len(out) >= total {
			break
		}
	}
	if out == nil {
		out = []*model.Outage{}
	}
	return out, nil
}

// History returns the change log of an outage, oldest first.
func (s *Service) History(ctx context.Context, actor model.Actor, id uuid.UUID) ([]*model.OutageChangeHistory, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.history.ListByOutage(ctx, id)
}

// AddComment appends a comment, note, feedback or question to an outage.
func (s *Service) AddComment(ctx context.Context, actor model.Actor, id uuid.UUID, req model.OutageCommentRequest) (*model.OutageChangeHistory, error) {
	ct := req.ChangeType
	if ct == "" {
		ct = model.ChangeTypeComment
	}
	if !ct.IsAnnotation() {
		return nil, newValidationError("change_type", "must be one of comment, note, feedback, question")
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, newValidationError("text", "is required")
	}

	o, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	entry := model.NewHistoryEntry(o.ID, ct, actor, s.now())
	entry.NewValue = text
	if err := s.appendHistory(ctx, entry); err != nil {
		return nil, err
	}

	s.emit(ctx, model.NotificationComment, o, s.applicationOrNil(ctx, o), actor, text)
	return entry, nil
}

// Summary aggregates the company's outages for the dashboard.
func (s *Service) Summary(ctx context.Context, actor model.Actor) (*model.OutageSummary, error) {
	return s.outages.GetSummary(ctx, actor.CompanyID, s.now())
}

// SetPolicy replaces the default conflict policy.
func (s *Service) SetPolicy(p Policy) { s.policy = p }

func (s *Service) checkConflicts(ctx context.Context, w Window) (*ConflictResult, error) {
	existing, err := s.outages.FindOverlapping(ctx, w.Query())
	if err != nil {
		return nil, fmt.Errorf("find overlapping outages: %w", err)
	}
	res := DetectConflicts(w, existing)
	label := "clear"
	if !res.IsValid {
		label = "conflict"
	}
	metrics.ConflictChecks.WithLabelValues(label, string(s.policyFor(ctx, w.CompanyID))).Inc()
	return res, nil
}

// policyFor returns the company override when set, otherwise the service default.
func (s *Service) policyFor(ctx context.Context, companyID uuid.UUID) Policy {
	if s.companies == nil {
		return s.policy
	}
	c, err := s.companies.GetByID(ctx, companyID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("failed to load company policy", "company_id", companyID, "error", err)
		}
		return s.policy
	}
	if p, ok := ParsePolicy(c.Settings.ConflictPolicy); ok {
		return p
	}
	return s.policy
}

func (s *Service) parseCriticality(raw string) model.Criticality {
	c, ok := model.ParseCriticality(raw)
	if !ok && raw != "" {
		s.logger.Warn("unrecognized criticality, using default", "value", raw, "default", c)
	}
	return c
}

func (s *Service) loadForUpdate(ctx context.Context, companyID, id uuid.UUID) (*model.Outage, error) {
	o, err := s.outages.GetForUpdate(ctx, companyID, id)
	if err != nil {
		return nil, mapRepoErr(err, "outage")
	}
	return o, nil
}

func (s *Service) loadApplication(ctx context.Context, companyID, id uuid.UUID) (*model.Application, error) {
	app, err := s.apps.GetByID(ctx, companyID, id)
	if err != nil {
		return nil, mapRepoErr(err, "application")
	}
	return app, nil
}

func (s *Service) applicationOrNil(ctx context.Context, o *model.Outage) *model.Application {
	app, err := s.apps.GetByID(ctx, o.CompanyID, o.ApplicationID)
	if err != nil {
		s.logger.Warn("failed to load application for notification", "application_id", o.ApplicationID, "error", err)
		return nil
	}
	return app
}

func (s *Service) saveOutage(ctx context.Context, o *model.Outage) error {
	if err := s.outages.Update(ctx, o); err != nil {
		if errors.Is(err, repository.ErrStaleVersion) {
			return ErrConcurrentModification
		}
		return fmt.Errorf("failed to update outage: %w", err)
	}
	return nil
}

func (s *Service) appendHistory(ctx context.Context, entry *model.OutageChangeHistory) error {
	if err := s.history.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

type fieldChange struct {
	field, old, new string
}

var placementFields = map[string]bool{
	"location_id":     true,
	"environment_ids": true,
	"scheduled_start": true,
	"scheduled_end":   true,
}

func placementChanged(changes []fieldChange) bool {
	for _, c := range changes {
		if placementFields[c.field] {
			return true
		}
	}
	return false
}

// applyUpdate mutates o in place and returns the changed fields.
func (s *Service) applyUpdate(o *model.Outage, req model.OutageUpdateRequest) ([]fieldChange, error) {
	var changes []fieldChange
	verr := &ValidationError{}

	if req.Title != nil {
		if t := strings.TrimSpace(*req.Title); t == "" {
			verr.add("title", "must not be empty")
		} else if t != o.Title {
			changes = append(changes, fieldChange{"title", o.Title, t})
			o.Title = t
		}
	}
	if req.Reason != nil {
		if r := strings.TrimSpace(*req.Reason); r == "" {
			verr.add("reason", "must not be empty")
		} else if r != o.Reason {
			changes = append(changes, fieldChange{"reason", o.Reason, r})
			o.Reason = r
		}
	}
	if req.Description != nil && *req.Description != o.Description {
		changes = append(changes, fieldChange{"description", o.Description, *req.Description})
		o.Description = *req.Description
	}
	if req.Criticality != nil {
		c := s.parseCriticality(*req.Criticality)
		if c != o.Criticality {
			changes = append(changes, fieldChange{"criticality", string(o.Criticality), string(c)})
			o.Criticality = c
		}
	}
	switch {
	case req.ClearLocation && req.LocationID != nil:
		verr.add("location_id", "cannot be set together with clear_location")
	case req.ClearLocation && o.LocationID != nil:
		changes = append(changes, fieldChange{"location_id", uuidString(o.LocationID), ""})
		o.LocationID = nil
	case req.LocationID != nil && (o.LocationID == nil || *o.LocationID != *req.LocationID):
		changes = append(changes, fieldChange{"location_id", uuidString(o.LocationID), req.LocationID.String()})
		loc := *req.LocationID
		o.LocationID = &loc
	}
	if req.EnvironmentIDs != nil {
		envs := dedupe(req.EnvironmentIDs)
		if len(envs) == 0 {
			verr.add("environment_ids", "at least one environment is required")
		} else if !sameSet(envs, o.EnvironmentIDs) {
			changes = append(changes, fieldChange{"environment_ids", joinIDs(o.EnvironmentIDs), joinIDs(envs)})
			o.EnvironmentIDs = envs
		}
	}

	start, end := o.ScheduledStart, o.ScheduledEnd
	if req.ScheduledStart != nil {
		start = req.ScheduledStart.UTC()
	}
	if req.ScheduledEnd != nil {
		end = req.ScheduledEnd.UTC()
	}
	if err := ValidateWindow(start, end); err != nil {
		for k, v := range err.(*ValidationError).Fields {
			verr.add(k, v)
		}
	}
	if !verr.empty() {
		return nil, verr
	}
	if !start.Equal(o.ScheduledStart) {
		changes = append(changes, fieldChange{"scheduled_start", o.ScheduledStart.Format(time.RFC3339), start.Format(time.RFC3339)})
		o.ScheduledStart = start
	}
	if !end.Equal(o.ScheduledEnd) {
		changes = append(changes, fieldChange{"scheduled_end", o.ScheduledEnd.Format(time.RFC3339), end.Format(time.RFC3339)})
		o.ScheduledEnd = end
	}
	o.EstimatedDuration = estimatedDurationPtr(o.ScheduledStart, o.ScheduledEnd)
	return changes, nil
}

func windowOf(o *model.Outage, exclude *uuid.UUID) Window {
	return Window{
		CompanyID:       o.CompanyID,
		ApplicationID:   o.ApplicationID,
		LocationID:      o.LocationID,
		EnvironmentIDs:  o.EnvironmentIDs,
		Start:           o.ScheduledStart,
		End:             o.ScheduledEnd,
		Criticality:     o.Criticality,
		ExcludeOutageID: exclude,
	}
}

// checkPlacement verifies that location and environments belong to the application.
func checkPlacement(app *model.Application, locationID *uuid.UUID, envs []uuid.UUID) error {
	verr := &ValidationError{}
	if locationID != nil && !app.HasLocation(*locationID) {
		verr.add("location_id", "does not belong to the application")
	}
	for _, id := range envs {
		if !app.HasEnvironment(id) {
			verr.add("environment_ids", fmt.Sprintf("environment %s does not belong to the application", id))
			break
		}
	}
	if verr.empty() {
		return nil
	}
	return verr
}

func mapRepoErr(err error, what string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%s %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}

func annotation(req model.OutageTransitionRequest) string {
	reason := strings.TrimSpace(req.Reason)
	comments := strings.TrimSpace(req.Comments)
	switch {
	case comments == "":
		return reason
	case reason == "":
		return comments
	default:
		return reason + "\n\n" + comments
	}
}

func actorRef(actor model.Actor) *uuid.UUID {
	if actor.System {
		return nil
	}
	id := actor.UserID
	return &id
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func sameSet(a, b []uuid.UUID) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[uuid.UUID]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}

func joinIDs(ids []uuid.UUID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ",")
}

func uuidString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
