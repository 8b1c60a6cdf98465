// Package memstore provides in-memory repositories used by tests and local runs
// without a database.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ioms/backend/internal/model"
	"github.com/ioms/backend/internal/repository"
)

// Store bundles every in-memory repository.
type Store struct {
	Tx            *TxRunner
	Outages       *OutageRepository
	History       *HistoryRepository
	Applications  *ApplicationRepository
	Users         *UserRepository
	Companies     *CompanyRepository
	Notifications *NotificationRepository
	Chat          *ChatRepository
}

func New() *Store {
	return &Store{
		Tx:            &TxRunner{},
		Outages:       &OutageRepository{rows: map[uuid.UUID]model.Outage{}},
		History:       &HistoryRepository{},
		Applications:  &ApplicationRepository{rows: map[uuid.UUID]model.Application{}},
		Users:         &UserRepository{rows: map[uuid.UUID]model.User{}},
		Companies:     &CompanyRepository{rows: map[uuid.UUID]model.Company{}},
		Notifications: &NotificationRepository{},
		Chat:          &ChatRepository{convs: map[uuid.UUID]model.ChatConversation{}},
	}
}

// TxRunner serializes transactions. It does not roll back writes.
type TxRunner struct {
	mu sync.Mutex
}

type txKey struct{}

// InTx reports whether ctx was handed out by WithinTx.
func InTx(ctx context.Context) bool {
	return ctx.Value(txKey{}) != nil
}

func (t *TxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(context.WithValue(ctx, txKey{}, true))
}

type OutageRepository struct {
	mu   sync.Mutex
	rows map[uuid.UUID]model.Outage
}

func cloneOutage(o model.Outage) *model.Outage {
	o.EnvironmentIDs = append([]uuid.UUID(nil), o.EnvironmentIDs...)
	return &o
}

func (r *OutageRepository) Create(_ context.Context, o *model.Outage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[o.ID]; ok {
		return repository.ErrDuplicate
	}
	if o.Version == 0 {
		o.Version = 1
	}
	r.rows[o.ID] = *cloneOutage(*o)
	return nil
}

func (r *OutageRepository) GetByID(_ context.Context, companyID, id uuid.UUID) (*model.Outage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.rows[id]
	if !ok || o.CompanyID != companyID {
		return nil, repository.ErrNotFound
	}
	return cloneOutage(o), nil
}

func (r *OutageRepository) GetForUpdate(ctx context.Context, companyID, id uuid.UUID) (*model.Outage, error) {
	return r.GetByID(ctx, companyID, id)
}

func (r *OutageRepository) Update(_ context.Context, o *model.Outage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.rows[o.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if cur.Version != o.Version {
		return repository.ErrStaleVersion
	}
	o.Version++
	r.rows[o.ID] = *cloneOutage(*o)
	return nil
}

func (r *OutageRepository) List(_ context.Context, f model.OutageFilter, p model.Pagination) ([]*model.Outage, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Outage
	for _, o := range r.rows {
		if o.CompanyID != f.CompanyID || !matchesFilter(o, f) {
			continue
		}
		out = append(out, cloneOutage(o))
	}
	sortOutages(out)
	total := len(out)
	return page(out, p), total, nil
}

func matchesFilter(o model.Outage, f model.OutageFilter) bool {
	if len(f.ApplicationIDs) > 0 && !containsID(f.ApplicationIDs, o.ApplicationID) {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			found = found || s == o.Status
		}
		if !found {
			return false
		}
	}
	if len(f.Criticalities) > 0 {
		found := false
		for _, c := range f.Criticalities {
			found = found || c == o.Criticality
		}
		if !found {
			return false
		}
	}
	if f.CreatedBy != nil && *f.CreatedBy != o.CreatedBy {
		return false
	}
	if f.Window != nil && !(o.ScheduledStart.Before(f.Window.End) && o.ScheduledEnd.After(f.Window.Start)) {
		return false
	}
	return true
}

func (r *OutageRepository) FindOverlapping(_ context.Context, q model.OverlapQuery) ([]*model.Outage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Outage
	for _, o := range r.rows {
		if o.CompanyID != q.CompanyID || !o.Status.Blocking() {
			continue
		}
		if q.ExcludeOutageID != nil && o.ID == *q.ExcludeOutageID {
			continue
		}
		if o.ScheduledStart.After(q.End) || o.ScheduledEnd.Before(q.Start) {
			continue
		}
		sameLoc := q.LocationID != nil && o.LocationID != nil && *q.LocationID == *o.LocationID
		if o.ApplicationID != q.ApplicationID && !sameLoc && len(o.SharesEnvironment(q.EnvironmentIDs)) == 0 {
			continue
		}
		out = append(out, cloneOutage(o))
	}
	sortOutages(out)
	return out, nil
}

func (r *OutageRepository) ListDueForAdvance(_ context.Context, now time.Time) ([]*model.Outage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Outage
	for _, o := range r.rows {
		switch {
		case o.Status == model.OutageStatusApproved && !o.ScheduledStart.After(now),
			o.Status == model.OutageStatusInProgress && !o.ScheduledEnd.After(now):
			out = append(out, cloneOutage(o))
		}
	}
	sortOutages(out)
	return out, nil
}

func (r *OutageRepository) ListReminderDue(_ context.Context, now time.Time, lead time.Duration) ([]*model.Outage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Outage
	for _, o := range r.rows {
		if o.Status == model.OutageStatusApproved && o.ReminderSentAt == nil &&
			o.ScheduledStart.After(now) && !o.ScheduledStart.After(now.Add(lead)) {
			out = append(out, cloneOutage(o))
		}
	}
	sortOutages(out)
	return out, nil
}

func (r *OutageRepository) MarkReminderSent(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	o.ReminderSentAt = &at
	r.rows[id] = o
	return nil
}

func (r *OutageRepository) LockApplication(context.Context, uuid.UUID) error { return nil }

func (r *OutageRepository) GetSummary(_ context.Context, companyID uuid.UUID, now time.Time) (*model.OutageSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &model.OutageSummary{
		ByStatus:      map[model.OutageStatus]int{},
		ByCriticality: map[model.Criticality]int{},
	}
	for _, o := range r.rows {
		if o.CompanyID != companyID {
			continue
		}
		s.TotalCount++
		s.ByStatus[o.Status]++
		switch o.Status {
		case model.OutageStatusRejected, model.OutageStatusCancelled, model.OutageStatusCompleted:
		default:
			s.ByCriticality[o.Criticality]++
		}
		if (o.Status == model.OutageStatusPending || o.Status == model.OutageStatusApproved) && !o.ScheduledStart.Before(now) {
			s.Upcoming = append(s.Upcoming, cloneOutage(o))
		}
	}
	s.PendingCount = s.ByStatus[model.OutageStatusPending]
	sortOutages(s.Upcoming)
	if len(s.Upcoming) > 10 {
		s.Upcoming = s.Upcoming[:10]
	}
	return s, nil
}

func sortOutages(out []*model.Outage) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledStart.Equal(out[j].ScheduledStart) {
			return out[i].ScheduledStart.Before(out[j].ScheduledStart)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
}

type HistoryRepository struct {
	mu   sync.Mutex
	rows []model.OutageChangeHistory
}

func (r *HistoryRepository) Append(_ context.Context, h *model.OutageChangeHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, *h)
	return nil
}

func (r *HistoryRepository) ListByOutage(_ context.Context, outageID uuid.UUID) ([]*model.OutageChangeHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.OutageChangeHistory
	for i := range r.rows {
		if r.rows[i].OutageID == outageID {
			h := r.rows[i]
			out = append(out, &h)
		}
	}
	return out, nil
}

type ApplicationRepository struct {
	mu   sync.Mutex
	rows map[uuid.UUID]model.Application
}

func cloneApp(a model.Application) *model.Application {
	a.Environments = append([]model.Environment{}, a.Environments...)
	a.Locations = append([]model.Location{}, a.Locations...)
	a.KeyUserIDs = append([]uuid.UUID{}, a.KeyUserIDs...)
	return &a
}

func (r *ApplicationRepository) Create(_ context.Context, app *model.Application) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.rows {
		if a.CompanyID == app.CompanyID && strings.EqualFold(a.Name, app.Name) {
			return repository.ErrDuplicate
		}
	}
	r.rows[app.ID] = *cloneApp(*app)
	return nil
}

func (r *ApplicationRepository) GetByID(_ context.Context, companyID, id uuid.UUID) (*model.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[id]
	if !ok || a.CompanyID != companyID {
		return nil, repository.ErrNotFound
	}
	return cloneApp(a), nil
}

func (r *ApplicationRepository) List(_ context.Context, companyID uuid.UUID) ([]*model.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Application
	for _, a := range r.rows {
		if a.CompanyID == companyID {
			out = append(out, cloneApp(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *ApplicationRepository) AddEnvironment(_ context.Context, env *model.Environment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[env.ApplicationID]
	if !ok {
		return repository.ErrNotFound
	}
	for _, e := range a.Environments {
		if strings.EqualFold(e.Name, env.Name) {
			return repository.ErrDuplicate
		}
	}
	a.Environments = append(a.Environments, *env)
	r.rows[a.ID] = a
	return nil
}

func (r *ApplicationRepository) AddLocation(_ context.Context, loc *model.Location) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[loc.ApplicationID]
	if !ok {
		return repository.ErrNotFound
	}
	for _, l := range a.Locations {
		if strings.EqualFold(l.Name, loc.Name) {
			return repository.ErrDuplicate
		}
	}
	a.Locations = append(a.Locations, *loc)
	r.rows[a.ID] = a
	return nil
}

func (r *ApplicationRepository) SetKeyUsers(_ context.Context, applicationID uuid.UUID, userIDs []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[applicationID]
	if !ok {
		return repository.ErrNotFound
	}
	a.KeyUserIDs = append([]uuid.UUID{}, userIDs...)
	r.rows[a.ID] = a
	return nil
}

type UserRepository struct {
	mu   sync.Mutex
	rows map[uuid.UUID]model.User
}

func (r *UserRepository) Create(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.rows {
		if strings.EqualFold(existing.Email, u.Email) {
			return repository.ErrDuplicate
		}
	}
	cp := *u
	cp.Email = strings.ToLower(cp.Email)
	r.rows[u.ID] = cp
	return nil
}

func (r *UserRepository) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.rows {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *UserRepository) ListByCompany(_ context.Context, companyID uuid.UUID) ([]*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.User
	for _, u := range r.rows {
		if u.CompanyID == companyID {
			cp := u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *UserRepository) UpdateLastLogin(_ context.Context, id uuid.UUID, t time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.LastLoginAt = &t
	r.rows[id] = u
	return nil
}

type CompanyRepository struct {
	mu   sync.Mutex
	rows map[uuid.UUID]model.Company
}

func (r *CompanyRepository) Create(_ context.Context, c *model.Company) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.rows {
		if strings.EqualFold(existing.Name, c.Name) {
			return repository.ErrDuplicate
		}
	}
	r.rows[c.ID] = *c
	return nil
}

func (r *CompanyRepository) GetByID(_ context.Context, id uuid.UUID) (*model.Company, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (r *CompanyRepository) List(context.Context) ([]*model.Company, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Company
	for _, c := range r.rows {
		cp := c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *CompanyRepository) UpdateSettings(_ context.Context, id uuid.UUID, settings model.CompanySettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.Settings = settings
	r.rows[id] = c
	return nil
}

type NotificationRepository struct {
	mu   sync.Mutex
	rows []model.Notification
}

func (r *NotificationRepository) CreateBatch(_ context.Context, ns []*model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range ns {
		r.rows = append(r.rows, *n)
	}
	return nil
}

func (r *NotificationRepository) List(_ context.Context, userID uuid.UUID, unreadOnly bool, p model.Pagination) ([]*model.Notification, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Notification
	for i := len(r.rows) - 1; i >= 0; i-- {
		n := r.rows[i]
		if n.UserID != userID || (unreadOnly && n.Read) {
			continue
		}
		out = append(out, &n)
	}
	total := len(out)
	return page(out, p), total, nil
}

func (r *NotificationRepository) CountUnread(_ context.Context, userID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, row := range r.rows {
		if row.UserID == userID && !row.Read {
			n++
		}
	}
	return n, nil
}

func (r *NotificationRepository) MarkRead(_ context.Context, userID, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rows {
		if r.rows[i].ID == id && r.rows[i].UserID == userID {
			if !r.rows[i].Read {
				r.rows[i].Read = true
				r.rows[i].ReadAt = &at
			}
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *NotificationRepository) MarkAllRead(_ context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for i := range r.rows {
		if r.rows[i].UserID == userID && !r.rows[i].Read {
			r.rows[i].Read = true
			r.rows[i].ReadAt = &at
			n++
		}
	}
	return n, nil
}

// All returns every stored notification in insertion order.
func (r *NotificationRepository) All() []model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Notification(nil), r.rows...)
}

type ChatRepository struct {
	mu    sync.Mutex
	convs map[uuid.UUID]model.ChatConversation
	msgs  []model.ChatMessage
}

func (r *ChatRepository) CreateConversation(_ context.Context, c *model.ChatConversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	cp.ParticipantIDs = append([]uuid.UUID{}, c.ParticipantIDs...)
	r.convs[c.ID] = cp
	return nil
}

func (r *ChatRepository) GetConversation(_ context.Context, companyID, id uuid.UUID) (*model.ChatConversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[id]
	if !ok || c.CompanyID != companyID {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (r *ChatRepository) ListConversations(_ context.Context, companyID, userID uuid.UUID) ([]*model.ChatConversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.ChatConversation
	for _, c := range r.convs {
		if c.CompanyID == companyID && c.HasParticipant(userID) {
			cp := c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *ChatRepository) AddMessage(_ context.Context, m *model.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[m.ConversationID]
	if !ok {
		return repository.ErrNotFound
	}
	at := m.CreatedAt
	c.LastMessageAt = &at
	r.convs[c.ID] = c
	r.msgs = append(r.msgs, *m)
	return nil
}

func (r *ChatRepository) ListMessages(_ context.Context, conversationID uuid.UUID, p model.Pagination) ([]*model.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.ChatMessage
	for i := range r.msgs {
		if r.msgs[i].ConversationID == conversationID {
			m := r.msgs[i]
			out = append(out, &m)
		}
	}
	return page(out, p), nil
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func page[T any](items []T, p model.Pagination) []T {
	if p.PageSize <= 0 {
		return items
	}
	start := p.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + p.PageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

var (
	_ repository.TxRunner               = (*TxRunner)(nil)
	_ repository.OutageRepository       = (*OutageRepository)(nil)
	_ repository.HistoryRepository      = (*HistoryRepository)(nil)
	_ repository.ApplicationRepository  = (*ApplicationRepository)(nil)
	_ repository.UserRepository         = (*UserRepository)(nil)
	_ repository.CompanyRepository      = (*CompanyRepository)(nil)
	_ repository.NotificationRepository = (*NotificationRepository)(nil)
	_ repository.ChatRepository         = (*ChatRepository)(nil)
)
