package handler

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ioms/backend/internal/auth"
	"github.com/ioms/backend/internal/crypto"
	"github.com/ioms/backend/internal/model"
	"github.com/ioms/backend/internal/notification"
	"github.com/ioms/backend/internal/outage"
	"github.com/ioms/backend/internal/realtime"
	"github.com/ioms/backend/internal/report"
	"github.com/ioms/backend/internal/repository/memstore"
)

type apiHarness struct {
	t          *testing.T
	store      *memstore.Store
	bus        *realtime.Bus
	dispatcher *notification.Dispatcher
	jwt        *auth.JWTManager
	box        *crypto.Box
	apps       *keyUserRecorder
	clock      time.Time
	server     http.Handler
	company    *model.Company
	app        *model.Application
	prod       uuid.UUID
	dev        *model.User
	keyUser    *model.User
	admin      *model.User
	day        time.Time
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	store := memstore.New()

	jwt, err := auth.NewJWTManager("handler-test-secret", time.Hour)
	require.NoError(t, err)

	h := &apiHarness{
		t:     t,
		store: store,
		bus:   realtime.NewBus(realtime.DefaultBuffer, logger),
		jwt:   jwt,
		day:   time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, 2),
		clock: time.Now().UTC(),
	}
	h.apps = &keyUserRecorder{ApplicationRepository: store.Applications}

	h.company = &model.Company{BaseEntity: model.NewBaseEntity(), Name: "Acme", Settings: model.CompanySettings{AlertsEnabled: true}}
	require.NoError(t, store.Companies.Create(ctx, h.company))
	h.dev = h.user(t, "dev@acme.io", model.RoleDev)
	h.keyUser = h.user(t, "key@acme.io", model.RoleKeyUser)
	h.admin = h.user(t, "admin@acme.io", model.RoleAdmin)

	h.prod = uuid.New()
	h.app = &model.Application{
		BaseEntity: model.NewBaseEntity(),
		CompanyID:  h.company.ID,
		Name:       "Billing",
		Active:     true,
	}
	require.NoError(t, store.Applications.Create(ctx, h.app))
	require.NoError(t, store.Applications.AddEnvironment(ctx, &model.Environment{ID: h.prod, ApplicationID: h.app.ID, Name: "Production"}))
	require.NoError(t, store.Applications.SetKeyUsers(ctx, h.app.ID, []uuid.UUID{h.keyUser.ID}))

	h.dispatcher = notification.NewDispatcher(notification.DispatcherDeps{
		Store:     store.Notifications,
		Companies: store.Companies,
		Realtime:  realtime.Local{Bus: h.bus},
		Logger:    logger,
	})
	svc := outage.NewService(outage.Deps{
		Tx:           store.Tx,
		Outages:      store.Outages,
		History:      store.History,
		Applications: store.Applications,
		Companies:    store.Companies,
		Sink:         h.dispatcher,
		Logger:       logger,
		Now:          func() time.Time { return h.clock },
	})
	h.box, err = crypto.NewBox("handler-test-key")
	require.NoError(t, err)

	h.server = NewRouter(RouterConfig{}, Handlers{
		JWT:           jwt,
		Auth:          auth.NewHandler(jwt, store.Tx, store.Users, store.Companies, h.bus, logger),
		Outages:       NewOutageHandler(svc),
		Applications:  NewApplicationHandler(store.Tx, h.apps, store.Users, logger),
		Notifications: NewNotificationHandler(store.Notifications),
		Chat:          NewChatHandler(store.Chat, store.Users, store.Outages, realtime.Local{Bus: h.bus}, logger),
		Reports:       NewReportHandler(report.NewGenerator(store.Outages, store.Applications)),
		Settings:      NewSettingsHandler(store.Companies, h.box, logger),
		WS:            NewWSHandler(h.bus, nil, logger),
	})
	return h
}

// keyUserRecorder notes whether key users were replaced inside a transaction.
type keyUserRecorder struct {
	*memstore.ApplicationRepository
	calls int
	inTx  bool
}

func (r *keyUserRecorder) SetKeyUsers(ctx context.Context, applicationID uuid.UUID, userIDs []uuid.UUID) error {
	r.calls++
	r.inTx = memstore.InTx(ctx)
	return r.ApplicationRepository.SetKeyUsers(ctx, applicationID, userIDs)
}

func (h *apiHarness) user(t *testing.T, email string, role model.Role) *model.User {
	t.Helper()
	u := &model.User{
		BaseEntity: model.NewBaseEntity(),
		CompanyID:  h.company.ID,
		Email:      email,
		FirstName:  strings.Split(email, "@")[0],
		Role:       role,
		Active:     true,
	}
	require.NoError(t, h.store.Users.Create(context.Background(), u))
	return u
}

func (h *apiHarness) at(hour int) time.Time {
	return h.day.Add(time.Duration(hour) * time.Hour)
}

func (h *apiHarness) do(method, path string, as *model.User, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(h.t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if rdr != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if as != nil {
		token, err := h.jwt.GenerateToken(as)
		require.NoError(h.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type errorBody struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details"`
}

func (h *apiHarness) createOutage(as *model.User, start, end int) *model.Outage {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/api/v1/outages", as, model.OutageCreateRequest{
		ApplicationID:  h.app.ID,
		EnvironmentIDs: []uuid.UUID{h.prod},
		Title:          "Database failover",
		Reason:         "patching",
		Criticality:    "3",
		ScheduledStart: h.at(start),
		ScheduledEnd:   h.at(end),
	})
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[OutageResponse](h.t, rec).Outage
}

func TestAPI_RequiresAuthentication(t *testing.T) {
	h := newAPIHarness(t)
	rec := h.do(http.MethodGet, "/api/v1/outages", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_Health(t *testing.T) {
	h := newAPIHarness(t)
	rec := h.do(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestAPI_OutageLifecycle(t *testing.T) {
	h := newAPIHarness(t)
	o := h.createOutage(h.keyUser, 14, 16)
	assert.Equal(t, model.OutageStatusPending, o.Status)
	assert.Equal(t, model.CriticalityMedium, o.Criticality)
	require.NotNil(t, o.EstimatedDuration)
	assert.EqualValues(t, 7200, *o.EstimatedDuration)

	path := "/api/v1/outages/" + o.ID.String()

	rec := h.do(http.MethodGet, path+"/approval-check", h.keyUser, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	check := decodeBody[outage.ApprovalCheck](t, rec)
	assert.False(t, check.CanApprove)
	assert.True(t, check.SoleApproverConflict)

	rec = h.do(http.MethodPatch, path+"/approve", h.keyUser, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "SOLE_APPROVER_CONFLICT", decodeBody[errorBody](t, rec).Code)

	rec = h.do(http.MethodPatch, path+"/approve", h.dev, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodPatch, path+"/approve", h.admin, model.OutageTransitionRequest{Comments: "go ahead"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	approved := decodeBody[model.Outage](t, rec)
	assert.Equal(t, model.OutageStatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, h.admin.ID, *approved.ApprovedBy)

	rec = h.do(http.MethodPatch, path+"/approve", h.admin, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVALID_STATE_TRANSITION", decodeBody[errorBody](t, rec).Code)

	rec = h.do(http.MethodPatch, path+"/cancel", h.keyUser, model.OutageTransitionRequest{})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = h.do(http.MethodPatch, path+"/start", h.admin, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "scheduled_start")

	h.clock = h.at(14)
	rec = h.do(http.MethodPatch, path+"/start", h.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(http.MethodPatch, path+"/complete", h.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.OutageStatusCompleted, decodeBody[model.Outage](t, rec).Status)

	rec = h.do(http.MethodGet, path+"/history", h.dev, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decodeBody[struct {
		Data []model.OutageChangeHistory `json:"data"`
	}](t, rec)
	require.NotEmpty(t, history.Data)
	assert.Equal(t, model.ChangeTypeCreate, history.Data[0].ChangeType)
}

func TestAPI_RejectRequiresReason(t *testing.T) {
	h := newAPIHarness(t)
	o := h.createOutage(h.dev, 9, 10)
	path := "/api/v1/outages/" + o.ID.String() + "/reject"

	rec := h.do(http.MethodPatch, path, h.keyUser, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "reason")

	rec = h.do(http.MethodPatch, path, h.keyUser, model.OutageTransitionRequest{Reason: "freeze window"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.OutageStatusRejected, decodeBody[model.Outage](t, rec).Status)
}

func TestAPI_ValidateConflicts(t *testing.T) {
	h := newAPIHarness(t)
	existing := h.createOutage(h.dev, 14, 16)
	rec := h.do(http.MethodPatch, "/api/v1/outages/"+existing.ID.String()+"/approve", h.keyUser, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	check := func(start, end int) outage.ConflictResult {
		rec := h.do(http.MethodPost, "/api/v1/outages/validate/conflicts", h.dev, model.ConflictCheckRequest{
			ApplicationID:  h.app.ID,
			EnvironmentIDs: []uuid.UUID{h.prod},
			ScheduledStart: h.at(start),
			ScheduledEnd:   h.at(end),
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		return decodeBody[outage.ConflictResult](t, rec)
	}

	overlapping := check(15, 17)
	assert.False(t, overlapping.IsValid)
	require.Len(t, overlapping.Conflicts, 1)
	assert.Equal(t, outage.SeverityHigh, overlapping.Conflicts[0].Severity)
	require.NotNil(t, overlapping.SuggestedStart)
	assert.True(t, overlapping.SuggestedStart.Equal(h.at(16)))

	adjacent := check(16, 18)
	assert.True(t, adjacent.IsValid)
	assert.Empty(t, adjacent.Conflicts)
	assert.Len(t, adjacent.Warnings, 1)

	rec = h.do(http.MethodPost, "/api/v1/outages/validate/conflicts", h.dev, model.ConflictCheckRequest{
		ApplicationID:  h.app.ID,
		EnvironmentIDs: []uuid.UUID{h.prod},
		ScheduledStart: h.at(18),
		ScheduledEnd:   h.at(17),
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAPI_AdvisoryCreateReturnsConflicts(t *testing.T) {
	h := newAPIHarness(t)
	h.createOutage(h.dev, 14, 16)

	rec := h.do(http.MethodPost, "/api/v1/outages", h.dev, model.OutageCreateRequest{
		ApplicationID:  h.app.ID,
		EnvironmentIDs: []uuid.UUID{h.prod},
		Title:          "Second",
		Reason:         "overlap",
		ScheduledStart: h.at(15),
		ScheduledEnd:   h.at(17),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeBody[OutageResponse](t, rec)
	require.NotNil(t, resp.Conflicts)
	assert.Len(t, resp.Conflicts.Conflicts, 1)
}

func TestAPI_BlockingCompanyPolicy(t *testing.T) {
	h := newAPIHarness(t)
	h.createOutage(h.dev, 14, 16)

	rec := h.do(http.MethodPut, "/api/v1/settings", h.admin, model.CompanySettingsUpdate{AlertsEnabled: true, ConflictPolicy: "blocking"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(http.MethodPost, "/api/v1/outages", h.dev, model.OutageCreateRequest{
		ApplicationID:  h.app.ID,
		EnvironmentIDs: []uuid.UUID{h.prod},
		Title:          "Second",
		Reason:         "overlap",
		ScheduledStart: h.at(15),
		ScheduledEnd:   h.at(17),
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody[errorBody](t, rec)
	assert.Equal(t, "CONFLICT_DETECTED", body.Code)
	assert.Contains(t, string(body.Details), "conflicts")
}

func TestAPI_ListAndFilterOutages(t *testing.T) {
	h := newAPIHarness(t)
	a := h.createOutage(h.dev, 1, 2)
	h.createOutage(h.dev, 3, 4)
	rec := h.do(http.MethodPatch, "/api/v1/outages/"+a.ID.String()+"/approve", h.keyUser, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodGet, "/api/v1/outages?status=approved", h.dev, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[ListResponse[model.Outage]](t, rec)
	require.Len(t, list.Data, 1)
	assert.Equal(t, a.ID, list.Data[0].ID)
	assert.Equal(t, 1, list.Pagination.Total)

	rec = h.do(http.MethodGet, "/api/v1/outages?criticality=bogus", h.dev, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodGet, "/api/v1/outages/not-a-uuid", h.dev, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodGet, "/api/v1/outages/"+uuid.NewString(), h.dev, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodGet, "/api/v1/dashboard/summary", h.dev, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decodeBody[model.OutageSummary](t, rec)
	assert.Equal(t, 2, summary.TotalCount)
	assert.Equal(t, 1, summary.PendingCount)
}

func TestAPI_NotificationsAfterCreate(t *testing.T) {
	h := newAPIHarness(t)
	session := h.bus.Subscribe(h.company.ID, h.keyUser.ID)
	defer session.Close()

	h.createOutage(h.dev, 10, 11)
	require.NoError(t, h.dispatcher.Wait(context.Background()))

	rec := h.do(http.MethodGet, "/api/v1/notifications/unread-count", h.keyUser, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decodeBody[map[string]int](t, rec)["count"])

	rec = h.do(http.MethodGet, "/api/v1/notifications", h.keyUser, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[ListResponse[model.Notification]](t, rec)
	require.Len(t, list.Data, 1)
	assert.Equal(t, model.NotificationOutageCreated, list.Data[0].Type)

	rec = h.do(http.MethodPatch, "/api/v1/notifications/"+list.Data[0].ID.String()+"/read", h.dev, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodPatch, "/api/v1/notifications/"+list.Data[0].ID.String()+"/read", h.keyUser, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(http.MethodPatch, "/api/v1/notifications/read-all", h.keyUser, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decodeBody[map[string]int64](t, rec)["updated"])

	// creator is the actor and receives nothing
	rec = h.do(http.MethodGet, "/api/v1/notifications/unread-count", h.dev, nil)
	assert.Equal(t, 0, decodeBody[map[string]int](t, rec)["count"])

	select {
	case ev := <-session.Events():
		assert.Equal(t, h.company.ID, ev.CompanyID)
	default:
		t.Fatal("expected a realtime event for the key user")
	}
}

func TestAPI_Applications(t *testing.T) {
	h := newAPIHarness(t)

	req := model.ApplicationCreateRequest{Name: "Payments", Environments: []string{"Production", "Staging"}}
	rec := h.do(http.MethodPost, "/api/v1/applications", h.dev, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodPost, "/api/v1/applications", h.admin, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	app := decodeBody[model.Application](t, rec)
	assert.Len(t, app.Environments, 2)

	rec = h.do(http.MethodPost, "/api/v1/applications", h.admin, req)
	assert.Equal(t, http.StatusConflict, rec.Code)

	base := "/api/v1/applications/" + app.ID.String()
	rec = h.do(http.MethodPost, base+"/locations", h.admin, model.LocationCreateRequest{Name: "eu-west-1", Kind: model.LocationKindCloud, Region: "eu-west-1"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = h.do(http.MethodPost, base+"/locations", h.admin, model.LocationCreateRequest{Name: "x", Kind: "orbital"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = h.do(http.MethodPut, base+"/key-users", h.admin, model.KeyUsersUpdateRequest{UserIDs: []uuid.UUID{h.dev.ID}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = h.do(http.MethodPut, base+"/key-users", h.admin, model.KeyUsersUpdateRequest{UserIDs: []uuid.UUID{h.keyUser.ID, h.admin.ID, h.keyUser.ID}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []uuid.UUID{h.keyUser.ID, h.admin.ID}, decodeBody[model.Application](t, rec).KeyUserIDs)

	rec = h.do(http.MethodGet, base, h.dev, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[model.Application](t, rec)
	assert.Len(t, got.Locations, 1)
	assert.Len(t, got.KeyUserIDs, 2)
}

func TestAPI_SetKeyUsers(t *testing.T) {
	h := newAPIHarness(t)
	path := "/api/v1/applications/" + h.app.ID.String() + "/key-users"

	outsider := &model.User{
		BaseEntity: model.NewBaseEntity(),
		CompanyID:  uuid.New(),
		Email:      "ops@other.io",
		Role:       model.RoleKeyUser,
		Active:     true,
	}
	require.NoError(t, h.store.Users.Create(context.Background(), outsider))
	inactive := &model.User{
		BaseEntity: model.NewBaseEntity(),
		CompanyID:  h.company.ID,
		Email:      "gone@acme.io",
		Role:       model.RoleKeyUser,
	}
	require.NoError(t, h.store.Users.Create(context.Background(), inactive))

	rejected := []struct {
		name string
		ids  []uuid.UUID
		want string
	}{
		{"developer", []uuid.UUID{h.keyUser.ID, h.dev.ID}, "dev@acme.io"},
		{"other company", []uuid.UUID{outsider.ID}, "unknown user"},
		{"inactive", []uuid.UUID{inactive.ID}, "gone@acme.io"},
	}
	for _, tc := range rejected {
		t.Run(tc.name, func(t *testing.T) {
			rec := h.do(http.MethodPut, path, h.admin, model.KeyUsersUpdateRequest{UserIDs: tc.ids})
			require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.want)
		})
	}
	assert.Zero(t, h.apps.calls)
	app, err := h.store.Applications.GetByID(context.Background(), h.company.ID, h.app.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{h.keyUser.ID}, app.KeyUserIDs)

	rec := h.do(http.MethodPut, path, h.keyUser, model.KeyUsersUpdateRequest{UserIDs: []uuid.UUID{h.admin.ID}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodPut, path, h.admin, model.KeyUsersUpdateRequest{UserIDs: []uuid.UUID{h.admin.ID, h.keyUser.ID}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, h.apps.calls)
	assert.True(t, h.apps.inTx)
	assert.Equal(t, []uuid.UUID{h.admin.ID, h.keyUser.ID}, decodeBody[model.Application](t, rec).KeyUserIDs)
}

func TestAPI_Chat(t *testing.T) {
	h := newAPIHarness(t)
	session := h.bus.Subscribe(h.company.ID, h.keyUser.ID)
	defer session.Close()

	rec := h.do(http.MethodPost, "/api/v1/chat/conversations", h.dev, model.ConversationCreateRequest{
		Title:          "Failover plan",
		ParticipantIDs: []uuid.UUID{h.keyUser.ID},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	conv := decodeBody[model.ChatConversation](t, rec)
	assert.ElementsMatch(t, []uuid.UUID{h.dev.ID, h.keyUser.ID}, conv.ParticipantIDs)

	path := "/api/v1/chat/conversations/" + conv.ID.String() + "/messages"
	rec = h.do(http.MethodPost, path, h.dev, model.MessageCreateRequest{Body: "can we move it to 16:00?"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = h.do(http.MethodGet, path, h.admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodGet, path, h.keyUser, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	msgs := decodeBody[struct {
		Data []model.ChatMessage `json:"data"`
	}](t, rec)
	require.Len(t, msgs.Data, 1)
	assert.Equal(t, h.dev.ID, msgs.Data[0].SenderID)

	var kinds []string
	for len(session.Events()) > 0 {
		kinds = append(kinds, (<-session.Events()).Kind)
	}
	assert.Equal(t, []string{KindChatConversation, KindChatMessage}, kinds)

	rec = h.do(http.MethodPost, "/api/v1/chat/conversations", h.dev, model.ConversationCreateRequest{
		Title:          "Nobody",
		ParticipantIDs: []uuid.UUID{uuid.New()},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAPI_ReportCSV(t *testing.T) {
	h := newAPIHarness(t)
	h.createOutage(h.dev, 8, 10)

	from := h.day.Format("2006-01-02")
	to := h.day.AddDate(0, 0, 1).Format("2006-01-02")
	rec := h.do(http.MethodGet, "/api/v1/reports/outages.csv?from="+from+"&to="+to, h.dev, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "ioms-outages-")

	records, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, report.Header, records[0])
	assert.Equal(t, "Billing", records[1][2])
	assert.Equal(t, "Production", records[1][3])
	assert.Equal(t, "7200", records[1][10])

	rec = h.do(http.MethodGet, "/api/v1/reports/outages.csv?from="+to+"&to="+from, h.dev, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = h.do(http.MethodGet, "/api/v1/reports/outages.csv?from=yesterday", h.dev, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_Settings(t *testing.T) {
	h := newAPIHarness(t)
	hook := "https://hooks.slack.com/services/T000/B000/XXXX"

	rec := h.do(http.MethodPut, "/api/v1/settings", h.dev, model.CompanySettingsUpdate{})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodPut, "/api/v1/settings", h.admin, model.CompanySettingsUpdate{
		AlertsEnabled:   true,
		SlackWebhookURL: &hook,
		EmailRecipients: []string{"ops@acme.io"},
		Timezone:        "UTC",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "hooks.slack.com")

	rec = h.do(http.MethodGet, "/api/v1/settings", h.dev, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[struct {
		Settings model.CompanySettingsView `json:"settings"`
	}](t, rec)
	assert.True(t, got.Settings.SlackWebhookConfigured)
	assert.Equal(t, "UTC", got.Settings.Timezone)

	stored, err := h.store.Companies.GetByID(context.Background(), h.company.ID)
	require.NoError(t, err)
	plain, err := h.box.OpenString(stored.Settings.SlackWebhookEnc, h.company.ID.String())
	require.NoError(t, err)
	assert.Equal(t, hook, plain)

	rec = h.do(http.MethodPut, "/api/v1/settings", h.admin, model.CompanySettingsUpdate{ConflictPolicy: "strict"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAPI_LogoutClosesRealtimeSessions(t *testing.T) {
	h := newAPIHarness(t)
	session := h.bus.Subscribe(h.company.ID, h.dev.ID)

	rec := h.do(http.MethodPost, "/api/v1/auth/logout", h.dev, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	_, open := <-session.Events()
	assert.False(t, open)
	assert.Equal(t, 0, h.bus.Len())
}

func TestRateLimiter(t *testing.T) {
	l := NewRateLimiter(1, 2)
	now := time.Date(2025, 7, 24, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"))

	now = now.Add(time.Second)
	assert.True(t, l.Allow("10.0.0.1"))

	now = now.Add(time.Hour)
	assert.Equal(t, 2, l.Sweep())

	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.3:5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
}
