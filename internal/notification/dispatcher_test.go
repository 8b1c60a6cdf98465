package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ioms/backend/internal/crypto"
	"github.com/ioms/backend/internal/model"
	"github.com/ioms/backend/internal/realtime"
	"github.com/ioms/backend/internal/repository/memstore"
)

type fakeTelegram struct {
	mu    sync.Mutex
	sent  map[int64][]string
	fails bool
}

func (f *fakeTelegram) SendText(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails {
		return errors.New("telegram down")
	}
	if f.sent == nil {
		f.sent = map[int64][]string{}
	}
	f.sent[chatID] = append(f.sent[chatID], text)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []model.OutageEvent
	err    error
}

func (f *fakePublisher) PublishEvent(_ context.Context, ev model.OutageEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func sampleEvent(companyID uuid.UUID, recipients ...uuid.UUID) model.OutageEvent {
	o := &model.Outage{
		BaseEntity:     model.BaseEntity{ID: uuid.New()},
		CompanyID:      companyID,
		Title:          "Kernel upgrade",
		Status:         model.OutageStatusApproved,
		Criticality:    model.CriticalityHigh,
		ScheduledStart: time.Date(2025, 7, 25, 14, 0, 0, 0, time.UTC),
		ScheduledEnd:   time.Date(2025, 7, 25, 16, 0, 0, 0, time.UTC),
	}
	ev := model.NewOutageEvent(model.NotificationOutageApproved, o, model.Actor{UserID: uuid.New(), CompanyID: companyID})
	ev.Recipients = recipients
	return ev
}

func TestDispatcher_DeliversToEverySink(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	box, err := crypto.NewBox("test-master-key")
	require.NoError(t, err)

	var slackHits atomic.Int32
	slack := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slackHits.Add(1)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusOK)
	}))
	defer slack.Close()

	company := &model.Company{BaseEntity: model.NewBaseEntity(), Name: "Acme", Settings: model.CompanySettings{
		AlertsEnabled:  true,
		TelegramChatID: -100123,
	}}
	company.Settings.SlackWebhookEnc, err = box.SealString(slack.URL, company.ID.String())
	require.NoError(t, err)
	require.NoError(t, store.Companies.Create(ctx, company))

	tg := &fakeTelegram{}
	pub := &fakePublisher{}
	bus := realtime.NewBus(8, testLogger())
	creator, keyUser := uuid.New(), uuid.New()
	session := bus.Subscribe(company.ID, creator)
	defer session.Close()

	d := NewDispatcher(DispatcherDeps{
		Store:     store.Notifications,
		Companies: store.Companies,
		Channels:  NewService(Config{}, tg, testLogger()),
		Events:    pub,
		Realtime:  realtime.Local{Bus: bus},
		Secrets:   box,
		Logger:    testLogger(),
	})

	ev := sampleEvent(company.ID, creator, keyUser)
	d.Publish(ctx, ev)
	require.NoError(t, d.Wait(ctx))

	all := store.Notifications.All()
	require.Len(t, all, 2)
	for _, n := range all {
		assert.Equal(t, model.NotificationOutageApproved, n.Type)
		assert.Equal(t, ev.Outage.ID, *n.OutageID)
		assert.False(t, n.Read)
	}

	assert.Equal(t, int32(1), slackHits.Load())
	assert.Len(t, tg.sent[-100123], 1)
	assert.Len(t, pub.events, 1)

	// one personal notification plus the company-wide outage update
	assert.Len(t, session.Events(), 2)
}

func TestDispatcher_AlertsDisabledSkipsChannels(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	company := &model.Company{BaseEntity: model.NewBaseEntity(), Name: "Quiet", Settings: model.CompanySettings{TelegramChatID: 42}}
	require.NoError(t, store.Companies.Create(ctx, company))

	tg := &fakeTelegram{}
	d := NewDispatcher(DispatcherDeps{
		Store:     store.Notifications,
		Companies: store.Companies,
		Channels:  NewService(Config{}, tg, testLogger()),
		Logger:    testLogger(),
	})
	d.Deliver(ctx, sampleEvent(company.ID, uuid.New()))

	assert.Empty(t, tg.sent)
	assert.Len(t, store.Notifications.All(), 1)
}

func TestDispatcher_SinkFailuresAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	company := &model.Company{BaseEntity: model.NewBaseEntity(), Name: "Flaky", Settings: model.CompanySettings{AlertsEnabled: true, TelegramChatID: 7}}
	require.NoError(t, store.Companies.Create(ctx, company))

	pub := &fakePublisher{err: errors.New("broker unavailable")}
	d := NewDispatcher(DispatcherDeps{
		Store:     store.Notifications,
		Companies: store.Companies,
		Channels:  NewService(Config{}, &fakeTelegram{fails: true}, testLogger()),
		Events:    pub,
		Logger:    testLogger(),
	})
	d.Deliver(ctx, sampleEvent(company.ID, uuid.New()))

	assert.Len(t, store.Notifications.All(), 1)
	assert.Len(t, pub.events, 1)
}

func TestDispatcher_NoRecipientsStoresNothing(t *testing.T) {
	store := memstore.New()
	d := NewDispatcher(DispatcherDeps{Store: store.Notifications, Logger: testLogger()})
	d.Deliver(context.Background(), sampleEvent(uuid.New()))
	assert.Empty(t, store.Notifications.All())
}

func TestCompose(t *testing.T) {
	ev := sampleEvent(uuid.New())
	ev.Type = model.NotificationConflictDetected
	ev.Conflicts = 2
	ev.Message = "2 conflicting outage(s), highest severity high"

	msg := Compose(ev)
	assert.Equal(t, "Outage conflict detected: Kernel upgrade", msg.Title)
	assert.Equal(t, "high", msg.Severity)
	assert.Contains(t, msg.Body, "2025-07-25T14:00:00Z")
	assert.Contains(t, msg.Body, ev.Message)
	assert.Equal(t, 2, msg.Data["Conflicts"])
	assert.Equal(t, "2", msg.Data["Criticality"])
}

func TestSplitText(t *testing.T) {
	assert.Equal(t, []string{"abc"}, splitText("abc", 5))
	assert.Equal(t, []string{"ab", "cd", "e"}, splitText("abcde", 2))
}
