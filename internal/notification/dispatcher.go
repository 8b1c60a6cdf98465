package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ioms/backend/internal/correlation"
	"github.com/ioms/backend/internal/crypto"
	"github.com/ioms/backend/internal/metrics"
	"github.com/ioms/backend/internal/model"
	"github.com/ioms/backend/internal/realtime"
	"github.com/ioms/backend/internal/repository"
)

// EventPublisher appends lifecycle events to an external log.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev model.OutageEvent) error
}

// DispatcherDeps groups the sinks of a Dispatcher. Only Store is required.
type DispatcherDeps struct {
	Store     repository.NotificationRepository
	Companies repository.CompanyRepository
	Channels  *Service
	Events    EventPublisher
	Realtime  realtime.Broadcaster
	// Secrets opens the per-company Slack webhook.
	Secrets *crypto.Box
	Timeout time.Duration
	Logger  *slog.Logger
}

// Dispatcher fans committed outage events out to every sink. Publish never
// blocks the caller; failures are logged and counted.
type Dispatcher struct {
	store     repository.NotificationRepository
	companies repository.CompanyRepository
	channels  *Service
	events    EventPublisher
	realtime  realtime.Broadcaster
	secrets   *crypto.Box
	timeout   time.Duration
	logger    *slog.Logger
	wg        sync.WaitGroup
}

func NewDispatcher(d DispatcherDeps) *Dispatcher {
	if d.Timeout <= 0 {
		d.Timeout = 30 * time.Second
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Dispatcher{
		store:     d.Store,
		companies: d.Companies,
		channels:  d.Channels,
		events:    d.Events,
		realtime:  d.Realtime,
		secrets:   d.Secrets,
		timeout:   d.Timeout,
		logger:    d.Logger.With(slog.String("op", "notification.Dispatcher")),
	}
}

// Publish delivers ev in the background. Delivery outlives the caller's
// cancellation but keeps its values, such as the correlation id.
func (d *Dispatcher) Publish(ctx context.Context, ev model.OutageEvent) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		d.Deliver(ctx, ev)
	}()
}

// Wait blocks until pending deliveries finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Deliver runs every sink synchronously.
func (d *Dispatcher) Deliver(ctx context.Context, ev model.OutageEvent) {
	notifications := d.storeInApp(ctx, ev)
	d.pushRealtime(ctx, ev, notifications)
	d.sendChannels(ctx, ev)
	d.publishEvent(ctx, ev)
}

func (d *Dispatcher) storeInApp(ctx context.Context, ev model.OutageEvent) []*model.Notification {
	if len(ev.Recipients) == 0 {
		return nil
	}
	title := titles[ev.Type]
	if ev.Outage != nil {
		title = fmt.Sprintf("%s: %s", title, ev.Outage.Title)
	}
	text := inAppMessage(ev)

	out := make([]*model.Notification, 0, len(ev.Recipients))
	for _, userID := range ev.Recipients {
		n := &model.Notification{
			ID:        uuid.New(),
			CompanyID: ev.CompanyID,
			UserID:    userID,
			Type:      ev.Type,
			Title:     title,
			Message:   text,
			CreatedAt: ev.OccurredAt,
		}
		if ev.Outage != nil {
			id := ev.Outage.ID
			n.OutageID = &id
		}
		out = append(out, n)
	}
	if err := d.store.CreateBatch(ctx, out); err != nil {
		d.fail(ctx, "inapp", ev, err)
		return nil
	}
	metrics.NotificationDeliveries.WithLabelValues("inapp", "ok").Add(float64(len(out)))
	return out
}

func (d *Dispatcher) pushRealtime(ctx context.Context, ev model.OutageEvent, notifications []*model.Notification) {
	if d.realtime == nil {
		return
	}
	for _, n := range notifications {
		err := d.realtime.Broadcast(ctx, model.BusEvent{
			Kind:      "notification",
			CompanyID: n.CompanyID,
			UserIDs:   []uuid.UUID{n.UserID},
			Payload:   n,
			At:        n.CreatedAt,
		})
		if err != nil {
			d.fail(ctx, "realtime", ev, err)
			return
		}
	}
	if ev.Outage != nil {
		err := d.realtime.Broadcast(ctx, model.BusEvent{
			Kind:      "outage." + string(ev.Type),
			CompanyID: ev.CompanyID,
			Payload:   ev.Outage,
			At:        ev.OccurredAt,
		})
		if err != nil {
			d.fail(ctx, "realtime", ev, err)
			return
		}
	}
	metrics.NotificationDeliveries.WithLabelValues("realtime", "ok").Inc()
}

func (d *Dispatcher) sendChannels(ctx context.Context, ev model.OutageEvent) {
	if d.channels == nil || !channelTypes[ev.Type] {
		return
	}
	target, enabled := d.targetFor(ctx, ev.CompanyID)
	if !enabled {
		metrics.NotificationDeliveries.WithLabelValues("channels", "dropped").Inc()
		return
	}
	if len(d.channels.Channels(target)) == 0 {
		return
	}
	if err := d.channels.Send(ctx, target, Compose(ev)); err != nil {
		d.fail(ctx, "channels", ev, err)
		return
	}
	metrics.NotificationDeliveries.WithLabelValues("channels", "ok").Inc()
}

// targetFor reads the company's channel settings. Companies without
// settings use the global configuration.
func (d *Dispatcher) targetFor(ctx context.Context, companyID uuid.UUID) (Target, bool) {
	if d.companies == nil {
		return Target{}, true
	}
	c, err := d.companies.GetByID(ctx, companyID)
	if err != nil {
		d.logger.Warn("failed to load company settings", "company_id", companyID, "error", err)
		return Target{}, true
	}
	if !c.Settings.AlertsEnabled {
		return Target{}, false
	}
	t := Target{
		TelegramChatID:  c.Settings.TelegramChatID,
		EmailRecipients: c.Settings.EmailRecipients,
	}
	if c.Settings.SlackWebhookEnc != "" && d.secrets != nil {
		url, err := d.secrets.OpenString(c.Settings.SlackWebhookEnc, c.ID.String())
		if err != nil {
			d.logger.Warn("failed to decrypt slack webhook", "company_id", companyID, "error", err)
		} else {
			t.SlackWebhookURL = url
		}
	}
	return t, true
}

func (d *Dispatcher) publishEvent(ctx context.Context, ev model.OutageEvent) {
	if d.events == nil {
		return
	}
	if err := d.events.PublishEvent(ctx, ev); err != nil {
		d.fail(ctx, "kafka", ev, err)
		return
	}
	metrics.NotificationDeliveries.WithLabelValues("kafka", "ok").Inc()
}

func (d *Dispatcher) fail(ctx context.Context, sink string, ev model.OutageEvent, err error) {
	metrics.NotificationDeliveries.WithLabelValues(sink, "error").Inc()
	d.logger.Error("notification delivery failed",
		correlation.Attr(ctx),
		"sink", sink,
		"type", ev.Type,
		"company_id", ev.CompanyID,
		"event_id", ev.ID,
		"error", err,
	)
}
