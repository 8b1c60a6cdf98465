package notification

import (
	"fmt"
	"strings"
	"time"

	"github.com/ioms/backend/internal/model"
)

var titles = map[model.NotificationType]string{
	model.NotificationOutageCreated:    "New outage request",
	model.NotificationOutageApproved:   "Outage approved",
	model.NotificationOutageRejected:   "Outage rejected",
	model.NotificationOutageCancelled:  "Outage cancelled",
	model.NotificationConflictDetected: "Outage conflict detected",
	model.NotificationReminder:         "Upcoming outage",
	model.NotificationOutageStarted:    "Outage started",
	model.NotificationOutageCompleted:  "Outage completed",
	model.NotificationComment:          "New comment on outage",
	model.NotificationOutageUpdated:    "Outage updated",
}

// channelTypes are pushed to external channels; the rest stay in-app.
var channelTypes = map[model.NotificationType]bool{
	model.NotificationOutageCreated:    true,
	model.NotificationOutageApproved:   true,
	model.NotificationOutageRejected:   true,
	model.NotificationOutageCancelled:  true,
	model.NotificationConflictDetected: true,
	model.NotificationReminder:         true,
}

func severityOf(c model.Criticality) string {
	switch c {
	case model.CriticalityCritical:
		return "critical"
	case model.CriticalityHigh:
		return "high"
	case model.CriticalityMedium:
		return "medium"
	default:
		return "low"
	}
}

// Compose renders an outage event as a channel message.
func Compose(ev model.OutageEvent) Message {
	title := titles[ev.Type]
	if title == "" {
		title = "Outage notification"
	}
	msg := Message{
		Type:      ev.Type,
		Title:     title,
		Timestamp: ev.OccurredAt,
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	o := ev.Outage
	if o == nil {
		msg.Body = ev.Message
		return msg
	}
	msg.Title = fmt.Sprintf("%s: %s", title, o.Title)
	msg.Severity = severityOf(o.Criticality)

	var b strings.Builder
	fmt.Fprintf(&b, "%q is %s, scheduled %s to %s.",
		o.Title, strings.ReplaceAll(string(o.Status), "_", " "),
		o.ScheduledStart.UTC().Format(time.RFC3339), o.ScheduledEnd.UTC().Format(time.RFC3339))
	if ev.Message != "" {
		b.WriteString(" ")
		b.WriteString(ev.Message)
	}
	msg.Body = b.String()
	msg.Data = map[string]any{
		"Outage":      o.ID.String(),
		"Status":      string(o.Status),
		"Criticality": o.Criticality.Rank(),
	}
	if ev.Conflicts > 0 {
		msg.Data["Conflicts"] = ev.Conflicts
	}
	return msg
}

// inAppMessage is the short text stored with an in-app notification.
func inAppMessage(ev model.OutageEvent) string {
	if ev.Outage == nil {
		return ev.Message
	}
	text := fmt.Sprintf("%q (%s to %s)", ev.Outage.Title,
		ev.Outage.ScheduledStart.UTC().Format(time.RFC3339), ev.Outage.ScheduledEnd.UTC().Format(time.RFC3339))
	if ev.Message != "" {
		text += ": " + ev.Message
	}
	return text
}
