// Package notification delivers outage lifecycle events: one in-app
// notification per recipient, external channels, the event log and the
// realtime hub.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/ioms/backend/internal/model"
)

// Channel represents a notification delivery channel.
type Channel string

const (
	ChannelSlack    Channel = "slack"
	ChannelEmail    Channel = "email"
	ChannelWebhook  Channel = "webhook"
	ChannelTelegram Channel = "telegram"
)

// Message represents a notification message.
type Message struct {
	Type      model.NotificationType `json:"type"`
	Title     string                 `json:"title"`
	Body      string                 `json:"body"`
	Severity  string                 `json:"severity,omitempty"`
	Data      map[string]any         `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Config holds notification service configuration.
type Config struct {
	SlackWebhookURL string
	EmailSMTPHost   string
	EmailSMTPPort   int
	EmailFrom       string
	EmailPassword   string
	EmailRecipients []string
	WebhookURLs     []string
}

// Target overrides the configured destinations for one company. Empty
// fields fall back to Config.
type Target struct {
	SlackWebhookURL string
	TelegramChatID  int64
	EmailRecipients []string
}

// TelegramSender posts a plain text message to a chat.
type TelegramSender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// Service manages notification delivery across channels.
type Service struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
	telegram   TelegramSender
	sendMail   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewService creates a new notification service. telegram may be nil.
func NewService(cfg Config, telegram TelegramSender, logger *slog.Logger) *Service {
	return &Service{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		telegram:   telegram,
		sendMail:   smtp.SendMail,
	}
}

// Channels returns the channels that would be used for target.
func (s *Service) Channels(target Target) []Channel {
	var chs []Channel
	if target.SlackWebhookURL != "" || s.cfg.SlackWebhookURL != "" {
		chs = append(chs, ChannelSlack)
	}
	if s.cfg.EmailSMTPHost != "" {
		chs = append(chs, ChannelEmail)
	}
	if len(s.cfg.WebhookURLs) > 0 {
		chs = append(chs, ChannelWebhook)
	}
	if s.telegram != nil && target.TelegramChatID != 0 {
		chs = append(chs, ChannelTelegram)
	}
	return chs
}

// Send delivers msg to every channel configured for target. It returns a
// combined error and keeps going after a channel fails.
func (s *Service) Send(ctx context.Context, target Target, msg Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	var errs []string

	for _, ch := range s.Channels(target) {
		err := s.SendToChannel(ctx, ch, target, msg)
		if err != nil {
			s.logger.Error("notification send failed", "channel", ch, "type", msg.Type, "error", err)
			errs = append(errs, fmt.Sprintf("%s: %v", ch, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SendToChannel sends a notification to a specific channel.
func (s *Service) SendToChannel(ctx context.Context, ch Channel, target Target, msg Message) error {
	switch ch {
	case ChannelSlack:
		url := target.SlackWebhookURL
		if url == "" {
			url = s.cfg.SlackWebhookURL
		}
		return s.sendSlack(ctx, url, msg)
	case ChannelEmail:
		return s.sendEmail(target, msg)
	case ChannelWebhook:
		return s.sendWebhook(ctx, msg)
	case ChannelTelegram:
		if s.telegram == nil {
			return fmt.Errorf("telegram not configured")
		}
		return s.telegram.SendText(ctx, target.TelegramChatID, plainText(msg))
	default:
		return fmt.Errorf("unsupported channel: %s", ch)
	}
}

func (s *Service) sendSlack(ctx context.Context, url string, msg Message) error {
	color := "#2196F3"
	switch msg.Severity {
	case "critical":
		color = "#FF0000"
	case "high":
		color = "#FF9800"
	case "medium":
		color = "#FFC107"
	}

	payload := map[string]any{
		"attachments": []map[string]any{
			{
				"color":  color,
				"title":  msg.Title,
				"text":   msg.Body,
				"footer": "IOMS",
				"ts":     msg.Timestamp.Unix(),
				"fields": buildSlackFields(msg.Data),
			},
		},
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("slack request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}
	return nil
}

func (s *Service) sendEmail(target Target, msg Message) error {
	if s.cfg.EmailSMTPHost == "" {
		return fmt.Errorf("email SMTP not configured")
	}

	subject := fmt.Sprintf("[IOMS] %s", msg.Title)
	body := fmt.Sprintf("Subject: %s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s\r\n\r\nEvent: %s\r\nTime: %s",
		subject, msg.Body, msg.Type, msg.Timestamp.Format(time.RFC3339))

	addr := fmt.Sprintf("%s:%d", s.cfg.EmailSMTPHost, s.cfg.EmailSMTPPort)

	var auth smtp.Auth
	if s.cfg.EmailPassword != "" {
		auth = smtp.PlainAuth("", s.cfg.EmailFrom, s.cfg.EmailPassword, s.cfg.EmailSMTPHost)
	}

	// company recipients win over the global list, which falls back to the sender
	recipients := target.EmailRecipients
	if len(recipients) == 0 {
		recipients = s.cfg.EmailRecipients
	}
	if len(recipients) == 0 {
		recipients = []string{s.cfg.EmailFrom}
	}

	if err := s.sendMail(addr, auth, s.cfg.EmailFrom, recipients, []byte(body)); err != nil {
		return fmt.Errorf("email send failed: %w", err)
	}
	return nil
}

func (s *Service) sendWebhook(ctx context.Context, msg Message) error {
	body, _ := json.Marshal(msg)

	var errs []string
	for _, webhookURL := range s.cfg.WebhookURLs {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-IOMS-Event", string(msg.Type))

		resp, err := s.httpClient.Do(req)
		if err != nil {
			errs = append(errs, fmt.Sprintf("webhook %s: %v", webhookURL, err))
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 300 {
			errs = append(errs, fmt.Sprintf("webhook %s: status %d", webhookURL, resp.StatusCode))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("webhook errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func buildSlackFields(data map[string]any) []map[string]any {
	var fields []map[string]any
	for k, v := range data {
		fields = append(fields, map[string]any{
			"title": k,
			"value": fmt.Sprintf("%v", v),
			"short": true,
		})
	}
	return fields
}

func plainText(msg Message) string {
	return msg.Title + "\n" + msg.Body
}
