package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Company represents a tenant. Every query is scoped by company.
type Company struct {
	BaseEntity
	Name     string          `json:"name" db:"name"`
	Settings CompanySettings `json:"settings" db:"settings"`
}

// CompanySettings holds company-level notification and scheduling settings.
// SlackWebhookEnc is AES-GCM ciphertext (base64) and never leaves the server.
type CompanySettings struct {
	Timezone        string   `json:"timezone"`
	AlertsEnabled   bool     `json:"alerts_enabled"`
	SlackWebhookEnc string   `json:"slack_webhook_enc,omitempty"`
	TelegramChatID  int64    `json:"telegram_chat_id,omitempty"`
	EmailRecipients []string `json:"email_recipients,omitempty"`
	ConflictPolicy  string   `json:"conflict_policy,omitempty"`
}

// Value implements driver.Valuer so settings persist as JSONB.
func (s CompanySettings) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner for the JSONB settings column.
func (s *CompanySettings) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = CompanySettings{}
		return nil
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("company settings: unsupported type %T", src)
	}
}

// CompanySettingsView is the API representation of the settings.
type CompanySettingsView struct {
	Timezone               string   `json:"timezone"`
	AlertsEnabled          bool     `json:"alerts_enabled"`
	SlackWebhookConfigured bool     `json:"slack_webhook_configured"`
	TelegramChatID         int64    `json:"telegram_chat_id,omitempty"`
	EmailRecipients        []string `json:"email_recipients"`
	ConflictPolicy         string   `json:"conflict_policy,omitempty"`
}

// View hides secrets from the settings.
func (s CompanySettings) View() CompanySettingsView {
	recipients := s.EmailRecipients
	if recipients == nil {
		recipients = []string{}
	}
	return CompanySettingsView{
		Timezone:               s.Timezone,
		AlertsEnabled:          s.AlertsEnabled,
		SlackWebhookConfigured: s.SlackWebhookEnc != "",
		TelegramChatID:         s.TelegramChatID,
		EmailRecipients:        recipients,
		ConflictPolicy:         s.ConflictPolicy,
	}
}

// CompanySettingsUpdate is the payload for PUT /settings. A nil SlackWebhookURL
// leaves the stored webhook untouched; an empty string clears it.
type CompanySettingsUpdate struct {
	Timezone        string   `json:"timezone" validate:"omitempty,timezone"`
	AlertsEnabled   bool     `json:"alerts_enabled"`
	SlackWebhookURL *string  `json:"slack_webhook_url,omitempty" validate:"omitempty,url"`
	TelegramChatID  int64    `json:"telegram_chat_id"`
	EmailRecipients []string `json:"email_recipients" validate:"omitempty,dive,email"`
	ConflictPolicy  string   `json:"conflict_policy" validate:"omitempty,oneof=advisory blocking"`
}
