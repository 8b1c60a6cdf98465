package container

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ioms/backend/internal/config"
	"github.com/ioms/backend/internal/jobs"
	"github.com/ioms/backend/internal/repository/memstore"
)

func memRepositories() Repositories {
	s := memstore.New()
	return Repositories{
		Tx:            s.Tx,
		Outages:       s.Outages,
		History:       s.History,
		Applications:  s.Applications,
		Users:         s.Users,
		Companies:     s.Companies,
		Notifications: s.Notifications,
		Chat:          s.Chat,
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:           8080,
			RequestTimeout: time.Second,
			RateLimitRPS:   10,
			RateLimitBurst: 10,
		},
		Auth:          config.AuthConfig{JWTSecret: "container-test", TokenExpiry: time.Hour},
		Outage:        config.OutageConfig{ConflictPolicy: "blocking", ReminderLead: time.Hour},
		EncryptionKey: "master",
		Jobs: config.JobsConfig{
			Enabled:               true,
			StatusAdvanceSchedule: "0 * * * * *",
			RemindersSchedule:     "0 */15 * * * *",
			ReportArchiveSchedule: "0 30 2 * * *",
			Timeout:               time.Minute,
		},
		Notification: config.NotificationConfig{RealtimeBuffer: 8, DeliveryTimeout: time.Second},
	}
}

func TestNew_WiresRouterAndJobs(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	c, err := New(t.Context(), testConfig(), logger, memRepositories())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	c.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	c.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/outages", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// No bucket configured, so report-archive stays unregistered.
	names := []string{}
	for _, j := range c.Scheduler().ListJobs() {
		names = append(names, j.Name)
	}
	assert.Equal(t, []string{jobs.Reminders, jobs.StatusAdvance}, names)

	require.NoError(t, c.Stop(t.Context()))
	assert.Equal(t, 0, c.Bus().Len())
}

func TestNew_JobsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Jobs.Enabled = false
	c, err := New(t.Context(), cfg, slog.New(slog.NewJSONHandler(io.Discard, nil)), memRepositories())
	require.NoError(t, err)
	assert.Nil(t, c.Scheduler())
	require.NoError(t, c.Stop(t.Context()))
}

func TestNew_RejectsEmptySecret(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.JWTSecret = ""
	_, err := New(t.Context(), cfg, slog.New(slog.NewJSONHandler(io.Discard, nil)), memRepositories())
	assert.Error(t, err)
}
