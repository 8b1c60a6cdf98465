package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCriticality(t *testing.T) {
	cases := map[string]Criticality{
		"LOW":         CriticalityLow,
		"medium":      CriticalityMedium,
		" High ":      CriticalityHigh,
		"CRITICAL":    CriticalityCritical,
		"1 (highest)": CriticalityCritical,
		"2":           CriticalityHigh,
		"3":           CriticalityMedium,
		"4":           CriticalityLow,
		"5 (lowest)":  CriticalityLow,
	}
	for in, want := range cases {
		got, ok := ParseCriticality(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "urgent", "0", "6"} {
		got, ok := ParseCriticality(in)
		assert.False(t, ok, in)
		assert.Equal(t, DefaultCriticality, got, in)
	}
}

func TestCriticalityRank(t *testing.T) {
	assert.Equal(t, "1 (highest)", CriticalityCritical.Rank())
	assert.Equal(t, "5 (lowest)", CriticalityLow.Rank())
	assert.Equal(t, "5 (lowest)", Criticality("bogus").Rank())

	for _, c := range []Criticality{CriticalityLow, CriticalityMedium, CriticalityHigh, CriticalityCritical} {
		back, ok := ParseCriticality(c.Rank())
		require.True(t, ok)
		assert.Equal(t, c, back)
	}
}

func TestParseRole(t *testing.T) {
	for in, want := range map[string]Role{
		"ADMIN":    RoleAdmin,
		"admin":    RoleAdmin,
		"Dev":      RoleDev,
		"key_user": RoleKeyUser,
		"KEY-USER": RoleKeyUser,
	} {
		got, ok := ParseRole(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseRole("root")
	assert.False(t, ok)

	assert.Equal(t, "key_user", RoleKeyUser.ClientString())
	assert.True(t, RoleAdmin.CanApprove())
	assert.False(t, RoleDev.CanApprove())
}

func TestOutageStatusBlocking(t *testing.T) {
	assert.True(t, OutageStatusPending.Blocking())
	assert.True(t, OutageStatusInProgress.Blocking())
	assert.False(t, OutageStatusRejected.Blocking())
	assert.False(t, OutageStatusCancelled.Blocking())
}

func TestCompanySettingsScan(t *testing.T) {
	var s CompanySettings
	require.NoError(t, s.Scan([]byte(`{"timezone":"UTC","conflict_policy":"blocking","slack_webhook_enc":"xyz"}`)))
	assert.Equal(t, "blocking", s.ConflictPolicy)

	v := s.View()
	assert.True(t, v.SlackWebhookConfigured)
	assert.NotNil(t, v.EmailRecipients)

	assert.Error(t, s.Scan(42))
}
