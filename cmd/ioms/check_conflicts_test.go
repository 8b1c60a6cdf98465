package main

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConflictRequest(t *testing.T) {
	app, env, loc := uuid.New(), uuid.New(), uuid.New()
	checkFlags.application = app.String()
	checkFlags.envs = []string{env.String()}
	checkFlags.location = loc.String()
	checkFlags.exclude = ""
	checkFlags.from = "2026-05-01T15:00:00Z"
	checkFlags.to = "2026-05-01T17:00:00Z"
	checkFlags.criticality = "1 (highest)"
	t.Cleanup(func() { checkFlags.envs, checkFlags.location = nil, "" })

	req, err := conflictRequest()
	require.NoError(t, err)

	assert.Equal(t, app, req.ApplicationID)
	assert.Equal(t, []uuid.UUID{env}, req.EnvironmentIDs)
	require.NotNil(t, req.LocationID)
	assert.Equal(t, loc, *req.LocationID)
	assert.Nil(t, req.ExcludeOutageID)
	assert.Equal(t, time.Date(2026, 5, 1, 15, 0, 0, 0, time.UTC), req.ScheduledStart.UTC())
	assert.Equal(t, "1 (highest)", req.Criticality)

	checkFlags.to = "tomorrow"
	_, err = conflictRequest()
	assert.ErrorContains(t, err, "--to")

	checkFlags.envs = []string{"not-a-uuid"}
	_, err = conflictRequest()
	assert.ErrorContains(t, err, "--env")
}
