package apierrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ioms/backend/internal/correlation"
	"github.com/ioms/backend/internal/outage"
)

func TestFromError_DomainErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{outage.ValidateWindow(time.Time{}, time.Time{}), http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{fmt.Errorf("approve: %w", &outage.TransitionError{From: "rejected", Event: outage.EventApprove}), http.StatusConflict, "INVALID_STATE_TRANSITION"},
		{outage.ErrSoleApproverConflict, http.StatusConflict, "SOLE_APPROVER_CONFLICT"},
		{&outage.ConflictError{Result: &outage.ConflictResult{}}, http.StatusConflict, "CONFLICT_DETECTED"},
		{fmt.Errorf("outage %w", outage.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{outage.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{outage.ErrConcurrentModification, http.StatusConflict, "CONCURRENT_MODIFICATION"},
		{NewRateLimitError(), http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED"},
		{errors.New("pq: connection refused"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		got := FromError(tc.err)
		assert.Equal(t, tc.status, got.StatusCode, tc.err.Error())
		assert.Equal(t, tc.code, got.Code, tc.err.Error())
	}
}

func TestFromError_InternalMessageIsGeneric(t *testing.T) {
	got := FromError(errors.New("dial tcp 10.0.0.5:5432: secret detail"))
	assert.NotContains(t, got.Message, "10.0.0.5")
}

func TestWriteError(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/outages/x", nil)
	r = r.WithContext(correlation.NewContext(r.Context(), "req-1"))
	w := httptest.NewRecorder()

	WriteError(w, r, outage.ErrSoleApproverConflict)

	assert.Equal(t, http.StatusConflict, w.Code)
	var body APIError
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "SOLE_APPROVER_CONFLICT", body.Code)
	assert.Equal(t, "req-1", body.RequestID)
}
