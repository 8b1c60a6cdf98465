package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ioms/backend/internal/model"
)

func TestStruct(t *testing.T) {
	assert.Nil(t, Struct(model.UserCreateRequest{
		Email: "dev@acme.io", Password: "longenough", FirstName: "A", LastName: "B", Role: "DEV",
	}))

	fields := Struct(model.UserCreateRequest{Email: "nope", Password: "short"})
	assert.Equal(t, "must be a valid email address", fields["email"])
	assert.Equal(t, "must have at least 8", fields["password"])
	assert.Equal(t, "is required", fields["first_name"])
}

func TestStruct_NestedSlices(t *testing.T) {
	fields := Struct(model.CompanySettingsUpdate{
		EmailRecipients: []string{"ok@acme.io", "broken"},
		ConflictPolicy:  "strict",
	})
	assert.Contains(t, fields, "email_recipients[1]")
	assert.Equal(t, "must be one of: advisory blocking", fields["conflict_policy"])
}
