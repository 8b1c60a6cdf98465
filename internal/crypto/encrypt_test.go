package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBox_RoundTrip(t *testing.T) {
	box, err := NewBox("master")
	require.NoError(t, err)

	enc, err := box.SealString("https://hooks.slack.com/services/x", "company-a")
	require.NoError(t, err)
	assert.NotContains(t, enc, "hooks.slack.com")

	plain, err := box.OpenString(enc, "company-a")
	require.NoError(t, err)
	assert.Equal(t, "https://hooks.slack.com/services/x", plain)

	again, err := box.SealString("https://hooks.slack.com/services/x", "company-a")
	require.NoError(t, err)
	assert.NotEqual(t, enc, again, "nonce must differ per seal")
}

func TestBox_RejectsWrongKeyBindingOrTampering(t *testing.T) {
	box, err := NewBox("master")
	require.NoError(t, err)
	other, err := NewBox("other")
	require.NoError(t, err)

	sealed, err := box.Seal([]byte("secret"), "company-a")
	require.NoError(t, err)

	_, err = other.Open(sealed, "company-a")
	assert.ErrorIs(t, err, ErrOpen)

	_, err = box.Open(sealed, "company-b")
	assert.ErrorIs(t, err, ErrOpen)

	sealed[len(sealed)-1] ^= 0xff
	_, err = box.Open(sealed, "company-a")
	assert.ErrorIs(t, err, ErrOpen)

	_, err = box.Open([]byte{1, 2}, "company-a")
	assert.ErrorIs(t, err, ErrOpen)

	_, err = box.OpenString("%%%", "company-a")
	assert.ErrorIs(t, err, ErrOpen)
}

func TestNewBox_EmptyKey(t *testing.T) {
	_, err := NewBox("")
	assert.Error(t, err)
}
