package security

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(fill byte) string {
	return base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{fill}, keySize))
}

func TestBox_RoundTrip(t *testing.T) {
	box, err := NewBox(testKey(7))
	require.NoError(t, err)

	sealed, err := box.Seal("123456:ABC-bot-token")
	require.NoError(t, err)
	assert.True(t, IsSealed(sealed))
	assert.NotContains(t, sealed, "ABC-bot-token")

	again, err := box.Seal("123456:ABC-bot-token")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ per seal")

	plain, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "123456:ABC-bot-token", plain)
}

func TestBox_EmptyAndPlainValues(t *testing.T) {
	box, err := NewBox(testKey(1))
	require.NoError(t, err)

	sealed, err := box.Seal("")
	require.NoError(t, err)
	assert.Equal(t, "", sealed)

	plain, err := box.Open("legacy-plain-token")
	require.NoError(t, err)
	assert.Equal(t, "legacy-plain-token", plain)
}

func TestBox_NilPassesThrough(t *testing.T) {
	box, err := NewBox("")
	require.NoError(t, err)
	assert.Nil(t, box)

	sealed, err := box.Seal("token")
	require.NoError(t, err)
	assert.Equal(t, "token", sealed)

	_, err = box.Open(sealedPrefix + "AAAA")
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestBox_WrongKeyAndTampering(t *testing.T) {
	box, err := NewBox(testKey(1))
	require.NoError(t, err)
	other, err := NewBox(testKey(2))
	require.NoError(t, err)

	sealed, err := box.Seal("token")
	require.NoError(t, err)

	_, err = other.Open(sealed)
	assert.ErrorIs(t, err, ErrInvalidSealed)

	_, err = box.Open(sealedPrefix + "not base64!")
	assert.ErrorIs(t, err, ErrInvalidSealed)

	_, err = box.Open(sealedPrefix + base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, ErrInvalidSealed)
}

func TestNewBox_InvalidKey(t *testing.T) {
	_, err := NewBox("c2hvcnQ=")
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = NewBox("%%%")
	assert.ErrorIs(t, err, ErrInvalidKey)
}
