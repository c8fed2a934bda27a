package secrets

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKeyHex = strings.Repeat("ab", 32)

func TestKeyFromHex(t *testing.T) {
	key, err := KeyFromHex(testKeyHex)
	require.NoError(t, err)
	assert.Len(t, key, 32)

	_, err = KeyFromHex("not-hex")
	assert.Error(t, err)

	_, err = KeyFromHex(hex.EncodeToString([]byte("short")))
	assert.Error(t, err)
}

func TestSealOpenRoundtrip(t *testing.T) {
	key, err := KeyFromHex(testKeyHex)
	require.NoError(t, err)

	sealed, err := Seal(key, "access-sandbox-12345")
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "access-sandbox", "plaintext must not appear in the sealed value")

	opened, err := Open(key, sealed)
	require.NoError(t, err)
	assert.Equal(t, "access-sandbox-12345", opened)

	// each seal uses a fresh nonce
	sealed2, err := Seal(key, "access-sandbox-12345")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, sealed2)
}

func TestOpenRejectsTampering(t *testing.T) {
	key, err := KeyFromHex(testKeyHex)
	require.NoError(t, err)
	sealed, err := Seal(key, "token")
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0xff
	_, err = Open(key, sealed)
	assert.Error(t, err)

	_, err = Open(key, []byte("short"))
	assert.Error(t, err)

	otherKey, err := KeyFromHex(strings.Repeat("cd", 32))
	require.NoError(t, err)
	good, err := Seal(key, "token")
	require.NoError(t, err)
	_, err = Open(otherKey, good)
	assert.Error(t, err)
}
