package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePIN_LengthAndDigits(t *testing.T) {
	for _, length := range []int{4, 6, 8} {
		pin, err := GeneratePIN(length)
		require.NoError(t, err)
		assert.Len(t, pin, length)
		for _, c := range pin {
			assert.True(t, c >= '0' && c <= '9', "unexpected character %q in pin %q", c, pin)
		}
	}
}

func TestHashVerifyRoundtrip(t *testing.T) {
	const pin = "482913"

	hash, err := HashPIN(pin)
	require.NoError(t, err)
	assert.NotEqual(t, pin, hash)

	assert.True(t, VerifyPIN(pin, hash))
	assert.False(t, VerifyPIN("482914", hash))
	assert.False(t, VerifyPIN(pin, "not-a-hash"))
}
