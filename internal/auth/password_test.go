package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHasher_VerifyRoundTrip(t *testing.T) {
	t.Parallel()
	h := NewHasher(4)

	for _, secret := range []string{"12345678901", "s3cret", "ç-ünicode", strings.Repeat("a", MaxSecretBytes)} {
		digest, err := h.Hash(secret)
		require.NoError(t, err)
		assert.True(t, h.Verify(secret, digest), secret)
		assert.False(t, h.Verify(secret+"x", digest), secret)
	}
}

func TestHasher_LongSecretDoesNotMatchPrefix(t *testing.T) {
	t.Parallel()
	h := NewHasher(4)

	secret := strings.Repeat("a", MaxSecretBytes)
	digest, err := h.Hash(secret)
	require.NoError(t, err)

	assert.False(t, h.Verify(secret+"x", digest))
	assert.False(t, h.Verify(secret+strings.Repeat("b", 100), digest))
}

func TestHasher_VerifyMissing(t *testing.T) {
	t.Parallel()
	h := NewHasher(4)

	assert.False(t, h.VerifyMissing("12345678901"))
	assert.False(t, h.VerifyMissing("no-such-account"))
	assert.False(t, h.VerifyMissing(strings.Repeat("a", MaxSecretBytes+10)))

	cost, err := bcrypt.Cost(h.dummyDigest)
	require.NoError(t, err)
	assert.Equal(t, 4, cost)
}

func TestHasher_Salted(t *testing.T) {
	t.Parallel()
	h := NewHasher(4)

	a, err := h.Hash("same")
	require.NoError(t, err)
	b, err := h.Hash("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	// presenting the digest itself must not authenticate
	assert.False(t, h.Verify(a, a))
	assert.False(t, h.Verify("same", ""))
}

func TestHasher_TooLongSecret(t *testing.T) {
	t.Parallel()
	h := NewHasher(4)

	_, err := h.Hash(strings.Repeat("a", MaxSecretBytes+1))
	require.ErrorIs(t, err, ErrHashFailed)
	assert.NotContains(t, err.Error(), "aaaa")
}

func TestNewHasher_DefaultCost(t *testing.T) {
	t.Parallel()
	assert.Equal(t, DefaultBcryptCost, NewHasher(0).cost)
	assert.Equal(t, 12, NewHasher(12).cost)
}
