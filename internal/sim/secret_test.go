package sim

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretVerifier(t *testing.T) {
	verifier := NewSecretVerifier()

	t.Run("hash and verify round trip", func(t *testing.T) {
		hash, err := verifier.Hash("secret")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "$argon2id$"))

		ok, err := verifier.Verify("secret", hash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("wrong secret is rejected", func(t *testing.T) {
		hash, err := verifier.Hash("secret")
		require.NoError(t, err)

		ok, err := verifier.Verify("not-the-secret", hash)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("same secret hashes to different strings", func(t *testing.T) {
		first, err := verifier.Hash("secret")
		require.NoError(t, err)
		second, err := verifier.Hash("secret")
		require.NoError(t, err)

		assert.NotEqual(t, first, second)
	})

	t.Run("malformed hash is an error", func(t *testing.T) {
		_, err := verifier.Verify("secret", "$argon2id$garbage")
		assert.Error(t, err)
	})
}
