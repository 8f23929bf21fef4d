package jwtx_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/notesauth/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestKeyringRoundTrip(t *testing.T) {
	t.Parallel()

	k, err := jwtx.NewKeyring("current-secret")
	require.NoError(t, err)

	token, err := k.Sign("session-123", time.Now())
	require.NoError(t, err)

	claims, err := k.Parse(token)
	require.NoError(t, err)
	require.Equal(t, "session-123", claims.SID)
}

func TestKeyringRotation(t *testing.T) {
	t.Parallel()

	old, err := jwtx.NewKeyring("old-secret")
	require.NoError(t, err)
	token, err := old.Sign("session-abc", time.Now())
	require.NoError(t, err)

	t.Run("older secret still verifies", func(t *testing.T) {
		rotated, err := jwtx.NewKeyring("new-secret", "old-secret")
		require.NoError(t, err)

		claims, err := rotated.Parse(token)
		require.NoError(t, err)
		require.Equal(t, "session-abc", claims.SID)

		// New tokens are signed with the newest secret only.
		fresh, err := rotated.Sign("session-def", time.Now())
		require.NoError(t, err)
		_, err = old.Parse(fresh)
		require.ErrorIs(t, err, jwtx.ErrInvalidToken)
	})

	t.Run("retired secret rejected", func(t *testing.T) {
		retired, err := jwtx.NewKeyring("new-secret")
		require.NoError(t, err)

		_, err = retired.Parse(token)
		require.ErrorIs(t, err, jwtx.ErrInvalidToken)
	})
}

func TestKeyringRejects(t *testing.T) {
	t.Parallel()

	k, err := jwtx.NewKeyring("secret")
	require.NoError(t, err)

	t.Run("garbage", func(t *testing.T) {
		_, err := k.Parse("not-a-token")
		require.ErrorIs(t, err, jwtx.ErrInvalidToken)
		_, err = k.Parse("")
		require.ErrorIs(t, err, jwtx.ErrInvalidToken)
	})

	t.Run("none algorithm", func(t *testing.T) {
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwtx.Claims{SID: "x"}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = k.Parse(unsigned)
		require.ErrorIs(t, err, jwtx.ErrInvalidToken)
	})

	t.Run("missing session id", func(t *testing.T) {
		token, err := k.Sign("", time.Now())
		require.NoError(t, err)
		_, err = k.Parse(token)
		require.ErrorIs(t, err, jwtx.ErrInvalidToken)
	})
}

func TestNewKeyringRequiresSecret(t *testing.T) {
	t.Parallel()

	_, err := jwtx.NewKeyring()
	require.ErrorIs(t, err, jwtx.ErrNoSecrets)

	_, err = jwtx.NewKeyring("", "  ")
	require.ErrorIs(t, err, jwtx.ErrNoSecrets)
}
