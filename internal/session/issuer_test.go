package session

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verigate/internal/user"
	dErrors "verigate/pkg/domain-errors"
)

func testConfig() Config {
	return Config{
		SigningKey:    "unit-test-signing-key",
		Issuer:        "verigate",
		Audience:      "verigate-clients",
		AccessExpiry:  "24h",
		RefreshExpiry: "30d",
	}
}

func testUser() user.User {
	return user.User{
		ID:          uuid.New(),
		Email:       "alice@example.com",
		Name:        "Alice Smith",
		Role:        "employee",
		AccessLevel: 2,
		Department:  "engineering",
		Active:      true,
	}
}

func TestIssuerIssueAndVerify(t *testing.T) {
	issuer := New(testConfig())
	u := testUser()

	pair, err := issuer.Issue(u)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, int64((24 * time.Hour).Seconds()), pair.ExpiresIn)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	claims, err := issuer.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)
	assert.Equal(t, u.Email, claims.Email)
	assert.Equal(t, u.Role, claims.Role)
	assert.Equal(t, u.AccessLevel, claims.AccessLevel)
	assert.Equal(t, u.Name, claims.Name)
	assert.Equal(t, u.Department, claims.Department)
}

func TestIssuerVerifyAccess(t *testing.T) {
	issuer := New(testConfig())
	u := testUser()

	t.Run("expired token is reported as expired", func(t *testing.T) {
		past := New(testConfig())
		past.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }

		pair, err := past.Issue(u)
		require.NoError(t, err)

		_, err = issuer.VerifyAccess(pair.AccessToken)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeExpired))
	})

	t.Run("token signed with another key is invalid", func(t *testing.T) {
		other := New(Config{
			SigningKey: "a-different-key",
			Issuer:     "verigate",
			Audience:   "verigate-clients",
		})
		pair, err := other.Issue(u)
		require.NoError(t, err)

		_, err = issuer.VerifyAccess(pair.AccessToken)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("garbage is invalid, not expired", func(t *testing.T) {
		_, err := issuer.VerifyAccess("not.a.token")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
		assert.False(t, dErrors.HasCode(err, dErrors.CodeExpired))
	})

	t.Run("refresh token is not an access token", func(t *testing.T) {
		pair, err := issuer.Issue(u)
		require.NoError(t, err)

		// Refresh tokens carry no audience claim.
		_, err = issuer.VerifyAccess(pair.RefreshToken)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func TestIssuerRefresh(t *testing.T) {
	issuer := New(testConfig())
	u := testUser()

	pair, err := issuer.Issue(u)
	require.NoError(t, err)

	t.Run("issues a new access token", func(t *testing.T) {
		res, err := issuer.Refresh(pair.RefreshToken, u)
		require.NoError(t, err)
		assert.Equal(t, "Bearer", res.TokenType)

		claims, err := issuer.VerifyAccess(res.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, u.ID, claims.UserID)
	})

	t.Run("rejects an access token in place of a refresh token", func(t *testing.T) {
		_, err := issuer.Refresh(pair.AccessToken, u)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("rejects a refresh token bound to another user", func(t *testing.T) {
		other := testUser()
		_, err := issuer.Refresh(pair.RefreshToken, other)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("expired refresh token is reported as expired", func(t *testing.T) {
		past := New(testConfig())
		past.now = func() time.Time { return time.Now().Add(-31 * 24 * time.Hour) }

		stale, err := past.Issue(u)
		require.NoError(t, err)

		_, err = issuer.Refresh(stale.RefreshToken, u)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeExpired))
	})
}

func TestParseExpiry(t *testing.T) {
	fallback := 15 * time.Minute

	tests := []struct {
		in   string
		want time.Duration
	}{
		{"30s", 30 * time.Second},
		{"15m", 15 * time.Minute},
		{"24h", 24 * time.Hour},
		{"30d", 30 * 24 * time.Hour},
		{"1d", 24 * time.Hour},
		{"", fallback},
		{"x7", fallback},
		{"24", fallback},
		{"h", fallback},
		{"-5m", fallback},
		{"0h", fallback},
		{"24w", fallback},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ParseExpiry(tc.in, fallback), "input %q", tc.in)
	}
}
