package manager

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenManagerGenerateAndValidate(t *testing.T) {
	tm := NewTokenManager()

	jt, err := tm.GenerateToken("agent", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, jt.Token)

	role, err := tm.ValidateToken(jt.Token)
	require.NoError(t, err)
	require.Equal(t, "agent", role)
}

func TestTokenManagerExpiredToken(t *testing.T) {
	tm := NewTokenManager()

	jt, err := tm.GenerateToken("agent", -time.Minute)
	require.NoError(t, err)

	_, err = tm.ValidateToken(jt.Token)
	require.Error(t, err)
}

func TestTokenManagerRevoke(t *testing.T) {
	tm := NewTokenManager()

	jt, err := tm.GenerateToken("agent", time.Hour)
	require.NoError(t, err)

	tm.RevokeToken(jt.Token)
	_, err = tm.ValidateToken(jt.Token)
	require.Error(t, err)
}

func TestTokenManagerCleanupExpired(t *testing.T) {
	tm := NewTokenManager()

	_, err := tm.GenerateToken("agent", -time.Minute)
	require.NoError(t, err)
	_, err = tm.GenerateToken("agent", time.Hour)
	require.NoError(t, err)

	tm.CleanupExpiredTokens()
	require.Len(t, tm.ListTokens(), 1)
}
