package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testSigningKey() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func TestIssueAndValidateUserToken(t *testing.T) {
	tm, err := NewTokenManager(testSigningKey(), "vcp-controller")
	require.NoError(t, err)

	token, err := tm.IssueUserToken("user-1", "alice", []string{"role-admin"})
	require.NoError(t, err)

	claims, err := tm.ValidateUserToken(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "alice", claims.Username)
	require.Equal(t, []string{"role-admin"}, claims.RoleIDs)
}

func TestIssueAndValidateNodeToken(t *testing.T) {
	tm, err := NewTokenManager(testSigningKey(), "vcp-controller")
	require.NoError(t, err)

	token, err := tm.IssueNodeToken("node-1")
	require.NoError(t, err)

	claims, err := tm.ValidateNodeToken(token)
	require.NoError(t, err)
	require.Equal(t, "node-1", claims.NodeID)
}

func TestValidateUserTokenRejectsTampering(t *testing.T) {
	tm, err := NewTokenManager(testSigningKey(), "vcp-controller")
	require.NoError(t, err)

	token, err := tm.IssueUserToken("user-1", "alice", nil)
	require.NoError(t, err)

	_, err = tm.ValidateUserToken(token + "x")
	require.Error(t, err)
}

func TestNewTokenManagerRejectsShortKey(t *testing.T) {
	_, err := NewTokenManager([]byte("short"), "vcp-controller")
	require.Error(t, err)
}

func TestUserTokenExpiry(t *testing.T) {
	tm, err := NewTokenManager(testSigningKey(), "vcp-controller")
	require.NoError(t, err)
	token, err := tm.IssueUserToken("user-1", "alice", nil)
	require.NoError(t, err)
	claims, err := tm.ValidateUserToken(token)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(defaultUserTokenTTL), claims.ExpiresAt.Time, time.Minute)
}
