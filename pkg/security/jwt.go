package security

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenManager issues and validates HS256 bearer tokens: REST session
// tokens for users (subject is a user id, carrying role ids) and node
// session tokens (subject is a node id). The agent websocket handshake
// does not use node session tokens; it checks join tokens held by
// pkg/manager's TokenManager.
type TokenManager struct {
	signingKey []byte
	issuer     string
}

// NewTokenManager builds a TokenManager over a 32-byte signing key, the
// same key material convention as SecretsManager.
func NewTokenManager(signingKey []byte, issuer string) (*TokenManager, error) {
	if len(signingKey) < 32 {
		return nil, fmt.Errorf("signing key must be at least 32 bytes, got %d", len(signingKey))
	}
	return &TokenManager{signingKey: signingKey, issuer: issuer}, nil
}

// UserClaims are the claims carried by a REST session token.
type UserClaims struct {
	jwt.RegisteredClaims
	Username string   `json:"username"`
	RoleIDs  []string `json:"role_ids"`
}

// NodeClaims are the claims carried by a node session token.
type NodeClaims struct {
	jwt.RegisteredClaims
	NodeID string `json:"node_id"`
}

// defaultUserTokenTTL matches the REST session lifetime in spec.md §4.6.
const defaultUserTokenTTL = 24 * time.Hour

// defaultNodeTokenTTL is the lifetime of a node session token.
const defaultNodeTokenTTL = 30 * 24 * time.Hour

// IssueUserToken signs a session token for userID with the given role ids.
func (tm *TokenManager) IssueUserToken(userID, username string, roleIDs []string) (string, error) {
	now := time.Now()
	claims := UserClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    tm.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(defaultUserTokenTTL)),
		},
		Username: username,
		RoleIDs:  roleIDs,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.signingKey)
}

// ValidateUserToken parses and verifies a REST session token.
func (tm *TokenManager) ValidateUserToken(tokenString string) (*UserClaims, error) {
	claims := &UserClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, tm.keyFunc)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("token failed validation")
	}
	return claims, nil
}

// IssueNodeToken signs a session token whose subject is nodeID.
func (tm *TokenManager) IssueNodeToken(nodeID string) (string, error) {
	now := time.Now()
	claims := NodeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   nodeID,
			Issuer:    tm.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(defaultNodeTokenTTL)),
		},
		NodeID: nodeID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.signingKey)
}

// ValidateNodeToken parses and verifies a node session token.
func (tm *TokenManager) ValidateNodeToken(tokenString string) (*NodeClaims, error) {
	claims := &NodeClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, tm.keyFunc)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("token failed validation")
	}
	return claims, nil
}

func (tm *TokenManager) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
	}
	return tm.signingKey, nil
}
