package lmsauth_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oa "github.com/panyam/lmsauth"
)

func testClaims() oa.Claims {
	return oa.Claims{UserID: "user-1", Email: "ada@example.com", Role: oa.RoleInstructor}
}

func TestIssueAndVerifyAccessToken(t *testing.T) {
	tokens := oa.NewTokenIssuer(testSecret, testIssuer)
	before := time.Now()

	token, exp, err := tokens.IssueAccessToken(testClaims(), 0)
	require.NoError(t, err)
	assert.WithinDuration(t, before.Add(oa.DefaultAccessTokenTTL), exp, 5*time.Second)

	claims, err := tokens.VerifyAccess(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.Equal(t, oa.RoleInstructor, claims.Role)
	assert.Equal(t, oa.TokenTypeAccess, claims.Type)
	assert.Equal(t, testIssuer, claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestIssuePair(t *testing.T) {
	tokens := oa.NewTokenIssuer(testSecret, testIssuer)
	pair, err := tokens.IssuePair(testClaims())
	require.NoError(t, err)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	assert.True(t, pair.RefreshExpiresAt.After(pair.AccessExpiresAt))

	refresh, err := tokens.VerifyRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, oa.TokenTypeRefresh, refresh.Type)

	// two tokens for the same user never share an id
	again, err := tokens.IssuePair(testClaims())
	require.NoError(t, err)
	a, _ := tokens.VerifyAccess(pair.AccessToken)
	b, _ := tokens.VerifyAccess(again.AccessToken)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestCustomTokenLifetimes(t *testing.T) {
	tokens := oa.NewTokenIssuer(testSecret, testIssuer)
	tokens.AccessTTL = 15 * time.Minute
	before := time.Now()

	_, exp, err := tokens.IssueAccessToken(testClaims(), 0)
	require.NoError(t, err)
	assert.WithinDuration(t, before.Add(15*time.Minute), exp, 5*time.Second)

	_, exp, err = tokens.IssueRefreshToken(testClaims(), time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, before.Add(time.Hour), exp, 5*time.Second)
}

func TestVerifyRejects(t *testing.T) {
	tokens := oa.NewTokenIssuer(testSecret, testIssuer)
	access, _, err := tokens.IssueAccessToken(testClaims(), 0)
	require.NoError(t, err)
	refresh, _, err := tokens.IssueRefreshToken(testClaims(), 0)
	require.NoError(t, err)

	past := oa.NewTokenIssuer(testSecret, testIssuer).WithClock(func() time.Time {
		return time.Now().Add(-48 * time.Hour)
	})
	expired, _, err := past.IssueAccessToken(testClaims(), 0)
	require.NoError(t, err)

	forged, _, err := oa.NewTokenIssuer("some-other-secret", testIssuer).IssueAccessToken(testClaims(), 0)
	require.NoError(t, err)
	foreign, _, err := oa.NewTokenIssuer(testSecret, "someone-else").IssueAccessToken(testClaims(), 0)
	require.NoError(t, err)

	tests := []struct {
		name   string
		verify func(string) (*oa.Claims, error)
		token  string
		reason error
	}{
		{"expired", tokens.VerifyAccess, expired, oa.ErrTokenExpired},
		{"bad signature", tokens.VerifyAccess, forged, oa.ErrTokenSignature},
		{"wrong issuer", tokens.VerifyAccess, foreign, oa.ErrTokenMalformed},
		{"garbage", tokens.VerifyAccess, "not.a.jwt", oa.ErrTokenMalformed},
		{"empty", tokens.VerifyAccess, "", oa.ErrTokenMalformed},
		{"refresh used as access", tokens.VerifyAccess, refresh, oa.ErrTokenType},
		{"access used as refresh", tokens.VerifyRefresh, access, oa.ErrTokenType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := tt.verify(tt.token)
			assert.Nil(t, claims)
			assert.True(t, errors.Is(err, oa.ErrInvalidToken), "got %v", err)
			assert.True(t, errors.Is(err, tt.reason), "got %v", err)
		})
	}
}

func TestClaimsFor(t *testing.T) {
	u := &oa.User{ID: "u1", Email: "a@b.co", Role: oa.RoleAdmin, PasswordHash: "secret"}
	c := oa.ClaimsFor(u)
	assert.Equal(t, oa.Claims{UserID: "u1", Email: "a@b.co", Role: oa.RoleAdmin}, c)
}
