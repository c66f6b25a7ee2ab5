package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func newTestTokens(t *testing.T, clock *testClock) *TokenService {
	t.Helper()
	svc, err := NewTokenService("access-secret", "refresh-secret",
		WithAccessTTL(30*time.Minute),
		WithRefreshTTL(365*24*time.Hour),
		WithTokenClock(clock.Now),
	)
	require.NoError(t, err)
	return svc
}

func TestNewTokenServiceRejectsBadSecrets(t *testing.T) {
	_, err := NewTokenService("", "refresh")
	assert.Error(t, err)
	_, err = NewTokenService("same", "same")
	assert.Error(t, err)
	_, err = NewTokenService("a", "b", WithAccessTTL(0))
	assert.Error(t, err)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	clock := &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := newTestTokens(t, clock)

	tok, err := svc.IssueAccessToken("acc-1")
	require.NoError(t, err)
	assert.Equal(t, AccessToken, tok.Kind)
	assert.True(t, clock.now.Add(30*time.Minute).Equal(tok.ExpiresAt))

	claims, err := svc.VerifyAccessToken(tok.Value)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", claims.AccountID)
	assert.Equal(t, "acc-1", claims.Subject)
	assert.Equal(t, "tvshelf", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestAccessTokenExpires(t *testing.T) {
	clock := &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := newTestTokens(t, clock)

	tok, err := svc.IssueAccessToken("acc-1")
	require.NoError(t, err)

	clock.now = clock.now.Add(29 * time.Minute)
	_, err = svc.VerifyAccessToken(tok.Value)
	require.NoError(t, err)

	clock.now = clock.now.Add(2 * time.Minute)
	_, err = svc.VerifyAccessToken(tok.Value)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestRefreshTokenOutlivesAccessToken(t *testing.T) {
	clock := &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := newTestTokens(t, clock)

	tok, err := svc.IssueRefreshToken("acc-1")
	require.NoError(t, err)

	clock.now = clock.now.Add(300 * 24 * time.Hour)
	claims, err := svc.VerifyRefreshToken(tok.Value)
	require.NoError(t, err)
	assert.Equal(t, RefreshToken, claims.Kind)
}

func TestTokensAreNotInterchangeable(t *testing.T) {
	clock := &testClock{now: time.Now()}
	svc := newTestTokens(t, clock)

	access, err := svc.IssueAccessToken("acc-1")
	require.NoError(t, err)
	refresh, err := svc.IssueRefreshToken("acc-1")
	require.NoError(t, err)

	_, err = svc.VerifyAccessToken(refresh.Value)
	assert.ErrorIs(t, err, ErrTokenInvalid)
	_, err = svc.VerifyRefreshToken(access.Value)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestKindClaimIsChecked(t *testing.T) {
	clock := &testClock{now: time.Now()}
	svc := newTestTokens(t, clock)

	// Signed with the access secret but labelled as a refresh token.
	claims := Claims{
		AccountID: "acc-1",
		Kind:      RefreshToken,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "tvshelf",
			Subject:   "acc-1",
			IssuedAt:  jwt.NewNumericDate(clock.now),
			ExpiresAt: jwt.NewNumericDate(clock.now.Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("access-secret"))
	require.NoError(t, err)

	_, err = svc.VerifyAccessToken(raw)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyRejectsTamperedAndMalformed(t *testing.T) {
	clock := &testClock{now: time.Now()}
	svc := newTestTokens(t, clock)

	tok, err := svc.IssueAccessToken("acc-1")
	require.NoError(t, err)

	parts := strings.Split(tok.Value, ".")
	require.Len(t, parts, 3)
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"id": "acc-2"}).SignedString([]byte("x"))
	require.NoError(t, err)
	tampered := parts[0] + "." + strings.Split(forged, ".")[1] + "." + parts[2]

	_, err = svc.VerifyAccessToken(tampered)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = svc.VerifyAccessToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrTokenMalformed)
	_, err = svc.VerifyAccessToken("")
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	clock := &testClock{now: time.Now()}
	svc := newTestTokens(t, clock)

	claims := Claims{
		AccountID: "acc-1",
		Kind:      AccessToken,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "tvshelf",
			Subject:   "acc-1",
			IssuedAt:  jwt.NewNumericDate(clock.now),
			ExpiresAt: jwt.NewNumericDate(clock.now.Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.VerifyAccessToken(raw)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestWrongIssuerIsInvalid(t *testing.T) {
	clock := &testClock{now: time.Now()}
	other, err := NewTokenService("access-secret", "refresh-secret", WithIssuer("elsewhere"), WithTokenClock(clock.Now))
	require.NoError(t, err)
	tok, err := other.IssueAccessToken("acc-1")
	require.NoError(t, err)

	_, err = newTestTokens(t, clock).VerifyAccessToken(tok.Value)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
