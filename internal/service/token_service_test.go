package service

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/estate-auth-api/internal/models"
)

const testSecret = "test-secret-test-secret-test-secret"

func newTestTokenService() *TokenService {
	return NewTokenService(TokenConfig{
		Secret:     testSecret,
		Issuer:     "test",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	})
}

func testUser() *models.User {
	return &models.User{ID: "u-1", Email: "a@x.com", Username: "alice", Role: models.RoleAgent, Enabled: true}
}

func TestTokenServiceIssueAndVerify(t *testing.T) {
	svc := newTestTokenService()
	user := testUser()

	access, err := svc.IssueAccessToken(user)
	require.NoError(t, err)
	refresh, err := svc.IssueRefreshToken(user)
	require.NoError(t, err)

	assert.True(t, svc.Validate(access))
	assert.True(t, svc.Validate(refresh))
	assert.False(t, svc.IsExpired(access))

	subject, err := svc.SubjectOf(access)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", subject)

	assert.False(t, svc.IsRefreshType(access))
	assert.True(t, svc.IsRefreshType(refresh))
	assert.True(t, svc.IsAccessType(access))
	assert.False(t, svc.IsAccessType(refresh))
}

func TestTokenServiceRefreshTokensAreUnique(t *testing.T) {
	svc := newTestTokenService()
	fixed := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	first, err := svc.IssueRefreshToken(testUser())
	require.NoError(t, err)
	second, err := svc.IssueRefreshToken(testUser())
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestTokenServiceExpiredToken(t *testing.T) {
	svc := newTestTokenService()
	svc.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, err := svc.IssueAccessToken(testUser())
	require.NoError(t, err)

	svc.now = time.Now
	assert.True(t, svc.IsExpired(token))
	assert.False(t, svc.Validate(token))
	assert.Equal(t, TokenReasonExpired, TokenFailureReason(svc.Verify(token)))

	_, err = svc.SubjectOf(token)
	var parseErr *TokenParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestTokenServiceRejections(t *testing.T) {
	svc := newTestTokenService()
	user := testUser()
	valid, err := svc.IssueAccessToken(user)
	require.NoError(t, err)

	other := NewTokenService(TokenConfig{Secret: "another-secret-another-secret-xx", AccessTTL: time.Minute, RefreshTTL: time.Hour})
	foreign, err := other.IssueAccessToken(user)
	require.NoError(t, err)

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub":  user.Email,
		"type": "access",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	emptySubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"type": "access",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	parts := strings.Split(valid, ".")
	foreignParts := strings.Split(foreign, ".")
	tampered := parts[0] + "." + foreignParts[1] + "." + parts[2]

	cases := map[string]struct {
		token  string
		reason string
	}{
		"foreign signature": {token: foreign, reason: TokenReasonInvalidSignature},
		"garbage":           {token: "not-a-token", reason: TokenReasonMalformed},
		"empty":             {token: "", reason: TokenReasonMalformed},
		"tampered payload":  {token: tampered, reason: TokenReasonInvalidSignature},
		"bad segments":      {token: "a.b.c", reason: TokenReasonMalformed},
		"alg none":          {token: noneToken, reason: TokenReasonUnsupported},
		"empty subject":     {token: emptySubject, reason: TokenReasonEmptyClaims},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.False(t, svc.Validate(tc.token))
				assert.Equal(t, tc.reason, TokenFailureReason(svc.Verify(tc.token)))
				assert.False(t, svc.IsRefreshType(tc.token))
				assert.False(t, svc.IsAccessType(tc.token))
			})
		})
	}
}

func TestTokenServiceIsExpiredOnGarbage(t *testing.T) {
	svc := newTestTokenService()
	assert.True(t, svc.IsExpired(""))
	assert.True(t, svc.IsExpired("a.b.c"))
}
