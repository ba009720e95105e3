package eventbus

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(t *testing.T, now *time.Time) *HMACIssuer {
	t.Helper()

	issuer, err := NewHMACIssuer("test-secret", time.Minute)
	require.NoError(t, err)

	issuer.now = func() time.Time { return *now }

	return issuer
}

func TestNewHMACIssuer_Validation(t *testing.T) {
	_, err := NewHMACIssuer("", time.Minute)
	require.Error(t, err)

	_, err = NewHMACIssuer("secret", 0)
	require.Error(t, err)
}

func TestHMACIssuer_IssueAndVerify(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(t, &now)
	ctx := context.Background()

	token, err := issuer.IssueSubscriptionToken(ctx, "http-request", []string{"status"})
	require.NoError(t, err)

	assert.NotEmpty(t, token.ID)
	assert.Equal(t, "http-request", token.Channel)
	assert.Equal(t, []string{"status"}, token.Topics)
	assert.Equal(t, now.Add(time.Minute), token.ExpiresAt)

	verified, err := issuer.Verify(ctx, token.Value)
	require.NoError(t, err)
	assert.Equal(t, token.ID, verified.ID)
	assert.True(t, verified.Covers("http-request", []string{"status"}))
	assert.False(t, verified.Covers("ai-provider", []string{"status"}))
}

func TestHMACIssuer_Expired(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(t, &now)
	ctx := context.Background()

	token, err := issuer.IssueSubscriptionToken(ctx, "http-request", []string{"status"})
	require.NoError(t, err)

	now = now.Add(time.Minute)

	_, err = issuer.Verify(ctx, token.Value)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestHMACIssuer_Tampered(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(t, &now)
	ctx := context.Background()

	token, err := issuer.IssueSubscriptionToken(ctx, "http-request", []string{"status"})
	require.NoError(t, err)

	other, err := NewHMACIssuer("other-secret", time.Minute)
	require.NoError(t, err)

	parts := strings.Split(token.Value, ".")
	require.Len(t, parts, 3)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"ch":  "http-request",
		"tp":  []string{"status"},
		"exp": now.Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		value string
	}{
		{"empty", ""},
		{"header only", parts[0]},
		{"bad signature", parts[0] + "." + parts[1] + ".AAAA"},
		{"garbage", "not-a-token.###"},
		{"alg none", unsigned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := issuer.Verify(ctx, tt.value)
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	_, err = other.Verify(ctx, token.Value)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestHMACIssuer_RequiresExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(t, &now)

	value, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"ch": "http-request",
		"tp": []string{"status"},
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = issuer.Verify(context.Background(), value)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestHMACIssuer_TokenIsJWT(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(t, &now)

	token, err := issuer.IssueSubscriptionToken(context.Background(), "ai-provider", []string{"status"})
	require.NoError(t, err)

	var claims subscriptionClaims

	parsed, _, err := jwt.NewParser().ParseUnverified(token.Value, &claims)
	require.NoError(t, err)

	assert.Equal(t, "HS256", parsed.Method.Alg())
	assert.Equal(t, token.ID, claims.ID)
	assert.Equal(t, "ai-provider", claims.Channel)
	assert.Equal(t, now.Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, now.Add(time.Minute).Unix(), claims.ExpiresAt.Unix())
}

func TestValidateScope(t *testing.T) {
	tests := []struct {
		name    string
		channel string
		topics  []string
		valid   bool
	}{
		{"node type channel", "http-request", []string{"status"}, true},
		{"upper case", "HTTP", []string{"status"}, false},
		{"empty channel", "", []string{"status"}, false},
		{"dotted channel", "a.b", []string{"status"}, false},
		{"no topics", "http-request", nil, false},
		{"unknown topic", "http-request", []string{"logs"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateScope(tt.channel, tt.topics)
			if tt.valid {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, ErrInvalidScope)
			}
		})
	}
}
