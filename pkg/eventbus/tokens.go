package eventbus

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"time"

	"github.com/dukex/runledger/pkg/events"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken indicates a subscription token that is malformed, forged or unknown.
	ErrInvalidToken = errors.New("invalid subscription token")

	// ErrTokenExpired indicates a subscription token past its expiry.
	ErrTokenExpired = errors.New("subscription token expired")

	// ErrInvalidScope indicates a channel or topic set a token cannot be issued for or used with.
	ErrInvalidScope = errors.New("invalid subscription scope")
)

var channelPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Token is a short-lived credential scoped to one channel and a set of its topics.
type Token struct {
	ID        string    `json:"id"`
	Value     string    `json:"token"`
	Channel   string    `json:"channel"`
	Topics    []string  `json:"topics"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Covers reports whether the token grants every topic in topics on channel.
func (t *Token) Covers(channel string, topics []string) bool {
	if t.Channel != channel {
		return false
	}

	for _, topic := range topics {
		if !slices.Contains(t.Topics, topic) {
			return false
		}
	}

	return true
}

// TokenIssuer issues and verifies subscription tokens. Re-issuing for the same
// scope is how a subscriber refreshes before expiry.
type TokenIssuer interface {
	IssueSubscriptionToken(ctx context.Context, channel string, topics []string) (*Token, error)
	Verify(ctx context.Context, value string) (*Token, error)
}

// ValidateScope checks that channel names a node type channel and topics only
// names known topics.
func ValidateScope(channel string, topics []string) error {
	if !channelPattern.MatchString(channel) {
		return fmt.Errorf("%w: channel %q", ErrInvalidScope, channel)
	}

	if len(topics) == 0 {
		return fmt.Errorf("%w: at least one topic is required", ErrInvalidScope)
	}

	for _, topic := range topics {
		if topic != events.StatusTopic {
			return fmt.Errorf("%w: unknown topic %q", ErrInvalidScope, topic)
		}
	}

	return nil
}

// subscriptionClaims is the JWT body of an HMACIssuer token.
type subscriptionClaims struct {
	Channel string   `json:"ch"`
	Topics  []string `json:"tp"`
	jwt.RegisteredClaims
}

// HMACIssuer issues HS256 JWTs signed with a shared secret, so any API
// instance holding the secret can verify them without shared state.
type HMACIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewHMACIssuer creates an issuer; secret must not be empty.
func NewHMACIssuer(secret string, ttl time.Duration) (*HMACIssuer, error) {
	if secret == "" {
		return nil, errors.New("subscription secret is required")
	}

	if ttl <= 0 {
		return nil, errors.New("subscription ttl must be positive")
	}

	return &HMACIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

func (i *HMACIssuer) IssueSubscriptionToken(_ context.Context, channel string, topics []string) (*Token, error) {
	if err := ValidateScope(channel, topics); err != nil {
		return nil, err
	}

	now := i.now()
	claims := subscriptionClaims{
		Channel: channel,
		Topics:  slices.Clone(topics),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	value, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign subscription token: %w", err)
	}

	return claims.token(value), nil
}

func (i *HMACIssuer) Verify(_ context.Context, value string) (*Token, error) {
	var claims subscriptionClaims

	_, err := jwt.ParseWithClaims(value, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrTokenExpired
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return claims.token(value), nil
}

func (c subscriptionClaims) token(value string) *Token {
	return &Token{
		ID:        c.ID,
		Value:     value,
		Channel:   c.Channel,
		Topics:    c.Topics,
		ExpiresAt: c.ExpiresAt.UTC(),
	}
}
