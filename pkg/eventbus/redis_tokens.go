package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisTokenPrefix = "runledger:subscription:"

// tokenClaims is the scope stored under a Redis token key.
type tokenClaims struct {
	ID        string   `json:"jti"`
	Channel   string   `json:"ch"`
	Topics    []string `json:"tp"`
	ExpiresAt int64    `json:"exp"`
}

func (c tokenClaims) token(value string) *Token {
	return &Token{
		ID:        c.ID,
		Value:     value,
		Channel:   c.Channel,
		Topics:    c.Topics,
		ExpiresAt: time.Unix(c.ExpiresAt, 0).UTC(),
	}
}

// RedisIssuer issues opaque tokens whose scope lives in Redis with a TTL, so
// tokens can be revoked before they expire.
type RedisIssuer struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisIssuer creates an issuer from a redis:// URL.
func NewRedisIssuer(redisURL string, ttl time.Duration) (*RedisIssuer, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	return NewRedisIssuerWithClient(redis.NewClient(options), ttl), nil
}

func NewRedisIssuerWithClient(client *redis.Client, ttl time.Duration) *RedisIssuer {
	return &RedisIssuer{client: client, ttl: ttl, now: time.Now}
}

func (i *RedisIssuer) IssueSubscriptionToken(ctx context.Context, channel string, topics []string) (*Token, error) {
	if err := ValidateScope(channel, topics); err != nil {
		return nil, err
	}

	claims := tokenClaims{
		ID:        uuid.New().String(),
		Channel:   channel,
		Topics:    slices.Clone(topics),
		ExpiresAt: i.now().Add(i.ttl).Unix(),
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return nil, fmt.Errorf("failed to encode token claims: %w", err)
	}

	err = i.client.Set(ctx, redisTokenPrefix+claims.ID, payload, i.ttl).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to store subscription token: %w", err)
	}

	return claims.token(claims.ID), nil
}

func (i *RedisIssuer) Verify(ctx context.Context, value string) (*Token, error) {
	if _, err := uuid.Parse(value); err != nil {
		return nil, ErrInvalidToken
	}

	payload, err := i.client.Get(ctx, redisTokenPrefix+value).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTokenExpired
		}

		return nil, fmt.Errorf("failed to load subscription token: %w", err)
	}

	var claims tokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, ErrInvalidToken
	}

	return claims.token(value), nil
}

// Revoke deletes a token before its expiry.
func (i *RedisIssuer) Revoke(ctx context.Context, value string) error {
	return i.client.Del(ctx, redisTokenPrefix+value).Err()
}

func (i *RedisIssuer) Close() error {
	return i.client.Close()
}
