package eventbus_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dukex/runledger/pkg/eventbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func redisURL(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)

	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return fmt.Sprintf("redis://%s:%s/0", host, port.Port())
}

func TestRedisIssuer(t *testing.T) {
	url := redisURL(t)
	ctx := context.Background()

	issuer, err := eventbus.NewRedisIssuer(url, 2*time.Second)
	require.NoError(t, err)

	t.Cleanup(func() { _ = issuer.Close() })

	token, err := issuer.IssueSubscriptionToken(ctx, "http-request", []string{"status"})
	require.NoError(t, err)

	verified, err := issuer.Verify(ctx, token.Value)
	require.NoError(t, err)
	assert.Equal(t, "http-request", verified.Channel)
	assert.Equal(t, []string{"status"}, verified.Topics)

	_, err = issuer.Verify(ctx, "not-a-uuid")
	require.ErrorIs(t, err, eventbus.ErrInvalidToken)

	_, err = issuer.IssueSubscriptionToken(ctx, "Bad Channel", []string{"status"})
	require.ErrorIs(t, err, eventbus.ErrInvalidScope)

	require.NoError(t, issuer.Revoke(ctx, token.Value))

	_, err = issuer.Verify(ctx, token.Value)
	require.ErrorIs(t, err, eventbus.ErrTokenExpired)

	short, err := issuer.IssueSubscriptionToken(ctx, "http-request", []string{"status"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := issuer.Verify(ctx, short.Value)

		return err != nil
	}, 5*time.Second, 100*time.Millisecond)
}
