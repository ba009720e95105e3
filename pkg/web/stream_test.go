package web

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/dukex/runledger/pkg/eventbus"
	"github.com/dukex/runledger/pkg/events"
	"github.com/dukex/runledger/pkg/models"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sseFrame struct {
	event string
	data  string
}

// readFrame returns the next named event, skipping comments.
func readFrame(t *testing.T, scanner *bufio.Scanner) sseFrame {
	t.Helper()

	var frame sseFrame

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "" && frame.event != "":
			return frame
		case strings.HasPrefix(line, "event: "):
			frame.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			frame.data = strings.TrimPrefix(line, "data: ")
		}
	}

	require.NoError(t, scanner.Err())
	require.FailNow(t, "stream ended")

	return frame
}

func serve(t *testing.T, app *fiber.App) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		_ = app.Listener(ln, fiber.ListenConfig{DisableStartupMessage: true})
	}()

	t.Cleanup(func() { _ = app.ShutdownWithTimeout(time.Second) })

	return "http://" + ln.Addr().String()
}

func TestStreamStatus_DeliversNodeStatus(t *testing.T) {
	env := setupTestApp(t)
	env.handlers.heartbeat = 50 * time.Millisecond
	baseURL := serve(t, env.app)

	token, err := env.bus.Issuer().IssueSubscriptionToken(context.Background(), models.NodeTypeHTTPRequest, []string{events.StatusTopic})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/subscriptions/stream?token="+token.Value, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)

	subscribed := readFrame(t, scanner)
	require.Equal(t, "subscribed", subscribed.event)

	var handle map[string]any
	require.NoError(t, json.Unmarshal([]byte(subscribed.data), &handle))
	assert.Equal(t, models.NodeTypeHTTPRequest, handle["channel"])

	subscriptionID, _ := handle["subscription_id"].(string)
	require.NotEmpty(t, subscriptionID)

	createdAt := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, env.bus.PublishNodeStatus(ctx, events.NodeStatus{
		NodeID:      "fetch",
		ExecutionID: "exec-1",
		NodeType:    models.NodeTypeHTTPRequest,
		Status:      models.ExecutionStatusRunning,
		CreatedAt:   createdAt,
	}))

	frame := readFrame(t, scanner)
	require.Equal(t, "status", frame.event)

	var status events.NodeStatus
	require.NoError(t, json.Unmarshal([]byte(frame.data), &status))
	assert.Equal(t, "fetch", status.NodeID)
	assert.Equal(t, "exec-1", status.ExecutionID)
	assert.Equal(t, models.ExecutionStatusRunning, status.Status)
	assert.True(t, createdAt.Equal(status.CreatedAt))

	refreshed, err := env.bus.Issuer().IssueSubscriptionToken(ctx, models.NodeTypeHTTPRequest, []string{events.StatusTopic})
	require.NoError(t, err)

	code, _ := env.do(t, http.MethodPost, "/subscriptions/"+subscriptionID+"/refresh", "", RefreshSubscriptionRequest{Token: refreshed.Value})
	assert.Equal(t, http.StatusOK, code)

	other, err := env.bus.Issuer().IssueSubscriptionToken(ctx, models.NodeTypeAIProvider, []string{events.StatusTopic})
	require.NoError(t, err)

	code, _ = env.do(t, http.MethodPost, "/subscriptions/"+subscriptionID+"/refresh", "", RefreshSubscriptionRequest{Token: other.Value})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestStreamStatus_RejectsBadTokens(t *testing.T) {
	env := setupTestApp(t)

	status, body := env.do(t, http.MethodGet, "/subscriptions/stream", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthorized", problemType(t, body))

	status, _ = env.do(t, http.MethodGet, "/subscriptions/stream?token=forged", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = env.do(t, http.MethodPost, "/subscriptions/unknown/refresh", "", RefreshSubscriptionRequest{Token: "x"})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestIssueSubscriptionToken(t *testing.T) {
	env := setupTestApp(t)

	status, body := env.do(t, http.MethodPost, "/subscriptions/token", "alice", SubscriptionTokenRequest{
		Channel: models.NodeTypeHTTPRequest,
		Topics:  []string{events.StatusTopic},
	})
	require.Equal(t, http.StatusCreated, status)

	var token eventbus.Token
	require.NoError(t, json.Unmarshal(body, &token))
	assert.NotEmpty(t, token.Value)
	assert.Equal(t, models.NodeTypeHTTPRequest, token.Channel)
	assert.True(t, token.ExpiresAt.After(time.Now()))

	status, _ = env.do(t, http.MethodPost, "/subscriptions/token", "alice", SubscriptionTokenRequest{
		Channel: "Not A Channel",
		Topics:  []string{events.StatusTopic},
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodPost, "/subscriptions/token", "alice", SubscriptionTokenRequest{
		Channel: models.NodeTypeHTTPRequest,
		Topics:  []string{"metrics"},
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodPost, "/subscriptions/token", "alice", SubscriptionTokenRequest{Channel: models.NodeTypeHTTPRequest})
	assert.Equal(t, http.StatusBadRequest, status)
}
