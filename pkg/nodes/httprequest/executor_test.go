package httprequest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/dukex/runledger/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticCredentials map[string]string

func (s staticCredentials) Resolve(_ context.Context, ref string) (string, error) {
	secret, ok := s[ref]
	if !ok {
		return "", protocol.ErrCredentialNotFound
	}

	return secret, nil
}

func TestExecutor_JSONResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "42"}`))
	}))
	defer server.Close()

	output, err := NewExecutor(server.Client(), nil).Execute(context.Background(), protocol.ExecuteRequest{
		Input: map[string]any{"url": server.URL},
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, output["status"])
	assert.Equal(t, map[string]any{"id": "42"}, output["data"])
	assert.Equal(t, "application/json", output["headers"].(map[string]any)["Content-Type"])
}

func TestExecutor_TextResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("plain text"))
	}))
	defer server.Close()

	output, err := NewExecutor(server.Client(), nil).Execute(context.Background(), protocol.ExecuteRequest{
		Input: map[string]any{"url": server.URL},
	})
	require.NoError(t, err)
	assert.Equal(t, "plain text", output["data"])
}

func TestExecutor_PostObjectBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "v", r.Header.Get("X-Custom"))

		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"name":"ada"}`, string(body))

		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	output, err := NewExecutor(server.Client(), nil).Execute(context.Background(), protocol.ExecuteRequest{
		Input: map[string]any{
			"url":     server.URL,
			"method":  "post",
			"headers": map[string]any{"X-Custom": "v"},
			"body":    map[string]any{"name": "ada"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, output["status"])
}

func TestExecutor_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)

			return
		}

		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	_, err := NewExecutor(server.Client(), nil).Execute(context.Background(), protocol.ExecuteRequest{
		Input: map[string]any{"url": server.URL, "retries": map[string]any{"attempts": 3, "delay": 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestExecutor_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewExecutor(server.Client(), nil).Execute(context.Background(), protocol.ExecuteRequest{
		Input: map[string]any{"url": server.URL, "retries": map[string]any{"attempts": 5.0, "delay": 1.0}},
	})
	require.Error(t, err)

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestExecutor_CredentialRef(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	executor := NewExecutor(server.Client(), staticCredentials{"api": "s3cret"})

	output, err := executor.Execute(context.Background(), protocol.ExecuteRequest{
		Input:         map[string]any{"url": server.URL},
		CredentialRef: "api",
	})
	require.NoError(t, err)
	assert.NotContains(t, output["headers"], "Authorization")

	_, err = executor.Execute(context.Background(), protocol.ExecuteRequest{
		Input:         map[string]any{"url": server.URL},
		CredentialRef: "missing",
	})
	require.ErrorIs(t, err, protocol.ErrCredentialNotFound)
}

func TestParseConfig(t *testing.T) {
	_, err := ParseConfig(map[string]any{})
	require.Error(t, err)

	_, err = ParseConfig(map[string]any{"url": "http://x", "retries": map[string]any{"attempts": 0}})
	require.Error(t, err)

	config, err := ParseConfig(map[string]any{"url": "http://x", "timeout": 2, "headers": map[string]any{"n": 1}})
	require.NoError(t, err)
	assert.Equal(t, "GET", config.Method)
	assert.Equal(t, "1", config.Headers["n"])
	assert.Equal(t, int64(2e9), int64(config.Timeout))
}
