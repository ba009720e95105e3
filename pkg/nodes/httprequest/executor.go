// Package httprequest provides the http-request node executor.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/runledger/pkg/models"
	"github.com/dukex/runledger/pkg/protocol"
	"github.com/sethvargo/go-retry"
)

const maxResponseBytes = 10 << 20

// HTTPError is a response with a 4xx or 5xx status code.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Executor performs HTTP requests.
type Executor struct {
	client      *http.Client
	credentials protocol.CredentialResolver
}

// NewExecutor creates the executor. A nil client uses http.DefaultClient; a nil
// resolver disables credential references.
func NewExecutor(client *http.Client, credentials protocol.CredentialResolver) *Executor {
	if client == nil {
		client = http.DefaultClient
	}

	return &Executor{client: client, credentials: credentials}
}

func (e *Executor) Type() string {
	return models.NodeTypeHTTPRequest
}

func (e *Executor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "HTTP URL to request. Supports templates such as {{trigger.user.url}}",
				"minLength":   1,
			},
			"method": map[string]any{
				"type":    "string",
				"default": defaultMethod,
				"enum":    []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS", "get", "post", "put", "delete", "patch", "head", "options"},
			},
			"headers": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": []string{"string", "number", "boolean"}},
			},
			"body": map[string]any{
				"description": "Request body. Objects are sent as JSON; use {{json node}} to embed a prior output",
			},
			"timeout": map[string]any{
				"type":        "number",
				"description": "Request timeout in seconds",
				"minimum":     1,
				"maximum":     300,
			},
			"retries": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"attempts": map[string]any{"type": "number", "minimum": 1, "maximum": maxAttempts},
					"delay":    map[string]any{"type": "number", "minimum": 0, "maximum": 30000},
				},
			},
		},
		"required": []string{"url"},
	}
}

// Execute performs the request, retrying 5xx responses and transport errors.
// The output is {status, headers, data}; data is the decoded JSON body when the
// body is JSON and the raw text otherwise.
func (e *Executor) Execute(ctx context.Context, req protocol.ExecuteRequest) (map[string]any, error) {
	config, err := ParseConfig(req.Input)
	if err != nil {
		return nil, err
	}

	if req.CredentialRef != "" {
		if err := e.authorize(ctx, config, req.CredentialRef); err != nil {
			return nil, err
		}
	}

	delay := config.Retries.Delay
	if delay <= 0 {
		delay = time.Millisecond
	}

	backoff := retry.WithMaxRetries(uint64(config.Retries.Attempts-1), retry.NewConstant(delay))

	var output map[string]any

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		result, err := e.perform(ctx, config)
		if err != nil {
			var httpErr *HTTPError
			if errors.As(err, &httpErr) && httpErr.StatusCode < http.StatusInternalServerError {
				return err
			}

			return retry.RetryableError(err)
		}

		output = result

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed after %d attempts: %w", config.Retries.Attempts, err)
	}

	return output, nil
}

func (e *Executor) authorize(ctx context.Context, config *Config, ref string) error {
	if e.credentials == nil {
		return fmt.Errorf("%w: %s", protocol.ErrCredentialNotFound, ref)
	}

	secret, err := e.credentials.Resolve(ctx, ref)
	if err != nil {
		return err
	}

	for key := range config.Headers {
		if strings.EqualFold(key, "Authorization") {
			return nil
		}
	}

	config.Headers["Authorization"] = "Bearer " + secret

	return nil
}

func (e *Executor) perform(ctx context.Context, config *Config) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()

	var body io.Reader
	if config.Body != "" {
		body = strings.NewReader(config.Body)
	}

	request, err := http.NewRequestWithContext(ctx, config.Method, config.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range config.Headers {
		request.Header.Set(key, value)
	}

	if config.Body != "" && request.Header.Get("Content-Type") == "" {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := e.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if response.StatusCode >= http.StatusBadRequest {
		return nil, &HTTPError{StatusCode: response.StatusCode, Message: string(raw)}
	}

	headers := make(map[string]any, len(response.Header))
	for key, values := range response.Header {
		headers[key] = strings.Join(values, ", ")
	}

	var data any = string(raw)

	var decoded any
	if len(raw) > 0 && json.Unmarshal(raw, &decoded) == nil {
		data = decoded
	}

	return map[string]any{
		"status":  response.StatusCode,
		"headers": headers,
		"data":    data,
	}, nil
}
