package httprequest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	defaultMethod  = "GET"
	defaultTimeout = 30 * time.Second
	maxAttempts    = 10
)

// Config is the resolved input of an http-request node.
type Config struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    string
	Timeout time.Duration
	Retries RetryConfig
}

// RetryConfig controls retries of 5xx responses and transport errors.
type RetryConfig struct {
	Attempts int
	Delay    time.Duration
}

// ParseConfig reads a resolved node input. Numbers may arrive as any numeric
// type because template resolution keeps the referenced value's type.
func ParseConfig(input map[string]any) (*Config, error) {
	config := &Config{
		Method:  defaultMethod,
		Headers: make(map[string]string),
		Timeout: defaultTimeout,
		Retries: RetryConfig{Attempts: 1},
	}

	url, ok := input["url"].(string)
	if !ok || url == "" {
		return nil, errors.New("missing required field 'url'")
	}

	config.URL = url

	if method, ok := input["method"].(string); ok && method != "" {
		config.Method = strings.ToUpper(method)
	}

	if headers, ok := input["headers"].(map[string]any); ok {
		for key, value := range headers {
			config.Headers[key] = fmt.Sprint(value)
		}
	}

	switch body := input["body"].(type) {
	case nil:
	case string:
		config.Body = body
	default:
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("body is not JSON encodable: %w", err)
		}

		config.Body = string(encoded)
	}

	if timeout, ok := number(input["timeout"]); ok && timeout > 0 {
		config.Timeout = time.Duration(timeout * float64(time.Second))
	}

	if retries, ok := input["retries"].(map[string]any); ok {
		if attempts, ok := number(retries["attempts"]); ok {
			config.Retries.Attempts = int(attempts)
		}

		if delay, ok := number(retries["delay"]); ok {
			config.Retries.Delay = time.Duration(delay) * time.Millisecond
		}
	}

	if config.Retries.Attempts < 1 || config.Retries.Attempts > maxAttempts {
		return nil, fmt.Errorf("retry attempts must be between 1 and %d", maxAttempts)
	}

	return config, nil
}

func number(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()

		return f, err == nil
	default:
		return 0, false
	}
}
