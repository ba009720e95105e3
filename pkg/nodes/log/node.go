// Package log provides the log node executor. It writes its resolved message
// to the process logger and echoes it as the node output.
package log

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/runledger/pkg/models"
	"github.com/dukex/runledger/pkg/protocol"
)

// NodeType is the tag the executor is registered under.
const NodeType = models.NodeTypeLog

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Executor logs messages.
type Executor struct {
	logger *slog.Logger
}

// NewExecutor creates the executor. A nil logger uses slog.Default.
func NewExecutor(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{logger: logger.With("node_type", NodeType)}
}

func (e *Executor) Type() string {
	return NodeType
}

func (e *Executor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"description": "Message to log. Supports templates such as {{httpResponse.status}}",
			},
			"level": map[string]any{
				"type":    "string",
				"default": "info",
				"enum":    []string{"debug", "info", "warn", "error"},
			},
		},
		"required": []string{"message"},
	}
}

// Execute logs the message at the configured level.
func (e *Executor) Execute(ctx context.Context, req protocol.ExecuteRequest) (map[string]any, error) {
	raw, ok := req.Input["message"]
	if !ok {
		return nil, errors.New("missing required field 'message'")
	}

	message, ok := raw.(string)
	if !ok {
		message = fmt.Sprintf("%v", raw)
	}

	levelName := "info"
	if lvl, ok := req.Input["level"].(string); ok && lvl != "" {
		levelName = lvl
	}

	level, ok := levels[levelName]
	if !ok {
		return nil, fmt.Errorf("invalid log level '%s' (must be debug, info, warn, or error)", levelName)
	}

	e.logger.Log(ctx, level, message,
		"execution_id", req.ExecutionID,
		"node_id", req.NodeID,
	)

	return map[string]any{
		"message": message,
		"level":   levelName,
		"logged":  true,
	}, nil
}
