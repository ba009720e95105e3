// Package aiprovider provides the ai-provider node executor, a chat completion
// call against an OpenAI compatible endpoint.
package aiprovider

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/dukex/runledger/pkg/models"
	"github.com/dukex/runledger/pkg/protocol"
)

// ModelFactory builds the chat model for one invocation.
type ModelFactory func(ctx context.Context, config *openai.ChatModelConfig) (model.BaseChatModel, error)

// Executor calls a chat model with the resolved prompt.
type Executor struct {
	credentials protocol.CredentialResolver
	newModel    ModelFactory
}

// NewExecutor creates the executor. A nil factory uses the eino OpenAI model.
func NewExecutor(credentials protocol.CredentialResolver, factory ModelFactory) *Executor {
	if factory == nil {
		factory = func(ctx context.Context, config *openai.ChatModelConfig) (model.BaseChatModel, error) {
			return openai.NewChatModel(ctx, config)
		}
	}

	return &Executor{credentials: credentials, newModel: factory}
}

func (e *Executor) Type() string {
	return models.NodeTypeAIProvider
}

func (e *Executor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"model": map[string]any{
				"type":        "string",
				"description": "Model name, e.g. gpt-4o-mini",
				"minLength":   1,
			},
			"prompt": map[string]any{
				"type":        "string",
				"description": "User prompt. Supports templates such as {{httpResponse.data.id}}",
				"minLength":   1,
			},
			"system_prompt": map[string]any{"type": "string"},
			"base_url": map[string]any{
				"type":        "string",
				"description": "OpenAI compatible API base URL",
			},
			"temperature": map[string]any{"type": "number", "minimum": 0, "maximum": 2},
			"max_tokens":  map[string]any{"type": "integer", "minimum": 1},
		},
		"required": []string{"model", "prompt"},
	}
}

// Execute sends the prompt and returns {text, model, usage}. The API key is
// read through the credential reference and never appears in the output.
func (e *Executor) Execute(ctx context.Context, req protocol.ExecuteRequest) (map[string]any, error) {
	config, err := ParseConfig(req.Input)
	if err != nil {
		return nil, err
	}

	if req.CredentialRef == "" {
		return nil, errors.New("ai-provider node requires a credential reference")
	}

	if e.credentials == nil {
		return nil, fmt.Errorf("%w: %s", protocol.ErrCredentialNotFound, req.CredentialRef)
	}

	apiKey, err := e.credentials.Resolve(ctx, req.CredentialRef)
	if err != nil {
		return nil, err
	}

	chatConfig := &openai.ChatModelConfig{
		APIKey:      apiKey,
		Model:       config.Model,
		BaseURL:     config.BaseURL,
		Temperature: config.Temperature,
		MaxTokens:   config.MaxTokens,
	}

	chatModel, err := e.newModel(ctx, chatConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	var messages []*schema.Message
	if config.SystemPrompt != "" {
		messages = append(messages, schema.SystemMessage(config.SystemPrompt))
	}

	messages = append(messages, schema.UserMessage(config.Prompt))

	response, err := chatModel.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	usage := map[string]any{
		"prompt_tokens":     0,
		"completion_tokens": 0,
		"total_tokens":      0,
	}

	output := map[string]any{
		"text":  response.Content,
		"model": config.Model,
		"usage": usage,
	}

	if response.ResponseMeta != nil {
		output["finish_reason"] = response.ResponseMeta.FinishReason

		if response.ResponseMeta.Usage != nil {
			usage["prompt_tokens"] = response.ResponseMeta.Usage.PromptTokens
			usage["completion_tokens"] = response.ResponseMeta.Usage.CompletionTokens
			usage["total_tokens"] = response.ResponseMeta.Usage.TotalTokens
		}
	}

	return output, nil
}
