package aiprovider

import (
	"errors"
)

// Config is the resolved input of an ai-provider node.
type Config struct {
	Model        string
	Prompt       string
	SystemPrompt string
	BaseURL      string
	Temperature  *float32
	MaxTokens    *int
}

func ParseConfig(input map[string]any) (*Config, error) {
	config := &Config{}

	modelName, ok := input["model"].(string)
	if !ok || modelName == "" {
		return nil, errors.New("missing required field 'model'")
	}

	prompt, ok := input["prompt"].(string)
	if !ok || prompt == "" {
		return nil, errors.New("missing required field 'prompt'")
	}

	config.Model = modelName
	config.Prompt = prompt
	config.SystemPrompt, _ = input["system_prompt"].(string)
	config.BaseURL, _ = input["base_url"].(string)

	if temperature, ok := number(input["temperature"]); ok {
		value := float32(temperature)
		config.Temperature = &value
	}

	if maxTokens, ok := number(input["max_tokens"]); ok {
		value := int(maxTokens)
		config.MaxTokens = &value
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
	default:
		return 0, false
	}
}
