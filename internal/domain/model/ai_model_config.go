package model

import "fmt"

const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2048
)

// AIModelConfig is static metadata about a model a provider can serve.
type AIModelConfig struct {
	Name        string  `json:"name"`
	Provider    string  `json:"provider"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Description string  `json:"description,omitempty"`
}

func NewAIModelConfig(name, provider string) AIModelConfig {
	return AIModelConfig{
		Name:        name,
		Provider:    provider,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
		Description: fmt.Sprintf("Modelo %s do provedor %s", name, provider),
	}
}
