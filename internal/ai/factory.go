package ai

import (
	"fmt"

	"github.com/kiranshivaraju/findoc/internal/config"
	"github.com/kiranshivaraju/findoc/pkg/models"
)

// NewProvider constructs the appropriate AI provider based on config.
// Called once at process startup.
func NewProvider(cfg config.AIConfig) (models.AIProvider, error) {
	switch cfg.Provider {
	case "openai":
		return NewChatProvider("openai", cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.InferenceTimeout), nil
	case "ollama":
		// Ollama ignores the key but its OpenAI-compatible API expects the header.
		return NewChatProvider("ollama", cfg.Ollama.BaseURL, "ollama", cfg.Ollama.Model, cfg.InferenceTimeout), nil
	case "vllm":
		return NewChatProvider("vllm", cfg.VLLM.BaseURL, "", cfg.VLLM.Model, cfg.InferenceTimeout), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of openai, ollama, vllm", cfg.Provider)
	}
}
