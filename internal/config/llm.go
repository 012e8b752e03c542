package config

// GenAIConfig configures the generator host's GenAI-backed provider (C1).
type GenAIConfig struct {
	Provider string `yaml:"provider"` // currently only "genai" (Gemini) is shipped
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Timeout  string `yaml:"timeout"`

	Gemini GeminiProviderConfig `yaml:"gemini"`
}

// GeminiProviderConfig holds Gemini-specific generation tuning.
type GeminiProviderConfig struct {
	// EnableThinking enables thinking/reasoning mode for reasoning/quality calls.
	EnableThinking bool `yaml:"enable_thinking,omitempty"`

	// ThinkingLevel: "minimal", "low", "medium", "high" (lowercase).
	ThinkingLevel string `yaml:"thinking_level,omitempty"`
}

// DefaultGeminiProviderConfig returns sensible defaults for reasoning/quality
// generation calls.
func DefaultGeminiProviderConfig() GeminiProviderConfig {
	return GeminiProviderConfig{
		EnableThinking: true,
		ThinkingLevel:  "high",
	}
}
