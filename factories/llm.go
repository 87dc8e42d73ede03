package factories

import (
	"voicedoc/core"
	openaillm "voicedoc/services/openai/llm"
)

// CompletionFactoryConfig holds provider-specific configs for the completion client.
// Set exactly one provider config; the rest should be left nil.
// All non-OpenAI providers use the OpenAI-compatible protocol and are
// implemented via the same OpenAI service with a custom base URL.
type CompletionFactoryConfig struct {
	OpenAIConfig     *openaillm.Config `json:"openai,omitempty" yaml:"openai,omitempty"`
	TogetherConfig   *openaillm.Config `json:"together,omitempty" yaml:"together,omitempty"`
	GroqConfig       *openaillm.Config `json:"groq,omitempty" yaml:"groq,omitempty"`
	DeepSeekConfig   *openaillm.Config `json:"deepseek,omitempty" yaml:"deepseek,omitempty"`
	OpenRouterConfig *openaillm.Config `json:"openrouter,omitempty" yaml:"openrouter,omitempty"`
	FireworksConfig  *openaillm.Config `json:"fireworks,omitempty" yaml:"fireworks,omitempty"`
	CerebrasConfig   *openaillm.Config `json:"cerebras,omitempty" yaml:"cerebras,omitempty"`
	XAIConfig        *openaillm.Config `json:"xai,omitempty" yaml:"xai,omitempty"`
	MistralConfig    *openaillm.Config `json:"mistral,omitempty" yaml:"mistral,omitempty"`
	PerplexityConfig *openaillm.Config `json:"perplexity,omitempty" yaml:"perplexity,omitempty"`
}

// Default base URLs for OpenAI-compatible providers.
const (
	togetherBaseURL   = "https://api.together.xyz/v1"
	groqBaseURL       = "https://api.groq.com/openai/v1"
	deepseekBaseURL   = "https://api.deepseek.com/v1"
	openrouterBaseURL = "https://openrouter.ai/api/v1"
	fireworksBaseURL  = "https://api.fireworks.ai/inference/v1"
	cerebrasBaseURL   = "https://api.cerebras.ai/v1"
	xaiBaseURL        = "https://api.x.ai/v1"
	mistralBaseURL    = "https://api.mistral.ai/v1"
	perplexityBaseURL = "https://api.perplexity.ai"
)

const groqDefaultModel = "qwen/qwen3-32b"

type completionProvider struct {
	name         string
	config       *openaillm.Config
	baseURL      string
	defaultModel string
}

func (c CompletionFactoryConfig) providers() []completionProvider {
	return []completionProvider{
		{"openai", c.OpenAIConfig, "", "gpt-4o-mini"},
		{"together", c.TogetherConfig, togetherBaseURL, "meta-llama/Llama-3.3-70B-Instruct-Turbo"},
		{"groq", c.GroqConfig, groqBaseURL, groqDefaultModel},
		{"deepseek", c.DeepSeekConfig, deepseekBaseURL, "deepseek-chat"},
		{"openrouter", c.OpenRouterConfig, openrouterBaseURL, "openai/gpt-4o"},
		{"fireworks", c.FireworksConfig, fireworksBaseURL, "accounts/fireworks/models/llama-v3p3-70b-instruct"},
		{"cerebras", c.CerebrasConfig, cerebrasBaseURL, "llama-3.3-70b"},
		{"xai", c.XAIConfig, xaiBaseURL, "grok-3"},
		{"mistral", c.MistralConfig, mistralBaseURL, "mistral-large-latest"},
		{"perplexity", c.PerplexityConfig, perplexityBaseURL, "sonar-pro"},
	}
}

func (c CompletionFactoryConfig) providerCount() int {
	n := 0
	for _, p := range c.providers() {
		if p.config != nil {
			n++
		}
	}
	return n
}

// BuildCompletionClient decides, once, whether completion is available.
// A missing provider section or api key yields core.UnconfiguredCompletion
// with the reason so the UI can say why replies are degraded.
func BuildCompletionClient(config CompletionFactoryConfig, logger *core.Logger) core.CompletionClient {
	if logger == nil {
		logger = core.GetLogger()
	}
	if n := config.providerCount(); n != 1 {
		reason := "no completion provider configured"
		if n > 1 {
			reason = "more than one completion provider configured"
		}
		return core.UnconfiguredCompletion{Reason: reason}
	}

	for _, p := range config.providers() {
		if p.config == nil {
			continue
		}
		cfg := *p.config
		if cfg.BaseURL == "" {
			cfg.BaseURL = p.baseURL
		}
		if cfg.Model == "" {
			cfg.Model = p.defaultModel
		}
		if cfg.APIKey == "" {
			return core.UnconfiguredCompletion{Reason: "missing API key for " + p.name}
		}
		svc, err := openaillm.NewOpenAILLMService(cfg, logger)
		if err != nil {
			return core.UnconfiguredCompletion{Reason: err.Error()}
		}
		logger.With(map[string]any{"provider": p.name, "model": cfg.Model}).Info("completion client configured")
		return core.ConfiguredCompletion{Service: svc, Provider: p.name}
	}
	return core.UnconfiguredCompletion{Reason: "no completion provider configured"}
}

// injectCompletionKeys applies the relevant API key to the configured provider.
func injectCompletionKeys(cfg *CompletionFactoryConfig, keys APIKeys) {
	byName := map[string]string{
		"openai":     keys.OpenAI,
		"together":   keys.Together,
		"groq":       keys.Groq,
		"deepseek":   keys.DeepSeek,
		"openrouter": keys.OpenRouter,
		"fireworks":  keys.Fireworks,
		"cerebras":   keys.Cerebras,
		"xai":        keys.XAI,
		"mistral":    keys.Mistral,
		"perplexity": keys.Perplexity,
	}
	for _, p := range cfg.providers() {
		if p.config != nil && p.config.APIKey == "" {
			p.config.APIKey = byName[p.name]
		}
	}
}
