package factories

import (
	"voicedoc/core"
	murftts "voicedoc/services/murf/tts"
	openaitts "voicedoc/services/openai/tts"
)

// SpeechFactoryConfig holds provider-specific configs for the speech client.
// Set exactly one provider config; the rest should be left nil.
type SpeechFactoryConfig struct {
	MurfConfig   *murftts.MurfTTSConfig `json:"murf,omitempty" yaml:"murf,omitempty"`
	OpenAIConfig *openaitts.Config      `json:"openai,omitempty" yaml:"openai,omitempty"`
}

func (c SpeechFactoryConfig) providerCount() int {
	n := 0
	if c.MurfConfig != nil {
		n++
	}
	if c.OpenAIConfig != nil {
		n++
	}
	return n
}

// BuildSpeechClient mirrors BuildCompletionClient for speech synthesis.
func BuildSpeechClient(config SpeechFactoryConfig, logger *core.Logger) core.SpeechClient {
	if logger == nil {
		logger = core.GetLogger()
	}
	switch config.providerCount() {
	case 0:
		return core.UnconfiguredSpeech{Reason: "no speech provider configured"}
	case 1:
	default:
		return core.UnconfiguredSpeech{Reason: "more than one speech provider configured"}
	}

	if config.MurfConfig != nil {
		if config.MurfConfig.APIKey == "" {
			return core.UnconfiguredSpeech{Reason: "missing API key for murf"}
		}
		svc, err := murftts.NewMurfTTS(*config.MurfConfig, logger)
		if err != nil {
			return core.UnconfiguredSpeech{Reason: err.Error()}
		}
		logger.With(map[string]any{"provider": "murf"}).Info("speech client configured")
		return core.ConfiguredSpeech{Service: svc, Provider: "murf"}
	}

	if config.OpenAIConfig.APIKey == "" {
		return core.UnconfiguredSpeech{Reason: "missing API key for openai"}
	}
	svc, err := openaitts.NewOpenAITTS(*config.OpenAIConfig, logger)
	if err != nil {
		return core.UnconfiguredSpeech{Reason: err.Error()}
	}
	logger.With(map[string]any{"provider": "openai"}).Info("speech client configured")
	return core.ConfiguredSpeech{Service: svc, Provider: "openai"}
}

// injectSpeechKeys applies the relevant API key to the configured provider.
func injectSpeechKeys(cfg *SpeechFactoryConfig, keys APIKeys) {
	if cfg.MurfConfig != nil && cfg.MurfConfig.APIKey == "" {
		cfg.MurfConfig.APIKey = keys.Murf
	}
	if cfg.OpenAIConfig != nil && cfg.OpenAIConfig.APIKey == "" {
		cfg.OpenAIConfig.APIKey = keys.OpenAI
	}
}
