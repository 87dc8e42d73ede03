package factories

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"voicedoc/core"
	"voicedoc/handlers/turn"
	murftts "voicedoc/services/murf/tts"
	openaillm "voicedoc/services/openai/llm"

	"github.com/bytedance/sonic"
	"gopkg.in/yaml.v3"
)

// ServerConfig configures the web presentation adapter.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// SessionDefaults applies to every new session.
type SessionDefaults struct {
	IdleTimeoutSeconds int    `json:"idle_timeout_seconds" yaml:"idle_timeout_seconds"`
	DefaultVoice       string `json:"default_voice" yaml:"default_voice"`
	AutoPlay           bool   `json:"auto_play" yaml:"auto_play"`
}

// IdleTimeout returns the configured timeout, or zero to keep sessions forever.
func (s SessionDefaults) IdleTimeout() time.Duration {
	if s.IdleTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(s.IdleTimeoutSeconds) * time.Second
}

// TerminalConfig configures the terminal presentation adapter.
type TerminalConfig struct {
	// AudioDir receives one file per synthesized reply.
	AudioDir string `json:"audio_dir" yaml:"audio_dir"`
	// PlayerCommand is run with the clip path appended, e.g. "afplay" or "aplay -q".
	PlayerCommand string `json:"player_command" yaml:"player_command"`
}

// SettingsConfig is the top-level config loaded from settings.json or settings.yaml.
// Secrets are not read from the file; see InjectAPIKeys.
type SettingsConfig struct {
	Server     ServerConfig            `json:"server" yaml:"server"`
	Assistant  turn.TurnConfig         `json:"assistant" yaml:"assistant"`
	Completion CompletionFactoryConfig `json:"completion" yaml:"completion"`
	Speech     SpeechFactoryConfig     `json:"speech" yaml:"speech"`
	Session    SessionDefaults         `json:"session" yaml:"session"`
	Terminal   TerminalConfig          `json:"terminal" yaml:"terminal"`
}

// DefaultSettingsConfig returns a SettingsConfig pre-filled with provider defaults:
// Groq for completion and Murf for speech.
func DefaultSettingsConfig() SettingsConfig {
	return SettingsConfig{
		Server:    ServerConfig{Addr: ":8501"},
		Assistant: turn.DefaultConfig(),
		Completion: CompletionFactoryConfig{
			GroqConfig: &openaillm.Config{
				Model:       groqDefaultModel,
				MaxTokens:   500,
				Temperature: 0.7,
			},
		},
		Speech: SpeechFactoryConfig{
			MurfConfig: &murftts.MurfTTSConfig{Format: "WAV"},
		},
		Session: SessionDefaults{
			IdleTimeoutSeconds: 30 * 60,
			DefaultVoice:       core.DefaultVoiceID,
			AutoPlay:           true,
		},
		Terminal: TerminalConfig{
			AudioDir: filepath.Join(os.TempDir(), "voicedoc"),
		},
	}
}

// providerSections is decoded separately so a file that names a provider
// replaces the default provider instead of being merged with it.
type providerSections struct {
	Completion *CompletionFactoryConfig `json:"completion" yaml:"completion"`
	Speech     *SpeechFactoryConfig     `json:"speech" yaml:"speech"`
}

func (p providerSections) apply(cfg *SettingsConfig) {
	if p.Completion != nil {
		cfg.Completion = *p.Completion
	}
	if p.Speech != nil {
		cfg.Speech = *p.Speech
	}
}

// SettingsConfigFromJSON parses a JSON blob on top of DefaultSettingsConfig.
func SettingsConfigFromJSON(data []byte) (SettingsConfig, error) {
	cfg := DefaultSettingsConfig()
	if err := sonic.Unmarshal(data, &cfg); err != nil {
		return SettingsConfig{}, fmt.Errorf("settings: %w", err)
	}
	var sections providerSections
	if err := sonic.Unmarshal(data, &sections); err != nil {
		return SettingsConfig{}, fmt.Errorf("settings: %w", err)
	}
	sections.apply(&cfg)
	return cfg, cfg.Validate()
}

// SettingsConfigFromYAML is the YAML twin of SettingsConfigFromJSON.
func SettingsConfigFromYAML(data []byte) (SettingsConfig, error) {
	cfg := DefaultSettingsConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return SettingsConfig{}, fmt.Errorf("settings: %w", err)
	}
	var sections providerSections
	if err := yaml.Unmarshal(data, &sections); err != nil {
		return SettingsConfig{}, fmt.Errorf("settings: %w", err)
	}
	sections.apply(&cfg)
	return cfg, cfg.Validate()
}

// SettingsConfigFromFile reads path, choosing the parser by extension.
func SettingsConfigFromFile(path string) (SettingsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultSettingsConfig(), fmt.Errorf("settings: read %q: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return SettingsConfigFromYAML(data)
	default:
		return SettingsConfigFromJSON(data)
	}
}

// SettingsConfigFromBase64 decodes the SETTINGS_JSON_B64 form.
func SettingsConfigFromBase64(b64 string) (SettingsConfig, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
	if err != nil {
		return DefaultSettingsConfig(), fmt.Errorf("settings: decode base64: %w", err)
	}
	return SettingsConfigFromJSON(data)
}

// Validate rejects values no component can run with.
func (c SettingsConfig) Validate() error {
	if c.Assistant.HistoryWindow <= 0 {
		return fmt.Errorf("settings: assistant.history_window must be > 0, got %d", c.Assistant.HistoryWindow)
	}
	if c.Session.DefaultVoice != "" {
		if err := core.ValidateVoice(c.Session.DefaultVoice); err != nil {
			return fmt.Errorf("settings: session.default_voice: %w", err)
		}
	}
	if n := c.Completion.providerCount(); n > 1 {
		return fmt.Errorf("settings: completion: %d providers configured, want exactly one", n)
	}
	if n := c.Speech.providerCount(); n > 1 {
		return fmt.Errorf("settings: speech: %d providers configured, want exactly one", n)
	}
	return nil
}

// APIKeys holds API credentials for all supported service providers.
// Pass to SettingsConfig.InjectAPIKeys after loading so that secrets are
// never stored in config files.
type APIKeys struct {
	OpenAI     string // OpenAI completion and OpenAI speech.
	Groq       string
	Together   string
	DeepSeek   string
	OpenRouter string
	Fireworks  string
	Cerebras   string
	XAI        string
	Mistral    string
	Perplexity string
	Murf       string
}

// APIKeysFromEnv reads the conventional <PROVIDER>_API_KEY variables.
func APIKeysFromEnv() APIKeys {
	return APIKeys{
		OpenAI:     os.Getenv("OPENAI_API_KEY"),
		Groq:       os.Getenv("GROQ_API_KEY"),
		Together:   os.Getenv("TOGETHER_API_KEY"),
		DeepSeek:   os.Getenv("DEEPSEEK_API_KEY"),
		OpenRouter: os.Getenv("OPENROUTER_API_KEY"),
		Fireworks:  os.Getenv("FIREWORKS_API_KEY"),
		Cerebras:   os.Getenv("CEREBRAS_API_KEY"),
		XAI:        os.Getenv("XAI_API_KEY"),
		Mistral:    os.Getenv("MISTRAL_API_KEY"),
		Perplexity: os.Getenv("PERPLEXITY_API_KEY"),
		Murf:       os.Getenv("MURF_API_KEY"),
	}
}

// InjectAPIKeys fills empty api_key fields of the configured providers.
func (c *SettingsConfig) InjectAPIKeys(keys APIKeys) {
	injectCompletionKeys(&c.Completion, keys)
	injectSpeechKeys(&c.Speech, keys)
}
