package factories_test

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"voicedoc/core"
	"voicedoc/factories"
)

func TestDefaultSettings(t *testing.T) {
	cfg := factories.DefaultSettingsConfig()
	if cfg.Completion.GroqConfig == nil || cfg.Completion.GroqConfig.Model != "qwen/qwen3-32b" {
		t.Errorf("default completion = %+v", cfg.Completion.GroqConfig)
	}
	if cfg.Speech.MurfConfig == nil {
		t.Error("default speech provider should be murf")
	}
	if cfg.Assistant.HistoryWindow != 10 || !cfg.Session.AutoPlay || cfg.Session.DefaultVoice != core.DefaultVoiceID {
		t.Errorf("defaults = %+v / %+v", cfg.Assistant, cfg.Session)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestSettingsFromJSONReplacesProvider(t *testing.T) {
	cfg, err := factories.SettingsConfigFromJSON([]byte(`{
		"server": {"addr": ":9000"},
		"assistant": {"history_window": 4},
		"completion": {"openai": {"model": "gpt-4o"}},
		"session": {"auto_play": false}
	}`))
	if err != nil {
		t.Fatalf("SettingsConfigFromJSON: %v", err)
	}
	if cfg.Completion.GroqConfig != nil {
		t.Error("naming a provider must drop the default one")
	}
	if cfg.Completion.OpenAIConfig == nil || cfg.Completion.OpenAIConfig.Model != "gpt-4o" {
		t.Errorf("openai = %+v", cfg.Completion.OpenAIConfig)
	}
	if cfg.Speech.MurfConfig == nil {
		t.Error("absent speech section keeps the default provider")
	}
	if cfg.Server.Addr != ":9000" || cfg.Assistant.HistoryWindow != 4 || cfg.Session.AutoPlay {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Assistant.SystemPrompt == "" {
		t.Error("unset fields keep their defaults")
	}
}

func TestSettingsFromYAML(t *testing.T) {
	cfg, err := factories.SettingsConfigFromYAML([]byte(`
assistant:
  system_prompt: "You are a pharmacist."
speech:
  openai:
    speed: 1.25
session:
  default_voice: en-UK-ruby
  idle_timeout_seconds: 60
terminal:
  player_command: aplay -q
`))
	if err != nil {
		t.Fatalf("SettingsConfigFromYAML: %v", err)
	}
	if cfg.Assistant.SystemPrompt != "You are a pharmacist." {
		t.Errorf("prompt = %q", cfg.Assistant.SystemPrompt)
	}
	if cfg.Speech.MurfConfig != nil || cfg.Speech.OpenAIConfig == nil || cfg.Speech.OpenAIConfig.Speed != 1.25 {
		t.Errorf("speech = %+v", cfg.Speech)
	}
	if cfg.Session.DefaultVoice != "en-UK-ruby" || cfg.Session.IdleTimeout().Seconds() != 60 {
		t.Errorf("session = %+v", cfg.Session)
	}
	if cfg.Terminal.PlayerCommand != "aplay -q" {
		t.Errorf("terminal = %+v", cfg.Terminal)
	}
}

func TestSettingsValidation(t *testing.T) {
	for name, doc := range map[string]string{
		"negative window": `{"assistant": {"history_window": -1}}`,
		"zero window":     `{"assistant": {"history_window": 0}}`,
		"unknown voice":   `{"session": {"default_voice": "xx-XX-nobody"}}`,
		"two providers":   `{"completion": {"openai": {}, "groq": {}}}`,
		"not json":        `{`,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := factories.SettingsConfigFromJSON([]byte(doc)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSettingsFromFileAndBase64(t *testing.T) {
	doc := `{"server": {"addr": ":7000"}}`
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	fromFile, err := factories.SettingsConfigFromFile(path)
	if err != nil || fromFile.Server.Addr != ":7000" {
		t.Errorf("from file = %+v, %v", fromFile.Server, err)
	}

	fromB64, err := factories.SettingsConfigFromBase64(base64.StdEncoding.EncodeToString([]byte(doc)))
	if err != nil || fromB64.Server.Addr != ":7000" {
		t.Errorf("from base64 = %+v, %v", fromB64.Server, err)
	}

	if _, err := factories.SettingsConfigFromFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("missing file should error")
	}
}

func TestInjectAPIKeys(t *testing.T) {
	cfg := factories.DefaultSettingsConfig()
	cfg.Speech.MurfConfig.APIKey = "from-file"
	cfg.InjectAPIKeys(factories.APIKeys{Groq: "gsk", Murf: "murf-env"})

	if cfg.Completion.GroqConfig.APIKey != "gsk" {
		t.Errorf("groq key = %q", cfg.Completion.GroqConfig.APIKey)
	}
	if cfg.Speech.MurfConfig.APIKey != "from-file" {
		t.Error("explicit keys must not be overwritten")
	}
}

func TestAPIKeysFromEnv(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk_test")
	t.Setenv("MURF_API_KEY", "murf_test")
	keys := factories.APIKeysFromEnv()
	if keys.Groq != "gsk_test" || keys.Murf != "murf_test" {
		t.Errorf("keys = %+v", keys)
	}
}
