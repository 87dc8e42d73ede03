package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"voicedoc/core"
	"voicedoc/utils/audio"

	"github.com/sashabaranov/go-openai"
)

// OpenAI speech returns raw 16-bit mono PCM at this rate.
const pcmSampleRate = 24000

// Config holds the settings for the OpenAI speech endpoint.
type Config struct {
	APIKey         string  `json:"api_key" yaml:"api_key"`
	BaseURL        string  `json:"base_url" yaml:"base_url"`
	Model          string  `json:"model" yaml:"model"`
	Speed          float64 `json:"speed" yaml:"speed"`
	TimeoutSeconds int     `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// catalogVoices maps the fixed voice catalog onto OpenAI's built-in voices.
var catalogVoices = map[string]openai.SpeechVoice{
	"en-US-terrell": openai.VoiceOnyx,
	"en-US-natalie": openai.VoiceNova,
	"en-US-ariana":  openai.VoiceShimmer,
	"en-UK-ruby":    openai.VoiceFable,
	"fr-FR-axel":    openai.VoiceEcho,
}

// OpenAITTS implements core.SpeechService on the audio/speech endpoint.
type OpenAITTS struct {
	client *openai.Client
	config Config
	logger *core.Logger
}

func NewOpenAITTS(config Config, logger *core.Logger) (*OpenAITTS, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, errors.New("openai tts: api key is required")
	}
	if config.Model == "" {
		config.Model = string(openai.TTSModel1)
	}
	if config.Speed == 0 {
		config.Speed = 1.0
	}
	timeout := 30 * time.Second
	if config.TimeoutSeconds > 0 {
		timeout = time.Duration(config.TimeoutSeconds) * time.Second
	}
	if logger == nil {
		logger = core.GetLogger()
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(config.BaseURL, "/")
	}
	clientConfig.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAITTS{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
		logger: logger.With(map[string]any{"service": "openai_tts"}),
	}, nil
}

// Synthesize requests PCM and wraps it in a WAV container.
func (o *OpenAITTS) Synthesize(ctx context.Context, text, voiceID string) (*core.AudioClip, error) {
	voice, ok := catalogVoices[voiceID]
	if !ok {
		return nil, fmt.Errorf("openai tts: %w: %q", core.ErrInvalidVoice, voiceID)
	}

	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(o.config.Model),
		Input:          text,
		Voice:          voice,
		ResponseFormat: openai.SpeechResponseFormatPcm,
		Speed:          o.config.Speed,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 &&
			apiErr.HTTPStatusCode != http.StatusUnauthorized && apiErr.HTTPStatusCode != http.StatusTooManyRequests {
			return nil, fmt.Errorf("openai tts: synthesize: %w: status %d: %s", core.ErrSynthesisFailed, apiErr.HTTPStatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("openai tts: synthesize: %w: %v", core.ErrSynthesisUnavailable, err)
	}
	defer resp.Close()

	pcm, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("openai tts: read audio: %w: %v", core.ErrSynthesisUnavailable, err)
	}
	if len(pcm) == 0 {
		return nil, nil
	}
	if len(pcm)%2 != 0 {
		// A trailing half sample cannot be played; drop it.
		pcm = pcm[:len(pcm)-1]
	}

	clip, err := audio.ToPlayableClip(pcm, core.PCM, pcmSampleRate, 1)
	if err != nil {
		return nil, fmt.Errorf("openai tts: %w: %v", core.ErrSynthesisFailed, err)
	}
	o.logger.Debug("speech synthesized", "voice", string(voice), "bytes", clip.Size())
	return clip, nil
}
