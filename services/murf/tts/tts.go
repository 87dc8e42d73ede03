package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"voicedoc/core"
	"voicedoc/utils/audio"

	"github.com/bytedance/sonic"
)

const (
	defaultBaseURL    = "https://api.murf.ai/v1"
	defaultSampleRate = 24000
	maxAudioBytes     = 32 << 20
)

// MurfTTSConfig holds configuration for the Murf REST speech API.
type MurfTTSConfig struct {
	APIKey         string `json:"api_key" yaml:"api_key"`
	BaseURL        string `json:"base_url" yaml:"base_url"`
	Format         string `json:"format" yaml:"format"` // WAV, MP3, PCM, ULAW or ALAW
	SampleRate     int    `json:"sample_rate" yaml:"sample_rate"`
	Style          string `json:"style" yaml:"style"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

type (
	murfGenerateRequest struct {
		VoiceID        string `json:"voiceId"`
		Text           string `json:"text"`
		Format         string `json:"format"`
		SampleRate     int    `json:"sampleRate"`
		ChannelType    string `json:"channelType"`
		Style          string `json:"style,omitempty"`
		EncodeAsBase64 bool   `json:"encodeAsBase64"`
	}

	murfGenerateResponse struct {
		AudioFile            string  `json:"audioFile"`
		EncodedAudio         string  `json:"encodedAudio"`
		AudioLengthInSeconds float64 `json:"audioLengthInSeconds"`
		RemainingCharacters  int     `json:"remainingCharacterCount"`
		Warning              string  `json:"warning"`
	}

	murfErrorResponse struct {
		ErrorMessage string `json:"errorMessage"`
		ErrorCode    int    `json:"errorCode"`
	}
)

var murfFormats = map[string]core.AudioEncodingFormat{
	"WAV":  core.WAV,
	"MP3":  core.MP3,
	"PCM":  core.PCM,
	"ULAW": core.ULAW,
	"ALAW": core.ALAW,
}

// MurfTTS implements core.SpeechService: one generate call, then the
// rendered file is fetched from the returned URL.
type MurfTTS struct {
	config     MurfTTSConfig
	encoding   core.AudioEncodingFormat
	httpClient *http.Client
	logger     *core.Logger
}

// NewMurfTTS validates config and fills defaults.
func NewMurfTTS(config MurfTTSConfig, logger *core.Logger) (*MurfTTS, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, errors.New("murf tts: api key is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	config.Format = strings.ToUpper(strings.TrimSpace(config.Format))
	if config.Format == "" {
		config.Format = "WAV"
	}
	encoding, ok := murfFormats[config.Format]
	if !ok {
		return nil, fmt.Errorf("murf tts: unsupported format %q", config.Format)
	}
	if config.SampleRate <= 0 {
		config.SampleRate = defaultSampleRate
	}
	// µ-law and A-law are telephony encodings.
	if encoding == core.ULAW || encoding == core.ALAW {
		config.SampleRate = 8000
	}
	timeout := 30 * time.Second
	if config.TimeoutSeconds > 0 {
		timeout = time.Duration(config.TimeoutSeconds) * time.Second
	}
	if logger == nil {
		logger = core.GetLogger()
	}

	return &MurfTTS{
		config:     config,
		encoding:   encoding,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(map[string]any{"service": "murf_tts", "format": config.Format}),
	}, nil
}

// Synthesize renders text with a catalog voice.
func (m *MurfTTS) Synthesize(ctx context.Context, text, voiceID string) (*core.AudioClip, error) {
	if err := core.ValidateVoice(voiceID); err != nil {
		return nil, fmt.Errorf("murf tts: %w", err)
	}

	started := time.Now()
	resp, err := m.generate(ctx, text, voiceID)
	if err != nil {
		return nil, err
	}
	if resp.Warning != "" {
		m.logger.Warn("murf warning", "warning", resp.Warning)
	}

	var data []byte
	switch {
	case resp.EncodedAudio != "":
		data, err = base64.StdEncoding.DecodeString(resp.EncodedAudio)
		if err != nil {
			return nil, fmt.Errorf("murf tts: decode audio: %w: %v", core.ErrSynthesisFailed, err)
		}
	case resp.AudioFile != "":
		data, err = m.download(ctx, resp.AudioFile)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("murf tts: %w: response carries no audio", core.ErrSynthesisFailed)
	}
	if len(data) == 0 {
		return nil, nil
	}

	clip, err := audio.ToPlayableClip(data, m.encoding, m.config.SampleRate, 1)
	if err != nil {
		return nil, fmt.Errorf("murf tts: %w: %v", core.ErrSynthesisFailed, err)
	}

	m.logger.Debug("speech synthesized",
		"voice", voiceID,
		"bytes", clip.Size(),
		"audio_seconds", resp.AudioLengthInSeconds,
		"latency_ms", time.Since(started).Milliseconds(),
	)
	return clip, nil
}

func (m *MurfTTS) generate(ctx context.Context, text, voiceID string) (*murfGenerateResponse, error) {
	body, err := sonic.Marshal(murfGenerateRequest{
		VoiceID:     voiceID,
		Text:        text,
		Format:      m.config.Format,
		SampleRate:  m.config.SampleRate,
		ChannelType: "MONO",
		Style:       m.config.Style,
	})
	if err != nil {
		return nil, fmt.Errorf("murf tts: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.config.BaseURL+"/speech/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("murf tts: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", m.config.APIKey)

	res, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("murf tts: generate: %w: %v", core.ErrSynthesisUnavailable, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("murf tts: read response: %w: %v", core.ErrSynthesisUnavailable, err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, statusError(res.StatusCode, raw)
	}

	var out murfGenerateResponse
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("murf tts: decode response: %w: %v", core.ErrSynthesisFailed, err)
	}
	return &out, nil
}

func (m *MurfTTS) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("murf tts: build download: %w: %v", core.ErrSynthesisFailed, err)
	}
	res, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("murf tts: download: %w: %v", core.ErrSynthesisUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("murf tts: download: %w: status %d", core.ErrSynthesisUnavailable, res.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(res.Body, maxAudioBytes))
	if err != nil {
		return nil, fmt.Errorf("murf tts: download: %w: %v", core.ErrSynthesisUnavailable, err)
	}
	return data, nil
}

// statusError maps a non-200 generate response. Auth, quota and server
// errors make the service unavailable; other client errors reject this text.
func statusError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var e murfErrorResponse
	if sonic.Unmarshal(body, &e) == nil && e.ErrorMessage != "" {
		msg = e.ErrorMessage
	}

	sentinel := core.ErrSynthesisFailed
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden,
		status == http.StatusPaymentRequired, status == http.StatusTooManyRequests,
		status >= 500:
		sentinel = core.ErrSynthesisUnavailable
	}
	return fmt.Errorf("murf tts: generate: %w: status %d: %s", sentinel, status, msg)
}
