package core

import "context"

// SpeechService turns text into a playable clip for a catalog voice.
// A nil clip with a nil error means the provider produced no audio.
// Errors wrap ErrInvalidVoice, ErrSynthesisUnavailable or ErrSynthesisFailed.
type SpeechService interface {
	Synthesize(ctx context.Context, text, voiceID string) (*AudioClip, error)
}

// SpeechClient mirrors CompletionClient for the speech collaborator.
type SpeechClient interface {
	speechClient()
}

type ConfiguredSpeech struct {
	Service  SpeechService
	Provider string
}

type UnconfiguredSpeech struct {
	Reason string
}

func (ConfiguredSpeech) speechClient()   {}
func (UnconfiguredSpeech) speechClient() {}
