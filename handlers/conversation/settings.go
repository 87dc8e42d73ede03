package conversation

import (
	"sync"

	"voicedoc/core"
)

// SettingsSnapshot is a point-in-time copy of Settings.
type SettingsSnapshot struct {
	VoiceID  string `json:"voice_id"`
	AutoPlay bool   `json:"auto_play"`
}

// Settings is the small mutable per-session preference record.
type Settings struct {
	mu       sync.RWMutex
	voiceID  string
	autoPlay bool
}

// NewSettings falls back to core.DefaultVoiceID when voiceID is not in the catalog.
func NewSettings(voiceID string, autoPlay bool) *Settings {
	if core.ValidateVoice(voiceID) != nil {
		voiceID = core.DefaultVoiceID
	}
	return &Settings{voiceID: voiceID, autoPlay: autoPlay}
}

func (s *Settings) VoiceID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.voiceID
}

// SetVoice selects a catalog voice; other ids are rejected with ErrInvalidVoice.
func (s *Settings) SetVoice(id string) error {
	if err := core.ValidateVoice(id); err != nil {
		return err
	}
	s.mu.Lock()
	s.voiceID = id
	s.mu.Unlock()
	return nil
}

func (s *Settings) AutoPlay() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.autoPlay
}

func (s *Settings) SetAutoPlay(on bool) {
	s.mu.Lock()
	s.autoPlay = on
	s.mu.Unlock()
}

func (s *Settings) Snapshot() SettingsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SettingsSnapshot{VoiceID: s.voiceID, AutoPlay: s.autoPlay}
}
