package session

// SettingsChangedEvent is fired after a voice or auto-play change.
type SettingsChangedEvent struct {
	VoiceID  string `json:"voice_id"`
	AutoPlay bool   `json:"auto_play"`
}

func (e *SettingsChangedEvent) GetId() string {
	return "session.settings_changed"
}

// SessionResetEvent is fired when a session's transcript is discarded.
type SessionResetEvent struct {
	Reason string `json:"reason"`
}

func (e *SessionResetEvent) GetId() string {
	return "session.reset"
}

// SessionClosedEvent is fired once when the session is torn down.
type SessionClosedEvent struct {
	Reason string `json:"reason"`
}

func (e *SessionClosedEvent) GetId() string {
	return "session.closed"
}
