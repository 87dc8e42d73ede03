package protocol

import "time"

// Live channel, server -> browser.
const (
	MsgState    MessageType = "state"
	MsgTurn     MessageType = "turn"
	MsgNotice   MessageType = "notice"
	MsgSettings MessageType = "settings"
	MsgReset    MessageType = "reset"
	MsgError    MessageType = "error"
)

// Live channel, browser -> server.
const (
	MsgUserMessage    MessageType = "user_message"
	MsgSettingsUpdate MessageType = "settings_update"
	MsgResetRequest   MessageType = "reset_request"
)

// StatePayload reports a cycle state transition.
type StatePayload struct {
	CycleID string `json:"cycle_id"`
	State   string `json:"state"`
}

// TurnPayload is one committed transcript turn as the browser renders it.
type TurnPayload struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Label     string    `json:"label"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Degraded  bool      `json:"degraded,omitempty"`
	AudioURL  string    `json:"audio_url,omitempty"`
	AutoPlay  bool      `json:"auto_play,omitempty"`
}

// NoticePayload is a non-fatal message about a degraded outcome.
type NoticePayload struct {
	Level   string `json:"level"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SettingsPayload mirrors the session settings after a change.
type SettingsPayload struct {
	VoiceID  string `json:"voice_id"`
	AutoPlay bool   `json:"auto_play"`
}

// ResetPayload tells the browser to clear its transcript.
type ResetPayload struct {
	Reason string `json:"reason,omitempty"`
}

// ErrorPayload rejects a browser request.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// UserMessagePayload submits one user message.
type UserMessagePayload struct {
	Text string `json:"text"`
}

// SettingsUpdatePayload changes one or both settings; nil fields are left alone.
type SettingsUpdatePayload struct {
	VoiceID  *string `json:"voice_id,omitempty"`
	AutoPlay *bool   `json:"auto_play,omitempty"`
}
