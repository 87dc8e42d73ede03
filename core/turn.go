package core

import (
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the transcript roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is one utterance in the conversation. Turns are values: once appended
// to a transcript they are never modified.
type Turn struct {
	ID        string     `json:"id"`
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Audio     *AudioClip `json:"-"`
	Degraded  bool       `json:"degraded,omitempty"` // Content is the fixed degraded reply.
	Timestamp time.Time  `json:"timestamp"`
}

// HasAudio reports whether synthesized audio is attached.
func (t Turn) HasAudio() bool {
	return t.Audio != nil && len(t.Audio.Data) > 0
}

// NewTurnID returns a short URL-safe id used to address a turn's audio.
func NewTurnID() string {
	id, err := gonanoid.New(12)
	if err != nil {
		return uuid.New().String()
	}
	return id
}
