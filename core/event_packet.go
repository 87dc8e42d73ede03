package core

import (
	"time"

	"github.com/google/uuid"
)

type EventPacket struct {
	Event     IEvent
	SessionID string    // Session the event belongs to.
	Uid       string    // Unique identifier for tracking the event packet.
	Relayer   string    // Identifier of the component that emitted the event.
	Timestamp time.Time // Emission time.
}

func NewEventPacket(event IEvent, sessionID, relayer string) *EventPacket {
	return &EventPacket{
		Event:     event,
		SessionID: sessionID,
		Uid:       uuid.New().String(),
		Relayer:   relayer,
		Timestamp: time.Now(),
	}
}
