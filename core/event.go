package core

type IEvent interface {
	GetId() string // Returns the unique identifier of the event.
}

// EventSink receives packets emitted while a cycle runs. Presentation
// adapters subscribe through the session and fan packets out to clients.
type EventSink interface {
	Publish(packet *EventPacket)
}

// EventSinkFunc adapts a plain function to EventSink.
type EventSinkFunc func(packet *EventPacket)

func (f EventSinkFunc) Publish(packet *EventPacket) { f(packet) }
