package turn

import (
	"fmt"

	"voicedoc/core"
	turnevents "voicedoc/events/turn"
	"voicedoc/handlers/conversation"

	"github.com/google/uuid"
)

// nextState lists the only legal successor of each state. Rendered is terminal.
var nextState = map[turnevents.CycleState]turnevents.CycleState{
	turnevents.CycleIdle:               turnevents.CycleAwaitingCompletion,
	turnevents.CycleAwaitingCompletion: turnevents.CycleAwaitingSpeech,
	turnevents.CycleAwaitingSpeech:     turnevents.CycleRendered,
}

// cycle tracks one request/response unit and publishes each transition.
type cycle struct {
	id      string
	state   turnevents.CycleState
	session *conversation.Session
}

func newCycle(session *conversation.Session) *cycle {
	c := &cycle{
		id:      uuid.New().String(),
		state:   turnevents.CycleIdle,
		session: session,
	}
	c.publish(&turnevents.CycleStateEvent{CycleID: c.id, State: c.state})
	return c
}

func (c *cycle) advance(to turnevents.CycleState) error {
	if want, ok := nextState[c.state]; !ok || want != to {
		return fmt.Errorf("turn: cycle %s: illegal transition %s -> %s", c.id, c.state, to)
	}
	c.state = to
	c.publish(&turnevents.CycleStateEvent{CycleID: c.id, State: to})
	return nil
}

func (c *cycle) publish(event core.IEvent) {
	c.session.Publish(core.NewEventPacket(event, c.session.ID, "TurnHandler"))
}
