package turn

import "voicedoc/core"

// CycleState is a step of one user-initiated request/response cycle.
type CycleState string

const (
	CycleIdle               CycleState = "idle"
	CycleAwaitingCompletion CycleState = "awaiting_completion"
	CycleAwaitingSpeech     CycleState = "awaiting_speech"
	CycleRendered           CycleState = "rendered"
)

// CycleStateEvent is emitted on every state transition of a cycle.
type CycleStateEvent struct {
	CycleID string     `json:"cycle_id"`
	State   CycleState `json:"state"`
}

func (e *CycleStateEvent) GetId() string {
	return "turn.cycle_state"
}

// TurnCommittedEvent is emitted after a turn has been appended to the transcript.
type TurnCommittedEvent struct {
	CycleID string    `json:"cycle_id"`
	Turn    core.Turn `json:"turn"`
}

func (e *TurnCommittedEvent) GetId() string {
	return "turn.committed"
}
