package conversation

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"voicedoc/core"
)

// Transcript holds the ordered turns of one session. Turns are only ever
// appended; there is no way to edit or remove one.
type Transcript struct {
	mu    sync.RWMutex
	turns []core.Turn
}

func NewTranscript() *Transcript {
	return &Transcript{}
}

// Append adds turn to the end of the transcript.
func (t *Transcript) Append(turn core.Turn) error {
	if !turn.Role.Valid() {
		return fmt.Errorf("transcript: append: %w: unknown role %q", core.ErrInvalidTurn, turn.Role)
	}
	if turn.Role == core.RoleUser && strings.TrimSpace(turn.Content) == "" {
		return fmt.Errorf("transcript: append: %w: user turn has no content", core.ErrInvalidTurn)
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns = append(t.turns, turn)
	return nil
}

// Recent returns at most the last k turns in order. k <= 0 yields none.
func (t *Transcript) Recent(k int) []core.Turn {
	if k <= 0 {
		return []core.Turn{}
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	start := len(t.turns) - k
	if start < 0 {
		start = 0
	}
	out := make([]core.Turn, len(t.turns)-start)
	copy(out, t.turns[start:])
	return out
}

// All returns a copy of every turn in insertion order.
func (t *Transcript) All() []core.Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]core.Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.turns)
}

// Find looks a turn up by id.
func (t *Transcript) Find(id string) (core.Turn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i := len(t.turns) - 1; i >= 0; i-- {
		if t.turns[i].ID == id {
			return t.turns[i], true
		}
	}
	return core.Turn{}, false
}
