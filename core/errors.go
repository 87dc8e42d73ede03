package core

import "errors"

var (
	// ErrEmptyInput rejects a cycle before any collaborator is called.
	ErrEmptyInput = errors.New("empty input")
	// ErrInvalidTurn rejects a turn the transcript cannot hold.
	ErrInvalidTurn = errors.New("invalid turn")

	ErrCompletionUnavailable = errors.New("completion unavailable")
	ErrCompletionMalformed   = errors.New("completion response malformed")

	ErrSynthesisUnavailable = errors.New("speech synthesis unavailable")
	ErrSynthesisFailed      = errors.New("speech synthesis failed")
	ErrInvalidVoice         = errors.New("invalid voice")

	ErrSessionNotFound = errors.New("session not found")
)
