package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"voicedoc/core"
	turnevents "voicedoc/events/turn"
	"voicedoc/handlers/conversation"
	"voicedoc/utils/text"
)

// TurnHandler drives one user message through completion and speech
// synthesis and commits the resulting turns to the session transcript.
//
// Only empty input is rejected. Every collaborator failure degrades: the
// reply becomes the fixed degraded text, or the audio is left out, and a
// notice is published on the session.
type TurnHandler struct {
	completion core.CompletionClient
	speech     core.SpeechClient
	config     TurnConfig
	logger     *core.Logger

	now   func() time.Time
	newID func() string
}

func NewTurnHandler(completion core.CompletionClient, speech core.SpeechClient, config TurnConfig, logger *core.Logger) *TurnHandler {
	if completion == nil {
		completion = core.UnconfiguredCompletion{Reason: "no completion client"}
	}
	if speech == nil {
		speech = core.UnconfiguredSpeech{Reason: "no speech client"}
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	return &TurnHandler{
		completion: completion,
		speech:     speech,
		config:     config.withDefaults(),
		logger:     logger.With(map[string]any{"component": "turn"}),
		now:        time.Now,
		newID:      core.NewTurnID,
	}
}

// Config returns the effective configuration.
func (h *TurnHandler) Config() TurnConfig {
	return h.config
}

// HandleUserMessage runs one cycle for session and returns the assistant turn.
// Exactly one user turn and one assistant turn are appended unless text is
// empty, in which case ErrEmptyInput is returned and nothing is appended.
func (h *TurnHandler) HandleUserMessage(ctx context.Context, session *conversation.Session, message, voiceID string) (core.Turn, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return core.Turn{}, fmt.Errorf("turn: handle user message: %w", core.ErrEmptyInput)
	}

	release := session.BeginCycle()
	defer release()

	transcript := session.Transcript()
	c := newCycle(session)
	logger := session.Logger.With(map[string]any{"component": "turn", "cycle_id": c.id, "voice_id": voiceID})

	// The window is taken before the new user turn lands so it is not sent twice.
	messages := h.buildMessages(transcript.Recent(h.config.HistoryWindow), message)

	userTurn := core.Turn{
		ID:        h.newID(),
		Role:      core.RoleUser,
		Content:   message,
		Timestamp: h.now(),
	}
	if err := transcript.Append(userTurn); err != nil {
		return core.Turn{}, fmt.Errorf("turn: append user turn: %w", err)
	}
	c.publish(&turnevents.TurnCommittedEvent{CycleID: c.id, Turn: userTurn})

	h.mustAdvance(c, turnevents.CycleAwaitingCompletion, logger)
	reply, degraded := h.complete(ctx, session, messages, logger)

	h.mustAdvance(c, turnevents.CycleAwaitingSpeech, logger)
	var clip *core.AudioClip
	if degraded {
		logger.Debug("skipping synthesis of degraded reply")
	} else {
		clip = h.synthesize(ctx, session, reply, voiceID, logger)
	}

	assistantTurn := core.Turn{
		ID:        h.newID(),
		Role:      core.RoleAssistant,
		Content:   reply,
		Audio:     clip,
		Degraded:  degraded,
		Timestamp: h.now(),
	}
	if err := transcript.Append(assistantTurn); err != nil {
		return core.Turn{}, fmt.Errorf("turn: append assistant turn: %w", err)
	}
	c.publish(&turnevents.TurnCommittedEvent{CycleID: c.id, Turn: assistantTurn})
	h.mustAdvance(c, turnevents.CycleRendered, logger)

	logger.Info("cycle completed",
		"degraded", degraded,
		"audio_bytes", clip.Size(),
		"turns", transcript.Len(),
	)
	return assistantTurn, nil
}

// Warnings lists the collaborators that were not configured at startup.
// Presentation adapters show them as a banner; the UI stays usable.
func (h *TurnHandler) Warnings() []core.Notice {
	var out []core.Notice
	if c, ok := h.completion.(core.UnconfiguredCompletion); ok {
		out = append(out, core.Notice{
			Level:   core.NoticeWarning,
			Code:    "completion_unconfigured",
			Message: "Replies are unavailable: " + c.Reason,
		})
	}
	if s, ok := h.speech.(core.UnconfiguredSpeech); ok {
		out = append(out, core.Notice{
			Level:   core.NoticeWarning,
			Code:    "speech_unconfigured",
			Message: "Voice playback is unavailable: " + s.Reason,
		})
	}
	return out
}

func (h *TurnHandler) buildMessages(window []core.Turn, message string) []core.CompletionMessage {
	messages := make([]core.CompletionMessage, 0, len(window)+2)
	messages = append(messages, core.CompletionMessage{Role: core.CompletionRoleSystem, Content: h.config.SystemPrompt})
	for _, t := range window {
		role := core.CompletionRoleUser
		if t.Role == core.RoleAssistant {
			role = core.CompletionRoleAssistant
		}
		messages = append(messages, core.CompletionMessage{Role: role, Content: t.Content})
	}
	return append(messages, core.CompletionMessage{Role: core.CompletionRoleUser, Content: message})
}

// complete returns the reply text and whether it is the degraded placeholder.
func (h *TurnHandler) complete(ctx context.Context, session *conversation.Session, messages []core.CompletionMessage, logger *core.Logger) (string, bool) {
	switch client := h.completion.(type) {
	case core.ConfiguredCompletion:
		reply, err := client.Service.Complete(ctx, messages)
		if err == nil {
			reply = text.StripReasoning(reply)
			if reply == "" {
				err = fmt.Errorf("%w: reply is empty", core.ErrCompletionMalformed)
			}
		}
		if err != nil {
			logger.With(map[string]any{"error": err, "provider": client.Provider}).Warn("completion failed, using degraded reply")
			session.Notify(completionNotice(err), "TurnHandler")
			return h.config.DegradedReply, true
		}
		return reply, false
	case core.UnconfiguredCompletion:
		logger.With(map[string]any{"reason": client.Reason}).Warn("completion not configured, using degraded reply")
		session.Notify(core.Notice{
			Level:   core.NoticeError,
			Code:    "completion_unconfigured",
			Message: "The completion service is not configured.",
		}, "TurnHandler")
		return h.config.DegradedReply, true
	default:
		logger.Error("unknown completion client type")
		return h.config.DegradedReply, true
	}
}

// synthesize returns nil when no audio could be produced.
func (h *TurnHandler) synthesize(ctx context.Context, session *conversation.Session, reply, voiceID string, logger *core.Logger) *core.AudioClip {
	switch client := h.speech.(type) {
	case core.ConfiguredSpeech:
		speakable := text.NormalizeForSpeech(reply)
		if speakable == "" {
			logger.Debug("reply has nothing speakable")
			return nil
		}
		clip, err := client.Service.Synthesize(ctx, speakable, voiceID)
		if err != nil {
			logger.With(map[string]any{"error": err, "provider": client.Provider}).Warn("speech synthesis failed")
			session.Notify(speechNotice(err), "TurnHandler")
			return nil
		}
		if clip.Size() == 0 {
			session.Notify(core.Notice{
				Level:   core.NoticeWarning,
				Code:    "speech_empty",
				Message: "The speech service returned no audio for this reply.",
			}, "TurnHandler")
			return nil
		}
		return clip
	case core.UnconfiguredSpeech:
		// The startup banner already tells the user; nothing to add per cycle.
		return nil
	default:
		logger.Error("unknown speech client type")
		return nil
	}
}

func (h *TurnHandler) mustAdvance(c *cycle, to turnevents.CycleState, logger *core.Logger) {
	if err := c.advance(to); err != nil {
		logger.With(map[string]any{"error": err}).Error("cycle state machine out of order")
	}
}

func completionNotice(err error) core.Notice {
	switch {
	case errors.Is(err, core.ErrCompletionMalformed):
		return core.Notice{Level: core.NoticeError, Code: "completion_malformed", Message: "The assistant sent an unreadable reply."}
	default:
		return core.Notice{Level: core.NoticeError, Code: "completion_unavailable", Message: "The assistant could not be reached."}
	}
}

func speechNotice(err error) core.Notice {
	switch {
	case errors.Is(err, core.ErrInvalidVoice):
		return core.Notice{Level: core.NoticeWarning, Code: "speech_invalid_voice", Message: "The selected voice is not supported, so this reply has no audio."}
	case errors.Is(err, core.ErrSynthesisUnavailable):
		return core.Notice{Level: core.NoticeWarning, Code: "speech_unavailable", Message: "The speech service could not be reached, so this reply has no audio."}
	default:
		return core.Notice{Level: core.NoticeWarning, Code: "speech_failed", Message: "Speech synthesis failed for this reply."}
	}
}
