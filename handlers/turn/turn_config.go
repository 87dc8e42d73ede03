package turn

// DefaultSystemPrompt is the persona every completion request starts with.
const DefaultSystemPrompt = "You are the doctor of the city. As a doctor, explain and diagnose health issues clearly."

// DefaultDegradedReply replaces the assistant reply whenever no completion could be obtained.
const DefaultDegradedReply = "The assistant is not available right now. Please try again in a moment."

// DefaultHistoryWindow is the number of prior turns sent with each completion request.
const DefaultHistoryWindow = 10

type TurnConfig struct {
	SystemPrompt  string `json:"system_prompt" yaml:"system_prompt"`
	HistoryWindow int    `json:"history_window" yaml:"history_window"` // Most recent turns sent as completion context.
	DegradedReply string `json:"degraded_reply" yaml:"degraded_reply"` // Fixed text used when the completion collaborator fails.
}

// DefaultConfig returns a TurnConfig with the persona and window defaults.
func DefaultConfig() TurnConfig {
	return TurnConfig{
		SystemPrompt:  DefaultSystemPrompt,
		HistoryWindow: DefaultHistoryWindow,
		DegradedReply: DefaultDegradedReply,
	}
}

func (c TurnConfig) withDefaults() TurnConfig {
	if c.SystemPrompt == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = DefaultHistoryWindow
	}
	if c.DegradedReply == "" {
		c.DegradedReply = DefaultDegradedReply
	}
	return c
}
