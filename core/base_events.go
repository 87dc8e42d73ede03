package core

type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a non-fatal, user visible message about a degraded outcome,
// e.g. a reply that could not be voiced.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
}

// NoticeEvent carries a Notice to the presentation adapters.
type NoticeEvent struct {
	Notice Notice `json:"notice"`
}

func (e *NoticeEvent) GetId() string {
	return "shared.notice"
}
