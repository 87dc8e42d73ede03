package web

import (
	"voicedoc/core"
	"voicedoc/handlers/conversation"
	"voicedoc/protocol"
)

const timeLayout = "15:04:05"

// RoleLabel is the caption shown next to a turn.
func RoleLabel(role core.Role) string {
	if role == core.RoleAssistant {
		return "Doctor AI"
	}
	return "You"
}

type turnView struct {
	ID       string
	Role     string
	Label    string
	Content  string
	Time     string
	Degraded bool
	AudioURL string
	// AutoPlay is set only on the newest voiced reply so a reload does not
	// start every clip at once.
	AutoPlay bool
	// NoAudio marks assistant turns whose synthesis failed or was skipped.
	NoAudio bool
}

type voiceOption struct {
	ID       string
	Label    string
	Language string
	Selected bool
}

type pageView struct {
	Turns    []turnView
	Voices   []voiceOption
	AutoPlay bool
	Warnings []core.Notice
	Notices  []core.Notice
	Error    string
	Draft    string
}

func audioURL(turnID string) string {
	return "/audio/" + turnID
}

func buildTurnViews(turns []core.Turn, autoPlay bool) []turnView {
	lastVoiced := -1
	for i, t := range turns {
		if t.Role == core.RoleAssistant && t.HasAudio() {
			lastVoiced = i
		}
	}

	out := make([]turnView, 0, len(turns))
	for i, t := range turns {
		v := turnView{
			ID:       t.ID,
			Role:     string(t.Role),
			Label:    RoleLabel(t.Role),
			Content:  t.Content,
			Time:     t.Timestamp.Format(timeLayout),
			Degraded: t.Degraded,
		}
		if t.Role == core.RoleAssistant {
			if t.HasAudio() {
				v.AudioURL = audioURL(t.ID)
				v.AutoPlay = autoPlay && i == lastVoiced
			} else {
				v.NoAudio = true
			}
		}
		out = append(out, v)
	}
	return out
}

func buildVoiceOptions(selected string) []voiceOption {
	voices := core.Voices()
	out := make([]voiceOption, 0, len(voices))
	for _, v := range voices {
		out = append(out, voiceOption{
			ID:       v.ID,
			Label:    v.Label(),
			Language: v.LanguageName(),
			Selected: v.ID == selected,
		})
	}
	return out
}

func buildPage(session *conversation.Session, warnings []core.Notice) pageView {
	settings := session.Settings.Snapshot()
	return pageView{
		Turns:    buildTurnViews(session.Transcript().All(), settings.AutoPlay),
		Voices:   buildVoiceOptions(settings.VoiceID),
		AutoPlay: settings.AutoPlay,
		Warnings: warnings,
		Notices:  session.TakeNotices(),
	}
}

func turnPayload(t core.Turn, autoPlay bool) protocol.TurnPayload {
	p := protocol.TurnPayload{
		ID:        t.ID,
		Role:      string(t.Role),
		Label:     RoleLabel(t.Role),
		Content:   t.Content,
		Timestamp: t.Timestamp,
		Degraded:  t.Degraded,
	}
	if t.HasAudio() {
		p.AudioURL = audioURL(t.ID)
		p.AutoPlay = autoPlay
	}
	return p
}

func noticePayload(n core.Notice) protocol.NoticePayload {
	return protocol.NoticePayload{Level: string(n.Level), Code: n.Code, Message: n.Message}
}
