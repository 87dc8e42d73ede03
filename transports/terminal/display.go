package terminal

import (
	"fmt"
	"io"
	"os"
	"strings"

	"voicedoc/core"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

const (
	defaultWidth = 80
	timeLayout   = "15:04:05"
)

const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// display writes the transcript to out. Colors and the glamour auto style are
// only used when out is an interactive terminal.
type display struct {
	out      io.Writer
	color    bool
	width    int
	renderer *glamour.TermRenderer
}

func newDisplay(out io.Writer) *display {
	d := &display{out: out, width: defaultWidth}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		d.color = true
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 20 {
			d.width = w
		}
	}

	style := glamour.WithStandardStyle("notty")
	if d.color {
		style = glamour.WithAutoStyle()
	}
	renderer, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(d.width-4))
	if err == nil {
		d.renderer = renderer
	}
	return d
}

func (d *display) paint(color, s string) string {
	if !d.color {
		return s
	}
	return color + s + colorReset
}

func (d *display) printf(format string, args ...any) {
	fmt.Fprintf(d.out, format, args...)
}

func (d *display) welcome(voiceID string, autoPlay bool) {
	d.printf("%s\n", d.paint(colorBold+colorCyan, "City Doctor"))
	d.printf("%s\n", d.paint(colorGray, fmt.Sprintf("voice %s, auto-play %s", voiceID, onOff(autoPlay))))
	d.printf("%s\n", d.paint(colorGray, "Commands: /voice <id> | /voices | /autoplay on|off | /reset | /exit"))
}

func (d *display) prompt() {
	d.printf("\n%s ", d.paint(colorBold+colorGreen, ">"))
}

func (d *display) turn(t core.Turn, audioPath string) {
	label := "You"
	if t.Role == core.RoleAssistant {
		label = "Doctor AI"
	}
	header := fmt.Sprintf("%s · %s", label, t.Timestamp.Format(timeLayout))
	if t.Degraded {
		header += " · unavailable"
	}
	d.printf("\n%s\n", d.paint(colorGray, header))

	if t.Role != core.RoleAssistant {
		d.printf("%s\n", t.Content)
		return
	}

	d.printf("%s\n", d.markdown(t.Content))
	switch {
	case !t.HasAudio():
		d.printf("%s\n", d.paint(colorDim, "(no audio)"))
	case audioPath != "":
		d.printf("%s\n", d.paint(colorDim, "audio: "+audioPath))
	default:
		d.printf("%s\n", d.paint(colorDim, "(audio not saved, no audio_dir configured)"))
	}
}

func (d *display) markdown(content string) string {
	if d.renderer == nil {
		return content
	}
	rendered, err := d.renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.Trim(rendered, "\n")
}

func (d *display) state(msg string) {
	d.printf("%s\n", d.paint(colorDim, msg))
}

func (d *display) info(msg string) {
	d.printf("%s\n", d.paint(colorCyan, msg))
}

func (d *display) notice(n core.Notice) {
	color := colorYellow
	if n.Level == core.NoticeError {
		color = colorRed
	}
	d.printf("%s\n", d.paint(color, "! "+n.Message))
}

func (d *display) errorf(format string, args ...any) {
	d.printf("%s\n", d.paint(colorRed, "error: "+fmt.Sprintf(format, args...)))
}

func (d *display) voices(selected string) {
	for _, v := range core.Voices() {
		marker := " "
		if v.ID == selected {
			marker = "*"
		}
		d.printf("%s %-16s %s\n", marker, v.ID, v.Label())
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
