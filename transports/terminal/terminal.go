package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"voicedoc/core"
	turnevents "voicedoc/events/turn"
	"voicedoc/factories"
	"voicedoc/handlers/conversation"
	"voicedoc/handlers/turn"
)

const surface = "terminal"

// Terminal is a line REPL over one conversation session. Replies are
// rendered as markdown; clips are written to the audio directory and played
// when auto-play is on and a player command is configured.
type Terminal struct {
	in       io.Reader
	display  *display
	sessions *factories.SessionManager
	turns    *turn.TurnHandler
	config   factories.TerminalConfig
	logger   *core.Logger

	session *conversation.Session
	play    func(ctx context.Context, path string) error
}

func New(in io.Reader, out io.Writer, sessions *factories.SessionManager, turns *turn.TurnHandler, config factories.TerminalConfig, logger *core.Logger) *Terminal {
	if logger == nil {
		logger = core.GetLogger()
	}
	t := &Terminal{
		in:       in,
		display:  newDisplay(out),
		sessions: sessions,
		turns:    turns,
		config:   config,
		logger:   logger.With(map[string]any{"component": "terminal"}),
	}
	t.play = t.runPlayer
	return t
}

// Run reads lines until EOF, /exit, or ctx is cancelled.
func (t *Terminal) Run(ctx context.Context) error {
	t.session = t.sessions.Create(surface)
	defer t.sessions.Close(t.session.ID, "terminal exited")

	unsubscribe := t.session.Subscribe(core.EventSinkFunc(t.onEvent))
	defer unsubscribe()

	if t.config.AudioDir != "" {
		if err := os.MkdirAll(t.config.AudioDir, 0o755); err != nil {
			return fmt.Errorf("terminal: create audio dir: %w", err)
		}
	}

	settings := t.session.Settings.Snapshot()
	t.display.welcome(settings.VoiceID, settings.AutoPlay)
	for _, n := range t.turns.Warnings() {
		t.display.notice(n)
	}

	lines := make(chan string)
	readErr := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		scanner := bufio.NewScanner(t.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-stop:
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		t.display.prompt()
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("terminal: read input: %w", err)
			}
			return nil
		case line := <-lines:
			if !t.handleLine(ctx, strings.TrimSpace(line)) {
				return nil
			}
		}
	}
}

// handleLine returns false when the REPL should stop.
func (t *Terminal) handleLine(ctx context.Context, line string) bool {
	if line == "" {
		return true
	}
	if strings.HasPrefix(line, "/") {
		return t.command(line)
	}

	reply, err := t.turns.HandleUserMessage(ctx, t.session, line, t.session.Settings.VoiceID())
	if err != nil {
		if errors.Is(err, core.ErrEmptyInput) {
			return true
		}
		t.display.errorf("%v", err)
		return true
	}

	// The user turn was committed just before the reply within the same cycle.
	all := t.session.Transcript().All()
	if n := len(all); n >= 2 && all[n-1].ID == reply.ID {
		t.display.turn(all[n-2], "")
	}
	path := t.saveClip(reply)
	t.display.turn(reply, path)
	for _, n := range t.session.TakeNotices() {
		t.display.notice(n)
	}
	if path != "" && t.session.Settings.AutoPlay() && t.config.PlayerCommand != "" {
		if err := t.play(ctx, path); err != nil {
			t.session.Logger.With(map[string]any{"error": err, "path": path}).Warn("audio player failed")
			t.display.errorf("could not play audio: %v", err)
		}
	}
	return true
}

func (t *Terminal) command(line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/exit", "/quit":
		return false
	case "/voices":
		t.display.voices(t.session.Settings.VoiceID())
	case "/voice":
		if len(fields) != 2 {
			t.display.errorf("usage: /voice <id>")
			return true
		}
		if err := t.session.Settings.SetVoice(fields[1]); err != nil {
			t.display.errorf("unknown voice %q, see /voices", fields[1])
			return true
		}
		t.display.info("voice set to " + fields[1])
	case "/autoplay":
		if len(fields) != 2 || (fields[1] != "on" && fields[1] != "off") {
			t.display.errorf("usage: /autoplay on|off")
			return true
		}
		t.session.Settings.SetAutoPlay(fields[1] == "on")
		t.display.info("auto-play " + fields[1])
	case "/reset":
		t.session.Reset("user request")
		t.display.info("started a new conversation")
	default:
		t.display.errorf("unknown command %s", fields[0])
	}
	return true
}

// onEvent shows progress while a cycle is waiting on a collaborator.
func (t *Terminal) onEvent(p *core.EventPacket) {
	ev, ok := p.Event.(*turnevents.CycleStateEvent)
	if !ok {
		return
	}
	switch ev.State {
	case turnevents.CycleAwaitingCompletion:
		t.display.state("Doctor AI is thinking...")
	case turnevents.CycleAwaitingSpeech:
		t.display.state("Preparing audio...")
	}
}

// saveClip writes the reply's audio and returns its path, or "" when there is none.
func (t *Terminal) saveClip(reply core.Turn) string {
	if !reply.HasAudio() || t.config.AudioDir == "" {
		return ""
	}
	path := filepath.Join(t.config.AudioDir, reply.ID+clipExtension(reply.Audio.MediaType))
	if err := os.WriteFile(path, reply.Audio.Data, 0o644); err != nil {
		t.session.Logger.With(map[string]any{"error": err, "path": path}).Warn("write audio clip failed")
		return ""
	}
	return path
}

func (t *Terminal) runPlayer(ctx context.Context, path string) error {
	args := strings.Fields(t.config.PlayerCommand)
	cmd := exec.CommandContext(ctx, args[0], append(args[1:], path)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

func clipExtension(mediaType core.AudioMediaType) string {
	switch mediaType {
	case core.AudioMediaTypeMP3:
		return ".mp3"
	case core.AudioMediaTypeOGG:
		return ".ogg"
	default:
		return ".wav"
	}
}
