package web

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"voicedoc/core"
	turnevents "voicedoc/events/turn"
	"voicedoc/protocol"

	"github.com/gorilla/websocket"
)

type envelope struct {
	Type    protocol.MessageType
	Payload []byte
}

func dialLive(t *testing.T, base string, browser *http.Client) *websocket.Conn {
	t.Helper()
	// Visit the page first so the socket joins the browser's session.
	resp, err := browser.Get(base + "/")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	dialer := websocket.Dialer{Jar: browser.Jar, HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.Dial("ws"+strings.TrimPrefix(base, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType protocol.MessageType, payload any) {
	t.Helper()
	data, err := protocol.Marshal(msgType, payload)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatal(err)
	}
}

func next(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	msgType, raw, err := protocol.Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}
	return envelope{Type: msgType, Payload: raw}
}

// until reads envelopes until stop matches one, returning everything read.
func until(t *testing.T, conn *websocket.Conn, stop func(envelope) bool) []envelope {
	t.Helper()
	var seen []envelope
	for i := 0; i < 50; i++ {
		env := next(t, conn)
		seen = append(seen, env)
		if stop(env) {
			return seen
		}
	}
	t.Fatal("expected message never arrived")
	return nil
}

func TestLiveGreetsWithSettings(t *testing.T) {
	ts, s := newTestServer(t, &stubCompletion{reply: "Hello."})
	conn := dialLive(t, ts.URL, newBrowser(t))

	env := next(t, conn)
	if env.Type != protocol.MsgSettings {
		t.Fatalf("first message = %q, want settings", env.Type)
	}
	p, err := protocol.UnmarshalPayload[protocol.SettingsPayload](env.Payload)
	if err != nil {
		t.Fatal(err)
	}
	if !p.AutoPlay {
		t.Error("auto-play default should be on")
	}
	if s.live.Count() != 1 {
		t.Errorf("live clients = %d, want 1", s.live.Count())
	}
}

func TestLiveUserMessageStreamsCycle(t *testing.T) {
	ts, _ := newTestServer(t, &stubCompletion{reply: "Rest and drink water."})
	browser := newBrowser(t)
	conn := dialLive(t, ts.URL, browser)
	next(t, conn) // settings

	send(t, conn, protocol.MsgUserMessage, protocol.UserMessagePayload{Text: "I have a headache"})

	seen := until(t, conn, func(e envelope) bool {
		if e.Type != protocol.MsgState {
			return false
		}
		p, _ := protocol.UnmarshalPayload[protocol.StatePayload](e.Payload)
		return p.State == string(turnevents.CycleRendered)
	})

	var states []string
	var turns []protocol.TurnPayload
	for _, e := range seen {
		switch e.Type {
		case protocol.MsgState:
			p, _ := protocol.UnmarshalPayload[protocol.StatePayload](e.Payload)
			states = append(states, p.State)
		case protocol.MsgTurn:
			p, _ := protocol.UnmarshalPayload[protocol.TurnPayload](e.Payload)
			turns = append(turns, p)
		}
	}

	wantStates := []string{
		string(turnevents.CycleIdle),
		string(turnevents.CycleAwaitingCompletion),
		string(turnevents.CycleAwaitingSpeech),
		string(turnevents.CycleRendered),
	}
	if strings.Join(states, ",") != strings.Join(wantStates, ",") {
		t.Errorf("states = %v, want %v", states, wantStates)
	}
	if len(turns) != 2 {
		t.Fatalf("turns = %d, want 2", len(turns))
	}
	if turns[0].Role != "user" || turns[0].Label != "You" {
		t.Errorf("user turn = %+v", turns[0])
	}
	reply := turns[1]
	if reply.Label != "Doctor AI" || reply.Content != "Rest and drink water." {
		t.Errorf("assistant turn = %+v", reply)
	}
	if reply.AudioURL == "" || !reply.AutoPlay {
		t.Errorf("assistant turn should carry autoplay audio: %+v", reply)
	}

	if got := getTranscript(t, browser, ts.URL); len(got.Turns) != 2 {
		t.Errorf("page transcript turns = %d, want 2", len(got.Turns))
	}
}

func TestLiveRejectsEmptyMessageAndBadVoice(t *testing.T) {
	ts, _ := newTestServer(t, &stubCompletion{reply: "unused"})
	conn := dialLive(t, ts.URL, newBrowser(t))
	next(t, conn) // settings

	send(t, conn, protocol.MsgUserMessage, protocol.UserMessagePayload{Text: "  "})
	env := next(t, conn)
	p, _ := protocol.UnmarshalPayload[protocol.ErrorPayload](env.Payload)
	if env.Type != protocol.MsgError || p.Code != "empty_input" {
		t.Errorf("got %q %+v, want empty_input error", env.Type, p)
	}

	voice := "xx-XX-nobody"
	send(t, conn, protocol.MsgSettingsUpdate, protocol.SettingsUpdatePayload{VoiceID: &voice})
	env = next(t, conn)
	p, _ = protocol.UnmarshalPayload[protocol.ErrorPayload](env.Payload)
	if env.Type != protocol.MsgError || p.Code != "invalid_voice" {
		t.Errorf("got %q %+v, want invalid_voice error", env.Type, p)
	}
}

func TestLiveSettingsAndReset(t *testing.T) {
	ts, _ := newTestServer(t, &stubCompletion{reply: "unused"})
	browser := newBrowser(t)
	conn := dialLive(t, ts.URL, browser)
	next(t, conn) // settings

	off := false
	send(t, conn, protocol.MsgSettingsUpdate, protocol.SettingsUpdatePayload{AutoPlay: &off})
	env := next(t, conn)
	if env.Type != protocol.MsgSettings {
		t.Fatalf("got %q, want settings", env.Type)
	}
	p, _ := protocol.UnmarshalPayload[protocol.SettingsPayload](env.Payload)
	if p.AutoPlay {
		t.Error("auto-play should be off")
	}

	send(t, conn, protocol.MsgResetRequest, nil)
	if env := next(t, conn); env.Type != protocol.MsgReset {
		t.Errorf("got %q, want reset", env.Type)
	}

	if got := getTranscript(t, browser, ts.URL); got.Settings.AutoPlay {
		t.Error("page settings should reflect the live change")
	}
}

func TestLiveUnknownType(t *testing.T) {
	ts, _ := newTestServer(t, &stubCompletion{reply: "unused"})
	conn := dialLive(t, ts.URL, newBrowser(t))
	next(t, conn)

	send(t, conn, protocol.MessageType("bogus"), nil)
	env := next(t, conn)
	p, _ := protocol.UnmarshalPayload[protocol.ErrorPayload](env.Payload)
	if env.Type != protocol.MsgError || p.Code != "unknown_type" {
		t.Errorf("got %q %+v", env.Type, p)
	}
}

// gatedCompletion blocks every call until release is closed.
type gatedCompletion struct {
	started chan struct{}
	release chan struct{}
}

func (g *gatedCompletion) Complete(ctx context.Context, _ []core.CompletionMessage) (string, error) {
	select {
	case g.started <- struct{}{}:
	default:
	}
	select {
	case <-g.release:
	case <-ctx.Done():
	}
	return "Rest.", nil
}

func TestLiveRejectsMessageWhileCycleRuns(t *testing.T) {
	gate := &gatedCompletion{started: make(chan struct{}, 1), release: make(chan struct{})}
	ts, _ := newTestServer(t, gate)
	t.Cleanup(func() { close(gate.release) })
	conn := dialLive(t, ts.URL, newBrowser(t))
	next(t, conn) // settings

	send(t, conn, protocol.MsgUserMessage, protocol.UserMessagePayload{Text: "first"})
	select {
	case <-gate.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first cycle never reached the completion call")
	}

	send(t, conn, protocol.MsgUserMessage, protocol.UserMessagePayload{Text: "second"})
	seen := until(t, conn, func(e envelope) bool { return e.Type == protocol.MsgError })
	p, _ := protocol.UnmarshalPayload[protocol.ErrorPayload](seen[len(seen)-1].Payload)
	if p.Code != "cycle_in_progress" {
		t.Errorf("error code = %q, want cycle_in_progress", p.Code)
	}
}
