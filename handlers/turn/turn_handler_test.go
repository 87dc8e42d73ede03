package turn_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"voicedoc/core"
	turnevents "voicedoc/events/turn"
	"voicedoc/handlers/conversation"
	"voicedoc/handlers/turn"
)

type fakeCompletion struct {
	reply string
	err   error
	calls [][]core.CompletionMessage
}

func (f *fakeCompletion) Complete(_ context.Context, messages []core.CompletionMessage) (string, error) {
	f.calls = append(f.calls, messages)
	return f.reply, f.err
}

type fakeSpeech struct {
	clip  *core.AudioClip
	err   error
	texts []string
}

func (f *fakeSpeech) Synthesize(_ context.Context, text, voiceID string) (*core.AudioClip, error) {
	f.texts = append(f.texts, text)
	if err := core.ValidateVoice(voiceID); err != nil {
		return nil, err
	}
	return f.clip, f.err
}

type recorder struct {
	mu     sync.Mutex
	events []core.IEvent
}

func (r *recorder) Publish(p *core.EventPacket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, p.Event)
}

func (r *recorder) states() []turnevents.CycleState {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []turnevents.CycleState
	for _, e := range r.events {
		if s, ok := e.(*turnevents.CycleStateEvent); ok {
			out = append(out, s.State)
		}
	}
	return out
}

func quietLogger() *core.Logger {
	return core.NewDevelopmentLogger(io.Discard, core.LevelTrace)
}

func newSession() *conversation.Session {
	return conversation.NewSession("test-session", "test", nil, quietLogger())
}

func newHandler(c core.CompletionService, s core.SpeechService) *turn.TurnHandler {
	var cc core.CompletionClient = core.UnconfiguredCompletion{Reason: "missing key"}
	if c != nil {
		cc = core.ConfiguredCompletion{Service: c, Provider: "fake"}
	}
	var sc core.SpeechClient = core.UnconfiguredSpeech{Reason: "missing key"}
	if s != nil {
		sc = core.ConfiguredSpeech{Service: s, Provider: "fake"}
	}
	return turn.NewTurnHandler(cc, sc, turn.DefaultConfig(), quietLogger())
}

func TestHeadacheScenario(t *testing.T) {
	audio := bytes.Repeat([]byte{7}, 512)
	completion := &fakeCompletion{reply: "Take rest and hydrate."}
	speech := &fakeSpeech{clip: &core.AudioClip{Data: audio, MediaType: core.AudioMediaTypeWAV}}
	h := newHandler(completion, speech)
	sess := newSession()

	got, err := h.HandleUserMessage(context.Background(), sess, "I have a headache", core.DefaultVoiceID)
	if err != nil {
		t.Fatalf("HandleUserMessage: %v", err)
	}
	if got.Role != core.RoleAssistant || got.Content != "Take rest and hydrate." {
		t.Fatalf("assistant turn = %+v", got)
	}

	turns := sess.Transcript().All()
	if len(turns) != 2 {
		t.Fatalf("transcript len = %d, want 2", len(turns))
	}
	if turns[0].Role != core.RoleUser || turns[0].Content != "I have a headache" {
		t.Errorf("turn[0] = %+v", turns[0])
	}
	if turns[1].Audio.Size() != 512 {
		t.Errorf("audio size = %d, want 512", turns[1].Audio.Size())
	}
	if turns[0].Timestamp.IsZero() || turns[1].Timestamp.Before(turns[0].Timestamp) {
		t.Errorf("timestamps out of order: %v then %v", turns[0].Timestamp, turns[1].Timestamp)
	}

	msgs := completion.calls[0]
	if len(msgs) != 2 || msgs[0].Role != core.CompletionRoleSystem || msgs[1].Content != "I have a headache" {
		t.Errorf("completion messages = %+v", msgs)
	}
}

func TestTwoTurnsPerCycle(t *testing.T) {
	h := newHandler(&fakeCompletion{reply: "ok"}, &fakeSpeech{clip: &core.AudioClip{Data: []byte{1}}})
	sess := newSession()

	const n = 7
	for i := 0; i < n; i++ {
		if _, err := h.HandleUserMessage(context.Background(), sess, fmt.Sprintf("message %d", i), core.DefaultVoiceID); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}

	turns := sess.Transcript().All()
	if len(turns) != 2*n {
		t.Fatalf("transcript len = %d, want %d", len(turns), 2*n)
	}
	for i, tr := range turns {
		wantRole := core.RoleUser
		if i%2 == 1 {
			wantRole = core.RoleAssistant
		}
		if tr.Role != wantRole {
			t.Errorf("turn %d role = %s, want %s", i, tr.Role, wantRole)
		}
		if i > 0 && tr.Timestamp.Before(turns[i-1].Timestamp) {
			t.Errorf("turn %d is older than turn %d", i, i-1)
		}
	}
	if got := sess.Transcript().All()[2*n-2].Content; got != fmt.Sprintf("message %d", n-1) {
		t.Errorf("last user turn = %q", got)
	}
}

func TestHistoryWindowIsBounded(t *testing.T) {
	completion := &fakeCompletion{reply: "noted"}
	h := newHandler(completion, nil)
	sess := newSession()

	for i := 0; i < 12; i++ {
		if _, err := h.HandleUserMessage(context.Background(), sess, fmt.Sprintf("m%d", i), core.DefaultVoiceID); err != nil {
			t.Fatal(err)
		}
	}

	last := completion.calls[len(completion.calls)-1]
	// system + 10 prior turns + the new message
	if len(last) != 1+turn.DefaultHistoryWindow+1 {
		t.Fatalf("messages = %d, want %d", len(last), turn.DefaultHistoryWindow+2)
	}
	if last[len(last)-1].Content != "m11" || last[len(last)-2].Content != "noted" || last[len(last)-3].Content != "m10" {
		t.Errorf("window tail = %+v", last[len(last)-3:])
	}
	for _, m := range last[1 : len(last)-1] {
		if m.Content == "m11" {
			t.Error("new message must not also appear inside the history window")
		}
	}
}

func TestCompletionFailureDegrades(t *testing.T) {
	for _, cerr := range []error{
		fmt.Errorf("dial: %w", core.ErrCompletionUnavailable),
		fmt.Errorf("no choices: %w", core.ErrCompletionMalformed),
	} {
		t.Run(cerr.Error(), func(t *testing.T) {
			speech := &fakeSpeech{clip: &core.AudioClip{Data: []byte{1, 2}}}
			h := newHandler(&fakeCompletion{err: cerr}, speech)
			sess := newSession()

			got, err := h.HandleUserMessage(context.Background(), sess, "hello doctor", core.DefaultVoiceID)
			if err != nil {
				t.Fatalf("HandleUserMessage: %v", err)
			}
			if got.Content != turn.DefaultDegradedReply || !got.Degraded {
				t.Errorf("content = %q degraded=%v", got.Content, got.Degraded)
			}
			if got.Audio != nil {
				t.Error("degraded reply should not be voiced")
			}
			if len(speech.texts) != 0 {
				t.Errorf("speech called with %q", speech.texts)
			}

			turns := sess.Transcript().All()
			if len(turns) != 2 || turns[0].Content != "hello doctor" || turns[0].Role != core.RoleUser {
				t.Fatalf("transcript = %+v", turns)
			}
			if notices := sess.TakeNotices(); len(notices) != 1 {
				t.Errorf("notices = %+v, want exactly one", notices)
			}
		})
	}
}

func TestUnconfiguredCompletionDegrades(t *testing.T) {
	h := newHandler(nil, nil)
	sess := newSession()

	got, err := h.HandleUserMessage(context.Background(), sess, "hi", core.DefaultVoiceID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Content != turn.DefaultDegradedReply {
		t.Errorf("content = %q", got.Content)
	}
	if n := sess.Transcript().Len(); n != 2 {
		t.Errorf("len = %d, want 2", n)
	}
	if w := h.Warnings(); len(w) != 2 {
		t.Errorf("warnings = %+v, want 2", w)
	}
}

func TestSynthesisFailureKeepsRealText(t *testing.T) {
	speech := &fakeSpeech{err: fmt.Errorf("murf 500: %w", core.ErrSynthesisFailed)}
	h := newHandler(&fakeCompletion{reply: "Take rest and hydrate."}, speech)
	sess := newSession()

	got, err := h.HandleUserMessage(context.Background(), sess, "I have a headache", core.DefaultVoiceID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Content != "Take rest and hydrate." || got.Degraded {
		t.Errorf("content = %q degraded=%v", got.Content, got.Degraded)
	}
	if got.Audio != nil {
		t.Error("audio should be absent")
	}
	notices := sess.TakeNotices()
	if len(notices) != 1 || notices[0].Code != "speech_failed" {
		t.Errorf("notices = %+v", notices)
	}
}

func TestInvalidVoice(t *testing.T) {
	speech := &fakeSpeech{clip: &core.AudioClip{Data: []byte{1}}}
	h := newHandler(&fakeCompletion{reply: "Bonjour."}, speech)
	sess := newSession()

	got, err := h.HandleUserMessage(context.Background(), sess, "hello", "xx-XX-nobody")
	if err != nil {
		t.Fatal(err)
	}
	if got.Audio != nil {
		t.Error("audio should be absent for an unknown voice")
	}
	if n := sess.Transcript().Len(); n != 2 {
		t.Errorf("len = %d, want 2", n)
	}
	notices := sess.TakeNotices()
	if len(notices) != 1 || notices[0].Code != "speech_invalid_voice" {
		t.Errorf("notices = %+v", notices)
	}
}

func TestEmptyInputRejected(t *testing.T) {
	completion := &fakeCompletion{reply: "x"}
	h := newHandler(completion, nil)
	sess := newSession()

	for _, in := range []string{"", "   \n\t"} {
		_, err := h.HandleUserMessage(context.Background(), sess, in, core.DefaultVoiceID)
		if !errors.Is(err, core.ErrEmptyInput) {
			t.Errorf("HandleUserMessage(%q) err = %v, want ErrEmptyInput", in, err)
		}
	}
	if n := sess.Transcript().Len(); n != 0 {
		t.Errorf("len = %d, want 0", n)
	}
	if len(completion.calls) != 0 {
		t.Error("completion must not be called for empty input")
	}
}

func TestReasoningIsStripped(t *testing.T) {
	speech := &fakeSpeech{clip: &core.AudioClip{Data: []byte{1}}}
	h := newHandler(&fakeCompletion{reply: "<think>consider migraine</think>\n**Rest** and drink water."}, speech)
	sess := newSession()

	got, err := h.HandleUserMessage(context.Background(), sess, "headache", core.DefaultVoiceID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Content != "**Rest** and drink water." {
		t.Errorf("content = %q", got.Content)
	}
	if len(speech.texts) != 1 || speech.texts[0] != "Rest and drink water." {
		t.Errorf("speech text = %q", speech.texts)
	}
}

func TestReasoningOnlyReplyIsMalformed(t *testing.T) {
	h := newHandler(&fakeCompletion{reply: "<think>...</think>"}, nil)
	sess := newSession()

	got, err := h.HandleUserMessage(context.Background(), sess, "headache", core.DefaultVoiceID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Degraded {
		t.Error("expected degraded reply")
	}
	notices := sess.TakeNotices()
	if len(notices) != 1 || notices[0].Code != "completion_malformed" {
		t.Errorf("notices = %+v", notices)
	}
}

func TestCycleStatesInOrder(t *testing.T) {
	for name, completion := range map[string]*fakeCompletion{
		"success": {reply: "fine"},
		"failure": {err: core.ErrCompletionUnavailable},
	} {
		t.Run(name, func(t *testing.T) {
			h := newHandler(completion, &fakeSpeech{clip: &core.AudioClip{Data: []byte{1}}})
			sess := newSession()
			rec := &recorder{}
			defer sess.Subscribe(rec)()

			if _, err := h.HandleUserMessage(context.Background(), sess, "hi", core.DefaultVoiceID); err != nil {
				t.Fatal(err)
			}

			want := []turnevents.CycleState{
				turnevents.CycleIdle,
				turnevents.CycleAwaitingCompletion,
				turnevents.CycleAwaitingSpeech,
				turnevents.CycleRendered,
			}
			got := rec.states()
			if len(got) != len(want) {
				t.Fatalf("states = %v, want %v", got, want)
			}
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("states = %v, want %v", got, want)
				}
			}
		})
	}
}

func TestAssistantTurnCommittedBeforeRendered(t *testing.T) {
	h := newHandler(&fakeCompletion{reply: "fine"}, &fakeSpeech{clip: &core.AudioClip{Data: []byte{1}}})
	sess := newSession()
	rec := &recorder{}
	defer sess.Subscribe(rec)()

	if _, err := h.HandleUserMessage(context.Background(), sess, "hi", core.DefaultVoiceID); err != nil {
		t.Fatal(err)
	}

	sawSpeech := false
	for _, e := range rec.events {
		switch ev := e.(type) {
		case *turnevents.CycleStateEvent:
			if ev.State == turnevents.CycleAwaitingSpeech {
				sawSpeech = true
			}
		case *turnevents.TurnCommittedEvent:
			if ev.Turn.Role == core.RoleAssistant && !sawSpeech {
				t.Fatal("assistant turn committed before speech was attempted")
			}
		}
	}
}
