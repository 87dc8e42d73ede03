package conversation

import (
	"sync"
	"time"

	"voicedoc/core"
	sessionevents "voicedoc/events/session"

	"github.com/google/uuid"
)

// Session is the explicit per-session context handed to every operation.
// It owns the transcript and the settings; nothing else may alias them.
type Session struct {
	ID        string
	Surface   string
	Settings  *Settings
	Logger    *core.Logger
	CreatedAt time.Time

	cycleMu sync.Mutex // held for the duration of one cycle

	mu          sync.RWMutex
	transcript  *Transcript
	notices     []core.Notice
	subscribers map[string]core.EventSink
	lastSeen    time.Time
	closed      bool
}

// NewSession builds an empty session. A nil logger uses the global one.
func NewSession(id, surface string, settings *Settings, logger *core.Logger) *Session {
	if settings == nil {
		settings = NewSettings(core.DefaultVoiceID, true)
	}
	if logger == nil {
		logger = core.GetLogger().With(map[string]any{"session_id": id})
	}
	now := time.Now()
	return &Session{
		ID:          id,
		Surface:     surface,
		Settings:    settings,
		Logger:      logger,
		CreatedAt:   now,
		transcript:  NewTranscript(),
		subscribers: make(map[string]core.EventSink),
		lastSeen:    now,
	}
}

// Transcript returns the live transcript. Reset swaps it for a fresh one.
func (s *Session) Transcript() *Transcript {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transcript
}

// BeginCycle serialises cycles on this session. Call the returned func when done.
func (s *Session) BeginCycle() func() {
	s.cycleMu.Lock()
	s.Touch()
	return s.cycleMu.Unlock
}

// Reset discards the transcript and pending notices. A running cycle
// finishes first so its turns never leak into the new transcript.
func (s *Session) Reset(reason string) {
	s.cycleMu.Lock()
	s.mu.Lock()
	s.transcript = NewTranscript()
	s.notices = nil
	s.mu.Unlock()
	s.cycleMu.Unlock()

	s.Logger.With(map[string]any{"reason": reason}).Info("session transcript reset")
	s.Publish(core.NewEventPacket(&sessionevents.SessionResetEvent{Reason: reason}, s.ID, "Session"))
}

// Notify records a notice for the next render and publishes it live.
func (s *Session) Notify(notice core.Notice, relayer string) {
	s.mu.Lock()
	s.notices = append(s.notices, notice)
	s.mu.Unlock()
	s.Publish(core.NewEventPacket(&core.NoticeEvent{Notice: notice}, s.ID, relayer))
}

// TakeNotices returns and clears the pending notices.
func (s *Session) TakeNotices() []core.Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.notices
	s.notices = nil
	return out
}

// Subscribe registers sink for every packet published on this session.
func (s *Session) Subscribe(sink core.EventSink) (unsubscribe func()) {
	id := uuid.New().String()
	s.mu.Lock()
	s.subscribers[id] = sink
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// Publish implements core.EventSink by fanning the packet out to subscribers.
func (s *Session) Publish(packet *core.EventPacket) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return
	}
	sinks := make([]core.EventSink, 0, len(s.subscribers))
	for _, sink := range s.subscribers {
		sinks = append(sinks, sink)
	}
	s.mu.RUnlock()

	for _, sink := range sinks {
		sink.Publish(packet)
	}
}

func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *Session) LastSeen() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}

// Close tears the session down: subscribers get a final event and are dropped.
func (s *Session) Close(reason string) {
	s.Publish(core.NewEventPacket(&sessionevents.SessionClosedEvent{Reason: reason}, s.ID, "Session"))
	s.mu.Lock()
	s.closed = true
	s.subscribers = make(map[string]core.EventSink)
	s.mu.Unlock()
}
