package factories

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"voicedoc/core"
	"voicedoc/handlers/conversation"

	"github.com/google/uuid"
)

// LogWriterFactory builds an extra per-session log destination.
// Returning nil skips it for that session.
type LogWriterFactory func(sessionID, surface string) core.LogWriter

// SessionObserver sees every packet published on every managed session.
type SessionObserver func(sessionID string, packet *core.EventPacket)

// SessionManagerConfig configures NewSessionManager.
type SessionManagerConfig struct {
	Defaults SessionDefaults
	// LogDir, when set, receives one <session>.jsonl file per session.
	LogDir string
}

// SessionInfo is a read-only summary used for status reporting.
type SessionInfo struct {
	SessionID string    `json:"session_id"`
	Surface   string    `json:"surface"`
	StartedAt time.Time `json:"started_at"`
	LastSeen  time.Time `json:"last_seen"`
	Turns     int       `json:"turns"`
}

type managedSession struct {
	session     *conversation.Session
	writer      core.LogWriter
	unsubscribe func()
}

// SessionManager owns every live conversation session. Each browser or
// terminal gets its own session; sessions are never shared.
type SessionManager struct {
	config SessionManagerConfig
	logger *core.Logger

	mu       sync.RWMutex
	sessions map[string]*managedSession

	hooksMu    sync.RWMutex
	logWriters []LogWriterFactory
	observers  []SessionObserver

	now func() time.Time
}

func NewSessionManager(config SessionManagerConfig, logger *core.Logger) *SessionManager {
	if logger == nil {
		logger = core.GetLogger()
	}
	if config.Defaults.DefaultVoice == "" {
		config.Defaults.DefaultVoice = core.DefaultVoiceID
	}
	return &SessionManager{
		config:   config,
		logger:   logger.With(map[string]any{"component": "sessions"}),
		sessions: make(map[string]*managedSession),
		now:      time.Now,
	}
}

// AddLogWriter registers an extra log destination for sessions created afterwards.
func (m *SessionManager) AddLogWriter(factory LogWriterFactory) {
	m.hooksMu.Lock()
	m.logWriters = append(m.logWriters, factory)
	m.hooksMu.Unlock()
}

// Observe registers fn for packets of sessions created afterwards.
func (m *SessionManager) Observe(fn SessionObserver) {
	m.hooksMu.Lock()
	m.observers = append(m.observers, fn)
	m.hooksMu.Unlock()
}

// Create starts a new session for surface ("web" or "terminal").
func (m *SessionManager) Create(surface string) *conversation.Session {
	id := uuid.New().String()
	logger, writer := m.sessionLogger(id, surface)

	settings := conversation.NewSettings(m.config.Defaults.DefaultVoice, m.config.Defaults.AutoPlay)
	session := conversation.NewSession(id, surface, settings, logger)

	m.hooksMu.RLock()
	observers := append([]SessionObserver(nil), m.observers...)
	m.hooksMu.RUnlock()
	unsubscribe := func() {}
	if len(observers) > 0 {
		unsubscribe = session.Subscribe(core.EventSinkFunc(func(p *core.EventPacket) {
			for _, fn := range observers {
				fn(id, p)
			}
		}))
	}

	m.mu.Lock()
	m.sessions[id] = &managedSession{session: session, writer: writer, unsubscribe: unsubscribe}
	count := len(m.sessions)
	m.mu.Unlock()

	logger.Info("session started", "active_sessions", count)
	return session
}

// Get returns the live session with id, touching it.
func (m *SessionManager) Get(id string) (*conversation.Session, error) {
	m.mu.RLock()
	ms, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("sessions: get %q: %w", id, core.ErrSessionNotFound)
	}
	ms.session.Touch()
	return ms.session, nil
}

// GetOrCreate returns the session with id, or a new one when id is unknown.
// created reports which happened.
func (m *SessionManager) GetOrCreate(id, surface string) (session *conversation.Session, created bool) {
	if id != "" {
		if s, err := m.Get(id); err == nil {
			return s, false
		}
	}
	return m.Create(surface), true
}

// Close ends the session and flushes its log writers.
func (m *SessionManager) Close(id, reason string) error {
	m.mu.Lock()
	ms, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("sessions: close %q: %w", id, core.ErrSessionNotFound)
	}

	ms.session.Logger.With(map[string]any{"reason": reason}).Info("session closed")
	ms.session.Close(reason)
	ms.unsubscribe()
	if ms.writer != nil {
		ms.writer.Close()
	}
	return nil
}

// CloseAll ends every session, used on shutdown.
func (m *SessionManager) CloseAll(reason string) {
	for _, info := range m.List() {
		m.Close(info.SessionID, reason)
	}
}

// Len returns the number of live sessions.
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// List returns a summary of every live session, oldest first.
func (m *SessionManager) List() []SessionInfo {
	m.mu.RLock()
	out := make([]SessionInfo, 0, len(m.sessions))
	for id, ms := range m.sessions {
		out = append(out, SessionInfo{
			SessionID: id,
			Surface:   ms.session.Surface,
			StartedAt: ms.session.CreatedAt,
			LastSeen:  ms.session.LastSeen(),
			Turns:     ms.session.Transcript().Len(),
		})
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Run closes idle sessions until ctx is done. It returns immediately when
// no idle timeout is configured.
func (m *SessionManager) Run(ctx context.Context) {
	idle := m.config.Defaults.IdleTimeout()
	if idle <= 0 {
		return
	}
	interval := idle / 4
	if interval > time.Minute {
		interval = time.Minute
	}
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(idle)
		}
	}
}

// Sweep closes sessions not seen for longer than idle and returns how many.
func (m *SessionManager) Sweep(idle time.Duration) int {
	cutoff := m.now().Add(-idle)
	closed := 0
	for _, info := range m.List() {
		if info.LastSeen.Before(cutoff) {
			if m.Close(info.SessionID, "idle timeout") == nil {
				closed++
			}
		}
	}
	if closed > 0 {
		m.logger.Info("idle sessions closed", "closed", closed, "active_sessions", m.Len())
	}
	return closed
}

// sessionLogger tees the session's log lines into the configured writers.
func (m *SessionManager) sessionLogger(id, surface string) (*core.Logger, core.LogWriter) {
	base := m.logger.With(map[string]any{"session_id": id, "surface": surface})

	var writers core.MultiLogWriter
	if m.config.LogDir != "" {
		w, err := core.NewSessionLogWriter(m.config.LogDir, id, surface)
		if err != nil {
			base.With(map[string]any{"error": err}).Warn("session log file unavailable")
		} else {
			writers = append(writers, w)
		}
	}

	m.hooksMu.RLock()
	for _, factory := range m.logWriters {
		if w := factory(id, surface); w != nil {
			writers = append(writers, w)
		}
	}
	m.hooksMu.RUnlock()

	if len(writers) == 0 {
		return base, nil
	}
	return core.NewSessionLogger(base, writers), writers
}
