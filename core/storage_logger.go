package core

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"
)

// SessionMetadata is the first JSON line in each session log file.
type SessionMetadata struct {
	SessionID string `json:"session_id"`
	Surface   string `json:"surface,omitempty"` // "web" or "terminal"
	StartedAt string `json:"started_at"`
}

// LogEntry is a single JSON log line written after the metadata line.
type LogEntry struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Message   string                 `json:"msg"`
	Attrs     map[string]interface{} `json:"attrs,omitempty"`
}

// LogWriter abstracts the destination for session log entries.
type LogWriter interface {
	Write(level Level, msg string, attrs map[string]interface{})
	Close()
}

// SessionLogWriter appends structured log lines to <dir>/<session>.jsonl for
// as long as the conversation session lives.
type SessionLogWriter struct {
	mu   sync.Mutex
	file *os.File
}

// NewSessionLogWriter creates the log directory and session file and writes
// the metadata line.
func NewSessionLogWriter(logDir, sessionID, surface string) (*SessionLogWriter, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("storage logger: mkdir %q: %w", logDir, err)
	}

	filePath := filepath.Join(logDir, sessionID+".jsonl")
	f, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("storage logger: create %q: %w", filePath, err)
	}

	meta, err := sonic.Marshal(SessionMetadata{
		SessionID: sessionID,
		Surface:   surface,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("storage logger: metadata: %w", err)
	}
	if _, err := f.Write(append(meta, '\n')); err != nil {
		f.Close()
		return nil, fmt.Errorf("storage logger: write metadata: %w", err)
	}

	return &SessionLogWriter{file: f}, nil
}

// Write appends a structured log line to the session file.
func (w *SessionLogWriter) Write(level Level, msg string, attrs map[string]interface{}) {
	data, err := sonic.Marshal(LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level.String(),
		Message:   msg,
		Attrs:     printableAttrs(attrs),
	})
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		w.file.Write(append(data, '\n'))
	}
}

// Close closes the log file. Writes after Close are dropped.
func (w *SessionLogWriter) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file != nil {
		w.file.Close()
		w.file = nil
	}
}

// NewSessionLogger creates a Logger that tees output to both the base logger
// and the provided LogWriter. Child loggers created via With() inherit this.
func NewSessionLogger(baseLogger *Logger, writer LogWriter) *Logger {
	handler := func(level Level, msg string, attrs map[string]interface{}) {
		if baseLogger.handlerFunc != nil && level >= baseLogger.minLevel {
			baseLogger.handlerFunc(level, msg, attrs)
		}
		writer.Write(level, msg, attrs)
	}
	return NewLogger(handler, LevelTrace).With(baseLogger.attrs)
}

// MultiLogWriter fans one log stream out to several writers.
type MultiLogWriter []LogWriter

func (m MultiLogWriter) Write(level Level, msg string, attrs map[string]interface{}) {
	for _, w := range m {
		w.Write(level, msg, attrs)
	}
}

func (m MultiLogWriter) Close() {
	for _, w := range m {
		w.Close()
	}
}
