package protocol

import (
	"encoding/json"
	"time"
)

// MessageType enumerates every envelope type on both websocket channels.
type MessageType string

// Control plane, agent -> monitor.
const (
	MsgRegister  MessageType = "register"
	MsgHeartbeat MessageType = "heartbeat"
	MsgLog       MessageType = "log"
	MsgStatus    MessageType = "status"
	MsgEvent     MessageType = "event"
	MsgLogEnd    MessageType = "log_end"
)

// Control plane, monitor -> agent.
const (
	MsgResetSession MessageType = "reset_session"
	MsgCloseSession MessageType = "close_session"
	MsgShutdown     MessageType = "shutdown"
	MsgAck          MessageType = "ack"
)

// Envelope is the outer JSON wrapper for all WebSocket messages.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// --- Agent -> monitor payloads ---

// RegisterPayload is sent once by the agent immediately after connecting.
type RegisterPayload struct {
	AgentID      string            `json:"agent_id"`
	Version      string            `json:"version,omitempty"`
	Capabilities []string          `json:"capabilities,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}

// HeartbeatPayload is sent periodically to keep the connection alive.
type HeartbeatPayload struct {
	AgentID        string    `json:"agent_id"`
	Timestamp      time.Time `json:"timestamp"`
	ActiveSessions int       `json:"active_sessions"`
	Status         string    `json:"status"` // "idle" or "running"
}

// LogPayload carries a single log entry from a session.
type LogPayload struct {
	AgentID   string   `json:"agent_id"`
	SessionID string   `json:"session_id"`
	Entry     LogEntry `json:"entry"`
}

// LogEntry is a structured log line.
type LogEntry struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Message   string                 `json:"msg"`
	Attrs     map[string]interface{} `json:"attrs,omitempty"`
}

// StatusPayload carries agent-level status with the live sessions.
type StatusPayload struct {
	AgentID  string        `json:"agent_id"`
	Status   string        `json:"status"`
	Sessions []SessionInfo `json:"sessions"`
}

// SessionInfo describes a single live conversation session.
type SessionInfo struct {
	SessionID string `json:"session_id"`
	Surface   string `json:"surface"`
	StartedAt string `json:"started_at"`
	Turns     int    `json:"turns"`
}

// EventPayload forwards one session event (cycle state, committed turn, notice).
type EventPayload struct {
	AgentID   string          `json:"agent_id"`
	SessionID string          `json:"session_id,omitempty"`
	EventID   string          `json:"event_id"`
	Data      json.RawMessage `json:"data"`
}

// LogEndPayload signals that a session's log stream has ended.
type LogEndPayload struct {
	AgentID   string `json:"agent_id"`
	SessionID string `json:"session_id"`
}

// --- Monitor -> agent payloads ---

// SessionCommandPayload targets one session for reset_session or close_session.
type SessionCommandPayload struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason,omitempty"`
}

// ShutdownPayload requests the agent to shut down gracefully.
type ShutdownPayload struct {
	Reason       string `json:"reason,omitempty"`
	GraceSeconds int    `json:"grace_seconds,omitempty"`
}

// AckPayload acknowledges a received command.
type AckPayload struct {
	AckedType MessageType `json:"acked_type"`
	OK        bool        `json:"ok"`
	Error     string      `json:"error,omitempty"`
}
