package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"voicedoc/core"
	"voicedoc/protocol"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

const (
	defaultHeartbeatInterval = 5 * time.Second
	outboxSize               = 256
	writeTimeout             = 10 * time.Second
	dialTimeout              = 10 * time.Second
)

var errUnsupported = errors.New("command not supported by this agent")

// ClientConfig configures the monitoring link.
type ClientConfig struct {
	ConnectURL        string
	AgentID           string
	Version           string
	Metadata          map[string]string
	HeartbeatInterval time.Duration
	Logger            *core.Logger
}

// Client connects outward to a monitoring server. It streams session logs,
// cycle events and heartbeats, and accepts session commands in return.
//
// All writes after registration go through one goroutine (pump), so the
// Send* methods never block the caller; when the outbox is full the oldest
// queued message is dropped.
type Client struct {
	cfg  ClientConfig
	log  *core.Logger
	conn *websocket.Conn
	stop context.CancelFunc

	// Session commands return an error that is reported back in the ack.
	OnResetSession func(sessionID, reason string) error
	OnCloseSession func(sessionID, reason string) error
	OnShutdown     func(reason string)
	// ActiveSessions feeds the heartbeat; nil reports zero.
	ActiveSessions func() int

	outbox    chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = core.GetLogger()
	}
	return &Client{
		cfg:    cfg,
		log:    cfg.Logger.With(map[string]any{"component": "controlplane", "agent_id": cfg.AgentID}),
		outbox: make(chan []byte, outboxSize),
		closed: make(chan struct{}),
	}
}

// Connect registers with the monitor and starts the receive and pump
// goroutines. The link lives until ctx is cancelled, Close is called, or the
// monitor hangs up.
func (c *Client) Connect(ctx context.Context) error {
	ctx, c.stop = context.WithCancel(ctx)

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.ConnectURL, nil)
	if err != nil {
		c.stop()
		return fmt.Errorf("controlplane: dial %q: %w", c.cfg.ConnectURL, err)
	}
	c.conn = conn

	hello, err := protocol.Marshal(protocol.MsgRegister, protocol.RegisterPayload{
		AgentID:      c.cfg.AgentID,
		Version:      c.cfg.Version,
		Capabilities: []string{"completion", "speech", "web", "terminal"},
		Metadata:     c.cfg.Metadata,
		Timestamp:    time.Now().UTC(),
	})
	if err == nil {
		err = c.write(hello)
	}
	if err != nil {
		conn.Close()
		c.stop()
		return fmt.Errorf("controlplane: register: %w", err)
	}
	c.log.Info("registered with monitor", "url", c.cfg.ConnectURL)

	go c.receive(ctx)
	go c.pump(ctx)
	return nil
}

func (c *Client) SendLog(sessionID string, entry protocol.LogEntry) {
	c.post(protocol.MsgLog, protocol.LogPayload{AgentID: c.cfg.AgentID, SessionID: sessionID, Entry: entry})
}

// SendStatus reports the live sessions.
func (c *Client) SendStatus(status string, sessions []protocol.SessionInfo) {
	c.post(protocol.MsgStatus, protocol.StatusPayload{AgentID: c.cfg.AgentID, Status: status, Sessions: sessions})
}

// SendEvent forwards one session event packet.
func (c *Client) SendEvent(sessionID string, packet *core.EventPacket) {
	data, err := sonic.Marshal(packet.Event)
	if err != nil {
		c.log.With(map[string]any{"error": err, "event": packet.Event.GetId()}).Warn("event not encodable, dropping")
		return
	}
	c.post(protocol.MsgEvent, protocol.EventPayload{
		AgentID:   c.cfg.AgentID,
		SessionID: sessionID,
		EventID:   packet.Event.GetId(),
		Data:      data,
	})
}

// SendLogEnd marks the end of a session's log stream.
func (c *Client) SendLogEnd(sessionID string) {
	c.post(protocol.MsgLogEnd, protocol.LogEndPayload{AgentID: c.cfg.AgentID, SessionID: sessionID})
}

// Done is closed once the link is gone.
func (c *Client) Done() <-chan struct{} {
	return c.closed
}

func (c *Client) Wait() error {
	<-c.closed
	return nil
}

func (c *Client) Close() {
	if c.stop != nil {
		c.stop()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}

func (c *Client) write(data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// post queues a message for the pump, evicting the oldest one when full.
func (c *Client) post(msgType protocol.MessageType, payload any) {
	data, err := protocol.Marshal(msgType, payload)
	if err != nil {
		c.log.With(map[string]any{"error": err, "type": string(msgType)}).Warn("message not encodable, dropping")
		return
	}
	for attempt := 0; attempt < 2; attempt++ {
		select {
		case c.outbox <- data:
			return
		default:
		}
		select {
		case <-c.outbox:
		default:
		}
	}
}

// receive handles monitor commands until the connection ends.
func (c *Client) receive(ctx context.Context) {
	defer func() {
		c.closeOnce.Do(func() { close(c.closed) })
		c.stop()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.With(map[string]any{"error": err}).Warn("monitor link lost")
			}
			return
		}
		msgType, raw, err := protocol.Unmarshal(data)
		if err != nil {
			c.log.With(map[string]any{"error": err}).Warn("ignoring malformed monitor message")
			continue
		}
		if stop := c.dispatch(msgType, raw); stop {
			return
		}
	}
}

// dispatch runs one command and reports whether the link should end.
func (c *Client) dispatch(msgType protocol.MessageType, raw json.RawMessage) bool {
	switch msgType {
	case protocol.MsgResetSession:
		c.sessionCommand(msgType, raw, c.OnResetSession)
	case protocol.MsgCloseSession:
		c.sessionCommand(msgType, raw, c.OnCloseSession)
	case protocol.MsgShutdown:
		p, _ := protocol.UnmarshalPayload[protocol.ShutdownPayload](raw)
		if p.Reason == "" {
			p.Reason = "requested by monitor"
		}
		c.log.Info("monitor requested shutdown", "reason", p.Reason)
		if c.OnShutdown != nil {
			c.OnShutdown(p.Reason)
		}
		return true
	default:
		c.log.Warn("unknown monitor message", "type", string(msgType))
	}
	return false
}

func (c *Client) sessionCommand(msgType protocol.MessageType, raw json.RawMessage, run func(sessionID, reason string) error) {
	p, err := protocol.UnmarshalPayload[protocol.SessionCommandPayload](raw)
	switch {
	case err != nil:
	case run == nil:
		err = fmt.Errorf("controlplane: %s: %w", msgType, errUnsupported)
	default:
		if p.Reason == "" {
			p.Reason = "requested by monitor"
		}
		err = run(p.SessionID, p.Reason)
	}

	ack := protocol.AckPayload{AckedType: msgType, OK: err == nil}
	if err != nil {
		ack.Error = err.Error()
	}
	c.post(protocol.MsgAck, ack)
}

// pump is the only writer after registration. It drains the outbox and
// emits a heartbeat on every tick.
func (c *Client) pump(ctx context.Context) {
	beat := time.NewTicker(c.cfg.HeartbeatInterval)
	defer beat.Stop()

	for {
		var data []byte
		select {
		case <-ctx.Done():
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "agent stopping"),
				time.Now().Add(time.Second))
			return
		case data = <-c.outbox:
		case now := <-beat.C:
			hb, err := protocol.Marshal(protocol.MsgHeartbeat, c.heartbeat(now))
			if err != nil {
				continue
			}
			data = hb
		}
		if err := c.write(data); err != nil {
			c.log.With(map[string]any{"error": err}).Warn("monitor write failed")
			c.stop()
			return
		}
	}
}

func (c *Client) heartbeat(now time.Time) protocol.HeartbeatPayload {
	active := 0
	if c.ActiveSessions != nil {
		active = c.ActiveSessions()
	}
	status := "idle"
	if active > 0 {
		status = "running"
	}
	return protocol.HeartbeatPayload{
		AgentID:        c.cfg.AgentID,
		Timestamp:      now.UTC(),
		ActiveSessions: active,
		Status:         status,
	}
}
