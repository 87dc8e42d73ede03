package web

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"voicedoc/core"
	sessionevents "voicedoc/events/session"
	turnevents "voicedoc/events/turn"
	"voicedoc/handlers/conversation"
	"voicedoc/protocol"

	"github.com/gorilla/websocket"
)

const (
	liveSendBuffer = 64
	liveWriteWait  = 10 * time.Second
	livePongWait   = 60 * time.Second
	livePingPeriod = livePongWait * 9 / 10
	liveMaxMessage = 16 << 10
)

// LiveHub pushes session events to connected browsers and accepts user
// messages over the same socket. Every connection is bound to exactly one
// session; events never cross sessions.
type LiveHub struct {
	server *Server
	logger *core.Logger
	ctx    context.Context

	upgrader  websocket.Upgrader
	clients   map[*liveClient]struct{}
	clientsMu sync.RWMutex
}

type liveClient struct {
	conn    *websocket.Conn
	session *conversation.Session
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	// busy is set while this socket's cycle runs; further messages are rejected.
	busy atomic.Bool
}

func newLiveHub(ctx context.Context, server *Server, logger *core.Logger) *LiveHub {
	return &LiveHub{
		server:  server,
		logger:  logger.With(map[string]any{"component": "live"}),
		ctx:     ctx,
		clients: make(map[*liveClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// Count returns the number of open connections.
func (h *LiveHub) Count() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// CloseAll drops every connection, used on shutdown.
func (h *LiveHub) CloseAll() {
	h.clientsMu.RLock()
	clients := make([]*liveClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clientsMu.RUnlock()
	for _, c := range clients {
		c.close()
	}
}

func (h *LiveHub) serve(w http.ResponseWriter, r *http.Request, session *conversation.Session) {
	// w.Header() carries a freshly issued session cookie, if any.
	conn, err := h.upgrader.Upgrade(w, r, w.Header())
	if err != nil {
		h.logger.With(map[string]any{"error": err}).Warn("websocket upgrade failed")
		return
	}

	c := &liveClient{
		conn:    conn,
		session: session,
		send:    make(chan []byte, liveSendBuffer),
		done:    make(chan struct{}),
	}

	h.clientsMu.Lock()
	h.clients[c] = struct{}{}
	h.clientsMu.Unlock()

	unsubscribe := session.Subscribe(core.EventSinkFunc(func(p *core.EventPacket) {
		h.forward(c, p)
	}))
	defer func() {
		unsubscribe()
		h.clientsMu.Lock()
		delete(h.clients, c)
		h.clientsMu.Unlock()
		c.close()
	}()

	session.Logger.Debug("live client connected", "remote", conn.RemoteAddr().String())

	snapshot := session.Settings.Snapshot()
	h.enqueue(c, protocol.MsgSettings, protocol.SettingsPayload{VoiceID: snapshot.VoiceID, AutoPlay: snapshot.AutoPlay})
	for _, n := range h.server.turns.Warnings() {
		h.enqueue(c, protocol.MsgNotice, noticePayload(n))
	}

	go h.writeLoop(c)
	h.readLoop(c)
}

// forward translates one session event into a browser envelope.
func (h *LiveHub) forward(c *liveClient, p *core.EventPacket) {
	switch ev := p.Event.(type) {
	case *turnevents.CycleStateEvent:
		h.enqueue(c, protocol.MsgState, protocol.StatePayload{CycleID: ev.CycleID, State: string(ev.State)})
	case *turnevents.TurnCommittedEvent:
		h.enqueue(c, protocol.MsgTurn, turnPayload(ev.Turn, c.session.Settings.AutoPlay()))
	case *core.NoticeEvent:
		h.enqueue(c, protocol.MsgNotice, noticePayload(ev.Notice))
	case *sessionevents.SettingsChangedEvent:
		h.enqueue(c, protocol.MsgSettings, protocol.SettingsPayload{VoiceID: ev.VoiceID, AutoPlay: ev.AutoPlay})
	case *sessionevents.SessionResetEvent:
		h.enqueue(c, protocol.MsgReset, protocol.ResetPayload{Reason: ev.Reason})
	case *sessionevents.SessionClosedEvent:
		h.enqueue(c, protocol.MsgReset, protocol.ResetPayload{Reason: ev.Reason})
		go c.close()
	}
}

func (h *LiveHub) enqueue(c *liveClient, msgType protocol.MessageType, payload interface{}) {
	data, err := protocol.Marshal(msgType, payload)
	if err != nil {
		h.logger.With(map[string]any{"error": err, "type": string(msgType)}).Warn("failed to marshal live message, dropping")
		return
	}
	select {
	case c.send <- data:
	case <-c.done:
	default:
		h.logger.With(map[string]any{"type": string(msgType), "session_id": c.session.ID}).Warn("live client too slow, dropping message")
	}
}

func (h *LiveHub) readLoop(c *liveClient) {
	c.conn.SetReadLimit(liveMaxMessage)
	c.conn.SetReadDeadline(time.Now().Add(livePongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(livePongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.session.Logger.With(map[string]any{"error": err}).Debug("live client read failed")
			}
			return
		}
		c.session.Touch()

		msgType, raw, err := protocol.Unmarshal(data)
		if err != nil {
			h.enqueue(c, protocol.MsgError, protocol.ErrorPayload{Code: "bad_envelope", Message: err.Error()})
			continue
		}

		switch msgType {
		case protocol.MsgUserMessage:
			p, err := protocol.UnmarshalPayload[protocol.UserMessagePayload](raw)
			if err != nil {
				h.enqueue(c, protocol.MsgError, protocol.ErrorPayload{Code: "bad_payload", Message: err.Error()})
				continue
			}
			if !c.busy.CompareAndSwap(false, true) {
				h.enqueue(c, protocol.MsgError, protocol.ErrorPayload{Code: "cycle_in_progress", Message: "Please wait for the current reply."})
				continue
			}
			// The cycle outlives this read; its turns arrive through the subscription.
			go h.runCycle(c, p.Text)

		case protocol.MsgSettingsUpdate:
			p, err := protocol.UnmarshalPayload[protocol.SettingsUpdatePayload](raw)
			if err != nil {
				h.enqueue(c, protocol.MsgError, protocol.ErrorPayload{Code: "bad_payload", Message: err.Error()})
				continue
			}
			if err := h.server.applySettings(c.session, p.VoiceID, p.AutoPlay); err != nil {
				h.enqueue(c, protocol.MsgError, protocol.ErrorPayload{Code: "invalid_voice", Message: err.Error()})
			}

		case protocol.MsgResetRequest:
			c.session.Reset("user request")

		default:
			h.enqueue(c, protocol.MsgError, protocol.ErrorPayload{Code: "unknown_type", Message: "unknown message type " + string(msgType)})
		}
	}
}

func (h *LiveHub) runCycle(c *liveClient, text string) {
	defer c.busy.Store(false)
	_, err := h.server.turns.HandleUserMessage(h.ctx, c.session, text, c.session.Settings.VoiceID())
	if errors.Is(err, core.ErrEmptyInput) {
		h.enqueue(c, protocol.MsgError, protocol.ErrorPayload{Code: "empty_input", Message: "Please type a message first."})
		return
	}
	if err != nil {
		c.session.Logger.With(map[string]any{"error": err}).Error("live cycle failed")
		h.enqueue(c, protocol.MsgError, protocol.ErrorPayload{Code: "internal", Message: "The message could not be processed."})
		return
	}
	// Notices were already pushed live; do not repeat them on the next page load.
	c.session.TakeNotices()
}

func (h *LiveHub) writeLoop(c *liveClient) {
	ticker := time.NewTicker(livePingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *liveClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.conn.Close()
	})
}
