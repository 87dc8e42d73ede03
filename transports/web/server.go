package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"voicedoc/core"
	sessionevents "voicedoc/events/session"
	"voicedoc/factories"
	"voicedoc/handlers/conversation"
	"voicedoc/handlers/turn"
	"voicedoc/protocol"

	"github.com/bytedance/sonic"
)

const surface = "web"

// Server is the browser presentation adapter. Each browser is bound to its
// own conversation session by a signed cookie.
type Server struct {
	sessions *factories.SessionManager
	turns    *turn.TurnHandler
	cookies  *SessionCookies
	live     *LiveHub
	logger   *core.Logger
}

func NewServer(sessions *factories.SessionManager, turns *turn.TurnHandler, cookies *SessionCookies, logger *core.Logger) *Server {
	if logger == nil {
		logger = core.GetLogger()
	}
	s := &Server{
		sessions: sessions,
		turns:    turns,
		cookies:  cookies,
		logger:   logger.With(map[string]any{"component": "web"}),
	}
	s.live = newLiveHub(context.Background(), s, s.logger)
	return s
}

// Live exposes the websocket hub, mainly for connection counts.
func (s *Server) Live() *LiveHub {
	return s.live
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /messages", s.handleMessage)
	mux.HandleFunc("POST /settings", s.handleSettings)
	mux.HandleFunc("POST /reset", s.handleReset)
	mux.HandleFunc("GET /audio/{turnID}", s.handleAudio)
	mux.HandleFunc("GET /api/transcript", s.handleTranscript)
	mux.HandleFunc("GET /api/voices", s.handleVoices)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleLive)
	return mux
}

// ListenAndServe blocks until ctx is cancelled or the listener fails.
// Live cycles started over the websocket run on ctx.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.live.ctx = ctx
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("web server listening", "addr", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("web: listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	s.live.CloseAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("web: shutdown: %w", err)
	}
	return nil
}

// session resolves the caller's session, creating one and issuing a cookie
// when the cookie is missing, invalid, or points at an expired session.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *conversation.Session {
	id, err := s.cookies.SessionID(r)
	if err != nil && !errors.Is(err, http.ErrNoCookie) {
		s.logger.With(map[string]any{"error": err}).Debug("rejecting session cookie")
	}
	session, created := s.sessions.GetOrCreate(id, surface)
	if created {
		if err := s.cookies.Issue(w, session.ID); err != nil {
			s.logger.With(map[string]any{"error": err}).Error("issue session cookie failed")
		}
	}
	return session
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	session := s.session(w, r)
	s.renderPage(w, http.StatusOK, buildPage(session, s.turns.Warnings()))
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	session := s.session(w, r)
	message := r.PostFormValue("message")

	// The cycle finishes even if the browser navigates away mid-request.
	ctx := context.WithoutCancel(r.Context())
	_, err := s.turns.HandleUserMessage(ctx, session, message, session.Settings.VoiceID())
	switch {
	case errors.Is(err, core.ErrEmptyInput):
		view := buildPage(session, s.turns.Warnings())
		view.Error = "Please type a message first."
		s.renderPage(w, http.StatusBadRequest, view)
		return
	case err != nil:
		session.Logger.With(map[string]any{"error": err}).Error("cycle failed")
		http.Error(w, "the message could not be processed", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	session := s.session(w, r)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	var voiceID *string
	if v := r.PostForm.Get("voice"); v != "" {
		voiceID = &v
	}
	// An unchecked checkbox is simply absent from the form.
	autoPlay := r.PostForm.Get("auto_play") == "on"

	if err := s.applySettings(session, voiceID, &autoPlay); err != nil {
		view := buildPage(session, s.turns.Warnings())
		view.Error = "That voice is not available."
		s.renderPage(w, http.StatusBadRequest, view)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// applySettings changes nothing when voiceID is rejected.
func (s *Server) applySettings(session *conversation.Session, voiceID *string, autoPlay *bool) error {
	if voiceID != nil {
		if err := session.Settings.SetVoice(*voiceID); err != nil {
			session.Logger.With(map[string]any{"voice_id": *voiceID}).Warn("rejected voice change")
			return err
		}
	}
	if autoPlay != nil {
		session.Settings.SetAutoPlay(*autoPlay)
	}
	snapshot := session.Settings.Snapshot()
	session.Logger.Info("settings changed", "voice_id", snapshot.VoiceID, "auto_play", snapshot.AutoPlay)
	session.Publish(core.NewEventPacket(&sessionevents.SettingsChangedEvent{
		VoiceID:  snapshot.VoiceID,
		AutoPlay: snapshot.AutoPlay,
	}, session.ID, "WebServer"))
	return nil
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	session := s.session(w, r)
	session.Reset("user request")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	session := s.session(w, r)
	t, ok := session.Transcript().Find(r.PathValue("turnID"))
	if !ok || !t.HasAudio() {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", string(t.Audio.MediaType))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	http.ServeContent(w, r, "", t.Timestamp, bytes.NewReader(t.Audio.Data))
}

type transcriptResponse struct {
	SessionID string                        `json:"session_id"`
	Settings  conversation.SettingsSnapshot `json:"settings"`
	Turns     []protocol.TurnPayload        `json:"turns"`
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	session := s.session(w, r)
	settings := session.Settings.Snapshot()
	turns := session.Transcript().All()
	views := buildTurnViews(turns, settings.AutoPlay)

	resp := transcriptResponse{
		SessionID: session.ID,
		Settings:  settings,
		Turns:     make([]protocol.TurnPayload, 0, len(turns)),
	}
	for i, t := range turns {
		p := turnPayload(t, false)
		p.AutoPlay = views[i].AutoPlay
		resp.Turns = append(resp.Turns, p)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type voiceResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Accent   string `json:"accent"`
	Gender   string `json:"gender"`
	Language string `json:"language"`
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	voices := core.Voices()
	out := make([]voiceResponse, 0, len(voices))
	for _, v := range voices {
		out = append(out, voiceResponse{
			ID:       v.ID,
			Name:     v.Name,
			Accent:   v.Accent,
			Gender:   v.Gender,
			Language: v.LanguageName(),
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Len(),
		"live":     s.live.Count(),
	})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	session := s.session(w, r)
	s.live.serve(w, r, session)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		s.logger.With(map[string]any{"error": err}).Error("encode json response failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	w.Write(data)
}
