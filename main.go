package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"voicedoc/controlplane"
	"voicedoc/core"
	"voicedoc/factories"
	"voicedoc/handlers/turn"
	"voicedoc/protocol"
	"voicedoc/transports/terminal"
	"voicedoc/transports/web"

	"github.com/joho/godotenv"
)

func main() {
	var (
		addr       string
		useTerm    bool
		connectURL string
	)
	flag.StringVar(&addr, "addr", "", "listen address for the web UI (overrides settings server.addr)")
	flag.BoolVar(&useTerm, "terminal", false, "run the terminal REPL instead of the web UI")
	flag.StringVar(&connectURL, "connect", "", "WebSocket URL of a monitoring server (e.g. ws://monitor:8888/ws/agent)")
	flag.Parse()

	if err := godotenv.Load(".env.local"); err != nil {
		core.GetLogger().With(map[string]any{"error": err}).Debug("no .env.local file loaded")
	}
	configureLogger(useTerm)
	logger := core.GetLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	settings := loadSettingsFromEnv()
	settings.InjectAPIKeys(factories.APIKeysFromEnv())
	if addr != "" {
		settings.Server.Addr = addr
	}

	completion := factories.BuildCompletionClient(settings.Completion, logger)
	speech := factories.BuildSpeechClient(settings.Speech, logger)
	turns := turn.NewTurnHandler(completion, speech, settings.Assistant, logger)
	for _, w := range turns.Warnings() {
		logger.Warn(w.Message, "code", w.Code)
	}

	sessions := factories.NewSessionManager(factories.SessionManagerConfig{
		Defaults: settings.Session,
		LogDir:   os.Getenv("LOG_DIR"),
	}, logger)
	go sessions.Run(ctx)
	defer sessions.CloseAll("shutdown")

	if connectURL != "" {
		client := connectMonitor(ctx, cancel, connectURL, sessions, logger)
		if client != nil {
			defer client.Close()
		}
	}

	if useTerm {
		repl := terminal.New(os.Stdin, os.Stdout, sessions, turns, settings.Terminal, logger)
		if err := repl.Run(ctx); err != nil {
			logger.With(map[string]any{"error": err}).Error("terminal exited with error")
			os.Exit(1)
		}
		return
	}

	cookies, err := web.NewSessionCookies([]byte(os.Getenv("SESSION_SECRET")), sessionCookieMaxAge(), os.Getenv("SESSION_COOKIE_SECURE") == "true")
	if err != nil {
		logger.With(map[string]any{"error": err}).Fatal("failed to set up session cookies")
	}
	server := web.NewServer(sessions, turns, cookies, logger)
	if err := server.ListenAndServe(ctx, settings.Server.Addr); err != nil {
		logger.With(map[string]any{"error": err}).Error("web server stopped")
		os.Exit(1)
	}
	logger.Info("shutting down")
}

// configureLogger applies LOG_LEVEL and LOG_FORMAT (text or json). The
// terminal REPL owns stdout, so its logs go to stderr and default to warnings.
func configureLogger(terminalMode bool) {
	out, level := os.Stdout, core.LevelInfo
	if terminalMode {
		out, level = os.Stderr, core.LevelWarn
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level = core.ParseLevel(v)
	}
	if os.Getenv("LOG_FORMAT") == "json" {
		core.SetLogger(*core.NewJSONLogger(out, level))
		return
	}
	core.SetLogger(*core.NewDevelopmentLogger(out, level))
}

// loadSettingsFromEnv loads SettingsConfig from SETTINGS_JSON_B64 or the file
// at SETTINGS_PATH. Any failure falls back to the defaults.
func loadSettingsFromEnv() factories.SettingsConfig {
	logger := core.GetLogger()

	var (
		settings factories.SettingsConfig
		err      error
		source   string
	)
	if b64 := os.Getenv("SETTINGS_JSON_B64"); b64 != "" {
		source = "SETTINGS_JSON_B64"
		settings, err = factories.SettingsConfigFromBase64(b64)
	} else {
		source = getEnv("SETTINGS_PATH", "./settings.json")
		settings, err = factories.SettingsConfigFromFile(source)
	}
	if err == nil {
		err = settings.Validate()
	}
	if err != nil {
		level := logger.Warn
		if errors.Is(err, os.ErrNotExist) {
			level = logger.Info
		}
		level("using default settings", "source", source, "error", err.Error())
		return factories.DefaultSettingsConfig()
	}
	logger.Info("loaded settings", "source", source)
	return settings
}

// connectMonitor streams session logs and events to a monitoring server and
// accepts session commands from it. Losing the connection shuts the app down.
func connectMonitor(ctx context.Context, cancel context.CancelFunc, connectURL string, sessions *factories.SessionManager, logger *core.Logger) *controlplane.Client {
	logger = logger.With(map[string]any{"component": "monitor"})

	agentID := os.Getenv("AGENT_ID")
	if agentID == "" {
		agentID, _ = os.Hostname()
	}
	hostname, _ := os.Hostname()

	client := controlplane.NewClient(controlplane.ClientConfig{
		ConnectURL: connectURL,
		AgentID:    agentID,
		Version:    "1.0.0",
		Metadata:   map[string]string{"hostname": hostname},
		Logger:     logger,
	})
	client.OnShutdown = func(reason string) {
		logger.Info("shutdown requested by monitor", "reason", reason)
		cancel()
	}
	client.OnResetSession = func(sessionID, reason string) error {
		s, err := sessions.Get(sessionID)
		if err != nil {
			return err
		}
		s.Reset(reason)
		return nil
	}
	client.OnCloseSession = sessions.Close
	client.ActiveSessions = sessions.Len

	if err := client.Connect(ctx); err != nil {
		logger.With(map[string]any{"error": err}).Error("failed to connect to monitor")
		cancel()
		return nil
	}

	sessions.AddLogWriter(func(sessionID, _ string) core.LogWriter {
		return controlplane.NewWSLogWriter(client, sessionID)
	})
	sessions.Observe(client.SendEvent)

	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				client.SendStatus("running", sessionInfos(sessions))
			case <-client.Done():
				logger.Info("monitor connection lost, shutting down")
				cancel()
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return client
}

func sessionInfos(sessions *factories.SessionManager) []protocol.SessionInfo {
	list := sessions.List()
	out := make([]protocol.SessionInfo, 0, len(list))
	for _, s := range list {
		out = append(out, protocol.SessionInfo{
			SessionID: s.SessionID,
			Surface:   s.Surface,
			StartedAt: s.StartedAt.UTC().Format(time.RFC3339),
			Turns:     s.Turns,
		})
	}
	return out
}

func sessionCookieMaxAge() time.Duration {
	hours := getEnvAsInt("SESSION_COOKIE_HOURS", 24)
	return time.Duration(hours) * time.Hour
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as integer with a default fallback
func getEnvAsInt(key string, defaultValue int) int {
	valStr := getEnv(key, "")
	if valStr == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultValue
	}
	return val
}
