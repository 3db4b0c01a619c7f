// Package main is an interactive chat client. Lines starting with a slash
// are commands; anything else is sent to the selected chat.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/peterh/liner"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chatsync/internal/config"
	"github.com/capitalize-ai/chatsync/internal/gateway"
	"github.com/capitalize-ai/chatsync/internal/llm"
	"github.com/capitalize-ai/chatsync/internal/model"
	natsclient "github.com/capitalize-ai/chatsync/internal/nats"
	"github.com/capitalize-ai/chatsync/internal/persist"
	"github.com/capitalize-ai/chatsync/internal/realtime"
	"github.com/capitalize-ai/chatsync/internal/store"
	"github.com/capitalize-ai/chatsync/internal/telephony"
	"github.com/capitalize-ai/chatsync/pkg/logger"
	"github.com/capitalize-ai/chatsync/pkg/tracing"
)

type app struct {
	cfg      *config.Config
	log      *logger.Logger
	out      io.Writer
	gw       *gateway.Client
	llm      llm.Client
	bridge   *realtime.Bridge
	session  *persist.File
	auth     *store.AuthStore
	settings *store.SettingsStore
	messages *store.MessageStore
	chats    *store.ChatStore
	phone    *telephony.Client
}

func main() {
	os.Exit(run())
}

// run returns the process exit code.
func run() int {
	cfg := config.Load()

	// Logs go to a file so they do not break up the prompt.
	logFile := filepath.Join(filepath.Dir(cfg.SessionFile), "chatctl.log")
	if err := os.MkdirAll(filepath.Dir(logFile), 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create %s: %v\n", filepath.Dir(logFile), err)
		return 1
	}
	log, err := logger.New(cfg.ClientLogLevel, logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return 1
	}
	defer log.Sync()
	logger.SetGlobal(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "chatctl", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	a := newApp(cfg, log)
	defer a.close()

	if err := a.gw.Connect(ctx); err != nil {
		fmt.Fprintf(a.out, "realtime unavailable: %v\n", err)
	}
	a.restore(ctx)

	if err := a.repl(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	return 0
}

func newApp(cfg *config.Config, log *logger.Logger) *app {
	gw := gateway.Shared(gateway.Config{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.RequestTimeout,
		Realtime: natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
			Name:     "chatctl",
		},
		Logger: log,
	})

	// Generation goes through the backend passthrough unless a separate
	// LLM endpoint is configured.
	var client llm.Client
	if strings.TrimRight(cfg.LLMBaseURL, "/") == strings.TrimRight(cfg.APIBaseURL, "/") {
		client = gw.LLM()
	} else {
		client = llm.NewOllamaClient(cfg.LLMBaseURL, cfg.LLMPath, 0, nil)
	}
	client = llm.Instrument(client, log)

	session := &persist.File{Path: cfg.SessionFile}
	auth := store.NewAuthStore(gw, session, log)
	settings := store.NewSettingsStore(gw, log)
	messages := store.NewMessageStore(gw, client, settings, cfg.DefaultModel, log)
	bridge := realtime.New(gw, messages, log)
	chats := store.NewChatStore(store.ChatDeps{
		Gateway:    gw,
		Identity:   auth,
		Rooms:      bridge,
		Settings:   settings,
		Messages:   messages,
		Titler:     client,
		TitleModel: cfg.TitleModel,
		Session:    session,
		Logger:     log,
	})
	bridge.SetErrorReporter(messages)
	bridge.SetResyncer(chats)

	return &app{
		cfg:      cfg,
		log:      log,
		out:      os.Stdout,
		gw:       gw,
		llm:      client,
		bridge:   bridge,
		session:  session,
		auth:     auth,
		settings: settings,
		messages: messages,
		chats:    chats,
		phone:    telephony.NewClient(cfg.TelephonyURL, cfg.RequestTimeout, log),
	}
}

// restore picks up a saved login and the chat that was open last.
func (a *app) restore(ctx context.Context) {
	sess, err := a.session.Load()
	if err != nil {
		fmt.Fprintf(a.out, "session: %v\n", err)
		return
	}
	if err := a.auth.Initialize(ctx); err != nil {
		if errors.Is(err, model.ErrAuth) {
			fmt.Fprintln(a.out, "session expired, please /login")
		} else {
			fmt.Fprintf(a.out, "restore failed: %v\n", err)
		}
		return
	}
	user := a.auth.User()
	if user == nil {
		fmt.Fprintln(a.out, "not logged in, use /login or /register")
		return
	}
	fmt.Fprintf(a.out, "logged in as %s\n", user.Username)
	if err := a.chats.Initialize(ctx, sess.CurrentChat); err != nil {
		fmt.Fprintf(a.out, "failed to load chats: %v\n", err)
		return
	}
	a.printChats()
}

func (a *app) repl(ctx context.Context) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(completeCommand)

	historyFile := filepath.Join(filepath.Dir(a.cfg.SessionFile), "history")
	if f, err := os.Open(historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if err := os.MkdirAll(filepath.Dir(historyFile), 0o700); err != nil {
			return
		}
		if f, err := os.OpenFile(historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
			_, _ = line.WriteHistory(f)
			f.Close()
		}
	}()

	for {
		input, err := line.Prompt(a.prompt())
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			fmt.Fprintln(a.out)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		quit, err := a.dispatch(ctx, input)
		if err != nil {
			fmt.Fprintf(a.out, "error: %v\n", err)
		}
		if quit || ctx.Err() != nil {
			return nil
		}
	}
}

func (a *app) prompt() string {
	id := a.chats.Selected()
	if id == "" {
		return "> "
	}
	for _, c := range a.chats.Snapshot().Chats {
		if c.ID == id {
			return c.DisplayTitle(shortID(id)) + "> "
		}
	}
	return "> "
}

func (a *app) close() {
	if err := a.bridge.Close(); err != nil {
		a.log.Warn("failed to leave room", zap.Error(err))
	}
	if err := a.gw.Close(); err != nil {
		a.log.Warn("failed to close realtime channel", zap.Error(err))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
