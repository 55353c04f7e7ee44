// Package server wires the chat state core together: table schema, command
// engine, domain services, replication manager and session hub, plus signal
// handling for a long-running process.
package server

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/chatcore/internal/logging"
	"github.com/dmitrijs2005/chatcore/internal/server/accounts"
	"github.com/dmitrijs2005/chatcore/internal/server/config"
	"github.com/dmitrijs2005/chatcore/internal/server/engine"
	"github.com/dmitrijs2005/chatcore/internal/server/messages"
	"github.com/dmitrijs2005/chatcore/internal/server/replication"
	"github.com/dmitrijs2005/chatcore/internal/server/schema"
	"github.com/dmitrijs2005/chatcore/internal/server/session"
	"github.com/dmitrijs2005/chatcore/internal/server/uploads"
	"github.com/dmitrijs2005/chatcore/internal/server/voice"
	"github.com/dmitrijs2005/chatcore/internal/store"
)

type App struct {
	config *config.Config
	logger logging.Logger

	schema *schema.Schema
	engine *engine.Engine
	repl   *replication.Manager
	hub    *session.Hub

	accountService *accounts.Service
	messageService *messages.Service
	uploadService  *uploads.Service
	voiceService   *voice.Service
}

func NewApp(cfg *config.Config) (*App, error) {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)})
	logger := logging.NewSlogLogger(slog.New(handler))
	return newApp(cfg, logger), nil
}

// NewAppWithLogger is the constructor used by embedders (the console harness,
// tests) that own the logger.
func NewAppWithLogger(cfg *config.Config, logger logging.Logger) *App {
	return newApp(cfg, logger)
}

func newApp(cfg *config.Config, logger logging.Logger) *App {
	sch := schema.New()
	eng := engine.New(sch.Store, logger)

	up := uploads.NewService(sch, cfg, logger)
	acc := accounts.NewService(sch, cfg, logger)
	msg := messages.NewService(sch, up, logger)
	vc := voice.NewService(sch, logger)

	// Registration order fixes disconnect-hook order: presence unbinding
	// first, then upload abandonment, then voice-room cleanup, all in one
	// transaction.
	acc.Register(eng)
	up.Register(eng)
	msg.Register(eng)
	vc.Register(eng)

	repl := replication.NewManager(sch.Store, func(tx *store.Tx, conn engine.Conn) (uint32, bool) {
		cred, ok := sch.CredentialOf(tx, conn)
		return cred.AccountID, ok
	}, logger)
	registerFilters(repl, sch)

	hub := session.NewHub(eng, repl, cfg.SessionBuffer, logger)

	return &App{
		config:         cfg,
		logger:         logger,
		schema:         sch,
		engine:         eng,
		repl:           repl,
		hub:            hub,
		accountService: acc,
		messageService: msg,
		uploadService:  up,
		voiceService:   vc,
	}
}

// Hub is the connection-lifecycle surface for transports and embedders.
func (app *App) Hub() *session.Hub { return app.hub }

// Messages exposes the read-side message queries.
func (app *App) Messages() *messages.Service { return app.messageService }

// Schema exposes the table registry for read-only queries.
func (app *App) Schema() *schema.Schema { return app.schema }

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run blocks until the context is cancelled or a termination signal arrives,
// then tears every live session down.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting chat core",
		"session_buffer", app.config.SessionBuffer,
		"max_upload_bytes", app.config.MaxUploadBytes)

	app.initSignalHandler(cancelFunc)

	<-ctx.Done()

	app.hub.Close(context.Background())
	app.logger.Info(context.Background(), "chat core stopped")
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
