package cli

import (
	"bufio"
	"context"
	"log/slog"
	"os"

	"github.com/dmitrijs2005/chatcore/internal/logging"
	"github.com/dmitrijs2005/chatcore/internal/server"
	"github.com/dmitrijs2005/chatcore/internal/server/config"
	"github.com/dmitrijs2005/chatcore/internal/server/schema"
	"github.com/dmitrijs2005/chatcore/internal/server/session"
)

// chunkSize is the slice size used when streaming a file to the server.
const chunkSize = 64 * 1024

type App struct {
	config   *config.Config
	core     *server.App
	session  *session.Session
	reader   *bufio.Reader
	userName string
}

// NewApp embeds the chat core in-process and opens one session through the
// hub. Core logs go to stderr at warn level so the REPL stays readable.
func NewApp(cfg *config.Config) (*App, error) {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})
	logger := logging.NewSlogLogger(slog.New(handler))

	core := server.NewAppWithLogger(cfg, logger)

	s, err := core.Hub().Connect(context.Background())
	if err != nil {
		return nil, err
	}

	return &App{
		config:  cfg,
		core:    core,
		session: s,
		reader:  bufio.NewReader(os.Stdin),
	}, nil
}

func (a *App) isLoggedIn() bool {
	return a.userName != ""
}

// Run subscribes to the public tables, starts the event pump and printer,
// and hands over to the REPL. It blocks until the user exits.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, table := range []string{
		schema.TableAccount,
		schema.TableMessage,
		schema.TableFile,
		schema.TableVoiceRoom,
		schema.TableVoicePacket,
	} {
		if err := a.session.Subscribe(table, nil); err != nil {
			printlnFn("subscribe", table+":", err)
		}
	}

	go a.session.Run(ctx)
	go a.printEvents()

	a.Root(ctx)

	a.core.Hub().Disconnect(context.Background(), a.session)
}

func (a *App) printEvents() {
	for msg := range a.session.Out() {
		if msg.Event != nil {
			printlnFn(renderEvent(msg.Event))
		}
	}
}
