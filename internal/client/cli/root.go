package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Signup(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Send(ctx context.Context) error
	Reply(ctx context.Context) error
	Edit(ctx context.Context) error
	Remove(ctx context.Context) error
	History(ctx context.Context) error
	Users(ctx context.Context) error
	Upload(ctx context.Context) error
	Avatar(ctx context.Context) error
	JoinVoice(ctx context.Context) error
	LeaveVoice(ctx context.Context) error
	Speak(ctx context.Context) error
}

// runREPL starts a simple read–eval–print loop for the chat console.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands are reported
// back to the user. The loop exits on scanner EOF or when the user types
// "exit" or "quit".
//
// Any errors returned by command handlers are ignored here; handlers should
// report their own errors. This keeps the REPL loop resilient and focused on
// I/O.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("chat %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: (s)end, reply, edit, remove, (h)istory, users, upload, avatar, join, leave, speak, logout, exit")
			} else {
				printlnFn("Available commands: signup, login, history, users, exit")
			}

		case "signup":
			_ = a.Signup(ctx)

		case "login":
			_ = a.Login(ctx)

		case "logout":
			_ = a.Logout(ctx)

		case "s", "send":
			_ = a.Send(ctx)

		case "reply":
			_ = a.Reply(ctx)

		case "edit":
			_ = a.Edit(ctx)

		case "remove":
			_ = a.Remove(ctx)

		case "h", "history":
			_ = a.History(ctx)

		case "users":
			_ = a.Users(ctx)

		case "upload":
			_ = a.Upload(ctx)

		case "avatar":
			_ = a.Avatar(ctx)

		case "join":
			_ = a.JoinVoice(ctx)

		case "leave":
			_ = a.LeaveVoice(ctx)

		case "speak":
			_ = a.Speak(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}

func (a *App) getStatus() string {
	if a.userName == "" {
		return ""
	}
	return fmt.Sprintf("(%s)", a.userName)
}

func (a *App) Root(ctx context.Context) {
	printlnFn("Chat console (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, a.getStatus, scanner)
}
