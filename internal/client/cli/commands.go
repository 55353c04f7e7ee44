package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dmitrijs2005/chatcore/internal/server/engine"
	"github.com/dmitrijs2005/chatcore/internal/server/models"
	"github.com/dmitrijs2005/chatcore/internal/store"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// report prints the outcome of a command invocation and returns whether it
// succeeded.
func report(res engine.Result) bool {
	if res.OK {
		printlnFn("OK")
		return true
	}
	printlnFn(res.Command + ": " + res.Err)
	return false
}

// Signup prompts for a user name and password and creates a new account.
// The first account on a fresh server becomes the admin.
func (a *App) Signup(ctx context.Context) error {
	name, err := getSimpleText(a.reader, "Enter user name", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}

	if report(a.session.Do(ctx, "signup", name, string(password))) {
		a.userName = name
	}
	return nil
}

// Login prompts for credentials and authenticates this connection.
func (a *App) Login(ctx context.Context) error {
	name, err := getSimpleText(a.reader, "Enter user name", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}

	if report(a.session.Do(ctx, "login", name, string(password))) {
		a.userName = name
	}
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	if report(a.session.Do(ctx, "logout")) {
		a.userName = ""
	}
	return nil
}

// Send prompts for message text and posts it to the room. A finished upload
// from a preceding "upload" command rides along as the attachment.
func (a *App) Send(ctx context.Context) error {
	text, err := getSimpleText(a.reader, "Message", os.Stdout)
	if err != nil {
		return err
	}
	report(a.session.Do(ctx, "send_message", text, nil))
	return nil
}

// Reply prompts for a message id and text and posts a reply to it.
func (a *App) Reply(ctx context.Context) error {
	id, err := a.promptID("Reply to message id")
	if err != nil {
		return err
	}
	text, err := getSimpleText(a.reader, "Message", os.Stdout)
	if err != nil {
		return err
	}
	report(a.session.Do(ctx, "send_message", text, id))
	return nil
}

func (a *App) Edit(ctx context.Context) error {
	id, err := a.promptID("Message id")
	if err != nil {
		return err
	}
	text, err := getSimpleText(a.reader, "New text", os.Stdout)
	if err != nil {
		return err
	}
	report(a.session.Do(ctx, "edit_message", id, text))
	return nil
}

func (a *App) Remove(ctx context.Context) error {
	id, err := a.promptID("Message id")
	if err != nil {
		return err
	}
	report(a.session.Do(ctx, "remove_message", id))
	return nil
}

// historyPage is how many trailing messages History shows.
const historyPage = 20

// History prints the tail of the room's message log, oldest first.
func (a *App) History(ctx context.Context) error {
	return a.session.View(ctx, func(ctx context.Context, tx *store.Tx) error {
		total := a.core.Schema().Messages.Len(tx)
		start := total - historyPage
		if start < 0 {
			start = 0
		}
		for _, m := range a.core.Messages().List(tx, start, total) {
			printlnFn(formatMessage(m))
		}
		printlnFn(fmt.Sprintf("%d messages total", total))
		return nil
	})
}

// Users lists every account with its presence state.
func (a *App) Users(ctx context.Context) error {
	return a.session.View(ctx, func(ctx context.Context, tx *store.Tx) error {
		a.core.Schema().Accounts.Iter(tx, func(acc models.Account) bool {
			state := "offline"
			if len(acc.Online) > 0 {
				state = "online"
			}
			admin := ""
			if acc.Admin {
				admin = " [admin]"
			}
			printlnFn(fmt.Sprintf("#%d %s%s — %s", acc.ID, acc.Name, admin, state))
			return true
		})
		return nil
	})
}

// Upload prompts for a local file path, streams the file to the server in
// chunks, then prompts for a caption and sends the message carrying the
// attachment.
func (a *App) Upload(ctx context.Context) error {
	path, err := getSimpleText(a.reader, "File path", os.Stdout)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		printlnFn("cannot read file:", err)
		return nil
	}

	if !report(a.session.Do(ctx, "request_upload", filepath.Base(path), int64(len(data)))) {
		return nil
	}
	for off := 0; off < len(data); off += chunkSize {
		end := off + chunkSize
		if end > len(data) {
			end = len(data)
		}
		if !report(a.session.Do(ctx, "send_chunk", data[off:end])) {
			return nil
		}
	}

	caption, err := getSimpleText(a.reader, "Caption", os.Stdout)
	if err != nil {
		return err
	}
	report(a.session.Do(ctx, "send_message", caption, nil))
	return nil
}

// Avatar prompts for an image path (square PNG or JPEG) and sets it as the
// account's avatar.
func (a *App) Avatar(ctx context.Context) error {
	path, err := getSimpleText(a.reader, "Image path", os.Stdout)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		printlnFn("cannot read file:", err)
		return nil
	}
	report(a.session.Do(ctx, "set_avatar", data))
	return nil
}

// JoinVoice joins an existing voice room by id, or creates a fresh one when
// the prompt is left empty.
func (a *App) JoinVoice(ctx context.Context) error {
	line, err := getSimpleText(a.reader, "Room id (empty to create)", os.Stdout)
	if err != nil {
		return err
	}
	if line == "" {
		report(a.session.Do(ctx, "join_voice", nil))
		return nil
	}
	id, err := parseID(line)
	if err != nil {
		printlnFn("bad room id:", line)
		return nil
	}
	report(a.session.Do(ctx, "join_voice", id))
	return nil
}

func (a *App) LeaveVoice(ctx context.Context) error {
	report(a.session.Do(ctx, "leave_voice"))
	return nil
}

// Speak sends one voice packet to the current room. The console has no
// audio capture, so the typed line stands in for the sample payload.
func (a *App) Speak(ctx context.Context) error {
	line, err := getSimpleText(a.reader, "Samples", os.Stdout)
	if err != nil {
		return err
	}
	report(a.session.Do(ctx, "send_voice_packet", []byte(line)))
	return nil
}

func (a *App) promptID(prompt string) (uint32, error) {
	line, err := getSimpleText(a.reader, prompt, os.Stdout)
	if err != nil {
		return 0, err
	}
	id, err := parseID(line)
	if err != nil {
		printlnFn("bad id:", line)
		return 0, err
	}
	return id, nil
}

func parseID(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}
