package cli

import (
	"fmt"

	"github.com/dmitrijs2005/chatcore/internal/server/models"
	"github.com/dmitrijs2005/chatcore/internal/server/replication"
	"github.com/dmitrijs2005/chatcore/internal/server/schema"
	"github.com/dmitrijs2005/chatcore/internal/store"
)

// renderEvent turns a replicated row event into one human-readable line.
func renderEvent(ev *replication.Event) string {
	switch ev.Table {
	case schema.TableAccount:
		return renderAccount(ev)
	case schema.TableMessage:
		return renderMessage(ev)
	case schema.TableFile:
		f := row[models.File](ev)
		return fmt.Sprintf("<< file #%d %q (%d bytes) %s", f.ID, f.Name, f.Size, ev.Op)
	case schema.TableVoiceRoom:
		r := row[models.VoiceRoom](ev)
		return fmt.Sprintf("<< voice room #%d %s (%d members)", r.ID, ev.Op, len(r.Members))
	case schema.TableVoicePacket:
		p := row[models.VoicePacket](ev)
		return fmt.Sprintf("<< voice room #%d: %d samples from user #%d", p.Room, len(p.Samples), p.Sender)
	default:
		return fmt.Sprintf("<< %s %s", ev.Table, ev.Op)
	}
}

func renderAccount(ev *replication.Event) string {
	a := row[models.Account](ev)
	state := "offline"
	if len(a.Online) > 0 {
		state = "online"
	}
	return fmt.Sprintf("<< user #%d %s is %s", a.ID, a.Name, state)
}

func renderMessage(ev *replication.Event) string {
	m := row[models.Message](ev)
	switch ev.Op {
	case store.OpDelete:
		return fmt.Sprintf("<< message #%d removed", m.ID)
	default:
		return formatMessage(m)
	}
}

// formatMessage is shared between live events and the history listing.
func formatMessage(m models.Message) string {
	s := fmt.Sprintf("#%d user #%d: %s", m.ID, m.Sender, m.Text)
	if m.ReplyTo != 0 {
		s += fmt.Sprintf(" (reply to #%d)", m.ReplyTo)
	}
	if m.FileID != 0 {
		s += fmt.Sprintf(" [file #%d]", m.FileID)
	}
	if m.Edited != 0 {
		s += " (edited)"
	}
	return s
}

// row picks the current version of the event's row: New for inserts and
// updates, Old for deletes.
func row[R any](ev *replication.Event) R {
	if ev.New != nil {
		return ev.New.(R)
	}
	return ev.Old.(R)
}
