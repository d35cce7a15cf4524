package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"remindbot/internal/notifier"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	"remindbot/internal/transport/telegram/router"
	logx "remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

// Reminders is the reminder service as seen by the chat commands.
type Reminders interface {
	Location() *time.Location
	Now() time.Time
	Register(ctx context.Context, owner int64, name string, when time.Time, r storage.Recurrence) (storage.Event, error)
	List(ctx context.Context, owner int64) ([]storage.Event, error)
	Cancel(ctx context.Context, owner, id int64) (storage.Event, error)
	Snapshot() reminder.Snapshot
}

// History exposes recent deliveries for /remind status.
type History interface {
	History() []notifier.HistoryItem
}

const (
	defaultListLimit = 10
	maxNameRunes     = 80
)

type Handlers struct {
	rem     Reminders
	history History
	log     logx.Logger

	listLimit atomic.Int64
}

func New(rem Reminders, history History, log logx.Logger) *Handlers {
	if log.IsZero() {
		log = logx.Nop()
	}
	h := &Handlers{rem: rem, history: history, log: log}
	h.listLimit.Store(defaultListLimit)
	return h
}

// SetListLimit changes how many reminders /remind list shows. It is applied
// on config reload.
func (h *Handlers) SetListLimit(n int) {
	if n <= 0 {
		n = defaultListLimit
	}
	h.listLimit.Store(int64(n))
}

func (h *Handlers) Commands() []router.Command {
	return []router.Command{
		{
			Route:       "remind add",
			Description: "add a reminder",
			Usage:       `/remind add <when> <name...> [--every daily|weekly|monthly|yearly]` + "\n" + `when: "2026-03-01 09:00" | 2026-03-01T09:00 | 09:00 | +90m | +2d`,
			Aliases:     []string{"remind_add"},
			Access:      router.AccessEveryone,
			Handle:      h.cmdAdd,
		},
		{
			Route:       "remind list",
			Description: "list your reminders",
			Usage:       "/remind list",
			Aliases:     []string{"reminders"},
			Access:      router.AccessEveryone,
			Handle:      h.cmdList,
		},
		{
			Route:       "remind cancel",
			Description: "cancel a reminder",
			Usage:       "/remind cancel <id>",
			Aliases:     []string{"remind_rm"},
			Access:      router.AccessEveryone,
			Handle:      h.cmdCancel,
		},
		{
			Route:       "remind status",
			Description: "scheduler status",
			Usage:       "/remind status",
			Access:      router.AccessOwnerOnly,
			Handle:      h.cmdStatus,
		},
	}
}

func (h *Handlers) cmdAdd(ctx context.Context, req *router.Request) error {
	loc := h.rem.Location()
	when, used, err := ParseWhen(req.Args, h.rem.Now(), loc)
	if err != nil {
		return req.Reply(ctx, err.Error()+"\nusage: /remind add <when> <name...> [--every daily]")
	}
	name := strings.TrimSpace(strings.Join(req.Args[used:], " "))

	every := req.Flags["every"]
	if every == "" {
		every = req.Flags["e"]
	}
	rec, err := reminder.ParseRecurrence(every)
	if err != nil {
		return req.Reply(ctx, fmt.Sprintf("unknown interval %q (daily, weekly, monthly, yearly)", every))
	}

	ev, err := h.rem.Register(ctx, req.FromID, name, when, rec)
	switch {
	case errors.Is(err, reminder.ErrEmptyName):
		return req.Reply(ctx, "give the reminder a name")
	case errors.Is(err, reminder.ErrInvalidWhen):
		return req.Reply(ctx, "that time is not in the future: "+formatWhen(when, loc))
	case err != nil:
		_ = req.Reply(ctx, "could not save the reminder, try again later")
		return err
	}

	text := fmt.Sprintf("✅ Reminder #%d set for %s", ev.ID, formatWhen(ev.When, loc))
	if ev.Recurrence.Recurring() {
		text += ", repeats " + ev.Recurrence.String()
	}
	return req.Reply(ctx, text)
}

func (h *Handlers) cmdList(ctx context.Context, req *router.Request) error {
	events, err := h.rem.List(ctx, req.FromID)
	if err != nil {
		_ = req.Reply(ctx, "could not load reminders, try again later")
		return err
	}
	if len(events) == 0 {
		return req.Reply(ctx, "no reminders. add one with /remind add")
	}
	limit := int(h.listLimit.Load())
	return req.ReplyHTML(ctx, formatList(events, limit, h.rem.Location()))
}

// names are user input, so everything is escaped for ParseMode=HTML.
func formatList(events []storage.Event, limit int, loc *time.Location) string {
	shown := events
	if len(shown) > limit {
		shown = shown[:limit]
	}
	lines := make([]tgui.H, 0, len(shown)+2)
	lines = append(lines, tgui.B("🗓 Your reminders"))
	for _, ev := range shown {
		line := tgui.Concat(
			tgui.Code(fmt.Sprintf("#%d", ev.ID)), "  ",
			tgui.Esc(formatWhen(ev.When, loc)), "  ",
			tgui.Esc(tgui.TruncRunes(ev.Name, maxNameRunes)),
		)
		if ev.Recurrence.Recurring() {
			line = tgui.Concat(line, tgui.Esc(" ("+ev.Recurrence.String()+")"))
		}
		lines = append(lines, line)
	}
	if len(events) > len(shown) {
		lines = append(lines, tgui.I(fmt.Sprintf("showing %d of %d", len(shown), len(events))))
	}
	return tgui.Lines(lines...).String()
}

func (h *Handlers) cmdCancel(ctx context.Context, req *router.Request) error {
	if len(req.Args) != 1 {
		return req.Reply(ctx, "usage: /remind cancel <id>")
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(req.Args[0], "#"), 10, 64)
	if err != nil || id <= 0 {
		return req.Reply(ctx, fmt.Sprintf("%q is not a reminder id", req.Args[0]))
	}
	ev, err := h.rem.Cancel(ctx, req.FromID, id)
	if errors.Is(err, storage.ErrNotFound) {
		return req.Reply(ctx, fmt.Sprintf("no reminder #%d", id))
	}
	if err != nil {
		_ = req.Reply(ctx, "could not cancel the reminder, try again later")
		return err
	}
	return req.ReplyHTML(ctx, tgui.Concat(tgui.Esc(fmt.Sprintf("🗑 Cancelled #%d ", ev.ID)), tgui.Esc(ev.Name)).String())
}

func (h *Handlers) cmdStatus(ctx context.Context, req *router.Request) error {
	return req.Reply(ctx, formatStatus(h.rem.Snapshot(), h.recentHistory(5), h.rem.Location()))
}

func (h *Handlers) recentHistory(n int) []notifier.HistoryItem {
	if h.history == nil {
		return nil
	}
	items := h.history.History()
	if len(items) > n {
		items = items[len(items)-n:]
	}
	return items
}

func formatStatus(snap reminder.Snapshot, recent []notifier.HistoryItem, loc *time.Location) string {
	lines := []string{
		"⚙️ Scheduler",
		fmt.Sprintf("now: %s", formatWhen(snap.Now, loc)),
		fmt.Sprintf("armed: %d", len(snap.Armed)),
	}
	if ls := snap.LastSweep; !ls.At.IsZero() {
		lines = append(lines,
			fmt.Sprintf("last sweep: %s (%s)", formatWhen(ls.At, loc), ls.Took.Round(time.Millisecond)),
			fmt.Sprintf("  loaded %d, armed %d, reaped %d, advanced %d, failed %d", ls.Loaded, ls.Armed, ls.Reaped, ls.Advanced, ls.Failed),
		)
	} else {
		lines = append(lines, "last sweep: never")
	}
	lines = append(lines, fmt.Sprintf("goroutines: %d active, %d panics", snap.Goroutine.Active, snap.Goroutine.Panics))

	if len(recent) > 0 {
		lines = append(lines, "", "recent deliveries:")
		for _, it := range recent {
			mark := "✅"
			if !it.OK {
				mark = "❌"
			}
			lines = append(lines, fmt.Sprintf("%s #%d %s %s", mark, it.EventID, formatWhen(it.At, loc), it.Name))
		}
	}
	return strings.Join(lines, "\n")
}

func formatWhen(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format("Mon 2006-01-02 15:04 MST")
}
