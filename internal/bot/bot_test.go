package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"remindbot/internal/notifier"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	"remindbot/internal/transport/telegram/router"
	logx "remindbot/pkg/logx"
)

var t0 = time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

func TestParseWhen(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want time.Time
		used int
	}{
		{"quoted datetime", []string{"2026-03-01 09:00", "dentist"}, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), 1},
		{"T datetime", []string{"2026-03-01T09:00"}, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), 1},
		{"split datetime", []string{"2026-03-01", "09:00", "x"}, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), 2},
		{"clock later today", []string{"11:30"}, time.Date(2026, 1, 15, 11, 30, 0, 0, time.UTC), 1},
		{"clock rolls to tomorrow", []string{"09:00"}, time.Date(2026, 1, 16, 9, 0, 0, 0, time.UTC), 1},
		{"clock now rolls", []string{"10:00"}, time.Date(2026, 1, 16, 10, 0, 0, 0, time.UTC), 1},
		{"relative minutes", []string{"+90m"}, t0.Add(90 * time.Minute), 1},
		{"relative days", []string{"+2d"}, t0.Add(48 * time.Hour), 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, used, err := ParseWhen(tc.args, t0, time.UTC)
			if err != nil {
				t.Fatalf("err: %v", err)
			}
			if !got.Equal(tc.want) || used != tc.used {
				t.Fatalf("got %v/%d, want %v/%d", got, used, tc.want, tc.used)
			}
		})
	}
}

func TestParseWhenRejects(t *testing.T) {
	for _, args := range [][]string{nil, {"tomorrow"}, {"+0m"}, {"+-5m"}, {"2026-03-01"}, {"2026-03-01", "noon"}, {"25:00"}, {"+36501d"}, {"+9999999999d"}} {
		if _, _, err := ParseWhen(args, t0, time.UTC); !errors.Is(err, ErrBadWhen) {
			t.Errorf("ParseWhen(%q) err = %v, want ErrBadWhen", args, err)
		}
	}
}

func TestParseWhenUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	got, _, err := ParseWhen([]string{"2026-03-01 09:00"}, t0, loc)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC)) {
		t.Fatalf("got %v", got)
	}
}

type fakeReminders struct {
	now    time.Time
	events []storage.Event
	nextID int64
	regErr error
	snap   reminder.Snapshot
}

func (f *fakeReminders) Location() *time.Location { return time.UTC }
func (f *fakeReminders) Now() time.Time           { return f.now }
func (f *fakeReminders) Register(_ context.Context, owner int64, name string, when time.Time, r storage.Recurrence) (storage.Event, error) {
	if f.regErr != nil {
		return storage.Event{}, f.regErr
	}
	if strings.TrimSpace(name) == "" {
		return storage.Event{}, reminder.ErrEmptyName
	}
	if !when.After(f.now) {
		return storage.Event{}, reminder.ErrInvalidWhen
	}
	f.nextID++
	ev := storage.Event{ID: f.nextID, OwnerID: owner, Name: name, When: when, Recurrence: r}
	f.events = append(f.events, ev)
	return ev, nil
}
func (f *fakeReminders) List(_ context.Context, owner int64) ([]storage.Event, error) {
	var out []storage.Event
	for _, ev := range f.events {
		if ev.OwnerID == owner {
			out = append(out, ev)
		}
	}
	return out, nil
}
func (f *fakeReminders) Cancel(_ context.Context, owner, id int64) (storage.Event, error) {
	for i, ev := range f.events {
		if ev.ID == id && ev.OwnerID == owner {
			f.events = append(f.events[:i], f.events[i+1:]...)
			return ev, nil
		}
	}
	return storage.Event{}, storage.ErrNotFound
}
func (f *fakeReminders) Snapshot() reminder.Snapshot { return f.snap }

type fakeHistory []notifier.HistoryItem

func (f fakeHistory) History() []notifier.HistoryItem { return f }

type replyAdapter struct{ last string }

func (a *replyAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (a *replyAdapter) Stop(context.Context) error                     { return nil }
func (a *replyAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	a.last = text
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func newReq(from int64, args []string, flags map[string]string) (*router.Request, *replyAdapter) {
	ad := &replyAdapter{}
	if flags == nil {
		flags = map[string]string{}
	}
	return &router.Request{
		Chat:    kit.ChatTarget{ChatID: from},
		FromID:  from,
		Args:    args,
		Flags:   flags,
		Adapter: ad,
		Logger:  logx.Nop(),
	}, ad
}

func TestAddListCancel(t *testing.T) {
	rem := &fakeReminders{now: t0}
	h := New(rem, nil, logx.Nop())
	ctx := context.Background()

	req, ad := newReq(7, []string{"2026-03-01 09:00", "team", "standup"}, map[string]string{"every": "daily"})
	if err := h.cmdAdd(ctx, req); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ad.last, "#1") || !strings.Contains(ad.last, "repeats daily") {
		t.Fatalf("add reply = %q", ad.last)
	}
	if rem.events[0].Name != "team standup" || rem.events[0].Recurrence != storage.RecurDaily {
		t.Fatalf("stored = %+v", rem.events[0])
	}

	req, ad = newReq(7, nil, nil)
	if err := h.cmdList(ctx, req); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ad.last, "team standup (daily)") {
		t.Fatalf("list reply = %q", ad.last)
	}

	req, ad = newReq(8, []string{"1"}, nil)
	if err := h.cmdCancel(ctx, req); err != nil {
		t.Fatal(err)
	}
	if ad.last != "no reminder #1" {
		t.Fatalf("foreign cancel reply = %q", ad.last)
	}

	req, ad = newReq(7, []string{"#1"}, nil)
	if err := h.cmdCancel(ctx, req); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ad.last, "Cancelled #1") || len(rem.events) != 0 {
		t.Fatalf("cancel reply = %q, events = %d", ad.last, len(rem.events))
	}
}

func TestAddRejections(t *testing.T) {
	rem := &fakeReminders{now: t0}
	h := New(rem, nil, logx.Nop())
	ctx := context.Background()

	cases := []struct {
		args  []string
		flags map[string]string
		want  string
	}{
		{[]string{"2025-01-01 09:00", "late"}, nil, "not in the future"},
		{[]string{"+1h"}, nil, "give the reminder a name"},
		{[]string{"+1h", "x"}, map[string]string{"every": "hourly"}, "unknown interval"},
		{[]string{"someday", "x"}, nil, "unrecognized time"},
	}
	for _, tc := range cases {
		req, ad := newReq(7, tc.args, tc.flags)
		if err := h.cmdAdd(ctx, req); err != nil {
			t.Fatalf("%q: %v", tc.args, err)
		}
		if !strings.Contains(ad.last, tc.want) {
			t.Errorf("%q reply = %q, want %q", tc.args, ad.last, tc.want)
		}
	}
	if len(rem.events) != 0 {
		t.Fatalf("events stored: %d", len(rem.events))
	}
}

func TestAddStorageFailureIsReturned(t *testing.T) {
	rem := &fakeReminders{now: t0, regErr: fmt.Errorf("insert: %w", storage.ErrStorage)}
	h := New(rem, nil, logx.Nop())
	req, ad := newReq(7, []string{"+1h", "x"}, nil)
	if err := h.cmdAdd(context.Background(), req); !errors.Is(err, storage.ErrStorage) {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(ad.last, "try again later") {
		t.Fatalf("reply = %q", ad.last)
	}
}

func TestListHonoursLimit(t *testing.T) {
	rem := &fakeReminders{now: t0}
	for i := 1; i <= 4; i++ {
		rem.events = append(rem.events, storage.Event{ID: int64(i), OwnerID: 7, Name: fmt.Sprintf("r%d", i), When: t0.Add(time.Duration(i) * time.Hour)})
	}
	h := New(rem, nil, logx.Nop())
	h.SetListLimit(2)
	req, ad := newReq(7, nil, nil)
	if err := h.cmdList(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ad.last, "showing 2 of 4") || strings.Contains(ad.last, "r3") {
		t.Fatalf("list = %q", ad.last)
	}
}

func TestStatus(t *testing.T) {
	rem := &fakeReminders{now: t0, snap: reminder.Snapshot{
		Now:       t0,
		Armed:     []reminder.ArmedInfo{{ID: 1, At: t0.Add(time.Hour)}},
		LastSweep: reminder.SweepReport{At: t0, Loaded: 3, Armed: 1, Reaped: 1},
	}}
	hist := fakeHistory{{At: t0, EventID: 9, Name: "standup", OK: true}, {At: t0, EventID: 10, Name: "gym", OK: false}}
	h := New(rem, hist, logx.Nop())
	req, ad := newReq(1, nil, nil)
	if err := h.cmdStatus(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"armed: 1", "loaded 3", "reaped 1", "✅ #9", "❌ #10"} {
		if !strings.Contains(ad.last, want) {
			t.Errorf("status missing %q:\n%s", want, ad.last)
		}
	}
}

func TestCommandsRegisterUnderRemind(t *testing.T) {
	h := New(&fakeReminders{now: t0}, nil, logx.Nop())
	for _, c := range h.Commands() {
		if !strings.HasPrefix(c.Route, "remind ") || c.Handle == nil {
			t.Fatalf("command %+v", c)
		}
	}
}

func TestListEscapesNames(t *testing.T) {
	events := []storage.Event{{ID: 3, OwnerID: 7, Name: "<b>pay</b> rent & bills", When: t0}}
	got := formatList(events, 10, time.UTC)
	if strings.Contains(got, "<b>pay</b>") || !strings.Contains(got, "&lt;b&gt;pay&lt;/b&gt; rent &amp; bills") {
		t.Fatalf("list = %q", got)
	}
	if !strings.Contains(got, "<code>#3</code>") {
		t.Fatalf("list = %q", got)
	}
}
