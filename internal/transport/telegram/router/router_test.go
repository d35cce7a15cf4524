package router

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type sent struct {
	to   kit.ChatTarget
	text string
}

type fakeAdapter struct {
	mu   sync.Mutex
	out  []sent
	menu []kit.BotCommand
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }
func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, sent{to: to, text: text})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.out)}, nil
}

func (f *fakeAdapter) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.out))
	for _, s := range f.out {
		out = append(out, s.text)
	}
	return out
}

func TestTokenizeCommandLine(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"/remind list", []string{"/remind", "list"}},
		{`/remind add "2026-03-01 09:00" dentist`, []string{"/remind", "add", "2026-03-01 09:00", "dentist"}},
		{`/x 'a b' c\ d`, []string{"/x", "a b", "c d"}},
		{`/x ""`, []string{"/x", ""}},
		{"/remind add “2026-03-01 09:00” gym", []string{"/remind", "add", "2026-03-01 09:00", "gym"}},
		{"/remind   list\n", []string{"/remind", "list"}},
	}
	for _, tc := range cases {
		if got := tokenizeCommandLine(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("tokenize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseFlags(t *testing.T) {
	pos, flags, bools := parseFlags([]string{"09:00", "standup", "--every", "daily", "--dry", "-n=3", "-5m"})
	if !reflect.DeepEqual(pos, []string{"09:00", "standup", "-5m"}) {
		t.Fatalf("pos = %q", pos)
	}
	if flags["every"] != "daily" || flags["n"] != "3" {
		t.Fatalf("flags = %v", flags)
	}
	if !bools["dry"] {
		t.Fatalf("bools = %v", bools)
	}

	_, flags, bools = parseFlags([]string{"-ab", "--every=weekly"})
	if !bools["a"] || !bools["b"] || flags["every"] != "weekly" {
		t.Fatalf("flags = %v bools = %v", flags, bools)
	}

	pos, _, _ = parseFlags([]string{"--", "--every"})
	if !reflect.DeepEqual(pos, []string{"--every"}) {
		t.Fatalf("pos after -- = %q", pos)
	}
}

func TestSanitizeTelegramCommand(t *testing.T) {
	cases := map[string]string{
		"remind list":   "remind_list",
		"Remind-Status": "remind_status",
		"__a__":         "a",
		"9lives":        "cmd_9lives",
		"!!!":           "",
	}
	for in, want := range cases {
		if got := sanitizeTelegramCommand(in); got != want {
			t.Errorf("sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}

func startManager(t *testing.T, m *CommandManager) chan<- kit.Update {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.DispatchLoop(ctx, updates)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return updates
}

func msg(from int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: from, FromID: from, Text: text}}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met")
}

func TestRouteSubcommandWithFlags(t *testing.T) {
	fa := &fakeAdapter{}
	m := NewCommandManager(logx.Nop(), fa, []int64{1}, 2)

	got := make(chan *Request, 1)
	m.SetRegistry([]Command{{
		Route:  "remind add",
		Access: AccessEveryone,
		Handle: func(ctx context.Context, req *Request) error {
			got <- req
			return nil
		},
	}})
	updates := startManager(t, m)
	updates <- msg(7, `/remind@remindbot add "2026-03-01 09:00" dentist --every yearly`)

	select {
	case req := <-got:
		if !reflect.DeepEqual(req.Path, []string{"remind", "add"}) {
			t.Fatalf("path = %q", req.Path)
		}
		if !reflect.DeepEqual(req.Args, []string{"2026-03-01 09:00", "dentist"}) {
			t.Fatalf("args = %q", req.Args)
		}
		if req.Flags["every"] != "yearly" || req.FromID != 7 || req.IsOwner {
			t.Fatalf("req = %+v", req)
		}
		if req.ReqID == "" {
			t.Fatal("missing request id")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}
}

func TestRouteAliasAndOwnerOnly(t *testing.T) {
	fa := &fakeAdapter{}
	m := NewCommandManager(logx.Nop(), fa, []int64{1}, 1)

	var mu sync.Mutex
	calls := 0
	m.SetRegistry([]Command{{
		Route:  "remind status",
		Access: AccessOwnerOnly,
		Handle: func(ctx context.Context, req *Request) error {
			mu.Lock()
			calls++
			mu.Unlock()
			return req.Reply(ctx, "ok")
		},
	}})
	updates := startManager(t, m)

	updates <- msg(2, "/remind_status")
	waitFor(t, func() bool { return len(fa.texts()) == 1 })
	if fa.texts()[0] != "unauthorized" {
		t.Fatalf("reply = %q", fa.texts()[0])
	}

	updates <- msg(1, "/remind_status")
	waitFor(t, func() bool { return len(fa.texts()) == 2 })
	mu.Lock()
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	mu.Unlock()

	// A reload hands ownership to 2.
	m.SetOwners([]int64{2})
	updates <- msg(2, "/remind_status")
	waitFor(t, func() bool { return len(fa.texts()) == 3 })
	updates <- msg(1, "/remind_status")
	waitFor(t, func() bool { return len(fa.texts()) == 4 })
	if got := fa.texts()[3]; got != "unauthorized" {
		t.Fatalf("old owner reply = %q", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestRouteUnknownAndGroupHelp(t *testing.T) {
	fa := &fakeAdapter{}
	m := NewCommandManager(logx.Nop(), fa, nil, 1)
	noop := func(context.Context, *Request) error { return nil }
	m.SetRegistry([]Command{
		{Route: "remind add", Description: "add a reminder", Handle: noop},
		{Route: "remind list", Description: "list reminders", Handle: noop},
	})
	updates := startManager(t, m)

	updates <- msg(3, "/nope")
	waitFor(t, func() bool { return len(fa.texts()) == 1 })
	if !strings.Contains(fa.texts()[0], "unknown command") {
		t.Fatalf("reply = %q", fa.texts()[0])
	}

	updates <- msg(3, "/remind")
	waitFor(t, func() bool { return len(fa.texts()) == 2 })
	help := fa.texts()[1]
	if !strings.Contains(help, "/remind add") || !strings.Contains(help, "/remind list") {
		t.Fatalf("group help = %q", help)
	}
}

func TestHelpTopListsCommands(t *testing.T) {
	m := NewCommandManager(logx.Nop(), &fakeAdapter{}, nil, 1)
	noop := func(context.Context, *Request) error { return nil }
	m.SetRegistry([]Command{
		{Route: "remind add", Description: "add a reminder", Handle: noop},
		{Route: "remind status", Access: AccessOwnerOnly, Handle: noop},
	})
	top := m.helpText(nil)
	for _, want := range []string{"/help", "/remind"} {
		if !strings.Contains(top, want) {
			t.Fatalf("help missing %q:\n%s", want, top)
		}
	}
}

func TestMenuCommands(t *testing.T) {
	noop := func(context.Context, *Request) error { return nil }
	tree := buildTree([]Command{
		{Route: "remind add", Description: "add a reminder", Handle: noop},
		{Route: "help", Description: "show help", Handle: noop},
		{Route: "remind cancel", Handle: noop},
	})
	menu := menuCommands(tree)
	names := make([]string, 0, len(menu))
	for _, c := range menu {
		names = append(names, c.Command)
	}
	want := []string{"help", "remind", "remind_add", "remind_cancel"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("menu = %q, want %q", names, want)
	}
	if menu[1].Description != "add, cancel" || menu[3].Description != "remind_cancel" {
		t.Fatalf("descriptions = %+v", menu)
	}
}

func TestTreeResolve(t *testing.T) {
	noop := func(context.Context, *Request) error { return nil }
	tree := buildTree([]Command{
		{Route: "remind add", Aliases: []string{"ra", "remind-new"}, Handle: noop},
		{Route: "remind list", Handle: noop},
		{Route: "orphan"},
	})
	cases := []struct {
		word  string
		args  []string
		route string
		rest  []string
	}{
		{"remind", []string{"add", "+1h", "x"}, "remind add", []string{"+1h", "x"}},
		{"remind", []string{"list", "--all"}, "remind list", []string{"--all"}},
		{"remind_add", []string{"x"}, "remind add", []string{"x"}},
		{"ra", nil, "remind add", nil},
		{"remind_new", nil, "remind add", nil},
		{"remind", []string{"--every", "add"}, "", []string{"--every", "add"}},
	}
	for _, tc := range cases {
		node, path, rest := tree.resolve(tc.word, tc.args)
		if node == nil {
			t.Fatalf("resolve(%q %q) = nil", tc.word, tc.args)
		}
		route := ""
		if node.cmd != nil {
			route = node.cmd.Route
		}
		if route != tc.route || !reflect.DeepEqual(rest, tc.rest) {
			t.Errorf("resolve(%q %q) = %q %q rest %q", tc.word, tc.args, route, path, rest)
		}
	}
	if node, _, _ := tree.resolve("orphan", nil); node != nil {
		t.Fatal("route without handler was registered")
	}
}

func TestHelpForCommandShowsShortcutsAndOwnerMark(t *testing.T) {
	m := NewCommandManager(logx.Nop(), &fakeAdapter{}, nil, 1)
	noop := func(context.Context, *Request) error { return nil }
	m.SetRegistry([]Command{
		{Route: "remind add", Description: "add a reminder", Usage: "/remind add <when> <name>", Aliases: []string{"ra"}, Handle: noop},
		{Route: "remind status", Access: AccessOwnerOnly, Description: "scheduler status", Handle: noop},
	})

	node := m.helpText([]string{"remind_add"})
	for _, want := range []string{"<code>/remind add</code>", "add a reminder", "&lt;when&gt;", "also: /remind_add, /ra"} {
		if !strings.Contains(node, want) {
			t.Errorf("help missing %q:\n%s", want, node)
		}
	}
	group := m.helpText([]string{"remind"})
	if !strings.Contains(group, "<code>/remind status</code> - scheduler status"+ownerMark) {
		t.Fatalf("group help:\n%s", group)
	}
	if strings.Contains(group, "<code>/remind add</code> - add a reminder"+ownerMark) {
		t.Fatalf("open command marked owner-only:\n%s", group)
	}
	if !strings.Contains(m.helpText([]string{"nope"}), "Unknown command") {
		t.Fatal("unknown path not reported")
	}
}

func TestPanickingHandlerRepliesAndKeepsServing(t *testing.T) {
	fa := &fakeAdapter{}
	m := NewCommandManager(logx.Nop(), fa, nil, 1)
	m.SetRegistry([]Command{
		{Route: "boom", Handle: func(context.Context, *Request) error { panic("kaboom") }},
		{Route: "ping", Handle: func(ctx context.Context, req *Request) error { return req.Reply(ctx, "pong") }},
	})
	updates := startManager(t, m)

	updates <- msg(3, "/boom")
	waitFor(t, func() bool { return len(fa.texts()) == 1 })
	if !strings.Contains(fa.texts()[0], "internal error") {
		t.Fatalf("reply = %q", fa.texts()[0])
	}
	updates <- msg(3, "/ping")
	waitFor(t, func() bool { return len(fa.texts()) == 2 })
	if fa.texts()[1] != "pong" {
		t.Fatalf("reply = %q", fa.texts()[1])
	}
}
