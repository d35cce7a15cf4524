package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	tele "gopkg.in/telebot.v4"

	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

func TestSplitTelegramTextShortIsSingleChunk(t *testing.T) {
	got := splitTelegramText("hello", 10, "")
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitTelegramTextPrefersNewlines(t *testing.T) {
	s := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	got := splitTelegramText(s, 10, "")
	if len(got) != 2 {
		t.Fatalf("chunks = %d (%q)", len(got), got)
	}
	if got[0] != "aaaaaa" || got[1] != "bbbbbb" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitTelegramTextAvoidsOpenTag(t *testing.T) {
	s := "abcdef<b>xyz</b>"
	got := splitTelegramText(s, 8, "HTML")
	if got[0] != "abcdef" {
		t.Fatalf("first chunk = %q", got[0])
	}
	if strings.Join(got, "") != s {
		t.Fatalf("chunks lost text: %q", got)
	}
}

type fakeSender struct {
	sent []string
	next int
}

func (f *fakeSender) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.sent = append(f.sent, what.(string))
	f.next++
	return &tele.Message{ID: f.next}, nil
}

func TestSendTextReturnsFirstChunkRef(t *testing.T) {
	fs := &fakeSender{}
	a := &Adapter{log: logx.Nop(), send: fs}
	text := strings.Repeat("x", telegramTextLimit+10)
	ref, err := a.SendText(context.Background(), kit.ChatTarget{ChatID: 42}, text, nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(fs.sent) != 2 {
		t.Fatalf("sent %d chunks, want 2", len(fs.sent))
	}
	if ref.ChatID != 42 || ref.MessageID != 1 {
		t.Fatalf("ref = %+v", ref)
	}
}

func TestUpdateFromMessage(t *testing.T) {
	m := &tele.Message{
		ID:     7,
		Text:   "/remind list",
		Chat:   &tele.Chat{ID: 99, Type: tele.ChatPrivate},
		Sender: &tele.User{ID: 99, Username: "ann"},
	}
	up := updateFromMessage(m)
	if up.Kind != kit.UpdateMessage || up.Message == nil {
		t.Fatalf("update = %+v", up)
	}
	if up.Message.FromID != 99 || up.Message.ChatID != 99 || up.Message.IsGroup {
		t.Fatalf("message = %+v", up.Message)
	}
}

func TestUpdateMenuCommandsSkipsUnchanged(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if !strings.HasSuffix(r.URL.Path, "/setMyCommands") {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body struct {
			Commands []map[string]string `json:"commands"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(body.Commands) != 1 {
			t.Errorf("commands = %v", body.Commands)
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	a := &Adapter{cfg: Config{Token: "t"}, log: logx.Nop(), http: srv.Client(), apiBase: srv.URL}
	cmds := []kit.BotCommand{{Command: "remind", Description: "manage reminders"}}
	for i := 0; i < 2; i++ {
		if err := a.UpdateMenuCommands(context.Background(), cmds); err != nil {
			t.Fatalf("update: %v", err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}
