package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	"remindbot/internal/storage"
)

func TestRegisterValidation(t *testing.T) {
	h := newHarness(t, newMemStore(), defaultEngineConfig())
	ctx := context.Background()

	if _, err := h.svc.Register(ctx, 1, "past", t0.Add(-time.Second), storage.RecurNone); !errors.Is(err, ErrInvalidWhen) {
		t.Fatalf("past: err = %v", err)
	}
	if _, err := h.svc.Register(ctx, 1, "now", t0, storage.RecurNone); !errors.Is(err, ErrInvalidWhen) {
		t.Fatalf("now: err = %v", err)
	}
	if _, err := h.svc.Register(ctx, 1, "  ", t0.Add(time.Hour), storage.RecurNone); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("empty name: err = %v", err)
	}
	if _, err := h.svc.Register(ctx, 1, "bad", t0.Add(time.Hour), storage.Recurrence(9)); !errors.Is(err, ErrInvalidRecurrence) {
		t.Fatalf("bad recurrence: err = %v", err)
	}
}

func TestRegisterNormalizesWhen(t *testing.T) {
	cfg := defaultEngineConfig()
	loc := time.FixedZone("UTC+8", 8*3600)
	cfg.Location = loc
	h := newHarness(t, newMemStore(), cfg)

	ev, err := h.svc.Register(context.Background(), 1, "x", t0.Add(90*time.Minute+500*time.Millisecond), storage.RecurNone)
	if err != nil {
		t.Fatal(err)
	}
	if ev.When.Location() != loc || ev.When.Nanosecond() != 0 {
		t.Fatalf("when = %v", ev.When)
	}
}

func TestRegisterBeyondHorizonNotArmed(t *testing.T) {
	h := newHarness(t, newMemStore(), defaultEngineConfig())
	ev, err := h.svc.Register(context.Background(), 1, "later", t0.Add(48*time.Hour), storage.RecurNone)
	if err != nil {
		t.Fatal(err)
	}
	if h.engine.Armed(ev.ID) {
		t.Fatal("event beyond horizon armed")
	}
}

func TestCancelOwnership(t *testing.T) {
	st := newMemStore()
	h := newHarness(t, st, defaultEngineConfig())
	ctx := context.Background()

	ev, _ := h.svc.Register(ctx, 1, "mine", t0.Add(time.Hour), storage.RecurNone)
	if _, err := h.svc.Cancel(ctx, 2, ev.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("foreign cancel err = %v", err)
	}
	if !h.engine.Armed(ev.ID) {
		t.Fatal("foreign cancel disarmed the event")
	}
	if _, err := h.svc.Cancel(ctx, 1, 999); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing cancel err = %v", err)
	}
	got, err := h.svc.Cancel(ctx, 1, ev.ID)
	if err != nil || got.Name != "mine" {
		t.Fatalf("cancel = %+v, %v", got, err)
	}

	var actions []string
	for _, a := range st.audit {
		actions = append(actions, a.Action)
	}
	if len(actions) != 4 || actions[0] != "register" || !st.audit[3].OK || st.audit[1].OK {
		t.Fatalf("audit = %+v", st.audit)
	}
}

func TestListSoonestFirst(t *testing.T) {
	h := newHarness(t, newMemStore(), defaultEngineConfig())
	ctx := context.Background()
	for _, d := range []time.Duration{5 * time.Hour, time.Hour, 30 * time.Hour} {
		if _, err := h.svc.Register(ctx, 7, "x", t0.Add(d), storage.RecurNone); err != nil {
			t.Fatal(err)
		}
	}
	evs, err := h.svc.List(ctx, 7)
	if err != nil || len(evs) != 3 {
		t.Fatalf("list = %v, %v", evs, err)
	}
	if !evs[0].When.Before(evs[1].When) || !evs[1].When.Before(evs[2].When) {
		t.Fatalf("not ascending: %v", evs)
	}
}
