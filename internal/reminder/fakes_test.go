package reminder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/storage"
	"remindbot/pkg/logx"
)

// fakeClock fires timers only when the test advances it.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	c       *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock(now time.Time) *fakeClock { return &fakeClock{now: now} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance moves time forward and runs every timer that came due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

func (c *fakeClock) created() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

type fakeDispatcher struct {
	mu   sync.Mutex
	sent []storage.Event
	err  error
}

func (d *fakeDispatcher) Deliver(_ context.Context, ev storage.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, ev)
	return d.err
}

func (d *fakeDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

// memStore is an EventStore kept in a map.
type memStore struct {
	mu      sync.Mutex
	next    int64
	events  map[int64]storage.Event
	audit   []storage.AuditEntry
	failAll error
}

func newMemStore() *memStore { return &memStore{events: map[int64]storage.Event{}} }

func (s *memStore) Insert(_ context.Context, ev storage.Event) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	ev.ID = s.next
	s.events[ev.ID] = ev
	return ev.ID, nil
}

func (s *memStore) Get(_ context.Context, id int64) (storage.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return storage.Event{}, fmt.Errorf("event %d: %w", id, storage.ErrNotFound)
	}
	return ev, nil
}

func (s *memStore) GetAll(context.Context) ([]storage.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return nil, s.failAll
	}
	out := make([]storage.Event, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) GetAllForOwner(ctx context.Context, owner int64) ([]storage.Event, error) {
	all, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []storage.Event
	for _, ev := range all {
		if ev.OwnerID == owner {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].When.Before(out[j].When) })
	return out, nil
}

func (s *memStore) Update(_ context.Context, id int64, u storage.EventUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return storage.ErrNotFound
	}
	if u.When == nil {
		return errors.New("no fields")
	}
	ev.When = *u.When
	s.events[id] = ev
	return nil
}

func (s *memStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.events, id)
	return nil
}

func (s *memStore) AppendAudit(_ context.Context, e storage.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
	return nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) put(ev storage.Event) int64 {
	id, _ := s.Insert(context.Background(), ev)
	return id
}

func (s *memStore) get(id int64) (storage.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	return ev, ok
}

func (s *memStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func defaultEngineConfig() EngineConfig {
	return EngineConfig{
		Location:      time.UTC,
		Horizon:       12 * time.Hour,
		SweepInterval: 12 * time.Hour,
		CatchUpGrace:  time.Minute,
		FireTimeout:   5 * time.Second,
	}
}

type harness struct {
	engine *Engine
	svc    *Service
	store  storage.EventStore
	clock  *fakeClock
	disp   *fakeDispatcher
	bus    eventbus.Bus
}

func newHarness(t *testing.T, store storage.EventStore, cfg EngineConfig) *harness {
	t.Helper()
	disp := &fakeDispatcher{}
	bus := eventbus.New()
	e, err := NewEngine(cfg, store, disp, logx.Nop(), bus)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	fc := newFakeClock(t0)
	e.clock = fc
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Stop(ctx)
	})
	return &harness{engine: e, svc: NewService(store, e, logx.Nop()), store: store, clock: fc, disp: disp, bus: bus}
}

// advance moves the clock and waits for the fires it triggered.
func (h *harness) advance(d time.Duration) {
	h.clock.Advance(d)
	h.engine.inflight.Wait()
}
