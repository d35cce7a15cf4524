package reminder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/eventbus"
	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/storage"
	"remindbot/pkg/logx"
)

// Lifecycle event types published on the bus.
const (
	EvArmed          = "reminder.armed"
	EvFired          = "reminder.fired"
	EvDeliveryFailed = "reminder.delivery_failed"
	EvAdvanced       = "reminder.advanced"
	EvDeleted        = "reminder.deleted"
	EvReaped         = "reminder.reaped"
	EvSweep          = "reminder.sweep"
)

// Dispatcher delivers a fired reminder to its owner.
type Dispatcher interface {
	Deliver(ctx context.Context, ev storage.Event) error
}

type EngineConfig struct {
	// Location is the fixed zone every `when` is interpreted in.
	Location *time.Location
	// Horizon is how far ahead events get a live timer. Must be >= SweepInterval.
	Horizon       time.Duration
	SweepInterval time.Duration
	// CatchUpGrace is how late an event may be found by a sweep and still fire.
	CatchUpGrace time.Duration
	// FireTimeout bounds each phase of a fire (store re-check, delivery, persist).
	FireTimeout time.Duration
}

// Engine arms near-term reminders, fires them and advances recurrences.
// The store is the source of truth; the armed set is rebuilt by sweeps.
type Engine struct {
	cfg   EngineConfig
	store storage.EventStore
	disp  Dispatcher
	log   logx.Logger
	bus   eventbus.Bus
	clock clock
	sup   *supervisor.Supervisor

	mu      sync.Mutex
	armed   map[int64]*armedTimer
	ver     uint64
	stopped bool
	last    SweepReport
	cron    *cron.Cron

	// inflight counts fires between timer callback and completion; Stop
	// waits on it.
	inflight sync.WaitGroup
}

type armedTimer struct {
	ver    uint64
	at     time.Time
	timer  Timer
	firing bool
}

func NewEngine(cfg EngineConfig, store storage.EventStore, disp Dispatcher, log logx.Logger, bus eventbus.Bus) (*Engine, error) {
	if store == nil {
		return nil, errors.New("reminder engine: store is required")
	}
	if disp == nil {
		return nil, errors.New("reminder engine: dispatcher is required")
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 12 * time.Hour
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = cfg.SweepInterval
	}
	if cfg.Horizon < cfg.SweepInterval {
		return nil, fmt.Errorf("reminder engine: horizon %s is shorter than sweep interval %s", cfg.Horizon, cfg.SweepInterval)
	}
	if cfg.CatchUpGrace < 0 {
		cfg.CatchUpGrace = 0
	}
	if cfg.FireTimeout <= 0 {
		cfg.FireTimeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "reminder.engine"))
	if bus == nil {
		bus = eventbus.Nop{}
	}
	return &Engine{
		cfg:   cfg,
		store: store,
		disp:  disp,
		log:   log,
		bus:   bus,
		clock: realClock{},
		sup:   supervisor.New(context.Background(), supervisor.WithLogger(log)),
		armed: map[int64]*armedTimer{},
	}, nil
}

func (e *Engine) Now() time.Time { return e.clock.Now().In(e.cfg.Location) }

func (e *Engine) Location() *time.Location { return e.cfg.Location }

// Start runs the recovery sweep and schedules the periodic one.
// A failing sweep is logged and retried on the next tick.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return errors.New("reminder engine: stopped")
	}
	if e.cron != nil {
		e.mu.Unlock()
		return nil
	}
	cl := cronLogger{log: e.log}
	c := cron.New(
		cron.WithLocation(e.cfg.Location),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	e.cron = c
	e.mu.Unlock()

	if _, err := e.Sweep(ctx); err != nil {
		e.log.Error("recovery sweep failed; will retry on next tick", logx.Err(err))
	}

	sweepCtx := e.sup.Context()
	c.Schedule(cron.Every(e.cfg.SweepInterval), cron.FuncJob(func() {
		if _, err := e.Sweep(sweepCtx); err != nil {
			e.log.Error("sweep failed; will retry on next tick", logx.Err(err))
		}
	}))
	c.Start()
	e.log.Info("reminder engine started",
		logx.String("tz", e.cfg.Location.String()),
		logx.Duration("horizon", e.cfg.Horizon),
		logx.Duration("sweep_interval", e.cfg.SweepInterval),
	)
	return nil
}

// Stop cancels every timer and waits for in-flight fires (bounded by ctx).
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	c := e.cron
	for id, a := range e.armed {
		a.timer.Stop()
		delete(e.armed, id)
	}
	e.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}

	fired := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(fired)
	}()
	select {
	case <-fired:
	case <-ctx.Done():
		e.log.Warn("stop: in-flight fires still running", logx.Err(ctx.Err()))
	}
	return e.sup.Stop(ctx)
}

type armResult int

const (
	armNew armResult = iota
	armExisting
	armBeyondHorizon
	armStopped
)

// Arm gives ev a live timer if it is due within the horizon and not armed yet.
// It reports whether a new timer was created.
func (e *Engine) Arm(ev storage.Event) bool {
	return e.arm(ev, e.Now()) == armNew
}

func (e *Engine) arm(ev storage.Event, now time.Time) armResult {
	if ev.When.Sub(now) > e.cfg.Horizon {
		return armBeyondHorizon
	}

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return armStopped
	}
	if _, ok := e.armed[ev.ID]; ok {
		e.mu.Unlock()
		return armExisting
	}
	e.ver++
	ver := e.ver
	id := ev.ID
	delay := max(ev.When.Sub(now), 0)
	a := &armedTimer{ver: ver, at: ev.When}
	e.armed[id] = a
	// AfterFunc never runs f synchronously, so holding mu here is safe.
	a.timer = e.clock.AfterFunc(delay, func() { e.onTimer(id, ver) })
	e.mu.Unlock()

	e.log.Debug("reminder armed", logx.Int64("event_id", id), logx.Time("at", ev.When), logx.Duration("in", delay))
	e.bus.Publish(eventbus.Event{Type: EvArmed, Data: ev})
	return armNew
}

// Disarm cancels the live timer for id. A fire already in progress is not
// interrupted; its store re-check makes it a no-op once the event is deleted.
func (e *Engine) Disarm(id int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.armed[id]
	if !ok {
		return false
	}
	a.timer.Stop()
	delete(e.armed, id)
	return true
}

func (e *Engine) Armed(id int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.armed[id]
	return ok
}

// release drops id from the armed set unless it was re-armed since ver.
func (e *Engine) release(id int64, ver uint64) {
	e.mu.Lock()
	if a, ok := e.armed[id]; ok && a.ver == ver {
		delete(e.armed, id)
	}
	e.mu.Unlock()
}

func (e *Engine) onTimer(id int64, ver uint64) {
	e.mu.Lock()
	a, ok := e.armed[id]
	if !ok || a.ver != ver || a.firing || e.stopped {
		e.mu.Unlock()
		return
	}
	a.firing = true
	armedAt := a.at
	e.inflight.Add(1)
	e.mu.Unlock()

	started := e.sup.Go0("reminder.fire", func(ctx context.Context) {
		defer e.inflight.Done()
		e.fire(ctx, id, ver, armedAt)
	})
	if !started {
		e.inflight.Done()
		e.release(id, ver)
	}
}

// fire runs one event's lifecycle step. The event stays in the armed set
// until the step is done so a concurrent sweep cannot arm it twice.
// armedAt is the occurrence the timer was armed for; a stored time past it
// means that occurrence was already handled and the timer came from a stale
// read.
func (e *Engine) fire(ctx context.Context, id int64, ver uint64, armedAt time.Time) {
	defer e.release(id, ver)
	log := e.log.With(logx.Int64("event_id", id))

	gctx, cancel := context.WithTimeout(ctx, e.cfg.FireTimeout)
	ev, err := e.store.Get(gctx, id)
	cancel()
	if errors.Is(err, storage.ErrNotFound) {
		log.Debug("reminder gone before fire; skipping")
		return
	}
	if err != nil {
		log.Error("reminder re-check failed; left for next sweep", logx.Err(err))
		return
	}
	if ev.When.After(armedAt) {
		log.Debug("reminder already advanced; re-arming stored occurrence",
			logx.Time("armed_at", armedAt), logx.Time("when", ev.When))
		e.release(id, ver)
		e.arm(ev, e.Now())
		return
	}

	log.Info("reminder firing",
		logx.Int64("owner_id", ev.OwnerID),
		logx.String("recurrence", ev.Recurrence.String()),
		logx.Time("when", ev.When),
	)
	e.bus.Publish(eventbus.Event{Type: EvFired, Data: ev})

	dctx, cancel := context.WithTimeout(ctx, e.cfg.FireTimeout)
	err = e.disp.Deliver(dctx, ev)
	cancel()
	if err != nil {
		log.Warn("reminder delivery failed", logx.Int64("owner_id", ev.OwnerID), logx.Err(err))
		e.bus.Publish(eventbus.Event{Type: EvDeliveryFailed, Data: ev})
	}

	pctx, cancel := context.WithTimeout(ctx, e.cfg.FireTimeout)
	defer cancel()

	if !ev.Recurrence.Recurring() {
		if err := e.store.Delete(pctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.Error("one-shot delete failed", logx.Err(err))
			return
		}
		e.bus.Publish(eventbus.Event{Type: EvDeleted, Data: ev})
		return
	}

	next, err := AdvancePast(ev.When, ev.Recurrence, e.Now())
	if err != nil {
		log.Error("cannot advance reminder; left unarmed", logx.Int("recurrence", int(ev.Recurrence)), logx.Err(err))
		return
	}
	if err := e.store.Update(pctx, id, storage.EventUpdate{When: &next}); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Debug("reminder cancelled during fire")
			return
		}
		log.Error("persist next occurrence failed", logx.Err(err))
		return
	}
	prev := ev.When
	ev.When = next
	log.Debug("reminder advanced", logx.Time("from", prev), logx.Time("to", next))
	e.bus.Publish(eventbus.Event{Type: EvAdvanced, Data: ev})

	// Drop our entry first so the re-arm below is not mistaken for a double arm.
	e.release(id, ver)
	e.arm(ev, e.Now())
}

// Snapshot is a point-in-time view of the engine for status output.
type Snapshot struct {
	Now       time.Time
	Armed     []ArmedInfo
	LastSweep SweepReport
	Goroutine supervisor.Counters
}

type ArmedInfo struct {
	ID     int64
	At     time.Time
	Firing bool
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	out := Snapshot{Now: e.Now(), LastSweep: e.last}
	for id, a := range e.armed {
		out.Armed = append(out.Armed, ArmedInfo{ID: id, At: a.at, Firing: a.firing})
	}
	e.mu.Unlock()
	sort.Slice(out.Armed, func(i, j int) bool {
		if out.Armed[i].At.Equal(out.Armed[j].At) {
			return out.Armed[i].ID < out.Armed[j].ID
		}
		return out.Armed[i].At.Before(out.Armed[j].At)
	})
	out.Goroutine = e.sup.Counters()
	return out
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Trace("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
