package reminder

import (
	"context"
	"errors"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/storage"
	"remindbot/pkg/logx"
)

// SweepReport summarizes one pass over the store.
type SweepReport struct {
	At       time.Time     `json:"at"`
	Took     time.Duration `json:"took"`
	Loaded   int           `json:"loaded"`
	Armed    int           `json:"armed"`
	Already  int           `json:"already_armed"`
	Deferred int           `json:"deferred"`
	Reaped   int           `json:"reaped"`
	Advanced int           `json:"advanced"`
	Invalid  int           `json:"invalid"`
	Failed   int           `json:"failed"`
}

// Sweep loads every event and reconciles it with the armed set:
//   - one-shot more than CatchUpGrace past due: deleted without notifying
//   - recurring more than CatchUpGrace past due: advanced past now, no notification
//   - past due within CatchUpGrace: armed to fire immediately
//   - due within Horizon: armed unless already armed
//   - beyond Horizon: left for a later sweep
//
// A store read failure aborts the sweep; per-event failures are counted and
// the sweep moves on.
func (e *Engine) Sweep(ctx context.Context) (SweepReport, error) {
	started := e.clock.Now()
	rep := SweepReport{At: started.In(e.cfg.Location)}

	events, err := e.store.GetAll(ctx)
	if err != nil {
		return rep, err
	}
	rep.Loaded = len(events)
	now := e.Now()

	for _, ev := range events {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		if !ValidRecurrence(ev.Recurrence) {
			rep.Invalid++
			e.log.Error("stored event has invalid recurrence; left unarmed",
				logx.Int64("event_id", ev.ID), logx.Int("recurrence", int(ev.Recurrence)), logx.Err(ErrInvalidRecurrence))
			continue
		}

		if now.Sub(ev.When) > e.cfg.CatchUpGrace {
			// An armed event past its time is firing right now; leave it to the fire.
			if e.Armed(ev.ID) {
				rep.Already++
				continue
			}
			var ok bool
			if ev, ok = e.catchUp(ctx, ev, now, &rep); !ok {
				continue
			}
		}

		switch e.arm(ev, now) {
		case armNew:
			rep.Armed++
		case armExisting:
			rep.Already++
		case armBeyondHorizon:
			rep.Deferred++
		}
	}

	rep.Took = e.clock.Now().Sub(started)
	e.mu.Lock()
	e.last = rep
	e.mu.Unlock()

	e.log.Info("sweep done",
		logx.Int("loaded", rep.Loaded),
		logx.Int("armed", rep.Armed),
		logx.Int("already_armed", rep.Already),
		logx.Int("deferred", rep.Deferred),
		logx.Int("reaped", rep.Reaped),
		logx.Int("advanced", rep.Advanced),
		logx.Int("invalid", rep.Invalid),
		logx.Int("failed", rep.Failed),
		logx.Duration("took", rep.Took),
	)
	e.bus.Publish(eventbus.Event{Type: EvSweep, Data: rep})
	return rep, nil
}

// catchUp handles a stale event. It returns the event to continue arming
// with, or false if the event is done for this sweep.
func (e *Engine) catchUp(ctx context.Context, ev storage.Event, now time.Time, rep *SweepReport) (storage.Event, bool) {
	log := e.log.With(logx.Int64("event_id", ev.ID), logx.Time("when", ev.When))

	if !ev.Recurrence.Recurring() {
		if err := e.store.Delete(ctx, ev.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			rep.Failed++
			log.Error("reap stale reminder failed", logx.Err(err))
			return ev, false
		}
		rep.Reaped++
		log.Info("stale one-shot reminder reaped without notifying", logx.Duration("late", now.Sub(ev.When)))
		e.bus.Publish(eventbus.Event{Type: EvReaped, Data: ev})
		return ev, false
	}

	next, err := AdvancePast(ev.When, ev.Recurrence, now)
	if err != nil {
		rep.Invalid++
		log.Error("cannot advance stale reminder; left unarmed", logx.Err(err))
		return ev, false
	}
	if err := e.store.Update(ctx, ev.ID, storage.EventUpdate{When: &next}); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			rep.Failed++
			log.Error("advance stale reminder failed", logx.Err(err))
		}
		return ev, false
	}
	rep.Advanced++
	log.Info("stale recurring reminder skipped ahead", logx.Time("next", next))
	ev.When = next
	e.bus.Publish(eventbus.Event{Type: EvAdvanced, Data: ev})
	return ev, true
}
