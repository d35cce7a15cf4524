package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/storage"
	"remindbot/pkg/logx"
)

// Service is the command-surface entry point: it validates input, persists
// through the store and keeps the engine's armed set in step.
type Service struct {
	store  storage.EventStore
	engine *Engine
	log    logx.Logger
}

func NewService(store storage.EventStore, engine *Engine, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{store: store, engine: engine, log: log.With(logx.String("comp", "reminder.service"))}
}

func (s *Service) Location() *time.Location { return s.engine.Location() }

func (s *Service) Now() time.Time { return s.engine.Now() }

// Register stores a new reminder and arms it when it is due within the horizon.
func (s *Service) Register(ctx context.Context, owner int64, name string, when time.Time, r storage.Recurrence) (storage.Event, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return storage.Event{}, ErrEmptyName
	}
	if !ValidRecurrence(r) {
		return storage.Event{}, fmt.Errorf("%w: code %d", ErrInvalidRecurrence, int(r))
	}
	when = when.In(s.engine.Location()).Truncate(time.Second)
	if !when.After(s.Now()) {
		return storage.Event{}, ErrInvalidWhen
	}

	ev := storage.Event{OwnerID: owner, Name: name, When: when, Recurrence: r}
	id, err := s.store.Insert(ctx, ev)
	s.audit(ctx, storage.AuditEntry{ActorID: owner, Action: "register", EventID: id, OK: err == nil, Error: errString(err), Detail: name})
	if err != nil {
		s.log.Error("register failed", logx.Int64("owner_id", owner), logx.Err(err))
		return storage.Event{}, err
	}
	ev.ID = id

	armed := s.engine.Arm(ev)
	s.log.Info("reminder registered",
		logx.Int64("event_id", id),
		logx.Int64("owner_id", owner),
		logx.Time("when", when),
		logx.String("recurrence", r.String()),
		logx.Bool("armed", armed),
	)
	return ev, nil
}

// List returns owner's reminders, soonest first.
func (s *Service) List(ctx context.Context, owner int64) ([]storage.Event, error) {
	return s.store.GetAllForOwner(ctx, owner)
}

// Cancel deletes one of owner's reminders. Someone else's id is reported as
// not found.
func (s *Service) Cancel(ctx context.Context, owner, id int64) (storage.Event, error) {
	ev, err := s.store.Get(ctx, id)
	if err == nil && ev.OwnerID != owner {
		err = fmt.Errorf("event %d: %w", id, storage.ErrNotFound)
	}
	if err == nil {
		err = s.store.Delete(ctx, id)
	}
	s.audit(ctx, storage.AuditEntry{ActorID: owner, Action: "cancel", EventID: id, OK: err == nil, Error: errString(err)})
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Error("cancel failed", logx.Int64("event_id", id), logx.Err(err))
		}
		return storage.Event{}, err
	}

	disarmed := s.engine.Disarm(id)
	s.log.Info("reminder cancelled", logx.Int64("event_id", id), logx.Int64("owner_id", owner), logx.Bool("was_armed", disarmed))
	return ev, nil
}

// Armed reports whether id has a live timer.
func (s *Service) Armed(id int64) bool { return s.engine.Armed(id) }

func (s *Service) Snapshot() Snapshot { return s.engine.Snapshot() }

func (s *Service) audit(ctx context.Context, e storage.AuditEntry) {
	if err := s.store.AppendAudit(ctx, e); err != nil {
		s.log.Warn("audit append failed", logx.String("action", e.Action), logx.Err(err))
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
