package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"remindbot/pkg/logx"
)

// EventStore is the persistence API used by the reminder engine and service.
// Every error other than ErrNotFound matches ErrStorage.
type EventStore interface {
	Insert(ctx context.Context, ev Event) (int64, error)
	Get(ctx context.Context, id int64) (Event, error)
	GetAll(ctx context.Context) ([]Event, error)
	// GetAllForOwner is ordered ascending by When.
	GetAllForOwner(ctx context.Context, ownerID int64) ([]Event, error)
	Update(ctx context.Context, id int64, u EventUpdate) error
	// Delete returns ErrNotFound if no row was removed.
	Delete(ctx context.Context, id int64) error
	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

// Open selects the backend, connects and migrates the schema.
// Times read back are converted to loc.
func Open(ctx context.Context, cfg Config, loc *time.Location, log logx.Logger) (EventStore, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if loc == nil {
		loc = time.UTC
	}
	log = log.With(logx.String("comp", "storage"))

	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "sqlite", "sqlite3":
		return openSQLite(ctx, cfg, loc, log)
	case "postgres", "postgresql":
		return openPostgres(ctx, cfg, loc, log)
	case "none":
		return nil, ErrDisabled
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
}

// Statements are written with '?' placeholders; postgres gets them rebound to $n.
const (
	qInsert = `INSERT INTO events(owner_id, name, "when", recurrence) VALUES(?,?,?,?) RETURNING id`
	qGet    = `SELECT id, owner_id, name, "when", recurrence FROM events WHERE id = ?`
	qAll    = `SELECT id, owner_id, name, "when", recurrence FROM events ORDER BY "when", id`
	qOwner  = `SELECT id, owner_id, name, "when", recurrence FROM events WHERE owner_id = ? ORDER BY "when", id`
	// The only updatable column. Never build this from caller input.
	qUpdateWhen = `UPDATE events SET "when" = ? WHERE id = ?`
	qDelete     = `DELETE FROM events WHERE id = ?`
	qAudit      = `INSERT INTO audit(at, actor_id, action, event_id, ok, err, detail) VALUES(?,?,?,?,?,?,?)`
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// sqlStore implements EventStore for any database/sql driver.
type sqlStore struct {
	db      *sql.DB
	dialect dialect
	loc     *time.Location
	log     logx.Logger
	q       map[string]string
}

func newSQLStore(db *sql.DB, d dialect, loc *time.Location, log logx.Logger) *sqlStore {
	s := &sqlStore{db: db, dialect: d, loc: loc, log: log, q: map[string]string{}}
	for _, q := range []string{qInsert, qGet, qAll, qOwner, qUpdateWhen, qDelete, qAudit} {
		if d == dialectPostgres {
			s.q[q] = rebind(q)
		} else {
			s.q[q] = q
		}
	}
	return s
}

// rebind rewrites '?' placeholders to $1..$n. The statements above contain no
// string literals, so every '?' is a placeholder.
func rebind(q string) string {
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqlStore) Insert(ctx context.Context, ev Event) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	var id int64
	err := s.db.QueryRowContext(ctx, s.q[qInsert],
		ev.OwnerID, ev.Name, ev.When.Unix(), recurrenceArg(ev.Recurrence),
	).Scan(&id)
	if err != nil {
		return 0, wrapErr("insert event", err)
	}
	return id, nil
}

func (s *sqlStore) Get(ctx context.Context, id int64) (Event, error) {
	if s == nil || s.db == nil {
		return Event{}, ErrDisabled
	}
	ev, err := s.scan(s.db.QueryRowContext(ctx, s.q[qGet], id))
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Event{}, wrapErr("get event", err)
	}
	return ev, nil
}

func (s *sqlStore) GetAll(ctx context.Context) ([]Event, error) {
	return s.list(ctx, "list events", s.q[qAll])
}

func (s *sqlStore) GetAllForOwner(ctx context.Context, ownerID int64) ([]Event, error) {
	return s.list(ctx, "list owner events", s.q[qOwner], ownerID)
}

func (s *sqlStore) list(ctx context.Context, op, q string, args ...any) ([]Event, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		ev, err := s.scan(rows)
		if err != nil {
			return nil, wrapErr(op, err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(op, err)
	}
	return out, nil
}

func (s *sqlStore) Update(ctx context.Context, id int64, u EventUpdate) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if u.empty() {
		return errors.New("update event: no fields to update")
	}
	res, err := s.db.ExecContext(ctx, s.q[qUpdateWhen], u.When.Unix(), id)
	if err != nil {
		return wrapErr("update event", err)
	}
	return affected(res, id, "update event")
}

func (s *sqlStore) Delete(ctx context.Context, id int64) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	res, err := s.db.ExecContext(ctx, s.q[qDelete], id)
	if err != nil {
		return wrapErr("delete event", err)
	}
	return affected(res, id, "delete event")
}

func (s *sqlStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.q[qAudit],
		e.At.Unix(), e.ActorID, e.Action, e.EventID, e.OK, nullStr(e.Error), nullStr(e.Detail),
	)
	return wrapErr("append audit", err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *sqlStore) scan(r rowScanner) (Event, error) {
	var (
		ev    Event
		when  int64
		recur sql.NullInt64
	)
	if err := r.Scan(&ev.ID, &ev.OwnerID, &ev.Name, &when, &recur); err != nil {
		return Event{}, err
	}
	ev.When = time.Unix(when, 0).In(s.loc)
	if recur.Valid {
		ev.Recurrence = Recurrence(recur.Int64)
	}
	return ev, nil
}

func affected(res sql.Result, id int64, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr(op, err)
	}
	if n == 0 {
		return fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	return nil
}

func recurrenceArg(r Recurrence) any {
	if r == RecurNone {
		return nil
	}
	return int64(r)
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
