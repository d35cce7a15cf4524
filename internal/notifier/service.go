package notifier

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"remindbot/internal/eventbus"
	"remindbot/internal/storage"
	"remindbot/internal/transport"
	"remindbot/pkg/logx"
)

var (
	// ErrDelivery is the DeliveryFailure kind: the reminder could not be sent.
	ErrDelivery = errors.New("reminder delivery failed")
	ErrStopped  = errors.New("notifier stopped")
)

const (
	EvSent   = "notifier.sent"
	EvFailed = "notifier.failed"
)

// Service sends reminders as direct messages. It is safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
	stopped bool

	adapter transport.Adapter
	loc     *time.Location
	log     logx.Logger
	bus     eventbus.Bus

	// sleep waits between retries; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, adapter transport.Adapter, loc *time.Location, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if loc == nil {
		loc = time.UTC
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	s := &Service{
		adapter: adapter,
		loc:     loc,
		log:     log.With(logx.String("comp", "notifier")),
		bus:     bus,
		sleep:   sleepCtx,
	}
	s.applyLocked(cfg)
	return s
}

// Apply swaps limits at runtime.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 50
	}
	s.cfg = cfg
	// burst = rate, so a few reminders due at the same minute don't queue up.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Stop makes further deliveries fail with ErrStopped.
func (s *Service) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

// Deliver sends ev to its owner. Every error wraps ErrDelivery.
func (s *Service) Deliver(ctx context.Context, ev storage.Event) error {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	stopped := s.stopped
	s.mu.Unlock()

	if stopped {
		return fmt.Errorf("%w: %w", ErrDelivery, ErrStopped)
	}
	if s.adapter == nil {
		return fmt.Errorf("%w: no transport", ErrDelivery)
	}

	text := FormatReminder(ev, s.loc)
	to := transport.ChatTarget{ChatID: ev.OwnerID}
	maxAttempts := 1 + cfg.RetryMax

	var (
		lastErr  error
		attempts int
	)
	for attempts = 1; attempts <= maxAttempts; attempts++ {
		if err := lim.Wait(ctx); err != nil {
			lastErr = err
			break
		}
		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		_, err := s.adapter.SendText(callCtx, to, text, nil)
		cancel()
		if err == nil {
			s.record(ev, attempts, nil)
			s.log.Debug("reminder delivered", logx.Int64("event_id", ev.ID), logx.Int64("owner_id", ev.OwnerID), logx.Int("attempts", attempts))
			return nil
		}
		lastErr = err
		s.log.Debug("reminder send failed", logx.Int64("event_id", ev.ID), logx.Int("attempt", attempts), logx.Int("max", maxAttempts), logx.Err(err))

		if attempts >= maxAttempts {
			break
		}
		if err := s.sleep(ctx, retryDelay(cfg, attempts)); err != nil {
			lastErr = err
			break
		}
	}
	attempts = min(attempts, maxAttempts)

	err := fmt.Errorf("%w: owner %d after %d attempt(s): %w", ErrDelivery, ev.OwnerID, attempts, lastErr)
	s.record(ev, attempts, err)
	return err
}

func (s *Service) record(ev storage.Event, attempts int, err error) {
	now := time.Now()
	item := HistoryItem{At: now, EventID: ev.ID, OwnerID: ev.OwnerID, Name: ev.Name, OK: err == nil, Attempts: attempts}
	de := DeliveryEvent{EventID: ev.ID, OwnerID: ev.OwnerID, Attempts: attempts, At: now}
	typ := EvSent
	if err != nil {
		item.Error = err.Error()
		de.Error = item.Error
		typ = EvFailed
	}

	s.mu.Lock()
	limit := s.cfg.HistorySize
	s.mu.Unlock()

	s.hmu.Lock()
	s.history = append(s.history, item)
	if over := len(s.history) - limit; over > 0 {
		s.history = append([]HistoryItem(nil), s.history[over:]...)
	}
	s.hmu.Unlock()

	s.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: de})
}

// History returns recent deliveries, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

// FormatReminder renders the direct message for a fired reminder.
func FormatReminder(ev storage.Event, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	var b strings.Builder
	b.WriteString("⏰ Reminder\n")
	b.WriteString(ev.Name)
	b.WriteString("\n")
	b.WriteString(ev.When.In(loc).Format("Mon 2006-01-02 15:04 MST"))
	if ev.Recurrence.Recurring() {
		b.WriteString(" · repeats ")
		b.WriteString(ev.Recurrence.String())
	}
	return b.String()
}

func retryDelay(cfg Config, attempt int) time.Duration {
	// attempt is the one that just failed (1-based); the delay precedes the next.
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	// jitter 0.7..1.3
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	return min(max(d, 0), cfg.RetryMaxDelay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
