package config

import (
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"strings"
	"time"
)

// TokenEnv overrides an empty telegram.token.
const TokenEnv = "REMINDBOT_TELEGRAM_TOKEN"

const (
	DefaultHorizon       = 12 * time.Hour
	DefaultSweepInterval = 12 * time.Hour
	DefaultCatchUpGrace  = time.Minute
	DefaultFireTimeout   = 30 * time.Second
	DefaultPollTimeout   = 10 * time.Second
	DefaultBusyTimeout   = 5 * time.Second
	DefaultListLimit     = 10
	DefaultWorkers       = 4
)

// Resolved is the typed view of Config with defaults applied.
type Resolved struct {
	Token       string
	Owners      []int64
	PollTimeout time.Duration

	Storage     StorageConfig
	BusyTimeout time.Duration

	Location      *time.Location
	Horizon       time.Duration
	SweepInterval time.Duration
	CatchUpGrace  time.Duration
	FireTimeout   time.Duration

	Notifier NotifierSettings

	ListLimit int
	Workers   int
}

type NotifierSettings struct {
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	SendTimeout   time.Duration
}

// ResolveNotifier applies notifier defaults. It is split out because the
// notifier section is hot-reloadable.
func ResolveNotifier(n NotifierConfig) (NotifierSettings, error) {
	out := NotifierSettings{RatePerSec: n.RatePerSec, RetryMax: n.RetryMax}
	if out.RatePerSec <= 0 {
		out.RatePerSec = 3
	}
	// 0 means the default; a negative value disables retries.
	switch {
	case out.RetryMax == 0:
		out.RetryMax = 2
	case out.RetryMax < 0:
		out.RetryMax = 0
	}
	var err error
	if out.RetryBase, err = parseDuration("notifier.retry_base", n.RetryBase, 500*time.Millisecond, false); err != nil {
		return out, err
	}
	if out.RetryMaxDelay, err = parseDuration("notifier.retry_max_delay", n.RetryMaxDelay, 10*time.Second, false); err != nil {
		return out, err
	}
	if out.SendTimeout, err = parseDuration("notifier.send_timeout", n.SendTimeout, 10*time.Second, false); err != nil {
		return out, err
	}
	if out.RetryMaxDelay < out.RetryBase {
		out.RetryMaxDelay = out.RetryBase
	}
	return out, nil
}

// Resolve validates cfg and returns the typed view. The error joins every
// problem found so `config check` can report them all at once.
func Resolve(cfg *Config) (*Resolved, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	r := &Resolved{
		Token:   strings.TrimSpace(cfg.Telegram.Token),
		Owners:  append([]int64(nil), cfg.Telegram.OwnerUserIDs...),
		Storage: cfg.Storage,
	}
	if r.Token == "" {
		r.Token = strings.TrimSpace(os.Getenv(TokenEnv))
	}

	var err error
	r.PollTimeout, err = parseDuration("telegram.poll_timeout", cfg.Telegram.PollTimeout, DefaultPollTimeout, false)
	add(err)

	if !validLogLevel(cfg.Logging.Level) {
		add(fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		add(errors.New("logging.file.path: required when file logging is enabled"))
	}

	r.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	switch r.Storage.Driver {
	case "", "sqlite":
		r.Storage.Driver = "sqlite"
		if strings.TrimSpace(r.Storage.Path) == "" {
			r.Storage.Path = "./data/remindbot.db"
		}
	case "postgres":
		if strings.TrimSpace(r.Storage.DSN) == "" {
			add(errors.New("storage.dsn: required for postgres"))
		}
	default:
		add(fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	r.BusyTimeout, err = parseDuration("storage.busy_timeout", cfg.Storage.BusyTimeout, DefaultBusyTimeout, false)
	add(err)

	tz := strings.TrimSpace(cfg.Scheduler.Timezone)
	if tz == "" {
		tz = "UTC"
	}
	if r.Location, err = time.LoadLocation(tz); err != nil {
		add(fmt.Errorf("scheduler.timezone: %w", err))
	}
	r.Horizon, err = parseDuration("scheduler.horizon", cfg.Scheduler.Horizon, DefaultHorizon, false)
	add(err)
	r.SweepInterval, err = parseDuration("scheduler.sweep_interval", cfg.Scheduler.SweepInterval, DefaultSweepInterval, false)
	add(err)
	r.CatchUpGrace, err = parseDuration("scheduler.catch_up_grace", cfg.Scheduler.CatchUpGrace, DefaultCatchUpGrace, true)
	add(err)
	r.FireTimeout, err = parseDuration("scheduler.fire_timeout", cfg.Scheduler.FireTimeout, DefaultFireTimeout, false)
	add(err)
	if r.Horizon > 0 && r.SweepInterval > 0 && r.Horizon < r.SweepInterval {
		add(fmt.Errorf("scheduler.horizon (%s) must be >= scheduler.sweep_interval (%s)", r.Horizon, r.SweepInterval))
	}

	r.Notifier, err = ResolveNotifier(cfg.Notifier)
	add(err)

	r.ListLimit = cfg.Commands.ListLimit
	if r.ListLimit <= 0 {
		r.ListLimit = DefaultListLimit
	}
	r.Workers = cfg.Commands.Workers
	if r.Workers <= 0 {
		r.Workers = DefaultWorkers
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return r, nil
}

// Validate is Resolve without the result; used as the reload validator.
func Validate(cfg *Config) error {
	_, err := Resolve(cfg)
	return err
}

// RequireToken is checked only when the bot is actually going to connect;
// offline commands work without a token.
func (r *Resolved) RequireToken() error {
	if r.Token == "" {
		return fmt.Errorf("telegram.token is empty and %s is not set", TokenEnv)
	}
	return nil
}

func (r *Resolved) IsOwner(id int64) bool {
	for _, o := range r.Owners {
		if o == id {
			return true
		}
	}
	return false
}

func validLogLevel(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

// hashBytes returns a stable 64-bit hash of b. Empty input returns 0.
func hashBytes(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
