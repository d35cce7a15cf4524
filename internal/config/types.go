package config

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Notifier  NotifierConfig  `json:"notifier"`
	Commands  CommandsConfig  `json:"commands"`
}

type TelegramConfig struct {
	// Token may be left empty in the file and supplied via REMINDBOT_TELEGRAM_TOKEN.
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	PollTimeout  string  `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level   string            `json:"level"`
	Console bool              `json:"console"`
	File    LoggingFileConfig `json:"file"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects the event store backend.
//
//   - driver: "sqlite" (default) or "postgres"
//   - path: sqlite database file
//   - dsn: postgres connection string
//   - busy_timeout: sqlite busy timeout, Go duration string
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// SchedulerConfig controls the reminder engine.
// Durations are Go duration strings with an optional leading day count
// ("2d", "1d12h"); omitted means the default.
type SchedulerConfig struct {
	Timezone      string `json:"timezone"`
	Horizon       string `json:"horizon"`
	SweepInterval string `json:"sweep_interval"`
	CatchUpGrace  string `json:"catch_up_grace"`
	FireTimeout   string `json:"fire_timeout"`
}

type NotifierConfig struct {
	RatePerSec    int    `json:"rate_per_sec"`
	RetryMax      int    `json:"retry_max"`
	RetryBase     string `json:"retry_base"`
	RetryMaxDelay string `json:"retry_max_delay"`
	SendTimeout   string `json:"send_timeout"`
}

type CommandsConfig struct {
	ListLimit int `json:"list_limit"`
	Workers   int `json:"workers"`
}
