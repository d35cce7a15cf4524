package app

import (
	"remindbot/internal/config"
	"remindbot/internal/notifier"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func storageConfig(r *config.Resolved) storage.Config {
	return storage.Config{
		Driver:      r.Storage.Driver,
		Path:        r.Storage.Path,
		DSN:         r.Storage.DSN,
		BusyTimeout: r.BusyTimeout,
	}
}

func notifierConfig(r *config.Resolved) notifier.Config {
	return notifier.Config{
		RatePerSec:    r.Notifier.RatePerSec,
		RetryMax:      r.Notifier.RetryMax,
		RetryBase:     r.Notifier.RetryBase,
		RetryMaxDelay: r.Notifier.RetryMaxDelay,
		SendTimeout:   r.Notifier.SendTimeout,
	}
}

func engineConfig(r *config.Resolved) reminder.EngineConfig {
	return reminder.EngineConfig{
		Location:      r.Location,
		Horizon:       r.Horizon,
		SweepInterval: r.SweepInterval,
		CatchUpGrace:  r.CatchUpGrace,
		FireTimeout:   r.FireTimeout,
	}
}

