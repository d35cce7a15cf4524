package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

// Offline gives CLI commands access to the event store without connecting
// to Telegram or starting the scheduler.
type Offline struct {
	Config    *config.Resolved
	Store     storage.EventStore
	Reminders *reminder.Service

	engine *reminder.Engine
}

var errOffline = errors.New("delivery is not available offline")

type offlineDispatcher struct{}

func (offlineDispatcher) Deliver(context.Context, storage.Event) error { return errOffline }

func OpenOffline(ctx context.Context, cfgPath string, log logx.Logger) (*Offline, error) {
	cfg, err := config.ParseFile(cfgPath)
	if err != nil {
		return nil, err
	}
	res, err := config.Resolve(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(ctx, storageConfig(res), res.Location, log)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	// The engine is never started; Cancel only uses it to disarm.
	engine, err := reminder.NewEngine(engineConfig(res), store, offlineDispatcher{}, log, nil)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return &Offline{
		Config:    res,
		Store:     store,
		Reminders: reminder.NewService(store, engine, log),
		engine:    engine,
	}, nil
}

func (o *Offline) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = o.engine.Stop(ctx)
	return o.Store.Close()
}
