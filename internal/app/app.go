// Package app assembles a running profile synchronizer from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/roach88/profilesync/internal/codec"
	"github.com/roach88/profilesync/internal/config"
	"github.com/roach88/profilesync/internal/identity"
	"github.com/roach88/profilesync/internal/localstore"
	"github.com/roach88/profilesync/internal/profile"
	"github.com/roach88/profilesync/internal/remote"
	"github.com/roach88/profilesync/internal/synchronizer"
)

// App holds the wired components. Build it with New and release it with Close.
type App struct {
	Config   *config.Config
	Log      logrus.FieldLogger
	Local    localstore.Store
	Remote   remote.Backend
	Provider *identity.MemoryProvider
	Sync     *synchronizer.Synchronizer
	IDs      identity.IDGenerator

	closers []func() error
	done    chan error
	cancel  context.CancelFunc
}

// Options overrides components New would otherwise build from config.
// Tests use it to inject memory backends and fixed clocks.
type Options struct {
	Local  localstore.Store
	Remote remote.Backend
	Clock  profile.Clock
	IDs    identity.IDGenerator
}

// New opens the configured stores and builds a synchronizer over them.
// Nothing runs until Start.
func New(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, opts Options) (*App, error) {
	a := &App{Config: cfg, Log: log, Provider: identity.NewMemoryProvider(), IDs: opts.IDs}
	if a.IDs == nil {
		a.IDs = identity.UUIDv7Generator{}
	}

	a.Local = opts.Local
	if a.Local == nil {
		local, err := a.openLocal(ctx)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.Local = local
	}

	a.Remote = opts.Remote
	if a.Remote == nil {
		backend, err := a.openRemote(ctx)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.Remote = backend
	}

	a.Sync = synchronizer.New(synchronizer.Config{
		LocalKey: cfg.LocalKey,
		Avatars:  cfg.Avatars,
		Clock:    opts.Clock,
		Logger:   log,
		Codec:    codec.Default().WithLogger(log),
	}, a.Local, a.Remote, a.Provider)
	return a, nil
}

func (a *App) openLocal(ctx context.Context) (localstore.Store, error) {
	cfg := a.Config
	switch cfg.LocalBackend {
	case config.BackendMemory:
		return localstore.NewMemory(), nil
	case config.BackendRedis:
		rdb := localstore.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		a.closers = append(a.closers, rdb.Close)
		st := localstore.NewRedis(rdb, localstore.RedisOptions{Prefix: cfg.RedisPrefix, TTL: cfg.RedisTTL, Logger: a.Log})
		if err := st.Ping(ctx); err != nil {
			return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		return st, nil
	default:
		st, err := localstore.OpenSQLite(cfg.SQLitePath, a.Log)
		if err != nil {
			return nil, fmt.Errorf("open local store %s: %w", cfg.SQLitePath, err)
		}
		a.closers = append(a.closers, st.Close)
		return st, nil
	}
}

func (a *App) openRemote(ctx context.Context) (remote.Backend, error) {
	cfg := a.Config
	if cfg.RemoteBackend != config.BackendPostgres {
		return remote.NewMemory(time.Now), nil
	}
	dsn := cfg.PostgresDSN()
	if cfg.Migrate {
		if err := remote.Migrate(dsn, a.Log); err != nil {
			return nil, err
		}
	}
	pool, err := remote.NewPool(ctx, dsn, cfg.DBMaxConns, cfg.DBMinConns, cfg.DBMaxConnLife)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a.closers = append(a.closers, func() error { pool.Close(); return nil })
	return remote.NewPostgres(pool, remote.PostgresOptions{Channel: cfg.NotifyChannel, Logger: a.Log}), nil
}

// Start runs the synchronizer on its own goroutine.
func (a *App) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	a.done = make(chan error, 1)
	go func() { a.done <- a.Sync.Run(ctx) }()
}

// Ready waits, bounded by the configured ready timeout, until the
// synchronizer holds identity id and has settled. An empty id waits for the
// signed-out state.
func (a *App) Ready(ctx context.Context, id string) (profile.Profile, bool, error) {
	if a.Config.ReadyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Config.ReadyTimeout)
		defer cancel()
	}
	for {
		changed := a.Sync.Changes()
		active, ok := a.Sync.Identity()
		if ok == (id != "") && active.ID == id && !a.Sync.IsLoading() {
			p, held := a.Sync.Current()
			return p, held, nil
		}
		select {
		case <-ctx.Done():
			return profile.Profile{}, false, fmt.Errorf("waiting for profile: %w", ctx.Err())
		case <-changed:
		}
	}
}

// Close stops the synchronizer and releases the stores.
func (a *App) Close() error {
	var errs []error
	if a.done != nil {
		a.Sync.Stop()
		if err := <-a.done; err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, err)
		}
		a.cancel()
		a.done = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
