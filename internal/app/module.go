// Package app wires the client components together with fx.
package app

import (
	"context"
	"encoding/hex"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/dmsync/internal/bus"
	"github.com/matheus3301/dmsync/internal/chat"
	"github.com/matheus3301/dmsync/internal/config"
	"github.com/matheus3301/dmsync/internal/identity"
	"github.com/matheus3301/dmsync/internal/lock"
	"github.com/matheus3301/dmsync/internal/logging"
	"github.com/matheus3301/dmsync/internal/presence"
	"github.com/matheus3301/dmsync/internal/session"
	"github.com/matheus3301/dmsync/internal/store"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	Config      *config.Config
	// Interactive clients hold the session lock, follow the identity with a
	// running core and mark the user offline on exit.
	Interactive bool
	// Console mirrors log lines to stderr.
	Console bool
}

// Components are the long-lived objects a command works with.
type Components struct {
	fx.In

	Logger   *zap.Logger
	Bus      *bus.Bus
	Store    *store.Store
	Identity *identity.Local
	Core     *chat.Core
}

// Module returns the fx module composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	if p.Config == nil {
		p.Config = config.Default()
	}
	return fx.Module("dmsync",
		fx.Supply(p, p.Config),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideDB,
			provideStore,
			provideRedis,
			provideTracker,
			provideIdentity,
			provideCore,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(logging.Options{
		Path:    session.LogPath(p.SessionName),
		Session: p.SessionName,
		Level:   cfg.Log.Level,
		Console: p.Console,
	})
}

func provideBus() *bus.Bus {
	return bus.New()
}

// provideLock returns nil for non-interactive commands.
func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	if !p.Interactive {
		return nil, nil
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.LockPath(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideDB(cfg *config.Config, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.BackendDBPath(session.DataDir(cfg.DataDir))
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideStore(db *store.DB, b *bus.Bus, logger *zap.Logger) *store.Store {
	return store.New(db, b, logger.Named("store"))
}

// provideRedis connects only when presence is enabled. An unreachable server
// is logged and presence falls back to the directory columns.
func provideRedis(cfg *config.Config, logger *zap.Logger) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Sync.WriteTimeout.Duration)
	defer cancel()
	rdb, err := presence.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn("presence disabled", zap.Error(err))
		return nil
	}
	logger.Info("presence connected", zap.String("addr", cfg.Redis.Addr))
	return rdb
}

func provideTracker(rdb *redis.Client, cfg *config.Config, logger *zap.Logger) *presence.Tracker {
	if rdb == nil {
		return nil
	}
	return presence.NewTracker(rdb, cfg.Redis.PresenceTTL.Duration, logger.Named("presence"))
}

func provideIdentity(p Params, cfg *config.Config, s *store.Store, tracker *presence.Tracker, logger *zap.Logger) (*identity.Local, error) {
	secret, err := tokenSecret(cfg)
	if err != nil {
		return nil, err
	}
	opts := identity.Options{
		Users:     s.Users(),
		Tokens:    identity.NewTokens(secret, cfg.Auth.TokenTTL.Duration),
		TokenPath: session.TokenPath(p.SessionName),
		Logger:    logger.Named("identity"),
		Passive:   !p.Interactive,
	}
	if tracker != nil {
		opts.Presence = tracker
	}
	return identity.NewLocal(opts), nil
}

func tokenSecret(cfg *config.Config) ([]byte, error) {
	if cfg.Auth.TokenSecret == "" {
		return identity.LoadOrCreateSecret(session.SecretPath(session.DataDir(cfg.DataDir)))
	}
	if b, err := hex.DecodeString(cfg.Auth.TokenSecret); err == nil {
		return b, nil
	}
	return []byte(cfg.Auth.TokenSecret), nil
}

func provideCore(cfg *config.Config, s *store.Store, ident *identity.Local, tracker *presence.Tracker, b *bus.Bus, logger *zap.Logger) *chat.Core {
	var dir chat.DirectoryStore = s.Users()
	if tracker != nil {
		dir = presence.NewDirectory(dir, tracker, tracker.Interval(), logger.Named("presence"))
	}
	return chat.New(chat.Options{
		Directory:     dir,
		Conversations: s.Conversations(),
		Messages:      s.Messages(),
		Identity:      ident,
		State:         s.State(),
		Bus:           b,
		Logger:        logger.Named("chat"),
		IsNotFound:    func(err error) bool { return errors.Is(err, store.ErrNotFound) },
		Config: chat.Config{
			WriteTimeout:     cfg.Sync.WriteTimeout.Duration,
			SubscribeTimeout: cfg.Sync.SubscribeTimeout.Duration,
			BackoffInitial:   cfg.Sync.BackoffInitial.Duration,
			BackoffMax:       cfg.Sync.BackoffMax.Duration,
		},
	})
}

type lifecycleDeps struct {
	fx.In

	Params   Params
	Config   *config.Config
	Lock     *lock.Lock
	DB       *store.DB
	Store    *store.Store
	Redis    *redis.Client
	Tracker  *presence.Tracker
	Identity *identity.Local
	Core     *chat.Core
	Logger   *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, d lifecycleDeps) {
	var (
		cancel context.CancelFunc
		wg     sync.WaitGroup
	)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if _, err := d.Identity.Restore(ctx); err != nil && !errors.Is(err, identity.ErrNoSession) {
				d.Logger.Warn("session restore failed", zap.Error(err))
			}

			var runCtx context.Context
			runCtx, cancel = context.WithCancel(context.Background())

			// The external watcher turns commits from other processes into
			// store events, so every subscription sees them.
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := d.Store.WatchExternal(runCtx, d.Config.Sync.ExternalPoll.Duration); err != nil {
					d.Logger.Error("external watcher stopped", zap.Error(err))
				}
			}()

			if !d.Params.Interactive {
				return nil
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = d.Core.Run(runCtx)
			}()
			if d.Tracker != nil {
				wg.Add(1)
				go func() {
					defer wg.Done()
					keepAlive(runCtx, d.Identity, d.Tracker)
				}()
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if d.Params.Interactive {
				if cur := d.Identity.Current(); cur != nil {
					if err := d.Store.Users().SetPresence(ctx, cur.ID, false); err != nil {
						d.Logger.Warn("mark offline", zap.Error(err))
					}
					if d.Tracker != nil {
						_ = d.Tracker.SetOffline(ctx, cur.ID)
					}
				}
			}
			if cancel != nil {
				cancel()
			}
			wg.Wait()
			if d.Redis != nil {
				_ = d.Redis.Close()
			}
			if err := d.DB.Close(); err != nil {
				d.Logger.Warn("error closing store", zap.Error(err))
			}
			if err := d.Lock.Release(); err != nil {
				d.Logger.Warn("error releasing lock", zap.Error(err))
			}
			d.Logger.Info("client stopped")
			_ = d.Logger.Sync()
			return nil
		},
	})
}

// keepAlive heartbeats the signed-in user until ctx is done, following
// sign-in and sign-out.
func keepAlive(ctx context.Context, ident *identity.Local, tracker *presence.Tracker) {
	var stop context.CancelFunc = func() {}
	defer func() { stop() }()
	for id := range ident.Watch(ctx) {
		stop()
		stop = func() {}
		if id == nil {
			continue
		}
		var hbCtx context.Context
		hbCtx, stop = context.WithCancel(ctx)
		go tracker.KeepAlive(hbCtx, id.ID)
	}
}
