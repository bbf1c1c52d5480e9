// Package daemon wires the chat session, cache and gRPC API of one
// profile into an fx application.
package daemon

import (
	"context"
	"errors"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/BusaSaiTeja/campus-lost-and-found/internal/api"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/backend"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/bus"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/config"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/lock"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/logging"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/metrics"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/profile"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/session"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/status"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/store"
	intsync "github.com/BusaSaiTeja/campus-lost-and-found/internal/sync"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile    string
	SocketPath string         // optional override for testing; empty = use default
	Config     *config.Config // optional; loaded from config.toml when nil
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideSession,
			provideSyncEngine,
			provideService,
			provideMetrics,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	cfg := p.Config
	if cfg == nil {
		loaded, err := config.LoadOrDefault(profile.ConfigPath())
		if err != nil {
			return nil, err
		}
		loaded.ApplyEnv()
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	if err := profile.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	return logging.New(profile.LogPath(p.Profile), p.Profile, cfg.LogLevel)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(profile.Dir(p.Profile), p.socketPath())
	if err != nil {
		var held *lock.HeldError
		if errors.As(err, &held) {
			logger.Error("profile already served", zap.Int("pid", held.Holder.PID), zap.String("socket", held.Holder.Socket))
		}
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.CacheDBPath(p.Profile)
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

func provideSession(cfg *config.Config, db *store.DB, m *status.Machine, b *bus.Bus, logger *zap.Logger) (*session.Session, error) {
	return session.New(session.Options{
		Config:  cfg,
		Cookies: db,
		Machine: m,
		Bus:     b,
		Logger:  logger,
	})
}

func provideSyncEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, b, logger)
}

func provideService(p Params, sess *session.Session, db *store.DB, b *bus.Bus, logger *zap.Logger) *api.Service {
	return api.NewService(api.Options{
		Profile: p.Profile,
		Chat:    sess,
		Store:   db,
		Bus:     b,
		Logger:  logger,
	})
}

// provideMetrics returns nil when metrics_addr is unset.
func provideMetrics(cfg *config.Config, logger *zap.Logger) (*metrics.Server, error) {
	if cfg.MetricsAddr == "" {
		return nil, nil
	}
	return metrics.Listen(cfg.MetricsAddr, logger)
}

type lifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Server    *Server
	Lock      *lock.Lock
	Store     *store.DB
	Session   *session.Session
	Engine    *intsync.Engine
	Metrics   *metrics.Server
	Logger    *zap.Logger
}

func registerLifecycle(lp lifecycleParams) {
	logger := lp.Logger
	// Detached from the start hook's deadline; cancelled on stop.
	runCtx, cancel := context.WithCancel(context.Background())

	lp.Lifecycle.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Start sync engine (subscribes to stream.* and chats.* bus events).
			lp.Engine.Start(runCtx)

			go func() {
				if err := lp.Server.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			if lp.Metrics != nil {
				logger.Info("metrics listening", zap.String("addr", lp.Metrics.Addr()))
				go lp.Metrics.Serve()
			}

			// Restored cookies mean a previous login; reconnect with them.
			if snap := lp.Session.Snapshot(); snap.UserID != "" {
				go func() {
					if _, err := lp.Session.Verify(runCtx); err != nil {
						if backend.NeedsLogin(err) {
							logger.Info("stored session expired, login required")
							return
						}
						logger.Warn("session verify failed", zap.Error(err))
					}
					if err := lp.Session.Connect(runCtx); err != nil {
						logger.Error("auto-connect failed", zap.Error(err))
					}
				}()
			} else {
				logger.Info("no stored session, login required")
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			if err := lp.Session.Close(); err != nil {
				logger.Warn("error closing session", zap.Error(err))
			}
			lp.Engine.Stop()
			lp.Server.Stop(ctx)
			if lp.Metrics != nil {
				_ = lp.Metrics.Shutdown(ctx)
			}
			if err := lp.Store.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lp.Lock.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
