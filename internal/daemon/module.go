package daemon

import (
	"context"
	"fmt"

	"github.com/matheus3301/huddle/internal/api"
	"github.com/matheus3301/huddle/internal/blob"
	"github.com/matheus3301/huddle/internal/bus"
	"github.com/matheus3301/huddle/internal/chat"
	"github.com/matheus3301/huddle/internal/config"
	"github.com/matheus3301/huddle/internal/gateway"
	"github.com/matheus3301/huddle/internal/httpapi"
	"github.com/matheus3301/huddle/internal/identity"
	"github.com/matheus3301/huddle/internal/lock"
	"github.com/matheus3301/huddle/internal/logging"
	"github.com/matheus3301/huddle/internal/paths"
	"github.com/matheus3301/huddle/internal/room"
	"github.com/matheus3301/huddle/internal/status"
	"github.com/matheus3301/huddle/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Params holds the resolved instance settings passed to the fx module.
type Params struct {
	Instance string
	// Optional overrides; empty values use the instance layout and config file.
	SocketPath string
	ConfigPath string
	EnvFile    string
	ListenAddr string
	Debug      bool
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
			provideIssuer,
			provideBlobs,
			room.NewDirectory,
			provideRegistry,
			chat.NewLifecycle,
			provideGateway,
			provideAdminService,
			NewServer,
			NewHTTPServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	path := p.ConfigPath
	if path == "" {
		path = paths.ConfigPath()
	}
	if _, err := config.EnsureSecret(path); err != nil {
		return nil, err
	}
	cfg, err := config.LoadEffective(path, p.EnvFile)
	if err != nil {
		return nil, err
	}
	if p.ListenAddr != "" {
		cfg.Server.ListenAddr = p.ListenAddr
	}
	return cfg, nil
}

func provideLogger(p Params) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if p.Debug {
		level = zapcore.DebugLevel
	}
	return logging.New(paths.LogPath(p.Instance), p.Instance, level)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	if err := paths.EnsureDir(p.Instance); err != nil {
		return nil, err
	}
	l, err := lock.Acquire(paths.Dir(p.Instance), cfg.Server.ListenAddr)
	if err != nil {
		return nil, err
	}
	logger.Info("instance lock acquired", zap.String("dir", paths.Dir(p.Instance)))
	return l, nil
}

// provideStore depends on the lock so two daemons never migrate the same file.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := paths.DBPath(p.Instance)
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
		logger.Info("migrations applied", zap.Uint("from", result.From), zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideIssuer(cfg *config.Config) (*identity.Issuer, error) {
	return identity.NewIssuer(cfg.Server.JWTSecret, cfg.Server.TokenTTL)
}

func provideBlobs(p Params, cfg *config.Config) (*blob.Store, error) {
	return blob.New(paths.BlobDir(p.Instance), cfg.Server.MaxUploadBytes)
}

func provideRegistry(db *store.DB, b *bus.Bus, logger *zap.Logger) *chat.Registry {
	return chat.NewRegistry(db, b, logger.Named("registry"))
}

func provideGateway(cfg *config.Config, reg *chat.Registry, db *store.DB, iss *identity.Issuer, rooms *room.Directory, blobs *blob.Store, b *bus.Bus, logger *zap.Logger) *gateway.Gateway {
	return gateway.New(reg, db, iss, rooms, b, logger.Named("gateway"), gateway.Options{
		NotifyJoinRefusal: cfg.Server.NotifyJoinRefusal,
		Attachments:       blobs,
	})
}

func provideAdminService(p Params, cfg *config.Config, db *store.DB, reg *chat.Registry, iss *identity.Issuer, rooms *room.Directory, m *status.Machine, b *bus.Bus, logger *zap.Logger) *api.Service {
	return api.NewService(api.Params{
		Instance:   p.Instance,
		ListenAddr: cfg.Server.ListenAddr,
		DB:         db,
		Registry:   reg,
		Issuer:     iss,
		Rooms:      rooms,
		Machine:    m,
		Bus:        b,
		Logger:     logger.Named("admin"),
	})
}

func httpOptions(cfg *config.Config) httpapi.Options {
	opts := httpapi.DefaultOptions()
	opts.AllowedOrigins = cfg.Server.AllowedOrigins
	opts.SendBuffer = cfg.Server.SendBuffer
	opts.ReadLimit = cfg.Server.ReadLimit
	opts.EventRate = cfg.Server.EventRate
	opts.EventBurst = cfg.Server.EventBurst
	return opts
}

func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, admin *Server, web *HTTPServer, gw *gateway.Gateway, db *store.DB, lk *lock.Lock, machine *status.Machine, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if err := web.Listen(); err != nil {
				_ = machine.Transition(status.Error)
				return fmt.Errorf("listen http: %w", err)
			}
			go func() {
				if err := admin.Start(); err != nil {
					logger.Error("admin gRPC server error", zap.Error(err))
				}
			}()
			go func() {
				if err := web.Serve(); err != nil {
					logger.Error("http server error", zap.Error(err))
					_ = machine.Transition(status.Error)
				}
			}()
			if err := machine.Transition(status.Serving); err != nil {
				return err
			}
			logger.Info("huddled serving", zap.String("addr", web.Addr()))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			_ = machine.Transition(status.Draining)
			closed := gw.Shutdown()
			logger.Info("draining", zap.Int("connections", closed))

			drainCtx, cancel := context.WithTimeout(ctx, cfg.Server.DrainTimeout)
			defer cancel()
			if err := web.Stop(drainCtx); err != nil {
				logger.Warn("http shutdown", zap.Error(err))
			}
			admin.Stop(drainCtx)

			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			_ = machine.Transition(status.Stopped)
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
