// Package daemon composes the beacon daemon: mesh transport, delivery
// tracking, broadcast scheduling and the local API, wired with fx.
package daemon

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/pvieira/beacon/internal/api"
	"github.com/pvieira/beacon/internal/broadcast"
	"github.com/pvieira/beacon/internal/bus"
	"github.com/pvieira/beacon/internal/classify"
	"github.com/pvieira/beacon/internal/config"
	"github.com/pvieira/beacon/internal/delivery"
	"github.com/pvieira/beacon/internal/lock"
	"github.com/pvieira/beacon/internal/logging"
	"github.com/pvieira/beacon/internal/mesh"
	"github.com/pvieira/beacon/internal/mesh/dep2pmesh"
	"github.com/pvieira/beacon/internal/metrics"
	"github.com/pvieira/beacon/internal/retry"
	"github.com/pvieira/beacon/internal/session"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideMetrics,
			provideClassifier,
			provideLock,
			provideTransport,
			providePump,
			provideTracker,
			provideScheduler,
			provideRetrier,
			provideServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() (*config.Config, error) {
	return config.LoadOrDefault(session.ConfigPath())
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideMetrics() *metrics.Metrics {
	return metrics.New()
}

func provideClassifier(cfg *config.Config) *classify.Classifier {
	return classify.New(cfg.Classify.ExtraKeywords...)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

// provideTransport starts the dep2p node. The lock provider runs first so a
// second daemon never joins the mesh with the same identity.
func provideTransport(p Params, cfg *config.Config, _ *lock.Lock, logger *zap.Logger) (mesh.Transport, error) {
	return dep2pmesh.New(context.Background(), dep2pmesh.Config{
		IdentityFile:   session.IdentityPath(p.SessionName),
		ListenPort:     cfg.Mesh.ListenPort,
		RealmKey:       cfg.Mesh.RealmKey,
		Topic:          cfg.Mesh.Topic,
		BootstrapPeers: cfg.Mesh.BootstrapPeers,
		LogFile:        session.MeshLogPath(p.SessionName),
	}, logger)
}

func providePump(t mesh.Transport, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *mesh.Pump {
	return mesh.NewPump(t, b, m, logger)
}

func provideTracker(b *bus.Bus, cls *classify.Classifier, m *metrics.Metrics, logger *zap.Logger) *delivery.Tracker {
	return delivery.NewTracker(b, cls, m, logger)
}

func provideScheduler(t mesh.Transport, tracker *delivery.Tracker, m *metrics.Metrics, logger *zap.Logger) *broadcast.Scheduler {
	return broadcast.NewScheduler(t, tracker, clock.New(), m, t.LocalID(), logger)
}

func provideRetrier(tracker *delivery.Tracker, s *broadcast.Scheduler, logger *zap.Logger) *retry.Coordinator {
	return retry.NewCoordinator(tracker, s, logger)
}

func provideServer(
	p Params,
	tracker *delivery.Tracker,
	sched *broadcast.Scheduler,
	retrier *retry.Coordinator,
	cls *classify.Classifier,
	t mesh.Transport,
	b *bus.Bus,
	m *metrics.Metrics,
	logger *zap.Logger,
) *api.Server {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = session.SocketPath(p.SessionName)
	}
	return api.New(tracker, sched, retrier, cls, t, b, m, socketPath, logger)
}

func registerLifecycle(
	lc fx.Lifecycle,
	srv *api.Server,
	lk *lock.Lock,
	transport mesh.Transport,
	pump *mesh.Pump,
	tracker *delivery.Tracker,
	sched *broadcast.Scheduler,
	logger *zap.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Tracker first so no transport event is lost off the bus.
			tracker.Start(context.Background())
			pump.Start(context.Background())

			if err := srv.Start(); err != nil {
				return err
			}
			logger.Info("daemon started",
				zap.String("local_id", transport.LocalID()),
				zap.Int("peers", transport.PeerCount()))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn("api shutdown error", zap.Error(err))
			}
			sched.Stop()
			pump.Stop()
			tracker.Stop()
			if err := transport.Close(); err != nil {
				logger.Warn("transport close error", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
