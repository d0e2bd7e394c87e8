package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/flashcue-core/internal/api"
	"github.com/nerrad567/flashcue-core/internal/bridges/obs"
	"github.com/nerrad567/flashcue-core/internal/bridges/twitch"
	"github.com/nerrad567/flashcue-core/internal/flash"
	"github.com/nerrad567/flashcue-core/internal/infrastructure/config"
	"github.com/nerrad567/flashcue-core/internal/infrastructure/database"
	"github.com/nerrad567/flashcue-core/internal/infrastructure/logging"
	"github.com/nerrad567/flashcue-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/flashcue-core/internal/session"
	"github.com/nerrad567/flashcue-core/internal/sidecar"
	"github.com/nerrad567/flashcue-core/internal/subscription"
	"github.com/nerrad567/flashcue-core/internal/trigger"
)

// Bus is the MQTT surface shared by both bridges. *mqtt.Client satisfies it.
type Bus interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Deps holds what App needs from the outside world.
type Deps struct {
	Config  *config.Config
	Logger  *logging.Logger
	DB      *database.DB
	Bus     Bus
	Points  flash.PointWriter // optional; nil disables flash telemetry
	Broker  api.BrokerStatus  // optional; reported by /health
	Version string
}

// App owns every long-lived FlashCue component.
type App struct {
	cfg *config.Config
	log *logging.Logger

	Scene      *obs.Bridge
	Events     *twitch.Source
	Sessions   *session.Registry
	Conditions *subscription.Manager
	Executor   *flash.Executor
	Dispatcher *trigger.Dispatcher
	Hub        *api.Hub
	API        *api.Server
	Sidecars   *sidecar.Group

	cancel context.CancelFunc
}

// New builds the component graph. Nothing is started.
//
// Returns:
//   - *App: Wired application
//   - error: If a required dependency is missing
func New(deps Deps) (*App, error) {
	switch {
	case deps.Config == nil:
		return nil, errors.New("config is required")
	case deps.Logger == nil:
		return nil, errors.New("logger is required")
	case deps.DB == nil:
		return nil, errors.New("database is required")
	case deps.Bus == nil:
		return nil, errors.New("mqtt bus is required")
	}
	cfg, log := deps.Config, deps.Logger

	a := &App{cfg: cfg, log: log}

	sidecars, err := sidecar.NewGroup(sidecarConfigs(cfg.Sidecars))
	if err != nil {
		return nil, fmt.Errorf("configuring sidecars: %w", err)
	}
	sidecars.SetLogger(log.Component("sidecar"))
	a.Sidecars = sidecars

	a.Scene = obs.NewBridge(deps.Bus, obs.Options{
		RequestTimeout: cfg.Scene.RequestTimeout(),
		ConnectTimeout: cfg.Scene.ConnectTimeout(),
	})
	a.Scene.SetLogger(log.Component("obs"))

	a.Events = twitch.NewSource(deps.Bus)
	a.Events.SetLogger(log.Component("twitch"))

	a.Sessions = session.NewRegistry(session.NewSQLiteRepository(deps.DB.DB), a.Scene)
	a.Sessions.SetConnectTimeout(cfg.Scene.ConnectTimeout())
	a.Sessions.SetLogger(log.Component("session"))

	a.Conditions = subscription.NewManager(subscription.NewSQLiteRepository(deps.DB.DB), a.Events, cfg.Platform.BroadcasterID)
	a.Conditions.SetLogger(log.Component("subscription"))
	a.Conditions.SetMaxFlashTime(cfg.Triggers.MaxFlashTime())

	a.Hub = api.NewHub(cfg.WebSocket, log.Component("websocket"))

	recorder := flash.NewSQLiteRecorder(deps.DB.DB)
	a.Executor = flash.NewExecutor(a.Sessions, flash.Options{
		MaxFlashTime:       cfg.Triggers.MaxFlashTime(),
		MaxQueuePerElement: cfg.Triggers.MaxQueuePerElement,
	})
	a.Executor.SetLogger(log.Component("flash"))
	a.Executor.SetRecorder(recorder)
	a.Executor.SetBroadcaster(a.Hub)
	if deps.Points != nil {
		a.Executor.SetTelemetry(flash.NewPointTelemetry(deps.Points))
	}

	matcher := trigger.NewMatcher(cfg.Triggers.FlashDuration())
	matcher.SetLogger(log.Component("trigger"))
	a.Dispatcher = trigger.NewDispatcher(a.Sessions, a.Conditions, a.Executor, matcher, trigger.DispatcherOptions{
		ElementCacheTTL:    cfg.Triggers.ElementCacheTTL(),
		ElementCacheSize:   cfg.Triggers.ElementCacheSize,
		ListTimeout:        cfg.Scene.RequestTimeout(),
		MaxQueuePerSession: cfg.Triggers.DispatchQueuePerSession,
	})
	a.Dispatcher.SetLogger(log.Component("trigger"))
	a.Conditions.SetHandler(a.Dispatcher)

	a.Sessions.SetOnConnect(a.sessionConnected)
	a.Sessions.SetOnDisconnect(a.sessionDisconnected)

	srv, err := api.New(api.Deps{
		Config:        cfg.API,
		WS:            cfg.WebSocket,
		Logger:        log.Component("api"),
		Sessions:      a.Sessions,
		Conditions:    a.Conditions,
		Executor:      a.Executor,
		History:       recorder,
		MQTT:          deps.Broker,
		DB:            deps.DB.DB,
		Hub:           a.Hub,
		Sidecars:      a.Sidecars,
		FlashDuration: cfg.Triggers.FlashDuration(),
		Version:       deps.Version,
	})
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}
	a.API = srv

	return a, nil
}

// Start launches configured sidecars, loads persisted conditions, subscribes
// the scene bridge, starts the hub and API, and auto-connects targets when
// configured.
func (a *App) Start(ctx context.Context) error {
	var runCtx context.Context
	runCtx, a.cancel = context.WithCancel(ctx)

	if err := a.Sidecars.Start(runCtx); err != nil {
		return fmt.Errorf("starting sidecars: %w", err)
	}

	if err := a.Conditions.RefreshCache(ctx); err != nil {
		return fmt.Errorf("loading trigger conditions: %w", err)
	}
	if err := a.Scene.Start(); err != nil {
		return fmt.Errorf("starting scene bridge client: %w", err)
	}
	go a.Hub.Run(runCtx)

	if a.cfg.API.Enabled {
		if err := a.API.Start(runCtx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
	}

	if a.cfg.Scene.AutoConnect {
		n, err := a.Sessions.ConnectAll(ctx)
		if err != nil {
			a.log.Warn("auto-connect failed", "error", err)
		} else {
			a.log.Info("auto-connect complete", "connected", n)
		}
	}
	return nil
}

// Close stops components in dependency order. Flashes still in flight are
// cancelled while their sessions are alive so duplicates get cleaned up.
func (a *App) Close() error {
	var g errgroup.Group
	g.Go(a.API.Close)
	g.Go(func() error {
		a.Dispatcher.Close()
		a.Executor.Close()
		return nil
	})
	err := g.Wait()

	a.Sessions.Close()
	a.Conditions.Close()
	a.Scene.Stop()
	a.Sidecars.Stop()
	if a.cancel != nil {
		a.cancel()
	}
	return err
}

func sidecarConfigs(in []config.SidecarConfig) []sidecar.Config {
	out := make([]sidecar.Config, 0, len(in))
	for _, sc := range in {
		out = append(out, sidecar.Config{
			Name:             sc.Name,
			Command:          sc.Command,
			Env:              sc.Env,
			WorkDir:          sc.WorkDir,
			RestartOnFailure: sc.RestartOnFailure,
			RestartDelay:     time.Duration(sc.RestartDelay) * time.Second,
			MaxRestartDelay:  time.Duration(sc.MaxRestartDelay) * time.Second,
			MaxRestarts:      sc.MaxRestarts,
			StopTimeout:      time.Duration(sc.StopTimeout) * time.Second,
		})
	}
	return out
}

func (a *App) sessionConnected(id string) {
	if err := a.Conditions.Activate(context.Background(), id); err != nil {
		a.log.Session(id).Warn("arming platform subscriptions failed", "error", err)
	}
	payload := map[string]any{"id": id}
	if sess, err := a.Sessions.Get(id); err == nil {
		payload["session"] = sess.Info()
	}
	a.Hub.Broadcast(api.ChannelSessionConnected, payload)
}

func (a *App) sessionDisconnected(id string) {
	a.Conditions.Release(id)
	a.Dispatcher.InvalidateElements(id)
	a.Hub.Broadcast(api.ChannelSessionDisconnected, map[string]any{"id": id})
}
