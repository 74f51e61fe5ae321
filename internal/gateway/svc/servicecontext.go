package svc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aetherflow/lobby/internal/gateway/config"
	"github.com/aetherflow/lobby/internal/gateway/metrics"
	"github.com/aetherflow/lobby/internal/gateway/tracing"
	"github.com/aetherflow/lobby/internal/gateway/websocket"
	"github.com/aetherflow/lobby/internal/lobby"
	"github.com/aetherflow/lobby/internal/online"
	"github.com/aetherflow/lobby/internal/world"
)

// ServiceContext holds every long-lived component of the gateway
type ServiceContext struct {
	Config           config.Config
	Logger           *zap.Logger
	Tracer           *tracing.Tracer
	Metrics          *metrics.Metrics
	MetricsRegistry  *prometheus.Registry
	MetricsCollector *metrics.Collector
	WSServer         *websocket.Server

	Registry   online.Registry
	Guard      *online.Guard
	Loop       *lobby.Loop
	Online     *online.Subsystem
	World      *world.World
	Controller *lobby.Controller

	metricsServer *http.Server
	stopLoop      context.CancelFunc
	loopDone      chan struct{}
}

// NewServiceContext builds the gateway. Nothing runs until Start.
func NewServiceContext(c config.Config) (*ServiceContext, error) {
	logger, err := NewLogger(c.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	tracer, err := tracing.NewTracer(&tracing.Config{
		Enable:       c.Tracing.Enable,
		ServiceName:  c.Tracing.ServiceName,
		Endpoint:     c.Tracing.Endpoint,
		Exporter:     c.Tracing.Exporter,
		SampleRate:   c.Tracing.SampleRate,
		Environment:  c.Tracing.Environment,
		BatchTimeout: c.Tracing.BatchTimeout,
		MaxQueueSize: c.Tracing.MaxQueueSize,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("tracing initialization failed: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics("lobby", "gateway", reg)

	registry, err := NewRegistry(c, logger)
	if err != nil {
		return nil, err
	}

	guard := online.NewGuard(online.GuardConfig{
		MaxFailures: c.Online.Breaker.MaxFailures,
		OpenTimeout: c.Online.Breaker.OpenTimeout,
		OnStateChange: func(from, to online.GuardState) {
			m.SetGuardState(to)
		},
	}, logger)

	loop := lobby.NewLoop(c.Lobby.QueueSize, logger.Named("loop"))

	subsystem, err := online.NewSubsystem(&online.Config{
		Registry:    registry,
		Dispatcher:  loop,
		Guard:       guard,
		Tracer:      tracer.Tracer(),
		Observer:    m,
		Logger:      logger.Named("online"),
		HostAddr:    c.Online.HostAddr,
		CallTimeout: c.Online.CallTimeout,
	})
	if err != nil {
		_ = registry.Close()
		return nil, fmt.Errorf("failed to create session backend: %w", err)
	}

	wsServer := websocket.NewServer(logger.Named("ws"), m, c.WebSocket.AllowedOrigins)
	hub := wsServer.Hub()

	w := world.New(&world.Config{
		Source:          subsystem,
		SessionName:     lobby.SessionName(c.Lobby.GameSessionName),
		IdleContext:     c.Lobby.IdleContext,
		RefreshInterval: c.Online.RosterInterval,
		Logger:          logger.Named("world"),
		OnTravel:        hub.OnTravel,
	})

	var player lobby.PlayerLocator
	if c.Lobby.LocalUserID != "" {
		player = lobby.StaticPlayer(lobby.LocalPlayer(c.Lobby.LocalUserID))
	}

	controller := lobby.NewController(&lobby.Config{
		Backend:         subsystem,
		Notifier:        lobby.Notifiers{hub, lobby.NewLogNotifier(logger.Named("notify"))},
		Traveler:        w,
		Roster:          w,
		Player:          player,
		Observer:        m,
		Logger:          logger.Named("lobby"),
		Debug:           c.Lobby.Debug,
		GameSessionName: lobby.SessionName(c.Lobby.GameSessionName),
		IdleContext:     c.Lobby.IdleContext,
		LAN:             c.Lobby.LAN,
		Presence:        c.Lobby.Presence,
	})

	// notifier callbacks run on the loop, so the controller can be read directly
	hub.SetStateSource(controller.State)

	collector := metrics.NewCollector(m, logger.Named("collector"), registry.Count, metrics.DefaultCollectInterval)

	s := &ServiceContext{
		Config:           c,
		Logger:           logger,
		Tracer:           tracer,
		Metrics:          m,
		MetricsRegistry:  reg,
		MetricsCollector: collector,
		WSServer:         wsServer,
		Registry:         registry,
		Guard:            guard,
		Loop:             loop,
		Online:           subsystem,
		World:            w,
		Controller:       controller,
		loopDone:         make(chan struct{}),
	}
	wsServer.SetStateQuery(s.State)

	if c.Metrics.Enable {
		mux := http.NewServeMux()
		mux.Handle(c.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		s.metricsServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", c.Metrics.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	logger.Info("Service context initialized",
		zap.String("registry", c.Online.Registry),
		zap.String("session_name", c.Lobby.GameSessionName),
		zap.String("local_user", c.Lobby.LocalUserID),
		zap.Bool("lan", c.Lobby.LAN))

	return s, nil
}

// NewLogger builds the zap logger from configuration
func NewLogger(c config.LoggerConfig) (*zap.Logger, error) {
	var zc zap.Config
	if c.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	if c.Level != "" {
		level, err := zap.ParseAtomicLevel(c.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = level
	}

	return zc.Build()
}

// NewRegistry opens the advertisement store named by Online.Registry
func NewRegistry(c config.Config, logger *zap.Logger) (online.Registry, error) {
	switch c.Online.Registry {
	case "", "memory":
		return online.NewMemoryRegistry(), nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		})
		registry, err := online.NewRedisRegistry(&online.RedisRegistryConfig{
			Client: client,
			Logger: logger.Named("redis"),
			TTL:    c.Online.AdvertisementTTL,
		})
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return registry, nil

	case "etcd":
		client, err := online.NewEtcdClient(&online.EtcdConfig{
			Endpoints:   c.Etcd.Endpoints,
			DialTimeout: c.Etcd.DialTimeout,
			Username:    c.Etcd.Username,
			Password:    c.Etcd.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("etcd initialization failed: %w", err)
		}
		registry, err := online.NewEtcdRegistry(&online.EtcdRegistryConfig{
			Client: client,
			Logger: logger.Named("etcd"),
			Prefix: c.Etcd.Prefix,
			TTL:    c.Etcd.LeaseTTL,
		})
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return registry, nil

	default:
		return nil, fmt.Errorf("unknown registry: %s", c.Online.Registry)
	}
}

// Start runs the lobby loop, the collector and the metrics endpoint
func (s *ServiceContext) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopLoop = cancel

	go func() {
		defer close(s.loopDone)
		if err := s.Loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.Logger.Error("Lobby loop stopped", zap.Error(err))
		}
	}()

	s.MetricsCollector.Start()

	if s.metricsServer != nil {
		go func() {
			s.Logger.Info("Metrics endpoint listening", zap.String("addr", s.metricsServer.Addr))
			if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.Logger.Error("Metrics endpoint failed", zap.Error(err))
			}
		}()
	}
}

// Do runs fn against the controller on the lobby loop
func (s *ServiceContext) Do(ctx context.Context, fn func(c *lobby.Controller)) error {
	return s.Loop.Do(ctx, func() { fn(s.Controller) })
}

// State reads the connection state from outside the loop
func (s *ServiceContext) State(ctx context.Context) (lobby.ConnectionState, error) {
	var state lobby.ConnectionState
	err := s.Do(ctx, func(c *lobby.Controller) {
		state = c.State()
	})
	return state, err
}

// Close leaves the current session and releases everything in reverse
// order of construction
func (s *ServiceContext) Close() {
	if s.stopLoop != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := s.Do(ctx, func(c *lobby.Controller) {
			if c.State().Connected() {
				_ = c.DestroySession()
			}
		})
		cancel()
		if err != nil {
			s.Logger.Warn("Failed to leave session on shutdown", zap.Error(err))
		}

		s.stopLoop()
		<-s.loopDone
	}

	s.MetricsCollector.Stop()
	s.World.Close()
	s.WSServer.Close()

	if err := s.Online.Close(); err != nil {
		s.Logger.Warn("Failed to withdraw advertisements", zap.Error(err))
	}
	if err := s.Registry.Close(); err != nil {
		s.Logger.Warn("Failed to close registry", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(shutdownCtx); err != nil {
			s.Logger.Warn("Failed to stop metrics endpoint", zap.Error(err))
		}
	}
	if err := s.Tracer.Shutdown(shutdownCtx); err != nil {
		s.Logger.Error("Failed to shutdown tracer", zap.Error(err))
	}

	_ = s.Logger.Sync()
}
