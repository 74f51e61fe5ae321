package config

import (
	"time"

	"github.com/zeromicro/go-zero/rest"
)

// Config lobby gateway configuration
type Config struct {
	rest.RestConf

	// zap logger; Log in RestConf configures go-zero's own logx output
	Logger LoggerConfig `json:",optional"`

	// session controller
	Lobby LobbyConfig `json:",optional"`

	// session backend
	Online OnlineConfig `json:",optional"`

	// registry stores
	Redis RedisConfig `json:",optional"`
	Etcd  EtcdConfig  `json:",optional"`

	Metrics   MetricsConfig   `json:",optional"`
	Tracing   TracingConfig   `json:",optional"`
	RateLimit RateLimitConfig `json:",optional"`
	Cors      CorsConfig      `json:",optional"`
	WebSocket WebSocketConfig `json:",optional"`
}

// LoggerConfig zap logger configuration
type LoggerConfig struct {
	Level  string `json:",default=info,options=debug|info|warn|error"`
	Format string `json:",default=json,options=json|console"`
}

// LobbyConfig session controller configuration
type LobbyConfig struct {
	GameSessionName string `json:",default=GameSession"`
	IdleContext     string `json:",default=MainMenu"`
	LAN             bool   `json:",default=true"`
	Presence        bool   `json:",default=true"`
	MaxPlayers      int    `json:",default=4"`
	Debug           bool   `json:",default=false"`
	// LocalUserID is the identity of the local player
	LocalUserID string `json:",optional"`
	QueueSize   int    `json:",default=256"`
}

// OnlineConfig session backend configuration
type OnlineConfig struct {
	Registry         string        `json:",default=memory,options=memory|redis|etcd"`
	HostAddr         string        `json:",default=127.0.0.1:7777"`
	CallTimeout      time.Duration `json:",default=5s"`
	AdvertisementTTL time.Duration `json:",default=30m"`
	RosterInterval   time.Duration `json:",default=2s"`
	Breaker          BreakerConfig `json:",optional"`
}

// BreakerConfig registry circuit configuration
type BreakerConfig struct {
	MaxFailures uint32        `json:",default=5"`
	OpenTimeout time.Duration `json:",default=30s"`
}

// RedisConfig Redis registry configuration
type RedisConfig struct {
	Addr     string `json:",default=localhost:6379"`
	Password string `json:",optional"`
	DB       int    `json:",default=0"`
}

// EtcdConfig etcd registry configuration
type EtcdConfig struct {
	Endpoints   []string      `json:",optional"`
	DialTimeout time.Duration `json:",default=5s"`
	Username    string        `json:",optional"`
	Password    string        `json:",optional"`
	Prefix      string        `json:",default=/lobby/ads/"`
	LeaseTTL    time.Duration `json:",default=10s"`
}

// MetricsConfig prometheus endpoint configuration
type MetricsConfig struct {
	Enable bool   `json:",default=true"`
	Port   int    `json:",default=9091"`
	Path   string `json:",default=/metrics"`
}

// TracingConfig tracing configuration
type TracingConfig struct {
	Enable       bool    `json:",default=false"`
	ServiceName  string  `json:",default=lobby-gateway"`
	Endpoint     string  `json:",default=http://localhost:14268/api/traces"`
	Exporter     string  `json:",default=jaeger,options=jaeger|zipkin"`
	SampleRate   float64 `json:",default=1.0"`
	Environment  string  `json:",default=development"`
	BatchTimeout int     `json:",default=5"`
	MaxQueueSize int     `json:",default=2048"`
}

// RateLimitConfig rate limit configuration
type RateLimitConfig struct {
	Enable bool `json:",default=true"`
	Rate   int  `json:",default=100"` // requests per second
	Burst  int  `json:",default=200"`
}

// CorsConfig CORS configuration
type CorsConfig struct {
	Enable       bool     `json:",default=true"`
	AllowOrigins []string `json:",optional"`
}

// WebSocketConfig notification channel configuration
type WebSocketConfig struct {
	Path           string   `json:",default=/ws"`
	AllowedOrigins []string `json:",optional"`
}
