// Package config loads agent and gateway configuration.
//
// Values are layered with koanf: struct defaults, then an optional YAML file,
// then environment variables. Environment variables use the COURIER_ prefix
// and the first underscore separates the section:
//
//	COURIER_TRACKING_POLL_INTERVAL=5s  -> tracking.poll_interval
//	COURIER_API_BASE_URL=https://...   -> api.base_url
package config

import (
	"time"

	"courier/internal/logging"
)

// AgentConfig holds all configuration for the driver-device agent.
type AgentConfig struct {
	API         APIConfig         `koanf:"api"`
	Tracking    TrackingConfig    `koanf:"tracking"`
	Location    LocationConfig    `koanf:"location"`
	Orders      OrdersConfig      `koanf:"orders"`
	Credentials CredentialsConfig `koanf:"credentials"`
	Status      StatusConfig      `koanf:"status"`
	Log         logging.Config    `koanf:"log"`
}

// APIConfig holds the backend transport configuration.
type APIConfig struct {
	BaseURL            string        `koanf:"base_url"`
	Timeout            time.Duration `koanf:"timeout"`
	DedupWindow        time.Duration `koanf:"dedup_window"`
	MaxRefreshAttempts int           `koanf:"max_refresh_attempts"`
}

// TrackingConfig holds tracking engine and reconciler configuration.
type TrackingConfig struct {
	PollInterval         time.Duration `koanf:"poll_interval"`
	SafetyNetInterval    time.Duration `koanf:"safety_net_interval"`
	Precision            string        `koanf:"precision"`
	EmptyOrdersPolicy    string        `koanf:"empty_orders_policy"`
	PlaceholderOrderID   string        `koanf:"placeholder_order_id"`
	StopOnPermissionLoss bool          `koanf:"stop_on_permission_loss"`
}

// LocationConfig holds sampler and provider configuration.
type LocationConfig struct {
	FixTimeout  time.Duration `koanf:"fix_timeout"`
	MaxFixAge   time.Duration `koanf:"max_fix_age"`
	Providers   []string      `koanf:"providers"`
	GPSDAddr    string        `koanf:"gpsd_addr"`
	ReplayFile  string        `koanf:"replay_file"`
	Permission  string        `koanf:"permission"`
	ConsentFile string        `koanf:"consent_file"`
}

// OrdersConfig holds order-list polling configuration.
type OrdersConfig struct {
	PollInterval time.Duration `koanf:"poll_interval"`
}

// CredentialsConfig holds credential storage configuration.
type CredentialsConfig struct {
	Path string `koanf:"path"`
}

// StatusConfig holds the local status API configuration.
type StatusConfig struct {
	Addr string `koanf:"addr"`
}

// ServerConfig holds all configuration for the telemetry gateway.
type ServerConfig struct {
	Server   HTTPConfig     `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	NewRelic NewRelicConfig `koanf:"newrelic"`
	Auth     AuthConfig     `koanf:"auth"`
	Log      logging.Config `koanf:"log"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port         string        `koanf:"port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string `koanf:"host"`
	Port     string `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	DBName   string `koanf:"dbname"`
	SSLMode  string `koanf:"sslmode"`

	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`

	// Migrate applies the embedded schema migrations at startup.
	Migrate bool `koanf:"migrate"`
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string `koanf:"app_name"`
	LicenseKey string `koanf:"license_key"`
	Enabled    bool   `koanf:"enabled"`
}

// AuthConfig holds token issuing configuration.
type AuthConfig struct {
	JWTSecret  string        `koanf:"jwt_secret"`
	AccessTTL  time.Duration `koanf:"access_ttl"`
	RefreshTTL time.Duration `koanf:"refresh_ttl"`
}

func defaultAgentConfig() *AgentConfig {
	return &AgentConfig{
		API: APIConfig{
			BaseURL:            "http://localhost:8080",
			Timeout:            30 * time.Second,
			DedupWindow:        time.Second,
			MaxRefreshAttempts: 3,
		},
		Tracking: TrackingConfig{
			PollInterval:         5 * time.Second,
			SafetyNetInterval:    5 * time.Second,
			Precision:            "balanced",
			EmptyOrdersPolicy:    "skip",
			PlaceholderOrderID:   "unassigned",
			StopOnPermissionLoss: true,
		},
		Location: LocationConfig{
			FixTimeout: 15 * time.Second,
			MaxFixAge:  10 * time.Second,
			Providers:  []string{"gpsd", "replay"},
			GPSDAddr:   "localhost:2947",
			Permission: "granted",
		},
		Orders: OrdersConfig{
			PollInterval: 15 * time.Second,
		},
		Credentials: CredentialsConfig{
			Path: "courier-session.json",
		},
		Status: StatusConfig{
			Addr: "127.0.0.1:8765",
		},
		Log: logging.DefaultConfig(),
	}
}

func defaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Server: HTTPConfig{
			Port:         "8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     "5432",
			User:     "postgres",
			Password: "postgres",
			DBName:   "courier",
			SSLMode:  "disable",

			MaxOpenConns:    50,
			MaxIdleConns:    25,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			Migrate:         true,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		NewRelic: NewRelicConfig{
			AppName: "courier-gateway",
		},
		Auth: AuthConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		},
		Log: logging.DefaultConfig(),
	}
}
