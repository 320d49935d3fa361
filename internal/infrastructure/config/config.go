package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// MinLeaseTTL is the shortest sync lease the renewal loop can keep alive
const MinLeaseTTL = 3 * time.Second

// Config holds all application configuration
type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Log         LogConfig
	HTTP        HTTPConfig
	Marketplace MarketplaceConfig
	Telemetry   TelemetryConfig
	Profiling   ProfilingConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns the host:port address
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxHeaderBytes  int
	MaxBodySize     int64
	TrustedProxies  []string
}

// MarketplaceConfig holds marketplace sync settings
type MarketplaceConfig struct {
	SyncEnabled         bool
	SyncIntervalMinutes int           // ERP_MARKETPLACE_SYNC_INTERVAL_MINUTES
	ChannelTimeout      time.Duration // upper bound for one channel's sync, 0 disables
	HTTPTimeout         time.Duration // per-request timeout for marketplace APIs
	InitialLookback     time.Duration // window for a channel's first sync
	LookbackOverlap     time.Duration // re-fetch overlap before last_sync_at
	PageSize            int

	// Outbound throttling per adapter (requests per second, 0 disables)
	BigCommerceRequestsPerSecond float64
	AmazonRequestsPerSecond      float64

	// Endpoint overrides, used for sandboxes
	BigCommerceAPIURL string
	AmazonEndpoint    string
	AmazonTokenURL    string

	// Cross-instance single-flight lease in Redis
	LeaseEnabled bool
	LeaseKey     string
	LeaseTTL     time.Duration
}

// SyncInterval returns the sync interval as a duration
func (m MarketplaceConfig) SyncInterval() time.Duration {
	return time.Duration(m.SyncIntervalMinutes) * time.Minute
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled            bool          // Whether to export metrics
	TracingEnabled     bool          // Whether to export traces (HTTP, sync passes, SQL)
	LogsEnabled        bool          // Whether to bridge zap logs to the collector
	CollectorEndpoint  string        // OTEL Collector endpoint (e.g., "localhost:4317")
	ServiceName        string        // Service name for the telemetry resource
	Insecure           bool          // Use insecure (non-TLS) connection (development only)
	ExportInterval     time.Duration // Periodic reader export interval
	SamplingRatio      float64       // Trace sampling ratio in [0, 1]
	SlowQueryThreshold time.Duration // SQL spans slower than this are flagged
}

// ProfilingConfig holds Pyroscope continuous profiling configuration
type ProfilingConfig struct {
	Enabled           bool
	ServerAddress     string   // e.g. "http://pyroscope:4040"
	ApplicationName   string   // defaults to the telemetry service name
	BasicAuthUser     string   // Grafana Cloud only
	BasicAuthPassword string   // Grafana Cloud only
	ProfileTypes      []string // empty means cpu and memory profiles
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with ERP_ prefix (e.g., ERP_MARKETPLACE_SYNC_INTERVAL_MINUTES)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	// Set config file settings
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	// Enable environment variable override
	v.SetEnvPrefix("ERP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Booleans that default to true cannot be told apart from "unset" after GetBool
	v.SetDefault("marketplace.sync_enabled", true)
	v.SetDefault("telemetry.sampling_ratio", 1.0)

	cfg := fromViper(v)

	// Apply defaults for empty values
	applyDefaults(cfg)

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// fromViper builds the config struct from resolved viper keys
func fromViper(v *viper.Viper) *Config {
	return &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:     v.GetDuration("http.read_timeout"),
			WriteTimeout:    v.GetDuration("http.write_timeout"),
			IdleTimeout:     v.GetDuration("http.idle_timeout"),
			ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),
			MaxHeaderBytes:  v.GetInt("http.max_header_bytes"),
			MaxBodySize:     v.GetInt64("http.max_body_size"),
			TrustedProxies:  v.GetStringSlice("http.trusted_proxies"),
		},
		Marketplace: MarketplaceConfig{
			SyncEnabled:                  v.GetBool("marketplace.sync_enabled"),
			SyncIntervalMinutes:          v.GetInt("marketplace.sync_interval_minutes"),
			ChannelTimeout:               v.GetDuration("marketplace.channel_timeout"),
			HTTPTimeout:                  v.GetDuration("marketplace.http_timeout"),
			InitialLookback:              v.GetDuration("marketplace.initial_lookback"),
			LookbackOverlap:              v.GetDuration("marketplace.lookback_overlap"),
			PageSize:                     v.GetInt("marketplace.page_size"),
			BigCommerceRequestsPerSecond: v.GetFloat64("marketplace.bigcommerce_requests_per_second"),
			AmazonRequestsPerSecond:      v.GetFloat64("marketplace.amazon_requests_per_second"),
			BigCommerceAPIURL:            v.GetString("marketplace.bigcommerce_api_url"),
			AmazonEndpoint:               v.GetString("marketplace.amazon_endpoint"),
			AmazonTokenURL:               v.GetString("marketplace.amazon_token_url"),
			LeaseEnabled:                 v.GetBool("marketplace.lease_enabled"),
			LeaseKey:                     v.GetString("marketplace.lease_key"),
			LeaseTTL:                     v.GetDuration("marketplace.lease_ttl"),
		},
		Telemetry: TelemetryConfig{
			Enabled:            v.GetBool("telemetry.enabled"),
			TracingEnabled:     v.GetBool("telemetry.tracing_enabled"),
			LogsEnabled:        v.GetBool("telemetry.logs_enabled"),
			CollectorEndpoint:  v.GetString("telemetry.collector_endpoint"),
			ServiceName:        v.GetString("telemetry.service_name"),
			Insecure:           v.GetBool("telemetry.insecure"),
			ExportInterval:     v.GetDuration("telemetry.export_interval"),
			SamplingRatio:      v.GetFloat64("telemetry.sampling_ratio"),
			SlowQueryThreshold: v.GetDuration("telemetry.slow_query_threshold"),
		},
		Profiling: ProfilingConfig{
			Enabled:           v.GetBool("profiling.enabled"),
			ServerAddress:     v.GetString("profiling.server_address"),
			ApplicationName:   v.GetString("profiling.application_name"),
			BasicAuthUser:     v.GetString("profiling.basic_auth_user"),
			BasicAuthPassword: v.GetString("profiling.basic_auth_password"),
			ProfileTypes:      v.GetStringSlice("profiling.profile_types"),
		},
	}
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "marketsync"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "marketsync"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 2
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	// a manual trigger holds the request open for the whole pass
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Minute
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 30 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB
	}
	if cfg.Marketplace.SyncIntervalMinutes == 0 {
		cfg.Marketplace.SyncIntervalMinutes = 15
	}
	if cfg.Marketplace.ChannelTimeout == 0 {
		cfg.Marketplace.ChannelTimeout = 10 * time.Minute
	}
	if cfg.Marketplace.HTTPTimeout == 0 {
		cfg.Marketplace.HTTPTimeout = 30 * time.Second
	}
	if cfg.Marketplace.InitialLookback == 0 {
		cfg.Marketplace.InitialLookback = 30 * 24 * time.Hour
	}
	if cfg.Marketplace.LookbackOverlap == 0 {
		cfg.Marketplace.LookbackOverlap = 5 * time.Minute
	}
	if cfg.Marketplace.PageSize == 0 {
		cfg.Marketplace.PageSize = 100
	}
	if cfg.Marketplace.BigCommerceRequestsPerSecond == 0 {
		cfg.Marketplace.BigCommerceRequestsPerSecond = 5
	}
	if cfg.Marketplace.AmazonRequestsPerSecond == 0 {
		cfg.Marketplace.AmazonRequestsPerSecond = 0.5
	}
	if cfg.Marketplace.LeaseKey == "" {
		cfg.Marketplace.LeaseKey = "marketsync:sync:lease"
	}
	// the lease must outlive a full pass or a second instance could start mid-pass
	if cfg.Marketplace.LeaseTTL == 0 {
		cfg.Marketplace.LeaseTTL = 30 * time.Minute
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317" // Default gRPC endpoint
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "marketsync"
	}
	if cfg.Telemetry.ExportInterval == 0 {
		cfg.Telemetry.ExportInterval = 60 * time.Second
	}
	if cfg.Telemetry.SlowQueryThreshold == 0 {
		cfg.Telemetry.SlowQueryThreshold = 200 * time.Millisecond
	}
	if cfg.Profiling.ApplicationName == "" {
		cfg.Profiling.ApplicationName = cfg.Telemetry.ServiceName
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	// Validate connection pool settings
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Marketplace.SyncIntervalMinutes < 1 {
		return fmt.Errorf("marketplace.sync_interval_minutes must be at least 1, got %d", c.Marketplace.SyncIntervalMinutes)
	}
	if c.Marketplace.ChannelTimeout < 0 {
		return fmt.Errorf("marketplace.channel_timeout cannot be negative")
	}
	if c.Marketplace.PageSize < 1 {
		return fmt.Errorf("marketplace.page_size must be positive")
	}
	if c.Marketplace.LookbackOverlap < 0 {
		return fmt.Errorf("marketplace.lookback_overlap cannot be negative")
	}
	// the lease is renewed every lease_ttl/3 while a pass runs
	if c.Marketplace.LeaseEnabled && c.Marketplace.LeaseTTL < MinLeaseTTL {
		return fmt.Errorf("marketplace.lease_ttl (%s) must be at least %s",
			c.Marketplace.LeaseTTL, MinLeaseTTL)
	}

	if c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0 and 1, got %g", c.Telemetry.SamplingRatio)
	}

	if c.Profiling.Enabled && c.Profiling.ServerAddress == "" {
		return fmt.Errorf("profiling.server_address is required when profiling is enabled")
	}

	// Production-specific validations
	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
