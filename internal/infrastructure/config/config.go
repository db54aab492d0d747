package config

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App          AppConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Log          LogConfig
	HTTP         HTTPConfig
	Session      SessionConfig
	Subscription SubscriptionConfig
	Payment      PaymentConfig
	Storage      StorageConfig
	Telemetry    TelemetryConfig
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

// RedisConfig holds Redis connection settings.
// An empty host keeps catalog cache and sessions in process memory.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Enabled reports whether a Redis server is configured
func (r *RedisConfig) Enabled() bool {
	return r.Host != ""
}

// Addr returns host:port
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
}

// SessionConfig holds plan session settings
type SessionConfig struct {
	TTL        time.Duration // Idle lifetime of a plan session
	CookieName string
	HashKey    string // base64, signs the session cookie
	BlockKey   string // base64, optional, encrypts the session cookie
	Secure     bool
	Domain     string
	SameSite   string // strict, lax, none
}

// SubscriptionConfig holds the ordering rules
type SubscriptionConfig struct {
	Timezone              string   // IANA zone used to decide "today"
	ServiceablePostalCode string   // The only postal code deliveries go to
	StartDateHorizon      int      // Days of candidate start dates offered
	LookaheadDays         int      // Window searched for first deliveries per weekday
	Categories            []string // Catalog categories on sale
	Currency              string   // ISO 4217 code of catalog prices
	Language              string   // BCP 47 tag used to format amounts
	CatalogCacheTTL       time.Duration
}

// PaymentConfig holds payment gateway settings
type PaymentConfig struct {
	Provider       string // stripe, or empty to disable checkout
	StripeAPIKey   string
	StripeTestMode bool
	StripeTimeout  time.Duration

	// StripeWebhookSecret enables the webhook endpoint when set
	StripeWebhookSecret string
}

// StorageConfig holds the S3 order archive settings
type StorageConfig struct {
	Enabled         bool
	Endpoint        string // Custom endpoint for S3-compatible stores
	Region          string
	Bucket          string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)

	DBTracing          bool          // Trace GORM statements (otelgorm)
	DBTracingVariables bool          // Include bound query values in spans; leaks postal codes
	DBSlowQuery        time.Duration // Statements slower than this get a slow_query span event

	LogsEnabled bool // Export zap entries to the collector through the otelzap bridge

	ProfilerEnabled bool     // Push continuous profiles to Pyroscope
	ProfilerAddress string   // Pyroscope server, e.g. http://pyroscope:4040
	ProfilerTypes   []string // cpu, alloc_space, alloc_objects, inuse_space, inuse_objects, goroutines
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with BAKERY_ prefix (e.g., BAKERY_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("BAKERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := fromViper(v)
	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

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
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods: v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders: v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
		},
		Session: SessionConfig{
			TTL:        v.GetDuration("session.ttl"),
			CookieName: v.GetString("session.cookie_name"),
			HashKey:    v.GetString("session.hash_key"),
			BlockKey:   v.GetString("session.block_key"),
			Secure:     v.GetBool("session.secure"),
			Domain:     v.GetString("session.domain"),
			SameSite:   v.GetString("session.same_site"),
		},
		Subscription: SubscriptionConfig{
			Timezone:              v.GetString("subscription.timezone"),
			ServiceablePostalCode: v.GetString("subscription.serviceable_postal_code"),
			StartDateHorizon:      v.GetInt("subscription.start_date_horizon"),
			LookaheadDays:         v.GetInt("subscription.lookahead_days"),
			Categories:            v.GetStringSlice("subscription.categories"),
			Currency:              v.GetString("subscription.currency"),
			Language:              v.GetString("subscription.language"),
			CatalogCacheTTL:       v.GetDuration("subscription.catalog_cache_ttl"),
		},
		Payment: PaymentConfig{
			Provider:            v.GetString("payment.provider"),
			StripeAPIKey:        v.GetString("payment.stripe_api_key"),
			StripeTestMode:      v.GetBool("payment.stripe_test_mode"),
			StripeTimeout:       v.GetDuration("payment.stripe_timeout"),
			StripeWebhookSecret: v.GetString("payment.stripe_webhook_secret"),
		},
		Storage: StorageConfig{
			Enabled:         v.GetBool("storage.enabled"),
			Endpoint:        v.GetString("storage.endpoint"),
			Region:          v.GetString("storage.region"),
			Bucket:          v.GetString("storage.bucket"),
			Prefix:          v.GetString("storage.prefix"),
			AccessKeyID:     v.GetString("storage.access_key_id"),
			SecretAccessKey: v.GetString("storage.secret_access_key"),
			UsePathStyle:    v.GetBool("storage.use_path_style"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),

			DBTracing:          v.GetBool("telemetry.db_tracing"),
			DBTracingVariables: v.GetBool("telemetry.db_tracing_variables"),
			DBSlowQuery:        v.GetDuration("telemetry.db_slow_query"),
			LogsEnabled:        v.GetBool("telemetry.logs_enabled"),
			ProfilerEnabled:    v.GetBool("telemetry.profiler_enabled"),
			ProfilerAddress:    v.GetString("telemetry.profiler_address"),
			ProfilerTypes:      v.GetStringSlice("telemetry.profiler_types"),
		},
	}
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "bakery-backend"
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
		cfg.Database.DBName = "bakery"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host != "" && cfg.Redis.Port == 0 {
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
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB
	}
	// An empty origin list allows no cross-origin requests until configured.
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "X-Request-ID", "X-Plan-Session"}
	}
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = 2 * time.Hour
	}
	if cfg.Session.CookieName == "" {
		cfg.Session.CookieName = "plan_session"
	}
	if cfg.Session.SameSite == "" {
		cfg.Session.SameSite = "lax"
	}
	if cfg.Subscription.Timezone == "" {
		cfg.Subscription.Timezone = "Asia/Kolkata"
	}
	if cfg.Subscription.ServiceablePostalCode == "" {
		cfg.Subscription.ServiceablePostalCode = "560001"
	}
	if cfg.Subscription.StartDateHorizon == 0 {
		cfg.Subscription.StartDateHorizon = 30
	}
	if cfg.Subscription.LookaheadDays == 0 {
		cfg.Subscription.LookaheadDays = 21
	}
	if len(cfg.Subscription.Categories) == 0 {
		cfg.Subscription.Categories = []string{"Artisanal Breads", "Savouries"}
	}
	if cfg.Subscription.Currency == "" {
		cfg.Subscription.Currency = "INR"
	}
	if cfg.Subscription.Language == "" {
		cfg.Subscription.Language = "en-IN"
	}
	if cfg.Subscription.CatalogCacheTTL == 0 {
		cfg.Subscription.CatalogCacheTTL = 5 * time.Minute
	}
	if cfg.Payment.StripeTimeout == 0 {
		cfg.Payment.StripeTimeout = 30 * time.Second
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "ap-south-1"
	}
	if cfg.Storage.Prefix == "" {
		cfg.Storage.Prefix = "orders/"
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "bakery-backend"
	}
	if cfg.Telemetry.DBSlowQuery == 0 {
		cfg.Telemetry.DBSlowQuery = 200 * time.Millisecond
	}
	if len(cfg.Telemetry.ProfilerTypes) == 0 {
		cfg.Telemetry.ProfilerTypes = []string{"cpu", "alloc_space", "inuse_space", "goroutines"}
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
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

	if _, err := time.LoadLocation(c.Subscription.Timezone); err != nil {
		return fmt.Errorf("subscription.timezone %q is not a valid time zone: %w", c.Subscription.Timezone, err)
	}
	if c.Subscription.StartDateHorizon < 1 || c.Subscription.StartDateHorizon > 366 {
		return fmt.Errorf("subscription.start_date_horizon must be between 1 and 366, got %d", c.Subscription.StartDateHorizon)
	}
	if c.Subscription.LookaheadDays < 7 {
		return fmt.Errorf("subscription.lookahead_days must be at least 7, got %d", c.Subscription.LookaheadDays)
	}
	if len(c.Subscription.Currency) != 3 {
		return fmt.Errorf("subscription.currency must be an ISO 4217 code, got %q", c.Subscription.Currency)
	}

	switch c.Session.SameSite {
	case "strict", "lax", "none":
	default:
		return fmt.Errorf("session.same_site must be strict, lax or none, got %q", c.Session.SameSite)
	}
	if c.Session.SameSite == "none" && !c.Session.Secure {
		return fmt.Errorf("session.same_site=none requires session.secure=true")
	}
	if c.Session.HashKey != "" {
		if _, err := c.Session.DecodedKeys(); err != nil {
			return err
		}
	}

	switch c.Payment.Provider {
	case "":
	case "stripe":
		if c.Payment.StripeAPIKey == "" {
			return fmt.Errorf("payment.stripe_api_key is required when payment.provider is stripe")
		}
	default:
		return fmt.Errorf("unsupported payment.provider %q", c.Payment.Provider)
	}

	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required when storage is enabled")
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Session.HashKey == "" {
			return fmt.Errorf("session.hash_key is required in production")
		}
		if !c.Session.Secure {
			return fmt.Errorf("session.secure must be true in production (HTTPS required for secure cookies)")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	if c.Telemetry.ProfilerEnabled && c.Telemetry.ProfilerAddress == "" {
		return fmt.Errorf("telemetry.profiler_address is required when telemetry.profiler_enabled is set")
	}
	if c.App.Env == "production" && c.Telemetry.DBTracingVariables {
		return fmt.Errorf("telemetry.db_tracing_variables cannot be enabled in production (spans would carry customer addresses)")
	}

	return nil
}

// SessionKeys holds decoded cookie keys
type SessionKeys struct {
	Hash  []byte
	Block []byte
}

// DecodedKeys decodes the base64 cookie keys. The hash key must be at least 32 bytes;
// the block key, when set, must be 16, 24 or 32 bytes.
func (s *SessionConfig) DecodedKeys() (SessionKeys, error) {
	var keys SessionKeys
	hash, err := base64.StdEncoding.DecodeString(s.HashKey)
	if err != nil {
		return keys, fmt.Errorf("session.hash_key must be base64: %w", err)
	}
	if len(hash) < 32 {
		return keys, fmt.Errorf("session.hash_key must decode to at least 32 bytes")
	}
	keys.Hash = hash
	if s.BlockKey != "" {
		block, err := base64.StdEncoding.DecodeString(s.BlockKey)
		if err != nil {
			return keys, fmt.Errorf("session.block_key must be base64: %w", err)
		}
		switch len(block) {
		case 16, 24, 32:
		default:
			return keys, fmt.Errorf("session.block_key must decode to 16, 24 or 32 bytes")
		}
		keys.Block = block
	}
	return keys, nil
}

// Location loads the configured business time zone
func (s *SubscriptionConfig) Location() (*time.Location, error) {
	return time.LoadLocation(s.Timezone)
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
