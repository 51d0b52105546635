package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration for the ingestion engine.
type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Server     ServerConfig
	CORS       CORSConfig
	Tracing    TracingConfig
	Crypto     CryptoConfig
	Scheduler  SchedulerConfig
	HTTPClient HTTPClientConfig
	Elasticsearch ElasticsearchConfig
	RateLimit  RateLimitConfig
	Suppliers  map[string]SupplierConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Name        string
	Environment string // development, staging, production
	Version     string
	LogLevel    string
}

// ServerConfig holds the control-surface HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	TLS             TLSConfig
}

// TLSConfig holds TLS/HTTPS configuration.
type TLSConfig struct {
	Enabled  bool
	CertFile string
	KeyFile  string
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Database       string
	SSLMode        string // disable, require, verify-ca, verify-full
	MaxConnections int
	MaxIdleConns   int
	MaxLifetime    time.Duration
	MaxIdleTime    time.Duration
}

// RedisConfig holds Redis configuration, used for caching, the scheduler
// leader lease, and rate-limit signal state.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	Database int
	PoolSize int
	TTL      time.Duration
}

// CORSConfig holds CORS configuration for the control surface.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// TracingConfig holds distributed tracing configuration.
type TracingConfig struct {
	Enabled        bool
	ExporterType   string // jaeger, otlp, none
	JaegerEndpoint string
	OTLPEndpoint   string
	SamplingRate   float64
}

// CryptoConfig configures at-rest encryption of supplier credentials.
type CryptoConfig struct {
	// MasterKeyHex is a 32-byte key, hex encoded, used to seal SupplierAccount
	// auth_material with AEAD. Rotated out of band; never logged.
	MasterKeyHex string
}

// SchedulerConfig configures the cron-like job trigger and its leader lease.
type SchedulerConfig struct {
	Enabled      bool
	LeaseKey     string
	LeaseTTL     time.Duration
	PollInterval time.Duration
}

// HTTPClientConfig configures the shared rate-limited HTTP client defaults,
// overridable per supplier.
type HTTPClientConfig struct {
	DefaultRPS         float64
	MaxRetries         int
	BackoffCeiling     time.Duration
	ConnectTimeout     time.Duration
	TotalTimeout       time.Duration
	MaxInFlightPerHost int
}

// ElasticsearchConfig configures the best-effort search projection. When
// Enabled is false the projection is skipped entirely; Postgres remains the
// system of record regardless.
type ElasticsearchConfig struct {
	Enabled   bool
	Addresses []string
	Username  string
	Password  string
	CloudID   string
	APIKey    string
	IndexName string
}

// RateLimitConfig configures per-client rate limiting on the control
// surface (the collector's own HTTP API, not the outbound supplier
// clients, which HTTPClientConfig governs). Backed by Redis; disabled
// entirely when Redis isn't configured.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerWindow int
	WindowSize        time.Duration
}

// SupplierConfig holds static, non-secret per-supplier policy. Secrets live
// in SupplierAccount.auth_material, sealed at rest.
type SupplierConfig struct {
	Tag          string
	Kind         string // xml, graphql, rest
	BaseURL      string
	AuthURL      string // graphql only
	RPS          float64
	DefaultMode  string
	RecentWindow time.Duration
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("INGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "wholesale-ingest")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.loglevel", "info")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readtimeout", "15s")
	v.SetDefault("server.writetimeout", "15s")
	v.SetDefault("server.shutdowntimeout", "30s")
	v.SetDefault("server.tls.enabled", false)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.database", "ingest")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.maxconnections", 25)
	v.SetDefault("database.maxidleconns", 5)
	v.SetDefault("database.maxlifetime", "5m")
	v.SetDefault("database.maxidletime", "10m")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.database", 0)
	v.SetDefault("redis.poolsize", 10)
	v.SetDefault("redis.ttl", "1h")

	v.SetDefault("cors.allowedorigins", []string{"*"})
	v.SetDefault("cors.allowedmethods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowedheaders", []string{"Accept", "Authorization", "Content-Type"})
	v.SetDefault("cors.exposedheaders", []string{})
	v.SetDefault("cors.allowcredentials", false)
	v.SetDefault("cors.maxage", 300)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exportertype", "none")
	v.SetDefault("tracing.samplingrate", 0.1)

	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.requestsperwindow", 120)
	v.SetDefault("ratelimit.windowsize", "1m")

	v.SetDefault("crypto.masterkeyhex", "")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.leasekey", "scheduler_leader")
	v.SetDefault("scheduler.leasettl", "30s")
	v.SetDefault("scheduler.pollinterval", "5s")

	v.SetDefault("httpclient.defaultrps", 5.0)
	v.SetDefault("httpclient.maxretries", 3)
	v.SetDefault("httpclient.backoffceiling", "30s")
	v.SetDefault("httpclient.connecttimeout", "10s")
	v.SetDefault("httpclient.totaltimeout", "30s")
	v.SetDefault("httpclient.maxinflightperhost", 8)

	v.SetDefault("elasticsearch.enabled", false)
	v.SetDefault("elasticsearch.addresses", []string{"http://localhost:9200"})
	v.SetDefault("elasticsearch.indexname", "products")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validEnvs := map[string]bool{"development": true, "staging": true, "production": true}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.App.Environment == "production" {
		if c.Crypto.MasterKeyHex == "" {
			return fmt.Errorf("crypto master key must be set in production")
		}
		if !c.Server.TLS.Enabled {
			return fmt.Errorf("TLS must be enabled in production")
		}
	}

	return nil
}

// IsDevelopment returns true if running in development environment.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// DatabaseDSN returns the PostgreSQL connection string.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// RedisAddr returns the Redis address.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// ServerAddr returns the control-surface HTTP server address.
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
