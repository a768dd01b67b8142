package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Log        LogConfig
	HTTP       HTTPConfig
	Rendering  RenderingConfig
	Storage    StorageConfig
	Generation GenerationConfig
	Share      ShareConfig
	Cleanup    CleanupConfig
	Telemetry  TelemetryConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // postgres or sqlite
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	SQLitePath      string
	LogLevel        string // silent, error, warn, info
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings. Redis is only used for the
// cleanup lock, so it stays off unless enabled.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	ShutdownTimeout  time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	TrustedProxies   []string
}

// RenderingConfig selects and tunes the PDF engine and the render pool
type RenderingConfig struct {
	Engine          string // chromedp, wkhtmltopdf or stub
	Timeout         time.Duration
	ChromeRemoteURL string
	ChromePath      string
	NoSandbox       bool
	WkhtmltopdfPath string
	PoolSize        int
	MaxQueue        int
	AcquireTimeout  time.Duration
}

// StorageConfig holds artifact storage settings
type StorageConfig struct {
	OutputDir string
	S3        S3Config
}

// S3Config configures the optional S3 mirror of completed artifacts
type S3Config struct {
	Enabled         bool
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
	UsePathStyle    bool
}

// GenerationConfig holds job manager settings
type GenerationConfig struct {
	Workers          int
	QueueSize        int
	Retention        time.Duration
	DispatchInterval time.Duration
	DispatchBatch    int
}

// ShareConfig holds share link limits
type ShareConfig struct {
	MaxHours int
	// RatePerMinute limits public share downloads per client IP; 0 disables
	RatePerMinute int
	RateBurst     int
}

// CleanupConfig holds sweep settings
type CleanupConfig struct {
	Enabled     bool
	Interval    time.Duration
	BatchSize   int
	OrphanGrace time.Duration
	LockTTL     time.Duration
}

// TelemetryConfig holds OpenTelemetry export settings
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	Insecure          bool
	SamplingRatio     float64
	MetricsInterval   time.Duration
	LogsEnabled       bool
	DBTracing         bool
	SlowQuery         time.Duration
	Profiling         ProfilingConfig
}

// ProfilingConfig holds Pyroscope continuous profiling settings
type ProfilingConfig struct {
	Enabled              bool
	ServerAddress        string
	BasicAuthUser        string
	BasicAuthPassword    string
	SpanProfiles         bool
	MutexProfileFraction int
	BlockProfileRate     int
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with SHEETS_ prefix (e.g., SHEETS_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return load(v)
}

// LoadFile loads configuration from an explicit file path
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("SHEETS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("cleanup.enabled", true)
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.sampling_ratio", 1.0)
	v.SetDefault("share.rate_per_minute", 30)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			SQLitePath:      v.GetString("database.sqlite_path"),
			LogLevel:        v.GetString("database.log_level"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
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
			ShutdownTimeout:  v.GetDuration("http.shutdown_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
		},
		Rendering: RenderingConfig{
			Engine:          v.GetString("rendering.engine"),
			Timeout:         v.GetDuration("rendering.timeout"),
			ChromeRemoteURL: v.GetString("rendering.chrome_remote_url"),
			ChromePath:      v.GetString("rendering.chrome_path"),
			NoSandbox:       v.GetBool("rendering.no_sandbox"),
			WkhtmltopdfPath: v.GetString("rendering.wkhtmltopdf_path"),
			PoolSize:        v.GetInt("rendering.pool_size"),
			MaxQueue:        v.GetInt("rendering.max_queue"),
			AcquireTimeout:  v.GetDuration("rendering.acquire_timeout"),
		},
		Storage: StorageConfig{
			OutputDir: v.GetString("storage.output_dir"),
			S3: S3Config{
				Enabled:         v.GetBool("storage.s3.enabled"),
				Endpoint:        v.GetString("storage.s3.endpoint"),
				Region:          v.GetString("storage.s3.region"),
				Bucket:          v.GetString("storage.s3.bucket"),
				AccessKeyID:     v.GetString("storage.s3.access_key_id"),
				SecretAccessKey: v.GetString("storage.s3.secret_access_key"),
				Prefix:          v.GetString("storage.s3.prefix"),
				UsePathStyle:    v.GetBool("storage.s3.use_path_style"),
			},
		},
		Generation: GenerationConfig{
			Workers:          v.GetInt("generation.workers"),
			QueueSize:        v.GetInt("generation.queue_size"),
			Retention:        v.GetDuration("generation.retention"),
			DispatchInterval: v.GetDuration("generation.dispatch_interval"),
			DispatchBatch:    v.GetInt("generation.dispatch_batch"),
		},
		Share: ShareConfig{
			MaxHours:      v.GetInt("share.max_hours"),
			RatePerMinute: v.GetInt("share.rate_per_minute"),
			RateBurst:     v.GetInt("share.rate_burst"),
		},
		Cleanup: CleanupConfig{
			Enabled:     v.GetBool("cleanup.enabled"),
			Interval:    v.GetDuration("cleanup.interval"),
			BatchSize:   v.GetInt("cleanup.batch_size"),
			OrphanGrace: v.GetDuration("cleanup.orphan_grace"),
			LockTTL:     v.GetDuration("cleanup.lock_ttl"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			Insecure:          v.GetBool("telemetry.insecure"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTracing:         v.GetBool("telemetry.db_tracing"),
			SlowQuery:         v.GetDuration("telemetry.slow_query"),
			Profiling: ProfilingConfig{
				Enabled:              v.GetBool("telemetry.profiling.enabled"),
				ServerAddress:        v.GetString("telemetry.profiling.server_address"),
				BasicAuthUser:        v.GetString("telemetry.profiling.basic_auth_user"),
				BasicAuthPassword:    v.GetString("telemetry.profiling.basic_auth_password"),
				SpanProfiles:         v.GetBool("telemetry.profiling.span_profiles"),
				MutexProfileFraction: v.GetInt("telemetry.profiling.mutex_profile_fraction"),
				BlockProfileRate:     v.GetInt("telemetry.profiling.block_profile_rate"),
			},
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "sheets-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
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
		cfg.Database.DBName = "sheets"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "./data/sheets.db"
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
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
	// Downloads stream whole PDFs, so writes get more room than reads.
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 60 * time.Second
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
		cfg.HTTP.MaxBodySize = 1 << 20
	}

	if cfg.Rendering.Engine == "" {
		cfg.Rendering.Engine = "chromedp"
	}
	if cfg.Rendering.Timeout == 0 {
		cfg.Rendering.Timeout = 30 * time.Second
	}
	if cfg.Rendering.PoolSize == 0 {
		cfg.Rendering.PoolSize = 5
	}
	if cfg.Rendering.MaxQueue == 0 {
		cfg.Rendering.MaxQueue = 20
	}
	if cfg.Rendering.AcquireTimeout == 0 {
		cfg.Rendering.AcquireTimeout = 60 * time.Second
	}

	if cfg.Storage.OutputDir == "" {
		cfg.Storage.OutputDir = "./data/sheets"
	}
	if cfg.Storage.S3.Region == "" {
		cfg.Storage.S3.Region = "us-east-1"
	}

	if cfg.Generation.Workers == 0 {
		cfg.Generation.Workers = 5
	}
	if cfg.Generation.QueueSize == 0 {
		cfg.Generation.QueueSize = 100
	}
	if cfg.Generation.Retention == 0 {
		cfg.Generation.Retention = 7 * 24 * time.Hour
	}
	if cfg.Generation.DispatchInterval == 0 {
		cfg.Generation.DispatchInterval = time.Minute
	}
	if cfg.Generation.DispatchBatch == 0 {
		cfg.Generation.DispatchBatch = 50
	}

	if cfg.Share.MaxHours == 0 {
		cfg.Share.MaxHours = 720
	}
	if cfg.Share.RateBurst == 0 {
		cfg.Share.RateBurst = 10
	}

	if cfg.Cleanup.Interval == 0 {
		cfg.Cleanup.Interval = time.Hour
	}
	if cfg.Cleanup.BatchSize == 0 {
		cfg.Cleanup.BatchSize = 100
	}
	if cfg.Cleanup.OrphanGrace == 0 {
		cfg.Cleanup.OrphanGrace = 24 * time.Hour
	}
	if cfg.Cleanup.LockTTL == 0 {
		cfg.Cleanup.LockTTL = 10 * time.Minute
	}

	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
	if cfg.Telemetry.SlowQuery == 0 {
		cfg.Telemetry.SlowQuery = 200 * time.Millisecond
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
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

	switch c.Rendering.Engine {
	case "chromedp", "wkhtmltopdf", "stub":
	default:
		return fmt.Errorf("rendering.engine must be chromedp, wkhtmltopdf or stub, got %q", c.Rendering.Engine)
	}
	if c.Rendering.Timeout < 0 || c.Rendering.AcquireTimeout < 0 {
		return fmt.Errorf("rendering timeouts cannot be negative")
	}
	if c.Rendering.PoolSize < 0 {
		return fmt.Errorf("rendering.pool_size cannot be negative")
	}
	if c.Rendering.MaxQueue < -1 {
		return fmt.Errorf("rendering.max_queue must be -1 (no queue) or more")
	}

	if c.Generation.Workers < 0 || c.Generation.QueueSize < 0 {
		return fmt.Errorf("generation.workers and generation.queue_size cannot be negative")
	}
	if c.Generation.Retention < time.Hour {
		return fmt.Errorf("generation.retention must be at least 1h, got %s", c.Generation.Retention)
	}
	if c.Share.MaxHours < 1 {
		return fmt.Errorf("share.max_hours must be at least 1")
	}
	if c.Share.RatePerMinute < 0 {
		return fmt.Errorf("share.rate_per_minute cannot be negative")
	}
	if c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0 and 1, got %v", c.Telemetry.SamplingRatio)
	}
	if c.Telemetry.Profiling.Enabled && c.Telemetry.Profiling.ServerAddress == "" {
		return fmt.Errorf("telemetry.profiling.server_address is required when profiling is enabled")
	}
	if c.Cleanup.Interval < time.Minute {
		return fmt.Errorf("cleanup.interval must be at least 1m, got %s", c.Cleanup.Interval)
	}

	if c.Storage.S3.Enabled && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("storage.s3.bucket is required when the S3 mirror is enabled")
	}

	if c.App.Env == "production" {
		if c.Database.Driver == "postgres" {
			if c.Database.Password == "" {
				return fmt.Errorf("database.password is required in production")
			}
			if c.Database.SSLMode == "disable" {
				return fmt.Errorf("database.sslmode cannot be 'disable' in production")
			}
		}
		if c.Rendering.Engine == "stub" {
			return fmt.Errorf("rendering.engine=stub is not allowed in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
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

// Addr returns host:port for the redis client
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
