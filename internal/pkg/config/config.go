package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App           AppConfig
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	S3            S3Config
	Orchestration OrchestrationConfig
}

// OrchestrationConfig holds the tunables named in §6: pool sizing, grace
// windows, and TTLs shared by admission, the worker pool, the scheduler,
// and the stuck execution monitor.
type OrchestrationConfig struct {
	MinWorkers               int
	MaxWorkers               int
	WorkerMemoryThresholdMB  int
	StuckGraceSeconds        int
	CancelGraceSeconds       int
	PendingTTLSeconds        int
	SyncResultTTLSeconds     int
	SyncWaitExtraSeconds     int
	SchedulerTickSeconds     int
	StuckTickSeconds         int
	HeartbeatIntervalSeconds int
	HeartbeatTTLSeconds      int
	QueueSweepMaxAgeSeconds  int
	MaxCompletionsPerWorker  int64
}

type AppConfig struct {
	Name                   string
	Environment            string
	Debug                  bool
	URL                    string
	FrontendURL            string
	ExecutionRetentionDays int
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	TLS      bool
}

func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type JWTConfig struct {
	Secret           string
	AccessExpiry     time.Duration
	RefreshExpiry    time.Duration
	Issuer           string
}

type S3Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	// Enable environment variable override
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Bind specific environment variables for Docker compatibility
	_ = viper.BindEnv("database.host", "DATABASE_HOST")
	_ = viper.BindEnv("database.port", "DATABASE_PORT")
	_ = viper.BindEnv("database.user", "DATABASE_USER")
	_ = viper.BindEnv("database.password", "DATABASE_PASSWORD")
	_ = viper.BindEnv("database.name", "DATABASE_NAME")
	_ = viper.BindEnv("redis.host", "REDIS_HOST")
	_ = viper.BindEnv("redis.port", "REDIS_PORT")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// Set defaults
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config

	// App
	cfg.App.Name = viper.GetString("app.name")
	cfg.App.Environment = viper.GetString("app.environment")
	cfg.App.Debug = viper.GetBool("app.debug")
	cfg.App.URL = viper.GetString("app.url")
	cfg.App.FrontendURL = viper.GetString("app.frontend_url")

	// Server
	cfg.Server.Host = viper.GetString("server.host")
	cfg.Server.Port = viper.GetInt("server.port")
	cfg.Server.ReadTimeout = viper.GetDuration("server.read_timeout")
	cfg.Server.WriteTimeout = viper.GetDuration("server.write_timeout")
	cfg.Server.IdleTimeout = viper.GetDuration("server.idle_timeout")

	// Database
	cfg.Database.Host = viper.GetString("database.host")
	cfg.Database.Port = viper.GetInt("database.port")
	cfg.Database.User = viper.GetString("database.user")
	cfg.Database.Password = viper.GetString("database.password")
	cfg.Database.Name = viper.GetString("database.name")
	cfg.Database.SSLMode = viper.GetString("database.sslmode")
	cfg.Database.MaxOpenConns = viper.GetInt("database.max_open_conns")
	cfg.Database.MaxIdleConns = viper.GetInt("database.max_idle_conns")
	cfg.Database.ConnMaxLifetime = viper.GetDuration("database.conn_max_lifetime")

	// Redis
	cfg.Redis.Host = viper.GetString("redis.host")
	cfg.Redis.Port = viper.GetInt("redis.port")
	cfg.Redis.Password = viper.GetString("redis.password")
	cfg.Redis.DB = viper.GetInt("redis.db")
	cfg.Redis.TLS = viper.GetBool("redis.tls")

	// JWT
	cfg.JWT.Secret = viper.GetString("jwt.secret")
	cfg.JWT.AccessExpiry = viper.GetDuration("jwt.access_expiry")
	cfg.JWT.RefreshExpiry = viper.GetDuration("jwt.refresh_expiry")
	cfg.JWT.Issuer = viper.GetString("jwt.issuer")

	// S3 (module cache object-store fallback)
	cfg.S3.Endpoint = viper.GetString("s3.endpoint")
	cfg.S3.Region = viper.GetString("s3.region")
	cfg.S3.Bucket = viper.GetString("s3.bucket")
	cfg.S3.AccessKeyID = viper.GetString("s3.access_key_id")
	cfg.S3.SecretAccessKey = viper.GetString("s3.secret_access_key")
	cfg.S3.UseSSL = viper.GetBool("s3.use_ssl")

	// Orchestration
	cfg.Orchestration.MinWorkers = viper.GetInt("orchestration.min_workers")
	cfg.Orchestration.MaxWorkers = viper.GetInt("orchestration.max_workers")
	cfg.Orchestration.WorkerMemoryThresholdMB = viper.GetInt("orchestration.worker_memory_threshold_mb")
	cfg.Orchestration.StuckGraceSeconds = viper.GetInt("orchestration.stuck_grace_seconds")
	cfg.Orchestration.CancelGraceSeconds = viper.GetInt("orchestration.cancel_grace_seconds")
	cfg.Orchestration.PendingTTLSeconds = viper.GetInt("orchestration.pending_ttl_seconds")
	cfg.Orchestration.SyncResultTTLSeconds = viper.GetInt("orchestration.sync_result_ttl_seconds")
	cfg.Orchestration.SyncWaitExtraSeconds = viper.GetInt("orchestration.sync_wait_extra_seconds")
	cfg.Orchestration.SchedulerTickSeconds = viper.GetInt("orchestration.scheduler_tick_seconds")
	cfg.Orchestration.StuckTickSeconds = viper.GetInt("orchestration.stuck_tick_seconds")
	cfg.Orchestration.HeartbeatIntervalSeconds = viper.GetInt("orchestration.heartbeat_interval_seconds")
	cfg.Orchestration.HeartbeatTTLSeconds = viper.GetInt("orchestration.heartbeat_ttl_seconds")
	cfg.Orchestration.QueueSweepMaxAgeSeconds = viper.GetInt("orchestration.queue_sweep_max_age_seconds")
	cfg.Orchestration.MaxCompletionsPerWorker = viper.GetInt64("orchestration.max_completions_per_worker")

	return &cfg, nil
}

func setDefaults() {
	// App defaults
	viper.SetDefault("app.name", "bifrost")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", true)
	viper.SetDefault("app.url", "http://localhost:8080")
	viper.SetDefault("app.frontend_url", "http://localhost:3000")

	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "15s")
	viper.SetDefault("server.idle_timeout", "60s")

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.name", "bifrost")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")

	// Redis defaults
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.tls", false)

	// JWT defaults
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.access_expiry", "15m")
	viper.SetDefault("jwt.refresh_expiry", "7d")
	viper.SetDefault("jwt.issuer", "bifrost")

	// S3 defaults
	viper.SetDefault("s3.region", "us-east-1")
	viper.SetDefault("s3.use_ssl", true)

	// Orchestration defaults (§6)
	viper.SetDefault("orchestration.min_workers", 2)
	viper.SetDefault("orchestration.max_workers", 10)
	viper.SetDefault("orchestration.worker_memory_threshold_mb", 300)
	viper.SetDefault("orchestration.stuck_grace_seconds", 60)
	viper.SetDefault("orchestration.cancel_grace_seconds", 30)
	viper.SetDefault("orchestration.pending_ttl_seconds", 600)
	viper.SetDefault("orchestration.sync_result_ttl_seconds", 120)
	viper.SetDefault("orchestration.sync_wait_extra_seconds", 30)
	viper.SetDefault("orchestration.scheduler_tick_seconds", 60)
	viper.SetDefault("orchestration.stuck_tick_seconds", 30)
	viper.SetDefault("orchestration.heartbeat_interval_seconds", 5)
	viper.SetDefault("orchestration.heartbeat_ttl_seconds", 15)
	viper.SetDefault("orchestration.queue_sweep_max_age_seconds", 600)
	viper.SetDefault("orchestration.max_completions_per_worker", 500)
}
