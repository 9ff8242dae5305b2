// Package config provides configuration management for the resource cloud.
//
// Configuration is loaded from:
// 1. config.yaml file (optional)
// 2. Environment variables (DATABASE_URL, PROVISIONING_NUM_WORKERS, ...)
// 3. Default values
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config is the root configuration structure.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Log          LogConfig          `mapstructure:"log"`
	River        RiverConfig        `mapstructure:"river"`
	Worker       WorkerConfig       `mapstructure:"worker"`
	Provisioning ProvisioningConfig `mapstructure:"provisioning"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Security     SecurityConfig     `mapstructure:"security"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig contains PostgreSQL connection settings.
// One pgxpool is shared by the repositories and River.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxConns        int32         `mapstructure:"max_conns" validate:"min=1"`
	MinConns        int32         `mapstructure:"min_conns" validate:"min=0"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`

	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
// Priority: DATABASE_URL > constructed from individual fields.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslmode,
	)
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

// RiverConfig contains River Queue settings.
type RiverConfig struct {
	// MaxWorkers applies to the system, proxy and default queues. Provisioning
	// shards always run a single worker each.
	MaxWorkers                  int           `mapstructure:"max_workers" validate:"min=1"`
	CompletedJobRetentionPeriod time.Duration `mapstructure:"completed_job_retention_period"`

	// JobTimeout bounds a single driver call made by a job.
	JobTimeout time.Duration `mapstructure:"job_timeout" validate:"min=1s"`
}

// WorkerConfig contains worker pool settings.
type WorkerConfig struct {
	GeneralPoolSize int `mapstructure:"general_pool_size" validate:"min=1"`
	DriverPoolSize  int `mapstructure:"driver_pool_size" validate:"min=1"`
}

// ProvisioningConfig controls instance naming, driver selection and the
// sharding of lifecycle work.
type ProvisioningConfig struct {
	NumWorkers         int      `mapstructure:"num_workers" validate:"min=1,max=256"`
	QueuePrefix        string   `mapstructure:"queue_prefix" validate:"required"`
	SystemQueue        string   `mapstructure:"system_queue" validate:"required"`
	ProxyQueue         string   `mapstructure:"proxy_queue" validate:"required"`
	DefaultQueue       string   `mapstructure:"default_queue" validate:"required"`
	PluginWhitelist    []string `mapstructure:"plugin_whitelist"`
	InstanceNamePrefix string   `mapstructure:"instance_name_prefix"`
	FakeProvisioning   bool     `mapstructure:"fake_provisioning"`
}

// SchedulerConfig controls the reconciliation tick.
type SchedulerConfig struct {
	Interval  time.Duration `mapstructure:"interval" validate:"min=1s"`
	BatchSize int           `mapstructure:"batch_size" validate:"min=1"`
}

// SecurityConfig contains security-related settings.
type SecurityConfig struct {
	// WorkerSecret signs the HS256 tokens that worker processes and
	// out-of-process drivers present to the worker API.
	WorkerSecret string `mapstructure:"worker_secret" validate:"required,min=32"`
	// WorkerTokenTTL is the lifetime of tokens minted by `resource-cloud token`.
	WorkerTokenTTL time.Duration `mapstructure:"worker_token_ttl"`
}

var (
	bootstrapLoggerOnce sync.Once
	bootstrapLogger     *zap.Logger

	validate = validator.New()
)

// Load reads configuration from file and environment variables.
// Nested keys map to upper-case env names: provisioning.num_workers → PROVISIONING_NUM_WORKERS.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/resource-cloud")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.ensureSecrets(); err != nil {
		return nil, fmt.Errorf("ensure secrets: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the struct-level constraints and the cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database.min_conns (%d) exceeds database.max_conns (%d)",
			c.Database.MinConns, c.Database.MaxConns)
	}
	return nil
}

// ensureSecrets generates a worker secret when none is configured. A generated
// secret only works when api and worker share a process, so it is logged loudly.
func (c *Config) ensureSecrets() error {
	if c.Security.WorkerSecret == "" {
		secret, err := generateSecureRandomHex(32)
		if err != nil {
			return fmt.Errorf("auto-generate worker secret: %w", err)
		}
		c.Security.WorkerSecret = secret
		logBootstrapWarn(
			"auto-generated worker_secret; set SECURITY_WORKER_SECRET for multi-process deployments",
			zap.Int("length", len(secret)),
		)
	}
	return nil
}

func logBootstrapWarn(msg string, fields ...zap.Field) {
	bootstrapLoggerOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)

		l, err := cfg.Build()
		if err != nil {
			bootstrapLogger = zap.NewNop()
			return
		}
		bootstrapLogger = l
	})

	bootstrapLogger.Warn(msg, fields...)
}

func generateSecureRandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("crypto/rand: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "resourcecloud")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "resourcecloud")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 30)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.auto_migrate", false)

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// River
	v.SetDefault("river.max_workers", 10)
	v.SetDefault("river.completed_job_retention_period", "24h")
	v.SetDefault("river.job_timeout", "10m")

	// Worker pools
	v.SetDefault("worker.general_pool_size", 50)
	v.SetDefault("worker.driver_pool_size", 20)

	// Provisioning
	v.SetDefault("provisioning.num_workers", 1)
	v.SetDefault("provisioning.queue_prefix", "provisioning_tasks")
	v.SetDefault("provisioning.system_queue", "system_tasks")
	v.SetDefault("provisioning.proxy_queue", "proxy_tasks")
	v.SetDefault("provisioning.default_queue", "default")
	v.SetDefault("provisioning.plugin_whitelist", []string{})
	v.SetDefault("provisioning.instance_name_prefix", "pb-")
	v.SetDefault("provisioning.fake_provisioning", false)

	// Scheduler
	v.SetDefault("scheduler.interval", "1m")
	v.SetDefault("scheduler.batch_size", 10)

	// Security
	v.SetDefault("security.worker_secret", "")
	v.SetDefault("security.worker_token_ttl", "8760h")
}
