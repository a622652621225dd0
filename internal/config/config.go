package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config holds all configuration for the activity-categorizer service
type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Cache          CacheConfig          `mapstructure:"cache"`
	Categorization CategorizationConfig `mapstructure:"categorization"`
	AI             AIConfig             `mapstructure:"ai"`
	Jobs           JobsConfig           `mapstructure:"jobs"`
	Metrics        MetricsConfig        `mapstructure:"metrics"`
	Logging        LoggingConfig        `mapstructure:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig contains PostgreSQL configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
}

// RedisConfig contains the optional shared rule cache tier
type RedisConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	Host                string        `mapstructure:"host"`
	Port                int           `mapstructure:"port"`
	Password            string        `mapstructure:"password"`
	Database            int           `mapstructure:"database"`
	PoolSize            int           `mapstructure:"pool_size"`
	MinIdleConns        int           `mapstructure:"min_idle_conns"`
	MaxRetries          int           `mapstructure:"max_retries"`
	DialTimeout         time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout         time.Duration `mapstructure:"read_timeout"`
	WriteTimeout        time.Duration `mapstructure:"write_timeout"`
	InvalidationChannel string        `mapstructure:"invalidation_channel"`
}

// CacheConfig contains the in-process rule cache settings
type CacheConfig struct {
	RuleTTL  time.Duration `mapstructure:"rule_ttl"`
	RuleSize int           `mapstructure:"rule_size"`
}

// CategorizationConfig contains resolver settings
type CategorizationConfig struct {
	SeedFile      string        `mapstructure:"seed_file"`
	LookupTimeout time.Duration `mapstructure:"lookup_timeout"`
}

// AIConfig contains the external classifier settings
type AIConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Model             string        `mapstructure:"model"`
	Temperature       float64       `mapstructure:"temperature"`
	MaxTokens         int           `mapstructure:"max_tokens"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	MaxDomains        int           `mapstructure:"max_domains"`
	MinVisits         int           `mapstructure:"min_visits"`
	LookbackWindow    time.Duration `mapstructure:"lookback_window"`
}

// JobsConfig contains scheduler settings for the batch jobs
type JobsConfig struct {
	Enabled                bool          `mapstructure:"enabled"`
	Timezone               string        `mapstructure:"timezone"`
	LearnerSchedule        string        `mapstructure:"learner_schedule"`
	AISchedule             string        `mapstructure:"ai_schedule"`
	StartupDelay           time.Duration `mapstructure:"startup_delay"`
	RunTimeout             time.Duration `mapstructure:"run_timeout"`
	LearnerLookback        time.Duration `mapstructure:"learner_lookback"`
	LearnerMinVisits       int           `mapstructure:"learner_min_visits"`
	LearnerMaxDomains      int           `mapstructure:"learner_max_domains"`
	LearnerPerOrganization bool          `mapstructure:"learner_per_organization"`
}

// MetricsConfig contains monitoring and metrics configuration
type MetricsConfig struct {
	Enabled          bool      `mapstructure:"enabled"`
	Path             string    `mapstructure:"path"`
	HistogramBuckets []float64 `mapstructure:"histogram_buckets"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
	Encoding    string `mapstructure:"encoding"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ACTIVITY_CATEGORIZER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 3010)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "5s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "activity_monitor")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.ssl_mode", "prefer")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.conn_max_idle_time", "10m")
	v.SetDefault("database.query_timeout", "30s")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.database", 2)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.min_idle_conns", 5)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "2s")
	v.SetDefault("redis.write_timeout", "2s")
	v.SetDefault("redis.invalidation_channel", "acat:invalidate")

	// Cache defaults
	v.SetDefault("cache.rule_ttl", "5m")
	v.SetDefault("cache.rule_size", 10000)

	// Categorization defaults
	v.SetDefault("categorization.seed_file", "")
	v.SetDefault("categorization.lookup_timeout", "2s")

	// AI defaults
	v.SetDefault("ai.enabled", false)
	v.SetDefault("ai.base_url", "https://api.openai.com/v1")
	v.SetDefault("ai.model", "gpt-4-turbo-preview")
	v.SetDefault("ai.temperature", 0.3)
	v.SetDefault("ai.max_tokens", 2000)
	v.SetDefault("ai.request_timeout", "60s")
	v.SetDefault("ai.requests_per_minute", 10)
	v.SetDefault("ai.max_domains", 20)
	v.SetDefault("ai.min_visits", 3)
	v.SetDefault("ai.lookback_window", "168h") // 7 days

	// Jobs defaults
	v.SetDefault("jobs.enabled", true)
	v.SetDefault("jobs.timezone", "America/Los_Angeles")
	v.SetDefault("jobs.learner_schedule", "0 2 * * *")
	v.SetDefault("jobs.ai_schedule", "0 3 * * *")
	v.SetDefault("jobs.startup_delay", "1m")
	v.SetDefault("jobs.run_timeout", "15m")
	v.SetDefault("jobs.learner_lookback", "720h") // 30 days
	v.SetDefault("jobs.learner_min_visits", 5)
	v.SetDefault("jobs.learner_max_domains", 50)
	v.SetDefault("jobs.learner_per_organization", false)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.histogram_buckets", []float64{
		0.0005, 0.001, 0.002, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
	})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.encoding", "json")
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Database.MaxConnections <= 0 {
		return fmt.Errorf("database max_connections must be positive")
	}

	if config.Redis.Enabled && config.Redis.PoolSize <= 0 {
		return fmt.Errorf("redis pool_size must be positive")
	}

	if config.Cache.RuleTTL <= 0 {
		return fmt.Errorf("cache rule_ttl must be positive")
	}

	if config.Cache.RuleSize <= 0 {
		return fmt.Errorf("cache rule_size must be positive")
	}

	if config.AI.Enabled && config.AI.APIKey == "" {
		return fmt.Errorf("ai api_key is required when ai is enabled")
	}

	if config.AI.Temperature < 0 || config.AI.Temperature > 2 {
		return fmt.Errorf("ai temperature must be between 0 and 2")
	}

	if config.AI.MaxDomains <= 0 {
		return fmt.Errorf("ai max_domains must be positive")
	}

	if config.Jobs.Enabled {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		if _, err := parser.Parse(config.Jobs.LearnerSchedule); err != nil {
			return fmt.Errorf("invalid jobs learner_schedule: %w", err)
		}
		if _, err := parser.Parse(config.Jobs.AISchedule); err != nil {
			return fmt.Errorf("invalid jobs ai_schedule: %w", err)
		}
		if _, err := time.LoadLocation(config.Jobs.Timezone); err != nil {
			return fmt.Errorf("invalid jobs timezone: %w", err)
		}
	}

	return nil
}

// NewConfig creates a new configuration instance
func NewConfig() (*Config, error) {
	return Load()
}
