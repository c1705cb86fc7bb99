package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Sync         SyncConfig
	Notification NotificationConfig
	Email        EmailConfig
	Backend      BackendConfig
	Auth         AuthConfig
}

type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeoutSeconds"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

type SyncConfig struct {
	BatchSize          int           `mapstructure:"batch_size"`
	MaxRetries         int           `mapstructure:"max_retries"`
	DrainInterval      time.Duration `mapstructure:"drain_interval"`
	ApplyTimeout       time.Duration `mapstructure:"apply_timeout"`
	QueueCap           int           `mapstructure:"queue_cap"`
	BackoffBase        time.Duration `mapstructure:"backoff_base"`
	BackoffMax         time.Duration `mapstructure:"backoff_max"`
	ConflictStrategy   string        `mapstructure:"conflict_strategy"`
	CompletedRetention time.Duration `mapstructure:"completed_retention"`
}

type NotificationConfig struct {
	ProcessInterval    time.Duration `mapstructure:"process_interval"`
	BatchSize          int           `mapstructure:"batch_size"`
	PreferenceCacheTTL time.Duration `mapstructure:"preference_cache_ttl"`
}

type EmailConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type BackendConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	PushGatewayURL string        `mapstructure:"push_gateway_url"`
	SMSGatewayURL  string        `mapstructure:"sms_gateway_url"`
	APIKey         string        `mapstructure:"api_key"`
	HealthPath     string        `mapstructure:"health_path"`
	ProbeInterval  time.Duration `mapstructure:"probe_interval"`
}

type OperatorCredential struct {
	Name         string `mapstructure:"name"`
	Role         string `mapstructure:"role"`
	PasswordHash string `mapstructure:"password_hash"`
}

type AuthConfig struct {
	JWTSecret   string               `mapstructure:"jwt_secret"`
	ExpiryHours int                  `mapstructure:"expiry_hours"`
	Operators   []OperatorCredential `mapstructure:"operators"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("database.sslmode", "disable")

	viper.SetDefault("sync.batch_size", 10)
	viper.SetDefault("sync.max_retries", 3)
	viper.SetDefault("sync.drain_interval", 30*time.Second)
	viper.SetDefault("sync.apply_timeout", 30*time.Second)
	viper.SetDefault("sync.queue_cap", 10000)
	viper.SetDefault("sync.backoff_base", 2*time.Second)
	viper.SetDefault("sync.backoff_max", 5*time.Minute)
	viper.SetDefault("sync.conflict_strategy", "manual")
	viper.SetDefault("sync.completed_retention", 24*time.Hour)

	viper.SetDefault("notification.process_interval", 5*time.Second)
	viper.SetDefault("notification.batch_size", 50)
	viper.SetDefault("notification.preference_cache_ttl", time.Minute)

	viper.SetDefault("backend.health_path", "/healthz")
	viper.SetDefault("backend.probe_interval", 15*time.Second)

	viper.SetDefault("auth.expiry_hours", 12)
}
