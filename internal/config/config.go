package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/quotaflow/quotaflow/internal/types"
)

type Configuration struct {
	Deployment DeploymentConfig `validate:"required"`
	Server     ServerConfig     `validate:"required"`
	Logging    LoggingConfig    `validate:"required"`
	Postgres   PostgresConfig   `validate:"required"`
	Auth       AuthConfig
	Kafka      KafkaConfig
	Webhook    WebhookConfig
	Cache      CacheConfig
	Freemium   FreemiumConfig
	RateLimit  RateLimitConfig
	Sentry     SentryConfig
	Pyroscope  PyroscopeConfig
}

type DeploymentConfig struct {
	Mode types.RunMode `validate:"required"`
}

type ServerConfig struct {
	Address string `validate:"required"`
}

type LoggingConfig struct {
	Level types.LogLevel `validate:"required"`
}

type PostgresConfig struct {
	Host                  string `validate:"required"`
	Port                  int    `validate:"required"`
	User                  string `validate:"required"`
	Password              string
	DBName                string `validate:"required"`
	SSLMode               string `validate:"required"`
	MaxOpenConns          int    `mapstructure:"max_open_conns"`
	MaxIdleConns          int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMinutes int   `mapstructure:"conn_max_lifetime_minutes"`
}

type AuthConfig struct {
	// Secret signs and verifies HMAC JWTs carrying the principal claims
	Secret string
	APIKey APIKeyConfig
}

type APIKeyConfig struct {
	Header string `validate:"required"`
	// Keys maps sha256(api key) to the principal it resolves to
	Keys map[string]APIKeyDetails
}

type APIKeyDetails struct {
	BusinessName string `mapstructure:"business_name"`
	UserID       string `mapstructure:"user_id"`
}

type KafkaConfig struct {
	Brokers       []string
	ConsumerGroup string `mapstructure:"consumer_group"`
	ClientID      string `mapstructure:"client_id"`
	TLS           bool
	UseSASL       bool   `mapstructure:"use_sasl"`
	SASLMechanism string `mapstructure:"sasl_mechanism"`
	SASLUser      string `mapstructure:"sasl_user"`
	SASLPassword  string `mapstructure:"sasl_password"`
}

type WebhookConfig struct {
	Enabled         bool
	Topic           string
	PubSub          types.PubSubType
	MaxRetries      int           `mapstructure:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
	// Businesses maps a business name to its delivery endpoint config
	Businesses map[string]BusinessWebhookConfig
}

type BusinessWebhookConfig struct {
	Enabled        bool
	Endpoint       string
	Headers        map[string]string
	ExcludedEvents []string `mapstructure:"excluded_events"`
}

type CacheConfig struct {
	Enabled bool
}

// FreemiumConfig is the host-supplied free-tier grant. When enabled, a
// usage request without a pinned enrollment first draws from an
// auto-provisioned freemium enrollment built from these values.
type FreemiumConfig struct {
	Enabled    bool
	PeriodDays int    `mapstructure:"period_days"`
	Variant    string // empty means untagged
	Bundles    []FreemiumBundle
}

type FreemiumBundle struct {
	Asset string
	Quota string
}

type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

type SentryConfig struct {
	Enabled     bool
	DSN         string
	Environment string
	SampleRate  float64 `mapstructure:"sample_rate"`
}

type PyroscopeConfig struct {
	Enabled         bool
	ServerAddress   string `mapstructure:"server_address"`
	ApplicationName string `mapstructure:"application_name"`
	BasicAuthUser   string `mapstructure:"basic_auth_user"`
	BasicAuthPass   string `mapstructure:"basic_auth_pass"`
	SampleRate      uint32 `mapstructure:"sample_rate"`
	DisableGCRuns   bool   `mapstructure:"disable_gc_runs"`
}

func NewConfig() (*Configuration, error) {
	// Load .env if present; env vars always win over the yaml file
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/quotaflow")

	v.SetEnvPrefix("QUOTAFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c Configuration) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// GetDefaultConfig returns a default configuration for local development.
// This is useful for running scripts, tests and other non-web applications.
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Server:     ServerConfig{Address: ":8080"},
		Logging:    LoggingConfig{Level: types.LogLevelInfo},
		Auth:       AuthConfig{APIKey: APIKeyConfig{Header: "x-api-key"}},
		Webhook: WebhookConfig{
			Topic:           "webhooks",
			PubSub:          types.MemoryPubSub,
			MaxRetries:      3,
			InitialInterval: 1 * time.Second,
			MaxInterval:     10 * time.Second,
			Multiplier:      2,
			MaxElapsedTime:  2 * time.Minute,
		},
	}
}

func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User,
		c.Password,
		c.DBName,
		c.Host,
		c.Port,
		c.SSLMode,
	)
}
