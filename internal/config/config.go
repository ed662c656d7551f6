// Package config loads the YAML configuration shared by both binaries.
package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	Broker         BrokerConfig
	Logging        LoggingConfig
	Alerting       AlertingConfig
	Email          EmailConfig
	Observers      ObserversConfig
	GeoIP          GeoIPConfig `mapstructure:"geoip"`
	API            APIConfig
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Tracing        TracingConfig
}

type ServerConfig struct {
	Port                int           `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration `mapstructure:"write_timeout_seconds"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig
	Redis         RedisConfig
	MongoDB       MongoDBConfig
	RunMigrations bool `mapstructure:"run_migrations"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type BrokerConfig struct {
	Type  string      `mapstructure:"type"`
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers  []string `mapstructure:"brokers"`
	GroupID  string   `mapstructure:"group_id"`
	DLQTopic string   `mapstructure:"dlq_topic"`
	// Retry covers transient handler errors on a single message, before DLQ.
	Retry RetryConfig `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type AlertingConfig struct {
	RetryDeadline        time.Duration `mapstructure:"retry_deadline"`
	OnStoreError         string        `mapstructure:"on_store_error"` // "allow" or "deny" (default: "allow")
	RecipientConcurrency int           `mapstructure:"recipient_concurrency"`
	Workers              WorkersConfig `mapstructure:"workers"`
	MuteRules            []string      `mapstructure:"mute_rules"`
	EscalationRecipients []string      `mapstructure:"escalation_recipients"`
	RequireVerifiedEmail bool          `mapstructure:"require_verified_email"`
	ActionBaseURL        string        `mapstructure:"action_base_url"`
}

// WorkersConfig sizes the consumer pool of every queue in a severity tier.
type WorkersConfig struct {
	Critical int `mapstructure:"critical"`
	High     int `mapstructure:"high"`
	Default  int `mapstructure:"default"`
	Low      int `mapstructure:"low"`
}

type EmailConfig struct {
	Enabled  bool         `mapstructure:"enabled"`
	From     string       `mapstructure:"from"`
	Primary  string       `mapstructure:"primary"`
	Fallback []string     `mapstructure:"fallback"`
	SMTP     SMTPConfig   `mapstructure:"smtp"`
	Resend   ResendConfig `mapstructure:"resend"`
	SES      SESConfig    `mapstructure:"ses"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	UseTLS   bool   `mapstructure:"use_tls"`
	StartTLS bool   `mapstructure:"starttls"`
}

type ResendConfig struct {
	APIKey string `mapstructure:"api_key"`
}

type SESConfig struct {
	Region string `mapstructure:"region"`
}

type ObserversConfig struct {
	HighValueSaleThreshold float64       `mapstructure:"high_value_sale_threshold"`
	ExpenseRatioThreshold  float64       `mapstructure:"expense_ratio_threshold"`
	MassDeletionThreshold  int           `mapstructure:"mass_deletion_threshold"`
	BulkOperationThreshold int           `mapstructure:"bulk_operation_threshold"`
	FailedLoginThreshold   int           `mapstructure:"failed_login_threshold"`
	FailedLoginWindow      time.Duration `mapstructure:"failed_login_window"`
	GoalSweepCron          string        `mapstructure:"goal_sweep_cron"`
}

// GeoIPConfig points at a JSON lookup endpoint. URL holds an {ip} placeholder.
type GeoIPConfig struct {
	Enabled  bool              `mapstructure:"enabled"`
	URL      string            `mapstructure:"url"`
	Headers  map[string]string `mapstructure:"headers"`
	Timeout  time.Duration     `mapstructure:"timeout"`
	CacheTTL time.Duration     `mapstructure:"cache_ttl"`
}

type APIConfig struct {
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	// HookToken, when set, must accompany lifecycle hook calls.
	HookToken string `mapstructure:"hook_token"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}
