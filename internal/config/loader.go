package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"bizpulse/internal/constants"
)

// defaults are applied before the YAML file is read.
var defaults = map[string]interface{}{
	"broker.type":                         constants.BrokerTypeKafka,
	"broker.kafka.group_id":               constants.DefaultConsumerGroupID,
	"broker.kafka.dlq_topic":              constants.DefaultDLQTopic,
	"broker.kafka.retry.max_attempts":     3,
	"broker.kafka.retry.initial_interval": "1s",
	"broker.kafka.retry.max_interval":     "30s",
	"broker.kafka.retry.multiplier":       2.0,
	"broker.kafka.retry.max_elapsed_time": "5m",

	"alerting.retry_deadline":        constants.DefaultRetryDeadline,
	"alerting.on_store_error":        constants.FallbackAllow,
	"alerting.recipient_concurrency": constants.DefaultRecipientWorkers,
	"alerting.workers.critical":      4,
	"alerting.workers.high":          2,
	"alerting.workers.default":       2,
	"alerting.workers.low":           1,

	"email.primary": constants.EmailProviderSMTP,

	"observers.high_value_sale_threshold": 10000.0,
	"observers.expense_ratio_threshold":   3.0,
	"observers.mass_deletion_threshold":   10,
	"observers.bulk_operation_threshold":  50,
	"observers.failed_login_threshold":    3,
	"observers.failed_login_window":       "15m",
	"observers.goal_sweep_cron":           "*/15 * * * *",

	"geoip.timeout":   constants.DefaultHTTPTimeout,
	"geoip.cache_ttl": constants.DefaultGeoIPCacheTTL,

	"database.mongodb.database": constants.DefaultMongoDBName,
}

// envKeys are bound explicitly so they override the file even when the
// key is absent from it. The variable name is the key upper-cased with
// dots turned into underscores.
var envKeys = []string{
	"broker.type",
	"broker.kafka.group_id",
	"broker.kafka.dlq_topic",

	"database.postgres.host",
	"database.postgres.port",
	"database.postgres.user",
	"database.postgres.password",
	"database.postgres.dbname",
	"database.postgres.sslmode",
	"database.redis.host",
	"database.redis.port",
	"database.redis.password",
	"database.redis.db",
	"database.mongodb.uri",
	"database.mongodb.database",

	"email.from",
	"email.smtp.host",
	"email.smtp.username",
	"email.smtp.password",
	"email.resend.api_key",
	"email.ses.region",

	"api.hook_token",
	"geoip.url",

	"server.port",
	"server.read_timeout_seconds",
	"server.write_timeout_seconds",
	"logging.level",
	"logging.format",
	"tracing.enabled",
	"tracing.service_name",
	"tracing.otlp.endpoint",
	"tracing.otlp.insecure",
}

// listEnv holds comma-separated variables that viper cannot split into a slice.
var listEnv = map[string]func(*Config) *[]string{
	"BROKER_KAFKA_BROKERS":           func(c *Config) *[]string { return &c.Broker.Kafka.Brokers },
	"ALERTING_ESCALATION_RECIPIENTS": func(c *Config) *[]string { return &c.Alerting.EscalationRecipients },
}

// Load reads configFile, applies environment overrides and validates the result.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(configFile)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	for env, field := range listEnv {
		if raw := v.GetString(env); raw != "" {
			*field(&cfg) = splitList(raw)
		}
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
