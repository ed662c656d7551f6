package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"bizpulse/internal/constants"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// problems collects every invalid field so one run reports all of them.
type problems []error

func (p *problems) add(field, format string, args ...interface{}) {
	*p = append(*p, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (p *problems) port(field string, port int) {
	if port < 1 || port > 65535 {
		p.add(field, "port must be between 1 and 65535, got %d", port)
	}
}

func (p *problems) required(field, value, what string) {
	if value == "" {
		p.add(field, "%s is required", what)
	}
}

func (p *problems) oneOf(field, value string, allowed ...string) {
	for _, a := range allowed {
		if strings.EqualFold(value, a) {
			return
		}
	}
	p.add(field, "invalid value %q (valid: %s)", value, strings.Join(allowed, ", "))
}

// Validate checks what can be checked without connecting to anything.
func Validate(cfg *Config) error {
	var p problems

	p.port("server.port", cfg.Server.Port)
	if cfg.Server.ReadTimeoutSeconds <= 0 {
		p.add("server.read_timeout_seconds", "read timeout must be positive")
	}
	if cfg.Server.WriteTimeoutSeconds <= 0 {
		p.add("server.write_timeout_seconds", "write timeout must be positive")
	}

	p.broker(cfg.Broker)
	p.database(cfg.Database)
	p.alerting(cfg.Alerting)
	p.email(cfg.Email)
	p.observers(cfg.Observers)

	if cfg.GeoIP.Enabled && !strings.Contains(cfg.GeoIP.URL, "{ip}") {
		p.add("geoip.url", "url must contain the {ip} placeholder")
	}

	if len(p) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(p...))
	}
	return nil
}

func (p *problems) broker(cfg BrokerConfig) {
	switch cfg.Type {
	case constants.BrokerTypeMemory:
		return
	case constants.BrokerTypeKafka:
	default:
		p.add("broker.type", "unknown broker type %q (supported: kafka, memory)", cfg.Type)
		return
	}

	k := cfg.Kafka
	if len(k.Brokers) == 0 {
		p.add("broker.kafka.brokers", "at least one Kafka broker is required")
	}
	for i, addr := range k.Brokers {
		if addr == "" {
			p.add(fmt.Sprintf("broker.kafka.brokers[%d]", i), "broker address cannot be empty")
		}
	}
	p.required("broker.kafka.group_id", k.GroupID, "Kafka consumer group ID")

	r := k.Retry
	if r.MaxAttempts < 0 {
		p.add("broker.kafka.retry.max_attempts", "max_attempts must be non-negative")
	}
	if r.InitialInterval < 0 || r.MaxInterval < 0 {
		p.add("broker.kafka.retry", "retry intervals must be non-negative")
	}
	if r.MaxInterval > 0 && r.InitialInterval > r.MaxInterval {
		p.add("broker.kafka.retry.max_interval", "max_interval must be greater than or equal to initial_interval")
	}
	if r.Multiplier <= 0 {
		p.add("broker.kafka.retry.multiplier", "multiplier must be positive")
	}
}

// database only checks stores that are at least partly configured.
func (p *problems) database(cfg DatabaseConfig) {
	if pg := cfg.Postgres; pg.Host != "" || pg.Port > 0 {
		p.required("database.postgres.host", pg.Host, "PostgreSQL host")
		p.port("database.postgres.port", pg.Port)
		p.required("database.postgres.user", pg.User, "PostgreSQL user")
		p.required("database.postgres.dbname", pg.DBName, "PostgreSQL database name")
		if pg.SSLMode != "" {
			p.oneOf("database.postgres.sslmode", pg.SSLMode, "disable", "allow", "prefer", "require", "verify-ca", "verify-full")
		}
	}

	if r := cfg.Redis; r.Host != "" || r.Port > 0 {
		p.required("database.redis.host", r.Host, "Redis host")
		p.port("database.redis.port", r.Port)
	}

	if m := cfg.MongoDB; m.URI != "" {
		if !strings.HasPrefix(m.URI, "mongodb://") && !strings.HasPrefix(m.URI, "mongodb+srv://") {
			p.add("database.mongodb.uri", "MongoDB URI must start with mongodb:// or mongodb+srv://")
		}
		p.required("database.mongodb.database", m.Database, "MongoDB database name")
	}
}

func (p *problems) alerting(cfg AlertingConfig) {
	if cfg.RetryDeadline < 0 {
		p.add("alerting.retry_deadline", "retry deadline must be non-negative")
	}
	if cfg.OnStoreError != "" {
		p.oneOf("alerting.on_store_error", cfg.OnStoreError, constants.FallbackAllow, constants.FallbackDeny)
	}
	if cfg.RecipientConcurrency < 0 {
		p.add("alerting.recipient_concurrency", "recipient concurrency must be non-negative")
	}

	tiers := []struct {
		name string
		n    int
	}{
		{"critical", cfg.Workers.Critical},
		{"high", cfg.Workers.High},
		{"default", cfg.Workers.Default},
		{"low", cfg.Workers.Low},
	}
	for _, t := range tiers {
		if t.n < 0 {
			p.add("alerting.workers."+t.name, "worker count must be non-negative")
		}
	}

	for i, addr := range cfg.EscalationRecipients {
		if !strings.Contains(addr, "@") {
			p.add(fmt.Sprintf("alerting.escalation_recipients[%d]", i), "invalid email address: %s", addr)
		}
	}
}

func (p *problems) email(cfg EmailConfig) {
	if !cfg.Enabled {
		return
	}
	if cfg.From == "" {
		p.add("email.from", "sender address is required when email is enabled")
	}

	providers := []string{constants.EmailProviderSMTP, constants.EmailProviderResend, constants.EmailProviderSES}
	p.oneOf("email.primary", cfg.Primary, providers...)
	for i, name := range cfg.Fallback {
		p.oneOf(fmt.Sprintf("email.fallback[%d]", i), name, providers...)
	}
}

func (p *problems) observers(cfg ObserversConfig) {
	if cfg.HighValueSaleThreshold <= 0 {
		p.add("observers.high_value_sale_threshold", "threshold must be positive")
	}
	if cfg.ExpenseRatioThreshold < 1 {
		p.add("observers.expense_ratio_threshold", "ratio threshold must be at least 1")
	}
	if cfg.FailedLoginWindow <= 0 {
		p.add("observers.failed_login_window", "window must be positive")
	}
	if cfg.GoalSweepCron != "" {
		if _, err := cron.ParseStandard(cfg.GoalSweepCron); err != nil {
			p.add("observers.goal_sweep_cron", "invalid cron expression: %v", err)
		}
	}
}
