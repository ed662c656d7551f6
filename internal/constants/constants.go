package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout = 10 * time.Second
)

const (
	CacheKeyPrefixRateLimit    = "alert:rl:"
	CacheKeyPrefixLoginAttempt = "alert:login:"
	CacheKeyPrefixGeoIP        = "alert:geo:"
)

const (
	DefaultGeoIPCacheTTL = 24 * time.Hour
	HTTPStatusOKMin      = 200
	HTTPStatusOKMax      = 300
)

const (
	BroadcastChannelPrefix  = "administrative-alerts."
	BroadcastChannelPattern = "administrative-alerts.*"
)

const (
	DefaultMongoDBName      = "bizpulse"
	AlertHistoryCollection  = "alert_history"
	DefaultDLQTopic         = "alert-jobs-dlq"
	DefaultConsumerGroupID  = "alert-worker"
	DefaultRetryDeadline    = 2 * time.Hour
	DefaultRecipientWorkers = 4
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

const (
	MaxContextStringLen = 500
	TruncationMarker    = "... [truncated]"
	RedactedValue       = "[REDACTED]"
)

const (
	FallbackAllow = "allow"
	FallbackDeny  = "deny"
)

const (
	BrokerTypeKafka  = "kafka"
	BrokerTypeMemory = "memory"
)

const (
	EmailProviderSMTP   = "smtp"
	EmailProviderResend = "resend"
	EmailProviderSES    = "ses"
)

const (
	HeaderUserID    = "X-User-ID"
	HeaderHookToken = "X-Hook-Token"
)
