package types

// RunMode selects what a process starts: the API, the webhook consumer,
// or both (local).
type RunMode string

const (
	ModeLocal        RunMode = "local"
	ModeAPI          RunMode = "api"
	ModeConsumer     RunMode = "consumer"
	ModeAWSLambdaAPI RunMode = "aws_lambda_api"
)

// LogLevel is the logging level
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// PubSubType selects the message transport backing webhook delivery
type PubSubType string

const (
	MemoryPubSub PubSubType = "memory"
	KafkaPubSub  PubSubType = "kafka"
)

// HTTP header names used across middleware
const (
	HeaderRequestID     = "X-Request-ID"
	HeaderUserID        = "X-User-ID"
	HeaderAuthorization = "Authorization"
)
