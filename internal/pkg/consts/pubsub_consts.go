package consts

const (
	TopicPathFormat = "projects/%s/topics/%s"

	// Topic ids: 3-255 chars, leading letter, and must not start with "goog".
	ValidTopicID       = `^[A-Za-z][A-Za-z0-9\-_.~+%]{2,254}$`
	ReservedTopicIDPfx = "goog"
	// Project ids, including legacy domain-scoped ones (example.com:project).
	ValidProjectID = `^[a-z][a-z0-9.:\-]*$`

	// Substring that marks a publish failure as recoverable under the legacy rule.
	RecoverableErrorMarker = "200"

	ClassificationLegacy = "legacy"
	ClassificationStatus = "status"

	TraceParentAttribute = "traceparent"
)

const (
	BackendSlog = "slog"
	BackendZap  = "zap"
)

const (
	DeadLetterFolderName  = "pubsub-logging-dead-letter"
	DeadLetterContentType = "application/json"
)

const (
	HealthCheckPath = "/IntegrationServices/PubSubLogging/HealthCheck"
	LogsIngestPath  = "/IntegrationServices/PubSubLogging/Logs"
	RetryAfterSecs  = "5"
)

// Log record payload keys.
const (
	FieldMessage   = "message"
	FieldSeverity  = "severity"
	FieldTimestamp = "timestamp"
	FieldInsertID  = "insert_id"
	FieldLogger    = "logger"
	FieldCaller    = "caller"
	FieldStack     = "stack_trace"
)

// SensitiveKeys are masked, case-insensitively, in ingested payloads and request logs.
var SensitiveKeys = []string{"authorization", "cookie", "set-cookie", "password", "passwd", "secret",
	"token", "access_token", "refresh_token", "api_key", "x-api-key"}

const (
	MaskedValue     = "*****"
	RequestIDHeader = "X-Request-ID"
)
