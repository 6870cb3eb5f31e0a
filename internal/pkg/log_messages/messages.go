package log_messages

const (
	FailedLoadingConfiguration = "Failed to load configuration: %v"
	ServerStartFailure         = "failed to start server: %v"
	ServerExiting              = "Server exiting"
	CleanupStarted             = "Starting cleanup of resources..."
	CleanupCompleted           = "All resources cleaned up successfully"

	// Pub/Sub publisher
	PubsubPublisherCreated        = "PubSub publisher created"
	ErrorPubSubClientCreation     = "error creating pubsub client"
	ErrorResolvingTopicPath       = "failed to resolve pubsub topic path"
	ErrorMarshallingMessage       = "failed to marshal message"
	ErrorInMessagePublishing      = "failed to publish message"
	RecoverablePublishFailure     = "recoverable pubsub publish failure"
	SuccessPubSubPublish          = "published log record to pubsub"
	TopicNotFoundOnServer         = "pubsub topic not found on server"
	ErrorVerifyingTopic           = "failed to verify pubsub topic"
	ErrorClosingTopicPublisher    = "failed to stop topic publisher"
	TopicCheckFailed              = "pubsub topic check failed"
	UnknownErrorClassificationFmt = "unknown error classification: %q"

	// Shipper
	RetryingRecoverablePublish = "retrying recoverable publish"
	ShippingFailed             = "failed to ship log record"
	RetriesExhausted           = "retries exhausted shipping log record"

	// Dead letter
	UploadedToGCSBucket       = "Uploaded failed log record to gcs bucket"
	ErrorUploadingToGCSBucket = "Failed to upload to GCS bucket"
	ErrorClosingGCSClient     = "Failed to close GCS client"
	ErrorClosingGCSWriter     = "Failed to close GCS writer"
	ErrorMarshallingJSON      = "Failed to marshal JSON"
	ErrorDeadLettering        = "failed to dead-letter log record"

	// Handlers and forwarder
	ErrorSubmittingToPool   = "failed to submit log record to shipping pool"
	ErrorReadingInput       = "failed to read forwarder input"
	ForwarderStarted        = "Forwarder started"
	ForwarderStopped        = "Forwarder stopped"
	InputLineTooLong        = "forwarder input line too long, dropped"
	InvalidLogPayload       = "invalid log payload"
	ErrorIngestingLogRecord = "failed to ingest log record"

	// OTel
	OTLPConnectionError = "OTLP connection error"
)

const (
	GCSClientClosedSuccessfully = "GCS client closed successfully"
	TopicVerified               = "pubsub topic verified"
	ErrorInvalidDefaultTopic    = "default pubsub topic is invalid"
	ErrorBuildingShipper        = "failed to build log shipper"
	ErrorStartingForwarder      = "failed to start forwarder"
)
