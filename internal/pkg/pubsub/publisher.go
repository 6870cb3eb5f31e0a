package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"pubsub-logging/internal/pkg/consts"
	"pubsub-logging/internal/pkg/log_messages"
	"pubsub-logging/internal/pkg/logger"
	"pubsub-logging/internal/service/interfaces"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const tracerName = "pubsub-logging/internal/pkg/pubsub"

var (
	topicIDPattern   = regexp.MustCompile(consts.ValidTopicID)
	projectIDPattern = regexp.MustCompile(consts.ValidProjectID)
	traceContext     = propagation.TraceContext{}
)

// DiagnosticFunc receives errors that are reported but not returned.
type DiagnosticFunc func(ctx context.Context, msg string, err error)

func logDiagnostic(ctx context.Context, msg string, err error) {
	logger.CtxWarn(ctx, msg, slog.Any("error", err))
}

// PubSubPublisher is the shared publisher handle. It is safe for concurrent use.
type PubSubPublisher struct {
	PubSubClient interfaces.PubSubPublisherClientInterface
	Classifier   ErrorClassifier
	Diagnostics  DiagnosticFunc
	Ctx          context.Context
	Cancel       context.CancelFunc
}

// PubSubPublisherClientFactory makes new clients (mockable in tests).
type PubSubPublisherClientFactory interface {
	NewPubSubPublisherClient(ctx context.Context, projectID string,
		opts ...option.ClientOption) (interfaces.PubSubPublisherClientInterface, error)
}

// defaultPubSubPublisherClientFactory creates Google Pub/Sub clients for publishing.
type defaultPubSubPublisherClientFactory struct{}

func (f *defaultPubSubPublisherClientFactory) NewPubSubPublisherClient(ctx context.Context,
	projectID string, opts ...option.ClientOption) (interfaces.PubSubPublisherClientInterface, error) {
	sdkClient, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, err
	}
	return &pubSubPublisherClientAdapter{
		client:     sdkClient,
		publishers: make(map[string]*pubsub.Publisher),
	}, nil
}

// pubSubPublisherClientAdapter wraps *pubsub.Client and keeps one
// *pubsub.Publisher per topic path for the lifetime of the client.
type pubSubPublisherClientAdapter struct {
	client     *pubsub.Client
	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

func (c *pubSubPublisherClientAdapter) Publisher(topicPath string) interfaces.PublisherInterface {
	c.mu.Lock()
	defer c.mu.Unlock()
	publisher, ok := c.publishers[topicPath]
	if !ok {
		publisher = c.client.Publisher(topicPath)
		c.publishers[topicPath] = publisher
	}
	return &publisherAdapter{publisher: publisher}
}

func (c *pubSubPublisherClientAdapter) GetTopic(ctx context.Context, topicPath string) error {
	_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: topicPath})
	return err
}

func (c *pubSubPublisherClientAdapter) Close() error {
	c.mu.Lock()
	for path, publisher := range c.publishers {
		publisher.Stop()
		delete(c.publishers, path)
	}
	c.mu.Unlock()
	return c.client.Close()
}

type publisherAdapter struct {
	publisher *pubsub.Publisher
}

// Publish blocks until the broker acks or rejects the message.
func (p *publisherAdapter) Publish(ctx context.Context, data []byte, attributes map[string]string) (string, error) {
	result := p.publisher.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attributes,
	})
	return result.Get(ctx)
}

// NewPubSubPublisher builds the publisher handle. opts are the optional
// transport and credential overrides handed to the Pub/Sub client.
// Declared as a variable so tests can replace it.
var NewPubSubPublisher = func(ctx context.Context, projectID string,
	opts ...option.ClientOption) (*PubSubPublisher, error) {
	factory := &defaultPubSubPublisherClientFactory{}
	return NewPubSubPublisherWithFactory(ctx, projectID, factory, opts...)
}

// Construct with a factory (testable).
func NewPubSubPublisherWithFactory(ctx context.Context, projectID string,
	factory PubSubPublisherClientFactory, opts ...option.ClientOption) (*PubSubPublisher, error) {
	client, err := factory.NewPubSubPublisherClient(ctx, projectID, opts...)
	if err != nil {
		logger.CtxError(ctx, log_messages.ErrorPubSubClientCreation, err)
		return nil, err
	}
	logger.CtxInfo(ctx, log_messages.PubsubPublisherCreated, slog.String("project_id", projectID))

	publisherCtx, cancel := context.WithCancel(ctx)
	return &PubSubPublisher{
		PubSubClient: client,
		Classifier:   LegacyClassifier{},
		Diagnostics:  logDiagnostic,
		Ctx:          publisherCtx,
		Cancel:       cancel,
	}, nil
}

// TopicPath resolves a project id and topic name into the fully-qualified
// path understood by Pub/Sub.
func TopicPath(projectID, topic string) (string, error) {
	if !projectIDPattern.MatchString(projectID) {
		return "", fmt.Errorf("%w: project id %q", ErrInvalidTopicPath, projectID)
	}
	if !topicIDPattern.MatchString(topic) ||
		strings.HasPrefix(strings.ToLower(topic), consts.ReservedTopicIDPfx) {
		return "", fmt.Errorf("%w: topic %q", ErrInvalidTopicPath, topic)
	}
	return fmt.Sprintf(consts.TopicPathFormat, projectID, topic), nil
}

// CheckTopic is a best-effort probe: true when the pair resolves to a topic
// path. Resolving does not prove the topic exists on the server; see VerifyTopic.
func (p *PubSubPublisher) CheckTopic(ctx context.Context, projectID, topic string) bool {
	if _, err := TopicPath(projectID, topic); err != nil {
		p.diagnose(ctx, log_messages.TopicCheckFailed, err)
		return false
	}
	return true
}

// VerifyTopic asks the server whether the topic exists. A NotFound answer is
// (false, nil); other lookup failures are returned.
func (p *PubSubPublisher) VerifyTopic(ctx context.Context, projectID, topic string) (bool, error) {
	topicPath, err := TopicPath(projectID, topic)
	if err != nil {
		return false, err
	}
	err = p.PubSubClient.GetTopic(ctx, topicPath)
	switch {
	case err == nil:
		return true, nil
	case status.Code(err) == codes.NotFound:
		logger.CtxWarn(ctx, log_messages.TopicNotFoundOnServer, slog.String("topic", topicPath))
		return false, nil
	default:
		logger.CtxError(ctx, log_messages.ErrorVerifyingTopic, err, slog.String("topic", topicPath))
		return false, err
	}
}

// PublishBody serializes body as JSON and publishes it to the topic. A failure
// the classifier deems recoverable is returned as *RecoverableError; every
// other failure is returned unchanged.
func (p *PubSubPublisher) PublishBody(ctx context.Context, body map[string]any, projectID, topic string) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "pubsub.publish",
		trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	topicPath, err := TopicPath(projectID, topic)
	if err != nil {
		logger.CtxError(ctx, log_messages.ErrorResolvingTopicPath, err)
		recordSpanError(span, err)
		return err
	}
	span.SetAttributes(
		attribute.String("messaging.system", "gcp_pubsub"),
		attribute.String("messaging.destination.name", topicPath),
	)

	data, err := json.Marshal(body)
	if err != nil {
		logger.CtxError(ctx, log_messages.ErrorMarshallingMessage, err)
		recordSpanError(span, err)
		return err
	}

	messageID, err := p.PubSubClient.Publisher(topicPath).Publish(ctx, data, traceAttributes(ctx))
	if err != nil {
		recordSpanError(span, err)
		if p.classifier().IsRecoverable(err) {
			logger.CtxWarn(ctx, log_messages.RecoverablePublishFailure,
				slog.String("topic", topicPath), slog.Any("error", err))
			return &RecoverableError{}
		}
		logger.CtxError(ctx, log_messages.ErrorInMessagePublishing, err, slog.String("topic", topicPath))
		return err
	}

	logger.CtxDebug(ctx, log_messages.SuccessPubSubPublish,
		slog.String("topic", topicPath), slog.String("message_id", messageID))
	return nil
}

func (p *PubSubPublisher) Close() error {
	if p.Cancel != nil {
		p.Cancel()
	}
	if p.PubSubClient == nil {
		return nil
	}
	return p.PubSubClient.Close()
}

func (p *PubSubPublisher) classifier() ErrorClassifier {
	if p.Classifier == nil {
		return LegacyClassifier{}
	}
	return p.Classifier
}

func (p *PubSubPublisher) diagnose(ctx context.Context, msg string, err error) {
	if p.Diagnostics == nil {
		logDiagnostic(ctx, msg, err)
		return
	}
	p.Diagnostics(ctx, msg, err)
}

// traceAttributes carries the W3C trace context of ctx, nil when ctx has no span.
func traceAttributes(ctx context.Context) map[string]string {
	carrier := propagation.MapCarrier{}
	traceContext.Inject(ctx, carrier)
	if len(carrier) == 0 {
		return nil
	}
	return carrier
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(otelcodes.Error, err.Error())
}
