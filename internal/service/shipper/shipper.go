package shipper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"pubsub-logging/internal/pkg/log_messages"
	"pubsub-logging/internal/pkg/logger"
	"pubsub-logging/internal/pkg/pubsub"
	"pubsub-logging/internal/service/interfaces"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "pubsub-logging/internal/service/shipper"

// RetryPolicy bounds the retries of recoverable publish failures.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

type shipperMetrics struct {
	shipped      metric.Int64Counter
	retried      metric.Int64Counter
	failed       metric.Int64Counter
	deadLettered metric.Int64Counter
}

func newShipperMetrics(meter metric.Meter) (*shipperMetrics, error) {
	shipped, err := meter.Int64Counter("pubsub_logging.records.shipped",
		metric.WithDescription("Log records published to Pub/Sub."))
	if err != nil {
		return nil, err
	}
	retried, err := meter.Int64Counter("pubsub_logging.records.retried",
		metric.WithDescription("Publish attempts retried after a recoverable failure."))
	if err != nil {
		return nil, err
	}
	failed, err := meter.Int64Counter("pubsub_logging.records.failed",
		metric.WithDescription("Log records that could not be published."))
	if err != nil {
		return nil, err
	}
	deadLettered, err := meter.Int64Counter("pubsub_logging.records.dead_lettered",
		metric.WithDescription("Failed log records written to the dead-letter sink."))
	if err != nil {
		return nil, err
	}
	return &shipperMetrics{
		shipped:      shipped,
		retried:      retried,
		failed:       failed,
		deadLettered: deadLettered,
	}, nil
}

// DeadLetteredError wraps a publish error for a record the dead-letter sink
// has already stored. Shipping the record again would duplicate it.
type DeadLetteredError struct {
	Err error
}

func (e *DeadLetteredError) Error() string {
	return "dead-lettered: " + e.Err.Error()
}

func (e *DeadLetteredError) Unwrap() error {
	return e.Err
}

// IsDeadLettered reports whether err carries a *DeadLetteredError.
func IsDeadLettered(err error) bool {
	var dead *DeadLetteredError
	return errors.As(err, &dead)
}

// Shipper publishes log records to a topic of one project, retrying
// recoverable failures and dead-lettering records it gives up on.
type Shipper struct {
	Publisher    interfaces.BodyPublisherInterface
	DeadLetter   interfaces.DeadLetterInterface
	ProjectID    string
	DefaultTopic string
	Retry        RetryPolicy
	metrics      *shipperMetrics
}

// NewShipper wires a shipper. deadLetter may be nil; a nil meter disables metrics.
func NewShipper(publisher interfaces.BodyPublisherInterface, deadLetter interfaces.DeadLetterInterface,
	projectID, defaultTopic string, retry RetryPolicy, meter metric.Meter) (*Shipper, error) {
	if publisher == nil {
		return nil, errors.New("shipper requires a publisher")
	}
	if meter == nil {
		meter = noop.NewMeterProvider().Meter(meterName)
	}
	metrics, err := newShipperMetrics(meter)
	if err != nil {
		return nil, err
	}
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	return &Shipper{
		Publisher:    publisher,
		DeadLetter:   deadLetter,
		ProjectID:    projectID,
		DefaultTopic: defaultTopic,
		Retry:        retry,
		metrics:      metrics,
	}, nil
}

func (s *Shipper) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if s.Retry.InitialInterval > 0 {
		b.InitialInterval = s.Retry.InitialInterval
	}
	if s.Retry.MaxInterval > 0 {
		b.MaxInterval = s.Retry.MaxInterval
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.Retry.MaxAttempts-1)), ctx)
}

// Ship publishes body, an empty topic meaning the default topic. The returned
// error is the last publish error: a *pubsub.RecoverableError when retries ran
// out, the transport error otherwise. It is wrapped in a *DeadLetteredError
// once the dead-letter sink holds the record.
func (s *Shipper) Ship(ctx context.Context, topic string, body map[string]any) error {
	if topic == "" {
		topic = s.DefaultTopic
	}
	attrs := metric.WithAttributes(attribute.String("topic", topic))

	attempt := 0
	operation := func() error {
		attempt++
		err := s.Publisher.PublishBody(ctx, body, s.ProjectID, topic)
		if err == nil || pubsub.IsRecoverable(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		s.metrics.retried.Add(ctx, 1, attrs)
		logger.CtxWarn(ctx, log_messages.RetryingRecoverablePublish,
			slog.String("topic", topic), slog.Int("attempt", attempt), slog.Duration("wait", wait))
	}

	err := backoff.RetryNotify(operation, s.newBackOff(ctx), notify)
	if err == nil {
		s.metrics.shipped.Add(ctx, 1, attrs)
		return nil
	}

	s.metrics.failed.Add(ctx, 1, attrs)
	if pubsub.IsRecoverable(err) {
		logger.CtxError(ctx, log_messages.RetriesExhausted, err,
			slog.String("topic", topic), slog.Int("attempts", attempt))
	} else {
		logger.CtxError(ctx, log_messages.ShippingFailed, err, slog.String("topic", topic))
	}
	if s.deadLetter(ctx, topic, body, err, attrs) {
		return &DeadLetteredError{Err: err}
	}
	return err
}

func (s *Shipper) deadLetter(ctx context.Context, topic string, body map[string]any, cause error,
	attrs metric.MeasurementOption) bool {
	if s.DeadLetter == nil {
		return false
	}
	if err := s.DeadLetter.Upload(ctx, topic, body, cause); err != nil {
		logger.CtxError(ctx, log_messages.ErrorDeadLettering, err, slog.String("topic", topic))
		return false
	}
	s.metrics.deadLettered.Add(ctx, 1, attrs)
	return true
}
