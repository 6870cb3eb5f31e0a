package interfaces

import "context"

// BodyPublisherInterface is the inbound contract of the publish layer. Errors are
// either the transport's own error (permanent) or a *pubsub.RecoverableError.
type BodyPublisherInterface interface {
	PublishBody(ctx context.Context, body map[string]any, projectID, topic string) error
}
