package interfaces

import "context"

// PublisherInterface defines the methods we need from pubsub.Publisher
type PublisherInterface interface {
	Publish(ctx context.Context, data []byte, attributes map[string]string) (string, error)
}

// PubSubPublisherClientInterface defines the methods we need from pubsub.Client for publishing
type PubSubPublisherClientInterface interface {
	Publisher(topicPath string) PublisherInterface
	// GetTopic returns the server-side error of a topic lookup, nil when the topic exists.
	GetTopic(ctx context.Context, topicPath string) error
	Close() error
}
