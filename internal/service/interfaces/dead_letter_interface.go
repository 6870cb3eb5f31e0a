package interfaces

import "context"

type DeadLetterInterface interface {
	Upload(ctx context.Context, topic string, body map[string]any, cause error) error
	Close(ctx context.Context)
}
