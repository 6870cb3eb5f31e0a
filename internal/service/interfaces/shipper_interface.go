package interfaces

import "context"

// ShipperInterface delivers one log record, retrying recoverable failures.
// An empty topic means the configured default topic.
type ShipperInterface interface {
	Ship(ctx context.Context, topic string, body map[string]any) error
}
