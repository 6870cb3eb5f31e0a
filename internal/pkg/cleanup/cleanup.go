package cleanup

import (
	"context"
	"net/http"
	"time"

	"pubsub-logging/internal/pkg/log_messages"
	"pubsub-logging/internal/pkg/logger"
	"pubsub-logging/internal/pkg/otel"
	"pubsub-logging/internal/service/interfaces"
)

// CleanupResources stops intake first, then drains queued records before the
// publisher they depend on is closed. Nil resources are skipped.
func CleanupResources(
	ctx context.Context,
	server *http.Server,
	drainers []interface{ Close() },
	pubsubPublisher interface{ Close() error },
	deadLetter interfaces.DeadLetterInterface,
	otelShutdown otel.ShutdownFunc,
) {
	logger.CtxInfo(ctx, log_messages.CleanupStarted)

	cleanupHTTPServer(server, ctx)
	for _, drainer := range drainers {
		cleanupDrainer(drainer, ctx)
	}
	cleanupPubSubResource(pubsubPublisher, "PubSub publisher", ctx)
	cleanupGCSResource(deadLetter, ctx)
	cleanupOtel(otelShutdown, ctx)

	logger.CtxInfo(ctx, log_messages.CleanupCompleted)
}

func cleanupHTTPServer(server *http.Server, ctx context.Context) {
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 8*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.CtxError(ctx, "Failed to shutdown HTTP server", err)
	} else {
		logger.CtxInfo(ctx, "HTTP server shutdown successfully")
	}
}

func cleanupDrainer(drainer interface{ Close() }, ctx context.Context) {
	if drainer == nil {
		return
	}
	drainer.Close()
	logger.CtxInfo(ctx, "Log record pool drained")
}

func cleanupPubSubResource(resource interface{ Close() error }, resourceName string, ctx context.Context) {
	if resource == nil {
		return
	}
	if err := resource.Close(); err != nil {
		logger.CtxError(ctx, "Failed to close "+resourceName, err)
	} else {
		logger.CtxInfo(ctx, resourceName+" closed successfully")
	}
}

func cleanupGCSResource(deadLetter interfaces.DeadLetterInterface, ctx context.Context) {
	if deadLetter == nil {
		return
	}
	deadLetter.Close(ctx)
	logger.CtxInfo(ctx, log_messages.GCSClientClosedSuccessfully)
}

func cleanupOtel(shutdown otel.ShutdownFunc, ctx context.Context) {
	if shutdown == nil {
		return
	}
	if err := shutdown(ctx); err != nil {
		logger.CtxError(ctx, "Failed to shutdown telemetry providers", err)
	}
}
