package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"pubsub-logging/internal/pkg/consts"
	"pubsub-logging/internal/pkg/log_messages"
	"pubsub-logging/internal/pkg/logger"
	"pubsub-logging/internal/pkg/pubsub"
	"pubsub-logging/internal/pkg/utils"
	"pubsub-logging/internal/service/interfaces"
	"pubsub-logging/internal/service/shipper"

	"github.com/gin-gonic/gin"
)

type LogIngestResponse struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type LogIngestHandler struct {
	shipper   interfaces.ShipperInterface
	projectID string
}

func NewLogIngestHandler(shipper interfaces.ShipperInterface, projectID string) *LogIngestHandler {
	return &LogIngestHandler{
		shipper:   shipper,
		projectID: projectID,
	}
}

// IngestLog ships one JSON object body to the topic named by the "topic"
// query parameter, or the default topic when it is absent. Sensitive fields
// are masked before shipping. A record the shipper dead-lettered is
// answered 202 so that clients do not resend it.
func (h *LogIngestHandler) IngestLog(c *gin.Context) {
	ctx := c.Request.Context()
	topic := c.Query("topic")
	if topic != "" {
		if _, err := pubsub.TopicPath(h.projectID, topic); err != nil {
			c.JSON(http.StatusBadRequest, LogIngestResponse{Error: err.Error()})
			return
		}
	}

	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil || body == nil {
		logger.CtxWarn(ctx, log_messages.InvalidLogPayload, slog.Any("error", err))
		c.JSON(http.StatusBadRequest, LogIngestResponse{Error: log_messages.InvalidLogPayload})
		return
	}

	body = utils.MaskSensitiveData(body, consts.SensitiveKeys, consts.MaskedValue)
	err := h.shipper.Ship(ctx, topic, body)
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, LogIngestResponse{Message: "accepted"})
	case shipper.IsDeadLettered(err):
		// Stored for replay; a client retry would duplicate it.
		c.JSON(http.StatusAccepted, LogIngestResponse{Message: "dead-lettered", Error: err.Error()})
	case pubsub.IsRecoverable(err):
		c.Header("Retry-After", consts.RetryAfterSecs)
		c.JSON(http.StatusServiceUnavailable, LogIngestResponse{Error: err.Error()})
	case errors.Is(err, pubsub.ErrInvalidTopicPath):
		c.JSON(http.StatusBadRequest, LogIngestResponse{Error: err.Error()})
	default:
		logger.CtxError(ctx, log_messages.ErrorIngestingLogRecord, err, slog.String("topic", topic))
		c.JSON(http.StatusBadGateway, LogIngestResponse{Error: err.Error()})
	}
}
