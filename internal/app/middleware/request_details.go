package middleware

import (
	"context"
	"log/slog"
	"time"

	"pubsub-logging/internal/pkg/consts"
	"pubsub-logging/internal/pkg/logger"
	"pubsub-logging/internal/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type contextKey string

const RequestDetailsKey contextKey = "requestDetails"

type RequestDetails struct {
	RequestID   string
	IP          string
	UserAgent   string
	HTTPMethod  string
	Path        string
	RequestTime time.Time
}

// GetRequestDetails returns the details attached by AttachRequestDetails.
func GetRequestDetails(ctx context.Context) (RequestDetails, bool) {
	details, ok := ctx.Value(RequestDetailsKey).(RequestDetails)
	return details, ok
}

func extractHeaders(headers map[string][]string) map[string]any {
	result := make(map[string]any, len(headers))
	for key, values := range headers {
		if len(values) > 0 {
			result[key] = values[0]
		}
	}
	return utils.MaskSensitiveData(result, consts.SensitiveKeys, consts.MaskedValue)
}

// AttachRequestDetails tags each request with an id, echoed in the response,
// and logs one summary line once the handler is done.
func AttachRequestDetails() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(consts.RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		details := RequestDetails{
			RequestID:   requestID,
			IP:          c.ClientIP(),
			UserAgent:   c.Request.UserAgent(),
			HTTPMethod:  c.Request.Method,
			Path:        c.Request.URL.Path,
			RequestTime: time.Now().UTC(),
		}
		c.Header(consts.RequestIDHeader, requestID)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), RequestDetailsKey, details))

		c.Next()

		logger.CtxInfo(c.Request.Context(), "request completed",
			slog.String("request_id", details.RequestID),
			slog.String("ip", details.IP),
			slog.String("method", details.HTTPMethod),
			slog.String("path", details.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(details.RequestTime)),
			slog.Any("headers", extractHeaders(c.Request.Header)),
		)
	}
}
