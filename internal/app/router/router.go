package router

import (
	"pubsub-logging/internal/app/handlers"
	"pubsub-logging/internal/app/middleware"
	"pubsub-logging/internal/pkg/consts"
	"pubsub-logging/internal/service/interfaces"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
)

func SetupRouter(serviceName, projectID string, shipper interfaces.ShipperInterface) *gin.Engine {
	server := gin.Default()
	server.Use(otelgin.Middleware(serviceName))
	server.Use(middleware.NewMetricMiddleware(otel.Meter(serviceName)))
	server.Use(middleware.AttachRequestDetails())

	healthCheckHandler := handlers.NewHealthCheckHandler()
	server.GET(consts.HealthCheckPath, healthCheckHandler.HealthCheck)

	logIngestHandler := handlers.NewLogIngestHandler(shipper, projectID)
	server.POST(consts.LogsIngestPath, logIngestHandler.IngestLog)

	return server
}
