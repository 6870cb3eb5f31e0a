package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type stubShipper struct {
	topics []string
}

func (s *stubShipper) Ship(_ context.Context, topic string, _ map[string]any) error {
	s.topics = append(s.topics, topic)
	return nil
}

func TestSetupRouterRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	shipper := &stubShipper{}
	server := SetupRouter("pubsub-logging-test", "proj1", shipper)

	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
		"/IntegrationServices/PubSubLogging/HealthCheck", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Health Check"}`, w.Body.String())

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/IntegrationServices/PubSubLogging/Logs?topic=audit",
		strings.NewReader(`{"msg":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	server.ServeHTTP(w, req)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"audit"}, shipper.topics)

	w = httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/IntegrationServices/PubSubLogging/Logs", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
