package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type stubPublisher struct {
	keys []string
	err  error
}

func (s *stubPublisher) Publish(_ context.Context, routingKey string, _ any, _ map[string]string) error {
	s.keys = append(s.keys, routingKey)
	return s.err
}

func TestPublishEventCountsErrors(t *testing.T) {
	defer SetPublisher(nil)
	require.NoError(t, PublishEvent(context.Background(), "ws_events.groups", EventEnvelope{}, nil))

	pub := &stubPublisher{err: errors.New("closed")}
	SetPublisher(pub)
	before := testutil.ToFloat64(amqpPublishErrorsTotal)

	err := PublishEvent(context.Background(), "ws_events.groups", EventEnvelope{EventName: "ws_connect"}, nil)
	require.Error(t, err)
	require.Equal(t, []string{"ws_events.groups"}, pub.keys)
	require.Equal(t, before+1, testutil.ToFloat64(amqpPublishErrorsTotal))
}

func TestBuildHeaders(t *testing.T) {
	require.Empty(t, BuildHeaders("", ""))
	require.Equal(t, map[string]string{"x-request-id": "r", "trace_id": "t"}, BuildHeaders("r", "t"))
}

func TestHTTPMetricsMiddlewareRecordsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(HTTPMetricsMiddleware())
	r.GET("/groups/:group_id", func(c *gin.Context) { c.Status(http.StatusOK) })

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/groups/:group_id", "200"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/groups/3", nil))
	require.Equal(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/groups/:group_id", "200")))
}

func TestSplitFullMethod(t *testing.T) {
	service, method := splitFullMethod("/grpc.health.v1.Health/Check")
	require.Equal(t, "grpc.health.v1.Health", service)
	require.Equal(t, "Check", method)

	service, method = splitFullMethod("bad")
	require.Equal(t, "unknown", service)
	require.Equal(t, "unknown", method)
}

func TestSetupTracingDisabled(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), "test", "", false)
	require.NoError(t, err)
	_, span := StartSpan(context.Background(), "noop")
	span.End()
	require.NoError(t, shutdown(context.Background()))
}

func TestIPFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.RemoteAddr = "10.0.0.2:5123"
	require.Equal(t, "10.0.0.2", IPFromRequest(req))

	req.Header.Set("X-Forwarded-For", " 192.168.1.9 , 10.0.0.1")
	require.Equal(t, "192.168.1.9", IPFromRequest(req))
}
