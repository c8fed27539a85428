package observability

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func TestMiddlewareLabelsRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.InfoLevel)

	r := gin.New()
	r.Use(RequestLogger(logger), RequestMetricsMiddleware("mw-test"))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/jobs/:label", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/health", "/jobs/a", "/jobs/b", "/nope/1", "/nope/2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(httpRequests.WithLabelValues("mw-test", "GET", "/jobs/:label", "200")); got != 2 {
		t.Fatalf("route label: got %v want 2", got)
	}
	if got := testutil.ToFloat64(httpRequests.WithLabelValues("mw-test", "GET", unmatchedRoute, "404")); got != 2 {
		t.Fatalf("unmatched label: got %v want 2", got)
	}

	out := buf.String()
	if strings.Contains(out, `"route":"/health"`) {
		t.Fatalf("health probe should log at debug: %s", out)
	}
	if strings.Count(out, `"route":"/jobs/:label"`) != 2 || strings.Count(out, `"level":"warn"`) != 2 {
		t.Fatalf("unexpected request log:\n%s", out)
	}
}
