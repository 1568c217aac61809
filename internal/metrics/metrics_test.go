package metrics_test

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attribly/internal/metrics"
)

func TestObserveQueryCountsErrors(t *testing.T) {
	before := testutil.ToFloat64(metrics.QueryErrors.WithLabelValues("metrics_test"))

	metrics.ObserveQuery("metrics_test", time.Now(), nil)
	metrics.ObserveQuery("metrics_test", time.Now(), errors.New("boom"))

	after := testutil.ToFloat64(metrics.QueryErrors.WithLabelValues("metrics_test"))
	assert.Equal(t, before+1, after)
}

func TestMetricsHandlerExposesCollectors(t *testing.T) {
	metrics.Init()
	metrics.Init()
	metrics.ObserveCache(metrics.CacheHit)

	app := fiber.New()
	app.Get("/metrics", metrics.MetricsHandler())

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "attribly_cache_lookups_total")
}
