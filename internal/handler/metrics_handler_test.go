package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/advanced-filters-api/internal/service"
)

func TestMetricsHandlerReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	healthy := PingFunc(func(ctx context.Context) error { return nil })
	down := PingFunc(func(ctx context.Context) error { return errors.New("connection refused") })

	cases := map[string]struct {
		checks map[string]Pinger
		status int
	}{
		"all reachable":   {map[string]Pinger{"postgres": healthy}, http.StatusOK},
		"database down":   {map[string]Pinger{"postgres": down}, http.StatusServiceUnavailable},
		"no dependencies": {nil, http.StatusOK},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/ready", nil)

			NewMetricsHandler(nil, tc.checks).Ready(c)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestMetricsHandlerSummary(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	metrics.RecordApply(service.ApplyOutcomeApplied, 0)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/metrics/summary", nil)
	NewMetricsHandler(metrics, nil).Summary(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"applied":1`)
}
