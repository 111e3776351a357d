package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ericogr/mq2-to-mqtt/pkg/config"
	"github.com/ericogr/mq2-to-mqtt/pkg/mq2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, h http.Handler, path string) (int, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	return rec.Code, body
}

func TestEndpointsBeforeData(t *testing.T) {
	h := New("kitchen", nil, io.Discard)
	code, body := get(t, h.Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["calibrated"])

	code, _ = get(t, h.Handler(), "/calibration")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	code, _ = get(t, h.Handler(), "/reading")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	code, _ = get(t, h.Handler(), "/reading/co")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestEndpointsServeLatest(t *testing.T) {
	h := New("kitchen", nil, io.Discard)
	ts := time.Date(2025, 9, 19, 14, 41, 54, 0, time.UTC)
	require.NoError(t, h.PublishCalibration(mq2.Calibration{Ro: 1.25, Samples: 50, Timestamp: ts}))
	require.NoError(t, h.Publish(mq2.Reading{Timestamp: ts, Raw: 300, Values: mq2.LpgCoSmoke{LPG: 10, CO: 1500, Smoke: 20}, Detected: true}))

	code, body := get(t, h.Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["calibrated"])
	assert.Equal(t, "kitchen", body["sensor_id"])

	code, body = get(t, h.Handler(), "/calibration")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1.25, body["ro_kohm"])

	code, body = get(t, h.Handler(), "/reading")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 300.0, body["raw"])
	assert.Equal(t, true, body["detected"])

	code, body = get(t, h.Handler(), "/reading/CO")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "co", body["gas"])
	assert.Equal(t, 1500.0, body["ppm"])

	code, _ = get(t, h.Handler(), "/reading/methane")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestMethodNotAllowed(t *testing.T) {
	h := New("kitchen", nil, io.Discard)
	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reading", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestNewHTTPServes(t *testing.T) {
	h, err := NewHTTP(config.HTTPConfig{Addr: "127.0.0.1:0"}, "kitchen", nil)
	require.NoError(t, err)
	require.NoError(t, h.Close())
}
