package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/ericogr/mq2-to-mqtt/pkg/config"
	"github.com/ericogr/mq2-to-mqtt/pkg/mq2"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

const (
	DefaultAddr     = ":8080"
	shutdownTimeout = 5 * time.Second
)

// HTTPOutput keeps the latest calibration and reading in memory and serves
// them as JSON.
type HTTPOutput struct {
	sensorID string
	srv      *http.Server
	log      *slog.Logger

	mu          sync.RWMutex
	calibration *mq2.Calibration
	reading     *mq2.Reading
}

// NewHTTP starts serving on cfg.Addr in the background.
func NewHTTP(cfg config.HTTPConfig, sensorID string, log *slog.Logger) (*HTTPOutput, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	h := New(sensorID, log, os.Stdout)
	go func() {
		if err := h.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.log.Error("http server stopped", slog.Any("err", err))
		}
	}()
	h.log.Info("http listening", slog.String("addr", ln.Addr().String()))
	return h, nil
}

// New builds the output without listening; access logs go to accessLog.
func New(sensorID string, log *slog.Logger, accessLog io.Writer) *HTTPOutput {
	if log == nil {
		log = slog.Default()
	}
	h := &HTTPOutput{sensorID: sensorID, log: log.With(slog.String("component", "http"))}
	h.srv = &http.Server{
		Handler:           handlers.RecoveryHandler()(handlers.LoggingHandler(accessLog, h.Router())),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return h
}

func (h *HTTPOutput) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.HandleFunc("/calibration", h.getCalibration).Methods(http.MethodGet)
	r.HandleFunc("/reading", h.getReading).Methods(http.MethodGet)
	r.HandleFunc("/reading/{gas}", h.getGas).Methods(http.MethodGet)
	return r
}

func (h *HTTPOutput) Handler() http.Handler { return h.srv.Handler }

func (h *HTTPOutput) PublishCalibration(c mq2.Calibration) error {
	h.mu.Lock()
	h.calibration = &c
	h.mu.Unlock()
	return nil
}

func (h *HTTPOutput) Publish(r mq2.Reading) error {
	h.mu.Lock()
	h.reading = &r
	h.mu.Unlock()
	return nil
}

func (h *HTTPOutput) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.srv.Shutdown(ctx)
}

func (h *HTTPOutput) health(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	calibrated := h.calibration != nil
	h.mu.RUnlock()
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "sensor_id": h.sensorID, "calibrated": calibrated})
}

func (h *HTTPOutput) getCalibration(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	c := h.calibration
	h.mu.RUnlock()
	if c == nil {
		writeError(w, http.StatusServiceUnavailable, mq2.ErrNotCalibrated.Error())
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *HTTPOutput) getReading(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	r := h.reading
	h.mu.RUnlock()
	if r == nil {
		writeError(w, http.StatusServiceUnavailable, "no reading yet")
		return
	}
	writeJSON(w, http.StatusOK, r)
}

func (h *HTTPOutput) getGas(w http.ResponseWriter, req *http.Request) {
	g, err := mq2.ParseGas(mux.Vars(req)["gas"])
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.mu.RLock()
	r := h.reading
	h.mu.RUnlock()
	if r == nil {
		writeError(w, http.StatusServiceUnavailable, "no reading yet")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"gas":       g.String(),
		"ppm":       r.Values.Get(g),
		"detected":  r.Detected,
		"timestamp": r.Timestamp,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
