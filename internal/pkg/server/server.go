package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/anicoll/cloudage-integration/internal/pkg/model"
	"github.com/anicoll/cloudage-integration/pkg/sockets"
)

type bridgeService interface {
	Devices() []model.DeviceView
	Device(deviceID string) (model.DeviceView, bool)
	Request(ctx context.Context, deviceID string, index int, value bool) error
}

type healthChecker interface {
	IsConnected() bool
}

const (
	eventState   = "state"
	eventDevices = "devices"
)

// event is the frame streamed to websocket clients.
type event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type server struct {
	bridge    bridgeService
	broker    healthChecker
	hub       *sockets.Hub
	tokenHash string
	logger    *zap.Logger
}

// New builds the HTTP API. An empty tokenHash disables authentication.
func New(bridge bridgeService, broker healthChecker, tokenHash string) *server {
	s := &server{
		bridge:    bridge,
		broker:    broker,
		tokenHash: tokenHash,
		logger:    zap.L(),
	}
	s.hub = sockets.NewHub(
		sockets.OnConnected(func(c *sockets.Client) {
			if data, err := marshalEvent(eventDevices, s.bridge.Devices()); err == nil {
				c.Send(data)
			}
		}),
		sockets.OnError(func(err error) {
			s.logger.Debug("websocket client error", zap.Error(err))
		}),
	)
	return s
}

func (s *server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware)

	r.Get("/health", s.handleHealth)
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.tokenHash))
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Put("/outputs/{output}/{state}", s.handleSetOutput)
			})
		})
		r.Get("/ws", s.hub.ServeHTTP)
	})
	return r
}

// Write streams a state change to websocket clients.
func (s *server) Write(_ context.Context, state model.OutputState) error {
	return s.hub.Broadcast(event{Type: eventState, Data: state})
}

// RegisterDevice pushes the refreshed device list to websocket clients.
func (s *server) RegisterDevice(_ context.Context, _ model.DeviceView) error {
	return s.hub.Broadcast(event{Type: eventDevices, Data: s.bridge.Devices()})
}

// Close disconnects websocket clients.
func (s *server) Close() {
	s.hub.Close()
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if !s.broker.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "mqtt": "disconnected"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "mqtt": "connected"})
}

func (s *server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.bridge.Devices())
}

func (s *server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	device, ok := s.bridge.Device(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, device)
}

func (s *server) handleSetOutput(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")
	output, err := strconv.Atoi(chi.URLParam(r, "output"))
	if err != nil || output < 1 {
		writeError(w, http.StatusBadRequest, "output must be a positive integer")
		return
	}
	var value bool
	switch chi.URLParam(r, "state") {
	case "on":
		value = true
	case "off":
		value = false
	default:
		writeError(w, http.StatusBadRequest, "state must be on or off")
		return
	}

	if err := s.bridge.Request(r.Context(), deviceID, output-1, value); err != nil {
		s.logger.Warn("output request failed", zap.String("device_id", deviceID), zap.Int("output", output), zap.Error(err))
		writeError(w, statusFor(err), err.Error())
		return
	}
	s.logger.Info("output switched", zap.String("device_id", deviceID), zap.Int("output", output), zap.Bool("value", value))
	w.WriteHeader(http.StatusNoContent)
}
