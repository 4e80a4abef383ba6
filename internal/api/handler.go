package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"harvest-iot-backend/internal/flow"
	"harvest-iot-backend/internal/notification"
	"harvest-iot-backend/internal/store"
	"harvest-iot-backend/internal/tracker"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	svc      *tracker.Service
	hub      *notification.Hub
	upgrader websocket.Upgrader
}

// NewHandler creates a new API handler.
func NewHandler(svc *tracker.Service, hub *notification.Hub) *Handler {
	return &Handler{
		svc: svc,
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Dashboards are served from other origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, flow.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, flow.ErrDuplicateID), errors.Is(err, flow.ErrCapacityExceeded):
		return http.StatusConflict
	case errors.Is(err, flow.ErrInvalidArgument), errors.Is(err, flow.ErrUnknownProduct):
		return http.StatusBadRequest
	case errors.Is(err, flow.ErrNoGardenStations):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logrus.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
