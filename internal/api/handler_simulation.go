package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"harvest-iot-backend/internal/notification"
)

// Tick handles POST /api/simulation/tick by running one simulation step immediately.
func (h *Handler) Tick(c *gin.Context) {
	records, err := h.svc.TickOnce(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

// Randomize handles POST /api/simulation/randomize.
func (h *Handler) Randomize(c *gin.Context) {
	records, err := h.svc.Randomize(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

// Stream handles GET /ws. The connection receives an init snapshot followed by every
// device event until either side closes it.
func (h *Handler) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the error response.
		logrus.WithError(err).Warn("websocket upgrade failed")
		return
	}

	ctx := c.Request.Context()
	err = h.hub.Serve(ctx, conn, func() notification.Message { return h.svc.InitMessage(ctx) })
	if err != nil {
		logrus.WithError(err).Debug("push listener closed with error")
	}
}

// Health handles GET /healthz.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"devices":   len(h.svc.Simulator().Devices()),
		"listeners": h.hub.ClientCount(),
	})
}
