package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"harvest-iot-backend/internal/tracker"
)

var historyRanges = map[string]time.Duration{
	"1h":  time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// historyWindow resolves the range query parameter. Unknown values fall back to 24h.
func historyWindow(raw string) time.Duration {
	if d, ok := historyRanges[raw]; ok {
		return d
	}
	return historyRanges["24h"]
}

// ListDevices handles GET /api/devices.
func (h *Handler) ListDevices(c *gin.Context) {
	devices, err := h.svc.Devices(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, devices)
}

// GetDevice handles GET /api/devices/:id.
func (h *Handler) GetDevice(c *gin.Context) {
	rec, err := h.svc.Device(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// GetDeviceHistory handles GET /api/devices/:id/history?range=1h|24h|7d|30d.
func (h *Handler) GetDeviceHistory(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.svc.Device(c.Request.Context(), id); err != nil {
		abortWithError(c, err)
		return
	}
	history, err := h.svc.History(c.Request.Context(), id, historyWindow(c.Query("range")))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

// CreateDevice handles POST /api/devices.
func (h *Handler) CreateDevice(c *gin.Context) {
	var req tracker.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.VegetableID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "vegetableId is required"})
		return
	}

	rec, err := h.svc.RegisterDevice(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// UpdateDevice handles PUT /api/devices/:id with a partial sensor update.
func (h *Handler) UpdateDevice(c *gin.Context) {
	var req tracker.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.svc.UpdateDevice(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

type transferRequest struct {
	StationID string `json:"stationId" binding:"required"`
}

// TransferDevice handles POST /api/devices/:id/transfer.
func (h *Handler) TransferDevice(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.svc.TransferDevice(c.Request.Context(), c.Param("id"), req.StationID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// DeleteDevice handles DELETE /api/devices/:id.
func (h *Handler) DeleteDevice(c *gin.Context) {
	if err := h.svc.DeleteDevice(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
