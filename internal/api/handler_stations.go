package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"harvest-iot-backend/internal/flow"
	"harvest-iot-backend/internal/tracker"
)

// ListStations handles GET /api/stations, optionally filtered by ?stage=garden|GS|...
func (h *Handler) ListStations(c *gin.Context) {
	sim := h.svc.Simulator()
	raw := c.Query("stage")
	if raw == "" {
		c.JSON(http.StatusOK, sim.Stations())
		return
	}
	stage, ok := flow.ParseStage(raw)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown stage %q", raw)})
		return
	}
	c.JSON(http.StatusOK, sim.StationsByStage(stage))
}

// groupKeys are the keys of the grouped station listing, one per stage.
var groupKeys = map[flow.Stage]string{
	flow.StageGarden:   "gardens",
	flow.StageStorage:  "storage",
	flow.StageDelivery: "delivery",
	flow.StageClient:   "clients",
}

// GetStationsGrouped handles GET /api/stations/grouped.
func (h *Handler) GetStationsGrouped(c *gin.Context) {
	grouped := h.svc.Simulator().StationsGrouped()
	out := make(map[string][]flow.Station, len(groupKeys))
	for stage, key := range groupKeys {
		stations := grouped[stage]
		if stations == nil {
			stations = []flow.Station{}
		}
		out[key] = stations
	}
	c.JSON(http.StatusOK, out)
}

type stationDetail struct {
	flow.Station
	DeviceCount int  `json:"deviceCount"`
	Capacity    *int `json:"capacity,omitempty"`
	HasCapacity bool `json:"hasCapacity"`
}

// GetStation handles GET /api/stations/:id.
func (h *Handler) GetStation(c *gin.Context) {
	sim := h.svc.Simulator()
	id := strings.ToUpper(c.Param("id"))
	st, ok := sim.Station(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "station not found"})
		return
	}

	detail := stationDetail{
		Station:     st,
		DeviceCount: sim.DeviceCount(id),
		HasCapacity: sim.HasCapacity(id),
	}
	if st.Stage == flow.StageClient {
		capacity := st.EffectiveCapacity()
		detail.Capacity = &capacity
	}
	c.JSON(http.StatusOK, detail)
}

// CreateStation handles POST /api/stations.
func (h *Handler) CreateStation(c *gin.Context) {
	var req tracker.StationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	st, err := h.svc.RegisterStation(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

// DeleteStation handles DELETE /api/stations/:id.
func (h *Handler) DeleteStation(c *gin.Context) {
	if err := h.svc.RemoveStation(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListProducts handles GET /api/products.
func (h *Handler) ListProducts(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Simulator().Products())
}

// CreateProduct handles POST /api/products.
func (h *Handler) CreateProduct(c *gin.Context) {
	var req tracker.ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := h.svc.RegisterProduct(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}
