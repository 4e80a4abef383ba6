package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"harvest-iot-backend/config"
	"harvest-iot-backend/internal/mw"
	"harvest-iot-backend/internal/notification"
	"harvest-iot-backend/internal/tracker"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.ServerConfig, svc *tracker.Service, hub *notification.Hub) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(svc, hub)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst, cfg.RequestIPHeader)

	// Registry reads are cached until the TTL passes or the next successful write.
	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(ttl, 2*ttl)
	caching := func(c *gin.Context) { c.Next() }
	if ttl > 0 {
		caching = mw.Cache(cacheStore, ttl)
	}

	r.GET("/healthz", handler.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", handler.Stream)

	api := r.Group("/api")
	api.Use(rateLimiter, mw.Invalidate(cacheStore))
	{
		api.GET("/devices", handler.ListDevices)
		api.POST("/devices", handler.CreateDevice)
		api.GET("/devices/:id", handler.GetDevice)
		api.PUT("/devices/:id", handler.UpdateDevice)
		api.DELETE("/devices/:id", handler.DeleteDevice)
		api.GET("/devices/:id/history", handler.GetDeviceHistory)
		api.POST("/devices/:id/transfer", handler.TransferDevice)

		api.GET("/stations", caching, handler.ListStations)
		api.POST("/stations", handler.CreateStation)
		api.GET("/stations/grouped", caching, handler.GetStationsGrouped)
		api.GET("/stations/:id", handler.GetStation)
		api.DELETE("/stations/:id", handler.DeleteStation)

		api.GET("/products", caching, handler.ListProducts)
		api.POST("/products", handler.CreateProduct)

		api.POST("/simulation/tick", handler.Tick)
		api.POST("/simulation/randomize", handler.Randomize)
	}

	return r
}
