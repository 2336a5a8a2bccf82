package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/eventpilot/gallery-backend/internal/clients/redis"
	"github.com/eventpilot/gallery-backend/internal/logger"
)

// wireRouter builds the operational HTTP surface. The admin API that
// triggers pipelines lives in a separate backend; this service only exposes
// health probes and import-progress reads.
func wireRouter(log *logger.Logger, cfg Config, progress redis.ProgressStore) *gin.Engine {
	if cfg.LogMode == "prod" || cfg.LogMode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	router.GET("/galleries/:id/import-progress", func(c *gin.Context) {
		galleryID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid gallery id"})
			return
		}
		p, err := progress.Get(c.Request.Context(), galleryID.String())
		if err != nil {
			log.Error("Failed to read import progress", "gallery_id", galleryID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "progress lookup failed"})
			return
		}
		if p == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no import in progress"})
			return
		}
		c.JSON(http.StatusOK, p)
	})

	return router
}
