// Package api wires the HTTP routes of the respatch server.
package api

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/respatch/internal/config"
	"github.com/jengzang/respatch/internal/handler"
	"github.com/jengzang/respatch/internal/middleware"
	"github.com/jengzang/respatch/internal/pipeline"
	"github.com/jengzang/respatch/internal/repository"
	"github.com/jengzang/respatch/internal/service"
)

// maxUploadMemory bounds the multipart form held in memory
const maxUploadMemory = 32 << 20

// SetupRouter builds the gin engine serving runs and their views
func SetupRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, error) {
	gin.SetMode(cfg.Server.Mode)

	p, err := pipeline.New(cfg.Pipeline)
	if err != nil {
		return nil, err
	}

	var tokens *middleware.TokenManager
	if cfg.Server.JWTSecret != "" {
		if tokens, err = middleware.NewTokenManager(cfg.Server.JWTSecret); err != nil {
			return nil, err
		}
	}

	runService := service.NewRunService(repository.NewRunRepository(db), repository.NewPatchRepository(db), p)
	runHandler := handler.NewRunHandler(runService)
	patchHandler := handler.NewPatchHandler(runService)

	r := gin.New()
	r.MaxMultipartMemory = maxUploadMemory
	r.Use(gin.Recovery(), middleware.Logger())

	// CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "respatch API is running",
		})
	})

	api := r.Group("/api/v1")
	api.Use(middleware.RateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst), middleware.Auth(tokens))
	{
		api.GET("/stages", runHandler.ListStages)

		runs := api.Group("/runs")
		{
			runs.GET("", runHandler.ListRuns)
			runs.POST("", runHandler.CreateRun)
			runs.GET("/:id", runHandler.GetRun)
			runs.DELETE("/:id", runHandler.DeleteRun)
			runs.GET("/:id/patches", patchHandler.GetPatches)
			runs.GET("/:id/patches.geojson", patchHandler.GetGeoJSON)
		}
	}
	return r, nil
}
