package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/respatch/internal/analysis/views"
	"github.com/jengzang/respatch/internal/service"
	"github.com/jengzang/respatch/pkg/response"
)

// geoJSONContentType is the media type of GeoJSON documents
const geoJSONContentType = "application/geo+json"

// PatchHandler serves the stored views of a run
type PatchHandler struct {
	service *service.RunService
}

// NewPatchHandler creates a new patch handler
func NewPatchHandler(service *service.RunService) *PatchHandler {
	return &PatchHandler{service: service}
}

// GetPatches returns one view of a run's patches
// GET /api/v1/runs/:id/patches?view=summary|points|spatial
func (h *PatchHandler) GetPatches(c *gin.Context) {
	view, err := views.ParseView(c.Query("view"))
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	rows, err := h.service.View(c.Request.Context(), c.Param("id"), view)
	if err != nil {
		notFoundOrInternal(c, err)
		return
	}

	response.Success(c, gin.H{"view": view, "rows": rows})
}

// GetGeoJSON returns the spatial view as a GeoJSON feature collection
// GET /api/v1/runs/:id/patches.geojson
func (h *PatchHandler) GetGeoJSON(c *gin.Context) {
	fc, err := h.service.FeatureCollection(c.Request.Context(), c.Param("id"))
	if err != nil {
		notFoundOrInternal(c, err)
		return
	}

	body, err := fc.MarshalJSON()
	if err != nil {
		response.InternalError(c, err.Error())
		return
	}
	c.Data(http.StatusOK, geoJSONContentType, body)
}
