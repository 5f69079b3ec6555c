package handler

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/respatch/internal/analysis"
	"github.com/jengzang/respatch/internal/ingest"
	"github.com/jengzang/respatch/internal/models"
	"github.com/jengzang/respatch/internal/repository"
	"github.com/jengzang/respatch/internal/service"
	"github.com/jengzang/respatch/pkg/response"
)

// RunHandler handles HTTP requests for pipeline runs
type RunHandler struct {
	service *service.RunService
}

// NewRunHandler creates a new run handler
func NewRunHandler(service *service.RunService) *RunHandler {
	return &RunHandler{service: service}
}

// CreateRunResponse lists the runs created by one upload
type CreateRunResponse struct {
	Runs []*models.AnalysisRun `json:"runs"`
}

// CreateRun runs the pipeline over an uploaded fixes CSV and tide table.
// Both are multipart form files named "fixes" and "tides".
// POST /api/v1/runs
func (h *RunHandler) CreateRun(c *gin.Context) {
	inputs, err := formFile(c, "fixes", ingest.ReadFixes)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	tides, err := formFile(c, "tides", ingest.ReadTides)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if len(inputs) == 0 {
		response.BadRequest(c, "fixes file has no rows")
		return
	}

	runs, _, err := h.service.Execute(c.Request.Context(), inputs, tides)
	if err != nil {
		if analysis.IsSchemaError(err) {
			response.UnprocessableEntity(c, err.Error())
			return
		}
		response.InternalError(c, err.Error())
		return
	}

	response.Created(c, CreateRunResponse{Runs: runs})
}

// ListRuns returns a page of runs
// GET /api/v1/runs?individual=&status=&page=&pageSize=
func (h *RunHandler) ListRuns(c *gin.Context) {
	var filter models.RunFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BadRequest(c, "Invalid query parameters")
		return
	}

	runs, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.InternalError(c, err.Error())
		return
	}

	response.Success(c, runs)
}

// GetRun returns one run
// GET /api/v1/runs/:id
func (h *RunHandler) GetRun(c *gin.Context) {
	run, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		notFoundOrInternal(c, err)
		return
	}

	response.Success(c, run)
}

// DeleteRun removes a run and its stored views
// DELETE /api/v1/runs/:id
func (h *RunHandler) DeleteRun(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		notFoundOrInternal(c, err)
		return
	}

	response.Success(c, gin.H{"id": c.Param("id")})
}

// ListStages returns the registered pipeline stages
// GET /api/v1/stages
func (h *RunHandler) ListStages(c *gin.Context) {
	response.Success(c, analysis.Stages())
}

func notFoundOrInternal(c *gin.Context, err error) {
	if errors.Is(err, repository.ErrRunNotFound) {
		response.NotFound(c, err.Error())
		return
	}
	response.InternalError(c, err.Error())
}

func formFile[T any](c *gin.Context, field string, read func(io.Reader) (T, error)) (T, error) {
	var zero T
	fh, err := c.FormFile(field)
	if err != nil {
		return zero, errors.New("missing form file " + field)
	}
	f, err := fh.Open()
	if err != nil {
		return zero, err
	}
	defer f.Close()

	v, err := read(f)
	if err != nil {
		return zero, errors.New(field + ": " + err.Error())
	}
	return v, nil
}
