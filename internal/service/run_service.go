package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"

	"github.com/jengzang/respatch/internal/analysis/views"
	"github.com/jengzang/respatch/internal/logging"
	"github.com/jengzang/respatch/internal/models"
	"github.com/jengzang/respatch/internal/pipeline"
	"github.com/jengzang/respatch/internal/repository"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// RunService runs the pipeline and stores and serves its views
type RunService struct {
	runs     *repository.RunRepository
	patches  *repository.PatchRepository
	pipeline *pipeline.Pipeline
}

// NewRunService creates a new run service
func NewRunService(runs *repository.RunRepository, patches *repository.PatchRepository, p *pipeline.Pipeline) *RunService {
	return &RunService{runs: runs, patches: patches, pipeline: p}
}

// Execute runs the pipeline for every input and stores one run per
// individual. Failed individuals are stored with status failed and their
// error message; the others still complete.
func (s *RunService) Execute(ctx context.Context, inputs []pipeline.Input, tides []models.TideRow) ([]*models.AnalysisRun, *pipeline.BatchResult, error) {
	logger := logging.With("run_service")

	params, err := json.Marshal(s.pipeline.Params())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to serialize params: %w", err)
	}

	out := make([]*models.AnalysisRun, 0, len(inputs))
	for _, in := range inputs {
		run := &models.AnalysisRun{
			ID:         uuid.NewString(),
			Individual: in.Individual,
			Status:     models.RunStatusRunning,
			ParamsJSON: string(params),
			RawFixes:   len(in.Fixes),
			CreatedAt:  time.Now().UTC(),
		}
		if err := s.runs.Create(ctx, run); err != nil {
			return nil, nil, err
		}
		out = append(out, run)
	}

	batch, runErr := s.pipeline.RunAll(ctx, inputs, tides)
	if batch == nil {
		batch = &pipeline.BatchResult{}
	}

	// Statuses are written even after ctx ends so no run stays running
	store := context.WithoutCancel(ctx)
	var storeErr error
	for _, run := range out {
		now := time.Now().UTC()
		run.CompletedAt = &now

		res, ok := batch.Results[run.Individual]
		if !ok {
			run.Status = models.RunStatusFailed
			if err := batch.Errors[run.Individual]; err != nil {
				run.ErrorMessage = err.Error()
			} else if runErr != nil {
				run.ErrorMessage = runErr.Error()
			}
		} else {
			run.Status = models.RunStatusCompleted
			run.CleanedFixes = res.CleanedFixes
			run.InferredFix = res.InferredFixes
			run.Patches = len(res.Table.Patches)
			if err := s.patches.Save(ctx, run.ID, views.Spatial(res.Table), views.Points(res.Table)); err != nil {
				logger.Error().Err(err).Str("run_id", run.ID).Msg("failed to store views")
				run.Status = models.RunStatusFailed
				run.ErrorMessage = err.Error()
				run.Patches = 0
				if storeErr == nil {
					storeErr = err
				}
			}
		}

		if err := s.runs.Update(store, run); err != nil {
			logger.Error().Err(err).Str("run_id", run.ID).Msg("failed to update run")
			if storeErr == nil {
				storeErr = err
			}
			continue
		}
		logger.Info().Str("run_id", run.ID).Str("individual", run.Individual).Str("status", run.Status).Int("patches", run.Patches).Msg("run stored")
	}
	if runErr != nil {
		return out, batch, runErr
	}
	return out, batch, storeErr
}

// List returns a page of stored runs
func (s *RunService) List(ctx context.Context, filter models.RunFilter) (*models.RunsResponse, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = defaultPageSize
	}
	if filter.PageSize > maxPageSize {
		filter.PageSize = maxPageSize
	}

	runs, total, err := s.runs.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	totalPages := int(total) / filter.PageSize
	if int(total)%filter.PageSize > 0 {
		totalPages++
	}
	return &models.RunsResponse{
		Data:       runs,
		Total:      total,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalPages: totalPages,
	}, nil
}

// Get returns one stored run
func (s *RunService) Get(ctx context.Context, id string) (*models.AnalysisRun, error) {
	return s.runs.GetByID(ctx, id)
}

// Delete removes a stored run and its views
func (s *RunService) Delete(ctx context.Context, id string) error {
	return s.runs.Delete(ctx, id)
}

// View returns the named stored view of a run
func (s *RunService) View(ctx context.Context, id string, view models.View) (interface{}, error) {
	if _, err := s.runs.GetByID(ctx, id); err != nil {
		return nil, err
	}

	switch view {
	case models.ViewSummary:
		return s.patches.Summary(ctx, id)
	case models.ViewPoints:
		return s.patches.Points(ctx, id)
	case models.ViewSpatial:
		return s.patches.Spatial(ctx, id)
	}
	return nil, fmt.Errorf("unknown view %q", view)
}

// FeatureCollection returns the stored spatial view of a run as GeoJSON
func (s *RunService) FeatureCollection(ctx context.Context, id string) (*geojson.FeatureCollection, error) {
	if _, err := s.runs.GetByID(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.patches.Spatial(ctx, id)
	if err != nil {
		return nil, err
	}
	return views.Features(rows), nil
}
