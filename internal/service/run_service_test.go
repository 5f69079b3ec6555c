package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/respatch/internal/database"
	"github.com/jengzang/respatch/internal/models"
	"github.com/jengzang/respatch/internal/pipeline"
	"github.com/jengzang/respatch/internal/repository"
)

var start = time.Date(2023, 7, 1, 6, 0, 0, 0, time.UTC)

// twoStops is one stop per tidal cycle, 30 minutes each, one fix a minute
func twoStops(tag string) []models.Fix {
	var fixes []models.Fix
	at := func(m int, x, y float64) {
		fixes = append(fixes, models.Fix{
			TagID: tag,
			Time:  start.Add(time.Duration(m) * time.Minute).UnixMilli(),
			X:     x,
			Y:     y,
			SD:    4,
			NBS:   5,
		})
	}
	for m := 0; m < 30; m++ {
		at(m, float64(m%3), float64(m%2))
	}
	for m := 30; m < 39; m++ {
		at(m, float64(100*(m-29)), 0)
	}
	for m := 39; m < 69; m++ {
		at(m, 1000+float64(m%3), float64(m%2))
	}
	return fixes
}

func tides() []models.TideRow {
	return []models.TideRow{
		{Timestamp: start.Add(-time.Hour), Waterlevel: 110, TideNumber: 1},
		{Timestamp: start.Add(35 * time.Minute), Waterlevel: 105, TideNumber: 2},
	}
}

func newService(t *testing.T) *RunService {
	t.Helper()
	conn, err := database.Open(database.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	p, err := pipeline.New(pipeline.DefaultParams())
	require.NoError(t, err)
	return NewRunService(repository.NewRunRepository(conn), repository.NewPatchRepository(conn), p)
}

func TestExecute(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	bad := twoStops("2090")
	bad[3].TagID = "9999"
	runs, batch, err := svc.Execute(ctx, []pipeline.Input{
		{Individual: "2087", Fixes: twoStops("2087")},
		{Individual: "2090", Fixes: bad},
	}, tides())
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Len(t, batch.Results, 1)

	byIndividual := map[string]*models.AnalysisRun{}
	for _, r := range runs {
		byIndividual[r.Individual] = r
		assert.NotEmpty(t, r.ID)
		assert.NotNil(t, r.CompletedAt)
	}

	ok := byIndividual["2087"]
	assert.Equal(t, models.RunStatusCompleted, ok.Status)
	assert.Equal(t, 2, ok.Patches)
	assert.Equal(t, 69, ok.RawFixes)
	assert.Contains(t, ok.ParamsJSON, "cleaning")

	failed := byIndividual["2090"]
	assert.Equal(t, models.RunStatusFailed, failed.Status)
	assert.Contains(t, failed.ErrorMessage, "schema error")

	t.Run("get", func(t *testing.T) {
		got, err := svc.Get(ctx, ok.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RunStatusCompleted, got.Status)
	})

	t.Run("list", func(t *testing.T) {
		page, err := svc.List(ctx, models.RunFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(2), page.Total)
		assert.Equal(t, 1, page.Page)
		assert.Equal(t, defaultPageSize, page.PageSize)
		assert.Equal(t, 1, page.TotalPages)

		page, err = svc.List(ctx, models.RunFilter{Status: models.RunStatusFailed, PageSize: 1000})
		require.NoError(t, err)
		assert.Equal(t, int64(1), page.Total)
		assert.Equal(t, maxPageSize, page.PageSize)
	})

	t.Run("views", func(t *testing.T) {
		rows, err := svc.View(ctx, ok.ID, models.ViewSummary)
		require.NoError(t, err)
		summary, isSummary := rows.([]models.SummaryRow)
		require.True(t, isSummary)
		require.Len(t, summary, 2)
		assert.LessOrEqual(t, summary[0].TimeMean, summary[1].TimeMean)

		rows, err = svc.View(ctx, ok.ID, models.ViewPoints)
		require.NoError(t, err)
		assert.Len(t, rows.([]models.PointRow), 60)

		fc, err := svc.FeatureCollection(ctx, ok.ID)
		require.NoError(t, err)
		assert.Len(t, fc.Features, 2)

		_, err = svc.View(ctx, failed.ID, models.ViewSpatial)
		require.NoError(t, err)
		_, err = svc.View(ctx, "missing", models.ViewSummary)
		assert.ErrorIs(t, err, repository.ErrRunNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, svc.Delete(ctx, ok.ID))
		_, err := svc.Get(ctx, ok.ID)
		assert.ErrorIs(t, err, repository.ErrRunNotFound)
	})
}

func TestExecuteDuplicateIndividual(t *testing.T) {
	svc := newService(t)
	in := pipeline.Input{Individual: "2087", Fixes: twoStops("2087")}

	runs, _, err := svc.Execute(context.Background(), []pipeline.Input{in, in}, tides())
	require.Error(t, err)
	for _, r := range runs {
		assert.Equal(t, models.RunStatusFailed, r.Status)
	}
}

func TestExecuteStoreFailureMarksRunsFailed(t *testing.T) {
	ctx := context.Background()
	conn, err := database.Open(database.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// views go to a closed database so every save fails
	closed, err := database.Open(database.Config{Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, closed.Close())

	p, err := pipeline.New(pipeline.DefaultParams())
	require.NoError(t, err)
	svc := NewRunService(repository.NewRunRepository(conn), repository.NewPatchRepository(closed), p)

	runs, batch, err := svc.Execute(ctx, []pipeline.Input{
		{Individual: "2087", Fixes: twoStops("2087")},
		{Individual: "2090", Fixes: twoStops("2090")},
	}, tides())
	require.Error(t, err)
	require.Len(t, runs, 2)
	assert.Len(t, batch.Results, 2)

	for _, r := range runs {
		got, err := svc.Get(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RunStatusFailed, got.Status, r.Individual)
		assert.NotEmpty(t, got.ErrorMessage)
		assert.NotNil(t, got.CompletedAt)
	}
}
