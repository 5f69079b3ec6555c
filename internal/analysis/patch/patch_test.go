package patch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/respatch/internal/analysis"
	"github.com/jengzang/respatch/internal/models"
	"github.com/jengzang/respatch/internal/spatial"
)

const t0 = 1_688_169_600.0

type fixture struct {
	fixes []models.ClassifiedFix
	clock float64
}

// stay appends n patch fixes one minute apart around (x, y)
func (f *fixture) stay(n int, x, y float64, tide int, resTime float64) *fixture {
	for i := 0; i < n; i++ {
		f.add(x+float64(i%2), y+float64(i%3), tide, models.LabelPatch, resTime)
	}
	return f
}

// travel appends n travel fixes one minute apart at (x, y)
func (f *fixture) travel(n int, x, y float64, tide int) *fixture {
	for i := 0; i < n; i++ {
		f.add(x, y, tide, models.LabelTravel, 0)
	}
	return f
}

func (f *fixture) add(x, y float64, tide int, label models.Label, resTime float64) {
	f.fixes = append(f.fixes, models.ClassifiedFix{
		ResidenceFix: models.ResidenceFix{
			AlignedFix: models.AlignedFix{
				CleanedFix: models.CleanedFix{ID: "2087", Time: t0 + f.clock, X: x, Y: y},
				TideNumber: tide,
				Tidaltime:  f.clock / 60,
				Waterlevel: 10,
			},
			ResTime: resTime,
		},
		Type:  models.FixReal,
		Label: label,
	})
	f.clock += 60
}

func (f *fixture) arena() *models.Arena {
	return models.NewArena(f.fixes)
}

func TestBuildSinglePatch(t *testing.T) {
	arena := (&fixture{}).stay(5, 0, 0, 1, 20).arena()

	patches, err := Build(arena, nil, DefaultParams())
	require.NoError(t, err)
	require.Len(t, patches, 1)

	p := patches[0]
	assert.Equal(t, 1, p.Patch)
	assert.Equal(t, 5, p.NFixes)
	assert.Equal(t, models.FixReal, p.Type)
	assert.Nil(t, p.DistBwPatch)
	assert.InDelta(t, 4.0, p.Duration, 1e-9)
	assert.Equal(t, t0, p.TimeStart)
	assert.Equal(t, t0+240, p.TimeEnd)
	assert.InDelta(t, 20.0, p.ResTimeMean, 1e-9)
	assert.Greater(t, p.DistInPatch, 0.0)

	require.NotEmpty(t, p.Geometry)
	for _, poly := range p.Geometry {
		for _, ring := range poly {
			assert.True(t, spatial.RingClosed(ring))
		}
	}
	assert.Greater(t, p.Area, 0.0)
	assert.Greater(t, p.Circularity, 0.5)
	assert.LessOrEqual(t, p.Circularity, 1.0)
}

func TestBuildJoinsNearbyRuns(t *testing.T) {
	fx := (&fixture{}).stay(4, 0, 0, 1, 20).travel(2, 30, 0, 1).stay(4, 20, 0, 1, 22)

	patches, err := Build(fx.arena(), nil, DefaultParams())
	require.NoError(t, err)
	require.Len(t, patches, 1)
	assert.Equal(t, 8, patches[0].NFixes)
}

func TestBuildSeparatesDistantRuns(t *testing.T) {
	fx := (&fixture{}).stay(4, 0, 0, 1, 20).travel(2, 250, 0, 1).stay(4, 500, 0, 1, 20)

	patches, err := Build(fx.arena(), nil, DefaultParams())
	require.NoError(t, err)
	require.Len(t, patches, 2)

	assert.Equal(t, 1, patches[0].Patch)
	assert.Equal(t, 2, patches[1].Patch)
	assert.Nil(t, patches[0].DistBwPatch)
	require.NotNil(t, patches[1].DistBwPatch)
	assert.InDelta(t, 500.0, *patches[1].DistBwPatch, 1e-9)
	assert.Less(t, patches[0].TimeMean, patches[1].TimeMean)
}

func TestBuildSeparatesLateRuns(t *testing.T) {
	fx := (&fixture{}).stay(4, 0, 0, 1, 20).travel(40, 10, 0, 1).stay(4, 0, 0, 1, 20)

	patches, err := Build(fx.arena(), nil, DefaultParams())
	require.NoError(t, err)
	assert.Len(t, patches, 2)
}

// segment numbers runs of equal labels, starting a new travel segment
// every split fixes when split > 0
func (f *fixture) segment(split int) *fixture {
	seg, runLen := 0, 0
	for i := range f.fixes {
		fx := &f.fixes[i]
		switch {
		case i == 0 || fx.Label != f.fixes[i-1].Label:
			seg++
			runLen = 0
		case fx.Label == models.LabelTravel && split > 0 && runLen == split:
			seg++
			runLen = 0
		}
		runLen++
		fx.Segment = seg
	}
	return f
}

func TestBuildTravelSegmentsSeparateRuns(t *testing.T) {
	stays := func() *fixture {
		return (&fixture{}).stay(4, 0, 0, 1, 20).travel(10, 5, 0, 1).stay(4, 5, 0, 1, 20)
	}

	patches, err := Build(stays().segment(0).arena(), nil, DefaultParams())
	require.NoError(t, err)
	require.Len(t, patches, 1)
	assert.Equal(t, 8, patches[0].NFixes)

	patches, err = Build(stays().segment(5).arena(), nil, DefaultParams())
	require.NoError(t, err)
	require.Len(t, patches, 2)
	assert.Equal(t, 4, patches[0].NFixes)
	assert.Equal(t, 4, patches[1].NFixes)
}

func TestBuildResidenceLimit(t *testing.T) {
	fx := (&fixture{}).stay(4, 0, 0, 1, 5).travel(1, 10, 0, 1).stay(4, 10, 0, 1, 40)

	t.Run("enabled", func(t *testing.T) {
		patches, err := Build(fx.arena(), nil, DefaultParams())
		require.NoError(t, err)
		assert.Len(t, patches, 2)
	})

	t.Run("disabled", func(t *testing.T) {
		params := DefaultParams()
		params.RestIndepLim = 0
		patches, err := Build(fx.arena(), nil, params)
		require.NoError(t, err)
		assert.Len(t, patches, 1)
	})
}

func TestBuildDropsSmallPatches(t *testing.T) {
	fx := (&fixture{}).stay(2, 0, 0, 1, 20).travel(40, 300, 0, 1).stay(5, 600, 0, 1, 20)

	params := DefaultParams()
	patches, err := Build(fx.arena(), nil, params)
	require.NoError(t, err)
	require.Len(t, patches, 1)
	for _, p := range patches {
		assert.GreaterOrEqual(t, p.NFixes, params.MinFixes)
	}
	assert.Equal(t, 1, patches[0].Patch)
}

func TestBuildNumbersPerCycle(t *testing.T) {
	fx := (&fixture{}).
		stay(4, 0, 0, 1, 20).travel(40, 300, 0, 1).stay(4, 600, 0, 1, 20).
		travel(40, 300, 0, 2).stay(4, 0, 0, 2, 20)

	patches, err := Build(fx.arena(), nil, DefaultParams())
	require.NoError(t, err)
	require.Len(t, patches, 3)
	assert.Equal(t, []int{1, 2, 1}, []int{patches[0].Patch, patches[1].Patch, patches[2].Patch})
	assert.Equal(t, 2, patches[2].TideNumber)
	assert.Nil(t, patches[2].DistBwPatch)

	for i := 1; i < len(patches); i++ {
		assert.GreaterOrEqual(t, patches[i].TimeMean, patches[i-1].TimeMean)
	}
}

func TestBuildDeterministic(t *testing.T) {
	fx := (&fixture{}).stay(6, 0, 0, 1, 20).travel(3, 50, 0, 1).stay(6, 300, 10, 1, 20)

	a, err := Build(fx.arena(), nil, DefaultParams())
	require.NoError(t, err)
	b, err := Build(fx.arena(), nil, DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestBuildInferredType(t *testing.T) {
	fx := (&fixture{}).stay(3, 0, 0, 1, 20)
	for i := range fx.fixes {
		fx.fixes[i].Type = models.FixInferred
	}

	patches, err := Build(fx.arena(), nil, DefaultParams())
	require.NoError(t, err)
	require.Len(t, patches, 1)
	assert.Equal(t, models.FixInferred, patches[0].Type)
}

func TestBuildInvalidParams(t *testing.T) {
	params := DefaultParams()
	params.MinFixes = 0
	_, err := Build((&fixture{}).stay(3, 0, 0, 1, 20).arena(), nil, params)
	assert.True(t, analysis.IsSchemaError(err))
}

func cycles(t *testing.T, fx *fixture) (*models.Arena, []CycleSet) {
	t.Helper()
	arena := fx.arena()
	sets, err := BuildCycles(context.Background(), arena, DefaultParams(), 2)
	require.NoError(t, err)
	return arena, sets
}

func countPatches(sets []CycleSet) int {
	n := 0
	for _, s := range sets {
		n += len(s.Patches)
	}
	return n
}

func TestMergeAcrossBoundary(t *testing.T) {
	fx := (&fixture{}).
		stay(4, 500, 0, 1, 20).travel(40, 250, 0, 1).stay(4, 0, 0, 1, 20).
		stay(4, 5, 0, 2, 20).travel(40, 250, 0, 2).stay(4, 500, 0, 2, 20)
	arena, sets := cycles(t, fx)
	require.Len(t, sets, 2)
	require.Equal(t, 4, countPatches(sets))

	merged, err := Merge(arena, sets, DefaultParams())
	require.NoError(t, err)
	require.Len(t, merged, 3)

	assert.Equal(t, 1, merged[1].TideNumber)
	assert.Equal(t, 2, merged[1].Patch)
	assert.Equal(t, 8, merged[1].NFixes)
	assert.Equal(t, 2, merged[2].TideNumber)
	assert.Equal(t, 1, merged[2].Patch)
	assert.Nil(t, merged[2].DistBwPatch)
}

func TestMergeKeepsDistinctPatches(t *testing.T) {
	fx := (&fixture{}).stay(4, 0, 0, 1, 20).stay(4, 800, 0, 2, 20)
	arena, sets := cycles(t, fx)

	merged, err := Merge(arena, sets, DefaultParams())
	require.NoError(t, err)
	assert.Len(t, merged, 2)
}

func TestMergeChainsPairwise(t *testing.T) {
	fx := (&fixture{}).stay(4, 0, 0, 1, 20).stay(4, 2, 0, 2, 20).stay(4, 4, 0, 3, 20)
	arena, sets := cycles(t, fx)
	require.Equal(t, 3, countPatches(sets))

	merged, err := Merge(arena, sets, DefaultParams())
	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.Equal(t, 1, merged[0].TideNumber)
	assert.Equal(t, 12, merged[0].NFixes)
}

func TestMergeNeverAddsPatches(t *testing.T) {
	fx := (&fixture{}).
		stay(5, 0, 0, 1, 20).travel(10, 100, 0, 1).stay(5, 200, 0, 1, 30).
		stay(3, 210, 0, 2, 28).travel(40, 100, 0, 2).stay(6, 0, 0, 2, 20).
		stay(4, 5, 5, 3, 25)
	arena, sets := cycles(t, fx)

	merged, err := Merge(arena, sets, DefaultParams())
	require.NoError(t, err)
	assert.LessOrEqual(t, len(merged), countPatches(sets))
	for _, p := range merged {
		assert.GreaterOrEqual(t, p.NFixes, DefaultParams().MinFixes)
	}
}

func TestMergeOrdering(t *testing.T) {
	fx := (&fixture{}).stay(4, 0, 0, 1, 20).stay(4, 800, 0, 2, 20)
	arena, sets := cycles(t, fx)

	t.Run("unsorted sets are re-sorted", func(t *testing.T) {
		reversed := []CycleSet{sets[1], sets[0]}
		merged, err := Merge(arena, reversed, DefaultParams())
		require.NoError(t, err)
		require.Len(t, merged, 2)
		assert.Equal(t, 1, merged[0].TideNumber)
	})

	t.Run("duplicate tide is a schema error", func(t *testing.T) {
		_, err := Merge(arena, []CycleSet{sets[0], sets[0]}, DefaultParams())
		assert.True(t, analysis.IsSchemaError(err))
	})

	t.Run("mislabelled set is a schema error", func(t *testing.T) {
		bad := []CycleSet{{TideNumber: 7, Patches: sets[0].Patches}}
		_, err := Merge(arena, bad, DefaultParams())
		assert.True(t, analysis.IsSchemaError(err))
	})
}

func TestBuildCyclesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := BuildCycles(ctx, (&fixture{}).stay(4, 0, 0, 1, 20).arena(), DefaultParams(), 1)
	assert.ErrorIs(t, err, context.Canceled)
}
