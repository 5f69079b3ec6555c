package patch

import (
	"sort"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/jengzang/respatch/internal/models"
	"github.com/jengzang/respatch/internal/spatial"
)

// Summarize builds a patch from arena fixes. Patch number and DistBwPatch
// are left for Number to fill in.
func Summarize(arena *models.Arena, id string, tide int, fixes []int, bufferSize float64) models.ResidencePatch {
	idx := sortedUnique(arena, fixes)

	n := len(idx)
	times := make([]float64, n)
	tidal := make([]float64, n)
	levels := make([]float64, n)
	resTimes := make([]float64, n)
	points := make([]r2.Point, n)
	allInferred := n > 0
	for k, i := range idx {
		f := arena.At(i)
		times[k] = f.Time
		tidal[k] = f.Tidaltime
		levels[k] = f.Waterlevel
		resTimes[k] = f.ResTime
		points[k] = r2.Point{X: f.X, Y: f.Y}
		if f.Type != models.FixInferred {
			allInferred = false
		}
	}

	p := models.ResidencePatch{
		ID:         id,
		TideNumber: tide,
		Type:       models.FixReal,
		NFixes:     n,
		Fixes:      idx,
	}
	if allInferred {
		p.Type = models.FixInferred
	}
	if n == 0 {
		return p
	}

	p.TimeStart = floats.Min(times)
	p.TimeEnd = floats.Max(times)
	p.TimeMean = stat.Mean(times, nil)
	p.Duration = (p.TimeEnd - p.TimeStart) / 60
	p.TidaltimeMean = stat.Mean(tidal, nil)
	p.WaterlevelMean = stat.Mean(levels, nil)
	p.ResTimeMean = stat.Mean(resTimes, nil)

	c := spatial.Centroid(points)
	p.XMean, p.YMean = c.X, c.Y
	p.DistInPatch = spatial.PathLength(points)
	p.DispInPatch = spatial.Displacement(points)

	p.Geometry = spatial.BufferUnion(points, bufferSize)
	p.Area = spatial.Area(p.Geometry)
	p.Perimeter = spatial.Perimeter(p.Geometry)
	p.Circularity = spatial.Circularity(p.Area, p.Perimeter)
	return p
}

// Number sorts patches by (id, tide number, start time), numbers them
// 1..n per (id, tide number) and sets the centroid distance to the
// preceding patch of the same cycle. The input is not modified.
func Number(patches []models.ResidencePatch) []models.ResidencePatch {
	out := make([]models.ResidencePatch, len(patches))
	copy(out, patches)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		if a.TideNumber != b.TideNumber {
			return a.TideNumber < b.TideNumber
		}
		return a.TimeStart < b.TimeStart
	})

	for i := range out {
		if i == 0 || out[i].ID != out[i-1].ID || out[i].TideNumber != out[i-1].TideNumber {
			out[i].Patch = 1
			out[i].DistBwPatch = nil
			continue
		}
		out[i].Patch = out[i-1].Patch + 1
		d := spatial.Distance(out[i-1].XMean, out[i-1].YMean, out[i].XMean, out[i].YMean)
		out[i].DistBwPatch = &d
	}
	return out
}

func stopOf(p models.ResidencePatch) stop {
	return stop{x: p.XMean, y: p.YMean, start: p.TimeStart, end: p.TimeEnd, resTime: p.ResTimeMean}
}

// sortedUnique returns the distinct indices ordered by fix time
func sortedUnique(arena *models.Arena, fixes []int) []int {
	seen := make(map[int]bool, len(fixes))
	out := make([]int, 0, len(fixes))
	for _, i := range fixes {
		if !seen[i] {
			seen[i] = true
			out = append(out, i)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return arena.At(out[a]).Time < arena.At(out[b]).Time
	})
	return out
}
