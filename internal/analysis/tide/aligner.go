// Package tide places cleaned fixes in their tidal cycle.
package tide

import (
	"fmt"
	"math"
	"sort"

	"github.com/jengzang/respatch/internal/analysis"
	"github.com/jengzang/respatch/internal/logging"
	"github.com/jengzang/respatch/internal/models"
)

// StageName identifies the aligner in errors and logs
const StageName = "tide_aligner"

// Align joins fixes to the tide table. Each fix takes the tide number of
// the last tide row at or before it and the water level of the nearest
// tide row. Fixes earlier than the first tide row cannot be placed in a
// cycle and are dropped.
func Align(fixes []models.CleanedFix, tides []models.TideRow) ([]models.AlignedFix, error) {
	sortedTides, err := prepareTides(tides)
	if err != nil {
		return nil, err
	}

	ordered := make([]models.CleanedFix, len(fixes))
	copy(ordered, fixes)
	if !sort.SliceIsSorted(ordered, func(i, j int) bool { return ordered[i].Time < ordered[j].Time }) {
		analysis.WarnOrdering(StageName, len(ordered))
		sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Time < ordered[j].Time })
	}

	tideTimes := make([]float64, len(sortedTides))
	for i, t := range sortedTides {
		tideTimes[i] = unixSeconds(t)
	}
	cycleStart := cycleStarts(sortedTides, tideTimes)

	out := make([]models.AlignedFix, 0, len(ordered))
	dropped := 0
	last := -1 // index of the last tide row at or before the current fix
	for _, f := range ordered {
		for last+1 < len(sortedTides) && tideTimes[last+1] <= f.Time {
			last++
		}
		if last < 0 {
			dropped++
			continue
		}

		current := sortedTides[last]
		level := current.Waterlevel
		if last+1 < len(sortedTides) && tideTimes[last+1]-f.Time < f.Time-tideTimes[last] {
			level = sortedTides[last+1].Waterlevel
		}

		out = append(out, models.AlignedFix{
			CleanedFix: f,
			TideNumber: current.TideNumber,
			Tidaltime:  (f.Time - cycleStart[current.TideNumber]) / 60,
			Waterlevel: level,
		})
	}

	if dropped > 0 {
		logger := logging.With(StageName)
		logger.Debug().Int("dropped", dropped).Msg("fixes before the first tide row")
	}
	return out, nil
}

// Strip returns the cleaned projection of aligned fixes
func Strip(fixes []models.AlignedFix) []models.CleanedFix {
	out := make([]models.CleanedFix, len(fixes))
	for i, f := range fixes {
		out[i] = f.CleanedFix
	}
	return out
}

func prepareTides(tides []models.TideRow) ([]models.TideRow, error) {
	if len(tides) == 0 {
		return nil, analysis.NewSchemaError(StageName, "tides", "tide table is empty")
	}
	for i, t := range tides {
		if t.Timestamp.IsZero() {
			return nil, analysis.NewSchemaError(StageName, "timestamp", fmt.Sprintf("missing timestamp in row %d", i))
		}
		if math.IsNaN(t.Waterlevel) || math.IsInf(t.Waterlevel, 0) {
			return nil, analysis.NewSchemaError(StageName, "waterlevel", fmt.Sprintf("non-finite waterlevel in row %d", i))
		}
	}

	out := make([]models.TideRow, len(tides))
	copy(out, tides)
	if !sort.SliceIsSorted(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) }) {
		analysis.WarnOrdering(StageName, len(out))
		sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	}

	for i := 1; i < len(out); i++ {
		if out[i].TideNumber < out[i-1].TideNumber {
			return nil, analysis.NewSchemaError(StageName, "tide_number",
				fmt.Sprintf("tide number decreases from %d to %d at %s",
					out[i-1].TideNumber, out[i].TideNumber, out[i].Timestamp.Format("2006-01-02T15:04:05Z07:00")))
		}
	}
	return out, nil
}

// cycleStarts maps each tide number to the time of its first tide row.
// Fixes only ever join a cycle at or after that row, so this is also the
// earliest timestamp of the joined group.
func cycleStarts(tides []models.TideRow, times []float64) map[int]float64 {
	starts := make(map[int]float64)
	for i, t := range tides {
		if _, ok := starts[t.TideNumber]; !ok {
			starts[t.TideNumber] = times[i]
		}
	}
	return starts
}

func unixSeconds(t models.TideRow) float64 {
	return float64(t.Timestamp.UnixNano()) / 1e9
}

func init() {
	analysis.RegisterStage(analysis.Stage{
		Name:        StageName,
		Order:       2,
		Description: "attach tide number, tidal time and water level",
	})
}
