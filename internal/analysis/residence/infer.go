// Package residence infers stops hidden in tracking gaps and labels fixes
// as stationary or travelling from their residence time.
package residence

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/jengzang/respatch/internal/analysis"
	"github.com/jengzang/respatch/internal/logging"
	"github.com/jengzang/respatch/internal/models"
	"github.com/jengzang/respatch/internal/spatial"
	"gonum.org/v1/gonum/stat"
)

// InferStageName identifies the gap inferer in errors and logs
const InferStageName = "residence_inferer"

// InferParams holds gap-inference parameters
type InferParams struct {
	// InfPatchTimeDiff is the minimum silent period in minutes
	InfPatchTimeDiff float64 `json:"inf_patch_time_diff" koanf:"inf_patch_time_diff" validate:"gt=0"`
	// InfPatchSpatDiff is the maximum distance moved across the gap
	InfPatchSpatDiff float64 `json:"inf_patch_spat_diff" koanf:"inf_patch_spat_diff" validate:"gt=0"`
}

// DefaultInferParams returns the parameters of the standard workflow
func DefaultInferParams() InferParams {
	return InferParams{InfPatchTimeDiff: 30, InfPatchSpatDiff: 100}
}

// Infer finds long gaps over which the animal barely moved and bridges
// each chain of such gaps with one synthetic fix. Sensor fixes come back
// tagged real and synthetic ones inferred, merged in time order.
func Infer(fixes []models.ResidenceFix, params InferParams) ([]models.ClassifiedFix, error) {
	if err := analysis.ValidateParams(InferStageName, params); err != nil {
		return nil, err
	}
	for i, f := range fixes {
		if math.IsNaN(f.ResTime) || math.IsInf(f.ResTime, 0) {
			return nil, analysis.NewSchemaError(InferStageName, "resTime", fmt.Sprintf("non-finite residence time in row %d", i))
		}
	}

	ordered := make([]models.ResidenceFix, len(fixes))
	copy(ordered, fixes)
	if !sort.SliceIsSorted(ordered, func(i, j int) bool { return ordered[i].Time < ordered[j].Time }) {
		analysis.WarnOrdering(InferStageName, len(ordered))
		sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Time < ordered[j].Time })
	}

	out := make([]models.ClassifiedFix, 0, len(ordered))
	for _, f := range ordered {
		out = append(out, models.ClassifiedFix{ResidenceFix: f, Type: models.FixReal})
	}
	if len(ordered) < 2 {
		return out, nil
	}

	groups := gapGroups(ordered, params)
	for _, members := range groups {
		out = append(out, inferredFix(ordered, members))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })

	if err := assertOrdered(out); err != nil {
		return nil, err
	}

	if len(groups) > 0 {
		logger := logging.With(InferStageName)
		logger.Debug().Int("inferred", len(groups)).Int("real", len(ordered)).Msg("bridged tracking gaps")
	}
	return out, nil
}

// gapGroups returns the boundary-fix indices of each chain of gaps. A gap
// whose start fix ended the previous gap extends that chain, so every
// group holds at least two fixes and a chain of n gaps yields one group
// of n+1 fixes.
func gapGroups(fixes []models.ResidenceFix, params InferParams) [][]int {
	minGap := params.InfPatchTimeDiff * 60

	var groups [][]int
	open := -1 // index of the fix ending the open chain
	for i := 0; i+1 < len(fixes); i++ {
		a, b := fixes[i], fixes[i+1]
		if b.Time-a.Time <= minGap || spatial.Distance(a.X, a.Y, b.X, b.Y) >= params.InfPatchSpatDiff {
			continue
		}
		if open == i {
			last := len(groups) - 1
			groups[last] = append(groups[last], i+1)
		} else {
			groups = append(groups, []int{i, i + 1})
		}
		open = i + 1
	}
	return groups
}

func inferredFix(fixes []models.ResidenceFix, members []int) models.ClassifiedFix {
	n := len(members)
	times := make([]float64, n)
	xs := make([]float64, n)
	ys := make([]float64, n)
	levels := make([]float64, n)
	for k, i := range members {
		times[k] = fixes[i].Time
		xs[k] = fixes[i].X
		ys[k] = fixes[i].Y
		levels[k] = fixes[i].Waterlevel
	}

	// one run carries one tag, so the first fix's ID is the group's
	first := fixes[members[0]]
	last := fixes[members[n-1]]
	meanTime := stat.Mean(times, nil)
	x, y := stat.Mean(xs, nil), stat.Mean(ys, nil)

	sec, frac := math.Modf(meanTime)
	return models.ClassifiedFix{
		ResidenceFix: models.ResidenceFix{
			AlignedFix: models.AlignedFix{
				CleanedFix: models.CleanedFix{
					ID:        first.ID,
					Time:      meanTime,
					Timestamp: time.Unix(int64(sec), int64(frac*1e9)).UTC(),
					XRaw:      x,
					YRaw:      y,
					X:         x,
					Y:         y,
				},
				TideNumber: first.TideNumber,
				Tidaltime:  first.Tidaltime + (meanTime-first.Time)/60,
				Waterlevel: stat.Mean(levels, nil),
			},
			ResTime: (last.Time - first.Time) / 60,
		},
		Type: models.FixInferred,
	}
}

func assertOrdered(fixes []models.ClassifiedFix) error {
	for i, f := range fixes {
		if math.IsNaN(f.Time) || math.IsInf(f.Time, 0) {
			return &analysis.InvariantViolation{Stage: InferStageName, Detail: fmt.Sprintf("non-finite time at row %d", i)}
		}
		if i > 0 && f.Time < fixes[i-1].Time {
			return &analysis.InvariantViolation{Stage: InferStageName, Detail: fmt.Sprintf("time decreases at row %d", i)}
		}
	}
	return nil
}

func init() {
	analysis.RegisterStage(analysis.Stage{
		Name:        InferStageName,
		Order:       4,
		Description: "bridge long low-movement gaps with inferred fixes",
	})
}
