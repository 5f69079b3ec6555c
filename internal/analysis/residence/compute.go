package residence

import (
	"math"
	"sort"

	"github.com/jengzang/respatch/internal/analysis"
	"github.com/jengzang/respatch/internal/models"
	"github.com/jengzang/respatch/internal/spatial"
)

// ComputeStageName identifies the residence-time helper in errors and logs
const ComputeStageName = "residence_time"

// ComputeParams holds residence-time parameters
type ComputeParams struct {
	// Radius of the circle around each fix
	Radius float64 `json:"radius" koanf:"radius" validate:"gt=0"`
	// MaxExit is the longest absence in minutes after which a return to
	// the circle no longer counts
	MaxExit float64 `json:"max_exit" koanf:"max_exit" validate:"gte=0"`
}

// DefaultComputeParams returns the parameters of the standard workflow
func DefaultComputeParams() ComputeParams {
	return ComputeParams{Radius: 50, MaxExit: 20}
}

// Compute derives a residence time in minutes for every fix: the time the
// track spends within Radius of it, over the visit that contains the fix
// and every revisit after an absence shorter than MaxExit.
func Compute(fixes []models.AlignedFix, params ComputeParams) ([]models.ResidenceFix, error) {
	if err := analysis.ValidateParams(ComputeStageName, params); err != nil {
		return nil, err
	}

	ordered := make([]models.AlignedFix, len(fixes))
	copy(ordered, fixes)
	if !sort.SliceIsSorted(ordered, func(i, j int) bool { return ordered[i].Time < ordered[j].Time }) {
		analysis.WarnOrdering(ComputeStageName, len(ordered))
		sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Time < ordered[j].Time })
	}

	out := make([]models.ResidenceFix, len(ordered))
	for i, f := range ordered {
		seconds := timeInside(ordered, i, 1, params) + timeInside(ordered, i, -1, params)
		out[i] = models.ResidenceFix{AlignedFix: f, ResTime: seconds / 60}
	}
	return out, nil
}

// timeInside walks from fix i in direction dir and sums the durations of
// consecutive steps that stay inside the circle around fix i
func timeInside(fixes []models.AlignedFix, i, dir int, params ComputeParams) float64 {
	center := fixes[i]
	maxExit := params.MaxExit * 60

	var total, exitedAt float64
	outside := false
	prev := i
	for j := i + dir; j >= 0 && j < len(fixes); j += dir {
		f := fixes[j]
		inside := spatial.Distance(center.X, center.Y, f.X, f.Y) <= params.Radius
		switch {
		case inside && !outside:
			total += math.Abs(f.Time - fixes[prev].Time)
		case inside:
			outside = false
		default:
			if !outside {
				outside = true
				exitedAt = fixes[prev].Time
			}
			if math.Abs(f.Time-exitedAt) > maxExit {
				return total
			}
		}
		prev = j
	}
	return total
}

func init() {
	analysis.RegisterStage(analysis.Stage{
		Name:        ComputeStageName,
		Order:       3,
		Description: "derive residence time for tracks that lack it",
	})
}
