// Package cleaning quality-filters and smooths the raw fixes of one tag.
package cleaning

import (
	"math"
	"sort"
	"time"

	"github.com/jengzang/respatch/internal/analysis"
	"github.com/jengzang/respatch/internal/logging"
	"github.com/jengzang/respatch/internal/models"
	"github.com/jengzang/respatch/internal/spatial"
)

// StageName identifies the cleaner in errors and logs
const StageName = "cleaner"

// Params holds cleaning parameters
type Params struct {
	MovingWindow int     `json:"moving_window" koanf:"moving_window" validate:"gt=1"`
	NBSMin       int     `json:"nbs_min" koanf:"nbs_min" validate:"gte=0"`
	SDThreshold  float64 `json:"sd_threshold" koanf:"sd_threshold" validate:"gt=0"`
	SpeedCutoff  float64 `json:"speed_cutoff" koanf:"speed_cutoff" validate:"gt=0"` // km/h
	FilterSpeed  bool    `json:"filter_speed" koanf:"filter_speed"`
}

// DefaultParams returns the parameters used for high-frequency tracking data
func DefaultParams() Params {
	return Params{
		MovingWindow: 3,
		NBSMin:       0,
		SDThreshold:  500000,
		SpeedCutoff:  150,
		FilterSpeed:  true,
	}
}

// Result holds the cleaned fixes and what was dropped on the way
type Result struct {
	Fixes          []models.CleanedFix
	Empty          bool // fewer than 2 fixes survived filtering
	DroppedQuality int
	DroppedSpeed   int
}

// Clean filters fixes by localization quality and speed, then smooths x and
// y with a zero-phase running median. Fixes must all belong to one tag.
func Clean(fixes []models.Fix, params Params) (Result, error) {
	if err := analysis.ValidateParams(StageName, params); err != nil {
		return Result{}, err
	}
	if err := validateFixes(fixes); err != nil {
		return Result{}, err
	}

	logger := logging.With(StageName)

	ordered := make([]models.Fix, len(fixes))
	copy(ordered, fixes)
	if !sort.SliceIsSorted(ordered, func(i, j int) bool { return ordered[i].Time < ordered[j].Time }) {
		analysis.WarnOrdering(StageName, len(ordered))
		sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Time < ordered[j].Time })
	}

	kept := make([]models.Fix, 0, len(ordered))
	for _, f := range ordered {
		if f.SD >= params.SDThreshold || f.NBS < params.NBSMin {
			continue
		}
		kept = append(kept, f)
	}
	result := Result{DroppedQuality: len(ordered) - len(kept)}

	if params.FilterSpeed {
		before := len(kept)
		kept = filterSpeed(kept, params.SpeedCutoff/3.6)
		result.DroppedSpeed = before - len(kept)
	}

	if len(kept) < 2 {
		logger.Debug().Int("rows", len(kept)).Msg("too few fixes after filtering")
		result.Fixes = []models.CleanedFix{}
		result.Empty = true
		return result, nil
	}

	xs := make([]float64, len(kept))
	ys := make([]float64, len(kept))
	for i, f := range kept {
		xs[i] = f.X
		ys[i] = f.Y
	}
	xs = zeroPhaseMedian(xs, params.MovingWindow)
	ys = zeroPhaseMedian(ys, params.MovingWindow)

	out := make([]models.CleanedFix, len(kept))
	for i, f := range kept {
		out[i] = models.CleanedFix{
			ID:        f.TagID,
			Seq:       i + 1,
			Time:      float64(f.Time) / 1000,
			Timestamp: time.UnixMilli(f.Time).UTC(),
			XRaw:      f.X,
			YRaw:      f.Y,
			X:         xs[i],
			Y:         ys[i],
			SD:        f.SD,
			NBS:       f.NBS,
			VarX:      f.VarX,
			VarY:      f.VarY,
			CovXY:     f.CovXY,
		}
	}
	result.Fixes = out

	logger.Debug().
		Int("input", len(fixes)).
		Int("kept", len(out)).
		Int("dropped_quality", result.DroppedQuality).
		Int("dropped_speed", result.DroppedSpeed).
		Msg("cleaned track")
	return result, nil
}

// filterSpeed keeps the first fix and then every fix reachable from the
// last kept fix at no more than maxSpeed (m/s)
func filterSpeed(fixes []models.Fix, maxSpeed float64) []models.Fix {
	if len(fixes) == 0 {
		return fixes
	}

	out := []models.Fix{fixes[0]}
	for _, f := range fixes[1:] {
		if Speed(out[len(out)-1], f) > maxSpeed {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Speed returns the straight-line speed in m/s from a to b. A displacement
// with no elapsed time is infinitely fast.
func Speed(a, b models.Fix) float64 {
	dist := spatial.Distance(a.X, a.Y, b.X, b.Y)
	dt := float64(b.Time-a.Time) / 1000
	if dt <= 0 {
		if dist == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return dist / dt
}

func validateFixes(fixes []models.Fix) error {
	if len(fixes) == 0 {
		return nil
	}

	tag := fixes[0].TagID
	if tag == "" {
		return analysis.NewSchemaError(StageName, "TAG", "missing tag id")
	}
	for _, f := range fixes {
		if f.TagID != tag {
			return analysis.NewSchemaError(StageName, "TAG", "more than one tag id in input: "+tag+", "+f.TagID)
		}
		if !finite(f.X) || !finite(f.Y) {
			return analysis.NewSchemaError(StageName, "X/Y", "non-finite position")
		}
		if math.IsNaN(f.SD) {
			return analysis.NewSchemaError(StageName, "SD", "missing standard deviation")
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func init() {
	analysis.RegisterStage(analysis.Stage{
		Name:        StageName,
		Order:       1,
		Description: "drop low-quality and too-fast fixes, median-smooth positions",
	})
}
