package patch

import (
	"sort"

	"github.com/jengzang/respatch/internal/analysis"
	"github.com/jengzang/respatch/internal/logging"
	"github.com/jengzang/respatch/internal/models"
)

// BuildStageName identifies the patch builder in errors and logs
const BuildStageName = "patch_builder"

type cycleKey struct {
	id   string
	tide int
}

// candidate is a maximal run of patch-labelled fixes
type candidate struct {
	fixes []int
	stop

	// travelSegs counts the travel segments since the previous candidate
	travelSegs int
}

// Build groups the patch-labelled fixes at idx into residence patches. A
// nil idx uses the whole arena. Runs are formed per (id, tide number);
// consecutive runs that are not independent are joined and patches with
// fewer than MinFixes fixes are dropped.
func Build(arena *models.Arena, idx []int, params Params) ([]models.ResidencePatch, error) {
	if err := analysis.ValidateParams(BuildStageName, params); err != nil {
		return nil, err
	}
	if idx == nil {
		idx = arena.Indices()
	}

	ordered := sortedUnique(arena, idx)
	groups, keys := groupByCycle(arena, ordered)

	patches := make([]models.ResidencePatch, 0)
	dropped := 0
	for _, key := range keys {
		for _, fixes := range joinCandidates(candidates(arena, groups[key]), params) {
			if len(fixes) < params.MinFixes {
				dropped++
				continue
			}
			patches = append(patches, Summarize(arena, key.id, key.tide, fixes, params.BufferSize))
		}
	}

	logger := logging.With(BuildStageName)
	logger.Debug().Int("patches", len(patches)).Int("dropped", dropped).Int("fixes", len(ordered)).Msg("built patches")
	return Number(patches), nil
}

func groupByCycle(arena *models.Arena, idx []int) (map[cycleKey][]int, []cycleKey) {
	groups := make(map[cycleKey][]int)
	var keys []cycleKey
	for _, i := range idx {
		f := arena.At(i)
		k := cycleKey{id: f.ID, tide: f.TideNumber}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], i)
	}
	sort.Slice(keys, func(a, b int) bool {
		if keys[a].id != keys[b].id {
			return keys[a].id < keys[b].id
		}
		return keys[a].tide < keys[b].tide
	})
	return groups, keys
}

// candidates splits time-ordered fixes into maximal runs of patch labels
// and records how many travel segments separate each run from the last
func candidates(arena *models.Arena, idx []int) []candidate {
	var out []candidate
	var run []int
	segs, lastSeg := 0, -1
	flush := func() {
		if len(run) > 0 {
			c := newCandidate(arena, run)
			c.travelSegs = segs
			out = append(out, c)
			run = nil
			segs, lastSeg = 0, -1
		}
	}

	for _, i := range idx {
		f := arena.At(i)
		if f.Label != models.LabelPatch {
			flush()
			if f.Segment != lastSeg {
				segs++
				lastSeg = f.Segment
			}
			continue
		}
		run = append(run, i)
	}
	flush()
	return out
}

func newCandidate(arena *models.Arena, fixes []int) candidate {
	var sx, sy, sr float64
	for _, i := range fixes {
		f := arena.At(i)
		sx += f.X
		sy += f.Y
		sr += f.ResTime
	}
	n := float64(len(fixes))
	return candidate{
		fixes: fixes,
		stop: stop{
			x:       sx / n,
			y:       sy / n,
			start:   arena.At(fixes[0]).Time,
			end:     arena.At(fixes[len(fixes)-1]).Time,
			resTime: sr / n,
		},
	}
}

// joinCandidates compares each candidate with its predecessor and starts a
// new patch whenever the two are independent. Candidates separated by
// more than one travel segment are always independent.
func joinCandidates(cands []candidate, params Params) [][]int {
	var out [][]int
	for i, c := range cands {
		if i > 0 && c.travelSegs <= 1 && sameStop(cands[i-1].stop, c.stop, params) {
			last := len(out) - 1
			out[last] = append(out[last], c.fixes...)
			continue
		}
		out = append(out, append([]int(nil), c.fixes...))
	}
	return out
}

func init() {
	analysis.RegisterStage(analysis.Stage{
		Name:        BuildStageName,
		Order:       6,
		Description: "join stationary runs into patches with geometry and statistics",
	})
}
