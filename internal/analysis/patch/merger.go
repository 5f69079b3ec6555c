package patch

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/jengzang/respatch/internal/analysis"
	"github.com/jengzang/respatch/internal/logging"
	"github.com/jengzang/respatch/internal/models"
)

// MergeStageName identifies the tide-boundary merger in errors and logs
const MergeStageName = "patch_merger"

// CycleSet is the patch set built for one tidal cycle
type CycleSet struct {
	TideNumber int
	Patches    []models.ResidencePatch
}

// BuildCycles runs Build separately for every tidal cycle present in the
// arena, at most limit cycles at a time. The arena is only read. Sets come
// back in ascending tide order.
func BuildCycles(ctx context.Context, arena *models.Arena, params Params, limit int) ([]CycleSet, error) {
	byTide := make(map[int][]int)
	for _, i := range arena.Indices() {
		t := arena.At(i).TideNumber
		byTide[t] = append(byTide[t], i)
	}
	tides := make([]int, 0, len(byTide))
	for t := range byTide {
		tides = append(tides, t)
	}
	sort.Ints(tides)

	sets := make([]CycleSet, len(tides))
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for k, tide := range tides {
		k, tide := k, tide
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			patches, err := Build(arena, byTide[tide], params)
			if err != nil {
				return fmt.Errorf("tide %d: %w", tide, err)
			}
			sets[k] = CycleSet{TideNumber: tide, Patches: patches}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sets, nil
}

// Merge repairs patches split by tidal-cycle boundaries. Cycles are walked
// in ascending tide order; the trailing patch of each cycle, after any
// earlier repair, is compared with the first patch of the next cycle and
// the two are joined when not independent. A joined patch keeps the
// earlier tide number. Patches are renumbered at the end.
func Merge(arena *models.Arena, cycles []CycleSet, params Params) ([]models.ResidencePatch, error) {
	if err := analysis.ValidateParams(MergeStageName, params); err != nil {
		return nil, err
	}
	ordered, err := orderCycles(cycles)
	if err != nil {
		return nil, err
	}

	before := 0
	var out []models.ResidencePatch
	trailing := -1 // index in out of the last patch of the previous cycle
	merges := 0
	for _, cycle := range ordered {
		before += len(cycle.Patches)
		if len(cycle.Patches) == 0 {
			trailing = -1
			continue
		}

		rest := cycle.Patches
		if trailing >= 0 && sameStop(stopOf(out[trailing]), stopOf(rest[0]), params) {
			prev := out[trailing]
			fixes := append(append([]int(nil), prev.Fixes...), rest[0].Fixes...)
			out[trailing] = Summarize(arena, prev.ID, prev.TideNumber, fixes, params.BufferSize)
			rest = rest[1:]
			merges++
		}

		out = append(out, rest...)
		trailing = len(out) - 1
	}

	out = Number(out)
	if len(out) > before {
		return nil, &analysis.InvariantViolation{
			Stage:  MergeStageName,
			Detail: fmt.Sprintf("merge produced %d patches from %d", len(out), before),
		}
	}

	logger := logging.With(MergeStageName)
	logger.Debug().Int("cycles", len(ordered)).Int("merged", merges).Int("patches", len(out)).Msg("repaired tide boundaries")
	return out, nil
}

func orderCycles(cycles []CycleSet) ([]CycleSet, error) {
	ordered := make([]CycleSet, len(cycles))
	copy(ordered, cycles)

	id := ""
	for _, c := range ordered {
		for _, p := range c.Patches {
			if p.TideNumber != c.TideNumber {
				return nil, analysis.NewSchemaError(MergeStageName, "tide_number",
					fmt.Sprintf("patch of tide %d in the set of tide %d", p.TideNumber, c.TideNumber))
			}
			if id == "" {
				id = p.ID
			} else if p.ID != id {
				return nil, analysis.NewSchemaError(MergeStageName, "id", "patch sets of more than one individual: "+id+", "+p.ID)
			}
		}
	}

	if !sort.SliceIsSorted(ordered, func(i, j int) bool { return ordered[i].TideNumber < ordered[j].TideNumber }) {
		analysis.WarnOrdering(MergeStageName, len(ordered))
		sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].TideNumber < ordered[j].TideNumber })
	}
	for i := 1; i < len(ordered); i++ {
		if ordered[i].TideNumber == ordered[i-1].TideNumber {
			return nil, analysis.NewSchemaError(MergeStageName, "tide_number",
				fmt.Sprintf("duplicate patch set for tide %d", ordered[i].TideNumber))
		}
	}
	return ordered, nil
}

func init() {
	analysis.RegisterStage(analysis.Stage{
		Name:        MergeStageName,
		Order:       7,
		Description: "join patches split by a tidal-cycle boundary",
	})
}
