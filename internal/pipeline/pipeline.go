// Package pipeline runs the residence-patch stages for one individual or a
// batch of individuals.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jengzang/respatch/internal/analysis"
	"github.com/jengzang/respatch/internal/analysis/cleaning"
	"github.com/jengzang/respatch/internal/analysis/patch"
	"github.com/jengzang/respatch/internal/analysis/residence"
	"github.com/jengzang/respatch/internal/analysis/tide"
	"github.com/jengzang/respatch/internal/logging"
	"github.com/jengzang/respatch/internal/models"
)

const stageName = "pipeline"

// Params holds the parameters of every stage
type Params struct {
	Cleaning  cleaning.Params          `json:"cleaning" koanf:"cleaning"`
	Residence residence.ComputeParams  `json:"residence" koanf:"residence"`
	Infer     residence.InferParams    `json:"infer" koanf:"infer"`
	Classify  residence.ClassifyParams `json:"classify" koanf:"classify"`
	Patch     patch.Params             `json:"patch" koanf:"patch"`

	// ComputeResidence derives residence time from the track even when the
	// input carries upstream values
	ComputeResidence bool `json:"compute_residence" koanf:"compute_residence"`

	// Workers bounds concurrent individuals and tidal cycles, 0 is unbounded
	Workers int `json:"workers" koanf:"workers" validate:"gte=0"`
}

// DefaultParams returns the defaults of every stage
func DefaultParams() Params {
	return Params{
		Cleaning:  cleaning.DefaultParams(),
		Residence: residence.DefaultComputeParams(),
		Infer:     residence.DefaultInferParams(),
		Classify:  residence.DefaultClassifyParams(),
		Patch:     patch.DefaultParams(),
		Workers:   4,
	}
}

// Input is the raw track of one individual
type Input struct {
	Individual string
	Fixes      []models.Fix

	// ResTime holds upstream residence times in minutes keyed by fix time
	// in milliseconds. Nil means compute them.
	ResTime map[int64]float64
}

// Result is the outcome of one individual's run
type Result struct {
	Individual string
	Table      models.PatchTable

	RawFixes      int
	CleanedFixes  int
	AlignedFixes  int
	InferredFixes int

	// Empty is set when too few fixes survived cleaning to build patches
	Empty bool

	Elapsed time.Duration
}

// Pipeline runs the stages with a fixed parameter set
type Pipeline struct {
	params Params
}

// New validates params and creates a pipeline
func New(params Params) (*Pipeline, error) {
	if err := analysis.ValidateParams(stageName, params); err != nil {
		return nil, err
	}
	return &Pipeline{params: params}, nil
}

// Params returns the pipeline parameters
func (p *Pipeline) Params() Params {
	return p.params
}

// Run processes one individual against the shared tide table. Stages run
// in order; the context is checked between them.
func (p *Pipeline) Run(ctx context.Context, in Input, tides []models.TideRow) (*Result, error) {
	start := time.Now()
	logger := logging.With(stageName)

	result := &Result{
		Individual: in.Individual,
		RawFixes:   len(in.Fixes),
		Table:      models.PatchTable{Arena: models.NewArena(nil), Patches: []models.ResidencePatch{}},
	}

	cleaned, err := cleaning.Clean(in.Fixes, p.params.Cleaning)
	if err != nil {
		return nil, fmt.Errorf("clean %s: %w", in.Individual, err)
	}
	result.CleanedFixes = len(cleaned.Fixes)
	if cleaned.Empty {
		result.Empty = true
		result.Elapsed = time.Since(start)
		logger.Warn().Str("individual", in.Individual).Err(analysis.ErrEmptyResult).Msg("too few fixes after cleaning")
		return result, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	aligned, err := tide.Align(cleaned.Fixes, tides)
	if err != nil {
		return nil, fmt.Errorf("align %s: %w", in.Individual, err)
	}
	result.AlignedFixes = len(aligned)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	withResTime, err := p.residenceTimes(aligned, in.ResTime)
	if err != nil {
		return nil, fmt.Errorf("residence time %s: %w", in.Individual, err)
	}

	inferred, err := residence.Infer(withResTime, p.params.Infer)
	if err != nil {
		return nil, fmt.Errorf("infer %s: %w", in.Individual, err)
	}
	result.InferredFixes = len(inferred) - len(withResTime)

	classified, err := residence.Classify(inferred, p.params.Classify)
	if err != nil {
		return nil, fmt.Errorf("classify %s: %w", in.Individual, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	arena := models.NewArena(classified)
	sets, err := patch.BuildCycles(ctx, arena, p.params.Patch, p.params.Workers)
	if err != nil {
		return nil, fmt.Errorf("build patches %s: %w", in.Individual, err)
	}
	patches, err := patch.Merge(arena, sets, p.params.Patch)
	if err != nil {
		return nil, fmt.Errorf("merge patches %s: %w", in.Individual, err)
	}

	result.Table = models.PatchTable{Arena: arena, Patches: patches}
	result.Elapsed = time.Since(start)

	logger.Info().
		Str("individual", in.Individual).
		Int("raw", result.RawFixes).
		Int("cleaned", result.CleanedFixes).
		Int("inferred", result.InferredFixes).
		Int("cycles", len(sets)).
		Int("patches", len(patches)).
		Dur("elapsed", result.Elapsed).
		Msg("pipeline finished")
	return result, nil
}

// RunBatch processes individuals concurrently, at most Workers at a time.
// The first failure cancels the remaining runs.
func (p *Pipeline) RunBatch(ctx context.Context, inputs []Input, tides []models.TideRow) (map[string]*Result, error) {
	if err := checkUnique(inputs); err != nil {
		return nil, err
	}

	var mu sync.Mutex
	results := make(map[string]*Result, len(inputs))

	g, ctx := errgroup.WithContext(ctx)
	if p.params.Workers > 0 {
		g.SetLimit(p.params.Workers)
	}
	for _, in := range inputs {
		in := in
		g.Go(func() error {
			res, err := p.Run(ctx, in, tides)
			if err != nil {
				return err
			}
			mu.Lock()
			results[in.Individual] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// BatchResult holds the outcome of every individual of a batch. An
// individual appears in exactly one of the two maps.
type BatchResult struct {
	Results map[string]*Result
	Errors  map[string]error
}

// RunAll processes individuals concurrently like RunBatch but keeps going
// past failures, recording them per individual. The returned error is
// non-nil only for duplicate individuals or a cancelled context.
func (p *Pipeline) RunAll(ctx context.Context, inputs []Input, tides []models.TideRow) (*BatchResult, error) {
	if err := checkUnique(inputs); err != nil {
		return nil, err
	}

	var mu sync.Mutex
	batch := &BatchResult{
		Results: make(map[string]*Result, len(inputs)),
		Errors:  make(map[string]error),
	}

	var g errgroup.Group
	if p.params.Workers > 0 {
		g.SetLimit(p.params.Workers)
	}
	for _, in := range inputs {
		in := in
		g.Go(func() error {
			res, err := p.Run(ctx, in, tides)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				batch.Errors[in.Individual] = err
				return nil
			}
			batch.Results[in.Individual] = res
			return nil
		})
	}
	_ = g.Wait()
	return batch, ctx.Err()
}

func checkUnique(inputs []Input) error {
	seen := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		if seen[in.Individual] {
			return analysis.NewSchemaError(stageName, "individual", "duplicate individual "+in.Individual)
		}
		seen[in.Individual] = true
	}
	return nil
}

func (p *Pipeline) residenceTimes(fixes []models.AlignedFix, upstream map[int64]float64) ([]models.ResidenceFix, error) {
	if upstream == nil || p.params.ComputeResidence {
		return residence.Compute(fixes, p.params.Residence)
	}

	out := make([]models.ResidenceFix, len(fixes))
	for i, f := range fixes {
		key := int64(math.Round(f.Time * 1000))
		rt, ok := upstream[key]
		if !ok {
			return nil, analysis.NewSchemaError(stageName, "resTime", fmt.Sprintf("no residence time for fix at %d", key))
		}
		out[i] = models.ResidenceFix{AlignedFix: f, ResTime: rt}
	}
	return out, nil
}
