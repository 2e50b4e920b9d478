package main

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/filament/config"
	"github.com/pthm-cable/filament/filament"
)

// failurePenalty is the per-run error charged when a ring cannot be advanced.
const failurePenalty = 1.0

// ThinCoreSpeed is the self-induced speed of a thin vortex ring of radius r
// and core radius a.
func ThinCoreSpeed(circ, r, a float64) float64 {
	return circ / (4 * math.Pi * r) * (math.Log(8*r/a) - 1)
}

// FitnessEvaluator runs single-ring simulations and scores how closely they
// travel at the thin-core speed.
type FitnessEvaluator struct {
	params     *ParamVector
	steps      int
	vertices   []int
	baseConfig *config.Config
	target     float64

	mu        sync.Mutex
	lastError float64 // mean relative speed error of the most recent Evaluate call
}

// NewFitnessEvaluator creates a new evaluator for a unit ring of the given
// core radius.
func NewFitnessEvaluator(params *ParamVector, steps int, vertices []int, baseCfg *config.Config, core float64) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:     params,
		steps:      steps,
		vertices:   vertices,
		baseConfig: baseCfg,
		target:     ThinCoreSpeed(1, 1, core),
	}
}

// Target returns the speed the rings are fitted to.
func (fe *FitnessEvaluator) Target() float64 { return fe.target }

// LastError returns the mean relative speed error from the most recent
// evaluation.
func (fe *FitnessEvaluator) LastError() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastError
}

// runResult holds the relative errors of one vertex count.
type runResult struct {
	kernelErr float64
	bothErr   float64
}

// Evaluate computes fitness for a parameter vector (lower = better): the
// summed squared relative speed errors of kernel-only and kernel plus
// doubly-discrete runs, averaged over the vertex counts.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	cfg := fe.copyConfig()
	fe.params.ApplyToConfig(cfg, x)

	// Run all vertex counts in parallel
	results := make([]runResult, len(fe.vertices))
	var wg sync.WaitGroup
	for i, n := range fe.vertices {
		wg.Add(1)
		go func(idx, n int) {
			defer wg.Done()
			results[idx] = runResult{
				kernelErr: fe.relErr(cfg, n, false),
				bothErr:   fe.relErr(cfg, n, true),
			}
		}(i, n)
	}
	wg.Wait()

	var fitness, meanErr float64
	for _, r := range results {
		fitness += r.kernelErr*r.kernelErr + r.bothErr*r.bothErr
		meanErr += 0.5 * (r.kernelErr + r.bothErr)
	}
	n := float64(len(results))

	fe.mu.Lock()
	fe.lastError = meanErr / n
	fe.mu.Unlock()

	return fitness / n
}

func (fe *FitnessEvaluator) relErr(cfg *config.Config, n int, doublyDiscrete bool) float64 {
	u, err := MeasureSpeed(cfg, n, fe.steps, doublyDiscrete)
	if err != nil {
		return failurePenalty
	}
	return math.Abs(u-fe.target) / fe.target
}

// MeasureSpeed advances a unit ring of n vertices for steps ticks and returns
// the mean axial speed of its centroid. With doublyDiscrete the kernel step
// is followed by the doubly-discrete correction.
func MeasureSpeed(cfg *config.Config, n, steps int, doublyDiscrete bool) (float64, error) {
	f := cfg.Filament
	dt := cfg.Solver.DT

	sys := filament.NewSystem("calibrate",
		filament.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		filament.WithCutoff(f.Cutoff),
		filament.WithPowerMethod(f.PowerIterations, f.PowerTolerance),
	)
	if _, err := sys.AddRing(r3.Vec{}, 1, 1, r3.Vec{Z: 1}, n); err != nil {
		return 0, err
	}

	z0 := meanZ(sys)
	for i := 0; i < steps; i++ {
		if err := sys.AdvectSelf(f.Scale, f.Regularization, dt, cfg.Derived.IntegrationMode); err != nil {
			return 0, err
		}
		if !doublyDiscrete {
			continue
		}
		if rep := sys.DoublyDiscreteUpdate(f.DoublyDiscreteRegularization, dt); rep.Skipped > 0 {
			return 0, fmt.Errorf("step %d: %w", i, rep.Failures[0].Err)
		}
	}
	u := (meanZ(sys) - z0) / (float64(steps) * dt)
	if math.IsNaN(u) || math.IsInf(u, 0) {
		return 0, fmt.Errorf("speed diverged with %d vertices", n)
	}
	return u, nil
}

func meanZ(sys *filament.System) float64 {
	var z float64
	for i := 0; i < sys.Len(); i++ {
		z += sys.Pos(i).Z
	}
	return z / float64(sys.Len())
}

// copyConfig creates an independent copy of the base config.
func (fe *FitnessEvaluator) copyConfig() *config.Config {
	cfg := *fe.baseConfig
	cfg.Rings = append([]config.RingConfig(nil), fe.baseConfig.Rings...)
	return &cfg
}
