package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// WindowStats holds aggregated statistics for a time window.
type WindowStats struct {
	WindowStartTick int32   `csv:"-"`
	WindowEndTick   int32   `csv:"window_end"`
	SimTimeSec      float64 `csv:"sim_time"`

	// Counts at window end
	Particles int `csv:"particles"`
	Rings     int `csv:"rings"`
	Tracers   int `csv:"tracers"`

	// Events during window
	TracersCulled  int `csv:"tracers_culled"`
	Compactions    int `csv:"compactions"`
	RemeshInserted int `csv:"remesh_inserted"`
	DarbouxApplied int `csv:"darboux_applied"`
	DarbouxSkipped int `csv:"darboux_skipped"`

	// Edge length distribution (sampled at window end)
	EdgeLenMean float64 `csv:"edge_len_mean"`
	EdgeLenStd  float64 `csv:"edge_len_std"`
	EdgeLenP10  float64 `csv:"edge_len_p10"`
	EdgeLenP50  float64 `csv:"edge_len_p50"`
	EdgeLenP90  float64 `csv:"edge_len_p90"`
	EdgeLenMax  float64 `csv:"edge_len_max"`

	// Ring geometry
	RingRadiusMean   float64 `csv:"ring_radius_mean"`
	CirculationTotal float64 `csv:"circulation_total"`
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// DistStats summarizes a sample.
type DistStats struct {
	Mean, Std     float64
	P10, P50, P90 float64
	Max           float64
}

// ComputeDistStats calculates mean, population std, percentiles and max.
func ComputeDistStats(values []float64) DistStats {
	if len(values) == 0 {
		return DistStats{}
	}

	mean, std := stat.PopMeanStdDev(values, nil)

	// Sort for percentiles
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	return DistStats{
		Mean: mean,
		Std:  std,
		P10:  Percentile(sorted, 0.10),
		P50:  Percentile(sorted, 0.50),
		P90:  Percentile(sorted, 0.90),
		Max:  floats.Max(sorted),
	}
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("window_start", int(s.WindowStartTick)),
		slog.Int("window_end", int(s.WindowEndTick)),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.Int("particles", s.Particles),
		slog.Int("rings", s.Rings),
		slog.Int("tracers", s.Tracers),
		slog.Int("tracers_culled", s.TracersCulled),
		slog.Int("compactions", s.Compactions),
		slog.Int("remesh_inserted", s.RemeshInserted),
		slog.Int("darboux_applied", s.DarbouxApplied),
		slog.Int("darboux_skipped", s.DarbouxSkipped),
		slog.Float64("edge_len_mean", s.EdgeLenMean),
		slog.Float64("edge_len_std", s.EdgeLenStd),
		slog.Float64("edge_len_p10", s.EdgeLenP10),
		slog.Float64("edge_len_p50", s.EdgeLenP50),
		slog.Float64("edge_len_p90", s.EdgeLenP90),
		slog.Float64("edge_len_max", s.EdgeLenMax),
		slog.Float64("ring_radius_mean", s.RingRadiusMean),
		slog.Float64("circulation_total", s.CirculationTotal),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats",
		"window_end", s.WindowEndTick,
		"sim_time", s.SimTimeSec,
		"particles", s.Particles,
		"rings", s.Rings,
		"tracers", s.Tracers,
		"tracers_culled", s.TracersCulled,
		"compactions", s.Compactions,
		"remesh_inserted", s.RemeshInserted,
		"darboux_applied", s.DarbouxApplied,
		"darboux_skipped", s.DarbouxSkipped,
		"edge_len_mean", s.EdgeLenMean,
		"edge_len_p90", s.EdgeLenP90,
		"edge_len_max", s.EdgeLenMax,
		"ring_radius_mean", s.RingRadiusMean,
		"circulation_total", s.CirculationTotal,
	)
}
