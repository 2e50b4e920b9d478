// Package telemetry provides windowed simulation stats, bookmarking, and
// CSV experiment output.
package telemetry

// Collector accumulates events within time windows and produces WindowStats.
type Collector struct {
	windowDurationSec   float64
	windowDurationTicks int32
	dt                  float64

	// Current window tracking
	windowStartTick int32

	// Event counters for current window
	tracersCulled  int
	compactions    int
	remeshInserted int
	darbouxApplied int
	darbouxSkipped int
}

// NewCollector creates a new stats collector.
// windowDurationSec: how long each stats window lasts in simulation seconds
// dt: seconds per tick (used for tick-to-time conversion)
func NewCollector(windowDurationSec, dt float64) *Collector {
	ticksPerWindow := int32(windowDurationSec/dt + 0.5)
	if ticksPerWindow < 1 {
		ticksPerWindow = 1
	}

	return &Collector{
		windowDurationSec:   windowDurationSec,
		windowDurationTicks: ticksPerWindow,
		dt:                  dt,
	}
}

// RecordCulled records tracers removed by field culling.
func (c *Collector) RecordCulled(n int) {
	c.tracersCulled += n
}

// RecordCompaction records one store compaction.
func (c *Collector) RecordCompaction() {
	c.compactions++
}

// RecordRemesh records particles inserted by remeshing.
func (c *Collector) RecordRemesh(inserted int) {
	c.remeshInserted += inserted
}

// RecordDarboux records the outcome of one doubly-discrete update.
func (c *Collector) RecordDarboux(applied, skipped int) {
	c.darbouxApplied += applied
	c.darbouxSkipped += skipped
}

// ShouldFlush returns true if enough ticks have passed to flush the window.
func (c *Collector) ShouldFlush(currentTick int32) bool {
	return currentTick-c.windowStartTick >= c.windowDurationTicks
}

// Counts holds system sizes sampled at window end.
type Counts struct {
	Particles int
	Rings     int
	Tracers   int
}

// Geometry holds filament shape samples taken at window end.
type Geometry struct {
	EdgeLengths []float64
	RingRadii   []float64
	Circulation float64
}

// Flush produces a WindowStats and resets counters for the next window.
func (c *Collector) Flush(currentTick int32, counts Counts, geom Geometry) WindowStats {
	edges := ComputeDistStats(geom.EdgeLengths)
	radii := ComputeDistStats(geom.RingRadii)

	stats := WindowStats{
		WindowStartTick: c.windowStartTick,
		WindowEndTick:   currentTick,
		SimTimeSec:      float64(currentTick) * c.dt,

		Particles: counts.Particles,
		Rings:     counts.Rings,
		Tracers:   counts.Tracers,

		TracersCulled:  c.tracersCulled,
		Compactions:    c.compactions,
		RemeshInserted: c.remeshInserted,
		DarbouxApplied: c.darbouxApplied,
		DarbouxSkipped: c.darbouxSkipped,

		EdgeLenMean: edges.Mean,
		EdgeLenStd:  edges.Std,
		EdgeLenP10:  edges.P10,
		EdgeLenP50:  edges.P50,
		EdgeLenP90:  edges.P90,
		EdgeLenMax:  edges.Max,

		RingRadiusMean:   radii.Mean,
		CirculationTotal: geom.Circulation,
	}

	// Reset for next window
	c.windowStartTick = currentTick
	c.tracersCulled = 0
	c.compactions = 0
	c.remeshInserted = 0
	c.darbouxApplied = 0
	c.darbouxSkipped = 0

	return stats
}

// WindowDurationTicks returns the number of ticks per window.
func (c *Collector) WindowDurationTicks() int32 {
	return c.windowDurationTicks
}
