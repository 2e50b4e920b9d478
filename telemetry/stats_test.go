package telemetry

import (
	"math"
	"testing"
)

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		sorted []float64
		p      float64
		want   float64
	}{
		{"empty slice", []float64{}, 0.5, 0},
		{"single element", []float64{5.0}, 0.5, 5.0},
		{"p0", []float64{1, 2, 3, 4, 5}, 0.0, 1.0},
		{"p100", []float64{1, 2, 3, 4, 5}, 1.0, 5.0},
		{"p50 odd", []float64{1, 2, 3, 4, 5}, 0.5, 3.0},
		{"p50 even", []float64{1, 2, 3, 4}, 0.5, 2.5},
		{"p10", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.1, 1.9},
		{"p90", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.9, 9.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Percentile(tt.sorted, tt.p)
			if math.Abs(got-tt.want) > 0.001 {
				t.Errorf("Percentile(%v, %v) = %v, want %v", tt.sorted, tt.p, got, tt.want)
			}
		})
	}
}

func TestComputeDistStats(t *testing.T) {
	values := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0}
	got := ComputeDistStats(values)

	// Mean should be 0.55
	if math.Abs(got.Mean-0.55) > 0.001 {
		t.Errorf("mean = %v, want 0.55", got.Mean)
	}

	// Population std of 0.1..1.0
	if math.Abs(got.Std-0.2872) > 0.001 {
		t.Errorf("std = %v, want ~0.2872", got.Std)
	}

	if math.Abs(got.P10-0.19) > 0.01 {
		t.Errorf("p10 = %v, want ~0.19", got.P10)
	}
	if math.Abs(got.P50-0.55) > 0.01 {
		t.Errorf("p50 = %v, want ~0.55", got.P50)
	}
	if math.Abs(got.P90-0.91) > 0.01 {
		t.Errorf("p90 = %v, want ~0.91", got.P90)
	}
	if got.Max != 1.0 {
		t.Errorf("max = %v, want 1.0", got.Max)
	}

	// input order must be preserved
	if values[0] != 0.1 || values[9] != 1.0 {
		t.Error("ComputeDistStats modified its input")
	}
}

func TestComputeDistStatsEmpty(t *testing.T) {
	if got := ComputeDistStats(nil); got != (DistStats{}) {
		t.Errorf("empty slice should return zero stats, got %+v", got)
	}
}

func TestCollectorFlush(t *testing.T) {
	c := NewCollector(1.0, 0.1)
	if c.WindowDurationTicks() != 10 {
		t.Fatalf("window = %d ticks, want 10", c.WindowDurationTicks())
	}

	c.RecordCompaction()
	c.RecordCompaction()
	c.RecordCulled(3)
	c.RecordRemesh(5)
	c.RecordDarboux(2, 1)

	if c.ShouldFlush(9) {
		t.Error("flush before window end")
	}
	if !c.ShouldFlush(10) {
		t.Error("no flush at window end")
	}

	s := c.Flush(10, Counts{Particles: 64, Rings: 2, Tracers: 97}, Geometry{
		EdgeLengths: []float64{0.1, 0.2, 0.3},
		RingRadii:   []float64{1, 2},
		Circulation: 2,
	})

	if s.Compactions != 2 || s.TracersCulled != 3 || s.RemeshInserted != 5 {
		t.Errorf("event counters wrong: %+v", s)
	}
	if s.DarbouxApplied != 2 || s.DarbouxSkipped != 1 {
		t.Errorf("darboux counters wrong: %+v", s)
	}
	if math.Abs(s.SimTimeSec-1.0) > 1e-9 {
		t.Errorf("sim_time = %v, want 1", s.SimTimeSec)
	}
	if math.Abs(s.EdgeLenMean-0.2) > 1e-9 || s.EdgeLenMax != 0.3 {
		t.Errorf("edge stats wrong: %+v", s)
	}
	if s.RingRadiusMean != 1.5 {
		t.Errorf("ring_radius_mean = %v, want 1.5", s.RingRadiusMean)
	}

	// counters reset, window restarts
	next := c.Flush(20, Counts{}, Geometry{})
	if next.Compactions != 0 || next.WindowStartTick != 10 {
		t.Errorf("collector not reset: %+v", next)
	}
}
