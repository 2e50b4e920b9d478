package telemetry

import (
	"testing"
	"time"
)

func TestPerfCollector_BasicTiming(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartTick()
		pc.StartPhase(PhaseFilament)
		time.Sleep(100 * time.Microsecond)
		pc.StartPhase(PhaseRemesh)
		time.Sleep(200 * time.Microsecond)
		pc.EndTick(Workload{Vertices: 64, Tracers: 10, Inserted: 2})
	}

	stats := pc.Stats()

	if stats.Ticks != 5 {
		t.Errorf("ticks = %d, want 5", stats.Ticks)
	}
	if stats.AvgTickDuration <= 0 {
		t.Error("expected positive average tick duration")
	}
	if stats.Phase(PhaseFilament).Avg < 100*time.Microsecond {
		t.Errorf("filament avg = %v, want >= 100us", stats.Phase(PhaseFilament).Avg)
	}
	if stats.Phase(PhaseRemesh).Max < stats.Phase(PhaseRemesh).Avg {
		t.Error("remesh max below its average")
	}
	if stats.Phase(PhaseMesh).Avg != 0 {
		t.Errorf("mesh phase never ran, avg = %v", stats.Phase(PhaseMesh).Avg)
	}
	if stats.AvgVertices != 64 || stats.AvgTracers != 10 || stats.Inserted != 10 {
		t.Errorf("workload = %v vertices, %v tracers, %d inserted", stats.AvgVertices, stats.AvgTracers, stats.Inserted)
	}
}

func TestPerfCollector_KernelCostPerPair(t *testing.T) {
	pc := NewPerfCollector(4)

	for i := 0; i < 4; i++ {
		pc.StartTick()
		pc.StartPhase(PhaseFilament)
		time.Sleep(time.Millisecond)
		pc.EndTick(Workload{Vertices: 10})
	}

	stats := pc.Stats()
	want := float64(stats.Phase(PhaseFilament).Avg) / 100
	if d := stats.KernelNsPerPair - want; d > 0.01 || d < -0.01 {
		t.Errorf("kernel ns per pair = %v, want %v", stats.KernelNsPerPair, want)
	}
	if stats.KernelNsPerPair < 1e4 {
		t.Errorf("1ms over 100 pairs should be at least 10us per pair, got %vns", stats.KernelNsPerPair)
	}
	if stats.FieldNsPerParticle != 0 {
		t.Error("no tracers, field cost should be zero")
	}
}

func TestPerfCollector_RollingWindow(t *testing.T) {
	pc := NewPerfCollector(5)

	for i := 0; i < 10; i++ {
		pc.StartTick()
		pc.StartPhase(PhaseFilament)
		pc.EndTick(Workload{Vertices: i})
	}

	stats := pc.Stats()

	if stats.Ticks != 5 {
		t.Errorf("ticks = %d, want window size 5", stats.Ticks)
	}
	// window holds ticks 5..9
	if stats.AvgVertices != 7 {
		t.Errorf("avg vertices = %v, want 7", stats.AvgVertices)
	}
}

func TestPerfCollector_PhasePercentages(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartTick()
		pc.StartPhase(PhaseCompaction)
		time.Sleep(10 * time.Microsecond)
		pc.StartPhase(PhaseFilament)
		time.Sleep(500 * time.Microsecond)
		pc.EndTick(Workload{})
	}

	stats := pc.Stats()

	fast := stats.Phase(PhaseCompaction).Pct
	slow := stats.Phase(PhaseFilament).Pct
	if slow <= fast {
		t.Errorf("expected filament (%v%%) > compaction (%v%%)", slow, fast)
	}
	if slow > 100 {
		t.Errorf("phase share %v%% above 100", slow)
	}
}

func TestPerfCollector_EmptyStats(t *testing.T) {
	pc := NewPerfCollector(0)

	stats := pc.Stats()

	if stats.Ticks != 0 || stats.AvgTickDuration != 0 || stats.TicksPerSecond != 0 {
		t.Errorf("expected zero stats, got %+v", stats)
	}
	if got := stats.Phase(Phase(42)); got != (PhaseStats{}) {
		t.Errorf("unknown phase = %+v", got)
	}
}

func TestPhaseString(t *testing.T) {
	if PhaseSnapshot.String() != "snapshot" {
		t.Errorf("PhaseSnapshot = %q", PhaseSnapshot.String())
	}
	if Phase(-1).String() != "phase(-1)" {
		t.Errorf("Phase(-1) = %q", Phase(-1).String())
	}
}

func TestPerfStats_Row(t *testing.T) {
	var stats PerfStats
	stats.AvgTickDuration = 1500 * time.Microsecond
	stats.TicksPerSecond = 666
	stats.AvgVertices = 128
	stats.Phases[PhaseFilament].Pct = 80
	stats.Phases[PhaseRemesh] = PhaseStats{Pct: 15, Max: 900 * time.Microsecond}

	row := stats.Row(120)

	if row.WindowEnd != 120 {
		t.Errorf("window_end = %d, want 120", row.WindowEnd)
	}
	if row.AvgTickUS != 1500 {
		t.Errorf("avg_tick_us = %d, want 1500", row.AvgTickUS)
	}
	if row.FilamentPct != 80 || row.RemeshPct != 15 || row.MeshPct != 0 {
		t.Errorf("unexpected phase split: %+v", row)
	}
	if row.RemeshMaxUS != 900 || row.Vertices != 128 {
		t.Errorf("unexpected remesh max or vertices: %+v", row)
	}
}
