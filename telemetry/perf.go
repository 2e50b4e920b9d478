package telemetry

import (
	"fmt"
	"log/slog"
	"time"
)

// Phase is one stage of a simulation step.
type Phase int

const (
	PhaseField Phase = iota
	PhaseFilament
	PhaseMesh
	PhaseRemesh
	PhaseCompaction
	PhaseTelemetry
	PhaseSnapshot
	numPhases
)

var phaseNames = [numPhases]string{
	"field", "filament", "mesh", "remesh", "compaction", "telemetry", "snapshot",
}

func (p Phase) String() string {
	if p < 0 || p >= numPhases {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// Workload is the amount of data a step worked on.
type Workload struct {
	Vertices int // live ring vertices after the step
	Tracers  int // live tracers after the step
	Inserted int // vertices added by remeshing
}

type tickSample struct {
	total  time.Duration
	phases [numPhases]time.Duration
	load   Workload
}

// PerfCollector keeps step timings and workloads over a rolling window of
// ticks.
type PerfCollector struct {
	samples []tickSample
	next    int
	count   int

	cur        tickSample
	tickStart  time.Time
	phaseStart time.Time
	phase      Phase
	inPhase    bool
}

// NewPerfCollector creates a collector averaging over windowSize ticks
// (60 when windowSize < 1).
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 60
	}
	return &PerfCollector{samples: make([]tickSample, windowSize)}
}

// StartTick begins timing a step.
func (p *PerfCollector) StartTick() {
	p.tickStart = time.Now()
	p.cur = tickSample{}
	p.inPhase = false
}

// StartPhase closes the running phase, if any, and starts timing ph.
// A phase entered twice in one tick accumulates.
func (p *PerfCollector) StartPhase(ph Phase) {
	now := time.Now()
	p.closePhase(now)
	p.phaseStart = now
	p.phase = ph
	p.inPhase = ph >= 0 && ph < numPhases
}

func (p *PerfCollector) closePhase(now time.Time) {
	if p.inPhase {
		p.cur.phases[p.phase] += now.Sub(p.phaseStart)
		p.inPhase = false
	}
}

// EndTick records the step with the workload it processed.
func (p *PerfCollector) EndTick(load Workload) {
	now := time.Now()
	p.closePhase(now)
	p.cur.total = now.Sub(p.tickStart)
	p.cur.load = load

	p.samples[p.next] = p.cur
	p.next = (p.next + 1) % len(p.samples)
	if p.count < len(p.samples) {
		p.count++
	}
}

// PhaseStats is the timing of one phase over the window.
type PhaseStats struct {
	Avg time.Duration
	Max time.Duration
	Pct float64 // share of the average tick
}

// PerfStats holds aggregated step timings.
type PerfStats struct {
	Ticks           int
	AvgTickDuration time.Duration
	MinTickDuration time.Duration
	MaxTickDuration time.Duration
	TicksPerSecond  float64

	Phases [numPhases]PhaseStats

	AvgVertices float64
	AvgTracers  float64
	Inserted    int

	// KernelNsPerPair is the filament phase time per vertex pair, the
	// quadratic cost of the Biot-Savart sum.
	KernelNsPerPair float64
	// FieldNsPerParticle is the field phase time per tracer.
	FieldNsPerParticle float64
}

// Phase returns the statistics of ph.
func (s PerfStats) Phase(ph Phase) PhaseStats {
	if ph < 0 || ph >= numPhases {
		return PhaseStats{}
	}
	return s.Phases[ph]
}

// Stats aggregates the samples in the window.
func (p *PerfCollector) Stats() PerfStats {
	st := PerfStats{Ticks: p.count}
	if p.count == 0 {
		return st
	}

	var phaseSum [numPhases]time.Duration
	var sumTick time.Duration
	var vertices, tracers, pairs float64
	for i, s := range p.samples[:p.count] {
		sumTick += s.total
		if i == 0 || s.total < st.MinTickDuration {
			st.MinTickDuration = s.total
		}
		st.MaxTickDuration = max(st.MaxTickDuration, s.total)

		for ph, d := range s.phases {
			phaseSum[ph] += d
			st.Phases[ph].Max = max(st.Phases[ph].Max, d)
		}

		v := float64(s.load.Vertices)
		vertices += v
		tracers += float64(s.load.Tracers)
		pairs += v * v
		st.Inserted += s.load.Inserted
	}

	n := float64(p.count)
	st.AvgTickDuration = sumTick / time.Duration(p.count)
	st.AvgVertices = vertices / n
	st.AvgTracers = tracers / n
	if st.AvgTickDuration > 0 {
		st.TicksPerSecond = float64(time.Second) / float64(st.AvgTickDuration)
	}

	for ph := range st.Phases {
		avg := phaseSum[ph] / time.Duration(p.count)
		st.Phases[ph].Avg = avg
		if st.AvgTickDuration > 0 {
			st.Phases[ph].Pct = float64(avg) / float64(st.AvgTickDuration) * 100
		}
	}
	if pairs > 0 {
		st.KernelNsPerPair = float64(phaseSum[PhaseFilament]) / pairs
	}
	if tracers > 0 {
		st.FieldNsPerParticle = float64(phaseSum[PhaseField]) / tracers
	}
	return st
}

// LogStats logs the window at info level, listing phases above 0.1%.
func (s PerfStats) LogStats() {
	attrs := []any{
		"avg_tick_us", s.AvgTickDuration.Microseconds(),
		"max_tick_us", s.MaxTickDuration.Microseconds(),
		"ticks_per_sec", int(s.TicksPerSecond),
		"vertices", int(s.AvgVertices),
		"kernel_ns_per_pair", int(s.KernelNsPerPair*100) / 100.0,
	}
	for ph, ps := range s.Phases {
		if ps.Pct > 0.1 {
			attrs = append(attrs, Phase(ph).String()+"_pct", int(ps.Pct*10)/10.0)
		}
	}
	slog.Info("perf", attrs...)
}

// LogValue implements slog.LogValuer.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int("ticks", s.Ticks),
		slog.Int64("avg_tick_us", s.AvgTickDuration.Microseconds()),
		slog.Int64("min_tick_us", s.MinTickDuration.Microseconds()),
		slog.Int64("max_tick_us", s.MaxTickDuration.Microseconds()),
		slog.Float64("ticks_per_sec", s.TicksPerSecond),
		slog.Float64("avg_vertices", s.AvgVertices),
		slog.Float64("kernel_ns_per_pair", s.KernelNsPerPair),
		slog.Float64("field_ns_per_particle", s.FieldNsPerParticle),
	}
	for ph, ps := range s.Phases {
		attrs = append(attrs, slog.Float64(Phase(ph).String()+"_pct", ps.Pct))
	}
	return slog.GroupValue(attrs...)
}

// PerfRow is one perf.csv line.
type PerfRow struct {
	WindowEnd          int32   `csv:"window_end"`
	AvgTickUS          int64   `csv:"avg_tick_us"`
	MaxTickUS          int64   `csv:"max_tick_us"`
	TicksPerSec        float64 `csv:"ticks_per_sec"`
	Vertices           float64 `csv:"vertices"`
	Tracers            float64 `csv:"tracers"`
	Inserted           int     `csv:"inserted"`
	KernelNsPerPair    float64 `csv:"kernel_ns_per_pair"`
	FieldNsPerParticle float64 `csv:"field_ns_per_particle"`
	FieldPct           float64 `csv:"field_pct"`
	FilamentPct        float64 `csv:"filament_pct"`
	MeshPct            float64 `csv:"mesh_pct"`
	RemeshPct          float64 `csv:"remesh_pct"`
	RemeshMaxUS        int64   `csv:"remesh_max_us"`
	CompactionPct      float64 `csv:"compaction_pct"`
	CompactionMaxUS    int64   `csv:"compaction_max_us"`
	TelemetryPct       float64 `csv:"telemetry_pct"`
	SnapshotPct        float64 `csv:"snapshot_pct"`
}

// Row flattens s for perf.csv.
func (s PerfStats) Row(windowEnd int32) PerfRow {
	return PerfRow{
		WindowEnd:          windowEnd,
		AvgTickUS:          s.AvgTickDuration.Microseconds(),
		MaxTickUS:          s.MaxTickDuration.Microseconds(),
		TicksPerSec:        s.TicksPerSecond,
		Vertices:           s.AvgVertices,
		Tracers:            s.AvgTracers,
		Inserted:           s.Inserted,
		KernelNsPerPair:    s.KernelNsPerPair,
		FieldNsPerParticle: s.FieldNsPerParticle,
		FieldPct:           s.Phases[PhaseField].Pct,
		FilamentPct:        s.Phases[PhaseFilament].Pct,
		MeshPct:            s.Phases[PhaseMesh].Pct,
		RemeshPct:          s.Phases[PhaseRemesh].Pct,
		RemeshMaxUS:        s.Phases[PhaseRemesh].Max.Microseconds(),
		CompactionPct:      s.Phases[PhaseCompaction].Pct,
		CompactionMaxUS:    s.Phases[PhaseCompaction].Max.Microseconds(),
		TelemetryPct:       s.Phases[PhaseTelemetry].Pct,
		SnapshotPct:        s.Phases[PhaseSnapshot].Pct,
	}
}
