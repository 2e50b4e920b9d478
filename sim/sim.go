// Package sim drives the filament and tracer systems through the configured
// step phases and wires telemetry, metrics and snapshots around them.
package sim

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/filament/config"
	"github.com/pthm-cable/filament/field"
	"github.com/pthm-cable/filament/filament"
	"github.com/pthm-cable/filament/mesh"
	"github.com/pthm-cable/filament/metrics"
	"github.com/pthm-cable/filament/parallel"
	"github.com/pthm-cable/filament/particles"
	"github.com/pthm-cable/filament/snapshot"
	"github.com/pthm-cable/filament/telemetry"
)

var (
	// ErrUnsupportedKind is returned when a system of a kind the runner
	// cannot advect is registered.
	ErrUnsupportedKind = errors.New("unsupported particle system kind")
	// ErrInvalidUpdate is returned for an unknown filament update mode.
	ErrInvalidUpdate = errors.New("invalid filament update mode")
)

// UpdateMode selects how the rings move each step.
type UpdateMode uint8

const (
	UpdateKernel UpdateMode = iota
	UpdateDoublyDiscrete
	UpdateBoth
)

func (m UpdateMode) String() string {
	switch m {
	case UpdateKernel:
		return "kernel"
	case UpdateDoublyDiscrete:
		return "doubly_discrete"
	case UpdateBoth:
		return "both"
	default:
		return fmt.Sprintf("update(%d)", uint8(m))
	}
}

// ParseUpdateMode parses kernel, doubly_discrete or both.
func ParseUpdateMode(s string) (UpdateMode, error) {
	switch s {
	case "kernel", "":
		return UpdateKernel, nil
	case "doubly_discrete":
		return UpdateDoublyDiscrete, nil
	case "both":
		return UpdateBoth, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidUpdate, s)
}

// Options configures a Simulation beyond the config file.
type Options struct {
	OutputDir string // empty disables CSV and snapshot output
	LogStats  bool
	Metrics   *metrics.Metrics // nil disables Prometheus collection
	Logger    *slog.Logger     // nil uses slog.Default()

	// StatsCallback is called with every flushed stats window.
	StatsCallback func(telemetry.WindowStats)
}

// Simulation owns every system of a run.
type Simulation struct {
	cfg    *config.Config
	log    *slog.Logger
	update UpdateMode
	tick   int32

	pool    *parallel.Pool
	tracers *particles.Store[particles.Basic, *particles.Basic]
	rings   *filament.System
	field   field.Sampler
	mesh    *mesh.Nodes

	collector        *telemetry.Collector
	bookmarkDetector *telemetry.BookmarkDetector
	perfCollector    *telemetry.PerfCollector
	outputManager    *telemetry.OutputManager
	metrics          *metrics.Metrics
	logStats         bool
	statsCallback    func(telemetry.WindowStats)
}

// New builds a simulation from cfg.
func New(cfg *config.Config, opts Options) (*Simulation, error) {
	update, err := ParseUpdateMode(cfg.Filament.Update)
	if err != nil {
		return nil, fmt.Errorf("filament.update: %w", err)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Simulation{
		cfg:              cfg,
		log:              log,
		update:           update,
		pool:             parallel.NewPool(cfg.Parallel.Workers, cfg.Parallel.Threshold),
		collector:        telemetry.NewCollector(cfg.Telemetry.StatsWindow, cfg.Solver.DT),
		bookmarkDetector: telemetry.NewBookmarkDetector(cfg.Telemetry.BookmarkHistory),
		perfCollector:    telemetry.NewPerfCollector(cfg.Telemetry.PerfCollectorWindow),
		metrics:          opts.Metrics,
		logStats:         opts.LogStats,
		statsCallback:    opts.StatsCallback,
	}

	s.rings = filament.NewSystem(cfg.Filament.Name,
		filament.WithLogger(log),
		filament.WithPool(s.pool),
		filament.WithCutoff(cfg.Filament.Cutoff),
		filament.WithPowerMethod(cfg.Filament.PowerIterations, cfg.Filament.PowerTolerance),
	)
	s.rings.SetDeleteChunkDivisor(cfg.Store.DeleteChunkDivisor)
	for i, rc := range cfg.Rings {
		if _, err := s.rings.AddRing(rc.Center.R3(), rc.Circulation, rc.Radius, rc.Normal.R3(), rc.Vertices); err != nil {
			s.pool.Stop()
			return nil, fmt.Errorf("rings[%d]: %w", i, err)
		}
	}

	s.tracers = particles.NewStore[particles.Basic, *particles.Basic]("tracers", particles.KindTracer)
	s.tracers.SetDeleteChunkDivisor(cfg.Store.DeleteChunkDivisor)
	s.tracers.SetBoundsMargin(cfg.Store.BoundsMargin)
	s.seedTracers()

	s.rings.OnCompress(s.compactionHook(s.rings.Name()))
	s.tracers.OnCompress(s.compactionHook(s.tracers.Name()))

	if cfg.Field.Enabled {
		s.field = newBox(cfg.Field)
	}
	if cfg.Mesh.Enabled {
		s.mesh = mesh.NewUVSphere(cfg.Mesh.Center.R3(), cfg.Mesh.Radius, cfg.Mesh.Rings, cfg.Mesh.Sectors)
		if cfg.Mesh.FixPoles {
			s.mesh.Fix(0)
			s.mesh.Fix(s.mesh.NumNodes() - 1)
		}
	}

	om, err := telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		s.pool.Stop()
		return nil, err
	}
	s.outputManager = om
	if err := om.WriteConfig(cfg); err != nil {
		s.Close()
		return nil, fmt.Errorf("writing config: %w", err)
	}

	log.Info("simulation ready",
		"rings", s.rings.Describe(),
		"tracers", s.tracers.Describe(),
		"update", update.String(),
		"mode", cfg.Derived.IntegrationMode.String(),
		"workers", s.pool.Workers(),
	)
	return s, nil
}

func newBox(fc config.FieldConfig) *field.Box {
	box := &field.Box{
		Min:         fc.Min.R3(),
		Max:         fc.Max.R3(),
		Drift:       fc.Drift.R3(),
		Swirl:       fc.Swirl,
		SwirlCenter: fc.SwirlCenter.R3(),
	}
	for _, o := range fc.Obstacles {
		box.Obstacles = append(box.Obstacles, field.Sphere{Center: o.Center.R3(), Radius: o.Radius})
	}
	return box
}

// seedTracers scatters the configured tracers uniformly in their box.
func (s *Simulation) seedTracers() {
	tc := s.cfg.Tracers
	rng := rand.New(rand.NewSource(tc.Seed))
	lo, hi := tc.Min.R3(), tc.Max.R3()
	ext := r3.Sub(hi, lo)
	for i := 0; i < tc.Count; i++ {
		p := r3.Vec{
			X: lo.X + rng.Float64()*ext.X,
			Y: lo.Y + rng.Float64()*ext.Y,
			Z: lo.Z + rng.Float64()*ext.Z,
		}
		s.tracers.Add(particles.NewBasic(p))
	}
}

// compactionHook counts compactions of the named system.
func (s *Simulation) compactionHook(name string) func(particles.Renumbering) {
	return func(r particles.Renumbering) {
		s.collector.RecordCompaction()
		s.metrics.RecordCompaction(name, len(r)-r.Survivors())
	}
}

// systems lists every registered particle system.
func (s *Simulation) systems() []particles.System {
	return []particles.System{s.tracers, s.rings}
}

// Step advances the simulation by one tick.
func (s *Simulation) Step() error {
	start := time.Now()
	s.perfCollector.StartTick()

	s.perfCollector.StartPhase(telemetry.PhaseField)
	if err := s.advectField(); err != nil {
		return err
	}

	s.perfCollector.StartPhase(telemetry.PhaseFilament)
	if err := s.updateFilaments(); err != nil {
		return err
	}

	s.perfCollector.StartPhase(telemetry.PhaseMesh)
	if s.mesh != nil {
		f := s.cfg.Filament
		if err := s.rings.ApplyToMesh(s.mesh, f.Scale, f.Regularization, s.cfg.Solver.DT, s.cfg.Derived.IntegrationMode); err != nil {
			return err
		}
	}

	s.perfCollector.StartPhase(telemetry.PhaseRemesh)
	inserted := 0
	if maxLen := s.cfg.Filament.RemeshMaxLength; maxLen > 0 {
		n, err := s.rings.Remesh(maxLen)
		if err != nil {
			return fmt.Errorf("tick %d: %w", s.tick, err)
		}
		inserted = n
		s.collector.RecordRemesh(n)
		s.metrics.RecordRemesh(n)
	}

	s.perfCollector.StartPhase(telemetry.PhaseCompaction)
	s.compact()

	s.tick++

	s.perfCollector.StartPhase(telemetry.PhaseTelemetry)
	s.flushTelemetry()

	s.perfCollector.StartPhase(telemetry.PhaseSnapshot)
	if err := s.maybeSnapshot(); err != nil {
		return err
	}
	s.perfCollector.EndTick(telemetry.Workload{
		Vertices: s.rings.Live(),
		Tracers:  s.tracers.Live(),
		Inserted: inserted,
	})

	s.metrics.SetParticles(s.rings.Name(), s.rings.Len())
	s.metrics.SetParticles(s.tracers.Name(), s.tracers.Len())
	s.metrics.RecordStep(time.Since(start))
	return nil
}

// advectField moves every system through the background field.
func (s *Simulation) advectField() error {
	if s.field == nil {
		return nil
	}
	dt, mode := s.cfg.Solver.DT, s.cfg.Derived.IntegrationMode
	for _, sys := range s.systems() {
		switch k := sys.Kind(); k {
		case particles.KindParticle, particles.KindTracer:
			lc, _ := sys.(interface{ Live() int })
			before := 0
			if lc != nil {
				before = lc.Live()
			}
			if err := sys.AdvectInGrid(s.field, dt, mode); err != nil {
				return err
			}
			if lc != nil {
				s.collector.RecordCulled(before - lc.Live())
			}
		case particles.KindFilament:
			if !s.cfg.Filament.AdvectInField {
				continue
			}
			if err := sys.AdvectInGrid(s.field, dt, mode); err != nil {
				return err
			}
		case particles.KindBase, particles.KindVelPart, particles.KindVortex, particles.KindFlip:
			return fmt.Errorf("%w: %s", ErrUnsupportedKind, k)
		default:
			return fmt.Errorf("%w: %s", ErrUnsupportedKind, k)
		}
	}
	return nil
}

// updateFilaments runs the configured ring update.
func (s *Simulation) updateFilaments() error {
	f := s.cfg.Filament
	dt := s.cfg.Solver.DT

	if s.update == UpdateKernel || s.update == UpdateBoth {
		if err := s.rings.AdvectSelf(f.Scale, f.Regularization, dt, s.cfg.Derived.IntegrationMode); err != nil {
			return err
		}
	}
	if s.update == UpdateDoublyDiscrete || s.update == UpdateBoth {
		rep := s.rings.DoublyDiscreteUpdate(f.DoublyDiscreteRegularization, dt)
		s.collector.RecordDarboux(rep.Applied, rep.Skipped)
		stages := make([]string, len(rep.Failures))
		for i, fl := range rep.Failures {
			stages[i] = stageLabel(fl.Stage)
		}
		s.metrics.RecordDarboux(rep.Applied, stages...)
	}
	return nil
}

// stageLabel folds an update stage into the reference/forward/backward
// metric label.
func stageLabel(st filament.UpdateStage) string {
	switch {
	case st == filament.StageComputingReference:
		return "reference"
	case st.Backward():
		return "backward"
	default:
		return "forward"
	}
}

// compact removes pending deletions when automatic compaction is disabled.
func (s *Simulation) compact() {
	if s.cfg.Store.DeleteChunkDivisor > 0 {
		return
	}
	if s.tracers.Pending() > 0 {
		s.tracers.Compress()
	}
	if s.rings.Pending() > 0 {
		s.rings.Compress()
	}
}

// flushTelemetry checks if the stats window should be flushed.
func (s *Simulation) flushTelemetry() {
	if !s.collector.ShouldFlush(s.tick) {
		return
	}

	counts := telemetry.Counts{
		Particles: s.rings.Live(),
		Rings:     s.rings.ActiveSegments(),
		Tracers:   s.tracers.Live(),
	}
	stats := s.collector.Flush(s.tick, counts, s.sampleGeometry())
	perfStats := s.perfCollector.Stats()

	if s.statsCallback != nil {
		s.statsCallback(stats)
	}

	if s.logStats {
		stats.LogStats()
		perfStats.LogStats()
	}

	if s.outputManager != nil {
		if err := s.outputManager.WriteTelemetry(stats); err != nil {
			s.log.Error("failed to write telemetry", "error", err)
		}
		if err := s.outputManager.WritePerf(perfStats, stats.WindowEndTick); err != nil {
			s.log.Error("failed to write perf", "error", err)
		}
	}

	// Check for bookmarks
	for _, bm := range s.bookmarkDetector.Check(stats) {
		if s.logStats {
			bm.LogBookmark()
		}

		if s.outputManager != nil {
			if err := s.outputManager.WriteBookmark(bm); err != nil {
				s.log.Error("failed to write bookmark", "error", err)
			}
			s.saveBookmarkSnapshot(bm)
		}
	}
}

// saveBookmarkSnapshot dumps the filament system for bm.
func (s *Simulation) saveBookmarkSnapshot(bm telemetry.Bookmark) {
	path := s.outputManager.BookmarkSnapshotPath(bm)
	frame := s.rings.Snapshot(uint64(bm.Tick))
	if err := snapshot.SaveFile(path, frame, s.cfg.Derived.SnapshotCodec); err != nil {
		s.log.Error("failed to save bookmark snapshot", "type", string(bm.Type), "error", err)
		return
	}
	s.indexSnapshot(path, bm.Tick, string(bm.Type))
}

// indexSnapshot adds a written snapshot file to snapshots.csv.
func (s *Simulation) indexSnapshot(path string, tick int32, reason string) {
	e := telemetry.SnapshotEntry{
		Tick:      tick,
		Reason:    reason,
		Particles: s.rings.Live(),
		Rings:     s.rings.ActiveSegments(),
	}
	if err := s.outputManager.RecordSnapshot(path, e); err != nil {
		s.log.Error("failed to index snapshot", "path", path, "error", err)
	}
}

// sampleGeometry collects edge lengths, mean ring radii and the total
// circulation of the active rings.
func (s *Simulation) sampleGeometry() telemetry.Geometry {
	var g telemetry.Geometry
	for rc := 0; rc < s.rings.SegLen(); rc++ {
		if !s.rings.IsSegActive(rc) {
			continue
		}
		ring := s.rings.Seg(rc)
		n := ring.Size()
		if n == 0 {
			continue
		}
		c := s.centroid(rc)
		var rad float64
		for j := 0; j < n; j++ {
			p0, p1 := s.rings.Pos(ring.Idx0(j)), s.rings.Pos(ring.Idx1(j))
			g.EdgeLengths = append(g.EdgeLengths, r3.Norm(r3.Sub(p1, p0)))
			rad += r3.Norm(r3.Sub(p0, c))
		}
		g.RingRadii = append(g.RingRadii, rad/float64(n))
		g.Circulation += ring.Circulation
	}
	return g
}

// maybeSnapshot dumps the filament system every Snapshot.Every ticks.
func (s *Simulation) maybeSnapshot() error {
	every := s.cfg.Snapshot.Every
	if every <= 0 || s.outputManager == nil || s.tick%int32(every) != 0 {
		return nil
	}
	path := s.outputManager.SnapshotPath(s.tick)
	frame := s.rings.Snapshot(uint64(s.tick))
	if err := snapshot.SaveFile(path, frame, s.cfg.Derived.SnapshotCodec); err != nil {
		return fmt.Errorf("tick %d: %w", s.tick, err)
	}
	s.indexSnapshot(path, s.tick, "periodic")
	s.log.Debug("snapshot written", "tick", s.tick, "path", path)
	return nil
}

// Close stops the worker pool and closes the output files.
func (s *Simulation) Close() error {
	s.pool.Stop()
	return s.outputManager.Close()
}

// Tick returns the number of completed steps.
func (s *Simulation) Tick() int32 { return s.tick }

// Rings returns the filament system.
func (s *Simulation) Rings() *filament.System { return s.rings }

// Tracers returns the passive tracer store.
func (s *Simulation) Tracers() *particles.Store[particles.Basic, *particles.Basic] {
	return s.tracers
}

// Mesh returns the coupled surface mesh, or nil when disabled.
func (s *Simulation) Mesh() *mesh.Nodes { return s.mesh }

// OutputDir returns the output directory, or "" when output is disabled.
func (s *Simulation) OutputDir() string { return s.outputManager.Dir() }

// SimTime returns the elapsed simulation time.
func (s *Simulation) SimTime() float64 {
	return float64(s.tick) * s.cfg.Solver.DT
}

// centroid returns the mean particle position of ring rc.
func (s *Simulation) centroid(rc int) r3.Vec {
	ring := s.rings.Seg(rc)
	var c r3.Vec
	for _, idx := range ring.Indices {
		c = r3.Add(c, s.rings.Pos(idx))
	}
	if n := ring.Size(); n > 0 {
		c = r3.Scale(1/float64(n), c)
	}
	return c
}

// Centroids returns the centroid of every active ring.
func (s *Simulation) Centroids() []r3.Vec {
	var out []r3.Vec
	for rc := 0; rc < s.rings.SegLen(); rc++ {
		if s.rings.IsSegActive(rc) {
			out = append(out, s.centroid(rc))
		}
	}
	return out
}
