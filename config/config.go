// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/filament/integrator"
	"github.com/pthm-cable/filament/snapshot"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	Solver    SolverConfig    `yaml:"solver"`
	Store     StoreConfig     `yaml:"store"`
	Filament  FilamentConfig  `yaml:"filament"`
	Rings     []RingConfig    `yaml:"rings"`
	Tracers   TracerConfig    `yaml:"tracers"`
	Field     FieldConfig     `yaml:"field"`
	Mesh      MeshConfig      `yaml:"mesh"`
	Parallel  ParallelConfig  `yaml:"parallel"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// Vec3 is a vector written as a three element YAML list.
type Vec3 [3]float64

// R3 converts v to a gonum vector.
func (v Vec3) R3() r3.Vec { return r3.Vec{X: v[0], Y: v[1], Z: v[2]} }

// SolverConfig holds time stepping parameters.
type SolverConfig struct {
	DT              float64 `yaml:"dt"`
	IntegrationMode string  `yaml:"integration_mode"` // euler, rk2, rk4
	Steps           int     `yaml:"steps"`            // 0 = run until stopped
}

// StoreConfig holds particle store parameters.
type StoreConfig struct {
	DeleteChunkDivisor int     `yaml:"delete_chunk_divisor"` // compact after len/divisor kills; <= 0 disables
	BoundsMargin       float64 `yaml:"bounds_margin"`
}

// FilamentConfig holds vortex filament parameters.
type FilamentConfig struct {
	Name                         string  `yaml:"name"`
	Update                       string  `yaml:"update"` // kernel, doubly_discrete, both
	Scale                        float64 `yaml:"scale"`
	Regularization               float64 `yaml:"regularization"`
	Cutoff                       float64 `yaml:"cutoff"`
	RemeshMaxLength              float64 `yaml:"remesh_max_length"` // 0 disables remeshing
	DoublyDiscreteRegularization float64 `yaml:"doubly_discrete_regularization"`
	PowerIterations              int     `yaml:"power_iterations"`
	PowerTolerance               float64 `yaml:"power_tolerance"`
	AdvectInField                bool    `yaml:"advect_in_field"`
}

// RingConfig places one vortex ring at startup.
type RingConfig struct {
	Center      Vec3    `yaml:"center"`
	Normal      Vec3    `yaml:"normal"`
	Radius      float64 `yaml:"radius"`
	Circulation float64 `yaml:"circulation"`
	Vertices    int     `yaml:"vertices"`
}

// TracerConfig seeds passive tracer particles in a box.
type TracerConfig struct {
	Count int   `yaml:"count"`
	Seed  int64 `yaml:"seed"`
	Min   Vec3  `yaml:"min"`
	Max   Vec3  `yaml:"max"`
}

// SphereConfig is a spherical obstacle.
type SphereConfig struct {
	Center Vec3    `yaml:"center"`
	Radius float64 `yaml:"radius"`
}

// FieldConfig holds the background velocity field.
type FieldConfig struct {
	Enabled     bool           `yaml:"enabled"`
	Min         Vec3           `yaml:"min"`
	Max         Vec3           `yaml:"max"`
	Drift       Vec3           `yaml:"drift"`
	Swirl       float64        `yaml:"swirl"` // rad/s about +Y
	SwirlCenter Vec3           `yaml:"swirl_center"`
	Obstacles   []SphereConfig `yaml:"obstacles"`
}

// MeshConfig holds the optional surface mesh carried by the filaments.
type MeshConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Center   Vec3    `yaml:"center"`
	Radius   float64 `yaml:"radius"`
	Rings    int     `yaml:"rings"`
	Sectors  int     `yaml:"sectors"`
	FixPoles bool    `yaml:"fix_poles"`
}

// ParallelConfig holds kernel worker pool parameters.
type ParallelConfig struct {
	Workers   int `yaml:"workers"`   // 0 = GOMAXPROCS
	Threshold int `yaml:"threshold"` // below this many points, evaluate inline
}

// TelemetryConfig holds telemetry and metrics settings.
type TelemetryConfig struct {
	StatsWindow         float64 `yaml:"stats_window"` // seconds of sim time per stats row
	PerfCollectorWindow int     `yaml:"perf_collector_window"`
	BookmarkHistory     int     `yaml:"bookmark_history"` // stats windows kept for bookmark detection
	MetricsAddr         string  `yaml:"metrics_addr"`     // empty disables /metrics
}

// SnapshotConfig holds binary dump settings.
type SnapshotConfig struct {
	Every int    `yaml:"every"` // ticks between dumps, 0 disables
	Codec string `yaml:"codec"` // none, lz4, zstd
}

// DerivedConfig holds values computed from the loaded config.
type DerivedConfig struct {
	IntegrationMode  integrator.Mode
	SnapshotCodec    snapshot.Codec
	StatsWindowTicks int
}

var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Defaults returns the embedded default configuration.
func Defaults() (*Config, error) {
	return Load("")
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	// Load user config if provided
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.computeDerived(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() error {
	mode, err := integrator.ParseMode(c.Solver.IntegrationMode)
	if err != nil {
		return fmt.Errorf("solver.integration_mode: %w", err)
	}
	c.Derived.IntegrationMode = mode

	codec, err := snapshot.ParseCodec(c.Snapshot.Codec)
	if err != nil {
		return fmt.Errorf("snapshot.codec: %w", err)
	}
	c.Derived.SnapshotCodec = codec

	if c.Solver.DT <= 0 {
		return fmt.Errorf("solver.dt must be positive, got %g", c.Solver.DT)
	}
	c.Derived.StatsWindowTicks = max(1, int(c.Telemetry.StatsWindow/c.Solver.DT+0.5))
	return nil
}

// WriteYAML writes the config to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
