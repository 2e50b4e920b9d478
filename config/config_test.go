package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/filament/integrator"
	"github.com/pthm-cable/filament/snapshot"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Defaults()
	require.NoError(t, err)

	assert.Equal(t, integrator.RK2, cfg.Derived.IntegrationMode)
	assert.Equal(t, snapshot.CodecZstd, cfg.Derived.SnapshotCodec)
	assert.Equal(t, 20, cfg.Store.DeleteChunkDivisor)
	assert.Equal(t, 20, cfg.Derived.StatsWindowTicks)
	require.Len(t, cfg.Rings, 2)
	assert.Equal(t, 32, cfg.Rings[0].Vertices)
	assert.Equal(t, 1.0, cfg.Rings[0].Normal.R3().Z)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeFile(t, `
solver:
  integration_mode: rk4
filament:
  update: doubly_discrete
rings:
  - center: [1, 2, 3]
    normal: [0, 1, 0]
    radius: 0.5
    circulation: -2
    vertices: 12
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, integrator.RK4, cfg.Derived.IntegrationMode)
	assert.Equal(t, 0.05, cfg.Solver.DT, "untouched keys keep defaults")
	assert.Equal(t, "doubly_discrete", cfg.Filament.Update)
	assert.Equal(t, 0.1, cfg.Filament.Regularization)
	require.Len(t, cfg.Rings, 1)
	assert.Equal(t, Vec3{1, 2, 3}, cfg.Rings[0].Center)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		is   error
	}{
		{"bad mode", "solver:\n  integration_mode: rk3\n", integrator.ErrInvalidMode},
		{"bad codec", "snapshot:\n  codec: gzip\n", snapshot.ErrUnknownCodec},
		{"bad dt", "solver:\n  dt: 0\n", nil},
		{"bad yaml", "solver: [\n", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.body))
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg, err := Defaults()
	require.NoError(t, err)
	cfg.Filament.Scale = 2.5

	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, cfg.WriteYAML(path))

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestGlobalAccess(t *testing.T) {
	global = nil
	assert.Panics(t, func() { Cfg() })

	MustInit("")
	assert.Equal(t, "rings", Cfg().Filament.Name)
	global = nil
}
