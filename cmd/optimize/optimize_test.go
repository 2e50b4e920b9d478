package main

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/filament/config"
)

func TestThinCoreSpeed(t *testing.T) {
	// ln(8/0.05) - 1 over 4 pi
	want := (math.Log(160) - 1) / (4 * math.Pi)
	assert.InDelta(t, want, ThinCoreSpeed(1, 1, 0.05), 1e-12)
	assert.InDelta(t, 2*want, ThinCoreSpeed(2, 1, 0.05), 1e-12)
}

func TestParamVectorRoundTrip(t *testing.T) {
	pv := NewParamVector()
	require.Equal(t, 2, pv.Dim())

	def := pv.DefaultVector()
	back := pv.Denormalize(pv.Normalize(def))
	for i := range def {
		assert.InDelta(t, def[i], back[i], 1e-12)
	}

	clamped := pv.Clamp([]float64{-1, 9})
	assert.Equal(t, []float64{0.001, 0.5}, clamped)

	cfg, err := config.Defaults()
	require.NoError(t, err)
	pv.ApplyToConfig(cfg, []float64{0.02, 7})
	assert.Equal(t, []float64{0.02, 0.5}, pv.ExtractFromConfig(cfg))
}

func TestParseVertices(t *testing.T) {
	got, err := parseVertices("8, 16,32")
	require.NoError(t, err)
	assert.Equal(t, []int{8, 16, 32}, got)

	_, err = parseVertices("8,x")
	assert.Error(t, err)
	_, err = parseVertices("2")
	assert.Error(t, err)
}

func TestMeasureSpeedKernel(t *testing.T) {
	cfg, err := config.Defaults()
	require.NoError(t, err)

	u, err := MeasureSpeed(cfg, 32, 2, false)
	require.NoError(t, err)
	assert.Greater(t, u, 0.0, "ring must travel along +Z")
	assert.Less(t, u, 1.0)

	// a thicker core slows the ring down
	cfg.Filament.Regularization = 0.3
	slow, err := MeasureSpeed(cfg, 32, 2, false)
	require.NoError(t, err)
	assert.Less(t, slow, u)
}

func TestEvaluate(t *testing.T) {
	cfg, err := config.Defaults()
	require.NoError(t, err)

	fe := NewFitnessEvaluator(NewParamVector(), 2, []int{16}, cfg, 0.05)
	fit := fe.Evaluate([]float64{0.1, 0.1})

	assert.False(t, math.IsNaN(fit))
	assert.GreaterOrEqual(t, fit, 0.0)
	assert.GreaterOrEqual(t, fe.LastError(), 0.0)
	assert.Equal(t, 0.1, cfg.Filament.Regularization, "base config must not be modified")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1m05s", formatDuration(65_000_000_000))
	assert.Equal(t, "1h00m01s", formatDuration(3_601_000_000_000))
}
