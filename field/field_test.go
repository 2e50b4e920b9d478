package field

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestBoxBoundsAndObstacles(t *testing.T) {
	b := &Box{
		Min:       r3.Vec{X: -1, Y: -1, Z: -1},
		Max:       r3.Vec{X: 1, Y: 1, Z: 1},
		Obstacles: []Sphere{{Center: r3.Vec{X: 0.5}, Radius: 0.2}},
	}

	assert.True(t, b.InBounds(r3.Vec{}, 0))
	assert.True(t, b.InBounds(r3.Vec{X: 0.95}, 0))
	assert.False(t, b.InBounds(r3.Vec{X: 0.95}, 0.1))
	assert.False(t, b.InBounds(r3.Vec{Z: -1.5}, 0))

	assert.True(t, b.IsObstacle(r3.Vec{X: 0.6}))
	assert.False(t, b.IsObstacle(r3.Vec{X: -0.6}))
}

func TestBoxSwirlIsTangential(t *testing.T) {
	b := &Box{Swirl: 2, Drift: r3.Vec{Y: 0.5}}
	p := r3.Vec{X: 1, Y: 3, Z: 0}
	v := b.Velocity(p)

	assert.InDelta(t, 0.5, v.Y, 1e-12)
	// horizontal component is perpendicular to the horizontal radius
	assert.InDelta(t, 0, v.X*p.X+v.Z*p.Z, 1e-12)
	assert.InDelta(t, 2, r3.Norm(r3.Vec{X: v.X, Z: v.Z}), 1e-12)
}
