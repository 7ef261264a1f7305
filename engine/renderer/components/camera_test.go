package components

import (
	"testing"

	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/stretchr/testify/assert"
)

func TestCameraStartsDirtyThenClears(t *testing.T) {
	c := NewCamera(90, 0.01, 10000, 800, 608)
	assert.True(t, c.ClearDirty())
	assert.False(t, c.ClearDirty())
}

func TestCameraRotateReportsMovement(t *testing.T) {
	c := NewCamera(90, 0.01, 10000, 800, 608)
	c.ClearDirty()

	assert.False(t, c.Rotate(math.NewVec2(0, 0)))
	assert.False(t, c.IsDirty)

	assert.True(t, c.Rotate(math.NewVec2(0.01, 0.02)))
	assert.True(t, c.ClearDirty())
	assert.InDelta(t, -0.008, c.Yaw, 1e-6)
	assert.InDelta(t, 0.016, c.Pitch, 1e-6)
}

func TestCameraViewAtOriginLooksDownNegativeZ(t *testing.T) {
	c := NewCamera(90, 0.01, 10000, 800, 600)
	p := math.NewVec3(0, 0, -5).Transform(c.View())
	assert.True(t, p.Compare(math.NewVec3(0, 0, -5), 1e-5), "got %v", p)
	assert.True(t, c.Position().Compare(math.NewVec3Zero(), 1e-6))
}

func TestCameraZoomAndViewport(t *testing.T) {
	c := NewCamera(90, 0.01, 10000, 800, 600)
	c.ClearDirty()

	assert.True(t, c.Zoom(-10))
	assert.Greater(t, c.Distance, float32(0))
	assert.Greater(t, c.Position().Z, float32(0), "eye pulled back along +Z")

	c.ClearDirty()
	c.SetViewport(800, 600)
	assert.False(t, c.IsDirty)
	c.SetViewport(1024, 768)
	assert.True(t, c.IsDirty)
	assert.InDelta(t, 1.0/(1024.0/768.0), c.Projection().Data[0], 1e-5)
}
