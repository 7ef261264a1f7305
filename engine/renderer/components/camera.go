package components

import (
	"github.com/spaghettifunk/lumen/engine/math"
)

/**
 * @brief Orbit camera looking out from Target. Pitch and yaw are in radians,
 * Distance pulls the eye back along the view direction.
 */
type Camera struct {
	FOV      float32
	Near     float32
	Far      float32
	Pitch    float32
	Yaw      float32
	Distance float32
	Target   math.Vec3

	ViewportWidth  float32
	ViewportHeight float32

	/** @brief Multiplier applied to rotation deltas. */
	RotationSpeed float32

	/** @brief Set whenever the view or projection changed since the last ClearDirty. */
	IsDirty bool
}

func NewCamera(fovDegrees, near, far, viewportWidth, viewportHeight float32) *Camera {
	return &Camera{
		FOV:            fovDegrees,
		Near:           near,
		Far:            far,
		ViewportWidth:  viewportWidth,
		ViewportHeight: viewportHeight,
		RotationSpeed:  0.8,
		IsDirty:        true,
	}
}

func (c *Camera) Orientation() math.Quaternion {
	return math.NewQuatFromEuler(-c.Pitch, -c.Yaw, 0)
}

func (c *Camera) Up() math.Vec3 {
	return c.Orientation().Rotate(math.NewVec3Up())
}

func (c *Camera) Right() math.Vec3 {
	return c.Orientation().Rotate(math.NewVec3Right())
}

func (c *Camera) Forward() math.Vec3 {
	return c.Orientation().Rotate(math.NewVec3Forward())
}

func (c *Camera) Position() math.Vec3 {
	return c.Target.Sub(c.Forward().MulScalar(c.Distance))
}

// Rotate applies a mouse delta and reports whether the camera moved.
func (c *Camera) Rotate(delta math.Vec2) bool {
	if delta.X == 0 && delta.Y == 0 {
		return false
	}
	// keep horizontal drag direction stable while upside down
	yawSign := float32(-1)
	if c.Up().Y < 0 {
		yawSign = 1
	}
	c.Yaw += yawSign * delta.X * c.RotationSpeed
	c.Pitch += delta.Y * c.RotationSpeed
	c.IsDirty = true
	return true
}

// Zoom moves the eye along the view direction, never past the target.
func (c *Camera) Zoom(amount float32) bool {
	if amount == 0 {
		return false
	}
	next := c.Distance - amount*c.ZoomSpeed()
	c.Distance = math.Clamp(next, 0, c.Far)
	c.IsDirty = true
	return true
}

func (c *Camera) ZoomSpeed() float32 {
	dst := math.Clamp(c.Distance*0.2, 0, c.Far)
	return math.Clamp(dst*dst, 0.1, 100)
}

func (c *Camera) SetViewport(width, height float32) {
	if width == c.ViewportWidth && height == c.ViewportHeight {
		return
	}
	c.ViewportWidth = width
	c.ViewportHeight = height
	c.IsDirty = true
}

func (c *Camera) View() math.Mat4 {
	model := math.NewMat4Translation(c.Position()).Mul(c.Orientation().ToMat4())
	return model.Inverse()
}

func (c *Camera) Projection() math.Mat4 {
	aspect := float32(1)
	if c.ViewportHeight > 0 {
		aspect = c.ViewportWidth / c.ViewportHeight
	}
	return math.NewMat4Perspective(math.DegToRad(c.FOV), aspect, c.Near, c.Far)
}

// ClearDirty returns the dirty flag and resets it.
func (c *Camera) ClearDirty() bool {
	dirty := c.IsDirty
	c.IsDirty = false
	return dirty
}
