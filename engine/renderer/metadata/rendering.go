package metadata

import (
	"bytes"
	"encoding/binary"

	"github.com/spaghettifunk/lumen/engine/math"
)

/** @brief Size in bytes of the uniform block as laid out for the shader (std140). */
const UniformBufferObjectSize = 272

/**
 * @brief Per-frame uniform block consumed by the ray tracing compute shader.
 * Field order and types mirror the std140 block in shaders/ray_tracing.comp.
 */
type UniformBufferObject struct {
	View       math.Mat4
	Projection math.Mat4
	/** @brief x = width, y = height in pixels. */
	ViewportSize   math.Vec4
	CameraPosition math.Vec4
	/** @brief x = samples per pixel, y = max bounces. */
	RenderSettings math.Vec4
	/** @brief x = accumulation counter. */
	Frame            math.Vec4
	GroundColour     math.Vec4
	SkyColourHorizon math.Vec4
	SkyColourZenith  math.Vec4
	SunPosition      math.Vec4
	SunFocus         float32
	SunIntensity     float32
	DefocusStrength  float32
	DivergeStrength  float32
}

/**
 * @brief Editable render parameters. Changing any of them restarts accumulation.
 */
type RenderSettings struct {
	Samples          uint32     `toml:"samples"`
	Bounces          uint32     `toml:"bounces"`
	GroundColour     [4]float32 `toml:"ground_colour"`
	SkyColourHorizon [4]float32 `toml:"sky_colour_horizon"`
	SkyColourZenith  [4]float32 `toml:"sky_colour_zenith"`
	SunPosition      [4]float32 `toml:"sun_position"`
	SunFocus         float32    `toml:"sun_focus"`
	SunIntensity     float32    `toml:"sun_intensity"`
	DefocusStrength  float32    `toml:"defocus_strength"`
	DivergeStrength  float32    `toml:"diverge_strength"`
}

func DefaultRenderSettings() RenderSettings {
	sun := math.NewVec4One().Normalized()
	return RenderSettings{
		Samples:          50,
		Bounces:          25,
		GroundColour:     [4]float32{0.35, 0.3, 0.35, 1.0},
		SkyColourHorizon: [4]float32{1.0, 1.0, 1.0, 1.0},
		SkyColourZenith:  [4]float32{0.078, 0.36, 0.72, 1.0},
		SunPosition:      [4]float32{sun.X, sun.Y, sun.Z, sun.W},
		SunFocus:         1.0,
		SunIntensity:     0.0,
		DefocusStrength:  0.0,
		DivergeStrength:  1.0,
	}
}

// Apply copies the settings into the uniform block.
func (rs RenderSettings) Apply(ubo *UniformBufferObject) {
	ubo.RenderSettings = math.NewVec4(float32(rs.Samples), float32(rs.Bounces), 0, 0)
	ubo.GroundColour = vec4(rs.GroundColour)
	ubo.SkyColourHorizon = vec4(rs.SkyColourHorizon)
	ubo.SkyColourZenith = vec4(rs.SkyColourZenith)
	ubo.SunPosition = vec4(rs.SunPosition)
	ubo.SunFocus = rs.SunFocus
	ubo.SunIntensity = rs.SunIntensity
	ubo.DefocusStrength = rs.DefocusStrength
	ubo.DivergeStrength = rs.DivergeStrength
}

// SetAccumulationFrame stores the counter the shader blends against.
func (ubo *UniformBufferObject) SetAccumulationFrame(counter uint32) {
	ubo.Frame.X = float32(counter)
}

// Bytes serializes the block little endian, ready for a host-visible upload.
func (ubo *UniformBufferObject) Bytes() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, UniformBufferObjectSize))
	// fixed-size fields only, cannot fail
	_ = binary.Write(buf, binary.LittleEndian, ubo)
	return buf.Bytes()
}

func vec4(v [4]float32) math.Vec4 {
	return math.NewVec4(v[0], v[1], v[2], v[3])
}
