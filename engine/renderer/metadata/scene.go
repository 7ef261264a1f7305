package metadata

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
)

/** @brief Size in bytes of one sphere in the shader storage buffer (std430). */
const SphereSize = 64

/**
 * @brief A sphere as stored in the scene storage buffer. Colour alpha is unused
 * by the shader, the specular alpha is the specular probability.
 */
type Sphere struct {
	Position       math.Vec3
	Radius         float32
	Colour         math.Vec4
	EmissionColour math.Vec4
	SpecularColour math.Vec4
}

type sphereEntry struct {
	Position       [3]float32 `toml:"position"`
	Radius         float32    `toml:"radius"`
	Colour         [4]float32 `toml:"colour"`
	EmissionColour [4]float32 `toml:"emission_colour"`
	SpecularColour [4]float32 `toml:"specular_colour"`
}

type sceneFile struct {
	Spheres []sphereEntry `toml:"spheres"`
}

// DefaultScene is the three sphere scene used when no scene file is configured.
func DefaultScene() []Sphere {
	return []Sphere{
		{
			Position:       math.NewVec3(0, 0, -5),
			Radius:         1.0,
			Colour:         math.NewVec4(0.5, 0.5, 0.5, 1.0),
			SpecularColour: math.NewVec4(1.0, 1.0, 1.0, 0.5),
		},
		{
			Position:       math.NewVec3(3, 0, -5),
			Radius:         1.0,
			Colour:         math.NewVec4(0.8, 0.2, 0.2, 0.5),
			SpecularColour: math.NewVec4(1.0, 1.0, 1.0, 0.0),
		},
		{
			Position:       math.NewVec3(0, -101, -5),
			Radius:         100.0,
			Colour:         math.NewVec4(0.2, 0.8, 0.05, 0.0),
			SpecularColour: math.NewVec4(1.0, 1.0, 1.0, 0.0),
		},
	}
}

// ParseScene decodes a TOML document with one [[spheres]] table per sphere.
func ParseScene(data []byte) ([]Sphere, error) {
	var file sceneFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode scene: %w", err)
	}
	if len(file.Spheres) == 0 {
		return nil, fmt.Errorf("scene has no spheres")
	}
	spheres := make([]Sphere, len(file.Spheres))
	for i, e := range file.Spheres {
		if e.Radius <= 0 {
			return nil, fmt.Errorf("sphere %d has non-positive radius %f", i, e.Radius)
		}
		spheres[i] = Sphere{
			Position:       math.NewVec3(e.Position[0], e.Position[1], e.Position[2]),
			Radius:         e.Radius,
			Colour:         vec4(e.Colour),
			EmissionColour: vec4(e.EmissionColour),
			SpecularColour: vec4(e.SpecularColour),
		}
	}
	return spheres, nil
}

func LoadScene(path string) ([]Sphere, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("failed to read scene file `%s`: %w", path, err)
		core.LogError(err.Error())
		return nil, err
	}
	spheres, err := ParseScene(data)
	if err != nil {
		core.LogError("scene `%s`: %s", path, err)
		return nil, err
	}
	core.LogInfo("Loaded %d spheres from `%s`.", len(spheres), path)
	return spheres, nil
}

// SpheresBytes packs the spheres back to back for the storage buffer.
func SpheresBytes(spheres []Sphere) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, len(spheres)*SphereSize))
	_ = binary.Write(buf, binary.LittleEndian, spheres)
	return buf.Bytes()
}
