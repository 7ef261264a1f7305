package renderer

import (
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/vulkan"
)

// RendererBackend is the surface of the Vulkan backend the frontend drives.
type RendererBackend interface {
	Initialize(config vulkan.RendererConfig) error
	Shutdown() error
	Resized(width, height uint32)
	DrawFrame(params vulkan.FrameParams) error
	ReloadComputeShader(code []uint32) error
	SetGraphicsShaders(shaders vulkan.GraphicsShaders)
	SetScene(spheres []metadata.Sphere) error
	Stats() vulkan.FrameStats
}
