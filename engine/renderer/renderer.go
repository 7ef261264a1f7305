package renderer

import (
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/platform"
	"github.com/spaghettifunk/lumen/engine/renderer/components"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/vulkan"
)

/**
 * @brief Fills the uniform block from the camera and the render settings and
 * hands each frame to the backend.
 */
type Renderer struct {
	backend RendererBackend
	ubo     metadata.UniformBufferObject

	width, height uint32
}

func New(p *platform.Platform) *Renderer {
	return NewWithBackend(vulkan.New(p))
}

func NewWithBackend(backend RendererBackend) *Renderer {
	return &Renderer{backend: backend}
}

func (r *Renderer) Initialize(config vulkan.RendererConfig) error {
	r.width = config.Width
	r.height = config.Height
	return r.backend.Initialize(config)
}

func (r *Renderer) Shutdown() error {
	return r.backend.Shutdown()
}

func (r *Renderer) OnResize(width, height uint32) {
	r.width = width
	r.height = height
	r.backend.Resized(width, height)
}

/**
 * @brief Draws one frame. Dirty covers edits the camera does not know about
 * (settings, scene or shader reloads); a moved camera is detected here.
 */
func (r *Renderer) DrawFrame(camera *components.Camera, settings metadata.RenderSettings, dirty bool) error {
	camera.SetViewport(float32(r.width), float32(r.height))
	if camera.ClearDirty() {
		dirty = true
	}

	settings.Apply(&r.ubo)
	r.ubo.View = camera.View()
	r.ubo.Projection = camera.Projection()
	r.ubo.CameraPosition = camera.Position().ToVec4(1)

	if err := r.backend.DrawFrame(vulkan.FrameParams{Uniforms: &r.ubo, Dirty: dirty}); err != nil {
		core.LogError("draw frame failed: %s", err)
		return err
	}
	return nil
}

func (r *Renderer) ReloadComputeShader(code []uint32) error {
	return r.backend.ReloadComputeShader(code)
}

func (r *Renderer) SetGraphicsShaders(vertex, fragment []uint32) {
	r.backend.SetGraphicsShaders(vulkan.GraphicsShaders{Vertex: vertex, Fragment: fragment})
}

func (r *Renderer) SetScene(spheres []metadata.Sphere) error {
	return r.backend.SetScene(spheres)
}

func (r *Renderer) Stats() vulkan.FrameStats {
	return r.backend.Stats()
}
