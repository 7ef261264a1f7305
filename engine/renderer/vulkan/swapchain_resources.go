package vulkan

import (
	"errors"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
)

// Descriptor bindings of the three compute sets and the sampling set. The
// builder produces the same bindings, so the cache resolves both to one layout.
var (
	storageImageBindings = []vk.DescriptorSetLayoutBinding{
		{Binding: 0, DescriptorType: vk.DescriptorTypeStorageImage, DescriptorCount: 1, StageFlags: vk.ShaderStageFlags(vk.ShaderStageComputeBit)},
	}
	uniformBindings = []vk.DescriptorSetLayoutBinding{
		{Binding: 0, DescriptorType: vk.DescriptorTypeUniformBuffer, DescriptorCount: 1, StageFlags: vk.ShaderStageFlags(vk.ShaderStageComputeBit)},
	}
	sceneBindings = []vk.DescriptorSetLayoutBinding{
		{Binding: 0, DescriptorType: vk.DescriptorTypeStorageBuffer, DescriptorCount: 1, StageFlags: vk.ShaderStageFlags(vk.ShaderStageComputeBit)},
	}
	sampledImageBindings = []vk.DescriptorSetLayoutBinding{
		{Binding: 0, DescriptorType: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: 1, StageFlags: vk.ShaderStageFlags(vk.ShaderStageFragmentBit)},
	}
)

// ComputeSetLayouts resolves the set layouts of the ray tracing pipeline in set index order.
func ComputeSetLayouts(cache *LayoutCache) ([]vk.DescriptorSetLayout, error) {
	bindings := [computeSetCount][]vk.DescriptorSetLayoutBinding{
		ComputeSetStorageImage: storageImageBindings,
		ComputeSetUniforms:     uniformBindings,
		ComputeSetScene:        sceneBindings,
	}
	layouts := make([]vk.DescriptorSetLayout, computeSetCount)
	for i := range bindings {
		layout, err := cache.GetOrCreate(bindings[i])
		if err != nil {
			return nil, err
		}
		layouts[i] = layout
	}
	return layouts, nil
}

/** @brief SPIR-V of the fullscreen blit. */
type GraphicsShaders struct {
	Vertex   []uint32
	Fragment []uint32
}

/**
 * @brief Everything whose lifetime follows the swapchain: the swapchain and its
 * views, the render pass, the framebuffers, the blit pipeline, the storage image
 * sized to the extent, the frame slots and every descriptor set. Rebuilt as one
 * unit; the device, the layout cache and the compute pipeline survive.
 */
type SwapchainResources struct {
	context   *VulkanContext
	cache     *LayoutCache
	allocator *DescriptorAllocator
	builder   *DescriptorBuilder

	Shaders     GraphicsShaders
	PresentMode vk.PresentMode
	// Storage buffer holding the spheres, owned by the caller.
	Scene *VulkanBuffer

	Swapchain        *VulkanSwapchain
	Renderpass       *VulkanRenderpass
	Framebuffers     []*VulkanFramebuffer
	GraphicsPipeline *VulkanPipeline
	StorageImage     *VulkanTexture
	Slots            []*FrameSlot

	StorageImageSet vk.DescriptorSet
	SampledSet      vk.DescriptorSet
	SceneSet        vk.DescriptorSet

	ready bool
}

func NewSwapchainResources(context *VulkanContext, cache *LayoutCache, allocator *DescriptorAllocator, shaders GraphicsShaders, scene *VulkanBuffer) *SwapchainResources {
	return &SwapchainResources{
		context:     context,
		cache:       cache,
		allocator:   allocator,
		builder:     NewDescriptorBuilder(context, cache, allocator),
		Shaders:     shaders,
		PresentMode: vk.PresentModeFifo,
		Scene:       scene,
	}
}

// Ready reports whether the set was created and not destroyed since.
func (sr *SwapchainResources) Ready() bool {
	return sr.ready
}

func (sr *SwapchainResources) Extent() vk.Extent2D {
	if sr.Swapchain == nil {
		return vk.Extent2D{}
	}
	return sr.Swapchain.Extent
}

/**
 * @brief Creates the whole set for a width x height surface. Returns
 * core.ErrSwapchainBooting, with nothing created, while the surface has no area.
 */
func (sr *SwapchainResources) Create(width, height uint32) error {
	swapchain, err := SwapchainCreate(sr.context, width, height, sr.PresentMode)
	if err != nil {
		return err
	}
	sr.Swapchain = swapchain

	if err := sr.create(); err != nil {
		sr.Destroy()
		return err
	}
	sr.ready = true
	return nil
}

func (sr *SwapchainResources) create() error {
	context := sr.context
	extent := sr.Swapchain.Extent
	w, h := float32(extent.Width), float32(extent.Height)

	renderpass, err := RenderpassCreate(context, sr.Swapchain.ImageFormat.Format, 0, 0, w, h, 0, 0, 0, 1)
	if err != nil {
		return err
	}
	sr.Renderpass = renderpass

	for _, view := range sr.Swapchain.Views {
		framebuffer, err := FramebufferCreate(context, renderpass, extent.Width, extent.Height, []vk.ImageView{view})
		if err != nil {
			return err
		}
		sr.Framebuffers = append(sr.Framebuffers, framebuffer)
	}

	if err := sr.createGraphicsPipeline(extent); err != nil {
		return err
	}
	if err := sr.createStorageImage(extent); err != nil {
		return err
	}

	builder := sr.builder
	if sr.StorageImageSet, _, err = builder.Begin().
		BindImage(0, sr.StorageImage.DescriptorInfo(vk.ImageLayoutGeneral), vk.DescriptorTypeStorageImage, vk.ShaderStageFlags(vk.ShaderStageComputeBit)).
		End(); err != nil {
		return err
	}
	if sr.SampledSet, _, err = builder.Begin().
		BindImage(0, sr.StorageImage.DescriptorInfo(vk.ImageLayoutGeneral), vk.DescriptorTypeCombinedImageSampler, vk.ShaderStageFlags(vk.ShaderStageFragmentBit)).
		End(); err != nil {
		return err
	}
	if sr.SceneSet, _, err = builder.Begin().
		BindBuffer(0, sr.Scene.DescriptorInfo(), vk.DescriptorTypeStorageBuffer, vk.ShaderStageFlags(vk.ShaderStageComputeBit)).
		End(); err != nil {
		return err
	}

	for i := uint32(0); i < sr.Swapchain.MaxFramesInFlight; i++ {
		slot, err := NewFrameSlot(context)
		if err != nil {
			return err
		}
		sr.Slots = append(sr.Slots, slot)
		if slot.UniformSet, _, err = builder.Begin().
			BindBuffer(0, slot.Uniforms.DescriptorInfo(), vk.DescriptorTypeUniformBuffer, vk.ShaderStageFlags(vk.ShaderStageComputeBit)).
			End(); err != nil {
			return err
		}
	}
	return nil
}

func (sr *SwapchainResources) createGraphicsPipeline(extent vk.Extent2D) error {
	context := sr.context

	vertex, err := NewShaderStage(context, sr.Shaders.Vertex, vk.ShaderStageVertexBit)
	if err != nil {
		return err
	}
	defer vertex.Destroy(context)
	fragment, err := NewShaderStage(context, sr.Shaders.Fragment, vk.ShaderStageFragmentBit)
	if err != nil {
		return err
	}
	defer fragment.Destroy(context)

	sampledLayout, err := sr.cache.GetOrCreate(sampledImageBindings)
	if err != nil {
		return err
	}

	pipeline, err := NewGraphicsPipeline(context, &VulkanPipelineConfig{
		Renderpass:           sr.Renderpass,
		DescriptorSetLayouts: []vk.DescriptorSetLayout{sampledLayout},
		Stages:               []*VulkanShaderStage{vertex, fragment},
		Viewport:             FlippedViewport(extent),
		Scissor:              vk.Rect2D{Extent: extent},
		CullMode:             vk.CullModeNone,
	})
	if err != nil {
		return err
	}
	sr.GraphicsPipeline = pipeline
	return nil
}

/**
 * @brief Creates the accumulation image, clears it, and leaves it in GENERAL.
 * On split queues ownership is released to compute, the first compute frame
 * acquires it.
 */
func (sr *SwapchainResources) createStorageImage(extent vk.Extent2D) error {
	context := sr.context
	device := context.Device

	usage := vk.ImageUsageFlags(vk.ImageUsageTransferDstBit) | vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit) |
		vk.ImageUsageFlags(vk.ImageUsageSampledBit) | vk.ImageUsageFlags(vk.ImageUsageStorageBit)
	texture, err := TextureCreate(context, "", StorageImageFormat, extent.Width, extent.Height, usage)
	if err != nil {
		return err
	}
	sr.StorageImage = texture

	queue := device.Queue(QueueRoleGraphics)
	pool := device.CommandPool(QueueRoleGraphics)
	family := device.Family(QueueRoleGraphics)

	zeros := make([]byte, uint64(extent.Width)*uint64(extent.Height)*uint64(TexelSize(StorageImageFormat)))
	if err := texture.UploadPixels(context, zeros, queue, pool, family); err != nil {
		return err
	}

	cb, err := AllocateAndBeginSingleUse(context, pool)
	if err != nil {
		return err
	}
	if err := texture.TransitionLayout(context, cb, vk.ImageLayoutShaderReadOnlyOptimal, vk.ImageLayoutGeneral, family); err != nil {
		cb.Free(context)
		return err
	}
	if device.CrossQueue() {
		ReleaseFromGraphics(context, cb, texture.Image)
	}
	return cb.EndSingleUse(context, queue)
}

// Destroy releases everything in reverse creation order. Sets go back with the allocator reset.
func (sr *SwapchainResources) Destroy() {
	context := sr.context
	sr.ready = false

	for _, slot := range sr.Slots {
		slot.Destroy(context)
	}
	sr.Slots = nil
	sr.StorageImageSet, sr.SampledSet, sr.SceneSet = nil, nil, nil

	if sr.StorageImage != nil {
		sr.StorageImage.Destroy(context)
		sr.StorageImage = nil
	}
	if sr.GraphicsPipeline != nil {
		sr.GraphicsPipeline.Destroy(context)
		sr.GraphicsPipeline = nil
	}
	for _, framebuffer := range sr.Framebuffers {
		framebuffer.Destroy(context)
	}
	sr.Framebuffers = nil
	if sr.Renderpass != nil {
		sr.Renderpass.Destroy(context)
		sr.Renderpass = nil
	}
	if sr.Swapchain != nil {
		sr.Swapchain.Destroy(context)
		sr.Swapchain = nil
	}
}

/**
 * @brief Waits for the device, tears the set down and creates it again for the
 * new size. Returns (false, nil) when the surface has no area; the caller tries
 * again later.
 */
func (sr *SwapchainResources) Rebuild(width, height uint32) (bool, error) {
	if res := sr.context.Driver.DeviceWaitIdle(); res != vk.Success {
		return false, vulkanError(core.ErrDeviceLost, "failed to wait for device idle", res)
	}
	sr.Destroy()
	if err := sr.allocator.Reset(); err != nil {
		return false, err
	}
	if err := sr.Create(width, height); err != nil {
		if errors.Is(err, core.ErrSwapchainBooting) {
			core.LogDebug("surface has no area, rebuild deferred")
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// FlippedViewport maps +Y up by using a negative height.
func FlippedViewport(extent vk.Extent2D) vk.Viewport {
	return vk.Viewport{
		X:        0,
		Y:        float32(extent.Height),
		Width:    float32(extent.Width),
		Height:   -float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}
}
