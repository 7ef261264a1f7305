package vulkan

import (
	"errors"
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type FrameState int

const (
	FrameStateIdle FrameState = iota
	FrameStateComputeWait
	FrameStateComputeRecord
	FrameStateComputeSubmit
	FrameStatePresentAcquire
	FrameStateGraphicsRecord
	FrameStateGraphicsSubmit
	FrameStatePresent
)

func (s FrameState) String() string {
	switch s {
	case FrameStateIdle:
		return "idle"
	case FrameStateComputeWait:
		return "compute-wait"
	case FrameStateComputeRecord:
		return "compute-record"
	case FrameStateComputeSubmit:
		return "compute-submit"
	case FrameStatePresentAcquire:
		return "present-acquire"
	case FrameStateGraphicsRecord:
		return "graphics-record"
	case FrameStateGraphicsSubmit:
		return "graphics-submit"
	case FrameStatePresent:
		return "present"
	}
	return "unknown"
}

/** @brief Per-frame input. Dirty restarts accumulation. */
type FrameParams struct {
	Uniforms *metadata.UniformBufferObject
	Dirty    bool
}

type FrameStats struct {
	Frames     uint64
	Dispatches uint64
	Presents   uint64
	Rebuilds   uint64
}

// OverlayFunc records extra draws inside the blit render pass.
type OverlayFunc func(context *VulkanContext, cb *VulkanCommandBuffer)

type OrchestratorConfig struct {
	Width, Height      uint32
	ComputeShader      []uint32
	GraphicsShaders    GraphicsShaders
	Scene              []metadata.Sphere
	PoolPolicy         DescriptorPoolPolicy
	PresentMode        vk.PresentMode
	MaxPresentFailures int
}

/**
 * @brief Drives one compute dispatch and one blit per frame across round robin
 * frame slots. Owns the layout cache, the descriptor allocator, the compute
 * pipeline, the scene buffer and the swapchain dependent resource set.
 */
type FrameOrchestrator struct {
	context   *VulkanContext
	cache     *LayoutCache
	allocator *DescriptorAllocator
	resources *SwapchainResources

	computePipeline *VulkanPipeline
	scene           *VulkanBuffer

	counter AccumulationCounter
	state   FrameState
	slot    uint32

	// The fence of the slot that last rendered to each swapchain image.
	imagesInFlight []*VulkanFence
	// Graphics-done of the previous submitted frame, waited by the next compute submit.
	pendingGraphicsDone vk.Semaphore

	width, height  uint32
	rebuildPending bool
	forceDirty     bool

	maxPresentFailures int
	presentFailures    int

	overlay OverlayFunc
	stats   FrameStats
}

func NewFrameOrchestrator(context *VulkanContext, config OrchestratorConfig) (*FrameOrchestrator, error) {
	if config.PoolPolicy.MaxSets == 0 {
		config.PoolPolicy = DefaultDescriptorPoolPolicy()
	}
	if config.MaxPresentFailures <= 0 {
		config.MaxPresentFailures = DefaultMaxPresentFailures
	}
	if len(config.Scene) == 0 {
		config.Scene = metadata.DefaultScene()
	}

	o := &FrameOrchestrator{
		context:            context,
		cache:              NewLayoutCache(context),
		width:              config.Width,
		height:             config.Height,
		maxPresentFailures: config.MaxPresentFailures,
	}
	o.allocator = NewDescriptorAllocator(context, config.PoolPolicy)

	scene, err := o.uploadScene(config.Scene)
	if err != nil {
		o.Destroy()
		return nil, err
	}
	o.scene = scene

	if err := o.createComputePipeline(config.ComputeShader); err != nil {
		o.Destroy()
		return nil, err
	}

	o.resources = NewSwapchainResources(context, o.cache, o.allocator, config.GraphicsShaders, o.scene)
	if config.PresentMode != 0 {
		o.resources.PresentMode = config.PresentMode
	}
	if err := o.resources.Create(o.width, o.height); err != nil {
		if !errors.Is(err, core.ErrSwapchainBooting) {
			o.Destroy()
			return nil, err
		}
		// Minimized at startup, the first frame retries.
		o.rebuildPending = true
	}
	o.resetFrameState()

	core.LogInfo("Frame orchestrator ready (%d frames in flight, cross queue: %t).", len(o.resources.Slots), context.Device.CrossQueue())
	return o, nil
}

func (o *FrameOrchestrator) State() FrameState {
	return o.state
}

func (o *FrameOrchestrator) Stats() FrameStats {
	return o.stats
}

// Slot is the index of the slot the next frame records into.
func (o *FrameOrchestrator) Slot() uint32 {
	return o.slot
}

// Counter is the accumulation value written by the last frame.
func (o *FrameOrchestrator) Counter() uint32 {
	return o.counter.Value()
}

func (o *FrameOrchestrator) Resources() *SwapchainResources {
	return o.resources
}

func (o *FrameOrchestrator) SetOverlay(overlay OverlayFunc) {
	o.overlay = overlay
}

// Resize records the new framebuffer size; the next frame rebuilds.
func (o *FrameOrchestrator) Resize(width, height uint32) {
	o.width = width
	o.height = height
	o.rebuildPending = true
}

func (o *FrameOrchestrator) ScheduleRebuild() {
	o.rebuildPending = true
}

/**
 * @brief Runs one frame: compute dispatch into the accumulation image, then the
 * blit to an acquired swapchain image and present. Returns nil without drawing
 * while the surface has no area or when the acquired image was out of date.
 */
func (o *FrameOrchestrator) DrawFrame(params FrameParams) error {
	rebuilt := false
	if o.rebuildPending || !o.resources.Ready() {
		ok, err := o.rebuild()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		rebuilt = true
	}

	context := o.context
	device := context.Device
	res := o.resources
	slot := res.Slots[o.slot]
	extent := res.Extent()
	cross := device.CrossQueue()

	// Compute
	o.state = FrameStateComputeWait
	if err := slot.ComputeFence.FenceWait(context, context.FenceTimeout); err != nil {
		return err
	}

	dirty := params.Dirty || rebuilt || o.forceDirty
	o.forceDirty = false
	counter := o.counter.Advance(dirty)

	ubo := metadata.UniformBufferObject{}
	if params.Uniforms != nil {
		ubo = *params.Uniforms
	} else {
		metadata.DefaultRenderSettings().Apply(&ubo)
	}
	ubo.ViewportSize.X = float32(extent.Width)
	ubo.ViewportSize.Y = float32(extent.Height)
	ubo.SetAccumulationFrame(counter)
	if err := slot.Uniforms.LoadData(context, ubo.Bytes()); err != nil {
		return err
	}

	o.state = FrameStateComputeRecord
	cb := slot.ComputeCommands
	if err := cb.Reset(context); err != nil {
		return err
	}
	if err := cb.Begin(context, false, false, false); err != nil {
		return err
	}
	image := res.StorageImage.Image
	if cross {
		AcquireForCompute(context, cb, image)
	}
	o.computePipeline.Bind(context, cb, vk.PipelineBindPointCompute)
	sets := make([]vk.DescriptorSet, computeSetCount)
	sets[ComputeSetStorageImage] = res.StorageImageSet
	sets[ComputeSetUniforms] = slot.UniformSet
	sets[ComputeSetScene] = res.SceneSet
	o.computePipeline.BindSets(context, cb, vk.PipelineBindPointCompute, sets)
	context.Driver.CmdDispatch(cb.Handle, WorkgroupCount(extent.Width), WorkgroupCount(extent.Height), 1)
	if cross {
		ReleaseFromCompute(context, cb, image)
	}
	if err := cb.End(context); err != nil {
		return err
	}

	o.state = FrameStateComputeSubmit
	computeSubmit := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{cb.Handle},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{slot.ComputeFinished},
	}
	if o.pendingGraphicsDone != vk.NullSemaphore {
		computeSubmit.WaitSemaphoreCount = 1
		computeSubmit.PWaitSemaphores = []vk.Semaphore{o.pendingGraphicsDone}
		computeSubmit.PWaitDstStageMask = []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit)}
	}
	if err := o.submit(QueueRoleCompute, computeSubmit, slot.ComputeFence); err != nil {
		return err
	}
	cb.UpdateSubmitted()
	o.pendingGraphicsDone = vk.NullSemaphore
	o.stats.Dispatches++

	// Graphics
	o.state = FrameStatePresentAcquire
	if err := slot.InFlight.FenceWait(context, context.FenceTimeout); err != nil {
		return err
	}
	imageIndex, result := res.Swapchain.AcquireNextImage(context, context.FenceTimeout, slot.ImageAvailable)
	switch result {
	case vk.Success:
	case vk.Suboptimal:
		core.LogInfo("swapchain suboptimal at acquire, rebuilding after this frame")
		o.rebuildPending = true
	case vk.ErrorOutOfDate:
		// Abandon the frame. The rebuild waits for the device and recreates the
		// slot semaphores, the signaled compute-finished goes with them.
		core.LogInfo("swapchain out of date at acquire, rebuilding")
		o.rebuildPending = true
		o.state = FrameStateIdle
		return nil
	case vk.ErrorDeviceLost:
		return vulkanError(core.ErrDeviceLost, "failed to acquire swapchain image", result)
	default:
		return vulkanError(core.ErrUnknown, "failed to acquire swapchain image", result)
	}

	if previous := o.imagesInFlight[imageIndex]; previous != nil && previous != slot.InFlight {
		if err := previous.FenceWait(context, context.FenceTimeout); err != nil {
			return err
		}
	}
	o.imagesInFlight[imageIndex] = slot.InFlight

	o.state = FrameStateGraphicsRecord
	gcb := slot.GraphicsCommands
	if err := gcb.Reset(context); err != nil {
		return err
	}
	if err := gcb.Begin(context, false, false, false); err != nil {
		return err
	}
	if cross {
		AcquireForGraphics(context, gcb, image)
	} else {
		ComputeToFragment(context, gcb, image)
	}
	res.Renderpass.Begin(context, gcb, res.Framebuffers[imageIndex].Handle)
	context.Driver.CmdSetViewport(gcb.Handle, FlippedViewport(extent))
	context.Driver.CmdSetScissor(gcb.Handle, vk.Rect2D{Extent: extent})
	res.GraphicsPipeline.Bind(context, gcb, vk.PipelineBindPointGraphics)
	res.GraphicsPipeline.BindSets(context, gcb, vk.PipelineBindPointGraphics, []vk.DescriptorSet{res.SampledSet})
	// Fullscreen quad as a 4 vertex strip.
	context.Driver.CmdDraw(gcb.Handle, 4, 1, 0, 0)
	if o.overlay != nil {
		o.overlay(context, gcb)
	}
	res.Renderpass.End(context, gcb)
	if cross {
		ReleaseFromGraphics(context, gcb, image)
	}
	if err := gcb.End(context); err != nil {
		return err
	}

	o.state = FrameStateGraphicsSubmit
	graphicsSubmit := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount: 2,
		PWaitSemaphores:    []vk.Semaphore{slot.ComputeFinished, slot.ImageAvailable},
		PWaitDstStageMask: []vk.PipelineStageFlags{
			vk.PipelineStageFlags(vk.PipelineStageVertexInputBit),
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{gcb.Handle},
		SignalSemaphoreCount: 2,
		PSignalSemaphores:    []vk.Semaphore{slot.RenderFinished, slot.GraphicsDone},
	}
	if err := o.submit(QueueRoleGraphics, graphicsSubmit, slot.InFlight); err != nil {
		return err
	}
	gcb.UpdateSubmitted()
	o.pendingGraphicsDone = slot.GraphicsDone

	o.state = FrameStatePresent
	presentResult := res.Swapchain.Present(context, device.Queue(QueueRolePresent), slot.RenderFinished, imageIndex)
	o.stats.Frames++
	o.slot = (o.slot + 1) % uint32(len(res.Slots))
	o.state = FrameStateIdle

	switch presentResult {
	case vk.Success:
		o.stats.Presents++
		o.presentFailures = 0
	case vk.Suboptimal:
		core.LogInfo("swapchain suboptimal at present, rebuilding")
		o.stats.Presents++
		o.presentFailures = 0
		o.rebuildPending = true
	case vk.ErrorOutOfDate:
		core.LogInfo("swapchain out of date at present, rebuilding")
		o.rebuildPending = true
	default:
		o.presentFailures++
		core.LogError("failed to present swapchain image: %s (%d in a row)", VulkanResultString(presentResult, true), o.presentFailures)
		if o.presentFailures > o.maxPresentFailures {
			err := fmt.Errorf("%w: %d consecutive failures, last %s", core.ErrPresentFailed, o.presentFailures, VulkanResultString(presentResult, false))
			core.LogError(err.Error())
			return err
		}
	}
	return nil
}

// submit resets fence and submits one batch under the queue lock.
func (o *FrameOrchestrator) submit(role QueueRole, info vk.SubmitInfo, fence *VulkanFence) error {
	context := o.context
	if err := fence.FenceReset(context); err != nil {
		return err
	}
	queue := context.Device.Queue(role)
	return context.locks.SafeQueueCall(queue, func() error {
		if res := context.Driver.QueueSubmit(queue, []vk.SubmitInfo{info}, fence.Handle); res != vk.Success {
			if res == vk.ErrorDeviceLost {
				return vulkanError(core.ErrDeviceLost, fmt.Sprintf("%s submit", role), res)
			}
			return vulkanError(core.ErrUnknown, fmt.Sprintf("%s submit", role), res)
		}
		return nil
	})
}

func (o *FrameOrchestrator) rebuild() (bool, error) {
	if o.width == 0 || o.height == 0 {
		return false, nil
	}
	ok, err := o.resources.Rebuild(o.width, o.height)
	if err != nil || !ok {
		return false, err
	}
	o.rebuildPending = false
	o.stats.Rebuilds++
	o.resetFrameState()
	core.LogInfo("swapchain resources rebuilt (%dx%d)", o.resources.Extent().Width, o.resources.Extent().Height)
	return true, nil
}

func (o *FrameOrchestrator) resetFrameState() {
	o.slot = 0
	o.pendingGraphicsDone = vk.NullSemaphore
	o.counter.Reset()
	o.state = FrameStateIdle
	if o.resources.Swapchain != nil {
		o.imagesInFlight = make([]*VulkanFence, o.resources.Swapchain.ImageCount)
	} else {
		o.imagesInFlight = nil
	}
}

func (o *FrameOrchestrator) createComputePipeline(code []uint32) error {
	layouts, err := ComputeSetLayouts(o.cache)
	if err != nil {
		return err
	}
	stage, err := NewShaderStage(o.context, code, vk.ShaderStageComputeBit)
	if err != nil {
		return err
	}
	defer stage.Destroy(o.context)

	pipeline, err := NewComputePipeline(o.context, layouts, stage)
	if err != nil {
		return err
	}
	o.computePipeline = pipeline
	return nil
}

// ReloadComputeShader swaps the ray tracing pipeline. The old one is kept when the new code fails.
func (o *FrameOrchestrator) ReloadComputeShader(code []uint32) error {
	if res := o.context.Driver.DeviceWaitIdle(); res != vk.Success {
		return vulkanError(core.ErrDeviceLost, "failed to wait for device idle", res)
	}
	previous := o.computePipeline
	if err := o.createComputePipeline(code); err != nil {
		o.computePipeline = previous
		return err
	}
	if previous != nil {
		previous.Destroy(o.context)
	}
	o.forceDirty = true
	core.LogInfo("compute shader reloaded")
	return nil
}

// SetGraphicsShaders replaces the blit shaders; the pipeline is recreated with the next rebuild.
func (o *FrameOrchestrator) SetGraphicsShaders(shaders GraphicsShaders) {
	o.resources.Shaders = shaders
	o.rebuildPending = true
}

/**
 * @brief Replaces the spheres. Same sized scenes are re-uploaded in place; a
 * different size recreates the buffer and schedules a rebuild for its set.
 */
func (o *FrameOrchestrator) SetScene(spheres []metadata.Sphere) error {
	data := metadata.SpheresBytes(spheres)
	if res := o.context.Driver.DeviceWaitIdle(); res != vk.Success {
		return vulkanError(core.ErrDeviceLost, "failed to wait for device idle", res)
	}

	device := o.context.Device
	if o.scene != nil && o.scene.Size == uint64(len(data)) {
		if err := o.scene.LoadDataStaged(o.context, data, device.Queue(QueueRoleCompute), device.CommandPool(QueueRoleCompute)); err != nil {
			return err
		}
		o.forceDirty = true
		return nil
	}

	scene, err := o.uploadScene(spheres)
	if err != nil {
		return err
	}
	if o.scene != nil {
		o.scene.Destroy(o.context)
	}
	o.scene = scene
	o.resources.Scene = scene
	o.rebuildPending = true
	return nil
}

// uploadScene creates a device local storage buffer holding spheres. Uploaded on the
// compute queue, the only reader.
func (o *FrameOrchestrator) uploadScene(spheres []metadata.Sphere) (*VulkanBuffer, error) {
	data := metadata.SpheresBytes(spheres)
	usage := vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit) | vk.BufferUsageFlags(vk.BufferUsageTransferDstBit) |
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit)
	buffer, err := BufferCreate(o.context, uint64(len(data)), usage, 0, ResidencyGPUOnly)
	if err != nil {
		return nil, err
	}
	device := o.context.Device
	if err := buffer.LoadDataStaged(o.context, data, device.Queue(QueueRoleCompute), device.CommandPool(QueueRoleCompute)); err != nil {
		buffer.Destroy(o.context)
		return nil, err
	}
	return buffer, nil
}

// Destroy waits for the device and releases everything the orchestrator owns.
func (o *FrameOrchestrator) Destroy() {
	context := o.context
	context.Driver.DeviceWaitIdle()

	if o.resources != nil {
		o.resources.Destroy()
		o.resources = nil
	}
	if o.computePipeline != nil {
		o.computePipeline.Destroy(context)
		o.computePipeline = nil
	}
	if o.scene != nil {
		o.scene.Destroy(context)
		o.scene = nil
	}
	if o.allocator != nil {
		o.allocator.Destroy()
		o.allocator = nil
	}
	if o.cache != nil {
		o.cache.Destroy()
		o.cache = nil
	}
}

// WorkgroupCount is the number of compute workgroups covering size pixels.
func WorkgroupCount(size uint32) uint32 {
	return (size + ComputeWorkgroupSize - 1) / ComputeWorkgroupSize
}
