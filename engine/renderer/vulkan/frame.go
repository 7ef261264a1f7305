package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

/**
 * @brief Everything one frame in flight owns. A slot is only re-recorded after
 * its fences have been waited on.
 */
type FrameSlot struct {
	ImageAvailable  vk.Semaphore
	RenderFinished  vk.Semaphore
	ComputeFinished vk.Semaphore
	// Signaled by the graphics submit, waited by the next compute submit.
	GraphicsDone vk.Semaphore

	InFlight     *VulkanFence
	ComputeFence *VulkanFence

	ComputeCommands  *VulkanCommandBuffer
	GraphicsCommands *VulkanCommandBuffer

	Uniforms   *VulkanBuffer
	UniformSet vk.DescriptorSet
}

func NewFrameSlot(context *VulkanContext) (*FrameSlot, error) {
	slot := &FrameSlot{}
	var err error

	for _, s := range []*vk.Semaphore{&slot.ImageAvailable, &slot.RenderFinished, &slot.ComputeFinished, &slot.GraphicsDone} {
		if *s, err = NewSemaphore(context); err != nil {
			slot.Destroy(context)
			return nil, err
		}
	}

	// Created signaled so the first wait on each falls through.
	if slot.InFlight, err = NewFence(context, true); err != nil {
		slot.Destroy(context)
		return nil, err
	}
	if slot.ComputeFence, err = NewFence(context, true); err != nil {
		slot.Destroy(context)
		return nil, err
	}

	device := context.Device
	if slot.ComputeCommands, err = NewVulkanCommandBuffer(context, device.CommandPool(QueueRoleCompute), true); err != nil {
		slot.Destroy(context)
		return nil, err
	}
	if slot.GraphicsCommands, err = NewVulkanCommandBuffer(context, device.CommandPool(QueueRoleGraphics), true); err != nil {
		slot.Destroy(context)
		return nil, err
	}

	slot.Uniforms, err = BufferCreate(context, metadata.UniformBufferObjectSize,
		vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit), 0, ResidencyCPUToGPU)
	if err != nil {
		slot.Destroy(context)
		return nil, err
	}
	return slot, nil
}

// Destroy releases the slot. The device must be idle.
func (fs *FrameSlot) Destroy(context *VulkanContext) {
	if fs.Uniforms != nil {
		fs.Uniforms.Destroy(context)
		fs.Uniforms = nil
	}
	if fs.GraphicsCommands != nil {
		fs.GraphicsCommands.Free(context)
		fs.GraphicsCommands = nil
	}
	if fs.ComputeCommands != nil {
		fs.ComputeCommands.Free(context)
		fs.ComputeCommands = nil
	}
	if fs.ComputeFence != nil {
		fs.ComputeFence.FenceDestroy(context)
		fs.ComputeFence = nil
	}
	if fs.InFlight != nil {
		fs.InFlight.FenceDestroy(context)
		fs.InFlight = nil
	}
	for _, s := range []*vk.Semaphore{&fs.ImageAvailable, &fs.RenderFinished, &fs.ComputeFinished, &fs.GraphicsDone} {
		SemaphoreDestroy(context, *s)
		*s = vk.NullSemaphore
	}
	// Sets go back with the allocator reset.
	fs.UniformSet = nil
}

/**
 * @brief Number of frames blended into the accumulation image. The value written
 * for a frame is 0 when the frame is dirty or the first one, otherwise one more
 * than the previous frame's value.
 */
type AccumulationCounter struct {
	value   uint32
	started bool
}

// Advance returns the value to use for the next frame.
func (ac *AccumulationCounter) Advance(dirty bool) uint32 {
	if !ac.started || dirty {
		ac.value = 0
		ac.started = true
		return 0
	}
	ac.value++
	return ac.value
}

// Value is the value of the last frame.
func (ac *AccumulationCounter) Value() uint32 {
	return ac.value
}

func (ac *AccumulationCounter) Reset() {
	ac.value = 0
	ac.started = false
}
