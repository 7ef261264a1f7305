package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

type VulkanCommandBuffer struct {
	Handle vk.CommandBuffer
	// Command buffer state.
	State VulkanCommandBufferState
	// The pool the buffer was allocated from.
	Pool vk.CommandPool
}

// CommandPoolCreate creates a pool whose buffers can be reset individually.
func CommandPoolCreate(context *VulkanContext, queueFamily uint32) (vk.CommandPool, error) {
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: queueFamily,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	pool, res := context.Driver.CreateCommandPool(&poolCreateInfo)
	if res != vk.Success {
		return vk.NullCommandPool, vulkanError(core.ErrDeviceObjectCreation, "failed to create command pool", res)
	}
	return pool, nil
}

func NewVulkanCommandBuffer(context *VulkanContext, pool vk.CommandPool, isPrimary bool) (*VulkanCommandBuffer, error) {
	level := vk.CommandBufferLevelPrimary
	if !isPrimary {
		level = vk.CommandBufferLevelSecondary
	}

	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		CommandBufferCount: 1,
		Level:              level,
	}

	handles, res := context.Driver.AllocateCommandBuffers(&allocateInfo)
	if res != vk.Success || len(handles) != 1 {
		return nil, vulkanError(core.ErrDeviceObjectCreation, "failed to allocate command buffer", res)
	}

	return &VulkanCommandBuffer{
		Handle: handles[0],
		State:  COMMAND_BUFFER_STATE_READY,
		Pool:   pool,
	}, nil
}

func (v *VulkanCommandBuffer) Free(context *VulkanContext) {
	if v.Handle != nil {
		context.Driver.FreeCommandBuffers(v.Pool, []vk.CommandBuffer{v.Handle})
	}
	v.Handle = nil
	v.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

func (v *VulkanCommandBuffer) Begin(context *VulkanContext, isSingleUse, isRenderpassContinue, isSimultaneousUse bool) error {
	beginInfo := &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: 0,
	}

	if isSingleUse {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if isRenderpassContinue {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageRenderPassContinueBit)
	}
	if isSimultaneousUse {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit)
	}

	if res := context.Driver.BeginCommandBuffer(v.Handle, beginInfo); res != vk.Success {
		return vulkanError(core.ErrUnknown, "failed to begin command buffer", res)
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING

	return nil
}

func (v *VulkanCommandBuffer) End(context *VulkanContext) error {
	if res := context.Driver.EndCommandBuffer(v.Handle); res != vk.Success {
		return vulkanError(core.ErrUnknown, "failed to end command buffer", res)
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (v *VulkanCommandBuffer) UpdateSubmitted() {
	v.State = COMMAND_BUFFER_STATE_SUBMITTED
}

// Reset returns the buffer to the initial state. The caller must know the GPU is done with it.
func (v *VulkanCommandBuffer) Reset(context *VulkanContext) error {
	if res := context.Driver.ResetCommandBuffer(v.Handle); res != vk.Success {
		return vulkanError(core.ErrUnknown, "failed to reset command buffer", res)
	}
	v.State = COMMAND_BUFFER_STATE_READY
	return nil
}

/**
 * Allocates and begins recording to a one-time command buffer.
 */
func AllocateAndBeginSingleUse(context *VulkanContext, pool vk.CommandPool) (*VulkanCommandBuffer, error) {
	cb, err := NewVulkanCommandBuffer(context, pool, true)
	if err != nil {
		return nil, err
	}
	if err := cb.Begin(context, true, false, false); err != nil {
		cb.Free(context)
		return nil, err
	}
	return cb, nil
}

/**
 * Ends recording, submits to and waits for queue operation and frees the command buffer.
 */
func (v *VulkanCommandBuffer) EndSingleUse(context *VulkanContext, queue vk.Queue) error {
	defer v.Free(context)

	if err := v.End(context); err != nil {
		return err
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{v.Handle},
	}

	return context.locks.SafeQueueCall(queue, func() error {
		if res := context.Driver.QueueSubmit(queue, []vk.SubmitInfo{submitInfo}, vk.NullFence); res != vk.Success {
			return vulkanError(core.ErrUnknown, "failed to submit single use command buffer", res)
		}
		v.UpdateSubmitted()

		// Wait for it to finish
		if res := context.Driver.QueueWaitIdle(queue); res != vk.Success {
			return vulkanError(core.ErrDeviceLost, "queue failed to wait in idle mode", res)
		}
		return nil
	})
}
