package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
)

type VulkanFence struct {
	Handle     vk.Fence
	IsSignaled bool
}

func NewFence(context *VulkanContext, createSignaled bool) (*VulkanFence, error) {
	handle, res := context.Driver.CreateFence(createSignaled)
	if res != vk.Success {
		return nil, vulkanError(core.ErrDeviceObjectCreation, "failed to create fence", res)
	}
	return &VulkanFence{
		Handle: handle,
		// Make sure to signal the fence if required.
		IsSignaled: createSignaled,
	}, nil
}

func (vf *VulkanFence) FenceDestroy(context *VulkanContext) {
	if vf.Handle != vk.NullFence {
		context.Driver.DestroyFence(vf.Handle)
		vf.Handle = vk.NullFence
	}
	vf.IsSignaled = false
}

// FenceWait blocks until the fence signals or timeoutNs elapses. A timeout is
// treated like a lost device: the frame loop cannot make progress either way.
func (vf *VulkanFence) FenceWait(context *VulkanContext, timeoutNs uint64) error {
	if vf.IsSignaled {
		// If already signaled, do not wait.
		return nil
	}
	result := context.Driver.WaitForFences([]vk.Fence{vf.Handle}, timeoutNs)
	switch result {
	case vk.Success:
		vf.IsSignaled = true
		return nil
	case vk.Timeout:
		err := fmt.Errorf("%w: fence wait timed out after %dns", core.ErrDeviceLost, timeoutNs)
		core.LogError(err.Error())
		return err
	case vk.ErrorDeviceLost:
		return vulkanError(core.ErrDeviceLost, "fence wait", result)
	default:
		return vulkanError(core.ErrUnknown, "fence wait", result)
	}
}

func (vf *VulkanFence) FenceReset(context *VulkanContext) error {
	if vf.IsSignaled {
		if res := context.Driver.ResetFences([]vk.Fence{vf.Handle}); res != vk.Success {
			return vulkanError(core.ErrUnknown, "failed to reset fence", res)
		}
		vf.IsSignaled = false
	}
	return nil
}
