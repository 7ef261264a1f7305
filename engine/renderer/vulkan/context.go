package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
)

type VulkanContext struct {
	// The framebuffer's current width.
	FramebufferWidth uint32
	// The framebuffer's current height.
	FramebufferHeight uint32
	// Current generation of framebuffer size. If it does not match FramebufferSizeLastGeneration,
	// the swapchain dependent resources must be rebuilt.
	FramebufferSizeGeneration uint64
	// The generation of the framebuffer when it was last created.
	FramebufferSizeLastGeneration uint64

	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface

	debugMessenger vk.DebugReportCallback

	// Every native call below the backend goes through here.
	Driver Driver
	Device *VulkanDevice

	// Upper bound, in nanoseconds, for any single fence wait.
	FenceTimeout uint64

	locks *VulkanLockPool
}

// NewVulkanContext wires a driver and a device. Used by the backend and by tests.
func NewVulkanContext(driver Driver, device *VulkanDevice) *VulkanContext {
	return &VulkanContext{
		Driver:       driver,
		Device:       device,
		FenceTimeout: uint64(DefaultFenceTimeout.Nanoseconds()),
		locks:        NewVulkanLockPool(),
	}
}

// FindMemoryIndex returns the first memory type allowed by typeFilter that has every
// bit of propertyFlags, or -1.
func (vc *VulkanContext) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) int32 {
	memoryProperties := vc.Driver.MemoryProperties()

	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		// Check each memory type to see if its bit is set to 1.
		if (typeFilter&(1<<i)) != 0 && (memoryProperties.MemoryTypes[i].PropertyFlags&propertyFlags) == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}
