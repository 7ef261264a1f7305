package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
)

func NewSemaphore(context *VulkanContext) (vk.Semaphore, error) {
	semaphore, res := context.Driver.CreateSemaphore()
	if res != vk.Success {
		return vk.NullSemaphore, vulkanError(core.ErrDeviceObjectCreation, "failed to create semaphore", res)
	}
	return semaphore, nil
}

func SemaphoreDestroy(context *VulkanContext, semaphore vk.Semaphore) {
	if semaphore != vk.NullSemaphore {
		context.Driver.DestroySemaphore(semaphore)
	}
}
