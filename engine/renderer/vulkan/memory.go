package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
)

/** @brief Where a buffer's memory lives and who writes it. */
type Residency int

const (
	/** @brief Device local, written only through staged copies. */
	ResidencyGPUOnly Residency = iota
	/** @brief Host visible and coherent, rewritten by the CPU every frame. */
	ResidencyCPUToGPU
	/** @brief Host visible staging memory for one upload or readback. */
	ResidencyCPUOnly
)

func (r Residency) String() string {
	switch r {
	case ResidencyGPUOnly:
		return "gpu-only"
	case ResidencyCPUToGPU:
		return "cpu-to-gpu"
	case ResidencyCPUOnly:
		return "cpu-only"
	default:
		return "unknown"
	}
}

func (r Residency) MemoryFlags() vk.MemoryPropertyFlags {
	switch r {
	case ResidencyCPUToGPU, ResidencyCPUOnly:
		return vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) | vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit)
	default:
		return vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	}
}

type MemoryAllocation struct {
	Handle        vk.DeviceMemory
	Size          vk.DeviceSize
	MemoryIndex   int32
	PropertyFlags vk.MemoryPropertyFlags
}

// MemoryAllocate allocates a block satisfying requirements from the first memory
// type carrying every bit of flags.
func MemoryAllocate(context *VulkanContext, requirements vk.MemoryRequirements, flags vk.MemoryPropertyFlags) (*MemoryAllocation, error) {
	memoryIndex := context.FindMemoryIndex(requirements.MemoryTypeBits, flags)
	if memoryIndex == -1 {
		err := fmt.Errorf("%w: no memory type for flags 0x%x", core.ErrDeviceObjectCreation, uint32(flags))
		core.LogError(err.Error())
		return nil, err
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(memoryIndex),
	}
	handle, res := context.Driver.AllocateMemory(&allocateInfo)
	if res != vk.Success {
		return nil, vulkanError(core.ErrDeviceObjectCreation, "failed to allocate device memory", res)
	}

	return &MemoryAllocation{
		Handle:        handle,
		Size:          requirements.Size,
		MemoryIndex:   memoryIndex,
		PropertyFlags: flags,
	}, nil
}

func (ma *MemoryAllocation) HostVisible() bool {
	return ma.PropertyFlags&vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) != 0
}

func (ma *MemoryAllocation) Free(context *VulkanContext) {
	if ma.Handle != vk.NullDeviceMemory {
		context.Driver.FreeMemory(ma.Handle)
		ma.Handle = vk.NullDeviceMemory
	}
}
