package vulkan

import (
	vk "github.com/goki/vulkan"
)

// The storage image stays in GENERAL for its whole life once it is set up, only
// ownership and visibility move between the compute and graphics passes.

func storageImageBarrier(image vk.Image, srcFamily, dstFamily uint32, srcAccess, dstAccess vk.AccessFlagBits) vk.ImageMemoryBarrier {
	return vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(srcAccess),
		DstAccessMask:       vk.AccessFlags(dstAccess),
		OldLayout:           vk.ImageLayoutGeneral,
		NewLayout:           vk.ImageLayoutGeneral,
		SrcQueueFamilyIndex: srcFamily,
		DstQueueFamilyIndex: dstFamily,
		Image:               image,
		SubresourceRange:    colorSubresourceRange(),
	}
}

func recordImageBarrier(context *VulkanContext, cb *VulkanCommandBuffer, srcStage, dstStage vk.PipelineStageFlagBits, barrier vk.ImageMemoryBarrier) {
	context.Driver.CmdPipelineBarrier(cb.Handle, vk.PipelineStageFlags(srcStage), vk.PipelineStageFlags(dstStage), nil, []vk.ImageMemoryBarrier{barrier})
}

// AcquireForCompute is the compute queue half of a graphics to compute ownership transfer.
func AcquireForCompute(context *VulkanContext, cb *VulkanCommandBuffer, image vk.Image) {
	d := context.Device
	barrier := storageImageBarrier(image, d.Family(QueueRoleGraphics), d.Family(QueueRoleCompute), 0, vk.AccessShaderWriteBit)
	recordImageBarrier(context, cb, vk.PipelineStageTopOfPipeBit, vk.PipelineStageComputeShaderBit, barrier)
}

// ReleaseFromCompute is the compute queue half of a compute to graphics ownership transfer.
func ReleaseFromCompute(context *VulkanContext, cb *VulkanCommandBuffer, image vk.Image) {
	d := context.Device
	barrier := storageImageBarrier(image, d.Family(QueueRoleCompute), d.Family(QueueRoleGraphics), vk.AccessShaderWriteBit, 0)
	recordImageBarrier(context, cb, vk.PipelineStageComputeShaderBit, vk.PipelineStageBottomOfPipeBit, barrier)
}

// AcquireForGraphics is the graphics queue half of a compute to graphics ownership transfer.
func AcquireForGraphics(context *VulkanContext, cb *VulkanCommandBuffer, image vk.Image) {
	d := context.Device
	barrier := storageImageBarrier(image, d.Family(QueueRoleCompute), d.Family(QueueRoleGraphics), 0, vk.AccessShaderReadBit)
	recordImageBarrier(context, cb, vk.PipelineStageTopOfPipeBit, vk.PipelineStageFragmentShaderBit, barrier)
}

// ReleaseFromGraphics is the graphics queue half of a graphics to compute ownership transfer.
func ReleaseFromGraphics(context *VulkanContext, cb *VulkanCommandBuffer, image vk.Image) {
	d := context.Device
	barrier := storageImageBarrier(image, d.Family(QueueRoleGraphics), d.Family(QueueRoleCompute), vk.AccessShaderReadBit, 0)
	recordImageBarrier(context, cb, vk.PipelineStageFragmentShaderBit, vk.PipelineStageBottomOfPipeBit, barrier)
}

// ComputeToFragment makes compute writes visible to fragment reads on a shared queue.
func ComputeToFragment(context *VulkanContext, cb *VulkanCommandBuffer, image vk.Image) {
	barrier := storageImageBarrier(image, vk.QueueFamilyIgnored, vk.QueueFamilyIgnored, vk.AccessShaderWriteBit, vk.AccessShaderReadBit)
	recordImageBarrier(context, cb, vk.PipelineStageComputeShaderBit, vk.PipelineStageFragmentShaderBit, barrier)
}
