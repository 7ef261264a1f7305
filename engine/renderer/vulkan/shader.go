package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
)

/**
 * @brief A compiled SPIR-V module plus the stage info pipelines are built from.
 * The module can be destroyed once every pipeline using it exists.
 */
type VulkanShaderStage struct {
	Module     vk.ShaderModule
	Stage      vk.ShaderStageFlagBits
	CreateInfo vk.PipelineShaderStageCreateInfo
}

func NewShaderStage(context *VulkanContext, code []uint32, stage vk.ShaderStageFlagBits) (*VulkanShaderStage, error) {
	if len(code) == 0 {
		err := fmt.Errorf("%w: empty shader code for stage %d", core.ErrShaderLoad, stage)
		core.LogError(err.Error())
		return nil, err
	}

	moduleCreateInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code) * 4),
		PCode:    code,
	}
	module, res := context.Driver.CreateShaderModule(&moduleCreateInfo)
	if res != vk.Success {
		return nil, vulkanError(core.ErrShaderLoad, "failed to create shader module", res)
	}

	return &VulkanShaderStage{
		Module: module,
		Stage:  stage,
		CreateInfo: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  stage,
			Module: module,
			PName:  VulkanSafeString("main"),
		},
	}, nil
}

func (s *VulkanShaderStage) Destroy(context *VulkanContext) {
	if s.Module != vk.NullShaderModule {
		context.Driver.DestroyShaderModule(s.Module)
		s.Module = vk.NullShaderModule
	}
}
