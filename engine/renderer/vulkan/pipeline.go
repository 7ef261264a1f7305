package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
)

/**
 * @brief Holds a Vulkan pipeline and its layout.
 */
type VulkanPipeline struct {
	/** @brief The internal pipeline handle. */
	Handle vk.Pipeline
	/** @brief The pipeline layout. */
	PipelineLayout vk.PipelineLayout
}

type VulkanPipelineConfig struct {
	/** @brief The renderpass to associate with the pipeline. */
	Renderpass *VulkanRenderpass
	/** @brief Set layouts, in set index order. */
	DescriptorSetLayouts []vk.DescriptorSetLayout
	Stages               []*VulkanShaderStage
	/** @brief The initial viewport configuration. Overridden by dynamic state. */
	Viewport vk.Viewport
	/** @brief The initial scissor configuration. Overridden by dynamic state. */
	Scissor  vk.Rect2D
	CullMode vk.CullModeFlagBits
}

func createPipelineLayout(context *VulkanContext, setLayouts []vk.DescriptorSetLayout) (vk.PipelineLayout, error) {
	pipelineLayoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(setLayouts)),
		PSetLayouts:    setLayouts,
	}

	var layout vk.PipelineLayout
	err := context.locks.SafeCall(PipelineManagement, func() error {
		var res vk.Result
		layout, res = context.Driver.CreatePipelineLayout(&pipelineLayoutCreateInfo)
		if !VulkanResultIsSuccess(res) {
			return vulkanError(core.ErrDeviceObjectCreation, "vkCreatePipelineLayout failed", res)
		}
		return nil
	})
	return layout, err
}

/**
 * @brief Creates the fullscreen blit pipeline: a triangle strip with no vertex
 * input, positions derived from the vertex index, dynamic viewport and scissor.
 */
func NewGraphicsPipeline(context *VulkanContext, config *VulkanPipelineConfig) (*VulkanPipeline, error) {
	outPipeline := &VulkanPipeline{}

	// Viewport state
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		PViewports:    []vk.Viewport{config.Viewport},
		ScissorCount:  1,
		PScissors:     []vk.Rect2D{config.Scissor},
	}

	// Rasterizer
	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                vk.CullModeFlags(config.CullMode),
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vk.False,
	}

	// Multisampling.
	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:   vk.False,
		RasterizationSamples:  vk.SampleCount1Bit,
		MinSampleShading:      1.0,
		AlphaToCoverageEnable: vk.False,
		AlphaToOneEnable:      vk.False,
	}

	// The blit writes every pixel, blending would only mix in the clear color.
	colorBlendAttachmentState := vk.PipelineColorBlendAttachmentState{
		BlendEnable: vk.False,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
			vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
	}

	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{colorBlendAttachmentState},
	}

	// Dynamic state
	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}

	dynamicStateCreateInfo := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	// No vertex buffers, the vertex shader builds the quad from gl_VertexIndex.
	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}

	// Input assembly
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleStrip,
		PrimitiveRestartEnable: vk.False,
	}

	layout, err := createPipelineLayout(context, config.DescriptorSetLayouts)
	if err != nil {
		return nil, err
	}
	outPipeline.PipelineLayout = layout

	stages := make([]vk.PipelineShaderStageCreateInfo, len(config.Stages))
	for i, stage := range config.Stages {
		stages[i] = stage.CreateInfo
	}

	// Pipeline create
	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PColorBlendState:    &colorBlendStateCreateInfo,
		PDynamicState:       &dynamicStateCreateInfo,
		Layout:              outPipeline.PipelineLayout,
		RenderPass:          config.Renderpass.Handle,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	if err := context.locks.SafeCall(PipelineManagement, func() error {
		handle, res := context.Driver.CreateGraphicsPipeline(&pipelineCreateInfo)
		if !VulkanResultIsSuccess(res) {
			return vulkanError(core.ErrDeviceObjectCreation, "vkCreateGraphicsPipelines failed", res)
		}
		outPipeline.Handle = handle
		return nil
	}); err != nil {
		outPipeline.Destroy(context)
		return nil, err
	}

	core.LogDebug("Graphics pipeline created!")
	return outPipeline, nil
}

// NewComputePipeline creates a compute pipeline for a single compute stage.
func NewComputePipeline(context *VulkanContext, setLayouts []vk.DescriptorSetLayout, stage *VulkanShaderStage) (*VulkanPipeline, error) {
	outPipeline := &VulkanPipeline{}

	layout, err := createPipelineLayout(context, setLayouts)
	if err != nil {
		return nil, err
	}
	outPipeline.PipelineLayout = layout

	pipelineCreateInfo := vk.ComputePipelineCreateInfo{
		SType:              vk.StructureTypeComputePipelineCreateInfo,
		Stage:              stage.CreateInfo,
		Layout:             layout,
		BasePipelineHandle: vk.NullPipeline,
		BasePipelineIndex:  -1,
	}

	if err := context.locks.SafeCall(PipelineManagement, func() error {
		handle, res := context.Driver.CreateComputePipeline(&pipelineCreateInfo)
		if !VulkanResultIsSuccess(res) {
			return vulkanError(core.ErrDeviceObjectCreation, "vkCreateComputePipelines failed", res)
		}
		outPipeline.Handle = handle
		return nil
	}); err != nil {
		outPipeline.Destroy(context)
		return nil, err
	}

	core.LogDebug("Compute pipeline created!")
	return outPipeline, nil
}

func (pipeline *VulkanPipeline) Destroy(context *VulkanContext) {
	_ = context.locks.SafeCall(PipelineManagement, func() error {
		if pipeline.Handle != vk.NullPipeline {
			context.Driver.DestroyPipeline(pipeline.Handle)
			pipeline.Handle = vk.NullPipeline
		}
		if pipeline.PipelineLayout != vk.NullPipelineLayout {
			context.Driver.DestroyPipelineLayout(pipeline.PipelineLayout)
			pipeline.PipelineLayout = vk.NullPipelineLayout
		}
		return nil
	})
}

func (pipeline *VulkanPipeline) Bind(context *VulkanContext, commandBuffer *VulkanCommandBuffer, bindPoint vk.PipelineBindPoint) {
	context.Driver.CmdBindPipeline(commandBuffer.Handle, bindPoint, pipeline.Handle)
}

// BindSets binds sets starting at set index 0 with this pipeline's layout.
func (pipeline *VulkanPipeline) BindSets(context *VulkanContext, commandBuffer *VulkanCommandBuffer, bindPoint vk.PipelineBindPoint, sets []vk.DescriptorSet) {
	context.Driver.CmdBindDescriptorSets(commandBuffer.Handle, bindPoint, pipeline.PipelineLayout, 0, sets)
}
