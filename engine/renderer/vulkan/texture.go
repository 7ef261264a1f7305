package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/google/uuid"
	"github.com/spaghettifunk/lumen/engine/assets/loaders"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

/**
 * @brief A 2D image with its memory, view and sampler. Layout is the layout the
 * image will be in once every recorded transition has executed; it is only ever
 * changed by TransitionLayout.
 */
type VulkanTexture struct {
	Name    string
	Image   vk.Image
	View    vk.ImageView
	Sampler vk.Sampler
	Memory  *MemoryAllocation
	Format  vk.Format
	Width   uint32
	Height  uint32
	Usage   vk.ImageUsageFlags
	Layout  vk.ImageLayout
}

type layoutTransition struct {
	from, to vk.ImageLayout
}

type transitionMasks struct {
	srcAccess vk.AccessFlags
	dstAccess vk.AccessFlags
	srcStage  vk.PipelineStageFlags
	dstStage  vk.PipelineStageFlags
}

// The only layout changes a texture supports.
var supportedTransitions = map[layoutTransition]transitionMasks{
	{vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal}: {
		srcAccess: 0,
		dstAccess: vk.AccessFlags(vk.AccessTransferWriteBit),
		srcStage:  vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
		dstStage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
	},
	{vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal}: {
		srcAccess: vk.AccessFlags(vk.AccessTransferWriteBit),
		dstAccess: vk.AccessFlags(vk.AccessShaderReadBit),
		srcStage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		dstStage:  vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
	},
	{vk.ImageLayoutTransferSrcOptimal, vk.ImageLayoutShaderReadOnlyOptimal}: {
		srcAccess: vk.AccessFlags(vk.AccessTransferReadBit),
		dstAccess: vk.AccessFlags(vk.AccessShaderReadBit),
		srcStage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		dstStage:  vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
	},
	{vk.ImageLayoutUndefined, vk.ImageLayoutTransferSrcOptimal}: {
		srcAccess: 0,
		dstAccess: vk.AccessFlags(vk.AccessTransferReadBit),
		srcStage:  vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
		dstStage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
	},
	{vk.ImageLayoutUndefined, vk.ImageLayoutGeneral}: {
		srcAccess: 0,
		dstAccess: vk.AccessFlags(vk.AccessShaderReadBit) | vk.AccessFlags(vk.AccessShaderWriteBit),
		srcStage:  vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
		dstStage:  vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit),
	},
	{vk.ImageLayoutShaderReadOnlyOptimal, vk.ImageLayoutGeneral}: {
		srcAccess: vk.AccessFlags(vk.AccessShaderReadBit),
		dstAccess: vk.AccessFlags(vk.AccessShaderReadBit) | vk.AccessFlags(vk.AccessShaderWriteBit),
		srcStage:  vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
		dstStage:  vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit),
	},
}

// TexelSize is the size in bytes of one texel of the formats textures are created with.
func TexelSize(format vk.Format) uint32 {
	switch format {
	case vk.FormatR8Unorm:
		return 1
	case vk.FormatR8g8Unorm:
		return 2
	case vk.FormatR16g16b16a16Sfloat:
		return 8
	case vk.FormatR32g32b32a32Sfloat:
		return 16
	default:
		return 4
	}
}

func colorSubresourceRange() vk.ImageSubresourceRange {
	return vk.ImageSubresourceRange{
		AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
		BaseMipLevel:   0,
		LevelCount:     1,
		BaseArrayLayer: 0,
		LayerCount:     1,
	}
}

func TextureCreate(context *VulkanContext, name string, format vk.Format, width, height uint32, usage vk.ImageUsageFlags) (*VulkanTexture, error) {
	if width == 0 || height == 0 {
		err := fmt.Errorf("%w: texture extent %dx%d", core.ErrInvalidSize, width, height)
		core.LogError(err.Error())
		return nil, err
	}
	if usage&vk.ImageUsageFlags(vk.ImageUsageStorageBit) != 0 && !FormatSupportsStorageImage(context, format) {
		err := fmt.Errorf("%w: format %d cannot back a storage image", core.ErrFormatUnsupported, format)
		core.LogError(err.Error())
		return nil, err
	}
	if name == "" {
		name = uuid.NewString()
	}

	texture := &VulkanTexture{
		Name:   name,
		Format: format,
		Width:  width,
		Height: height,
		Usage:  usage,
		Layout: vk.ImageLayoutUndefined,
	}

	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        format,
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         usage,
		Samples:       vk.SampleCount1Bit,
		SharingMode:   vk.SharingModeExclusive,
	}
	image, res := context.Driver.CreateImage(&imageCreateInfo)
	if res != vk.Success {
		return nil, vulkanError(core.ErrDeviceObjectCreation, "failed to create image", res)
	}
	texture.Image = image

	requirements := context.Driver.ImageMemoryRequirements(image)
	memory, err := MemoryAllocate(context, requirements, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		texture.Destroy(context)
		return nil, err
	}
	texture.Memory = memory

	if res := context.Driver.BindImageMemory(image, memory.Handle, 0); res != vk.Success {
		texture.Destroy(context)
		return nil, vulkanError(core.ErrDeviceObjectCreation, "failed to bind image memory", res)
	}

	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:            vk.StructureTypeImageViewCreateInfo,
		Image:            image,
		ViewType:         vk.ImageViewType2d,
		Format:           format,
		SubresourceRange: colorSubresourceRange(),
	}
	view, res := context.Driver.CreateImageView(&viewCreateInfo)
	if res != vk.Success {
		texture.Destroy(context)
		return nil, vulkanError(core.ErrDeviceObjectCreation, "failed to create image view", res)
	}
	texture.View = view

	samplerInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.FilterLinear,
		MinFilter:               vk.FilterLinear,
		AddressModeU:            vk.SamplerAddressModeRepeat,
		AddressModeV:            vk.SamplerAddressModeRepeat,
		AddressModeW:            vk.SamplerAddressModeRepeat,
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1.0,
		BorderColor:             vk.BorderColorIntOpaqueWhite,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              vk.SamplerMipmapModeLinear,
		MipLodBias:              0.0,
		MinLod:                  0.0,
		MaxLod:                  1.0,
	}
	sampler, res := context.Driver.CreateSampler(&samplerInfo)
	if res != vk.Success {
		texture.Destroy(context)
		return nil, vulkanError(core.ErrDeviceObjectCreation, "failed to create sampler", res)
	}
	texture.Sampler = sampler

	core.LogDebug("texture `%s` created (%dx%d)", name, width, height)
	return texture, nil
}

func (t *VulkanTexture) Destroy(context *VulkanContext) {
	if t.Sampler != vk.NullSampler {
		context.Driver.DestroySampler(t.Sampler)
		t.Sampler = vk.NullSampler
	}
	if t.View != vk.NullImageView {
		context.Driver.DestroyImageView(t.View)
		t.View = vk.NullImageView
	}
	if t.Memory != nil {
		t.Memory.Free(context)
		t.Memory = nil
	}
	if t.Image != vk.NullImage {
		context.Driver.DestroyImage(t.Image)
		t.Image = vk.NullImage
	}
	t.Layout = vk.ImageLayoutUndefined
}

/**
 * @brief Records a layout transition barrier. oldLayout must match the tracked
 * layout and the pair must be one of the supported transitions; otherwise
 * nothing is recorded and Layout is left as is.
 */
func (t *VulkanTexture) TransitionLayout(context *VulkanContext, cb *VulkanCommandBuffer, oldLayout, newLayout vk.ImageLayout, queueFamily uint32) error {
	if oldLayout != t.Layout {
		err := fmt.Errorf("%w: texture `%s` is in layout %d, transition asked from %d", core.ErrLayoutMismatch, t.Name, t.Layout, oldLayout)
		core.LogError(err.Error())
		return err
	}
	masks, ok := supportedTransitions[layoutTransition{oldLayout, newLayout}]
	if !ok {
		err := fmt.Errorf("%w: %d -> %d", core.ErrUnsupportedTransition, oldLayout, newLayout)
		core.LogError(err.Error())
		return err
	}

	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: queueFamily,
		DstQueueFamilyIndex: queueFamily,
		Image:               t.Image,
		SubresourceRange:    colorSubresourceRange(),
		SrcAccessMask:       masks.srcAccess,
		DstAccessMask:       masks.dstAccess,
	}
	context.Driver.CmdPipelineBarrier(cb.Handle, masks.srcStage, masks.dstStage, nil, []vk.ImageMemoryBarrier{barrier})
	t.Layout = newLayout
	return nil
}

/**
 * @brief Replaces the full image content with pixels and leaves the texture in
 * shader-read-only layout. Waits for the queue to go idle.
 */
func (t *VulkanTexture) UploadPixels(context *VulkanContext, pixels []byte, queue vk.Queue, pool vk.CommandPool, queueFamily uint32) error {
	expected := uint64(t.Width) * uint64(t.Height) * uint64(TexelSize(t.Format))
	if uint64(len(pixels)) != expected {
		err := fmt.Errorf("%w: got %d bytes for %dx%d texture `%s`", core.ErrSizeMismatch, len(pixels), t.Width, t.Height, t.Name)
		core.LogError(err.Error())
		return err
	}

	staging, err := BufferCreate(context, expected, vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit), 0, ResidencyCPUOnly)
	if err != nil {
		return err
	}
	defer staging.Destroy(context)
	if err := staging.LoadData(context, pixels); err != nil {
		return err
	}

	cb, err := AllocateAndBeginSingleUse(context, pool)
	if err != nil {
		return err
	}

	// Undefined is always a valid source: the previous content is discarded.
	previous := t.Layout
	t.Layout = vk.ImageLayoutUndefined
	if err := t.TransitionLayout(context, cb, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal, queueFamily); err != nil {
		t.Layout = previous
		cb.Free(context)
		return err
	}

	region := vk.BufferImageCopy{
		BufferOffset:      0,
		BufferRowLength:   0,
		BufferImageHeight: 0,
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			MipLevel:       0,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
		ImageExtent: vk.Extent3D{
			Width:  t.Width,
			Height: t.Height,
			Depth:  1,
		},
	}
	context.Driver.CmdCopyBufferToImage(cb.Handle, staging.Handle, t.Image, vk.ImageLayoutTransferDstOptimal, []vk.BufferImageCopy{region})

	if err := t.TransitionLayout(context, cb, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal, queueFamily); err != nil {
		cb.Free(context)
		return err
	}
	return cb.EndSingleUse(context, queue)
}

func (t *VulkanTexture) DescriptorInfo(layout vk.ImageLayout) vk.DescriptorImageInfo {
	return vk.DescriptorImageInfo{
		Sampler:     t.Sampler,
		ImageView:   t.View,
		ImageLayout: layout,
	}
}

// TextureLoadFromFile decodes an image file and uploads it as a sampled sRGB texture.
func TextureLoadFromFile(context *VulkanContext, path string, queue vk.Queue, pool vk.CommandPool, queueFamily uint32) (*VulkanTexture, error) {
	il := &loaders.ImageLoader{}
	res, err := il.Load(path, &metadata.ImageResourceParams{FlipY: true})
	if err != nil {
		return nil, err
	}
	defer il.Unload(res)
	data := res.Data.(*metadata.ImageResourceData)

	usage := vk.ImageUsageFlags(vk.ImageUsageTransferDstBit) | vk.ImageUsageFlags(vk.ImageUsageSampledBit)
	texture, err := TextureCreate(context, path, SampledImageFormat, data.Width, data.Height, usage)
	if err != nil {
		return nil, err
	}
	if err := texture.UploadPixels(context, data.Pixels, queue, pool, queueFamily); err != nil {
		texture.Destroy(context)
		return nil, err
	}
	return texture, nil
}
