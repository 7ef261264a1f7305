package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
)

type VulkanSwapchain struct {
	ImageFormat vk.SurfaceFormat
	Extent      vk.Extent2D
	// One slot less than the image count, so acquiring never blocks on the last image.
	MaxFramesInFlight uint32
	Handle            vk.Swapchain
	ImageCount        uint32
	Images            []vk.Image
	Views             []vk.ImageView
}

type VulkanSwapchainSupportInfo struct {
	Capabilities     vk.SurfaceCapabilities
	FormatCount      uint32
	Formats          []vk.SurfaceFormat
	PresentModeCount uint32
	PresentModes     []vk.PresentMode
}

// chooseSurfaceFormat prefers B8G8R8A8_UNORM with the sRGB non-linear colour space.
func chooseSurfaceFormat(formats []vk.SurfaceFormat) vk.SurfaceFormat {
	for _, format := range formats {
		if format.Format == vk.FormatB8g8r8a8Unorm && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return format
		}
	}
	return formats[0]
}

// choosePresentMode takes FIFO unless a caller asked for something else and the surface offers it.
func choosePresentMode(modes []vk.PresentMode, preferred vk.PresentMode) vk.PresentMode {
	for _, mode := range modes {
		if mode == preferred {
			return mode
		}
	}
	return vk.PresentModeFifo
}

// chooseExtent uses the surface's current extent when it is fixed, otherwise clamps the framebuffer size.
func chooseExtent(capabilities *vk.SurfaceCapabilities, width, height uint32) vk.Extent2D {
	if capabilities.CurrentExtent.Width != vk.MaxUint32 {
		return capabilities.CurrentExtent
	}
	min := capabilities.MinImageExtent
	max := capabilities.MaxImageExtent
	return vk.Extent2D{
		Width:  math.Clamp(width, min.Width, max.Width),
		Height: math.Clamp(height, min.Height, max.Height),
	}
}

/**
 * @brief Creates a swapchain sized to the surface, with one color view per image.
 * Returns core.ErrSwapchainBooting when the surface currently has a zero extent.
 */
func SwapchainCreate(context *VulkanContext, width, height uint32, presentMode vk.PresentMode) (*VulkanSwapchain, error) {
	support, res := context.Driver.SurfaceSupport(context.Surface)
	if res != vk.Success {
		return nil, vulkanError(core.ErrDeviceObjectCreation, "failed to query surface support", res)
	}
	if len(support.Formats) == 0 || len(support.PresentModes) == 0 {
		err := fmt.Errorf("%w: surface reports no formats or present modes", core.ErrDeviceObjectCreation)
		core.LogError(err.Error())
		return nil, err
	}
	if context.Device != nil {
		context.Device.SwapchainSupport = support
	}

	extent := chooseExtent(&support.Capabilities, width, height)
	if extent.Width == 0 || extent.Height == 0 {
		return nil, core.ErrSwapchainBooting
	}

	swapchain := &VulkanSwapchain{
		ImageFormat: chooseSurfaceFormat(support.Formats),
		Extent:      extent,
	}

	imageCount := support.Capabilities.MinImageCount + 1
	if support.Capabilities.MaxImageCount > 0 && imageCount > support.Capabilities.MaxImageCount {
		imageCount = support.Capabilities.MaxImageCount
	}

	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          context.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      swapchain.ImageFormat.Format,
		ImageColorSpace:  swapchain.ImageFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     support.Capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      choosePresentMode(support.PresentModes, presentMode),
		Clipped:          vk.True,
		OldSwapchain:     vk.NullSwapchain,
	}

	device := context.Device
	if device != nil && !device.Aliased(QueueRoleGraphics, QueueRolePresent) {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainCreateInfo.QueueFamilyIndexCount = 2
		swapchainCreateInfo.PQueueFamilyIndices = []uint32{
			device.Family(QueueRoleGraphics),
			device.Family(QueueRolePresent),
		}
	} else {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	handle, res := context.Driver.CreateSwapchain(&swapchainCreateInfo)
	if res != vk.Success {
		return nil, vulkanError(core.ErrDeviceObjectCreation, "failed to create swapchain", res)
	}
	swapchain.Handle = handle

	images, res := context.Driver.SwapchainImages(handle)
	if res != vk.Success {
		swapchain.Destroy(context)
		return nil, vulkanError(core.ErrDeviceObjectCreation, "failed to get swapchain images", res)
	}
	swapchain.Images = images
	swapchain.ImageCount = uint32(len(images))
	swapchain.MaxFramesInFlight = 1
	if swapchain.ImageCount > 1 {
		swapchain.MaxFramesInFlight = swapchain.ImageCount - 1
	}

	swapchain.Views = make([]vk.ImageView, 0, len(images))
	for _, image := range images {
		viewInfo := vk.ImageViewCreateInfo{
			SType:            vk.StructureTypeImageViewCreateInfo,
			Image:            image,
			ViewType:         vk.ImageViewType2d,
			Format:           swapchain.ImageFormat.Format,
			SubresourceRange: colorSubresourceRange(),
		}
		view, res := context.Driver.CreateImageView(&viewInfo)
		if res != vk.Success {
			swapchain.Destroy(context)
			return nil, vulkanError(core.ErrDeviceObjectCreation, "failed to create swapchain image view", res)
		}
		swapchain.Views = append(swapchain.Views, view)
	}

	core.LogInfo("Swapchain created: %dx%d, %d images, %d frames in flight.",
		extent.Width, extent.Height, swapchain.ImageCount, swapchain.MaxFramesInFlight)
	return swapchain, nil
}

// Destroy releases the views and the swapchain. Images belong to the swapchain.
func (vs *VulkanSwapchain) Destroy(context *VulkanContext) {
	for _, view := range vs.Views {
		context.Driver.DestroyImageView(view)
	}
	vs.Views = nil
	vs.Images = nil
	vs.ImageCount = 0
	if vs.Handle != vk.NullSwapchain {
		context.Driver.DestroySwapchain(vs.Handle)
		vs.Handle = vk.NullSwapchain
	}
}

// AcquireNextImage hands back the raw result; the caller decides what out-of-date means.
func (vs *VulkanSwapchain) AcquireNextImage(context *VulkanContext, timeoutNs uint64, imageAvailable vk.Semaphore) (uint32, vk.Result) {
	return context.Driver.AcquireNextImage(vs.Handle, timeoutNs, imageAvailable, vk.NullFence)
}

func (vs *VulkanSwapchain) Present(context *VulkanContext, presentQueue vk.Queue, renderComplete vk.Semaphore, imageIndex uint32) vk.Result {
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{renderComplete},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{vs.Handle},
		PImageIndices:      []uint32{imageIndex},
	}
	var res vk.Result
	_ = context.locks.SafeQueueCall(presentQueue, func() error {
		res = context.Driver.QueuePresent(presentQueue, &presentInfo)
		return nil
	})
	return res
}
