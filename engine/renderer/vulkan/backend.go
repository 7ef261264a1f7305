package vulkan

import (
	"fmt"
	"runtime"
	"time"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/platform"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

const validationLayerName = "VK_LAYER_KHRONOS_validation"

/** @brief Everything the backend needs to bring up the first frame. */
type RendererConfig struct {
	AppName       string
	Width, Height uint32
	// Enables the validation layer and the debug report callback.
	Debug bool
	VSync bool

	FenceTimeout       time.Duration
	MaxPresentFailures int
	PoolPolicy         DescriptorPoolPolicy

	ComputeShader   []uint32
	GraphicsShaders GraphicsShaders
	Scene           []metadata.Sphere
}

type VulkanRenderer struct {
	platform     *platform.Platform
	context      *VulkanContext
	orchestrator *FrameOrchestrator

	debug bool
}

func New(p *platform.Platform) *VulkanRenderer {
	return &VulkanRenderer{
		platform: p,
		context:  NewVulkanContext(nil, &VulkanDevice{}),
	}
}

func (vr *VulkanRenderer) Initialize(config RendererConfig) error {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		err := fmt.Errorf("%w: GetInstanceProcAddress is nil", core.ErrDeviceObjectCreation)
		core.LogError(err.Error())
		return err
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return err
	}

	vr.debug = config.Debug
	vr.context.FramebufferWidth = config.Width
	vr.context.FramebufferHeight = config.Height
	if config.FenceTimeout > 0 {
		vr.context.FenceTimeout = uint64(config.FenceTimeout.Nanoseconds())
	}

	if err := vr.createInstance(config.AppName); err != nil {
		return err
	}

	// Debugger
	if vr.debug {
		core.LogDebug("Creating Vulkan debugger...")
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}

		var dbg vk.DebugReportCallback
		if err := vk.Error(vk.CreateDebugReportCallback(vr.context.Instance, &debugCreateInfo, vr.context.Allocator, &dbg)); err != nil {
			core.LogError("vk.CreateDebugReportCallback failed with %s", err)
			return err
		}
		vr.context.debugMessenger = dbg
		core.LogDebug("Vulkan debugger created.")
	}

	// Surface
	core.LogDebug("Creating Vulkan surface...")
	surface, err := vr.platform.Window.CreateWindowSurface(vr.context.Instance, nil)
	if err != nil {
		err = fmt.Errorf("%w: vulkan surface: %s", core.ErrDeviceObjectCreation, err)
		core.LogError(err.Error())
		return err
	}
	vr.context.Surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")

	// Device creation
	if err := DeviceCreate(vr.context, vr.debug); err != nil {
		core.LogError("Failed to create device!")
		return err
	}

	presentMode := vk.PresentModeFifo
	if !config.VSync {
		presentMode = vk.PresentModeMailbox
	}

	o, err := NewFrameOrchestrator(vr.context, OrchestratorConfig{
		Width:              vr.context.FramebufferWidth,
		Height:             vr.context.FramebufferHeight,
		ComputeShader:      config.ComputeShader,
		GraphicsShaders:    config.GraphicsShaders,
		Scene:              config.Scene,
		PoolPolicy:         config.PoolPolicy,
		PresentMode:        presentMode,
		MaxPresentFailures: config.MaxPresentFailures,
	})
	if err != nil {
		return err
	}
	vr.orchestrator = o
	vr.context.FramebufferSizeLastGeneration = vr.context.FramebufferSizeGeneration

	core.LogInfo("Vulkan renderer initialized successfully.")
	return nil
}

func (vr *VulkanRenderer) createInstance(appName string) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("Lumen"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	// Obtain a list of required extensions
	requiredExtensions := []string{"VK_KHR_surface"}
	requiredExtensions = append(requiredExtensions, vr.platform.GetRequiredExtensionNames()...)

	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	if vr.debug {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
		core.LogInfo("Required extensions:")
		for _, name := range requiredExtensions {
			core.LogInfo(name)
		}
	}

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)

	// Validation layers should only be enabled on non-release builds.
	requiredLayers := []string{}
	if vr.debug {
		core.LogInfo("Validation layers enabled. Enumerating...")
		requiredLayers = []string{validationLayerName}

		available, err := instanceLayerNames()
		if err != nil {
			return err
		}
		for _, required := range requiredLayers {
			core.LogInfo("Searching for layer: %s...", required)
			found := false
			for _, name := range available {
				if name == required {
					found = true
					core.LogInfo("Found.")
					break
				}
			}
			if !found {
				err := fmt.Errorf("%w: required validation layer is missing: %s", core.ErrDeviceObjectCreation, required)
				core.LogError(err.Error())
				return err
			}
		}
		core.LogInfo("All required validation layers are present.")
	}

	createInfo.EnabledLayerCount = uint32(len(requiredLayers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(requiredLayers)

	if res := vk.CreateInstance(&createInfo, vr.context.Allocator, &vr.context.Instance); res != vk.Success {
		return vulkanError(core.ErrDeviceObjectCreation, "failed in creating the Vulkan Instance", res)
	}
	if err := vk.InitInstance(vr.context.Instance); err != nil {
		core.LogError(err.Error())
		return err
	}
	core.LogInfo("Vulkan Instance created.")
	return nil
}

func instanceLayerNames() ([]string, error) {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return nil, vulkanError(core.ErrUnknown, "failed to enumerate instance layers", res)
	}
	layers := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, layers); res != vk.Success {
		return nil, vulkanError(core.ErrUnknown, "failed to enumerate instance layers", res)
	}

	names := make([]string, 0, count)
	for i := range layers {
		layers[i].Deref()
		end := FindFirstZeroInByteArray(layers[i].LayerName[:])
		names = append(names, vk.ToString(layers[i].LayerName[:end+1]))
	}
	return names, nil
}

/**
 * @brief Draws one frame. A framebuffer size change reported through Resized
 * since the previous frame is handed to the orchestrator first.
 */
func (vr *VulkanRenderer) DrawFrame(params FrameParams) error {
	if vr.context.FramebufferSizeGeneration != vr.context.FramebufferSizeLastGeneration {
		vr.orchestrator.Resize(vr.context.FramebufferWidth, vr.context.FramebufferHeight)
		vr.context.FramebufferSizeLastGeneration = vr.context.FramebufferSizeGeneration
	}
	return vr.orchestrator.DrawFrame(params)
}

func (vr *VulkanRenderer) Resized(width, height uint32) {
	vr.context.FramebufferWidth = width
	vr.context.FramebufferHeight = height
	vr.context.FramebufferSizeGeneration++
	core.LogInfo("Vulkan renderer backend->resized: w/h/gen: %d/%d/%d", width, height, vr.context.FramebufferSizeGeneration)
}

func (vr *VulkanRenderer) ReloadComputeShader(code []uint32) error {
	return vr.orchestrator.ReloadComputeShader(code)
}

// SetGraphicsShaders takes effect with the rebuild it schedules.
func (vr *VulkanRenderer) SetGraphicsShaders(shaders GraphicsShaders) {
	vr.orchestrator.SetGraphicsShaders(shaders)
}

func (vr *VulkanRenderer) SetScene(spheres []metadata.Sphere) error {
	return vr.orchestrator.SetScene(spheres)
}

func (vr *VulkanRenderer) SetOverlay(overlay OverlayFunc) {
	vr.orchestrator.SetOverlay(overlay)
}

func (vr *VulkanRenderer) Stats() FrameStats {
	return vr.orchestrator.Stats()
}

func (vr *VulkanRenderer) Shutdown() error {
	// Destroy in the opposite order of creation.
	if vr.orchestrator != nil {
		vr.orchestrator.Destroy()
		vr.orchestrator = nil
	}

	if vr.context.Device.LogicalDevice != nil {
		core.LogDebug("Destroying Vulkan device...")
		DeviceDestroy(vr.context)
	}

	if vr.context.Surface != vk.NullSurface {
		core.LogDebug("Destroying Vulkan surface...")
		vk.DestroySurface(vr.context.Instance, vr.context.Surface, vr.context.Allocator)
		vr.context.Surface = vk.NullSurface
	}

	if vr.context.debugMessenger != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(vr.context.Instance, vr.context.debugMessenger, vr.context.Allocator)
		vr.context.debugMessenger = vk.NullDebugReportCallback
	}

	if vr.context.Instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(vr.context.Instance, vr.context.Allocator)
		vr.context.Instance = nil
	}
	return nil
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportDebugBit) != 0:
		core.LogDebug("DEBUG: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogInfo("INFORMATION: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
