package vulkan

import (
	"fmt"
	"runtime"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
)

/** @brief The jobs a queue is used for. Several roles may resolve to the same family. */
type QueueRole int

const (
	QueueRoleGraphics QueueRole = iota
	QueueRolePresent
	QueueRoleCompute
	QueueRoleTransfer
	QueueRoleCount
)

func (r QueueRole) String() string {
	switch r {
	case QueueRoleGraphics:
		return "graphics"
	case QueueRolePresent:
		return "present"
	case QueueRoleCompute:
		return "compute"
	case QueueRoleTransfer:
		return "transfer"
	}
	return "unknown"
}

type VulkanDevice struct {
	PhysicalDevice   vk.PhysicalDevice
	LogicalDevice    vk.Device
	SwapchainSupport *VulkanSwapchainSupportInfo

	QueueFamilies [QueueRoleCount]uint32
	Queues        [QueueRoleCount]vk.Queue
	// Roles on the same family share a pool.
	CommandPools [QueueRoleCount]vk.CommandPool

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties

	crossQueue bool
}

type VulkanPhysicalDeviceRequirements struct {
	DeviceExtensionNames []string
	DiscreteGPU          bool
}

// AssignQueueFamilies stores the family for every role and evaluates queue aliasing once.
func (d *VulkanDevice) AssignQueueFamilies(families [QueueRoleCount]uint32) {
	d.QueueFamilies = families
	d.crossQueue = families[QueueRoleGraphics] != families[QueueRoleCompute]
}

// CrossQueue reports whether graphics and compute work run on different queue families.
func (d *VulkanDevice) CrossQueue() bool {
	return d.crossQueue
}

// Aliased reports whether two roles resolve to the same family.
func (d *VulkanDevice) Aliased(a, b QueueRole) bool {
	return d.QueueFamilies[a] == d.QueueFamilies[b]
}

func (d *VulkanDevice) Queue(role QueueRole) vk.Queue {
	return d.Queues[role]
}

func (d *VulkanDevice) Family(role QueueRole) uint32 {
	return d.QueueFamilies[role]
}

func (d *VulkanDevice) CommandPool(role QueueRole) vk.CommandPool {
	return d.CommandPools[role]
}

// uniqueFamilies lists each family once, in role order.
func (d *VulkanDevice) uniqueFamilies() []uint32 {
	families := make([]uint32, 0, QueueRoleCount)
	for role := QueueRole(0); role < QueueRoleCount; role++ {
		seen := false
		for _, f := range families {
			if f == d.QueueFamilies[role] {
				seen = true
				break
			}
		}
		if !seen {
			families = append(families, d.QueueFamilies[role])
		}
	}
	return families
}

// CreateCommandPools creates one resettable pool per distinct family.
func (d *VulkanDevice) CreateCommandPools(context *VulkanContext) error {
	pools := make(map[uint32]vk.CommandPool)
	for role := QueueRole(0); role < QueueRoleCount; role++ {
		family := d.QueueFamilies[role]
		if pool, ok := pools[family]; ok {
			d.CommandPools[role] = pool
			continue
		}
		pool, err := CommandPoolCreate(context, family)
		if err != nil {
			d.DestroyCommandPools(context)
			return err
		}
		pools[family] = pool
		d.CommandPools[role] = pool
	}
	core.LogInfo("Command pools created for %d queue families.", len(pools))
	return nil
}

func (d *VulkanDevice) DestroyCommandPools(context *VulkanContext) {
	destroyed := make(map[vk.CommandPool]bool)
	for role := QueueRole(0); role < QueueRoleCount; role++ {
		pool := d.CommandPools[role]
		if pool == vk.NullCommandPool || destroyed[pool] {
			d.CommandPools[role] = vk.NullCommandPool
			continue
		}
		context.Driver.DestroyCommandPool(pool)
		destroyed[pool] = true
		d.CommandPools[role] = vk.NullCommandPool
	}
}

// FormatSupportsStorageImage reports whether optimally tiled images of format can be bound as storage images.
func FormatSupportsStorageImage(context *VulkanContext, format vk.Format) bool {
	props := context.Driver.FormatProperties(format)
	return props.OptimalTilingFeatures&vk.FormatFeatureFlags(vk.FormatFeatureStorageImageBit) != 0
}

// FamilySupportsPresent asks the surface whether family can present to it.
func FamilySupportsPresent(physical vk.PhysicalDevice, surface vk.Surface, family uint32) bool {
	var supportsPresent vk.Bool32 = vk.False
	if res := vk.GetPhysicalDeviceSurfaceSupport(physical, family, surface, &supportsPresent); res != vk.Success {
		return false
	}
	return supportsPresent == vk.True
}

/**
 * @brief Selects a physical device, creates the logical device with one queue per
 * distinct family, fetches the four role queues and installs the native driver
 * on the context.
 */
func DeviceCreate(context *VulkanContext, enableValidation bool) error {
	if context.Device == nil {
		context.Device = &VulkanDevice{}
	}
	if err := SelectPhysicalDevice(context); err != nil {
		return err
	}
	device := context.Device

	core.LogInfo("Creating logical device...")

	families := device.uniqueFamilies()
	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(families))
	for i, family := range families {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	// Anisotropy is left off, the sampler never uses it.
	deviceFeatures := vk.PhysicalDeviceFeatures{}

	extensionNames := []string{vk.KhrSwapchainExtensionName}
	available, err := deviceExtensionNames(device.PhysicalDevice)
	if err != nil {
		return err
	}
	for _, name := range available {
		if name == "VK_KHR_portability_subset" {
			core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
			extensionNames = append(extensionNames, name)
			break
		}
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}
	if enableValidation {
		// Deprecated for devices, still honored by older loaders.
		deviceCreateInfo.EnabledLayerCount = 1
		deviceCreateInfo.PpEnabledLayerNames = VulkanSafeStrings([]string{validationLayerName})
	}

	var logical vk.Device
	if res := vk.CreateDevice(device.PhysicalDevice, &deviceCreateInfo, context.Allocator, &logical); res != vk.Success {
		return vulkanError(core.ErrDeviceObjectCreation, "failed to create logical device", res)
	}
	device.LogicalDevice = logical
	core.LogInfo("Logical device created.")

	for role := QueueRole(0); role < QueueRoleCount; role++ {
		var queue vk.Queue
		vk.GetDeviceQueue(device.LogicalDevice, device.QueueFamilies[role], 0, &queue)
		device.Queues[role] = queue
	}
	core.LogInfo("Queues obtained (cross queue: %t).", device.CrossQueue())

	context.Driver = NewDriver(device.PhysicalDevice, device.LogicalDevice, context.Allocator)

	return device.CreateCommandPools(context)
}

func DeviceDestroy(context *VulkanContext) {
	device := context.Device
	if device == nil {
		return
	}

	for role := range device.Queues {
		device.Queues[role] = nil
	}

	core.LogInfo("Destroying command pools...")
	if context.Driver != nil {
		device.DestroyCommandPools(context)
	}

	core.LogInfo("Destroying logical device...")
	if device.LogicalDevice != nil {
		vk.DestroyDevice(device.LogicalDevice, context.Allocator)
		device.LogicalDevice = nil
	}

	// Physical devices are not destroyed.
	core.LogInfo("Releasing physical device resources...")
	device.PhysicalDevice = nil
	device.SwapchainSupport = nil
}

// DeviceQuerySwapchainSupport fills supportInfo with the surface capabilities, formats and present modes.
func DeviceQuerySwapchainSupport(physicalDevice vk.PhysicalDevice, surface vk.Surface, supportInfo *VulkanSwapchainSupportInfo) vk.Result {
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(physicalDevice, surface, &supportInfo.Capabilities); res != vk.Success {
		return res
	}
	supportInfo.Capabilities.Deref()
	supportInfo.Capabilities.CurrentExtent.Deref()
	supportInfo.Capabilities.MinImageExtent.Deref()
	supportInfo.Capabilities.MaxImageExtent.Deref()

	if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &supportInfo.FormatCount, nil); res != vk.Success {
		return res
	}
	if supportInfo.FormatCount != 0 {
		supportInfo.Formats = make([]vk.SurfaceFormat, supportInfo.FormatCount)
		if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &supportInfo.FormatCount, supportInfo.Formats); res != vk.Success {
			return res
		}
		for i := range supportInfo.Formats {
			supportInfo.Formats[i].Deref()
		}
	}

	if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &supportInfo.PresentModeCount, nil); res != vk.Success {
		return res
	}
	if supportInfo.PresentModeCount != 0 {
		supportInfo.PresentModes = make([]vk.PresentMode, supportInfo.PresentModeCount)
		if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &supportInfo.PresentModeCount, supportInfo.PresentModes); res != vk.Success {
			return res
		}
	}
	return vk.Success
}

func SelectPhysicalDevice(context *VulkanContext) error {
	var physicalDeviceCount uint32
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, nil); res != vk.Success {
		return vulkanError(core.ErrDeviceObjectCreation, "failed to enumerate physical devices", res)
	}
	if physicalDeviceCount == 0 {
		err := fmt.Errorf("%w: no devices which support Vulkan were found", core.ErrDeviceObjectCreation)
		core.LogError(err.Error())
		return err
	}

	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, physicalDevices); res != vk.Success {
		return vulkanError(core.ErrDeviceObjectCreation, "failed to enumerate physical devices", res)
	}

	requirements := VulkanPhysicalDeviceRequirements{
		DiscreteGPU:          true,
		DeviceExtensionNames: []string{vk.KhrSwapchainExtensionName},
	}
	if runtime.GOOS == "darwin" {
		requirements.DiscreteGPU = false
	}

	// A second pass accepts integrated GPUs when no discrete one qualifies.
	for pass := 0; pass < 2; pass++ {
		for _, physical := range physicalDevices {
			var properties vk.PhysicalDeviceProperties
			vk.GetPhysicalDeviceProperties(physical, &properties)
			properties.Deref()

			var features vk.PhysicalDeviceFeatures
			vk.GetPhysicalDeviceFeatures(physical, &features)
			features.Deref()

			var memory vk.PhysicalDeviceMemoryProperties
			vk.GetPhysicalDeviceMemoryProperties(physical, &memory)
			memory.Deref()

			families, support, ok := PhysicalDeviceMeetsRequirements(physical, context.Surface, &properties, &requirements)
			if !ok {
				continue
			}

			logDeviceInfo(&properties, &memory)

			context.Device.PhysicalDevice = physical
			context.Device.AssignQueueFamilies(families)
			context.Device.SwapchainSupport = support
			context.Device.Properties = properties
			context.Device.Features = features
			context.Device.Memory = memory
			core.LogInfo("Physical device selected.")
			return nil
		}
		if !requirements.DiscreteGPU {
			break
		}
		core.LogWarn("No discrete GPU meets the requirements, trying the others.")
		requirements.DiscreteGPU = false
	}

	err := fmt.Errorf("%w: no physical devices were found which meet the requirements", core.ErrDeviceObjectCreation)
	core.LogError(err.Error())
	return err
}

func logDeviceInfo(properties *vk.PhysicalDeviceProperties, memory *vk.PhysicalDeviceMemoryProperties) {
	core.LogInfo("Selected device: '%s'.", vk.ToString(properties.DeviceName[:]))
	switch properties.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		core.LogInfo("GPU type is Integrated.")
	case vk.PhysicalDeviceTypeDiscreteGpu:
		core.LogInfo("GPU type is Discrete.")
	case vk.PhysicalDeviceTypeVirtualGpu:
		core.LogInfo("GPU type is Virtual.")
	case vk.PhysicalDeviceTypeCpu:
		core.LogInfo("GPU type is CPU.")
	default:
		core.LogInfo("GPU type is Unknown.")
	}

	core.LogInfo(
		"GPU Driver version: %d.%d.%d",
		vk.Version(properties.DriverVersion).Major(),
		vk.Version(properties.DriverVersion).Minor(),
		vk.Version(properties.DriverVersion).Patch(),
	)
	core.LogInfo(
		"Vulkan API version: %d.%d.%d",
		vk.Version(properties.ApiVersion).Major(),
		vk.Version(properties.ApiVersion).Minor(),
		vk.Version(properties.ApiVersion).Patch(),
	)

	for j := 0; j < int(memory.MemoryHeapCount); j++ {
		memory.MemoryHeaps[j].Deref()
		memorySizeGib := float64(memory.MemoryHeaps[j].Size) / 1024.0 / 1024.0 / 1024.0
		if vk.MemoryHeapFlagBits(memory.MemoryHeaps[j].Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogInfo("Local GPU memory: %.2f GiB", memorySizeGib)
		} else {
			core.LogInfo("Shared System memory: %.2f GiB", memorySizeGib)
		}
	}
}

// queueFamilyCandidate holds what a single family offers.
type queueFamilyCandidate struct {
	graphics bool
	compute  bool
	transfer bool
	present  bool
}

/**
 * @brief resolveQueueFamilies picks a family for each queue role. Graphics takes the first graphics
 * family; present prefers the graphics family; compute prefers a family without
 * graphics; transfer prefers the family with the fewest other capabilities.
 * Returns false when any role stays unresolved.
 */
func resolveQueueFamilies(candidates []queueFamilyCandidate) ([QueueRoleCount]uint32, bool) {
	var families [QueueRoleCount]uint32
	var found [QueueRoleCount]bool

	for i, c := range candidates {
		if c.graphics && !found[QueueRoleGraphics] {
			families[QueueRoleGraphics] = uint32(i)
			found[QueueRoleGraphics] = true
		}
	}

	if found[QueueRoleGraphics] && candidates[families[QueueRoleGraphics]].present {
		families[QueueRolePresent] = families[QueueRoleGraphics]
		found[QueueRolePresent] = true
	}
	for i, c := range candidates {
		if c.present && !found[QueueRolePresent] {
			families[QueueRolePresent] = uint32(i)
			found[QueueRolePresent] = true
		}
	}

	for i, c := range candidates {
		if c.compute && !c.graphics {
			families[QueueRoleCompute] = uint32(i)
			found[QueueRoleCompute] = true
			break
		}
	}
	if !found[QueueRoleCompute] && found[QueueRoleGraphics] && candidates[families[QueueRoleGraphics]].compute {
		families[QueueRoleCompute] = families[QueueRoleGraphics]
		found[QueueRoleCompute] = true
	}

	minTransferScore := 255
	for i, c := range candidates {
		if !c.transfer && !c.graphics && !c.compute {
			continue
		}
		// Graphics and compute families accept transfer work implicitly.
		score := 0
		if c.graphics {
			score++
		}
		if c.compute {
			score++
		}
		if score < minTransferScore {
			minTransferScore = score
			families[QueueRoleTransfer] = uint32(i)
			found[QueueRoleTransfer] = true
		}
	}

	for _, ok := range found {
		if !ok {
			return families, false
		}
	}
	return families, true
}

func PhysicalDeviceMeetsRequirements(device vk.PhysicalDevice, surface vk.Surface, properties *vk.PhysicalDeviceProperties, requirements *VulkanPhysicalDeviceRequirements) ([QueueRoleCount]uint32, *VulkanSwapchainSupportInfo, bool) {
	var families [QueueRoleCount]uint32
	name := vk.ToString(properties.DeviceName[:])

	if requirements.DiscreteGPU && properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
		core.LogInfo("Device '%s' is not a discrete GPU, and one is required. Skipping.", name)
		return families, nil, false
	}

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queueFamilies)

	candidates := make([]queueFamilyCandidate, queueFamilyCount)
	core.LogInfo("Graphics | Present | Compute | Transfer | Family")
	for i := range queueFamilies {
		queueFamilies[i].Deref()
		flags := queueFamilies[i].QueueFlags
		candidates[i] = queueFamilyCandidate{
			graphics: flags&vk.QueueFlags(vk.QueueGraphicsBit) != 0,
			compute:  flags&vk.QueueFlags(vk.QueueComputeBit) != 0,
			transfer: flags&vk.QueueFlags(vk.QueueTransferBit) != 0,
			present:  FamilySupportsPresent(device, surface, uint32(i)),
		}
		c := candidates[i]
		core.LogInfo("   %5t |   %5t |   %5t |    %5t | %d", c.graphics, c.present, c.compute, c.transfer, i)
	}

	families, ok := resolveQueueFamilies(candidates)
	if !ok {
		core.LogInfo("Device '%s' does not expose every queue role, skipping.", name)
		return families, nil, false
	}
	for role := QueueRole(0); role < QueueRoleCount; role++ {
		core.LogDebug("%s family index: %d", role, families[role])
	}

	support := &VulkanSwapchainSupportInfo{}
	if res := DeviceQuerySwapchainSupport(device, surface, support); res != vk.Success {
		core.LogInfo("Swapchain support query failed (%s), skipping device.", VulkanResultString(res, false))
		return families, nil, false
	}
	if support.FormatCount < 1 || support.PresentModeCount < 1 {
		core.LogInfo("Required swapchain support not present, skipping device.")
		return families, nil, false
	}

	if len(requirements.DeviceExtensionNames) > 0 {
		available, err := deviceExtensionNames(device)
		if err != nil {
			return families, nil, false
		}
		for _, required := range requirements.DeviceExtensionNames {
			found := false
			for _, name := range available {
				if name == required {
					found = true
					break
				}
			}
			if !found {
				core.LogInfo("Required extension not found: '%s', skipping device.", required)
				return families, nil, false
			}
		}
	}

	return families, support, true
}

func deviceExtensionNames(device vk.PhysicalDevice) ([]string, error) {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, nil); res != vk.Success {
		return nil, vulkanError(core.ErrUnknown, "failed to enumerate device extensions", res)
	}
	if count == 0 {
		return nil, nil
	}
	properties := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, properties); res != vk.Success {
		return nil, vulkanError(core.ErrUnknown, "failed to enumerate device extensions", res)
	}
	names := make([]string, 0, count)
	for i := range properties {
		properties[i].Deref()
		names = append(names, vk.ToString(properties[i].ExtensionName[:]))
	}
	return names, nil
}
