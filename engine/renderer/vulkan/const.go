package vulkan

import (
	"time"

	vk "github.com/goki/vulkan"
)

/** @brief Local size of the ray tracing compute shader in x and y. */
const ComputeWorkgroupSize uint32 = 16

/** @brief Default upper bound for a single fence wait. */
const DefaultFenceTimeout = 5 * time.Second

/** @brief Consecutive failed presents tolerated before the frame loop gives up. */
const DefaultMaxPresentFailures = 8

/** @brief Format of the accumulation image the compute pass writes and the graphics pass samples. */
const StorageImageFormat = vk.FormatR8g8b8a8Unorm

/** @brief Format used for textures decoded from image files. */
const SampledImageFormat = vk.FormatR8g8b8a8Srgb

/** @brief Descriptor set indices used by the ray tracing pipeline. */
const (
	ComputeSetStorageImage uint32 = iota
	ComputeSetUniforms
	ComputeSetScene
	computeSetCount
)
