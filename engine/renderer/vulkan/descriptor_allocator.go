package vulkan

import (
	"fmt"
	"sort"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
)

type PoolSizeWeight struct {
	Type   vk.DescriptorType
	Weight float32
}

/**
 * @brief Sizing of every descriptor pool the allocator creates: each descriptor
 * type gets Weight * MaxSets descriptors.
 */
type DescriptorPoolPolicy struct {
	MaxSets uint32
	Sizes   []PoolSizeWeight
}

var descriptorTypeNames = map[string]vk.DescriptorType{
	"sampler":                vk.DescriptorTypeSampler,
	"combined_image_sampler": vk.DescriptorTypeCombinedImageSampler,
	"sampled_image":          vk.DescriptorTypeSampledImage,
	"storage_image":          vk.DescriptorTypeStorageImage,
	"uniform_texel_buffer":   vk.DescriptorTypeUniformTexelBuffer,
	"storage_texel_buffer":   vk.DescriptorTypeStorageTexelBuffer,
	"uniform_buffer":         vk.DescriptorTypeUniformBuffer,
	"storage_buffer":         vk.DescriptorTypeStorageBuffer,
	"uniform_buffer_dynamic": vk.DescriptorTypeUniformBufferDynamic,
	"storage_buffer_dynamic": vk.DescriptorTypeStorageBufferDynamic,
	"input_attachment":       vk.DescriptorTypeInputAttachment,
}

func DefaultDescriptorPoolPolicy() DescriptorPoolPolicy {
	return DescriptorPoolPolicy{
		MaxSets: 1000,
		Sizes: []PoolSizeWeight{
			{vk.DescriptorTypeSampler, 0.5},
			{vk.DescriptorTypeCombinedImageSampler, 4},
			{vk.DescriptorTypeSampledImage, 4},
			{vk.DescriptorTypeStorageImage, 1},
			{vk.DescriptorTypeUniformTexelBuffer, 1},
			{vk.DescriptorTypeStorageTexelBuffer, 1},
			{vk.DescriptorTypeUniformBuffer, 2},
			{vk.DescriptorTypeStorageBuffer, 2},
			{vk.DescriptorTypeUniformBufferDynamic, 1},
			{vk.DescriptorTypeStorageBufferDynamic, 1},
			{vk.DescriptorTypeInputAttachment, 0.5},
		},
	}
}

// DescriptorPoolPolicyFromWeights builds a policy from snake_case descriptor type names,
// as written in the configuration file.
func DescriptorPoolPolicyFromWeights(maxSets uint32, weights map[string]float32) (DescriptorPoolPolicy, error) {
	if maxSets == 0 {
		return DescriptorPoolPolicy{}, fmt.Errorf("%w: descriptor pool max_sets must be positive", core.ErrInvalidSize)
	}
	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Strings(names)

	policy := DescriptorPoolPolicy{MaxSets: maxSets}
	for _, name := range names {
		t, ok := descriptorTypeNames[name]
		if !ok {
			return DescriptorPoolPolicy{}, fmt.Errorf("unknown descriptor type `%s` in pool policy", name)
		}
		if weights[name] <= 0 {
			return DescriptorPoolPolicy{}, fmt.Errorf("%w: weight for `%s` must be positive", core.ErrInvalidSize, name)
		}
		policy.Sizes = append(policy.Sizes, PoolSizeWeight{Type: t, Weight: weights[name]})
	}
	return policy, nil
}

func (p DescriptorPoolPolicy) poolSizes() []vk.DescriptorPoolSize {
	sizes := make([]vk.DescriptorPoolSize, 0, len(p.Sizes))
	for _, s := range p.Sizes {
		count := uint32(s.Weight * float32(p.MaxSets))
		if count == 0 {
			count = 1
		}
		sizes = append(sizes, vk.DescriptorPoolSize{
			Type:            s.Type,
			DescriptorCount: count,
		})
	}
	return sizes
}

type DescriptorAllocatorStats struct {
	PoolsCreated uint32
	Retries      uint32
	Allocations  uint64
}

/**
 * @brief Hands out descriptor sets from a growing list of pools. A pool that
 * reports exhaustion is retired and exactly one retry is made on a fresh pool.
 * Reset recycles every pool at once; sets are never freed individually.
 */
type DescriptorAllocator struct {
	context     *VulkanContext
	policy      DescriptorPoolPolicy
	currentPool vk.DescriptorPool
	usedPools   []vk.DescriptorPool
	freePools   []vk.DescriptorPool
	stats       DescriptorAllocatorStats
}

func NewDescriptorAllocator(context *VulkanContext, policy DescriptorPoolPolicy) *DescriptorAllocator {
	return &DescriptorAllocator{
		context:     context,
		policy:      policy,
		currentPool: nil,
	}
}

func (da *DescriptorAllocator) Allocate(layout vk.DescriptorSetLayout) (vk.DescriptorSet, error) {
	var set vk.DescriptorSet
	err := da.context.locks.SafeCall(DescriptorManagement, func() error {
		var err error
		set, err = da.allocate(layout)
		return err
	})
	return set, err
}

func (da *DescriptorAllocator) allocate(layout vk.DescriptorSetLayout) (vk.DescriptorSet, error) {
	if da.currentPool == nil {
		if err := da.nextPool(); err != nil {
			return nil, err
		}
	}

	set, res := da.context.Driver.AllocateDescriptorSet(da.currentPool, layout)
	switch res {
	case vk.Success:
		da.stats.Allocations++
		return set, nil
	case vk.ErrorFragmentedPool, vk.ErrorOutOfPoolMemory:
		// retire the exhausted pool, retry once below
	default:
		return nil, vulkanError(core.ErrDescriptorAllocation, "failed to allocate descriptor set", res)
	}

	da.stats.Retries++
	core.LogDebug("descriptor pool exhausted (%s), retrying on a fresh pool", VulkanResultString(res, false))
	if err := da.nextPool(); err != nil {
		return nil, err
	}
	set, res = da.context.Driver.AllocateDescriptorSet(da.currentPool, layout)
	if res != vk.Success {
		return nil, vulkanError(core.ErrDescriptorAllocation, "descriptor set allocation failed after retry", res)
	}
	da.stats.Allocations++
	return set, nil
}

// Reset returns every pool handed out since the last reset to the free list.
// All sets allocated from them become invalid. On failure the pools reset so
// far are free and the rest stay in use, so each pool is on exactly one list.
func (da *DescriptorAllocator) Reset() error {
	return da.context.locks.SafeCall(DescriptorManagement, func() error {
		da.currentPool = nil
		for i, pool := range da.usedPools {
			if res := da.context.Driver.ResetDescriptorPool(pool); res != vk.Success {
				da.usedPools = append(da.usedPools[:0], da.usedPools[i:]...)
				return vulkanError(core.ErrUnknown, "failed to reset descriptor pool", res)
			}
			da.freePools = append(da.freePools, pool)
		}
		da.usedPools = da.usedPools[:0]
		return nil
	})
}

func (da *DescriptorAllocator) Destroy() {
	for _, pool := range da.freePools {
		da.context.Driver.DestroyDescriptorPool(pool)
	}
	for _, pool := range da.usedPools {
		da.context.Driver.DestroyDescriptorPool(pool)
	}
	da.freePools = nil
	da.usedPools = nil
	da.currentPool = nil
}

func (da *DescriptorAllocator) Stats() DescriptorAllocatorStats {
	return da.stats
}

// nextPool makes a recycled or new pool current and marks it used.
func (da *DescriptorAllocator) nextPool() error {
	var pool vk.DescriptorPool
	if n := len(da.freePools); n > 0 {
		pool = da.freePools[n-1]
		da.freePools = da.freePools[:n-1]
	} else {
		sizes := da.policy.poolSizes()
		poolInfo := vk.DescriptorPoolCreateInfo{
			SType:         vk.StructureTypeDescriptorPoolCreateInfo,
			MaxSets:       da.policy.MaxSets,
			PoolSizeCount: uint32(len(sizes)),
			PPoolSizes:    sizes,
		}
		created, res := da.context.Driver.CreateDescriptorPool(&poolInfo)
		if res != vk.Success {
			return vulkanError(core.ErrDescriptorAllocation, "failed to create descriptor pool", res)
		}
		da.stats.PoolsCreated++
		pool = created
	}
	da.currentPool = pool
	da.usedPools = append(da.usedPools, pool)
	return nil
}
