package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
)

/**
 * @brief Accumulates bindings and writes for one descriptor set, then resolves
 * the layout, allocates the set and updates it in a single batch.
 */
type DescriptorBuilder struct {
	context   *VulkanContext
	cache     *LayoutCache
	allocator *DescriptorAllocator

	bindings []vk.DescriptorSetLayoutBinding
	writes   []vk.WriteDescriptorSet
}

func NewDescriptorBuilder(context *VulkanContext, cache *LayoutCache, allocator *DescriptorAllocator) *DescriptorBuilder {
	return &DescriptorBuilder{
		context:   context,
		cache:     cache,
		allocator: allocator,
	}
}

func (db *DescriptorBuilder) Begin() *DescriptorBuilder {
	db.bindings = db.bindings[:0]
	db.writes = db.writes[:0]
	return db
}

func (db *DescriptorBuilder) BindBuffer(binding uint32, info vk.DescriptorBufferInfo, descriptorType vk.DescriptorType, stages vk.ShaderStageFlags) *DescriptorBuilder {
	db.bind(binding, descriptorType, stages)
	db.writes = append(db.writes, vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstBinding:      binding,
		DescriptorCount: 1,
		DescriptorType:  descriptorType,
		PBufferInfo:     []vk.DescriptorBufferInfo{info},
	})
	return db
}

func (db *DescriptorBuilder) BindImage(binding uint32, info vk.DescriptorImageInfo, descriptorType vk.DescriptorType, stages vk.ShaderStageFlags) *DescriptorBuilder {
	db.bind(binding, descriptorType, stages)
	db.writes = append(db.writes, vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstBinding:      binding,
		DescriptorCount: 1,
		DescriptorType:  descriptorType,
		PImageInfo:      []vk.DescriptorImageInfo{info},
	})
	return db
}

func (db *DescriptorBuilder) bind(binding uint32, descriptorType vk.DescriptorType, stages vk.ShaderStageFlags) {
	db.bindings = append(db.bindings, vk.DescriptorSetLayoutBinding{
		Binding:         binding,
		DescriptorType:  descriptorType,
		DescriptorCount: 1,
		StageFlags:      stages,
	})
}

// End consumes the accumulated bindings. On error nothing is updated and no set is returned.
func (db *DescriptorBuilder) End() (vk.DescriptorSet, vk.DescriptorSetLayout, error) {
	bindings, writes := db.bindings, db.writes
	db.bindings, db.writes = nil, nil

	if len(bindings) == 0 {
		err := fmt.Errorf("%w: End called without bindings", core.ErrBuilderEmpty)
		core.LogError(err.Error())
		return nil, nil, err
	}

	layout, err := db.cache.GetOrCreate(bindings)
	if err != nil {
		return nil, nil, err
	}

	set, err := db.allocator.Allocate(layout)
	if err != nil {
		return nil, nil, err
	}

	for i := range writes {
		writes[i].DstSet = set
	}
	db.context.Driver.UpdateDescriptorSets(writes)

	return set, layout, nil
}
