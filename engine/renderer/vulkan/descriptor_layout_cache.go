package vulkan

import (
	"fmt"
	"sort"
	"strings"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
)

/**
 * @brief Deduplicates descriptor set layouts by their bindings. Two requests whose
 * bindings are permutations of each other resolve to the same native layout.
 * Layouts live until Destroy, which is called once at device teardown.
 */
type LayoutCache struct {
	context *VulkanContext
	layouts map[string]vk.DescriptorSetLayout
}

func NewLayoutCache(context *VulkanContext) *LayoutCache {
	return &LayoutCache{
		context: context,
		layouts: make(map[string]vk.DescriptorSetLayout),
	}
}

// GetOrCreate returns the cached layout for bindings, creating it on first use.
func (lc *LayoutCache) GetOrCreate(bindings []vk.DescriptorSetLayoutBinding) (vk.DescriptorSetLayout, error) {
	normalized := normalizeBindings(bindings)
	key := layoutKey(normalized)

	if layout, ok := lc.layouts[key]; ok {
		return layout, nil
	}

	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(normalized)),
		PBindings:    normalized,
	}
	layout, res := lc.context.Driver.CreateDescriptorSetLayout(&createInfo)
	if res != vk.Success {
		return nil, vulkanError(core.ErrDeviceObjectCreation, "failed to create descriptor set layout", res)
	}
	lc.layouts[key] = layout
	core.LogDebug("descriptor set layout cached (%d bindings, %d total)", len(normalized), len(lc.layouts))
	return layout, nil
}

func (lc *LayoutCache) Len() int {
	return len(lc.layouts)
}

func (lc *LayoutCache) Destroy() {
	for key, layout := range lc.layouts {
		lc.context.Driver.DestroyDescriptorSetLayout(layout)
		delete(lc.layouts, key)
	}
}

// normalizeBindings returns a copy sorted by binding index.
func normalizeBindings(bindings []vk.DescriptorSetLayoutBinding) []vk.DescriptorSetLayoutBinding {
	normalized := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	copy(normalized, bindings)
	sort.SliceStable(normalized, func(i, j int) bool {
		return normalized[i].Binding < normalized[j].Binding
	})
	return normalized
}

func layoutKey(sorted []vk.DescriptorSetLayoutBinding) string {
	var sb strings.Builder
	for _, b := range sorted {
		fmt.Fprintf(&sb, "%d:%d:%d:%d;", b.Binding, b.DescriptorType, b.DescriptorCount, b.StageFlags)
	}
	return sb.String()
}
