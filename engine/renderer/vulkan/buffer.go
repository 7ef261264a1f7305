package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
)

type VulkanBuffer struct {
	Handle    vk.Buffer
	Size      uint64
	Usage     vk.BufferUsageFlags
	Residency Residency
	Memory    *MemoryAllocation
	isLocked  bool
}

// BufferCreate creates a buffer of size bytes backed by its own allocation.
// memoryFlags are added to the flags implied by residency.
func BufferCreate(context *VulkanContext, size uint64, usage vk.BufferUsageFlags, memoryFlags vk.MemoryPropertyFlags, residency Residency) (*VulkanBuffer, error) {
	if size == 0 {
		err := fmt.Errorf("%w: buffer size must be positive", core.ErrInvalidSize)
		core.LogError(err.Error())
		return nil, err
	}

	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive, // NOTE: Only used in one queue at a time.
	}
	handle, res := context.Driver.CreateBuffer(&bufferInfo)
	if res != vk.Success {
		return nil, vulkanError(core.ErrDeviceObjectCreation, "failed to create buffer", res)
	}

	requirements := context.Driver.BufferMemoryRequirements(handle)
	memory, err := MemoryAllocate(context, requirements, residency.MemoryFlags()|memoryFlags)
	if err != nil {
		context.Driver.DestroyBuffer(handle)
		return nil, err
	}

	if res := context.Driver.BindBufferMemory(handle, memory.Handle, 0); res != vk.Success {
		memory.Free(context)
		context.Driver.DestroyBuffer(handle)
		return nil, vulkanError(core.ErrDeviceObjectCreation, "failed to bind buffer memory", res)
	}

	return &VulkanBuffer{
		Handle:    handle,
		Size:      size,
		Usage:     usage,
		Residency: residency,
		Memory:    memory,
	}, nil
}

func (b *VulkanBuffer) Destroy(context *VulkanContext) {
	if b.isLocked {
		b.Unlock(context)
	}
	if b.Memory != nil {
		b.Memory.Free(context)
		b.Memory = nil
	}
	if b.Handle != vk.NullBuffer {
		context.Driver.DestroyBuffer(b.Handle)
		b.Handle = vk.NullBuffer
	}
	b.Size = 0
}

// Lock maps the whole buffer. Device local buffers cannot be mapped.
func (b *VulkanBuffer) Lock(context *VulkanContext) (unsafe.Pointer, error) {
	if !b.Memory.HostVisible() {
		err := fmt.Errorf("%w: %s buffer cannot be mapped", core.ErrNotHostVisible, b.Residency)
		core.LogError(err.Error())
		return nil, err
	}
	data, res := context.Driver.MapMemory(b.Memory.Handle, 0, vk.DeviceSize(b.Size))
	if res != vk.Success {
		return nil, vulkanError(core.ErrUnknown, "failed to map buffer memory", res)
	}
	b.isLocked = true
	return data, nil
}

func (b *VulkanBuffer) Unlock(context *VulkanContext) {
	if b.isLocked {
		context.Driver.UnmapMemory(b.Memory.Handle)
		b.isLocked = false
	}
}

// LoadData replaces the whole content of a host visible buffer.
func (b *VulkanBuffer) LoadData(context *VulkanContext, data []byte) error {
	if uint64(len(data)) != b.Size {
		err := fmt.Errorf("%w: got %d bytes for a %d byte buffer", core.ErrSizeMismatch, len(data), b.Size)
		core.LogError(err.Error())
		return err
	}
	ptr, err := b.Lock(context)
	if err != nil {
		return err
	}
	vk.Memcopy(ptr, data)
	b.Unlock(context)
	return nil
}

/**
 * @brief Uploads data through a temporary staging buffer and waits for the
 * queue to go idle. Only for load and reload time, never per frame.
 */
func (b *VulkanBuffer) LoadDataStaged(context *VulkanContext, data []byte, queue vk.Queue, pool vk.CommandPool) error {
	if uint64(len(data)) != b.Size {
		err := fmt.Errorf("%w: got %d bytes for a %d byte buffer", core.ErrSizeMismatch, len(data), b.Size)
		core.LogError(err.Error())
		return err
	}

	staging, err := BufferCreate(context, b.Size, vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit), 0, ResidencyCPUOnly)
	if err != nil {
		return err
	}
	defer staging.Destroy(context)

	if err := staging.LoadData(context, data); err != nil {
		return err
	}
	return BufferCopy(context, pool, queue, staging, b, b.Size)
}

// ReadStaged copies the buffer back to the host. Debug readback only.
func (b *VulkanBuffer) ReadStaged(context *VulkanContext, queue vk.Queue, pool vk.CommandPool) ([]byte, error) {
	staging, err := BufferCreate(context, b.Size, vk.BufferUsageFlags(vk.BufferUsageTransferDstBit), 0, ResidencyCPUOnly)
	if err != nil {
		return nil, err
	}
	defer staging.Destroy(context)

	if err := BufferCopy(context, pool, queue, b, staging, b.Size); err != nil {
		return nil, err
	}

	ptr, err := staging.Lock(context)
	if err != nil {
		return nil, err
	}
	out := make([]byte, b.Size)
	copy(out, unsafe.Slice((*byte)(ptr), b.Size))
	staging.Unlock(context)
	return out, nil
}

func (b *VulkanBuffer) DescriptorInfo() vk.DescriptorBufferInfo {
	return vk.DescriptorBufferInfo{
		Buffer: b.Handle,
		Offset: 0,
		Range:  vk.DeviceSize(b.Size),
	}
}

// BufferCopy records and runs a one-shot copy of size bytes from src to dst.
func BufferCopy(context *VulkanContext, pool vk.CommandPool, queue vk.Queue, src, dst *VulkanBuffer, size uint64) error {
	cb, err := AllocateAndBeginSingleUse(context, pool)
	if err != nil {
		return err
	}
	context.Driver.CmdCopyBuffer(cb.Handle, src.Handle, dst.Handle, []vk.BufferCopy{{
		SrcOffset: 0,
		DstOffset: 0,
		Size:      vk.DeviceSize(size),
	}})
	return cb.EndSingleUse(context, queue)
}
