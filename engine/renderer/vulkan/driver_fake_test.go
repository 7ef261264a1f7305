package vulkan

import (
	"fmt"
	"testing"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/require"
)

// fakeCommand is one recorded command. Only the fields of its kind are set.
type fakeCommand struct {
	kind     string
	srcStage vk.PipelineStageFlags
	dstStage vk.PipelineStageFlags
	images   []vk.ImageMemoryBarrier
	src, dst vk.Buffer
	image    vk.Image
	layout   vk.ImageLayout
	copies   []vk.BufferCopy
	sets     []vk.DescriptorSet
	groups   [3]uint32
	vertices uint32
	viewport vk.Viewport
}

type fakeSubmit struct {
	queue   vk.Queue
	waits   []vk.Semaphore
	stages  []vk.PipelineStageFlags
	signals []vk.Semaphore
	buffers []vk.CommandBuffer
	fence   vk.Fence
}

type fakeFence struct {
	signaled bool
	pending  bool
}

type fakePool struct {
	maxSets   uint32
	allocated uint32
}

type fakeImage struct {
	width, height uint32
	format        vk.Format
	memory        vk.DeviceMemory
}

/**
 * @brief In-memory Driver. Buffer and image copies execute at submit time,
 * fences complete when waited on or when a queue or the device goes idle, and
 * every misuse of the synchronization objects is recorded as a violation.
 */
type fakeDriver struct {
	live map[unsafe.Pointer]string

	memory       map[vk.DeviceMemory][]byte
	bufferSize   map[vk.Buffer]uint64
	bufferMemory map[vk.Buffer]vk.DeviceMemory
	images       map[vk.Image]*fakeImage

	fences     map[vk.Fence]*fakeFence
	semaphores map[vk.Semaphore]bool

	commands     map[vk.CommandBuffer][]fakeCommand
	commandPool  map[vk.CommandBuffer]vk.CommandPool
	lastFence    map[vk.CommandBuffer]vk.Fence
	begins       []vk.CommandBuffer
	descPools    map[vk.DescriptorPool]*fakePool
	validSets    map[vk.DescriptorSet]vk.DescriptorPool
	submits      []fakeSubmit
	violations   []string
	noStorage    map[vk.Format]bool
	swapchainLen uint32

	// Surface and swapchain behavior.
	extent         vk.Extent2D
	imageCount     uint32
	nextImage      uint32
	acquireResults []vk.Result
	presentResults []vk.Result

	// Forced descriptor allocation failures, consumed one per call.
	failAllocations int
	// Results of ResetDescriptorPool, consumed one per call.
	resetResults []vk.Result
	// CodeSize of every shader module create request.
	shaderCodeSizes []uint64

	layoutsCreated int
	updateCalls    int
	writesUpdated  int
	allocCalls     int
	poolResets     int
	dispatches     int
	draws          int
	presents       int
	waitIdles      int
	swapchains     int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		live:         make(map[unsafe.Pointer]string),
		memory:       make(map[vk.DeviceMemory][]byte),
		bufferSize:   make(map[vk.Buffer]uint64),
		bufferMemory: make(map[vk.Buffer]vk.DeviceMemory),
		images:       make(map[vk.Image]*fakeImage),
		fences:       make(map[vk.Fence]*fakeFence),
		semaphores:   make(map[vk.Semaphore]bool),
		commands:     make(map[vk.CommandBuffer][]fakeCommand),
		commandPool:  make(map[vk.CommandBuffer]vk.CommandPool),
		lastFence:    make(map[vk.CommandBuffer]vk.Fence),
		descPools:    make(map[vk.DescriptorPool]*fakePool),
		validSets:    make(map[vk.DescriptorSet]vk.DescriptorPool),
		noStorage:    make(map[vk.Format]bool),
		extent:       vk.Extent2D{Width: 800, Height: 608},
		imageCount:   3,
	}
}

// handleArena backs fake handles. goki handle types point to C structs, so the
// addresses must stay outside the Go heap.
var (
	handleArena [1 << 18]uint64
	handleNext  int
)

// fakeHandle returns an address no other fake handle shares. Handles compare
// by address only: use == rather than assert.Equal, which compares the pointees.
func fakeHandle() unsafe.Pointer {
	if handleNext == len(handleArena) {
		panic("fake handle arena exhausted")
	}
	p := unsafe.Pointer(&handleArena[handleNext])
	handleNext++
	return p
}

// sameHandles reports whether two handle slices hold the same handles in order.
func sameHandles[T comparable](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (d *fakeDriver) create(kind string) unsafe.Pointer {
	p := fakeHandle()
	d.live[p] = kind
	return p
}

func (d *fakeDriver) destroy(p unsafe.Pointer, kind string) {
	if p == nil {
		return
	}
	if got, ok := d.live[p]; !ok || got != kind {
		d.violate("destroy of unknown %s", kind)
		return
	}
	delete(d.live, p)
}

func (d *fakeDriver) violate(format string, args ...interface{}) {
	d.violations = append(d.violations, fmt.Sprintf(format, args...))
}

func (d *fakeDriver) liveCount(kind string) int {
	n := 0
	for _, k := range d.live {
		if k == kind {
			n++
		}
	}
	return n
}

func (d *fakeDriver) leaks() map[string]int {
	out := make(map[string]int)
	for _, k := range d.live {
		out[k]++
	}
	return out
}

func (d *fakeDriver) completeAll() {
	for _, f := range d.fences {
		if f.pending {
			f.pending = false
			f.signaled = true
		}
	}
}

func (d *fakeDriver) record(cb vk.CommandBuffer, c fakeCommand) {
	d.commands[cb] = append(d.commands[cb], c)
}

func (d *fakeDriver) commandsOf(cb vk.CommandBuffer, kind string) []fakeCommand {
	var out []fakeCommand
	for _, c := range d.commands[cb] {
		if c.kind == kind {
			out = append(out, c)
		}
	}
	return out
}

func (d *fakeDriver) submitsTo(queue vk.Queue) []fakeSubmit {
	var out []fakeSubmit
	for _, s := range d.submits {
		if s.queue == queue {
			out = append(out, s)
		}
	}
	return out
}

func (d *fakeDriver) bufferBytes(buffer vk.Buffer) []byte {
	return d.memory[d.bufferMemory[buffer]][:d.bufferSize[buffer]]
}

func (d *fakeDriver) imageBytes(image vk.Image) []byte {
	img := d.images[image]
	return d.memory[img.memory][:img.width*img.height*TexelSize(img.format)]
}

func (d *fakeDriver) DeviceWaitIdle() vk.Result {
	d.waitIdles++
	d.completeAll()
	return vk.Success
}

func (d *fakeDriver) CreateSemaphore() (vk.Semaphore, vk.Result) {
	s := vk.Semaphore(d.create("semaphore"))
	d.semaphores[s] = false
	return s, vk.Success
}

func (d *fakeDriver) DestroySemaphore(semaphore vk.Semaphore) {
	d.destroy(unsafe.Pointer(semaphore), "semaphore")
	delete(d.semaphores, semaphore)
}

func (d *fakeDriver) CreateFence(signaled bool) (vk.Fence, vk.Result) {
	f := vk.Fence(d.create("fence"))
	d.fences[f] = &fakeFence{signaled: signaled}
	return f, vk.Success
}

func (d *fakeDriver) DestroyFence(fence vk.Fence) {
	if f, ok := d.fences[fence]; ok && f.pending {
		d.violate("destroy of a pending fence")
	}
	d.destroy(unsafe.Pointer(fence), "fence")
	delete(d.fences, fence)
}

func (d *fakeDriver) WaitForFences(fences []vk.Fence, timeoutNs uint64) vk.Result {
	for _, fence := range fences {
		f := d.fences[fence]
		if f == nil {
			d.violate("wait on unknown fence")
			return vk.ErrorDeviceLost
		}
		if f.pending {
			f.pending = false
			f.signaled = true
		}
		if !f.signaled {
			return vk.Timeout
		}
	}
	return vk.Success
}

func (d *fakeDriver) ResetFences(fences []vk.Fence) vk.Result {
	for _, fence := range fences {
		f := d.fences[fence]
		if f.pending {
			d.violate("reset of a pending fence")
		}
		f.signaled = false
	}
	return vk.Success
}

func (d *fakeDriver) CreateCommandPool(info *vk.CommandPoolCreateInfo) (vk.CommandPool, vk.Result) {
	return vk.CommandPool(d.create("command pool")), vk.Success
}

func (d *fakeDriver) DestroyCommandPool(pool vk.CommandPool) {
	for cb, p := range d.commandPool {
		if p == pool {
			delete(d.live, unsafe.Pointer(cb))
			delete(d.commandPool, cb)
		}
	}
	d.destroy(unsafe.Pointer(pool), "command pool")
}

func (d *fakeDriver) AllocateCommandBuffers(info *vk.CommandBufferAllocateInfo) ([]vk.CommandBuffer, vk.Result) {
	out := make([]vk.CommandBuffer, info.CommandBufferCount)
	for i := range out {
		out[i] = vk.CommandBuffer(d.create("command buffer"))
		d.commandPool[out[i]] = info.CommandPool
	}
	return out, vk.Success
}

func (d *fakeDriver) FreeCommandBuffers(pool vk.CommandPool, buffers []vk.CommandBuffer) {
	for _, cb := range buffers {
		d.destroy(unsafe.Pointer(cb), "command buffer")
		delete(d.commandPool, cb)
	}
}

func (d *fakeDriver) checkIdle(cb vk.CommandBuffer, what string) {
	if fence, ok := d.lastFence[cb]; ok {
		if f := d.fences[fence]; f != nil && f.pending {
			d.violate("%s of a command buffer still in flight", what)
		}
	}
}

func (d *fakeDriver) BeginCommandBuffer(cb vk.CommandBuffer, info *vk.CommandBufferBeginInfo) vk.Result {
	d.checkIdle(cb, "begin")
	d.commands[cb] = nil
	d.begins = append(d.begins, cb)
	return vk.Success
}

func (d *fakeDriver) EndCommandBuffer(cb vk.CommandBuffer) vk.Result {
	return vk.Success
}

func (d *fakeDriver) ResetCommandBuffer(cb vk.CommandBuffer) vk.Result {
	d.checkIdle(cb, "reset")
	d.commands[cb] = nil
	return vk.Success
}

func (d *fakeDriver) CmdPipelineBarrier(cb vk.CommandBuffer, srcStage, dstStage vk.PipelineStageFlags, buffers []vk.BufferMemoryBarrier, images []vk.ImageMemoryBarrier) {
	d.record(cb, fakeCommand{kind: "barrier", srcStage: srcStage, dstStage: dstStage, images: images})
}

func (d *fakeDriver) CmdCopyBuffer(cb vk.CommandBuffer, src, dst vk.Buffer, regions []vk.BufferCopy) {
	d.record(cb, fakeCommand{kind: "copy", src: src, dst: dst, copies: regions})
}

func (d *fakeDriver) CmdCopyBufferToImage(cb vk.CommandBuffer, src vk.Buffer, dst vk.Image, layout vk.ImageLayout, regions []vk.BufferImageCopy) {
	d.record(cb, fakeCommand{kind: "copy image", src: src, image: dst, layout: layout})
}

func (d *fakeDriver) CmdBindPipeline(cb vk.CommandBuffer, bindPoint vk.PipelineBindPoint, pipeline vk.Pipeline) {
	d.record(cb, fakeCommand{kind: "pipeline"})
}

func (d *fakeDriver) CmdBindDescriptorSets(cb vk.CommandBuffer, bindPoint vk.PipelineBindPoint, layout vk.PipelineLayout, firstSet uint32, sets []vk.DescriptorSet) {
	for _, set := range sets {
		if _, ok := d.validSets[set]; !ok {
			d.violate("bind of a stale descriptor set")
		}
	}
	d.record(cb, fakeCommand{kind: "sets", sets: sets})
}

func (d *fakeDriver) CmdDispatch(cb vk.CommandBuffer, x, y, z uint32) {
	d.record(cb, fakeCommand{kind: "dispatch", groups: [3]uint32{x, y, z}})
}

func (d *fakeDriver) CmdBeginRenderPass(cb vk.CommandBuffer, info *vk.RenderPassBeginInfo) {
	d.record(cb, fakeCommand{kind: "begin pass"})
}

func (d *fakeDriver) CmdEndRenderPass(cb vk.CommandBuffer) {
	d.record(cb, fakeCommand{kind: "end pass"})
}

func (d *fakeDriver) CmdSetViewport(cb vk.CommandBuffer, viewport vk.Viewport) {
	d.record(cb, fakeCommand{kind: "viewport", viewport: viewport})
}

func (d *fakeDriver) CmdSetScissor(cb vk.CommandBuffer, scissor vk.Rect2D) {
	d.record(cb, fakeCommand{kind: "scissor"})
}

func (d *fakeDriver) CmdDraw(cb vk.CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	d.record(cb, fakeCommand{kind: "draw", vertices: vertexCount})
}

func (d *fakeDriver) QueueSubmit(queue vk.Queue, submits []vk.SubmitInfo, fence vk.Fence) vk.Result {
	if fence != vk.NullFence {
		f := d.fences[fence]
		if f.signaled || f.pending {
			d.violate("submit with a fence that was not reset")
		}
		f.pending = true
	}
	for _, info := range submits {
		for _, s := range info.PWaitSemaphores {
			if !d.semaphores[s] {
				d.violate("wait on an unsignaled semaphore")
			}
			d.semaphores[s] = false
		}
		for _, cb := range info.PCommandBuffers {
			d.lastFence[cb] = fence
			d.execute(cb)
		}
		for _, s := range info.PSignalSemaphores {
			if d.semaphores[s] {
				d.violate("signal of an already signaled semaphore")
			}
			d.semaphores[s] = true
		}
		d.submits = append(d.submits, fakeSubmit{
			queue:   queue,
			waits:   info.PWaitSemaphores,
			stages:  info.PWaitDstStageMask,
			signals: info.PSignalSemaphores,
			buffers: info.PCommandBuffers,
			fence:   fence,
		})
	}
	return vk.Success
}

func (d *fakeDriver) execute(cb vk.CommandBuffer) {
	for _, c := range d.commands[cb] {
		switch c.kind {
		case "copy":
			src := d.memory[d.bufferMemory[c.src]]
			dst := d.memory[d.bufferMemory[c.dst]]
			for _, r := range c.copies {
				copy(dst[r.DstOffset:r.DstOffset+r.Size], src[r.SrcOffset:r.SrcOffset+r.Size])
			}
		case "copy image":
			if c.layout != vk.ImageLayoutTransferDstOptimal {
				d.violate("copy into an image not in transfer-dst layout")
			}
			copy(d.imageBytes(c.image), d.bufferBytes(c.src))
		case "dispatch":
			d.dispatches++
		case "draw":
			d.draws++
		}
	}
}

func (d *fakeDriver) QueueWaitIdle(queue vk.Queue) vk.Result {
	d.completeAll()
	return vk.Success
}

func (d *fakeDriver) QueuePresent(queue vk.Queue, info *vk.PresentInfo) vk.Result {
	for _, s := range info.PWaitSemaphores {
		if !d.semaphores[s] {
			d.violate("present waits an unsignaled semaphore")
		}
		d.semaphores[s] = false
	}
	res := vk.Success
	if len(d.presentResults) > 0 {
		res = d.presentResults[0]
		d.presentResults = d.presentResults[1:]
	}
	if res == vk.Success || res == vk.Suboptimal {
		d.presents++
	}
	return res
}

func (d *fakeDriver) AcquireNextImage(swapchain vk.Swapchain, timeoutNs uint64, semaphore vk.Semaphore, fence vk.Fence) (uint32, vk.Result) {
	res := vk.Success
	if len(d.acquireResults) > 0 {
		res = d.acquireResults[0]
		d.acquireResults = d.acquireResults[1:]
	}
	if res != vk.Success && res != vk.Suboptimal {
		return 0, res
	}
	if d.semaphores[semaphore] {
		d.violate("acquire signals an already signaled semaphore")
	}
	d.semaphores[semaphore] = true
	index := d.nextImage
	d.nextImage = (d.nextImage + 1) % d.swapchainLen
	return index, res
}

func (d *fakeDriver) CreateDescriptorSetLayout(info *vk.DescriptorSetLayoutCreateInfo) (vk.DescriptorSetLayout, vk.Result) {
	d.layoutsCreated++
	return vk.DescriptorSetLayout(d.create("set layout")), vk.Success
}

func (d *fakeDriver) DestroyDescriptorSetLayout(layout vk.DescriptorSetLayout) {
	d.destroy(unsafe.Pointer(layout), "set layout")
}

func (d *fakeDriver) CreateDescriptorPool(info *vk.DescriptorPoolCreateInfo) (vk.DescriptorPool, vk.Result) {
	pool := vk.DescriptorPool(d.create("descriptor pool"))
	d.descPools[pool] = &fakePool{maxSets: info.MaxSets}
	return pool, vk.Success
}

func (d *fakeDriver) clearPool(pool vk.DescriptorPool) {
	d.descPools[pool].allocated = 0
	for set, p := range d.validSets {
		if p == pool {
			delete(d.validSets, set)
		}
	}
}

func (d *fakeDriver) ResetDescriptorPool(pool vk.DescriptorPool) vk.Result {
	if len(d.resetResults) > 0 {
		res := d.resetResults[0]
		d.resetResults = d.resetResults[1:]
		if res != vk.Success {
			return res
		}
	}
	d.poolResets++
	d.clearPool(pool)
	return vk.Success
}

func (d *fakeDriver) DestroyDescriptorPool(pool vk.DescriptorPool) {
	if _, ok := d.descPools[pool]; !ok {
		d.violate("destroy of unknown descriptor pool")
		return
	}
	d.clearPool(pool)
	delete(d.descPools, pool)
	d.destroy(unsafe.Pointer(pool), "descriptor pool")
}

func (d *fakeDriver) AllocateDescriptorSet(pool vk.DescriptorPool, layout vk.DescriptorSetLayout) (vk.DescriptorSet, vk.Result) {
	d.allocCalls++
	if d.failAllocations > 0 {
		d.failAllocations--
		return nil, vk.ErrorOutOfPoolMemory
	}
	p := d.descPools[pool]
	if p.allocated >= p.maxSets {
		return nil, vk.ErrorOutOfPoolMemory
	}
	p.allocated++
	set := vk.DescriptorSet(fakeHandle())
	d.validSets[set] = pool
	return set, vk.Success
}

func (d *fakeDriver) UpdateDescriptorSets(writes []vk.WriteDescriptorSet) {
	d.updateCalls++
	d.writesUpdated += len(writes)
	for _, w := range writes {
		if _, ok := d.validSets[w.DstSet]; !ok {
			d.violate("update of a stale descriptor set")
		}
	}
}

func (d *fakeDriver) CreateBuffer(info *vk.BufferCreateInfo) (vk.Buffer, vk.Result) {
	buffer := vk.Buffer(d.create("buffer"))
	d.bufferSize[buffer] = uint64(info.Size)
	return buffer, vk.Success
}

func (d *fakeDriver) DestroyBuffer(buffer vk.Buffer) {
	d.destroy(unsafe.Pointer(buffer), "buffer")
	delete(d.bufferSize, buffer)
	delete(d.bufferMemory, buffer)
}

func alignUp(size, alignment uint64) uint64 {
	return (size + alignment - 1) / alignment * alignment
}

func (d *fakeDriver) BufferMemoryRequirements(buffer vk.Buffer) vk.MemoryRequirements {
	return vk.MemoryRequirements{
		Size:           vk.DeviceSize(alignUp(d.bufferSize[buffer], 256)),
		Alignment:      256,
		MemoryTypeBits: 0b11,
	}
}

func (d *fakeDriver) CreateImage(info *vk.ImageCreateInfo) (vk.Image, vk.Result) {
	image := vk.Image(d.create("image"))
	d.images[image] = &fakeImage{width: info.Extent.Width, height: info.Extent.Height, format: info.Format}
	return image, vk.Success
}

func (d *fakeDriver) DestroyImage(image vk.Image) {
	d.destroy(unsafe.Pointer(image), "image")
	delete(d.images, image)
}

func (d *fakeDriver) ImageMemoryRequirements(image vk.Image) vk.MemoryRequirements {
	img := d.images[image]
	size := uint64(img.width) * uint64(img.height) * uint64(TexelSize(img.format))
	return vk.MemoryRequirements{
		Size:           vk.DeviceSize(alignUp(size, 4096)),
		Alignment:      4096,
		MemoryTypeBits: 0b01,
	}
}

func (d *fakeDriver) AllocateMemory(info *vk.MemoryAllocateInfo) (vk.DeviceMemory, vk.Result) {
	memory := vk.DeviceMemory(d.create("memory"))
	d.memory[memory] = make([]byte, info.AllocationSize)
	return memory, vk.Success
}

func (d *fakeDriver) FreeMemory(memory vk.DeviceMemory) {
	d.destroy(unsafe.Pointer(memory), "memory")
	delete(d.memory, memory)
}

func (d *fakeDriver) BindBufferMemory(buffer vk.Buffer, memory vk.DeviceMemory, offset vk.DeviceSize) vk.Result {
	d.bufferMemory[buffer] = memory
	return vk.Success
}

func (d *fakeDriver) BindImageMemory(image vk.Image, memory vk.DeviceMemory, offset vk.DeviceSize) vk.Result {
	d.images[image].memory = memory
	return vk.Success
}

func (d *fakeDriver) MapMemory(memory vk.DeviceMemory, offset, size vk.DeviceSize) (unsafe.Pointer, vk.Result) {
	mem := d.memory[memory]
	if uint64(offset+size) > uint64(len(mem)) {
		return nil, vk.ErrorMemoryMapFailed
	}
	return unsafe.Pointer(&mem[offset]), vk.Success
}

func (d *fakeDriver) UnmapMemory(memory vk.DeviceMemory) {}

func (d *fakeDriver) MemoryProperties() vk.PhysicalDeviceMemoryProperties {
	props := vk.PhysicalDeviceMemoryProperties{MemoryTypeCount: 2, MemoryHeapCount: 1}
	props.MemoryTypes[0] = vk.MemoryType{PropertyFlags: vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)}
	props.MemoryTypes[1] = vk.MemoryType{
		PropertyFlags: vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) | vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit),
	}
	return props
}

func (d *fakeDriver) FormatProperties(format vk.Format) vk.FormatProperties {
	features := vk.FormatFeatureFlags(vk.FormatFeatureSampledImageBit)
	if !d.noStorage[format] {
		features |= vk.FormatFeatureFlags(vk.FormatFeatureStorageImageBit)
	}
	return vk.FormatProperties{OptimalTilingFeatures: features}
}

func (d *fakeDriver) CreateImageView(info *vk.ImageViewCreateInfo) (vk.ImageView, vk.Result) {
	return vk.ImageView(d.create("image view")), vk.Success
}

func (d *fakeDriver) DestroyImageView(view vk.ImageView) {
	d.destroy(unsafe.Pointer(view), "image view")
}

func (d *fakeDriver) CreateSampler(info *vk.SamplerCreateInfo) (vk.Sampler, vk.Result) {
	return vk.Sampler(d.create("sampler")), vk.Success
}

func (d *fakeDriver) DestroySampler(sampler vk.Sampler) {
	d.destroy(unsafe.Pointer(sampler), "sampler")
}

func (d *fakeDriver) CreateShaderModule(info *vk.ShaderModuleCreateInfo) (vk.ShaderModule, vk.Result) {
	d.shaderCodeSizes = append(d.shaderCodeSizes, info.CodeSize)
	if info.CodeSize == 0 || len(info.PCode) == 0 {
		return vk.NullShaderModule, vk.ErrorInitializationFailed
	}
	return vk.ShaderModule(d.create("shader module")), vk.Success
}

func (d *fakeDriver) DestroyShaderModule(module vk.ShaderModule) {
	d.destroy(unsafe.Pointer(module), "shader module")
}

func (d *fakeDriver) CreatePipelineLayout(info *vk.PipelineLayoutCreateInfo) (vk.PipelineLayout, vk.Result) {
	return vk.PipelineLayout(d.create("pipeline layout")), vk.Success
}

func (d *fakeDriver) DestroyPipelineLayout(layout vk.PipelineLayout) {
	d.destroy(unsafe.Pointer(layout), "pipeline layout")
}

func (d *fakeDriver) CreateComputePipeline(info *vk.ComputePipelineCreateInfo) (vk.Pipeline, vk.Result) {
	return vk.Pipeline(d.create("pipeline")), vk.Success
}

func (d *fakeDriver) CreateGraphicsPipeline(info *vk.GraphicsPipelineCreateInfo) (vk.Pipeline, vk.Result) {
	return vk.Pipeline(d.create("pipeline")), vk.Success
}

func (d *fakeDriver) DestroyPipeline(pipeline vk.Pipeline) {
	d.destroy(unsafe.Pointer(pipeline), "pipeline")
}

func (d *fakeDriver) CreateRenderPass(info *vk.RenderPassCreateInfo) (vk.RenderPass, vk.Result) {
	return vk.RenderPass(d.create("render pass")), vk.Success
}

func (d *fakeDriver) DestroyRenderPass(renderpass vk.RenderPass) {
	d.destroy(unsafe.Pointer(renderpass), "render pass")
}

func (d *fakeDriver) CreateFramebuffer(info *vk.FramebufferCreateInfo) (vk.Framebuffer, vk.Result) {
	return vk.Framebuffer(d.create("framebuffer")), vk.Success
}

func (d *fakeDriver) DestroyFramebuffer(framebuffer vk.Framebuffer) {
	d.destroy(unsafe.Pointer(framebuffer), "framebuffer")
}

func (d *fakeDriver) SurfaceSupport(surface vk.Surface) (*VulkanSwapchainSupportInfo, vk.Result) {
	return &VulkanSwapchainSupportInfo{
		Capabilities: vk.SurfaceCapabilities{
			MinImageCount:    d.imageCount - 1,
			MaxImageCount:    8,
			CurrentExtent:    d.extent,
			MinImageExtent:   vk.Extent2D{Width: 1, Height: 1},
			MaxImageExtent:   vk.Extent2D{Width: 16384, Height: 16384},
			CurrentTransform: vk.SurfaceTransformIdentityBit,
		},
		FormatCount:      1,
		Formats:          []vk.SurfaceFormat{{Format: vk.FormatB8g8r8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear}},
		PresentModeCount: 1,
		PresentModes:     []vk.PresentMode{vk.PresentModeFifo},
	}, vk.Success
}

func (d *fakeDriver) CreateSwapchain(info *vk.SwapchainCreateInfo) (vk.Swapchain, vk.Result) {
	d.swapchains++
	d.swapchainLen = info.MinImageCount
	d.nextImage = 0
	return vk.Swapchain(d.create("swapchain")), vk.Success
}

func (d *fakeDriver) SwapchainImages(swapchain vk.Swapchain) ([]vk.Image, vk.Result) {
	images := make([]vk.Image, d.swapchainLen)
	for i := range images {
		// Owned by the swapchain, never destroyed by the caller.
		images[i] = vk.Image(fakeHandle())
	}
	return images, vk.Success
}

func (d *fakeDriver) DestroySwapchain(swapchain vk.Swapchain) {
	d.destroy(unsafe.Pointer(swapchain), "swapchain")
}

// testShader is enough SPIR-V for the fake, which only checks the module is not empty.
var testShader = []uint32{0x07230203, 0x00010000, 0, 1, 0}

// newTestContext wires a fake driver to a device whose graphics and compute roles
// share one queue, or sit on two families when cross is set.
func newTestContext(t *testing.T, cross bool) (*VulkanContext, *fakeDriver) {
	t.Helper()
	driver := newFakeDriver()

	device := &VulkanDevice{}
	families := [QueueRoleCount]uint32{0, 0, 0, 0}
	if cross {
		families = [QueueRoleCount]uint32{0, 0, 1, 1}
	}
	device.AssignQueueFamilies(families)

	queues := map[uint32]vk.Queue{}
	for role := QueueRole(0); role < QueueRoleCount; role++ {
		family := families[role]
		if _, ok := queues[family]; !ok {
			queues[family] = vk.Queue(fakeHandle())
		}
		device.Queues[role] = queues[family]
	}

	context := NewVulkanContext(driver, device)
	context.Surface = vk.Surface(fakeHandle())
	require.NoError(t, device.CreateCommandPools(context))
	return context, driver
}
