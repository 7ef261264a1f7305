package vulkan

import (
	"encoding/binary"
	gomath "math"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrchestrator(t *testing.T, cross bool) (*FrameOrchestrator, *VulkanContext, *fakeDriver) {
	t.Helper()
	context, driver := newTestContext(t, cross)
	driver.extent = vk.Extent2D{Width: 64, Height: 48}

	o, err := NewFrameOrchestrator(context, OrchestratorConfig{
		Width:           64,
		Height:          48,
		ComputeShader:   testShader,
		GraphicsShaders: GraphicsShaders{Vertex: testShader, Fragment: testShader},
	})
	require.NoError(t, err)
	return o, context, driver
}

// frameSubmits are the fenced submits, compute and graphics alternating.
func frameSubmits(driver *fakeDriver) []fakeSubmit {
	var out []fakeSubmit
	for _, s := range driver.submits {
		if s.fence != vk.NullFence {
			out = append(out, s)
		}
	}
	return out
}

func drawFrames(t *testing.T, o *FrameOrchestrator, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, o.DrawFrame(FrameParams{}))
	}
}

func assertNoLeaks(t *testing.T, driver *fakeDriver) {
	t.Helper()
	leaks := driver.leaks()
	delete(leaks, "command pool")
	assert.Empty(t, leaks)
}

func TestOrchestratorTenFrames(t *testing.T) {
	for _, cross := range []bool{false, true} {
		o, context, driver := newTestOrchestrator(t, cross)
		device := context.Device
		res := o.Resources()

		require.True(t, res.Ready())
		require.Equal(t, uint32(3), res.Swapchain.ImageCount)
		require.Len(t, res.Slots, 2)

		drawFrames(t, o, 10)

		stats := o.Stats()
		assert.Equal(t, uint64(10), stats.Frames)
		assert.Equal(t, uint64(10), stats.Dispatches)
		assert.Equal(t, uint64(10), stats.Presents)
		assert.Zero(t, stats.Rebuilds)
		assert.Equal(t, uint32(9), o.Counter())
		assert.Equal(t, 10, driver.dispatches)
		assert.Equal(t, 10, driver.draws)
		assert.Equal(t, 10, driver.presents)
		assert.Equal(t, FrameStateIdle, o.State())

		submits := frameSubmits(driver)
		require.Len(t, submits, 20)
		for i := 0; i < 10; i++ {
			compute, graphics := submits[2*i], submits[2*i+1]
			slot := res.Slots[i%2]

			assert.True(t, device.Queue(QueueRoleCompute) == compute.queue)
			assert.True(t, device.Queue(QueueRoleGraphics) == graphics.queue)
			assert.True(t, slot.ComputeFence.Handle == compute.fence)
			assert.True(t, slot.InFlight.Handle == graphics.fence)

			assert.True(t, sameHandles([]vk.Semaphore{slot.ComputeFinished}, compute.signals))
			require.Len(t, graphics.waits, 2)
			assert.True(t, slot.ComputeFinished == graphics.waits[0], "graphics waits its own slot's compute")
			assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageVertexInputBit), graphics.stages[0])
			assert.True(t, slot.ImageAvailable == graphics.waits[1])
			assert.True(t, sameHandles([]vk.Semaphore{slot.RenderFinished, slot.GraphicsDone}, graphics.signals))

			if i == 0 {
				assert.Empty(t, compute.waits)
			} else {
				previous := res.Slots[(i-1)%2]
				assert.True(t, sameHandles([]vk.Semaphore{previous.GraphicsDone}, compute.waits), "compute waits the previous blit")
			}
		}

		dispatch := driver.commandsOf(res.Slots[1].ComputeCommands.Handle, "dispatch")
		require.Len(t, dispatch, 1)
		assert.Equal(t, [3]uint32{4, 3, 1}, dispatch[0].groups)

		viewport := driver.commandsOf(res.Slots[1].GraphicsCommands.Handle, "viewport")
		require.Len(t, viewport, 1)
		assert.Equal(t, float32(48), viewport[0].viewport.Y)
		assert.Equal(t, float32(-48), viewport[0].viewport.Height)

		assert.Empty(t, driver.violations)

		o.Destroy()
		assertNoLeaks(t, driver)
		assert.Empty(t, driver.violations)
	}
}

func TestOrchestratorStorageImageBarriers(t *testing.T) {
	o, _, driver := newTestOrchestrator(t, false)
	drawFrames(t, o, 1)
	slot := o.Resources().Slots[0]

	assert.Empty(t, driver.commandsOf(slot.ComputeCommands.Handle, "barrier"), "no ownership transfer on a shared queue")
	barriers := driver.commandsOf(slot.GraphicsCommands.Handle, "barrier")
	require.Len(t, barriers, 1)
	b := barriers[0].images[0]
	assert.Equal(t, uint32(vk.QueueFamilyIgnored), b.SrcQueueFamilyIndex)
	assert.Equal(t, vk.AccessFlags(vk.AccessShaderWriteBit), b.SrcAccessMask)
	assert.Equal(t, vk.AccessFlags(vk.AccessShaderReadBit), b.DstAccessMask)
	assert.Equal(t, vk.ImageLayoutGeneral, b.OldLayout)
	assert.Equal(t, vk.ImageLayoutGeneral, b.NewLayout)
	o.Destroy()

	o, context, driver := newTestOrchestrator(t, true)
	drawFrames(t, o, 1)
	slot = o.Resources().Slots[0]
	graphicsFamily := context.Device.Family(QueueRoleGraphics)
	computeFamily := context.Device.Family(QueueRoleCompute)

	compute := driver.commandsOf(slot.ComputeCommands.Handle, "barrier")
	require.Len(t, compute, 2)
	assert.Equal(t, graphicsFamily, compute[0].images[0].SrcQueueFamilyIndex, "acquire from graphics")
	assert.Equal(t, computeFamily, compute[0].images[0].DstQueueFamilyIndex)
	assert.Equal(t, computeFamily, compute[1].images[0].SrcQueueFamilyIndex, "release to graphics")
	assert.Equal(t, graphicsFamily, compute[1].images[0].DstQueueFamilyIndex)

	graphics := driver.commandsOf(slot.GraphicsCommands.Handle, "barrier")
	require.Len(t, graphics, 2)
	assert.Equal(t, computeFamily, graphics[0].images[0].SrcQueueFamilyIndex, "acquire from compute")
	assert.Equal(t, graphicsFamily, graphics[1].images[0].SrcQueueFamilyIndex, "release back to compute")
	assert.Equal(t, computeFamily, graphics[1].images[0].DstQueueFamilyIndex)

	assert.Equal(t, vk.ImageLayoutGeneral, o.Resources().StorageImage.Layout)
	o.Destroy()
	assert.Empty(t, driver.violations)
}

func TestOrchestratorSlotsRoundRobin(t *testing.T) {
	o, _, driver := newTestOrchestrator(t, false)
	defer o.Destroy()
	slots := o.Resources().Slots

	for i := 0; i < 6; i++ {
		assert.Equal(t, uint32(i%2), o.Slot())
		require.NoError(t, o.DrawFrame(FrameParams{}))
	}

	var begun []vk.CommandBuffer
	for _, cb := range driver.begins {
		if cb == slots[0].ComputeCommands.Handle || cb == slots[1].ComputeCommands.Handle {
			begun = append(begun, cb)
		}
	}
	require.Len(t, begun, 6)
	for i, cb := range begun {
		assert.True(t, slots[i%2].ComputeCommands.Handle == cb, "frame %d", i)
	}
	assert.Empty(t, driver.violations)
}

func TestOrchestratorBindsComputeSetsByIndex(t *testing.T) {
	o, _, driver := newTestOrchestrator(t, false)
	defer o.Destroy()
	res := o.Resources()
	drawFrames(t, o, len(res.Slots))

	for i, slot := range res.Slots {
		bound := driver.commandsOf(slot.ComputeCommands.Handle, "sets")
		require.Len(t, bound, 1)
		sets := bound[0].sets
		require.Len(t, sets, int(computeSetCount))
		assert.True(t, sets[ComputeSetStorageImage] == res.StorageImageSet, "slot %d", i)
		assert.True(t, sets[ComputeSetUniforms] == slot.UniformSet, "slot %d", i)
		assert.True(t, sets[ComputeSetScene] == res.SceneSet, "slot %d", i)
	}

	layouts, err := ComputeSetLayouts(o.cache)
	require.NoError(t, err)
	uniforms, err := o.cache.GetOrCreate(uniformBindings)
	require.NoError(t, err)
	scene, err := o.cache.GetOrCreate(sceneBindings)
	require.NoError(t, err)
	assert.True(t, layouts[ComputeSetUniforms] == uniforms)
	assert.True(t, layouts[ComputeSetScene] == scene)
}

func TestOrchestratorDirtyFramesRestartAccumulation(t *testing.T) {
	o, _, driver := newTestOrchestrator(t, false)
	defer o.Destroy()

	ubo := &metadata.UniformBufferObject{View: math.NewMat4Identity()}
	dirty := map[int]bool{2: true, 5: true}
	var counters []uint32
	for i := 0; i < 8; i++ {
		slot := o.Resources().Slots[o.Slot()]
		require.NoError(t, o.DrawFrame(FrameParams{Uniforms: ubo, Dirty: dirty[i]}))
		counters = append(counters, o.Counter())

		written := driver.bufferBytes(slot.Uniforms.Handle)
		assert.Equal(t, float32(o.Counter()), gomath.Float32frombits(binary.LittleEndian.Uint32(written[176:])))
		assert.Equal(t, float32(64), gomath.Float32frombits(binary.LittleEndian.Uint32(written[128:])), "viewport width")
	}
	assert.Equal(t, []uint32{0, 1, 0, 1, 2, 0, 1, 2}, counters)
}

func TestOrchestratorOutOfDateAtAcquire(t *testing.T) {
	o, _, driver := newTestOrchestrator(t, true)

	drawFrames(t, o, 3)
	driver.acquireResults = []vk.Result{vk.ErrorOutOfDate}
	require.NoError(t, o.DrawFrame(FrameParams{}))

	stats := o.Stats()
	assert.Equal(t, uint64(3), stats.Frames, "the frame was abandoned")
	assert.Equal(t, uint64(4), stats.Dispatches)
	assert.Equal(t, uint64(3), stats.Presents)
	assert.Equal(t, FrameStateIdle, o.State())

	drawFrames(t, o, 2)
	stats = o.Stats()
	assert.Equal(t, uint64(1), stats.Rebuilds)
	assert.Equal(t, uint64(5), stats.Presents)
	assert.Equal(t, 2, driver.swapchains)
	assert.Equal(t, uint32(1), o.Counter(), "accumulation restarted with the rebuild")
	assert.Empty(t, driver.violations)

	o.Destroy()
	assertNoLeaks(t, driver)
}

func TestOrchestratorSuboptimal(t *testing.T) {
	o, _, driver := newTestOrchestrator(t, false)

	driver.acquireResults = []vk.Result{vk.Suboptimal}
	require.NoError(t, o.DrawFrame(FrameParams{}))
	assert.Equal(t, uint64(1), o.Stats().Presents, "a suboptimal image is still drawn")

	driver.presentResults = []vk.Result{vk.Suboptimal}
	require.NoError(t, o.DrawFrame(FrameParams{}))
	assert.Equal(t, uint64(1), o.Stats().Rebuilds)
	assert.Equal(t, uint64(2), o.Stats().Presents)

	require.NoError(t, o.DrawFrame(FrameParams{}))
	assert.Equal(t, uint64(2), o.Stats().Rebuilds)
	assert.Equal(t, 3, driver.swapchains)
	assert.Empty(t, driver.violations)

	o.Destroy()
	assertNoLeaks(t, driver)
}

func TestOrchestratorPresentFailures(t *testing.T) {
	context, driver := newTestContext(t, false)
	driver.extent = vk.Extent2D{Width: 64, Height: 48}
	o, err := NewFrameOrchestrator(context, OrchestratorConfig{
		Width:              64,
		Height:             48,
		ComputeShader:      testShader,
		GraphicsShaders:    GraphicsShaders{Vertex: testShader, Fragment: testShader},
		MaxPresentFailures: 2,
	})
	require.NoError(t, err)
	defer o.Destroy()

	driver.presentResults = []vk.Result{vk.ErrorSurfaceLost, vk.ErrorSurfaceLost, vk.Success}
	drawFrames(t, o, 3)
	assert.Equal(t, uint64(1), o.Stats().Presents)

	driver.presentResults = []vk.Result{vk.ErrorSurfaceLost, vk.ErrorSurfaceLost, vk.ErrorSurfaceLost}
	drawFrames(t, o, 2)
	err = o.DrawFrame(FrameParams{})
	assert.ErrorIs(t, err, core.ErrPresentFailed)
	assert.Equal(t, uint64(6), o.Stats().Frames)
	assert.Empty(t, driver.violations)
}

func TestOrchestratorAcquireDeviceLost(t *testing.T) {
	o, _, driver := newTestOrchestrator(t, false)
	defer o.Destroy()

	driver.acquireResults = []vk.Result{vk.ErrorDeviceLost}
	assert.ErrorIs(t, o.DrawFrame(FrameParams{}), core.ErrDeviceLost)
}

func TestOrchestratorZeroExtent(t *testing.T) {
	context, driver := newTestContext(t, false)
	driver.extent = vk.Extent2D{}

	o, err := NewFrameOrchestrator(context, OrchestratorConfig{
		Width:           64,
		Height:          48,
		ComputeShader:   testShader,
		GraphicsShaders: GraphicsShaders{Vertex: testShader, Fragment: testShader},
	})
	require.NoError(t, err, "a minimized window is not an error")
	assert.False(t, o.Resources().Ready())

	drawFrames(t, o, 3)
	assert.Zero(t, o.Stats().Frames)
	assert.Zero(t, driver.dispatches)
	assert.Empty(t, frameSubmits(driver))

	driver.extent = vk.Extent2D{Width: 64, Height: 48}
	drawFrames(t, o, 2)
	assert.True(t, o.Resources().Ready())
	assert.Equal(t, uint64(2), o.Stats().Frames)
	assert.Equal(t, uint64(1), o.Stats().Rebuilds)
	assert.Empty(t, driver.violations)

	o.Destroy()
	assertNoLeaks(t, driver)
}

func TestOrchestratorResize(t *testing.T) {
	o, _, driver := newTestOrchestrator(t, true)
	drawFrames(t, o, 2)

	o.Resize(0, 0)
	drawFrames(t, o, 2)
	assert.Equal(t, uint64(2), o.Stats().Frames, "no frames while minimized")
	assert.Zero(t, o.Stats().Rebuilds)

	driver.extent = vk.Extent2D{Width: 128, Height: 96}
	o.Resize(128, 96)
	require.NoError(t, o.DrawFrame(FrameParams{}))
	res := o.Resources()
	assert.Equal(t, vk.Extent2D{Width: 128, Height: 96}, res.Extent())
	assert.Equal(t, uint32(128), res.StorageImage.Width)
	assert.Equal(t, uint32(0), o.Counter())
	assert.Equal(t, uint64(1), o.Stats().Rebuilds)

	dispatch := driver.commandsOf(res.Slots[0].ComputeCommands.Handle, "dispatch")
	require.Len(t, dispatch, 1)
	assert.Equal(t, [3]uint32{8, 6, 1}, dispatch[0].groups)
	assert.Empty(t, driver.violations)

	o.Destroy()
	assertNoLeaks(t, driver)
}

func TestOrchestratorRebuildKeepsLayouts(t *testing.T) {
	o, _, driver := newTestOrchestrator(t, false)
	defer o.Destroy()

	drawFrames(t, o, 2)
	layouts := driver.layoutsCreated
	pools := o.allocator.Stats().PoolsCreated

	for i := 0; i < 3; i++ {
		o.ScheduleRebuild()
		drawFrames(t, o, 1)
	}
	assert.Equal(t, layouts, driver.layoutsCreated, "layouts survive rebuilds")
	assert.Equal(t, pools, o.allocator.Stats().PoolsCreated, "pools are recycled")
	assert.Equal(t, 4, o.cache.Len())
	assert.Empty(t, driver.violations)
}

func TestOrchestratorReloadComputeShader(t *testing.T) {
	o, _, driver := newTestOrchestrator(t, false)
	drawFrames(t, o, 3)
	require.Equal(t, uint32(2), o.Counter())

	previous := o.computePipeline
	err := o.ReloadComputeShader(nil)
	assert.ErrorIs(t, err, core.ErrShaderLoad)
	assert.Same(t, previous, o.computePipeline, "old pipeline kept")
	drawFrames(t, o, 1)
	assert.Equal(t, uint32(3), o.Counter())

	require.NoError(t, o.ReloadComputeShader(testShader))
	assert.NotSame(t, previous, o.computePipeline)
	drawFrames(t, o, 1)
	assert.Equal(t, uint32(0), o.Counter(), "a new shader restarts accumulation")
	assert.Equal(t, 2, driver.liveCount("pipeline"))
	assert.Zero(t, driver.liveCount("shader module"))

	o.Destroy()
	assertNoLeaks(t, driver)
}

func TestOrchestratorSetScene(t *testing.T) {
	o, _, driver := newTestOrchestrator(t, true)
	drawFrames(t, o, 3)

	spheres := metadata.DefaultScene()
	spheres[0].Radius = 2
	require.NoError(t, o.SetScene(spheres))
	assert.Equal(t, metadata.SpheresBytes(spheres), driver.bufferBytes(o.scene.Handle))
	drawFrames(t, o, 1)
	assert.Equal(t, uint32(0), o.Counter())
	assert.Zero(t, o.Stats().Rebuilds, "same size scenes are updated in place")

	bigger := append(spheres, metadata.Sphere{Position: math.NewVec3(0, -101, -5), Radius: 100})
	require.NoError(t, o.SetScene(bigger))
	drawFrames(t, o, 1)
	assert.Equal(t, uint64(1), o.Stats().Rebuilds)
	assert.Equal(t, uint64(len(bigger)*metadata.SphereSize), o.scene.Size)
	assert.Same(t, o.scene, o.Resources().Scene)
	assert.Empty(t, driver.violations)

	o.Destroy()
	assertNoLeaks(t, driver)
}

func TestOrchestratorOverlay(t *testing.T) {
	o, _, driver := newTestOrchestrator(t, false)
	defer o.Destroy()

	calls := 0
	o.SetOverlay(func(context *VulkanContext, cb *VulkanCommandBuffer) {
		calls++
		assert.Equal(t, COMMAND_BUFFER_STATE_IN_RENDER_PASS, cb.State)
		context.Driver.CmdDraw(cb.Handle, 3, 1, 0, 0)
	})
	drawFrames(t, o, 2)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 4, driver.draws)
}

func TestWorkgroupCount(t *testing.T) {
	assert.Equal(t, uint32(0), WorkgroupCount(0))
	assert.Equal(t, uint32(1), WorkgroupCount(1))
	assert.Equal(t, uint32(1), WorkgroupCount(16))
	assert.Equal(t, uint32(2), WorkgroupCount(17))
	assert.Equal(t, uint32(50), WorkgroupCount(800))
}

func TestFrameStateString(t *testing.T) {
	assert.Equal(t, "compute-wait", FrameStateComputeWait.String())
	assert.Equal(t, "present", FrameStatePresent.String())
	assert.Equal(t, "unknown", FrameState(42).String())
}
