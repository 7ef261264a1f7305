package vulkan

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/google/uuid"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allLayouts = []vk.ImageLayout{
	vk.ImageLayoutUndefined,
	vk.ImageLayoutGeneral,
	vk.ImageLayoutColorAttachmentOptimal,
	vk.ImageLayoutShaderReadOnlyOptimal,
	vk.ImageLayoutTransferSrcOptimal,
	vk.ImageLayoutTransferDstOptimal,
	vk.ImageLayoutPresentSrc,
}

func sampledUsage() vk.ImageUsageFlags {
	return vk.ImageUsageFlags(vk.ImageUsageTransferDstBit) | vk.ImageUsageFlags(vk.ImageUsageSampledBit)
}

func TestTransitionTableIsClosed(t *testing.T) {
	context, driver := newTestContext(t, false)
	device := context.Device

	texture, err := TextureCreate(context, "table", StorageImageFormat, 4, 4, sampledUsage())
	require.NoError(t, err)
	defer texture.Destroy(context)

	cb, err := NewVulkanCommandBuffer(context, device.CommandPool(QueueRoleGraphics), true)
	require.NoError(t, err)
	defer cb.Free(context)

	supported := 0
	for _, from := range allLayouts {
		for _, to := range allLayouts {
			texture.Layout = from
			driver.commands[cb.Handle] = nil

			err := texture.TransitionLayout(context, cb, from, to, device.Family(QueueRoleGraphics))
			barriers := driver.commandsOf(cb.Handle, "barrier")

			if _, ok := supportedTransitions[layoutTransition{from, to}]; ok {
				supported++
				require.NoError(t, err, "%d -> %d", from, to)
				assert.Equal(t, to, texture.Layout)
				require.Len(t, barriers, 1)
				barrier := barriers[0].images[0]
				assert.Equal(t, from, barrier.OldLayout)
				assert.Equal(t, to, barrier.NewLayout)
				assert.Equal(t, barrier.SrcQueueFamilyIndex, barrier.DstQueueFamilyIndex, "no ownership transfer")
				assert.True(t, texture.Image == barrier.Image)
				continue
			}
			assert.ErrorIs(t, err, core.ErrUnsupportedTransition, "%d -> %d", from, to)
			assert.Equal(t, from, texture.Layout, "layout unchanged on rejection")
			assert.Empty(t, barriers, "nothing recorded on rejection")
		}
	}
	assert.Equal(t, 6, supported)
}

func TestTransitionLayoutMismatch(t *testing.T) {
	context, driver := newTestContext(t, false)
	device := context.Device

	texture, err := TextureCreate(context, "mismatch", StorageImageFormat, 4, 4, sampledUsage())
	require.NoError(t, err)
	defer texture.Destroy(context)
	assert.Equal(t, vk.ImageLayoutUndefined, texture.Layout)

	cb, err := NewVulkanCommandBuffer(context, device.CommandPool(QueueRoleGraphics), true)
	require.NoError(t, err)
	defer cb.Free(context)

	err = texture.TransitionLayout(context, cb, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal, 0)
	assert.ErrorIs(t, err, core.ErrLayoutMismatch)
	assert.Equal(t, vk.ImageLayoutUndefined, texture.Layout)
	assert.Empty(t, driver.commandsOf(cb.Handle, "barrier"))
}

func TestTextureUploadPixels(t *testing.T) {
	for _, cross := range []bool{false, true} {
		context, driver := newTestContext(t, cross)
		device := context.Device

		texture, err := TextureCreate(context, "", StorageImageFormat, 8, 4, sampledUsage())
		require.NoError(t, err)
		_, err = uuid.Parse(texture.Name)
		assert.NoError(t, err, "unnamed textures get a uuid")

		pixels := make([]byte, 8*4*4)
		for i := range pixels {
			pixels[i] = byte(i * 7)
		}
		require.NoError(t, texture.UploadPixels(context, pixels, device.Queue(QueueRoleGraphics), device.CommandPool(QueueRoleGraphics), device.Family(QueueRoleGraphics)))
		assert.Equal(t, pixels, driver.imageBytes(texture.Image))
		assert.Equal(t, vk.ImageLayoutShaderReadOnlyOptimal, texture.Layout)

		// A second upload starts over from undefined.
		pixels[0] = 0xff
		require.NoError(t, texture.UploadPixels(context, pixels, device.Queue(QueueRoleGraphics), device.CommandPool(QueueRoleGraphics), device.Family(QueueRoleGraphics)))
		assert.Equal(t, byte(0xff), driver.imageBytes(texture.Image)[0])

		err = texture.UploadPixels(context, pixels[:10], device.Queue(QueueRoleGraphics), device.CommandPool(QueueRoleGraphics), device.Family(QueueRoleGraphics))
		assert.ErrorIs(t, err, core.ErrSizeMismatch)
		assert.Equal(t, vk.ImageLayoutShaderReadOnlyOptimal, texture.Layout)

		texture.Destroy(context)
		assert.Empty(t, driver.violations)
		leaks := driver.leaks()
		delete(leaks, "command pool")
		assert.Empty(t, leaks)
	}
}

func TestTextureCreateChecks(t *testing.T) {
	context, driver := newTestContext(t, false)

	_, err := TextureCreate(context, "empty", StorageImageFormat, 0, 16, sampledUsage())
	assert.ErrorIs(t, err, core.ErrInvalidSize)

	driver.noStorage[vk.FormatR8g8b8Unorm] = true
	usage := sampledUsage() | vk.ImageUsageFlags(vk.ImageUsageStorageBit)
	_, err = TextureCreate(context, "rgb", vk.FormatR8g8b8Unorm, 16, 16, usage)
	assert.ErrorIs(t, err, core.ErrFormatUnsupported)

	// Sampling alone does not need storage support.
	texture, err := TextureCreate(context, "rgb", vk.FormatR8g8b8Unorm, 16, 16, sampledUsage())
	require.NoError(t, err)
	texture.Destroy(context)

	storage, err := TextureCreate(context, "storage", StorageImageFormat, 16, 16, usage)
	require.NoError(t, err)
	assert.Equal(t, "storage", storage.Name)
	storage.Destroy(context)

	assert.Zero(t, driver.liveCount("image"))
	assert.Zero(t, driver.liveCount("sampler"))
}

func TestTexelSize(t *testing.T) {
	assert.Equal(t, uint32(4), TexelSize(vk.FormatR8g8b8a8Unorm))
	assert.Equal(t, uint32(4), TexelSize(vk.FormatB8g8r8a8Srgb))
	assert.Equal(t, uint32(16), TexelSize(vk.FormatR32g32b32a32Sfloat))
	assert.Equal(t, uint32(1), TexelSize(vk.FormatR8Unorm))
}

func TestTextureLoadFromFile(t *testing.T) {
	context, driver := newTestContext(t, false)
	device := context.Device

	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	img.Set(1, 0, color.NRGBA{R: 255, A: 255})
	img.Set(0, 1, color.NRGBA{B: 255, A: 255})
	img.Set(1, 1, color.NRGBA{B: 255, A: 255})

	path := filepath.Join(t.TempDir(), "two_rows.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	texture, err := TextureLoadFromFile(context, path, device.Queue(QueueRoleGraphics), device.CommandPool(QueueRoleGraphics), device.Family(QueueRoleGraphics))
	require.NoError(t, err)
	defer texture.Destroy(context)

	assert.Equal(t, SampledImageFormat, texture.Format)
	assert.Equal(t, uint32(2), texture.Width)
	assert.Equal(t, vk.ImageLayoutShaderReadOnlyOptimal, texture.Layout)
	pixels := driver.imageBytes(texture.Image)
	require.Len(t, pixels, 16)
	assert.Equal(t, []byte{0, 0, 255, 255}, pixels[:4], "rows are flipped, blue comes first")
	assert.Equal(t, []byte{255, 0, 0, 255}, pixels[8:12])

	_, err = TextureLoadFromFile(context, filepath.Join(t.TempDir(), "missing.png"), device.Queue(QueueRoleGraphics), device.CommandPool(QueueRoleGraphics), device.Family(QueueRoleGraphics))
	assert.Error(t, err)
}
