package engine

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/vulkan"
)

type WindowConfig struct {
	// The application name used in windowing.
	Name string `toml:"name"`

	// Window starting position.
	StartPosX uint32 `toml:"x"`
	StartPosY uint32 `toml:"y"`

	// Window starting size.
	StartWidth  uint32 `toml:"width"`
	StartHeight uint32 `toml:"height"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type DescriptorPoolConfig struct {
	MaxSets uint32             `toml:"max_sets"`
	Weights map[string]float32 `toml:"weights"`
}

type RendererConfig struct {
	Debug     bool   `toml:"debug"`
	VSync     bool   `toml:"vsync"`
	FrameRate uint32 `toml:"frame_rate"`

	// Upper bound for a single fence wait before the device is considered lost.
	FenceTimeoutMS     uint32 `toml:"fence_timeout_ms"`
	MaxPresentFailures int    `toml:"max_present_failures"`

	// Relative to the working directory.
	AssetsDir string `toml:"assets_dir"`

	// Shader names resolve to <assets_dir>/shaders/<name>.spv.
	ComputeShader  string `toml:"compute_shader"`
	VertexShader   string `toml:"vertex_shader"`
	FragmentShader string `toml:"fragment_shader"`

	// Relative to assets_dir. Empty uses the built-in scene.
	Scene     string `toml:"scene"`
	HotReload bool   `toml:"hot_reload"`

	DescriptorPool DescriptorPoolConfig `toml:"descriptor_pool"`
}

type CameraConfig struct {
	FOV           float32    `toml:"fov"`
	Near          float32    `toml:"near"`
	Far           float32    `toml:"far"`
	Distance      float32    `toml:"distance"`
	Pitch         float32    `toml:"pitch"`
	Yaw           float32    `toml:"yaw"`
	Target        [3]float32 `toml:"target"`
	RotationSpeed float32    `toml:"rotation_speed"`
}

type ApplicationConfig struct {
	Window         WindowConfig            `toml:"window"`
	Log            LogConfig               `toml:"log"`
	Renderer       RendererConfig          `toml:"renderer"`
	RenderSettings metadata.RenderSettings `toml:"render_settings"`
	Camera         CameraConfig            `toml:"camera"`
}

func DefaultApplicationConfig() ApplicationConfig {
	return ApplicationConfig{
		Window: WindowConfig{
			Name:        "Lumen",
			StartPosX:   100,
			StartPosY:   100,
			StartWidth:  1280,
			StartHeight: 720,
		},
		Log: LogConfig{Level: "info"},
		Renderer: RendererConfig{
			Debug:              false,
			VSync:              true,
			FrameRate:          120,
			FenceTimeoutMS:     uint32(vulkan.DefaultFenceTimeout.Milliseconds()),
			MaxPresentFailures: vulkan.DefaultMaxPresentFailures,
			AssetsDir:          "assets",
			ComputeShader:      "ray_tracing.comp",
			VertexShader:       "texture.vert",
			FragmentShader:     "texture.frag",
			Scene:              "scenes/default.toml",
			HotReload:          true,
		},
		RenderSettings: metadata.DefaultRenderSettings(),
		Camera: CameraConfig{
			FOV:           45,
			Near:          0.1,
			Far:           100,
			Distance:      0,
			RotationSpeed: 0.8,
		},
	}
}

/**
 * @brief Decodes the TOML file at path over DefaultApplicationConfig, so a file
 * only needs the keys it changes. Unknown keys are rejected.
 */
func LoadApplicationConfig(path string) (ApplicationConfig, error) {
	config := DefaultApplicationConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("failed to read config `%s`: %w", path, err)
	}

	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&config); err != nil {
		return config, fmt.Errorf("failed to decode config `%s`: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return config, fmt.Errorf("config `%s`: %w", path, err)
	}
	return config, nil
}

/**
 * @brief Re-reads the config at path with the same strict rules as
 * LoadApplicationConfig and returns its [render_settings]. The other tables
 * only take effect on restart.
 */
func LoadRenderSettings(path string) (metadata.RenderSettings, error) {
	config, err := LoadApplicationConfig(path)
	if err != nil {
		return metadata.RenderSettings{}, err
	}
	return config.RenderSettings, nil
}

func (c ApplicationConfig) Validate() error {
	if c.Window.StartWidth == 0 || c.Window.StartHeight == 0 {
		return fmt.Errorf("%w: window size %dx%d", core.ErrInvalidSize, c.Window.StartWidth, c.Window.StartHeight)
	}
	if c.Renderer.FrameRate == 0 {
		return fmt.Errorf("%w: frame_rate must be positive", core.ErrInvalidSize)
	}
	if c.RenderSettings.Samples == 0 {
		return fmt.Errorf("%w: samples must be positive", core.ErrInvalidSize)
	}
	if c.Camera.Near <= 0 || c.Camera.Far <= c.Camera.Near {
		return fmt.Errorf("camera clip planes near=%f far=%f are invalid", c.Camera.Near, c.Camera.Far)
	}
	if _, err := c.PoolPolicy(); err != nil {
		return err
	}
	return nil
}

// PoolPolicy returns the configured descriptor pool policy, or the default one when none is set.
func (c ApplicationConfig) PoolPolicy() (vulkan.DescriptorPoolPolicy, error) {
	pool := c.Renderer.DescriptorPool
	if pool.MaxSets == 0 && len(pool.Weights) == 0 {
		return vulkan.DefaultDescriptorPoolPolicy(), nil
	}
	return vulkan.DescriptorPoolPolicyFromWeights(pool.MaxSets, pool.Weights)
}

func (c ApplicationConfig) FenceTimeout() time.Duration {
	return time.Duration(c.Renderer.FenceTimeoutMS) * time.Millisecond
}
