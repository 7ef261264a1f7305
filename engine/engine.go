package engine

import (
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/spaghettifunk/lumen/engine/assets"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/platform"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/components"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/vulkan"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

const (
	// Radians per pixel of middle mouse drag, before the camera's own speed.
	mouseRotationScale = 0.005
	maxSamples         = 1000
	maxBounces         = 100
	// Seconds between two frame time reports.
	metricsReportInterval = 5.0
)

type Engine struct {
	config       ApplicationConfig
	// Watched for [render_settings] edits when it sits under the assets dir.
	configPath   string
	currentStage Stage
	isRunning    bool
	isSuspended  bool
	stopRequest  atomic.Bool

	bus          *core.EventBus
	input        *core.Input
	platform     *platform.Platform
	assetManager *assets.AssetManager
	renderer     *renderer.Renderer
	camera       *components.Camera
	settings     metadata.RenderSettings
	metrics      *core.Metrics
	clock        *core.Clock

	width  uint32
	height uint32
	// Set by anything that invalidates the accumulated image since the last frame.
	dirty bool

	lastReport float64
}

func New(config ApplicationConfig, configPath string) (*Engine, error) {
	if err := core.SetLogLevel(config.Log.Level); err != nil {
		core.LogWarn("unknown log level `%s`, keeping the default", config.Log.Level)
	}

	am, err := assets.NewAssetManager()
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	bus := core.NewEventBus()
	input := core.NewInput(bus)
	p := platform.New(input, bus)

	e := &Engine{
		config:       config,
		configPath:   configPath,
		currentStage: EngineStageUninitialized,
		bus:          bus,
		input:        input,
		platform:     p,
		assetManager: am,
		renderer:     renderer.New(p),
		camera:       newCamera(config),
		settings:     config.RenderSettings,
		metrics:      core.NewMetrics(),
		clock:        core.NewClock(),
		width:        config.Window.StartWidth,
		height:       config.Window.StartHeight,
	}
	return e, nil
}

func newCamera(config ApplicationConfig) *components.Camera {
	c := config.Camera
	camera := components.NewCamera(c.FOV, c.Near, c.Far, float32(config.Window.StartWidth), float32(config.Window.StartHeight))
	camera.Distance = c.Distance
	camera.Pitch = c.Pitch
	camera.Yaw = c.Yaw
	camera.Target = math.NewVec3(c.Target[0], c.Target[1], c.Target[2])
	if c.RotationSpeed > 0 {
		camera.RotationSpeed = c.RotationSpeed
	}
	return camera
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing
	e.registerEvents()

	window := e.config.Window
	if err := e.platform.Startup(window.Name, window.StartPosX, window.StartPosY, window.StartWidth, window.StartHeight); err != nil {
		return err
	}
	// HiDPI surfaces report more pixels than the window size.
	e.width, e.height = e.platform.FramebufferSize()

	rc := e.config.Renderer
	if err := e.assetManager.Initialize(rc.AssetsDir, rc.HotReload); err != nil {
		core.LogError("failed to initialize assets: %s", err)
		return err
	}

	compute, err := e.loadShader(rc.ComputeShader)
	if err != nil {
		return err
	}
	vertex, err := e.loadShader(rc.VertexShader)
	if err != nil {
		return err
	}
	fragment, err := e.loadShader(rc.FragmentShader)
	if err != nil {
		return err
	}

	var scene []metadata.Sphere
	if rc.Scene != "" {
		if scene, err = e.assetManager.LoadScene(e.scenePath()); err != nil {
			return err
		}
	}

	policy, err := e.config.PoolPolicy()
	if err != nil {
		return err
	}

	if err := e.renderer.Initialize(vulkan.RendererConfig{
		AppName:            window.Name,
		Width:              e.width,
		Height:             e.height,
		Debug:              rc.Debug,
		VSync:              rc.VSync,
		FenceTimeout:       e.config.FenceTimeout(),
		MaxPresentFailures: rc.MaxPresentFailures,
		PoolPolicy:         policy,
		ComputeShader:      compute,
		GraphicsShaders:    vulkan.GraphicsShaders{Vertex: vertex, Fragment: fragment},
		Scene:              scene,
	}); err != nil {
		return err
	}

	e.dirty = true
	e.currentStage = EngineStageInitialized
	return nil
}

func (e *Engine) registerEvents() {
	e.bus.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	e.bus.Register(core.EVENT_CODE_KEY_PRESSED, e, e.onKey)
	e.bus.Register(core.EVENT_CODE_RESIZED, e, e.onResized)
}

func (e *Engine) loadShader(name string) ([]uint32, error) {
	code, err := e.assetManager.LoadShader(name)
	if err != nil {
		// already logged by the loader
		return nil, fmt.Errorf("shader `%s`: %w", name, err)
	}
	return code, nil
}

func (e *Engine) scenePath() string {
	return filepath.Join(e.assetManager.Root(), e.config.Renderer.Scene)
}

/**
 * @brief Runs the frame loop until the window closes, Escape is pressed or Stop
 * is called. Returns the first fatal renderer error.
 */
func (e *Engine) Run() error {
	e.currentStage = EngineStageRunning
	e.isRunning = true

	e.clock.Start()

	targetFrameSeconds := 1.0 / float64(e.config.Renderer.FrameRate)

	for e.isRunning {
		if !e.platform.PumpMessages() || e.stopRequest.Load() {
			e.isRunning = false
			break
		}

		currentTime, delta := e.clock.Tick()
		frameStartTime := e.platform.GetAbsoluteTime()

		e.processAssetChanges()

		if !e.isSuspended {
			e.updateCamera()

			if err := e.renderer.DrawFrame(e.camera, e.settings, e.dirty); err != nil {
				core.LogError("Frame failed, shutting down.")
				e.isRunning = false
				return err
			}
			e.dirty = false
		}

		// Figure out how long the frame took and give the rest back to the OS.
		frameElapsedTime := e.platform.GetAbsoluteTime() - frameStartTime
		if remaining := frameSleepMS(frameElapsedTime, targetFrameSeconds); remaining > 0 {
			e.platform.Sleep(remaining)
		}

		e.metrics.Update(delta)
		e.reportMetrics(currentTime)

		// Input state is copied last so every handler above saw this frame's changes.
		e.input.Update(delta)
	}
	return nil
}

// frameSleepMS returns how long to sleep, in milliseconds, to stretch a frame to target seconds.
func frameSleepMS(elapsed, target float64) float64 {
	remaining := (target - elapsed) * 1000
	// Sleep overshoots, leave a millisecond of slack.
	if remaining <= 1 {
		return 0
	}
	return remaining - 1
}

func (e *Engine) reportMetrics(now float64) {
	if now-e.lastReport < metricsReportInterval {
		return
	}
	e.lastReport = now
	fps, avg := e.metrics.Frame()
	stats := e.renderer.Stats()
	core.LogInfo("%.0f fps (%.2f ms), frames %d, presents %d, rebuilds %d", fps, avg, stats.Frames, stats.Presents, stats.Rebuilds)
}

func (e *Engine) updateCamera() {
	if e.input.IsButtonDown(core.BUTTON_MIDDLE) && e.input.WasButtonDown(core.BUTTON_MIDDLE) {
		dx, dy := e.input.MouseDelta()
		if e.camera.Rotate(math.NewVec2(float32(dx)*mouseRotationScale, float32(dy)*mouseRotationScale)) {
			e.dirty = true
		}
	}
	if wheel := e.input.WheelDelta(); wheel != 0 {
		if e.camera.Zoom(float32(wheel)) {
			e.dirty = true
		}
	}
}

/**
 * @brief Drains the watcher's change notifications. Shader binaries reload the
 * pipeline they belong to, the configured scene file is re-uploaded and an edit
 * of the config file replaces the render settings. Failures keep the previous
 * state and are only logged.
 */
func (e *Engine) processAssetChanges() {
	for {
		select {
		case info := <-e.assetManager.Changes():
			e.applyAssetChange(info)
		default:
			return
		}
	}
}

func (e *Engine) applyAssetChange(info assets.AssetInfo) {
	if info.Removed {
		core.LogWarn("asset `%s` removed, keeping the loaded copy", info.Path)
		return
	}

	rc := e.config.Renderer
	switch info.Type {
	case metadata.ResourceTypeShader:
		name := shaderName(info.Path)
		switch name {
		case rc.ComputeShader:
			code, err := e.loadShader(name)
			if err != nil {
				return
			}
			if err := e.renderer.ReloadComputeShader(code); err != nil {
				core.LogError("compute shader reload failed: %s", err)
				return
			}
		case rc.VertexShader, rc.FragmentShader:
			vertex, err := e.loadShader(rc.VertexShader)
			if err != nil {
				return
			}
			fragment, err := e.loadShader(rc.FragmentShader)
			if err != nil {
				return
			}
			e.renderer.SetGraphicsShaders(vertex, fragment)
		default:
			return
		}
		core.LogInfo("Reloaded shader `%s`.", name)

	case metadata.ResourceTypeScene:
		if e.configPath != "" && samePath(info.Path, e.configPath) {
			settings, err := LoadRenderSettings(e.configPath)
			if err != nil {
				core.LogError("config reload failed, keeping the current render settings: %s", err)
				return
			}
			e.settings = settings
			core.LogInfo("Reloaded render settings from `%s`.", e.configPath)
			break
		}
		if rc.Scene == "" || filepath.Clean(info.Path) != filepath.Clean(e.scenePath()) {
			return
		}
		spheres, err := e.assetManager.LoadScene(info.Path)
		if err != nil {
			return
		}
		if err := e.renderer.SetScene(spheres); err != nil {
			core.LogError("scene upload failed: %s", err)
			return
		}

	default:
		return
	}
	e.dirty = true
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

// shaderName strips the directory and the .spv suffix: shaders/a.comp.spv -> a.comp.
func shaderName(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}

// Stop asks the loop to exit after the current frame. Safe from any goroutine.
func (e *Engine) Stop() {
	e.stopRequest.Store(true)
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	e.isRunning = false

	e.bus.Shutdown()
	e.assetManager.Shutdown()
	if err := e.renderer.Shutdown(); err != nil {
		return err
	}
	return e.platform.Shutdown()
}

// GetFramebufferSize returns the width and height (in this order) of the framebuffer.
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) onEvent(context core.EventContext, listener interface{}) bool {
	if context.Type == core.EVENT_CODE_APPLICATION_QUIT {
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning = false
		return true
	}
	return false
}

func (e *Engine) onKey(context core.EventContext, listener interface{}) bool {
	ke, ok := context.Data.(*core.KeyEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return false
	}

	switch ke.KeyCode {
	case core.KEY_ESCAPE:
		// Technically firing an event to itself, but there may be other listeners.
		e.bus.Fire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
		return true
	case core.KEY_UP:
		e.settings.Bounces = uint32(math.Clamp(int(e.settings.Bounces)+1, 0, maxBounces))
	case core.KEY_DOWN:
		e.settings.Bounces = uint32(math.Clamp(int(e.settings.Bounces)-1, 0, maxBounces))
	case core.KEY_RIGHT:
		e.settings.Samples = uint32(math.Clamp(int(e.settings.Samples)+1, 1, maxSamples))
	case core.KEY_LEFT:
		e.settings.Samples = uint32(math.Clamp(int(e.settings.Samples)-1, 1, maxSamples))
	case core.KEY_R:
		core.LogInfo("Accumulation reset.")
	default:
		return false
	}
	core.LogDebug("samples %d, bounces %d", e.settings.Samples, e.settings.Bounces)
	e.dirty = true
	return true
}

func (e *Engine) onResized(context core.EventContext, listener interface{}) bool {
	re, ok := context.Data.(*core.ResizeEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return false
	}

	if re.Width == e.width && re.Height == e.height {
		return false
	}
	e.width = re.Width
	e.height = re.Height
	core.LogDebug("Window resize: %d, %d", e.width, e.height)

	// Handle minimization
	if e.width == 0 || e.height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return true
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	e.renderer.OnResize(e.width, e.height)
	e.dirty = true
	return true
}
