package engine

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/Carmen-Shannon/tilecanvas/engine/canvas"
	"github.com/Carmen-Shannon/tilecanvas/engine/profiler"
	"github.com/Carmen-Shannon/tilecanvas/engine/window"
)

// engine implements the Engine interface.
// Coordinates engine, render, and window threads.
type engine struct {
	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	running bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	window window.Window

	profiler         *profiler.Profiler
	profilingEnabled bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
	renderCallback func(deltaTime float32)

	canvases map[int]canvas.Canvas

	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped
}

// Engine is the main entry point for the engine.
// It orchestrates the engine loop, render loop, and window management.
type Engine interface {
	// Window returns the underlying window.
	//
	// Returns:
	//   - window.Window: the window instance
	Window() window.Window

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in frames per second.
	// The tick callback will be called at this rate for game logic updates.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick.
	// Use this for input processing and anything outside the canvases'
	// own tile-cache bookkeeping.
	//
	// Parameters:
	//   - callback: function to call at the configured tick rate, receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function called each render frame.
	// Use this for anything that needs to run after canvases draw.
	//
	// Parameters:
	//   - callback: function to call each render frame, receiving the delta time in seconds
	SetRenderCallback(callback func(deltaTime float32))

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	// Pass 0 to uncap the render loop (default).
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// AddCanvas registers a canvas at the given z-index key. Canvases are
	// ticked and rendered in ascending key order, so a later key draws
	// over an earlier one.
	//
	// Parameters:
	//   - key: the z-index determining render order (lower renders first)
	//   - c: the Canvas to register
	AddCanvas(key int, c canvas.Canvas)

	// RemoveCanvas removes the canvas at the given z-index key.
	//
	// Parameters:
	//   - key: the z-index of the canvas to remove
	RemoveCanvas(key int)

	// Canvas retrieves the canvas registered at the given z-index key.
	// Returns nil if no canvas exists at that key.
	//
	// Parameters:
	//   - key: the z-index of the canvas to retrieve
	//
	// Returns:
	//   - canvas.Canvas: the canvas at the key, or nil if not found
	Canvas(key int) canvas.Canvas

	// Canvases returns a copy of all registered canvases keyed by z-index.
	//
	// Returns:
	//   - map[int]canvas.Canvas: a copy of the canvases map
	Canvases() map[int]canvas.Canvas

	// Run starts the main engine loop (blocks until window closes).
	Run()

	// Quit signals all engine goroutines to stop and shuts down the engine.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

// NewEngine creates a new Engine instance with the provided options.
// Initializes message channels and profiler with sensible defaults.
// Options are applied directly to the engine struct via the option-builder pattern.
//
// Parameters:
//   - options: functional options for engine configuration (profiling, tick rate, etc.)
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(options ...EngineBuilderOption) Engine {
	e := &engine{
		tickRateChannel:  make(chan time.Duration, 1),
		quitChannel:      make(chan struct{}),
		canvases:         make(map[int]canvas.Canvas),
		running:          false,
		wg:               sync.WaitGroup{},
		profiler:         profiler.NewProfiler(),
		profilingEnabled: false,
		engineTickRate:   time.Second / 60,
	}

	for _, opt := range options {
		opt(e)
	}

	if e.window != nil {
		e.window.SetResizeCallback(func(width, height int) {
			for _, c := range e.canvases {
				if r := c.Renderer(); r != nil {
					r.Resize(width, height)
				}
				if cam := c.Camera(); cam != nil {
					cam.SetAspect(float32(width) / float32(height))
				}
			}
		})
	}

	return e
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Run() {
	e.handle()
	e.window.ProcessMessages()
}

// Quit signals all engine goroutines to stop and shuts down the engine.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
// Uses sync.Once to ensure the channel is only closed once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		e.running = false
		close(e.quitChannel)
	})
}

// handle launches the engine, render, and quit goroutines.
// Each goroutine is tracked by the engine's WaitGroup.
func (e *engine) handle() {
	e.wg.Add(3)
	go e.handleEngine()
	go e.handleRender()
	go e.handleQuit()
}

// orderedCanvases returns the currently active canvases sorted by
// ascending z-index key.
func (e *engine) orderedCanvases() []canvas.Canvas {
	keys := make([]int, 0, len(e.canvases))
	for k := range e.canvases {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	active := make([]canvas.Canvas, 0, len(keys))
	for _, k := range keys {
		c := e.canvases[k]
		if c.Active() {
			active = append(active, c)
		}
	}
	return active
}

// handleEngine runs the fixed-rate engine tick loop in its own goroutine.
// Ticks every active canvas — draining completed tile decodes, refreshing
// visibility and LOD, and dispatching new loads — then fires the tick
// callback. Listens for dynamic rate changes via tickRateChannel. Exits
// when the quit channel is closed.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			for _, c := range e.orderedCanvases() {
				c.Tick(dt)
			}

			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// handleRender runs the uncapped (or frame-limited) render loop in its own
// goroutine. Draws active canvases in ascending z-index order within a
// single render pass so later canvases composite over earlier ones.
// Recovers from panics to avoid crashing the process and signals quit on
// recovery.
func (e *engine) handleRender() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("render goroutine recovered from panic: %v", r)
			e.signalQuit()
		}
	}()

	lastRender := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		default:
			now := time.Now()
			dt := float32(now.Sub(lastRender).Seconds())
			lastRender = now

			activeCanvases := e.orderedCanvases()

			if len(activeCanvases) > 0 {
				// The engine owns the frame lifecycle: BeginFrame once,
				// draw each canvas, EndFrame + Present once. Canvases
				// sharing a renderer share a render pass for layered
				// compositing.
				frameRenderer := activeCanvases[0].Renderer()
				if frameRenderer != nil {
					if err := frameRenderer.BeginFrame(); err == nil {
						for _, c := range activeCanvases {
							if err := c.DrawCalls(); err != nil {
								log.Printf("canvas draw failed: %v", err)
							}
						}
						frameRenderer.EndFrame()
						frameRenderer.Present()
					}
				}
			}

			if e.renderCallback != nil {
				e.renderCallback(dt)
			}

			if e.profilingEnabled && e.profiler != nil {
				e.profiler.Tick()
			}

			if e.renderFrameLimit > 0 {
				elapsed := time.Since(lastRender)
				if remaining := e.renderFrameLimit - elapsed; remaining > 0 {
					time.Sleep(remaining)
				}
			}
		}
	}
}

// handleQuit blocks until the quit channel is closed, then decrements the WaitGroup.
func (e *engine) handleQuit() {
	defer e.wg.Done()
	<-e.quitChannel
}

// EnableProfiler enables performance profiling output to the log.
func (e *engine) EnableProfiler() {
	e.profilingEnabled = true
}

// DisableProfiler disables performance profiling output.
func (e *engine) DisableProfiler() {
	e.profilingEnabled = false
}

// SetTickRate sets the engine tick rate in frames per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Second / time.Duration(fps)

	if e.running {
		select {
		case e.tickRateChannel <- newRate:
		default:
			select {
			case <-e.tickRateChannel:
			default:
			}
			e.tickRateChannel <- newRate
		}
	} else {
		e.engineTickRate = newRate
	}
}

// SetTickCallback registers the function called each engine tick.
func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

// SetRenderCallback registers the function called each render frame.
func (e *engine) SetRenderCallback(callback func(deltaTime float32)) {
	e.renderCallback = callback
}

// SetRenderFrameLimit sets an optional render frame rate cap.
// Pass 0 to uncap the render loop.
func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Second / time.Duration(fps)
}

func (e *engine) AddCanvas(key int, c canvas.Canvas) {
	e.canvases[key] = c
}

func (e *engine) RemoveCanvas(key int) {
	delete(e.canvases, key)
}

func (e *engine) Canvas(key int) canvas.Canvas {
	return e.canvases[key]
}

func (e *engine) Canvases() map[int]canvas.Canvas {
	cp := make(map[int]canvas.Canvas, len(e.canvases))
	for k, v := range e.canvases {
		cp[k] = v
	}
	return cp
}
