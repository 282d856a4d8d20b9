// Command canvas-demo is a runnable example wiring the full tile cache
// pipeline to a window: engine, renderer, camera, a grid image layout,
// and a handful of remote images registered into the canvas.
package main

import (
	"log"

	"github.com/Carmen-Shannon/tilecanvas/engine"
	"github.com/Carmen-Shannon/tilecanvas/engine/camera"
	"github.com/Carmen-Shannon/tilecanvas/engine/canvas"
	"github.com/Carmen-Shannon/tilecanvas/engine/imagelayout"
	"github.com/Carmen-Shannon/tilecanvas/engine/renderer"
	"github.com/Carmen-Shannon/tilecanvas/engine/window"
)

// demoImages are a handful of placeholder image URLs arranged in a grid
// layout, standing in for the thousands of independently posed images a
// real deployment would register.
var demoImages = []string{
	"https://picsum.photos/id/1015/4000/3000",
	"https://picsum.photos/id/1016/4000/3000",
	"https://picsum.photos/id/1018/4000/3000",
	"https://picsum.photos/id/1019/4000/3000",
	"https://picsum.photos/id/1020/4000/3000",
	"https://picsum.photos/id/1021/4000/3000",
}

func main() {
	eng := engine.NewEngine(
		engine.WithProfiling(true),
		engine.WithTickRate(60),
		engine.WithWindow(window.NewWindow(
			window.WithTitle("Tile Canvas Demo"),
			window.WithWidth(1600),
			window.WithHeight(900),
		)),
	)

	r := renderer.NewRenderer(
		renderer.BackendTypeWGPU,
		eng.Window(),
		renderer.WithPresentMode(renderer.PresentModeUncapped),
	)

	aspect := float32(eng.Window().Width()) / float32(eng.Window().Height())
	cam := camera.New(-10*float64(aspect), 10*float64(aspect), 10, -10)

	layout := imagelayout.NewGridLayout(3, 10, 1)

	cv, err := canvas.NewCanvas("demo", r, cam, layout)
	if err != nil {
		log.Fatalf("create canvas: %v", err)
	}

	eng.AddCanvas(0, cv)

	for i, url := range demoImages {
		cv.RegisterImage(i, url)
	}

	canvas.WireCameraInput(eng.Window(), cam)

	log.Println("Starting Tile Canvas Demo — scroll to zoom, middle-mouse drag to pan")
	eng.Run()
}
