// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/devblok/koruframe/core"
	"github.com/devblok/koruframe/device"
	"github.com/devblok/koruframe/frametrace"
	"github.com/devblok/koruframe/gfx"
	"github.com/devblok/koruframe/gfx/vkr"
	"github.com/devblok/koruframe/graph"
	"github.com/devblok/koruframe/window"
	"github.com/devblok/koruframe/window/glfwwindow"
	"github.com/devblok/koruframe/window/sdlwindow"
)

func init() {
	runtime.LockOSThread()
}

// Profiling
var (
	cpuProfile   = flag.String("cpuprof", "", "Profile CPU usage to file")
	memProfile   = flag.String("memprof", "", "Profile memory usage into a file")
	traceProfile = flag.String("trace", "", "Trace output for profiling")
	debug        = flag.Bool("vkdbg", false, "Load Vulkan validation layers")
	frameTrace   = flag.String("frametrace", "", "Write the frame timeline to a file on exit")
	shaderDir    = flag.String("shaders", "", "Directory with SPIR-V shaders for the demo scene")
)

func newWindow(cfg core.WindowConfiguration) (window.Native, error) {
	switch cfg.Backend {
	case "glfw":
		return glfwwindow.New(cfg)
	case "sdl", "":
		return sdlwindow.New(cfg)
	}
	return nil, fmt.Errorf("unknown window backend %q", cfg.Backend)
}

func main() {
	flag.Parse()

	configuration, err := core.LoadConfiguration()
	if err != nil {
		log.Fatal(err)
	}
	if *debug {
		configuration.Instance.DebugMode = true
	}
	if level, err := log.ParseLevel(configuration.LogLevel); err == nil {
		log.SetLevel(level)
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			panic(err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			panic(err)
		}
		defer pprof.StopCPUProfile()
	}

	if *traceProfile != "" {
		f, err := os.Create(*traceProfile)
		if err != nil {
			panic(err)
		}
		if err := trace.Start(f); err != nil {
			panic(err)
		}
		defer trace.Stop()
	}

	win, err := newWindow(configuration.Window)
	if err != nil {
		log.Fatal(err)
	}
	defer win.Destroy()

	instanceCfg := configuration.Instance
	instanceCfg.Extensions = append(instanceCfg.Extensions, win.InstanceExtensions()...)
	instance, err := vkr.NewInstance(win.ProcAddr(), instanceCfg)
	if err != nil {
		log.Fatal(err)
	}

	surface, err := win.CreateSurface(instance.Handle())
	if err != nil {
		instance.Destroy()
		log.Fatal(err)
	}

	ctx, err := device.NewContext(instance, gfx.Surface(surface), configuration.Device, log.StandardLogger())
	if err != nil {
		instance.DestroySurface(gfx.Surface(surface))
		instance.Destroy()
		log.Fatal(err)
	}
	defer ctx.Destroy()

	timeline := frametrace.New(configuration.TraceLimit)
	frames, err := graph.New(ctx, win, configuration, graph.WithTrace(timeline))
	if err != nil {
		log.Fatal(err)
	}
	defer frames.Shutdown()

	scene, err := newScene(ctx, frames, *shaderDir)
	if err != nil {
		log.Fatal(err)
	}
	defer scene.Destroy()

	timeService := core.NewTime(configuration.Time)
	defer timeService.Stop()

	runCtx, cancel := context.WithCancel(context.Background())
	programSync := sync.WaitGroup{}

	/* Frame counter loop */
	programSync.Add(1)
	go func(ctx context.Context, wg *sync.WaitGroup) {
		defer wg.Done()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Printf("\r\033[2KFrames: %d\tCGO calls: %d", timeService.TakeFrameCount(), runtime.NumCgoCall())
			}
		}
	}(runCtx, &programSync)

	/* Renderer loop */
	programSync.Add(1)
	go func(ctx context.Context, wg *sync.WaitGroup) {
		defer wg.Done()
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				log.Info("Render loop exited")
				return
			case <-timeService.FpsTicker().C:
				scene.Update(timeService.FrameInterval())
				presented, err := frames.RenderFrame()
				if err != nil {
					log.WithError(err).Error("Frame failed")
					return
				}
				if presented {
					timeService.FrameDone()
				}
			}
		}
	}(runCtx, &programSync)

	/* Event loop */
EventLoop:
	for {
		select {
		case <-runCtx.Done():
			break EventLoop
		case <-timeService.EventTicker().C:
			if window.Forward(win.PollEvents(), frames) {
				cancel()
			}
		}
	}

	programSync.Wait()
	fmt.Println()

	if *frameTrace != "" {
		if err := writeTrace(*frameTrace, timeline); err != nil {
			log.WithError(err).Error("Frame trace not written")
		}
	}

	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			panic(err)
		}
		if err := pprof.WriteHeapProfile(f); err != nil {
			panic(err)
		}
	}
}

func writeTrace(path string, timeline *frametrace.Recorder) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	n, err := timeline.WriteTo(f)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"path":    path,
		"bytes":   n,
		"dropped": timeline.Dropped(),
	}).Info("Frame trace written")
	return nil
}
