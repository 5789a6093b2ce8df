// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"runtime"

	log "github.com/sirupsen/logrus"

	"github.com/devblok/koruframe/core"
	"github.com/devblok/koruframe/device"
	"github.com/devblok/koruframe/gfx"
	"github.com/devblok/koruframe/gfx/vkr"
	"github.com/devblok/koruframe/window/sdlwindow"
)

func init() {
	runtime.LockOSThread()
}

var debug = flag.Bool("vkdbg", false, "Load Vulkan validation layers")

type report struct {
	Devices  []device.Suitability
	Selected string `json:",omitempty"`
}

func main() {
	flag.Parse()

	configuration, err := core.LoadConfiguration()
	if err != nil {
		log.Fatal(err)
	}

	// a surface is needed to judge presentation support
	win, err := sdlwindow.New(configuration.Window)
	if err != nil {
		log.Fatal(err)
	}
	defer win.Destroy()

	cfg := configuration.Instance
	cfg.DebugMode = cfg.DebugMode || *debug
	cfg.Extensions = append(cfg.Extensions, win.InstanceExtensions()...)
	instance, err := vkr.NewInstance(win.ProcAddr(), cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer instance.Destroy()

	surface, err := win.CreateSurface(instance.Handle())
	if err != nil {
		log.Fatal(err)
	}
	defer instance.DestroySurface(gfx.Surface(surface))

	devices, err := device.Survey(instance, gfx.Surface(surface), configuration.Device.Extensions)
	if err != nil {
		log.Fatal(err)
	}

	r := report{Devices: devices}
	for _, d := range devices {
		if d.Suitable {
			r.Selected = d.Properties.Name
			break
		}
	}

	if bytes, err := json.MarshalIndent(r, "", "  "); err == nil {
		fmt.Printf("%s\n", bytes)
	} else {
		panic(err)
	}
}
