// Command dualcam previews up to two webcams and saves snapshots of both as
// timestamped image files.
//
// Commands are read from standard input, one per line:
//
//	connect <slot> <index>   bind device index to slot 1 or 2
//	start                    start the preview
//	stop                     stop the preview
//	capture                  save the current frame of each camera
//	dir [path]               show or set the save directory
//	devices                  probe devices again
//	status                   show slot bindings and preview rate
//	quit                     exit
//
// Examples:
//
//	# List devices as reported by the backend and quit.
//	dualcam -listdevices
//
//	# Use ffmpeg, save to ~/Pictures/booth and write preview images to /tmp/preview.
//	dualcam -backend ffmpeg -dir ~/Pictures/booth -preview /tmp/preview
//
//	# Try it without cameras.
//	dualcam -backend testpattern -verbose
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/photobook/dualcam"
	"github.com/photobook/dualcam/app"
	"github.com/photobook/dualcam/camera"
	"github.com/photobook/dualcam/camera/ffmpeg"
	"github.com/photobook/dualcam/camera/gstreamer"
	"github.com/photobook/dualcam/camera/imagesnap"
	"github.com/photobook/dualcam/camera/testpattern"
	"github.com/photobook/dualcam/poll"
)

var (
	listDevices bool
	configPath  string
	backend     string
	saveDir     string
	previewDir  string
	verbose     bool
)

// drivers maps backend names to constructors. Platform specific backends add
// themselves from their own files.
var drivers = map[string]func(cfg *dualcam.Config) camera.Driver{
	"ffmpeg": func(cfg *dualcam.Config) camera.Driver {
		return ffmpeg.NewDriver(ffmpeg.Opts{Verbose: cfg.Verbose, Interval: cfg.FrameInterval(), ReadTimeout: cfg.ReadTimeout()})
	},
	"gstreamer": func(cfg *dualcam.Config) camera.Driver {
		return gstreamer.NewDriver(gstreamer.Opts{Verbose: cfg.Verbose, Interval: cfg.FrameInterval(), ReadTimeout: cfg.ReadTimeout()})
	},
	"imagesnap": func(cfg *dualcam.Config) camera.Driver {
		return imagesnap.NewDriver(imagesnap.Opts{Verbose: cfg.Verbose, Interval: cfg.FrameInterval(), ReadTimeout: cfg.ReadTimeout()})
	},
	"testpattern": func(cfg *dualcam.Config) camera.Driver {
		return testpattern.NewDriver(testpattern.Opts{Count: 2})
	},
}

func init() {
	if runtime.GOOS == "darwin" {
		backend = "imagesnap"
	} else {
		backend = "gstreamer"
	}

	flag.BoolVar(&listDevices, "listdevices", false, "if set, lists devices and exits")
	flag.StringVar(&configPath, "config", "", "yaml configuration file")
	flag.StringVar(&backend, "backend", backend, "camera backend: imagesnap on macOS; gstreamer, ffmpeg or v4l on linux; opencv when built with tag gocv; testpattern")
	flag.StringVar(&saveDir, "dir", "", "directory to save snapshots to, overrides the configuration")
	flag.StringVar(&previewDir, "preview", "", "if set, write the newest preview image of each camera to this directory")
	flag.BoolVar(&verbose, "verbose", false, "print verbose output")
}

func usage() {
	log.Println("usage: dualcam [flags]")
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	log.SetFlags(0)
	flag.Usage = usage
	flag.Parse()
	if len(flag.Args()) != 0 {
		usage()
	}
	os.Exit(main0())
}

func loadConfig() (*dualcam.Config, error) {
	cfg := dualcam.Default()
	if configPath != "" {
		var err error
		cfg, err = dualcam.Load(configPath)
		if err != nil {
			return nil, err
		}
	}

	// Flags given on the command line win over the file.
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["backend"] || cfg.Backend == "" {
		cfg.Backend = backend
	}
	if saveDir != "" {
		cfg.SaveDir = saveDir
	}
	cfg.Verbose = cfg.Verbose || verbose
	return cfg, nil
}

func main0() int {
	cfg, err := loadConfig()
	if err != nil {
		log.Printf("loading config: %v", err)
		return 1
	}

	newDriver, ok := drivers[cfg.Backend]
	if !ok {
		log.Printf("unknown backend %q", cfg.Backend)
		return 2
	}
	driver := newDriver(cfg)

	if listDevices {
		lister, ok := driver.(camera.Lister)
		if !ok {
			log.Printf("backend %q cannot list devices", cfg.Backend)
			return 1
		}
		devs, err := lister.ListDevices()
		if err != nil {
			log.Printf("listing devices: %v", err)
			return 1
		}
		printDevices(os.Stdout, devs)
		return 0
	}

	ctrl, err := app.New(driver, app.OptsFromConfig(cfg))
	if err != nil {
		log.Printf("new controller: %v", err)
		return 1
	}
	defer ctrl.Close()

	devices, err := ctrl.Devices()
	if err != nil {
		log.Printf("enumerating devices: %v", err)
		return 1
	}
	fmt.Printf("devices: %v\n", devices)
	if len(devices) == 0 {
		fmt.Println("no cameras found")
	}
	bindings := app.DefaultBindings(devices)
	for _, slot := range camera.Slots {
		index, ok := bindings[slot]
		if !ok {
			continue
		}
		if err := ctrl.Connect(slot, index); err != nil {
			log.Printf("%v", err)
		}
		fmt.Println(renderSlot(ctrl.SlotStatus(slot)))
	}

	var preview *previewWriter
	if previewDir != "" {
		preview, err = newPreviewWriter(previewDir)
		if err != nil {
			log.Printf("preview: %v", err)
			return 1
		}
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	commands := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			commands <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			log.Printf("reading commands: %v", err)
		}
		close(commands)
	}()

	states := map[camera.Slot]poll.State{}
	for {
		select {
		case <-signals:
			return 0
		case line, ok := <-commands:
			if !ok {
				// Keep running on closed stdin, until a signal.
				commands = nil
				continue
			}
			if quit := runCommand(ctrl, os.Stdout, line); quit {
				return 0
			}
		case u := <-ctrl.Updates():
			if prev, ok := states[u.Slot]; !ok || prev != u.State {
				fmt.Println(renderUpdate(u))
				states[u.Slot] = u.State
			}
			if preview != nil && u.Image != nil {
				if err := preview.write(u.Slot, u.Image); err != nil {
					log.Printf("preview: %v", err)
				}
			}
		case ev := <-ctrl.Statuses():
			fmt.Println(renderStatus(ev))
		}
	}
}
