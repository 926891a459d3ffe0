//go:build linux

package main

import (
	"github.com/photobook/dualcam"
	"github.com/photobook/dualcam/camera"
	"github.com/photobook/dualcam/camera/v4l"
)

func init() {
	drivers["v4l"] = func(cfg *dualcam.Config) camera.Driver {
		return v4l.NewDriver(v4l.Opts{Verbose: cfg.Verbose, ReadTimeout: cfg.ReadTimeout()})
	}
}
