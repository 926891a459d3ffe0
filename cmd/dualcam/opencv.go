//go:build gocv

package main

import (
	"github.com/photobook/dualcam"
	"github.com/photobook/dualcam/camera"
	"github.com/photobook/dualcam/camera/opencv"
)

func init() {
	drivers["opencv"] = func(cfg *dualcam.Config) camera.Driver {
		return opencv.NewDriver(opencv.Opts{Verbose: cfg.Verbose, FPS: cfg.FPS})
	}
}
