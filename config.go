// Package dualcam previews one or two webcams, takes snapshots from them and
// stores the snapshots as timestamped image files.
//
// The root package holds the configuration shared by the camera backends,
// the polling loop and the writer. The work is done in the subpackages:
// camera (devices and slots), frame (display and save transforms), poll
// (background preview loop), store (image files) and app (the controller
// tying them together).
package dualcam

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// CaptureConfig is the resolution requested from the cameras. Devices treat
// it as a hint and may deliver another size.
type CaptureConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Config aggregates all application configuration.
type Config struct {
	SaveDir       string        `yaml:"save_dir"`        // where snapshots are written
	DisplaySize   int           `yaml:"display_size"`    // side of the square preview image
	Capture       CaptureConfig `yaml:"capture"`         // requested camera resolution
	FPS           int           `yaml:"fps"`             // preview polling rate
	ProbeCount    int           `yaml:"probe_count"`     // device indices probed at startup
	ProbePauseMs  int           `yaml:"probe_pause_ms"`  // pause between probes, lets drivers settle
	Backend       string        `yaml:"backend"`         // camera driver, e.g. "gstreamer", "v4l"
	ImageFormat   string        `yaml:"image_format"`    // extension of saved files: jpg, png, ...
	JPEGQuality   int           `yaml:"jpeg_quality"`    // 1-100
	ReadTimeoutMs int           `yaml:"read_timeout_ms"` // max wait for one frame
	StatusResetMs int           `yaml:"status_reset_ms"` // capture status falls back to normal after this
	SingleCamera  bool          `yaml:"single_camera"`   // name files without the camera suffix
	Verbose       bool          `yaml:"verbose"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML file and returns the configuration. Fields missing from
// the file get their default value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.SaveDir == "" {
		c.SaveDir = defaultSaveDir()
	}
	if c.DisplaySize <= 0 {
		c.DisplaySize = 640
	}
	if c.Capture.Width <= 0 {
		c.Capture.Width = 1280
	}
	if c.Capture.Height <= 0 {
		c.Capture.Height = 720
	}
	if c.FPS <= 0 {
		c.FPS = 30
	}
	if c.ProbeCount <= 0 {
		c.ProbeCount = 10
	}
	if c.ProbePauseMs < 0 {
		c.ProbePauseMs = 0
	} else if c.ProbePauseMs == 0 {
		c.ProbePauseMs = 100
	}
	if c.ImageFormat == "" {
		c.ImageFormat = "jpg"
	}
	if c.JPEGQuality <= 0 {
		c.JPEGQuality = 95
	}
	if c.ReadTimeoutMs <= 0 {
		c.ReadTimeoutMs = 2000
	}
	if c.StatusResetMs <= 0 {
		c.StatusResetMs = 2000
	}
}

// Validate checks values that have no sensible default to fall back to.
func (c *Config) Validate() error {
	if c.JPEGQuality > 100 {
		return fmt.Errorf("jpeg_quality must be between 1 and 100, got %d", c.JPEGQuality)
	}
	if c.FPS > 1000 {
		return fmt.Errorf("fps must be <= 1000, got %d", c.FPS)
	}
	switch strings.ToLower(strings.TrimPrefix(c.ImageFormat, ".")) {
	case "jpg", "jpeg", "png", "bmp", "tif", "tiff", "gif":
	default:
		return fmt.Errorf("unsupported image_format %q", c.ImageFormat)
	}
	return nil
}

// CaptureSize returns the requested capture resolution as width, height.
func (c *Config) CaptureSize() (int, int) {
	return c.Capture.Width, c.Capture.Height
}

// FrameInterval returns the sleep between two polls of the cameras.
func (c *Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(c.FPS)
}

// ProbePause returns the pause between two device probes.
func (c *Config) ProbePause() time.Duration {
	return time.Duration(c.ProbePauseMs) * time.Millisecond
}

// ReadTimeout returns how long a backend waits for a single frame.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMs) * time.Millisecond
}

// StatusReset returns the delay after which a capture status returns to
// normal.
func (c *Config) StatusReset() time.Duration {
	return time.Duration(c.StatusResetMs) * time.Millisecond
}

func defaultSaveDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "PhotoBook"
	}
	return filepath.Join(home, "PhotoBook")
}
