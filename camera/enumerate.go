package camera

import (
	"errors"
	"fmt"
	"image"
	"log"
	"time"
)

// EnumerateOpts are options for Enumerate.
type EnumerateOpts struct {
	Verbose bool
	Pause   time.Duration // Pause after each probe, lets drivers settle.
	Size    image.Point   // Resolution requested while probing, zero for the driver default.
}

// Enumerate probes device indices [0, maxIndex) and returns, in ascending
// order, the indices that could be opened and returned a non-empty frame
// on a single read. Every probed device is closed again before the next
// index is tried.
//
// Enumerate must not be called while a Source holds any of the probed
// indices. An error is returned only when the driver reports ErrUnavailable,
// per-index failures just leave the index out.
func Enumerate(driver Driver, maxIndex int, opts *EnumerateOpts) ([]int, error) {
	var xopts EnumerateOpts
	if opts != nil {
		xopts = *opts
	}

	logf := func(format string, args ...interface{}) {
		if xopts.Verbose {
			log.Printf(format, args...)
		}
	}

	found := []int{}
	for i := 0; i < maxIndex; i++ {
		ok, err := probe(driver, i, xopts.Size)
		if err != nil {
			if errors.Is(err, ErrUnavailable) {
				return nil, fmt.Errorf("probing device %d: %w", i, err)
			}
			logf("probing device %d: %v", i, err)
		}
		if ok {
			logf("found camera %d", i)
			found = append(found, i)
		}
		if xopts.Pause > 0 && i+1 < maxIndex {
			time.Sleep(xopts.Pause)
		}
	}
	logf("found %d cameras", len(found))
	return found, nil
}

func probe(driver Driver, index int, size image.Point) (bool, error) {
	dev, err := driver.Open(index, size)
	if err != nil {
		return false, err
	}
	defer dev.Close()

	img, err := dev.Read()
	if err != nil {
		return false, err
	}
	if img == nil || img.Bounds().Empty() {
		return false, ErrNoFrame
	}
	return true, nil
}
