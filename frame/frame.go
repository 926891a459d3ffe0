// Package frame transforms camera frames into preview images and into the
// images that are saved.
package frame

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// ScaledSize returns the size of a w x h image scaled to fit a size x size
// square with its aspect ratio kept. The long side becomes size. Neither
// side is smaller than one pixel.
func ScaledSize(w, h, size int) (int, int) {
	if w <= 0 || h <= 0 || size <= 0 {
		return 0, 0
	}
	ratio := float64(w) / float64(h)
	var sw, sh int
	if ratio > 1 {
		sw = size
		sh = int(float64(size) / ratio)
	} else {
		sh = size
		sw = int(float64(size) * ratio)
	}
	if sw < 1 {
		sw = 1
	}
	if sh < 1 {
		sh = 1
	}
	return sw, sh
}

// ProcessForDisplay mirrors img horizontally, resizes it with a Lanczos
// filter to fit a size x size square, and centers it on a black canvas of
// exactly that size. The result is always size x size, whatever the aspect
// ratio of img. A nil or empty img gives nil.
//
// Any input colour model is converted to NRGBA, the order the preview
// expects.
func ProcessForDisplay(img image.Image, size int) *image.NRGBA {
	if img == nil || img.Bounds().Empty() || size <= 0 {
		return nil
	}
	mirrored := imaging.FlipH(img)
	b := mirrored.Bounds()
	sw, sh := ScaledSize(b.Dx(), b.Dy(), size)
	scaled := imaging.Resize(mirrored, sw, sh, imaging.Lanczos)
	canvas := imaging.New(size, size, color.Black)
	return imaging.Paste(canvas, scaled, image.Pt((size-sw)/2, (size-sh)/2))
}

// PrepareForSave mirrors img horizontally and keeps its full resolution. A
// nil or empty img gives nil.
func PrepareForSave(img image.Image) image.Image {
	if img == nil || img.Bounds().Empty() {
		return nil
	}
	return imaging.FlipH(img)
}
