// Package logo holds the paletted boot logos a framebuffer console can draw
// over itself during startup, and the generated logo data tools/makelogo
// produces from a source image.
package logo

import "image/color"

// ConsoleLogo is the logo the framebuffer console draws at boot, selected by
// BestFit once the console's real pixel dimensions are known. Left nil (no
// logo drawn) if no registered logo fits the console or none was generated.
var ConsoleLogo *Image

// Alignment defines the supported horizontal alignments for a console logo.
type Alignment uint8

const (
	// AlignLeft aligns the logo to the left side of the console.
	AlignLeft Alignment = iota

	// AlignCenter aligns the logo to the center of the console.
	AlignCenter

	// AlignRight aligns the logo to the right side of the console.
	AlignRight
)

// Image describes an 8bpp paletted logo: Width*Height bytes, each one a
// palette index, with TransparentIndex naming the entry the console should
// treat as "leave the pixel already there alone" rather than drawing.
type Image struct {
	Width  uint32
	Height uint32

	Align Alignment

	TransparentIndex uint8

	Palette []color.RGBA

	Data []uint8
}

// availableLogos holds every compiled-in logo, populated by each generated
// logo file's init() via append. tools/makelogo is the only thing expected
// to produce those files.
var availableLogos []*Image

// BestFit returns the largest registered logo whose height does not exceed
// an eighth of the console's pixel height, on the theory that a boot logo
// should never dominate the screen it is drawn on top of. It returns nil if
// no logo is small enough or none is registered.
func BestFit(consW, consH uint32) *Image {
	maxHeight := consH / 8

	var best *Image
	for _, img := range availableLogos {
		if img.Height > maxHeight {
			continue
		}
		if best == nil || img.Height > best.Height {
			best = img
		}
	}
	return best
}
