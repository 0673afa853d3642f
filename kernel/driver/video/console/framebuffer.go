package console

import (
	"reflect"
	"unsafe"
)

// glyphSize is the width and height, in pixels, of every font8x8 glyph.
const glyphSize = 8

// attrColor maps the 16 classic CGA attribute colors to 32-bit RGB values,
// since a Limine-class bootloader hands the kernel a linear pixel
// framebuffer rather than a VGA text-mode buffer.
var attrColor = [16]uint32{
	Black:        0x000000,
	Blue:         0x0000aa,
	Green:        0x00aa00,
	Cyan:         0x00aaaa,
	Red:          0xaa0000,
	Magenta:      0xaa00aa,
	Brown:        0xaa5500,
	LightGrey:    0xaaaaaa,
	Grey:         0x555555,
	LightBlue:    0x5555ff,
	LightGreen:   0x55ff55,
	LightCyan:    0x55ffff,
	LightRed:     0xff5555,
	LightMagenta: 0xff55ff,
	LightBrown:   0xffff55,
	White:        0xffffff,
}

// Framebuffer implements Console on top of a linear, 32-bit-per-pixel
// framebuffer, rendering each character cell as a glyphSize x glyphSize
// block via font8x8. It takes the place of the VGA-text-mode Ega console
// on Limine-booted, UEFI-era machines, where no text-mode hardware exists.
type Framebuffer struct {
	pixelWidth, pixelHeight uint64
	pitchPixels             uint64

	cols, rows uint16

	fb []uint32
}

// Init attaches the console to a physical framebuffer already mapped at
// virtAddr (the caller is responsible for having mapped it, typically via
// the HHDM window the boot protocol reports for framebuffer memory).
func (cons *Framebuffer) Init(width, height, pitch uint64, virtAddr uintptr) {
	cons.pixelWidth = width
	cons.pixelHeight = height
	cons.pitchPixels = pitch / 4

	cons.cols = uint16(width / glyphSize)
	cons.rows = uint16(height / glyphSize)

	cons.fb = *(*[]uint32)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  int(cons.pitchPixels * height),
		Cap:  int(cons.pitchPixels * height),
		Data: virtAddr,
	}))
}

// Dimensions returns the console size in character cells.
func (cons *Framebuffer) Dimensions() (uint16, uint16) {
	return cons.cols, cons.rows
}

func (cons *Framebuffer) putGlyph(ch byte, attr Attr, x, y uint16) {
	glyph := fontGlyph(ch)
	fg := attrColor[attr&0xF]
	bg := attrColor[(attr>>4)&0xF]

	baseX := uint64(x) * glyphSize
	baseY := uint64(y) * glyphSize

	for row := 0; row < glyphSize; row++ {
		bits := glyph[row]
		rowOffset := (baseY + uint64(row)) * cons.pitchPixels
		for col := 0; col < glyphSize; col++ {
			px := baseX + uint64(col)
			color := bg
			if bits&(0x80>>uint(col)) != 0 {
				color = fg
			}
			cons.fb[rowOffset+px] = color
		}
	}
}

// Write a char to the specified character cell.
func (cons *Framebuffer) Write(ch byte, attr Attr, x, y uint16) {
	if x >= cons.cols || y >= cons.rows {
		return
	}
	cons.putGlyph(ch, attr, x, y)
}

// Clear fills the specified rectangular region (in character cells) with
// the background color implied by clearColor.
func (cons *Framebuffer) Clear(x, y, width, height uint16) {
	if x >= cons.cols {
		x = cons.cols
	}
	if y >= cons.rows {
		y = cons.rows
	}
	if x+width > cons.cols {
		width = cons.cols - x
	}
	if y+height > cons.rows {
		height = cons.rows - y
	}

	for row := y; row < y+height; row++ {
		for col := x; col < x+width; col++ {
			cons.putGlyph(clearChar, Attr(clearColor), col, row)
		}
	}
}

// Scroll moves the console contents lines character-rows in the given
// direction, copying whole glyph-height pixel bands at a time.
func (cons *Framebuffer) Scroll(dir ScrollDir, lines uint16) {
	if lines == 0 || lines > cons.rows {
		return
	}

	rowPixels := cons.pitchPixels * glyphSize
	offset := uint64(lines) * rowPixels
	totalPixels := cons.pitchPixels * cons.pixelHeight

	switch dir {
	case Up:
		for i := uint64(0); i < totalPixels-offset; i++ {
			cons.fb[i] = cons.fb[i+offset]
		}
		for i := totalPixels - offset; i < totalPixels; i++ {
			cons.fb[i] = attrColor[clearColor]
		}
	case Down:
		for i := totalPixels - 1; i >= offset; i-- {
			cons.fb[i] = cons.fb[i-offset]
		}
		for i := uint64(0); i < offset; i++ {
			cons.fb[i] = attrColor[clearColor]
		}
	}
}
