package console

import (
	"testing"
	"unsafe"
)

func makeTestAttr(fg, bg Attr) Attr {
	return (bg << 4) | (fg & 0xF)
}

// mockFramebuffer backs a Framebuffer console with an ordinary Go pixel
// slice sized for cols x rows character cells at 32bpp.
func mockFramebuffer(cols, rows int) (*Framebuffer, []uint32) {
	width := uint64(cols * glyphSize)
	height := uint64(rows * glyphSize)
	pixels := make([]uint32, width*height)

	var cons Framebuffer
	cons.Init(width, height, width*4, uintptr(unsafe.Pointer(&pixels[0])))
	return &cons, pixels
}

func TestFramebufferInit(t *testing.T) {
	cons, _ := mockFramebuffer(80, 25)

	if w, h := cons.Dimensions(); w != 80 || h != 25 {
		t.Fatalf("expected console dimensions after Init() to be (80, 25); got (%d, %d)", w, h)
	}
}

func TestFramebufferWriteRendersGlyphPixels(t *testing.T) {
	cons, pixels := mockFramebuffer(4, 2)

	attr := makeTestAttr(White, Black)
	cons.Write('A', attr, 1, 1)

	glyph := fontGlyph('A')
	fg := attrColor[White]
	bg := attrColor[Black]

	for row := 0; row < glyphSize; row++ {
		for col := 0; col < glyphSize; col++ {
			px := (uint64(glyphSize)+uint64(row))*cons.pitchPixels + uint64(glyphSize) + uint64(col)

			exp := bg
			if glyph[row]&(0x80>>uint(col)) != 0 {
				exp = fg
			}
			if pixels[px] != exp {
				t.Fatalf("pixel mismatch at glyph (%d,%d): got %x, want %x", row, col, pixels[px], exp)
			}
		}
	}
}

func TestFramebufferWriteOutOfBoundsIsNoop(t *testing.T) {
	cons, pixels := mockFramebuffer(2, 2)

	cons.Write('X', makeTestAttr(White, Black), 2, 0)
	cons.Write('X', makeTestAttr(White, Black), 0, 2)

	for i, px := range pixels {
		if px != 0 {
			t.Fatalf("expected the framebuffer to stay untouched; pixel %d is %x", i, px)
		}
	}
}

func TestFramebufferClearFillsWithBackground(t *testing.T) {
	cons, pixels := mockFramebuffer(2, 2)

	for i := range pixels {
		pixels[i] = 0xDEADBEEF
	}

	cons.Clear(0, 0, 500, 500)

	exp := attrColor[clearColor]
	for i, px := range pixels {
		if px != exp {
			t.Fatalf("expected cleared pixel %d to be %x; got %x", i, exp, px)
		}
	}
}

func TestFramebufferScrollUp(t *testing.T) {
	cons, pixels := mockFramebuffer(2, 3)

	// Paint each character row with a distinct color.
	rowPixels := cons.pitchPixels * glyphSize
	for row := 0; row < 3; row++ {
		for i := uint64(0); i < rowPixels; i++ {
			pixels[uint64(row)*rowPixels+i] = uint32(row + 1)
		}
	}

	cons.Scroll(Up, 1)

	for i := uint64(0); i < rowPixels; i++ {
		if pixels[i] != 2 {
			t.Fatalf("expected first row to hold the second row's pixels after scroll; pixel %d is %x", i, pixels[i])
		}
		if pixels[rowPixels+i] != 3 {
			t.Fatalf("expected second row to hold the third row's pixels after scroll; pixel %d is %x", i, pixels[rowPixels+i])
		}
		if exp := attrColor[clearColor]; pixels[2*rowPixels+i] != exp {
			t.Fatalf("expected last row to be cleared after scroll; pixel %d is %x", i, pixels[2*rowPixels+i])
		}
	}
}
