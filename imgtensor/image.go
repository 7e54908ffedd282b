package imgtensor

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ErrChannels is returned when a buffer has a channel count that cannot be
// mapped to an 8-bit image (only 1, 3 and 4 are supported).
var ErrChannels = errors.New("imgtensor: unsupported channel count")

// TextOrigin is the top-left corner used by DrawText.
var TextOrigin = image.Pt(4, 64)

func toByte(v float32) uint8 {
	// truncation, not rounding, to match the usual tensor -> uint8 cast
	return uint8(min(max(v, 0), 1) * 255)
}

// Image converts the buffer into an 8-bit image. Values are clamped to
// [0, 1]; a single channel is expanded to gray RGB.
func (b *Buffer) Image() (image.Image, error) {
	rect := image.Rect(0, 0, b.W, b.H)
	switch b.C {
	case 1, 3:
		img := image.NewRGBA(rect)
		for y := 0; y < b.H; y++ {
			for x := 0; x < b.W; x++ {
				var px color.RGBA
				if b.C == 1 {
					g := toByte(b.At(0, y, x))
					px = color.RGBA{R: g, G: g, B: g, A: 0xff}
				} else {
					px = color.RGBA{R: toByte(b.At(0, y, x)), G: toByte(b.At(1, y, x)), B: toByte(b.At(2, y, x)), A: 0xff}
				}
				img.SetRGBA(x, y, px)
			}
		}
		return img, nil
	case 4:
		img := image.NewNRGBA(rect)
		for y := 0; y < b.H; y++ {
			for x := 0; x < b.W; x++ {
				img.SetNRGBA(x, y, color.NRGBA{
					R: toByte(b.At(0, y, x)),
					G: toByte(b.At(1, y, x)),
					B: toByte(b.At(2, y, x)),
					A: toByte(b.At(3, y, x)),
				})
			}
		}
		return img, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrChannels, b.C)
	}
}

// FromImage converts any image into a 3-channel buffer with values in [0, 1].
func FromImage(img image.Image) (*Buffer, error) {
	bounds := img.Bounds()
	b, err := New(3, bounds.Dy(), bounds.Dx())
	if err != nil {
		return nil, err
	}
	for y := 0; y < b.H; y++ {
		for x := 0; x < b.W; x++ {
			r, g, bl, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			b.Set(0, y, x, float32(r>>8)/255)
			b.Set(1, y, x, float32(g>>8)/255)
			b.Set(2, y, x, float32(bl>>8)/255)
		}
	}
	return b, nil
}

// Resize scales an image to w x h with Catmull-Rom interpolation.
func Resize(src image.Image, w, h int) image.Image {
	if b := src.Bounds(); b.Dx() == w && b.Dy() == h {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Rect, src, src.Bounds(), draw.Over, nil)
	return dst
}

// DrawText renders text in black onto a copy of the buffer, with the top-left
// of the text at TextOrigin. The result always has 3 channels.
func DrawText(b *Buffer, text string) (*Buffer, error) {
	src, err := b.Image()
	if err != nil {
		return nil, err
	}
	rgba := image.NewRGBA(src.Bounds())
	draw.Draw(rgba, rgba.Bounds(), src, image.Point{}, draw.Src)

	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  rgba,
		Src:  image.NewUniform(color.Black),
		Face: face,
		Dot:  fixed.P(TextOrigin.X, TextOrigin.Y+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)
	return FromImage(rgba)
}
