// Package export writes image buffers, composed grids and animated GIFs to
// disk.
package export

import (
	"errors"
	"fmt"
	"image"
	"image/color/palette"
	"image/gif"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"

	"github.com/Noofbiz/vidpred/grid"
	"github.com/Noofbiz/vidpred/imgtensor"
	"github.com/Noofbiz/vidpred/internal/monitoring"
)

// DefaultFrameDelay is the time each GIF frame is shown, in seconds.
const DefaultFrameDelay = 0.25

var (
	// ErrNoFrames is returned when a GIF would have no frames.
	ErrNoFrames = errors.New("export: no frames")

	// ErrCaptionMismatch is returned when captions do not line up with frames.
	ErrCaptionMismatch = errors.New("export: caption count mismatch")
)

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}

func writePNG(path string, img image.Image) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

// SavePNG writes the buffer as an 8-bit PNG. Values are clamped to [0, 1] and
// single-channel buffers are written as gray RGB.
func SavePNG(path string, b *imgtensor.Buffer) error {
	img, err := b.Image()
	if err != nil {
		return err
	}
	return writePNG(path, img)
}

// SaveGrid composes inputs with the given padding and writes the result.
func SaveGrid(path string, inputs []grid.Input, padding int) error {
	img, err := grid.Compose(inputs, padding)
	if err != nil {
		return err
	}
	return SavePNG(path, img)
}

// SaveScaled writes the buffer after linearly mapping [min, max] onto
// [0, 255*max]. Single-channel buffers are repeated into three channels.
func SaveScaled(path string, b *imgtensor.Buffer) error {
	if b.C == 1 {
		rgb, err := imgtensor.New(3, b.H, b.W)
		if err != nil {
			return err
		}
		for c := 0; c < 3; c++ {
			copy(rgb.Channel(c), b.Channel(0))
		}
		b = rgb
	}

	lo, hi := b.MinMax()
	out := b.Clone()
	for i, v := range b.Data {
		// Image() maps [0, 1] to [0, 255]
		out.Data[i] = 0
		if hi > lo {
			out.Data[i] = float32(float64(v-lo) / float64(hi-lo) * float64(hi))
		}
	}
	return SavePNG(path, out)
}

// Upscale enlarges img by an integer factor with nearest-neighbour sampling.
func Upscale(img image.Image, factor int) image.Image {
	if factor <= 1 {
		return img
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	draw.NearestNeighbor.Scale(dst, dst.Rect, img, b, draw.Src, nil)
	return dst
}

// GIFOptions controls animated GIF output.
type GIFOptions struct {
	// Delay is the time each frame is shown, in seconds.
	Delay float64

	// Scale enlarges every frame by an integer factor.
	Scale int
}

func (o GIFOptions) delay() int {
	d := o.Delay
	if d <= 0 {
		d = DefaultFrameDelay
	}
	return int(math.Round(d * 100))
}

// SaveGIF composes every frame with no padding and writes them as an
// animated GIF.
func SaveGIF(path string, frames [][]grid.Input, opts GIFOptions) error {
	if len(frames) == 0 {
		return ErrNoFrames
	}
	images := make([]*imgtensor.Buffer, len(frames))
	for i, f := range frames {
		img, err := grid.Compose(f, 0)
		if err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		images[i] = img
	}
	return writeGIF(path, images, opts)
}

// SaveGIFWithText captions every image with its text before composing each
// frame into a single row. text must have the same shape as frames.
func SaveGIFWithText(path string, frames [][]*imgtensor.Buffer, text [][]string, opts GIFOptions) error {
	if len(frames) == 0 {
		return ErrNoFrames
	}
	if len(text) != len(frames) {
		return fmt.Errorf("%w: %d frames, %d caption rows", ErrCaptionMismatch, len(frames), len(text))
	}
	images := make([]*imgtensor.Buffer, len(frames))
	for i, row := range frames {
		if len(text[i]) != len(row) {
			return fmt.Errorf("%w: frame %d has %d images and %d captions", ErrCaptionMismatch, i, len(row), len(text[i]))
		}
		captioned := make([]*imgtensor.Buffer, len(row))
		for j, b := range row {
			c, err := imgtensor.DrawText(b, text[i][j])
			if err != nil {
				return fmt.Errorf("frame %d image %d: %w", i, j, err)
			}
			captioned[j] = c
		}
		img, err := grid.Compose(grid.Leaves(captioned...), 0)
		if err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		images[i] = img
	}
	return writeGIF(path, images, opts)
}

func writeGIF(path string, frames []*imgtensor.Buffer, opts GIFOptions) error {
	anim := &gif.GIF{}
	delay := opts.delay()
	for i, b := range frames {
		img, err := b.Image()
		if err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		img = Upscale(img, opts.Scale)
		pal := image.NewPaletted(img.Bounds(), palette.Plan9)
		draw.FloydSteinberg.Draw(pal, pal.Rect, img, img.Bounds().Min)
		anim.Image = append(anim.Image, pal)
		anim.Delay = append(anim.Delay, delay)
	}

	if err := ensureDir(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := gif.EncodeAll(f, anim); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	monitoring.Logf("wrote %d frame gif to %s", len(frames), path)
	return f.Close()
}
