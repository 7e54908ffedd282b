package datasets

import (
	"fmt"
	"image"
	_ "image/jpeg" // registers JPEG decoding
	_ "image/png"  // registers PNG decoding
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Noofbiz/vidpred/imgtensor"
)

var frameExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

// listFrames returns the image files of a sequence directory sorted by name.
func listFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var frames []string
	for _, e := range entries {
		if e.IsDir() || !frameExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		frames = append(frames, filepath.Join(dir, e.Name()))
	}
	sort.Strings(frames)
	return frames, nil
}

// listSequenceDirs returns the sub-directories of root sorted by name.
func listSequenceDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(root, e.Name()))
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// everyNth keeps frames 0, n, 2n, ...
func everyNth(frames []string, n int) []string {
	if n <= 1 {
		return frames
	}
	kept := make([]string, 0, (len(frames)+n-1)/n)
	for i := 0; i < len(frames); i += n {
		kept = append(kept, frames[i])
	}
	return kept
}

// loadFrame decodes an image file, resizes it to size x size (when size > 0)
// and appends its pixels to dst in H, W, C order with values in [0, 1].
func loadFrame(dst []float32, path string, size int) ([]float32, image.Rectangle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, image.Rectangle{}, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, image.Rectangle{}, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if size > 0 {
		img = imgtensor.Resize(img, size, size)
	}

	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			dst = append(dst, float32(r>>8)/255, float32(g>>8)/255, float32(b>>8)/255)
		}
	}
	return dst, bounds, nil
}
