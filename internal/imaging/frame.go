package imaging

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/maruel/natural"

	"github.com/ironsheep/nrea-snr-mcp/internal/nrea"
)

// Channel selects which component of a color image becomes the frame.
type Channel int

const (
	// Gray is the BT.601 luma 0.299 R + 0.587 G + 0.114 B, rounded to an
	// integer level. Single-channel sources are taken as is.
	Gray Channel = iota
	Red
	Green
	Blue
)

func (c Channel) String() string {
	switch c {
	case Gray:
		return "gray"
	case Red:
		return "red"
	case Green:
		return "green"
	case Blue:
		return "blue"
	default:
		return fmt.Sprintf("Channel(%d)", int(c))
	}
}

// ParseChannel accepts gray, red, green or blue (or their first letter).
func ParseChannel(s string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "gray", "grey", "luma":
		return Gray, nil
	case "red", "r":
		return Red, nil
	case "green", "g":
		return Green, nil
	case "blue", "b":
		return Blue, nil
	default:
		return 0, fmt.Errorf("unknown channel %q (want gray, red, green or blue)", s)
	}
}

// Is16Bit reports whether img carries 16 bits per channel.
func Is16Bit(img image.Image) bool {
	switch img.(type) {
	case *image.Gray16, *image.RGBA64, *image.NRGBA64:
		return true
	}
	switch img.ColorModel() {
	case color.Gray16Model, color.RGBA64Model, color.NRGBA64Model:
		return true
	}
	return false
}

// FrameFromImage extracts channel ch of img as a frame. 8-bit sources map to
// [0, 255] and 16-bit sources to [0, 65535].
func FrameFromImage(img image.Image, ch Channel) (*nrea.Frame, error) {
	if ch < Gray || ch > Blue {
		return nil, fmt.Errorf("unknown channel %d", int(ch))
	}
	b := img.Bounds()
	frame, err := nrea.NewFrame(b.Dx(), b.Dy())
	if err != nil {
		return nil, fmt.Errorf("empty image: %w", err)
	}
	w := b.Dx()

	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < b.Dy(); y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+w]
			dst := frame.Pix[y*w : (y+1)*w]
			for x, v := range row {
				dst[x] = float64(v)
			}
		}
		return frame, nil
	case *image.Gray16:
		for y := 0; y < b.Dy(); y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+2*w]
			dst := frame.Pix[y*w : (y+1)*w]
			for x := range dst {
				dst[x] = float64(uint16(row[2*x])<<8 | uint16(row[2*x+1]))
			}
		}
		return frame, nil
	}

	// color.Color.RGBA widens 8-bit components by multiplying with 0x101.
	div := 1.0
	if !Is16Bit(img) {
		div = 0x101
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		dst := frame.Pix[(y-b.Min.Y)*w : (y-b.Min.Y+1)*w]
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			dst[x-b.Min.X] = channelValue(ch, float64(r)/div, float64(g)/div, float64(bl)/div)
		}
	}
	return frame, nil
}

func channelValue(ch Channel, r, g, b float64) float64 {
	switch ch {
	case Red:
		return r
	case Green:
		return g
	case Blue:
		return b
	default:
		if r == g && g == b {
			return r
		}
		return math.Round(0.299*r + 0.587*g + 0.114*b)
	}
}

// LoadFrame decodes path through the cache and extracts channel ch.
//
// Parameters:
//   - cache: The image cache to load through. A nil cache decodes the file
//     without retaining it.
//   - path: Path to the image file.
//   - ch: The channel that becomes the frame. Gray sources ignore it.
//
// Returns:
//   - *nrea.Frame: Pixel values on the source scale, [0, 255] for 8-bit and
//     [0, 65535] for 16-bit images.
//   - error: Non-nil if the file cannot be decoded or the image is empty.
func LoadFrame(cache *ImageCache, path string, ch Channel) (*nrea.Frame, error) {
	img, err := load(cache, path)
	if err != nil {
		return nil, err
	}
	frame, err := FrameFromImage(img, ch)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return frame, nil
}

// LoadFrames loads a batch of equally shaped frames in the order of paths.
// A nil cache decodes every file without retaining it, which keeps memory
// bounded for large folders.
func LoadFrames(cache *ImageCache, paths []string, ch Channel) ([]*nrea.Frame, error) {
	frames := make([]*nrea.Frame, 0, len(paths))
	for _, p := range paths {
		f, err := LoadFrame(cache, p, ch)
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	if err := nrea.CheckBatch("load frames", frames); err != nil {
		return nil, err
	}
	return frames, nil
}

var supportedExts = map[string]string{
	".png":  "png",
	".jpg":  "jpeg",
	".jpeg": "jpeg",
	".gif":  "gif",
	".tif":  "tiff",
	".tiff": "tiff",
	".bmp":  "bmp",
}

// ListImages returns the decodable images in dir, optionally restricted to
// one format ("tiff", "png", ...), in natural file name order so that
// "img_2" sorts before "img_10". Subdirectories are not searched.
func ListImages(dir, format string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	want := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(format)), ".")
	if ext, ok := supportedExts["."+want]; ok {
		want = ext
	} else if want != "" {
		return nil, fmt.Errorf("unsupported image format %q", format)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		got, ok := supportedExts[strings.ToLower(filepath.Ext(e.Name()))]
		if !ok || (want != "" && got != want) {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		if want == "" {
			return nil, fmt.Errorf("no images found in %s", dir)
		}
		return nil, fmt.Errorf("no %s images found in %s", want, dir)
	}

	sort.Sort(natural.StringSlice(names))
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
	}
	return paths, nil
}
