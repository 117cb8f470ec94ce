package imaging

import (
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/nrea-snr-mcp/internal/nrea"
)

// FrameToImage converts a frame to an 8-bit or 16-bit grayscale image.
//
// With normalize set the frame range is stretched onto the full output range
// by nrea.NormalizeRange. A constant frame then yields a black image together
// with an error wrapping nrea.ErrDegenerateRange; the image is still valid.
// Without normalize values are rounded and clamped to the output range.
func FrameToImage(frame *nrea.Frame, bitDepth int, normalize bool) (image.Image, error) {
	var max float64
	switch bitDepth {
	case 8:
		max = nrea.MaxUint8
	case 16:
		max = nrea.MaxUint16
	default:
		return nil, fmt.Errorf("unsupported bit depth %d (want 8 or 16)", bitDepth)
	}

	src := frame
	var warn error
	if normalize {
		norm, err := nrea.NormalizeRange(frame, max)
		if norm == nil {
			return nil, err
		}
		src, warn = norm, err
	} else if frame == nil || len(frame.Pix) != frame.Width*frame.Height || frame.Width <= 0 {
		return nil, fmt.Errorf("invalid frame")
	}

	rect := image.Rect(0, 0, src.Width, src.Height)
	if bitDepth == 8 {
		img := image.NewGray(rect)
		for i, v := range src.Pix {
			img.Pix[i] = uint8(clamp(v, max))
		}
		return img, warn
	}

	img := image.NewGray16(rect)
	for i, v := range src.Pix {
		q := uint16(clamp(v, max))
		img.Pix[2*i] = uint8(q >> 8)
		img.Pix[2*i+1] = uint8(q)
	}
	return img, warn
}

func clamp(v, max float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

// SaveFrame writes frame to path in the format implied by its extension,
// creating the parent directory if needed. PNG and TIFF keep 16-bit data.
//
// Parameters:
//   - path: Destination file. The extension selects the encoder (.png, .tif,
//     .tiff, .jpg, .jpeg, .bmp, .gif).
//   - frame: The frame to write.
//   - bitDepth: 8 or 16.
//   - normalize: Stretch [min, max] onto the full output range. Otherwise
//     values are rounded and clamped.
//
// # Errors
//
//   - Returns error if bitDepth is not 8 or 16 or the frame is malformed
//   - Returns error if the extension is unsupported or the file cannot be written
//   - Returns an error wrapping nrea.ErrDegenerateRange when a constant frame
//     was normalized. The black image has been written in that case; check
//     with IsDegenerate.
func SaveFrame(path string, frame *nrea.Frame, bitDepth int, normalize bool) error {
	img, warn := FrameToImage(frame, bitDepth, normalize)
	if img == nil {
		return warn
	}
	if err := saveImage(path, img); err != nil {
		return err
	}
	return warn
}

func saveImage(path string, img image.Image) error {
	if _, err := imaging.FormatFromFilename(path); err != nil {
		return fmt.Errorf("cannot save %s: %w", filepath.Base(path), err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}
	return nil
}

// IsDegenerate reports whether err only signals a constant frame that was
// normalized to black.
func IsDegenerate(err error) bool {
	return errors.Is(err, nrea.ErrDegenerateRange)
}
