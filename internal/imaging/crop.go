package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
)

// CropResult contains the cropped image data
type CropResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// Crop extracts a rectangular region from an image
func Crop(img image.Image, x1, y1, x2, y2 int, scale float64) (*CropResult, error) {
	bounds := img.Bounds()

	// Validate coordinates
	if x1 < bounds.Min.X || y1 < bounds.Min.Y || x2 > bounds.Max.X || y2 > bounds.Max.Y {
		return nil, fmt.Errorf("crop region (%d,%d)-(%d,%d) outside image bounds (%d,%d)-(%d,%d)",
			x1, y1, x2, y2, bounds.Min.X, bounds.Min.Y, bounds.Max.X, bounds.Max.Y)
	}
	if x1 >= x2 || y1 >= y2 {
		return nil, fmt.Errorf("invalid crop region: x1 must be < x2, y1 must be < y2")
	}

	cropped := imaging.Crop(img, image.Rect(x1, y1, x2, y2))

	if scale != 1.0 && scale > 0 {
		newWidth := int(float64(cropped.Bounds().Dx()) * scale)
		newHeight := int(float64(cropped.Bounds().Dy()) * scale)
		cropped = imaging.Resize(cropped, newWidth, newHeight, imaging.Lanczos)
	}

	return encodePNG(cropped)
}

func encodePNG(img image.Image) (*CropResult, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	b := img.Bounds()
	return &CropResult{
		Width:       b.Dx(),
		Height:      b.Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}

// CenterSquare returns the square of side min(w, h)/factor centered in bounds.
func CenterSquare(bounds image.Rectangle, factor int) (image.Rectangle, error) {
	if factor < 1 {
		return image.Rectangle{}, fmt.Errorf("crop factor %d must be at least 1", factor)
	}
	w, h := bounds.Dx(), bounds.Dy()
	side := w
	if h < side {
		side = h
	}
	side /= factor
	if side < 1 {
		return image.Rectangle{}, fmt.Errorf("crop factor %d leaves no pixels of a %dx%d image", factor, w, h)
	}
	x0 := bounds.Min.X + w/2 - side/2
	y0 := bounds.Min.Y + h/2 - side/2
	return image.Rect(x0, y0, x0+side, y0+side), nil
}

// CropCenter cuts the centered square of side min(w, h)/factor out of img.
// Images that support SubImage keep their pixel type, so 16-bit data stays
// 16-bit; others are converted to NRGBA.
func CropCenter(img image.Image, factor int) (image.Image, error) {
	rect, err := CenterSquare(img.Bounds(), factor)
	if err != nil {
		return nil, err
	}
	if sub, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return sub.SubImage(rect), nil
	}
	return imaging.Crop(img, rect), nil
}

// SaveImage writes img to path, format by extension, creating parent
// directories as needed.
func SaveImage(path string, img image.Image) error {
	return saveImage(path, img)
}
