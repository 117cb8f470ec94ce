package imaging

import (
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
)

func TestCrop(t *testing.T) {
	img := createPatternImage(100, 100)

	result, err := Crop(img, 0, 0, 50, 50, 1.0)
	if err != nil {
		t.Fatalf("Crop failed: %v", err)
	}

	if result.Width != 50 || result.Height != 50 {
		t.Errorf("dimensions: got %dx%d, want 50x50", result.Width, result.Height)
	}

	if result.MimeType != "image/png" {
		t.Errorf("MimeType: got %s, want image/png", result.MimeType)
	}

	// Verify base64 can be decoded
	_, err = base64.StdEncoding.DecodeString(result.ImageBase64)
	if err != nil {
		t.Errorf("failed to decode base64: %v", err)
	}
}

func TestCrop_WithScale(t *testing.T) {
	img := createInMemoryImage(100, 100, color.RGBA{255, 0, 0, 255})

	// Scale up 2x
	result, err := Crop(img, 0, 0, 50, 50, 2.0)
	if err != nil {
		t.Fatalf("Crop with scale failed: %v", err)
	}

	if result.Width != 100 || result.Height != 100 {
		t.Errorf("scaled dimensions: got %dx%d, want 100x100", result.Width, result.Height)
	}
}

func TestCrop_ScaleDown(t *testing.T) {
	img := createInMemoryImage(100, 100, color.RGBA{255, 0, 0, 255})

	// Scale down 0.5x
	result, err := Crop(img, 0, 0, 100, 100, 0.5)
	if err != nil {
		t.Fatalf("Crop with scale down failed: %v", err)
	}

	if result.Width != 50 || result.Height != 50 {
		t.Errorf("scaled dimensions: got %dx%d, want 50x50", result.Width, result.Height)
	}
}

func TestCrop_OutOfBounds(t *testing.T) {
	img := createInMemoryImage(100, 100, color.RGBA{255, 0, 0, 255})

	tests := []struct {
		name           string
		x1, y1, x2, y2 int
	}{
		{"x1 negative", -1, 0, 50, 50},
		{"y1 negative", 0, -1, 50, 50},
		{"x2 too large", 0, 0, 101, 50},
		{"y2 too large", 0, 0, 50, 101},
		{"all out of bounds", -1, -1, 200, 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Crop(img, tt.x1, tt.y1, tt.x2, tt.y2, 1.0)
			if err == nil {
				t.Error("Crop should fail for out-of-bounds coordinates")
			}
		})
	}
}

func TestCrop_InvalidRegion(t *testing.T) {
	img := createInMemoryImage(100, 100, color.RGBA{255, 0, 0, 255})

	tests := []struct {
		name           string
		x1, y1, x2, y2 int
	}{
		{"x1 >= x2", 50, 0, 50, 50},
		{"x1 > x2", 60, 0, 50, 50},
		{"y1 >= y2", 0, 50, 50, 50},
		{"y1 > y2", 0, 60, 50, 50},
		{"zero area", 50, 50, 50, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Crop(img, tt.x1, tt.y1, tt.x2, tt.y2, 1.0)
			if err == nil {
				t.Error("Crop should fail for invalid region")
			}
		})
	}
}

func TestCrop_FullImage(t *testing.T) {
	img := createInMemoryImage(100, 100, color.RGBA{255, 0, 0, 255})

	result, err := Crop(img, 0, 0, 100, 100, 1.0)
	if err != nil {
		t.Fatalf("Crop full image failed: %v", err)
	}

	if result.Width != 100 || result.Height != 100 {
		t.Errorf("dimensions: got %dx%d, want 100x100", result.Width, result.Height)
	}
}

func TestCrop_VerifyContent(t *testing.T) {
	img := createPatternImage(100, 100)

	// Crop top-left quadrant (should be red)
	result, err := Crop(img, 0, 0, 50, 50, 1.0)
	if err != nil {
		t.Fatalf("Crop failed: %v", err)
	}

	// Decode the result and verify color
	decoded, err := base64.StdEncoding.DecodeString(result.ImageBase64)
	if err != nil {
		t.Fatalf("failed to decode base64: %v", err)
	}

	croppedImg, err := png.Decode(strings.NewReader(string(decoded)))
	if err != nil {
		t.Fatalf("failed to decode PNG: %v", err)
	}

	// Sample center pixel - should be red
	r, g, b, _ := croppedImg.At(25, 25).RGBA()
	r8, g8, b8 := uint8(r>>8), uint8(g>>8), uint8(b>>8)

	if r8 != 255 || g8 != 0 || b8 != 0 {
		t.Errorf("cropped image color: got (%d,%d,%d), want (255,0,0)", r8, g8, b8)
	}
}

func TestCenterSquare(t *testing.T) {
	tests := []struct {
		name   string
		bounds image.Rectangle
		factor int
		want   image.Rectangle
	}{
		{"factor 1 landscape", image.Rect(0, 0, 100, 60), 1, image.Rect(20, 0, 80, 60)},
		{"factor 2 square", image.Rect(0, 0, 100, 100), 2, image.Rect(25, 25, 75, 75)},
		{"factor 4 portrait", image.Rect(0, 0, 1440, 2040), 4, image.Rect(540, 840, 900, 1200)},
		{"odd side", image.Rect(0, 0, 11, 11), 3, image.Rect(4, 4, 7, 7)},
		{"offset bounds", image.Rect(10, 20, 110, 120), 2, image.Rect(35, 45, 85, 95)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CenterSquare(tt.bounds, tt.factor)
			if err != nil {
				t.Fatalf("CenterSquare failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCenterSquare_Errors(t *testing.T) {
	if _, err := CenterSquare(image.Rect(0, 0, 10, 10), 0); err == nil {
		t.Error("factor 0 should fail")
	}
	if _, err := CenterSquare(image.Rect(0, 0, 3, 10), 4); err == nil {
		t.Error("factor larger than the short side should fail")
	}
}

func TestCropCenter_Keeps16Bit(t *testing.T) {
	src := image.NewGray16(image.Rect(0, 0, 40, 20))
	src.SetGray16(20, 10, color.Gray16{Y: 60000})

	got, err := CropCenter(src, 2)
	if err != nil {
		t.Fatalf("CropCenter failed: %v", err)
	}
	g16, ok := got.(*image.Gray16)
	if !ok {
		t.Fatalf("CropCenter returned %T, want *image.Gray16", got)
	}
	if g16.Bounds() != image.Rect(15, 5, 25, 15) {
		t.Errorf("bounds: got %v", g16.Bounds())
	}
	if v := g16.Gray16At(20, 10).Y; v != 60000 {
		t.Errorf("center value: got %d, want 60000", v)
	}
}

func TestCropCenter_VerifyContent(t *testing.T) {
	img := createPatternImage(100, 100)

	got, err := CropCenter(img, 4)
	if err != nil {
		t.Fatalf("CropCenter failed: %v", err)
	}
	b := got.Bounds()
	if b.Dx() != 25 || b.Dy() != 25 {
		t.Fatalf("dimensions: got %dx%d, want 25x25", b.Dx(), b.Dy())
	}

	// Top-left corner of the crop lies in the red quadrant.
	r, g, bl, _ := got.At(b.Min.X, b.Min.Y).RGBA()
	if r>>8 != 255 || g>>8 != 0 || bl>>8 != 0 {
		t.Errorf("corner color: got (%d,%d,%d), want (255,0,0)", r>>8, g>>8, bl>>8)
	}
}
