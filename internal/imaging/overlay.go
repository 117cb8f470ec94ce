package imaging

import (
	"fmt"
	"image"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/ironsheep/nrea-snr-mcp/internal/nrea"
)

// OverlayStyle configures ROIOverlay. Empty fields take the defaults below.
type OverlayStyle struct {
	SignalHex     string  // tint of the signal region, default "#00ff00"
	BackgroundHex string  // tint of the background region, default "#ff0000"
	Alpha         float64 // blend factor in (0, 1], default 0.3
	ShowCenter    bool    // draw a crosshair and the center coordinates
}

// OverlayResult contains the rendered overlay
type OverlayResult struct {
	Width            int    `json:"width"`
	Height           int    `json:"height"`
	ImageBase64      string `json:"image_base64"`
	MimeType         string `json:"mime_type"`
	SignalPixels     int    `json:"signal_pixels"`
	BackgroundPixels int    `json:"background_pixels"`
}

func (s OverlayStyle) withDefaults() OverlayStyle {
	if s.SignalHex == "" {
		s.SignalHex = "#00ff00"
	}
	if s.BackgroundHex == "" {
		s.BackgroundHex = "#ff0000"
	}
	if s.Alpha <= 0 || s.Alpha > 1 {
		s.Alpha = 0.3
	}
	return s
}

// ROIOverlay renders frame stretched to 8-bit gray and tints the pixels that
// EstimateSNR would sample as signal and as background. It is a diagnostic
// for checking center and radius settings and has no effect on any metric.
//
// Parameters:
//   - frame: The frame to render. A constant frame renders black.
//   - opts: The SNR options whose signal and background masks are drawn.
//   - style: Tint colors, blend factor and crosshair. Zero fields use defaults.
//
// Returns:
//   - *OverlayResult: A base64 PNG of the overlay plus the number of pixels in
//     each mask, which match the sample counts of EstimateSNR.
//   - error: Non-nil if a color is not a valid hex code or the frame is
//     malformed.
func ROIOverlay(frame *nrea.Frame, opts nrea.SNROptions, style OverlayStyle) (*OverlayResult, error) {
	style = style.withDefaults()
	sigTint, err := colorful.Hex(style.SignalHex)
	if err != nil {
		return nil, fmt.Errorf("invalid signal color %q: %w", style.SignalHex, err)
	}
	bgTint, err := colorful.Hex(style.BackgroundHex)
	if err != nil {
		return nil, fmt.Errorf("invalid background color %q: %w", style.BackgroundHex, err)
	}

	base, err := FrameToImage(frame, 8, true)
	if base == nil {
		return nil, err
	}
	gray := base.(*image.Gray)

	sig := nrea.SignalMask(frame.Width, frame.Height, opts)
	bg := nrea.BackgroundMask(frame.Width, frame.Height, opts)

	result := image.NewRGBA(image.Rect(0, 0, frame.Width, frame.Height))
	var nSig, nBg int
	for i, v := range gray.Pix {
		c := colorful.Color{R: float64(v) / 255, G: float64(v) / 255, B: float64(v) / 255}
		switch {
		case sig[i]:
			c = c.BlendRgb(sigTint, style.Alpha)
			nSig++
		case bg[i]:
			c = c.BlendRgb(bgTint, style.Alpha)
			nBg++
		}
		r, g, b := c.Clamped().RGB255()
		result.Pix[4*i] = r
		result.Pix[4*i+1] = g
		result.Pix[4*i+2] = b
		result.Pix[4*i+3] = 255
	}

	if style.ShowCenter {
		drawCrosshair(result, opts.Center.X, opts.Center.Y, 3, color.RGBA{255, 255, 0, 255})
		drawLabel(result, opts.Center.X+4, opts.Center.Y+4,
			fmt.Sprintf("%d,%d", opts.Center.X, opts.Center.Y),
			color.RGBA{255, 255, 255, 255}, color.RGBA{0, 0, 0, 180})
	}

	enc, err := encodePNG(result)
	if err != nil {
		return nil, err
	}
	return &OverlayResult{
		Width:            enc.Width,
		Height:           enc.Height,
		ImageBase64:      enc.ImageBase64,
		MimeType:         enc.MimeType,
		SignalPixels:     nSig,
		BackgroundPixels: nBg,
	}, nil
}

func drawCrosshair(img *image.RGBA, cx, cy, arm int, c color.RGBA) {
	for d := -arm; d <= arm; d++ {
		setClipped(img, cx+d, cy, c)
		setClipped(img, cx, cy+d, c)
	}
}

func setClipped(img *image.RGBA, x, y int, c color.RGBA) {
	if image.Pt(x, y).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}

// drawLabel draws text with a 3x5 pixel font for digits, comma and minus.
func drawLabel(img *image.RGBA, x, y int, text string, fg, bg color.RGBA) {
	glyphs := map[rune][]string{
		'0': {"111", "101", "101", "101", "111"},
		'1': {"010", "110", "010", "010", "111"},
		'2': {"111", "001", "111", "100", "111"},
		'3': {"111", "001", "111", "001", "111"},
		'4': {"101", "101", "111", "001", "001"},
		'5': {"111", "100", "111", "001", "111"},
		'6': {"111", "100", "111", "101", "111"},
		'7': {"111", "001", "001", "001", "001"},
		'8': {"111", "101", "111", "101", "111"},
		'9': {"111", "101", "111", "001", "111"},
		',': {"000", "000", "000", "010", "010"},
		'-': {"000", "000", "111", "000", "000"},
	}

	charWidth := 4
	labelWidth := len(text) * charWidth
	labelHeight := 7

	for dy := -1; dy < labelHeight; dy++ {
		for dx := -1; dx < labelWidth; dx++ {
			setClipped(img, x+dx, y+dy, bg)
		}
	}

	cx := x
	for _, ch := range text {
		glyph, ok := glyphs[ch]
		if !ok {
			cx += charWidth
			continue
		}
		for row, line := range glyph {
			for col, pixel := range line {
				if pixel == '1' {
					setClipped(img, cx+col, y+row, fg)
				}
			}
		}
		cx += charWidth
	}
}
