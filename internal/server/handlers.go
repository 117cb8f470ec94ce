package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ironsheep/nrea-snr-mcp/internal/archive"
	"github.com/ironsheep/nrea-snr-mcp/internal/config"
	"github.com/ironsheep/nrea-snr-mcp/internal/imaging"
	"github.com/ironsheep/nrea-snr-mcp/internal/metrics"
	"github.com/ironsheep/nrea-snr-mcp/internal/nrea"
	"github.com/ironsheep/nrea-snr-mcp/internal/stacking"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "image_load", "snr_estimate").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// paramError marks a failure caused by the tool arguments rather than by
// the operation itself.
type paramError struct {
	err error
}

func (e *paramError) Error() string { return e.err.Error() }
func (e *paramError) Unwrap() error { return e.err }

func invalidParams(format string, args ...interface{}) error {
	return &paramError{err: fmt.Errorf(format, args...)}
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Argument errors return -32602, every other tool failure -32000.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, codeInvalidParams, "Invalid params", err.Error())
	}

	log := s.log.With().Str("tool", params.Name).Logger()
	start := time.Now()

	result, err := s.executeTool(params.Name, params.Arguments)
	if err != nil {
		var pe *paramError
		if errors.As(err, &pe) {
			log.Debug().Err(err).Msg("invalid tool arguments")
			return s.errorResponse(req.ID, codeInvalidParams, "Invalid params", err.Error())
		}
		log.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("tool failed")
		return s.errorResponse(req.ID, codeToolFailed, "Tool execution failed", err.Error())
	}

	text, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("failed to encode tool result")
		return s.errorResponse(req.ID, codeToolFailed, "Tool execution failed", err.Error())
	}
	log.Debug().Dur("elapsed", time.Since(start)).Msg("tool call done")

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": string(text),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each tool handler:
//  1. Unmarshals arguments from JSON
//  2. Fills omitted parameters from the configuration
//  3. Loads frames (cached for single images, streamed for batches)
//  4. Calls the nrea, metrics or stacking operation
//  5. Returns the result or error
func (s *Server) executeTool(name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Basic Image Information
	case "image_load":
		return s.handleImageLoad(args)
	case "image_dimensions":
		return s.handleImageDimensions(args)

	// Region Operations
	case "image_crop":
		return s.handleImageCrop(args)
	case "image_crop_center":
		return s.handleImageCropCenter(args)

	// NREA Operations
	case "nrea_lowpass":
		return s.handleFrameOp(args, "lowpass", nrea.ApplyLowpass)
	case "nrea_compensate":
		return s.handleFrameOp(args, "compensated", nrea.Compensate)
	case "nrea_accumulate":
		return s.handleAccumulate(args)

	// SNR Operations
	case "snr_estimate":
		return s.handleSNREstimate(args)
	case "snr_batch":
		return s.handleSNRBatch(args)
	case "snr_trend":
		return s.handleSNRTrend(args)
	case "snr_kernel_sweep":
		return s.handleKernelSweep(args)
	case "image_similarity":
		return s.handleImageSimilarity(args)

	// Stacking and diagnostics
	case "image_stack":
		return s.handleImageStack(args)
	case "roi_overlay":
		return s.handleROIOverlay(args)
	case "device_list":
		return s.handleDeviceList()

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

func decodeArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 || string(args) == "null" {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return &paramError{err: err}
	}
	return nil
}

// jsonFloat encodes non-finite values as the strings "+Inf", "-Inf" and
// "NaN", which JSON numbers cannot represent.
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	case math.IsInf(v, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Inf"`), nil
	}
	return json.Marshal(v)
}

type snrReport struct {
	SNR            jsonFloat `json:"snr"`
	Signal         jsonFloat `json:"signal"`
	Noise          jsonFloat `json:"noise"`
	MeanROI        jsonFloat `json:"mean_roi"`
	MeanBackground jsonFloat `json:"mean_background"`
}

func newSNRReport(r nrea.SNRResult) snrReport {
	return snrReport{
		SNR:            jsonFloat(r.SNR),
		Signal:         jsonFloat(r.Signal),
		Noise:          jsonFloat(r.Noise),
		MeanROI:        jsonFloat(r.MeanROI),
		MeanBackground: jsonFloat(r.MeanBackground),
	}
}

type statReport struct {
	SNR    jsonFloat `json:"snr"`
	Signal jsonFloat `json:"signal"`
	Noise  jsonFloat `json:"noise"`
}

type reliabilityReport struct {
	Count int        `json:"count"`
	Mean  statReport `json:"mean"`
	Std   statReport `json:"std"`
	CV    statReport `json:"cv"`
}

func newStatReport(s metrics.Stat) statReport {
	return statReport{SNR: jsonFloat(s.SNR), Signal: jsonFloat(s.Signal), Noise: jsonFloat(s.Noise)}
}

// === Argument resolution ===

type kernelArgs struct {
	Kernel       string `json:"kernel"`
	KernelRadius int    `json:"kernel_radius"`
}

// kernel resolves the requested kernel on top of the configured one.
func (s *Server) kernel(a kernelArgs) (nrea.Kernel, error) {
	k, err := s.cfg.Kernel()
	if err != nil {
		return nrea.Kernel{}, err
	}
	if a.Kernel != "" {
		kind, err := nrea.ParseKernelKind(a.Kernel)
		if err != nil {
			return nrea.Kernel{}, &paramError{err: err}
		}
		k.Kind = kind
	}
	if a.KernelRadius != 0 {
		k.Radius = a.KernelRadius
	}
	if err := k.Validate(); err != nil {
		return nrea.Kernel{}, &paramError{err: err}
	}
	return k, nil
}

type regionArgs struct {
	CenterX          *int   `json:"center_x"`
	CenterY          *int   `json:"center_y"`
	Radius           *int   `json:"radius"`
	Device           string `json:"device"`
	Variant          string `json:"variant"`
	ROIShape         string `json:"roi_shape"`
	NoiseMode        string `json:"noise_mode"`
	BackgroundOffset *int   `json:"background_offset"`
}

func (r regionArgs) given() bool {
	return r.Device != "" || r.CenterX != nil || r.CenterY != nil || r.Radius != nil
}

// snrOptions resolves the light source region. A device supplies center and
// radius; explicit center_x, center_y and radius override it.
func (s *Server) snrOptions(r regionArgs) (nrea.SNROptions, error) {
	var region nrea.Region
	if r.Device != "" {
		reg, err := s.cfg.Region(r.Device, r.Variant)
		if err != nil {
			return nrea.SNROptions{}, &paramError{err: err}
		}
		region = reg
	} else if r.CenterX == nil || r.CenterY == nil || r.Radius == nil {
		return nrea.SNROptions{}, invalidParams("either device or center_x, center_y and radius are required")
	}
	if r.CenterX != nil {
		region.Center.X = *r.CenterX
	}
	if r.CenterY != nil {
		region.Center.Y = *r.CenterY
	}
	if r.Radius != nil {
		region.Radius = *r.Radius
	}

	opts, err := s.cfg.SNROptions(region)
	if err != nil {
		return nrea.SNROptions{}, err
	}
	if r.ROIShape != "" {
		if opts.Shape, err = nrea.ParseROIShape(r.ROIShape); err != nil {
			return nrea.SNROptions{}, &paramError{err: err}
		}
	}
	if r.NoiseMode != "" {
		if opts.Noise, err = nrea.ParseNoiseMode(r.NoiseMode); err != nil {
			return nrea.SNROptions{}, &paramError{err: err}
		}
	}
	if r.BackgroundOffset != nil {
		if *r.BackgroundOffset < 0 {
			return nrea.SNROptions{}, invalidParams("background_offset %d must not be negative", *r.BackgroundOffset)
		}
		opts.BackgroundOffset = r.BackgroundOffset
	}
	return opts, nil
}

type outputArgs struct {
	BitDepth  int   `json:"bit_depth"`
	Normalize *bool `json:"normalize"`
}

// writeFrame saves f with the requested or configured depth and
// normalization. A constant frame is still written; the returned warning
// says so.
func (s *Server) writeFrame(path string, f *nrea.Frame, o outputArgs) (string, error) {
	depth := s.cfg.Output.BitDepth
	if o.BitDepth != 0 {
		depth = o.BitDepth
	}
	normalize := s.cfg.Output.Normalize
	if o.Normalize != nil {
		normalize = *o.Normalize
	}

	err := imaging.SaveFrame(path, f, depth, normalize)
	s.cache.Evict(path)
	if imaging.IsDegenerate(err) {
		s.log.Warn().Str("path", path).Msg("constant result written as black image")
		return "result is constant and was written as a black image", nil
	}
	return "", err
}

func (s *Server) channel(name string) (imaging.Channel, error) {
	if name == "" {
		return s.cfg.Channel()
	}
	ch, err := imaging.ParseChannel(name)
	if err != nil {
		return 0, &paramError{err: err}
	}
	return ch, nil
}

func (s *Server) workers(n *int) int {
	if n != nil && *n > 0 {
		return *n
	}
	return s.cfg.Workers
}

// loadFrame reads one frame, from a CBOR archive when the path has the
// archive extension and through the image cache otherwise.
func (s *Server) loadFrame(path, channel string) (*nrea.Frame, error) {
	if path == "" {
		return nil, invalidParams("path is required")
	}
	if strings.EqualFold(filepath.Ext(path), archive.Ext) {
		f, _, err := archive.Load(path)
		return f, err
	}
	ch, err := s.channel(channel)
	if err != nil {
		return nil, err
	}
	return imaging.LoadFrame(s.cache, path, ch)
}

type batchArgs struct {
	Paths   []string `json:"paths"`
	Folder  string   `json:"folder"`
	Format  string   `json:"format"`
	Channel string   `json:"channel"`
}

func (b batchArgs) list() ([]string, error) {
	if len(b.Paths) > 0 {
		return b.Paths, nil
	}
	if b.Folder == "" {
		return nil, invalidParams("paths or folder is required")
	}
	return imaging.ListImages(b.Folder, b.Format)
}

// loadBatch decodes the frames of a batch without caching them.
func (s *Server) loadBatch(paths []string, channel string) ([]*nrea.Frame, error) {
	ch, err := s.channel(channel)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	frames, err := imaging.LoadFrames(nil, paths, ch)
	if err != nil {
		return nil, err
	}
	s.log.Debug().Int("frames", len(frames)).Dur("elapsed", time.Since(start)).Msg("batch loaded")
	return frames, nil
}

// === Basic Image Information Handlers ===

type imageLoadArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleImageLoad(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	return imaging.LoadImageInfo(s.cache, a.Path)
}

func (s *Server) handleImageDimensions(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	return imaging.GetDimensions(s.cache, a.Path)
}

// === Region Operation Handlers ===

type imageCropArgs struct {
	Path  string  `json:"path"`
	X1    int     `json:"x1"`
	Y1    int     `json:"y1"`
	X2    int     `json:"x2"`
	Y2    int     `json:"y2"`
	Scale float64 `json:"scale"`
}

func (s *Server) handleImageCrop(args json.RawMessage) (interface{}, error) {
	var a imageCropArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Scale == 0 {
		a.Scale = 1.0
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	return imaging.Crop(img, a.X1, a.Y1, a.X2, a.Y2, a.Scale)
}

type imageCropCenterArgs struct {
	Path       string `json:"path"`
	Factor     int    `json:"factor"`
	OutputPath string `json:"output_path"`
}

type cropCenterResult struct {
	X1          int    `json:"x1"`
	Y1          int    `json:"y1"`
	X2          int    `json:"x2"`
	Y2          int    `json:"y2"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	OutputPath  string `json:"output_path,omitempty"`
	ImageBase64 string `json:"image_base64,omitempty"`
	MimeType    string `json:"mime_type,omitempty"`
}

func (s *Server) handleImageCropCenter(args json.RawMessage) (interface{}, error) {
	var a imageCropCenterArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Factor == 0 {
		a.Factor = 2
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	rect, err := imaging.CenterSquare(img.Bounds(), a.Factor)
	if err != nil {
		return nil, &paramError{err: err}
	}
	res := &cropCenterResult{
		X1: rect.Min.X, Y1: rect.Min.Y, X2: rect.Max.X, Y2: rect.Max.Y,
		Width: rect.Dx(), Height: rect.Dy(),
	}

	if a.OutputPath != "" {
		cropped, err := imaging.CropCenter(img, a.Factor)
		if err != nil {
			return nil, err
		}
		if err := imaging.SaveImage(a.OutputPath, cropped); err != nil {
			return nil, err
		}
		s.cache.Evict(a.OutputPath)
		res.OutputPath = a.OutputPath
		return res, nil
	}

	crop, err := imaging.Crop(img, rect.Min.X, rect.Min.Y, rect.Max.X, rect.Max.Y, 1.0)
	if err != nil {
		return nil, err
	}
	res.ImageBase64, res.MimeType = crop.ImageBase64, crop.MimeType
	return res, nil
}

// === NREA Handlers ===

type frameOpArgs struct {
	Path       string `json:"path"`
	OutputPath string `json:"output_path"`
	Channel    string `json:"channel"`
	kernelArgs
	outputArgs
}

type frameResult struct {
	OutputPath  string     `json:"output_path,omitempty"`
	ArchivePath string     `json:"archive_path,omitempty"`
	Width       int        `json:"width"`
	Height      int        `json:"height"`
	Frames      int        `json:"frames"`
	Kernel      string     `json:"kernel,omitempty"`
	Min         jsonFloat  `json:"min"`
	Max         jsonFloat  `json:"max"`
	Warning     string     `json:"warning,omitempty"`
	SNR         *snrReport `json:"snr,omitempty"`
}

func newFrameResult(f *nrea.Frame, frames int, kernel string) *frameResult {
	lo, hi := f.MinMax()
	return &frameResult{
		Width:  f.Width,
		Height: f.Height,
		Frames: frames,
		Kernel: kernel,
		Min:    jsonFloat(lo),
		Max:    jsonFloat(hi),
	}
}

// handleFrameOp runs a single-frame kernel operation and saves the result.
func (s *Server) handleFrameOp(args json.RawMessage, kind string, op func(*nrea.Frame, nrea.Kernel) (*nrea.Frame, error)) (interface{}, error) {
	var a frameOpArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.OutputPath == "" {
		return nil, invalidParams("output_path is required")
	}
	k, err := s.kernel(a.kernelArgs)
	if err != nil {
		return nil, err
	}
	frame, err := s.loadFrame(a.Path, a.Channel)
	if err != nil {
		return nil, err
	}

	out, err := op(frame, k)
	if err != nil {
		return nil, err
	}
	res := newFrameResult(out, 1, k.String())
	if res.Warning, err = s.writeFrame(a.OutputPath, out, a.outputArgs); err != nil {
		return nil, err
	}
	res.OutputPath = a.OutputPath
	s.log.Debug().Str("kind", kind).Str("kernel", k.String()).Str("output", a.OutputPath).Msg("frame written")
	return res, nil
}

type accumulateArgs struct {
	batchArgs
	kernelArgs
	outputArgs
	regionArgs
	PrefixLen   int    `json:"prefix_len"`
	Workers     *int   `json:"workers"`
	OutputPath  string `json:"output_path"`
	ArchivePath string `json:"archive_path"`
}

func (s *Server) handleAccumulate(args json.RawMessage) (interface{}, error) {
	var a accumulateArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	k, err := s.kernel(a.kernelArgs)
	if err != nil {
		return nil, err
	}
	var opts *nrea.SNROptions
	if a.regionArgs.given() {
		o, err := s.snrOptions(a.regionArgs)
		if err != nil {
			return nil, err
		}
		opts = &o
	}
	paths, err := a.batchArgs.list()
	if err != nil {
		return nil, err
	}
	if a.PrefixLen < 0 || a.PrefixLen > len(paths) {
		return nil, invalidParams("prefix_len %d outside [0, %d]", a.PrefixLen, len(paths))
	}
	if a.PrefixLen > 0 {
		paths = paths[:a.PrefixLen]
	}
	frames, err := s.loadBatch(paths, a.Channel)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	acc, err := nrea.Accumulate(frames, k, nrea.AccumulateOptions{Workers: s.workers(a.Workers)})
	if err != nil {
		return nil, err
	}
	s.log.Debug().Int("frames", len(frames)).Str("kernel", k.String()).Dur("elapsed", time.Since(start)).Msg("accumulated")

	res := newFrameResult(acc, len(frames), k.String())
	if a.OutputPath != "" {
		if res.Warning, err = s.writeFrame(a.OutputPath, acc, a.outputArgs); err != nil {
			return nil, err
		}
		res.OutputPath = a.OutputPath
	}
	if a.ArchivePath != "" {
		meta := archive.Meta{Kind: "accumulated", Kernel: k.Kind.String(), KernelRadius: k.Radius, Frames: len(frames)}
		if err := archive.Save(a.ArchivePath, acc, meta); err != nil {
			return nil, err
		}
		res.ArchivePath = a.ArchivePath
	}
	if opts != nil {
		snr, err := nrea.EstimateSNR(acc, *opts)
		if err != nil {
			return nil, err
		}
		report := newSNRReport(snr)
		res.SNR = &report
	}
	return res, nil
}

// === SNR Handlers ===

type snrEstimateArgs struct {
	Path    string `json:"path"`
	Channel string `json:"channel"`
	regionArgs
}

type snrEstimateResult struct {
	Path                  string      `json:"path"`
	Region                nrea.Region `json:"region"`
	ROIShape              string      `json:"roi_shape"`
	NoiseMode             string      `json:"noise_mode"`
	BackgroundInnerRadius int         `json:"background_inner_radius"`
	snrReport
}

func (s *Server) handleSNREstimate(args json.RawMessage) (interface{}, error) {
	var a snrEstimateArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	opts, err := s.snrOptions(a.regionArgs)
	if err != nil {
		return nil, err
	}
	frame, err := s.loadFrame(a.Path, a.Channel)
	if err != nil {
		return nil, err
	}
	res, err := nrea.EstimateSNR(frame, opts)
	if err != nil {
		return nil, err
	}

	inner := opts.Radius + opts.Radius
	if opts.BackgroundOffset != nil {
		inner = opts.Radius + *opts.BackgroundOffset
	}
	return &snrEstimateResult{
		Path:                  a.Path,
		Region:                opts.Region,
		ROIShape:              opts.Shape.String(),
		NoiseMode:             opts.Noise.String(),
		BackgroundInnerRadius: inner,
		snrReport:             newSNRReport(res),
	}, nil
}

type snrBatchArgs struct {
	batchArgs
	regionArgs
	CSVPath            string `json:"csv_path"`
	ReliabilityCSVPath string `json:"reliability_csv_path"`
}

type imageReport struct {
	Image string `json:"image"`
	snrReport
}

type snrBatchResult struct {
	Count              int               `json:"count"`
	Results            []imageReport     `json:"results"`
	Reliability        reliabilityReport `json:"reliability"`
	CSVPath            string            `json:"csv_path,omitempty"`
	ReliabilityCSVPath string            `json:"reliability_csv_path,omitempty"`
}

func (s *Server) handleSNRBatch(args json.RawMessage) (interface{}, error) {
	var a snrBatchArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	opts, err := s.snrOptions(a.regionArgs)
	if err != nil {
		return nil, err
	}
	paths, err := a.batchArgs.list()
	if err != nil {
		return nil, err
	}
	ch, err := s.channel(a.Channel)
	if err != nil {
		return nil, err
	}

	// Rows are labeled by file name, or by full path where two files share
	// a name. Frames are decoded one at a time.
	seen := make(map[string]int, len(paths))
	for _, p := range paths {
		seen[filepath.Base(p)]++
	}
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = filepath.Base(p)
		if seen[names[i]] > 1 {
			names[i] = p
		}
	}
	rows, err := metrics.Evaluate(names, func(i int) (*nrea.Frame, error) {
		return imaging.LoadFrame(nil, paths[i], ch)
	}, opts)
	if err != nil {
		return nil, err
	}
	summary, err := metrics.Reliability(metrics.Results(rows))
	if err != nil {
		return nil, err
	}

	res := &snrBatchResult{
		Count: len(rows),
		Reliability: reliabilityReport{
			Count: summary.Count,
			Mean:  newStatReport(summary.Mean),
			Std:   newStatReport(summary.Std),
			CV:    newStatReport(summary.CV),
		},
	}
	for _, r := range rows {
		res.Results = append(res.Results, imageReport{Image: r.Image, snrReport: newSNRReport(r.SNRResult)})
	}

	if a.CSVPath != "" {
		if err := writeCSV(a.CSVPath, func(f *os.File) error { return metrics.WriteMetricsCSV(f, rows) }); err != nil {
			return nil, err
		}
		res.CSVPath = a.CSVPath
	}
	if a.ReliabilityCSVPath != "" {
		if err := writeCSV(a.ReliabilityCSVPath, func(f *os.File) error { return metrics.WriteReliabilityCSV(f, summary) }); err != nil {
			return nil, err
		}
		res.ReliabilityCSVPath = a.ReliabilityCSVPath
	}
	return res, nil
}

type snrTrendArgs struct {
	batchArgs
	kernelArgs
	regionArgs
	Cumulative *bool  `json:"cumulative"`
	Workers    *int   `json:"workers"`
	CSVPath    string `json:"csv_path"`
}

type trendReport struct {
	N int `json:"n"`
	snrReport
}

type snrTrendResult struct {
	Cumulative bool          `json:"cumulative"`
	Kernel     string        `json:"kernel"`
	Points     []trendReport `json:"points"`
	CSVPath    string        `json:"csv_path,omitempty"`
}

func (s *Server) handleSNRTrend(args json.RawMessage) (interface{}, error) {
	var a snrTrendArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	k, err := s.kernel(a.kernelArgs)
	if err != nil {
		return nil, err
	}
	opts, err := s.snrOptions(a.regionArgs)
	if err != nil {
		return nil, err
	}
	paths, err := a.batchArgs.list()
	if err != nil {
		return nil, err
	}
	frames, err := s.loadBatch(paths, a.Channel)
	if err != nil {
		return nil, err
	}

	cumulative := a.Cumulative == nil || *a.Cumulative
	points, err := metrics.Trend(frames, k, opts, metrics.TrendOptions{Cumulative: cumulative, Workers: s.workers(a.Workers)})
	if err != nil {
		return nil, err
	}

	res := &snrTrendResult{Cumulative: cumulative, Kernel: k.String()}
	for _, p := range points {
		res.Points = append(res.Points, trendReport{N: p.N, snrReport: newSNRReport(p.SNRResult)})
	}
	if a.CSVPath != "" {
		if err := writeCSV(a.CSVPath, func(f *os.File) error { return metrics.WriteTrendCSV(f, points) }); err != nil {
			return nil, err
		}
		res.CSVPath = a.CSVPath
	}
	return res, nil
}

type kernelSweepArgs struct {
	batchArgs
	regionArgs
	outputArgs
	Kernels   []string `json:"kernels"`
	Radii     []int    `json:"radii"`
	Workers   *int     `json:"workers"`
	CSVPath   string   `json:"csv_path"`
	OutputDir string   `json:"output_dir"`
}

type sweepReport struct {
	Kernel string `json:"kernel"`
	Radius int    `json:"radius"`
	snrReport
}

type kernelSweepResult struct {
	Frames   int           `json:"frames"`
	Points   []sweepReport `json:"points"`
	Images   []string      `json:"images,omitempty"`
	Warnings []string      `json:"warnings,omitempty"`
	CSVPath  string        `json:"csv_path,omitempty"`
}

func (s *Server) handleKernelSweep(args json.RawMessage) (interface{}, error) {
	var a kernelSweepArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	opts, err := s.snrOptions(a.regionArgs)
	if err != nil {
		return nil, err
	}
	kinds := make([]nrea.KernelKind, 0, len(a.Kernels))
	for _, name := range a.Kernels {
		kind, err := nrea.ParseKernelKind(name)
		if err != nil {
			return nil, &paramError{err: err}
		}
		kinds = append(kinds, kind)
	}
	for _, r := range a.Radii {
		if err := (nrea.Kernel{Radius: r}).Validate(); err != nil {
			return nil, &paramError{err: err}
		}
	}
	paths, err := a.batchArgs.list()
	if err != nil {
		return nil, err
	}
	frames, err := s.loadBatch(paths, a.Channel)
	if err != nil {
		return nil, err
	}

	res := &kernelSweepResult{Frames: len(frames)}
	sopts := metrics.SweepOptions{Workers: s.workers(a.Workers)}
	if a.OutputDir != "" {
		sopts.Each = func(k nrea.Kernel, acc *nrea.Frame) error {
			name := fmt.Sprintf("nrea_%s_%d.tiff", strings.ToLower(k.Kind.String()), k.Radius)
			path := filepath.Join(a.OutputDir, name)
			warning, err := s.writeFrame(path, acc, a.outputArgs)
			if err != nil {
				return err
			}
			if warning != "" {
				res.Warnings = append(res.Warnings, name+": "+warning)
			}
			res.Images = append(res.Images, path)
			return nil
		}
	}

	start := time.Now()
	points, err := metrics.KernelSweep(frames, kinds, a.Radii, opts, sopts)
	if err != nil {
		return nil, err
	}
	s.log.Debug().Int("frames", len(frames)).Int("kernels", len(points)).Dur("elapsed", time.Since(start)).Msg("kernel sweep done")

	for _, p := range points {
		res.Points = append(res.Points, sweepReport{Kernel: p.Kind.String(), Radius: p.Radius, snrReport: newSNRReport(p.SNRResult)})
	}
	if a.CSVPath != "" {
		if err := writeCSV(a.CSVPath, func(f *os.File) error { return metrics.WriteSweepCSV(f, points) }); err != nil {
			return nil, err
		}
		res.CSVPath = a.CSVPath
	}
	return res, nil
}

type similarityArgs struct {
	PathA      string `json:"path_a"`
	PathB      string `json:"path_b"`
	FolderA    string `json:"folder_a"`
	FolderB    string `json:"folder_b"`
	BlurRadius int    `json:"blur_radius"`
	Channel    string `json:"channel"`
}

type similarityResult struct {
	A          string `json:"a"`
	B          string `json:"b"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	BlurRadius int    `json:"blur_radius,omitempty"`
	metrics.SimilarityResult
}

// similaritySide loads one side of a comparison: a single frame, or the mean
// stack of a folder.
func (s *Server) similaritySide(path, folder, channel, side string) (*nrea.Frame, string, error) {
	switch {
	case path != "" && folder != "":
		return nil, "", invalidParams("give either path_%s or folder_%s, not both", side, side)
	case path != "":
		f, err := s.loadFrame(path, channel)
		return f, path, err
	case folder != "":
		paths, err := imaging.ListImages(folder, "")
		if err != nil {
			return nil, "", err
		}
		frames, err := s.loadBatch(paths, channel)
		if err != nil {
			return nil, "", err
		}
		f, err := stacking.Mean(frames)
		return f, folder, err
	default:
		return nil, "", invalidParams("path_%s or folder_%s is required", side, side)
	}
}

func (s *Server) handleImageSimilarity(args json.RawMessage) (interface{}, error) {
	var a similarityArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.BlurRadius < 0 {
		return nil, invalidParams("blur_radius %d must not be negative", a.BlurRadius)
	}
	blur := nrea.Kernel{Kind: nrea.GaussianBlur, Radius: a.BlurRadius}
	if a.BlurRadius > 0 {
		if err := blur.Validate(); err != nil {
			return nil, &paramError{err: err}
		}
	}

	fa, nameA, err := s.similaritySide(a.PathA, a.FolderA, a.Channel, "a")
	if err != nil {
		return nil, err
	}
	fb, nameB, err := s.similaritySide(a.PathB, a.FolderB, a.Channel, "b")
	if err != nil {
		return nil, err
	}
	if a.BlurRadius > 0 {
		if fa, err = nrea.ApplyLowpass(fa, blur); err != nil {
			return nil, err
		}
		if fb, err = nrea.ApplyLowpass(fb, blur); err != nil {
			return nil, err
		}
	}

	sim, err := metrics.Similarity(fa, fb)
	if err != nil {
		return nil, err
	}
	return &similarityResult{
		A:                nameA,
		B:                nameB,
		Width:            fa.Width,
		Height:           fa.Height,
		BlurRadius:       a.BlurRadius,
		SimilarityResult: sim,
	}, nil
}

func writeCSV(path string, write func(*os.File) error) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return write(f)
}

// === Stacking and Diagnostic Handlers ===

type imageStackArgs struct {
	batchArgs
	outputArgs
	Method     string  `json:"method"`
	Sigma      float64 `json:"sigma"`
	OutputPath string  `json:"output_path"`
}

func (s *Server) handleImageStack(args json.RawMessage) (interface{}, error) {
	var a imageStackArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.OutputPath == "" {
		return nil, invalidParams("output_path is required")
	}
	method, err := stacking.ParseMethod(a.Method)
	if err != nil {
		return nil, &paramError{err: err}
	}
	paths, err := a.batchArgs.list()
	if err != nil {
		return nil, err
	}
	frames, err := s.loadBatch(paths, a.Channel)
	if err != nil {
		return nil, err
	}

	stacked, err := stacking.Stack(method, frames, a.Sigma)
	if err != nil {
		return nil, err
	}
	res := newFrameResult(stacked, len(frames), "")
	if res.Warning, err = s.writeFrame(a.OutputPath, stacked, a.outputArgs); err != nil {
		return nil, err
	}
	res.OutputPath = a.OutputPath
	return res, nil
}

type roiOverlayArgs struct {
	Path            string  `json:"path"`
	Channel         string  `json:"channel"`
	SignalColor     string  `json:"signal_color"`
	BackgroundColor string  `json:"background_color"`
	Alpha           float64 `json:"alpha"`
	ShowCenter      *bool   `json:"show_center"`
	regionArgs
}

func (s *Server) handleROIOverlay(args json.RawMessage) (interface{}, error) {
	var a roiOverlayArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	opts, err := s.snrOptions(a.regionArgs)
	if err != nil {
		return nil, err
	}
	frame, err := s.loadFrame(a.Path, a.Channel)
	if err != nil {
		return nil, err
	}
	return imaging.ROIOverlay(frame, opts, imaging.OverlayStyle{
		SignalHex:     a.SignalColor,
		BackgroundHex: a.BackgroundColor,
		Alpha:         a.Alpha,
		ShowCenter:    a.ShowCenter == nil || *a.ShowCenter,
	})
}

type deviceInfo struct {
	Name string `json:"name"`
	config.Device
}

func (s *Server) handleDeviceList() (interface{}, error) {
	names := s.cfg.DeviceNames()
	out := make([]deviceInfo, 0, len(names))
	for _, n := range names {
		out = append(out, deviceInfo{Name: n, Device: s.cfg.Devices[n]})
	}
	return map[string]interface{}{"devices": out}, nil
}
