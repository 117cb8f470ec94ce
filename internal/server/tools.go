package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func pathProperty(desc string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": desc,
	}
}

// kernelProperties are shared by every tool that runs the low-pass filter.
func kernelProperties() map[string]interface{} {
	return map[string]interface{}{
		"kernel": map[string]interface{}{
			"type":        "string",
			"enum":        []string{"CA", "GB"},
			"description": "Low-pass kernel: CA (circular average) or GB (Gaussian blur, sigma = radius/3). Defaults to the configured kernel",
		},
		"kernel_radius": map[string]interface{}{
			"type":        "integer",
			"description": "Kernel radius in pixels. Defaults to the configured radius",
		},
	}
}

// regionProperties select the light source either explicitly or through the
// device registry.
func regionProperties() map[string]interface{} {
	return map[string]interface{}{
		"center_x": map[string]interface{}{
			"type":        "integer",
			"description": "Light source center X (column)",
		},
		"center_y": map[string]interface{}{
			"type":        "integer",
			"description": "Light source center Y (row)",
		},
		"radius": map[string]interface{}{
			"type":        "integer",
			"description": "Light source radius in pixels",
		},
		"device": map[string]interface{}{
			"type":        "string",
			"description": "Registered device whose center and radius are used instead of center_x/center_y/radius (see device_list)",
		},
		"variant": map[string]interface{}{
			"type":        "string",
			"description": "Device image variant such as original or cropped2",
		},
		"roi_shape": map[string]interface{}{
			"type":        "string",
			"enum":        []string{"disk", "square"},
			"description": "Shape of the signal region. Defaults to the configured shape",
		},
		"noise_mode": map[string]interface{}{
			"type":        "string",
			"enum":        []string{"pooled", "image"},
			"description": "pooled: std of signal and background pixels together; image: std of the whole image",
		},
		"background_offset": map[string]interface{}{
			"type":        "integer",
			"description": "Background starts at radius + background_offset. Defaults to radius",
		},
	}
}

// outputProperties control how a result frame is written.
func outputProperties() map[string]interface{} {
	return map[string]interface{}{
		"bit_depth": map[string]interface{}{
			"type":        "integer",
			"enum":        []int{8, 16},
			"description": "Bit depth of the written image. Defaults to the configured depth",
		},
		"normalize": map[string]interface{}{
			"type":        "boolean",
			"description": "Stretch the result onto the full output range. Defaults to the configured setting",
		},
	}
}

// batchProperties select a list of frames.
func batchProperties() map[string]interface{} {
	return map[string]interface{}{
		"paths": map[string]interface{}{
			"type":        "array",
			"items":       map[string]interface{}{"type": "string"},
			"description": "Absolute paths of equally sized frames, in accumulation order",
		},
		"folder": map[string]interface{}{
			"type":        "string",
			"description": "Folder whose images are used in natural name order when paths is empty",
		},
		"format": map[string]interface{}{
			"type":        "string",
			"description": "Restrict folder images to one format (tiff, png, jpeg, bmp, gif)",
		},
		"channel": map[string]interface{}{
			"type":        "string",
			"enum":        []string{"gray", "red", "green", "blue"},
			"description": "Channel extracted from color images. Defaults to the configured channel",
		},
	}
}

func merge(maps ...map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Basic Image Information
		{
			Name:        "image_load",
			Description: "Load an image file and return its dimensions, format, bit depth and whether it is grayscale.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty("Absolute path to the image file"),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "image_dimensions",
			Description: "Get the width and height of an image file.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty("Absolute path to the image file"),
				},
				"required": []string{"path"},
			},
		},

		// Region Operations
		{
			Name:        "image_crop",
			Description: "Crop a rectangular region from an image and return it as base64-encoded PNG. Use this to check where the light source sits.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty("Absolute path to the image file"),
					"x1": map[string]interface{}{
						"type":        "integer",
						"description": "Left edge X coordinate (0-based)",
					},
					"y1": map[string]interface{}{
						"type":        "integer",
						"description": "Top edge Y coordinate (0-based)",
					},
					"x2": map[string]interface{}{
						"type":        "integer",
						"description": "Right edge X coordinate (exclusive)",
					},
					"y2": map[string]interface{}{
						"type":        "integer",
						"description": "Bottom edge Y coordinate (exclusive)",
					},
					"scale": map[string]interface{}{
						"type":        "number",
						"description": "Optional scale factor (e.g., 2.0 to double size). Default 1.0",
						"default":     1.0,
					},
				},
				"required": []string{"path", "x1", "y1", "x2", "y2"},
			},
		},
		{
			Name:        "image_crop_center",
			Description: "Cut the centered square of side min(width, height)/factor out of an image. Saves it (keeping 16-bit data) when output_path is given, otherwise returns it as base64-encoded PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty("Absolute path to the image file"),
					"factor": map[string]interface{}{
						"type":        "integer",
						"description": "Crop factor; 2 keeps a square of half the shorter side",
						"default":     2,
					},
					"output_path": pathProperty("Optional file to write the crop to (format from extension)"),
				},
				"required": []string{"path"},
			},
		},

		// NREA Operations
		{
			Name:        "nrea_lowpass",
			Description: "Apply the NREA low-pass filter (circular average or Gaussian blur with reflected borders) to one image and save the smoothed result.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": merge(map[string]interface{}{
					"path":        pathProperty("Absolute path to the image file"),
					"output_path": pathProperty("File to write the result to (format from extension)"),
					"channel":     batchProperties()["channel"],
				}, kernelProperties(), outputProperties()),
				"required": []string{"path", "output_path"},
			},
		},
		{
			Name:        "nrea_compensate",
			Description: "Subtract the low-pass estimate of the non-uniform background from one image (I - F(I)) and save the compensated result.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": merge(map[string]interface{}{
					"path":        pathProperty("Absolute path to the image file"),
					"output_path": pathProperty("File to write the result to (format from extension)"),
					"channel":     batchProperties()["channel"],
				}, kernelProperties(), outputProperties()),
				"required": []string{"path", "output_path"},
			},
		},
		{
			Name:        "nrea_accumulate",
			Description: "Compensate every frame of a batch and sum the results into one non-negative image (NREA accumulation). Optionally saves the image, a lossless CBOR archive and reports the SNR of the accumulated image.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": merge(map[string]interface{}{
					"prefix_len": map[string]interface{}{
						"type":        "integer",
						"description": "Accumulate only the first N frames. 0 or omitted uses all",
					},
					"workers": map[string]interface{}{
						"type":        "integer",
						"description": "Concurrent compensations. Defaults to the configured value",
					},
					"output_path":  pathProperty("Optional image file for the accumulated result"),
					"archive_path": pathProperty("Optional .cbor file holding the full-precision result"),
				}, batchProperties(), kernelProperties(), outputProperties(), regionProperties()),
			},
		},

		// SNR Operations
		{
			Name:        "snr_estimate",
			Description: "Estimate the SNR of the light source in one image: mean of the signal region minus mean of the background, divided by the noise standard deviation. Accepts images and .cbor archives.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": merge(map[string]interface{}{
					"path":    pathProperty("Absolute path to the image or .cbor archive"),
					"channel": batchProperties()["channel"],
				}, regionProperties()),
				"required": []string{"path"},
			},
		},
		{
			Name:        "snr_batch",
			Description: "Estimate the SNR of every image in a folder or path list and summarize its reliability (mean, population std and coefficient of variation). Optionally writes CSV files.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": merge(batchProperties(), map[string]interface{}{
					"csv_path":             pathProperty("Optional CSV file for the per-image results"),
					"reliability_csv_path": pathProperty("Optional CSV file for the reliability summary"),
				}, regionProperties()),
			},
		},
		{
			Name:        "snr_trend",
			Description: "Report the SNR after accumulating 1, 2, ..., N frames (cumulative) or of each compensated frame on its own.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": merge(map[string]interface{}{
					"cumulative": map[string]interface{}{
						"type":        "boolean",
						"description": "Accumulate the first i frames for point i",
						"default":     true,
					},
					"workers": map[string]interface{}{
						"type":        "integer",
						"description": "Concurrent compensations. Defaults to the configured value",
					},
					"csv_path": pathProperty("Optional CSV file for the trend"),
				}, batchProperties(), kernelProperties(), regionProperties()),
			},
		},

		{
			Name:        "snr_kernel_sweep",
			Description: "Accumulate a batch once per low-pass kernel and radius and compare the resulting SNR, signal and noise.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": merge(map[string]interface{}{
					"kernels": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string", "enum": []string{"CA", "GB"}},
						"description": "Kernels to compare. Defaults to both",
					},
					"radii": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "integer"},
						"description": "Kernel radii to compare. Defaults to 10, 25, 50, 75, 100, 150, 200",
					},
					"workers": map[string]interface{}{
						"type":        "integer",
						"description": "Concurrent compensations. Defaults to the configured value",
					},
					"csv_path":   pathProperty("Optional CSV file for the comparison"),
					"output_dir": pathProperty("Optional folder receiving every accumulated image as nrea_<kernel>_<radius>.tiff"),
				}, batchProperties(), regionProperties(), outputProperties()),
			},
		},
		{
			Name:        "image_similarity",
			Description: "Compare two images or the mean stacks of two folders: MSE, SSIM, coefficient of variation of each side and contrast-to-noise ratio.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path_a":   pathProperty("First image or .cbor archive"),
					"path_b":   pathProperty("Second image or .cbor archive; its value range scales SSIM"),
					"folder_a": pathProperty("Folder mean-stacked into the first image, instead of path_a"),
					"folder_b": pathProperty("Folder mean-stacked into the second image, instead of path_b"),
					"blur_radius": map[string]interface{}{
						"type":        "integer",
						"description": "Gaussian low-pass radius applied to both sides before comparing. 0 compares them as is",
					},
					"channel": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"gray", "red", "green", "blue"},
						"description": "Channel extracted from color images. Defaults to the configured channel",
					},
				},
			},
		},

		// Stacking and diagnostics
		{
			Name:        "image_stack",
			Description: "Combine a batch of frames pixel by pixel with the mean, median or sigma-clipped mean and save the result.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": merge(map[string]interface{}{
					"method": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"mean", "median", "sigma"},
						"description": "Per-pixel statistic",
						"default":     "mean",
					},
					"sigma": map[string]interface{}{
						"type":        "number",
						"description": "Clipping threshold in standard deviations for method sigma",
						"default":     2.0,
					},
					"output_path": pathProperty("File to write the result to (format from extension)"),
				}, batchProperties(), outputProperties()),
				"required": []string{"output_path"},
			},
		},
		{
			Name:        "roi_overlay",
			Description: "Render the image with the signal region tinted green and the background tinted red, as base64-encoded PNG. Use it to check the center and radius before measuring.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": merge(map[string]interface{}{
					"path":    pathProperty("Absolute path to the image or .cbor archive"),
					"channel": batchProperties()["channel"],
					"signal_color": map[string]interface{}{
						"type":        "string",
						"description": "Hex tint of the signal region",
						"default":     "#00ff00",
					},
					"background_color": map[string]interface{}{
						"type":        "string",
						"description": "Hex tint of the background region",
						"default":     "#ff0000",
					},
					"alpha": map[string]interface{}{
						"type":        "number",
						"description": "Tint strength in (0, 1]",
						"default":     0.3,
					},
					"show_center": map[string]interface{}{
						"type":        "boolean",
						"description": "Draw a crosshair and the center coordinates",
						"default":     true,
					},
				}, regionProperties()),
				"required": []string{"path"},
			},
		},
		{
			Name:        "device_list",
			Description: "List the registered devices with their light source radius and centers per image variant.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
