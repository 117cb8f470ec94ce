// Package server implements the MCP (Model Context Protocol) server for
// low-light signal extraction.
//
// This package provides a JSON-RPC 2.0 server that exposes NREA accumulation
// and SNR estimation through the MCP protocol, so that MCP-compatible clients
// can process capture folders and measure light sources.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Basic Image Information:
//   - image_load: Load image and get metadata
//   - image_dimensions: Get width and height
//
// Region Operations:
//   - image_crop: Extract rectangular region
//   - image_crop_center: Centered square crop by factor
//
// NREA Operations:
//   - nrea_lowpass: Circular average or Gaussian low-pass of one image
//   - nrea_compensate: Background compensation of one image
//   - nrea_accumulate: Compensate and sum a batch of frames
//
// SNR Operations:
//   - snr_estimate: SNR of one image or archive
//   - snr_batch: SNR of each listed image or every image in a folder, plus reliability summary
//   - snr_trend: SNR as more frames are accumulated
//   - snr_kernel_sweep: SNR of the accumulated batch for each filter kind and radius
//   - image_similarity: MSE, SSIM, CV and CNR between two images or folder means
//
// Stacking and Diagnostics:
//   - image_stack: Mean, median or sigma-clipped stacking
//   - roi_overlay: Show the signal and background sampling regions
//   - device_list: Registered devices and their light source positions
//
// # Defaults
//
// Omitted kernel, SNR, output and channel arguments are taken from the
// configuration passed with WithConfig. A device name selects the center and
// radius from the device registry.
//
// # Image Caching
//
// Single images are cached by path and reused across tool calls. Batches are
// decoded without caching so that large folders do not stay in memory. Files
// written by a tool are evicted from the cache.
//
// # Error Handling
//
// Tool errors are returned as JSON-RPC error responses with:
//   - code: -32602 for invalid arguments, -32000 for failed operations
//   - message: Human-readable error description
//   - data: The Go error string
//
// # Usage
//
//	srv := server.New(server.WithConfig(cfg), server.WithLogger(logger))
//	if err := srv.Run(); err != nil {
//	    logger.Fatal().Err(err).Msg("server error")
//	}
package server
