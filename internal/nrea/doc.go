// Package nrea implements the signal-extraction pipeline for very-low-light
// well-plate images: Noise Reduction through Exposure Accumulation (NREA) and
// the signal-to-noise estimator used to compare its results.
//
// # Pipeline
//
// Each frame of a batch is processed independently:
//
//  1. Low-pass filtering with a CircularAverage or GaussianBlur kernel
//     (ApplyLowpass) to estimate the slowly varying illumination field.
//  2. Background compensation (Compensate): the scalar mean of the smoothed
//     field is subtracted from it, leaving a zero-mean field.
//
// The compensated fields are then summed element-wise (Accumulate) and the sum
// is shifted once so that its minimum is zero. EstimateSNR turns any frame,
// compensated field or accumulated image into a single comparable metric.
//
// # Working Type
//
// All operations work on Frame, a row-major float64 grid. Callers promote 8-bit
// or 16-bit pixel data before entering the package and demote results with
// NormalizeRange at the boundary. No operation mutates its input; every stage
// returns a newly allocated Frame, so concurrent readers of one Frame are safe.
//
// # Borders
//
// The low-pass filters read pixels outside the frame by reflect-101 mirroring
// (dcb|abcd|cba), the convention of the OpenCV filters the measurement pipeline
// was calibrated with. Border pixels are therefore smoothed with mirrored
// neighbours instead of zeros.
//
// # Coordinate System
//
// Pixel (0,0) is the top-left corner, X grows to the right and Y downwards.
// Region centers use the same convention.
//
// # Errors
//
// Failures are reported as *ConfigurationError (invalid kernel, mismatched
// shapes, invalid geometry) or *InvalidInputError (empty batch, empty mask,
// degenerate range). Both wrap sentinel errors that can be tested with
// errors.Is. The package never logs.
package nrea
