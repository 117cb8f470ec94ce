// Package imaging moves pixel data between image files and nrea frames.
//
// It decodes PNG, JPEG, GIF, TIFF and BMP files through the disintegration
// imaging library, extracts a single channel as an *nrea.Frame, writes frames
// back as 8-bit or 16-bit grayscale images, crops source images, and renders
// a diagnostic overlay showing the SNR sampling regions.
//
// # Coordinate System
//
// All pixel coordinates are 0-based with (0,0) at the top-left corner, X
// increasing rightward and Y increasing downward. For rectangular regions
// (x1,y1) is inclusive and (x2,y2) is exclusive.
//
// # Bit Depth
//
// 8-bit sources produce frame values in [0, 255] and 16-bit sources produce
// values in [0, 65535]. No rescaling happens on load, so frames from sources
// of different depths are not comparable.
//
// # Thread Safety
//
// The ImageCache type is safe for concurrent use. All other functions are
// stateless.
package imaging
