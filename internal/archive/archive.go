// Package archive stores frames losslessly as CBOR documents.
//
// Image files quantize to 8 or 16 bits. Accumulated and compensated fields
// are real valued, so they are archived as an RFC 8746 multi-dimensional
// array (tag 40) wrapping a little-endian float64 typed array (tag 86).
package archive

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"

	"github.com/ironsheep/nrea-snr-mcp/internal/nrea"
)

// FormatVersion identifies the document layout.
const FormatVersion = "nrea-frame/1"

// Ext is the file extension of archives.
const Ext = ".cbor"

const (
	tagMultiDimArray = 40
	tagFloat64LE     = 86
)

// Meta describes how an archived frame was produced.
type Meta struct {
	Kind         string `json:"kind"`   // accumulated, compensated, lowpass, stack
	Kernel       string `json:"kernel"` // CA or GB, empty if none
	KernelRadius int    `json:"kernel_radius"`
	Frames       int    `json:"frames"` // number of source frames
}

type document struct {
	Format       string   `cbor:"format"`
	Kind         string   `cbor:"kind"`
	Kernel       string   `cbor:"kernel,omitempty"`
	KernelRadius int      `cbor:"kernel_radius,omitempty"`
	Frames       int      `cbor:"frames"`
	Data         cbor.Tag `cbor:"data"`
}

// Write encodes frame and meta to w.
func Write(w io.Writer, frame *nrea.Frame, meta Meta) error {
	if frame == nil || frame.Width <= 0 || frame.Height <= 0 || len(frame.Pix) != frame.Width*frame.Height {
		return fmt.Errorf("archive: invalid frame")
	}

	payload := make([]byte, 8*len(frame.Pix))
	for i, v := range frame.Pix {
		binary.LittleEndian.PutUint64(payload[8*i:], math.Float64bits(v))
	}

	doc := document{
		Format:       FormatVersion,
		Kind:         meta.Kind,
		Kernel:       meta.Kernel,
		KernelRadius: meta.KernelRadius,
		Frames:       meta.Frames,
		Data: cbor.Tag{
			Number: tagMultiDimArray,
			Content: []any{
				[]int{frame.Height, frame.Width},
				cbor.Tag{Number: tagFloat64LE, Content: payload},
			},
		},
	}
	if err := cbor.NewEncoder(w).Encode(doc); err != nil {
		return fmt.Errorf("archive: encode: %w", err)
	}
	return nil
}

// Read decodes a document written by Write.
func Read(r io.Reader) (*nrea.Frame, Meta, error) {
	var doc document
	if err := cbor.NewDecoder(r).Decode(&doc); err != nil {
		return nil, Meta{}, fmt.Errorf("archive: decode: %w", err)
	}
	if doc.Format != FormatVersion {
		return nil, Meta{}, fmt.Errorf("archive: unsupported format %q", doc.Format)
	}

	frame, err := decodeMultiDimArray(doc.Data)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("archive: %w", err)
	}
	return frame, Meta{
		Kind:         doc.Kind,
		Kernel:       doc.Kernel,
		KernelRadius: doc.KernelRadius,
		Frames:       doc.Frames,
	}, nil
}

func decodeMultiDimArray(tag cbor.Tag) (*nrea.Frame, error) {
	if tag.Number != tagMultiDimArray {
		return nil, fmt.Errorf("expected multidim tag 40, got %d", tag.Number)
	}
	items, ok := tag.Content.([]any)
	if !ok || len(items) != 2 {
		return nil, fmt.Errorf("invalid multidim array content")
	}
	dims, ok := items[0].([]any)
	if !ok || len(dims) != 2 {
		return nil, fmt.Errorf("invalid multidim dimensions")
	}
	rows, err := toInt(dims[0])
	if err != nil {
		return nil, err
	}
	cols, err := toInt(dims[1])
	if err != nil {
		return nil, err
	}

	typed, ok := items[1].(cbor.Tag)
	if !ok || typed.Number != tagFloat64LE {
		return nil, fmt.Errorf("expected float64 little-endian typed array")
	}
	payload, ok := typed.Content.([]byte)
	if !ok {
		return nil, fmt.Errorf("unsupported typed array content %T", typed.Content)
	}
	if rows <= 0 || cols <= 0 || len(payload) != 8*rows*cols {
		return nil, fmt.Errorf("payload of %d bytes does not match %dx%d", len(payload), rows, cols)
	}

	pix := make([]float64, rows*cols)
	for i := range pix {
		pix[i] = math.Float64frombits(binary.LittleEndian.Uint64(payload[8*i:]))
	}
	return &nrea.Frame{Width: cols, Height: rows, Pix: pix}, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("unsupported int type %T", v)
	}
}

// Save writes the archive to path, creating parent directories.
func Save(path string, frame *nrea.Frame, meta Meta) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return Write(f, frame, meta)
}

// Load reads an archive from path.
func Load(path string) (*nrea.Frame, Meta, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("archive: %w", err)
	}
	defer f.Close()
	return Read(f)
}
