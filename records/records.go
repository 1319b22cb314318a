package records

import "fmt"

// This package reads the APS binary image format: a flat sequence of
// fixed-length records with no file header. Each record is a 512-byte label
// block followed by height*width*depth bytes of uint8 pixel data laid out
// row-major, height -> width -> depth. Record boundaries are purely
// positional, so the caller-supplied ImageShape must match the file contents
// exactly; a wrong shape is a configuration error, not something the decoder
// can detect per-record.
//
// Decode is a pure function over one record's bytes. Streaming records out
// of files (including the eager existence check over the whole file list)
// lives in source.go.

// LabelBytes is the fixed size of the label block prefixing every record,
// independent of image shape. The label's internal structure is
// caller-defined; Decode only widens the raw bytes to int32.
const LabelBytes = 512

// ImageShape describes the pixel geometry of every record in a file set.
type ImageShape struct {
	Height int
	Width  int
	Depth  int
}

// Validate rejects shapes with non-positive dimensions.
func (s ImageShape) Validate() error {
	if s.Height <= 0 || s.Width <= 0 || s.Depth <= 0 {
		return fmt.Errorf("image shape dimensions must be positive, got (%d,%d,%d)", s.Height, s.Width, s.Depth)
	}
	return nil
}

// NumPixels returns the image byte count for one record.
func (s ImageShape) NumPixels() int {
	return s.Height * s.Width * s.Depth
}

// RecordBytes returns the total fixed length of one record.
func (s ImageShape) RecordBytes() int {
	return LabelBytes + s.NumPixels()
}

// RawRecord is one undecoded fixed-length chunk read from a source file.
// Key identifies the originating file and byte offset for diagnostics.
type RawRecord struct {
	Key  string
	Data []byte
}

// Image holds decoded uint8 pixel data with shape (Height, Width, Depth).
// Pix is the record's image block verbatim; the byte for (h, w, d) lives at
// index ((h*Width)+w)*Depth + d.
type Image struct {
	Pix    []uint8
	Height int
	Width  int
	Depth  int
}

// At returns the pixel value at (h, w, d). No bounds checking beyond the
// slice's own.
func (im Image) At(h, w, d int) uint8 {
	return im.Pix[((h*im.Width)+w)*im.Depth+d]
}

// DecodedRecord is the result of splitting one raw record. Label holds the
// 512 prefix bytes widened to int32; Image holds the remaining bytes. The
// two ranges partition the record with no overlap or gap.
type DecodedRecord struct {
	Label []int32
	Image Image
	Key   string
}

// ShapeMismatchError reports a record whose length does not match the
// caller-supplied image shape. This signals a configuration/format mismatch
// and is fatal: every subsequent record boundary in the file would be wrong.
type ShapeMismatchError struct {
	Key   string
	Want  int
	Got   int
	Shape ImageShape
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("record %s: length %d does not match shape (%d,%d,%d) + %d label bytes (want %d)",
		e.Key, e.Got, e.Shape.Height, e.Shape.Width, e.Shape.Depth, LabelBytes, e.Want)
}

// Decode splits one raw record into its label and image blocks.
//
// The label bytes occupy [0, LabelBytes) and are widened to int32 without
// further interpretation. The image bytes occupy [LabelBytes, end) and are
// kept in their on-disk row-major order; no transposition happens here.
// The image slice aliases raw.Data, it is not copied.
func Decode(raw RawRecord, shape ImageShape) (DecodedRecord, error) {
	if err := shape.Validate(); err != nil {
		return DecodedRecord{}, err
	}
	want := shape.RecordBytes()
	if len(raw.Data) != want {
		return DecodedRecord{}, &ShapeMismatchError{
			Key:   raw.Key,
			Want:  want,
			Got:   len(raw.Data),
			Shape: shape,
		}
	}

	label := make([]int32, LabelBytes)
	for i, b := range raw.Data[:LabelBytes] {
		label[i] = int32(b)
	}

	return DecodedRecord{
		Label: label,
		Image: Image{
			Pix:    raw.Data[LabelBytes:],
			Height: shape.Height,
			Width:  shape.Width,
			Depth:  shape.Depth,
		},
		Key: raw.Key,
	}, nil
}
