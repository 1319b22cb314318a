package pipeline

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/tensors"

	"github.com/Noofbiz/apsFeed/preprocess"
	"github.com/Noofbiz/apsFeed/records"
)

// Pair is one normalized image with its label, the unit flowing between the
// preprocess workers and the assembler.
type Pair struct {
	Image preprocess.FloatImage
	Label []int32
	Key   string
}

// Batch stores an assembled batch in flat contiguous buffers: Images is
// [BatchSize, Height, Width, Depth] row-major and Labels is
// [BatchSize, LabelWidth]. Flat buffers convert to tensors without copying
// per-example slices around. Once emitted, a batch is owned by the
// consumer.
type Batch struct {
	Images []float32
	Labels []int32

	BatchSize  int
	Height     int
	Width      int
	Depth      int
	LabelWidth int
}

func newBatch(capacity, height, width, depth int) *Batch {
	return &Batch{
		Images:     make([]float32, 0, capacity*height*width*depth),
		Labels:     make([]int32, 0, capacity*records.LabelBytes),
		Height:     height,
		Width:      width,
		Depth:      depth,
		LabelWidth: records.LabelBytes,
	}
}

func (b *Batch) append(p Pair) error {
	if p.Image.Height != b.Height || p.Image.Width != b.Width || p.Image.Depth != b.Depth {
		return fmt.Errorf("pair %s has shape (%d,%d,%d), batch wants (%d,%d,%d)",
			p.Key, p.Image.Height, p.Image.Width, p.Image.Depth, b.Height, b.Width, b.Depth)
	}
	if len(p.Label) != b.LabelWidth {
		return fmt.Errorf("pair %s has label width %d, batch wants %d", p.Key, len(p.Label), b.LabelWidth)
	}
	b.Images = append(b.Images, p.Image.Pix...)
	b.Labels = append(b.Labels, p.Label...)
	b.BatchSize++
	return nil
}

// Len returns the number of examples in the batch.
func (b *Batch) Len() int {
	return b.BatchSize
}

// ImageAt returns example i's pixels as a view into the flat buffer.
func (b *Batch) ImageAt(i int) []float32 {
	stride := b.Height * b.Width * b.Depth
	return b.Images[i*stride : (i+1)*stride]
}

// LabelAt returns example i's label as a view into the flat buffer.
func (b *Batch) LabelAt(i int) []int32 {
	return b.Labels[i*b.LabelWidth : (i+1)*b.LabelWidth]
}

// Tensors converts the batch into gomlx tensors: a float32 image tensor of
// shape [BatchSize, Height, Width, Depth] and an int32 label tensor of
// shape [BatchSize, LabelWidth].
func (b *Batch) Tensors() (images *tensors.Tensor, labels *tensors.Tensor, err error) {
	if b.BatchSize == 0 {
		return nil, nil, fmt.Errorf("cannot convert an empty batch to tensors")
	}
	if len(b.Images) != b.BatchSize*b.Height*b.Width*b.Depth {
		return nil, nil, fmt.Errorf("image buffer holds %d values, want %d",
			len(b.Images), b.BatchSize*b.Height*b.Width*b.Depth)
	}
	if len(b.Labels) != b.BatchSize*b.LabelWidth {
		return nil, nil, fmt.Errorf("label buffer holds %d values, want %d",
			len(b.Labels), b.BatchSize*b.LabelWidth)
	}
	images = tensors.FromFlatDataAndDimensions(b.Images, b.BatchSize, b.Height, b.Width, b.Depth)
	labels = tensors.FromFlatDataAndDimensions(b.Labels, b.BatchSize, b.LabelWidth)
	return images, labels, nil
}
