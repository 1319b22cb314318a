package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// Dataset adapts a running pipeline to the gomlx train.Dataset interface so
// a training loop can pull batches with Yield. Each Yield returns one batch
// as a single image tensor and a single label tensor; exhaustion of a
// finite input is reported as io.EOF, and Restart begins a fresh pass over
// the files.
type Dataset struct {
	name   string
	p      *Pipeline
	parent context.Context
	cancel context.CancelFunc

	batches <-chan *Batch
	errs    <-chan error
}

// Dataset starts a pipeline run under ctx and wraps it for a training
// loop. Close the dataset (or cancel ctx) to release the pipeline's
// goroutines.
func (p *Pipeline) Dataset(ctx context.Context, name string) *Dataset {
	d := &Dataset{name: name, p: p, parent: ctx}
	d.start()
	return d
}

func (d *Dataset) start() {
	ctx, cancel := context.WithCancel(d.parent)
	d.cancel = cancel
	d.batches, d.errs = d.p.Run(ctx)
}

// Name implements the gomlx dataset interface.
func (d *Dataset) Name() string {
	return d.name
}

// Yield returns the next batch as gomlx tensors. The spec return is always
// nil. When a finite input is exhausted it returns io.EOF; a pipeline error
// is returned as-is.
func (d *Dataset) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	b, ok := <-d.batches
	if !ok {
		if perr, eok := <-d.errs; eok && perr != nil {
			return nil, nil, nil, perr
		}
		return nil, nil, nil, io.EOF
	}
	images, lab, err := b.Tensors()
	if err != nil {
		return nil, nil, nil, err
	}
	return nil, []*tensors.Tensor{images}, []*tensors.Tensor{lab}, nil
}

// Restart cancels the current pass and starts a new one from the first
// file. It is only meaningful for finite inputs; a cycling pipeline never
// ends, so restarting one is rejected.
func (d *Dataset) Restart() error {
	if d.p.cfg.Cycle {
		return fmt.Errorf("dataset %s: cannot restart a cycling pipeline", d.name)
	}
	d.cancel()
	d.start()
	return nil
}

// Close stops the underlying pipeline run.
func (d *Dataset) Close() {
	d.cancel()
}
