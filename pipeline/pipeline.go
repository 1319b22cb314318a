package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Noofbiz/apsFeed/preprocess"
	"github.com/Noofbiz/apsFeed/records"
)

// This package wires the full record-to-batch pipeline: one source
// goroutine streaming raw records from the input files, a pool of workers
// decoding and normalizing them, and one assembler goroutine grouping the
// results into fixed-shape batches. Every queue between stages is bounded
// by MinQueueExamples + 3*BatchSize, so a slow consumer backpressures all
// the way to the file reads and peak memory stays bounded.

// Config is the full, caller-supplied configuration of a pipeline. Nothing
// is read from the environment.
type Config struct {
	// Files is the ordered list of input files. Every path must exist.
	Files []string
	// Shape is the pixel geometry of the records in Files.
	Shape records.ImageShape
	// TargetHeight/TargetWidth select the post-crop-or-pad image size.
	// Zero means "same as Shape".
	TargetHeight int
	TargetWidth  int

	BatchSize int
	// Shuffle selects randomized batch assembly; see Assembler.
	Shuffle bool
	// MinQueueExamples is the minimum number of buffered pairs to mix
	// across when shuffling, and sizes every internal queue.
	MinQueueExamples int
	// Workers is the number of decode+preprocess goroutines. Affects
	// throughput and interleaving only, never output shapes.
	Workers int
	// Cycle restarts from the first file after the last, indefinitely.
	Cycle bool
	// FlushPartial emits a final short batch instead of dropping the
	// remainder of a finite input.
	FlushPartial bool
	// StrictFraming aborts on a trailing partial record instead of
	// skipping it.
	StrictFraming bool
	Seed          int64
	// LogEvery logs a progress line every N emitted batches; 0 disables.
	LogEvery int
	// Logger receives diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

func (c *Config) targetSize() (h, w int) {
	h, w = c.TargetHeight, c.TargetWidth
	if h == 0 {
		h = c.Shape.Height
	}
	if w == 0 {
		w = c.Shape.Width
	}
	return h, w
}

func (c *Config) validate() error {
	if err := c.Shape.Validate(); err != nil {
		return err
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	h, w := c.targetSize()
	if h <= 0 || w <= 0 {
		return fmt.Errorf("target size must be positive, got (%d,%d)", h, w)
	}
	if c.Shuffle && c.MinQueueExamples < 1 {
		return fmt.Errorf("shuffle needs min_queue_examples >= 1, got %d", c.MinQueueExamples)
	}
	if c.MinQueueExamples < 0 {
		return fmt.Errorf("min_queue_examples must not be negative, got %d", c.MinQueueExamples)
	}
	return nil
}

// Pipeline owns a validated configuration and its record source. Run may be
// called more than once; each call is an independent pass over the input.
type Pipeline struct {
	cfg Config
	src *records.Source
	log *slog.Logger
}

// New validates cfg and the file list. A missing input file fails here,
// before any record is read and before any batch is emitted.
func New(cfg Config) (*Pipeline, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	srcOpts := []records.SourceOption{records.WithLogger(cfg.Logger)}
	if cfg.Cycle {
		srcOpts = append(srcOpts, records.WithCycle())
	}
	if cfg.StrictFraming {
		srcOpts = append(srcOpts, records.WithStrictFraming())
	}
	src, err := records.NewSource(cfg.Files, cfg.Shape, srcOpts...)
	if err != nil {
		return nil, err
	}

	cfg.Logger.Info("pipeline ready",
		"files", len(cfg.Files),
		"shape", fmt.Sprintf("(%d,%d,%d)", cfg.Shape.Height, cfg.Shape.Width, cfg.Shape.Depth),
		"batch_size", cfg.BatchSize,
		"shuffle", cfg.Shuffle,
		"workers", cfg.Workers)

	return &Pipeline{cfg: cfg, src: src, log: cfg.Logger}, nil
}

// Config returns a copy of the pipeline's effective configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Run starts the pipeline and returns its batch and error channels. Both
// close when the input is exhausted, on the first error, or when ctx is
// canceled. The first error cancels every stage; partially filled batches
// are discarded, never emitted.
func (p *Pipeline) Run(parent context.Context) (<-chan *Batch, <-chan error) {
	ctx, cancel := context.WithCancel(parent)

	targetH, targetW := p.cfg.targetSize()
	capacity := p.cfg.MinQueueExamples + 3*p.cfg.BatchSize

	raw, srcErr := p.src.Stream(ctx)
	pairs := make(chan Pair, capacity)
	workerErrs := make(chan error, p.cfg.Workers)

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx, raw, pairs, workerErrs, targetH, targetW)
		}()
	}
	go func() {
		wg.Wait()
		close(pairs)
		close(workerErrs)
	}()

	asm := &Assembler{
		BatchSize:    p.cfg.BatchSize,
		Shuffle:      p.cfg.Shuffle,
		MinBuffer:    p.cfg.MinQueueExamples,
		FlushPartial: p.cfg.FlushPartial,
		Seed:         p.cfg.Seed,
		Log:          p.log,
		Height:       targetH,
		Width:        targetW,
		Depth:        p.cfg.Shape.Depth,
	}
	batches, asmErr := asm.Assemble(ctx, pairs)

	out := make(chan *Batch)
	errOut := make(chan error, 1)

	go func() {
		defer close(errOut)
		defer close(out)
		defer cancel()

		// Local copies: drained channels are set to nil to drop them from
		// the select without touching the variables other goroutines hold.
		srcErrCh, workerErrCh, asmErrCh := srcErr, (<-chan error)(workerErrs), asmErr

		emitted := 0
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-srcErrCh:
				if ok && err != nil {
					errOut <- err
					return
				}
				srcErrCh = nil
			case err, ok := <-workerErrCh:
				if ok && err != nil {
					errOut <- err
					return
				}
				workerErrCh = nil
			case err, ok := <-asmErrCh:
				if ok && err != nil {
					errOut <- err
					return
				}
				asmErrCh = nil
			case b, ok := <-batches:
				if !ok {
					// Assembly is done; surface any error still queued
					// behind the batch channel before closing up.
					if err := sweepErrors(srcErrCh, workerErrCh, asmErrCh); err != nil {
						errOut <- err
					}
					return
				}
				select {
				case <-ctx.Done():
					return
				case out <- b:
				}
				emitted++
				if p.cfg.LogEvery > 0 && emitted%p.cfg.LogEvery == 0 {
					p.log.Info("batches emitted", "count", emitted, "last_size", b.Len())
				}
			}
		}
	}()

	return out, errOut
}

func (p *Pipeline) worker(ctx context.Context, raw <-chan records.RawRecord, pairs chan<- Pair, errs chan<- error, targetH, targetW int) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-raw:
			if !ok {
				return
			}
			dec, err := records.Decode(rec, p.cfg.Shape)
			if err != nil {
				errs <- err
				return
			}
			img, err := preprocess.Process(dec.Image, targetH, targetW)
			if err != nil {
				errs <- fmt.Errorf("preprocess %s: %w", rec.Key, err)
				return
			}
			select {
			case <-ctx.Done():
				return
			case pairs <- Pair{Image: img, Label: dec.Label, Key: dec.Key}:
			}
		}
	}
}

// sweepErrors does one non-blocking pass over the remaining error channels.
// Nil channels (already drained) are skipped.
func sweepErrors(chans ...<-chan error) error {
	for _, ch := range chans {
		if ch == nil {
			continue
		}
		select {
		case err, ok := <-ch:
			if ok && err != nil {
				return err
			}
		default:
		}
	}
	return nil
}
