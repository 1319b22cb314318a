package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
)

// Assembler groups a stream of pairs into fixed-size batches.
//
// Ordered mode (Shuffle false) is strict FIFO: batch i holds input pairs
// [i*BatchSize, (i+1)*BatchSize) in arrival order, deterministic and
// replayable. Shuffled mode keeps a bounded buffer of capacity
// MinBuffer + 3*BatchSize; once the buffer has filled (or the input ended),
// each emitted item is drawn uniformly at random from the buffered items
// and the vacated slot is refilled from the input. Every input item is
// emitted exactly once in either mode.
//
// When the input is finite and fewer than BatchSize items remain, the
// remainder is dropped unless FlushPartial is set, in which case one final
// short batch is emitted. Cancellation discards any partially filled batch.
type Assembler struct {
	BatchSize int
	Shuffle   bool
	// MinBuffer is the minimum number of buffered items to mix across in
	// shuffled mode (min_queue_examples). Ignored when Shuffle is false.
	MinBuffer    int
	FlushPartial bool
	Seed         int64
	Log          *slog.Logger

	// Target image geometry; every incoming pair must match.
	Height int
	Width  int
	Depth  int
}

// Assemble launches the assembler goroutine. The batch channel closes when
// the input closes or ctx is canceled; the error channel carries at most
// one error.
func (a *Assembler) Assemble(ctx context.Context, in <-chan Pair) (<-chan *Batch, <-chan error) {
	out := make(chan *Batch)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		if err := a.validate(); err != nil {
			errCh <- err
			return
		}
		var err error
		if a.Shuffle {
			err = a.assembleShuffled(ctx, in, out)
		} else {
			err = a.assembleOrdered(ctx, in, out)
		}
		if err != nil && ctx.Err() == nil {
			errCh <- err
		}
	}()

	return out, errCh
}

func (a *Assembler) validate() error {
	if a.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", a.BatchSize)
	}
	if a.Shuffle && a.MinBuffer < 1 {
		return fmt.Errorf("shuffled assembly needs min buffer >= 1, got %d", a.MinBuffer)
	}
	if a.Height <= 0 || a.Width <= 0 || a.Depth <= 0 {
		return fmt.Errorf("batch image shape must be positive, got (%d,%d,%d)", a.Height, a.Width, a.Depth)
	}
	return nil
}

func (a *Assembler) logger() *slog.Logger {
	if a.Log != nil {
		return a.Log
	}
	return slog.Default()
}

func (a *Assembler) assembleOrdered(ctx context.Context, in <-chan Pair, out chan<- *Batch) error {
	cur := newBatch(a.BatchSize, a.Height, a.Width, a.Depth)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p, ok := <-in:
			if !ok {
				return a.finish(ctx, cur, out)
			}
			if err := cur.append(p); err != nil {
				return err
			}
			if cur.Len() == a.BatchSize {
				if err := send(ctx, out, cur); err != nil {
					return err
				}
				cur = newBatch(a.BatchSize, a.Height, a.Width, a.Depth)
			}
		}
	}
}

func (a *Assembler) assembleShuffled(ctx context.Context, in <-chan Pair, out chan<- *Batch) error {
	capacity := a.MinBuffer + 3*a.BatchSize
	buffer := make([]Pair, 0, capacity)
	rng := rand.New(rand.NewSource(a.Seed))
	cur := newBatch(a.BatchSize, a.Height, a.Width, a.Depth)
	open := true

	for {
		// Refill until the buffer is full or the input is exhausted. No
		// item is emitted before the buffer reaches MinBuffer unless the
		// input ended first.
		for open && len(buffer) < capacity {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case p, ok := <-in:
				if !ok {
					open = false
					continue
				}
				buffer = append(buffer, p)
			}
		}
		if len(buffer) == 0 {
			return a.finish(ctx, cur, out)
		}

		// Draw one buffered item uniformly at random; swap-remove keeps
		// the refill O(1) and guarantees exactly-once emission.
		i := rng.Intn(len(buffer))
		p := buffer[i]
		buffer[i] = buffer[len(buffer)-1]
		buffer = buffer[:len(buffer)-1]

		if err := cur.append(p); err != nil {
			return err
		}
		if cur.Len() == a.BatchSize {
			if err := send(ctx, out, cur); err != nil {
				return err
			}
			cur = newBatch(a.BatchSize, a.Height, a.Width, a.Depth)
		}
	}
}

// finish handles the trailing partial batch once the input is exhausted.
func (a *Assembler) finish(ctx context.Context, cur *Batch, out chan<- *Batch) error {
	if cur.Len() == 0 {
		return nil
	}
	if !a.FlushPartial {
		a.logger().Debug("dropping trailing partial batch", "size", cur.Len(), "batch_size", a.BatchSize)
		return nil
	}
	return send(ctx, out, cur)
}

func send(ctx context.Context, out chan<- *Batch, b *Batch) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case out <- b:
		return nil
	}
}
