package records

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// MissingFileError reports a declared input file that does not exist. It is
// raised during the eager validation pass, before any record is read.
type MissingFileError struct {
	Path string
}

func (e *MissingFileError) Error() string {
	return fmt.Sprintf("failed to find file: %s", e.Path)
}

// RecordLengthError reports a file whose length is not an exact multiple of
// the record size, raised only under strict framing. The whole stream is
// aborted: if one record boundary is wrong, all later ones in the file are
// too.
type RecordLengthError struct {
	Path   string
	Offset int64
	Want   int
	Got    int
}

func (e *RecordLengthError) Error() string {
	return fmt.Sprintf("%s@%d: short record, got %d of %d bytes", e.Path, e.Offset, e.Got, e.Want)
}

// SourceOption configures a Source.
type SourceOption func(*Source)

// WithCycle makes the source wrap around to the first file after the last
// one is exhausted, producing an infinite stream. Used for training input.
func WithCycle() SourceOption {
	return func(s *Source) { s.cycle = true }
}

// WithLogger injects the diagnostics logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) SourceOption {
	return func(s *Source) { s.log = l }
}

// WithStrictFraming makes a trailing partial record fatal
// (RecordLengthError) instead of skipped-with-warning.
func WithStrictFraming() SourceOption {
	return func(s *Source) { s.strict = true }
}

// Source produces fixed-length raw records from an ordered list of files.
//
// Files are read in list order; within a file, consecutive non-overlapping
// RecordBytes-sized chunks are emitted until the file is exhausted. A
// trailing partial record (file length not an exact multiple of the record
// size) is skipped with a logged warning by default, or aborts the stream
// with a RecordLengthError under WithStrictFraming.
type Source struct {
	files  []string
	shape  ImageShape
	cycle  bool
	strict bool
	log    *slog.Logger
}

// NewSource validates the file list eagerly and returns a Source. Every
// path is checked for existence up front; any absent path fails with a
// MissingFileError before a single record is produced.
func NewSource(files []string, shape ImageShape, opts ...SourceOption) (*Source, error) {
	if len(files) == 0 {
		return nil, errors.New("records: empty file list")
	}
	if err := shape.Validate(); err != nil {
		return nil, err
	}

	s := &Source{files: files, shape: shape, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			if os.IsNotExist(err) {
				return nil, &MissingFileError{Path: f}
			}
			return nil, fmt.Errorf("stat %s: %w", f, err)
		}
		s.log.Debug("found input file", "path", f)
	}
	return s, nil
}

// Shape returns the image shape the source was opened with.
func (s *Source) Shape() ImageShape {
	return s.shape
}

// Stream launches a reader goroutine and returns its record and error
// channels. Both channels are closed when the stream ends: after the last
// file for a finite source, on the first error, or when ctx is canceled.
// Sends block when the consumer falls behind, which is the pipeline's
// backpressure.
func (s *Source) Stream(ctx context.Context) (<-chan RawRecord, <-chan error) {
	out := make(chan RawRecord)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		for {
			for _, path := range s.files {
				if err := s.streamFile(ctx, path, out); err != nil {
					if !errors.Is(err, context.Canceled) {
						errCh <- err
					}
					return
				}
			}
			if !s.cycle {
				return
			}
		}
	}()

	return out, errCh
}

func (s *Source) streamFile(ctx context.Context, path string, out chan<- RawRecord) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	recordBytes := s.shape.RecordBytes()
	r := bufio.NewReader(f)
	var offset int64

	for {
		buf := make([]byte, recordBytes)
		n, err := io.ReadFull(r, buf)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			if s.strict {
				return &RecordLengthError{Path: path, Offset: offset, Want: recordBytes, Got: n}
			}
			s.log.Warn("discarding trailing partial record",
				"path", path, "offset", offset, "residue_bytes", n)
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s@%d: %w", path, offset, err)
		}

		rec := RawRecord{
			Key:  fmt.Sprintf("%s@%d", path, offset),
			Data: buf,
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- rec:
		}
		offset += int64(recordBytes)
	}
}

// FileCount holds inspection results for one input file.
type FileCount struct {
	Path    string
	Records int
	// Residue is the byte count of a trailing partial record, 0 for a
	// well-formed file.
	Residue int
}

// CountRecords reports how many whole records each file holds, without
// reading any pixel data. Missing files fail with MissingFileError.
func CountRecords(files []string, shape ImageShape) ([]FileCount, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	recordBytes := int64(shape.RecordBytes())

	counts := make([]FileCount, 0, len(files))
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, &MissingFileError{Path: f}
			}
			return nil, fmt.Errorf("stat %s: %w", f, err)
		}
		counts = append(counts, FileCount{
			Path:    f,
			Records: int(info.Size() / recordBytes),
			Residue: int(info.Size() % recordBytes),
		})
	}
	return counts, nil
}
