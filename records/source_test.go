package records

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// writeRecordFile writes n records to path. Record r has every label byte
// and every pixel byte set to byte(r+1), so records are distinguishable and
// never zero. extra trailing garbage bytes are appended when extra > 0.
func writeRecordFile(t *testing.T, path string, shape ImageShape, n, extra int) {
	t.Helper()
	buf := make([]byte, 0, n*shape.RecordBytes()+extra)
	for r := 0; r < n; r++ {
		rec := make([]byte, shape.RecordBytes())
		for i := range rec {
			rec[i] = byte(r + 1)
		}
		buf = append(buf, rec...)
	}
	for i := 0; i < extra; i++ {
		buf = append(buf, 0xEE)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("failed to write record file %s: %v", path, err)
	}
}

// collect drains a finite stream and fails the test on any stream error.
func collect(t *testing.T, src *Source) []RawRecord {
	t.Helper()
	recs, errs := src.Stream(context.Background())
	var got []RawRecord
	for r := range recs {
		got = append(got, r)
	}
	if err := <-errs; err != nil {
		t.Fatalf("stream error: %v", err)
	}
	return got
}

func TestNewSource_MissingFile(t *testing.T) {
	shape := ImageShape{Height: 2, Width: 2, Depth: 1}
	missing := filepath.Join(t.TempDir(), "nope.aps")

	_, err := NewSource([]string{missing}, shape)
	if err == nil {
		t.Fatalf("expected error for missing file, got nil")
	}
	var mfe *MissingFileError
	if !errors.As(err, &mfe) {
		t.Fatalf("expected MissingFileError, got %T: %v", err, err)
	}
	if mfe.Path != missing {
		t.Fatalf("error names path %q, want %q", mfe.Path, missing)
	}
}

func TestNewSource_EmptyFileList(t *testing.T) {
	if _, err := NewSource(nil, ImageShape{Height: 1, Width: 1, Depth: 1}); err == nil {
		t.Fatalf("expected error for empty file list, got nil")
	}
}

func TestStream_EmitsAllRecordsInOrder(t *testing.T) {
	shape := ImageShape{Height: 2, Width: 2, Depth: 1}
	path := filepath.Join(t.TempDir(), "a.aps")
	writeRecordFile(t, path, shape, 3, 0)

	src, err := NewSource([]string{path}, shape)
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}
	got := collect(t, src)

	if len(got) != 3 {
		t.Fatalf("got %d records, want 3", len(got))
	}
	for r, rec := range got {
		if len(rec.Data) != shape.RecordBytes() {
			t.Fatalf("record %d has %d bytes, want %d", r, len(rec.Data), shape.RecordBytes())
		}
		if rec.Data[0] != byte(r+1) {
			t.Fatalf("record %d starts with %d, want %d (file order broken)", r, rec.Data[0], r+1)
		}
		wantKey := fmt.Sprintf("%s@%d", path, r*shape.RecordBytes())
		if rec.Key != wantKey {
			t.Fatalf("record %d key = %q, want %q", r, rec.Key, wantKey)
		}
	}
}

func TestStream_ReadsFilesInListOrder(t *testing.T) {
	shape := ImageShape{Height: 1, Width: 1, Depth: 1}
	dir := t.TempDir()
	first := filepath.Join(dir, "z_first.aps")
	second := filepath.Join(dir, "a_second.aps")
	writeRecordFile(t, first, shape, 2, 0)
	writeRecordFile(t, second, shape, 1, 0)

	// List order wins, not lexical order.
	src, err := NewSource([]string{first, second}, shape)
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}
	got := collect(t, src)

	if len(got) != 3 {
		t.Fatalf("got %d records, want 3", len(got))
	}
	wantStarts := []byte{1, 2, 1}
	for r, rec := range got {
		if rec.Data[0] != wantStarts[r] {
			t.Fatalf("record %d starts with %d, want %d", r, rec.Data[0], wantStarts[r])
		}
	}
}

func TestStream_SkipsTrailingPartialRecord(t *testing.T) {
	shape := ImageShape{Height: 2, Width: 2, Depth: 1}
	path := filepath.Join(t.TempDir(), "ragged.aps")
	writeRecordFile(t, path, shape, 2, 10)

	src, err := NewSource([]string{path}, shape)
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}
	got := collect(t, src)
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2 (partial record should be skipped)", len(got))
	}
}

func TestStream_StrictFramingFailsOnPartialRecord(t *testing.T) {
	shape := ImageShape{Height: 2, Width: 2, Depth: 1}
	path := filepath.Join(t.TempDir(), "ragged.aps")
	writeRecordFile(t, path, shape, 2, 10)

	src, err := NewSource([]string{path}, shape, WithStrictFraming())
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}

	recs, errs := src.Stream(context.Background())
	count := 0
	for range recs {
		count++
	}
	err = <-errs
	if err == nil {
		t.Fatalf("expected RecordLengthError, got nil (after %d records)", count)
	}
	var rle *RecordLengthError
	if !errors.As(err, &rle) {
		t.Fatalf("expected RecordLengthError, got %T: %v", err, err)
	}
	if rle.Got != 10 || rle.Want != shape.RecordBytes() {
		t.Fatalf("unexpected error fields: got=%d want=%d", rle.Got, rle.Want)
	}
	if count != 2 {
		t.Fatalf("emitted %d whole records before the error, want 2", count)
	}
}

func TestStream_CycleWrapsAround(t *testing.T) {
	shape := ImageShape{Height: 1, Width: 1, Depth: 1}
	path := filepath.Join(t.TempDir(), "cycle.aps")
	writeRecordFile(t, path, shape, 3, 0)

	src, err := NewSource([]string{path}, shape, WithCycle())
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	recs, errs := src.Stream(ctx)

	var got []byte
	for rec := range recs {
		got = append(got, rec.Data[0])
		if len(got) == 7 {
			cancel()
			break
		}
	}
	// Drain so the reader goroutine can finish.
	for range recs {
	}
	if err := <-errs; err != nil {
		t.Fatalf("unexpected stream error after cancel: %v", err)
	}

	want := []byte{1, 2, 3, 1, 2, 3, 1}
	for i, b := range want {
		if got[i] != b {
			t.Fatalf("cycled record %d starts with %d, want %d", i, got[i], b)
		}
	}
}

func TestCountRecords(t *testing.T) {
	shape := ImageShape{Height: 2, Width: 2, Depth: 1}
	dir := t.TempDir()
	whole := filepath.Join(dir, "whole.aps")
	ragged := filepath.Join(dir, "ragged.aps")
	writeRecordFile(t, whole, shape, 4, 0)
	writeRecordFile(t, ragged, shape, 2, 100)

	counts, err := CountRecords([]string{whole, ragged}, shape)
	if err != nil {
		t.Fatalf("CountRecords failed: %v", err)
	}
	if len(counts) != 2 {
		t.Fatalf("got %d file counts, want 2", len(counts))
	}
	if counts[0].Records != 4 || counts[0].Residue != 0 {
		t.Fatalf("whole file: records=%d residue=%d, want 4/0", counts[0].Records, counts[0].Residue)
	}
	if counts[1].Records != 2 || counts[1].Residue != 100 {
		t.Fatalf("ragged file: records=%d residue=%d, want 2/100", counts[1].Records, counts[1].Residue)
	}

	if _, err := CountRecords([]string{filepath.Join(dir, "missing.aps")}, shape); err == nil {
		t.Fatalf("expected MissingFileError for absent file, got nil")
	}
}
