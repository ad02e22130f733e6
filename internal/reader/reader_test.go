package reader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/jessegalley/readbench/internal/entropy"
	"github.com/jessegalley/readbench/internal/ioerr"
	"github.com/jessegalley/readbench/internal/layout"
	"golang.org/x/sys/unix"
)

// writeTestFile creates a pattern filled file of size bytes
func writeTestFile(t *testing.T, size int64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "f1")
	if err := layout.NewProvisioner(entropy.NewSeeded(1)).CreateFile(path, size, layout.FillPattern); err != nil {
		t.Fatal(err)
	}
	return path
}

func newReader(t *testing.T, opts Options) *Reader {
	t.Helper()
	r, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(r.Close)
	return r
}

func TestRanges(t *testing.T) {
	tests := []struct {
		length, chunk int64
		want          []Range
	}{
		{0, 4096, nil},
		{100, 4096, []Range{{0, 100}}},
		{4096, 4096, []Range{{0, 4096}}},
		{16384, 4096, []Range{{0, 4096}, {4096, 4096}, {8192, 4096}, {12288, 4096}}},
		{8192, 0, nil},
	}

	for _, tt := range tests {
		got := Ranges(tt.length, tt.chunk)
		if !slices.Equal(got, tt.want) {
			t.Errorf("Ranges(%d, %d) = %v, want %v", tt.length, tt.chunk, got, tt.want)
		}
	}
}

func TestParallelMatchesSequential(t *testing.T) {
	sizes := []struct {
		length, chunk int64
	}{
		{64 * 1024, 4096},
		{4096, 1 << 20}, // chunk larger than the file
		{1 << 20, 64 * 1024},
	}

	for _, sz := range sizes {
		t.Run(fmt.Sprintf("%d/%d", sz.length, sz.chunk), func(t *testing.T) {
			path := writeTestFile(t, sz.length)
			base := Options{ExpectedSize: sz.length, ChunkSize: sz.chunk, Alignment: 4096, Workers: 4, Direct: true}

			seq := newReader(t, base)
			seqRes, err := seq.ReadFile(context.Background(), path)
			if err != nil {
				t.Fatalf("sequential: %v", err)
			}

			par := base
			par.Parallel = true
			parRes, err := newReader(t, par).ReadFile(context.Background(), path)
			if err != nil {
				t.Fatalf("parallel: %v", err)
			}

			if seqRes.Bytes != sz.length || parRes.Bytes != sz.length {
				t.Fatalf("sequential=%d parallel=%d, want %d", seqRes.Bytes, parRes.Bytes, sz.length)
			}
		})
	}
}

func TestSequentialReuseAcrossFiles(t *testing.T) {
	r := newReader(t, Options{ExpectedSize: 8192, ChunkSize: 4096, Alignment: 4096})
	path := writeTestFile(t, 8192)

	for i := 0; i < 3; i++ {
		res, err := r.ReadFile(context.Background(), path)
		if err != nil {
			t.Fatal(err)
		}
		if res.Bytes != 8192 {
			t.Fatalf("read %d bytes, want 8192", res.Bytes)
		}
	}
}

func TestSequentialStopsAtEOF(t *testing.T) {
	path := writeTestFile(t, 4096)
	r := newReader(t, Options{ExpectedSize: 16384, ChunkSize: 4096, Alignment: 4096})

	res, err := r.ReadFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if res.Bytes != 4096 {
		t.Fatalf("read %d bytes, want 4096", res.Bytes)
	}
}

func TestZeroLengthFile(t *testing.T) {
	path := writeTestFile(t, 0)
	for _, parallel := range []bool{false, true} {
		r := newReader(t, Options{ExpectedSize: 0, ChunkSize: 4096, Alignment: 4096, Parallel: parallel, Direct: true})
		res, err := r.ReadFile(context.Background(), path)
		if err != nil {
			t.Fatalf("parallel=%v: %v", parallel, err)
		}
		if res.Bytes != 0 {
			t.Fatalf("parallel=%v: read %d bytes, want 0", parallel, res.Bytes)
		}
	}
}

func TestParallelShortReadFails(t *testing.T) {
	path := writeTestFile(t, 8192)
	r := newReader(t, Options{ExpectedSize: 16384, ChunkSize: 4096, Alignment: 4096, Workers: 2, Parallel: true})

	_, err := r.ReadFile(context.Background(), path)
	if !ioerr.Is(err, ioerr.KindRead) {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestSkipReadTransfersNothing(t *testing.T) {
	path := writeTestFile(t, 8192)
	r := newReader(t, Options{ExpectedSize: 8192, ChunkSize: 4096, SkipRead: true})

	res, err := r.ReadFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if res.Bytes != 0 {
		t.Fatalf("read %d bytes in skip-read mode", res.Bytes)
	}
}

func TestMissingFileIsOpenError(t *testing.T) {
	r := newReader(t, Options{ExpectedSize: 4096, ChunkSize: 4096, Direct: true})
	_, err := r.ReadFile(context.Background(), filepath.Join(t.TempDir(), "missing"))
	if !ioerr.Is(err, ioerr.KindOpen) {
		t.Fatalf("expected open error, got %v", err)
	}
}

func TestProbeFallsBackOnEINVAL(t *testing.T) {
	orig := openDirect
	t.Cleanup(func() { openDirect = orig })
	openDirect = func(name string, flag int, perm os.FileMode) (*os.File, error) {
		return nil, &os.PathError{Op: "open", Path: name, Err: unix.EINVAL}
	}

	path := writeTestFile(t, 4096)
	opened, err := Probe(path, true)
	if err != nil {
		t.Fatal(err)
	}
	defer opened.File.Close()

	if opened.Mode != ModeBuffered || !opened.Fallback {
		t.Fatalf("got mode %s fallback=%v, want buffered fallback", opened.Mode, opened.Fallback)
	}

	r := newReader(t, Options{ExpectedSize: 4096, ChunkSize: 4096, Alignment: 4096, Direct: true})
	res, err := r.ReadFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Fallback || res.Bytes != 4096 {
		t.Fatalf("got %+v, want fallback read of 4096 bytes", res)
	}
}

func TestProbeOtherErrorsAreFatal(t *testing.T) {
	orig := openDirect
	t.Cleanup(func() { openDirect = orig })
	openDirect = func(name string, flag int, perm os.FileMode) (*os.File, error) {
		return nil, &os.PathError{Op: "open", Path: name, Err: unix.EIO}
	}

	_, err := Probe(writeTestFile(t, 4096), true)
	if !ioerr.Is(err, ioerr.KindOpen) {
		t.Fatalf("expected open error, got %v", err)
	}
}

func TestProbeBufferedOnRequest(t *testing.T) {
	opened, err := Probe(writeTestFile(t, 4096), false)
	if err != nil {
		t.Fatal(err)
	}
	defer opened.File.Close()
	if opened.Mode != ModeBuffered || opened.Fallback {
		t.Fatalf("got mode %s fallback=%v", opened.Mode, opened.Fallback)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	r, err := New(Options{ExpectedSize: 4096, ChunkSize: 4096})
	if err != nil {
		t.Fatal(err)
	}
	r.Close()
	r.Close()
}
