// Package reader reads whole test files, either as one sequential stream
// of aligned chunks or as concurrent positioned reads of disjoint ranges.
package reader

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"github.com/jessegalley/readbench/internal/alignedbuf"
	"github.com/jessegalley/readbench/internal/ioerr"
	"github.com/jessegalley/readbench/internal/stats"
)

// Options configures a Reader
type Options struct {
	ExpectedSize int64 // bytes to read from each file (L)
	ChunkSize    int64 // bytes per read call (C)
	Alignment    int   // buffer alignment, must be a power of two
	Workers      int   // ceiling on concurrent range reads
	Direct       bool  // request o_direct
	Parallel     bool  // use positioned range reads
	SkipRead     bool  // open and close only
}

// Reader reads test files according to its Options. A Reader is used by
// one goroutine at a time; parallelism happens inside ReadFile.
type Reader struct {
	opts Options

	// buf is the sequential strategy's chunk buffer, reused across files
	buf *alignedbuf.Buffer

	// pool hands out range buffers to parallel workers
	pool *alignedbuf.Pool

	warned bool
}

// New creates a Reader, allocating the buffers its strategy needs
func New(opts Options) (*Reader, error) {
	if opts.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", opts.ChunkSize)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Alignment == 0 {
		opts.Alignment = alignedbuf.DefaultAlignment
	}

	r := &Reader{opts: opts}
	if opts.SkipRead {
		return r, nil
	}

	if opts.Parallel {
		// a file no larger than one chunk is read as a single range of its own length
		r.pool = alignedbuf.NewPool(int(min(opts.ChunkSize, max(opts.ExpectedSize, 1))), opts.Alignment)
		return r, nil
	}

	buf, err := alignedbuf.Acquire(int(opts.ChunkSize), opts.Alignment)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate read buffer: %w", err)
	}
	r.buf = buf
	return r, nil
}

// Close releases the reader's buffers. It is safe to call more than once.
func (r *Reader) Close() {
	r.buf.Release()
	r.pool = nil
}

// ReadFile opens path, transfers its content with the configured strategy
// and closes it again. Bytes and Fallback of the result are filled in.
func (r *Reader) ReadFile(ctx context.Context, path string) (stats.IterationResult, error) {
	var res stats.IterationResult

	opened, err := Probe(path, r.opts.Direct)
	if err != nil {
		return res, err
	}
	f := opened.File
	defer f.Close()

	res.Fallback = opened.Fallback
	if opened.Fallback {
		r.warnFallback(path)
	}

	switch {
	case r.opts.SkipRead:
		return res, nil
	case r.opts.Parallel:
		res.Bytes, err = r.readParallel(ctx, f, path)
	default:
		res.Bytes, err = r.readSequential(f, path)
	}

	return res, err
}

func (r *Reader) warnFallback(path string) {
	if r.warned {
		glog.V(2).Infof("direct io unsupported for %s, reading buffered", path)
		return
	}
	r.warned = true
	glog.Warningf("direct io unsupported for %s, falling back to buffered io", path)
}

// readSequential streams the file through the reusable chunk buffer until
// ExpectedSize bytes are consumed or the file ends
func (r *Reader) readSequential(f *os.File, path string) (int64, error) {
	if r.buf == nil || r.buf.Released() {
		return 0, ioerr.New(ioerr.KindAllocation, "read", path, fmt.Errorf("read buffer not available"))
	}
	buf := r.buf.Bytes()

	var total int64
	for total < r.opts.ExpectedSize {
		want := min(int64(len(buf)), r.opts.ExpectedSize-total)

		n, err := f.Read(buf[:want])
		total += int64(n)
		if err == io.EOF || (err == nil && n == 0) {
			break
		}
		if err != nil {
			return total, ioerr.New(ioerr.KindRead, "read", path, err)
		}
	}

	return total, nil
}

// Range is a disjoint byte range of a file
type Range struct {
	Offset int64
	Length int64
}

// Ranges partitions a file of length bytes into chunk sized ranges.
// An empty file has no ranges and a file no larger than one chunk is a
// single range. Otherwise length is expected to be a multiple of chunk;
// any remainder beyond the last whole chunk is not covered.
func Ranges(length, chunk int64) []Range {
	if length <= 0 || chunk <= 0 {
		return nil
	}
	if length <= chunk {
		return []Range{{Offset: 0, Length: length}}
	}

	count := length / chunk
	ranges := make([]Range, 0, count)
	for i := int64(0); i < count; i++ {
		ranges = append(ranges, Range{Offset: i * chunk, Length: chunk})
	}
	return ranges
}

// readParallel issues one positioned read per range on a bounded group of
// workers and joins them all before returning. A short read or error in
// any range fails the whole file.
func (r *Reader) readParallel(ctx context.Context, f *os.File, path string) (int64, error) {
	if r.pool == nil {
		return 0, ioerr.New(ioerr.KindAllocation, "read", path, fmt.Errorf("buffer pool not available"))
	}

	var total atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)

	for _, rg := range Ranges(r.opts.ExpectedSize, r.opts.ChunkSize) {
		g.Go(func() error {
			// skip ranges not yet started once another worker failed
			if err := gctx.Err(); err != nil {
				return err
			}

			buf, err := r.pool.Get()
			if err != nil {
				return fmt.Errorf("failed to allocate range buffer: %w", err)
			}
			defer r.pool.Put(buf)

			n, err := f.ReadAt(buf.Bytes()[:rg.Length], rg.Offset)
			total.Add(int64(n))
			if int64(n) < rg.Length {
				if err == nil || err == io.EOF {
					err = io.ErrUnexpectedEOF
				}
				return ioerr.New(ioerr.KindRead, fmt.Sprintf("pread at %d", rg.Offset), path,
					fmt.Errorf("read %d of %d bytes: %w", n, rg.Length, err))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return total.Load(), err
	}
	return total.Load(), nil
}
