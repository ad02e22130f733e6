// Package alignedbuf hands out memory blocks whose start address sits on
// a direct io alignment boundary.
package alignedbuf

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/jessegalley/readbench/internal/ioerr"
	"github.com/ncw/directio"
)

// DefaultAlignment is the platform direct io unit
const DefaultAlignment = directio.AlignSize

// Buffer is an exclusively owned, aligned block of memory
type Buffer struct {
	data      []byte
	alignment int
	released  bool
}

// Acquire allocates size bytes aligned to alignment.
// alignment must be a positive power of two; anything else is a
// programming error and panics.
func Acquire(size, alignment int) (*Buffer, error) {
	mustPowerOfTwo(alignment)

	if size < 0 {
		return nil, ioerr.New(ioerr.KindAllocation, "acquire", "", fmt.Errorf("negative buffer size %d", size))
	}

	var block []byte
	if alignment == directio.AlignSize {
		block = directio.AlignedBlock(size)
	} else {
		block = alignedBlock(size, alignment)
	}

	if !IsAligned(block, alignment) {
		return nil, ioerr.New(ioerr.KindAllocation, "acquire", "",
			fmt.Errorf("could not align %d byte block to %d", size, alignment))
	}

	return &Buffer{data: block, alignment: alignment}, nil
}

// Bytes returns the aligned region, or nil once the buffer is released
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Len returns the usable size of the buffer
func (b *Buffer) Len() int {
	return len(b.data)
}

// Alignment returns the boundary the buffer was allocated on
func (b *Buffer) Alignment() int {
	return b.alignment
}

// Release gives the memory back. Calling it again is a no-op.
func (b *Buffer) Release() {
	if b == nil || b.released {
		return
	}
	b.released = true
	b.data = nil
}

// Released reports whether Release has been called
func (b *Buffer) Released() bool {
	return b.released
}

// IsAligned reports whether the first byte of block sits on the boundary
func IsAligned(block []byte, alignment int) bool {
	p := unsafe.SliceData(block)
	if p == nil {
		return true
	}
	return uintptr(unsafe.Pointer(p))&uintptr(alignment-1) == 0
}

// alignedBlock over-allocates by one alignment unit and slices forward to
// the first boundary
func alignedBlock(size, alignment int) []byte {
	raw := make([]byte, size+alignment)
	addr := uintptr(unsafe.Pointer(&raw[0]))
	offset := alignment - int(addr&uintptr(alignment-1))
	if offset == alignment {
		offset = 0
	}
	return raw[offset : offset+size : offset+size]
}

func mustPowerOfTwo(alignment int) {
	if alignment <= 0 || alignment&(alignment-1) != 0 {
		panic(fmt.Sprintf("alignedbuf: alignment %d is not a positive power of two", alignment))
	}
}

// Pool recycles buffers of one size and alignment between short-lived
// owners, such as parallel chunk workers
type Pool struct {
	size      int
	alignment int
	pool      sync.Pool
}

// NewPool creates a pool of size-byte buffers aligned to alignment
func NewPool(size, alignment int) *Pool {
	mustPowerOfTwo(alignment)
	return &Pool{size: size, alignment: alignment}
}

// Get returns a pooled buffer or allocates a fresh one
func (p *Pool) Get() (*Buffer, error) {
	if v := p.pool.Get(); v != nil {
		return v.(*Buffer), nil
	}
	return Acquire(p.size, p.alignment)
}

// Put returns a buffer to the pool. Released or foreign-sized buffers are
// dropped.
func (p *Pool) Put(b *Buffer) {
	if b == nil || b.released || len(b.data) != p.size || b.alignment != p.alignment {
		return
	}
	p.pool.Put(b)
}

// Size returns the length of buffers handed out by the pool
func (p *Pool) Size() int {
	return p.size
}
