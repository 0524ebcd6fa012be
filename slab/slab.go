// Package slab implements a fixed-block memory pool with dynamic expansion,
// grounded on the teacher's sync.Pool-backed chunk recycling
// (eventloop.chunkPool / returnChunk) and catrate's power-of-two ring
// arithmetic, generalized from "one chunk of tasks" to "one arena of
// recyclable blocks of T".
//
// Go's garbage collector already reclaims memory, so Pool's purpose here is
// not manual memory management but bounding allocation churn and giving
// callers a hard cap (MaxTotalBlocks) and an explicit allocation-failure
// signal, both of which the runtime (coroutine frames, lock-free queue
// nodes) needs per the specification.
package slab

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/exp/constraints"
)

// ErrAllocationFailure is returned by Allocate when the pool is at its
// configured maximum and no free block is available.
var ErrAllocationFailure = errors.New("slab: allocation failed: pool at max capacity")

// ErrInvalidArgument is returned by Deallocate when given a block this pool
// did not allocate.
var ErrInvalidArgument = errors.New("slab: invalid argument: pointer not owned by this pool")

// cacheLinePad is the size of padding applied around hot fields to avoid
// false sharing, mirroring the teacher's FastState / MicrotaskRing padding.
const cacheLinePad = 64

// Config configures a Pool.
type Config struct {
	// InitialBlockCount is how many blocks are pre-allocated in the first chunk.
	// Defaults to 64 if <= 0.
	InitialBlockCount int

	// ExpansionFactor controls how much the pool grows when exhausted.
	// Clamped to [1.1, 5.0]. Defaults to 2.0 if 0.
	ExpansionFactor float64

	// MaxTotalBlocks caps the total number of blocks ever allocated, across
	// all chunks. Defaults to InitialBlockCount*64 if <= 0.
	MaxTotalBlocks int
}

func (c Config) resolve() Config {
	if c.InitialBlockCount <= 0 {
		c.InitialBlockCount = 64
	}
	if c.ExpansionFactor == 0 {
		c.ExpansionFactor = 2.0
	}
	if c.ExpansionFactor < 1.1 {
		c.ExpansionFactor = 1.1
	}
	if c.ExpansionFactor > 5.0 {
		c.ExpansionFactor = 5.0
	}
	if c.MaxTotalBlocks <= 0 {
		c.MaxTotalBlocks = c.InitialBlockCount * 64
	}
	return c
}

// chunk is a contiguous arena of blocks, padded like the teacher's cache-line
// aligned structures.
type chunk[T any] struct {
	_      [cacheLinePad]byte
	blocks []T
}

// Pool is a fixed-block allocator for values of type T, backed by chunks that
// expand dynamically up to MaxTotalBlocks.
type Pool[T any] struct {
	mu       sync.Mutex
	cfg      Config
	chunks   []*chunk[T]
	free     []*T
	total    int
	inUse    int
	newBlock func() T
}

// New creates a Pool of T, using zero values unless a constructor is given
// via NewWith. cfg may be the zero Config (all fields take their defaults).
func New[T any](cfg Config) *Pool[T] {
	p := &Pool[T]{cfg: cfg.resolve()}
	p.expand(p.cfg.InitialBlockCount)
	return p
}

// NewWith is like New but constructs each block with newBlock instead of its
// zero value.
func NewWith[T any](cfg Config, newBlock func() T) *Pool[T] {
	p := &Pool[T]{cfg: cfg.resolve(), newBlock: newBlock}
	p.expand(p.cfg.InitialBlockCount)
	return p
}

// expand adds up to n new blocks, capped by MaxTotalBlocks. Caller must hold mu.
func (p *Pool[T]) expand(n int) int {
	if n <= 0 {
		return 0
	}
	if room := p.cfg.MaxTotalBlocks - p.total; n > room {
		n = room
	}
	if n <= 0 {
		return 0
	}

	c := &chunk[T]{blocks: make([]T, n)}
	if p.newBlock != nil {
		for i := range c.blocks {
			c.blocks[i] = p.newBlock()
		}
	}
	p.chunks = append(p.chunks, c)
	for i := range c.blocks {
		p.free = append(p.free, &c.blocks[i])
	}
	p.total += n
	return n
}

// Allocate pops a free block, expanding the pool if necessary per the
// specification's expansion policy: grow by max(current*(factor-1),
// initial/4), capped at MaxTotalBlocks; if still empty, grow by one; if
// still empty, fail.
func (p *Pool[T]) Allocate() (*T, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) == 0 {
		grow := int(float64(p.total) * (p.cfg.ExpansionFactor - 1))
		if min := p.cfg.InitialBlockCount / 4; grow < min {
			grow = min
		}
		if grow <= 0 {
			grow = 1
		}
		p.expand(grow)
	}
	if len(p.free) == 0 {
		p.expand(1)
	}
	if len(p.free) == 0 {
		return nil, fmt.Errorf("%w (max=%d)", ErrAllocationFailure, p.cfg.MaxTotalBlocks)
	}

	n := len(p.free) - 1
	blk := p.free[n]
	p.free = p.free[:n]
	p.inUse++
	return blk, nil
}

// Deallocate returns a block to the free list. It validates that the pointer
// was actually allocated by this pool (a linear scan over chunks, acceptable
// given the small number of chunks in practice per the specification).
func (p *Pool[T]) Deallocate(blk *T) error {
	if blk == nil {
		return ErrInvalidArgument
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.owns(blk) {
		return ErrInvalidArgument
	}

	var zero T
	*blk = zero
	p.free = append(p.free, blk)
	p.inUse--
	return nil
}

// owns performs the linear scan over chunks described in the specification
// ("acceptable for small chunk counts"): a pointer belongs to this pool iff
// it is the address of one of the elements backing one of our chunks.
func (p *Pool[T]) owns(blk *T) bool {
	for _, c := range p.chunks {
		for i := range c.blocks {
			if &c.blocks[i] == blk {
				return true
			}
		}
	}
	return false
}

// Stats reports current pool utilization.
type Stats struct {
	Total int
	InUse int
	Free  int
}

// Stats returns a snapshot of pool utilization.
func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Total: p.total, InUse: p.inUse, Free: len(p.free)}
}

// Classes routes allocation requests of varying sizes to the smallest size
// class >= the request, supplementing the single-size Pool above with the
// original implementation's size-class scheme (see
// original_source/include/flowcoro/buffer.h). Each class keeps its own
// bounded free list guarded by a shared mutex; ownership is tracked by
// capacity rather than pointer identity, since a []byte class pool does not
// have a single backing array to scan the way Pool[T] does.
type Classes struct {
	mu      sync.Mutex
	classes []*classEntry
	cfg     Config
}

type classEntry struct {
	size  int
	free  [][]byte
	total int
}

// NewClasses creates a size-classed byte-slab allocator. sizes must be given
// in ascending order. The size parameter is generic over any integer type
// (golang.org/x/exp/constraints.Integer) so callers working in a narrower
// width (e.g. uint32 byte counts read off the wire) don't need an explicit
// conversion at the call site.
func NewClasses[S constraints.Integer](cfg Config, sizes []S) *Classes {
	cfg = cfg.resolve()
	c := &Classes{cfg: cfg}
	for _, sz := range sizes {
		c.classes = append(c.classes, &classEntry{size: int(sz)})
	}
	return c
}

// Allocate returns a byte slice of at least n bytes from the smallest
// suitable size class.
func (c *Classes) Allocate(n int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ce := range c.classes {
		if ce.size < n {
			continue
		}
		if len(ce.free) > 0 {
			last := len(ce.free) - 1
			b := ce.free[last]
			ce.free = ce.free[:last]
			return b[:n], nil
		}
		if ce.total >= c.cfg.MaxTotalBlocks {
			return nil, fmt.Errorf("%w (class=%d, max=%d)", ErrAllocationFailure, ce.size, c.cfg.MaxTotalBlocks)
		}
		ce.total++
		return make([]byte, ce.size)[:n], nil
	}
	return nil, fmt.Errorf("%w: no size class >= %d", ErrAllocationFailure, n)
}

// Deallocate returns b to the size class matching its capacity. Slices not
// originating from a Classes.Allocate call of a known capacity return
// ErrInvalidArgument.
func (c *Classes) Deallocate(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ce := range c.classes {
		if ce.size == cap(b) {
			ce.free = append(ce.free, b[:cap(b)])
			return nil
		}
	}
	return ErrInvalidArgument
}
