// Package ring implements the lock-free single-producer/single-consumer
// ring buffer used for the command, response, observation and action
// rings. Each ring is a 32-byte header (magic, head, tail, size) at a
// fixed offset within the shared region, followed by a flat array of
// fixed-size packets.
package ring

import (
	"github.com/zen-systems/edgebridge/internal/memregion"
	"github.com/zen-systems/edgebridge/internal/proto"
)

const (
	offMagic = 0
	offHead  = 4
	offTail  = 8
	offSize  = 12
)

// ErrRingFull is returned by Produce when the ring has no free slot.
type ErrRingFull struct{}

func (ErrRingFull) Error() string { return "ring full" }

// Ring is a view over one ring's header and packet array within a
// memregion.Region.
type Ring struct {
	region     *memregion.Region
	baseOffset int
	entrySize  int
	magic      uint32
}

// New returns a Ring rooted at baseOffset within region, with the
// given entry size and expected magic.
func New(region *memregion.Region, baseOffset, entrySize int, magic uint32) *Ring {
	return &Ring{region: region, baseOffset: baseOffset, entrySize: entrySize, magic: magic}
}

// Init writes a fresh header with head=tail=0 and the given capacity
// (slot count), and the ring's magic. Used when the bridge creates
// the backing file.
func (r *Ring) Init(size uint32) {
	r.region.StoreU32(r.baseOffset+offSize, size)
	r.region.StoreU32(r.baseOffset+offHead, 0)
	r.region.StoreU32(r.baseOffset+offTail, 0)
	r.region.StoreU32(r.baseOffset+offMagic, r.magic)
}

// Valid reports whether the ring's magic matches what's expected.
func (r *Ring) Valid() bool {
	return r.region.LoadU32(r.baseOffset+offMagic) == r.magic
}

func (r *Ring) size() uint32 {
	return r.region.LoadU32(r.baseOffset + offSize)
}

func (r *Ring) head() uint32 {
	return r.region.LoadU32(r.baseOffset + offHead)
}

func (r *Ring) tail() uint32 {
	return r.region.LoadU32(r.baseOffset + offTail)
}

func (r *Ring) slotOffset(index uint32) int {
	return r.baseOffset + proto.RingHeaderSize + int(index)*r.entrySize
}

// Consume reads and removes one entry from the ring, returning its
// raw bytes and true, or nil/false if the ring is uninitialized or
// empty.
func (r *Ring) Consume() ([]byte, bool) {
	if !r.Valid() {
		return nil, false
	}
	size := r.size()
	head := r.head()
	tail := r.tail()
	if size == 0 || head == tail {
		return nil, false
	}
	entry := make([]byte, r.entrySize)
	copy(entry, r.region.Slice(r.slotOffset(tail), r.entrySize))
	newTail := (tail + 1) % size
	r.region.StoreU32(r.baseOffset+offTail, newTail)
	return entry, true
}

// Produce writes one entry to the ring. Returns ErrRingFull if the
// ring has no free slot, or the magic is not set.
func (r *Ring) Produce(entry []byte) error {
	if !r.Valid() {
		return ErrRingFull{}
	}
	size := r.size()
	head := r.head()
	tail := r.tail()
	if size == 0 {
		return ErrRingFull{}
	}
	newHead := (head + 1) % size
	if newHead == tail {
		return ErrRingFull{}
	}
	copy(r.region.Slice(r.slotOffset(head), r.entrySize), entry)
	// Release ordering: the head store publishes the payload write
	// above. StoreU32 uses atomic.StoreUint32, which on all Go-
	// supported architectures is a store-release.
	r.region.StoreU32(r.baseOffset+offHead, newHead)
	return nil
}

// Capacity returns size-1, the maximum number of in-flight entries.
func (r *Ring) Capacity() uint32 {
	s := r.size()
	if s == 0 {
		return 0
	}
	return s - 1
}
