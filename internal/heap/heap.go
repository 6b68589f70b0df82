// Package heap implements the bitmap-allocated blob heap: blobs and
// tensors addressed by a 16-bit id, backed by fixed 64-byte blocks.
//
// Blob lookups are cached by id and fall back to a linear rescan of
// the data region on a cache miss, which tolerates allocations made
// by the peer in any order. Allocation is first-fit over a contiguous
// bitmap, and free zeroes the blob's magic to poison stale lookups
// rather than touching the payload.
package heap

import (
	"sync"

	"github.com/zen-systems/edgebridge/internal/bufpool"
	"github.com/zen-systems/edgebridge/internal/constants"
	"github.com/zen-systems/edgebridge/internal/errs"
	"github.com/zen-systems/edgebridge/internal/memregion"
	"github.com/zen-systems/edgebridge/internal/proto"
)

const (
	ctlOffMagic       = 0
	ctlOffVersion     = 4
	ctlOffTotalBlocks = 8
	ctlOffFreeBlocks  = 12
	ctlOffNextBlobID  = 16
	ctlBitmapOffset   = 32
)

// Stats is a snapshot of the heap's control header.
type Stats struct {
	MagicValid  bool
	TotalBlocks uint32
	FreeBlocks  uint32
	UsedBlocks  uint32
	NextBlobID  uint32
	TotalBytes  uint64
	FreeBytes   uint64
}

// Heap is a view over the heap control block and data region within a
// shared region.
type Heap struct {
	region      *memregion.Region
	controlBase int
	dataBase    int
	dataSize    int
	blockSize   int

	mu        sync.Mutex
	blobCache map[uint16]int // blob id -> byte offset within dataBase
}

// New returns a Heap rooted at controlBase (control header + bitmap)
// and dataBase (block-addressed payload region) of the given size.
func New(region *memregion.Region, controlBase, dataBase, dataSize int) *Heap {
	return &Heap{
		region:      region,
		controlBase: controlBase,
		dataBase:    dataBase,
		dataSize:    dataSize,
		blockSize:   constants.HeapBlockSize,
		blobCache:   make(map[uint16]int),
	}
}

// Init writes a fresh control header and zeroes the bitmap. Blob ids
// start at 1; 0 is never issued.
func (h *Heap) Init() {
	h.mu.Lock()
	defer h.mu.Unlock()

	totalBlocks := uint32(h.dataSize / h.blockSize)
	bitmapBytes := (int(totalBlocks) + 7) / 8
	for i := 0; i < bitmapBytes; i++ {
		h.setBitmapByte(i, 0)
	}
	h.region.StoreU32(h.controlBase+ctlOffTotalBlocks, totalBlocks)
	h.region.StoreU32(h.controlBase+ctlOffFreeBlocks, totalBlocks)
	h.region.StoreU32(h.controlBase+ctlOffNextBlobID, 1)
	h.region.StoreU32(h.controlBase+ctlOffVersion, 1)
	h.region.StoreU32(h.controlBase+ctlOffMagic, proto.MagicHeap)
	h.blobCache = make(map[uint16]int)
}

// Valid reports whether the control header's magic is set.
func (h *Heap) Valid() bool {
	return h.region.LoadU32(h.controlBase+ctlOffMagic) == proto.MagicHeap
}

func (h *Heap) totalBlocks() uint32 {
	return h.region.LoadU32(h.controlBase + ctlOffTotalBlocks)
}

func (h *Heap) freeBlocks() uint32 {
	return h.region.LoadU32(h.controlBase + ctlOffFreeBlocks)
}

func (h *Heap) nextBlobID() uint32 {
	return h.region.LoadU32(h.controlBase + ctlOffNextBlobID)
}

func (h *Heap) bitmapByte(i int) byte {
	return h.region.Slice(h.controlBase+ctlBitmapOffset+i, 1)[0]
}

func (h *Heap) setBitmapByte(i int, v byte) {
	h.region.Slice(h.controlBase+ctlBitmapOffset+i, 1)[0] = v
}

// Stats returns a fresh snapshot of the control header.
func (h *Heap) Stats() Stats {
	total := h.totalBlocks()
	free := h.freeBlocks()
	return Stats{
		MagicValid:  h.Valid(),
		TotalBlocks: total,
		FreeBlocks:  free,
		UsedBlocks:  total - free,
		NextBlobID:  h.nextBlobID(),
		TotalBytes:  uint64(total) * uint64(h.blockSize),
		FreeBytes:   uint64(free) * uint64(h.blockSize),
	}
}

// ClearCache drops the blob id -> offset lookup cache.
func (h *Heap) ClearCache() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.blobCache = make(map[uint16]int)
}

func blocksFor(totalLen int, blockSize int) int {
	return (totalLen + blockSize - 1) / blockSize
}

// findBlobOffset resolves a blob id to its byte offset within the
// data region, checking the cache first and falling back to a linear
// scan that re-populates the cache as it walks blob headers.
func (h *Heap) findBlobOffset(blobID uint16) (int, bool) {
	if off, ok := h.blobCache[blobID]; ok {
		return off, true
	}
	pos := 0
	limit := h.dataSize - proto.BlobHeaderSize
	for pos <= limit {
		raw := h.region.Slice(h.dataBase+pos, proto.BlobHeaderSize)
		hdr := proto.DecodeBlobHeader(raw)
		if hdr.Magic == proto.MagicBlob {
			h.blobCache[hdr.BlobID] = pos
			used := blocksFor(proto.BlobHeaderSize+int(hdr.Size), h.blockSize) * h.blockSize
			if hdr.BlobID == blobID {
				return pos, true
			}
			pos += used
			continue
		}
		pos += h.blockSize
	}
	return 0, false
}

// findFreeBlocks scans the bitmap for the first contiguous run of
// count free blocks (bit = 0) and returns the index of its first
// block.
func (h *Heap) findFreeBlocks(count int) (int, bool) {
	total := int(h.totalBlocks())
	runStart := -1
	runLen := 0
	for block := 0; block < total; block++ {
		byteIdx := block / 8
		bitIdx := uint(block % 8)
		set := h.bitmapByte(byteIdx)&(1<<bitIdx) != 0
		if set {
			runStart = -1
			runLen = 0
			continue
		}
		if runStart < 0 {
			runStart = block
		}
		runLen++
		if runLen >= count {
			return runStart, true
		}
	}
	return 0, false
}

func (h *Heap) markBlocks(start, count int, used bool) {
	for block := start; block < start+count; block++ {
		byteIdx := block / 8
		bitIdx := uint(block % 8)
		cur := h.bitmapByte(byteIdx)
		if used {
			cur |= 1 << bitIdx
		} else {
			cur &^= 1 << bitIdx
		}
		h.setBitmapByte(byteIdx, cur)
	}
}

// AllocateBlob reserves a contiguous run of blocks for size bytes of
// payload plus a blob header, and writes a fresh header. The returned
// id is never 0; the id counter wraps from 0xFFFF back to 1.
func (h *Heap) AllocateBlob(size uint32, blobType uint8) (uint16, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.Valid() {
		return 0, errs.New("heap.AllocateBlob", errs.CodeHeapUninit, "heap control block not initialized")
	}
	needed := blocksFor(proto.BlobHeaderSize+int(size), h.blockSize)
	if uint32(needed) > h.freeBlocks() {
		return 0, errs.New("heap.AllocateBlob", errs.CodeOutOfCapacity, "not enough free blocks")
	}
	start, ok := h.findFreeBlocks(needed)
	if !ok {
		return 0, errs.New("heap.AllocateBlob", errs.CodeFragmented, "no contiguous run of free blocks")
	}

	id := uint32(h.nextBlobID())
	if id == 0 {
		id = 1
	}
	dataOffset := start * h.blockSize

	hdr := proto.BlobHeader{
		Magic:    proto.MagicBlob,
		BlobID:   uint16(id),
		Type:     blobType,
		Flags:    0,
		Size:     size,
		Offset:   uint32(dataOffset),
		Checksum: 0,
	}
	buf := make([]byte, proto.BlobHeaderSize)
	proto.EncodeBlobHeader(&hdr, buf)
	copy(h.region.Slice(h.dataBase+dataOffset, proto.BlobHeaderSize), buf)

	h.markBlocks(start, needed, true)

	nextID := id + 1
	if nextID > 0xFFFF {
		nextID = 1
	}
	h.region.StoreU32(h.controlBase+ctlOffFreeBlocks, h.freeBlocks()-uint32(needed))
	h.region.StoreU32(h.controlBase+ctlOffNextBlobID, nextID)

	h.blobCache[uint16(id)] = dataOffset
	return uint16(id), nil
}

// FreeBlob releases the blocks backing blobID and poisons its header
// so a stale cache entry or re-scan never resolves to freed space.
func (h *Heap) FreeBlob(blobID uint16) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	off, ok := h.findBlobOffset(blobID)
	if !ok {
		return errs.New("heap.FreeBlob", errs.CodeNotFound, "blob id not found")
	}
	raw := h.region.Slice(h.dataBase+off, proto.BlobHeaderSize)
	hdr := proto.DecodeBlobHeader(raw)
	if hdr.Magic != proto.MagicBlob {
		return errs.New("heap.FreeBlob", errs.CodeNotFound, "blob header magic mismatch")
	}
	used := blocksFor(proto.BlobHeaderSize+int(hdr.Size), h.blockSize)
	startBlock := off / h.blockSize

	h.markBlocks(startBlock, used, false)
	for i := 0; i < 4; i++ {
		raw[i] = 0
	}
	copy(h.region.Slice(h.dataBase+off, 4), raw[:4])

	h.region.StoreU32(h.controlBase+ctlOffFreeBlocks, h.freeBlocks()+uint32(used))
	delete(h.blobCache, blobID)
	return nil
}

// ReadBlobHeader resolves and decodes blobID's header.
func (h *Heap) ReadBlobHeader(blobID uint16) (proto.BlobHeader, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	off, ok := h.findBlobOffset(blobID)
	if !ok {
		return proto.BlobHeader{}, errs.New("heap.ReadBlobHeader", errs.CodeNotFound, "blob id not found")
	}
	raw := h.region.Slice(h.dataBase+off, proto.BlobHeaderSize)
	hdr := proto.DecodeBlobHeader(raw)
	if hdr.Magic != proto.MagicBlob {
		return proto.BlobHeader{}, errs.New("heap.ReadBlobHeader", errs.CodeNotFound, "blob header magic mismatch")
	}
	return hdr, nil
}

// ReadBlobData returns a copy of blobID's payload bytes.
func (h *Heap) ReadBlobData(blobID uint16) ([]byte, error) {
	hdr, err := h.ReadBlobHeader(blobID)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	off := h.blobCache[blobID]
	payload := h.region.Slice(h.dataBase+off+proto.BlobHeaderSize, int(hdr.Size))
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}

// WriteBlobData writes data into blobID's payload region, failing if
// it exceeds the blob's declared size, and refreshes the checksum.
func (h *Heap) WriteBlobData(blobID uint16, data []byte) error {
	hdr, err := h.ReadBlobHeader(blobID)
	if err != nil {
		return err
	}
	if uint32(len(data)) > hdr.Size {
		return errs.New("heap.WriteBlobData", errs.CodeSizeMismatch, "data exceeds blob capacity")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	off := h.blobCache[blobID]
	copy(h.region.Slice(h.dataBase+off+proto.BlobHeaderSize, len(data)), data)

	hdr.Checksum = checksum(data)
	buf := make([]byte, proto.BlobHeaderSize)
	proto.EncodeBlobHeader(&hdr, buf)
	copy(h.region.Slice(h.dataBase+off, proto.BlobHeaderSize), buf)
	return nil
}

// ReadTensor returns the tensor header immediately following blobID's
// blob header, plus a copy of the tensor's raw element bytes.
func (h *Heap) ReadTensor(blobID uint16) (proto.TensorHeader, []byte, error) {
	hdr, err := h.ReadBlobHeader(blobID)
	if err != nil {
		return proto.TensorHeader{}, nil, err
	}
	if hdr.Type != proto.BlobTypeTensor {
		return proto.TensorHeader{}, nil, errs.New("heap.ReadTensor", errs.CodeDecodeError, "blob is not a tensor")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	off := h.blobCache[blobID]
	rawTh := h.region.Slice(h.dataBase+off+proto.BlobHeaderSize, proto.TensorHdrSize)
	th := proto.DecodeTensorHeader(rawTh)

	numElements := 1
	for i := 0; i < int(th.Ndim); i++ {
		numElements *= int(th.Shape[i])
	}
	dataSize := numElements * proto.ElementSize(th.Dtype)

	tensorOff := h.dataBase + off + proto.BlobHeaderSize + proto.TensorHdrSize
	payload := h.region.Slice(tensorOff, dataSize)
	out := make([]byte, len(payload))
	copy(out, payload)
	return th, out, nil
}

// WriteTensorToBlob writes a tensor header and its element bytes into
// blobID, which must already be allocated as a TENSOR blob with
// enough capacity for the header plus the tensor payload.
func (h *Heap) WriteTensorToBlob(blobID uint16, th proto.TensorHeader, data []byte) error {
	hdr, err := h.ReadBlobHeader(blobID)
	if err != nil {
		return err
	}
	if hdr.Type != proto.BlobTypeTensor {
		return errs.New("heap.WriteTensorToBlob", errs.CodeDecodeError, "blob is not a tensor")
	}
	if th.Ndim > 4 {
		return errs.New("heap.WriteTensorToBlob", errs.CodeDecodeError, "ndim exceeds 4")
	}
	if uint32(proto.TensorHdrSize+len(data)) > hdr.Size {
		return errs.New("heap.WriteTensorToBlob", errs.CodeSizeMismatch, "tensor exceeds blob capacity")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	off := h.blobCache[blobID]

	thBuf := make([]byte, proto.TensorHdrSize)
	proto.EncodeTensorHeader(&th, thBuf)
	copy(h.region.Slice(h.dataBase+off+proto.BlobHeaderSize, proto.TensorHdrSize), thBuf)
	copy(h.region.Slice(h.dataBase+off+proto.BlobHeaderSize+proto.TensorHdrSize, len(data)), data)

	all := bufpool.Get(proto.TensorHdrSize + len(data))
	copy(all, thBuf)
	copy(all[proto.TensorHdrSize:], data)
	hdr.Checksum = checksum(all)
	bufpool.Put(all)
	hdrBuf := make([]byte, proto.BlobHeaderSize)
	proto.EncodeBlobHeader(&hdr, hdrBuf)
	copy(h.region.Slice(h.dataBase+off, proto.BlobHeaderSize), hdrBuf)
	return nil
}

// checksum is a simple additive checksum over payload bytes, wrapping
// at 32 bits.
func checksum(data []byte) uint32 {
	var sum uint32
	for _, b := range data {
		sum += uint32(b)
	}
	return sum
}
