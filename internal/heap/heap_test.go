package heap

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zen-systems/edgebridge/internal/memregion"
	"github.com/zen-systems/edgebridge/internal/proto"
)

func newTestHeap(t *testing.T) *Heap {
	t.Helper()
	region := memregion.NewInProcess()
	h := New(region, 0, 8192, 8192)
	h.Init()
	return h
}

func TestInitFreeBlocksInvariant(t *testing.T) {
	h := newTestHeap(t)
	stats := h.Stats()
	require.True(t, stats.MagicValid)
	require.Equal(t, stats.TotalBlocks, stats.FreeBlocks)
	require.EqualValues(t, 1, stats.NextBlobID)
}

func TestAllocateWriteReadRoundTrip(t *testing.T) {
	h := newTestHeap(t)

	id, err := h.AllocateBlob(64, proto.BlobTypeRaw)
	require.NoError(t, err)
	require.NotZero(t, id)

	payload := []byte("hello, zenedge")
	require.NoError(t, h.WriteBlobData(id, payload))

	got, err := h.ReadBlobData(id)
	require.NoError(t, err)
	require.Equal(t, payload, got[:len(payload)])

	stats := h.Stats()
	require.Less(t, stats.FreeBlocks, stats.TotalBlocks)
}

func TestFreeBlobReturnsBlocksAndPoisonsHeader(t *testing.T) {
	h := newTestHeap(t)
	before := h.Stats().FreeBlocks

	id, err := h.AllocateBlob(128, proto.BlobTypeRaw)
	require.NoError(t, err)
	require.Less(t, h.Stats().FreeBlocks, before)

	require.NoError(t, h.FreeBlob(id))
	require.Equal(t, before, h.Stats().FreeBlocks)

	_, err = h.ReadBlobHeader(id)
	require.Error(t, err)
}

func TestAllocateFailsWhenHeapFull(t *testing.T) {
	h := newTestHeap(t)
	stats := h.Stats()
	for i := uint32(0); i < stats.TotalBlocks; i++ {
		if _, err := h.AllocateBlob(1, proto.BlobTypeRaw); err != nil {
			break
		}
	}
	_, err := h.AllocateBlob(1, proto.BlobTypeRaw)
	require.Error(t, err)
}

func encodeFloat32LE(f float32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, math.Float32bits(f))
	return buf
}

func TestTensorRoundTrip(t *testing.T) {
	h := newTestHeap(t)

	elements := []float32{1, 2, 3, 4}
	encoded := make([]byte, 0, 16)
	for _, f := range elements {
		encoded = append(encoded, encodeFloat32LE(f)...)
	}

	th := proto.TensorHeader{Dtype: proto.DtypeF32, Ndim: 1}
	th.Shape[0] = 4

	id, err := h.AllocateBlob(uint32(proto.TensorHdrSize+len(encoded)), proto.BlobTypeTensor)
	require.NoError(t, err)

	require.NoError(t, h.WriteTensorToBlob(id, th, encoded))

	gotHdr, gotData, err := h.ReadTensor(id)
	require.NoError(t, err)
	require.Equal(t, uint8(1), gotHdr.Ndim)
	require.Equal(t, uint32(4), gotHdr.Shape[0])
	require.Equal(t, encoded, gotData)
}

// A 130-byte blob needs ceil((32+130)/64) = 3 blocks, the three
// leading bitmap bits; freeing it clears the bits and zeroes the
// header magic.
func TestAllocate130BytesUsesThreeBlocks(t *testing.T) {
	h := newTestHeap(t)
	before := h.Stats().FreeBlocks

	id, err := h.AllocateBlob(130, proto.BlobTypeRaw)
	require.NoError(t, err)
	require.Equal(t, before-3, h.Stats().FreeBlocks)
	require.Equal(t, byte(0b111), h.bitmapByte(0))

	require.NoError(t, h.FreeBlob(id))
	require.Equal(t, before, h.Stats().FreeBlocks)
	require.Equal(t, byte(0), h.bitmapByte(0))
	require.Zero(t, h.region.LoadU32(h.dataBase)) // blob magic zeroed
}

// After any alloc/free sequence, free_blocks equals total_blocks
// minus the sum of ceil((32+size)/64) over live blobs.
func TestFreeBlocksInvariantAcrossAllocFreeSequence(t *testing.T) {
	h := newTestHeap(t)
	total := h.Stats().TotalBlocks

	blocksFor := func(size uint32) uint32 {
		return (32 + size + 63) / 64
	}

	sizes := []uint32{1, 64, 130, 200, 32}
	ids := make([]uint16, 0, len(sizes))
	var live uint32
	for _, size := range sizes {
		id, err := h.AllocateBlob(size, proto.BlobTypeRaw)
		require.NoError(t, err)
		ids = append(ids, id)
		live += blocksFor(size)
		require.Equal(t, total-live, h.Stats().FreeBlocks)
	}

	require.NoError(t, h.FreeBlob(ids[1]))
	live -= blocksFor(sizes[1])
	require.Equal(t, total-live, h.Stats().FreeBlocks)

	require.NoError(t, h.FreeBlob(ids[3]))
	live -= blocksFor(sizes[3])
	require.Equal(t, total-live, h.Stats().FreeBlocks)

	_, err := h.AllocateBlob(500, proto.BlobTypeRaw)
	require.NoError(t, err)
	live += blocksFor(500)
	require.Equal(t, total-live, h.Stats().FreeBlocks)
}

func TestFreeUnknownIDReturnsNotFoundWithoutStateChange(t *testing.T) {
	h := newTestHeap(t)
	before := h.Stats()
	err := h.FreeBlob(321)
	require.Error(t, err)
	require.Equal(t, before, h.Stats())
}

func TestFindBlobOffsetRescanAfterCacheClear(t *testing.T) {
	h := newTestHeap(t)
	id, err := h.AllocateBlob(32, proto.BlobTypeRaw)
	require.NoError(t, err)

	h.ClearCache()
	hdr, err := h.ReadBlobHeader(id)
	require.NoError(t, err)
	require.Equal(t, id, hdr.BlobID)
}
