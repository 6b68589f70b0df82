// Package proto defines the fixed binary layouts shared with the
// external peer: ring headers, command/response packets, the
// doorbell block, heap control header, blob and tensor headers, IFR
// V2/V3 records, and streaming entries. All layouts are little-endian
// and offsets are normative; see internal/constants for section
// offsets within the mapped region.
package proto

import "unsafe"

// Magic values identify each structure at its fixed offset. Each is
// the little-endian uint32 reading of its four ASCII bytes in order,
// except MagicIFR which is fixed by the wire contract.
const (
	MagicCmdRing  uint32 = 0x474e5243 // "CRNG"
	MagicRspRing  uint32 = 0x474e5252 // "RRNG"
	MagicObsRing  uint32 = 0x474e524f // "ORNG"
	MagicActRing  uint32 = 0x474e5241 // "ARNG"
	MagicDoorbell uint32 = 0x524f4f44 // "DOOR"
	MagicHeap     uint32 = 0x50414548 // "HEAP"
	MagicBlob     uint32 = 0x424f4c42 // "BLOB"
	MagicIFR      uint32 = 0x30465249
)

// Command identifiers dispatched from the command ring.
const (
	CmdPing         uint16 = 0x0001
	CmdPrint        uint16 = 0x0002
	CmdRunModel     uint16 = 0x0003
	CmdIFRPersist   uint16 = 0x0004
	CmdTelemetry    uint16 = 0x0005
	CmdEnvReset     uint16 = 0x0006
	CmdEnvStep      uint16 = 0x0007
	CmdArbEpisode   uint16 = 0x0008
	CmdTensorAlloc  uint16 = 0x0009
	CmdTensorFree   uint16 = 0x000A
	CmdHeapStats    uint16 = 0x000B
	CmdModelLoad    uint16 = 0x000C
)

// Response status codes. A successful response carries 0x8000 on the
// wire; StatusError and StatusBusy occupy the low bits.
const (
	StatusOK    uint16 = 0x8000
	StatusError uint16 = 0x0001
	StatusBusy  uint16 = 0x0002
)

// RingHeaderSize is the fixed byte size of RingHeader.
const RingHeaderSize = 32

// RingHeader is the 32-byte header at the start of every ring
// (command, response, observation, action).
type RingHeader struct {
	Magic    uint32
	Head     uint32
	Tail     uint32
	Size     uint32
	Reserved [4]uint32
}

var _ [32]byte = [unsafe.Sizeof(RingHeader{})]byte{}

// CmdPacketSize is the fixed byte size of CmdPacket.
const CmdPacketSize = 16

// CmdPacket is one 16-byte command-ring entry.
type CmdPacket struct {
	Cmd       uint16
	Flags     uint16
	PayloadID uint32
	Timestamp uint64
}

var _ [16]byte = [unsafe.Sizeof(CmdPacket{})]byte{}

// RspPacketSize is the fixed byte size of RspPacket.
const RspPacketSize = 16

// RspPacket is one 16-byte response-ring entry.
type RspPacket struct {
	Status    uint16
	OrigCmd   uint16
	Result    uint32
	Timestamp uint64
}

var _ [16]byte = [unsafe.Sizeof(RspPacket{})]byte{}

// DoorbellSize is the fixed byte size of Doorbell.
const DoorbellSize = 256

// Doorbell is the 256-byte advisory signalling block.
type Doorbell struct {
	Magic       uint32
	Version     uint32
	CmdDoorbell uint32
	CmdFlags    uint32
	CmdIRQCount uint32
	RspDoorbell uint32
	RspFlags    uint32
	RspIRQCount uint32
	CmdWrites   uint32
	RspWrites   uint32
	Reserved    [54]uint32
}

var _ [256]byte = [unsafe.Sizeof(Doorbell{})]byte{}

// HeapControlHeader is the 32-byte header preceding the bitmap.
type HeapControlHeader struct {
	Magic       uint32
	Version     uint32
	TotalBlocks uint32
	FreeBlocks  uint32
	NextBlobID  uint32
	Reserved    [3]uint32
}

var _ [32]byte = [unsafe.Sizeof(HeapControlHeader{})]byte{}

// BlobHeaderSize is the fixed byte size of BlobHeader.
const BlobHeaderSize = 32

// BlobHeader is the 32-byte header prefixing every blob in the heap
// data region.
type BlobHeader struct {
	Magic     uint32
	BlobID    uint16
	Type      uint8
	Flags     uint8
	Size      uint32
	Offset    uint32
	Checksum  uint32
	Reserved  [3]uint32
}

var _ [32]byte = [unsafe.Sizeof(BlobHeader{})]byte{}

// Blob types.
const (
	BlobTypeRaw      uint8 = 0
	BlobTypeTensor   uint8 = 1
	BlobTypeModelRef uint8 = 2
	BlobTypeResult   uint8 = 3
)

// TensorHdrSize is the fixed byte size of TensorHeader.
const TensorHdrSize = 40

// TensorHeader follows a BlobHeader for TENSOR-typed blobs. The named
// fields sum to 36 bytes; a trailing 4-byte Reserved2 pads the
// on-wire structure to its fixed 40-byte total so the tensor payload
// always begins at the same offset regardless of which peer wrote the
// header.
type TensorHeader struct {
	Dtype     uint8
	Ndim      uint8
	Reserved  uint16
	Shape     [4]uint32
	Strides   [4]uint32
	Reserved2 uint32
}

var _ [40]byte = [unsafe.Sizeof(TensorHeader{})]byte{}

// FillByteStrides sets h.Strides to contiguous row-major byte strides
// computed from h.Dtype and h.Shape[:h.Ndim]. Strides are byte
// strides, not element counts.
func (h *TensorHeader) FillByteStrides() {
	stride := uint32(ElementSize(h.Dtype))
	for i := int(h.Ndim) - 1; i >= 0; i-- {
		h.Strides[i] = stride
		stride *= h.Shape[i]
	}
}

// Tensor element types.
const (
	DtypeF32 uint8 = 0
	DtypeF16 uint8 = 1
	DtypeI32 uint8 = 2
	DtypeI16 uint8 = 3
	DtypeI8  uint8 = 4
	DtypeU8  uint8 = 5
)

// ElementSize returns the byte width of one element for dtype, or 0
// if dtype is unrecognized.
func ElementSize(dtype uint8) int {
	switch dtype {
	case DtypeF32, DtypeI32:
		return 4
	case DtypeF16, DtypeI16:
		return 2
	case DtypeI8, DtypeU8:
		return 1
	default:
		return 0
	}
}

// IFRV2Size is the fixed size of a V2 record.
const IFRV2Size = 136

// IFRV2HashOffset is the number of leading bytes hashed to produce
// Hash ([32]byte starting at offset 104, ending at 136).
const IFRV2HashOffset = 104

// IFRV2 is the 136-byte V2 inference flight record.
type IFRV2 struct {
	Magic      uint32
	Version    uint16
	Flags      uint16
	JobID      uint32
	EpisodeID  uint32
	ModelID    uint32
	RecordSize uint32
	TsUsec     uint64
	Goodput    float32
	ProfileLen uint16
	Reserved   uint16
	Profile    [16]float32
	Hash       [32]byte
}

var _ [136]byte = [unsafe.Sizeof(IFRV2{})]byte{}

// IFRV3Size is the fixed size of a V3 record (V2 plus the chain
// extension).
const IFRV3Size = 408

// IFRV3HashOffset is the number of leading bytes (the V2 portion plus
// nonce/model_digest/policy_digest/flightrec_seal_hash/prev_chain_hash)
// hashed to produce IfrHash.
const IFRV3HashOffset = 280

// IFRV3 extends IFRV2 with a cryptographic hash chain.
type IFRV3 struct {
	IFRV2
	Nonce             [16]byte
	ModelDigest       [32]byte
	PolicyDigest      [32]byte
	FlightrecSealHash [32]byte
	PrevChainHash     [32]byte
	IfrHash           [32]byte
	ChainHash         [32]byte
	SigClassical      [64]byte
}

var _ [408]byte = [unsafe.Sizeof(IFRV3{})]byte{}

// ObsEntrySize is the fixed byte size of ObsEntry.
const ObsEntrySize = 32

// ObsEntry is one 32-byte observation streaming-ring entry.
type ObsEntry struct {
	Seq     uint32
	Obs     [4]float32
	Reward  float32
	Done    float32
	ModelID float32
}

var _ [32]byte = [unsafe.Sizeof(ObsEntry{})]byte{}

// ActEntrySize is the fixed byte size of ActEntry.
const ActEntrySize = 16

// ActEntry is one 16-byte action streaming-ring entry.
type ActEntry struct {
	Seq      uint32
	Action   uint16
	Flags    uint16
	AckSeq   uint32
	Reserved uint32
}

var _ [16]byte = [unsafe.Sizeof(ActEntry{})]byte{}

// StreamFlag, set in an ENV_RESET command's payload_id, requests
// streaming mode instead of the pooled-blob reply.
const StreamFlag uint32 = 1 << 31

// PackStepPayload packs an ENV_STEP payload word: the acked obs blob
// id in the high 16 bits, the action in the low 16.
func PackStepPayload(action, ackBlobID uint16) uint32 {
	return uint32(ackBlobID)<<16 | uint32(action)
}

// UnpackStepPayload splits an ENV_STEP payload word back into its
// action and acked obs blob id.
func UnpackStepPayload(payload uint32) (action, ackBlobID uint16) {
	return uint16(payload & 0xFFFF), uint16(payload >> 16)
}
