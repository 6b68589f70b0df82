package proto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCmdPacketRoundTrip(t *testing.T) {
	p := CmdPacket{Cmd: CmdRunModel, Flags: 0x1, PayloadID: 42, Timestamp: 123456789}
	buf := make([]byte, 16)
	EncodeCmdPacket(&p, buf)
	got := DecodeCmdPacket(buf)
	assert.Equal(t, p, got)
}

func TestRspPacketRoundTrip(t *testing.T) {
	p := RspPacket{Status: StatusError, OrigCmd: CmdPing, Result: 7, Timestamp: 99}
	buf := make([]byte, 16)
	EncodeRspPacket(&p, buf)
	require.Equal(t, p, DecodeRspPacket(buf))
}

func TestRingHeaderRoundTrip(t *testing.T) {
	h := RingHeader{Magic: MagicCmdRing, Head: 3, Tail: 1, Size: 1024}
	buf := make([]byte, 32)
	EncodeRingHeader(&h, buf)
	assert.Equal(t, h, DecodeRingHeader(buf))
}

func TestTensorHeaderRoundTrip(t *testing.T) {
	h := TensorHeader{
		Dtype:   DtypeF32,
		Ndim:    2,
		Shape:   [4]uint32{1, 4, 0, 0},
		Strides: [4]uint32{16, 4, 0, 0},
	}
	buf := make([]byte, 40)
	EncodeTensorHeader(&h, buf)
	got := DecodeTensorHeader(buf)
	for i := 0; i < int(h.Ndim); i++ {
		assert.Equal(t, h.Shape[i], got.Shape[i])
		assert.Equal(t, h.Strides[i], got.Strides[i])
	}
	assert.Equal(t, h.Dtype, got.Dtype)
	assert.Equal(t, h.Ndim, got.Ndim)
}

func TestBlobHeaderRoundTrip(t *testing.T) {
	h := BlobHeader{Magic: MagicBlob, BlobID: 5, Type: BlobTypeTensor, Size: 130, Offset: 64, Checksum: 0xdeadbeef}
	buf := make([]byte, 32)
	EncodeBlobHeader(&h, buf)
	assert.Equal(t, h, DecodeBlobHeader(buf))
}

func TestStepPayloadPackUnpackRoundTrip(t *testing.T) {
	cases := []struct{ action, ack uint16 }{
		{0, 0},
		{1, 0},
		{1, 42},
		{0xFFFF, 0xFFFF},
	}
	for _, c := range cases {
		action, ack := UnpackStepPayload(PackStepPayload(c.action, c.ack))
		assert.Equal(t, c.action, action)
		assert.Equal(t, c.ack, ack)
	}
}

func TestFillByteStrides(t *testing.T) {
	h := TensorHeader{Dtype: DtypeF32, Ndim: 2, Shape: [4]uint32{1, 784}}
	h.FillByteStrides()
	assert.Equal(t, uint32(784*4), h.Strides[0])
	assert.Equal(t, uint32(4), h.Strides[1])
}

func TestObsActEntryRoundTrip(t *testing.T) {
	o := ObsEntry{Seq: 1, Obs: [4]float32{0.1, 0.2, 0.3, 0.4}, Reward: 1.0, Done: 0, ModelID: 3}
	buf := make([]byte, 32)
	EncodeObsEntry(&o, buf)
	assert.Equal(t, o, DecodeObsEntry(buf))

	a := ActEntry{Seq: 1, Action: 1, AckSeq: 7}
	abuf := make([]byte, 16)
	EncodeActEntry(&a, abuf)
	assert.Equal(t, a, DecodeActEntry(abuf))
}
