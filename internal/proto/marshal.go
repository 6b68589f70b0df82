package proto

import (
	"encoding/binary"
	"math"
)

// EncodeRingHeader writes h to buf[0:32].
func EncodeRingHeader(h *RingHeader, buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Head)
	binary.LittleEndian.PutUint32(buf[8:12], h.Tail)
	binary.LittleEndian.PutUint32(buf[12:16], h.Size)
	for i, v := range h.Reserved {
		binary.LittleEndian.PutUint32(buf[16+i*4:20+i*4], v)
	}
}

// DecodeRingHeader reads a RingHeader from buf[0:32].
func DecodeRingHeader(buf []byte) RingHeader {
	var h RingHeader
	h.Magic = binary.LittleEndian.Uint32(buf[0:4])
	h.Head = binary.LittleEndian.Uint32(buf[4:8])
	h.Tail = binary.LittleEndian.Uint32(buf[8:12])
	h.Size = binary.LittleEndian.Uint32(buf[12:16])
	for i := range h.Reserved {
		h.Reserved[i] = binary.LittleEndian.Uint32(buf[16+i*4 : 20+i*4])
	}
	return h
}

// EncodeCmdPacket writes p to buf[0:16].
func EncodeCmdPacket(p *CmdPacket, buf []byte) {
	binary.LittleEndian.PutUint16(buf[0:2], p.Cmd)
	binary.LittleEndian.PutUint16(buf[2:4], p.Flags)
	binary.LittleEndian.PutUint32(buf[4:8], p.PayloadID)
	binary.LittleEndian.PutUint64(buf[8:16], p.Timestamp)
}

// DecodeCmdPacket reads a CmdPacket from buf[0:16].
func DecodeCmdPacket(buf []byte) CmdPacket {
	return CmdPacket{
		Cmd:       binary.LittleEndian.Uint16(buf[0:2]),
		Flags:     binary.LittleEndian.Uint16(buf[2:4]),
		PayloadID: binary.LittleEndian.Uint32(buf[4:8]),
		Timestamp: binary.LittleEndian.Uint64(buf[8:16]),
	}
}

// EncodeRspPacket writes p to buf[0:16].
func EncodeRspPacket(p *RspPacket, buf []byte) {
	binary.LittleEndian.PutUint16(buf[0:2], p.Status)
	binary.LittleEndian.PutUint16(buf[2:4], p.OrigCmd)
	binary.LittleEndian.PutUint32(buf[4:8], p.Result)
	binary.LittleEndian.PutUint64(buf[8:16], p.Timestamp)
}

// DecodeRspPacket reads a RspPacket from buf[0:16].
func DecodeRspPacket(buf []byte) RspPacket {
	return RspPacket{
		Status:    binary.LittleEndian.Uint16(buf[0:2]),
		OrigCmd:   binary.LittleEndian.Uint16(buf[2:4]),
		Result:    binary.LittleEndian.Uint32(buf[4:8]),
		Timestamp: binary.LittleEndian.Uint64(buf[8:16]),
	}
}

// EncodeDoorbell writes d to buf[0:256].
func EncodeDoorbell(d *Doorbell, buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], d.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], d.Version)
	binary.LittleEndian.PutUint32(buf[8:12], d.CmdDoorbell)
	binary.LittleEndian.PutUint32(buf[12:16], d.CmdFlags)
	binary.LittleEndian.PutUint32(buf[16:20], d.CmdIRQCount)
	binary.LittleEndian.PutUint32(buf[20:24], d.RspDoorbell)
	binary.LittleEndian.PutUint32(buf[24:28], d.RspFlags)
	binary.LittleEndian.PutUint32(buf[28:32], d.RspIRQCount)
	binary.LittleEndian.PutUint32(buf[32:36], d.CmdWrites)
	binary.LittleEndian.PutUint32(buf[36:40], d.RspWrites)
	for i, v := range d.Reserved {
		off := 40 + i*4
		binary.LittleEndian.PutUint32(buf[off:off+4], v)
	}
}

// DecodeDoorbell reads a Doorbell from buf[0:256].
func DecodeDoorbell(buf []byte) Doorbell {
	var d Doorbell
	d.Magic = binary.LittleEndian.Uint32(buf[0:4])
	d.Version = binary.LittleEndian.Uint32(buf[4:8])
	d.CmdDoorbell = binary.LittleEndian.Uint32(buf[8:12])
	d.CmdFlags = binary.LittleEndian.Uint32(buf[12:16])
	d.CmdIRQCount = binary.LittleEndian.Uint32(buf[16:20])
	d.RspDoorbell = binary.LittleEndian.Uint32(buf[20:24])
	d.RspFlags = binary.LittleEndian.Uint32(buf[24:28])
	d.RspIRQCount = binary.LittleEndian.Uint32(buf[28:32])
	d.CmdWrites = binary.LittleEndian.Uint32(buf[32:36])
	d.RspWrites = binary.LittleEndian.Uint32(buf[36:40])
	for i := range d.Reserved {
		off := 40 + i*4
		d.Reserved[i] = binary.LittleEndian.Uint32(buf[off : off+4])
	}
	return d
}

// EncodeHeapControlHeader writes h to buf[0:32].
func EncodeHeapControlHeader(h *HeapControlHeader, buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.TotalBlocks)
	binary.LittleEndian.PutUint32(buf[12:16], h.FreeBlocks)
	binary.LittleEndian.PutUint32(buf[16:20], h.NextBlobID)
	for i, v := range h.Reserved {
		off := 20 + i*4
		binary.LittleEndian.PutUint32(buf[off:off+4], v)
	}
}

// DecodeHeapControlHeader reads a HeapControlHeader from buf[0:32].
func DecodeHeapControlHeader(buf []byte) HeapControlHeader {
	var h HeapControlHeader
	h.Magic = binary.LittleEndian.Uint32(buf[0:4])
	h.Version = binary.LittleEndian.Uint32(buf[4:8])
	h.TotalBlocks = binary.LittleEndian.Uint32(buf[8:12])
	h.FreeBlocks = binary.LittleEndian.Uint32(buf[12:16])
	h.NextBlobID = binary.LittleEndian.Uint32(buf[16:20])
	for i := range h.Reserved {
		off := 20 + i*4
		h.Reserved[i] = binary.LittleEndian.Uint32(buf[off : off+4])
	}
	return h
}

// EncodeBlobHeader writes h to buf[0:32].
func EncodeBlobHeader(h *BlobHeader, buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint16(buf[4:6], h.BlobID)
	buf[6] = h.Type
	buf[7] = h.Flags
	binary.LittleEndian.PutUint32(buf[8:12], h.Size)
	binary.LittleEndian.PutUint32(buf[12:16], h.Offset)
	binary.LittleEndian.PutUint32(buf[16:20], h.Checksum)
	for i, v := range h.Reserved {
		off := 20 + i*4
		binary.LittleEndian.PutUint32(buf[off:off+4], v)
	}
}

// DecodeBlobHeader reads a BlobHeader from buf[0:32].
func DecodeBlobHeader(buf []byte) BlobHeader {
	var h BlobHeader
	h.Magic = binary.LittleEndian.Uint32(buf[0:4])
	h.BlobID = binary.LittleEndian.Uint16(buf[4:6])
	h.Type = buf[6]
	h.Flags = buf[7]
	h.Size = binary.LittleEndian.Uint32(buf[8:12])
	h.Offset = binary.LittleEndian.Uint32(buf[12:16])
	h.Checksum = binary.LittleEndian.Uint32(buf[16:20])
	for i := range h.Reserved {
		off := 20 + i*4
		h.Reserved[i] = binary.LittleEndian.Uint32(buf[off : off+4])
	}
	return h
}

// EncodeTensorHeader writes h to buf[0:40].
func EncodeTensorHeader(h *TensorHeader, buf []byte) {
	buf[0] = h.Dtype
	buf[1] = h.Ndim
	binary.LittleEndian.PutUint16(buf[2:4], h.Reserved)
	for i, v := range h.Shape {
		off := 4 + i*4
		binary.LittleEndian.PutUint32(buf[off:off+4], v)
	}
	for i, v := range h.Strides {
		off := 20 + i*4
		binary.LittleEndian.PutUint32(buf[off:off+4], v)
	}
	binary.LittleEndian.PutUint32(buf[36:40], h.Reserved2)
}

// DecodeTensorHeader reads a TensorHeader from buf[0:40].
func DecodeTensorHeader(buf []byte) TensorHeader {
	var h TensorHeader
	h.Dtype = buf[0]
	h.Ndim = buf[1]
	h.Reserved = binary.LittleEndian.Uint16(buf[2:4])
	for i := range h.Shape {
		off := 4 + i*4
		h.Shape[i] = binary.LittleEndian.Uint32(buf[off : off+4])
	}
	for i := range h.Strides {
		off := 20 + i*4
		h.Strides[i] = binary.LittleEndian.Uint32(buf[off : off+4])
	}
	h.Reserved2 = binary.LittleEndian.Uint32(buf[36:40])
	return h
}

// EncodeObsEntry writes e to buf[0:32].
func EncodeObsEntry(e *ObsEntry, buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], e.Seq)
	putFloat32(buf[4:8], e.Obs[0])
	putFloat32(buf[8:12], e.Obs[1])
	putFloat32(buf[12:16], e.Obs[2])
	putFloat32(buf[16:20], e.Obs[3])
	putFloat32(buf[20:24], e.Reward)
	putFloat32(buf[24:28], e.Done)
	putFloat32(buf[28:32], e.ModelID)
}

// DecodeObsEntry reads an ObsEntry from buf[0:32].
func DecodeObsEntry(buf []byte) ObsEntry {
	var e ObsEntry
	e.Seq = binary.LittleEndian.Uint32(buf[0:4])
	e.Obs[0] = getFloat32(buf[4:8])
	e.Obs[1] = getFloat32(buf[8:12])
	e.Obs[2] = getFloat32(buf[12:16])
	e.Obs[3] = getFloat32(buf[16:20])
	e.Reward = getFloat32(buf[20:24])
	e.Done = getFloat32(buf[24:28])
	e.ModelID = getFloat32(buf[28:32])
	return e
}

// EncodeActEntry writes e to buf[0:16].
func EncodeActEntry(e *ActEntry, buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], e.Seq)
	binary.LittleEndian.PutUint16(buf[4:6], e.Action)
	binary.LittleEndian.PutUint16(buf[6:8], e.Flags)
	binary.LittleEndian.PutUint32(buf[8:12], e.AckSeq)
	binary.LittleEndian.PutUint32(buf[12:16], e.Reserved)
}

// DecodeActEntry reads an ActEntry from buf[0:16].
func DecodeActEntry(buf []byte) ActEntry {
	return ActEntry{
		Seq:      binary.LittleEndian.Uint32(buf[0:4]),
		Action:   binary.LittleEndian.Uint16(buf[4:6]),
		Flags:    binary.LittleEndian.Uint16(buf[6:8]),
		AckSeq:   binary.LittleEndian.Uint32(buf[8:12]),
		Reserved: binary.LittleEndian.Uint32(buf[12:16]),
	}
}

func putFloat32(buf []byte, f float32) {
	binary.LittleEndian.PutUint32(buf, math.Float32bits(f))
}

func getFloat32(buf []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf))
}
