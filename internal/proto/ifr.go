package proto

import "encoding/binary"

// EncodeIFRV2 writes r to buf[0:136].
func EncodeIFRV2(r *IFRV2, buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], r.Magic)
	binary.LittleEndian.PutUint16(buf[4:6], r.Version)
	binary.LittleEndian.PutUint16(buf[6:8], r.Flags)
	binary.LittleEndian.PutUint32(buf[8:12], r.JobID)
	binary.LittleEndian.PutUint32(buf[12:16], r.EpisodeID)
	binary.LittleEndian.PutUint32(buf[16:20], r.ModelID)
	binary.LittleEndian.PutUint32(buf[20:24], r.RecordSize)
	binary.LittleEndian.PutUint64(buf[24:32], r.TsUsec)
	putFloat32(buf[32:36], r.Goodput)
	binary.LittleEndian.PutUint16(buf[36:38], r.ProfileLen)
	binary.LittleEndian.PutUint16(buf[38:40], r.Reserved)
	for i, v := range r.Profile {
		off := 40 + i*4
		putFloat32(buf[off:off+4], v)
	}
	copy(buf[104:136], r.Hash[:])
}

// DecodeIFRV2 reads an IFRV2 from buf[0:136]. Caller must ensure
// len(buf) >= IFRV2Size.
func DecodeIFRV2(buf []byte) IFRV2 {
	var r IFRV2
	r.Magic = binary.LittleEndian.Uint32(buf[0:4])
	r.Version = binary.LittleEndian.Uint16(buf[4:6])
	r.Flags = binary.LittleEndian.Uint16(buf[6:8])
	r.JobID = binary.LittleEndian.Uint32(buf[8:12])
	r.EpisodeID = binary.LittleEndian.Uint32(buf[12:16])
	r.ModelID = binary.LittleEndian.Uint32(buf[16:20])
	r.RecordSize = binary.LittleEndian.Uint32(buf[20:24])
	r.TsUsec = binary.LittleEndian.Uint64(buf[24:32])
	r.Goodput = getFloat32(buf[32:36])
	r.ProfileLen = binary.LittleEndian.Uint16(buf[36:38])
	r.Reserved = binary.LittleEndian.Uint16(buf[38:40])
	for i := range r.Profile {
		off := 40 + i*4
		r.Profile[i] = getFloat32(buf[off : off+4])
	}
	copy(r.Hash[:], buf[104:136])
	return r
}

// EncodeIFRV3 writes r to buf[0:408].
func EncodeIFRV3(r *IFRV3, buf []byte) {
	EncodeIFRV2(&r.IFRV2, buf[0:136])
	off := 136
	copy(buf[off:off+16], r.Nonce[:])
	off += 16
	copy(buf[off:off+32], r.ModelDigest[:])
	off += 32
	copy(buf[off:off+32], r.PolicyDigest[:])
	off += 32
	copy(buf[off:off+32], r.FlightrecSealHash[:])
	off += 32
	copy(buf[off:off+32], r.PrevChainHash[:])
	off += 32
	copy(buf[off:off+32], r.IfrHash[:])
	off += 32
	copy(buf[off:off+32], r.ChainHash[:])
	off += 32
	copy(buf[off:off+64], r.SigClassical[:])
}

// DecodeIFRV3 reads an IFRV3 from buf[0:408]. Caller must ensure
// len(buf) >= IFRV3Size.
func DecodeIFRV3(buf []byte) IFRV3 {
	var r IFRV3
	r.IFRV2 = DecodeIFRV2(buf[0:136])
	off := 136
	copy(r.Nonce[:], buf[off:off+16])
	off += 16
	copy(r.ModelDigest[:], buf[off:off+32])
	off += 32
	copy(r.PolicyDigest[:], buf[off:off+32])
	off += 32
	copy(r.FlightrecSealHash[:], buf[off:off+32])
	off += 32
	copy(r.PrevChainHash[:], buf[off:off+32])
	off += 32
	copy(r.IfrHash[:], buf[off:off+32])
	off += 32
	copy(r.ChainHash[:], buf[off:off+32])
	off += 32
	copy(r.SigClassical[:], buf[off:off+64])
	return r
}
