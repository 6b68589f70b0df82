package ifrcodec

import (
	"crypto/sha256"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zen-systems/edgebridge/internal/proto"
)

func buildV2(t *testing.T) []byte {
	t.Helper()
	v2 := proto.IFRV2{
		Magic:      proto.MagicIFR,
		Version:    2,
		RecordSize: proto.IFRV2Size,
		ProfileLen: 4,
	}
	v2.Profile[0] = 0.1
	v2.Profile[1] = 0.2
	v2.Profile[2] = 0.3
	v2.Profile[3] = 0.4

	buf := make([]byte, proto.IFRV2Size)
	proto.EncodeIFRV2(&v2, buf)
	sum := sha256.Sum256(buf[:proto.IFRV2HashOffset])
	copy(buf[proto.IFRV2HashOffset:], sum[:])
	return buf
}

func TestParseV2Valid(t *testing.T) {
	buf := buildV2(t)
	rec, err := Parse(buf)
	require.NoError(t, err)
	require.True(t, rec.HashOK)
	require.Equal(t, uint16(4), rec.ProfileLen)
	require.InDelta(t, 0.1, rec.Profile[0], 1e-6)
}

func TestParseV2FlippedProfileByteInvalidatesHash(t *testing.T) {
	// Flipping a byte in the hashed prefix while holding the hash
	// constant must invalidate hash_ok.
	buf := buildV2(t)
	buf[40] ^= 0xFF // first byte of profile[0], before the hash at byte 104
	rec, err := Parse(buf)
	require.NoError(t, err)
	require.False(t, rec.HashOK)
}

func buildV3(t *testing.T) proto.IFRV3 {
	t.Helper()
	v3 := proto.IFRV3{}
	v3.Magic = proto.MagicIFR
	v3.Version = 3
	v3.RecordSize = proto.IFRV3Size
	for i := range v3.Nonce {
		v3.Nonce[i] = byte(i + 1)
	}
	for i := range v3.ModelDigest {
		v3.ModelDigest[i] = byte(i)
	}
	for i := range v3.PolicyDigest {
		v3.PolicyDigest[i] = byte(i + 2)
	}
	for i := range v3.FlightrecSealHash {
		v3.FlightrecSealHash[i] = byte(i + 3)
	}
	for i := range v3.PrevChainHash {
		v3.PrevChainHash[i] = byte(i + 4)
	}
	return v3
}

func encodeV3WithHashes(v3 proto.IFRV3) []byte {
	buf := make([]byte, proto.IFRV3Size)
	proto.EncodeIFRV3(&v3, buf)
	ifrHash := sha256.Sum256(buf[:proto.IFRV3HashOffset])
	v3.IfrHash = ifrHash

	h := sha256.New()
	h.Write(v3.PrevChainHash[:])
	h.Write(v3.IfrHash[:])
	h.Write(v3.FlightrecSealHash[:])
	h.Write(v3.Nonce[:])
	h.Write(v3.ModelDigest[:])
	h.Write(v3.PolicyDigest[:])
	copy(v3.ChainHash[:], h.Sum(nil))

	proto.EncodeIFRV3(&v3, buf)
	return buf
}

func TestParseV3Valid(t *testing.T) {
	v3 := buildV3(t)
	buf := encodeV3WithHashes(v3)

	rec, err := Parse(buf)
	require.NoError(t, err)
	require.True(t, rec.HashOK)
	require.True(t, rec.ChainOK)
	require.True(t, rec.Valid())
}

func TestParseV3FlippedPrevChainHashInvalidatesChain(t *testing.T) {
	// Flipping any bit of prev_chain_hash must invalidate chain_ok.
	v3 := buildV3(t)
	buf := encodeV3WithHashes(v3)

	decoded := proto.DecodeIFRV3(buf)
	decoded.PrevChainHash[0] ^= 0x01
	buf2 := make([]byte, proto.IFRV3Size)
	proto.EncodeIFRV3(&decoded, buf2)

	rec, err := Parse(buf2)
	require.NoError(t, err)
	require.False(t, rec.ChainOK)
}

func TestParseRejectsBadMagic(t *testing.T) {
	buf := buildV2(t)
	buf[0] ^= 0xFF
	_, err := Parse(buf)
	require.Error(t, err)
}

func TestPersistWritesBinAndJSON(t *testing.T) {
	buf := buildV2(t)
	rec, err := Parse(buf)
	require.NoError(t, err)

	dir := t.TempDir()
	binPath, jsonPath, err := Persist(dir, rec, buf, 1700000000)
	require.NoError(t, err)

	binData, err := os.ReadFile(binPath)
	require.NoError(t, err)
	require.Len(t, binData, proto.IFRV2Size)

	jsonData, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	require.Contains(t, string(jsonData), `"hash_ok": true`)
}
