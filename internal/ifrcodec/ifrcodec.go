// Package ifrcodec parses and verifies inference flight records: the
// fixed-size V2 record and its hash-chained V3 extension.
//
// Dispatch is by the magic and version in the first six bytes, with a
// record_size cross-check. A V2 record carries a SHA-256 over its
// leading bytes; V3 adds a second hash binding the record into a
// chain through prev_chain_hash. Parsing never fails on a hash
// mismatch, it only clears the corresponding _ok flag, so callers can
// persist tampered records while still refusing them.
package ifrcodec

import (
	"crypto/sha256"

	"github.com/zen-systems/edgebridge/internal/errs"
	"github.com/zen-systems/edgebridge/internal/proto"
)

// Record is the decoded, verified projection of either an IFR V2 or
// V3 blob.
type Record struct {
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
	Profile    []float32
	Hash       [32]byte
	HashOK     bool

	// V3-only fields; zero/nil for a V2 record.
	IsV3              bool
	Nonce             [16]byte
	ModelDigest       [32]byte
	PolicyDigest      [32]byte
	FlightrecSealHash [32]byte
	PrevChainHash     [32]byte
	IfrHash           [32]byte
	ChainHash         [32]byte
	SigClassical      [64]byte
	ChainOK           bool
}

// Valid reports whether every hash check for this record's version
// passed.
func (r *Record) Valid() bool {
	if r.IsV3 {
		return r.HashOK && r.ChainOK
	}
	return r.HashOK
}

// Parse dispatches on the magic and version in the first six bytes of
// data and decodes/verifies a V2 or V3 record.
func Parse(data []byte) (*Record, error) {
	if len(data) < 8 {
		return nil, errs.New("ifrcodec.Parse", errs.CodeDecodeError, "record too short")
	}
	magicVal := leUint32(data[0:4])
	if magicVal != proto.MagicIFR {
		return nil, errs.New("ifrcodec.Parse", errs.CodeMagicMismatch, "not an IFR record")
	}
	version := leUint16(data[4:6])
	switch version {
	case 2:
		return parseV2(data)
	case 3:
		return parseV3(data)
	default:
		return nil, errs.New("ifrcodec.Parse", errs.CodeDecodeError, "unsupported IFR version")
	}
}

func parseV2(data []byte) (*Record, error) {
	if len(data) < proto.IFRV2Size {
		return nil, errs.New("ifrcodec.Parse", errs.CodeDecodeError, "V2 record truncated")
	}
	v2 := proto.DecodeIFRV2(data[:proto.IFRV2Size])
	if int(v2.RecordSize) != proto.IFRV2Size || v2.ProfileLen > uint16(len(v2.Profile)) {
		return nil, errs.New("ifrcodec.Parse", errs.CodeDecodeError, "V2 record_size/profile_len invalid")
	}

	expected := sha256.Sum256(data[:proto.IFRV2HashOffset])
	hashOK := expected == v2.Hash

	return &Record{
		Magic:      v2.Magic,
		Version:    v2.Version,
		Flags:      v2.Flags,
		JobID:      v2.JobID,
		EpisodeID:  v2.EpisodeID,
		ModelID:    v2.ModelID,
		RecordSize: v2.RecordSize,
		TsUsec:     v2.TsUsec,
		Goodput:    v2.Goodput,
		ProfileLen: v2.ProfileLen,
		Profile:    append([]float32(nil), v2.Profile[:v2.ProfileLen]...),
		Hash:       v2.Hash,
		HashOK:     hashOK,
	}, nil
}

func parseV3(data []byte) (*Record, error) {
	if len(data) < proto.IFRV3Size {
		return nil, errs.New("ifrcodec.Parse", errs.CodeDecodeError, "V3 record truncated")
	}
	v3 := proto.DecodeIFRV3(data[:proto.IFRV3Size])
	if int(v3.RecordSize) != proto.IFRV3Size {
		return nil, errs.New("ifrcodec.Parse", errs.CodeDecodeError, "V3 record_size invalid")
	}

	expectedIfrHash := sha256.Sum256(data[:proto.IFRV3HashOffset])
	ifrOK := expectedIfrHash == v3.IfrHash

	chainCtx := sha256.New()
	chainCtx.Write(v3.PrevChainHash[:])
	chainCtx.Write(v3.IfrHash[:])
	chainCtx.Write(v3.FlightrecSealHash[:])
	chainCtx.Write(v3.Nonce[:])
	chainCtx.Write(v3.ModelDigest[:])
	chainCtx.Write(v3.PolicyDigest[:])
	var expectedChain [32]byte
	copy(expectedChain[:], chainCtx.Sum(nil))
	chainOK := expectedChain == v3.ChainHash

	return &Record{
		Magic:             v3.Magic,
		Version:           v3.Version,
		Flags:             v3.Flags,
		JobID:             v3.JobID,
		EpisodeID:         v3.EpisodeID,
		ModelID:           v3.ModelID,
		RecordSize:        v3.RecordSize,
		TsUsec:            v3.TsUsec,
		Goodput:           v3.Goodput,
		ProfileLen:        v3.ProfileLen,
		Profile:           append([]float32(nil), v3.Profile[:v3.ProfileLen]...),
		Hash:              v3.Hash,
		IsV3:              true,
		Nonce:             v3.Nonce,
		ModelDigest:       v3.ModelDigest,
		PolicyDigest:      v3.PolicyDigest,
		FlightrecSealHash: v3.FlightrecSealHash,
		PrevChainHash:     v3.PrevChainHash,
		IfrHash:           v3.IfrHash,
		ChainHash:         v3.ChainHash,
		SigClassical:      v3.SigClassical,
		HashOK:            ifrOK,
		ChainOK:           chainOK,
	}, nil
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func leUint16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}

