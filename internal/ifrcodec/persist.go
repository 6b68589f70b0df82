package ifrcodec

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Persist writes raw, the first record.RecordSize bytes of which are
// the fixed-size record, as a sibling .bin/.json pair under dir,
// named by job id, episode id and a caller-supplied unix timestamp.
// The .json side is a human-readable projection with the hash as
// lowercase hex and the hash_ok flag (plus ifr_hash, chain_hash and
// chain_ok for a V3 record); map keys come
// out alphabetized by encoding/json, matching the sorted-keys layout
// the persisted format calls for.
func Persist(dir string, record *Record, raw []byte, unixSeconds int64) (binPath, jsonPath string, err error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", err
	}

	base := fmt.Sprintf("ifr-%d-%d-%d", record.JobID, record.EpisodeID, unixSeconds)
	binPath = filepath.Join(dir, base+".bin")
	jsonPath = filepath.Join(dir, base+".json")

	n := int(record.RecordSize)
	if n > len(raw) {
		n = len(raw)
	}
	if err := os.WriteFile(binPath, raw[:n], 0644); err != nil {
		return "", "", err
	}

	fields := map[string]any{
		"magic":       record.Magic,
		"version":     record.Version,
		"flags":       record.Flags,
		"job_id":      record.JobID,
		"episode_id":  record.EpisodeID,
		"model_id":    record.ModelID,
		"record_size": record.RecordSize,
		"ts_usec":     record.TsUsec,
		"goodput":     record.Goodput,
		"profile":     record.Profile,
		"hash":        hex.EncodeToString(record.Hash[:]),
		"hash_ok":     record.HashOK,
	}
	if record.IsV3 {
		fields["ifr_hash"] = hex.EncodeToString(record.IfrHash[:])
		fields["chain_hash"] = hex.EncodeToString(record.ChainHash[:])
		fields["chain_ok"] = record.ChainOK
	}

	out, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return "", "", err
	}
	if err := os.WriteFile(jsonPath, out, 0644); err != nil {
		return "", "", err
	}
	return binPath, jsonPath, nil
}
