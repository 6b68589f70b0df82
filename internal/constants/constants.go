// Package constants holds fixed offsets and sizes for the shared memory
// region layout. These values are part of the wire contract with the
// external peer and must never change without a version bump to the
// ring/doorbell magics.
package constants

import "time"

// Region size and section layout (see internal/proto for the structs
// that live at each offset).
const (
	RegionSize = 0x100000 // 1 MiB, the whole backing file

	CmdRingOffset = 0x00000
	CmdRingSize   = 0x08000 // 32 KiB

	RspRingOffset = 0x08000
	RspRingSize   = 0x08000 // 32 KiB

	DoorbellOffset = 0x10000
	DoorbellSize   = 0x100 // 256 B

	HeapControlOffset = 0x10100
	HeapControlSize   = 0xF00 // 32 B header plus bitmap; 4 KiB minus the 256 B doorbell

	HeapDataOffset = 0x11000
	HeapDataSize   = 0xED000

	ObsRingOffset = 0xFE000
	ObsRingSize   = 0x1000 // 4 KiB

	ActRingOffset = 0xFF000
	ActRingSize   = 0x1000 // 4 KiB
)

// Block and packet sizes.
const (
	HeapBlockSize  = 64 // bytes per allocator block
	CmdPacketSize  = 16
	RspPacketSize  = 16
	ObsEntrySize   = 32
	ActEntrySize   = 16
	RingHeaderSize = 32
	BlobHeaderSize = 32
	TensorHdrSize  = 40
)

// Default command-line / config defaults.
const (
	DefaultShmPath      = "/dev/shm/zenedge.shm"
	DefaultModelsDir    = "./models"
	DefaultPollInterval = time.Millisecond
	DefaultGymEnvName   = "CartPole-v1"
	DefaultIFRDir       = "/tmp/zenedge_ifr"
)

// ObsPoolSize is the number of pre-allocated observation blobs reused
// round-robin outside streaming mode.
const ObsPoolSize = 8
