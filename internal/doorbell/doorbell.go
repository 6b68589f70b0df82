// Package doorbell implements the advisory signalling block: a pair
// of counters either side may bump to nudge the other without relying
// on polling. Doorbell state is never load-bearing for correctness —
// ring head/tail remain the source of truth.
package doorbell

import (
	"github.com/zen-systems/edgebridge/internal/memregion"
	"github.com/zen-systems/edgebridge/internal/proto"
)

const (
	offMagic       = 0
	offVersion     = 4
	offCmdDoorbell = 8
	offCmdFlags    = 12
	offCmdIRQCount = 16
	offRspDoorbell = 20
	offRspFlags    = 24
	offRspIRQCount = 28
	offCmdWrites   = 32
	offRspWrites   = 36
)

// Doorbell is a view over the 256-byte doorbell block.
type Doorbell struct {
	region *memregion.Region
	base   int
}

// New returns a Doorbell rooted at baseOffset within region.
func New(region *memregion.Region, baseOffset int) *Doorbell {
	return &Doorbell{region: region, base: baseOffset}
}

// Init writes a fresh doorbell block with magic = "DOOR" and all
// counters zeroed.
func (d *Doorbell) Init() {
	for off := 0; off < proto.DoorbellSize; off += 4 {
		d.region.StoreU32(d.base+off, 0)
	}
	d.region.StoreU32(d.base+offMagic, proto.MagicDoorbell)
	d.region.StoreU32(d.base+offVersion, 1)
}

// Valid reports whether the magic matches "DOOR".
func (d *Doorbell) Valid() bool {
	return d.region.LoadU32(d.base+offMagic) == proto.MagicDoorbell
}

// RingCmdDoorbell is called by the external producer; included here
// for completeness of the layout, though the host never originates
// it.
func (d *Doorbell) RingCmdDoorbell() {
	d.region.AddU32(d.base+offCmdDoorbell, 1)
	d.region.AddU32(d.base+offCmdWrites, 1)
}

// RingRspDoorbell is called by the host after publishing a response:
// write rsp_doorbell then increment rsp_writes, matching the
// publish-then-count ordering used for every other counter here.
func (d *Doorbell) RingRspDoorbell() {
	d.region.AddU32(d.base+offRspDoorbell, 1)
	d.region.AddU32(d.base+offRspWrites, 1)
}

// CmdWrites returns the current cmd_writes counter.
func (d *Doorbell) CmdWrites() uint32 {
	return d.region.LoadU32(d.base + offCmdWrites)
}

// RspWrites returns the current rsp_writes counter.
func (d *Doorbell) RspWrites() uint32 {
	return d.region.LoadU32(d.base + offRspWrites)
}
