package ring

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zen-systems/edgebridge/internal/memregion"
	"github.com/zen-systems/edgebridge/internal/proto"
)

func TestConsumeEmptyUninitialized(t *testing.T) {
	region := memregion.NewInProcess()
	r := New(region, 0, proto.CmdPacketSize, proto.MagicCmdRing)
	_, ok := r.Consume()
	require.False(t, ok)
}

func TestProduceConsumeRoundTrip(t *testing.T) {
	region := memregion.NewInProcess()
	r := New(region, 0, proto.CmdPacketSize, proto.MagicCmdRing)
	r.Init(4)

	p := proto.CmdPacket{Cmd: proto.CmdPing, PayloadID: 7}
	buf := make([]byte, proto.CmdPacketSize)
	proto.EncodeCmdPacket(&p, buf)

	require.NoError(t, r.Produce(buf))

	entry, ok := r.Consume()
	require.True(t, ok)
	got := proto.DecodeCmdPacket(entry)
	require.Equal(t, p, got)
}

func TestRingFull(t *testing.T) {
	// A producer-only sequence of size-1 produces succeeds; the next
	// produce yields exactly one RingFull.
	region := memregion.NewInProcess()
	const size = 8
	r := New(region, 0, proto.CmdPacketSize, proto.MagicCmdRing)
	r.Init(size)

	buf := make([]byte, proto.CmdPacketSize)
	for i := 0; i < size-1; i++ {
		require.NoError(t, r.Produce(buf), "produce %d should succeed", i)
	}
	err := r.Produce(buf)
	require.Error(t, err)
	_, isFull := err.(ErrRingFull)
	require.True(t, isFull)
}

func TestConsumeOrderPreserved(t *testing.T) {
	region := memregion.NewInProcess()
	r := New(region, 0, proto.CmdPacketSize, proto.MagicCmdRing)
	r.Init(16)

	for i := uint32(0); i < 5; i++ {
		p := proto.CmdPacket{Cmd: proto.CmdPing, PayloadID: i}
		buf := make([]byte, proto.CmdPacketSize)
		proto.EncodeCmdPacket(&p, buf)
		require.NoError(t, r.Produce(buf))
	}
	for i := uint32(0); i < 5; i++ {
		entry, ok := r.Consume()
		require.True(t, ok)
		got := proto.DecodeCmdPacket(entry)
		require.Equal(t, i, got.PayloadID)
	}
	_, ok := r.Consume()
	require.False(t, ok)
}
