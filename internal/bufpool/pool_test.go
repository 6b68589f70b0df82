package bufpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetSizeBuckets(t *testing.T) {
	cases := []struct {
		request   int
		expectCap int
	}{
		{512, size1k},
		{size1k, size1k},
		{2000, size4k},
		{size4k, size4k},
		{8000, size16k},
		{size16k, size16k},
		{40000, size64k},
		{size64k, size64k},
	}
	for _, c := range cases {
		buf := Get(c.request)
		require.Len(t, buf, c.request)
		require.Equal(t, c.expectCap, cap(buf))
		Put(buf)
	}
}

func TestGetOversizeNotPooled(t *testing.T) {
	buf := Get(200 * 1024)
	require.Len(t, buf, 200*1024)
	Put(buf) // must not panic on a non-standard capacity
}
