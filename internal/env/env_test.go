package env

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResetProducesSmallInitialState(t *testing.T) {
	c := New(42)
	obs := c.Reset()
	for _, v := range obs {
		require.InDelta(t, 0, v, 0.05)
	}
}

func TestStepRewardIsOnePerStepUntilDone(t *testing.T) {
	c := New(1)
	c.Reset()
	_, reward, done := c.Step(1)
	require.Equal(t, float32(1.0), reward)
	require.False(t, done)
}

func TestEpisodeEventuallyTerminates(t *testing.T) {
	c := New(7)
	c.Reset()
	done := false
	for i := 0; i < maxEpisodeSteps; i++ {
		_, _, done = c.Step(1)
		if done {
			break
		}
	}
	require.True(t, done)
}

func TestSameSeedReproducesTrajectory(t *testing.T) {
	a := New(99)
	b := New(99)
	obsA := a.Reset()
	obsB := b.Reset()
	require.Equal(t, obsA, obsB)

	for i := 0; i < 10; i++ {
		oa, ra, da := a.Step(i % 2)
		ob, rb, db := b.Step(i % 2)
		require.Equal(t, oa, ob)
		require.Equal(t, ra, rb)
		require.Equal(t, da, db)
	}
}
