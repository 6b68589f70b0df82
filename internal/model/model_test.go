package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdentityModel(t *testing.T) {
	c := NewCache(t.TempDir())
	m, err := c.GetOrLoad("identity")
	require.NoError(t, err)

	in := []float32{1, 2, 3}
	out, shape, err := m.Forward(in, []int{3})
	require.NoError(t, err)
	require.Equal(t, in, out)
	require.Equal(t, []int{3}, shape)
}

func TestSumModel(t *testing.T) {
	c := NewCache(t.TempDir())
	m, err := c.GetOrLoad("sum")
	require.NoError(t, err)

	out, shape, err := m.Forward([]float32{1, 2, 3, 4}, []int{4})
	require.NoError(t, err)
	require.Equal(t, []float32{10}, out)
	require.Equal(t, []int{1}, shape)
}

func TestMeanModel(t *testing.T) {
	c := NewCache(t.TempDir())
	m, err := c.GetOrLoad("mean")
	require.NoError(t, err)

	out, _, err := m.Forward([]float32{2, 4, 6}, []int{3})
	require.NoError(t, err)
	require.InDelta(t, 4.0, out[0], 1e-6)
}

func TestCacheReturnsSameInstance(t *testing.T) {
	c := NewCache(t.TempDir())
	m1, err := c.GetOrLoad("identity")
	require.NoError(t, err)
	m2, err := c.GetOrLoad("identity")
	require.NoError(t, err)
	require.Same(t, m1, m2)
}

func TestLinearWeightsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	weight := [][]float32{{1, 0}, {0, 1}}
	bias := []float32{0, 0}
	require.NoError(t, SaveLinearWeights(dir, "eye2", weight, bias))

	c := NewCache(dir)
	m, err := c.GetOrLoad("eye2")
	require.NoError(t, err)

	out, _, err := m.Forward([]float32{5, 7}, []int{2})
	require.NoError(t, err)
	require.Equal(t, []float32{5, 7}, out)
}

func TestPolicyModelAcceptsFourElementObservation(t *testing.T) {
	c := NewCache(t.TempDir())
	m, err := c.GetOrLoad("policy")
	require.NoError(t, err)

	out, shape, err := m.Forward([]float32{0.01, -0.02, 0.03, -0.04}, []int{4})
	require.NoError(t, err)
	require.Equal(t, []int{1}, shape)
	require.Len(t, out, 1)
}

func TestDefaultModelIsMLP(t *testing.T) {
	c := NewCache(t.TempDir())
	m, err := c.GetOrLoad("some-unrecognized-name")
	require.NoError(t, err)

	in := make([]float32, 784)
	out, shape, err := m.Forward(in, []int{784})
	require.NoError(t, err)
	require.Equal(t, []int{10}, shape)
	require.Len(t, out, 10)
}
