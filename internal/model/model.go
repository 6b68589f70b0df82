// Package model implements the inference side of RUN_MODEL: a small
// cache of named models, each a plain float32 tensor transform, with
// built-in models (identity, linear, policy, sum, mean) created on
// demand when no on-disk weights exist for a name. "policy" is a
// 4-input/1-output linear controller scaled to a CartPole observation,
// distinct from "linear"'s 784-input classifier shape.
//
// On-disk models are a small JSON weight format (see
// loadLinearWeights); an unrecognized name falls back to a two-layer
// MLP, and Preload logs and continues past any name that fails to
// load.
package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/zen-systems/edgebridge/internal/logging"
)

// Model maps an input tensor to an output tensor.
type Model interface {
	// Forward runs the model over input, shaped per shape[:ndim].
	// Returns the flattened output and its shape.
	Forward(input []float32, shape []int) ([]float32, []int, error)
}

// Cache loads and caches models by name.
type Cache struct {
	dir string

	mu    sync.Mutex
	cache map[string]Model
}

// NewCache returns a Cache that looks for on-disk weights under dir.
func NewCache(dir string) *Cache {
	return &Cache{dir: dir, cache: make(map[string]Model)}
}

// GetOrLoad returns the cached model for name, loading weights from
// disk or creating a built-in default if none exists.
func (c *Cache) GetOrLoad(name string) (Model, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.cache[name]; ok {
		return m, nil
	}

	weightsPath := filepath.Join(c.dir, name+".json")
	if _, err := os.Stat(weightsPath); err == nil {
		logging.Default().Infof("loading model %q from %s", name, weightsPath)
		m, err := loadLinearWeights(weightsPath)
		if err != nil {
			return nil, fmt.Errorf("model %q: %w", name, err)
		}
		c.cache[name] = m
		return m, nil
	}

	logging.Default().Infof("model %q not found on disk, creating default", name)
	m := defaultModel(name)
	c.cache[name] = m
	return m, nil
}

// Preload loads every name in names into the cache, logging and
// continuing past any individual failure.
func (c *Cache) Preload(names []string) {
	for _, name := range names {
		if _, err := c.GetOrLoad(name); err != nil {
			logging.Default().Warnf("failed to preload model %q: %v", name, err)
		}
	}
}

// ClearCache drops every cached model.
func (c *Cache) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]Model)
}

func defaultModel(name string) Model {
	switch name {
	case "identity":
		return &identityModel{}
	case "linear":
		return newRandomLinear(784, 10)
	case "policy":
		return newRandomLinear(4, 1)
	case "sum":
		return &sumModel{}
	case "mean":
		return &meanModel{}
	default:
		return newMLP(784, 128, 10)
	}
}

type identityModel struct{}

func (identityModel) Forward(input []float32, shape []int) ([]float32, []int, error) {
	out := make([]float32, len(input))
	copy(out, input)
	return out, shape, nil
}

type sumModel struct{}

func (sumModel) Forward(input []float32, _ []int) ([]float32, []int, error) {
	var sum float32
	for _, v := range input {
		sum += v
	}
	return []float32{sum}, []int{1}, nil
}

type meanModel struct{}

func (meanModel) Forward(input []float32, _ []int) ([]float32, []int, error) {
	if len(input) == 0 {
		return []float32{0}, []int{1}, nil
	}
	var sum float32
	for _, v := range input {
		sum += v
	}
	return []float32{sum / float32(len(input))}, []int{1}, nil
}

// linearModel applies a single fully-connected layer: out = W*x + b.
type linearModel struct {
	in, out int
	weight  []float32 // out x in, row-major
	bias    []float32 // out
}

func (m *linearModel) Forward(input []float32, _ []int) ([]float32, []int, error) {
	if len(input) != m.in {
		return nil, nil, fmt.Errorf("linear model expects %d inputs, got %d", m.in, len(input))
	}
	out := make([]float32, m.out)
	for o := 0; o < m.out; o++ {
		var acc float32
		row := m.weight[o*m.in : (o+1)*m.in]
		for i, x := range input {
			acc += row[i] * x
		}
		out[o] = acc + m.bias[o]
	}
	return out, []int{m.out}, nil
}

// newRandomLinear builds a linear model with small deterministic
// weights, standing in for an untrained layer when no weights file is
// present.
func newRandomLinear(in, out int) *linearModel {
	w := make([]float32, out*in)
	for i := range w {
		w[i] = detWeight(i)
	}
	b := make([]float32, out)
	return &linearModel{in: in, out: out, weight: w, bias: b}
}

// mlpModel is a two-layer perceptron with a ReLU hidden activation,
// the default for unrecognized model names.
type mlpModel struct {
	l1 *linearModel
	l2 *linearModel
}

func newMLP(in, hidden, out int) *mlpModel {
	return &mlpModel{l1: newRandomLinear(in, hidden), l2: newRandomLinear(hidden, out)}
}

func (m *mlpModel) Forward(input []float32, shape []int) ([]float32, []int, error) {
	h, _, err := m.l1.Forward(input, nil)
	if err != nil {
		return nil, nil, err
	}
	for i, v := range h {
		if v < 0 {
			h[i] = 0
		}
	}
	return m.l2.Forward(h, nil)
}

// detWeight produces a small, deterministic, reproducible pseudo-weight
// without depending on a seeded PRNG, so identical inputs always
// produce identical outputs across runs.
func detWeight(i int) float32 {
	const scale = 0.01
	v := float32((i*2654435761)%1000) / 1000
	return (v - 0.5) * 2 * scale
}

// weightsFile is the on-disk JSON shape for a saved linear model.
type weightsFile struct {
	Weight [][]float32 `json:"weight"`
	Bias   []float32   `json:"bias"`
}

func loadLinearWeights(path string) (Model, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var wf weightsFile
	if err := json.Unmarshal(raw, &wf); err != nil {
		return nil, err
	}
	if len(wf.Weight) == 0 {
		return nil, fmt.Errorf("empty weight matrix")
	}
	out := len(wf.Weight)
	in := len(wf.Weight[0])
	flat := make([]float32, 0, out*in)
	for _, row := range wf.Weight {
		if len(row) != in {
			return nil, fmt.Errorf("ragged weight matrix")
		}
		flat = append(flat, row...)
	}
	bias := wf.Bias
	if bias == nil {
		bias = make([]float32, out)
	}
	return &linearModel{in: in, out: out, weight: flat, bias: bias}, nil
}

// SaveLinearWeights writes a linear model to disk in the JSON format
// loadLinearWeights reads.
func SaveLinearWeights(dir, name string, weight [][]float32, bias []float32) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(weightsFile{Weight: weight, Bias: bias}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name+".json"), raw, 0644)
}
