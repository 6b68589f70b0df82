// Package handlers implements the command handlers dispatched from
// the command ring: PING, PRINT, RUN_MODEL, IFR_PERSIST,
// TELEMETRY_POLL, ENV_RESET, ENV_STEP, ARB_EPISODE, and the heap and
// model-lifecycle commands (TENSOR_ALLOC, TENSOR_FREE, HEAP_STATS,
// MODEL_LOAD).
//
// Each handler receives a Context bundling its dependencies plus the
// decoded command packet, and returns a (status, result) pair the
// dispatch loop encodes into a response packet.
package handlers

import (
	"sync"
	"sync/atomic"

	"github.com/zen-systems/edgebridge/internal/arbiter"
	"github.com/zen-systems/edgebridge/internal/env"
	"github.com/zen-systems/edgebridge/internal/heap"
	"github.com/zen-systems/edgebridge/internal/model"
	"github.com/zen-systems/edgebridge/internal/proto"
	"github.com/zen-systems/edgebridge/internal/ring"
)

// TelemetryConfig holds the synthetic telemetry values TELEMETRY_POLL
// reports, configured from the environment or a config file.
type TelemetryConfig struct {
	GPUTempC     float32
	RDMAQPDepth  float32
	NUMALocality float32
}

const obsPoolSize = 8

// obsBlobSize is the pooled observation payload: obs[0..4], reward,
// done and the model blob id as a float32.
const obsBlobSize = 28

// Context bundles every dependency a handler needs: the heap, model
// cache, RL environment, arbiter client, IFR output directory, and
// the streaming state shared with the dispatch loop.
type Context struct {
	Heap       *heap.Heap
	Models     *model.Cache
	ModelsDir  string
	Env        *env.CartPole
	Arbiter    *arbiter.Client
	IFRDir     string
	Telemetry  TelemetryConfig
	ModelState *ModelState

	ObsRing *ring.Ring
	ActRing *ring.Ring

	streaming    atomic.Bool
	policyOnce   sync.Once
	policyBlobID uint16

	obsMu   sync.Mutex
	obsPool [obsPoolSize]uint16
	obsBusy [obsPoolSize]bool
	obsNext int
}

// NewContext constructs a handler Context. ObsRing/ActRing may be
// left nil if streaming is not wired for this process.
func NewContext(h *heap.Heap, models *model.Cache, modelsDir string, e *env.CartPole, arb *arbiter.Client, ifrDir string, telemetry TelemetryConfig, obsRing, actRing *ring.Ring) *Context {
	return &Context{
		Heap:       h,
		Models:     models,
		ModelsDir:  modelsDir,
		Env:        e,
		Arbiter:    arb,
		IFRDir:     ifrDir,
		Telemetry:  telemetry,
		ModelState: NewModelState(),
		ObsRing:    obsRing,
		ActRing:    actRing,
	}
}

func (c *Context) Streaming() bool {
	return c.streaming.Load()
}

// SetStreaming enters or leaves streaming mode.
func (c *Context) SetStreaming(on bool) {
	c.streaming.Store(on)
}

// nextObsBlob returns the id of the next available slot in the pool
// of obsPoolSize pre-allocated observation blobs, allocating the whole
// pool on first use. When every slot is busy the round-robin cursor's
// slot is reused anyway; the peer acks each blob on its next step, so
// a fully busy pool means it stopped consuming.
func (c *Context) nextObsBlob() (uint16, error) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()

	if err := c.ensureObsPoolLocked(); err != nil {
		return 0, err
	}
	for i := 0; i < obsPoolSize; i++ {
		idx := (c.obsNext + i) % obsPoolSize
		if !c.obsBusy[idx] {
			c.obsBusy[idx] = true
			c.obsNext = (idx + 1) % obsPoolSize
			return c.obsPool[idx], nil
		}
	}
	idx := c.obsNext
	c.obsNext = (idx + 1) % obsPoolSize
	return c.obsPool[idx], nil
}

func (c *Context) ensureObsPoolLocked() error {
	if c.obsPool[0] != 0 {
		return nil
	}
	for i := range c.obsPool {
		id, err := c.Heap.AllocateBlob(obsBlobSize, proto.BlobTypeRaw)
		if err != nil {
			return err
		}
		c.obsPool[i] = id
	}
	return nil
}

// releaseObsBlob hands an acked blob id back to the pool, reporting
// whether the id was a pool member.
func (c *Context) releaseObsBlob(id uint16) bool {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	for i, poolID := range c.obsPool {
		if poolID == id {
			c.obsBusy[i] = false
			return true
		}
	}
	return false
}

func (c *Context) writeObsEntry(blobID uint16, obs [4]float32, reward, done, modelID float32) error {
	vals := []float32{obs[0], obs[1], obs[2], obs[3], reward, done, modelID}
	return c.Heap.WriteBlobData(blobID, f32ToBytes(vals))
}

// ModelState implements the Baseline/Candidate lifecycle: promote
// moves the current model to baseline, reject/safe_mode reinstate the
// baseline as current, and keep is a no-op.
type ModelState struct {
	mu          sync.Mutex
	baseline    uint32
	current     uint32
	isCandidate bool
}

func NewModelState() *ModelState {
	return &ModelState{}
}

// SetCandidate marks modelID as a candidate under evaluation.
func (m *ModelState) SetCandidate(modelID uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = modelID
	m.isCandidate = true
}

// Current returns the active model id.
func (m *ModelState) Current() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// ApplyDecision applies an arbiter decision code, returning the
// resulting active model id.
func (m *ModelState) ApplyDecision(decisionCode int, modelID uint32) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch decisionCode {
	case arbiter.DecisionPromote:
		if modelID != 0 {
			m.current = modelID
		}
		m.baseline = m.current
		m.isCandidate = false
	case arbiter.DecisionReject, arbiter.DecisionSafeMode:
		m.current = m.baseline
		m.isCandidate = false
	case arbiter.DecisionKeep:
		// no-op
	}
	return m.current
}

