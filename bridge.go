// Package edgebridge owns the shared memory mapping, the heap
// manager, and the handler registry, and runs the polling dispatch
// loop that couples them to an external peer.
package edgebridge

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/zen-systems/edgebridge/internal/arbiter"
	"github.com/zen-systems/edgebridge/internal/constants"
	"github.com/zen-systems/edgebridge/internal/doorbell"
	"github.com/zen-systems/edgebridge/internal/env"
	"github.com/zen-systems/edgebridge/internal/handlers"
	"github.com/zen-systems/edgebridge/internal/heap"
	"github.com/zen-systems/edgebridge/internal/logging"
	"github.com/zen-systems/edgebridge/internal/memregion"
	"github.com/zen-systems/edgebridge/internal/model"
	"github.com/zen-systems/edgebridge/internal/proto"
	"github.com/zen-systems/edgebridge/internal/ring"
)

// DefaultPollInterval is how long the loop sleeps after finding the
// command ring empty.
const DefaultPollInterval = constants.DefaultPollInterval

// Params configures a Bridge.
type Params struct {
	// ShmPath is the backing file path for the mapped region.
	ShmPath string
	// Create, if true, creates and zero-fills the backing file (and
	// initializes every ring/doorbell/heap header) when it does not
	// already have the expected size.
	Create bool

	ModelsDir    string
	IFRDir       string
	PollInterval time.Duration

	ArbiterURL        string
	ArbiterProfileEnv string

	Telemetry handlers.TelemetryConfig

	EnvSeed int64
}

// DefaultParams returns a Params holding the default shm path, models
// directory, IFR directory and poll interval; every other field is
// left zero.
func DefaultParams() Params {
	return Params{
		ShmPath:      constants.DefaultShmPath,
		ModelsDir:    constants.DefaultModelsDir,
		IFRDir:       constants.DefaultIFRDir,
		PollInterval: constants.DefaultPollInterval,
	}
}

// Options carries cross-cutting dependencies a caller may override.
type Options struct {
	// Context for cancellation (if nil, uses context.Background()).
	Context context.Context
	// Observer for metrics collection (if nil, uses a fresh Metrics
	// recorded through NewMetricsObserver).
	Observer Observer
}

// Bridge owns the mapped region and runs the dispatch loop until its
// context is cancelled or Close is called.
type Bridge struct {
	region *memregion.Region
	heap   *heap.Heap

	cmdRing *ring.Ring
	rspRing *ring.Ring
	obsRing *ring.Ring
	actRing *ring.Ring
	door    *doorbell.Doorbell

	registry map[uint16]handlers.Handler
	ctxData  *handlers.Context

	pollInterval time.Duration

	ctx      context.Context
	cancel   context.CancelFunc
	metrics  *Metrics
	observer Observer

	done chan struct{}
}

// Open maps (creating if requested) the backing file described by
// params, wires every substrate component together, and returns an
// unstarted Bridge. Call Serve to run the dispatch loop.
func Open(params Params, options *Options) (*Bridge, error) {
	if options == nil {
		options = &Options{}
	}
	ctx := options.Context
	if ctx == nil {
		ctx = context.Background()
	}

	fresh := true
	if info, statErr := os.Stat(params.ShmPath); statErr == nil && info.Size() == constants.RegionSize {
		fresh = false
	}

	region, err := memregion.Open(params.ShmPath, params.Create)
	if err != nil {
		return nil, fmt.Errorf("open shared region %s: %w", params.ShmPath, err)
	}

	b, err := newBridge(region, params, options, ctx)
	if err != nil {
		region.Close()
		return nil, err
	}
	if params.Create && fresh {
		b.initSubstrate()
	}
	b.verifyInitialization()
	return b, nil
}

// newBridge wires every component over an already-open region. Split
// out from Open so tests can supply an in-process region instead of
// an mmap'd file.
func newBridge(region *memregion.Region, params Params, options *Options, ctx context.Context) (*Bridge, error) {
	h := heap.New(region, constants.HeapControlOffset, constants.HeapDataOffset, constants.HeapDataSize)

	cmdRing := ring.New(region, constants.CmdRingOffset, constants.CmdPacketSize, proto.MagicCmdRing)
	rspRing := ring.New(region, constants.RspRingOffset, constants.RspPacketSize, proto.MagicRspRing)
	obsRing := ring.New(region, constants.ObsRingOffset, constants.ObsEntrySize, proto.MagicObsRing)
	actRing := ring.New(region, constants.ActRingOffset, constants.ActEntrySize, proto.MagicActRing)
	door := doorbell.New(region, constants.DoorbellOffset)

	models := model.NewCache(params.ModelsDir)
	cartpole := env.New(params.EnvSeed)
	arb := arbiter.NewClient(params.ArbiterURL, params.ArbiterProfileEnv)

	pollInterval := params.PollInterval
	if pollInterval <= 0 {
		pollInterval = constants.DefaultPollInterval
	}

	hctx := handlers.NewContext(h, models, params.ModelsDir, cartpole, arb, params.IFRDir, params.Telemetry, obsRing, actRing)

	metrics := NewMetrics()
	var observer Observer = NewMetricsObserver(metrics)
	if options.Observer != nil {
		observer = options.Observer
	}

	bctx, cancel := context.WithCancel(ctx)

	return &Bridge{
		region:       region,
		heap:         h,
		cmdRing:      cmdRing,
		rspRing:      rspRing,
		obsRing:      obsRing,
		actRing:      actRing,
		door:         door,
		registry:     handlers.Registry(),
		ctxData:      hctx,
		pollInterval: pollInterval,
		ctx:          bctx,
		cancel:       cancel,
		metrics:      metrics,
		observer:     observer,
		done:         make(chan struct{}),
	}, nil
}

// initSubstrate writes fresh headers for every ring, the doorbell,
// and the heap. Only called when the backing file was just created.
// Slot counts leave room for the 32-byte ring header so the last slot
// never crosses into the next section.
func (b *Bridge) initSubstrate() {
	b.cmdRing.Init(uint32((constants.CmdRingSize - constants.RingHeaderSize) / constants.CmdPacketSize))
	b.rspRing.Init(uint32((constants.RspRingSize - constants.RingHeaderSize) / constants.RspPacketSize))
	b.obsRing.Init(uint32((constants.ObsRingSize - constants.RingHeaderSize) / constants.ObsEntrySize))
	b.actRing.Init(uint32((constants.ActRingSize - constants.RingHeaderSize) / constants.ActEntrySize))
	b.door.Init()
	b.heap.Init()
}

// verifyInitialization checks ring and doorbell magics, logging
// non-fatal warnings when unset — the peer may finish its side of
// initialization after the host maps the region.
func (b *Bridge) verifyInitialization() {
	if !b.cmdRing.Valid() {
		logging.Default().Warnf("bridge: command ring magic unset, waiting on peer initialization")
	}
	if !b.rspRing.Valid() {
		logging.Default().Warnf("bridge: response ring magic unset, waiting on peer initialization")
	}
	if !b.obsRing.Valid() {
		logging.Default().Warnf("bridge: observation ring magic unset, streaming unavailable until initialized")
	}
	if !b.actRing.Valid() {
		logging.Default().Warnf("bridge: action ring magic unset, streaming unavailable until initialized")
	}
	if !b.door.Valid() {
		logging.Default().Warnf("bridge: doorbell magic unset, waiting on peer initialization")
	}
}

// Metrics returns the bridge's metrics instance. It is never nil; when
// a custom Observer was supplied, the dispatch loop reports to that
// Observer and does not record into this instance.
func (b *Bridge) Metrics() *Metrics {
	return b.metrics
}

// ModelState exposes the Baseline/Candidate model lifecycle state.
func (b *Bridge) ModelState() *handlers.ModelState {
	return b.ctxData.ModelState
}

// Serve runs the poll loop until the bridge's context is cancelled.
// It blocks the calling goroutine; run it in a goroutine of the
// caller's choosing to serve asynchronously.
func (b *Bridge) Serve() {
	defer close(b.done)
	for {
		select {
		case <-b.ctx.Done():
			return
		default:
			b.pollOnce()
		}
	}
}

// pollOnce attempts to consume one command and one streaming step,
// then dispatches the command if one was pending. It sleeps only when
// no command was pending and streaming mode is off; while streaming
// is active it polls again without sleeping.
func (b *Bridge) pollOnce() {
	raw, ok := b.cmdRing.Consume()
	didStream := b.streamStep()

	if !ok {
		if !didStream {
			time.Sleep(b.pollInterval)
		}
		return
	}

	cmd := proto.DecodeCmdPacket(raw)
	b.dispatch(cmd)
}

func (b *Bridge) streamStep() bool {
	if !b.ctxData.Streaming() {
		return false
	}
	if err := handlers.StreamStep(b.ctxData); err != nil {
		logging.Default().Warnf("bridge: streaming step: %v", err)
	}
	return true
}

// dispatch looks up and times the handler for cmd, then publishes a
// response packet and rings the response doorbell.
func (b *Bridge) dispatch(cmd proto.CmdPacket) {
	handler, known := b.registry[cmd.Cmd]

	var status uint16
	var result uint32
	var elapsed time.Duration

	if !known {
		status = proto.StatusError
		logging.Default().Warnf("bridge: unknown command %#x", cmd.Cmd)
	} else {
		start := time.Now()
		res := handler(b.ctxData, cmd)
		elapsed = time.Since(start)
		status = res.Status
		result = res.Value
	}

	success := status == proto.StatusOK
	b.observer.ObserveCommand(uint64(elapsed.Nanoseconds()), success)

	timestamp := uint64(elapsed.Microseconds())
	if timestamp == 0 {
		timestamp = uint64(time.Now().UnixMicro())
	}

	rsp := proto.RspPacket{Status: status, OrigCmd: cmd.Cmd, Result: result, Timestamp: timestamp}
	buf := make([]byte, proto.RspPacketSize)
	proto.EncodeRspPacket(&rsp, buf)
	if err := b.rspRing.Produce(buf); err != nil {
		logging.Default().Warnf("bridge: publish response for cmd %#x: %v", cmd.Cmd, err)
		return
	}
	b.door.RingRspDoorbell()
	b.observer.ObserveResponse()
}

// Close cancels the dispatch loop, waits for Serve to return, and
// unmaps the backing region.
func (b *Bridge) Close() error {
	b.cancel()
	<-b.done
	b.metrics.Stop()
	return b.region.Close()
}

// EnsureBackingFile creates path as a zero-filled file of exactly
// constants.RegionSize bytes if it does not already exist with that
// size, without mapping it. Exposed for callers (e.g. the CLI) that
// want to report a clearer error before Open attempts the mmap.
func EnsureBackingFile(path string) error {
	info, err := os.Stat(path)
	if err == nil && info.Size() == constants.RegionSize {
		return nil
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Truncate(constants.RegionSize)
}
