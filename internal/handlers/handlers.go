package handlers

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/zen-systems/edgebridge/internal/errs"
	"github.com/zen-systems/edgebridge/internal/ifrcodec"
	"github.com/zen-systems/edgebridge/internal/logging"
	"github.com/zen-systems/edgebridge/internal/proto"
)

// Result is what a handler hands back to the dispatch loop: a status
// code and a 32-bit result word, commonly a blob id.
type Result struct {
	Status uint16
	Value  uint32
}

func ok(v uint32) Result   { return Result{Status: proto.StatusOK, Value: v} }
func fail(v uint32) Result { return Result{Status: proto.StatusError, Value: v} }
func okZero() Result       { return Result{Status: proto.StatusOK} }

// Handler dispatches one command-ring entry and returns its response.
type Handler func(ctx *Context, cmd proto.CmdPacket) Result

// Registry maps each command id to its handler.
func Registry() map[uint16]Handler {
	return map[uint16]Handler{
		proto.CmdPing:        Ping,
		proto.CmdPrint:       Print,
		proto.CmdRunModel:    RunModel,
		proto.CmdIFRPersist:  IFRPersist,
		proto.CmdTelemetry:   TelemetryPoll,
		proto.CmdEnvReset:    EnvReset,
		proto.CmdEnvStep:     EnvStep,
		proto.CmdArbEpisode:  ArbEpisode,
		proto.CmdTensorAlloc: TensorAlloc,
		proto.CmdTensorFree:  TensorFree,
		proto.CmdHeapStats:   HeapStats,
		proto.CmdModelLoad:   ModelLoad,
	}
}

// Ping answers with status OK and a zero result.
func Ping(ctx *Context, cmd proto.CmdPacket) Result {
	return okZero()
}

// Print logs the blob named by payload_id as a NUL-terminated string
// and answers OK.
func Print(ctx *Context, cmd proto.CmdPacket) Result {
	blobID := uint16(cmd.PayloadID)
	data, err := ctx.Heap.ReadBlobData(blobID)
	if err != nil {
		logging.Default().Warnf("print: blob %d: %v", blobID, err)
		return fail(0)
	}
	logging.Default().Infof("print: %s", nulTerminated(data))
	return okZero()
}

// RunModel runs the tensor blob named by payload_id through a model
// selected by its shape, allocating a fresh tensor blob for the
// output.
func RunModel(ctx *Context, cmd proto.CmdPacket) Result {
	const op = "handlers.RunModel"
	blobID := uint16(cmd.PayloadID)

	th, data, err := ctx.Heap.ReadTensor(blobID)
	if err != nil {
		logging.Default().Warnf("%s: read tensor %d: %v", op, blobID, err)
		return fail(0)
	}

	input, err := tensorToF32(th, data)
	if err != nil {
		logging.Default().Warnf("%s: decode tensor %d: %v", op, blobID, err)
		return fail(0)
	}

	shape := make([]int, th.Ndim)
	for i := 0; i < int(th.Ndim); i++ {
		shape[i] = int(th.Shape[i])
	}

	name := "default"
	if th.Ndim == 2 && th.Shape[0] == 1 && th.Shape[1] == 784 {
		name = "linear"
	}
	m, err := ctx.Models.GetOrLoad(name)
	if err != nil {
		logging.Default().Warnf("%s: load model %q: %v", op, name, err)
		return fail(0)
	}

	output, outShape, err := m.Forward(input, shape)
	if err != nil {
		logging.Default().Warnf("%s: forward: %v", op, err)
		return fail(0)
	}

	outBytes := f32ToBytes(output)
	outTh := proto.TensorHeader{Dtype: proto.DtypeF32, Ndim: uint8(len(outShape))}
	for i, d := range outShape {
		outTh.Shape[i] = uint32(d)
	}
	outTh.FillByteStrides()
	resultID, err := ctx.Heap.AllocateBlob(uint32(proto.TensorHdrSize+len(outBytes)), proto.BlobTypeTensor)
	if err != nil {
		logging.Default().Warnf("%s: allocate result blob: %v", op, err)
		return fail(0)
	}
	if err := ctx.Heap.WriteTensorToBlob(resultID, outTh, outBytes); err != nil {
		logging.Default().Warnf("%s: write result tensor: %v", op, err)
		return fail(0)
	}

	return ok(uint32(resultID))
}

// IFRPersist parses and verifies the IFR blob named by payload_id,
// persists it to disk regardless of verification outcome, and answers
// ERROR if any hash or chain check failed. Records that do not parse
// at all are not persisted.
func IFRPersist(ctx *Context, cmd proto.CmdPacket) Result {
	const op = "handlers.IFRPersist"
	blobID := uint16(cmd.PayloadID)

	raw, err := ctx.Heap.ReadBlobData(blobID)
	if err != nil {
		logging.Default().Warnf("%s: read blob %d: %v", op, blobID, err)
		return fail(0)
	}

	record, err := ifrcodec.Parse(raw)
	if err != nil {
		logging.Default().Warnf("%s: parse: %v", op, err)
		return fail(0)
	}

	if _, _, err := ifrcodec.Persist(ctx.IFRDir, record, raw, time.Now().Unix()); err != nil {
		logging.Default().Warnf("%s: persist: %v", op, err)
		return fail(0)
	}

	if !record.Valid() {
		return fail(record.JobID)
	}
	return ok(record.JobID)
}

// TelemetryPoll allocates a RAW blob holding the current synthetic
// telemetry sample and answers with its blob id.
func TelemetryPoll(ctx *Context, cmd proto.CmdPacket) Result {
	const op = "handlers.TelemetryPoll"
	const sampleSize = 20 // ts_usec:u64, gpu_temp:f32, rdma_qp_depth:f32, numa_locality:f32

	buf := make([]byte, sampleSize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(time.Now().UnixMicro()))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(ctx.Telemetry.GPUTempC))
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(ctx.Telemetry.RDMAQPDepth))
	binary.LittleEndian.PutUint32(buf[16:20], math.Float32bits(ctx.Telemetry.NUMALocality))

	blobID, err := ctx.Heap.AllocateBlob(sampleSize, proto.BlobTypeRaw)
	if err != nil {
		logging.Default().Warnf("%s: allocate: %v", op, err)
		return fail(0)
	}
	if err := ctx.Heap.WriteBlobData(blobID, buf); err != nil {
		logging.Default().Warnf("%s: write: %v", op, err)
		return fail(0)
	}
	return ok(uint32(blobID))
}

// EnvReset resets the RL environment, lazily uploading the initial
// linear policy on first use, and either enters streaming mode
// (pushing the first observation onto the obs ring with seq=0) or
// returns a pre-allocated pooled observation blob id, selected by
// proto.StreamFlag in payload_id.
func EnvReset(ctx *Context, cmd proto.CmdPacket) Result {
	const op = "handlers.EnvReset"

	ctx.ensurePolicyUploaded()

	obs := ctx.Env.Reset()
	modelID := float32(ctx.ModelState.Current())

	if cmd.PayloadID&proto.StreamFlag != 0 {
		if ctx.ObsRing != nil && ctx.ActRing != nil && ctx.ObsRing.Valid() && ctx.ActRing.Valid() {
			ctx.SetStreaming(true)
			entry := proto.ObsEntry{Seq: 0, Obs: obs, Reward: 0, Done: 0, ModelID: modelID}
			buf := make([]byte, proto.ObsEntrySize)
			proto.EncodeObsEntry(&entry, buf)
			if err := ctx.ObsRing.Produce(buf); err != nil {
				logging.Default().Warnf("%s: produce initial obs: %v", op, err)
				return fail(0)
			}
			return okZero()
		}
		logging.Default().Warnf("%s: streaming requested but rings are not healthy, answering with pooled blob", op)
	}

	ctx.SetStreaming(false)
	blobID, err := ctx.nextObsBlob()
	if err != nil {
		logging.Default().Warnf("%s: allocate obs blob: %v", op, err)
		return fail(0)
	}
	if err := ctx.writeObsEntry(blobID, obs, 0, 0, modelID); err != nil {
		logging.Default().Warnf("%s: write obs blob: %v", op, err)
		return fail(0)
	}
	return ok(uint32(blobID))
}

// ensurePolicyUploaded allocates a TENSOR blob in the shared heap on
// the first reset and writes a hand-set linear policy into it
// (weights chosen by a CartPole balancing heuristic: angle*1.0 +
// ang_vel*0.5 + vel*0.5 > 0 => push right), so a peer can read the
// policy straight out of shared memory instead of training one.
func (c *Context) ensurePolicyUploaded() {
	c.policyOnce.Do(func() {
		weights := []float32{0.0, 0.5, 1.0, 0.5}
		th := proto.TensorHeader{Dtype: proto.DtypeF32, Ndim: 1, Shape: [4]uint32{4}}
		th.FillByteStrides()
		id, err := c.Heap.AllocateBlob(uint32(proto.TensorHdrSize+len(weights)*4), proto.BlobTypeTensor)
		if err != nil {
			logging.Default().Warnf("handlers.EnvReset: upload initial policy: %v", err)
			return
		}
		if err := c.Heap.WriteTensorToBlob(id, th, f32ToBytes(weights)); err != nil {
			logging.Default().Warnf("handlers.EnvReset: write initial policy: %v", err)
			return
		}
		c.policyBlobID = id
	})
}

// EnvStep decodes the pooled ack blob id and action from payload_id,
// steps the environment, recycles the ack blob, and returns a fresh
// pooled observation blob. Refuses with ERROR while streaming mode is
// active.
func EnvStep(ctx *Context, cmd proto.CmdPacket) Result {
	const op = "handlers.EnvStep"

	if ctx.Streaming() {
		logging.Default().Warnf("%s: called while streaming is active", op)
		return fail(0)
	}

	actionVal, ackBlobID := proto.UnpackStepPayload(cmd.PayloadID)
	action := int(actionVal)

	if ackBlobID != 0 && !ctx.releaseObsBlob(ackBlobID) {
		logging.Default().Warnf("%s: acked blob %d is not an obs pool member, ignoring", op, ackBlobID)
	}

	obs, reward, done := ctx.Env.Step(action)
	modelID := float32(ctx.ModelState.Current())

	blobID, err := ctx.nextObsBlob()
	if err != nil {
		logging.Default().Warnf("%s: allocate obs blob: %v", op, err)
		return fail(0)
	}
	doneF := float32(0)
	if done {
		doneF = 1
	}
	if err := ctx.writeObsEntry(blobID, obs, reward, doneF, modelID); err != nil {
		logging.Default().Warnf("%s: write obs blob: %v", op, err)
		return fail(0)
	}
	return ok(uint32(blobID))
}

// StreamStep performs one streaming-mode action/observation exchange:
// consume at most one pending action entry, step the environment, and
// publish the resulting observation with seq = action.seq + 1. A
// no-op when streaming is inactive or no action is pending, so the
// dispatch loop can call it unconditionally every iteration.
func StreamStep(ctx *Context) error {
	if !ctx.Streaming() || ctx.ActRing == nil || ctx.ObsRing == nil {
		return nil
	}
	raw, ok := ctx.ActRing.Consume()
	if !ok {
		return nil
	}
	act := proto.DecodeActEntry(raw)

	obs, reward, done := ctx.Env.Step(int(act.Action))
	modelID := float32(ctx.ModelState.Current())
	doneF := float32(0)
	if done {
		doneF = 1
	}

	entry := proto.ObsEntry{Seq: act.Seq + 1, Obs: obs, Reward: reward, Done: doneF, ModelID: modelID}
	buf := make([]byte, proto.ObsEntrySize)
	proto.EncodeObsEntry(&entry, buf)

	if err := ctx.ObsRing.Produce(buf); err != nil {
		return errs.Wrap("handlers.StreamStep", errs.CodeRingFull, err)
	}
	if done {
		ctx.SetStreaming(false)
	}
	return nil
}

// ArbEpisode verifies the IFR blob named by payload_id, submits it to
// the arbiter, applies the returned decision to the model lifecycle,
// and answers with (decision_code<<16)|(model_id&0xFFFF).
func ArbEpisode(ctx *Context, cmd proto.CmdPacket) Result {
	const op = "handlers.ArbEpisode"
	blobID := uint16(cmd.PayloadID)

	raw, err := ctx.Heap.ReadBlobData(blobID)
	if err != nil {
		logging.Default().Warnf("%s: read blob %d: %v", op, blobID, err)
		return fail(0)
	}
	record, err := ifrcodec.Parse(raw)
	if err != nil {
		logging.Default().Warnf("%s: parse: %v", op, err)
		return fail(0)
	}

	decision := ctx.Arbiter.QueryNextProfile(context.Background(), raw, record)
	modelID := ctx.ModelState.ApplyDecision(decision.DecisionCode, decision.RecommendedModelID)

	result := (uint32(decision.DecisionCode) << 16) | (modelID & 0xFFFF)
	if !record.Valid() {
		return fail(result)
	}
	return ok(result)
}

// TensorAlloc allocates a TENSOR blob of the size encoded in
// payload_id, defaulting to 1024 bytes when 0.
func TensorAlloc(ctx *Context, cmd proto.CmdPacket) Result {
	size := cmd.PayloadID
	if size == 0 {
		size = 1024
	}
	blobID, err := ctx.Heap.AllocateBlob(size, proto.BlobTypeTensor)
	if err != nil {
		logging.Default().Warnf("handlers.TensorAlloc: %v", err)
		return fail(0)
	}
	return ok(uint32(blobID))
}

// TensorFree frees the blob named by payload_id.
func TensorFree(ctx *Context, cmd proto.CmdPacket) Result {
	blobID := uint16(cmd.PayloadID)
	if err := ctx.Heap.FreeBlob(blobID); err != nil {
		logging.Default().Warnf("handlers.TensorFree: %v", err)
		return fail(0)
	}
	return okZero()
}

// HeapStats returns the heap's free block count as the result.
func HeapStats(ctx *Context, cmd proto.CmdPacket) Result {
	return ok(ctx.Heap.Stats().FreeBlocks)
}

// ModelLoad loads the default model when payload_id is 0, or reads
// the blob named by payload_id as a model name string otherwise.
func ModelLoad(ctx *Context, cmd proto.CmdPacket) Result {
	name := "default"
	if cmd.PayloadID != 0 {
		data, err := ctx.Heap.ReadBlobData(uint16(cmd.PayloadID))
		if err != nil {
			logging.Default().Warnf("handlers.ModelLoad: read name blob: %v", err)
			return fail(0)
		}
		name = nulTerminated(data)
	}
	if _, err := ctx.Models.GetOrLoad(name); err != nil {
		logging.Default().Warnf("handlers.ModelLoad: %q: %v", name, err)
		return fail(0)
	}
	return okZero()
}

// nulTerminated interprets data up to the first NUL as the string
// content, matching how the peer writes fixed-size name buffers.
func nulTerminated(data []byte) string {
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	return string(data)
}

func tensorToF32(th proto.TensorHeader, data []byte) ([]float32, error) {
	if th.Dtype != proto.DtypeF32 {
		return nil, fmt.Errorf("unsupported dtype %d for model input", th.Dtype)
	}
	n := len(data) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4 : i*4+4]))
	}
	return out, nil
}

func f32ToBytes(vals []float32) []byte {
	out := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[i*4:i*4+4], math.Float32bits(v))
	}
	return out
}
