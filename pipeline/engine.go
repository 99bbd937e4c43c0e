// Package pipeline drives a compression accelerator over a stream of
// bricks with a small arena of device buffer slots. With overlap
// enabled the arena holds two slot sets and ownership alternates brick
// by brick: while the accelerator processes one set, the host unpacks
// the previous result and packs the next brick into the other. At most
// one set is accelerator-owned at any instant.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/brickpress/brickpress/codec"
	"github.com/brickpress/brickpress/common"
	"github.com/brickpress/brickpress/device"
	"github.com/brickpress/brickpress/frame"
)

// Config fixes one run of the engine. The zero value is not usable;
// callers go through the root package defaults.
type Config struct {
	Geometry    common.Geometry
	Compression codec.CompressionType
	Format      frame.Format
	// Overlap enables the two-set arena. Without it the engine runs the
	// reference sequence, submit then wait then unpack, on a single set;
	// the emitted stream is byte-identical either way.
	Overlap bool
	// InBank and OutBank place the input and output side buffers of
	// every slot set.
	InBank  device.Bank
	OutBank device.Bank
}

// Stats are cumulative counters of one engine run.
type Stats struct {
	// Bricks is the number of kernel dispatches.
	Bricks int64
	// Blocks is the number of records emitted.
	Blocks int64
	// RawBlocks counts blocks whose kernel output did not beat the raw
	// length and that were emitted from the staging region instead.
	RawBlocks int64
	// BytesIn is the input bytes consumed.
	BytesIn int64
	// BytesOut is the bytes written to the sink, envelope included.
	BytesOut int64
	// WaitTime is the total time spent blocked on the accelerator.
	WaitTime time.Duration
}

// Engine owns the pack, submit, wait, unpack sequencing of a run. It is
// a single logical thread of control: slot ownership alternates with
// the brick parity, so no locking is needed on the host side.
type Engine struct {
	dev    device.IDevice
	sink   *countingWriter
	fw     frame.IFrameWriter
	geom   common.Geometry
	stride int

	slots []*slot
	// active indexes the slot currently being packed. Dispatching
	// advances it by one, modulo the arena depth.
	active int

	headerWritten bool
	finished      bool
	released      bool
	err           error

	stats Stats
}

// New allocates the slot arena on the device and binds the engine to a
// sink. Release must be called on every path once the engine is done,
// successful or not.
func New(dev device.IDevice, sink io.Writer, cfg Config) (*Engine, error) {
	if err := cfg.Geometry.Validate(); err != nil {
		return nil, err
	}
	if err := validateProfile(cfg.Format, cfg.Compression, cfg.Geometry.BlockSize); err != nil {
		return nil, err
	}
	if dev.Compression() != cfg.Compression {
		return nil, fmt.Errorf("%w: device kernel compresses %s, run configured for %s",
			common.InvalidConfigError, dev.Compression(), cfg.Compression)
	}

	comp := codec.NewCompressor(cfg.Compression)
	e := &Engine{
		dev:    dev,
		sink:   &countingWriter{w: sink},
		fw:     frame.NewFrameWriter(cfg.Format, cfg.Compression, cfg.Geometry.BlockSize),
		geom:   cfg.Geometry,
		stride: comp.CompressBound(cfg.Geometry.BlockSize),
	}

	depth := 2
	if !cfg.Overlap {
		depth = 1
	}
	for i := 0; i < depth; i++ {
		s, err := newSlot(dev, cfg.Geometry, e.stride, cfg.InBank, cfg.OutBank)
		if err != nil {
			e.Release()
			return nil, err
		}
		e.slots = append(e.slots, s)
	}
	return e, nil
}

// validateProfile rejects codec, container and block size combinations
// the container cannot represent, before any device memory is claimed.
func validateProfile(f frame.Format, ct codec.CompressionType, blockSize int) error {
	switch f {
	case frame.Lz4FrameFormat:
		if ct != codec.Lz4Compression {
			return fmt.Errorf("%w: the lz4 frame container carries lz4 blocks only, not %s",
				common.InvalidConfigError, ct)
		}
		if !frame.IsValidLz4BlockSize(blockSize) {
			return fmt.Errorf("%w: %d is not an lz4 frame block size", common.InvalidConfigError, blockSize)
		}
	case frame.SnappyFramingFormat:
		if ct != codec.SnappyCompression {
			return fmt.Errorf("%w: the snappy framing container carries snappy chunks only, not %s",
				common.InvalidConfigError, ct)
		}
		if blockSize > frame.SnappyMaxBlockSize {
			return fmt.Errorf("%w: block size %d exceeds the snappy framing chunk limit %d",
				common.InvalidConfigError, blockSize, frame.SnappyMaxBlockSize)
		}
	case frame.NativeFormat:
		if ct == codec.UnknownCompression {
			return fmt.Errorf("%w: no compression algorithm selected", common.InvalidConfigError)
		}
		if blockSize < 1<<8 || blockSize > 1<<30 || blockSize&(blockSize-1) != 0 {
			return fmt.Errorf("%w: native container block size must be a power of two between 256B and 1GiB, got %d",
				common.InvalidConfigError, blockSize)
		}
	default:
		return fmt.Errorf("%w: unknown container format", common.InvalidConfigError)
	}
	return nil
}

// Feed stages input bytes, dispatching a brick whenever the staging
// region fills. It blocks only when every slot set is busy, which is
// the pipeline's back pressure. Once Feed returns an error the run is
// dead; only Release is left to call.
func (e *Engine) Feed(ctx context.Context, p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	if e.finished {
		return 0, fmt.Errorf("%w: feed after finish", common.InvalidConfigError)
	}

	total := 0
	for len(p) > 0 {
		s := e.slots[e.active]
		n := s.stage(p, e.geom.BrickSize())
		total += n
		p = p[n:]
		e.stats.BytesIn += int64(n)

		if s.fill == e.geom.BrickSize() {
			if err := e.dispatch(ctx); err != nil {
				e.err = err
				return total, err
			}
		}
	}
	return total, nil
}

// Finish flushes the final brick, drains every outstanding dispatch in
// submission order, and terminates the stream. A finished engine
// accepts no more input. An empty run still emits the container header
// and terminator.
func (e *Engine) Finish(ctx context.Context) error {
	if e.err != nil {
		return e.err
	}
	if e.finished {
		return nil
	}

	if e.slots[e.active].fill > 0 {
		if err := e.dispatch(ctx); err != nil {
			e.err = err
			return err
		}
	}
	// Outstanding dispatches sit behind the active index, oldest first.
	for i := 1; i <= len(e.slots); i++ {
		if err := e.reclaim(ctx, e.slots[(e.active+i)%len(e.slots)]); err != nil {
			e.err = err
			return err
		}
	}

	if err := e.ensureHeader(); err != nil {
		e.err = err
		return err
	}
	if err := e.fw.WriteTrailer(e.sink); err != nil {
		e.err = err
		return err
	}
	e.finished = true
	return nil
}

// Release drains anything still on the device and frees the slot sets.
// It is idempotent, and safe after a failed or cancelled run: an
// in-flight dispatch is always drained, never abandoned, so no device
// memory leaks.
func (e *Engine) Release() {
	if e.released {
		return
	}
	e.released = true
	for _, s := range e.slots {
		if s.handle != nil {
			_ = s.handle.Wait(context.Background())
			s.handle = nil
		}
		s.free()
	}
}

// Err returns the error that killed the run, if any.
func (e *Engine) Err() error {
	return e.err
}

// Stats snapshots the run counters.
func (e *Engine) Stats() Stats {
	st := e.stats
	st.BytesOut = e.sink.n
	return st
}

// dispatch submits the active brick and rotates the arena, reclaiming
// the slot the rotation lands on so it is host-owned before the next
// pack touches it.
func (e *Engine) dispatch(ctx context.Context) error {
	s := e.slots[e.active]
	if err := s.pack(e.geom); err != nil {
		return err
	}
	h, err := e.dev.Submit(device.Job{
		In:         s.in,
		Out:        s.out,
		InSizes:    s.inSizes,
		OutSizes:   s.outSizes,
		BlockSize:  e.geom.BlockSize,
		BlockCount: s.blocks,
		OutStride:  e.stride,
	})
	if err != nil {
		return err
	}
	s.handle = h
	e.stats.Bricks++

	e.active = (e.active + 1) % len(e.slots)
	return e.reclaim(ctx, e.slots[e.active])
}

// reclaim waits for a slot's outstanding dispatch, emits its records,
// and hands the slot back to the host. Slots without a pending handle
// pass through untouched.
func (e *Engine) reclaim(ctx context.Context, s *slot) error {
	if s.handle == nil {
		return nil
	}
	start := time.Now()
	err := s.handle.Wait(ctx)
	e.stats.WaitTime += time.Since(start)
	s.handle = nil
	if err != nil {
		return err
	}

	if err := s.out.SyncFromDevice(); err != nil {
		return err
	}
	if err := s.outSizes.SyncFromDevice(); err != nil {
		return err
	}
	return e.emit(s)
}

// emit appends one record per valid block of a reclaimed slot, in block
// order. Blocks the kernel reported incompressible, or whose reported
// size did not beat the raw length, are emitted from the still intact
// staging region.
func (e *Engine) emit(s *slot) error {
	if err := e.ensureHeader(); err != nil {
		return err
	}

	out := s.out.Bytes()
	outSizes := s.outSizes.Bytes()
	for i := 0; i < s.blocks; i++ {
		rawLen := s.blockLen(e.geom.BlockSize, i)
		raw := s.in.Bytes()[i*e.geom.BlockSize : i*e.geom.BlockSize+rawLen]

		n := int(device.SizeEntry(outSizes, i))
		if n > e.stride {
			return fmt.Errorf("%w: block %d reports %d output bytes, stride is %d",
				common.DeviceFaultError, i, n, e.stride)
		}
		var compressed []byte
		if n > 0 && n < rawLen {
			compressed = out[i*e.stride : i*e.stride+n]
		} else {
			e.stats.RawBlocks++
		}

		if err := e.fw.WriteBlock(e.sink, compressed, raw); err != nil {
			return err
		}
		e.stats.Blocks++
	}
	s.reset()
	return nil
}

func (e *Engine) ensureHeader() error {
	if e.headerWritten {
		return nil
	}
	if err := e.fw.WriteHeader(e.sink); err != nil {
		return err
	}
	e.headerWritten = true
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}
