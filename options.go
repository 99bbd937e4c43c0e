package brickpress

import (
	"context"

	"github.com/brickpress/brickpress/codec"
	"github.com/brickpress/brickpress/common"
	"github.com/brickpress/brickpress/device"
	"github.com/brickpress/brickpress/frame"
	"github.com/brickpress/brickpress/pipeline"
)

// Opt adjusts one run of the compressor.
type Opt func(o *runOptions)

type runOptions struct {
	ctx         context.Context
	geometry    common.Geometry
	algorithm   codec.CompressionType
	format      frame.Format
	overlap     bool
	inBank      device.Bank
	outBank     device.Bank
	concurrency int
}

func defaultRunOptions() *runOptions {
	return &runOptions{
		ctx:         context.Background(),
		geometry:    common.DefaultGeometry(),
		overlap:     true,
		inBank:      0,
		outBank:     1,
		concurrency: defaultBatchConcurrency,
	}
}

// resolve fills the algorithm and container defaults from the device
// the run will use: the kernel's own codec, framed the interoperable
// way when one exists.
func (o *runOptions) resolve(dev device.IDevice) {
	if o.algorithm == codec.UnknownCompression {
		o.algorithm = dev.Compression()
	}
	if o.format == frame.UnknownFormat {
		o.format = frame.DefaultFormat(o.algorithm)
	}
}

func (o *runOptions) engineConfig() pipeline.Config {
	return pipeline.Config{
		Geometry:    o.geometry,
		Compression: o.algorithm,
		Format:      o.format,
		Overlap:     o.overlap,
		InBank:      o.inBank,
		OutBank:     o.outBank,
	}
}

// WithAlgorithm pins the block codec. The default is whatever codec the
// device's kernel runs, and a mismatch with the device fails the run
// before any memory is claimed.
func WithAlgorithm(ct codec.CompressionType) Opt {
	return func(o *runOptions) {
		o.algorithm = ct
	}
}

// WithFormat forces a container. The default is the interoperable
// container of the chosen algorithm, or the native one when no
// interoperable framing exists.
func WithFormat(f frame.Format) Opt {
	return func(o *runOptions) {
		o.format = f
	}
}

// WithBlockSize sets the per-block payload size handed to the kernel.
// The lz4 frame container restricts it to 64K, 256K, 1M or 4M.
func WithBlockSize(n int) Opt {
	return func(o *runOptions) {
		o.geometry.BlockSize = n
	}
}

// WithBlocksPerBrick sets how many blocks one kernel dispatch consumes.
func WithBlocksPerBrick(k int) Opt {
	return func(o *runOptions) {
		o.geometry.BlocksPerBrick = k
	}
}

// WithGeometry replaces the whole dispatch shape at once.
func WithGeometry(g common.Geometry) Opt {
	return func(o *runOptions) {
		o.geometry = g
	}
}

// WithoutOverlap runs the reference schedule instead: submit, wait,
// unpack, one brick at a time on a single slot set. The emitted stream
// is byte-identical to the pipelined schedule.
func WithoutOverlap() Opt {
	return func(o *runOptions) {
		o.overlap = false
	}
}

// WithBankPlacement places the input and output side buffers of every
// slot set in the given device memory banks.
func WithBankPlacement(in, out device.Bank) Opt {
	return func(o *runOptions) {
		o.inBank = in
		o.outBank = out
	}
}

// WithContext attaches a context to the run. Cancelling it drains the
// in-flight dispatch, then aborts the run.
func WithContext(ctx context.Context) Opt {
	return func(o *runOptions) {
		o.ctx = ctx
	}
}

// WithConcurrency bounds how many objects a batch run compresses at
// once.
func WithConcurrency(n int) Opt {
	return func(o *runOptions) {
		o.concurrency = n
	}
}
