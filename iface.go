// Package brickpress compresses byte streams through a brick-granular
// compression accelerator, overlapping host-side packing and unpacking
// with the accelerator's work via two alternating device buffer slots.
// The emitted containers are interoperable where the ecosystem defines
// one: lz4 streams open with any lz4 frame decoder and snappy streams
// with any framing-format decoder.
package brickpress

import (
	"io"

	"github.com/brickpress/brickpress/frame"
	"github.com/brickpress/brickpress/pipeline"
)

// Streams are either created for writing or opened for reading but not both.

// IWriter is the streaming side of the compressor.
type IWriter interface {
	// Write stages p into the pipeline. It is safe to modify p after
	// Write returns. Write blocks only while every slot set is busy,
	// which is the pipeline's back pressure.
	Write(p []byte) (int, error)

	// Close flushes the final brick, terminates the stream and finishes
	// the sink object. When the run has failed, Close aborts the sink
	// instead, so a partial object never becomes visible.
	// No further calls are allowed after Close.
	Close() error

	// Abort gives up on the run: the in-flight dispatch is drained, the
	// device memory freed, and the partial object discarded.
	// No further calls are allowed after Abort.
	Abort()

	// Stats snapshots the run counters.
	Stats() pipeline.Stats
}

// IReader is the streaming decompressor.
type IReader interface {
	io.ReadCloser

	// Header reveals what the container header declared about the
	// stream.
	Header() frame.Header
}
