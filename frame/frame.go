// Package frame implements the stream containers the compressor can
// emit: a minimal interoperable LZ4 frame, the snappy framing format,
// and a native container that can carry any block codec. A container is
// a fixed header, one length-prefixed record per block, and a
// profile-specific end of stream.
package frame

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/brickpress/brickpress/codec"
	"github.com/brickpress/brickpress/common"
)

type Format byte

const (
	UnknownFormat Format = iota
	// Lz4FrameFormat is the standard LZ4 frame: magic, frame descriptor,
	// length-prefixed blocks with a raw-block flag bit, zero EndMark.
	Lz4FrameFormat
	// SnappyFramingFormat is the snappy framing format: stream identifier
	// chunk, then one compressed or uncompressed chunk per block, each
	// carrying a masked CRC-32C of the raw bytes.
	SnappyFramingFormat
	// NativeFormat is the container used when no interoperable framing
	// exists for the configured codec: magic, method byte, block size
	// log, length-prefixed records, zero terminator.
	NativeFormat
)

func (f Format) String() string {
	switch f {
	case Lz4FrameFormat:
		return "lz4-frame"
	case SnappyFramingFormat:
		return "snappy-framing"
	case NativeFormat:
		return "native"
	default:
		return "unknown"
	}
}

// Detect reports which container a stream opens with, given its first
// four bytes. Every container magic is four bytes long, so detection
// never consumes past the header.
func Detect(head []byte) (Format, error) {
	if len(head) < 4 {
		return UnknownFormat, fmt.Errorf("%w: stream shorter than a container magic", common.CorruptedStreamError)
	}
	switch {
	case binary.LittleEndian.Uint32(head) == lz4FrameMagic:
		return Lz4FrameFormat, nil
	case bytes.Equal(head[:4], snappyStreamID[:4]):
		return SnappyFramingFormat, nil
	case bytes.Equal(head[:4], nativeMagic):
		return NativeFormat, nil
	default:
		return UnknownFormat, fmt.Errorf("%w: unrecognized container magic % x", common.CorruptedStreamError, head[:4])
	}
}

// DefaultFormat returns the container conventionally paired with a
// codec: the interoperable one when the ecosystem defines it, the
// native container otherwise.
func DefaultFormat(ct codec.CompressionType) Format {
	switch ct {
	case codec.Lz4Compression:
		return Lz4FrameFormat
	case codec.SnappyCompression:
		return SnappyFramingFormat
	default:
		return NativeFormat
	}
}

// Header carries what a container's fixed header reveals about the
// stream.
type Header struct {
	Format      Format
	Compression codec.CompressionType
	// BlockSize is the decompressed size bound of every block in the
	// stream.
	BlockSize int
}

// Record is one decoded block record. Payload aliases the reader's
// scratch buffer and is only valid until the next call.
type Record struct {
	Payload []byte
	// Raw reports that Payload holds the original block bytes, stored
	// without compression.
	Raw bool
	// Checksum is the masked CRC-32C of the decompressed block, present
	// only when HasChecksum is set. Containers that do not checksum
	// leave it zero.
	Checksum    uint32
	HasChecksum bool
}

// IFrameWriter emits the container envelope around kernel output. One
// writer serves exactly one stream: header once, then records in block
// order, then the trailer.
type IFrameWriter interface {
	GetFormat() Format
	WriteHeader(w io.Writer) error
	// WriteBlock emits one record. compressed holds the kernel output
	// and is nil when the kernel reported the block incompressible; raw
	// always holds the original block bytes. The profile decides which
	// representation is stored.
	WriteBlock(w io.Writer, compressed, raw []byte) error
	WriteTrailer(w io.Writer) error
}

// IFrameReader decodes the container envelope. Next returns io.EOF
// once the end of stream is consumed.
type IFrameReader interface {
	GetFormat() Format
	ReadHeader(r io.Reader) (Header, error)
	Next(r io.Reader) (Record, error)
}

// NewFrameWriter builds the writer side of a container profile.
// blockSize must already be validated against the profile.
func NewFrameWriter(f Format, ct codec.CompressionType, blockSize int) IFrameWriter {
	switch f {
	case Lz4FrameFormat:
		return &lz4FrameWriter{blockSize: blockSize}
	case SnappyFramingFormat:
		return newSnappyFrameWriter()
	case NativeFormat:
		return &nativeFrameWriter{ct: ct, blockSize: blockSize}
	default:
		panic("unknown frame format")
	}
}

// NewFrameReader builds the reader side of a container profile.
func NewFrameReader(f Format) IFrameReader {
	switch f {
	case Lz4FrameFormat:
		return &lz4FrameReader{}
	case SnappyFramingFormat:
		return newSnappyFrameReader()
	case NativeFormat:
		return &nativeFrameReader{}
	default:
		panic("unknown frame format")
	}
}
