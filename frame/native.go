package frame

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/bits"

	"github.com/brickpress/brickpress/codec"
	"github.com/brickpress/brickpress/common"
	"github.com/brickpress/brickpress/internal/bufpool"
)

// The native container: 4-byte magic, method byte, block size log,
// two reserved bytes, then length-prefixed records and a zero
// terminator. It exists for codecs without an interoperable framing of
// their own, and is self-describing enough to open without out-of-band
// configuration.
var nativeMagic = []byte{'B', 'R', 'K', '1'}

const (
	nativeHeaderLen = 8

	nativeRawBlockFlag uint32 = 1 << 31
	nativeRawBlockMask uint32 = nativeRawBlockFlag - 1

	// Method bytes identifying the block codec.
	nativeMethodNone   byte = 0x02
	nativeMethodLz4    byte = 0x82
	nativeMethodSnappy byte = 0x84
	nativeMethodZstd   byte = 0x90
)

func nativeMethodByte(ct codec.CompressionType) (byte, error) {
	switch ct {
	case codec.Lz4Compression:
		return nativeMethodLz4, nil
	case codec.SnappyCompression:
		return nativeMethodSnappy, nil
	case codec.ZstdCompression:
		return nativeMethodZstd, nil
	default:
		return nativeMethodNone, fmt.Errorf("%w: native container cannot describe codec %q",
			common.InvalidConfigError, ct)
	}
}

func nativeMethodType(b byte) (codec.CompressionType, error) {
	switch b {
	case nativeMethodLz4:
		return codec.Lz4Compression, nil
	case nativeMethodSnappy:
		return codec.SnappyCompression, nil
	case nativeMethodZstd:
		return codec.ZstdCompression, nil
	default:
		return codec.UnknownCompression, fmt.Errorf("%w: native: unknown method byte 0x%02x",
			common.CorruptedStreamError, b)
	}
}

type nativeFrameWriter struct {
	ct        codec.CompressionType
	blockSize int
}

func (n *nativeFrameWriter) GetFormat() Format {
	return NativeFormat
}

func (n *nativeFrameWriter) WriteHeader(w io.Writer) error {
	if n.blockSize < 1<<8 || n.blockSize > 1<<30 || n.blockSize&(n.blockSize-1) != 0 {
		return fmt.Errorf("%w: native container block size must be a power of two between 256B and 1GiB, got %d",
			common.InvalidConfigError, n.blockSize)
	}
	method, err := nativeMethodByte(n.ct)
	if err != nil {
		return err
	}

	var hdr [nativeHeaderLen]byte
	copy(hdr[0:4], nativeMagic)
	hdr[4] = method
	hdr[5] = byte(bits.TrailingZeros(uint(n.blockSize)))

	_, err = w.Write(hdr[:])
	return err
}

func (n *nativeFrameWriter) WriteBlock(w io.Writer, compressed, raw []byte) error {
	var hdr [4]byte
	payload := compressed
	if payload == nil {
		binary.LittleEndian.PutUint32(hdr[:], uint32(len(raw))|nativeRawBlockFlag)
		payload = raw
	} else {
		binary.LittleEndian.PutUint32(hdr[:], uint32(len(compressed)))
	}

	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func (n *nativeFrameWriter) WriteTrailer(w io.Writer) error {
	var terminator [4]byte
	_, err := w.Write(terminator[:])
	return err
}

type nativeFrameReader struct {
	blockSize int
	scratch   []byte
	done      bool
}

func (n *nativeFrameReader) GetFormat() Format {
	return NativeFormat
}

func (n *nativeFrameReader) ReadHeader(r io.Reader) (Header, error) {
	var hdr [nativeHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Header{}, fmt.Errorf("%w: native: stream shorter than a header", common.CorruptedStreamError)
	}
	for i := range nativeMagic {
		if hdr[i] != nativeMagic[i] {
			return Header{}, fmt.Errorf("%w: native: bad magic", common.CorruptedStreamError)
		}
	}

	ct, err := nativeMethodType(hdr[4])
	if err != nil {
		return Header{}, err
	}
	blockSizeLog := int(hdr[5])
	if blockSizeLog < 8 || blockSizeLog > 30 {
		return Header{}, fmt.Errorf("%w: native: block size log %d out of range", common.CorruptedStreamError, blockSizeLog)
	}
	if hdr[6] != 0 || hdr[7] != 0 {
		return Header{}, fmt.Errorf("%w: native: reserved header bytes set", common.CorruptedStreamError)
	}

	n.blockSize = 1 << blockSizeLog
	n.scratch = bufpool.Get(n.blockSize)
	return Header{
		Format:      NativeFormat,
		Compression: ct,
		BlockSize:   n.blockSize,
	}, nil
}

func (n *nativeFrameReader) Next(r io.Reader) (Record, error) {
	if n.done {
		return Record{}, io.EOF
	}
	if n.blockSize == 0 {
		return Record{}, fmt.Errorf("%w: native: record read before header", common.CorruptedStreamError)
	}

	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Record{}, fmt.Errorf("%w: native: stream truncated before terminator", common.CorruptedStreamError)
	}
	word := binary.LittleEndian.Uint32(hdr[:])
	if word == 0 {
		n.done = true
		bufpool.Put(n.scratch)
		n.scratch = nil
		return Record{}, io.EOF
	}

	raw := word&nativeRawBlockFlag != 0
	size := int(word & nativeRawBlockMask)
	if size > n.blockSize {
		return Record{}, fmt.Errorf("%w: native: record of %d bytes exceeds block size %d",
			common.CorruptedStreamError, size, n.blockSize)
	}

	buf := n.scratch[:size]
	if _, err := io.ReadFull(r, buf); err != nil {
		return Record{}, fmt.Errorf("%w: native: truncated record", common.CorruptedStreamError)
	}
	return Record{Payload: buf, Raw: raw}, nil
}

var (
	_ IFrameWriter = (*nativeFrameWriter)(nil)
	_ IFrameReader = (*nativeFrameReader)(nil)
)
