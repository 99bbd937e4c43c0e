package frame

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/OneOfOne/xxhash"

	"github.com/brickpress/brickpress/codec"
	"github.com/brickpress/brickpress/common"
	"github.com/brickpress/brickpress/internal/bufpool"
)

const (
	lz4FrameMagic uint32 = 0x184D2204

	// FLG byte: version 01, independent blocks, no block checksums, no
	// content size, no content checksum, no dictionary.
	lz4FrameFLG byte = 0x60

	// A record length word with the high bit set stores the block
	// uncompressed.
	lz4RawBlockFlag uint32 = 1 << 31
	lz4RawBlockMask uint32 = lz4RawBlockFlag - 1
)

// map the block max size id with its value in bytes: 64Kb, 256Kb, 1Mb and 4Mb.
var (
	lz4BsMapID    = map[byte]int{4: 64 << 10, 5: 256 << 10, 6: 1 << 20, 7: 4 << 20}
	lz4BsMapValue = make(map[int]byte, len(lz4BsMapID))
)

func init() {
	for i, v := range lz4BsMapID {
		lz4BsMapValue[v] = i
	}
}

// IsValidLz4BlockSize reports whether blockSize can be described by an
// LZ4 frame descriptor.
func IsValidLz4BlockSize(blockSize int) bool {
	_, ok := lz4BsMapValue[blockSize]
	return ok
}

type lz4FrameWriter struct {
	blockSize int
}

func (l *lz4FrameWriter) GetFormat() Format {
	return Lz4FrameFormat
}

func (l *lz4FrameWriter) WriteHeader(w io.Writer) error {
	bsID, ok := lz4BsMapValue[l.blockSize]
	if !ok {
		return fmt.Errorf("%w: lz4 frame block size must be 64K, 256K, 1M or 4M, got %d",
			common.InvalidConfigError, l.blockSize)
	}

	var hdr [7]byte
	binary.LittleEndian.PutUint32(hdr[0:4], lz4FrameMagic)
	hdr[4] = lz4FrameFLG
	hdr[5] = bsID << 4
	// Header checksum is the second byte of XXH32 over the descriptor.
	hdr[6] = byte(xxhash.Checksum32(hdr[4:6]) >> 8)

	_, err := w.Write(hdr[:])
	return err
}

func (l *lz4FrameWriter) WriteBlock(w io.Writer, compressed, raw []byte) error {
	var hdr [4]byte
	payload := compressed
	if payload == nil {
		binary.LittleEndian.PutUint32(hdr[:], uint32(len(raw))|lz4RawBlockFlag)
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

func (l *lz4FrameWriter) WriteTrailer(w io.Writer) error {
	var endMark [4]byte
	_, err := w.Write(endMark[:])
	return err
}

type lz4FrameReader struct {
	blockSize int
	scratch   []byte
	done      bool
}

func (l *lz4FrameReader) GetFormat() Format {
	return Lz4FrameFormat
}

func (l *lz4FrameReader) ReadHeader(r io.Reader) (Header, error) {
	var fixed [6]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return Header{}, fmt.Errorf("%w: lz4: stream shorter than a frame header", common.CorruptedStreamError)
	}
	if binary.LittleEndian.Uint32(fixed[0:4]) != lz4FrameMagic {
		return Header{}, fmt.Errorf("%w: lz4: bad frame magic", common.CorruptedStreamError)
	}

	flg, bd := fixed[4], fixed[5]
	if flg>>6 != 0x01 {
		return Header{}, fmt.Errorf("%w: lz4: unsupported frame version %d", common.CorruptedStreamError, flg>>6)
	}
	if flg&0x20 == 0 {
		return Header{}, fmt.Errorf("%w: lz4: block-dependent frames are not supported", common.CorruptedStreamError)
	}
	if flg&0x10 != 0 {
		return Header{}, fmt.Errorf("%w: lz4: per-block checksums are not supported", common.CorruptedStreamError)
	}
	if flg&0x01 != 0 {
		return Header{}, fmt.Errorf("%w: lz4: dictionaries are not supported", common.CorruptedStreamError)
	}

	desc := make([]byte, 2, 10)
	desc[0], desc[1] = flg, bd
	if flg&0x08 != 0 {
		// Content size is allowed but unused; it still participates in
		// the header checksum.
		var contentSize [8]byte
		if _, err := io.ReadFull(r, contentSize[:]); err != nil {
			return Header{}, fmt.Errorf("%w: lz4: truncated frame descriptor", common.CorruptedStreamError)
		}
		desc = append(desc, contentSize[:]...)
	}

	var hc [1]byte
	if _, err := io.ReadFull(r, hc[:]); err != nil {
		return Header{}, fmt.Errorf("%w: lz4: truncated frame descriptor", common.CorruptedStreamError)
	}
	if hc[0] != byte(xxhash.Checksum32(desc)>>8) {
		return Header{}, fmt.Errorf("%w: lz4: frame descriptor checksum mismatch", common.CorruptedStreamError)
	}

	if bd&0x8F != 0 {
		return Header{}, fmt.Errorf("%w: lz4: reserved BD bits set", common.CorruptedStreamError)
	}
	blockSize, ok := lz4BsMapID[(bd>>4)&0x07]
	if !ok {
		return Header{}, fmt.Errorf("%w: lz4: invalid block max size id", common.CorruptedStreamError)
	}

	l.blockSize = blockSize
	l.scratch = bufpool.Get(blockSize)
	return Header{
		Format:      Lz4FrameFormat,
		Compression: codec.Lz4Compression,
		BlockSize:   blockSize,
	}, nil
}

func (l *lz4FrameReader) Next(r io.Reader) (Record, error) {
	if l.done {
		return Record{}, io.EOF
	}
	if l.blockSize == 0 {
		return Record{}, fmt.Errorf("%w: lz4: record read before frame header", common.CorruptedStreamError)
	}

	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Record{}, fmt.Errorf("%w: lz4: stream truncated before EndMark", common.CorruptedStreamError)
	}
	word := binary.LittleEndian.Uint32(hdr[:])
	if word == 0 {
		l.done = true
		bufpool.Put(l.scratch)
		l.scratch = nil
		return Record{}, io.EOF
	}

	raw := word&lz4RawBlockFlag != 0
	n := int(word & lz4RawBlockMask)
	// Valid frames never store a block, compressed or raw, above the
	// declared block max size.
	if n > l.blockSize {
		return Record{}, fmt.Errorf("%w: lz4: record of %d bytes exceeds block max size %d",
			common.CorruptedStreamError, n, l.blockSize)
	}

	buf := l.scratch[:n]
	if _, err := io.ReadFull(r, buf); err != nil {
		return Record{}, fmt.Errorf("%w: lz4: truncated record", common.CorruptedStreamError)
	}
	return Record{Payload: buf, Raw: raw}, nil
}

var (
	_ IFrameWriter = (*lz4FrameWriter)(nil)
	_ IFrameReader = (*lz4FrameReader)(nil)
)
