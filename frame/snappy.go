package frame

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/brickpress/brickpress/codec"
	"github.com/brickpress/brickpress/common"
	"github.com/brickpress/brickpress/internal/bufpool"
)

const (
	snappyChunkTypeCompressedData   byte = 0x00
	snappyChunkTypeUncompressedData byte = 0x01
	snappyChunkTypePadding          byte = 0xfe
	snappyChunkTypeStreamIdentifier byte = 0xff

	// SnappyMaxBlockSize is the largest decompressed payload one chunk of
	// the framing format may carry.
	SnappyMaxBlockSize = 65536

	// Encoded size bound of a maximum-size block, per the snappy block
	// format.
	snappyMaxEncodedLenOfMaxBlockSize = 76490
)

// The magic chunk opening every framed snappy stream: a stream
// identifier chunk whose payload spells "sNaPpY".
var snappyStreamID = []byte{0xff, 0x06, 0x00, 0x00, 0x73, 0x4e, 0x61, 0x50, 0x70, 0x59}

type snappyFrameWriter struct {
	checksum common.IChecksum
}

func newSnappyFrameWriter() *snappyFrameWriter {
	return &snappyFrameWriter{
		checksum: common.NewChecksumer(common.CRC32CChecksum),
	}
}

func (s *snappyFrameWriter) GetFormat() Format {
	return SnappyFramingFormat
}

func (s *snappyFrameWriter) WriteHeader(w io.Writer) error {
	_, err := w.Write(snappyStreamID)
	return err
}

func (s *snappyFrameWriter) WriteBlock(w io.Writer, compressed, raw []byte) error {
	if len(raw) > SnappyMaxBlockSize {
		return fmt.Errorf("%w: snappy framing holds at most %d bytes per chunk, got block of %d",
			common.InvalidConfigError, SnappyMaxBlockSize, len(raw))
	}

	// The chunk checksum always covers the decompressed bytes.
	crc := common.MaskChecksum(s.checksum.Checksum(raw))

	// The framing format stores a chunk uncompressed unless compression
	// saves at least an eighth of the raw size.
	chunkType := snappyChunkTypeCompressedData
	payload := compressed
	if compressed == nil || len(compressed) >= len(raw)-len(raw)/8 {
		chunkType = snappyChunkTypeUncompressedData
		payload = raw
	}

	var hdr [8]byte
	chunkLen := 4 + len(payload)
	hdr[0] = chunkType
	hdr[1] = byte(chunkLen)
	hdr[2] = byte(chunkLen >> 8)
	hdr[3] = byte(chunkLen >> 16)
	binary.LittleEndian.PutUint32(hdr[4:8], crc)

	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func (s *snappyFrameWriter) WriteTrailer(w io.Writer) error {
	// A framed snappy stream ends at a chunk boundary; there is no
	// terminator chunk.
	return nil
}

type snappyFrameReader struct {
	scratch    []byte
	headerSeen bool
}

func newSnappyFrameReader() *snappyFrameReader {
	return &snappyFrameReader{}
}

func (s *snappyFrameReader) GetFormat() Format {
	return SnappyFramingFormat
}

func (s *snappyFrameReader) ReadHeader(r io.Reader) (Header, error) {
	var id [10]byte
	if _, err := io.ReadFull(r, id[:]); err != nil {
		return Header{}, fmt.Errorf("%w: snappy: stream shorter than the stream identifier", common.CorruptedStreamError)
	}
	if !bytes.Equal(id[:], snappyStreamID) {
		return Header{}, fmt.Errorf("%w: snappy: bad stream identifier", common.CorruptedStreamError)
	}

	s.headerSeen = true
	s.scratch = bufpool.Get(snappyMaxEncodedLenOfMaxBlockSize)
	return Header{
		Format:      SnappyFramingFormat,
		Compression: codec.SnappyCompression,
		BlockSize:   SnappyMaxBlockSize,
	}, nil
}

func (s *snappyFrameReader) Next(r io.Reader) (Record, error) {
	if !s.headerSeen {
		return Record{}, fmt.Errorf("%w: snappy: chunk read before stream identifier", common.CorruptedStreamError)
	}

	for {
		var hdr [4]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if err == io.EOF {
				// The framing format ends at a clean chunk boundary.
				if s.scratch != nil {
					bufpool.Put(s.scratch)
					s.scratch = nil
				}
				return Record{}, io.EOF
			}
			return Record{}, fmt.Errorf("%w: snappy: truncated chunk header", common.CorruptedStreamError)
		}

		chunkType := hdr[0]
		chunkLen := int(hdr[1]) | int(hdr[2])<<8 | int(hdr[3])<<16

		switch {
		case chunkType == snappyChunkTypeCompressedData || chunkType == snappyChunkTypeUncompressedData:
			if chunkLen < 4 || chunkLen > 4+snappyMaxEncodedLenOfMaxBlockSize {
				return Record{}, fmt.Errorf("%w: snappy: invalid chunk length %d", common.CorruptedStreamError, chunkLen)
			}
			if chunkType == snappyChunkTypeUncompressedData && chunkLen-4 > SnappyMaxBlockSize {
				return Record{}, fmt.Errorf("%w: snappy: uncompressed chunk of %d bytes exceeds the block bound",
					common.CorruptedStreamError, chunkLen-4)
			}
			var crcBuf [4]byte
			if _, err := io.ReadFull(r, crcBuf[:]); err != nil {
				return Record{}, fmt.Errorf("%w: snappy: truncated chunk", common.CorruptedStreamError)
			}
			buf := s.scratch[:chunkLen-4]
			if _, err := io.ReadFull(r, buf); err != nil {
				return Record{}, fmt.Errorf("%w: snappy: truncated chunk", common.CorruptedStreamError)
			}
			return Record{
				Payload:     buf,
				Raw:         chunkType == snappyChunkTypeUncompressedData,
				Checksum:    binary.LittleEndian.Uint32(crcBuf[:]),
				HasChecksum: true,
			}, nil

		case chunkType == snappyChunkTypeStreamIdentifier:
			// Streams may be concatenated; re-verify and keep going.
			if chunkLen != 6 {
				return Record{}, fmt.Errorf("%w: snappy: bad stream identifier length", common.CorruptedStreamError)
			}
			var id [6]byte
			if _, err := io.ReadFull(r, id[:]); err != nil {
				return Record{}, fmt.Errorf("%w: snappy: truncated stream identifier", common.CorruptedStreamError)
			}
			if !bytes.Equal(id[:], snappyStreamID[4:]) {
				return Record{}, fmt.Errorf("%w: snappy: bad stream identifier", common.CorruptedStreamError)
			}

		case chunkType >= 0x80 || chunkType == snappyChunkTypePadding:
			// Skippable chunk.
			if _, err := io.CopyN(io.Discard, r, int64(chunkLen)); err != nil {
				return Record{}, fmt.Errorf("%w: snappy: truncated skippable chunk", common.CorruptedStreamError)
			}

		default:
			return Record{}, fmt.Errorf("%w: snappy: unskippable chunk type 0x%02x", common.CorruptedStreamError, chunkType)
		}
	}
}

var (
	_ IFrameWriter = (*snappyFrameWriter)(nil)
	_ IFrameReader = (*snappyFrameReader)(nil)
)
