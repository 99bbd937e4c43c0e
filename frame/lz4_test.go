package frame

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"testing"

	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brickpress/brickpress/codec"
	"github.com/brickpress/brickpress/common"
)

func TestLz4FrameWriter_HeaderVector(t *testing.T) {
	// Known header for a 64K block-independent frame without checksums:
	// magic, FLG=0x60, BD=0x40, HC=0x82.
	var buf bytes.Buffer
	w := NewFrameWriter(Lz4FrameFormat, codec.Lz4Compression, 64<<10)
	require.NoError(t, w.WriteHeader(&buf))
	assert.Equal(t, []byte{0x04, 0x22, 0x4D, 0x18, 0x60, 0x40, 0x82}, buf.Bytes())
}

func TestLz4FrameWriter_BlockSizes(t *testing.T) {
	tests := []struct {
		name       string
		blockSize  int
		expectedBD byte
		wantErr    bool
	}{
		{"64K", 64 << 10, 0x40, false},
		{"256K", 256 << 10, 0x50, false},
		{"1M", 1 << 20, 0x60, false},
		{"4M", 4 << 20, 0x70, false},
		{"unrepresentable size", 128 << 10, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			w := NewFrameWriter(Lz4FrameFormat, codec.Lz4Compression, tt.blockSize)
			err := w.WriteHeader(&buf)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, common.InvalidConfigError))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedBD, buf.Bytes()[5])
			assert.True(t, IsValidLz4BlockSize(tt.blockSize))
		})
	}
}

func TestLz4Frame_RoundTrip(t *testing.T) {
	const blockSize = 64 << 10
	compressor := codec.NewCompressor(codec.Lz4Compression)

	compressible := bytes.Repeat([]byte("pipelined block compression "), 2341)[:blockSize]
	incompressible := make([]byte, blockSize)
	rng := rand.New(rand.NewSource(11))
	_, err := rng.Read(incompressible)
	require.NoError(t, err)

	// 1. Write a two-record stream: one compressed, one raw.
	var buf bytes.Buffer
	w := NewFrameWriter(Lz4FrameFormat, codec.Lz4Compression, blockSize)
	require.NoError(t, w.WriteHeader(&buf))

	dst := make([]byte, compressor.CompressBound(blockSize))
	n, err := compressor.Compress(dst, compressible)
	require.NoError(t, err)
	require.Greater(t, n, 0)
	require.NoError(t, w.WriteBlock(&buf, dst[:n], compressible))
	require.NoError(t, w.WriteBlock(&buf, nil, incompressible))
	require.NoError(t, w.WriteTrailer(&buf))

	// 2. Read it back record by record.
	r := NewFrameReader(Lz4FrameFormat)
	hdr, err := r.ReadHeader(&buf)
	require.NoError(t, err)
	assert.Equal(t, blockSize, hdr.BlockSize)
	assert.Equal(t, codec.Lz4Compression, hdr.Compression)

	rec, err := r.Next(&buf)
	require.NoError(t, err)
	assert.False(t, rec.Raw)
	out := make([]byte, blockSize)
	m, err := compressor.Decompress(out, rec.Payload)
	require.NoError(t, err)
	assert.Equal(t, compressible, out[:m])

	rec, err = r.Next(&buf)
	require.NoError(t, err)
	assert.True(t, rec.Raw)
	assert.Equal(t, incompressible, rec.Payload)

	// 3. The EndMark terminates the stream.
	_, err = r.Next(&buf)
	assert.Equal(t, io.EOF, err)
}

func TestLz4Frame_InteropWithReferenceDecoder(t *testing.T) {
	const blockSize = 64 << 10
	compressor := codec.NewCompressor(codec.Lz4Compression)

	payload := bytes.Repeat([]byte("The accelerator processes eight blocks per dispatch. "), 3000)
	var framed bytes.Buffer
	w := NewFrameWriter(Lz4FrameFormat, codec.Lz4Compression, blockSize)
	require.NoError(t, w.WriteHeader(&framed))

	dst := make([]byte, compressor.CompressBound(blockSize))
	for off := 0; off < len(payload); off += blockSize {
		end := min(off+blockSize, len(payload))
		block := payload[off:end]
		n, err := compressor.Compress(dst[:compressor.CompressBound(len(block))], block)
		require.NoError(t, err)
		if n == 0 {
			require.NoError(t, w.WriteBlock(&framed, nil, block))
		} else {
			require.NoError(t, w.WriteBlock(&framed, dst[:n], block))
		}
	}
	require.NoError(t, w.WriteTrailer(&framed))

	// The reference frame decoder must accept the stream byte for byte.
	decoded, err := io.ReadAll(lz4.NewReader(bytes.NewReader(framed.Bytes())))
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestLz4FrameReader_Corrupted(t *testing.T) {
	validHeader := []byte{0x04, 0x22, 0x4D, 0x18, 0x60, 0x40, 0x82}

	tests := []struct {
		name   string
		stream []byte
	}{
		{
			name:   "bad magic",
			stream: []byte{0x00, 0x22, 0x4D, 0x18, 0x60, 0x40, 0x82},
		},
		{
			name:   "descriptor checksum mismatch",
			stream: []byte{0x04, 0x22, 0x4D, 0x18, 0x60, 0x40, 0x00},
		},
		{
			name:   "block-dependent frame",
			stream: []byte{0x04, 0x22, 0x4D, 0x18, 0x40, 0x40, 0x00},
		},
		{
			name:   "truncated before EndMark",
			stream: validHeader,
		},
		{
			name:   "record larger than block max size",
			stream: append(append([]byte{}, validHeader...), 0xFF, 0xFF, 0xFF, 0x00),
		},
		{
			name:   "truncated record body",
			stream: append(append([]byte{}, validHeader...), 0x10, 0x00, 0x00, 0x00, 0xAA, 0xBB),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewFrameReader(Lz4FrameFormat)
			buf := bytes.NewReader(tt.stream)
			_, err := r.ReadHeader(buf)
			if err == nil {
				_, err = r.Next(buf)
				require.NotEqual(t, io.EOF, err)
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.CorruptedStreamError))
		})
	}
}
