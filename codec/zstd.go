package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/DataDog/zstd"

	"github.com/brickpress/brickpress/common"
)

const (
	// TODO(low) make the level configurable per run
	defaultLevel = 3
)

type zstdCompressor struct{}

func (z *zstdCompressor) GetType() CompressionType {
	return ZstdCompression
}

func (z *zstdCompressor) CompressBound(srcLen int) int {
	// Compressed blocks carry a uvarint prefix encoding the decompressed
	// length, so the decompressor can size its buffer without trusting
	// the container.
	return binary.MaxVarintLen64 + zstd.CompressBound(srcLen)
}

func (z *zstdCompressor) Compress(dst, src []byte) (int, error) {
	if len(dst) < z.CompressBound(len(src)) {
		return 0, fmt.Errorf("%w: zstd: destination smaller than CompressBound", common.DeviceFaultError)
	}

	zCtx := zstd.NewCtx()
	// Prefix with a uvarint encoding of len(src -- decompressed block)
	varIntLen := binary.PutUvarint(dst, uint64(len(src)))
	result, err := zCtx.CompressLevel(dst[varIntLen:], src, defaultLevel)
	if err != nil {
		return 0, fmt.Errorf("%w: zstd: %s", common.DeviceFaultError, err)
	}
	if &result[0] != &dst[varIntLen] {
		return 0, fmt.Errorf("%w: zstd: allocated a new buffer despite checking CompressBound", common.DeviceFaultError)
	}

	n := varIntLen + len(result)
	if n >= len(src) {
		return 0, nil
	}
	return n, nil
}

func (z *zstdCompressor) Decompress(dst, src []byte) (int, error) {
	// The payload is prefixed with a varint encoding the length of
	// the decompressed block.
	decompressedLenU64, prefixLen := binary.Uvarint(src)
	if prefixLen <= 0 {
		return 0, fmt.Errorf("%w: zstd: missing decompressed length prefix", common.CorruptedStreamError)
	}
	decompressedLen := int(decompressedLenU64)
	if decompressedLen < 0 || decompressedLen > len(dst) {
		return 0, fmt.Errorf("%w: zstd: block decompresses to %d bytes, slot holds %d",
			common.CorruptedStreamError, decompressedLen, len(dst))
	}
	src = src[prefixLen:]
	if len(src) == 0 {
		return 0, fmt.Errorf("%w: zstd: empty compressed payload", common.CorruptedStreamError)
	}

	zCtx := zstd.NewCtx()
	if _, err := zCtx.DecompressInto(dst[:decompressedLen], src); err != nil {
		return 0, fmt.Errorf("%w: zstd: %s", common.CorruptedStreamError, err)
	}
	return decompressedLen, nil
}

var _ ICompression = (*zstdCompressor)(nil)
