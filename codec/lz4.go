package codec

import (
	"fmt"

	"github.com/pierrec/lz4/v4"

	"github.com/brickpress/brickpress/common"
)

// lz4Compressor keeps the match table of its underlying lz4.Compressor
// between blocks, so one instance must not be shared across goroutines.
// Every device and reader constructs its own through NewCompressor.
type lz4Compressor struct {
	c lz4.Compressor
}

func (l *lz4Compressor) GetType() CompressionType {
	return Lz4Compression
}

func (l *lz4Compressor) CompressBound(srcLen int) int {
	return lz4.CompressBlockBound(srcLen)
}

func (l *lz4Compressor) Compress(dst, src []byte) (int, error) {
	n, err := l.c.CompressBlock(src, dst)
	if err != nil {
		return 0, fmt.Errorf("%w: lz4: %s", common.DeviceFaultError, err)
	}
	// n == 0 means the block is incompressible; the caller keeps the raw
	// bytes instead.
	if n >= len(src) {
		return 0, nil
	}
	return n, nil
}

func (l *lz4Compressor) Decompress(dst, src []byte) (int, error) {
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return 0, fmt.Errorf("%w: lz4: %s", common.CorruptedStreamError, err)
	}
	return n, nil
}

var _ ICompression = (*lz4Compressor)(nil)
