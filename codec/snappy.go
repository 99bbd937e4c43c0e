package codec

import (
	"fmt"

	"github.com/golang/snappy"

	"github.com/brickpress/brickpress/common"
)

type snappyCompressor struct{}

func (s *snappyCompressor) GetType() CompressionType {
	return SnappyCompression
}

func (s *snappyCompressor) CompressBound(srcLen int) int {
	return snappy.MaxEncodedLen(srcLen)
}

func (s *snappyCompressor) Compress(dst, src []byte) (int, error) {
	res := snappy.Encode(dst, src)
	if len(res) > len(dst) || (len(res) > 0 && &res[0] != &dst[0]) {
		return 0, fmt.Errorf("%w: snappy: destination smaller than MaxEncodedLen", common.DeviceFaultError)
	}
	if len(res) >= len(src) {
		return 0, nil
	}
	return len(res), nil
}

func (s *snappyCompressor) Decompress(dst, src []byte) (int, error) {
	decompressedLen, err := snappy.DecodedLen(src)
	if err != nil {
		return 0, fmt.Errorf("%w: snappy: %s", common.CorruptedStreamError, err)
	}
	if decompressedLen > len(dst) {
		return 0, fmt.Errorf("%w: snappy: block decompresses to %d bytes, slot holds %d",
			common.CorruptedStreamError, decompressedLen, len(dst))
	}
	res, err := snappy.Decode(dst, src)
	if err != nil {
		return 0, fmt.Errorf("%w: snappy: %s", common.CorruptedStreamError, err)
	}
	if len(res) > 0 && &res[0] != &dst[0] {
		return 0, fmt.Errorf("%w: snappy: decompressed data mismatch", common.CorruptedStreamError)
	}
	return len(res), nil
}

var _ ICompression = (*snappyCompressor)(nil)
