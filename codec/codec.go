package codec

// CompressionType is the per-block compression algorithm to use. The
// accelerator kernel and the stream container are always configured with
// the same type.
type CompressionType int

// The available compression types.
const (
	UnknownCompression CompressionType = iota
	Lz4Compression
	SnappyCompression
	ZstdCompression
)

func (ct CompressionType) String() string {
	switch ct {
	case Lz4Compression:
		return "lz4"
	case SnappyCompression:
		return "snappy"
	case ZstdCompression:
		return "zstd"
	default:
		return "unknown"
	}
}

type ICompression interface {
	GetType() CompressionType
	// CompressBound returns the maximum number of bytes a block of srcLen
	// bytes can occupy once compressed. Device output regions are sized
	// with this bound so a kernel never overruns its slot.
	CompressBound(srcLen int) int
	// Compress compresses src into dst. dst must be at least
	// CompressBound(len(src)) bytes long. It returns the compressed
	// length, or 0 when the block does not shrink; callers emit such
	// blocks raw from their own copy of src.
	Compress(dst, src []byte) (int, error)
	// Decompress decompresses src into dst and returns the decompressed
	// length. dst must be large enough for the whole block; one block
	// never decompresses to more than the configured block size.
	Decompress(dst, src []byte) (int, error)
}

func NewCompressor(ct CompressionType) ICompression {
	switch ct {
	case Lz4Compression:
		return &lz4Compressor{}
	case SnappyCompression:
		return &snappyCompressor{}
	case ZstdCompression:
		return &zstdCompressor{}
	default:
		panic("unknown compression type")
	}
}
