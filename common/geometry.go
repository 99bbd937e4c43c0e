package common

import "fmt"

const (
	// DefaultBlockSize is the per-block payload size handed to the
	// accelerator kernel. 64 KiB matches the smallest interoperable
	// frame block size and keeps two full slot sets resident on cards
	// with small bank memory.
	DefaultBlockSize = 64 * 1024

	// DefaultBlocksPerBrick is the number of blocks one kernel dispatch
	// consumes. The kernel signature is fixed at build time, so this is
	// an upper bound; the final dispatch of a stream may carry fewer
	// valid blocks.
	DefaultBlocksPerBrick = 8
)

// Geometry fixes the shape of one accelerator dispatch: up to
// BlocksPerBrick blocks of BlockSize bytes each. Both slot sets of a
// run are allocated from a single Geometry and never resized.
type Geometry struct {
	BlockSize      int
	BlocksPerBrick int
}

func DefaultGeometry() Geometry {
	return Geometry{
		BlockSize:      DefaultBlockSize,
		BlocksPerBrick: DefaultBlocksPerBrick,
	}
}

// BrickSize returns the input capacity of one dispatch in bytes.
func (g Geometry) BrickSize() int {
	return g.BlockSize * g.BlocksPerBrick
}

// BlockCount returns how many blocks a payload of n bytes occupies
// within one brick. The last block may be short.
func (g Geometry) BlockCount(n int) int {
	return (n + g.BlockSize - 1) / g.BlockSize
}

func (g Geometry) Validate() error {
	if g.BlockSize <= 0 {
		return fmt.Errorf("%w: block size %d must be positive", InvalidConfigError, g.BlockSize)
	}
	if g.BlocksPerBrick <= 0 {
		return fmt.Errorf("%w: blocks per brick %d must be positive", InvalidConfigError, g.BlocksPerBrick)
	}
	return nil
}
