// Package device abstracts the fixed-function compression accelerator:
// banked device memory with explicit host/device synchronization, and a
// kernel invoked over bricks of up to a fixed number of blocks. The
// software implementation runs the same contract in process, so every
// consumer can be exercised without a card.
package device

import (
	"context"
	"encoding/binary"

	"github.com/brickpress/brickpress/codec"
)

// Bank identifies one on-card memory region. Buffers live in exactly
// one bank, and a bank runs out of space independently of the others.
type Bank int

// SizeEntryLen is the width in bytes of one per-block size entry inside
// a size buffer.
const SizeEntryLen = 4

// PutSizeEntry writes the idx-th per-block size entry into a size
// buffer's memory.
func PutSizeEntry(mem []byte, idx int, v uint32) {
	binary.LittleEndian.PutUint32(mem[idx*SizeEntryLen:], v)
}

// SizeEntry reads the idx-th per-block size entry from a size buffer's
// memory.
func SizeEntry(mem []byte, idx int) uint32 {
	return binary.LittleEndian.Uint32(mem[idx*SizeEntryLen:])
}

// Job is one kernel dispatch. The kernel signature is fixed: it reads
// BlockCount blocks of up to BlockSize bytes from In, with the valid
// length of each block in InSizes, and writes each block's compressed
// form at stride OutStride into Out and its length into OutSizes. An
// OutSizes entry of zero marks a block the kernel could not shrink; the
// host keeps such blocks in their raw form.
type Job struct {
	In       IBuffer
	Out      IBuffer
	InSizes  IBuffer
	OutSizes IBuffer

	BlockSize  int
	BlockCount int
	// OutStride is the per-block capacity of the output region. It must
	// be at least the codec's compress bound for BlockSize so a kernel
	// can never overrun a neighbouring block's region.
	OutStride int
}

// IHandle is the waitable side of a submitted job.
type IHandle interface {
	// Wait blocks until the job has left the device, successfully or
	// not. A cancelled context still drains the dispatch before Wait
	// returns the context error, so no buffer stays device-owned.
	Wait(ctx context.Context) error
}

// IBuffer is device-visible memory with a distinct host copy. Host code
// only ever touches the host copy; SyncToDevice and SyncFromDevice move
// whole-buffer contents across. Neither side is touched implicitly.
type IBuffer interface {
	// Bytes returns the host copy. The slice stays valid until Free.
	Bytes() []byte
	SyncToDevice() error
	SyncFromDevice() error
	Size() int
	Bank() Bank
	Free() error
}

// IDevice is a compression accelerator. Implementations guarantee that
// jobs complete in submission order.
type IDevice interface {
	// Compression identifies the block codec baked into the kernel. It
	// is fixed for the device lifetime; hosts select the matching stream
	// profile from it.
	Compression() codec.CompressionType
	// Alloc reserves size bytes of device memory in the given bank,
	// together with a host staging copy of the same size.
	Alloc(size int, bank Bank) (IBuffer, error)
	// Submit hands a packed job to the device without waiting for the
	// kernel; it blocks only when the dispatch queue itself is full.
	// All four job buffers belong to the device until the handle's Wait
	// returns; submitting or syncing them meanwhile is a protocol
	// violation.
	Submit(job Job) (IHandle, error)
	// Close drains every submitted job and releases the device. It is
	// not safe to call concurrently with Submit.
	Close() error
}
