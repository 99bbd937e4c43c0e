package pipeline

import (
	"go.uber.org/zap"

	"github.com/brickpress/brickpress/common"
	"github.com/brickpress/brickpress/device"
)

// slot is one stage of the arena: the four device buffers of a kernel
// dispatch plus the host-side staging state. A slot with a non-nil
// handle is accelerator-owned; the host must not touch its buffers
// until the handle's Wait has returned.
type slot struct {
	in       device.IBuffer
	out      device.IBuffer
	inSizes  device.IBuffer
	outSizes device.IBuffer

	// fill is how many input bytes are staged in the host copy of in.
	fill int
	// blocks is the valid block count of the brick last packed here.
	blocks int
	handle device.IHandle
}

// newSlot allocates one slot set. The input side lands in inBank and
// the output side in outBank, mirroring how a dispatch is spread across
// memory banks on the card.
func newSlot(dev device.IDevice, geom common.Geometry, stride int, inBank, outBank device.Bank) (*slot, error) {
	s := &slot{}
	allocs := []struct {
		dst  *device.IBuffer
		size int
		bank device.Bank
	}{
		{&s.in, geom.BrickSize(), inBank},
		{&s.out, geom.BlocksPerBrick * stride, outBank},
		{&s.inSizes, geom.BlocksPerBrick * device.SizeEntryLen, inBank},
		{&s.outSizes, geom.BlocksPerBrick * device.SizeEntryLen, outBank},
	}
	for _, a := range allocs {
		buf, err := dev.Alloc(a.size, a.bank)
		if err != nil {
			s.free()
			return nil, err
		}
		*a.dst = buf
	}
	return s, nil
}

func (s *slot) free() {
	for _, b := range []device.IBuffer{s.in, s.out, s.inSizes, s.outSizes} {
		if b == nil {
			continue
		}
		if err := b.Free(); err != nil {
			zap.L().Warn("slot buffer not freed", zap.Error(err))
		}
	}
	s.in, s.out, s.inSizes, s.outSizes = nil, nil, nil, nil
}

// stage copies input into the staging region, up to the brick capacity,
// and reports how much it took.
func (s *slot) stage(p []byte, brickSize int) int {
	n := copy(s.in.Bytes()[s.fill:brickSize], p)
	s.fill += n
	return n
}

// pack finalizes the staged brick: splits it into blocks, records the
// per-block lengths with the entries past the valid blocks zeroed, and
// pushes the input side to the device.
func (s *slot) pack(geom common.Geometry) error {
	s.blocks = geom.BlockCount(s.fill)
	sizes := s.inSizes.Bytes()
	remain := s.fill
	for i := 0; i < geom.BlocksPerBrick; i++ {
		n := min(remain, geom.BlockSize)
		device.PutSizeEntry(sizes, i, uint32(n))
		remain -= n
	}
	if err := s.in.SyncToDevice(); err != nil {
		return err
	}
	return s.inSizes.SyncToDevice()
}

// blockLen returns the valid length of block i of the staged brick. The
// last block of a partial brick is short.
func (s *slot) blockLen(blockSize, i int) int {
	return min(s.fill-i*blockSize, blockSize)
}

// reset hands the slot back for packing. The caller must have waited on
// the handle first.
func (s *slot) reset() {
	s.fill = 0
	s.blocks = 0
}
