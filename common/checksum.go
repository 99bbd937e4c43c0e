package common

import "hash/crc32"

type ChecksumType byte

const (
	UnknownChecksum ChecksumType = iota
	CRC32CChecksum
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

type checksumer struct {
	ct ChecksumType
}

type IChecksum interface {
	Checksum(block []byte) uint32
}

func (c checksumer) Checksum(block []byte) uint32 {
	var checksum uint32
	switch c.ct {
	case CRC32CChecksum:
		checksum = crc32.Checksum(block, crc32cTable)
	default:
		panic("unknown checksum type")
	}

	return checksum
}

// MaskChecksum rotates and offsets a CRC so that a checksum computed over
// bytes that themselves contain checksums stays well distributed. The
// snappy framing format stores checksums in this masked form.
func MaskChecksum(c uint32) uint32 {
	return ((c >> 15) | (c << 17)) + 0xa282ead8
}

func NewChecksumer(ct ChecksumType) IChecksum {
	return &checksumer{
		ct: ct,
	}
}

var _ IChecksum = (*checksumer)(nil)
