package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChecksumer_CRC32C(t *testing.T) {
	checksumer := NewChecksumer(CRC32CChecksum)

	// 1. Standard CRC-32C check value for "123456789".
	assert.Equal(t, uint32(0xE3069283), checksumer.Checksum([]byte("123456789")))

	// 2. Deterministic across calls.
	block := []byte("brick payload under test")
	assert.Equal(t, checksumer.Checksum(block), checksumer.Checksum(block))

	// 3. Different payloads must not collide on these trivial inputs.
	assert.NotEqual(t, checksumer.Checksum([]byte("a")), checksumer.Checksum([]byte("b")))
}

func TestMaskChecksum(t *testing.T) {
	tests := []struct {
		name     string
		crc      uint32
		expected uint32
	}{
		{
			name:     "zero rotates to the bare offset",
			crc:      0,
			expected: 0xa282ead8,
		},
		{
			name:     "low bit lands in bit 17",
			crc:      1,
			expected: 0xa284ead8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MaskChecksum(tt.crc))
		})
	}
}
