package brickpress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/brickpress/brickpress/codec"
	"github.com/brickpress/brickpress/common"
	"github.com/brickpress/brickpress/frame"
	"github.com/brickpress/brickpress/internal/bufpool"
)

// Reader inflates a container stream, serving the original bytes in
// order. Decompression is host work; no device is involved.
type Reader struct {
	src      io.Reader
	fr       frame.IFrameReader
	comp     codec.ICompression
	checksum common.IChecksum
	hdr      frame.Header

	// scratch holds the current decompressed block; buf is the unread
	// window into it, or into the record payload for raw blocks.
	scratch []byte
	buf     []byte
	off     int
	err     error
}

// NewReader opens a container stream, detecting which container it is
// from the magic. A stream that ends before its terminator, carries an
// oversized record, or fails a block checksum surfaces
// a CorruptedStreamError from Read.
func NewReader(src io.Reader) (*Reader, error) {
	var head [4]byte
	if _, err := io.ReadFull(src, head[:]); err != nil {
		return nil, fmt.Errorf("%w: stream shorter than a container magic", common.CorruptedStreamError)
	}
	f, err := frame.Detect(head[:])
	if err != nil {
		return nil, err
	}

	fr := frame.NewFrameReader(f)
	full := io.MultiReader(bytes.NewReader(head[:]), src)
	hdr, err := fr.ReadHeader(full)
	if err != nil {
		return nil, err
	}

	return &Reader{
		src:      full,
		fr:       fr,
		comp:     codec.NewCompressor(hdr.Compression),
		checksum: common.NewChecksumer(common.CRC32CChecksum),
		hdr:      hdr,
		scratch:  bufpool.Get(hdr.BlockSize),
	}, nil
}

// Header reveals what the container header declared about the stream.
func (r *Reader) Header() frame.Header {
	return r.hdr
}

func (r *Reader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	if len(p) == 0 {
		return 0, nil
	}
	for r.off == len(r.buf) {
		if err := r.fill(); err != nil {
			r.err = err
			return 0, err
		}
	}
	n := copy(p, r.buf[r.off:])
	r.off += n
	return n, nil
}

// fill decodes the next record into the read window.
func (r *Reader) fill() error {
	rec, err := r.fr.Next(r.src)
	if err != nil {
		return err
	}

	r.off = 0
	if rec.Raw {
		r.buf = rec.Payload
	} else {
		n, err := r.comp.Decompress(r.scratch[:r.hdr.BlockSize], rec.Payload)
		if err != nil {
			return err
		}
		r.buf = r.scratch[:n]
	}

	if rec.HasChecksum {
		if got := common.MaskChecksum(r.checksum.Checksum(r.buf)); got != rec.Checksum {
			return fmt.Errorf("%w: block checksum mismatch", common.CorruptedStreamError)
		}
	}
	return nil
}

// Close releases the reader's scratch memory. The underlying source is
// left open; the caller owns it.
func (r *Reader) Close() error {
	if r.scratch != nil {
		bufpool.Put(r.scratch)
		r.scratch = nil
	}
	r.buf = nil
	if r.err == nil {
		r.err = fmt.Errorf("%w: read on a closed reader", common.InvalidConfigError)
	}
	return nil
}

var _ IReader = (*Reader)(nil)
