package brickpress

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brickpress/brickpress/codec"
	"github.com/brickpress/brickpress/common"
	"github.com/brickpress/brickpress/device"
	"github.com/brickpress/brickpress/storage"
)

func TestCompress_OneShotRoundTrip(t *testing.T) {
	payload := textPayload(t, testPayloadLen)

	for _, ct := range []codec.CompressionType{
		codec.Lz4Compression,
		codec.SnappyCompression,
		codec.ZstdCompression,
	} {
		t.Run(ct.String(), func(t *testing.T) {
			dev := device.NewSoftDevice(device.WithCompression(ct))
			defer func() { require.NoError(t, dev.Close()) }()

			stream, err := Compress(dev, nil, payload)
			require.NoError(t, err)
			require.Less(t, len(stream), len(payload), "text should compress")

			got, err := Decompress(nil, stream)
			require.NoError(t, err)
			assert.Equal(t, payload, got)
		})
	}
}

func TestCompress_ReusesDestination(t *testing.T) {
	dev := device.NewSoftDevice()
	defer func() { require.NoError(t, dev.Close()) }()
	payload := textPayload(t, common.DefaultBlockSize)

	// 1. A prefilled destination is truncated, not appended to.
	dst := bytes.Repeat([]byte{0xEE}, 64)
	stream, err := Compress(dev, dst, payload)
	require.NoError(t, err)
	got, err := Decompress(nil, stream)
	require.NoError(t, err)
	require.Equal(t, payload, got)

	// 2. Same on the inflate side.
	inflated, err := Decompress(stream[:0:0], stream)
	require.NoError(t, err)
	assert.Equal(t, payload, inflated)
}

func TestCompressReader_IntoFileStorage(t *testing.T) {
	dev := device.NewSoftDevice()
	defer func() { require.NoError(t, dev.Close()) }()
	store, err := storage.NewFileStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	payload := textPayload(t, testPayloadLen)

	sink, err := store.Create(ctx, "archive/input.lz4")
	require.NoError(t, err)
	require.NoError(t, CompressReader(dev, sink, bytes.NewReader(payload)))

	rd, err := store.Open(ctx, "archive/input.lz4")
	require.NoError(t, err)
	defer func() { require.NoError(t, rd.Close()) }()
	r, err := NewReader(rd)
	require.NoError(t, err)
	defer func() { require.NoError(t, r.Close()) }()

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestCompressObjects_SharesOneDevice(t *testing.T) {
	dev := device.NewSoftDevice()
	defer func() { require.NoError(t, dev.Close()) }()
	store := storage.NewInmemStorage()
	ctx := context.Background()

	payloads := map[string][]byte{
		"batch/empty":   nil,
		"batch/tiny":    textPayload(t, 100),
		"batch/a-block": textPayload(t, common.DefaultBlockSize),
		"batch/bricks":  textPayload(t, testPayloadLen),
		"batch/noise":   noisePayload(common.DefaultBlockSize * 3),
	}
	var objects []Object
	for name, data := range payloads {
		objects = append(objects, Object{Name: name, Data: bytes.NewReader(data)})
	}

	require.NoError(t, CompressObjects(ctx, dev, store, objects, WithConcurrency(2)))

	names, err := store.List(ctx, "batch/")
	require.NoError(t, err)
	require.Len(t, names, len(payloads))

	for name, want := range payloads {
		rd, err := store.Open(ctx, name)
		require.NoError(t, err)
		stream, err := io.ReadAll(rd)
		require.NoError(t, err)
		require.NoError(t, rd.Close())

		got, err := Decompress(nil, stream)
		require.NoError(t, err)
		if len(want) == 0 {
			assert.Empty(t, got, name)
		} else {
			assert.Equal(t, want, got, name)
		}
	}
}

func TestCompressObjects_FailureDiscardsTheFailedObject(t *testing.T) {
	dev := device.NewSoftDevice()
	defer func() { require.NoError(t, dev.Close()) }()
	store := storage.NewInmemStorage()
	ctx := context.Background()

	objects := []Object{
		{Name: "ok-1", Data: bytes.NewReader(textPayload(t, 2000))},
		{Name: "bad", Data: iotest.ErrReader(assert.AnError)},
		{Name: "ok-2", Data: bytes.NewReader(textPayload(t, 2000))},
	}

	err := CompressObjects(ctx, dev, store, objects, WithConcurrency(1))
	require.ErrorIs(t, err, assert.AnError)

	// The failed object never became visible.
	_, err = store.Open(ctx, "bad")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func BenchmarkCompress(b *testing.B) {
	payloadSizes := []int{512 << 10, 4 << 20}

	for _, size := range payloadSizes {
		payload := textPayload(b, size)

		for _, mode := range []struct {
			desc string
			opts []Opt
		}{
			{desc: "pipelined"},
			{desc: "sequential", opts: []Opt{WithoutOverlap()}},
		} {
			b.Run(fmt.Sprintf("%s,size=%vkB", mode.desc, size/1024), func(b *testing.B) {
				dev := device.NewSoftDevice()
				defer func() { _ = dev.Close() }()

				b.SetBytes(int64(size))
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					if _, err := Compress(dev, nil, payload, mode.opts...); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}

func BenchmarkDecompress(b *testing.B) {
	payload := textPayload(b, 4<<20)
	dev := device.NewSoftDevice()
	stream, err := Compress(dev, nil, payload)
	if err != nil {
		b.Fatal(err)
	}
	_ = dev.Close()

	var dst []byte
	b.SetBytes(int64(len(payload)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		dst, err = Decompress(dst, stream)
		if err != nil {
			b.Fatal(err)
		}
	}
}
